// Package filestore is a real disk-backed block.Manager, iopool.Source and
// iopool.Sink: every block lives as its own file under a root directory,
// the way friggdb/backend/local lays out one block's meta/bloom/index/
// traces files under a per-block-id folder. Here a block has no structure
// beyond its element slice, so one file per id is enough.
package filestore

import (
	"bufio"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/grafana/extpq/block"
)

// Config names the root directory blocks are written under.
type Config struct {
	Path string `yaml:"path"`
}

// Store is a block.Manager plus an iopool.Source/Sink pair over ordinary
// files. Its own bookkeeping (id allocation, the live set) is guarded by a
// mutex since, unlike the queue itself, a Store may be shared by several
// concurrent prefetch/write workers.
type Store[T any] struct {
	cfg *Config

	mu      sync.Mutex
	counter uint64
	live    map[block.ID]struct{}
}

// New creates the root directory if necessary and returns a ready Store.
func New[T any](cfg *Config) (*Store[T], error) {
	if err := os.MkdirAll(cfg.Path, 0o755); err != nil {
		return nil, err
	}
	return &Store[T]{cfg: cfg, live: make(map[block.ID]struct{})}, nil
}

func (s *Store[T]) blockPath(id block.ID) string {
	return filepath.Join(s.cfg.Path, fmt.Sprintf("%020d.block", uint64(id)))
}

// NewBlocks implements block.Manager.
func (s *Store[T]) NewBlocks(strategy block.AllocStrategy, n int) ([]block.ID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strategy == nil {
		strategy = block.Monotonic{}
	}
	ids := make([]block.ID, n)
	for i := 0; i < n; i++ {
		id := strategy.Next(s.counter)
		s.counter++
		if _, dup := s.live[id]; dup {
			return nil, fmt.Errorf("filestore: allocation strategy produced a duplicate id %d", id)
		}
		s.live[id] = struct{}{}
		ids[i] = id
	}
	return ids, nil
}

// DeleteBlock implements block.Manager: it removes the id from the live set
// and unlinks its file. A missing file is not an error -- the block may
// never have been flushed to disk if it lived only in a pooled buffer.
func (s *Store[T]) DeleteBlock(id block.ID) {
	s.mu.Lock()
	delete(s.live, id)
	s.mu.Unlock()
	_ = os.Remove(s.blockPath(id))
}

// DeleteBlocks implements block.Manager.
func (s *Store[T]) DeleteBlocks(ids []block.ID) {
	for _, id := range ids {
		s.DeleteBlock(id)
	}
}

// Live implements block.Manager.
func (s *Store[T]) Live() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.live)
}

// WriteBlock implements iopool.Sink.
func (s *Store[T]) WriteBlock(id block.ID, data *block.Block[T]) error {
	f, err := os.Create(s.blockPath(id))
	if err != nil {
		return err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	if err := gob.NewEncoder(w).Encode(data.Data); err != nil {
		return err
	}
	return w.Flush()
}

// ReadBlock implements iopool.Source.
func (s *Store[T]) ReadBlock(id block.ID, into *block.Block[T]) error {
	f, err := os.Open(s.blockPath(id))
	if err != nil {
		return err
	}
	defer f.Close()

	var data []T
	if err := gob.NewDecoder(bufio.NewReader(f)).Decode(&data); err != nil {
		return err
	}
	copy(into.Data, data)
	return nil
}
