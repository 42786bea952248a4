package pqueue

import (
	"container/heap"
	"unsafe"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/grafana/extpq/block"
	"github.com/grafana/extpq/iopool"
)

// sourceMerger is the common drain contract both an internal loser tree
// and another external merger satisfy, so insertSegment can pull from
// either without caring which (section 4.3 / 4.6).
type sourceMerger[T any] interface {
	drain(out []T) error
}

func (lt *loserTree[T]) drain(out []T) error {
	lt.multiMerge(out, len(out))
	return nil
}

// externalMerger is the disk-backed k-way merger of section 4.3: each
// input is a sequence of blocks streamed through the prefetch pool.
type externalMerger[T any] struct {
	cmp   Comparator[T]
	cfg   *Config
	mgr   block.Manager
	pf    *iopool.PrefetchPool[T]
	wp    *iopool.WritePool[T]
	alloc block.AllocStrategy
	arity int

	h         *seqHeap[T]
	nelements int

	elemSize uintptr
	logger   log.Logger
}

func newExternalMerger[T any](cmp Comparator[T], cfg *Config, mgr block.Manager,
	pf *iopool.PrefetchPool[T], wp *iopool.WritePool[T], alloc block.AllocStrategy, arity int, logger log.Logger) *externalMerger[T] {
	var zero T
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &externalMerger[T]{
		cmp:      cmp,
		cfg:      cfg,
		mgr:      mgr,
		pf:       pf,
		wp:       wp,
		alloc:    alloc,
		arity:    arity,
		h:        &seqHeap[T]{cmp: cmp},
		elemSize: unsafe.Sizeof(zero),
		logger:   logger,
	}
}

func (m *externalMerger[T]) spaceAvailable() bool {
	return m.h.Len() < m.arity
}

func (m *externalMerger[T]) remaining() int {
	return m.nelements
}

func (m *externalMerger[T]) memConsumption() uint64 {
	return uint64(m.h.Len()) * 2 * uint64(m.cfg.BlockSize) * uint64(m.elemSize)
}

// drain implements sourceMerger so an external merger can itself feed a
// promotion into the next external level.
func (m *externalMerger[T]) drain(out []T) error {
	return m.multiMerge(out)
}

// multiMerge repeatedly extracts the top sequence, writes its current
// element, and advances its cursor, crossing block boundaries as needed
// (section 4.3).
func (m *externalMerger[T]) multiMerge(out []T) error {
	for i := range out {
		top := m.h.items[0]
		out[i] = top.value()
		top.pos++
		m.nelements--

		if top.pos >= top.cur().Size() {
			if len(top.tail) == 0 {
				heap.Pop(m.h)
				continue
			}
			if err := m.advanceBlock(top); err != nil {
				return err
			}
		}

		if m.h.Len() > 0 {
			heap.Fix(m.h, 0)
		}
	}
	return nil
}

// advanceBlock crosses a block boundary within seq: it consumes the next
// block id, either waiting out a block already in flight from a previous
// prefetch hint or reading it synchronously (waiting out any pending write
// for that same id first), returns the exhausted block id to the manager,
// and -- if more blocks remain -- issues a prefetch hint for the block
// after that one, again waiting out any pending write for it first
// (section 5's ordering rule: a write for block b must be observed
// complete before any prefetch/read of b returns).
func (m *externalMerger[T]) advanceBlock(seq *sequence[T]) error {
	b := seq.tail[0]
	seq.tail = seq.tail[1:]

	spare := seq.bufs[1-seq.curIdx]
	if seq.prefetchReq != nil && seq.prefetchID == b {
		if err := seq.prefetchReq.Wait(); err != nil {
			return err
		}
		seq.curIdx = 1 - seq.curIdx
		seq.prefetchReq = nil
	} else {
		if wreq, ok := m.wp.GetRequest(b); ok {
			level.Debug(m.logger).Log("msg", "waiting for pending write before read", "block", b)
			if err := wreq.Wait(); err != nil {
				return err
			}
		}
		if err := m.pf.Read(spare, b).Wait(); err != nil {
			return err
		}
		seq.curIdx = 1 - seq.curIdx
	}
	m.mgr.DeleteBlock(b)
	seq.pos = 0

	if len(seq.tail) > 0 {
		next := seq.tail[0]
		if wreq, ok := m.wp.GetRequest(next); ok {
			level.Debug(m.logger).Log("msg", "waiting for pending write before prefetch", "block", next)
			if err := wreq.Wait(); err != nil {
				return err
			}
		}
		freeBuf := seq.bufs[1-seq.curIdx]
		seq.prefetchReq = m.pf.Hint(next, freeBuf)
		seq.prefetchID = next
	}
	return nil
}

// insertSegment drains exactly segmentSize elements from src into a
// freshly built external sequence (section 4.3). The first drain lands
// right-aligned in an in-memory first block so a segment whose size isn't
// a multiple of BlockSize doesn't need a partial trailing block on disk.
func (m *externalMerger[T]) insertSegment(src sourceMerger[T], segmentSize int) error {
	if segmentSize == 0 {
		if m.cfg.StrictEmptySegments {
			return ErrEmptySegment
		}
		return nil
	}

	blockSize := m.cfg.BlockSize
	nblocks := segmentSize / blockSize
	firstSize := segmentSize % blockSize
	if firstSize == 0 {
		firstSize = blockSize
		nblocks--
	}

	ids, err := m.mgr.NewBlocks(m.alloc, nblocks)
	if err != nil {
		return err
	}

	firstBlock := block.New[T](0, blockSize)
	tmp := make([]T, firstSize)
	if err := src.drain(tmp); err != nil {
		return err
	}
	copy(firstBlock.Data[blockSize-firstSize:], tmp)

	for i := 0; i < nblocks; i++ {
		buf := m.wp.Acquire(blockSize)
		buf.ID = ids[i]
		if err := src.drain(buf.Data); err != nil {
			return err
		}
		m.wp.Write(ids[i], buf)
	}

	seq := &sequence[T]{
		tail: ids,
		pos:  blockSize - firstSize,
	}
	seq.bufs[0] = firstBlock
	seq.bufs[1] = block.New[T](0, blockSize)
	heap.Push(m.h, seq)
	m.nelements += segmentSize

	level.Debug(m.logger).Log("msg", "inserted external segment", "size", segmentSize, "blocks", nblocks+1)
	return nil
}

// close returns the still-unread tail of every sequence to the manager.
// Resident blocks hold no outstanding id: a sequence's first block is never
// allocated from the manager, and every block read in by advanceBlock has
// already been handed back.
func (m *externalMerger[T]) close() {
	for _, seq := range m.h.items {
		m.mgr.DeleteBlocks(seq.tail)
	}
	m.h.items = nil
}
