package iopool

import (
	"sync"

	"go.uber.org/atomic"

	"github.com/grafana/extpq/block"
)

// Sink writes a single block's contents to the backing store.
type Sink[T any] interface {
	WriteBlock(id block.ID, data *block.Block[T]) error
}

type writeJob[T any] struct {
	id   block.ID
	data *block.Block[T]
	req  *request
}

// WritePool accepts (buffer, id) pairs and writes them asynchronously. It
// also hands out reusable block buffers to callers draining a merger into
// fresh blocks (section 4.3's "acquire a free buffer from the write pool"),
// and tracks pending writes so the external merger can wait one out before
// a prefetch reads the same id (section 5's ordering rule).
type WritePool[T any] struct {
	sink Sink[T]
	jobs chan writeJob[T]
	size *atomic.Int32

	mu      sync.Mutex
	pending map[block.ID]*request

	bufMu    sync.Mutex
	freeBufs []*block.Block[T]
}

// NewWritePool starts cfg.MaxWorkers background writers.
func NewWritePool[T any](cfg *Config, sink Sink[T]) *WritePool[T] {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	p := &WritePool[T]{
		sink:    sink,
		jobs:    make(chan writeJob[T], cfg.QueueDepth),
		size:    atomic.NewInt32(0),
		pending: make(map[block.ID]*request),
	}
	for i := 0; i < cfg.MaxWorkers; i++ {
		go p.worker()
	}
	return p
}

func (p *WritePool[T]) worker() {
	for j := range p.jobs {
		p.size.Dec()
		err := p.sink.WriteBlock(j.id, j.data)

		p.mu.Lock()
		if p.pending[j.id] == j.req {
			delete(p.pending, j.id)
		}
		p.mu.Unlock()

		p.release(j.data)
		j.req.complete(err)
	}
}

// Write schedules an asynchronous write of data under id and returns its
// request handle.
func (p *WritePool[T]) Write(id block.ID, data *block.Block[T]) Request {
	req := newRequest()

	p.mu.Lock()
	p.pending[id] = req
	p.mu.Unlock()

	p.size.Inc()
	select {
	case p.jobs <- writeJob[T]{id: id, data: data, req: req}:
	default:
		p.size.Dec()
		p.mu.Lock()
		if p.pending[id] == req {
			delete(p.pending, id)
		}
		p.mu.Unlock()
		req.complete(ErrQueueFull)
	}
	return req
}

// GetRequest returns a handle to a pending write for id, if one exists.
func (p *WritePool[T]) GetRequest(id block.ID) (Request, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	req, ok := p.pending[id]
	return req, ok
}

// Acquire returns a free block buffer of the given element capacity,
// reusing one from the pool when available.
func (p *WritePool[T]) Acquire(blockSize int) *block.Block[T] {
	p.bufMu.Lock()
	defer p.bufMu.Unlock()

	for n := len(p.freeBufs); n > 0; n = len(p.freeBufs) {
		buf := p.freeBufs[n-1]
		p.freeBufs = p.freeBufs[:n-1]
		if buf.Size() == blockSize {
			return buf
		}
	}
	return block.New[T](0, blockSize)
}

func (p *WritePool[T]) release(buf *block.Block[T]) {
	p.bufMu.Lock()
	defer p.bufMu.Unlock()
	p.freeBufs = append(p.freeBufs, buf)
}

// QueueLength reports the current number of queued writes not yet picked
// up by a worker; a write stops counting once a worker takes it.
func (p *WritePool[T]) QueueLength() int32 {
	return p.size.Load()
}
