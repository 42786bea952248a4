// Package iopool adapts friggdb/pool.Pool's bounded worker-pool shape to
// the asynchronous, per-request block I/O the external merger needs:
// instead of RunJobs aggregating a batch into one result, every submission
// returns its own Request handle.
package iopool

import (
	"errors"

	"go.uber.org/atomic"

	"github.com/grafana/extpq/block"
)

// ErrQueueFull is returned (via a failed Request) when a pool's queue has
// no room for another submission.
var ErrQueueFull = errors.New("iopool: queue is full")

// Source reads a single block's contents from the backing store.
type Source[T any] interface {
	ReadBlock(id block.ID, into *block.Block[T]) error
}

type prefetchJob[T any] struct {
	id  block.ID
	dst *block.Block[T]
	req *request
}

// PrefetchPool accepts hints for block ids and asynchronously reads them
// into caller-supplied buffers (section 5).
type PrefetchPool[T any] struct {
	src  Source[T]
	jobs chan prefetchJob[T]
	size *atomic.Int32
}

// NewPrefetchPool starts cfg.MaxWorkers background readers pulling from a
// queue of depth cfg.QueueDepth.
func NewPrefetchPool[T any](cfg *Config, src Source[T]) *PrefetchPool[T] {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	p := &PrefetchPool[T]{
		src:  src,
		jobs: make(chan prefetchJob[T], cfg.QueueDepth),
		size: atomic.NewInt32(0),
	}
	for i := 0; i < cfg.MaxWorkers; i++ {
		go p.worker()
	}
	return p
}

func (p *PrefetchPool[T]) worker() {
	for j := range p.jobs {
		p.size.Dec()
		err := p.src.ReadBlock(j.id, j.dst)
		j.req.complete(err)
	}
}

func (p *PrefetchPool[T]) submit(id block.ID, dst *block.Block[T]) Request {
	req := newRequest()
	p.size.Inc()
	select {
	case p.jobs <- prefetchJob[T]{id: id, dst: dst, req: req}:
	default:
		p.size.Dec()
		req.complete(ErrQueueFull)
	}
	return req
}

// Hint issues a prefetch hint for id into dst: the I/O layer may begin the
// read immediately, ahead of a later synchronous Read for the same id,
// overlapping the read with the caller's current merge work (section 5's
// ordering rule).
func (p *PrefetchPool[T]) Hint(id block.ID, dst *block.Block[T]) Request {
	return p.submit(id, dst)
}

// Read queues a read of id into dst and returns its request handle, exactly
// like Hint: callers that did not issue a prior hint for id use this and
// wait on the handle immediately.
func (p *PrefetchPool[T]) Read(dst *block.Block[T], id block.ID) Request {
	return p.submit(id, dst)
}

// QueueLength reports the current number of queued jobs not yet picked up
// by a worker (a job stops counting once a worker takes it, before its
// read runs), for metrics reporting in the style of friggdb/pool's
// queue-length gauge.
func (p *PrefetchPool[T]) QueueLength() int32 {
	return p.size.Load()
}
