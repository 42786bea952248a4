package pqueue

import (
	"container/heap"

	"github.com/grafana/extpq/block"
	"github.com/grafana/extpq/iopool"
)

// sequence is an external sequence (section 3): a segment whose body lives
// on disk as a list of block identifiers plus one resident current block
// and a cursor within it. bufs holds two resident block buffers so the
// next block can be prefetched into the spare one while the current one
// is still being drained.
type sequence[T any] struct {
	bufs   [2]*block.Block[T]
	curIdx int
	pos    int
	tail   []block.ID

	prefetchReq iopool.Request
	prefetchID  block.ID
}

func (s *sequence[T]) cur() *block.Block[T] {
	return s.bufs[s.curIdx]
}

func (s *sequence[T]) value() T {
	return s.cur().Data[s.pos]
}

// seqHeap is the small in-memory priority queue over sequences, keyed by
// each sequence's current element, that section 4.3 uses to pick the next
// sequence to emit from. Implemented with container/heap, the same way the
// pack's external-merge sorters pick their next run.
type seqHeap[T any] struct {
	items []*sequence[T]
	cmp   Comparator[T]
}

func (h *seqHeap[T]) Len() int { return len(h.items) }

func (h *seqHeap[T]) Less(i, j int) bool {
	return h.cmp.Less(h.items[i].value(), h.items[j].value())
}

func (h *seqHeap[T]) Swap(i, j int) {
	h.items[i], h.items[j] = h.items[j], h.items[i]
}

func (h *seqHeap[T]) Push(x any) {
	h.items = append(h.items, x.(*sequence[T]))
}

func (h *seqHeap[T]) Pop() any {
	old := h.items
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	h.items = old[:n-1]
	return it
}

var _ heap.Interface = (*seqHeap[int])(nil)
