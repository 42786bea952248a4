package pqueue

import (
	"container/heap"
	"strconv"
	"unsafe"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/grafana/extpq/block"
	"github.com/grafana/extpq/iopool"
)

func levelLabel(lvl int) string { return strconv.Itoa(lvl) }

// merger is the contract refillBuffer2 and the promotion cascade need from
// a level, whether it is backed by an in-memory loser tree or a disk-backed
// external merger.
type merger[T any] interface {
	sourceMerger[T]
	remaining() int
	memConsumption() uint64
	spaceAvailable() bool
}

type levelKind int

const (
	levelInternal levelKind = iota
	levelExternal
)

// pqLevel pairs one merger (internal or external) with its level-2 buffer.
type pqLevel[T any] struct {
	kind     levelKind
	internal *loserTree[T]
	external *externalMerger[T]
	buf2     *buffer2[T]
}

func (l *pqLevel[T]) merger() merger[T] {
	if l.kind == levelInternal {
		return l.internal
	}
	return l.external
}

// PriorityQueue is the coordinator of section 4.6-4.7: it owns the insert
// heap, the internal/external level cascade, and the two-level deletion
// buffer, and orchestrates promotion and refilling between them.
type PriorityQueue[T any] struct {
	cmp Comparator[T]
	cfg *Config

	mgr   block.Manager
	pf    *iopool.PrefetchPool[T]
	wp    *iopool.WritePool[T]
	alloc block.AllocStrategy

	logger log.Logger

	insHeap      *insertHeap[T]
	levels       []*pqLevel[T]
	activeLevels int
	buf1         *buffer1[T]

	// size_ counts elements resident in mergers and level-2 buffers, per
	// section 3's accounting invariant; Size() adds the insert heap and
	// buf1's residual on top.
	size_ int

	elemSize uintptr
}

// New constructs a queue over the given comparator, pool references and
// allocation strategy. mgr, pf and wp are borrowed references whose
// lifetime must strictly enclose the queue's (section 5).
func New[T any](cfg *Config, cmp Comparator[T], mgr block.Manager, pf *iopool.PrefetchPool[T], wp *iopool.WritePool[T], alloc block.AllocStrategy, logger log.Logger) *PriorityQueue[T] {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = log.NewNopLogger()
	}
	var zero T

	q := &PriorityQueue[T]{
		cmp:      cmp,
		cfg:      cfg,
		mgr:      mgr,
		pf:       pf,
		wp:       wp,
		alloc:    alloc,
		logger:   logger,
		insHeap:  newInsertHeap(cmp, cfg.N),
		buf1:     newBuffer1(cmp, cfg.B1),
		elemSize: unsafe.Sizeof(zero),
	}

	total := cfg.LInt + cfg.LExt
	q.levels = make([]*pqLevel[T], total)
	for i := 0; i < cfg.LInt; i++ {
		q.levels[i] = &pqLevel[T]{
			kind:     levelInternal,
			internal: newLoserTree(cmp, cfg.KIntMax),
			buf2:     newBuffer2(cmp, cfg.N),
		}
	}
	for i := cfg.LInt; i < total; i++ {
		q.levels[i] = &pqLevel[T]{
			kind:     levelExternal,
			external: newExternalMerger(cmp, cfg, mgr, pf, wp, alloc, cfg.KExtMax, logger),
			buf2:     newBuffer2(cmp, cfg.N),
		}
	}
	return q
}

// Empty reports whether the queue holds no elements.
func (q *PriorityQueue[T]) Empty() bool {
	return q.insHeap.Len() == 0 && q.buf1.empty()
}

// Size returns the total live element count (section 4.7).
func (q *PriorityQueue[T]) Size() int64 {
	return int64(q.size_) + int64(q.insHeap.Len()) + int64(q.buf1.size())
}

// MemCons returns an estimate of the queue's current memory footprint in
// bytes: the insert heap's capacity plus every level's merger.
func (q *PriorityQueue[T]) MemCons() uint64 {
	total := uint64(q.cfg.N) * uint64(q.elemSize) // insert heap backing capacity
	for _, lvl := range q.levels {
		total += lvl.merger().memConsumption()
		total += uint64(len(lvl.buf2.data)) * uint64(q.elemSize)
	}
	total += uint64(len(q.buf1.data)) * uint64(q.elemSize)
	metricMemConsBytes.Set(float64(total))
	return total
}

// Top returns the smallest live element without removing it. The caller
// must first check Empty (section 4.7).
func (q *PriorityQueue[T]) Top() T {
	if q.insHeap.Len() > 0 && (q.buf1.empty() || q.cmp.Less(q.insHeap.top(), q.buf1.value())) {
		return q.insHeap.top()
	}
	return q.buf1.value()
}

// Push inserts v, triggering an insert-heap flush first if the heap is full
// (section 4.7).
func (q *PriorityQueue[T]) Push(v T) error {
	if q.insHeap.full() {
		if err := q.emptyInsertHeap(); err != nil {
			return err
		}
	}
	heap.Push(q.insHeap, v)
	return nil
}

// Pop removes and returns the smallest live element. The caller must first
// check Empty.
func (q *PriorityQueue[T]) Pop() (T, error) {
	var zero T
	if q.insHeap.Len() > 0 && (q.buf1.empty() || q.cmp.Less(q.insHeap.top(), q.buf1.value())) {
		return heap.Pop(q.insHeap).(T), nil
	}
	if q.buf1.empty() {
		return zero, ErrEmptyQueue
	}
	v := q.buf1.value()
	q.buf1.advance()
	if q.buf1.empty() {
		if err := q.refillBuffer1(); err != nil {
			return zero, err
		}
	}
	return v, nil
}

// refillBuffer1 tops up the shared buffer from the active levels' level-2
// buffers (section 4.5).
func (q *PriorityQueue[T]) refillBuffer1() error {
	totalSize := 0
	for j := q.activeLevels - 1; j >= 0; j-- {
		lvl := q.levels[j]
		if lvl.buf2.size() < q.cfg.B1 {
			n, err := lvl.buf2.refill(lvl.merger(), lvl.merger().remaining())
			if err != nil {
				return err
			}
			if n == 0 && j == q.activeLevels-1 {
				q.activeLevels--
				metricActiveLevels.Set(float64(q.activeLevels))
				continue
			}
			totalSize += n
		} else {
			totalSize += q.cfg.B1 // sufficient lower bound, not exact
		}
	}

	var sz int
	if totalSize >= q.cfg.B1 {
		sz = q.cfg.B1
		q.size_ -= q.cfg.B1
	} else {
		sz = totalSize
		q.size_ = 0
	}

	q.buf1.min = q.cfg.B1 - sz
	dst := q.buf1.data[q.buf1.min:q.cfg.B1]

	switch q.activeLevels {
	case 0:
	case 1:
		b0 := q.levels[0].buf2
		copy(dst, b0.data[b0.min:b0.min+sz])
		b0.min += sz
	case 2:
		c0 := newCursor(q.levels[0].buf2.data[q.levels[0].buf2.min:])
		c1 := newCursor(q.levels[1].buf2.data[q.levels[1].buf2.min:])
		merge2(q.cmp, c0, c1, dst, sz)
		q.levels[0].buf2.min += c0.pos
		q.levels[1].buf2.min += c1.pos
	case 3:
		c0 := newCursor(q.levels[0].buf2.data[q.levels[0].buf2.min:])
		c1 := newCursor(q.levels[1].buf2.data[q.levels[1].buf2.min:])
		c2 := newCursor(q.levels[2].buf2.data[q.levels[2].buf2.min:])
		merge3(q.cmp, c0, c1, c2, dst, sz)
		q.levels[0].buf2.min += c0.pos
		q.levels[1].buf2.min += c1.pos
		q.levels[2].buf2.min += c2.pos
	case 4:
		c0 := newCursor(q.levels[0].buf2.data[q.levels[0].buf2.min:])
		c1 := newCursor(q.levels[1].buf2.data[q.levels[1].buf2.min:])
		c2 := newCursor(q.levels[2].buf2.data[q.levels[2].buf2.min:])
		c3 := newCursor(q.levels[3].buf2.data[q.levels[3].buf2.min:])
		merge4(q.cmp, c0, c1, c2, c3, dst, sz)
		q.levels[0].buf2.min += c0.pos
		q.levels[1].buf2.min += c1.pos
		q.levels[2].buf2.min += c2.pos
		q.levels[3].buf2.min += c3.pos
	default:
		return ErrActiveLevelsExceeded
	}
	return nil
}

// makeSpaceAvailable ensures the merger at lvl can accept a new segment,
// promoting the existing contents of lvl into lvl+1 first if necessary
// (section 4.6). It returns the level space was finally made available at.
func (q *PriorityQueue[T]) makeSpaceAvailable(lvl int) (int, error) {
	if lvl >= len(q.levels) {
		return 0, ErrCapacityExceeded
	}
	if lvl == q.activeLevels {
		q.activeLevels++
		metricActiveLevels.Set(float64(q.activeLevels))
	}
	if q.levels[lvl].merger().spaceAvailable() {
		return lvl, nil
	}

	finalLevel, err := q.makeSpaceAvailable(lvl + 1)
	if err != nil {
		return 0, err
	}

	cur := q.levels[lvl]
	next := q.levels[lvl+1]

	switch {
	case cur.kind == levelInternal && next.kind == levelInternal:
		segSize := cur.internal.remaining()
		data := make([]T, segSize+1)
		cur.internal.multiMerge(data, segSize)
		data[segSize] = q.cmp.MinValue()
		next.internal.insertSegment(newSegment(data, segSize))
	case cur.kind == levelInternal && next.kind == levelExternal:
		segSize := cur.internal.remaining()
		if err := next.external.insertSegment(cur.internal, segSize); err != nil {
			return 0, err
		}
	default: // external -> external
		segSize := cur.external.remaining()
		if err := next.external.insertSegment(cur.external, segSize); err != nil {
			return 0, err
		}
	}

	metricPromotionsTotal.WithLabelValues(levelLabel(lvl)).Inc()
	level.Debug(q.logger).Log("msg", "promoted level", "from", lvl, "to", lvl+1)
	return finalLevel, nil
}

// emptyInsertHeap flushes the insert heap into the level cascade (section
// 4.6): the heap is sorted into a fresh sentinel-terminated segment, which
// is then merged against the current residuals of buf1 and buf2[0] in
// place, so those two buffers come out the other side topped up from the
// freshest data without any extra drains.
func (q *PriorityQueue[T]) emptyInsertHeap() error {
	n := q.cfg.N
	newSeg := q.insHeap.drainSorted() // len n+1, sentinel at n

	buf2_0 := q.levels[0].buf2
	sz1 := q.buf1.size()
	sz2 := buf2_0.size()

	tempSize := n + q.cfg.B1
	temp := make([]T, tempSize+1)
	pos := tempSize - sz1 - sz2
	copy(temp[pos:pos+sz1], q.buf1.data[q.buf1.min:q.buf1.min+sz1])
	copy(temp[pos+sz1:pos+sz1+sz2], buf2_0.data[buf2_0.min:buf2_0.min+sz2])
	temp[tempSize] = q.cmp.MinValue()

	tempCur := newCursor(temp[pos:])
	segCur := newCursor(newSeg)

	merge2(q.cmp, tempCur, segCur, q.buf1.data[q.cfg.B1-sz1:q.cfg.B1], sz1)
	q.buf1.min = q.cfg.B1 - sz1

	merge2(q.cmp, tempCur, segCur, buf2_0.data[n-sz2:n], sz2)
	buf2_0.min = n - sz2

	// merge the remainder back into newSeg itself; safe because the reads
	// (tempCur/segCur) strictly lead the write position.
	merge2(q.cmp, tempCur, segCur, newSeg, n)

	freeLevel, err := q.makeSpaceAvailable(0)
	if err != nil {
		return err
	}
	q.levels[0].internal.insertSegment(newSegment(newSeg, n))

	if freeLevel > 0 {
		for i := freeLevel; i >= 0; i-- {
			b2 := q.levels[i].buf2
			sz := b2.size()
			data := make([]T, sz+1)
			copy(data, b2.data[b2.min:b2.min+sz+1])
			q.levels[0].internal.insertSegment(newSegment(data, sz))
			b2.min = b2.n
		}
	}

	q.size_ += n
	if q.buf1.empty() {
		if err := q.refillBuffer1(); err != nil {
			return err
		}
	}
	return nil
}

// Close returns every block id owned by the external levels to the block
// manager. It does not drain the queue's contents first, and it leaves the
// insert heap, the internal levels and the deletion buffers as they are.
func (q *PriorityQueue[T]) Close() {
	for _, lvl := range q.levels {
		if lvl.kind == levelExternal {
			lvl.external.close()
		}
	}
}
