package pqueue

import "unsafe"

// ltEntry is a (key, leaf index) pair: either the cached overall winner at
// tree[0], or the loser of the match played at an interior node.
type ltEntry[T any] struct {
	key   T
	index int
}

// loserTree is the in-memory k-way merger of section 4.2: an implicit
// binary tree with k leaves (k a power of two, k <= kMax) and k-1 interior
// nodes. Leaves live at physical position k+i in tree; interior nodes at
// [1, k); tree[0] caches the overall winner. A stack of empty leaf indices
// gives O(1) slot allocation, exactly like the teacher's bounded worker
// pool reuses slots instead of reallocating.
type loserTree[T any] struct {
	cmp  Comparator[T]
	k    int
	kMax int

	tree   []ltEntry[T] // length 2*k; tree[0] is the cached winner
	leaves []*cursor[T] // length k; nil when the leaf is free
	active []bool       // length k

	free []int // stack of free leaf indices

	size_    int // remaining elements across all active segments
	memCons  uint64
	elemSize uintptr
}

func newLoserTree[T any](cmp Comparator[T], kMax int) *loserTree[T] {
	var zero T
	lt := &loserTree[T]{
		cmp:      cmp,
		k:        1,
		kMax:     kMax,
		tree:     make([]ltEntry[T], 2),
		leaves:   make([]*cursor[T], 1),
		active:   make([]bool, 1),
		elemSize: unsafe.Sizeof(zero),
	}
	lt.leaves[0] = newCursor([]T{cmp.MinValue()})
	lt.rebuild()
	return lt
}

func (lt *loserTree[T]) leafValue(i int) T {
	if lt.active[i] {
		return lt.leaves[i].value()
	}
	return lt.cmp.MinValue()
}

// rebuild recomputes the entire tree from the leaves' current values in one
// linear bottom-up pass -- used after doubleK and after compaction.
func (lt *loserTree[T]) rebuild() {
	winner := lt.initWinner(1)
	lt.tree[0] = winner
}

func (lt *loserTree[T]) initWinner(node int) ltEntry[T] {
	if node >= lt.k {
		leaf := node - lt.k
		return ltEntry[T]{key: lt.leafValue(leaf), index: leaf}
	}
	left := lt.initWinner(2 * node)
	right := lt.initWinner(2*node + 1)
	if !lt.cmp.Less(right.key, left.key) {
		lt.tree[node] = right
		return left
	}
	lt.tree[node] = left
	return right
}

// replayFrom re-establishes tree order after the current winner's leaf
// advanced during multi_merge, walking from the leaf's parent to the root
// and swapping with each stored loser that now beats it, bounded by
// log2(kMax). It is only valid for the leaf cached at tree[0]: a leaf that
// is not the current winner does not appear on its own path as the entry
// that moved up, so insertSegment rebuilds the tree instead.
func (lt *loserTree[T]) replayFrom(leaf int) {
	cur := ltEntry[T]{key: lt.leafValue(leaf), index: leaf}
	node := (lt.k + leaf) / 2
	for node >= 1 {
		if lt.cmp.Less(lt.tree[node].key, cur.key) {
			lt.tree[node], cur = cur, lt.tree[node]
		}
		node /= 2
	}
	lt.tree[0] = cur
}

// spaceAvailable reports whether a free leaf slot exists, or k can still be
// doubled to make room for one.
func (lt *loserTree[T]) spaceAvailable() bool {
	return len(lt.free) > 0 || lt.k < lt.kMax
}

func (lt *loserTree[T]) doubleK() {
	newK := lt.k * 2
	lt.tree = make([]ltEntry[T], 2*newK)
	newLeaves := make([]*cursor[T], newK)
	newActive := make([]bool, newK)
	copy(newLeaves, lt.leaves)
	copy(newActive, lt.active)
	lt.leaves = newLeaves
	lt.active = newActive

	// Scan the full new range rather than assuming [0, lt.k) is all active:
	// the very first doubleK (k=1 -> 2) doubles a tree whose sole leaf is
	// still the construction-time sentinel, never marked active, so it must
	// land on the free stack too or slot 0 is never reused.
	lt.free = lt.free[:0]
	for i := newK - 1; i >= 0; i-- {
		if !newActive[i] {
			lt.free = append(lt.free, i)
		}
	}
	lt.k = newK
	lt.rebuild()
}

// insertSegment installs seg as a new leaf and rebuilds the tree in one
// linear pass over the k leaves (O(k), not O(log k)). A zero-sized segment
// is discarded immediately: its presence would stall the tree on its
// sentinel forever (section 4.2).
func (lt *loserTree[T]) insertSegment(seg *segment[T]) {
	if seg.size == 0 {
		return
	}

	if len(lt.free) == 0 {
		lt.doubleK()
	}
	idx := lt.free[len(lt.free)-1]
	lt.free = lt.free[:len(lt.free)-1]

	lt.leaves[idx] = newCursor(seg.data)
	lt.active[idx] = true
	lt.size_ += seg.size
	lt.memCons += seg.memBytes(lt.elemSize)

	lt.rebuild()
}

func (lt *loserTree[T]) deallocate(leaf int) {
	lt.memCons -= uint64(len(lt.leaves[leaf].data)) * uint64(lt.elemSize)
	lt.active[leaf] = false
	lt.leaves[leaf] = nil
	lt.free = append(lt.free, leaf)
}

// multiMerge emits the l smallest remaining elements into out, compacting
// the tree afterwards if at least 60% of its slots are now free (section
// 4.2).
func (lt *loserTree[T]) multiMerge(out []T, l int) {
	for i := 0; i < l; i++ {
		winner := lt.tree[0]
		out[i] = winner.key

		leaf := lt.leaves[winner.index]
		leaf.advance()
		lt.size_--

		if equalByCmp(lt.cmp, leaf.value(), lt.cmp.MinValue()) {
			lt.deallocate(winner.index)
		}
		lt.replayFrom(winner.index)
	}

	if len(lt.free) >= (lt.k*3+4)/5 { // >= ~60% free, rounded up
		lt.compact()
	}
}

// compact slides non-empty segments left, halves k as many times as
// possible while k stays above 1, and rebuilds the tree in one linear pass.
func (lt *loserTree[T]) compact() {
	to := 0
	for from := 0; from < lt.k; from++ {
		if lt.active[from] {
			lt.leaves[to] = lt.leaves[from]
			lt.active[to] = true
			to++
		}
	}
	for i := to; i < lt.k; i++ {
		lt.leaves[i] = nil
		lt.active[i] = false
	}

	for to <= lt.k/2 && lt.k > 1 {
		lt.k /= 2
	}

	lt.free = lt.free[:0]
	for i := to; i < lt.k; i++ {
		lt.free = append(lt.free, i)
	}

	lt.tree = lt.tree[:2*lt.k]
	metricCompactionsTotal.Inc()
	lt.rebuild()
}

func (lt *loserTree[T]) remaining() int {
	return lt.size_
}

func (lt *loserTree[T]) memConsumption() uint64 {
	return lt.memCons
}
