package pqueue_test

import (
	"math"
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grafana/extpq/block"
	"github.com/grafana/extpq/filestore"
	"github.com/grafana/extpq/iopool"
	"github.com/grafana/extpq/pqueue"
)

type intCmp struct{}

func (intCmp) Less(a, b int) bool { return a < b }
func (intCmp) MinValue() int      { return math.MaxInt }

func newTestQueue(t *testing.T, cfg *pqueue.Config) (*pqueue.PriorityQueue[int], block.Manager) {
	t.Helper()

	store, err := filestore.New[int](&filestore.Config{Path: t.TempDir()})
	require.NoError(t, err)

	poolCfg := iopool.DefaultConfig()
	pf := iopool.NewPrefetchPool[int](poolCfg, store)
	wp := iopool.NewWritePool[int](poolCfg, store)

	return pqueue.New[int](cfg, intCmp{}, store, pf, wp, block.Monotonic{}, nil), store
}

func drainAll(t *testing.T, q *pqueue.PriorityQueue[int]) []int {
	t.Helper()
	var out []int
	for !q.Empty() {
		v, err := q.Pop()
		require.NoError(t, err)
		out = append(out, v)
	}
	return out
}

func TestBoundaryAscendingExtraction(t *testing.T) {
	q, _ := newTestQueue(t, pqueue.DefaultConfig())
	for _, v := range []int{5, 1, 4, 2, 3} {
		require.NoError(t, q.Push(v))
	}
	assert.Equal(t, []int{1, 2, 3, 4, 5}, drainAll(t, q))
}

func TestInsertHeapFlushProducesAscendingOrder(t *testing.T) {
	cfg := pqueue.DefaultConfig()
	q, _ := newTestQueue(t, cfg)

	n := cfg.N + 1
	for i := 0; i < n; i++ {
		require.NoError(t, q.Push(n-i)) // descending
	}

	out := drainAll(t, q)
	require.Len(t, out, n)
	assert.True(t, sort.IntsAreSorted(out))
	assert.Equal(t, int64(n-1), int64(len(out)-1))
}

func smallExternalConfig() *pqueue.Config {
	return &pqueue.Config{
		B1: 4, N: 8, KIntMax: 2, LInt: 2, BlockSize: 4, KExtMax: 64, LExt: 1,
	}
}

func TestForcesExternalPromotionAndStaysOrdered(t *testing.T) {
	cfg := smallExternalConfig()
	q, _ := newTestQueue(t, cfg)

	const total = 1024
	pushed := make([]int, total)
	for i := range pushed {
		pushed[i] = rand.Intn(1 << 30)
		require.NoError(t, q.Push(pushed[i]))
	}

	out := drainAll(t, q)
	require.Len(t, out, total)
	assert.True(t, sort.IntsAreSorted(out))

	sort.Ints(pushed)
	assert.Equal(t, pushed, out)
}

func TestSizeMonotonicity(t *testing.T) {
	q, _ := newTestQueue(t, smallExternalConfig())

	var size int64
	for i := 0; i < 200; i++ {
		require.NoError(t, q.Push(rand.Intn(1000)))
		size++
		assert.Equal(t, size, q.Size())
	}
	for !q.Empty() {
		_, err := q.Pop()
		require.NoError(t, err)
		size--
		assert.Equal(t, size, q.Size())
	}
}

func TestDuplicateKeysPreserved(t *testing.T) {
	q, _ := newTestQueue(t, pqueue.DefaultConfig())
	vals := []int{3, 1, 3, 2, 1, 3}
	for _, v := range vals {
		require.NoError(t, q.Push(v))
	}
	out := drainAll(t, q)
	want := append([]int(nil), vals...)
	sort.Ints(want)
	assert.Equal(t, want, out)
}

func TestPopOnEmptyQueueReturnsError(t *testing.T) {
	q, _ := newTestQueue(t, pqueue.DefaultConfig())
	_, err := q.Pop()
	assert.ErrorIs(t, err, pqueue.ErrEmptyQueue)
}

func TestTopDoesNotRemove(t *testing.T) {
	q, _ := newTestQueue(t, pqueue.DefaultConfig())
	require.NoError(t, q.Push(7))
	require.NoError(t, q.Push(3))

	top := q.Top()
	assert.Equal(t, 3, top)
	assert.Equal(t, int64(2), q.Size())

	v, err := q.Pop()
	require.NoError(t, err)
	assert.Equal(t, top, v)
}

func TestPushPopInterleavedKeepsSortedOutput(t *testing.T) {
	cfg := smallExternalConfig()
	q, _ := newTestQueue(t, cfg)

	const pushCount = 10
	n := cfg.N
	first := make([]int, 0, pushCount*n)
	for i := 0; i < pushCount*n; i++ {
		v := rand.Intn(1 << 20)
		first = append(first, v)
		require.NoError(t, q.Push(v))
	}

	popCount := 5 * n / 2
	popped := make([]int, 0, popCount)
	for i := 0; i < popCount; i++ {
		v, err := q.Pop()
		require.NoError(t, err)
		popped = append(popped, v)
	}
	assert.True(t, sort.IntsAreSorted(popped))

	second := make([]int, 0, 5*n)
	for i := 0; i < 5*n; i++ {
		v := rand.Intn(1 << 20)
		second = append(second, v)
		require.NoError(t, q.Push(v))
	}

	rest := drainAll(t, q)
	assert.True(t, sort.IntsAreSorted(rest))
	sort.Ints(first)
	want := append(first[popCount:], second...)
	sort.Ints(want)
	assert.Equal(t, want, rest)
}

func TestCloseWithoutDrainingReturnsAllBlocks(t *testing.T) {
	cfg := smallExternalConfig()
	q, mgr := newTestQueue(t, cfg)

	for i := 0; i < 64; i++ {
		require.NoError(t, q.Push(rand.Intn(1 << 20)))
	}
	require.Greater(t, mgr.Live(), 0, "expected the push sequence to force at least one external block allocation")

	q.Close()
	assert.Equal(t, 0, mgr.Live())
}

func TestEmptyQueueReportsEmpty(t *testing.T) {
	q, _ := newTestQueue(t, pqueue.DefaultConfig())
	assert.True(t, q.Empty())
	require.NoError(t, q.Push(1))
	assert.False(t, q.Empty())
	_, err := q.Pop()
	require.NoError(t, err)
	assert.True(t, q.Empty())
}
