package pqueue

// buffer2 is a level-2 buffer (section 3): N+1 slots, slot N always holding
// the sentinel. min is the cursor to the next element; the buffer is empty
// when min == N.
type buffer2[T any] struct {
	n    int
	data []T
	min  int
}

func newBuffer2[T any](cmp Comparator[T], n int) *buffer2[T] {
	b := &buffer2[T]{n: n, data: make([]T, n+1)}
	b.data[n] = cmp.MinValue()
	b.min = n
	return b
}

func (b *buffer2[T]) size() int  { return b.n - b.min }
func (b *buffer2[T]) value() T   { return b.data[b.min] }
func (b *buffer2[T]) advance()   { b.min++ }
func (b *buffer2[T]) empty() bool { return b.min == b.n }

// refill tops up the buffer from src, following section 4.5: shift
// whatever residual remains to the position the incoming drain will land
// next to, then ask src to fill the rest. The shift uses Go's copy, which
// is safe on overlapping slices (it behaves like memmove), matching the
// original's note about an overlap-safe move.
func (b *buffer2[T]) refill(src sourceMerger[T], srcRemaining int) (int, error) {
	bufSize := b.size()
	if srcRemaining+bufSize >= b.n {
		copy(b.data[0:bufSize], b.data[b.min:b.min+bufSize])
		if err := src.drain(b.data[bufSize:b.n]); err != nil {
			return 0, err
		}
		b.min = 0
	} else {
		dst := b.n - srcRemaining - bufSize
		copy(b.data[dst:dst+bufSize], b.data[b.min:b.min+bufSize])
		if srcRemaining > 0 {
			if err := src.drain(b.data[dst+bufSize : b.n]); err != nil {
				return 0, err
			}
		}
		b.min = dst
	}
	return b.size(), nil
}

// buffer1 is the shared level-1 buffer: B1+1 slots, slot B1 holding the
// sentinel.
type buffer1[T any] struct {
	b1   int
	data []T
	min  int
}

func newBuffer1[T any](cmp Comparator[T], b1 int) *buffer1[T] {
	b := &buffer1[T]{b1: b1, data: make([]T, b1+1)}
	b.data[b1] = cmp.MinValue()
	b.min = b1
	return b
}

func (b *buffer1[T]) size() int   { return b.b1 - b.min }
func (b *buffer1[T]) value() T    { return b.data[b.min] }
func (b *buffer1[T]) advance()    { b.min++ }
func (b *buffer1[T]) empty() bool { return b.min == b.b1 }
