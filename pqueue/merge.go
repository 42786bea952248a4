package pqueue

// cursor walks a sentinel-terminated sorted run: the source of every merge
// primitive and the representation of a loser-tree leaf. External
// sequences do not use it; they track their in-block position in
// sequence.pos. Every cursor the merge primitives are handed always has a
// readable value at pos, sentinel or not.
type cursor[T any] struct {
	data []T
	pos  int
}

func newCursor[T any](data []T) *cursor[T] {
	return &cursor[T]{data: data}
}

func (c *cursor[T]) value() T {
	return c.data[c.pos]
}

func (c *cursor[T]) advance() {
	c.pos++
}

func (c *cursor[T]) atSentinel(cmp Comparator[T]) bool {
	return equalByCmp(cmp, c.value(), cmp.MinValue())
}

// merge2 copies exactly sz elements from the merge of a and b into out, in
// non-decreasing order, advancing each cursor past every element it
// contributed. The caller guarantees at least sz non-sentinel elements are
// collectively available across a and b, so the loop never checks for
// end-of-input.
func merge2[T any](cmp Comparator[T], a, b *cursor[T], out []T, sz int) {
	for i := 0; i < sz; i++ {
		if !cmp.Less(b.value(), a.value()) {
			out[i] = a.value()
			a.advance()
		} else {
			out[i] = b.value()
			b.advance()
		}
	}
}

// merge3 copies exactly sz elements from the merge of a, b and c into out.
// It dispatches once to the sources' current relative order and then, per
// output element, replays at most two comparisons to keep that order
// current -- the same replay a depth-2 loser tree would perform, specialized
// for a fixed arity of three.
func merge3[T any](cmp Comparator[T], a, b, c *cursor[T], out []T, sz int) {
	src := [3]*cursor[T]{a, b, c}
	order := [3]int{0, 1, 2}

	if cmp.Less(src[order[1]].value(), src[order[0]].value()) {
		order[0], order[1] = order[1], order[0]
	}
	if cmp.Less(src[order[2]].value(), src[order[1]].value()) {
		order[1], order[2] = order[2], order[1]
		if cmp.Less(src[order[1]].value(), src[order[0]].value()) {
			order[0], order[1] = order[1], order[0]
		}
	}

	for i := 0; i < sz; i++ {
		out[i] = src[order[0]].value()
		src[order[0]].advance()

		if cmp.Less(src[order[1]].value(), src[order[0]].value()) {
			order[0], order[1] = order[1], order[0]
			if cmp.Less(src[order[2]].value(), src[order[1]].value()) {
				order[1], order[2] = order[2], order[1]
			}
		}
	}
}

// merge4 copies exactly sz elements from the merge of a, b, c and d into
// out. The four sources are organized as two pairs; each pair keeps its own
// winner/loser, and the overall winner is the smaller of the two pair
// winners -- a tournament of depth two, so advancing and re-establishing
// order costs exactly two comparisons per output element.
func merge4[T any](cmp Comparator[T], a, b, c, d *cursor[T], out []T, sz int) {
	leftWinner, leftLoser := a, b
	if cmp.Less(b.value(), a.value()) {
		leftWinner, leftLoser = b, a
	}
	rightWinner, rightLoser := c, d
	if cmp.Less(d.value(), c.value()) {
		rightWinner, rightLoser = d, c
	}

	for i := 0; i < sz; i++ {
		fromLeft := !cmp.Less(rightWinner.value(), leftWinner.value())

		var winner *cursor[T]
		if fromLeft {
			winner = leftWinner
		} else {
			winner = rightWinner
		}
		out[i] = winner.value()
		winner.advance()

		if fromLeft {
			if cmp.Less(leftLoser.value(), leftWinner.value()) {
				leftWinner, leftLoser = leftLoser, leftWinner
			}
		} else {
			if cmp.Less(rightLoser.value(), rightWinner.value()) {
				rightWinner, rightLoser = rightLoser, rightWinner
			}
		}
	}
}
