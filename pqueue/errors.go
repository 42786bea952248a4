package pqueue

import "github.com/pkg/errors"

// Sentinel errors returned by the public API. Unlike the original, which
// treats most of these as undefined behaviour or a compile-time failure,
// the Go port favors explicit error returns -- see SPEC_FULL.md section 7
// for the reasoning.
var (
	// ErrParameterInfeasible is returned by DeriveConfig when no (B, m)
	// pair satisfies the feasibility search for the requested element
	// size, memory budget and maximum queue length.
	ErrParameterInfeasible = errors.New("extpq: no feasible configuration for the given memory budget; increase the memory budget")

	// ErrCapacityExceeded is returned when a promotion would need to push
	// a segment past the outermost external level. Configurations must
	// be sized so this cannot happen for the declared maximum queue
	// length; hitting it is a programming error, not a transient one.
	ErrCapacityExceeded = errors.New("extpq: capacity exceeded: no level beyond the outermost external level")

	// ErrEmptyQueue is returned by Pop when called on an empty queue. Top
	// has no error return; callers must guard it with Empty().
	ErrEmptyQueue = errors.New("extpq: operation on empty queue")

	// ErrEmptySegment is returned by the external merger's insertSegment
	// when Config.StrictEmptySegments is set and segmentSize is 0.
	ErrEmptySegment = errors.New("extpq: cannot insert an empty segment")

	// ErrActiveLevelsExceeded guards the refill cascade's documented cap
	// of four simultaneously active levels (SPEC_FULL.md section 9).
	ErrActiveLevelsExceeded = errors.New("extpq: more than four active levels at refill time")
)
