package block

import "testing"

func TestMonotonicIsStrictlyIncreasing(t *testing.T) {
	var m Monotonic
	prev := ID(0)
	for i := uint64(0); i < 1000; i++ {
		id := m.Next(i)
		if id <= prev {
			t.Fatalf("Monotonic.Next(%d) = %d, want > %d", i, id, prev)
		}
		prev = id
	}
}

func TestRoundRobinSpreadsAcrossBuckets(t *testing.T) {
	r := RoundRobin{Buckets: 4}
	seen := map[ID]struct{}{}
	for i := uint64(0); i < 4000; i++ {
		id := r.Next(i)
		if _, dup := seen[id]; dup {
			t.Fatalf("RoundRobin.Next(%d) produced duplicate id %d", i, id)
		}
		seen[id] = struct{}{}

		bucket := i % 4
		lo := ID(bucket * roundRobinStride)
		hi := ID((bucket + 1) * roundRobinStride)
		if id <= lo || id >= hi {
			t.Fatalf("id %d for counter %d not in bucket %d range (%d, %d)", id, i, bucket, lo, hi)
		}
	}
}

func TestRoundRobinZeroBucketsFallsBackToOne(t *testing.T) {
	r := RoundRobin{}
	a := r.Next(0)
	b := r.Next(1)
	if a == b {
		t.Fatalf("RoundRobin with zero Buckets produced duplicate ids %d", a)
	}
}
