package chash

import (
	"testing"
)

// setupDigest makes r use predefined digest values for some inputs. Other
// inputs are hashed as usual.
func setupDigest(t testing.TB, r *Ring, values map[string]uint32) {
	r.hash = func(p []byte) uint32 {
		if v, has := values[string(p)]; has {
			t.Logf("using digest value for %q: %d", p, v)
			return v
		}
		return Sum32Terminated(p)
	}
}

// sequenceRand is a Rand returning predefined numbers one after another.
type sequenceRand struct {
	t  testing.TB
	xs []int
}

func (s *sequenceRand) IntN(n int) int {
	if len(s.xs) == 0 {
		s.t.Fatalf("sequenceRand: no more numbers")
	}
	x := s.xs[0]
	s.xs = s.xs[1:]
	if x >= n {
		s.t.Fatalf("sequenceRand: %d is out of range [0, %d)", x, n)
	}
	return x
}

func makeRing(t testing.TB, targets []Target, opts ...Option) *Ring {
	r := New(opts...)
	if err := r.AddTargets(targets...); err != nil {
		t.Fatal(err)
	}
	return r
}

func ipTargets(n int) []Target {
	ts := make([]Target, n)
	for i := range ts {
		ts[i] = Target{
			Name:   "192.168.0." + itoa(i+1),
			Weight: 1,
		}
	}
	return ts
}

func itoa(n int) string {
	return string(appendLabel(nil, SchemeWeighted, "", n))
}

func mustLookup(t testing.TB, r *Ring, key string, n int) []string {
	ret, err := r.Lookup(key, n)
	if err != nil {
		t.Fatalf("Lookup(%q, %d) error: %v", key, n, err)
	}
	return ret
}
