//go:build chash_debug

package chash

import "fmt"

const debug = true

// assertContinuum panics if continuum of r does not match its targets table.
func assertContinuum(r *Ring) {
	var want int
	for _, t := range r.targets {
		want += int(t.weight) * r.scheme.replicas()
	}
	if r.state == stateBuilt && len(r.continuum) != want && !r.decoded {
		panic(fmt.Sprintf(
			"chash: internal error: continuum has %d points; want %d",
			len(r.continuum), want,
		))
	}
	for i, v := range r.continuum {
		if int(v.target) >= len(r.targets) {
			panic(fmt.Sprintf(
				"chash: internal error: point #%d refers to target %d of %d",
				i, v.target, len(r.targets),
			))
		}
		if i > 0 && r.continuum[i-1].hash > v.hash {
			panic(fmt.Sprintf(
				"chash: internal error: continuum is not sorted at #%d", i,
			))
		}
	}
}
