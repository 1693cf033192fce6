package chash

import "time"

// Trace contains options for tracing Ring events.
// Any hook may be nil.
type Trace struct {
	// OnTargets is called after each successful change of the targets table.
	OnTargets func(TargetsInfo)

	// OnFreeze is called when continuum is going to be rebuilt. It is not
	// called when Freeze() finds continuum already built.
	OnFreeze func(FreezeStartInfo) func(FreezeDoneInfo)

	OnLookup    func(LookupStartInfo) func(LookupDoneInfo)
	OnMarshal   func() func(MarshalDoneInfo)
	OnUnmarshal func(UnmarshalStartInfo) func(UnmarshalDoneInfo)
}

type TargetsInfo struct {
	Op     string // One of "add", "update", "remove" or "clear".
	Name   string
	Weight int
	Count  int // Number of targets after the change.
}

type FreezeStartInfo struct {
	Targets int
}

type FreezeDoneInfo struct {
	VirtualNodes int
	Latency      time.Duration
	Error        error
}

type LookupStartInfo struct {
	Key     string
	Count   int
	Balance bool
}

type LookupDoneInfo struct {
	Targets []string
	Error   error
}

type MarshalDoneInfo struct {
	Size  int
	Error error
}

type UnmarshalStartInfo struct {
	Size int
}

type UnmarshalDoneInfo struct {
	Targets      int
	VirtualNodes int
	Error        error
}

// Compose returns a new Trace which has functional fields composed both from
// t and x.
func (t Trace) Compose(x Trace) (ret Trace) {
	switch {
	case t.OnTargets == nil:
		ret.OnTargets = x.OnTargets
	case x.OnTargets == nil:
		ret.OnTargets = t.OnTargets
	default:
		h1, h2 := t.OnTargets, x.OnTargets
		ret.OnTargets = func(info TargetsInfo) {
			h1(info)
			h2(info)
		}
	}
	ret.OnFreeze = composeStart(t.OnFreeze, x.OnFreeze)
	ret.OnLookup = composeStart(t.OnLookup, x.OnLookup)
	ret.OnUnmarshal = composeStart(t.OnUnmarshal, x.OnUnmarshal)
	switch {
	case t.OnMarshal == nil:
		ret.OnMarshal = x.OnMarshal
	case x.OnMarshal == nil:
		ret.OnMarshal = t.OnMarshal
	default:
		h1, h2 := t.OnMarshal, x.OnMarshal
		ret.OnMarshal = func() func(MarshalDoneInfo) {
			return joinDone(h1(), h2())
		}
	}
	return ret
}

func composeStart[S, D any](h1, h2 func(S) func(D)) func(S) func(D) {
	switch {
	case h1 == nil:
		return h2
	case h2 == nil:
		return h1
	}
	return func(s S) func(D) {
		return joinDone(h1(s), h2(s))
	}
}

func joinDone[D any](d1, d2 func(D)) func(D) {
	switch {
	case d1 == nil:
		return d2
	case d2 == nil:
		return d1
	}
	return func(d D) {
		d1(d)
		d2(d)
	}
}

func (t Trace) onTargets(info TargetsInfo) {
	if fn := t.OnTargets; fn != nil {
		fn(info)
	}
}

func (t Trace) onFreeze(info FreezeStartInfo) func(FreezeDoneInfo) {
	return start(t.OnFreeze, info)
}

func (t Trace) onLookup(info LookupStartInfo) func(LookupDoneInfo) {
	return start(t.OnLookup, info)
}

func (t Trace) onUnmarshal(info UnmarshalStartInfo) func(UnmarshalDoneInfo) {
	return start(t.OnUnmarshal, info)
}

func (t Trace) onMarshal() func(MarshalDoneInfo) {
	var done func(MarshalDoneInfo)
	if fn := t.OnMarshal; fn != nil {
		done = fn()
	}
	if done == nil {
		return func(MarshalDoneInfo) {}
	}
	return done
}

func start[S, D any](fn func(S) func(D), info S) func(D) {
	var done func(D)
	if fn != nil {
		done = fn(info)
	}
	if done == nil {
		return func(D) {}
	}
	return done
}
