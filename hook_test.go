package chash

import (
	"errors"
	"reflect"
	"testing"
)

func TestTraceCompose(t *testing.T) {
	var calls []string
	record := func(prefix string) Trace {
		return Trace{
			OnTargets: func(info TargetsInfo) {
				calls = append(calls, prefix+":targets:"+info.Op)
			},
			OnFreeze: func(FreezeStartInfo) func(FreezeDoneInfo) {
				calls = append(calls, prefix+":freeze")
				return func(FreezeDoneInfo) {
					calls = append(calls, prefix+":frozen")
				}
			},
			OnMarshal: func() func(MarshalDoneInfo) {
				calls = append(calls, prefix+":marshal")
				return nil
			},
		}
	}
	r := New(
		WithTrace(record("a")),
		WithTrace(Trace{}),
		WithTrace(record("b")),
	)
	if err := r.AddTarget("x", 1); err != nil {
		t.Fatal(err)
	}
	if _, err := r.MarshalBinary(); err != nil {
		t.Fatal(err)
	}
	exp := []string{
		"a:targets:add",
		"b:targets:add",
		"a:marshal",
		"b:marshal",
		"a:freeze",
		"b:freeze",
		"a:frozen",
		"b:frozen",
	}
	if !reflect.DeepEqual(calls, exp) {
		t.Fatalf("unexpected calls:\n\tact: %v\n\texp: %v", calls, exp)
	}
}

func TestTraceEvents(t *testing.T) {
	var (
		targets  []TargetsInfo
		freezes  []FreezeDoneInfo
		lookups  []LookupStartInfo
		results  []LookupDoneInfo
		decoded  []UnmarshalDoneInfo
		marshals []MarshalDoneInfo
	)
	trace := Trace{
		OnTargets: func(info TargetsInfo) {
			targets = append(targets, info)
		},
		OnFreeze: func(FreezeStartInfo) func(FreezeDoneInfo) {
			return func(info FreezeDoneInfo) {
				info.Latency = 0
				freezes = append(freezes, info)
			}
		},
		OnLookup: func(info LookupStartInfo) func(LookupDoneInfo) {
			lookups = append(lookups, info)
			return func(info LookupDoneInfo) {
				results = append(results, info)
			}
		},
		OnMarshal: func() func(MarshalDoneInfo) {
			return func(info MarshalDoneInfo) {
				marshals = append(marshals, info)
			}
		},
		OnUnmarshal: func(UnmarshalStartInfo) func(UnmarshalDoneInfo) {
			return func(info UnmarshalDoneInfo) {
				decoded = append(decoded, info)
			}
		},
	}
	r := New(WithTrace(trace))
	r.AddTarget("a", 1)
	r.AddTarget("b", 1)
	r.AddTarget("c", 1)
	r.AddTarget("a", 2)
	r.RemoveTarget("a")
	r.RemoveTarget("a")
	r.Lookup("foo", 1)
	r.Lookup("bar", 1)
	r.LookupBalance("foo", 2)
	p, _ := r.MarshalBinary()
	r.UnmarshalBinary(p)
	r.UnmarshalBinary(p[:10])
	r.ClearTargets()
	r.Freeze()

	expTargets := []TargetsInfo{
		{Op: "add", Name: "a", Weight: 1, Count: 1},
		{Op: "add", Name: "b", Weight: 1, Count: 2},
		{Op: "add", Name: "c", Weight: 1, Count: 3},
		{Op: "update", Name: "a", Weight: 2, Count: 3},
		{Op: "remove", Name: "a", Weight: 2, Count: 2},
		{Op: "clear"},
	}
	if !reflect.DeepEqual(targets, expTargets) {
		t.Errorf("unexpected targets events:\n\tact: %+v\n\texp: %+v", targets, expTargets)
	}
	if n := len(freezes); n != 2 {
		t.Fatalf("unexpected number of freeze events: %d", n)
	}
	if f := freezes[0]; f.VirtualNodes != 2*Replicas || f.Error != nil {
		t.Errorf("unexpected freeze event: %+v", f)
	}
	if f := freezes[1]; !errors.Is(f.Error, ErrNotFound) {
		t.Errorf("unexpected freeze event: %+v", f)
	}
	expLookups := []LookupStartInfo{
		{Key: "foo", Count: 1},
		{Key: "bar", Count: 1},
		{Key: "foo", Count: 2, Balance: true},
	}
	if !reflect.DeepEqual(lookups, expLookups) {
		t.Errorf("unexpected lookup events:\n\tact: %+v\n\texp: %+v", lookups, expLookups)
	}
	for i, res := range results {
		if res.Error != nil || len(res.Targets) != lookups[i].Count {
			t.Errorf("unexpected lookup result #%d: %+v", i, res)
		}
	}
	if len(marshals) != 1 || marshals[0].Size != len(p) {
		t.Errorf("unexpected marshal events: %+v", marshals)
	}
	if len(decoded) != 2 {
		t.Fatalf("unexpected number of unmarshal events: %d", len(decoded))
	}
	if d := decoded[0]; d.Error != nil || d.Targets != 2 || d.VirtualNodes != 2*Replicas {
		t.Errorf("unexpected unmarshal event: %+v", d)
	}
	if d := decoded[1]; !errors.Is(d.Error, ErrInvalidParameter) || d.Targets != 0 {
		t.Errorf("unexpected unmarshal event: %+v", d)
	}
}
