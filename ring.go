package chash

import (
	"cmp"
	"slices"
	"strings"
	"time"
)

const (
	// Replicas is a number of points placed on the ring per weight unit of a
	// target when SchemeWeighted is used.
	Replicas = 128

	// LegacyReplicas is a number of points placed on the ring per weight unit
	// of a target when SchemeLegacy is used.
	LegacyReplicas = 64

	// MinWeight and MaxWeight bound the weight of a target. Weights out of
	// this range are saturated silently.
	MinWeight = 1
	MaxWeight = 10

	// MaxTargets is the maximum number of targets a ring can hold.
	MaxTargets = 1<<16 - 1
)

// Scheme describes how virtual nodes of a target are labeled.
// Rings built with different schemes are not compatible.
type Scheme uint8

const (
	// SchemeWeighted places Replicas points for each weight unit of a target,
	// labeling them with the target name followed by the weight unit and
	// replica numbers.
	SchemeWeighted Scheme = iota

	// SchemeLegacy places LegacyReplicas points for each weight unit of a
	// target, labeling them as "name_001", "name_002" and so on.
	SchemeLegacy
)

func (s Scheme) String() string {
	switch s {
	case SchemeWeighted:
		return "weighted"
	case SchemeLegacy:
		return "legacy"
	default:
		return "unknown"
	}
}

func (s Scheme) replicas() int {
	if s == SchemeLegacy {
		return LegacyReplicas
	}
	return Replicas
}

// Target describes a named destination and its weight.
type Target struct {
	Name   string
	Weight int
}

type target struct {
	name   string
	weight uint8
}

// vnode is a virtual node: a point on the ring owned by a target.
type vnode struct {
	hash   uint32
	target uint16
}

// compareNodes orders points by hash value. Points with equal hash values are
// ordered by target index.
func compareNodes(a, b vnode) int {
	if c := cmp.Compare(a.hash, b.hash); c != 0 {
		return c
	}
	return cmp.Compare(a.target, b.target)
}

type continuumState uint8

const (
	stateStale continuumState = iota
	stateBuilt
)

// Option configures a Ring.
type Option func(*Ring)

// WithHasher sets the hash function used for labels and keys.
// Default is Sum32Terminated.
func WithHasher(h Hasher) Option {
	return func(r *Ring) {
		r.hash = h
	}
}

// WithScheme sets virtual nodes labeling scheme. Default is SchemeWeighted.
func WithScheme(s Scheme) Option {
	return func(r *Ring) {
		r.scheme = s
	}
}

// WithRand sets the random source used by LookupBalance(). Default is the
// process-wide source which can be re-seeded by Seed().
func WithRand(rnd Rand) Option {
	return func(r *Ring) {
		r.rand = rnd
	}
}

// WithTrace appends t to the ring's trace hooks.
func WithTrace(t Trace) Option {
	return func(r *Ring) {
		r.trace = r.trace.Compose(t)
	}
}

// Ring is a weighted consistent hashing ring.
//
// Ring is not safe for concurrent use: even lookups reuse internal buffers
// and may rebuild the continuum. Use Shared when a ring must be accessed from
// multiple goroutines.
//
// The zero value for Ring is not initialized; use New() or Init() before
// calling other methods. UnmarshalBinary() and LoadFile() initialize the ring
// on their own.
type Ring struct {
	hash   Hasher
	scheme Scheme
	rand   Rand
	trace  Trace

	initialized bool

	// state tells whether continuum reflects current targets table.
	state continuumState

	// decoded is true when continuum was restored from its binary form.
	decoded bool

	// targets is ordered by insertion; removal keeps the order of the rest.
	targets []target

	// index maps target name to its position in targets.
	index map[string]int

	// continuum holds the points sorted by compareNodes().
	continuum []vnode

	// These are scratch buffers reused across calls.
	label  []byte
	ranks  []uint16 // Rank of the target during lookup; zero if not ranked.
	picked []uint16 // Targets ranked during lookup.
}

// New returns an empty initialized ring.
func New(opts ...Option) *Ring {
	r := new(Ring)
	for _, opt := range opts {
		opt(r)
	}
	r.reset()
	r.initialized = true
	return r
}

// Init initializes the ring, discarding any targets it has.
// It returns ErrAlreadyInitialized if the ring is initialized already and
// force is false.
func (r *Ring) Init(force bool) error {
	if r.initialized && !force {
		return opError("init", ErrAlreadyInitialized)
	}
	r.reset()
	r.initialized = true
	return nil
}

// Terminate releases memory held by the ring and makes it uninitialized.
// It returns ErrNotInitialized if the ring is not initialized and force is
// false.
func (r *Ring) Terminate(force bool) error {
	if !r.initialized && !force {
		return opError("terminate", ErrNotInitialized)
	}
	r.reset()
	r.initialized = false
	return nil
}

func (r *Ring) reset() {
	r.state = stateStale
	r.decoded = false
	r.targets = nil
	r.index = nil
	r.continuum = nil
	r.label = nil
	r.ranks = nil
	r.picked = nil
}

func (r *Ring) check(op string) error {
	if !r.initialized {
		return opError(op, ErrNotInitialized)
	}
	return nil
}

// AddTarget puts target with given name and weight on the ring. If target
// already exists, its weight is updated. Weight is clamped to [MinWeight,
// MaxWeight].
func (r *Ring) AddTarget(name string, weight int) error {
	const op = "add target"
	if err := r.check(op); err != nil {
		return err
	}
	if err := checkName(op, name); err != nil {
		return err
	}
	w := clampWeight(weight)
	info := TargetsInfo{
		Name:   name,
		Weight: int(w),
	}
	if i, has := r.index[name]; has {
		r.targets[i].weight = w
		info.Op = "update"
	} else {
		if len(r.targets) >= MaxTargets {
			return opErrorf(op, ErrOutOfMemory,
				"targets table is full (%d targets)", MaxTargets,
			)
		}
		if r.index == nil {
			r.index = make(map[string]int)
		}
		r.index[name] = len(r.targets)
		r.targets = append(r.targets, target{
			name:   name,
			weight: w,
		})
		info.Op = "add"
	}
	r.unfreeze()

	info.Count = len(r.targets)
	r.trace.onTargets(info)

	return nil
}

// AddTargets calls AddTarget() for each of ts in order. It stops at the
// first error.
func (r *Ring) AddTargets(ts ...Target) error {
	for _, t := range ts {
		if err := r.AddTarget(t.Name, t.Weight); err != nil {
			return err
		}
	}
	return nil
}

// RemoveTarget removes target with given name from the ring.
// It returns ErrNotFound if there is no such target.
func (r *Ring) RemoveTarget(name string) error {
	const op = "remove target"
	if err := r.check(op); err != nil {
		return err
	}
	if name == "" {
		return opErrorf(op, ErrInvalidParameter, "empty target name")
	}
	i, has := r.index[name]
	if !has {
		return opErrorf(op, ErrNotFound, "no target %q", name)
	}
	w := r.targets[i].weight
	r.targets = slices.Delete(r.targets, i, i+1)
	delete(r.index, name)
	for j := i; j < len(r.targets); j++ {
		r.index[r.targets[j].name] = j
	}
	r.unfreeze()

	r.trace.onTargets(TargetsInfo{
		Op:     "remove",
		Name:   name,
		Weight: int(w),
		Count:  len(r.targets),
	})

	return nil
}

// ClearTargets removes all targets from the ring.
func (r *Ring) ClearTargets() error {
	const op = "clear targets"
	if err := r.check(op); err != nil {
		return err
	}
	r.targets = nil
	r.index = nil
	r.unfreeze()

	r.trace.onTargets(TargetsInfo{
		Op: "clear",
	})

	return nil
}

// TargetCount returns number of targets on the ring.
func (r *Ring) TargetCount() (int, error) {
	if err := r.check("target count"); err != nil {
		return 0, err
	}
	return len(r.targets), nil
}

// Targets returns a copy of the targets table in its order.
func (r *Ring) Targets() ([]Target, error) {
	if err := r.check("targets"); err != nil {
		return nil, err
	}
	ts := make([]Target, len(r.targets))
	for i, t := range r.targets {
		ts[i] = Target{
			Name:   t.name,
			Weight: int(t.weight),
		}
	}
	return ts, nil
}

// Weight returns weight of the target with given name.
func (r *Ring) Weight(name string) (int, error) {
	const op = "weight"
	if err := r.check(op); err != nil {
		return 0, err
	}
	i, has := r.index[name]
	if !has {
		return 0, opErrorf(op, ErrNotFound, "no target %q", name)
	}
	return int(r.targets[i].weight), nil
}

// Frozen reports whether the continuum reflects the current targets table.
func (r *Ring) Frozen() bool {
	return r.initialized && r.state == stateBuilt
}

// VirtualNodes returns number of points on the ring if it is frozen and zero
// otherwise.
func (r *Ring) VirtualNodes() int {
	if !r.Frozen() {
		return 0
	}
	return len(r.continuum)
}

// Freeze builds the continuum if it is stale and returns the number of
// points on it. It returns ErrNotFound if there are no targets.
//
// Calling Freeze() is never required: lookups and serialization freeze the
// ring implicitly.
func (r *Ring) Freeze() (int, error) {
	const op = "freeze"
	if err := r.check(op); err != nil {
		return 0, err
	}
	return r.freeze(op)
}

// Unfreeze marks the continuum stale. It will be rebuilt on next use.
func (r *Ring) Unfreeze() error {
	if err := r.check("unfreeze"); err != nil {
		return err
	}
	r.unfreeze()
	return nil
}

func (r *Ring) unfreeze() {
	r.state = stateStale
}

func (r *Ring) freeze(op string) (n int, err error) {
	if r.state == stateBuilt {
		return len(r.continuum), nil
	}
	done := r.trace.onFreeze(FreezeStartInfo{
		Targets: len(r.targets),
	})
	begin := time.Now()
	defer func() {
		done(FreezeDoneInfo{
			VirtualNodes: n,
			Latency:      time.Since(begin),
			Error:        err,
		})
	}()
	if len(r.targets) == 0 {
		return 0, opErrorf(op, ErrNotFound, "no targets")
	}

	var (
		hash     = r.hasher()
		replicas = r.scheme.replicas()
		size     int
	)
	for _, t := range r.targets {
		size += int(t.weight) * replicas
	}
	// Stale continuum is never read, so its memory can be reused.
	c := r.continuum[:0]
	if cap(c) < size {
		c = make([]vnode, 0, size)
	}
	for i, t := range r.targets {
		switch r.scheme {
		case SchemeLegacy:
			for j := 0; j < int(t.weight)*replicas; j++ {
				r.label = appendLabel(r.label[:0], r.scheme, t.name, j)
				c = append(c, vnode{
					hash:   hash(r.label),
					target: uint16(i),
				})
			}
		default:
			for w := 0; w < int(t.weight); w++ {
				for j := 0; j < replicas; j++ {
					r.label = appendLabel(r.label[:0], r.scheme, t.name, w, j)
					c = append(c, vnode{
						hash:   hash(r.label),
						target: uint16(i),
					})
				}
			}
		}
	}
	slices.SortFunc(c, compareNodes)

	r.continuum = c
	r.state = stateBuilt
	r.decoded = false
	if debug {
		assertContinuum(r)
	}

	return len(c), nil
}

// Lookup returns names of at most n targets which the key is mapped to, in
// order of preference. The first name is the owner of the key; the others
// are the next distinct targets met clockwise on the ring.
//
// The key must be non-empty and must not contain NUL bytes.
// The n is clamped to [1, TargetCount()]. For the same key and targets
// the result of a smaller n is always a prefix of the result of a bigger n.
func (r *Ring) Lookup(key string, n int) ([]string, error) {
	done := r.trace.onLookup(LookupStartInfo{
		Key:   key,
		Count: n,
	})
	ret, err := r.lookup("lookup", key, n)
	done(LookupDoneInfo{
		Targets: ret,
		Error:   err,
	})
	return ret, err
}

// LookupBalance makes a Lookup() of n targets and picks one of them
// uniformly at random.
func (r *Ring) LookupBalance(key string, n int) (string, error) {
	done := r.trace.onLookup(LookupStartInfo{
		Key:     key,
		Count:   n,
		Balance: true,
	})
	ret, err := r.lookup("lookup balance", key, n)
	done(LookupDoneInfo{
		Targets: ret,
		Error:   err,
	})
	if err != nil {
		return "", err
	}
	return ret[r.random().IntN(len(ret))], nil
}

func (r *Ring) lookup(op, key string, n int) ([]string, error) {
	if err := r.check(op); err != nil {
		return nil, err
	}
	if key == "" {
		return nil, opErrorf(op, ErrInvalidParameter, "empty key")
	}
	if strings.IndexByte(key, 0) != -1 {
		return nil, opErrorf(op, ErrInvalidParameter, "key %q contains NUL byte", key)
	}
	if _, err := r.freeze(op); err != nil {
		return nil, err
	}
	n = min(max(n, 1), len(r.targets))

	h := r.hasher()([]byte(key))
	i, _ := slices.BinarySearchFunc(r.continuum, h, func(v vnode, h uint32) int {
		return cmp.Compare(v.hash, h)
	})
	if i == len(r.continuum) {
		i = 0
	}
	if len(r.ranks) != len(r.targets) {
		r.ranks = make([]uint16, len(r.targets))
	}
	ret := make([]string, 0, n)
	r.picked = r.picked[:0]
	for j := 0; j < len(r.continuum) && len(ret) < n; j++ {
		t := r.continuum[i].target
		if r.ranks[t] == 0 {
			ret = append(ret, r.targets[t].name)
			r.ranks[t] = uint16(len(ret))
			r.picked = append(r.picked, t)
		}
		if i++; i == len(r.continuum) {
			i = 0
		}
	}
	for _, t := range r.picked {
		r.ranks[t] = 0
	}
	return ret, nil
}

func (r *Ring) hasher() Hasher {
	if r.hash != nil {
		return r.hash
	}
	return Sum32Terminated
}

func (r *Ring) random() Rand {
	if r.rand != nil {
		return r.rand
	}
	return &defaultRand
}

func checkName(op, name string) error {
	if name == "" {
		return opErrorf(op, ErrInvalidParameter, "empty target name")
	}
	if strings.IndexByte(name, 0) != -1 {
		return opErrorf(op, ErrInvalidParameter,
			"target name %q contains NUL byte", name,
		)
	}
	return nil
}

func clampWeight(w int) uint8 {
	return uint8(min(max(w, MinWeight), MaxWeight))
}
