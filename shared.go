package chash

import "sync"

// Shared wraps a Ring to make it safe for concurrent use.
//
// All methods are serialized by a single mutex: a lookup on a Ring may
// rebuild its continuum and always touches ring's scratch buffers, so there
// are no read-only operations to run in parallel.
type Shared struct {
	mu   sync.Mutex
	ring *Ring
}

// NewShared returns Shared owning r. The caller must not use r directly
// after this call.
func NewShared(r *Ring) *Shared {
	return &Shared{ring: r}
}

// Lookup calls Lookup() of the underlying ring.
func (s *Shared) Lookup(key string, n int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ring.Lookup(key, n)
}

// LookupBalance calls LookupBalance() of the underlying ring.
func (s *Shared) LookupBalance(key string, n int) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ring.LookupBalance(key, n)
}

// MarshalBinary implements encoding.BinaryMarshaler. It freezes the
// underlying ring if needed.
func (s *Shared) MarshalBinary() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ring.MarshalBinary()
}

// Update calls fn with exclusive access to the underlying ring. The ring must
// not be retained by fn.
func (s *Shared) Update(fn func(*Ring) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.ring)
}
