package chash

import (
	"math/rand/v2"
	"os"
	"sync"
	"time"
)

// Rand is a source of uniformly distributed integers used by
// Ring.LookupBalance().
type Rand interface {
	// IntN returns a number in [0, n). It is never called with n <= 0.
	IntN(n int) int
}

var defaultRand lockedRand

// Seed re-seeds the process-wide random source used by rings constructed
// without WithRand() option. It is mostly useful for tests.
func Seed(seed uint64) {
	defaultRand.seed(seed)
}

// lockedRand is a lazily seeded random source which is safe for concurrent
// use.
type lockedRand struct {
	once sync.Once
	mu   sync.Mutex
	rnd  *rand.Rand
}

func (l *lockedRand) init() {
	l.once.Do(func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		if l.rnd == nil {
			s := uint64(time.Now().UnixNano()) + uint64(os.Getpid())
			l.rnd = rand.New(rand.NewPCG(s, s>>32))
		}
	})
}

func (l *lockedRand) seed(s uint64) {
	l.init()
	l.mu.Lock()
	l.rnd = rand.New(rand.NewPCG(s, s>>32))
	l.mu.Unlock()
}

func (l *lockedRand) IntN(n int) int {
	l.init()
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rnd.IntN(n)
}
