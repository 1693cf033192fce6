package chash

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"testing"
	"time"
)

func TestSharedConcurrency(t *testing.T) {
	for _, test := range []struct {
		numReader int
		numWriter int
	}{
		{
			numReader: 2,
			numWriter: 1,
		},
		{
			numReader: 1,
			numWriter: 2,
		},
	} {
		name := fmt.Sprintf("%dr-%dw", test.numReader, test.numWriter)
		t.Run(name, func(t *testing.T) {
			var (
				s          = NewShared(makeRing(t, ipTargets(3)))
				readerDone = make(chan error)
				writerDone = make(chan error)
			)
			for i := 0; i < test.numReader; i++ {
				go func() {
					for {
						key := strconv.Itoa(rand.IntN(1000000))
						if _, err := s.Lookup(key, 2); err != nil {
							readerDone <- err
							return
						}
						if _, err := s.LookupBalance(key, 2); err != nil {
							readerDone <- err
							return
						}
						select {
						case readerDone <- nil:
							return
						default:
						}
					}
				}()
			}
			for i := 0; i < test.numWriter; i++ {
				go func(base int) {
					const numTarget = 100
					for i := 0; i < numTarget; i++ {
						name := "w" + strconv.Itoa(base*numTarget+i)
						err := s.Update(func(r *Ring) error {
							return r.AddTarget(name, 1+i%MaxWeight)
						})
						if err != nil {
							writerDone <- fmt.Errorf("can't add target: %v", err)
							return
						}
						time.Sleep(time.Millisecond)
					}
					writerDone <- nil
				}(i)
			}
			for i := 0; i < test.numWriter; i++ {
				if err := <-writerDone; err != nil {
					t.Fatal(err)
				}
			}
			for i := 0; i < test.numReader; i++ {
				if err := <-readerDone; err != nil {
					t.Fatal(err)
				}
			}
			var n int
			s.Update(func(r *Ring) (err error) {
				n, err = r.TargetCount()
				return err
			})
			if exp := 3 + 100*test.numWriter; n != exp {
				t.Fatalf("unexpected number of targets: %d; want %d", n, exp)
			}
			if _, err := s.MarshalBinary(); err != nil {
				t.Fatal(err)
			}
		})
	}
}

func TestSharedUpdateError(t *testing.T) {
	s := NewShared(New())
	err := s.Update(func(r *Ring) error {
		return r.RemoveTarget("foo")
	})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Update() error is %v; want ErrNotFound", err)
	}
}
