//go:build unix

package chash

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

func mapFile(f *os.File, size int64) (_ []byte, release func(), err error) {
	if size == 0 {
		// Zero length mappings are rejected by mmap(2).
		return nil, func() {}, nil
	}
	if int64(int(size)) != size {
		return nil, nil, fmt.Errorf("file %s is too large to map: %d bytes", f.Name(), size)
	}
	p, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_PRIVATE)
	if err != nil {
		return nil, nil, &os.PathError{
			Op:   "mmap",
			Path: f.Name(),
			Err:  err,
		}
	}
	return p, func() {
		_ = unix.Munmap(p)
	}, nil
}
