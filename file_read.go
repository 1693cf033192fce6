//go:build !unix

package chash

import (
	"fmt"
	"io"
	"os"
)

func mapFile(f *os.File, size int64) (_ []byte, release func(), err error) {
	if int64(int(size)) != size {
		return nil, nil, fmt.Errorf("file %s is too large to read: %d bytes", f.Name(), size)
	}
	p := make([]byte, size)
	if _, err := io.ReadFull(f, p); err != nil {
		return nil, nil, err
	}
	return p, func() {}, nil
}
