package chash

import (
	"os"
)

// SaveFile writes binary representation of the ring to the named file,
// creating or truncating it. It returns the number of bytes written.
func (r *Ring) SaveFile(path string) (int, error) {
	const op = "save file"
	if path == "" {
		return 0, opErrorf(op, ErrInvalidParameter, "empty path")
	}
	p, err := r.MarshalBinary()
	if err != nil {
		return 0, err
	}
	if err := os.WriteFile(path, p, 0o644); err != nil {
		return 0, opWrap(op, ErrIO, err)
	}
	return len(p), nil
}

// LoadFile replaces state of the ring with one read from the named file.
// It has the same semantics as UnmarshalBinary(). Where supported, the file
// is memory mapped instead of being read.
func (r *Ring) LoadFile(path string) error {
	const op = "load file"
	if path == "" {
		return opErrorf(op, ErrInvalidParameter, "empty path")
	}
	f, err := os.Open(path)
	if err != nil {
		return opWrap(op, ErrIO, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return opWrap(op, ErrIO, err)
	}
	p, release, err := mapFile(f, info.Size())
	if err != nil {
		return opWrap(op, ErrIO, err)
	}
	defer release()

	// UnmarshalBinary() copies everything it needs out of p.
	return r.UnmarshalBinary(p)
}
