package chash

import (
	"bytes"
	"encoding/binary"
	"io"
	"math"
)

// Binary layout of a ring, all integers are little-endian:
//
//	[u32 size][u32 magic][u16 targets]
//	  targets * [u8 weight][name bytes][0x00]
//	[u32 points]
//	  points * [u32 hash][u16 target index]
const (
	magic      = 0x48414843
	headerSize = 4 + 4 + 2
	minSize    = headerSize + 4
	vnodeSize  = 4 + 2
)

var byteOrder = binary.LittleEndian

// MarshalBinary freezes the ring and returns its binary representation.
func (r *Ring) MarshalBinary() (p []byte, err error) {
	const op = "marshal"
	if err := r.check(op); err != nil {
		return nil, err
	}
	done := r.trace.onMarshal()
	defer func() {
		done(MarshalDoneInfo{
			Size:  len(p),
			Error: err,
		})
	}()
	if _, err := r.freeze(op); err != nil {
		return nil, err
	}
	size := r.encodedSize()
	if uint64(size) > math.MaxUint32 {
		return nil, opErrorf(op, ErrOutOfMemory,
			"encoded size %d does not fit 32 bits", size,
		)
	}
	return r.appendBinary(make([]byte, 0, size), size), nil
}

// WriteTo writes binary representation of the ring to w.
func (r *Ring) WriteTo(w io.Writer) (int64, error) {
	p, err := r.MarshalBinary()
	if err != nil {
		return 0, err
	}
	n, err := w.Write(p)
	if err != nil {
		return int64(n), opWrap("write", ErrIO, err)
	}
	return int64(n), nil
}

func (r *Ring) encodedSize() int {
	size := minSize
	for _, t := range r.targets {
		size += 1 + len(t.name) + 1
	}
	return size + len(r.continuum)*vnodeSize
}

func (r *Ring) appendBinary(p []byte, size int) []byte {
	p = byteOrder.AppendUint32(p, uint32(size))
	p = byteOrder.AppendUint32(p, magic)
	p = byteOrder.AppendUint16(p, uint16(len(r.targets)))
	for _, t := range r.targets {
		p = append(p, t.weight)
		p = append(p, t.name...)
		p = append(p, 0)
	}
	p = byteOrder.AppendUint32(p, uint32(len(r.continuum)))
	for _, v := range r.continuum {
		p = byteOrder.AppendUint32(p, v.hash)
		p = byteOrder.AppendUint16(p, v.target)
	}
	return p
}

// UnmarshalBinary replaces state of the ring with one decoded from p.
// The decoded continuum is used as is, without recalculation. The ring
// becomes initialized and frozen. If p is malformed, the ring is left
// untouched.
func (r *Ring) UnmarshalBinary(p []byte) (err error) {
	done := r.trace.onUnmarshal(UnmarshalStartInfo{
		Size: len(p),
	})
	var d decoder
	defer func() {
		done(UnmarshalDoneInfo{
			Targets:      len(d.targets),
			VirtualNodes: len(d.continuum),
			Error:        err,
		})
	}()
	if err := d.decode(p); err != nil {
		d = decoder{}
		return err
	}

	r.reset()
	r.initialized = true
	r.targets = d.targets
	r.index = d.index
	r.continuum = d.continuum
	r.state = stateBuilt
	r.decoded = true
	if debug {
		assertContinuum(r)
	}

	return nil
}

type decoder struct {
	targets   []target
	index     map[string]int
	continuum []vnode
}

func (d *decoder) decode(p []byte) error {
	const op = "unmarshal"
	if len(p) < minSize {
		return opErrorf(op, ErrInvalidParameter,
			"buffer is too short: %d bytes", len(p),
		)
	}
	if size := byteOrder.Uint32(p); uint64(size) != uint64(len(p)) {
		return opErrorf(op, ErrInvalidParameter,
			"size mismatch: header has %d; buffer has %d", size, len(p),
		)
	}
	if m := byteOrder.Uint32(p[4:]); m != magic {
		return opErrorf(op, ErrInvalidParameter,
			"unexpected magic: %#08x", m,
		)
	}
	n := int(byteOrder.Uint16(p[8:]))
	if n == 0 {
		return opErrorf(op, ErrNotFound, "no targets")
	}

	pos := headerSize
	d.targets = make([]target, 0, n)
	d.index = make(map[string]int, n)
	for i := 0; i < n; i++ {
		if pos >= len(p) {
			return opErrorf(op, ErrInvalidParameter,
				"truncated target #%d", i,
			)
		}
		w := p[pos]
		if w < MinWeight || w > MaxWeight {
			return opErrorf(op, ErrInvalidParameter,
				"target #%d has invalid weight %d", i, w,
			)
		}
		pos++
		end := bytes.IndexByte(p[pos:], 0)
		if end == -1 {
			return opErrorf(op, ErrInvalidParameter,
				"unterminated name of target #%d", i,
			)
		}
		if end == 0 {
			return opErrorf(op, ErrInvalidParameter,
				"empty name of target #%d", i,
			)
		}
		name := string(p[pos : pos+end])
		pos += end + 1
		if _, has := d.index[name]; has {
			return opErrorf(op, ErrInvalidParameter,
				"duplicate target %q", name,
			)
		}
		d.index[name] = i
		d.targets = append(d.targets, target{
			name:   name,
			weight: w,
		})
	}

	if len(p)-pos < 4 {
		return opErrorf(op, ErrInvalidParameter, "truncated points count")
	}
	m := byteOrder.Uint32(p[pos:])
	pos += 4
	if rest := uint64(len(p) - pos); rest != uint64(m)*vnodeSize {
		return opErrorf(op, ErrInvalidParameter,
			"%d points do not match %d remaining bytes", m, rest,
		)
	}
	d.continuum = make([]vnode, m)
	owned := make([]bool, n)
	for i := range d.continuum {
		v := vnode{
			hash:   byteOrder.Uint32(p[pos:]),
			target: byteOrder.Uint16(p[pos+4:]),
		}
		pos += vnodeSize
		if int(v.target) >= n {
			return opErrorf(op, ErrInvalidParameter,
				"point #%d refers to target %d of %d", i, v.target, n,
			)
		}
		owned[v.target] = true
		d.continuum[i] = v
	}
	for i, ok := range owned {
		if !ok {
			return opErrorf(op, ErrInvalidParameter,
				"target %q has no points", d.targets[i].name,
			)
		}
	}
	return nil
}
