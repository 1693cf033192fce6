package chash

import (
	"encoding/binary"
	"strconv"
)

// Hasher is a function used to place labels and keys on the ring.
// It must return the same value for the same input across processes.
type Hasher func([]byte) uint32

const (
	mmSeed   = 0x4d4d4832
	mmMagic  = 0x5bd1e995
	mmRotate = 24
)

// Sum32 returns MurmurHash2 digest of p. The hash is seeded with the length
// of p.
func Sum32(p []byte) uint32 {
	return mmhash2(p, mmSeed^uint32(len(p)))
}

// Sum32Terminated returns MurmurHash2 digest of p treated as a NUL-terminated
// string: bytes after the first NUL are ignored and the seed is computed from
// the "unknown length" sentinel (-1) instead of the actual length.
//
// It is the default Hasher of a Ring. It is compatible with libchash, so ring
// files written by libchash bindings route keys the same way.
func Sum32Terminated(p []byte) uint32 {
	for i, c := range p {
		if c == 0 {
			p = p[:i]
			break
		}
	}
	return mmhash2(p, mmSeed^0xffffffff)
}

func mmhash2(p []byte, h uint32) uint32 {
	for len(p) >= 4 {
		k := binary.LittleEndian.Uint32(p)
		k *= mmMagic
		k ^= k >> mmRotate
		k *= mmMagic
		h *= mmMagic
		h ^= k
		p = p[4:]
	}
	switch len(p) {
	case 3:
		h ^= uint32(p[2]) << 16
		fallthrough
	case 2:
		h ^= uint32(p[1]) << 8
		fallthrough
	case 1:
		h ^= uint32(p[0])
		h *= mmMagic
	}
	h ^= h >> 13
	h *= mmMagic
	h ^= h >> 15
	return h
}

// appendLabel appends synthetic label of the virtual node to dst.
// For SchemeWeighted it is name, weight unit and replica index printed in
// decimal one after another; for SchemeLegacy it is name, underscore and
// 1-based point index padded to three digits.
func appendLabel(dst []byte, s Scheme, name string, xs ...int) []byte {
	dst = append(dst, name...)
	switch s {
	case SchemeLegacy:
		dst = append(dst, '_')
		n := xs[0] + 1
		for d := 100; d > 1 && n < d; d /= 10 {
			dst = append(dst, '0')
		}
		dst = strconv.AppendInt(dst, int64(n), 10)
	default:
		for _, x := range xs {
			dst = strconv.AppendInt(dst, int64(x), 10)
		}
	}
	return dst
}
