// Package hashers contains named hash functions usable by chash.Ring.
package hashers

import (
	"fmt"
	"sort"

	"github.com/cespare/xxhash/v2"
	"github.com/spaolacci/murmur3"

	"github.com/gobwas/chash"
)

// Default is the name of the hasher rings use when none is given.
const Default = "murmur2"

var registry = map[string]chash.Hasher{
	"murmur2":     chash.Sum32Terminated,
	"murmur2-len": chash.Sum32,
	"xxhash":      XXHash,
	"murmur3":     murmur3.Sum32,
}

// XXHash returns lower 32 bits of xxhash64 digest of p.
func XXHash(p []byte) uint32 {
	return uint32(xxhash.Sum64(p))
}

// Lookup returns hasher registered under the given name. Empty name means
// Default.
func Lookup(name string) (chash.Hasher, error) {
	if name == "" {
		name = Default
	}
	h, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("hashers: unknown hasher %q (known: %v)", name, Names())
	}
	return h, nil
}

// Names returns sorted names of all registered hashers.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
