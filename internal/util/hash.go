// Package util contains internal helpers (key hashing, sharding).
//revive:disable:var-naming  // allow 'util' as an internal helpers package name
package util

import "strconv"

const (
	fnvOffset64 = 14695981039346656037
	fnvPrime64  = 1099511628211
)

// Fnv64a hashes s using 64-bit FNV-1a without allocating.
func Fnv64a(s string) uint64 {
	h := uint64(fnvOffset64)
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= fnvPrime64
	}
	return h
}

// Fnv64aHex returns Fnv64a(s) as a fixed-width, zero-padded hex string.
// Used to build stable cache keys from request descriptors.
func Fnv64aHex(s string) string {
	const width = 16
	hex := strconv.FormatUint(Fnv64a(s), 16)
	if len(hex) >= width {
		return hex
	}
	pad := make([]byte, width-len(hex))
	for i := range pad {
		pad[i] = '0'
	}
	return string(pad) + hex
}
