package domain

import "github.com/cespare/xxhash/v2"

// ContentHash computes the 64-bit content fingerprint used for
// deduplication (I1). Two writes with byte-identical content always
// hash equal; this is the only property add_memory's dedup path
// depends on.
func ContentHash(content string) uint64 {
	return xxhash.Sum64String(content)
}
