package util

import (
	"github.com/OneOfOne/xxhash"
)

// HashCode hashes an arbitrary key, used to bucket garbage-collection
// entries by (block id, offset) without pulling in a full map per bucket.
func HashCode(key []byte) uint64 {
	h := xxhash.New64()
	h.Write(key)
	return h.Sum64()
}
