package pile

import "lukechampine.com/blake3"

// HashSize is the width, in bytes, of a content hash.
const HashSize = 32

// Hash is a 256-bit content hash: the handle by which a blob is addressed.
// The zero Hash never names a real blob and is used as the "no head yet"
// sentinel passed to [Pile.Update] for a branch that has never been set.
type Hash [HashSize]byte

// hashPayload computes the content hash of payload under the pile's hash
// protocol. The algorithm is intentionally opaque to every other component:
// callers only ever compare Hash values, never inspect how they were
// produced.
func hashPayload(payload []byte) Hash {
	sum := blake3.Sum256(payload)
	return Hash(sum)
}

// BranchID is a 128-bit branch identifier.
type BranchID [16]byte
