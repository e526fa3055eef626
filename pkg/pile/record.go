package pile

import "encoding/binary"

// recordAlign is the alignment, in bytes, every record begins and ends on.
const recordAlign = 64

// headerSize is the fixed size, in bytes, of both record headers.
const headerSize = 64

// Byte offsets within a record header. Named rather than inlined so the
// on-disk layout reads directly off the constant list.
const (
	offMagic = 0 // 16 bytes, both kinds

	// Blob record, bytes [16:64).
	offBlobTimestamp = 16 // 8 bytes, little-endian
	offBlobLength    = 24 // 8 bytes, little-endian
	offBlobHash      = 32 // 32 bytes

	// Branch record, bytes [16:64).
	offBranchID   = 16 // 16 bytes
	offBranchHead = 32 // 32 bytes
)

// magicA and magicB discriminate blob records from branch records. Chosen so
// neither is a prefix of the other and neither is a plausible accidental
// collision with arbitrary payload bytes; they are only ever read at record
// boundaries (offsets that are themselves a consequence of prior valid
// records), never scanned for within payload data.
var (
	magicA = [16]byte{'t', 'r', 'b', 'l', 'p', 'i', 'l', 'e', 'b', 'l', 'o', 'b', '0', '0', '0', '1'}
	magicB = [16]byte{'t', 'r', 'b', 'l', 'p', 'i', 'l', 'e', 'b', 'r', 'n', 'c', 'h', '0', '0', '1'}
)

// align64 rounds n up to the next multiple of recordAlign.
func align64(n int64) int64 {
	rem := n % recordAlign
	if rem == 0 {
		return n
	}
	return n + (recordAlign - rem)
}

// recordKind distinguishes the two record kinds recognized by parse.
type recordKind int

const (
	kindBlob recordKind = iota
	kindBranch
)

// blobRef describes a blob record found by parse: everything a caller needs
// to locate the payload and advance past it, without copying any bytes.
type blobRef struct {
	hash       Hash
	timestamp  int64
	length     int64
	payloadOff int64
	nextOff    int64
}

// branchRef describes a branch record found by parse.
type branchRef struct {
	id      BranchID
	head    Hash
	nextOff int64
}

// encodeBlob serializes a blob record: a 64-byte header followed by payload
// and zero padding out to the next 64-byte boundary. It returns the full
// record bytes (header+payload+padding) ready for a single appending write,
// and the hash the caller can use as the blob's handle.
func encodeBlob(payload []byte, timestampMillis int64) ([]byte, Hash) {
	hash := hashPayload(payload)

	length := int64(len(payload))
	padded := align64(headerSize + length)
	buf := make([]byte, padded)

	copy(buf[offMagic:], magicA[:])
	binary.LittleEndian.PutUint64(buf[offBlobTimestamp:], uint64(timestampMillis))
	binary.LittleEndian.PutUint64(buf[offBlobLength:], uint64(length))
	copy(buf[offBlobHash:offBlobHash+HashSize], hash[:])
	copy(buf[headerSize:], payload)
	// buf[headerSize+length:] is already zero (make zero-initializes).

	return buf, hash
}

// encodeBranch serializes a 64-byte branch record.
func encodeBranch(id BranchID, head Hash) []byte {
	buf := make([]byte, headerSize)
	copy(buf[offMagic:], magicB[:])
	copy(buf[offBranchID:offBranchID+16], id[:])
	copy(buf[offBranchHead:offBranchHead+HashSize], head[:])
	return buf
}

// parse inspects the record header at bytes[offset:] and classifies it.
//
// Returns (kindBlob, &blobRef, nil), (kindBranch, &branchRef, nil), or a nil
// pair with errTruncated (fewer bytes remain than a header, or the declared
// payload length doesn't fit within bytes) or errUnknownMarker (the 16-byte
// marker matches neither known kind, or a blob's declared length is
// negative as a signed 64-bit value).
//
// parse never reads or hashes payload bytes; structural validation only.
func parse(bytes []byte, offset int64) (recordKind, *blobRef, *branchRef, error) {
	remaining := int64(len(bytes)) - offset
	if remaining < headerSize {
		return 0, nil, nil, errTruncated
	}

	header := bytes[offset : offset+headerSize]

	switch {
	case matchesMagic(header, magicA):
		length := int64(binary.LittleEndian.Uint64(header[offBlobLength:]))
		if length < 0 {
			return 0, nil, nil, errUnknownMarker
		}
		payloadOff := offset + headerSize
		padded := align64(headerSize + length)
		nextOff := offset + padded
		if int64(len(bytes)) < nextOff {
			return 0, nil, nil, errTruncated
		}

		var hash Hash
		copy(hash[:], header[offBlobHash:offBlobHash+HashSize])

		ref := &blobRef{
			hash:       hash,
			timestamp:  int64(binary.LittleEndian.Uint64(header[offBlobTimestamp:])),
			length:     length,
			payloadOff: payloadOff,
			nextOff:    nextOff,
		}
		return kindBlob, ref, nil, nil

	case matchesMagic(header, magicB):
		var id BranchID
		copy(id[:], header[offBranchID:offBranchID+16])
		var head Hash
		copy(head[:], header[offBranchHead:offBranchHead+HashSize])

		ref := &branchRef{id: id, head: head, nextOff: offset + headerSize}
		return kindBranch, nil, ref, nil

	default:
		return 0, nil, nil, errUnknownMarker
	}
}

func matchesMagic(header []byte, magic [16]byte) bool {
	for i := 0; i < 16; i++ {
		if header[offMagic+i] != magic[i] {
			return false
		}
	}
	return true
}
