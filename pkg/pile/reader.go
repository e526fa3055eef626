package pile

// BlobMetadata describes a blob without its payload bytes.
type BlobMetadata struct {
	Timestamp int64 // milliseconds since the Unix epoch, advisory only
	Length    int64 // payload length, padding excluded
}

// PileReader is a read-only snapshot produced by [Pile.Reader]. It owns a
// reference-counted view of the mapped bytes plus frozen copies of
// blob_index and branch_index, and a shared handle to validated_set. None
// of its methods ever block or touch the advisory lock.
type PileReader struct {
	mapping  *mapping
	length   int64
	blobs    map[Hash]blobEntry
	branches map[BranchID]Hash

	validated *validatedSet
}

func newPileReader(m *mapping, length int64, blobs map[Hash]blobEntry, branches map[BranchID]Hash, validated *validatedSet) *PileReader {
	return &PileReader{
		mapping:   m,
		length:    length,
		blobs:     blobs,
		branches:  branches,
		validated: validated,
	}
}

// Get looks up handle in the snapshot's blob index. If absent, it returns
// (nil, false). If present, it resolves the payload's byte range within the
// mapped bytes. Unless handle has already been validated, the payload is
// re-hashed and compared to handle; on mismatch, (nil, false) is returned
// and handle is NOT marked validated, so a future call retries the check
// (this cannot recover the blob — records are assumed immutable — but it
// avoids caching a negative result.
func (r *PileReader) Get(handle Hash) ([]byte, bool) {
	entry, ok := r.blobs[handle]
	if !ok {
		return nil, false
	}

	payload := r.payloadBytes(entry)

	if r.validated.has(handle) {
		return payload, true
	}

	if hashPayload(payload) != handle {
		return nil, false
	}
	r.validated.mark(handle)
	return payload, true
}

// Metadata applies the same validation discipline as Get but returns only
// the blob's declared timestamp and length, never its payload bytes.
func (r *PileReader) Metadata(handle Hash) (BlobMetadata, bool) {
	entry, ok := r.blobs[handle]
	if !ok {
		return BlobMetadata{}, false
	}

	payload := r.payloadBytes(entry)
	if !r.validated.has(handle) {
		if hashPayload(payload) != handle {
			return BlobMetadata{}, false
		}
		r.validated.mark(handle)
	}

	return BlobMetadata{Timestamp: entry.timestamp, Length: entry.length}, true
}

// Iter calls yield once for every blob in the snapshot, in index iteration
// order, skipping any blob that fails lazy content validation. It stops
// early if yield returns false.
func (r *PileReader) Iter(yield func(Hash, BlobMetadata) bool) {
	for h := range r.blobs {
		md, ok := r.Metadata(h)
		if !ok {
			continue
		}
		if !yield(h, md) {
			return
		}
	}
}

// Branches returns the branch identifiers visible in this snapshot.
func (r *PileReader) Branches() []BranchID {
	ids := make([]BranchID, 0, len(r.branches))
	for id := range r.branches {
		ids = append(ids, id)
	}
	return ids
}

// BranchHead returns the snapshot's recorded head for id, if any.
func (r *PileReader) BranchHead(id BranchID) (Hash, bool) {
	h, ok := r.branches[id]
	return h, ok
}

func (r *PileReader) payloadBytes(entry blobEntry) []byte {
	return r.mapping.data[entry.offset : entry.offset+entry.length]
}

// Release drops the reader's reference to the mapped bytes. It is safe to
// call Release more than once or not at all: an unreleased reader's
// mapping generation is reclaimed when the process exits, not before, so
// byte slices already handed out of it remain valid. Call Release
// promptly once a reader is done to let superseded mapping generations be
// unmapped.
func (r *PileReader) Release() {
	if r.mapping == nil {
		return
	}
	r.mapping.release()
	r.mapping = nil
}
