package pile

import "sync"

// blobEntry is the in-memory record of a structurally-validated blob: where
// it lives in the mapped bytes and its declared metadata. Content validation
// (re-hashing the payload) is performed lazily by readers, not here.
type blobEntry struct {
	offset    int64
	timestamp int64
	length    int64
}

// index holds the pile's reconstructed in-memory state: the blob index,
// branch index, and pending-hash set. It is owned by the pile
// controller and mutated only while the controller's mutex is held; readers
// receive frozen copies (see reader.go), never a live reference.
type index struct {
	mu sync.RWMutex

	blobs    map[Hash]blobEntry
	branches map[BranchID]Hash
	pending  map[Hash]struct{}
}

func newIndex() *index {
	return &index{
		blobs:    make(map[Hash]blobEntry),
		branches: make(map[BranchID]Hash),
		pending:  make(map[Hash]struct{}),
	}
}

// applyBlob implements first-wins deduplication: the first structurally
// valid occurrence of a hash wins; later duplicates are silently accepted
// and leave the existing entry untouched.
func (idx *index) applyBlob(h Hash, entry blobEntry) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if _, exists := idx.blobs[h]; !exists {
		idx.blobs[h] = entry
	}
	delete(idx.pending, h)
}

// applyBranch implements last-write-wins: branch records are unconditionally
// overwritten, regardless of whether the referenced blob exists locally.
func (idx *index) applyBranch(id BranchID, head Hash) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.branches[id] = head
}

func (idx *index) lookupBlob(h Hash) (blobEntry, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	e, ok := idx.blobs[h]
	return e, ok
}

func (idx *index) lookupBranch(id BranchID) (Hash, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	h, ok := idx.branches[id]
	return h, ok
}

func (idx *index) branchIDs() []BranchID {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	ids := make([]BranchID, 0, len(idx.branches))
	for id := range idx.branches {
		ids = append(ids, id)
	}
	return ids
}

// markPending records h as written-but-not-yet-reapplied by this process, so
// a concurrent or immediately-following append of the same content can be
// skipped by a subsequent put of the same content. It is an optimization,
// not a correctness requirement: content-addressing already makes
// duplicate appends harmless.
func (idx *index) markPending(h Hash) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.pending[h] = struct{}{}
}

func (idx *index) isKnown(h Hash) bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	if _, ok := idx.blobs[h]; ok {
		return true
	}
	_, ok := idx.pending[h]
	return ok
}

// snapshotBlobs returns a frozen copy of blob_index for a reader snapshot.
func (idx *index) snapshotBlobs() map[Hash]blobEntry {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	out := make(map[Hash]blobEntry, len(idx.blobs))
	for h, e := range idx.blobs {
		out[h] = e
	}
	return out
}

// snapshotBranches returns a frozen copy of branch_index for a reader snapshot.
func (idx *index) snapshotBranches() map[BranchID]Hash {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	out := make(map[BranchID]Hash, len(idx.branches))
	for id, h := range idx.branches {
		out[id] = h
	}
	return out
}

// resetPending clears pending_hashes. Called by Restore: a truncation may
// have discarded bytes this process thought it had written.
func (idx *index) resetPending() {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.pending = make(map[Hash]struct{})
}

// validatedSet tracks hashes whose payload bytes have been confirmed, by a
// reader, to actually hash to their recorded handle. It is shared by every
// snapshot derived from the same pile, not owned per-reader, since the
// pile assumes on-disk immutability: once validated, a hash never needs
// re-checking for the life of the process.
type validatedSet struct {
	mu  sync.RWMutex
	set map[Hash]struct{}
}

func newValidatedSet() *validatedSet {
	return &validatedSet{set: make(map[Hash]struct{})}
}

func (v *validatedSet) has(h Hash) bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	_, ok := v.set[h]
	return ok
}

func (v *validatedSet) mark(h Hash) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.set[h] = struct{}{}
}
