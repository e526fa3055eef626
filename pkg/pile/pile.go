package pile

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// Outcome is the result of a compare-and-set branch [Pile.Update].
type Outcome int

const (
	// Committed indicates the branch head was advanced to the new value.
	Committed Outcome = iota
	// Conflict indicates the expected head did not match the observed
	// head; the branch was not modified.
	Conflict
)

// Pile is the public surface of the storage engine: open/create, restore
// (exclusive repair), refresh (shared incremental scan), put (append
// blob), update (compare-and-set branch head), and reader (snapshot).
//
// A *Pile is safe for concurrent use by multiple goroutines.
type Pile struct {
	opts Options

	file *mappedFile

	// mu serializes mutation of idx and appliedLength with respect to
	// refresh/restore/put/update running concurrently within this process.
	// It is process-internal synchronization distinct from the advisory
	// file lock, which coordinates with other processes.
	mu            sync.Mutex
	idx           *index
	appliedLength int64
	closed        bool

	validated *validatedSet
}

// Open opens or creates a pile file per opts.
//
// Open does not scan the file; call [Pile.Restore] once at startup (to
// truncate a torn tail left by a crash) or [Pile.Refresh] (to scan without
// truncating) before relying on the indices.
func Open(opts Options) (*Pile, error) {
	if opts.Path == "" {
		return nil, fmt.Errorf("%w: path is required", ErrInvalidInput)
	}

	file, err := openMappedFile(opts.Path)
	if err != nil {
		return nil, err
	}

	return &Pile{
		opts:      opts,
		file:      file,
		idx:       newIndex(),
		validated: newValidatedSet(),
	}, nil
}

// Close releases the pile's file descriptor and mapping. After Close, every
// other method returns [ErrClosed].
func (p *Pile) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true
	return p.file.close()
}

// Restore acquires an exclusive lock, scans the file, and truncates the file
// to the end of the last valid record, whether the scan stopped at a
// corrupt record or at a torn tail. It
// clears pending_hashes (a truncation may have discarded bytes this process
// thought it had written). Intended to be called once per process at
// startup, before any put/update/reader call.
func (p *Pile) Restore() error {
	lock, err := p.lockExclusiveUnlessDisabled()
	if err != nil {
		return err
	}
	defer lock.unlock()

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrClosed
	}

	newLen, err := p.scanLocked()
	if err != nil {
		var corrupt *CorruptError
		if !errors.As(err, &corrupt) {
			return err
		}

		if terr := p.file.truncate(corrupt.ValidBytes); terr != nil {
			return terr
		}
		p.appliedLength = corrupt.ValidBytes
		p.idx.resetPending()
		return nil
	}

	// A torn tail (a partial record past the last complete one) is not an
	// error to the scanner, but Restore discards it as well.
	size, err := p.file.length()
	if err != nil {
		return err
	}
	if size > newLen {
		if terr := p.file.truncate(newLen); terr != nil {
			return terr
		}
	}

	p.appliedLength = newLen
	p.idx.resetPending()
	return nil
}

// Refresh acquires a shared lock and scans the file. Unlike Restore it does
// not truncate on corruption; truncation requires the exclusive lock held
// by Restore. Refresh is implicitly called by Reader, Branches, Head,
// Update, and after each Put.
func (p *Pile) Refresh() error {
	lock, err := p.lockSharedUnlessDisabled()
	if err != nil {
		return err
	}
	defer lock.unlock()

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrClosed
	}

	newLen, err := p.scanLocked()
	if err != nil {
		return err
	}
	p.appliedLength = newLen
	return nil
}

// scanLocked runs applyNext from the current watermark. Caller must hold
// p.mu. It aborts the process (panics) if the file has shrunk below the
// watermark: already-handed-out byte slices may reference invalidated
// pages.
func (p *Pile) scanLocked() (int64, error) {
	size, err := p.file.length()
	if err != nil {
		return 0, err
	}
	if size < p.appliedLength {
		panic(fmt.Errorf("%w: file shrank from %d to %d bytes", ErrWatermarkRegression, p.appliedLength, size))
	}

	bytes, err := p.file.bytesUpTo(size)
	if err != nil {
		return 0, err
	}

	return applyNext(bytes, p.appliedLength, p.idx)
}

// Put appends payload as a blob record and returns its content hash. Put is
// idempotent on content: if the hash is already known (applied or
// pending), the existing handle is returned without writing again.
func (p *Pile) Put(payload []byte) (Hash, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return Hash{}, ErrClosed
	}
	h := hashPayload(payload)
	if p.idx.isKnown(h) {
		p.mu.Unlock()
		return h, nil
	}
	p.idx.markPending(h)
	p.mu.Unlock()

	record, gotHash := encodeBlob(payload, time.Now().UnixMilli())
	if gotHash != h {
		panic("pile: encodeBlob hash mismatch with precomputed hash")
	}

	if err := p.file.append(record); err != nil {
		return Hash{}, err
	}

	if err := p.Refresh(); err != nil {
		return Hash{}, err
	}

	return h, nil
}

// Update is the branch compare-and-set primitive. It refreshes under a
// shared lock to flush pending observations, acquires the exclusive lock,
// refreshes again to observe any races, and compares the observed head
// against expectedHead. On mismatch it returns (Conflict, observedHead,
// nil) without writing. On match it appends a branch record mapping
// branchID to newHead, applies it, and returns (Committed, newHead, nil).
//
// The branch record is written even though it does not verify that newHead
// names a blob that exists in this pile: heads-local/blobs-remote
// deployments are supported.
func (p *Pile) Update(branchID BranchID, expectedHead, newHead Hash) (Outcome, Hash, error) {
	if err := p.Refresh(); err != nil {
		return 0, Hash{}, err
	}

	lock, err := p.lockExclusiveUnlessDisabled()
	if err != nil {
		return 0, Hash{}, err
	}
	defer lock.unlock()

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return 0, Hash{}, ErrClosed
	}

	newLen, err := p.scanLocked()
	if err != nil {
		return 0, Hash{}, err
	}
	p.appliedLength = newLen

	observed, _ := p.idx.lookupBranch(branchID)
	if observed != expectedHead {
		return Conflict, observed, nil
	}

	record := encodeBranch(branchID, newHead)
	if err := p.file.append(record); err != nil {
		return 0, Hash{}, err
	}

	newLen, err = p.scanLocked()
	if err != nil {
		return 0, Hash{}, err
	}
	p.appliedLength = newLen

	return Committed, newHead, nil
}

// Head refreshes and returns the current head hash for branchID, and
// whether the branch has ever been observed.
func (p *Pile) Head(branchID BranchID) (Hash, bool, error) {
	if err := p.Refresh(); err != nil {
		return Hash{}, false, err
	}
	h, ok := p.idx.lookupBranch(branchID)
	return h, ok, nil
}

// Branches refreshes and returns a snapshot of every known branch ID.
func (p *Pile) Branches() ([]BranchID, error) {
	if err := p.Refresh(); err != nil {
		return nil, err
	}
	return p.idx.branchIDs(), nil
}

// Reader refreshes and returns a PileReader snapshot: a reference-counted
// view of the mapped bytes plus frozen copies of the blob index and branch
// index, and a shared handle to the validated set. A PileReader never
// blocks after construction.
func (p *Pile) Reader() (*PileReader, error) {
	if err := p.Refresh(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	blobs := p.idx.snapshotBlobs()
	branches := p.idx.snapshotBranches()
	p.mu.Unlock()

	m, length, err := p.file.snapshot()
	if err != nil {
		return nil, err
	}

	return newPileReader(m, length, blobs, branches, p.validated), nil
}

// lockExclusiveUnlessDisabled acquires an exclusive lock on a fresh
// descriptor and returns the handle the caller must unlock, unless locking
// is disabled, in which case it returns a nil handle (whose unlock is a
// no-op).
func (p *Pile) lockExclusiveUnlessDisabled() (*flockHandle, error) {
	if p.opts.DisableLocking {
		return nil, nil
	}
	return p.file.lockExclusive()
}

// lockSharedUnlessDisabled is lockExclusiveUnlessDisabled's shared-lock
// counterpart.
func (p *Pile) lockSharedUnlessDisabled() (*flockHandle, error) {
	if p.opts.DisableLocking {
		return nil, nil
	}
	return p.file.lockShared()
}

