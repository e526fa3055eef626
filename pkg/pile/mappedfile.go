package pile

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	atomicfile "github.com/natefinch/atomic"
	"golang.org/x/sys/unix"

	"github.com/triblespace/tribles-go/internal/fslock"
)

// minMappingReserve is the smallest virtual-address reservation a mapping
// is created with, so a brand-new pile doesn't need to remap on its first
// few appends.
const minMappingReserve = 1 << 20 // 1 MiB

// mapping is one generation of the pile's memory mapping. It is
// reference-counted: the mappedFile itself holds one reference for as long
// as it is the current mapping, and every [PileReader] derived while it was
// current holds another. The underlying pages are only unmapped once the
// last reference is released, so byte slices handed out of an older
// mapping remain valid even after the file has grown and a newer, larger
// mapping has taken its place.
type mapping struct {
	data []byte
	refs int32 // atomic
}

func (m *mapping) retain() {
	atomic.AddInt32(&m.refs, 1)
}

func (m *mapping) release() {
	if atomic.AddInt32(&m.refs, -1) == 0 {
		_ = unix.Munmap(m.data)
	}
}

// mappedFile owns the pile's file descriptor and its current memory mapping.
// Advisory locks are taken on the pile file itself, each through a private
// descriptor (see flockHandle): there is no side lock file.
type mappedFile struct {
	path string

	// mu serializes operations that touch fd/current together: growing the
	// mapping, and append. It does not serialize reads of already-retained
	// mappings, which need no lock at all once retained.
	mu      sync.Mutex
	fd      int
	current *mapping
}

// openMappedFile opens (creating if absent) the pile file at path and maps
// it. The caller must eventually call close.
func openMappedFile(path string) (*mappedFile, error) {
	if err := createIfAbsent(path); err != nil {
		return nil, err
	}

	fd, err := unix.Open(path, unix.O_RDWR|unix.O_APPEND, 0)
	if err != nil {
		return nil, fmt.Errorf("pile: opening %q: %w", path, err)
	}

	if err := probeAtomicAppend(path); err != nil {
		_ = unix.Close(fd)
		return nil, err
	}

	mf := &mappedFile{path: path, fd: fd}

	size, err := mf.lenLocked()
	if err != nil {
		_ = unix.Close(fd)
		return nil, err
	}

	m, err := mapAtLeast(fd, size)
	if err != nil {
		_ = unix.Close(fd)
		return nil, err
	}
	mf.current = m

	return mf, nil
}

// createIfAbsent creates an empty file at path if it does not already
// exist, via an atomic temp-file-then-rename publish so a concurrent opener
// never observes a partially-created file.
func createIfAbsent(path string) error {
	var stat unix.Stat_t
	err := unix.Stat(path, &stat)
	if err == nil {
		return nil
	}
	if !errors.Is(err, unix.ENOENT) {
		return fmt.Errorf("pile: stat %q: %w", path, err)
	}

	if werr := atomicfile.WriteFile(path, bytes.NewReader(nil)); werr != nil {
		// Another process may have won the race to create the file first;
		// that is not an error for us.
		if statErr := unix.Stat(path, &stat); statErr == nil {
			return nil
		}
		return fmt.Errorf("pile: creating %q: %w", path, werr)
	}

	return nil
}

// lenLocked returns the current file length from the OS, not the mapping.
// Caller must hold mf.mu, or call it during construction before mf is
// shared.
func (mf *mappedFile) lenLocked() (int64, error) {
	var stat unix.Stat_t
	if err := unix.Fstat(mf.fd, &stat); err != nil {
		return 0, fmt.Errorf("pile: fstat: %w", err)
	}
	return stat.Size, nil
}

// length returns the current file length from the OS.
func (mf *mappedFile) length() (int64, error) {
	mf.mu.Lock()
	defer mf.mu.Unlock()
	return mf.lenLocked()
}

// mapAtLeast creates a new mapping whose reserved length covers at least
// size bytes, rounded up generously so small, frequent appends don't each
// force a remap.
func mapAtLeast(fd int, size int64) (*mapping, error) {
	reserve := int64(minMappingReserve)
	for reserve < size {
		reserve *= 2
	}

	data, err := unix.Mmap(fd, 0, int(reserve), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("pile: mmap: %w", err)
	}

	return &mapping{data: data, refs: 1}, nil
}

// snapshot retains and returns the current mapping (for a [PileReader]) and
// the file length observed at the same instant, so the caller can slice
// [0:length) safely even if a later append grows the file further.
func (mf *mappedFile) snapshot() (*mapping, int64, error) {
	mf.mu.Lock()
	defer mf.mu.Unlock()

	size, err := mf.lenLocked()
	if err != nil {
		return nil, 0, err
	}

	if err := mf.growLocked(size); err != nil {
		return nil, 0, err
	}

	mf.current.retain()
	return mf.current, size, nil
}

// bytesUpTo returns a view of the mapped bytes covering [0, length),
// growing the mapping first if length exceeds its current reservation.
// The returned slice is only valid while the caller holds mf.mu or a
// retained reference to the mapping it came from; scanner use is always
// internal to a locked operation.
func (mf *mappedFile) bytesUpTo(length int64) ([]byte, error) {
	mf.mu.Lock()
	defer mf.mu.Unlock()

	if err := mf.growLocked(length); err != nil {
		return nil, err
	}
	return mf.current.data[:length], nil
}

// growLocked ensures the current mapping's reservation covers at least
// size bytes, remapping if necessary. Caller must hold mf.mu.
func (mf *mappedFile) growLocked(size int64) error {
	if int64(len(mf.current.data)) >= size {
		return nil
	}

	next, err := mapAtLeast(mf.fd, size)
	if err != nil {
		return err
	}

	old := mf.current
	mf.current = next
	old.release()
	return nil
}

// append issues a single appending write of buf, relying on the operating
// system's guarantee of atomicity for appends to local filesystems. It
// does not update the mapping; the caller is expected to refresh
// afterward.
func (mf *mappedFile) append(buf []byte) error {
	mf.mu.Lock()
	defer mf.mu.Unlock()

	n, err := unix.Write(mf.fd, buf)
	if err != nil {
		return fmt.Errorf("pile: append: %w", err)
	}
	if n != len(buf) {
		return fmt.Errorf("pile: append: short write (%d of %d bytes)", n, len(buf))
	}
	return nil
}

// truncate shrinks the file to length, used only by Restore's exclusive
// critical section to discard a torn tail.
func (mf *mappedFile) truncate(length int64) error {
	mf.mu.Lock()
	defer mf.mu.Unlock()

	if err := unix.Ftruncate(mf.fd, length); err != nil {
		return fmt.Errorf("pile: truncate: %w", err)
	}
	return nil
}

// flockHandle is one advisory-lock acquisition. It wraps a private
// descriptor opened solely to hold this lock, so that concurrent
// acquisitions made by this process are independent open file descriptions
// rather than repeated flock calls on mf.fd.
//
// flock(2) associates a lock with an open file description, not with a
// file descriptor number or a logical caller. Two flock calls against the
// same descriptor — or any descriptor sharing its open file description,
// such as one obtained via dup — manipulate the very same lock: a shared
// lock taken on it while another goroutine holds it exclusively converts
// the lock instead of blocking, and an unlock on it releases the lock
// entirely regardless of who "logically" still wants it held. Acquiring a
// fresh descriptor per lock call avoids that: the kernel treats locks taken
// through distinct open file descriptions as independent, so one
// goroutine's shared lock genuinely blocks behind another's still-held
// exclusive lock instead of silently downgrading or releasing it.
type flockHandle struct {
	fd int
}

// lockShared opens a private descriptor on the pile file and takes a
// shared advisory lock on it, blocking until available.
func (mf *mappedFile) lockShared() (*flockHandle, error) {
	return mf.acquireLock(unix.O_RDONLY, fslock.RLock)
}

// lockExclusive opens a private descriptor on the pile file and takes an
// exclusive advisory lock on it, blocking until available.
func (mf *mappedFile) lockExclusive() (*flockHandle, error) {
	return mf.acquireLock(unix.O_RDWR, fslock.Lock)
}

func (mf *mappedFile) acquireLock(openFlag int, take func(fd int) error) (*flockHandle, error) {
	fd, err := unix.Open(mf.path, openFlag, 0)
	if err != nil {
		return nil, fmt.Errorf("pile: opening %q for lock: %w", mf.path, err)
	}

	if err := take(fd); err != nil {
		_ = unix.Close(fd)
		return nil, err
	}

	return &flockHandle{fd: fd}, nil
}

// unlock releases the lock and closes the private descriptor it was taken
// on. Closing the descriptor alone would drop the lock, since it is the
// last (only) descriptor referencing its open file description; the
// explicit Unlock call first means a close failure still leaves the lock
// released.
func (h *flockHandle) unlock() {
	if h == nil {
		return
	}
	_ = fslock.Unlock(h.fd)
	_ = unix.Close(h.fd)
}

func (mf *mappedFile) close() error {
	mf.mu.Lock()
	defer mf.mu.Unlock()

	mf.current.release()
	return unix.Close(mf.fd)
}
