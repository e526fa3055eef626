// Package fslock provides advisory file locking on an already-open file
// descriptor.
//
// Unlike a path-based locker guarding a dedicated lock file, this package
// locks the descriptor of a file the caller already owns. There is no
// inode-replacement hazard to guard against: the fd already names a
// specific inode, and the pile never replaces its own file out from under
// itself.
package fslock

import (
	"errors"

	"golang.org/x/sys/unix"
)

// ErrWouldBlock is returned by TryLock when the lock is held by
// another process or thread.
var ErrWouldBlock = errors.New("fslock: would block")

// Lock acquires an exclusive lock on fd, blocking until available.
func Lock(fd int) error {
	return flockRetryEINTR(fd, unix.LOCK_EX)
}

// RLock acquires a shared lock on fd, blocking until available.
func RLock(fd int) error {
	return flockRetryEINTR(fd, unix.LOCK_SH)
}

// TryLock attempts to acquire an exclusive lock on fd without blocking.
// Returns ErrWouldBlock if another process or thread holds it.
func TryLock(fd int) error {
	err := flockRetryEINTR(fd, unix.LOCK_EX|unix.LOCK_NB)
	if isWouldBlock(err) {
		return ErrWouldBlock
	}
	return err
}

// Unlock releases any lock held on fd.
func Unlock(fd int) error {
	return flockRetryEINTR(fd, unix.LOCK_UN)
}

func isWouldBlock(err error) bool {
	return errors.Is(err, unix.EWOULDBLOCK) || errors.Is(err, unix.EAGAIN)
}

// flockRetryEINTR wraps unix.Flock, retrying on EINTR. A blocking-lock
// syscall interrupted by a signal has not failed; it must simply be retried.
// The retry count is capped to avoid spinning forever under a pathological
// signal storm.
func flockRetryEINTR(fd int, how int) error {
	const maxEINTRRetries = 10000

	var err error
	for i := 0; i < maxEINTRRetries; i++ {
		err = unix.Flock(fd, how)
		if err == nil || !errors.Is(err, unix.EINTR) {
			return err
		}
	}

	return err
}
