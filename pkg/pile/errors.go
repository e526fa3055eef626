package pile

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by pile operations.
//
// Callers should use [errors.Is] (and [errors.As] for [CorruptError]) to
// classify errors:
//
//	if errors.Is(err, pile.ErrCorrupt) {
//	    err = p.Restore()
//	}
var (
	// ErrCorrupt indicates the scanner encountered a record header with an
	// unrecognized magic marker, or a blob header whose declared length is
	// negative as a signed 64-bit value. A declared length that runs past
	// the end of the file is treated as a truncated tail, not as corruption.
	//
	// Recovery: call [Pile.Restore] to truncate the file to its last valid
	// record.
	ErrCorrupt = errors.New("pile: corrupt")

	// ErrUnsupportedFilesystem is returned from [Open] when a feature probe
	// indicates the underlying filesystem does not provide atomic appending
	// writes.
	//
	// Recovery: none; choose a different path.
	ErrUnsupportedFilesystem = errors.New("pile: filesystem does not support atomic appends")

	// ErrClosed indicates the [Pile] has already been closed.
	ErrClosed = errors.New("pile: closed")

	// ErrInvalidInput indicates invalid arguments were provided (e.g. a
	// branch identifier of the wrong length).
	ErrInvalidInput = errors.New("pile: invalid input")

	// ErrWatermarkRegression is the error wrapped by the panic raised when
	// the file shrinks below the applied watermark between two scans.
	//
	// This is fatal and unrecoverable in-process: byte slices already
	// handed out to callers may reference pages the operating system is
	// free to have discarded. See [Pile.Refresh].
	ErrWatermarkRegression = errors.New("pile: file shrank below applied watermark")
)

// CorruptError carries the offset up to which the pile was structurally
// valid when [ErrCorrupt] was detected. It wraps [ErrCorrupt] so
// errors.Is(err, ErrCorrupt) still succeeds.
type CorruptError struct {
	// ValidBytes is the byte offset of the first invalid record. Bytes in
	// [0, ValidBytes) are structurally sound.
	ValidBytes int64
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("pile: corrupt at offset %d", e.ValidBytes)
}

func (e *CorruptError) Unwrap() error {
	return ErrCorrupt
}

// structural errors are scanner-internal control flow, not part of the
// public error taxonomy: they never escape applyNext.
var (
	errTruncated    = errors.New("pile: truncated record")
	errUnknownMarker = errors.New("pile: unknown record marker")
)
