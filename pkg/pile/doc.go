// Package pile implements the on-disk storage engine for a content-addressed,
// append-only blob and branch store.
//
// A pile is a single local file: a catenation of 64-byte-aligned records.
// Two record kinds share the grid: blob records (an immutable payload
// addressed by the 256-bit hash of its content) and branch records (a named,
// mutable pointer to a blob hash). There is no header, footer, or manifest.
//
// # Basic usage
//
//	p, err := pile.Open(pile.Options{Path: "/var/lib/app/data.pile"})
//	if err != nil {
//	    // handle pile.ErrCorrupt / pile.ErrUnsupportedFilesystem
//	}
//	defer p.Close()
//
//	if err := p.Restore(); err != nil {
//	    // torn tail could not be repaired
//	}
//
//	h, err := p.Put([]byte("hello"))
//	r, err := p.Reader()
//	payload, ok := r.Get(h)
//
// # Concurrency
//
// A *Pile is safe for concurrent use by multiple goroutines and, when the
// underlying filesystem supports atomic appending writes and advisory
// locking, by multiple processes sharing the same file. Readers obtained via
// [Pile.Reader] never block after construction; they serve lookups from a
// frozen snapshot of the indices and a reference-counted view of the mapped
// bytes.
//
// # Error handling
//
// Structural corruption ([ErrCorrupt]) is recoverable by calling
// [Pile.Restore], which truncates the file to its last valid record. A
// watermark regression (bytes that were already validated have disappeared
// from under the pile) is not recoverable in-process and panics, since
// byte slices already handed out to callers may reference invalidated pages.
package pile
