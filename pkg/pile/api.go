package pile

// BlobStore is the content-addressed blob surface exposed to external
// collaborators (the workspace/repository layer is explicitly out of scope
// for this module; it depends on this interface rather than *Pile).
type BlobStore interface {
	// Put appends payload and returns its content hash. Idempotent on
	// content.
	Put(payload []byte) (Hash, error)

	// Reader returns a snapshot for Get/Metadata/Iter lookups.
	Reader() (*PileReader, error)
}

// BranchStore is the mutable branch-head surface exposed to external
// collaborators.
type BranchStore interface {
	// Head returns the current head hash for branchID, if any.
	Head(branchID BranchID) (Hash, bool, error)

	// Update performs a compare-and-set on branchID's head.
	Update(branchID BranchID, expectedHead, newHead Hash) (Outcome, Hash, error)

	// Branches returns every known branch identifier.
	Branches() ([]BranchID, error)
}

var (
	_ BlobStore   = (*Pile)(nil)
	_ BranchStore = (*Pile)(nil)
)
