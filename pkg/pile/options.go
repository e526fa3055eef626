package pile

// Options configures opening or creating a pile file.
type Options struct {
	// Path is the filesystem path to the pile file. Required.
	//
	// The file is created with an initial zero length if it does not
	// already exist. There is no side file and no lock file: advisory
	// locks are taken on this file itself, through a private descriptor
	// per acquisition.
	Path string

	// DisableLocking disables interprocess advisory locking.
	//
	// When true, [Pile.Restore] and [Pile.Update] skip lock_exclusive/
	// lock_shared entirely. The caller MUST provide equivalent external
	// synchronization. Use only when a pile is embedded inside a component
	// that already coordinates multi-process access.
	DisableLocking bool
}
