//go:build linux

package pile

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// unsafeAppendFilesystems lists statfs magic numbers known to not guarantee
// atomic appending writes under concurrent, multi-process access: network
// filesystems where a single write(2) can be split across multiple RPCs.
// This is a heuristic, not a proof; filesystems not on this list are
// assumed safe.
var unsafeAppendFilesystems = map[int64]string{
	0x6969:     "NFS",
	0x65735546: "FUSE",
	0xff534d42: "CIFS",
	0x517b:     "SMB",
}

func probeAtomicAppend(path string) error {
	var buf unix.Statfs_t
	if err := unix.Statfs(path, &buf); err != nil {
		// If we can't even probe, don't block opening on a heuristic: fall
		// through and let real I/O errors surface where they occur.
		return nil
	}

	if name, unsafe := unsafeAppendFilesystems[int64(buf.Type)]; unsafe {
		return fmt.Errorf("%w: %s", ErrUnsupportedFilesystem, name)
	}
	return nil
}
