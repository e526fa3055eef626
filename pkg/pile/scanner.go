package pile

import "errors"

// applyNext walks bytes beyond appliedLength, applying every structurally
// valid record it finds to idx, and returns the new watermark.
//
// On a truncated tail (the normal case: the current end of file, or a torn
// append) it stops quietly and returns the offset of the truncation with a
// nil error. On an unrecognized marker it returns a *CorruptError carrying
// the offset of the unrecognized record, i.e. the end of the last valid
// record; it does not modify bytes or idx
// beyond what was already applied before the corrupt record was reached.
func applyNext(bytes []byte, appliedLength int64, idx *index) (int64, error) {
	offset := appliedLength

	for {
		kind, blob, branch, err := parse(bytes, offset)
		if err != nil {
			if errors.Is(err, errTruncated) {
				return offset, nil
			}
			// errUnknownMarker: real corruption. Leave the file and idx as
			// they were for every record already applied in this call.
			return offset, &CorruptError{ValidBytes: offset}
		}

		switch kind {
		case kindBlob:
			idx.applyBlob(blob.hash, blobEntry{
				offset:    blob.payloadOff,
				timestamp: blob.timestamp,
				length:    blob.length,
			})
			offset = blob.nextOff
		case kindBranch:
			idx.applyBranch(branch.id, branch.head)
			offset = branch.nextOff
		}
	}
}
