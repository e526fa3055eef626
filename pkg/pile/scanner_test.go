package pile

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func Test_ApplyNext_Stops_Quietly_On_Truncated_Tail(t *testing.T) {
	t.Parallel()

	record, _ := encodeBlob([]byte("hello"), 0)
	torn := append(append([]byte{}, record...), 0x01, 0x02, 0x03)

	idx := newIndex()
	newLen, err := applyNext(torn, 0, idx)
	require.NoError(t, err)
	require.Equal(t, int64(len(record)), newLen)
}

func Test_ApplyNext_Returns_CorruptError_On_Unknown_Marker(t *testing.T) {
	t.Parallel()

	good, _ := encodeBlob([]byte("hello"), 0)
	garbage := make([]byte, headerSize)
	buf := append(append([]byte{}, good...), garbage...)

	idx := newIndex()
	_, err := applyNext(buf, 0, idx)

	var corrupt *CorruptError
	require.ErrorAs(t, err, &corrupt)
	require.Equal(t, int64(len(good)), corrupt.ValidBytes)
}

func Test_ApplyNext_First_Wins_On_Duplicate_Blob_Hash(t *testing.T) {
	t.Parallel()

	payload := []byte("dup")
	first, hash := encodeBlob(payload, 100)
	second, _ := encodeBlob(payload, 200)

	buf := append(append([]byte{}, first...), second...)

	idx := newIndex()
	newLen, err := applyNext(buf, 0, idx)
	require.NoError(t, err)
	require.Equal(t, int64(len(buf)), newLen)

	entry, ok := idx.lookupBlob(hash)
	require.True(t, ok)
	require.Equal(t, int64(100), entry.timestamp)
}

func Test_ApplyNext_Branch_Record_Always_Overwrites(t *testing.T) {
	t.Parallel()

	id := BranchID{9}
	h1 := Hash{1}
	h2 := Hash{2}

	rec1 := encodeBranch(id, h1)
	rec2 := encodeBranch(id, h2)
	buf := append(append([]byte{}, rec1...), rec2...)

	idx := newIndex()
	_, err := applyNext(buf, 0, idx)
	require.NoError(t, err)

	head, ok := idx.lookupBranch(id)
	require.True(t, ok)
	require.Equal(t, h2, head)
}

func Test_ApplyNext_Resumes_From_AppliedLength(t *testing.T) {
	t.Parallel()

	first, hash1 := encodeBlob([]byte("a"), 0)
	second, hash2 := encodeBlob([]byte("b"), 0)
	buf := append(append([]byte{}, first...), second...)

	idx := newIndex()
	mid, err := applyNext(buf[:len(first)], 0, idx)
	require.NoError(t, err)
	require.Equal(t, int64(len(first)), mid)
	_, ok := idx.lookupBlob(hash2)
	require.False(t, ok)

	end, err := applyNext(buf, mid, idx)
	require.NoError(t, err)
	require.Equal(t, int64(len(buf)), end)

	_, ok = idx.lookupBlob(hash1)
	require.True(t, ok)
	_, ok = idx.lookupBlob(hash2)
	require.True(t, ok)
}
