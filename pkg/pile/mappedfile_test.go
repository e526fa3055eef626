package pile

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func Test_OpenMappedFile_Creates_Empty_File_When_Absent(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "data.pile")
	mf, err := openMappedFile(path)
	require.NoError(t, err)
	defer mf.close()

	size, err := mf.length()
	require.NoError(t, err)
	require.Equal(t, int64(0), size)
}

func Test_OpenMappedFile_Opens_Existing_File_Without_Truncating(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "data.pile")
	mf, err := openMappedFile(path)
	require.NoError(t, err)

	record, _ := encodeBlob([]byte("hello"), 0)
	require.NoError(t, mf.append(record))
	require.NoError(t, mf.close())

	mf2, err := openMappedFile(path)
	require.NoError(t, err)
	defer mf2.close()

	size, err := mf2.length()
	require.NoError(t, err)
	require.Equal(t, int64(len(record)), size)
}

func Test_Append_Is_Visible_After_BytesUpTo_Grows_The_Mapping(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "data.pile")
	mf, err := openMappedFile(path)
	require.NoError(t, err)
	defer mf.close()

	record, _ := encodeBlob([]byte("hello"), 0)
	require.NoError(t, mf.append(record))

	size, err := mf.length()
	require.NoError(t, err)

	data, err := mf.bytesUpTo(size)
	require.NoError(t, err)
	require.Equal(t, record, data)
}

func Test_BytesUpTo_Grows_Mapping_Beyond_Initial_Reserve(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "data.pile")
	mf, err := openMappedFile(path)
	require.NoError(t, err)
	defer mf.close()

	big := make([]byte, minMappingReserve+headerSize)
	copy(big, encodeBranch(BranchID{1}, Hash{2}))
	require.NoError(t, mf.append(big))

	data, err := mf.bytesUpTo(int64(len(big)))
	require.NoError(t, err)
	require.Len(t, data, len(big))
	require.GreaterOrEqual(t, len(mf.current.data), len(big))
}

func Test_Snapshot_Retains_Mapping_Across_Growth(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "data.pile")
	mf, err := openMappedFile(path)
	require.NoError(t, err)
	defer mf.close()

	record, _ := encodeBlob([]byte("first"), 0)
	require.NoError(t, mf.append(record))

	m, length, err := mf.snapshot()
	require.NoError(t, err)
	require.Equal(t, int64(len(record)), length)

	snapshotBytes := append([]byte{}, m.data[:length]...)

	big := make([]byte, minMappingReserve+headerSize)
	copy(big, encodeBranch(BranchID{7}, Hash{8}))
	require.NoError(t, mf.append(big))

	_, err = mf.bytesUpTo(length + int64(len(big)))
	require.NoError(t, err)

	require.Equal(t, snapshotBytes, m.data[:length], "retained mapping's bytes are unaffected by later growth")
	m.release()
}

func Test_Truncate_Shrinks_File_Length(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "data.pile")
	mf, err := openMappedFile(path)
	require.NoError(t, err)
	defer mf.close()

	record, _ := encodeBlob([]byte("hello"), 0)
	require.NoError(t, mf.append(record))

	require.NoError(t, mf.truncate(headerSize))

	size, err := mf.length()
	require.NoError(t, err)
	require.Equal(t, int64(headerSize), size)
}

func Test_LockShared_Allows_Concurrent_Shared_Holders_On_Same_File(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "data.pile")
	mf, err := openMappedFile(path)
	require.NoError(t, err)
	defer mf.close()

	mf2, err := openMappedFile(path)
	require.NoError(t, err)
	defer mf2.close()

	lock1, err := mf.lockShared()
	require.NoError(t, err)
	defer lock1.unlock()

	lock2, err := mf2.lockShared()
	require.NoError(t, err)
	defer lock2.unlock()
}

// Test_LockExclusive_Blocks_A_Concurrent_Shared_Lock_From_Another_Handle
// exercises locking across two independently opened descriptors on the same
// path, which is the scenario a fresh-fd-per-acquisition lock must still
// get right: an exclusive hold on one descriptor must genuinely block a
// shared request on another, not silently coexist with or be released by
// it.
func Test_LockExclusive_Blocks_A_Concurrent_Shared_Lock_From_Another_Handle(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "data.pile")
	mf, err := openMappedFile(path)
	require.NoError(t, err)
	defer mf.close()

	mf2, err := openMappedFile(path)
	require.NoError(t, err)
	defer mf2.close()

	excl, err := mf.lockExclusive()
	require.NoError(t, err)

	acquired := make(chan struct{})
	go func() {
		lock, err := mf2.lockShared()
		require.NoError(t, err)
		defer lock.unlock()
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("shared lock was granted while an exclusive lock was still held")
	case <-time.After(50 * time.Millisecond):
	}

	excl.unlock()

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("shared lock was not granted after the exclusive lock was released")
	}
}
