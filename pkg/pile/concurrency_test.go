package pile

import (
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// Test_Concurrent_Puts_Of_Distinct_Payloads_Never_Lose_A_Write drives many
// goroutines each putting a distinct payload and checks every handle is
// later retrievable, i.e. concurrent appends never clobber one another.
func Test_Concurrent_Puts_Of_Distinct_Payloads_Never_Lose_A_Write(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "data.pile")
	p, err := Open(Options{Path: path})
	require.NoError(t, err)
	defer p.Close()
	require.NoError(t, p.Restore())

	const n = 32
	hashes := make([]Hash, n)

	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			payload := []byte{byte(i), byte(i >> 8)}
			h, err := p.Put(payload)
			require.NoError(t, err)
			hashes[i] = h
		}(i)
	}
	wg.Wait()

	r, err := p.Reader()
	require.NoError(t, err)
	defer r.Release()

	for i := 0; i < n; i++ {
		got, ok := r.Get(hashes[i])
		require.True(t, ok)
		require.Equal(t, []byte{byte(i), byte(i >> 8)}, got)
	}
}

// Test_Concurrent_Updates_On_Same_Branch_Produce_Exactly_One_Winner drives
// many goroutines racing Update against the same branch from the same
// expected head. Exactly one should observe Committed; the rest must
// observe Conflict reporting the winner's head.
func Test_Concurrent_Updates_On_Same_Branch_Produce_Exactly_One_Winner(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "data.pile")
	p, err := Open(Options{Path: path})
	require.NoError(t, err)
	defer p.Close()
	require.NoError(t, p.Restore())

	branch := BranchID{3}
	const n = 16
	candidateHeads := make([]Hash, n)
	for i := 0; i < n; i++ {
		h, err := p.Put([]byte{byte(i)})
		require.NoError(t, err)
		candidateHeads[i] = h
	}

	outcomes := make([]Outcome, n)
	observed := make([]Hash, n)

	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			outcome, obs, err := p.Update(branch, Hash{}, candidateHeads[i])
			require.NoError(t, err)
			outcomes[i] = outcome
			observed[i] = obs
		}(i)
	}
	wg.Wait()

	committedCount := 0
	var winner Hash
	for i := 0; i < n; i++ {
		if outcomes[i] == Committed {
			committedCount++
			winner = observed[i]
		}
	}
	require.Equal(t, 1, committedCount, "a compare-and-set from the same expected head admits exactly one winner")

	for i := 0; i < n; i++ {
		if outcomes[i] == Conflict {
			require.Equal(t, winner, observed[i])
		}
	}

	head, ok, err := p.Head(branch)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, winner, head)
}

// Test_Reader_Taken_Before_A_Write_Is_Unaffected_By_It models two
// independent *Pile handles sharing one file: a reader snapshot taken by
// one handle does not observe a branch update the other handle performs
// afterward; a fresh Head call against either handle does.
func Test_Reader_Taken_Before_A_Write_Is_Unaffected_By_It(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "data.pile")

	a, err := Open(Options{Path: path})
	require.NoError(t, err)
	defer a.Close()
	require.NoError(t, a.Restore())

	b, err := Open(Options{Path: path})
	require.NoError(t, err)
	defer b.Close()

	branch := BranchID{4}
	h1, err := a.Put([]byte("v1"))
	require.NoError(t, err)
	_, _, err = a.Update(branch, Hash{}, h1)
	require.NoError(t, err)

	r, err := b.Reader()
	require.NoError(t, err)
	defer r.Release()

	h2, err := a.Put([]byte("v2"))
	require.NoError(t, err)
	_, _, err = a.Update(branch, h1, h2)
	require.NoError(t, err)

	stale, ok := r.BranchHead(branch)
	require.True(t, ok)
	require.Equal(t, h1, stale)

	head, ok, err := b.Head(branch)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, h2, head)
}
