package registry

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStore_Reload(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := NewFileStore(dir)
	require.NoError(t, err)

	l1, l2 := L1Scope(testL1), L2Scope(testL1, testL2)
	require.NoError(t, s.SaveLogics(ctx, logic(l1, "A", 1), logic(l2, "B", 2)))
	require.NoError(t, s.SaveBundle(ctx, bundle(l1, 1, logic(l1, "A", 1)), false))
	require.NoError(t, s.SaveBundle(ctx, bundle(l2, 1, logic(l2, "B", 2)), false))
	require.NoError(t, s.SaveRollup(ctx, rollup(1)))
	require.NoError(t, s.SaveGenesis(ctx, genesisRecord(testL1, testL2)))

	for _, name := range []string{
		FileL1Logics, FileL1VersionedLogics, FileL2Logics, FileL2VersionedLogics, FileRollupContracts, FileL2Genesis,
	} {
		assert.FileExists(t, filepath.Join(dir, name))
	}

	reopened, err := NewFileStore(dir)
	require.NoError(t, err)

	got, err := reopened.GetBundle(ctx, l2, 1)
	require.NoError(t, err)
	assert.Equal(t, logic(l2, "B", 2), got.Roles["B"])

	r, err := reopened.GetRollup(ctx, testL1, testL2)
	require.NoError(t, err)
	assert.True(t, rollup(1).Equal(r))

	g, err := reopened.GetGenesis(ctx, testL1, testL2)
	require.NoError(t, err)
	assert.Equal(t, genesisRecord(testL1, testL2).Hash, g.Genesis.ToBlock().Hash())

	// Sealed bundles stay immutable across restarts.
	assert.ErrorIs(t, reopened.SaveBundle(ctx, bundle(l1, 1, logic(l1, "A", 9)), false), ErrConflict)
}

func TestFileStore_LayerFilesSplit(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	require.NoError(t, err)

	require.NoError(t, s.SaveLogics(ctx, logic(L1Scope(testL1), "A", 1)))

	var l1 []LogicRecord
	data, err := os.ReadFile(filepath.Join(dir, FileL1Logics))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &l1))
	assert.Len(t, l1, 1)

	var l2 []LogicRecord
	data, err = os.ReadFile(filepath.Join(dir, FileL2Logics))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &l2))
	assert.Empty(t, l2)
}

func TestFileStore_CorruptFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileRollupContracts), []byte("{not json"), 0o600))

	_, err := NewFileStore(dir)
	assert.ErrorIs(t, err, ErrStoreCorrupted)
}

func TestFileStore_EmptyFilesAreFresh(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileL1Logics), nil, 0o600))

	s, err := NewFileStore(dir)
	require.NoError(t, err)
	list, err := s.ListRollups(context.Background())
	require.NoError(t, err)
	assert.Empty(t, list)
}
