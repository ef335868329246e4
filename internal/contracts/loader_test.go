package contracts

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeJSON(t *testing.T, path string, v any) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	data, err := json.Marshal(v)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	writeJSON(t, filepath.Join(dir, "rollup/L1Rollup.sol/L1Rollup.json"), linkedArtifact())
	writeJSON(t, filepath.Join(dir, "rollup/L1Rollup.sol/L1Rollup.dbg.json"), map[string]string{"buildInfo": "x"})
	writeJSON(t, filepath.Join(dir, "build-info/abc.json"), map[string]string{"id": "abc"})
	writeJSON(t, filepath.Join(dir, "library/AddressManager.sol/AddressManager.json"), &Artifact{
		ContractName:     AddressManager,
		ABI:              json.RawMessage(`[]`),
		Bytecode:         "0x60",
		DeployedBytecode: "0x61",
	})

	set, err := LoadDir(dir)
	require.NoError(t, err)
	assert.Len(t, set, 2)

	a, err := set.Artifact("L1Rollup")
	require.NoError(t, err)
	assert.Equal(t, linkedArtifact().CodeHash(), a.CodeHash())
	assert.Equal(t, 2, a.LinkReferences["contracts/LibPropose.sol"]["LibPropose"][0].Start)

	_, err = set.Artifact("Nope")
	assert.Error(t, err)

	assert.NoError(t, set.Require(AddressManager, "L1Rollup"))
	err = set.Require(AddressManager, L1Escrow, CrossChainChannel)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "L1Escrow, CrossChainChannel")
}

func TestLoadDir_ConflictingDuplicates(t *testing.T) {
	dir := t.TempDir()
	writeJSON(t, filepath.Join(dir, "a/X.json"), &Artifact{ContractName: "X", Bytecode: "0x60", DeployedBytecode: "0x01"})
	writeJSON(t, filepath.Join(dir, "b/X.json"), &Artifact{ContractName: "X", Bytecode: "0x60", DeployedBytecode: "0x02"})

	_, err := LoadDir(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "defined twice")
}

func TestLoadDir_Missing(t *testing.T) {
	_, err := LoadDir(filepath.Join(t.TempDir(), "absent"))
	assert.Error(t, err)
}
