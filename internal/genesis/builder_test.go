package genesis

import (
	"encoding/json"
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/myronchain/ethbeijing-rollup-tools/internal/contracts"
	"github.com/myronchain/ethbeijing-rollup-tools/internal/contracts/contractstest"
)

var (
	deployer = common.HexToAddress("0xd3d3d3d3d3d3d3d3d3d3d3d3d3d3d3d3d3d3d3d3")
	l1CCC    = common.HexToAddress("0x1000000000000000000000000000000000000003")
	l1Escrow = common.HexToAddress("0x1000000000000000000000000000000000000004")
)

func input(l2ChainID uint64) Input {
	return Input{
		L2ChainID:           l2ChainID,
		Deployer:            deployer,
		L1CrossChainChannel: l1CCC,
		L1Escrow:            l1Escrow,
		Premint: Premint{
			common.HexToAddress("0xaaaa000000000000000000000000000000000000"): big.NewInt(1e18),
		},
		Artifacts: contractstest.L2(1),
	}
}

func genesisJSON(t *testing.T, r *Result) string {
	t.Helper()
	data, err := json.MarshalIndent(r.Genesis, "", " ")
	require.NoError(t, err)
	return string(data)
}

func TestBuild_Deterministic(t *testing.T) {
	a, err := Build(input(42))
	require.NoError(t, err)
	b, err := Build(input(42))
	require.NoError(t, err)

	if diff := cmp.Diff(genesisJSON(t, a), genesisJSON(t, b)); diff != "" {
		t.Fatalf("genesis differs between builds (-a +b):\n%s", diff)
	}
	assert.Equal(t, a.Hash, b.Hash)
	assert.Equal(t, a.Implementations, b.Implementations)
}

func TestBuild_SensitiveToL2ChainID(t *testing.T) {
	a, err := Build(input(42))
	require.NoError(t, err)
	b, err := Build(input(43))
	require.NoError(t, err)

	assert.NotEqual(t, a.Hash, b.Hash)
	for i := range a.Implementations {
		assert.NotEqual(t, a.Implementations[i].Address, b.Implementations[i].Address)
		assert.Equal(t, a.Implementations[i].CodeHash, b.Implementations[i].CodeHash)
	}
}

func TestBuild_Header(t *testing.T) {
	r, err := Build(input(42))
	require.NoError(t, err)
	g := r.Genesis

	assert.Equal(t, uint64(42), g.Config.ChainID.Uint64())
	assert.Equal(t, Timestamp, g.Timestamp)
	assert.Equal(t, GasLimit, g.GasLimit)
	assert.Zero(t, g.Difficulty.Sign())
	assert.Zero(t, g.Config.BerlinBlock.Sign())
	assert.Nil(t, g.Config.LondonBlock)
	assert.Equal(t, r.Hash, g.ToBlock().Hash())
}

func TestBuild_Predeploys(t *testing.T) {
	in := input(42)
	r, err := Build(in)
	require.NoError(t, err)
	alloc := r.Genesis.Alloc

	require.Equal(t, contracts.L2Roles.Names(), []string{
		r.Implementations[0].Role, r.Implementations[1].Role,
		r.Implementations[2].Role, r.Implementations[3].Role,
	})

	for _, impl := range r.Implementations {
		proxy, ok := alloc[Predeploys[impl.Role]]
		require.True(t, ok, impl.Role)
		assert.Equal(t, common.BytesToHash(impl.Address.Bytes()), proxy.Storage[contracts.ImplementationSlot])
		assert.Equal(t, common.BytesToHash(ProxyAdminAddr.Bytes()), proxy.Storage[contracts.AdminSlot])
		assert.Equal(t, common.FromHex("0x61"+hexName(contracts.G1G2TransparentUpgradeableProxy)+"00"), proxy.Code)

		a, _ := in.Artifacts.Artifact(impl.Role)
		assert.Equal(t, a.CodeHash(), impl.CodeHash)
		assert.Equal(t,
			crypto.CreateAddress2(deployer, crypto.Keccak256Hash([]byte(impl.Role+"_42")), crypto.Keccak256([]byte(a.Bytecode))),
			impl.Address)
		implAccount := alloc[impl.Address]
		assert.Empty(t, implAccount.Storage)
		assert.Zero(t, implAccount.Balance.Sign())
	}

	assert.Equal(t, CrossChainChannelBalance, alloc[CrossChainChannelAddr].Balance)
	assert.Zero(t, alloc[L2RollupAddr].Balance.Sign())
	assert.Equal(t, big.NewInt(1e18), alloc[common.HexToAddress("0xaaaa000000000000000000000000000000000000")].Balance)

	// ProxyAdmin._owner at slot 0.
	assert.Equal(t, common.BytesToHash(deployer.Bytes()), alloc[ProxyAdminAddr].Storage[common.Hash{}])
	assert.Len(t, alloc, 1+4+4+1)
}

func TestBuild_AddressManagerState(t *testing.T) {
	r, err := Build(input(42))
	require.NoError(t, err)
	storage := r.Genesis.Alloc[AddressManagerAddr].Storage

	at := func(key string, slot uint64) common.Hash {
		return storage[crypto.Keccak256Hash(crypto.Keccak256([]byte(key)), slotHash(slot).Bytes())]
	}
	assert.Equal(t, common.BytesToHash(CrossChainChannelAddr.Bytes()), at(contracts.KeyCrossChainChannel, 101))
	assert.Equal(t, common.BytesToHash(L2RollupAddr.Bytes()), at(contracts.KeyRollup, 101))
	assert.Equal(t, common.BytesToHash(L2EscrowAddr.Bytes()), at(contracts.KeyEscrow, 101))
	assert.Equal(t, common.BytesToHash(l1CCC.Bytes()), at(contracts.KeyCrossChainChannel, 102))
	assert.Equal(t, common.BytesToHash(l1Escrow.Bytes()), at(contracts.KeyEscrow, 102))
	assert.Equal(t, common.Hash{}, at(contracts.KeyRollup, 102))

	assert.Equal(t, slotHash(1), storage[slotHash(0)])
	assert.Equal(t, common.BytesToHash(deployer.Bytes()), storage[slotHash(51)])
}

func TestBuild_L2RollupState(t *testing.T) {
	r, err := Build(input(42))
	require.NoError(t, err)
	storage := r.Genesis.Alloc[L2RollupAddr].Storage

	assert.Equal(t, slotHash(1), storage[slotHash(1)], "_status")
	assert.Equal(t, common.BytesToHash(AddressManagerAddr.Bytes()), storage[slotHash(101)])
	assert.Equal(t, AncestorsHash(42), storage[slotHash(102)])

	_, ok := r.Genesis.Alloc[CrossChainChannelAddr].Storage[slotHash(102)]
	assert.False(t, ok)
}

func TestAncestorsHash(t *testing.T) {
	words := make([]byte, 13*32)
	words[31] = 42
	assert.Equal(t, crypto.Keccak256Hash(words), AncestorsHash(42))
}

func TestBuild_PremintCollision(t *testing.T) {
	in := input(42)
	in.Premint = Premint{CrossChainChannelAddr: big.NewInt(1)}
	_, err := Build(in)
	assert.ErrorIs(t, err, ErrPremintCollision)
}

func TestBuild_MissingInputs(t *testing.T) {
	in := input(42)
	delete(in.Artifacts.(contracts.Set), contracts.L2Escrow)
	_, err := Build(in)
	assert.Error(t, err)

	in = input(42)
	in.Artifacts.(contracts.Set)[contracts.L2Rollup].StorageLayout = nil
	_, err = Build(in)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "L2Rollup proxy storage")

	_, err = Build(Input{})
	assert.Error(t, err)
}

func TestHashFile(t *testing.T) {
	r, err := Build(input(42))
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "l2_genesis.json")
	require.NoError(t, os.WriteFile(path, []byte(genesisJSON(t, r)), 0o644))

	h, err := HashFile(path)
	require.NoError(t, err)
	assert.Equal(t, r.Hash, h)
}

func hexName(name string) string {
	return common.Bytes2Hex([]byte(name))
}
