package genesis

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/params"

	"github.com/myronchain/ethbeijing-rollup-tools/internal/contracts"
)

// ErrPremintCollision is returned when a premint account is also a
// predeploy or implementation address.
var ErrPremintCollision = errors.New("premint account collides with a genesis contract")

// Input is everything the L2 genesis depends on.
type Input struct {
	L2ChainID uint64
	// Deployer is the CREATE2 deployer of the implementations and the owner
	// of every predeploy.
	Deployer            common.Address
	L1CrossChainChannel common.Address
	L1Escrow            common.Address
	Premint             Premint
	Artifacts           contracts.Source
}

// Implementation is an L2 logic contract placed in the genesis.
type Implementation struct {
	Role     string
	Address  common.Address
	CodeHash common.Hash
}

// Result is a built genesis.
type Result struct {
	Genesis *core.Genesis
	Hash    common.Hash
	// Implementations follow contracts.L2Roles order.
	Implementations []Implementation
}

// Build assembles the L2 genesis. It is a pure function of in.
func Build(in Input) (*Result, error) {
	if in.L2ChainID == 0 {
		return nil, errors.New("must define L2 ChainID")
	}
	if in.Artifacts == nil {
		return nil, errors.New("no artifact source")
	}

	proxyArtifact, err := in.Artifacts.Artifact(contracts.G1G2TransparentUpgradeableProxy)
	if err != nil {
		return nil, err
	}
	proxyCode, err := proxyArtifact.DeployedCode()
	if err != nil {
		return nil, err
	}

	alloc := types.GenesisAlloc{}

	adminAccount, err := proxyAdminAccount(in)
	if err != nil {
		return nil, err
	}
	alloc[ProxyAdminAddr] = adminAccount

	roles := contracts.L2Roles.Names()
	impls := make([]Implementation, 0, len(roles))
	for _, role := range roles {
		a, err := in.Artifacts.Artifact(role)
		if err != nil {
			return nil, err
		}
		code, err := a.DeployedCode()
		if err != nil {
			return nil, err
		}
		implAddr := ImplementationAddress(in.Deployer, in.L2ChainID, a)

		storage, err := ComputeStorageSlots(a.StorageLayout, proxyVariables(role, in))
		if err != nil {
			return nil, fmt.Errorf("%s proxy storage: %w", role, err)
		}
		storage[contracts.ImplementationSlot] = common.BytesToHash(implAddr.Bytes())
		storage[contracts.AdminSlot] = common.BytesToHash(ProxyAdminAddr.Bytes())

		balance := new(big.Int)
		if role == contracts.CrossChainChannel {
			balance.Set(CrossChainChannelBalance)
		}
		alloc[Predeploys[role]] = types.Account{
			Code:    proxyCode,
			Storage: storage,
			Balance: balance,
		}
		alloc[implAddr] = types.Account{
			Code:    code,
			Balance: new(big.Int),
		}
		impls = append(impls, Implementation{Role: role, Address: implAddr, CodeHash: a.CodeHash()})
	}

	for addr, amount := range in.Premint {
		if _, taken := alloc[addr]; taken {
			return nil, fmt.Errorf("%w: %s", ErrPremintCollision, addr)
		}
		alloc[addr] = types.Account{Balance: new(big.Int).Set(amount)}
	}

	g := &core.Genesis{
		Config:     ChainConfig(in.L2ChainID),
		Nonce:      0,
		Timestamp:  Timestamp,
		ExtraData:  []byte{},
		GasLimit:   GasLimit,
		Difficulty: big.NewInt(0),
		Mixhash:    common.Hash{},
		Coinbase:   common.Address{},
		Alloc:      alloc,
	}
	return &Result{Genesis: g, Hash: Hash(g), Implementations: impls}, nil
}

// ChainConfig activates every fork up to Berlin at block zero.
func ChainConfig(l2ChainID uint64) *params.ChainConfig {
	return &params.ChainConfig{
		ChainID:             new(big.Int).SetUint64(l2ChainID),
		HomesteadBlock:      big.NewInt(0),
		EIP150Block:         big.NewInt(0),
		EIP155Block:         big.NewInt(0),
		EIP158Block:         big.NewInt(0),
		ByzantiumBlock:      big.NewInt(0),
		ConstantinopleBlock: big.NewInt(0),
		PetersburgBlock:     big.NewInt(0),
		IstanbulBlock:       big.NewInt(0),
		MuirGlacierBlock:    big.NewInt(0),
		BerlinBlock:         big.NewInt(0),
	}
}

func proxyAdminAccount(in Input) (types.Account, error) {
	a, err := in.Artifacts.Artifact(contracts.G1G2ProxyAdmin)
	if err != nil {
		return types.Account{}, err
	}
	code, err := a.DeployedCode()
	if err != nil {
		return types.Account{}, err
	}
	storage, err := ComputeStorageSlots(a.StorageLayout, StorageValues{"_owner": in.Deployer})
	if err != nil {
		return types.Account{}, fmt.Errorf("%s storage: %w", contracts.G1G2ProxyAdmin, err)
	}
	return types.Account{Code: code, Storage: storage, Balance: new(big.Int)}, nil
}

// proxyVariables is the initialized state of each proxy, laid out with the
// storage layout of the implementation behind it.
func proxyVariables(role string, in Input) StorageValues {
	vars := StorageValues{
		"_initialized": uint64(1),
		"_owner":       in.Deployer,
	}
	if role == contracts.AddressManager {
		vars["addresses"] = map[common.Hash]common.Address{
			addressKey(contracts.KeyCrossChainChannel): CrossChainChannelAddr,
			addressKey(contracts.KeyRollup):            L2RollupAddr,
			addressKey(contracts.KeyEscrow):            L2EscrowAddr,
		}
		vars["remoteAddresses"] = map[common.Hash]common.Address{
			addressKey(contracts.KeyCrossChainChannel): in.L1CrossChainChannel,
			addressKey(contracts.KeyEscrow):            in.L1Escrow,
		}
		return vars
	}

	vars["_status"] = uint64(1) // _NOT_ENTERED
	vars["_addressManager"] = AddressManagerAddr
	if role == contracts.L2Rollup {
		vars["ancestorsHash"] = AncestorsHash(in.L2ChainID)
	}
	return vars
}

// addressKey is keccak256(abi.encodePacked(name)).
func addressKey(name string) common.Hash {
	return crypto.Keccak256Hash([]byte(name))
}

// AncestorsHash is the initial L2Rollup ancestors hash:
// keccak256(abi.encodePacked(chainId, number, baseFee, bytes32[10] ancestors))
// with number, baseFee and every ancestor zero.
func AncestorsHash(l2ChainID uint64) common.Hash {
	buf := make([]byte, (3+maxAncestors)*32)
	new(big.Int).SetUint64(l2ChainID).FillBytes(buf[:32])
	return crypto.Keccak256Hash(buf)
}

// Hash returns the genesis block hash.
func Hash(g *core.Genesis) common.Hash {
	return g.ToBlock().Hash()
}

// HashFile computes the block hash of a genesis JSON file.
func HashFile(path string) (common.Hash, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return common.Hash{}, fmt.Errorf("read genesis: %w", err)
	}
	var g core.Genesis
	if err := json.Unmarshal(data, &g); err != nil {
		return common.Hash{}, fmt.Errorf("decode genesis: %w", err)
	}
	return Hash(&g), nil
}

