// Package contractstest provides synthetic contract artifacts for tests.
package contractstest

import (
	"encoding/json"
	"fmt"

	"github.com/myronchain/ethbeijing-rollup-tools/internal/contracts"
	"github.com/myronchain/ethbeijing-rollup-tools/internal/solc"
)

// Placeholder is a library placeholder as emitted by solc.
const Placeholder = "__$0123456789abcdef0123456789abcdef01$__"

const proxyABI = `[{"type":"constructor","inputs":[
  {"name":"_logic","type":"address"},
  {"name":"admin_","type":"address"},
  {"name":"_data","type":"bytes"}],"stateMutability":"payable"}]`

// ABI returns the fixture ABI of name: the proxy constructor, or the
// initializer the contract exposes.
func ABI(name string) json.RawMessage {
	var inputs string
	switch name {
	case contracts.G1G2TransparentUpgradeableProxy:
		return json.RawMessage(proxyABI)
	case contracts.AddressManager:
		inputs = ""
	case contracts.L1Rollup:
		inputs = `{"name":"_addressManager","type":"address"},{"name":"_l2ChainId","type":"uint256"},{"name":"_genesisHash","type":"bytes32"}`
	case contracts.CrossChainChannel, contracts.L1Escrow:
		inputs = `{"name":"_addressManager","type":"address"}`
	default:
		return json.RawMessage(`[]`)
	}
	return json.RawMessage(`[{"type":"function","name":"init","inputs":[` + inputs + `],"outputs":[],"stateMutability":"nonpayable"}]`)
}

var types = map[string]solc.StorageLayoutType{
	"t_uint8":   {Encoding: solc.EncodingInplace, Label: "uint8", NumberOfBytes: 1},
	"t_bool":    {Encoding: solc.EncodingInplace, Label: "bool", NumberOfBytes: 1},
	"t_uint256": {Encoding: solc.EncodingInplace, Label: "uint256", NumberOfBytes: 32},
	"t_address": {Encoding: solc.EncodingInplace, Label: "address", NumberOfBytes: 20},
	"t_bytes32": {Encoding: solc.EncodingInplace, Label: "bytes32", NumberOfBytes: 32},
	"t_contract(AddressManager)100": {
		Encoding: solc.EncodingInplace, Label: "contract AddressManager", NumberOfBytes: 20,
	},
	"t_mapping(t_bytes32,t_address)": {
		Encoding: solc.EncodingMapping, Label: "mapping(bytes32 => address)", NumberOfBytes: 32,
		Key: "t_bytes32", Value: "t_address",
	},
}

func entry(label string, slot, offset uint, typ string) solc.StorageLayoutEntry {
	return solc.StorageLayoutEntry{Label: label, Slot: slot, Offset: offset, Type: typ}
}

var initializable = []solc.StorageLayoutEntry{
	entry("_initialized", 0, 0, "t_uint8"),
	entry("_initializing", 0, 1, "t_bool"),
}

// Layouts follow the OpenZeppelin upgradeable base contracts.
var (
	ProxyAdminLayout = &solc.StorageLayout{
		Storage: []solc.StorageLayoutEntry{entry("_owner", 0, 0, "t_address")},
		Types:   types,
	}
	AddressManagerLayout = &solc.StorageLayout{
		Storage: append(append([]solc.StorageLayoutEntry{}, initializable...),
			entry("_owner", 51, 0, "t_address"),
			entry("addresses", 101, 0, "t_mapping(t_bytes32,t_address)"),
			entry("remoteAddresses", 102, 0, "t_mapping(t_bytes32,t_address)"),
		),
		Types: types,
	}
	ResolverLayout = &solc.StorageLayout{
		Storage: append(append([]solc.StorageLayoutEntry{}, initializable...),
			entry("_status", 1, 0, "t_uint256"),
			entry("_owner", 51, 0, "t_address"),
			entry("_addressManager", 101, 0, "t_contract(AddressManager)100"),
		),
		Types: types,
	}
	L2RollupLayout = &solc.StorageLayout{
		Storage: append(append([]solc.StorageLayoutEntry{}, ResolverLayout.Storage...),
			entry("ancestorsHash", 102, 0, "t_bytes32"),
		),
		Types: types,
	}
)

// Artifact returns a fixture artifact named name whose bytecode is derived
// from name and rev, so bumping rev changes the code hash.
func Artifact(name string, rev int) *contracts.Artifact {
	tag := fmt.Sprintf("%x", name)
	return &contracts.Artifact{
		ContractName:     name,
		ABI:              ABI(name),
		Bytecode:         contracts.Bytecode(fmt.Sprintf("0x60%s%02x", tag, rev)),
		DeployedBytecode: contracts.Bytecode(fmt.Sprintf("0x61%s%02x", tag, rev)),
	}
}

// Linked returns a fixture artifact linking against lib.
func Linked(name, lib string, rev int) *contracts.Artifact {
	a := Artifact(name, rev)
	a.Bytecode = contracts.Bytecode(fmt.Sprintf("0x6000%s%02x", Placeholder, rev))
	a.LinkReferences = contracts.LinkReferences{
		"contracts/" + lib + ".sol": {lib: {{Start: 2, Length: 20}}},
	}
	return a
}

// L1 returns a complete L1 artifact set at revision rev. Libraries are
// linked the way the L1 roles declare their dependencies.
func L1(rev int) contracts.Set {
	set := contracts.Set{
		contracts.G1G2ProxyAdmin:                  Artifact(contracts.G1G2ProxyAdmin, 0),
		contracts.G1G2TransparentUpgradeableProxy: Artifact(contracts.G1G2TransparentUpgradeableProxy, 0),
	}
	for _, role := range contracts.L1Roles {
		if len(role.DependsOn) > 0 {
			set[role.Name] = Linked(role.Name, role.DependsOn[0], rev)
			continue
		}
		set[role.Name] = Artifact(role.Name, rev)
	}
	return set
}

// L2 returns a complete L2 artifact set with storage layouts at revision
// rev.
func L2(rev int) contracts.Set {
	set := contracts.Set{
		contracts.G1G2ProxyAdmin:                  Artifact(contracts.G1G2ProxyAdmin, 0),
		contracts.G1G2TransparentUpgradeableProxy: Artifact(contracts.G1G2TransparentUpgradeableProxy, 0),
	}
	set[contracts.G1G2ProxyAdmin].StorageLayout = ProxyAdminLayout
	for _, role := range contracts.L2Roles.Names() {
		a := Artifact(role, rev)
		switch role {
		case contracts.AddressManager:
			a.StorageLayout = AddressManagerLayout
		case contracts.L2Rollup:
			a.StorageLayout = L2RollupLayout
		default:
			a.StorageLayout = ResolverLayout
		}
		set[role] = a
	}
	return set
}
