package contracts

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/myronchain/ethbeijing-rollup-tools/internal/solc"
)

// Artifact is a compiled contract in hardhat artifact format. StorageLayout
// is only present when the compiler was asked for it.
type Artifact struct {
	ContractName           string              `json:"contractName"`
	SourceName             string              `json:"sourceName,omitempty"`
	ABI                    json.RawMessage     `json:"abi"`
	Bytecode               Bytecode            `json:"bytecode"`
	DeployedBytecode       Bytecode            `json:"deployedBytecode"`
	LinkReferences         LinkReferences      `json:"linkReferences,omitempty"`
	DeployedLinkReferences LinkReferences      `json:"deployedLinkReferences,omitempty"`
	StorageLayout          *solc.StorageLayout `json:"storageLayout,omitempty"`
}

// LinkReferences maps source file to library name to placeholder positions.
type LinkReferences map[string]map[string][]LinkReference

// LinkReference is a byte range inside bytecode holding a library placeholder.
type LinkReference struct {
	Start  int `json:"start"`
	Length int `json:"length"`
}

// Bytecode is the hex string of compiled code, possibly with unresolved
// library placeholders. It handles both formats:
// - Simple string: "0x608060..."
// - Object with "object" field: {"object": "0x608060..."}
type Bytecode string

// UnmarshalJSON handles both string and object bytecode formats.
func (b *Bytecode) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*b = Bytecode(s)
		return nil
	}

	var obj struct {
		Object string `json:"object"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("bytecode must be a string or an object: %w", err)
	}
	if obj.Object != "" && !strings.HasPrefix(obj.Object, "0x") {
		obj.Object = "0x" + obj.Object
	}
	*b = Bytecode(obj.Object)
	return nil
}

// CodeHash identifies a logic contract: keccak256 over the UTF-8 bytes of
// the unlinked deployed bytecode hex string.
func (a *Artifact) CodeHash() common.Hash {
	return crypto.Keccak256Hash([]byte(a.DeployedBytecode))
}

// InitCodeHash is keccak256 over the UTF-8 bytes of the creation bytecode
// hex string, as used for CREATE2 address derivation of L2 implementations.
func (a *Artifact) InitCodeHash() common.Hash {
	return crypto.Keccak256Hash([]byte(a.Bytecode))
}

// Libraries returns the library names the creation bytecode links against.
func (a *Artifact) Libraries() []string {
	var libs []string
	for _, byLib := range a.LinkReferences {
		for lib := range byLib {
			libs = append(libs, lib)
		}
	}
	return libs
}

// LinkedBytecode returns the creation bytecode with every library
// placeholder replaced by its address from libs.
func (a *Artifact) LinkedBytecode(libs map[string]common.Address) ([]byte, error) {
	return link(a.ContractName, string(a.Bytecode), a.LinkReferences, libs)
}

// DeployedCode returns the runtime bytecode. Contracts that need libraries
// at runtime are rejected.
func (a *Artifact) DeployedCode() ([]byte, error) {
	return link(a.ContractName, string(a.DeployedBytecode), a.DeployedLinkReferences, nil)
}

func link(name, code string, refs LinkReferences, libs map[string]common.Address) ([]byte, error) {
	if code == "" || code == "0x" {
		return nil, fmt.Errorf("%s: empty bytecode", name)
	}
	buf := []byte(code)
	for _, byLib := range refs {
		for lib, positions := range byLib {
			addr, ok := libs[lib]
			if !ok {
				return nil, fmt.Errorf("%s: library %s is not linked", name, lib)
			}
			hexAddr := []byte(strings.ToLower(addr.Hex()[2:]))
			for _, ref := range positions {
				// Offsets count bytes of code, the string carries "0x".
				at := 2 + ref.Start*2
				if ref.Length != common.AddressLength || at+len(hexAddr) > len(buf) {
					return nil, fmt.Errorf("%s: bad link reference for %s at %d", name, lib, ref.Start)
				}
				copy(buf[at:], hexAddr)
			}
		}
	}
	if i := bytes.Index(buf, []byte("__")); i >= 0 {
		return nil, fmt.Errorf("%s: unlinked placeholder at offset %d", name, (i-2)/2)
	}
	out, err := hexutil.Decode(string(buf))
	if err != nil {
		return nil, fmt.Errorf("%s: decode bytecode: %w", name, err)
	}
	return out, nil
}

// ParsedABI parses the artifact ABI.
func (a *Artifact) ParsedABI() (abi.ABI, error) {
	parsed, err := abi.JSON(bytes.NewReader(a.ABI))
	if err != nil {
		return abi.ABI{}, fmt.Errorf("%s: parse abi: %w", a.ContractName, err)
	}
	return parsed, nil
}

// PackConstructor encodes constructor arguments.
func (a *Artifact) PackConstructor(args ...any) ([]byte, error) {
	parsed, err := a.ParsedABI()
	if err != nil {
		return nil, err
	}
	data, err := parsed.Pack("", args...)
	if err != nil {
		return nil, fmt.Errorf("%s: pack constructor: %w", a.ContractName, err)
	}
	return data, nil
}

// PackCall encodes a method call.
func (a *Artifact) PackCall(method string, args ...any) ([]byte, error) {
	parsed, err := a.ParsedABI()
	if err != nil {
		return nil, err
	}
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: pack %s: %w", a.ContractName, method, err)
	}
	return data, nil
}

// Source resolves artifacts by contract name.
type Source interface {
	Artifact(name string) (*Artifact, error)
}
