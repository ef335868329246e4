package genesis

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/myronchain/ethbeijing-rollup-tools/internal/contracts"
)

// ImplementationSalt is keccak256("<name>_<l2ChainID>").
func ImplementationSalt(name string, l2ChainID uint64) common.Hash {
	return crypto.Keccak256Hash([]byte(fmt.Sprintf("%s_%d", name, l2ChainID)))
}

// ImplementationAddress derives the genesis address of an L2
// implementation. The init code hash is taken over the creation bytecode
// hex string, not the decoded bytes.
func ImplementationAddress(deployer common.Address, l2ChainID uint64, a *contracts.Artifact) common.Address {
	salt := ImplementationSalt(a.ContractName, l2ChainID)
	return crypto.CreateAddress2(deployer, salt, a.InitCodeHash().Bytes())
}
