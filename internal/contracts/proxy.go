package contracts

import "github.com/ethereum/go-ethereum/common"

// EIP-1967 proxy slots.
var (
	// bytes32(uint256(keccak256('eip1967.proxy.implementation')) - 1)
	ImplementationSlot = common.HexToHash("0x360894a13ba1a3210667c828492db98dca3e2076cc3735a920a3ca505d382bbc")
	// bytes32(uint256(keccak256('eip1967.proxy.admin')) - 1)
	AdminSlot = common.HexToHash("0xb53127684a568b3173ae13b9f8a6016e243e63b6e8ee1178d6a717850b5d6103")
)
