// Package genesis builds the deterministic L2 genesis of a rollup: proxy
// predeploys at fixed addresses fronting CREATE2-derived implementations,
// with their storage computed from the compiler storage layouts.
package genesis

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/myronchain/ethbeijing-rollup-tools/internal/contracts"
)

// Predeploy addresses.
var (
	ProxyAdminAddr        = common.HexToAddress("0x4200000000000000000000000000000000000000")
	AddressManagerAddr    = common.HexToAddress("0x4200000000000000000000000000000000000001")
	L2RollupAddr          = common.HexToAddress("0x4200000000000000000000000000000000000002")
	CrossChainChannelAddr = common.HexToAddress("0x4200000000000000000000000000000000000003")
	L2EscrowAddr          = common.HexToAddress("0x4200000000000000000000000000000000000004")
)

// Predeploys maps every proxied L2 role to its proxy address.
var Predeploys = map[string]common.Address{
	contracts.AddressManager:    AddressManagerAddr,
	contracts.L2Rollup:          L2RollupAddr,
	contracts.CrossChainChannel: CrossChainChannelAddr,
	contracts.L2Escrow:          L2EscrowAddr,
}

const (
	// Timestamp is 2022-09-01T00:00:00Z.
	Timestamp uint64 = 1661961600
	GasLimit  uint64 = 50_000_000

	// maxAncestors is MAX_ANCESTORS_TO_CONSIDER of L2Rollup.
	maxAncestors = 10
)

// CrossChainChannelBalance is the premint of the L2 cross chain channel
// proxy: 1e12 ether.
var CrossChainChannelBalance = new(big.Int).Exp(big.NewInt(10), big.NewInt(30), nil)
