package orchestrator

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/lmittmann/w3"

	"github.com/myronchain/ethbeijing-rollup-tools/internal/chain"
)

// Chain is the transaction collaborator of one layer. Every method returns
// once the transaction is confirmed.
type Chain interface {
	ChainID() uint64
	Address() common.Address
	Deploy(ctx context.Context, initCode []byte) (common.Address, error)
	Call(ctx context.Context, to common.Address, data []byte) error
	// Implementation reads the EIP-1967 implementation slot of proxy.
	Implementation(ctx context.Context, proxy common.Address) (common.Address, error)
}

var _ Chain = (*chain.Transactor)(nil)

// Admin calls with fixed signatures.
var (
	funcUpgrade          = w3.MustNewFunc("upgrade(address proxy, address implementation)", "")
	funcSetAddress       = w3.MustNewFunc("setAddress(string name, address addr)", "")
	funcSetRemoteAddress = w3.MustNewFunc("setRemoteAddress(string name, address addr)", "")
)
