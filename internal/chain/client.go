// Package chain submits deployer transactions to an L1 or L2 node and reads
// back the state the orchestrator needs.
package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"golang.org/x/sync/errgroup"
)

// Client is the subset of the node API used by the Transactor.
// *ethclient.Client and the simulated backend client both satisfy it.
type Client interface {
	ChainID(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
	StorageAt(ctx context.Context, account common.Address, key common.Hash, blockNumber *big.Int) ([]byte, error)
}

var _ Client = (*ethclient.Client)(nil)

// Dial connects to the node at rpcURL.
func Dial(ctx context.Context, rpcURL string) (*ethclient.Client, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", rpcURL, err)
	}
	return client, nil
}

// ChainIDByRPC asks the node at rpcURL for its chain id.
func ChainIDByRPC(ctx context.Context, rpcURL string) (uint64, error) {
	client, err := Dial(ctx, rpcURL)
	if err != nil {
		return 0, err
	}
	defer client.Close()

	id, err := client.ChainID(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: chain id of %s: %w", ErrTransient, rpcURL, err)
	}
	if !id.IsUint64() {
		return 0, fmt.Errorf("chain id %s of %s overflows uint64", id, rpcURL)
	}
	return id.Uint64(), nil
}

// ChainIDs resolves the L1 and L2 chain ids concurrently.
func ChainIDs(ctx context.Context, l1URL, l2URL string) (l1, l2 uint64, err error) {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		l1, err = ChainIDByRPC(gctx, l1URL)
		return err
	})
	g.Go(func() error {
		var err error
		l2, err = ChainIDByRPC(gctx, l2URL)
		return err
	})
	if err := g.Wait(); err != nil {
		return 0, 0, err
	}
	return l1, l2, nil
}
