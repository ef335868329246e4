package chain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/myronchain/ethbeijing-rollup-tools/internal/config"
	"github.com/myronchain/ethbeijing-rollup-tools/internal/contracts"
)

var (
	// ErrTransient marks RPC failures that may succeed on retry.
	ErrTransient = errors.New("transient chain error")
	// ErrReverted is returned when a mined transaction has a failed status.
	ErrReverted = errors.New("transaction reverted")
)

// Transactor sends transactions from a single deployer account and waits for
// each one to be mined before returning. Sends are serialized so nonces never
// race.
type Transactor struct {
	client Client
	signer TransactionSigner
	cfg    config.TxConfig
	logger *slog.Logger

	mu sync.Mutex
}

// NewTransactor creates a Transactor.
func NewTransactor(client Client, signer TransactionSigner, cfg config.TxConfig, logger *slog.Logger) *Transactor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Transactor{
		client: client,
		signer: signer,
		cfg:    cfg,
		logger: logger.With(slog.String("chain_id", signer.ChainID().String())),
	}
}

// Address returns the deployer address.
func (t *Transactor) Address() common.Address {
	return t.signer.Address()
}

// ChainID returns the chain id the signer signs for.
func (t *Transactor) ChainID() uint64 {
	return t.signer.ChainID().Uint64()
}

// Deploy sends a contract creation with the given init code (creation
// bytecode followed by the packed constructor arguments) and returns the
// created address.
func (t *Transactor) Deploy(ctx context.Context, initCode []byte) (common.Address, error) {
	receipt, err := t.send(ctx, nil, initCode)
	if err != nil {
		return common.Address{}, err
	}

	code, err := t.client.CodeAt(ctx, receipt.ContractAddress, receipt.BlockNumber)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: code at %s: %w", ErrTransient, receipt.ContractAddress.Hex(), err)
	}
	if len(code) == 0 {
		return common.Address{}, fmt.Errorf("no code at created address %s", receipt.ContractAddress.Hex())
	}
	return receipt.ContractAddress, nil
}

// Call sends a transaction with calldata to an existing contract.
func (t *Transactor) Call(ctx context.Context, to common.Address, data []byte) error {
	_, err := t.send(ctx, &to, data)
	return err
}

// Implementation reads the EIP-1967 implementation slot of proxy.
func (t *Transactor) Implementation(ctx context.Context, proxy common.Address) (common.Address, error) {
	word, err := t.client.StorageAt(ctx, proxy, contracts.ImplementationSlot, nil)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: implementation of %s: %w", ErrTransient, proxy.Hex(), err)
	}
	return common.BytesToAddress(word), nil
}

func (t *Transactor) send(ctx context.Context, to *common.Address, data []byte) (*types.Receipt, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	from := t.signer.Address()

	nonce, err := t.client.PendingNonceAt(ctx, from)
	if err != nil {
		return nil, fmt.Errorf("%w: get nonce: %w", ErrTransient, err)
	}

	gasPrice, err := t.gasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: get gas price: %w", ErrTransient, err)
	}

	gasLimit := t.gasLimit(ctx, ethereum.CallMsg{
		From:     from,
		To:       to,
		GasPrice: gasPrice,
		Value:    big.NewInt(0),
		Data:     data,
	})

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       to,
		Value:    big.NewInt(0),
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     data,
	})

	signedTx, err := t.signer.SignTransaction(ctx, tx)
	if err != nil {
		return nil, err
	}

	if err := t.client.SendTransaction(ctx, signedTx); err != nil {
		return nil, fmt.Errorf("%w: send transaction: %w", ErrTransient, err)
	}

	t.logger.Debug("transaction submitted",
		slog.String("tx_hash", signedTx.Hash().Hex()),
		slog.Uint64("nonce", nonce),
		slog.Uint64("gas_limit", gasLimit),
	)

	waitCtx, cancel := context.WithTimeout(ctx, t.cfg.ReceiptTimeout)
	defer cancel()

	receipt, err := bind.WaitMined(waitCtx, t.client, signedTx)
	if err != nil {
		return nil, fmt.Errorf("%w: wait for %s: %w", ErrTransient, signedTx.Hash().Hex(), err)
	}

	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, fmt.Errorf("%w: %s in block %d", ErrReverted, signedTx.Hash().Hex(), receipt.BlockNumber.Uint64())
	}

	t.logger.Debug("transaction confirmed",
		slog.String("tx_hash", signedTx.Hash().Hex()),
		slog.Uint64("block_number", receipt.BlockNumber.Uint64()),
		slog.Uint64("gas_used", receipt.GasUsed),
	)
	return receipt, nil
}

// gasPrice boosts the suggested price by 50% for faster inclusion.
func (t *Transactor) gasPrice(ctx context.Context) (*big.Int, error) {
	gasPrice, err := t.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, err
	}
	boosted := new(big.Int).Mul(gasPrice, big.NewInt(150))
	return boosted.Div(boosted, big.NewInt(100)), nil
}

func (t *Transactor) gasLimit(ctx context.Context, msg ethereum.CallMsg) uint64 {
	gasLimit, err := t.client.EstimateGas(ctx, msg)
	if err != nil {
		gasLimit = t.cfg.DefaultGasLimit
		t.logger.Warn("gas estimation failed, using default",
			slog.Uint64("gas_limit", gasLimit),
			slog.String("error", err.Error()),
		)
	}

	gasLimit = gasLimit * (100 + t.cfg.GasBufferPercent) / 100

	if gasLimit > t.cfg.MaxGasLimit {
		t.logger.Warn("gas limit capped to max",
			slog.Uint64("original", gasLimit),
			slog.Uint64("capped", t.cfg.MaxGasLimit),
		)
		gasLimit = t.cfg.MaxGasLimit
	}
	return gasLimit
}
