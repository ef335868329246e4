package chain

import (
	"context"
	"encoding/hex"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient/simulated"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/myronchain/ethbeijing-rollup-tools/internal/config"
	"github.com/myronchain/ethbeijing-rollup-tools/internal/contracts"
)

const simulatedChainID = 1337

var testTxConfig = config.TxConfig{
	GasBufferPercent: 20,
	MaxGasLimit:      15_000_000,
	DefaultGasLimit:  200_000,
	ReceiptTimeout:   30 * time.Second,
}

// initCode wraps runtime code in a constructor that returns it.
func initCode(t *testing.T, runtimeHex string) []byte {
	t.Helper()
	runtime, err := hex.DecodeString(runtimeHex)
	require.NoError(t, err)
	require.Less(t, len(runtime), 256)
	n := byte(len(runtime))
	// PUSH1 n PUSH1 12 PUSH1 0 CODECOPY PUSH1 n PUSH1 0 RETURN
	ctor := []byte{0x60, n, 0x60, 0x0c, 0x60, 0x00, 0x39, 0x60, n, 0x60, 0x00, 0xf3}
	return append(ctor, runtime...)
}

func newSimulatedTransactor(t *testing.T) (*Transactor, *simulated.Backend) {
	t.Helper()

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	signer := NewLocalSignerFromKey(key, simulatedChainID)

	balance, _ := new(big.Int).SetString("100000000000000000000000", 10)
	backend := simulated.NewBackend(types.GenesisAlloc{
		signer.Address(): {Balance: balance},
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		tick := time.NewTicker(100 * time.Millisecond)
		defer tick.Stop()
		for {
			select {
			case <-tick.C:
				backend.Commit()
			case <-ctx.Done():
				return
			}
		}
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		_ = backend.Close()
	})

	return NewTransactor(backend.Client(), signer, testTxConfig, nil), backend
}

func TestTransactorDeployCallImplementation(t *testing.T) {
	tr, _ := newSimulatedTransactor(t)
	ctx := context.Background()

	// PUSH1 0 CALLDATALOAD PUSH32 <implementation slot> SSTORE STOP
	runtime := "600035" + "7f" + hex.EncodeToString(contracts.ImplementationSlot.Bytes()) + "5500"

	proxy, err := tr.Deploy(ctx, initCode(t, runtime))
	require.NoError(t, err)
	assert.NotEqual(t, common.Address{}, proxy)

	impl, err := tr.Implementation(ctx, proxy)
	require.NoError(t, err)
	assert.Equal(t, common.Address{}, impl)

	want := common.HexToAddress("0x00000000000000000000000000000000deadbeef")
	require.NoError(t, tr.Call(ctx, proxy, common.LeftPadBytes(want.Bytes(), 32)))

	impl, err = tr.Implementation(ctx, proxy)
	require.NoError(t, err)
	assert.Equal(t, want, impl)
}

func TestTransactorCallReverted(t *testing.T) {
	tr, _ := newSimulatedTransactor(t)
	ctx := context.Background()

	// PUSH1 0 PUSH1 0 REVERT
	target, err := tr.Deploy(ctx, initCode(t, "60006000fd"))
	require.NoError(t, err)

	err = tr.Call(ctx, target, []byte{0x01})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrReverted))
	assert.False(t, errors.Is(err, ErrTransient))
}

func TestTransactorDeployEmptyCode(t *testing.T) {
	tr, _ := newSimulatedTransactor(t)

	// STOP: creation succeeds but leaves no code behind.
	_, err := tr.Deploy(context.Background(), []byte{0x00})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no code at created address")
}

type mockClient struct {
	mock.Mock
}

func (m *mockClient) ChainID(ctx context.Context) (*big.Int, error) {
	args := m.Called(ctx)
	id, _ := args.Get(0).(*big.Int)
	return id, args.Error(1)
}

func (m *mockClient) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	args := m.Called(ctx, account)
	return args.Get(0).(uint64), args.Error(1)
}

func (m *mockClient) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	args := m.Called(ctx)
	price, _ := args.Get(0).(*big.Int)
	return price, args.Error(1)
}

func (m *mockClient) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	args := m.Called(ctx, msg)
	return args.Get(0).(uint64), args.Error(1)
}

func (m *mockClient) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	return m.Called(ctx, tx).Error(0)
}

func (m *mockClient) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	args := m.Called(ctx, txHash)
	receipt, _ := args.Get(0).(*types.Receipt)
	return receipt, args.Error(1)
}

func (m *mockClient) CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error) {
	args := m.Called(ctx, account, blockNumber)
	code, _ := args.Get(0).([]byte)
	return code, args.Error(1)
}

func (m *mockClient) StorageAt(ctx context.Context, account common.Address, key common.Hash, blockNumber *big.Int) ([]byte, error) {
	args := m.Called(ctx, account, key, blockNumber)
	word, _ := args.Get(0).([]byte)
	return word, args.Error(1)
}

func newMockTransactor(t *testing.T, cfg config.TxConfig) (*Transactor, *mockClient) {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	client := new(mockClient)
	return NewTransactor(client, NewLocalSignerFromKey(key, 5), cfg, nil), client
}

func TestGasLimit(t *testing.T) {
	tests := []struct {
		name     string
		estimate uint64
		err      error
		want     uint64
	}{
		{name: "buffered estimate", estimate: 100_000, want: 120_000},
		{name: "default on estimate failure", err: errors.New("execution reverted"), want: 240_000},
		{name: "capped", estimate: 14_000_000, want: 15_000_000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, client := newMockTransactor(t, testTxConfig)
			client.On("EstimateGas", mock.Anything, mock.Anything).Return(tt.estimate, tt.err)

			assert.Equal(t, tt.want, tr.gasLimit(context.Background(), ethereum.CallMsg{}))
			client.AssertExpectations(t)
		})
	}
}

func TestTransactorSendFailureIsTransient(t *testing.T) {
	tr, client := newMockTransactor(t, testTxConfig)
	client.On("PendingNonceAt", mock.Anything, tr.Address()).Return(uint64(7), nil)
	client.On("SuggestGasPrice", mock.Anything).Return(big.NewInt(1_000_000_000), nil)
	client.On("EstimateGas", mock.Anything, mock.Anything).Return(uint64(50_000), nil)
	client.On("SendTransaction", mock.Anything, mock.MatchedBy(func(tx *types.Transaction) bool {
		return tx.Nonce() == 7 && tx.Gas() == 60_000 && tx.GasPrice().Cmp(big.NewInt(1_500_000_000)) == 0
	})).Return(errors.New("connection refused"))

	err := tr.Call(context.Background(), common.HexToAddress("0x01"), nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTransient))
	client.AssertExpectations(t)
}

func TestTransactorNonceFailureIsTransient(t *testing.T) {
	tr, client := newMockTransactor(t, testTxConfig)
	client.On("PendingNonceAt", mock.Anything, tr.Address()).Return(uint64(0), errors.New("timeout"))

	_, err := tr.Deploy(context.Background(), []byte{0x00})
	assert.True(t, errors.Is(err, ErrTransient))
	client.AssertNotCalled(t, "SendTransaction", mock.Anything, mock.Anything)
}

func TestImplementationReadError(t *testing.T) {
	tr, client := newMockTransactor(t, testTxConfig)
	proxy := common.HexToAddress("0x42")
	client.On("StorageAt", mock.Anything, proxy, contracts.ImplementationSlot, (*big.Int)(nil)).
		Return(nil, errors.New("boom"))

	_, err := tr.Implementation(context.Background(), proxy)
	assert.True(t, errors.Is(err, ErrTransient))
}
