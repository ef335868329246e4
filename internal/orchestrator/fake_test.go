package orchestrator

import (
	"bytes"
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/mock"
)

type sentCall struct {
	to   common.Address
	data []byte
}

type deployment struct {
	addr common.Address
	code []byte
}

// fakeChain confirms every transaction instantly. Contract addresses follow
// CREATE from a fixed sender, and upgrade calls move the implementation it
// reports for a proxy.
type fakeChain struct {
	mu sync.Mutex

	id    uint64
	from  common.Address
	nonce uint64

	deploys []deployment
	calls   []sentCall
	impls   map[common.Address]common.Address

	// onDeploy and onCall may inject failures; a failed transaction does
	// not consume a nonce.
	onDeploy func(code []byte) error
	onCall   func(to common.Address, data []byte) error
}

func newFakeChain(id uint64) *fakeChain {
	return &fakeChain{
		id:    id,
		from:  common.BigToAddress(common.Big1),
		impls: make(map[common.Address]common.Address),
	}
}

func (f *fakeChain) ChainID() uint64         { return f.id }
func (f *fakeChain) Address() common.Address { return f.from }

func (f *fakeChain) Deploy(_ context.Context, code []byte) (common.Address, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.onDeploy != nil {
		if err := f.onDeploy(code); err != nil {
			return common.Address{}, err
		}
	}
	addr := crypto.CreateAddress(f.from, f.nonce)
	f.nonce++
	f.deploys = append(f.deploys, deployment{addr: addr, code: bytes.Clone(code)})
	return addr, nil
}

func (f *fakeChain) Call(_ context.Context, to common.Address, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.onCall != nil {
		if err := f.onCall(to, data); err != nil {
			return err
		}
	}
	f.nonce++
	f.calls = append(f.calls, sentCall{to: to, data: bytes.Clone(data)})

	if isUpgrade(data) {
		proxy, impl := decodeUpgrade(data)
		f.impls[proxy] = impl
	}
	return nil
}

func (f *fakeChain) Implementation(_ context.Context, proxy common.Address) (common.Address, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.impls[proxy], nil
}

func (f *fakeChain) deployCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.deploys)
}

func (f *fakeChain) upgradeCalls() []sentCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []sentCall
	for _, c := range f.calls {
		if isUpgrade(c.data) {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeChain) deployedCode(addr common.Address) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, d := range f.deploys {
		if d.addr == addr {
			return d.code
		}
	}
	return nil
}

func isUpgrade(data []byte) bool {
	return len(data) == 4+64 && bytes.Equal(data[:4], funcUpgrade.Selector[:])
}

func decodeUpgrade(data []byte) (proxy, impl common.Address) {
	return common.BytesToAddress(data[4:36]), common.BytesToAddress(data[36:68])
}

// mockChain is a testify double for asserting exact calls.
type mockChain struct {
	mock.Mock
	id uint64
}

func (m *mockChain) ChainID() uint64 { return m.id }

func (m *mockChain) Address() common.Address {
	return common.BigToAddress(common.Big2)
}

func (m *mockChain) Deploy(ctx context.Context, code []byte) (common.Address, error) {
	args := m.Called(ctx, code)
	return args.Get(0).(common.Address), args.Error(1)
}

func (m *mockChain) Call(ctx context.Context, to common.Address, data []byte) error {
	return m.Called(ctx, to, data).Error(0)
}

func (m *mockChain) Implementation(ctx context.Context, proxy common.Address) (common.Address, error) {
	args := m.Called(ctx, proxy)
	return args.Get(0).(common.Address), args.Error(1)
}

var (
	_ Chain = (*fakeChain)(nil)
	_ Chain = (*mockChain)(nil)
)
