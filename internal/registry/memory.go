package registry

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// MemoryStore is a Store kept entirely in process memory. It backs dry runs
// and tests.
type MemoryStore struct {
	mu sync.RWMutex
	st *state
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{st: newState()}
}

func (m *MemoryStore) GetLogic(_ context.Context, scope Scope, codeHash common.Hash) (*LogicRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.getLogic(scope, codeHash)
}

func (m *MemoryStore) GetLogics(_ context.Context, scope Scope, codeHashes []common.Hash) ([]LogicRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.getLogics(scope, codeHashes), nil
}

func (m *MemoryStore) GetLogicByName(_ context.Context, scope Scope, name string) (*LogicRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.getLogicByName(scope, name)
}

func (m *MemoryStore) SaveLogics(_ context.Context, records ...LogicRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, err := m.st.putLogics(records)
	return err
}

func (m *MemoryStore) SaveBundle(_ context.Context, b *VersionedBundle, overwrite bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, err := m.st.putBundle(b, overwrite)
	return err
}

func (m *MemoryStore) GetBundle(_ context.Context, scope Scope, version uint64) (*VersionedBundle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.getBundle(scope, version)
}

func (m *MemoryStore) LatestBundle(_ context.Context, scope Scope) (*VersionedBundle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.latestBundle(scope)
}

func (m *MemoryStore) SaveRollup(_ context.Context, r *RollupInstance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, err := m.st.putRollup(r)
	return err
}

func (m *MemoryStore) GetRollup(_ context.Context, l1ChainID, l2ChainID uint64) (*RollupInstance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.getRollup(l1ChainID, l2ChainID)
}

func (m *MemoryStore) ListRollups(_ context.Context) ([]*RollupInstance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.listRollups(), nil
}

func (m *MemoryStore) UpdateRollupVersion(_ context.Context, l1ChainID, l2ChainID, version uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, err := m.st.updateRollupVersion(l1ChainID, l2ChainID, version)
	return err
}

func (m *MemoryStore) SaveGenesis(_ context.Context, g *GenesisRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.putGenesis(g)
}

func (m *MemoryStore) GetGenesis(_ context.Context, l1ChainID, l2ChainID uint64) (*GenesisRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.getGenesis(l1ChainID, l2ChainID)
}

func (m *MemoryStore) DeleteAll(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st = newState()
	return nil
}

func (m *MemoryStore) DeleteL1(_ context.Context, l1ChainID uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st.deleteWhere(matchL1(l1ChainID))
	return nil
}

func (m *MemoryStore) DeleteL2(_ context.Context, l1ChainID, l2ChainID uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st.deleteWhere(matchL2(l1ChainID, l2ChainID))
	return nil
}

func (m *MemoryStore) Close() error { return nil }

var _ Store = (*MemoryStore)(nil)
