package registry

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrStoreCorrupted is returned when a store file cannot be decoded.
	ErrStoreCorrupted = errors.New("store file corrupted")
	// ErrStorePersist is returned when a store file cannot be written.
	ErrStorePersist = errors.New("failed to persist store file")
)

// File names inside the deployments directory.
const (
	FileL1Logics          = "l1_logics.json"
	FileL1VersionedLogics = "l1_versioned_logics.json"
	FileL2Logics          = "l2_logics.json"
	FileL2VersionedLogics = "l2_versioned_logics.json"
	FileRollupContracts   = "rollup_contracts.json"
	FileL2Genesis         = "l2_genesis.json"
)

// FileStore is a Store persisted as JSON files in a deployments directory.
// Every mutation rewrites the affected files atomically (temp file, fsync,
// rename).
type FileStore struct {
	mu  sync.RWMutex
	dir string
	st  *state
}

// NewFileStore opens or creates a store rooted at dir.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create directory: %w", err)
	}
	s := &FileStore{dir: dir}
	st, err := s.load()
	if err != nil {
		return nil, err
	}
	s.st = st
	return s, nil
}

// Dir returns the deployments directory.
func (s *FileStore) Dir() string {
	return s.dir
}

func (s *FileStore) load() (*state, error) {
	st := newState()

	var logics []LogicRecord
	for _, name := range []string{FileL1Logics, FileL2Logics} {
		var recs []LogicRecord
		if err := s.readFile(name, &recs); err != nil {
			return nil, err
		}
		logics = append(logics, recs...)
	}
	if _, err := st.putLogics(logics); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreCorrupted, err)
	}

	for _, name := range []string{FileL1VersionedLogics, FileL2VersionedLogics} {
		var bundles []*VersionedBundle
		if err := s.readFile(name, &bundles); err != nil {
			return nil, err
		}
		for _, b := range bundles {
			if _, err := st.putBundle(b, false); err != nil {
				return nil, fmt.Errorf("%w: %s: %v", ErrStoreCorrupted, name, err)
			}
		}
	}

	var rollups []*RollupInstance
	if err := s.readFile(FileRollupContracts, &rollups); err != nil {
		return nil, err
	}
	for _, r := range rollups {
		if _, err := st.putRollup(r); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrStoreCorrupted, FileRollupContracts, err)
		}
	}

	var genesis []*GenesisRecord
	if err := s.readFile(FileL2Genesis, &genesis); err != nil {
		return nil, err
	}
	for _, g := range genesis {
		if err := st.putGenesis(g); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrStoreCorrupted, FileL2Genesis, err)
		}
	}
	return st, nil
}

// readFile decodes name into v. Missing and empty files leave v untouched.
func (s *FileStore) readFile(name string, v any) error {
	f, err := os.Open(filepath.Join(s.dir, name))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	data, err := io.ReadAll(f)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrStoreCorrupted, name, err)
	}
	return nil
}

// writeFile writes v to name using temp file + rename.
func (s *FileStore) writeFile(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	path := filepath.Join(s.dir, name)
	tmpPath := path + ".tmp"

	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("%w: create temp: %v", ErrStorePersist, err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("%w: write: %v", ErrStorePersist, err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("%w: fsync: %v", ErrStorePersist, err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("%w: close: %v", ErrStorePersist, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("%w: rename: %v", ErrStorePersist, err)
	}
	return nil
}

// persistLocked rewrites every collection. Must be called with the write lock
// held.
func (s *FileStore) persistLocked() error {
	var l1Logics, l2Logics []LogicRecord
	for _, rec := range s.st.logics {
		if rec.Layer() == LayerL1 {
			l1Logics = append(l1Logics, rec)
		} else {
			l2Logics = append(l2Logics, rec)
		}
	}

	var l1Bundles, l2Bundles []*VersionedBundle
	for _, b := range s.st.bundles {
		if b.Layer() == LayerL1 {
			l1Bundles = append(l1Bundles, b)
		} else {
			l2Bundles = append(l2Bundles, b)
		}
	}
	byScopeVersion := func(a, b *VersionedBundle) int {
		return cmp.Or(
			cmp.Compare(a.L1ChainID, b.L1ChainID),
			cmp.Compare(a.L2ChainID, b.L2ChainID),
			cmp.Compare(a.Version, b.Version),
		)
	}
	slices.SortFunc(l1Bundles, byScopeVersion)
	slices.SortFunc(l2Bundles, byScopeVersion)

	genesis := make([]*GenesisRecord, 0, len(s.st.genesis))
	for _, g := range s.st.genesis {
		genesis = append(genesis, g)
	}
	slices.SortFunc(genesis, func(a, b *GenesisRecord) int {
		return cmp.Or(cmp.Compare(a.L1ChainID, b.L1ChainID), cmp.Compare(a.L2ChainID, b.L2ChainID))
	})

	files := []struct {
		name string
		v    any
	}{
		{FileL1Logics, nonNil(l1Logics)},
		{FileL2Logics, nonNil(l2Logics)},
		{FileL1VersionedLogics, nonNil(l1Bundles)},
		{FileL2VersionedLogics, nonNil(l2Bundles)},
		{FileRollupContracts, s.st.listRollups()},
		{FileL2Genesis, genesis},
	}
	for _, f := range files {
		if err := s.writeFile(f.name, f.v); err != nil {
			return err
		}
	}
	return nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// mutate applies fn and persists when it changed anything. A failed write
// reloads the last persisted state so memory never runs ahead of disk.
func (s *FileStore) mutate(fn func(st *state) (bool, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	changed, err := fn(s.st)
	if err != nil || !changed {
		return err
	}
	if err := s.persistLocked(); err != nil {
		if st, loadErr := s.load(); loadErr == nil {
			s.st = st
		}
		return err
	}
	return nil
}

func (s *FileStore) GetLogic(_ context.Context, scope Scope, codeHash common.Hash) (*LogicRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.getLogic(scope, codeHash)
}

func (s *FileStore) GetLogics(_ context.Context, scope Scope, codeHashes []common.Hash) ([]LogicRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.getLogics(scope, codeHashes), nil
}

func (s *FileStore) GetLogicByName(_ context.Context, scope Scope, name string) (*LogicRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.getLogicByName(scope, name)
}

func (s *FileStore) SaveLogics(_ context.Context, records ...LogicRecord) error {
	return s.mutate(func(st *state) (bool, error) { return st.putLogics(records) })
}

func (s *FileStore) SaveBundle(_ context.Context, b *VersionedBundle, overwrite bool) error {
	return s.mutate(func(st *state) (bool, error) { return st.putBundle(b, overwrite) })
}

func (s *FileStore) GetBundle(_ context.Context, scope Scope, version uint64) (*VersionedBundle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.getBundle(scope, version)
}

func (s *FileStore) LatestBundle(_ context.Context, scope Scope) (*VersionedBundle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.latestBundle(scope)
}

func (s *FileStore) SaveRollup(_ context.Context, r *RollupInstance) error {
	return s.mutate(func(st *state) (bool, error) { return st.putRollup(r) })
}

func (s *FileStore) GetRollup(_ context.Context, l1ChainID, l2ChainID uint64) (*RollupInstance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.getRollup(l1ChainID, l2ChainID)
}

func (s *FileStore) ListRollups(_ context.Context) ([]*RollupInstance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.listRollups(), nil
}

func (s *FileStore) UpdateRollupVersion(_ context.Context, l1ChainID, l2ChainID, version uint64) error {
	return s.mutate(func(st *state) (bool, error) {
		return st.updateRollupVersion(l1ChainID, l2ChainID, version)
	})
}

func (s *FileStore) SaveGenesis(_ context.Context, g *GenesisRecord) error {
	return s.mutate(func(st *state) (bool, error) { return true, st.putGenesis(g) })
}

func (s *FileStore) GetGenesis(_ context.Context, l1ChainID, l2ChainID uint64) (*GenesisRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.getGenesis(l1ChainID, l2ChainID)
}

func (s *FileStore) DeleteAll(_ context.Context) error {
	return s.mutate(func(st *state) (bool, error) {
		st.deleteWhere(matchAll)
		return true, nil
	})
}

func (s *FileStore) DeleteL1(_ context.Context, l1ChainID uint64) error {
	return s.mutate(func(st *state) (bool, error) {
		st.deleteWhere(matchL1(l1ChainID))
		return true, nil
	})
}

func (s *FileStore) DeleteL2(_ context.Context, l1ChainID, l2ChainID uint64) error {
	return s.mutate(func(st *state) (bool, error) {
		st.deleteWhere(matchL2(l1ChainID, l2ChainID))
		return true, nil
	})
}

// Close is a no-op; every mutation is already on disk.
func (s *FileStore) Close() error { return nil }

var _ Store = (*FileStore)(nil)
