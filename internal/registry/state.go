package registry

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/ethereum/go-ethereum/common"
)

// state is the unlocked in-memory record set shared by the memory and file
// backends. Logic records keep insertion order so name lookups return the
// earliest registration.
type state struct {
	logics   []LogicRecord
	logicIdx map[string]int
	bundles  map[string]*VersionedBundle
	rollups  map[string]*RollupInstance
	genesis  map[string]*GenesisRecord
}

func newState() *state {
	return &state{
		logicIdx: make(map[string]int),
		bundles:  make(map[string]*VersionedBundle),
		rollups:  make(map[string]*RollupInstance),
		genesis:  make(map[string]*GenesisRecord),
	}
}

func (s *state) getLogic(scope Scope, codeHash common.Hash) (*LogicRecord, error) {
	i, ok := s.logicIdx[logicKey(scope, codeHash)]
	if !ok {
		return nil, ErrNotFound
	}
	rec := s.logics[i]
	return &rec, nil
}

func (s *state) getLogics(scope Scope, codeHashes []common.Hash) []LogicRecord {
	out := make([]LogicRecord, 0, len(codeHashes))
	seen := make(map[common.Hash]bool, len(codeHashes))
	for _, h := range codeHashes {
		if seen[h] {
			continue
		}
		seen[h] = true
		if i, ok := s.logicIdx[logicKey(scope, h)]; ok {
			out = append(out, s.logics[i])
		}
	}
	return out
}

func (s *state) getLogicByName(scope Scope, name string) (*LogicRecord, error) {
	for _, rec := range s.logics {
		if rec.Scope == scope && rec.ContractName == name {
			return &rec, nil
		}
	}
	return nil, ErrNotFound
}

// putLogics validates the whole batch before touching state so a conflict
// leaves nothing half written. It reports whether anything changed.
func (s *state) putLogics(records []LogicRecord) (bool, error) {
	var fresh []LogicRecord
	pending := make(map[string]LogicRecord, len(records))
	for _, rec := range records {
		if err := rec.validate(); err != nil {
			return false, err
		}
		key := logicKey(rec.Scope, rec.CodeHash)
		existing, _ := s.getLogic(rec.Scope, rec.CodeHash)
		if p, ok := pending[key]; ok {
			existing = &p
		}
		write, err := checkedPut(existing, &rec, logicEqual, false, key)
		if err != nil {
			return false, err
		}
		if write {
			pending[key] = rec
			fresh = append(fresh, rec)
		}
	}
	for _, rec := range fresh {
		s.logicIdx[logicKey(rec.Scope, rec.CodeHash)] = len(s.logics)
		s.logics = append(s.logics, rec)
	}
	return len(fresh) > 0, nil
}

func (s *state) putBundle(b *VersionedBundle, overwrite bool) (bool, error) {
	if err := b.validate(); err != nil {
		return false, err
	}
	key := bundleKey(b.Scope, b.Version)
	write, err := checkedPut(s.bundles[key], b, (*VersionedBundle).Equal, overwrite, key)
	if err != nil || !write {
		return false, err
	}
	s.bundles[key] = b.clone()
	return true, nil
}

func (s *state) getBundle(scope Scope, version uint64) (*VersionedBundle, error) {
	b, ok := s.bundles[bundleKey(scope, version)]
	if !ok {
		return nil, ErrNotFound
	}
	return b.clone(), nil
}

func (s *state) latestBundle(scope Scope) (*VersionedBundle, error) {
	var latest *VersionedBundle
	for _, b := range s.bundles {
		if b.Scope != scope {
			continue
		}
		if latest == nil || b.Version > latest.Version {
			latest = b
		}
	}
	if latest == nil {
		return nil, ErrNotFound
	}
	return latest.clone(), nil
}

func (s *state) putRollup(r *RollupInstance) (bool, error) {
	if err := r.validate(); err != nil {
		return false, err
	}
	key := rollupKey(r.L1ChainID, r.L2ChainID)
	write, err := checkedPut(s.rollups[key], r, (*RollupInstance).Equal, false, "rollup "+key)
	if err != nil || !write {
		return false, err
	}
	s.rollups[key] = r.clone()
	return true, nil
}

func (s *state) getRollup(l1ChainID, l2ChainID uint64) (*RollupInstance, error) {
	r, ok := s.rollups[rollupKey(l1ChainID, l2ChainID)]
	if !ok {
		return nil, ErrNotFound
	}
	return r.clone(), nil
}

func (s *state) listRollups() []*RollupInstance {
	out := make([]*RollupInstance, 0, len(s.rollups))
	for _, r := range s.rollups {
		out = append(out, r.clone())
	}
	slices.SortFunc(out, func(a, b *RollupInstance) int {
		return cmp.Or(cmp.Compare(a.L1ChainID, b.L1ChainID), cmp.Compare(a.L2ChainID, b.L2ChainID))
	})
	return out
}

func (s *state) updateRollupVersion(l1ChainID, l2ChainID, version uint64) (bool, error) {
	r, ok := s.rollups[rollupKey(l1ChainID, l2ChainID)]
	if !ok {
		return false, ErrNotFound
	}
	if version < r.Version {
		return false, fmt.Errorf("%w: stored %d, requested %d", ErrVersionRegression, r.Version, version)
	}
	if version == r.Version {
		return false, nil
	}
	r.Version = version
	return true, nil
}

func (s *state) putGenesis(g *GenesisRecord) error {
	if err := g.validate(); err != nil {
		return err
	}
	c := *g
	s.genesis[rollupKey(g.L1ChainID, g.L2ChainID)] = &c
	return nil
}

func (s *state) getGenesis(l1ChainID, l2ChainID uint64) (*GenesisRecord, error) {
	g, ok := s.genesis[rollupKey(l1ChainID, l2ChainID)]
	if !ok {
		return nil, ErrNotFound
	}
	c := *g
	return &c, nil
}

// deleteWhere drops every record whose scope, or chain pair, matches.
func (s *state) deleteWhere(match func(l1ChainID, l2ChainID uint64) bool) {
	kept := s.logics[:0]
	for _, rec := range s.logics {
		if !match(rec.L1ChainID, rec.L2ChainID) {
			kept = append(kept, rec)
		}
	}
	s.logics = kept
	s.logicIdx = make(map[string]int, len(kept))
	for i, rec := range s.logics {
		s.logicIdx[logicKey(rec.Scope, rec.CodeHash)] = i
	}
	for k, b := range s.bundles {
		if match(b.L1ChainID, b.L2ChainID) {
			delete(s.bundles, k)
		}
	}
	for k, r := range s.rollups {
		if match(r.L1ChainID, r.L2ChainID) {
			delete(s.rollups, k)
		}
	}
	for k, g := range s.genesis {
		if match(g.L1ChainID, g.L2ChainID) {
			delete(s.genesis, k)
		}
	}
}

func matchL1(l1ChainID uint64) func(uint64, uint64) bool {
	return func(l1, _ uint64) bool { return l1 == l1ChainID }
}

// matchL2 only matches L2-scoped records; the L1 contracts shared by other
// rollups on the same L1 survive.
func matchL2(l1ChainID, l2ChainID uint64) func(uint64, uint64) bool {
	return func(l1, l2 uint64) bool { return l1 == l1ChainID && l2 == l2ChainID }
}

func matchAll(uint64, uint64) bool { return true }
