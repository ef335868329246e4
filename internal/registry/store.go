// Package registry persists logic contracts, sealed release bundles, rollup
// instances and their L2 genesis.
package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a write would silently replace different
	// content stored under the same key.
	ErrConflict = errors.New("conflicting record already stored")
	// ErrInvalidRecord is returned for records missing required fields.
	ErrInvalidRecord = errors.New("invalid record")
	// ErrVersionRegression is returned when a rollup version would decrease.
	ErrVersionRegression = errors.New("rollup version cannot decrease")
)

// Store is the persistence contract consumed by the orchestrators.
type Store interface {
	// GetLogic returns the logic record for codeHash, or ErrNotFound.
	GetLogic(ctx context.Context, scope Scope, codeHash common.Hash) (*LogicRecord, error)
	// GetLogics returns the records matching any of codeHashes. Unknown hashes
	// are skipped, so the result may be shorter than the input.
	GetLogics(ctx context.Context, scope Scope, codeHashes []common.Hash) ([]LogicRecord, error)
	// GetLogicByName returns the earliest registered record named name.
	GetLogicByName(ctx context.Context, scope Scope, name string) (*LogicRecord, error)
	// SaveLogics inserts records. Re-inserting an identical record is a
	// no-op; a different record under the same code hash is ErrConflict.
	SaveLogics(ctx context.Context, records ...LogicRecord) error

	// SaveBundle seals b. Identical content is a no-op; different content is
	// ErrConflict unless overwrite is set.
	SaveBundle(ctx context.Context, b *VersionedBundle, overwrite bool) error
	GetBundle(ctx context.Context, scope Scope, version uint64) (*VersionedBundle, error)
	// LatestBundle returns the bundle with the highest version in scope.
	LatestBundle(ctx context.Context, scope Scope) (*VersionedBundle, error)

	// SaveRollup creates the instance. Identical content is a no-op,
	// anything else already stored for the pair is ErrConflict.
	SaveRollup(ctx context.Context, r *RollupInstance) error
	GetRollup(ctx context.Context, l1ChainID, l2ChainID uint64) (*RollupInstance, error)
	ListRollups(ctx context.Context) ([]*RollupInstance, error)
	// UpdateRollupVersion moves an existing instance to version. Returns
	// ErrNotFound for unknown instances and ErrVersionRegression when
	// version is lower than the stored one.
	UpdateRollupVersion(ctx context.Context, l1ChainID, l2ChainID, version uint64) error

	// SaveGenesis upserts the genesis of an instance.
	SaveGenesis(ctx context.Context, g *GenesisRecord) error
	GetGenesis(ctx context.Context, l1ChainID, l2ChainID uint64) (*GenesisRecord, error)

	// DeleteAll purges every record.
	DeleteAll(ctx context.Context) error
	// DeleteL1 purges everything settled on l1ChainID, L2 records included.
	DeleteL1(ctx context.Context, l1ChainID uint64) error
	// DeleteL2 purges the L2 records, rollup instance and genesis of a pair.
	DeleteL2(ctx context.Context, l1ChainID, l2ChainID uint64) error

	Close() error
}

// checkedPut is the single insert-with-equality-check rule shared by every
// record kind and backend. It reports whether incoming must be written.
func checkedPut[T any](existing, incoming *T, equal func(a, b *T) bool, overwrite bool, key string) (bool, error) {
	if existing == nil {
		return true, nil
	}
	if equal(existing, incoming) {
		return false, nil
	}
	if overwrite {
		return true, nil
	}
	return false, fmt.Errorf("%w: %s", ErrConflict, key)
}

func logicEqual(a, b *LogicRecord) bool { return *a == *b }

func logicKey(scope Scope, codeHash common.Hash) string {
	return scope.String() + "/" + codeHash.Hex()
}

func bundleKey(scope Scope, version uint64) string {
	return fmt.Sprintf("%s/v%d", scope, version)
}

func rollupKey(l1ChainID, l2ChainID uint64) string {
	return fmt.Sprintf("%d/%d", l1ChainID, l2ChainID)
}
