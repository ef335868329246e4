package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	lru "github.com/hashicorp/golang-lru/v2"
)

// CachedStore is a read-through cache over another Store. Only logic
// records and bundles are cached; both are content-addressed and only
// change through SaveBundle overwrite or a purge, which invalidate here.
type CachedStore struct {
	Store

	logics  *lru.Cache[string, LogicRecord]
	bundles *lru.Cache[string, *VersionedBundle]
}

// NewCachedStore wraps inner with caches holding up to size entries each.
func NewCachedStore(inner Store, size int) (*CachedStore, error) {
	logics, err := lru.New[string, LogicRecord](size)
	if err != nil {
		return nil, fmt.Errorf("logic cache: %w", err)
	}
	bundles, err := lru.New[string, *VersionedBundle](size)
	if err != nil {
		return nil, fmt.Errorf("bundle cache: %w", err)
	}
	return &CachedStore{Store: inner, logics: logics, bundles: bundles}, nil
}

func (c *CachedStore) GetLogic(ctx context.Context, scope Scope, codeHash common.Hash) (*LogicRecord, error) {
	key := logicKey(scope, codeHash)
	if rec, ok := c.logics.Get(key); ok {
		return &rec, nil
	}
	rec, err := c.Store.GetLogic(ctx, scope, codeHash)
	if err != nil {
		return nil, err
	}
	c.logics.Add(key, *rec)
	return rec, nil
}

func (c *CachedStore) SaveLogics(ctx context.Context, records ...LogicRecord) error {
	if err := c.Store.SaveLogics(ctx, records...); err != nil {
		return err
	}
	for _, rec := range records {
		c.logics.Add(logicKey(rec.Scope, rec.CodeHash), rec)
	}
	return nil
}

func (c *CachedStore) GetBundle(ctx context.Context, scope Scope, version uint64) (*VersionedBundle, error) {
	key := bundleKey(scope, version)
	if b, ok := c.bundles.Get(key); ok {
		return b.clone(), nil
	}
	b, err := c.Store.GetBundle(ctx, scope, version)
	if err != nil {
		return nil, err
	}
	c.bundles.Add(key, b.clone())
	return b, nil
}

func (c *CachedStore) SaveBundle(ctx context.Context, b *VersionedBundle, overwrite bool) error {
	key := bundleKey(b.Scope, b.Version)
	err := c.Store.SaveBundle(ctx, b, overwrite)
	if err != nil {
		if errors.Is(err, ErrConflict) {
			c.bundles.Remove(key)
		}
		return err
	}
	c.bundles.Add(key, b.clone())
	return nil
}

func (c *CachedStore) DeleteAll(ctx context.Context) error {
	defer c.purge()
	return c.Store.DeleteAll(ctx)
}

func (c *CachedStore) DeleteL1(ctx context.Context, l1ChainID uint64) error {
	defer c.purge()
	return c.Store.DeleteL1(ctx, l1ChainID)
}

func (c *CachedStore) DeleteL2(ctx context.Context, l1ChainID, l2ChainID uint64) error {
	defer c.purge()
	return c.Store.DeleteL2(ctx, l1ChainID, l2ChainID)
}

func (c *CachedStore) purge() {
	c.logics.Purge()
	c.bundles.Purge()
}

var _ Store = (*CachedStore)(nil)
