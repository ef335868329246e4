package orchestrator

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/myronchain/ethbeijing-rollup-tools/internal/registry"
)

// PurgeTarget selects what Purge removes.
type PurgeTarget string

const (
	// PurgeL1 removes every record settled on an L1 chain, L2 records
	// included.
	PurgeL1 PurgeTarget = "l1"
	// PurgeL2 removes the records of one rollup's L2 chain.
	PurgeL2 PurgeTarget = "l2"
	// PurgeAll empties the registry.
	PurgeAll PurgeTarget = "all"
)

// Purger removes registry records. It never touches a chain.
type Purger struct {
	store registry.Store
	opts  Options
}

// NewPurger creates a Purger.
func NewPurger(store registry.Store, opts Options) *Purger {
	return &Purger{store: store, opts: opts.withDefaults()}
}

// Purge removes the records selected by target. l2ChainID is only read for
// PurgeL2 and l1ChainID is ignored by PurgeAll.
func (p *Purger) Purge(ctx context.Context, target PurgeTarget, l1ChainID, l2ChainID uint64) error {
	var (
		key string
		fn  func(ctx context.Context) error
	)
	switch target {
	case PurgeAll:
		key = "all"
		fn = p.store.DeleteAll
	case PurgeL1:
		if l1ChainID == 0 {
			return fmt.Errorf("purge %s: l1 chain id is required", target)
		}
		key = registry.L1Scope(l1ChainID).String()
		fn = func(ctx context.Context) error { return p.store.DeleteL1(ctx, l1ChainID) }
	case PurgeL2:
		if l1ChainID == 0 || l2ChainID == 0 {
			return fmt.Errorf("purge %s: l1 and l2 chain ids are required", target)
		}
		key = rollupLockKey(l1ChainID, l2ChainID)
		fn = func(ctx context.Context) error { return p.store.DeleteL2(ctx, l1ChainID, l2ChainID) }
	default:
		return fmt.Errorf("unknown purge target %q", target)
	}

	return run(ctx, p.opts, "clear", []string{key},
		[]any{slog.String("target", string(target))},
		func(ctx context.Context, logger *slog.Logger) error {
			if err := fn(ctx); err != nil {
				return fmt.Errorf("purge %s: %w", target, err)
			}
			logger.Info("registry records purged")
			return nil
		},
	)
}
