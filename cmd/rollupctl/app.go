package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/myronchain/ethbeijing-rollup-tools/internal/chain"
	"github.com/myronchain/ethbeijing-rollup-tools/internal/config"
	"github.com/myronchain/ethbeijing-rollup-tools/internal/contracts"
	"github.com/myronchain/ethbeijing-rollup-tools/internal/database"
	"github.com/myronchain/ethbeijing-rollup-tools/internal/orchestrator"
	"github.com/myronchain/ethbeijing-rollup-tools/internal/registry"
)

// app holds the long-lived collaborators of one command.
type app struct {
	store   registry.Store
	opts    orchestrator.Options
	closers []func()
}

func newApp(ctx context.Context) (*app, error) {
	a := &app{}
	store, err := a.openStore(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.store = store

	locker, err := a.newLocker(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.opts = orchestrator.Options{
		Logger:        logger,
		Locker:        locker,
		RetryAttempts: cfg.Tx.RetryAttempts,
		RetryDelay:    cfg.Tx.RetryDelay,
		Registry:      cfg.Registry,
	}
	return a, nil
}

func (a *app) openStore(ctx context.Context) (registry.Store, error) {
	var store registry.Store
	switch cfg.Store.Backend {
	case "memory":
		store = registry.NewMemoryStore()
	case "file":
		fs, err := registry.NewFileStore(cfg.Store.Dir)
		if err != nil {
			return nil, err
		}
		store = fs
	case "postgres":
		db, err := database.NewPostgres(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, db.Close)
		if err := database.RunMigrations(cfg.Database); err != nil {
			return nil, err
		}
		store = registry.NewPostgresStore(db.Pool())
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
	a.closers = append(a.closers, func() { _ = store.Close() })

	if cfg.Store.CacheSize > 0 {
		cached, err := registry.NewCachedStore(store, cfg.Store.CacheSize)
		if err != nil {
			return nil, err
		}
		store = cached
	}
	logger.Debug("registry opened", slog.String("backend", cfg.Store.Backend))
	return store, nil
}

func (a *app) newLocker(ctx context.Context) (orchestrator.Locker, error) {
	if cfg.Lock.Backend != "redis" {
		return orchestrator.NewLocalLocker(), nil
	}
	rdb, err := database.NewRedis(ctx, cfg.Redis)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() { _ = rdb.Close() })
	return orchestrator.NewRedisLocker(rdb.Client(), cfg.Lock.TTL, cfg.Lock.Prefix), nil
}

// Close releases collaborators in reverse order of creation.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// dialChain connects the deployer account of one layer.
func (a *app) dialChain(ctx context.Context, layer registry.Layer, cc config.ChainConfig) (*chain.Transactor, error) {
	if cc.RPCURL == "" {
		return nil, fmt.Errorf("%s.rpc_url is not configured", layer)
	}
	if cc.DeployerKey == "" {
		return nil, fmt.Errorf("%s.deployer_key is not configured", layer)
	}

	client, err := chain.Dial(ctx, cc.RPCURL)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, client.Close)

	id, err := client.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: chain id of %s: %w", chain.ErrTransient, layer, err)
	}
	signer, err := chain.NewLocalSigner(cc.DeployerKey, id.Uint64())
	if err != nil {
		return nil, fmt.Errorf("%s deployer key: %w", layer, err)
	}

	logger.Info("connected",
		slog.String("layer", string(layer)),
		slog.Uint64("chain_id", id.Uint64()),
		slog.String("deployer", signer.Address().Hex()),
	)
	return chain.NewTransactor(client, signer, cfg.Tx, logger.With(slog.String("layer", string(layer)))), nil
}

// artifacts loads the contract artifacts of one layer at version. With
// artifacts.base_url set, the release archive is fetched and its l1/ or l2/
// directory is used.
func artifacts(ctx context.Context, layer registry.Layer, version uint64) (contracts.Source, error) {
	dir := cfg.Artifacts.L1Dir
	if layer == registry.LayerL2 {
		dir = cfg.Artifacts.L2Dir
	}
	if cfg.Artifacts.BaseURL != "" {
		d := contracts.NewDownloader(cfg.Artifacts.BaseURL, cfg.Artifacts.CacheDir, cfg.Artifacts.Checksums, logger)
		root, err := d.Fetch(ctx, version)
		if err != nil {
			return nil, err
		}
		dir = filepath.Join(root, string(layer))
	}

	set, err := contracts.LoadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("load %s artifacts: %w", layer, err)
	}
	if len(set) == 0 {
		return nil, fmt.Errorf("no %s artifacts in %s", layer, dir)
	}
	return set, nil
}

// chainIDs returns the flag values, asking the configured RPC endpoints for
// any id left unset.
func chainIDs(ctx context.Context, l1, l2 uint64, needL2 bool) (uint64, uint64, error) {
	var err error
	if l1 == 0 {
		if cfg.L1.RPCURL == "" {
			return 0, 0, errors.New("--l1-chain-id or l1.rpc_url is required")
		}
		if l1, err = chain.ChainIDByRPC(ctx, cfg.L1.RPCURL); err != nil {
			return 0, 0, err
		}
	}
	if l2 == 0 && needL2 {
		if cfg.L2.RPCURL == "" {
			return 0, 0, errors.New("--l2-chain-id or l2.rpc_url is required")
		}
		if l2, err = chain.ChainIDByRPC(ctx, cfg.L2.RPCURL); err != nil {
			return 0, 0, err
		}
	}
	return l1, l2, nil
}
