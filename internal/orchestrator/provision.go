package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/myronchain/ethbeijing-rollup-tools/internal/contracts"
	"github.com/myronchain/ethbeijing-rollup-tools/internal/genesis"
	"github.com/myronchain/ethbeijing-rollup-tools/internal/registry"
)

// ProvisionRequest creates a rollup instance at Version.
type ProvisionRequest struct {
	L2ChainID   uint64
	Version     uint64
	L1Artifacts contracts.Source
	L2Artifacts contracts.Source
	// GenesisDeployer is the CREATE2 deployer of the L2 implementations and
	// the owner of every L2 predeploy.
	GenesisDeployer common.Address
	Premint         genesis.Premint
}

// ProvisionResult is a provisioned rollup.
type ProvisionResult struct {
	Rollup      *registry.RollupInstance
	GenesisHash common.Hash
	// Existing is set when the rollup was already provisioned at the
	// requested version and nothing was sent.
	Existing bool
}

// Provisioner deploys the L1 proxies of a new rollup, builds its L2 genesis
// and wires both layers together through the address manager.
type Provisioner struct {
	store    registry.Store
	deployer *LogicDeployer
	opts     Options
}

// NewProvisioner creates a Provisioner.
func NewProvisioner(store registry.Store, deployer *LogicDeployer, opts Options) *Provisioner {
	return &Provisioner{store: store, deployer: deployer, opts: opts.withDefaults()}
}

// Provision provisions the rollup of L2 chain req.L2ChainID on l1.
func (p *Provisioner) Provision(ctx context.Context, l1 Chain, req ProvisionRequest) (*ProvisionResult, error) {
	if req.L2ChainID == 0 {
		return nil, errors.New("l2 chain id is required")
	}
	if req.Version == 0 {
		return nil, errors.New("version must be positive")
	}
	if req.L1Artifacts == nil || req.L2Artifacts == nil {
		return nil, errors.New("l1 and l2 artifacts are required")
	}

	l1ChainID := l1.ChainID()

	var result *ProvisionResult
	err := run(ctx, p.opts, "deploy-rollup", []string{rollupLockKey(l1ChainID, req.L2ChainID)},
		[]any{
			slog.Uint64("l1_chain_id", l1ChainID),
			slog.Uint64("l2_chain_id", req.L2ChainID),
			slog.Uint64("version", req.Version),
		},
		func(ctx context.Context, logger *slog.Logger) error {
			var err error
			result, err = p.provision(ctx, logger, l1, req)
			return err
		},
	)
	return result, err
}

func (p *Provisioner) provision(ctx context.Context, logger *slog.Logger, l1 Chain, req ProvisionRequest) (*ProvisionResult, error) {
	l1ChainID := l1.ChainID()

	existing, err := p.store.GetRollup(ctx, l1ChainID, req.L2ChainID)
	switch {
	case errors.Is(err, registry.ErrNotFound):
	case err != nil:
		return nil, fmt.Errorf("load rollup: %w", err)
	case existing.Version > req.Version:
		return nil, fmt.Errorf("%w: deployed %d, requested %d", ErrHigherVersionDeployed, existing.Version, req.Version)
	case existing.Version < req.Version:
		return nil, fmt.Errorf("%w: deployed %d, requested %d", ErrUseUpgrade, existing.Version, req.Version)
	default:
		logger.Info("rollup already deployed at this version")
		res := &ProvisionResult{Rollup: existing, Existing: true}
		if g, err := p.store.GetGenesis(ctx, l1ChainID, req.L2ChainID); err == nil {
			res.GenesisHash = g.Hash
		}
		return res, nil
	}

	// Reject genesis inputs before anything is sent. The L1 addresses do not
	// influence collisions.
	if _, err := genesis.Build(p.genesisInput(req, common.Address{}, common.Address{})); err != nil {
		return nil, fmt.Errorf("genesis: %w", err)
	}

	l1Scope := registry.L1Scope(l1ChainID)
	bundle, err := p.l1Bundle(ctx, logger, l1, l1Scope, req)
	if err != nil {
		return nil, err
	}
	if missing := bundle.Missing(contracts.L1UpgradeSet); len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s v%d lacks %v", ErrIncompleteDeployment, l1Scope, req.Version, missing)
	}

	admin, _, err := p.deployer.ensureProxyAdmin(ctx, logger, l1, l1Scope, req.L1Artifacts)
	if err != nil {
		return nil, err
	}

	proxyArtifact, err := req.L1Artifacts.Artifact(contracts.G1G2TransparentUpgradeableProxy)
	if err != nil {
		return nil, err
	}
	proxyCode, err := proxyArtifact.LinkedBytecode(nil)
	if err != nil {
		return nil, err
	}

	deployProxy := func(role string, initArgs ...any) (common.Address, error) {
		impl, _ := bundle.Logic(role)
		a, err := req.L1Artifacts.Artifact(role)
		if err != nil {
			return common.Address{}, err
		}
		initData, err := a.PackCall("init", initArgs...)
		if err != nil {
			return common.Address{}, err
		}
		ctorArgs, err := proxyArtifact.PackConstructor(impl.Address, admin, initData)
		if err != nil {
			return common.Address{}, err
		}
		initCode := append(append([]byte{}, proxyCode...), ctorArgs...)
		addr, err := l1.Deploy(ctx, initCode)
		if err != nil {
			return common.Address{}, fmt.Errorf("deploy %s proxy: %w", role, err)
		}
		logger.Info("proxy deployed",
			slog.String("role", role),
			slog.String("proxy", addr.Hex()),
			slog.String("implementation", impl.Address.Hex()),
		)
		return addr, nil
	}

	addressManager, err := deployProxy(contracts.AddressManager)
	if err != nil {
		return nil, err
	}
	crossChainChannel, err := deployProxy(contracts.CrossChainChannel, addressManager)
	if err != nil {
		return nil, err
	}
	escrow, err := deployProxy(contracts.L1Escrow, addressManager)
	if err != nil {
		return nil, err
	}

	gen, err := genesis.Build(p.genesisInput(req, crossChainChannel, escrow))
	if err != nil {
		return nil, fmt.Errorf("genesis: %w", err)
	}
	if err := p.sealGenesis(ctx, logger, l1ChainID, req, gen); err != nil {
		return nil, err
	}

	rollupProxy, err := deployProxy(contracts.L1Rollup,
		addressManager, new(big.Int).SetUint64(req.L2ChainID), [32]byte(gen.Hash))
	if err != nil {
		return nil, err
	}

	local := []struct {
		key  string
		addr common.Address
	}{
		{contracts.KeyRollup, rollupProxy},
		{contracts.KeyCrossChainChannel, crossChainChannel},
		{contracts.KeyEscrow, escrow},
	}
	remote := []struct {
		key  string
		addr common.Address
	}{
		{contracts.KeyRollup, genesis.L2RollupAddr},
		{contracts.KeyCrossChainChannel, genesis.CrossChainChannelAddr},
		{contracts.KeyEscrow, genesis.L2EscrowAddr},
	}
	for _, e := range local {
		data, err := funcSetAddress.EncodeArgs(e.key, e.addr)
		if err != nil {
			return nil, fmt.Errorf("encode setAddress: %w", err)
		}
		if err := l1.Call(ctx, addressManager, data); err != nil {
			return nil, fmt.Errorf("setAddress %s: %w", e.key, err)
		}
	}
	for _, e := range remote {
		data, err := funcSetRemoteAddress.EncodeArgs(e.key, e.addr)
		if err != nil {
			return nil, fmt.Errorf("encode setRemoteAddress: %w", err)
		}
		if err := l1.Call(ctx, addressManager, data); err != nil {
			return nil, fmt.Errorf("setRemoteAddress %s: %w", e.key, err)
		}
	}

	rollup := &registry.RollupInstance{
		L1ChainID: l1ChainID,
		L2ChainID: req.L2ChainID,
		Version:   req.Version,
		L1Proxies: registry.ProxySet{
			contracts.AddressManager:    addressManager,
			contracts.L1Rollup:          rollupProxy,
			contracts.CrossChainChannel: crossChainChannel,
			contracts.L1Escrow:          escrow,
		},
		L2Proxies: registry.ProxySet(maps.Clone(genesis.Predeploys)),
	}
	if err := p.store.SaveRollup(ctx, rollup); err != nil {
		return nil, fmt.Errorf("save rollup: %w", err)
	}

	logger.Info("rollup deployed",
		slog.String("address_manager", addressManager.Hex()),
		slog.String("rollup", rollupProxy.Hex()),
		slog.String("genesis_hash", gen.Hash.Hex()),
	)
	return &ProvisionResult{Rollup: rollup, GenesisHash: gen.Hash}, nil
}

func (p *Provisioner) genesisInput(req ProvisionRequest, crossChainChannel, escrow common.Address) genesis.Input {
	return genesis.Input{
		L2ChainID:           req.L2ChainID,
		Deployer:            req.GenesisDeployer,
		L1CrossChainChannel: crossChainChannel,
		L1Escrow:            escrow,
		Premint:             req.Premint,
		Artifacts:           req.L2Artifacts,
	}
}

// l1Bundle returns the sealed L1 bundle at req.Version, deploying it first
// when allowed.
func (p *Provisioner) l1Bundle(ctx context.Context, logger *slog.Logger, l1 Chain, scope registry.Scope, req ProvisionRequest) (*registry.VersionedBundle, error) {
	bundle, err := p.store.GetBundle(ctx, scope, req.Version)
	if err == nil {
		return bundle, nil
	}
	if !errors.Is(err, registry.ErrNotFound) {
		return nil, fmt.Errorf("load %s v%d: %w", scope, req.Version, err)
	}
	if !p.opts.Registry.AutoDeployMissingBundle {
		return nil, fmt.Errorf("%w: %s v%d", ErrBundleNotReady, scope, req.Version)
	}

	logger.Info("l1 bundle missing, deploying")
	res, err := p.deployer.Deploy(ctx, l1, DeployRequest{
		Scope:     scope,
		Version:   req.Version,
		Roles:     contracts.L1Roles,
		Artifacts: req.L1Artifacts,
		Overwrite: p.opts.Registry.L1BundleOverwrite,
	})
	if err != nil {
		return nil, err
	}
	return res.Bundle, nil
}

// sealGenesis persists the genesis and registers its CREATE2 implementations
// as the L2 bundle at req.Version.
func (p *Provisioner) sealGenesis(ctx context.Context, logger *slog.Logger, l1ChainID uint64, req ProvisionRequest, gen *genesis.Result) error {
	if err := p.store.SaveGenesis(ctx, &registry.GenesisRecord{
		L1ChainID: l1ChainID,
		L2ChainID: req.L2ChainID,
		Hash:      gen.Hash,
		Genesis:   gen.Genesis,
	}); err != nil {
		return fmt.Errorf("save genesis: %w", err)
	}

	scope := registry.L2Scope(l1ChainID, req.L2ChainID)
	bundle := &registry.VersionedBundle{
		Scope:   scope,
		Version: req.Version,
		Roles:   make(map[string]registry.LogicRecord, len(gen.Implementations)),
	}
	records := make([]registry.LogicRecord, 0, len(gen.Implementations))
	for _, impl := range gen.Implementations {
		rec := registry.LogicRecord{
			Scope:        scope,
			CodeHash:     impl.CodeHash,
			Address:      impl.Address,
			ContractName: impl.Role,
		}
		records = append(records, rec)
		bundle.Roles[impl.Role] = rec
	}
	if err := p.store.SaveLogics(ctx, records...); err != nil {
		return fmt.Errorf("register l2 logics: %w", err)
	}
	if err := p.store.SaveBundle(ctx, bundle, p.opts.Registry.L2GenesisBundleOverwrite); err != nil {
		return fmt.Errorf("seal l2 bundle: %w", err)
	}
	bundleSealsTotal.WithLabelValues(string(registry.LayerL2)).Inc()

	logger.Info("l2 genesis sealed",
		slog.String("genesis_hash", gen.Hash.Hex()),
		slog.Int("alloc", len(gen.Genesis.Alloc)),
	)
	return nil
}
