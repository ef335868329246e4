package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"github.com/myronchain/ethbeijing-rollup-tools/internal/contracts"
	"github.com/myronchain/ethbeijing-rollup-tools/internal/genesis"
	"github.com/myronchain/ethbeijing-rollup-tools/internal/registry"
)

// UpgradeStep repoints one proxy to a new implementation.
type UpgradeStep struct {
	Role  string         `json:"role"`
	Proxy common.Address `json:"proxy"`
	From  common.Address `json:"from"`
	To    common.Address `json:"to"`
}

// PlanUpgrade returns one step per role of roles whose code hash differs
// between cur and target. Unchanged roles produce no step.
func PlanUpgrade(cur, target *registry.VersionedBundle, roles []string, proxies registry.ProxySet) ([]UpgradeStep, error) {
	if missing := cur.Missing(roles); len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s v%d lacks %v", ErrIncompleteDeployment, cur.Scope, cur.Version, missing)
	}
	if missing := target.Missing(roles); len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s v%d lacks %v", ErrIncompleteDeployment, target.Scope, target.Version, missing)
	}

	var steps []UpgradeStep
	for _, role := range roles {
		from, to := cur.Roles[role], target.Roles[role]
		if from.CodeHash == to.CodeHash {
			continue
		}
		proxy, ok := proxies[role]
		if !ok {
			return nil, fmt.Errorf("no proxy recorded for %s", role)
		}
		steps = append(steps, UpgradeStep{Role: role, Proxy: proxy, From: from.Address, To: to.Address})
	}
	return steps, nil
}

// UpgradeRequest moves a rollup to Target. Artifacts are only needed when a
// target bundle has to be deployed first.
type UpgradeRequest struct {
	Target      uint64
	L1Artifacts contracts.Source
	L2Artifacts contracts.Source
}

// UpgradeResult reports what an upgrade run did.
type UpgradeResult struct {
	From    uint64        `json:"from"`
	To      uint64        `json:"to"`
	L1Steps []UpgradeStep `json:"l1_steps"`
	L2Steps []UpgradeStep `json:"l2_steps"`
	// Skipped counts proxies that already pointed at their target, which
	// happens when a failed run is repeated.
	Skipped int `json:"skipped"`
}

// Upgrader moves a rollup instance between sealed bundle versions.
type Upgrader struct {
	store    registry.Store
	deployer *LogicDeployer
	opts     Options
}

// NewUpgrader creates an Upgrader. deployer seals missing target bundles
// when Options.Registry.AutoDeployMissingBundle is set.
func NewUpgrader(store registry.Store, deployer *LogicDeployer, opts Options) *Upgrader {
	return &Upgrader{store: store, deployer: deployer, opts: opts.withDefaults()}
}

type layerPlan struct {
	layer registry.Layer
	ch    Chain
	admin common.Address
	steps []UpgradeStep
}

// Upgrade upgrades the rollup settled by l1 with L2 chain l2. The new
// version is committed only after every upgrade call on both layers is
// confirmed.
func (u *Upgrader) Upgrade(ctx context.Context, l1, l2 Chain, req UpgradeRequest) (*UpgradeResult, error) {
	l1ChainID, l2ChainID := l1.ChainID(), l2.ChainID()

	var result *UpgradeResult
	err := run(ctx, u.opts, "upgrade-rollup", []string{rollupLockKey(l1ChainID, l2ChainID)},
		[]any{
			slog.Uint64("l1_chain_id", l1ChainID),
			slog.Uint64("l2_chain_id", l2ChainID),
			slog.Uint64("target", req.Target),
		},
		func(ctx context.Context, logger *slog.Logger) error {
			var err error
			result, err = u.upgrade(ctx, logger, l1, l2, req)
			return err
		},
	)
	return result, err
}

func (u *Upgrader) upgrade(ctx context.Context, logger *slog.Logger, l1, l2 Chain, req UpgradeRequest) (*UpgradeResult, error) {
	l1ChainID, l2ChainID := l1.ChainID(), l2.ChainID()

	rollup, err := u.store.GetRollup(ctx, l1ChainID, l2ChainID)
	if errors.Is(err, registry.ErrNotFound) {
		return nil, fmt.Errorf("%w: l1 %d, l2 %d", ErrRollupNotFound, l1ChainID, l2ChainID)
	}
	if err != nil {
		return nil, fmt.Errorf("load rollup: %w", err)
	}
	if req.Target <= rollup.Version {
		return nil, fmt.Errorf("%w: current %d, target %d", ErrVersionOrder, rollup.Version, req.Target)
	}

	l1Plan, err := u.plan(ctx, logger, l1, rollup, rollup.L1Scope(), contracts.L1Roles, contracts.L1UpgradeSet,
		req.L1Artifacts, req.Target, u.opts.Registry.L1BundleOverwrite)
	if err != nil {
		return nil, err
	}
	l2Plan, err := u.plan(ctx, logger, l2, rollup, rollup.L2Scope(), contracts.L2Roles, contracts.L2UpgradeSet,
		req.L2Artifacts, req.Target, false)
	if err != nil {
		return nil, err
	}

	admin, err := u.store.GetLogicByName(ctx, rollup.L1Scope(), contracts.G1G2ProxyAdmin)
	if err != nil {
		return nil, fmt.Errorf("resolve l1 proxy admin: %w", err)
	}
	l1Plan.admin = admin.Address
	l2Plan.admin = genesis.ProxyAdminAddr

	result := &UpgradeResult{
		From:    rollup.Version,
		To:      req.Target,
		L1Steps: l1Plan.steps,
		L2Steps: l2Plan.steps,
	}
	for _, p := range []*layerPlan{l1Plan, l2Plan} {
		skipped, err := u.execute(ctx, logger, p)
		if err != nil {
			return nil, err
		}
		result.Skipped += skipped
	}

	if err := u.store.UpdateRollupVersion(ctx, l1ChainID, l2ChainID, req.Target); err != nil {
		return nil, fmt.Errorf("commit version: %w", err)
	}
	logger.Info("rollup upgraded",
		slog.Uint64("from", rollup.Version),
		slog.Int("l1_upgrades", len(l1Plan.steps)),
		slog.Int("l2_upgrades", len(l2Plan.steps)),
	)
	return result, nil
}

func (u *Upgrader) plan(
	ctx context.Context,
	logger *slog.Logger,
	ch Chain,
	rollup *registry.RollupInstance,
	scope registry.Scope,
	roles contracts.RoleSet,
	upgradeSet []string,
	source contracts.Source,
	target uint64,
	overwrite bool,
) (*layerPlan, error) {
	cur, err := u.store.GetBundle(ctx, scope, rollup.Version)
	if err != nil {
		return nil, fmt.Errorf("load %s v%d: %w", scope, rollup.Version, err)
	}

	next, err := u.store.GetBundle(ctx, scope, target)
	if errors.Is(err, registry.ErrNotFound) {
		if !u.opts.Registry.AutoDeployMissingBundle || source == nil || u.deployer == nil {
			return nil, fmt.Errorf("%w: %s v%d", ErrBundleNotReady, scope, target)
		}
		logger.Info("target bundle missing, deploying", slog.String("scope", scope.String()))
		res, derr := u.deployer.Deploy(ctx, ch, DeployRequest{
			Scope:     scope,
			Version:   target,
			Roles:     roles,
			Artifacts: source,
			Overwrite: overwrite,
		})
		if derr != nil {
			return nil, derr
		}
		next, err = res.Bundle, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load %s v%d: %w", scope, target, err)
	}

	steps, err := PlanUpgrade(cur, next, upgradeSet, rollup.Proxies(scope.Layer()))
	if err != nil {
		return nil, err
	}
	return &layerPlan{layer: scope.Layer(), ch: ch, steps: steps}, nil
}

func (u *Upgrader) execute(ctx context.Context, logger *slog.Logger, p *layerPlan) (int, error) {
	skipped := 0
	for _, step := range p.steps {
		current, err := p.ch.Implementation(ctx, step.Proxy)
		if err != nil {
			return 0, err
		}
		if current == step.To {
			logger.Info("proxy already upgraded",
				slog.String("layer", string(p.layer)),
				slog.String("role", step.Role),
			)
			skipped++
			continue
		}

		data, err := funcUpgrade.EncodeArgs(step.Proxy, step.To)
		if err != nil {
			return 0, fmt.Errorf("encode upgrade: %w", err)
		}
		if err := p.ch.Call(ctx, p.admin, data); err != nil {
			return 0, fmt.Errorf("upgrade %s %s: %w", p.layer, step.Role, err)
		}
		upgradeCallsTotal.WithLabelValues(string(p.layer)).Inc()

		logger.Info("proxy upgraded",
			slog.String("layer", string(p.layer)),
			slog.String("role", step.Role),
			slog.String("proxy", step.Proxy.Hex()),
			slog.String("implementation", step.To.Hex()),
		)
	}
	return skipped, nil
}
