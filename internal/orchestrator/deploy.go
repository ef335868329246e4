package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/myronchain/ethbeijing-rollup-tools/internal/contracts"
	"github.com/myronchain/ethbeijing-rollup-tools/internal/registry"
)

// DeployRequest names a release to deploy on one chain.
type DeployRequest struct {
	Scope     registry.Scope
	Version   uint64
	Roles     contracts.RoleSet
	Artifacts contracts.Source
	// Overwrite allows resealing an existing bundle with different content.
	Overwrite bool
}

// DeployResult is the outcome of a logic deployment.
type DeployResult struct {
	Bundle *registry.VersionedBundle
	// Deployed lists the contracts this run sent to the chain. It is empty
	// when every role was already registered.
	Deployed []string
}

// LogicDeployer deploys the logic contracts of a release that are not yet
// registered, then seals the release as a versioned bundle.
type LogicDeployer struct {
	store registry.Store
	opts  Options
}

// NewLogicDeployer creates a LogicDeployer.
func NewLogicDeployer(store registry.Store, opts Options) *LogicDeployer {
	return &LogicDeployer{store: store, opts: opts.withDefaults()}
}

// Deploy deploys every unregistered role of req in dependency order and seals
// the bundle. Each deployed contract is registered as soon as it is
// confirmed, so a failed run resumes where it stopped.
func (d *LogicDeployer) Deploy(ctx context.Context, ch Chain, req DeployRequest) (*DeployResult, error) {
	if err := req.Scope.Validate(); err != nil {
		return nil, err
	}
	if req.Version == 0 {
		return nil, fmt.Errorf("%w: version must be positive", registry.ErrInvalidRecord)
	}
	if req.Artifacts == nil {
		return nil, errors.New("no artifact source")
	}

	var result *DeployResult
	err := run(ctx, d.opts, "deploy-logics", []string{req.Scope.String()},
		[]any{slog.String("scope", req.Scope.String()), slog.Uint64("version", req.Version)},
		func(ctx context.Context, logger *slog.Logger) error {
			var err error
			result, err = d.deploy(ctx, logger, ch, req)
			return err
		},
	)
	return result, err
}

func (d *LogicDeployer) deploy(ctx context.Context, logger *slog.Logger, ch Chain, req DeployRequest) (*DeployResult, error) {
	ordered, err := req.Roles.Ordered()
	if err != nil {
		return nil, err
	}

	artifacts := make(map[string]*contracts.Artifact, len(ordered))
	hashes := make([]common.Hash, 0, len(ordered))
	for _, role := range ordered {
		a, err := req.Artifacts.Artifact(role.Name)
		if err != nil {
			return nil, err
		}
		artifacts[role.Name] = a
		hashes = append(hashes, a.CodeHash())
	}

	sealed, err := d.store.GetBundle(ctx, req.Scope, req.Version)
	switch {
	case errors.Is(err, registry.ErrNotFound):
		sealed = nil
	case err != nil:
		return nil, fmt.Errorf("load bundle: %w", err)
	case !req.Overwrite:
		for _, role := range ordered {
			rec, ok := sealed.Logic(role.Name)
			if !ok || rec.CodeHash != artifacts[role.Name].CodeHash() {
				return nil, fmt.Errorf("%w: %s v%d seals different code for %s",
					registry.ErrConflict, req.Scope, req.Version, role.Name)
			}
		}
	}

	result := &DeployResult{}

	if req.Scope.Layer() == registry.LayerL1 {
		_, deployed, err := d.ensureProxyAdmin(ctx, logger, ch, req.Scope, req.Artifacts)
		if err != nil {
			return nil, err
		}
		if deployed {
			result.Deployed = append(result.Deployed, contracts.G1G2ProxyAdmin)
		}
	}

	known, err := d.resolve(ctx, req.Scope, hashes)
	if err != nil {
		return nil, err
	}

	addrs := make(map[string]common.Address, len(ordered))
	for _, role := range ordered {
		a := artifacts[role.Name]
		codeHash := a.CodeHash()

		if rec, ok := known[codeHash]; ok {
			addrs[role.Name] = rec.Address
			logger.Debug("logic already registered",
				slog.String("role", role.Name),
				slog.String("address", rec.Address.Hex()),
			)
			continue
		}

		libs := make(map[string]common.Address)
		for _, lib := range a.Libraries() {
			addr, ok := addrs[lib]
			if !ok {
				return nil, fmt.Errorf("%s links %s, which is not deployed before it", role.Name, lib)
			}
			libs[lib] = addr
		}
		code, err := a.LinkedBytecode(libs)
		if err != nil {
			return nil, err
		}

		addr, err := ch.Deploy(ctx, code)
		if err != nil {
			return nil, fmt.Errorf("deploy %s: %w", role.Name, err)
		}

		rec := registry.LogicRecord{
			Scope:        req.Scope,
			CodeHash:     codeHash,
			Address:      addr,
			ContractName: role.Name,
		}
		if err := d.store.SaveLogics(ctx, rec); err != nil {
			return nil, fmt.Errorf("register %s: %w", role.Name, err)
		}
		logicDeploymentsTotal.WithLabelValues(string(req.Scope.Layer())).Inc()

		logger.Info("logic deployed",
			slog.String("role", role.Name),
			slog.String("address", addr.Hex()),
			slog.String("code_hash", codeHash.Hex()),
		)
		known[codeHash] = rec
		addrs[role.Name] = addr
		result.Deployed = append(result.Deployed, role.Name)
	}

	// Seal only what the registry confirms.
	resolved, err := d.resolve(ctx, req.Scope, hashes)
	if err != nil {
		return nil, err
	}
	bundle := &registry.VersionedBundle{
		Scope:   req.Scope,
		Version: req.Version,
		Roles:   make(map[string]registry.LogicRecord, len(ordered)),
	}
	var missing []string
	for _, role := range ordered {
		rec, ok := resolved[artifacts[role.Name].CodeHash()]
		if !ok {
			missing = append(missing, role.Name)
			continue
		}
		bundle.Roles[role.Name] = rec
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s v%d resolved %d of %d roles, missing %s",
			ErrIncompleteDeployment, req.Scope, req.Version,
			len(ordered)-len(missing), len(ordered), strings.Join(missing, ", "))
	}

	if err := d.store.SaveBundle(ctx, bundle, req.Overwrite); err != nil {
		return nil, fmt.Errorf("seal bundle: %w", err)
	}
	if sealed == nil || !sealed.Equal(bundle) {
		bundleSealsTotal.WithLabelValues(string(req.Scope.Layer())).Inc()
		logger.Info("bundle sealed", slog.Int("roles", len(bundle.Roles)))
	}

	result.Bundle = bundle
	return result, nil
}

func (d *LogicDeployer) resolve(ctx context.Context, scope registry.Scope, hashes []common.Hash) (map[common.Hash]registry.LogicRecord, error) {
	records, err := d.store.GetLogics(ctx, scope, hashes)
	if err != nil {
		return nil, fmt.Errorf("resolve logics: %w", err)
	}
	known := make(map[common.Hash]registry.LogicRecord, len(records))
	for _, rec := range records {
		known[rec.CodeHash] = rec
	}
	return known, nil
}

// ensureProxyAdmin returns the proxy admin of scope, deploying and
// registering it first when none is registered.
func (d *LogicDeployer) ensureProxyAdmin(ctx context.Context, logger *slog.Logger, ch Chain, scope registry.Scope, source contracts.Source) (common.Address, bool, error) {
	rec, err := d.store.GetLogicByName(ctx, scope, contracts.G1G2ProxyAdmin)
	if err == nil {
		return rec.Address, false, nil
	}
	if !errors.Is(err, registry.ErrNotFound) {
		return common.Address{}, false, fmt.Errorf("resolve proxy admin: %w", err)
	}

	a, err := source.Artifact(contracts.G1G2ProxyAdmin)
	if err != nil {
		return common.Address{}, false, err
	}
	code, err := a.LinkedBytecode(nil)
	if err != nil {
		return common.Address{}, false, err
	}
	addr, err := ch.Deploy(ctx, code)
	if err != nil {
		return common.Address{}, false, fmt.Errorf("deploy %s: %w", contracts.G1G2ProxyAdmin, err)
	}
	if err := d.store.SaveLogics(ctx, registry.LogicRecord{
		Scope:        scope,
		CodeHash:     a.CodeHash(),
		Address:      addr,
		ContractName: contracts.G1G2ProxyAdmin,
	}); err != nil {
		return common.Address{}, false, fmt.Errorf("register %s: %w", contracts.G1G2ProxyAdmin, err)
	}
	logicDeploymentsTotal.WithLabelValues(string(scope.Layer())).Inc()

	logger.Info("proxy admin deployed", slog.String("address", addr.Hex()))
	return addr, true, nil
}
