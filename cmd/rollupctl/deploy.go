package main

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/myronchain/ethbeijing-rollup-tools/internal/chain"
	"github.com/myronchain/ethbeijing-rollup-tools/internal/contracts"
	"github.com/myronchain/ethbeijing-rollup-tools/internal/genesis"
	"github.com/myronchain/ethbeijing-rollup-tools/internal/orchestrator"
	"github.com/myronchain/ethbeijing-rollup-tools/internal/registry"
)

var deployLogicsCmd = &cobra.Command{
	Use:   "deploy-logics",
	Short: "Deploy the logic contracts of a release and seal its bundle",
	Long: `Deploy every logic contract of a release that is not registered yet,
then seal the release as the bundle of --version.

Contracts already registered under the same bytecode hash are reused, so a
rerun after a failure only deploys what is missing.

Examples:
  rollupctl deploy-logics --layer l1 --version 1
  rollupctl deploy-logics --layer l2 --version 2`,
	RunE: runDeployLogics,
}

var deployRollupCmd = &cobra.Command{
	Use:   "deploy-rollup",
	Short: "Provision a rollup instance",
	Long: `Deploy the L1 proxies of a new rollup, build and persist its L2 genesis,
and wire both layers through the address manager.

The L2 chain id is read from l2.rpc_url unless --l2-chain-id is given.`,
	RunE: runDeployRollup,
}

var upgradeRollupCmd = &cobra.Command{
	Use:   "upgrade-rollup",
	Short: "Upgrade a rollup instance to a newer bundle version",
	Long: `Re-point only the proxies whose implementation differs between the
rollup's current bundle and --version, on both layers.`,
	RunE: runUpgradeRollup,
}

func init() {
	deployLogicsCmd.Flags().String("layer", "l1", "layer to deploy (l1, l2)")
	deployLogicsCmd.Flags().Uint64("version", 0, "bundle version to seal")
	_ = deployLogicsCmd.MarkFlagRequired("version")

	deployRollupCmd.Flags().Uint64("version", 0, "bundle version to provision")
	deployRollupCmd.Flags().Uint64("l2-chain-id", 0, "L2 chain id (read from l2.rpc_url if unset)")
	_ = deployRollupCmd.MarkFlagRequired("version")

	upgradeRollupCmd.Flags().Uint64("version", 0, "target bundle version")
	_ = upgradeRollupCmd.MarkFlagRequired("version")

	rootCmd.AddCommand(deployLogicsCmd)
	rootCmd.AddCommand(deployRollupCmd)
	rootCmd.AddCommand(upgradeRollupCmd)
}

func runDeployLogics(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	layer, _ := cmd.Flags().GetString("layer")
	version, _ := cmd.Flags().GetUint64("version")

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	req := orchestrator.DeployRequest{Version: version}
	var ch *chain.Transactor
	switch registry.Layer(strings.ToLower(layer)) {
	case registry.LayerL1:
		if ch, err = a.dialChain(ctx, registry.LayerL1, cfg.L1); err != nil {
			return err
		}
		req.Scope = registry.L1Scope(ch.ChainID())
		req.Roles = contracts.L1Roles
		req.Overwrite = cfg.Registry.L1BundleOverwrite
	case registry.LayerL2:
		if ch, err = a.dialChain(ctx, registry.LayerL2, cfg.L2); err != nil {
			return err
		}
		l1, _, err := chainIDs(ctx, 0, ch.ChainID(), false)
		if err != nil {
			return err
		}
		req.Scope = registry.L2Scope(l1, ch.ChainID())
		req.Roles = contracts.L2Roles
	default:
		return fmt.Errorf("unknown layer %q", layer)
	}

	if req.Artifacts, err = artifacts(ctx, req.Scope.Layer(), version); err != nil {
		return err
	}

	res, err := orchestrator.NewLogicDeployer(a.store, a.opts).Deploy(ctx, ch, req)
	if err != nil {
		return err
	}
	return printResult(res, "sealed %s bundle v%d (%d roles, %d deployed)",
		req.Scope, res.Bundle.Version, len(res.Bundle.Roles), len(res.Deployed))
}

func runDeployRollup(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	version, _ := cmd.Flags().GetUint64("version")
	l2ChainID, _ := cmd.Flags().GetUint64("l2-chain-id")

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	l1, err := a.dialChain(ctx, registry.LayerL1, cfg.L1)
	if err != nil {
		return err
	}
	if _, l2ChainID, err = chainIDs(ctx, l1.ChainID(), l2ChainID, true); err != nil {
		return err
	}

	deployer, err := genesisDeployer(l2ChainID)
	if err != nil {
		return err
	}

	var premint genesis.Premint
	if cfg.Genesis.PremintFile != "" {
		if premint, err = genesis.LoadPremint(cfg.Genesis.PremintFile); err != nil {
			return err
		}
	}

	l1Artifacts, err := artifacts(ctx, registry.LayerL1, version)
	if err != nil {
		return err
	}
	l2Artifacts, err := artifacts(ctx, registry.LayerL2, version)
	if err != nil {
		return err
	}

	d := orchestrator.NewLogicDeployer(a.store, a.opts)
	res, err := orchestrator.NewProvisioner(a.store, d, a.opts).Provision(ctx, l1, orchestrator.ProvisionRequest{
		L2ChainID:       l2ChainID,
		Version:         version,
		L1Artifacts:     l1Artifacts,
		L2Artifacts:     l2Artifacts,
		GenesisDeployer: deployer,
		Premint:         premint,
	})
	if err != nil {
		return err
	}
	if res.Existing {
		logger.Info("rollup already provisioned", slog.Uint64("version", version))
	}
	return printResult(res, "rollup %d/%d at v%d, genesis %s",
		res.Rollup.L1ChainID, res.Rollup.L2ChainID, res.Rollup.Version, res.GenesisHash.Hex())
}

// genesisDeployer returns genesis.deployer, or the address of the L2
// deployer key.
func genesisDeployer(l2ChainID uint64) (common.Address, error) {
	if cfg.Genesis.Deployer != "" {
		return common.HexToAddress(cfg.Genesis.Deployer), nil
	}
	if cfg.L2.DeployerKey == "" {
		return common.Address{}, errors.New("genesis.deployer or l2.deployer_key is required")
	}
	signer, err := chain.NewLocalSigner(cfg.L2.DeployerKey, l2ChainID)
	if err != nil {
		return common.Address{}, fmt.Errorf("l2 deployer key: %w", err)
	}
	return signer.Address(), nil
}

func runUpgradeRollup(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	version, _ := cmd.Flags().GetUint64("version")

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	l1, err := a.dialChain(ctx, registry.LayerL1, cfg.L1)
	if err != nil {
		return err
	}
	l2, err := a.dialChain(ctx, registry.LayerL2, cfg.L2)
	if err != nil {
		return err
	}

	req := orchestrator.UpgradeRequest{Target: version}
	// Artifacts only serve auto-deploying a missing target bundle; sealed
	// bundles upgrade without them.
	if cfg.Registry.AutoDeployMissingBundle {
		if req.L1Artifacts, err = artifacts(ctx, registry.LayerL1, version); err != nil {
			logger.Warn("l1 artifacts unavailable", slog.String("error", err.Error()))
			req.L1Artifacts = nil
		}
		if req.L2Artifacts, err = artifacts(ctx, registry.LayerL2, version); err != nil {
			logger.Warn("l2 artifacts unavailable", slog.String("error", err.Error()))
			req.L2Artifacts = nil
		}
	}

	d := orchestrator.NewLogicDeployer(a.store, a.opts)
	res, err := orchestrator.NewUpgrader(a.store, d, a.opts).Upgrade(ctx, l1, l2, req)
	if err != nil {
		return err
	}
	return printResult(res, "upgraded v%d -> v%d (%d l1 and %d l2 proxies, %d already current)",
		res.From, res.To, len(res.L1Steps), len(res.L2Steps), res.Skipped)
}
