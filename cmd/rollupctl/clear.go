package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/myronchain/ethbeijing-rollup-tools/internal/orchestrator"
)

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove registry records",
	Long: `Remove registry records. Nothing is sent to any chain.

  --type l1   every record settled on the L1 chain, L2 records included
  --type l2   the L2 logics, bundles, rollup and genesis of one rollup
  --type all  the whole registry

Records removed here cannot be recovered from the registry.`,
	RunE: runClear,
}

func init() {
	clearCmd.Flags().String("type", "", "what to remove (l1, l2, all)")
	clearCmd.Flags().Uint64("l1-chain-id", 0, "L1 chain id (read from l1.rpc_url if unset)")
	clearCmd.Flags().Uint64("l2-chain-id", 0, "L2 chain id (read from l2.rpc_url if unset)")
	_ = clearCmd.MarkFlagRequired("type")

	rootCmd.AddCommand(clearCmd)
}

func runClear(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	typ, _ := cmd.Flags().GetString("type")
	l1, _ := cmd.Flags().GetUint64("l1-chain-id")
	l2, _ := cmd.Flags().GetUint64("l2-chain-id")

	target := orchestrator.PurgeTarget(typ)
	var err error
	switch target {
	case orchestrator.PurgeAll:
	case orchestrator.PurgeL1:
		l1, _, err = chainIDs(ctx, l1, 0, false)
	case orchestrator.PurgeL2:
		l1, l2, err = chainIDs(ctx, l1, l2, true)
	default:
		return fmt.Errorf("unknown clear type %q (want l1, l2 or all)", typ)
	}
	if err != nil {
		return err
	}

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := orchestrator.NewPurger(a.store, a.opts).Purge(ctx, target, l1, l2); err != nil {
		return err
	}
	return printResult(map[string]any{"type": typ, "l1_chain_id": l1, "l2_chain_id": l2}, "cleared %s records", typ)
}
