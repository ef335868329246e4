package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/myronchain/ethbeijing-rollup-tools/internal/chain"
)

var chainIDCmd = &cobra.Command{
	Use:   "chain-id",
	Short: "Print the chain id behind an RPC endpoint",
	Long: `Print the chain id reported by --rpc, or by l1.rpc_url and l2.rpc_url
when --rpc is not given.`,
	RunE: runChainID,
}

func init() {
	chainIDCmd.Flags().String("rpc", "", "RPC endpoint to query")
	rootCmd.AddCommand(chainIDCmd)
}

func runChainID(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	rpc, _ := cmd.Flags().GetString("rpc")

	if rpc != "" {
		id, err := chain.ChainIDByRPC(ctx, rpc)
		if err != nil {
			return err
		}
		return printResult(map[string]uint64{"chain_id": id}, "%d", id)
	}

	if cfg.L1.RPCURL == "" || cfg.L2.RPCURL == "" {
		return errors.New("--rpc or both l1.rpc_url and l2.rpc_url are required")
	}
	l1, l2, err := chain.ChainIDs(ctx, cfg.L1.RPCURL, cfg.L2.RPCURL)
	if err != nil {
		return err
	}
	return printResult(map[string]uint64{"l1_chain_id": l1, "l2_chain_id": l2}, "l1 %d\nl2 %d", l1, l2)
}
