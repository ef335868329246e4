package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/myronchain/ethbeijing-rollup-tools/internal/genesis"
)

var genesisCmd = &cobra.Command{
	Use:   "genesis",
	Short: "Inspect L2 genesis files",
	Long: `Export the persisted L2 genesis of a rollup or hash a genesis file.

Examples:
  rollupctl genesis export --l1-chain-id 5 --l2-chain-id 1001 -o genesis.json
  rollupctl genesis hash --file genesis.json`,
}

var genesisExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the persisted L2 genesis of a rollup",
	RunE:  runGenesisExport,
}

var genesisHashCmd = &cobra.Command{
	Use:   "hash",
	Short: "Compute the block hash of a genesis file",
	RunE:  runGenesisHash,
}

func init() {
	genesisExportCmd.Flags().Uint64("l1-chain-id", 0, "L1 chain id (read from l1.rpc_url if unset)")
	genesisExportCmd.Flags().Uint64("l2-chain-id", 0, "L2 chain id (read from l2.rpc_url if unset)")
	genesisExportCmd.Flags().StringP("output", "o", "", "output file (default: stdout)")

	genesisHashCmd.Flags().String("file", "", "genesis JSON file")
	_ = genesisHashCmd.MarkFlagRequired("file")

	genesisCmd.AddCommand(genesisExportCmd)
	genesisCmd.AddCommand(genesisHashCmd)
	rootCmd.AddCommand(genesisCmd)
}

func runGenesisExport(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	l1, _ := cmd.Flags().GetUint64("l1-chain-id")
	l2, _ := cmd.Flags().GetUint64("l2-chain-id")
	output, _ := cmd.Flags().GetString("output")

	l1, l2, err := chainIDs(ctx, l1, l2, true)
	if err != nil {
		return err
	}

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	rec, err := a.store.GetGenesis(ctx, l1, l2)
	if err != nil {
		return fmt.Errorf("genesis of %d/%d: %w", l1, l2, err)
	}
	data, err := json.MarshalIndent(rec.Genesis, "", "  ")
	if err != nil {
		return fmt.Errorf("encode genesis: %w", err)
	}

	if output == "" {
		_, err = os.Stdout.Write(append(data, '\n'))
		return err
	}
	if err := os.WriteFile(output, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", output, err)
	}
	fmt.Fprintf(os.Stderr, "genesis %s written to %s\n", rec.Hash.Hex(), output)
	return nil
}

func runGenesisHash(cmd *cobra.Command, _ []string) error {
	file, _ := cmd.Flags().GetString("file")

	hash, err := genesis.HashFile(file)
	if err != nil {
		return err
	}
	return printResult(map[string]string{"file": file, "hash": hash.Hex()}, "%s", hash.Hex())
}
