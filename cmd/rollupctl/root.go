package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/myronchain/ethbeijing-rollup-tools/internal/config"
)

var (
	cfgFile  string
	jsonOut  bool
	logLevel string
	storeDir string

	cfg    *config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "rollupctl",
	Short: "Deploy and upgrade G1G2 rollups",
	Long: `rollupctl manages the contracts of G1G2 rollups.

Logic contracts are registered by bytecode hash and sealed into versioned
bundles. A rollup instance is provisioned from a bundle version and upgraded
by re-pointing only the proxies whose implementation changed.

Examples:
  rollupctl deploy-logics --layer l1 --version 1
  rollupctl deploy-rollup --version 1
  rollupctl upgrade-rollup --version 2
  rollupctl genesis hash --file genesis.json
  rollupctl serve`,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default: ./config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "print results as JSON")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&storeDir, "store-dir", "", "file store directory (overrides store.dir)")
}

func loadConfig(cmd *cobra.Command, _ []string) error {
	var err error
	cfg, err = config.Load(cfgFile)
	if err != nil {
		return err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if os.Getenv("DEBUG") == "true" {
		cfg.Log.Level = "debug"
	}
	if storeDir != "" {
		cfg.Store.Dir = storeDir
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger = newLogger(cfg.Log)
	slog.SetDefault(logger)
	return nil
}

func newLogger(c config.LogConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printResult prints v as JSON under --json and the text summary otherwise.
func printResult(v any, text string, args ...any) error {
	if jsonOut {
		return printJSON(v)
	}
	fmt.Printf(text+"\n", args...)
	return nil
}
