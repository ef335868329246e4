package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "file", cfg.Store.Backend)
	assert.Equal(t, "./deployments", cfg.Store.Dir)
	assert.False(t, cfg.Registry.L1BundleOverwrite)
	assert.True(t, cfg.Registry.L2GenesisBundleOverwrite)
	assert.True(t, cfg.Registry.AutoDeployMissingBundle)
	assert.Equal(t, uint64(20), cfg.Tx.GasBufferPercent)
	assert.Equal(t, 5*time.Minute, cfg.Tx.ReceiptTimeout)
	assert.Equal(t, "local", cfg.Lock.Backend)
	assert.Equal(t, 3, cfg.Tx.RetryAttempts)
	assert.Equal(t, 5*time.Second, cfg.Tx.RetryDelay)
	assert.Equal(t, []string{"http://localhost:*"}, cfg.Server.CORSOrigins)
	require.NoError(t, cfg.Validate())
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "rollupctl.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
store:
  backend: postgres
l1:
  rpc_url: http://localhost:8545
registry:
  l2_genesis_bundle_overwrite: false
artifacts:
  checksums:
    v1: deadbeef
`), 0o600))

	t.Setenv("ROLLUPCTL_L2_RPC_URL", "http://localhost:9545")
	t.Setenv("ROLLUPCTL_LOCK_BACKEND", "redis")

	cfg, err := Load(file)
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Backend)
	assert.Equal(t, "http://localhost:8545", cfg.L1.RPCURL)
	assert.Equal(t, "http://localhost:9545", cfg.L2.RPCURL)
	assert.Equal(t, "redis", cfg.Lock.Backend)
	assert.False(t, cfg.Registry.L2GenesisBundleOverwrite)
	assert.Equal(t, "deadbeef", cfg.Artifacts.Checksums["v1"])
	require.NoError(t, cfg.Validate())
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Chdir(t.TempDir())

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"bad backend", func(c *Config) { c.Store.Backend = "sqlite" }, "Store.Backend"},
		{"bad lock", func(c *Config) { c.Lock.Backend = "etcd" }, "Lock.Backend"},
		{"bad deployer", func(c *Config) { c.Genesis.Deployer = "0x1234" }, "Genesis.Deployer"},
		{"bad rpc", func(c *Config) { c.L1.RPCURL = "not a url" }, "L1.RPCURL"},
		{"zero gas cap", func(c *Config) { c.Tx.MaxGasLimit = 0 }, "Tx.MaxGasLimit"},
		{"no attempts", func(c *Config) { c.Tx.RetryAttempts = 0 }, "Tx.RetryAttempts"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load("")
			require.NoError(t, err)
			tt.mutate(cfg)

			err = cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDatabaseConfig_URL(t *testing.T) {
	c := DatabaseConfig{User: "u", Password: "p", Host: "db", Port: 5432, Database: "reg", SSLMode: "disable"}
	assert.Equal(t, "postgres://u:p@db:5432/reg?sslmode=disable", c.URL())
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=reg sslmode=disable", c.DSN())
}
