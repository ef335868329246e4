// Package config provides configuration loading for rollupctl.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Log       LogConfig       `mapstructure:"log"`
	Store     StoreConfig     `mapstructure:"store"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Server    ServerConfig    `mapstructure:"server"`
	L1        ChainConfig     `mapstructure:"l1"`
	L2        ChainConfig     `mapstructure:"l2"`
	Genesis   GenesisConfig   `mapstructure:"genesis"`
	Artifacts ArtifactsConfig `mapstructure:"artifacts"`
	Registry  RegistryConfig  `mapstructure:"registry"`
	Tx        TxConfig        `mapstructure:"tx"`
	Lock      LockConfig      `mapstructure:"lock"`
}

// LogConfig controls the slog handler.
type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=json text"`
}

// StoreConfig selects the registry backend.
type StoreConfig struct {
	Backend   string `mapstructure:"backend" validate:"oneof=memory file postgres"`
	Dir       string `mapstructure:"dir" validate:"required_if=Backend file"`
	CacheSize int    `mapstructure:"cache_size" validate:"gte=0"`
}

// DatabaseConfig holds PostgreSQL configuration.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// DSN returns the PostgreSQL connection string.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// URL returns the postgres:// form used by the migrator.
func (c DatabaseConfig) URL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode,
	)
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Addr returns the Redis address string.
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port         int           `mapstructure:"port" validate:"gt=0,lte=65535"`
	Host         string        `mapstructure:"host"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	Environment  string        `mapstructure:"environment"` // dev, staging, prod
	CORSOrigins  []string      `mapstructure:"cors_origins"`
}

// ChainConfig holds the RPC endpoint and deployer key of one layer.
type ChainConfig struct {
	RPCURL      string `mapstructure:"rpc_url" validate:"omitempty,url"`
	DeployerKey string `mapstructure:"deployer_key"`
}

// GenesisConfig holds the inputs of the L2 genesis that do not come from a
// chain. Deployer is the CREATE2 deployer and owner of the predeploys; it
// falls back to the address of the L2 deployer key.
type GenesisConfig struct {
	Deployer    string `mapstructure:"deployer" validate:"omitempty,eth_addr"`
	PremintFile string `mapstructure:"premint_file"`
}

// ArtifactsConfig locates compiled contract artifacts.
type ArtifactsConfig struct {
	L1Dir     string            `mapstructure:"l1_dir"`
	L2Dir     string            `mapstructure:"l2_dir"`
	BaseURL   string            `mapstructure:"base_url" validate:"omitempty,url"`
	CacheDir  string            `mapstructure:"cache_dir"`
	// Checksums maps "v<version>" to the hex SHA-256 of that archive.
	Checksums map[string]string `mapstructure:"checksums"`
}

// RegistryConfig holds the bundle sealing policy.
type RegistryConfig struct {
	L1BundleOverwrite        bool `mapstructure:"l1_bundle_overwrite"`
	L2GenesisBundleOverwrite bool `mapstructure:"l2_genesis_bundle_overwrite"`
	AutoDeployMissingBundle  bool `mapstructure:"auto_deploy_missing_bundle"`
}

// TxConfig tunes transaction submission.
type TxConfig struct {
	GasBufferPercent uint64        `mapstructure:"gas_buffer_percent" validate:"lte=100"`
	MaxGasLimit      uint64        `mapstructure:"max_gas_limit" validate:"gt=0"`
	DefaultGasLimit  uint64        `mapstructure:"default_gas_limit" validate:"gt=0"`
	ReceiptTimeout   time.Duration `mapstructure:"receipt_timeout" validate:"gt=0"`
	// RetryAttempts bounds how often a run is repeated after a transient
	// failure.
	RetryAttempts int           `mapstructure:"retry_attempts" validate:"gte=1"`
	RetryDelay    time.Duration `mapstructure:"retry_delay"`
}

// LockConfig selects the per-chain run lock.
type LockConfig struct {
	Backend string        `mapstructure:"backend" validate:"oneof=local redis"`
	TTL     time.Duration `mapstructure:"ttl" validate:"gt=0"`
	Prefix  string        `mapstructure:"prefix"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the configuration against its struct tags.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Load reads configuration from files and environment variables. A non-empty
// file overrides the config search path.
func Load(file string) (*Config, error) {
	v := viper.New()

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/rollupctl")
	}

	v.SetEnvPrefix("ROLLUPCTL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Keys without a default are invisible to AutomaticEnv on Unmarshal.
	for _, key := range []string{
		"l1.rpc_url", "l1.deployer_key",
		"l2.rpc_url", "l2.deployer_key",
		"genesis.deployer", "genesis.premint_file",
		"artifacts.base_url",
	} {
		_ = v.BindEnv(key)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is OK, we use defaults and env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values for all settings.
func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("store.backend", "file")
	v.SetDefault("store.dir", "./deployments")
	v.SetDefault("store.cache_size", 256)

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "rollupctl")
	v.SetDefault("database.password", "rollupctl")
	v.SetDefault("database.database", "rollupctl")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.conn_max_lifetime", "5m")

	// Redis defaults
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	// Server defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.environment", "dev")
	v.SetDefault("server.cors_origins", []string{"http://localhost:*"})

	v.SetDefault("artifacts.l1_dir", "./artifacts/l1")
	v.SetDefault("artifacts.l2_dir", "./artifacts/l2")
	v.SetDefault("artifacts.cache_dir", "./artifacts/cache")

	// Forced L2 re-provisioning replaces the genesis bundle; L1 bundles are
	// sealed once.
	v.SetDefault("registry.l1_bundle_overwrite", false)
	v.SetDefault("registry.l2_genesis_bundle_overwrite", true)
	v.SetDefault("registry.auto_deploy_missing_bundle", true)

	v.SetDefault("tx.gas_buffer_percent", 20)
	v.SetDefault("tx.max_gas_limit", 15_000_000)
	v.SetDefault("tx.default_gas_limit", 8_000_000)
	v.SetDefault("tx.receipt_timeout", "5m")
	v.SetDefault("tx.retry_attempts", 3)
	v.SetDefault("tx.retry_delay", "5s")

	v.SetDefault("lock.backend", "local")
	v.SetDefault("lock.ttl", "30m")
	v.SetDefault("lock.prefix", "rollupctl:lock:")
}
