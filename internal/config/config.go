// Package config handles configuration loading for the deployer.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/primev/preconf-deployer/internal/deploy"
)

// Config holds all configuration for the deployer.
type Config struct {
	Network    NetworkConfig    `mapstructure:"network"`
	Deployer   DeployerConfig   `mapstructure:"deployer"`
	Deployment DeploymentConfig `mapstructure:"deployment"`
	Artifacts  ArtifactsConfig  `mapstructure:"artifacts"`
	Manifest   ManifestConfig   `mapstructure:"manifest"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Log        LogConfig        `mapstructure:"log"`
}

// NetworkConfig holds the target chain settings.
type NetworkConfig struct {
	RPCURL  string `mapstructure:"rpc_url" validate:"required,url"`
	ChainID int64  `mapstructure:"chain_id" validate:"gt=0"`
}

// DeployerConfig holds the deployer account. An empty key selects the anvil
// default account on local dev chains.
type DeployerConfig struct {
	PrivateKey string `mapstructure:"private_key" validate:"omitempty,hexadecimal"`
}

// DeploymentConfig holds the constructor parameters and run behaviour.
type DeploymentConfig struct {
	MinStake            string        `mapstructure:"min_stake" validate:"required,numeric"`
	FeeRecipient        string        `mapstructure:"fee_recipient" validate:"required,eth_addr"`
	Oracle              string        `mapstructure:"oracle" validate:"required,eth_addr"`
	FeePercent          int64         `mapstructure:"fee_percent" validate:"gte=0,lte=100"`
	ConfirmationTimeout time.Duration `mapstructure:"confirmation_timeout" validate:"gt=0"`
	Sequential          bool          `mapstructure:"sequential"`
}

// Params converts the raw values into typed deployment parameters.
func (c DeploymentConfig) Params() (deploy.Params, error) {
	return deploy.ParseParams(c.MinStake, c.FeeRecipient, c.Oracle, c.FeePercent)
}

// ArtifactsConfig points at the compiled contract output (Hardhat artifacts/ or Foundry out/).
type ArtifactsConfig struct {
	Dir string `mapstructure:"dir" validate:"required"`
}

// ManifestConfig enables the address manifest when Dir is set.
type ManifestConfig struct {
	Dir string `mapstructure:"dir"`
}

// DatabaseConfig enables run history when DSN (a postgres:// URL) is set.
type DatabaseConfig struct {
	DSN      string `mapstructure:"dsn" validate:"omitempty,url"`
	MaxConns int32  `mapstructure:"max_conns" validate:"gte=0"`
}

// Enabled reports whether run history is configured.
func (c DatabaseConfig) Enabled() bool {
	return c.DSN != ""
}

// RedisConfig enables the deploy lock when Addr is set.
type RedisConfig struct {
	Addr     string        `mapstructure:"addr" validate:"omitempty,hostname_port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db" validate:"gte=0"`
	LockTTL  time.Duration `mapstructure:"lock_ttl" validate:"gte=3s"`
}

// Enabled reports whether the deploy lock is configured.
func (c RedisConfig) Enabled() bool {
	return c.Addr != ""
}

// MetricsConfig enables the node_exporter textfile output when Textfile is set.
type MetricsConfig struct {
	Textfile string `mapstructure:"textfile"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=text json"`
}

// SlogLevel maps Level to a slog level.
func (c LogConfig) SlogLevel() slog.Level {
	switch c.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Load reads configuration from path (or config.yaml in the usual places when path
// is empty) and PRECONF_* environment variables, on top of the built-in defaults.
func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/preconf-deployer")
	}

	v.SetEnvPrefix("PRECONF")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	err := validator.New().Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("invalid config: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s: failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

// setDefaults mirrors the values the deployment scripts have always used, so a run
// with no config file behaves the same.
func setDefaults(v *viper.Viper) {
	v.SetDefault("network.rpc_url", "http://localhost:8545")
	v.SetDefault("network.chain_id", 31337)

	v.SetDefault("deployer.private_key", "")

	v.SetDefault("deployment.min_stake", "1000000000000000000") // 1 ETH in wei
	v.SetDefault("deployment.fee_recipient", "0x388C818CA8B9251b393131C08a736A67ccB19297")
	v.SetDefault("deployment.oracle", "0x388C818CA8B9251b393131C08a736A67ccB19297")
	v.SetDefault("deployment.fee_percent", 15)
	v.SetDefault("deployment.confirmation_timeout", "5m")
	v.SetDefault("deployment.sequential", false)

	v.SetDefault("artifacts.dir", "artifacts")

	v.SetDefault("manifest.dir", "")

	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_conns", 4)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.lock_ttl", "10m")

	v.SetDefault("metrics.textfile", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}
