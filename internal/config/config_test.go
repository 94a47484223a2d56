package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/primev/preconf-deployer/internal/deploy"
)

const defaultFeeAccount = "0x388C818CA8B9251b393131C08a736A67ccB19297"

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8545", cfg.Network.RPCURL)
	assert.Equal(t, int64(31337), cfg.Network.ChainID)
	assert.Empty(t, cfg.Deployer.PrivateKey)
	assert.Equal(t, "1000000000000000000", cfg.Deployment.MinStake)
	assert.Equal(t, defaultFeeAccount, cfg.Deployment.FeeRecipient)
	assert.Equal(t, defaultFeeAccount, cfg.Deployment.Oracle)
	assert.Equal(t, int64(15), cfg.Deployment.FeePercent)
	assert.Equal(t, 5*time.Minute, cfg.Deployment.ConfirmationTimeout)
	assert.False(t, cfg.Deployment.Sequential)
	assert.Equal(t, "artifacts", cfg.Artifacts.Dir)
	assert.False(t, cfg.Database.Enabled())
	assert.False(t, cfg.Redis.Enabled())
	assert.Equal(t, 10*time.Minute, cfg.Redis.LockTTL)
	assert.Equal(t, slog.LevelInfo, cfg.Log.SlogLevel())

	params, err := cfg.Deployment.Params()
	require.NoError(t, err)
	assert.Equal(t, "1000000000000000000", params.MinStake.String())
	assert.Equal(t, common.HexToAddress(defaultFeeAccount), params.FeeRecipient)
	assert.Equal(t, uint16(15), params.FeePercent)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("PRECONF_DEPLOYMENT_FEE_PERCENT", "20")
	t.Setenv("PRECONF_DEPLOYMENT_SEQUENTIAL", "true")
	t.Setenv("PRECONF_NETWORK_CHAIN_ID", "17000")
	t.Setenv("PRECONF_DATABASE_DSN", "postgres://deployer@localhost/deployer")
	t.Setenv("PRECONF_LOG_LEVEL", "debug")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, int64(20), cfg.Deployment.FeePercent)
	assert.True(t, cfg.Deployment.Sequential)
	assert.Equal(t, int64(17000), cfg.Network.ChainID)
	assert.True(t, cfg.Database.Enabled())
	assert.Equal(t, slog.LevelDebug, cfg.Log.SlogLevel())
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "deploy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
network:
  rpc_url: https://rpc.example.org
  chain_id: 17864
deployment:
  min_stake: "2000000000000000000"
  fee_percent: 5
  confirmation_timeout: 90s
redis:
  addr: localhost:6379
log:
  format: json
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://rpc.example.org", cfg.Network.RPCURL)
	assert.Equal(t, int64(17864), cfg.Network.ChainID)
	assert.Equal(t, "2000000000000000000", cfg.Deployment.MinStake)
	assert.Equal(t, int64(5), cfg.Deployment.FeePercent)
	assert.Equal(t, 90*time.Second, cfg.Deployment.ConfirmationTimeout)
	assert.Equal(t, defaultFeeAccount, cfg.Deployment.Oracle)
	assert.True(t, cfg.Redis.Enabled())
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_Errors(t *testing.T) {
	t.Run("explicit file must exist", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
		assert.ErrorContains(t, err, "failed to read config file")
	})

	tests := []struct {
		name  string
		env   map[string]string
		field string
	}{
		{"fee above 100", map[string]string{"PRECONF_DEPLOYMENT_FEE_PERCENT": "101"}, "FeePercent"},
		{"bad oracle", map[string]string{"PRECONF_DEPLOYMENT_ORACLE": "0x1234"}, "Oracle"},
		{"non numeric stake", map[string]string{"PRECONF_DEPLOYMENT_MIN_STAKE": "one"}, "MinStake"},
		{"bad rpc url", map[string]string{"PRECONF_NETWORK_RPC_URL": "not a url"}, "RPCURL"},
		{"bad key", map[string]string{"PRECONF_DEPLOYER_PRIVATE_KEY": "xyz"}, "PrivateKey"},
		{"bad log level", map[string]string{"PRECONF_LOG_LEVEL": "trace"}, "Level"},
		{"lock ttl too short to refresh", map[string]string{"PRECONF_REDIS_LOCK_TTL": "1s"}, "LockTTL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Chdir(t.TempDir())
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load("")
			require.Error(t, err)
			assert.Contains(t, err.Error(), "invalid config")
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestDeploymentConfig_Params(t *testing.T) {
	cfg := DeploymentConfig{
		MinStake:     "0",
		FeeRecipient: defaultFeeAccount,
		Oracle:       defaultFeeAccount,
		FeePercent:   15,
	}

	_, err := cfg.Params()
	require.Error(t, err)
	assert.Equal(t, deploy.KindConfiguration, deploy.KindOf(err))
}
