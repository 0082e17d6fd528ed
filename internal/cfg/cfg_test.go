package cfg_test

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flemosr/quantoxide-sub000/internal/cfg"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"LNM_API_KEY", "LNM_SECRET", "LNM_PASSPHRASE", "CONFIG_FILE",
		"FORCE_LIVE_TRADING", "DRY_RUN", "METRICS_PORT", "FEE_PERCENT",
	} {
		require.NoError(t, os.Unsetenv(k))
	}
}

func TestLoad_RequiresCredentials(t *testing.T) {
	clearEnv(t)
	_, err := cfg.Load()
	assert.Error(t, err)
}

func TestLoad_DefaultsApplyInDryRun(t *testing.T) {
	clearEnv(t)
	t.Setenv("LNM_API_KEY", "key")
	t.Setenv("LNM_SECRET", "secret")
	t.Setenv("LNM_PASSPHRASE", "pass")
	t.Setenv("DRY_RUN", "true")

	settings, err := cfg.Load()
	require.NoError(t, err)
	assert.Equal(t, "key", settings.APIKey)
	assert.True(t, settings.DryRun)
	assert.Equal(t, 9090, settings.MetricsPort)
	assert.Equal(t, 0.1, settings.FeePercent)
}

func TestLoad_LiveTradingRequiresForceFlag(t *testing.T) {
	clearEnv(t)
	t.Setenv("LNM_API_KEY", "key")
	t.Setenv("LNM_SECRET", "secret")
	t.Setenv("LNM_PASSPHRASE", "pass")
	t.Setenv("DRY_RUN", "false")

	_, err := cfg.Load()
	assert.Error(t, err)

	t.Setenv("FORCE_LIVE_TRADING", "true")
	_, err = cfg.Load()
	assert.NoError(t, err)
}

func TestLoad_RejectsOutOfRangeMetricsPort(t *testing.T) {
	clearEnv(t)
	t.Setenv("LNM_API_KEY", "key")
	t.Setenv("LNM_SECRET", "secret")
	t.Setenv("LNM_PASSPHRASE", "pass")
	t.Setenv("DRY_RUN", "true")
	t.Setenv("METRICS_PORT", "80")

	_, err := cfg.Load()
	assert.Error(t, err)
}
