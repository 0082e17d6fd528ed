// Package cfg loads Settings from either a YAML file or environment variables, with
// environment variables always taking precedence over file values. It validates the
// resulting configuration before handing it back to the caller.
package cfg

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/flemosr/quantoxide-sub000/internal/common"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Load loads configuration from a YAML file named by CONFIG_FILE, or from environment
// variables if that is unset. A .env file in the working directory is loaded first, if
// present, and always ignored if missing.
func Load() (Settings, error) {
	_ = godotenv.Load()

	if configPath := os.Getenv("CONFIG_FILE"); configPath != "" {
		return loadFromYAML(configPath)
	}
	return loadFromEnv()
}

func loadFromYAML(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("cfg: failed to read config file %s: %w", path, err)
	}

	var file ConfigFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return Settings{}, fmt.Errorf("cfg: failed to parse config file: %w", err)
	}

	apiKey := getEnvOrDefault(common.EnvLNMAPIKey, file.API.Key)
	secret := getEnvOrDefault(common.EnvLNMSecret, file.API.Secret)
	passphrase := getEnvOrDefault(common.EnvLNMPassphrase, file.API.Passphrase)
	if apiKey == "" || secret == "" || passphrase == "" {
		return Settings{}, fmt.Errorf(common.ErrMsgAPICredentialsRequired)
	}

	settings := Settings{
		APIKey:      apiKey,
		Secret:      secret,
		Passphrase:  passphrase,
		BaseURL:     getEnvOrDefault(common.EnvBaseURL, nonEmpty(file.API.BaseURL, common.DefaultBaseURL)),
		WsURL:       getEnvOrDefault(common.EnvWsURL, nonEmpty(file.API.WsURL, common.DefaultWsURL)),
		Ping:        getDurationOrDefault(common.EnvPingInterval, parseDurationOr(file.System.PingInterval, 15*time.Second)),
		RESTTimeout: getDurationOrDefault(common.EnvRESTTimeout, parseDurationOr(file.System.RESTTimeout, 5*time.Second)),
		DryRun:      getBoolOrDefault("DRY_RUN", file.Trading.DryRun),

		DataPath:    getEnvOrDefault(common.EnvDataPath, file.System.DataPath),
		MetricsPort: getIntOrDefault(common.EnvMetricsPort, intOr(file.System.MetricsPort, common.DefaultMetricsPort)),
		LogLevel:    getEnvOrDefault(common.EnvLogLevel, nonEmpty(file.System.LogLevel, common.DefaultLogLevel)),

		FeePercent:       getFloatOrDefault(common.EnvFeePercent, floatOr(file.Trading.FeePercent, common.DefaultFeePercent)),
		MaxRunningCount:  getIntOrDefault(common.EnvMaxRunningCount, intOr(file.Trading.MaxRunningCount, common.DefaultMaxRunningCount)),
		InitialBalance:   getInt64OrDefault(common.EnvInitialBalance, int64Or(file.Trading.InitialBalance, common.DefaultInitialBalance)),
		TrailingStepSize: getFloatOrDefault(common.EnvTrailingStepSize, floatOr(file.Trading.TrailingStepSize, common.DefaultTrailingStepSize)),

		SyncMaxTrials:     getIntOrDefault(common.EnvSyncMaxTrials, intOr(file.Sync.MaxTrials, common.DefaultSyncMaxTrials)),
		SyncErrorCooldown: getDurationOrDefault(common.EnvSyncErrorCooldown, parseDurationOr(file.Sync.ErrorCooldown, parseDurationOr(common.DefaultSyncErrorCooldown, 30*time.Second))),
		SyncRateLimitRPS:  getFloatOrDefault(common.EnvSyncRateLimitRPS, floatOr(file.Sync.RateLimitRPS, common.DefaultSyncRateLimitRPS)),
		SyncBackfillChunk: getIntOrDefault(common.EnvSyncBackfillChunk, intOr(file.Sync.BackfillChunk, common.DefaultSyncBackfillChunk)),
	}

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("cfg: configuration validation failed: %w", err)
	}
	return settings, nil
}

func loadFromEnv() (Settings, error) {
	apiKey, err := getEnvRequired(common.EnvLNMAPIKey)
	if err != nil {
		return Settings{}, err
	}
	secret, err := getEnvRequired(common.EnvLNMSecret)
	if err != nil {
		return Settings{}, err
	}
	passphrase, err := getEnvRequired(common.EnvLNMPassphrase)
	if err != nil {
		return Settings{}, err
	}

	settings := Settings{
		APIKey:      apiKey,
		Secret:      secret,
		Passphrase:  passphrase,
		BaseURL:     getEnvOrDefault(common.EnvBaseURL, common.DefaultBaseURL),
		WsURL:       getEnvOrDefault(common.EnvWsURL, common.DefaultWsURL),
		Ping:        getDurationOrDefault(common.EnvPingInterval, 15*time.Second),
		RESTTimeout: getDurationOrDefault(common.EnvRESTTimeout, 5*time.Second),
		DryRun:      getBoolOrDefault("DRY_RUN", true),

		DataPath:    os.Getenv(common.EnvDataPath),
		MetricsPort: getIntOrDefault(common.EnvMetricsPort, common.DefaultMetricsPort),
		LogLevel:    getEnvOrDefault(common.EnvLogLevel, common.DefaultLogLevel),

		FeePercent:       getFloatOrDefault(common.EnvFeePercent, common.DefaultFeePercent),
		MaxRunningCount:  getIntOrDefault(common.EnvMaxRunningCount, common.DefaultMaxRunningCount),
		InitialBalance:   getInt64OrDefault(common.EnvInitialBalance, common.DefaultInitialBalance),
		TrailingStepSize: getFloatOrDefault(common.EnvTrailingStepSize, common.DefaultTrailingStepSize),

		SyncMaxTrials:     getIntOrDefault(common.EnvSyncMaxTrials, common.DefaultSyncMaxTrials),
		SyncErrorCooldown: getDurationOrDefault(common.EnvSyncErrorCooldown, parseDurationOr(common.DefaultSyncErrorCooldown, 30*time.Second)),
		SyncRateLimitRPS:  getFloatOrDefault(common.EnvSyncRateLimitRPS, common.DefaultSyncRateLimitRPS),
		SyncBackfillChunk: getIntOrDefault(common.EnvSyncBackfillChunk, common.DefaultSyncBackfillChunk),
	}

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("cfg: configuration validation failed: %w", err)
	}
	return settings, nil
}

func validateSettings(s *Settings) error {
	if s.APIKey == "" || s.Secret == "" || s.Passphrase == "" {
		return fmt.Errorf(common.ErrMsgAPICredentialsRequired)
	}
	if s.BaseURL == "" {
		return fmt.Errorf(common.ErrMsgBaseURLRequired)
	}
	if s.WsURL == "" {
		return fmt.Errorf(common.ErrMsgWsURLRequired)
	}
	if !s.DryRun && os.Getenv(common.EnvForceLiveTrading) != "true" {
		return fmt.Errorf(common.ErrMsgForceLiveTradingRequired)
	}
	if s.MetricsPort < common.MinMetricsPort || s.MetricsPort > common.MaxMetricsPort {
		return fmt.Errorf("cfg: metricsPort must be between %d and %d", common.MinMetricsPort, common.MaxMetricsPort)
	}
	if s.FeePercent < common.MinFeePercent || s.FeePercent > common.MaxFeePercent {
		return fmt.Errorf("cfg: feePercent must be between %g and %g", common.MinFeePercent, common.MaxFeePercent)
	}
	if s.MaxRunningCount < common.MinMaxRunningCount || s.MaxRunningCount > common.MaxMaxRunningCount {
		return fmt.Errorf("cfg: maxRunningCount must be between %d and %d", common.MinMaxRunningCount, common.MaxMaxRunningCount)
	}
	if s.InitialBalance <= 0 {
		return fmt.Errorf("cfg: initialBalance must be positive")
	}
	if s.TrailingStepSize <= 0 {
		return fmt.Errorf("cfg: trailingStepSize must be positive")
	}
	if s.Ping < time.Second || s.Ping > 5*time.Minute {
		return fmt.Errorf("cfg: pingInterval must be between 1s and 5m")
	}
	if s.RESTTimeout < time.Second || s.RESTTimeout > time.Minute {
		return fmt.Errorf("cfg: restTimeout must be between 1s and 1m")
	}
	if s.SyncMaxTrials < 1 {
		return fmt.Errorf("cfg: syncMaxTrials must be at least 1")
	}
	if s.SyncRateLimitRPS < common.MinSyncRateLimitRPS {
		return fmt.Errorf("cfg: syncRateLimitRPS must be at least %g", common.MinSyncRateLimitRPS)
	}
	return nil
}

func getEnvRequired(key string) (string, error) {
	v := os.Getenv(key)
	if v == "" {
		return "", fmt.Errorf("cfg: required environment variable %s is missing", key)
	}
	return v, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultValue
}

func getInt64OrDefault(key string, defaultValue int64) int64 {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getFloatOrDefault(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultValue
}

func nonEmpty(v, def string) string {
	if v != "" {
		return v
	}
	return def
}

func intOr(v, def int) int {
	if v != 0 {
		return v
	}
	return def
}

func int64Or(v, def int64) int64 {
	if v != 0 {
		return v
	}
	return def
}

func floatOr(v, def float64) float64 {
	if v != 0 {
		return v
	}
	return def
}

func parseDurationOr(v string, def time.Duration) time.Duration {
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	return def
}
