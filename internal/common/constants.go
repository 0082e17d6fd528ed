// Package common holds environment-variable keys, defaults, error messages, and validation
// bounds shared across the configuration and CLI layers.
package common

// Environment variable keys — exchange credentials and endpoints.
const (
	EnvLNMAPIKey       = "LNM_API_KEY"
	EnvLNMSecret       = "LNM_SECRET"
	EnvLNMPassphrase   = "LNM_PASSPHRASE"
	EnvForceLiveTrading = "FORCE_LIVE_TRADING"
	EnvBaseURL         = "BASE_URL"
	EnvWsURL           = "WS_URL"
	EnvDataPath        = "DATA_PATH"
	EnvMetricsPort     = "METRICS_PORT"
	EnvRESTTimeout     = "REST_TIMEOUT"
	EnvPingInterval    = "PING_INTERVAL"
	EnvLogLevel        = "LOG_LEVEL"
)

// Environment variable keys — trading and executor parameters.
const (
	EnvFeePercent        = "FEE_PERCENT"
	EnvMaxRunningCount   = "MAX_RUNNING_COUNT"
	EnvInitialBalance    = "INITIAL_BALANCE"
	EnvTrailingStepSize  = "TRAILING_STOPLOSS_STEP_SIZE"
)

// Environment variable keys — synchronizer retry/backoff policy.
const (
	EnvSyncMaxTrials      = "SYNC_MAX_TRIALS"
	EnvSyncErrorCooldown  = "SYNC_ERROR_COOLDOWN"
	EnvSyncRateLimitRPS   = "SYNC_RATE_LIMIT_RPS"
	EnvSyncBackfillChunk  = "SYNC_BACKFILL_CHUNK_MINUTES"
)

// Configuration defaults — exchange endpoints and system settings.
const (
	DefaultBaseURL     = "https://api.lnmarkets.com"
	DefaultWsURL       = "wss://api.lnmarkets.com"
	DefaultMetricsPort = 9090
	DefaultLogLevel    = "info"
)

// Configuration defaults — trading and executor parameters.
const (
	DefaultFeePercent       = 0.1
	DefaultMaxRunningCount  = 20
	DefaultInitialBalance   = 1_000_000 // satoshis
	DefaultTrailingStepSize = 0.5       // percent
)

// Configuration defaults — synchronizer retry/backoff policy.
const (
	DefaultSyncMaxTrials     = 5
	DefaultSyncErrorCooldown = "30s"
	DefaultSyncRateLimitRPS  = 4.0
	DefaultSyncBackfillChunk = 1000
)

// Common error messages.
const (
	ErrMsgAPICredentialsRequired = "LNM API key, secret, and passphrase are required"
	ErrMsgBaseURLRequired        = "baseURL is required"
	ErrMsgWsURLRequired          = "wsURL is required"
	ErrMsgForceLiveTradingRequired = "live trading requires FORCE_LIVE_TRADING=true environment variable"
)

// Validation bounds.
const (
	MinMetricsPort      = 1024
	MaxMetricsPort      = 65535
	MinFeePercent       = 0.0001
	MaxFeePercent       = 100.0
	MinMaxRunningCount  = 1
	MaxMaxRunningCount  = 10_000
	MinSyncRateLimitRPS = 0.1
)
