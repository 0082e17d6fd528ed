package cfg

import "time"

// Settings holds every configuration parameter the trader and backtest binaries need:
// exchange credentials, executor parameters, and the synchronizer's retry/backoff policy.
type Settings struct {
	// Exchange credentials and endpoints.
	APIKey      string
	Secret      string
	Passphrase  string
	BaseURL     string
	WsURL       string
	Ping        time.Duration
	RESTTimeout time.Duration

	DryRun bool

	// Storage and observability.
	DataPath    string
	MetricsPort int
	LogLevel    string

	// Executor parameters.
	FeePercent       float64
	MaxRunningCount  int
	InitialBalance   int64
	TrailingStepSize float64

	// Synchronizer retry/backoff policy.
	SyncMaxTrials     int
	SyncErrorCooldown time.Duration
	SyncRateLimitRPS  float64
	SyncBackfillChunk int
}

// ConfigFile mirrors the YAML configuration file's hierarchical shape.
type ConfigFile struct {
	API struct {
		Key        string `yaml:"key"`
		Secret     string `yaml:"secret"`
		Passphrase string `yaml:"passphrase"`
		BaseURL    string `yaml:"baseURL"`
		WsURL      string `yaml:"wsURL"`
	} `yaml:"api"`

	Trading struct {
		DryRun           bool    `yaml:"dryRun"`
		FeePercent       float64 `yaml:"feePercent"`
		MaxRunningCount  int     `yaml:"maxRunningCount"`
		InitialBalance   int64   `yaml:"initialBalance"`
		TrailingStepSize float64 `yaml:"trailingStepSize"`
	} `yaml:"trading"`

	System struct {
		DataPath     string `yaml:"dataPath"`
		PingInterval string `yaml:"pingInterval"`
		MetricsPort  int    `yaml:"metricsPort"`
		RESTTimeout  string `yaml:"restTimeout"`
		LogLevel     string `yaml:"logLevel"`
	} `yaml:"system"`

	Sync struct {
		MaxTrials     int     `yaml:"maxTrials"`
		ErrorCooldown string  `yaml:"errorCooldown"`
		RateLimitRPS  float64 `yaml:"rateLimitRPS"`
		BackfillChunk int     `yaml:"backfillChunkMinutes"`
	} `yaml:"sync"`
}
