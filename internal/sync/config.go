// Package sync implements the price-history and funding-settlement synchronizer: it keeps
// local storage caught up with the exchange's historical record, backfilling from the
// configured reach and then tracking live updates, with bounded retries on REST failures.
package sync

import "time"

// Config holds the synchronizer's tunables. Defaults mirror the reference implementation's
// SyncConfig.
type Config struct {
	RESTErrorCooldown  time.Duration
	RESTErrorMaxTrials uint64
	RESTRateLimitRPS   float64

	PriceHistoryBatchSize  int
	PriceHistoryReach      time.Time
	FundingSettlementReach time.Time

	ReSyncInterval          time.Duration
	ReBackfillInterval      time.Duration
	FlagGapRange            time.Duration
	LivePriceTickMaxInterval time.Duration

	FundingSettlementRetryInterval time.Duration
	RestartInterval                time.Duration
	ShutdownTimeout                time.Duration
}

// DefaultConfig returns a Config with the reference implementation's defaults, anchored at
// now for the two reach fields (90 days back).
func DefaultConfig(now time.Time) Config {
	return Config{
		RESTErrorCooldown:              10 * time.Second,
		RESTErrorMaxTrials:             3,
		RESTRateLimitRPS:               1,
		PriceHistoryBatchSize:          1000,
		PriceHistoryReach:              now.AddDate(0, 0, -90),
		FundingSettlementReach:         now.AddDate(0, 0, -90),
		ReSyncInterval:                 10 * time.Second,
		ReBackfillInterval:             90 * time.Second,
		FlagGapRange:                   4 * 7 * 24 * time.Hour,
		LivePriceTickMaxInterval:       3 * time.Minute,
		FundingSettlementRetryInterval: 60 * time.Second,
		RestartInterval:                10 * time.Second,
		ShutdownTimeout:                6 * time.Second,
	}
}
