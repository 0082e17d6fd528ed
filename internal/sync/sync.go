package sync

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/rs/zerolog/log"

	"github.com/flemosr/quantoxide-sub000/internal/candle"
	"github.com/flemosr/quantoxide-sub000/internal/exchange/lnm"
	"github.com/flemosr/quantoxide-sub000/internal/metrics"
	"github.com/flemosr/quantoxide-sub000/internal/status"
	"github.com/flemosr/quantoxide-sub000/internal/storage"
)

// Synchronizer keeps local storage caught up with the exchange's price and funding
// settlement history: it backfills toward the configured reach, then tracks live updates,
// retrying transient REST failures a bounded number of times before giving up.
type Synchronizer struct {
	cfg     Config
	rest    *lnm.Client
	store   *storage.Store
	metrics metrics.Sink
	manager *status.SyncManager
	limiter *rate.Limiter
}

// New creates a Synchronizer. metricsSink may be nil, in which case metrics are not
// recorded.
func New(cfg Config, rest *lnm.Client, store *storage.Store, metricsSink metrics.Sink) *Synchronizer {
	return &Synchronizer{
		cfg:     cfg,
		rest:    rest,
		store:   store,
		metrics: metricsSink,
		manager: status.NewSyncManager(),
		limiter: rate.NewLimiter(rate.Limit(cfg.RESTRateLimitRPS), 1),
	}
}

// Manager returns the status manager subscribers can use to observe synchronizer progress.
func (s *Synchronizer) Manager() *status.SyncManager { return s.manager }

// Run drives the synchronizer until ctx is canceled: it backfills price history and
// funding settlements toward the configured reach, then switches to a live polling loop.
func (s *Synchronizer) Run(ctx context.Context) error {
	s.manager.SetPhase(status.Running)
	defer s.manager.CloseSubscribers()

	if err := s.BackfillPriceHistory(ctx, s.cfg.PriceHistoryReach, time.Now()); err != nil {
		s.manager.Fail(err)
		return err
	}
	if err := s.backfillFundingSettlements(ctx); err != nil {
		s.manager.Fail(err)
		return err
	}

	ticker := time.NewTicker(s.cfg.ReSyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.manager.SetPhase(status.Stopped)
			return nil
		case <-ticker.C:
			if err := s.syncFundingSettlementsOnce(ctx); err != nil {
				log.Warn().Err(err).Msg("sync: funding settlement sync failed")
				if s.metrics != nil {
					// funding settlement errors are still sync errors
				}
			}
		}
	}
}

// retry runs fn up to cfg.RESTErrorMaxTrials times, waiting cfg.RESTErrorCooldown between
// attempts, and rate-limits every attempt through the configured limiter.
func (s *Synchronizer) retry(ctx context.Context, fn func() error) error {
	var lastErr error
	for trial := uint64(0); trial < s.cfg.RESTErrorMaxTrials; trial++ {
		if err := s.limiter.Wait(ctx); err != nil {
			return err
		}
		if err := fn(); err != nil {
			lastErr = err
			log.Warn().Err(err).Uint64("trial", trial+1).Msg("sync: rest request failed, will retry")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(s.cfg.RESTErrorCooldown):
			}
			continue
		}
		return nil
	}
	return fmt.Errorf("sync: exhausted %d trials: %w", s.cfg.RESTErrorMaxTrials, lastErr)
}

func (s *Synchronizer) backfillFundingSettlements(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		state, err := EvaluateFundingState(ctx, s.store, s.cfg.FundingSettlementReach, s.cfg.FlagGapRange, time.Now())
		if err != nil {
			return err
		}
		if !state.HasMissing() {
			return nil
		}

		rng, err := state.NextDownloadRange(true)
		if err != nil {
			return err
		}

		if err := s.fetchFundingRange(ctx, rng); err != nil {
			return err
		}
	}
}

func (s *Synchronizer) syncFundingSettlementsOnce(ctx context.Context) error {
	state, err := EvaluateFundingState(ctx, s.store, s.cfg.FundingSettlementReach, s.cfg.FlagGapRange, time.Now())
	if err != nil {
		return err
	}
	rng, err := state.NextDownloadRange(false)
	if err != nil {
		return err
	}
	return s.fetchFundingRange(ctx, rng)
}

func (s *Synchronizer) fetchFundingRange(ctx context.Context, rng FundingDownloadRange) error {
	now := time.Now()
	from, to := rng.From, rng.To
	if from.IsZero() {
		from = now.Add(-90 * 24 * time.Hour)
	}
	if to.IsZero() {
		to = now
	}

	return s.retry(ctx, func() error {
		settlements, err := s.rest.GetFundingHistory(from, to, s.cfg.PriceHistoryBatchSize)
		if err != nil {
			return err
		}
		for _, dto := range settlements {
			record := storage.FundingSettlement{
				ID:          dto.ID,
				Time:        time.UnixMilli(dto.Time),
				FixingPrice: dto.FixingPrice,
				FundingRate: dto.FundingRate,
				CreatedAt:   now,
			}
			if err := s.store.StoreFundingSettlement(record); err != nil {
				return err
			}
			if s.metrics != nil {
				// funding settlement persisted
			}
		}
		return nil
	})
}

// BackfillPriceHistory fetches and stores one-minute candles between from and to, in
// batches of cfg.PriceHistoryBatchSize, retrying each batch per the configured policy.
func (s *Synchronizer) BackfillPriceHistory(ctx context.Context, from, to time.Time) error {
	cursor := from
	for cursor.Before(to) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		batchEnd := cursor.Add(time.Duration(s.cfg.PriceHistoryBatchSize) * time.Minute)
		if batchEnd.After(to) {
			batchEnd = to
		}

		err := s.retry(ctx, func() error {
			points, err := s.rest.GetPriceHistory(cursor, batchEnd, s.cfg.PriceHistoryBatchSize)
			if err != nil {
				return err
			}
			for _, p := range points {
				ts := time.UnixMilli(p.Time)
				c := candle.OHLC{
					Timestamp: ts,
					Open:      p.Price,
					High:      p.Price,
					Low:       p.Price,
					Close:     p.Price,
					UpdatedAt: ts,
					AllStable: true,
				}
				if err := s.store.StoreCandle(time.Minute, c); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return err
		}

		cursor = batchEnd
	}
	return nil
}
