package sync

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/flemosr/quantoxide-sub000/internal/fundinggrid"
	"github.com/flemosr/quantoxide-sub000/internal/storage"
)

// FundingRangeKind identifies which shape of funding-settlement gap the synchronizer should
// fetch next.
type FundingRangeKind int

const (
	// FundingLatest means storage is empty; fetch whatever the exchange currently reports.
	FundingLatest FundingRangeKind = iota
	// FundingUpperBound means storage has data but may be missing anything newer than From.
	FundingUpperBound
	// FundingMissing means a specific interior gap [From, To] needs to be filled.
	FundingMissing
	// FundingLowerBound means storage's oldest record is newer than the configured reach;
	// backfill older history down to To.
	FundingLowerBound
)

// FundingDownloadRange describes the next funding-settlement range to fetch.
type FundingDownloadRange struct {
	Kind FundingRangeKind
	From time.Time
	To   time.Time
}

// FundingState summarizes what funding-settlement history storage currently holds: the
// available bounds, any interior gaps on the settlement grid, and how far back history is
// required to reach.
type FundingState struct {
	reachTime    *time.Time
	hasBounds    bool
	boundStart   time.Time
	boundEnd     time.Time
	missing      []time.Time
}

// EvaluateFundingState inspects storage and, when flagMissingRange is non-zero, scans the
// most recent flagMissingRange window for gaps on the settlement grid.
func EvaluateFundingState(ctx context.Context, store *storage.Store, reach time.Time, flagMissingRange time.Duration, now time.Time) (*FundingState, error) {
	earliest, latest, ok, err := fundingBounds(store)
	if err != nil {
		return nil, fmt.Errorf("sync: evaluate funding bounds: %w", err)
	}
	if !ok {
		return &FundingState{reachTime: &reach}, nil
	}

	if earliest.Equal(latest) {
		if earliest.Before(reach) {
			return nil, fmt.Errorf("sync: earliest funding settlement %s unreachable against reach %s", earliest, reach)
		}
		return &FundingState{reachTime: &reach, hasBounds: true, boundStart: earliest, boundEnd: earliest}, nil
	}

	var missing []time.Time
	if flagMissingRange > 0 {
		scanFrom := now.Add(-flagMissingRange)
		if scanFrom.Before(earliest) {
			scanFrom = earliest
		}
		scanFrom = fundinggrid.CeilSettlementTime(scanFrom)
		scanTo := latest

		if !scanFrom.After(scanTo) {
			missing, err = missingSettlementTimes(store, scanFrom, scanTo)
			if err != nil {
				return nil, err
			}
		}
	}

	if len(missing) > 0 && missing[0].Before(reach) {
		return nil, fmt.Errorf("sync: missing funding settlement %s unreachable against reach %s", missing[0], reach)
	}

	return &FundingState{
		reachTime:  &reach,
		hasBounds:  true,
		boundStart: earliest,
		boundEnd:   latest,
		missing:    missing,
	}, nil
}

func fundingBounds(store *storage.Store) (earliest, latest time.Time, ok bool, err error) {
	all, err := store.GetFundingSettlements(fundinggrid.SettlementAStart, time.Now().AddDate(1, 0, 0))
	if err != nil {
		return time.Time{}, time.Time{}, false, err
	}
	if len(all) == 0 {
		return time.Time{}, time.Time{}, false, nil
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Time.Before(all[j].Time) })
	return all[0].Time, all[len(all)-1].Time, true, nil
}

func missingSettlementTimes(store *storage.Store, from, to time.Time) ([]time.Time, error) {
	present, err := store.GetFundingSettlements(from, to)
	if err != nil {
		return nil, err
	}
	have := make(map[int64]struct{}, len(present))
	for _, f := range present {
		have[f.Time.UnixNano()] = struct{}{}
	}

	var missing []time.Time
	for ts := from; !ts.After(to); ts = fundinggrid.NextSettlementTime(ts) {
		if _, ok := have[ts.UnixNano()]; !ok {
			missing = append(missing, ts)
		}
	}
	return missing, nil
}

// latestMissingGroup returns the most recent contiguous run of missing timestamps, grouped
// by the 8h cadence threshold the way the source implementation does: a gap between two
// missing entries wider than 8h starts a new group.
func (s *FundingState) latestMissingGroup() []time.Time {
	if len(s.missing) == 0 {
		return nil
	}
	start := 0
	for i := len(s.missing) - 1; i > 0; i-- {
		if s.missing[i].Sub(s.missing[i-1]) > 8*time.Hour {
			start = i
			break
		}
	}
	return s.missing[start:]
}

// NextDownloadRange decides what funding-settlement range to fetch next. backfilling true
// extends history backwards toward the configured reach; false only extends forward.
func (s *FundingState) NextDownloadRange(backfilling bool) (FundingDownloadRange, error) {
	if !s.hasBounds {
		return FundingDownloadRange{Kind: FundingLatest}, nil
	}

	if s.reachTime != nil && s.boundStart.Equal(s.boundEnd) && s.boundStart.Before(*s.reachTime) {
		return FundingDownloadRange{}, fmt.Errorf("sync: funding settlement %s unreachable against reach %s", s.boundStart, *s.reachTime)
	}

	if group := s.latestMissingGroup(); len(group) > 0 {
		first, last := group[0], group[len(group)-1]
		if s.reachTime != nil && first.Before(*s.reachTime) {
			return FundingDownloadRange{}, fmt.Errorf("sync: missing funding settlement %s unreachable against reach %s", first, *s.reachTime)
		}
		return FundingDownloadRange{Kind: FundingMissing, From: first, To: last}, nil
	}

	if backfilling && s.reachTime != nil && s.boundStart.After(*s.reachTime) {
		return FundingDownloadRange{Kind: FundingLowerBound, To: s.boundStart}, nil
	}

	return FundingDownloadRange{Kind: FundingUpperBound, From: s.boundEnd}, nil
}

// HasMissing reports whether the reach period still has gaps: empty storage, interior
// missing settlements, or history not yet reaching back to reachTime.
func (s *FundingState) HasMissing() bool {
	if !s.hasBounds {
		return true
	}
	if len(s.missing) > 0 {
		return true
	}
	return s.reachTime != nil && s.reachTime.Before(s.boundStart)
}
