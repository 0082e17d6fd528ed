// Package consolidator implements the incremental multi-resolution OHLC aggregator: a
// RuntimeConsolidator accumulates 1-minute candles into one target resolution, and a
// MultiResolutionConsolidator fans a single 1-minute stream out to several resolutions at
// once for operators that need more than one lookback window.
package consolidator

import (
	"fmt"
	"time"

	"github.com/flemosr/quantoxide-sub000/internal/candle"
)

// bucketAccumulator accumulates ticks belonging to a single resolution bucket.
type bucketAccumulator struct {
	start      time.Time
	open       float64
	high       float64
	low        float64
	close      float64
	volume     float64
	minCreated time.Time
	maxUpdated time.Time
	allStable  bool
	seeded     bool
}

func (b *bucketAccumulator) push(c candle.OHLC) {
	if !b.seeded {
		b.open = c.Open
		b.high = c.High
		b.low = c.Low
		b.minCreated = c.Timestamp
		b.seeded = true
	} else {
		if c.High > b.high {
			b.high = c.High
		}
		if c.Low < b.low {
			b.low = c.Low
		}
	}
	b.close = c.Close
	b.volume += c.Volume
	b.allStable = c.AllStable
	if c.UpdatedAt.After(b.maxUpdated) {
		b.maxUpdated = c.UpdatedAt
	}
}

func (b *bucketAccumulator) toCandle(stable bool) candle.OHLC {
	return candle.OHLC{
		Timestamp: b.start,
		Open:      b.open,
		High:      b.high,
		Low:       b.low,
		Close:     b.close,
		Volume:    b.volume,
		UpdatedAt: b.maxUpdated,
		AllStable: stable,
	}
}

// RuntimeConsolidator aggregates a 1-minute candle stream into one target resolution,
// keeping a bounded lookback window of completed candles plus one in-progress bucket.
type RuntimeConsolidator struct {
	resolution   time.Duration
	lookback     int
	passthrough  bool
	completed    []candle.OHLC
	current      *bucketAccumulator
	lastPushedAt time.Time
}

// New creates a consolidator for the given target resolution and lookback (number of
// completed candles retained). A resolution of exactly one minute is a pass-through: every
// pushed candle becomes its own completed bucket immediately.
func New(resolution time.Duration, lookback int) *RuntimeConsolidator {
	return &RuntimeConsolidator{
		resolution:  resolution,
		lookback:    lookback,
		passthrough: resolution == time.Minute,
	}
}

// floorToBucket floors ts to the start of its resolution bucket.
func (c *RuntimeConsolidator) floorToBucket(ts time.Time) time.Time {
	secs := ts.Unix()
	resSecs := int64(c.resolution / time.Second)
	floored := (secs / resSecs) * resSecs
	return time.Unix(floored, 0).UTC()
}

// Push feeds a new 1-minute candle into the consolidator. Candles must arrive in
// non-decreasing timestamp order; a candle strictly older than the current bucket is
// rejected.
func (c *RuntimeConsolidator) Push(in candle.OHLC) error {
	if c.passthrough {
		in.Timestamp = c.floorToBucket(in.Timestamp)
		if !c.lastPushedAt.IsZero() && in.Timestamp.Before(c.lastPushedAt) {
			return fmt.Errorf("consolidator: out-of-order candle at %s (last at %s)", in.Timestamp, c.lastPushedAt)
		}
		c.lastPushedAt = in.Timestamp
		c.completed = append(c.completed, in)
		c.trim()
		return nil
	}

	bucketStart := c.floorToBucket(in.Timestamp)

	if c.current == nil {
		c.current = &bucketAccumulator{start: bucketStart}
	} else if bucketStart.Before(c.current.start) {
		return fmt.Errorf("consolidator: out-of-order candle at %s (current bucket %s)", in.Timestamp, c.current.start)
	} else if bucketStart.After(c.current.start) {
		c.finalizeCurrent()
		c.current = &bucketAccumulator{start: bucketStart}
	}

	c.current.push(in)
	c.lastPushedAt = in.Timestamp
	return nil
}

func (c *RuntimeConsolidator) finalizeCurrent() {
	if c.current == nil {
		return
	}
	c.completed = append(c.completed, c.current.toCandle(true))
	c.trim()
}

func (c *RuntimeConsolidator) trim() {
	if c.lookback > 0 && len(c.completed) > c.lookback {
		c.completed = c.completed[len(c.completed)-c.lookback:]
	}
}

// CompletedCount returns the number of finalized (stable) candles retained.
func (c *RuntimeConsolidator) CompletedCount() int { return len(c.completed) }

// GetCandles returns the completed candles followed by the in-progress bucket (if any,
// marked unstable), oldest first — the view an operator's lookback window consumes.
func (c *RuntimeConsolidator) GetCandles() []candle.OHLC {
	out := make([]candle.OHLC, 0, len(c.completed)+1)
	out = append(out, c.completed...)
	if !c.passthrough && c.current != nil {
		out = append(out, c.current.toCandle(false))
	}
	return out
}

// MultiResolutionConsolidator fans a single 1-minute candle stream out to several target
// resolutions, one RuntimeConsolidator per resolution.
type MultiResolutionConsolidator struct {
	byResolution map[time.Duration]*RuntimeConsolidator
}

// NewMulti creates a multi-resolution consolidator for the given (resolution, lookback)
// pairs.
func NewMulti(specs map[time.Duration]int) *MultiResolutionConsolidator {
	m := &MultiResolutionConsolidator{byResolution: make(map[time.Duration]*RuntimeConsolidator, len(specs))}
	for res, lookback := range specs {
		m.byResolution[res] = New(res, lookback)
	}
	return m
}

// Push feeds in to every configured resolution.
func (m *MultiResolutionConsolidator) Push(in candle.OHLC) error {
	for _, c := range m.byResolution {
		if err := c.Push(in); err != nil {
			return err
		}
	}
	return nil
}

// For returns the consolidator for the given resolution, or nil if unconfigured.
func (m *MultiResolutionConsolidator) For(resolution time.Duration) *RuntimeConsolidator {
	return m.byResolution[resolution]
}
