// Package candle defines the OHLC candle type shared by the consolidator, the backtest
// engine, the simulated executor, and the storage layer.
package candle

import "time"

// OHLC is a single open/high/low/close/volume bar for one resolution, spanning
// [Timestamp, Timestamp+Resolution).
type OHLC struct {
	Timestamp  time.Time
	Open       float64
	High       float64
	Low        float64
	Close      float64
	Volume     float64
	UpdatedAt  time.Time
	AllStable  bool // false while the bucket is still being assembled from partial ticks
}

// Contains reports whether ts falls within this candle's span, given its resolution.
func (c OHLC) Contains(ts time.Time, resolution time.Duration) bool {
	end := c.Timestamp.Add(resolution)
	return !ts.Before(c.Timestamp) && ts.Before(end)
}
