// Package storage provides persistent storage for OHLC candles and funding settlements
// using BoltDB. Keys are big-endian encoded so byte-order comparison matches chronological
// order, letting range scans use BoltDB's cursor directly instead of string comparison.
package storage

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"

	"github.com/flemosr/quantoxide-sub000/internal/candle"
)

const (
	candlesBucket    = "candles"
	settlementBucket = "funding_settlements"
)

// FundingSettlement is the persisted record of a funding settlement event.
type FundingSettlement struct {
	ID          string    `json:"id"`
	Time        time.Time `json:"time"`
	FixingPrice float64   `json:"fixing_price"`
	FundingRate float64   `json:"funding_rate"`
	CreatedAt   time.Time `json:"created_at"`
}

// Store is the persistent candle/funding-settlement store.
type Store struct {
	db *bbolt.DB
}

// New opens (creating if necessary) a BoltDB database under dataPath.
func New(dataPath string) (*Store, error) {
	dbPath := filepath.Join(dataPath, "quantoxide-data.db")

	db, err := bbolt.Open(dbPath, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("storage: failed to open database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(candlesBucket)); err != nil {
			return fmt.Errorf("create candles bucket: %w", err)
		}
		if _, err := tx.CreateBucketIfNotExists([]byte(settlementBucket)); err != nil {
			return fmt.Errorf("create funding settlements bucket: %w", err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// candleKey groups candles by the resolution they were consolidated at: the key is the
// resolution's nanosecond count followed by the big-endian timestamp, so that a cursor scan
// within one resolution visits keys in chronological order.
func candleKey(resolution time.Duration, ts time.Time) []byte {
	key := make([]byte, 8+8)
	binary.BigEndian.PutUint64(key[:8], uint64(resolution))
	binary.BigEndian.PutUint64(key[8:], uint64(ts.UnixNano()))
	return key
}

// StoreCandle persists a single OHLC candle at the given resolution.
func (s *Store) StoreCandle(resolution time.Duration, c candle.OHLC) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(candlesBucket))
		data, err := json.Marshal(c)
		if err != nil {
			return fmt.Errorf("storage: marshal candle: %w", err)
		}
		return b.Put(candleKey(resolution, c.Timestamp), data)
	})
}

// GetCandles returns candles at the given resolution within [start, end], inclusive,
// ordered oldest-first.
func (s *Store) GetCandles(resolution time.Duration, start, end time.Time) ([]candle.OHLC, error) {
	var out []candle.OHLC

	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(candlesBucket))
		c := b.Cursor()

		startKey := candleKey(resolution, start)
		endKey := candleKey(resolution, end)

		for k, v := c.Seek(startKey); k != nil && compareKeys(k, endKey) <= 0; k, v = c.Next() {
			if !sameResolution(k, resolution) {
				continue
			}
			var candleRecord candle.OHLC
			if err := json.Unmarshal(v, &candleRecord); err != nil {
				continue
			}
			out = append(out, candleRecord)
		}
		return nil
	})

	return out, err
}

func sameResolution(key []byte, resolution time.Duration) bool {
	if len(key) < 8 {
		return false
	}
	return binary.BigEndian.Uint64(key[:8]) == uint64(resolution)
}

func compareKeys(a, b []byte) int {
	for i := range a {
		if i >= len(b) {
			return 1
		}
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	if len(b) > len(a) {
		return -1
	}
	return 0
}

func settlementKey(ts time.Time) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, uint64(ts.UnixNano()))
	return key
}

// StoreFundingSettlement persists a funding settlement record.
func (s *Store) StoreFundingSettlement(f FundingSettlement) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(settlementBucket))
		data, err := json.Marshal(f)
		if err != nil {
			return fmt.Errorf("storage: marshal funding settlement: %w", err)
		}
		return b.Put(settlementKey(f.Time), data)
	})
}

// GetFundingSettlements returns settlements within [start, end], inclusive, oldest-first.
func (s *Store) GetFundingSettlements(start, end time.Time) ([]FundingSettlement, error) {
	var out []FundingSettlement

	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(settlementBucket))
		c := b.Cursor()

		startKey := settlementKey(start)
		endKey := settlementKey(end)

		for k, v := c.Seek(startKey); k != nil && compareKeys(k, endKey) <= 0; k, v = c.Next() {
			var f FundingSettlement
			if err := json.Unmarshal(v, &f); err != nil {
				continue
			}
			out = append(out, f)
		}
		return nil
	})

	return out, err
}
