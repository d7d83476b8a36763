package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/parquet-go/parquet-go"

	"kitetrader/internal/domain"
)

// Compile-time interface check.
var _ CandleStore = (*ParquetStore)(nil)

// ParquetStore implements CandleStore using Parquet files on disk.
type ParquetStore struct {
	DataDir string
}

// NewParquetStore creates a new ParquetStore rooted at the given data
// directory.
func NewParquetStore(dataDir string) *ParquetStore {
	return &ParquetStore{DataDir: dataDir}
}

// CandleRecord is the Parquet schema for candle data.
type CandleRecord struct {
	InstrumentToken int64   `parquet:"instrument_token"`
	Timestamp       int64   `parquet:"timestamp,timestamp(millisecond)"` // Unix ms
	Open            float64 `parquet:"open"`
	High            float64 `parquet:"high"`
	Low             float64 `parquet:"low"`
	Close           float64 `parquet:"close"`
	Volume          int64   `parquet:"volume"`
	OI              int64   `parquet:"oi"`
}

// WriteCandles writes candles to Parquet files grouped by year. Each
// instrument+interval+year combination produces a separate file at:
//
//	<DataDir>/candles/<TOKEN>/<interval>/<YYYY>.parquet
//
// Existing records for the same timestamps are replaced, so re-archiving an
// overlapping range is idempotent.
func (s *ParquetStore) WriteCandles(_ context.Context, instrumentToken int, interval string, candles []domain.Candle) error {
	if len(candles) == 0 {
		return nil
	}

	groups := make(map[int][]CandleRecord)
	for _, c := range candles {
		year := c.Timestamp.Year()
		groups[year] = append(groups[year], CandleRecord{
			InstrumentToken: int64(instrumentToken),
			Timestamp:       c.Timestamp.UnixMilli(),
			Open:            c.Open,
			High:            c.High,
			Low:             c.Low,
			Close:           c.Close,
			Volume:          c.Volume,
			OI:              c.OI,
		})
	}

	for year, records := range groups {
		path := s.candlePath(instrumentToken, interval, year)

		// Read existing records to merge.
		existing, _ := readParquetFile[CandleRecord](path)
		merged := mergeCandleRecords(existing, records)

		if err := writeParquetFile(path, merged); err != nil {
			return fmt.Errorf("writing candles for %d/%d: %w", instrumentToken, year, err)
		}
	}
	return nil
}

// ReadCandles reads candles from Parquet files for the given instrument and
// time range.
func (s *ParquetStore) ReadCandles(_ context.Context, instrumentToken int, interval string, start, end time.Time) ([]domain.Candle, error) {
	var candles []domain.Candle
	for year := start.Year(); year <= end.Year(); year++ {
		path := s.candlePath(instrumentToken, interval, year)

		records, err := readParquetFile[CandleRecord](path)
		if err != nil {
			// No file for this year, skip.
			continue
		}

		for _, r := range records {
			ts := time.UnixMilli(r.Timestamp)
			if (ts.Equal(start) || ts.After(start)) && (ts.Equal(end) || ts.Before(end)) {
				candles = append(candles, domain.Candle{
					Timestamp: ts,
					Open:      r.Open,
					High:      r.High,
					Low:       r.Low,
					Close:     r.Close,
					Volume:    r.Volume,
					OI:        r.OI,
				})
			}
		}
	}
	return candles, nil
}

// ListInstruments lists all instrument tokens with archived data for the
// given interval.
func (s *ParquetStore) ListInstruments(_ context.Context, interval string) ([]int, error) {
	dir := filepath.Join(s.DataDir, "candles")
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var tokens []int
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		token, err := strconv.Atoi(e.Name())
		if err != nil {
			continue
		}
		if _, err := os.Stat(filepath.Join(dir, e.Name(), interval)); err == nil {
			tokens = append(tokens, token)
		}
	}
	sort.Ints(tokens)
	return tokens, nil
}

// candlePath returns the filesystem path for a candle Parquet file.
func (s *ParquetStore) candlePath(instrumentToken int, interval string, year int) string {
	return filepath.Join(s.DataDir, "candles",
		strconv.Itoa(instrumentToken), interval, strconv.Itoa(year)+".parquet")
}

// ---------------------------------------------------------------------------
// Parquet file helpers
// ---------------------------------------------------------------------------

func writeParquetFile[T any](path string, records []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return parquet.WriteFile(path, records)
}

func readParquetFile[T any](path string) ([]T, error) {
	rows, err := parquet.ReadFile[T](path)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// mergeCandleRecords deduplicates candle records by timestamp, preferring
// new records over existing ones. Results are sorted by timestamp.
func mergeCandleRecords(existing, incoming []CandleRecord) []CandleRecord {
	seen := make(map[int64]CandleRecord, len(existing)+len(incoming))
	for _, r := range existing {
		seen[r.Timestamp] = r
	}
	for _, r := range incoming {
		seen[r.Timestamp] = r
	}

	merged := make([]CandleRecord, 0, len(seen))
	for _, r := range seen {
		merged = append(merged, r)
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].Timestamp < merged[j].Timestamp
	})
	return merged
}
