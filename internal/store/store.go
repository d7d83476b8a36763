// Package store persists market data pulled through the client, so
// repeated archive runs do not re-download finished sessions.
package store

import (
	"context"
	"time"

	"kitetrader/internal/domain"
)

// CandleStore persists and retrieves historical candle data.
type CandleStore interface {
	// WriteCandles persists a batch of candles for one instrument and
	// interval. Re-writing overlapping ranges is idempotent.
	WriteCandles(ctx context.Context, instrumentToken int, interval string, candles []domain.Candle) error

	// ReadCandles returns candles for the instrument and interval within
	// [start, end].
	ReadCandles(ctx context.Context, instrumentToken int, interval string, start, end time.Time) ([]domain.Candle, error)

	// ListInstruments returns all instrument tokens with archived data for
	// the given interval.
	ListInstruments(ctx context.Context, interval string) ([]int, error)
}
