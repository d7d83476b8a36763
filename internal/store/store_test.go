package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"kitetrader/internal/domain"
)

func TestParquetStorePath(t *testing.T) {
	ps := NewParquetStore("/data")

	got := ps.candlePath(408065, "day", 2024)
	want := filepath.Join("/data", "candles", "408065", "day", "2024.parquet")
	if got != want {
		t.Errorf("candlePath mismatch:\n  got  %s\n  want %s", got, want)
	}
}

func TestParquetStoreWriteReadCandles(t *testing.T) {
	dir := t.TempDir()
	ps := NewParquetStore(dir)
	ctx := context.Background()

	candles := []domain.Candle{
		{
			Timestamp: time.Date(2024, 1, 2, 9, 15, 0, 0, time.UTC),
			Open:      100.5, High: 101.2, Low: 100.1, Close: 100.9,
			Volume: 25000,
		},
		{
			Timestamp: time.Date(2024, 1, 3, 9, 15, 0, 0, time.UTC),
			Open:      100.9, High: 102.0, Low: 100.5, Close: 101.8,
			Volume: 31000,
		},
	}

	if err := ps.WriteCandles(ctx, 408065, "day", candles); err != nil {
		t.Fatalf("WriteCandles returned error: %v", err)
	}

	got, err := ps.ReadCandles(ctx, 408065, "day",
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("ReadCandles returned error: %v", err)
	}

	if len(got) != 2 {
		t.Fatalf("len(candles) = %d, want 2", len(got))
	}
	if got[0].Open != 100.5 || got[0].Volume != 25000 {
		t.Errorf("first candle = %+v", got[0])
	}
	if !got[0].Timestamp.Before(got[1].Timestamp) {
		t.Error("candles not sorted by timestamp")
	}
}

func TestParquetStoreWriteIdempotent(t *testing.T) {
	dir := t.TempDir()
	ps := NewParquetStore(dir)
	ctx := context.Background()

	ts := time.Date(2024, 1, 2, 9, 15, 0, 0, time.UTC)
	first := []domain.Candle{{Timestamp: ts, Open: 100, Close: 101, Volume: 1000}}

	if err := ps.WriteCandles(ctx, 1594, "day", first); err != nil {
		t.Fatalf("WriteCandles returned error: %v", err)
	}

	// Re-writing the same timestamp replaces the record.
	updated := []domain.Candle{{Timestamp: ts, Open: 100, Close: 102, Volume: 1500}}
	if err := ps.WriteCandles(ctx, 1594, "day", updated); err != nil {
		t.Fatalf("WriteCandles returned error: %v", err)
	}

	got, err := ps.ReadCandles(ctx, 1594, "day", ts.Add(-time.Hour), ts.Add(time.Hour))
	if err != nil {
		t.Fatalf("ReadCandles returned error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("len(candles) = %d, want 1 after idempotent rewrite", len(got))
	}
	if got[0].Close != 102 || got[0].Volume != 1500 {
		t.Errorf("candle = %+v, want updated record", got[0])
	}
}

func TestParquetStoreReadMissing(t *testing.T) {
	ps := NewParquetStore(t.TempDir())

	got, err := ps.ReadCandles(context.Background(), 999, "day",
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("ReadCandles returned error: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("ReadCandles on missing data = %v, want empty", got)
	}
}

func TestParquetStoreListInstruments(t *testing.T) {
	dir := t.TempDir()
	ps := NewParquetStore(dir)
	ctx := context.Background()

	candle := []domain.Candle{{Timestamp: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), Close: 1}}
	for _, token := range []int{738561, 408065} {
		if err := ps.WriteCandles(ctx, token, "day", candle); err != nil {
			t.Fatalf("WriteCandles returned error: %v", err)
		}
	}
	if err := ps.WriteCandles(ctx, 5633, "minute", candle); err != nil {
		t.Fatalf("WriteCandles returned error: %v", err)
	}

	tokens, err := ps.ListInstruments(ctx, "day")
	if err != nil {
		t.Fatalf("ListInstruments returned error: %v", err)
	}
	if len(tokens) != 2 || tokens[0] != 408065 || tokens[1] != 738561 {
		t.Errorf("tokens = %v, want [408065 738561] sorted", tokens)
	}
}
