package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"kitetrader/internal/config"
	"kitetrader/internal/creds"
	"kitetrader/internal/govern"
	"kitetrader/internal/kite"
	"kitetrader/internal/store"
	"kitetrader/internal/throttle"
	"kitetrader/internal/transport"
	"kitetrader/internal/util"
)

func main() {
	cfgPath := os.Getenv("KITE_CONFIG")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	credStore, err := creds.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		log.Fatalf("failed to open credential store: %v", err)
	}
	defer credStore.Close()

	th, err := throttle.New(cfg.Throttle.Categories, cfg.Throttle.MaxPenaltyCount, logger)
	if err != nil {
		log.Fatalf("failed to build throttle: %v", err)
	}

	tr := transport.NewHTTPTransport()
	gov := govern.New(th, tr, credStore, logger)

	client := kite.NewClient(gov, tr, credStore, logger,
		kite.WithBaseURL(cfg.API.BaseURL),
		kite.WithLoginURL(cfg.API.LoginURL),
		kite.WithTimeout(time.Duration(cfg.API.TimeoutSeconds)*time.Second),
	)

	ok, err := client.Bootstrap(ctx)
	if err != nil {
		log.Fatalf("failed to restore session: %v", err)
	}
	if !ok {
		if cfg.API.APIKey != "" && cfg.API.AccessToken != "" {
			if err := client.LoginWithAPIKey(ctx, cfg.API.APIKey, cfg.API.AccessToken); err != nil {
				log.Fatalf("failed to login: %v", err)
			}
		} else {
			log.Fatal("no session found, run `kite-cli login` first")
		}
	}

	pstore := store.NewParquetStore(cfg.Storage.DataDir)

	archiver := &archiver{
		client:   client,
		store:    pstore,
		calendar: util.NewNSECalendar(),
		cfg:      cfg.Archive,
		log:      logger,
	}

	slog.Info("starting kite-archiver",
		"instruments", len(cfg.Archive.Instruments),
		"interval", cfg.Archive.Interval)

	if err := archiver.run(ctx); err != nil {
		log.Fatalf("archiver error: %v", err)
	}
}

// archiver pulls historical candles for the configured instruments and
// persists them to the candle store. Each run resumes from the newest
// archived candle, so overlapping pulls are harmless.
type archiver struct {
	client   *kite.Client
	store    store.CandleStore
	calendar *util.NSECalendar
	cfg      config.ArchiveConfig
	log      *slog.Logger
}

func (a *archiver) run(ctx context.Context) error {
	if len(a.cfg.Instruments) == 0 {
		return fmt.Errorf("no instruments configured")
	}

	end := a.calendar.LastTradingDay(time.Now()).Add(24*time.Hour - time.Second)

	for _, token := range a.cfg.Instruments {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := a.archiveInstrument(ctx, token, end); err != nil {
			a.log.Error("archive failed", "instrument", token, "error", err)
			continue
		}
	}
	return nil
}

func (a *archiver) archiveInstrument(ctx context.Context, token int, end time.Time) error {
	start, err := a.resumePoint(ctx, token)
	if err != nil {
		return err
	}
	if !start.Before(end) {
		a.log.Debug("instrument up to date", "instrument", token)
		return nil
	}

	batchDays := a.cfg.BatchDays
	if batchDays <= 0 {
		batchDays = 60
	}

	total := 0
	for cursor := start; cursor.Before(end); {
		batchEnd := cursor.AddDate(0, 0, batchDays)
		if batchEnd.After(end) {
			batchEnd = end
		}

		candles, err := a.client.HistoricalData(ctx, token, a.cfg.Interval, cursor, batchEnd, false, true)
		if err != nil {
			return fmt.Errorf("fetching %s to %s: %w",
				cursor.Format("2006-01-02"), batchEnd.Format("2006-01-02"), err)
		}

		if len(candles) > 0 {
			if err := a.store.WriteCandles(ctx, token, a.cfg.Interval, candles); err != nil {
				return fmt.Errorf("persisting batch: %w", err)
			}
			total += len(candles)
		}

		cursor = batchEnd.Add(time.Second)
	}

	a.log.Info("archived instrument", "instrument", token, "candles", total)
	return nil
}

// resumePoint returns where archiving should start for an instrument: just
// after the newest archived candle, or the configured start date for a
// fresh instrument.
func (a *archiver) resumePoint(ctx context.Context, token int) (time.Time, error) {
	configured := time.Now().AddDate(-1, 0, 0)
	if a.cfg.StartDate != "" {
		t, err := time.Parse("2006-01-02", a.cfg.StartDate)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid start_date %q: %w", a.cfg.StartDate, err)
		}
		configured = t
	}

	existing, err := a.store.ReadCandles(ctx, token, a.cfg.Interval, configured, time.Now())
	if err != nil {
		return time.Time{}, fmt.Errorf("reading archived candles: %w", err)
	}
	if len(existing) == 0 {
		return configured, nil
	}

	return existing[len(existing)-1].Timestamp.Add(time.Second), nil
}
