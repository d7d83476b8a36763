package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"kitetrader/internal/config"
	"kitetrader/internal/creds"
	"kitetrader/internal/domain"
	"kitetrader/internal/govern"
	"kitetrader/internal/kite"
	"kitetrader/internal/throttle"
	"kitetrader/internal/transport"
	"kitetrader/internal/util"
)

const version = "0.1.0"

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: kite-cli <command> [options]\n\n")
		fmt.Fprintf(os.Stderr, "Commands:\n")
		fmt.Fprintf(os.Stderr, "  version       Print the CLI version\n")
		fmt.Fprintf(os.Stderr, "  login         Run the two-step web login and persist the session\n")
		fmt.Fprintf(os.Stderr, "  logout        Drop the persisted session\n")
		fmt.Fprintf(os.Stderr, "  profile       Show the user profile\n")
		fmt.Fprintf(os.Stderr, "  margins       Show funds and margins\n")
		fmt.Fprintf(os.Stderr, "  quote         Full quotes for EXCHANGE:SYMBOL arguments\n")
		fmt.Fprintf(os.Stderr, "  ohlc          OHLC quotes for EXCHANGE:SYMBOL arguments\n")
		fmt.Fprintf(os.Stderr, "  ltp           Last traded prices for EXCHANGE:SYMBOL arguments\n")
		fmt.Fprintf(os.Stderr, "  holdings      List long-term holdings\n")
		fmt.Fprintf(os.Stderr, "  positions     List day and net positions\n")
		fmt.Fprintf(os.Stderr, "  orders        List orders for the day\n")
		fmt.Fprintf(os.Stderr, "  place-order   Place an order\n")
		fmt.Fprintf(os.Stderr, "  cancel-order  Cancel an open order\n")
		fmt.Fprintf(os.Stderr, "  trades        List executed trades for the day\n")
		fmt.Fprintf(os.Stderr, "  historical    Fetch candles for an instrument token\n")
		fmt.Fprintf(os.Stderr, "  instruments   Dump the instrument list for an exchange\n")
		fmt.Fprintf(os.Stderr, "\n")
	}

	if len(os.Args) < 2 {
		flag.Usage()
		os.Exit(1)
	}

	if os.Args[1] == "version" {
		fmt.Printf("kite-cli %s\n", version)
		return
	}

	cfgPath := os.Getenv("KITE_CONFIG")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := creds.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		log.Fatalf("failed to open credential store: %v", err)
	}
	defer store.Close()

	th, err := throttle.New(cfg.Throttle.Categories, cfg.Throttle.MaxPenaltyCount, logger)
	if err != nil {
		log.Fatalf("failed to build throttle: %v", err)
	}

	tr := transport.NewHTTPTransport()
	gov := govern.New(th, tr, store, logger)

	client := kite.NewClient(gov, tr, store, logger,
		kite.WithBaseURL(cfg.API.BaseURL),
		kite.WithLoginURL(cfg.API.LoginURL),
		kite.WithTimeout(time.Duration(cfg.API.TimeoutSeconds)*time.Second),
	)

	cmd := os.Args[1]
	args := os.Args[2:]

	if cmd != "login" && cmd != "logout" {
		if err := ensureSession(ctx, client, cfg); err != nil {
			log.Fatalf("%v", err)
		}
	}

	if err := run(ctx, client, cmd, args); err != nil {
		log.Fatalf("%s: %v", cmd, err)
	}
}

// ensureSession restores a persisted session or falls back to credentials
// from the configuration.
func ensureSession(ctx context.Context, client *kite.Client, cfg *config.Config) error {
	ok, err := client.Bootstrap(ctx)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}

	if cfg.API.APIKey != "" && cfg.API.AccessToken != "" {
		return client.LoginWithAPIKey(ctx, cfg.API.APIKey, cfg.API.AccessToken)
	}
	if cfg.API.AccessToken != "" {
		return client.LoginWithToken(ctx, cfg.API.AccessToken)
	}

	return fmt.Errorf("no session found, run `kite-cli login` first")
}

func run(ctx context.Context, client *kite.Client, cmd string, args []string) error {
	switch cmd {
	case "login":
		return cmdLogin(ctx, client)

	case "logout":
		return client.Logout(ctx)

	case "profile":
		p, err := client.Profile(ctx)
		if err != nil {
			return err
		}
		return printJSON(p)

	case "margins":
		m, err := client.Margins(ctx)
		if err != nil {
			return err
		}
		return printJSON(m)

	case "quote":
		if len(args) == 0 {
			return fmt.Errorf("usage: kite-cli quote EXCHANGE:SYMBOL [...]")
		}
		q, err := client.Quote(ctx, args...)
		if err != nil {
			return err
		}
		return printJSON(q)

	case "ohlc":
		if len(args) == 0 {
			return fmt.Errorf("usage: kite-cli ohlc EXCHANGE:SYMBOL [...]")
		}
		q, err := client.OHLC(ctx, args...)
		if err != nil {
			return err
		}
		return printJSON(q)

	case "ltp":
		if len(args) == 0 {
			return fmt.Errorf("usage: kite-cli ltp EXCHANGE:SYMBOL [...]")
		}
		q, err := client.LTP(ctx, args...)
		if err != nil {
			return err
		}
		return printJSON(q)

	case "holdings":
		h, err := client.Holdings(ctx)
		if err != nil {
			return err
		}
		return printJSON(h)

	case "positions":
		p, err := client.Positions(ctx)
		if err != nil {
			return err
		}
		return printJSON(p)

	case "orders":
		o, err := client.Orders(ctx)
		if err != nil {
			return err
		}
		return printJSON(o)

	case "place-order":
		return cmdPlaceOrder(ctx, client, args)

	case "cancel-order":
		return cmdCancelOrder(ctx, client, args)

	case "trades":
		tr, err := client.Trades(ctx)
		if err != nil {
			return err
		}
		return printJSON(tr)

	case "historical":
		return cmdHistorical(ctx, client, args)

	case "instruments":
		return cmdInstruments(ctx, client, args)

	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", cmd)
		flag.Usage()
		os.Exit(1)
		return nil
	}
}

func cmdLogin(ctx context.Context, client *kite.Client) error {
	reader := bufio.NewReader(os.Stdin)

	userID, err := prompt(reader, "User ID: ")
	if err != nil {
		return err
	}
	password, err := prompt(reader, "Password: ")
	if err != nil {
		return err
	}

	return client.Login(ctx, userID, password, func(twofaType string) (string, error) {
		return prompt(reader, fmt.Sprintf("Enter %s code: ", twofaType))
	})
}

func cmdPlaceOrder(ctx context.Context, client *kite.Client, args []string) error {
	fs := flag.NewFlagSet("place-order", flag.ExitOnError)
	variety := fs.String("variety", "regular", "order variety (regular, amo, co, iceberg, auction)")
	exchange := fs.String("exchange", "NSE", "exchange")
	symbol := fs.String("symbol", "", "trading symbol")
	side := fs.String("side", "", "transaction type (BUY or SELL)")
	qty := fs.Int64("qty", 0, "quantity")
	product := fs.String("product", "CNC", "product (CNC, NRML, MIS, MTF)")
	orderType := fs.String("type", "MARKET", "order type (MARKET, LIMIT, SL, SL-M)")
	price := fs.Float64("price", 0, "limit price")
	trigger := fs.Float64("trigger", 0, "trigger price")
	tag := fs.String("tag", "", "optional order tag")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *symbol == "" || *side == "" || *qty <= 0 {
		return fmt.Errorf("usage: kite-cli place-order -symbol INFY -side BUY -qty 1 [options]")
	}

	orderID, err := client.PlaceOrder(ctx, domain.Variety(*variety), domain.OrderParams{
		Exchange:        domain.Exchange(*exchange),
		TradingSymbol:   *symbol,
		TransactionType: domain.TransactionType(*side),
		Quantity:        *qty,
		Product:         domain.Product(*product),
		OrderType:       domain.OrderType(*orderType),
		Price:           *price,
		TriggerPrice:    *trigger,
		Tag:             *tag,
	})
	if err != nil {
		return err
	}

	fmt.Printf("order placed: %s\n", orderID)
	return nil
}

func cmdCancelOrder(ctx context.Context, client *kite.Client, args []string) error {
	fs := flag.NewFlagSet("cancel-order", flag.ExitOnError)
	variety := fs.String("variety", "regular", "order variety")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: kite-cli cancel-order [-variety regular] ORDER_ID")
	}

	orderID, err := client.CancelOrder(ctx, domain.Variety(*variety), fs.Arg(0))
	if err != nil {
		return err
	}

	fmt.Printf("order cancelled: %s\n", orderID)
	return nil
}

func cmdHistorical(ctx context.Context, client *kite.Client, args []string) error {
	fs := flag.NewFlagSet("historical", flag.ExitOnError)
	interval := fs.String("interval", "day", "candle interval (minute, day, 5minute, ...)")
	from := fs.String("from", "", "range start (YYYY-MM-DD)")
	to := fs.String("to", "", "range end (YYYY-MM-DD)")
	oi := fs.Bool("oi", false, "include open interest")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: kite-cli historical [options] INSTRUMENT_TOKEN")
	}

	token, err := strconv.Atoi(fs.Arg(0))
	if err != nil {
		return fmt.Errorf("invalid instrument token %q", fs.Arg(0))
	}

	end := time.Now()
	start := end.AddDate(0, 0, -30)
	if *from != "" {
		if start, err = time.Parse("2006-01-02", *from); err != nil {
			return fmt.Errorf("invalid -from date: %w", err)
		}
	}
	if *to != "" {
		if end, err = time.Parse("2006-01-02", *to); err != nil {
			return fmt.Errorf("invalid -to date: %w", err)
		}
	}

	candles, err := client.HistoricalData(ctx, token, *interval, start, end, false, *oi)
	if err != nil {
		return err
	}
	return printJSON(candles)
}

func cmdInstruments(ctx context.Context, client *kite.Client, args []string) error {
	var exchange domain.Exchange
	if len(args) > 0 {
		exchange = domain.Exchange(args[0])
	}

	instruments, err := client.Instruments(ctx, exchange)
	if err != nil {
		return err
	}

	for _, inst := range instruments {
		fmt.Printf("%d\t%s\t%s\t%s\n", inst.InstrumentToken, inst.Exchange, inst.TradingSymbol, inst.Name)
	}
	return nil
}

func prompt(reader *bufio.Reader, label string) (string, error) {
	fmt.Fprint(os.Stderr, label)
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
