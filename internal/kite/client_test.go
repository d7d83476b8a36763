package kite

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"kitetrader/internal/creds"
	"kitetrader/internal/domain"
	"kitetrader/internal/govern"
	"kitetrader/internal/throttle"
	"kitetrader/internal/transport"
)

// newTestClient wires a real throttle/governor/transport against an
// httptest server. Ceilings are set high enough that no test call lands on
// a boundary.
func newTestClient(t *testing.T, handler http.Handler) (*Client, *creds.SQLiteStore, *httptest.Server) {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	log := slog.New(slog.DiscardHandler)

	th, err := throttle.New(throttle.Config{
		CategoryQuote:      {RequestsPerSecond: 1000},
		CategoryHistorical: {RequestsPerSecond: 1000},
		CategoryOrder:      {RequestsPerSecond: 1000, RequestsPerMinute: 100000},
		CategoryDefault:    {RequestsPerSecond: 1000},
	}, 15, log)
	if err != nil {
		t.Fatalf("throttle.New returned error: %v", err)
	}

	cs, err := creds.NewSQLiteStore(filepath.Join(t.TempDir(), "session.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore returned error: %v", err)
	}
	t.Cleanup(func() { cs.Close() })

	tr := transport.NewHTTPTransport()
	g := govern.New(th, tr, cs, log)

	c := NewClient(g, tr, cs, log,
		WithBaseURL(srv.URL),
		WithLoginURL(srv.URL),
		WithTimeout(5*time.Second),
	)

	return c, cs, srv
}

func jsonData(w http.ResponseWriter, data string) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"status":"success","data":%s}`, data)
}

func TestQuote(t *testing.T) {
	var gotPath, gotQuery, gotAuth string

	c, _, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.Query().Get("i")
		gotAuth = r.Header.Get("Authorization")
		jsonData(w, `{"NSE:INFY":{"instrument_token":408065,"last_price":1520.5,"volume":120000,"ohlc":{"open":1500,"high":1530,"low":1495,"close":1510}}}`)
	}))

	if err := c.LoginWithToken(context.Background(), "tok123"); err != nil {
		t.Fatalf("LoginWithToken returned error: %v", err)
	}

	quotes, err := c.Quote(context.Background(), "NSE:INFY")
	if err != nil {
		t.Fatalf("Quote returned error: %v", err)
	}

	if gotPath != "/quote" {
		t.Errorf("path = %q, want /quote", gotPath)
	}
	if gotQuery != "NSE:INFY" {
		t.Errorf("i = %q, want NSE:INFY", gotQuery)
	}
	if gotAuth != "enctoken tok123" {
		t.Errorf("Authorization = %q, want %q", gotAuth, "enctoken tok123")
	}

	q, ok := quotes["NSE:INFY"]
	if !ok {
		t.Fatalf("quotes = %v, want NSE:INFY entry", quotes)
	}
	if q.LastPrice != 1520.5 {
		t.Errorf("LastPrice = %v, want 1520.5", q.LastPrice)
	}
	if q.OHLC.High != 1530 {
		t.Errorf("OHLC.High = %v, want 1530", q.OHLC.High)
	}
}

func TestQuoteInstrumentLimit(t *testing.T) {
	c, _, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("server should not be called")
	}))

	instruments := make([]string, 501)
	for i := range instruments {
		instruments[i] = fmt.Sprintf("NSE:SYM%d", i)
	}

	if _, err := c.Quote(context.Background(), instruments...); err == nil {
		t.Fatal("Quote with 501 instruments should fail")
	}
}

func TestPlaceOrder(t *testing.T) {
	var gotMethod, gotPath string
	var gotForm map[string][]string

	c, _, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		r.ParseForm()
		gotForm = r.PostForm
		jsonData(w, `{"order_id":"240603000000001"}`)
	}))

	orderID, err := c.PlaceOrder(context.Background(), domain.VarietyRegular, domain.OrderParams{
		Exchange:        domain.ExchangeNSE,
		TradingSymbol:   "INFY",
		TransactionType: domain.TransactionTypeBuy,
		Quantity:        10,
		Product:         domain.ProductCNC,
		OrderType:       domain.OrderTypeLimit,
		Price:           1500.5,
	})
	if err != nil {
		t.Fatalf("PlaceOrder returned error: %v", err)
	}

	if orderID != "240603000000001" {
		t.Errorf("orderID = %q, want 240603000000001", orderID)
	}
	if gotMethod != http.MethodPost {
		t.Errorf("method = %q, want POST", gotMethod)
	}
	if gotPath != "/orders/regular" {
		t.Errorf("path = %q, want /orders/regular", gotPath)
	}

	want := map[string]string{
		"exchange":         "NSE",
		"tradingsymbol":    "INFY",
		"transaction_type": "BUY",
		"quantity":         "10",
		"product":          "CNC",
		"order_type":       "LIMIT",
		"price":            "1500.5",
	}
	for k, v := range want {
		if got := gotForm[k]; len(got) != 1 || got[0] != v {
			t.Errorf("form[%q] = %v, want %q", k, got, v)
		}
	}

	// Zero-valued optional fields are omitted.
	for _, k := range []string{"trigger_price", "validity", "tag", "disclosed_quantity"} {
		if _, ok := gotForm[k]; ok {
			t.Errorf("form contains %q, want omitted", k)
		}
	}
}

func TestCancelOrder(t *testing.T) {
	var gotMethod, gotPath string

	c, _, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		jsonData(w, `{"order_id":"240603000000001"}`)
	}))

	orderID, err := c.CancelOrder(context.Background(), domain.VarietyRegular, "240603000000001")
	if err != nil {
		t.Fatalf("CancelOrder returned error: %v", err)
	}
	if orderID != "240603000000001" {
		t.Errorf("orderID = %q", orderID)
	}
	if gotMethod != http.MethodDelete {
		t.Errorf("method = %q, want DELETE", gotMethod)
	}
	if gotPath != "/orders/regular/240603000000001" {
		t.Errorf("path = %q", gotPath)
	}
}

func TestHistoricalData(t *testing.T) {
	var gotPath string
	var gotQuery map[string][]string

	c, _, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.Query()
		jsonData(w, `{"candles":[
			["2024-06-03T09:15:00+0530",100.5,101.2,100.1,100.9,25000],
			["2024-06-03T09:16:00+0530",100.9,101.5,100.8,101.1,18000]
		]}`)
	}))

	from := time.Date(2024, 6, 3, 9, 15, 0, 0, time.UTC)
	to := time.Date(2024, 6, 3, 15, 30, 0, 0, time.UTC)

	candles, err := c.HistoricalData(context.Background(), 408065, "minute", from, to, false, false)
	if err != nil {
		t.Fatalf("HistoricalData returned error: %v", err)
	}

	if gotPath != "/instruments/historical/408065/minute" {
		t.Errorf("path = %q", gotPath)
	}
	if got := gotQuery["from"]; len(got) != 1 || got[0] != "2024-06-03 09:15:00" {
		t.Errorf("from = %v", got)
	}
	if got := gotQuery["continuous"]; len(got) != 1 || got[0] != "0" {
		t.Errorf("continuous = %v", got)
	}

	if len(candles) != 2 {
		t.Fatalf("len(candles) = %d, want 2", len(candles))
	}
	first := candles[0]
	if first.Open != 100.5 || first.Close != 100.9 || first.Volume != 25000 {
		t.Errorf("first candle = %+v", first)
	}
	if first.Timestamp.Hour() != 9 || first.Timestamp.Minute() != 15 {
		t.Errorf("first candle timestamp = %v", first.Timestamp)
	}
}

func TestSessionExpiryDeletesCredentials(t *testing.T) {
	c, cs, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))

	ctx := context.Background()
	if err := c.LoginWithToken(ctx, "stale-token"); err != nil {
		t.Fatalf("LoginWithToken returned error: %v", err)
	}

	_, err := c.Profile(ctx)
	if govern.KindOf(err) != govern.KindSessionExpired {
		t.Fatalf("KindOf(err) = %v, want session expired (err: %v)", govern.KindOf(err), err)
	}

	// Credentials must be gone: a fresh bootstrap finds no session.
	stored, err := cs.Load(ctx)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if stored != nil {
		t.Errorf("credentials still stored after 403: %+v", stored)
	}

	ok, err := c.Bootstrap(ctx)
	if err != nil {
		t.Fatalf("Bootstrap returned error: %v", err)
	}
	if ok {
		t.Error("Bootstrap succeeded after session expiry, want re-authentication required")
	}
}

func TestLoginFlow(t *testing.T) {
	var loginCalls, twofaCalls int

	mux := http.NewServeMux()
	mux.HandleFunc("/api/login", func(w http.ResponseWriter, r *http.Request) {
		loginCalls++
		r.ParseForm()
		if r.PostForm.Get("user_id") != "AB1234" || r.PostForm.Get("password") != "secret" {
			t.Errorf("login form = %v", r.PostForm)
		}
		jsonData(w, `{"request_id":"req-1","twofa_type":"totp"}`)
	})
	mux.HandleFunc("/api/twofa", func(w http.ResponseWriter, r *http.Request) {
		twofaCalls++
		r.ParseForm()
		if r.PostForm.Get("request_id") != "req-1" || r.PostForm.Get("twofa_value") != "123456" {
			t.Errorf("twofa form = %v", r.PostForm)
		}
		http.SetCookie(w, &http.Cookie{Name: "enctoken", Value: "enc-xyz"})
		jsonData(w, `{}`)
	})

	c, cs, _ := newTestClient(t, mux)
	ctx := context.Background()

	err := c.Login(ctx, "AB1234", "secret", func(twofaType string) (string, error) {
		if twofaType != "totp" {
			t.Errorf("twofaType = %q, want totp", twofaType)
		}
		return "123456", nil
	})
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}

	if loginCalls != 1 || twofaCalls != 1 {
		t.Errorf("login calls = %d, twofa calls = %d, want 1 and 1", loginCalls, twofaCalls)
	}

	stored, err := cs.Load(ctx)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if stored == nil || stored.Token != "enc-xyz" {
		t.Errorf("stored credentials = %+v, want enctoken enc-xyz", stored)
	}
}

func TestInstruments(t *testing.T) {
	const dump = `instrument_token,exchange_token,tradingsymbol,name,last_price,expiry,strike,lot_size,instrument_type,segment,exchange,tick_size
408065,1594,INFY,INFOSYS,1520.5,,0,1,EQ,NSE,NSE,0.05
738561,2885,RELIANCE,RELIANCE INDUSTRIES,2900,,0,1,EQ,NSE,NSE,0.05
`

	var gotPath string
	c, _, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "text/csv")
		w.Write([]byte(dump))
	}))

	instruments, err := c.Instruments(context.Background(), domain.ExchangeNSE)
	if err != nil {
		t.Fatalf("Instruments returned error: %v", err)
	}

	if gotPath != "/instruments/NSE" {
		t.Errorf("path = %q, want /instruments/NSE", gotPath)
	}
	if len(instruments) != 2 {
		t.Fatalf("len(instruments) = %d, want 2", len(instruments))
	}

	infy := instruments[0]
	if infy.InstrumentToken != 408065 || infy.TradingSymbol != "INFY" {
		t.Errorf("first instrument = %+v", infy)
	}
	if infy.TickSize != 0.05 || infy.LotSize != 1 {
		t.Errorf("tick/lot = %v/%v", infy.TickSize, infy.LotSize)
	}
}

func TestHoldings(t *testing.T) {
	c, _, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/portfolio/holdings" {
			t.Errorf("path = %q", r.URL.Path)
		}
		jsonData(w, `[{"tradingsymbol":"INFY","exchange":"NSE","quantity":50,"average_price":1400,"last_price":1520.5,"pnl":6025}]`)
	}))

	holdings, err := c.Holdings(context.Background())
	if err != nil {
		t.Fatalf("Holdings returned error: %v", err)
	}
	if len(holdings) != 1 {
		t.Fatalf("len(holdings) = %d, want 1", len(holdings))
	}
	if holdings[0].Quantity != 50 || holdings[0].PnL != 6025 {
		t.Errorf("holding = %+v", holdings[0])
	}
}

func TestBootstrapRestoresSession(t *testing.T) {
	var gotAuth string

	c, cs, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		jsonData(w, `{"user_id":"AB1234","user_name":"Test","broker":"ZERODHA"}`)
	}))

	ctx := context.Background()
	if err := cs.Save(ctx, creds.Credentials{
		Token:  "persisted-tok",
		Expiry: time.Now().Add(time.Hour),
	}); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}

	ok, err := c.Bootstrap(ctx)
	if err != nil {
		t.Fatalf("Bootstrap returned error: %v", err)
	}
	if !ok {
		t.Fatal("Bootstrap = false, want restored session")
	}

	p, err := c.Profile(ctx)
	if err != nil {
		t.Fatalf("Profile returned error: %v", err)
	}
	if p.UserID != "AB1234" {
		t.Errorf("UserID = %q", p.UserID)
	}
	if gotAuth != "enctoken persisted-tok" {
		t.Errorf("Authorization = %q", gotAuth)
	}
}

func TestBootstrapSkipsExpiredSession(t *testing.T) {
	c, cs, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("server should not be called")
	}))

	ctx := context.Background()
	if err := cs.Save(ctx, creds.Credentials{
		Token:  "old-tok",
		Expiry: time.Now().Add(-time.Hour),
	}); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}

	ok, err := c.Bootstrap(ctx)
	if err != nil {
		t.Fatalf("Bootstrap returned error: %v", err)
	}
	if ok {
		t.Error("Bootstrap = true for an expired session, want false")
	}
}
