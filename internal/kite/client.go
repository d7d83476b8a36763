// Package kite implements the Zerodha Kite API client. Every endpoint
// method builds its URL and payload, then delegates to the request governor,
// which applies throttling and classifies the HTTP outcome.
package kite

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"kitetrader/internal/creds"
	"kitetrader/internal/domain"
	"kitetrader/internal/govern"
	"kitetrader/internal/transport"
)

// Throttle categories. Market-data reads use quote, candle pulls use
// historical, order endpoints use order, and everything else uses default.
const (
	CategoryQuote      = "quote"
	CategoryHistorical = "historical"
	CategoryOrder      = "order"
	CategoryDefault    = "default"
)

const (
	defaultBaseURL  = "https://api.kite.trade"
	defaultLoginURL = "https://kite.zerodha.com"
	defaultTimeout  = 15 * time.Second

	maxQuoteInstruments = 500
	maxOHLCInstruments  = 1000
)

// Client is the session-authenticated Kite API client.
type Client struct {
	governor  *govern.Governor
	transport *transport.HTTPTransport
	creds     creds.Store

	baseURL  string
	loginURL string
	timeout  time.Duration
	log      *slog.Logger
}

// Option customises a Client.
type Option func(*Client)

// WithBaseURL overrides the API base URL.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithLoginURL overrides the web login base URL.
func WithLoginURL(u string) Option {
	return func(c *Client) { c.loginURL = strings.TrimRight(u, "/") }
}

// WithTimeout overrides the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// NewClient builds a Client on top of a governor and the transport/store it
// governs. The transport must be the same instance the governor executes
// through, since the client updates its Authorization header on login.
func NewClient(g *govern.Governor, tr *transport.HTTPTransport, cs creds.Store, log *slog.Logger, opts ...Option) *Client {
	if log == nil {
		log = slog.Default()
	}

	c := &Client{
		governor:  g,
		transport: tr,
		creds:     cs,
		baseURL:   defaultBaseURL,
		loginURL:  defaultLoginURL,
		timeout:   defaultTimeout,
		log:       log,
	}
	for _, opt := range opts {
		opt(c)
	}

	return c
}

// envelope is the standard Kite response wrapper.
type envelope struct {
	Status  string          `json:"status"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

// get executes a governed GET and decodes the data envelope into dest.
func (c *Client) get(ctx context.Context, category, path string, payload url.Values, hint string, dest any) error {
	resp, err := c.governor.Execute(ctx, category, http.MethodGet, c.baseURL+path, payload, c.timeout, hint)
	if err != nil {
		return err
	}
	return decodeData(resp.Body, hint, dest)
}

// decodeData unwraps the {"status": ..., "data": ...} envelope.
func decodeData(body []byte, hint string, dest any) error {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("%s: decoding response: %w", hint, err)
	}
	if dest == nil {
		return nil
	}
	if err := json.Unmarshal(env.Data, dest); err != nil {
		return fmt.Errorf("%s: decoding data: %w", hint, err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Market data
// ---------------------------------------------------------------------------

// Instruments returns the tradable instrument dump, optionally restricted to
// one exchange. The upstream serves CSV; rows that fail to parse numerically
// are skipped.
func (c *Client) Instruments(ctx context.Context, exchange domain.Exchange) ([]domain.Instrument, error) {
	path := "/instruments"
	if exchange != "" {
		path += "/" + string(exchange)
	}

	resp, err := c.governor.Execute(ctx, CategoryDefault, http.MethodGet, c.baseURL+path, nil, c.timeout, "Instruments")
	if err != nil {
		return nil, err
	}

	return parseInstrumentsCSV(resp.Body)
}

// Quote returns full market quotes keyed by "EXCHANGE:SYMBOL". At most 500
// instruments per call.
func (c *Client) Quote(ctx context.Context, instruments ...string) (map[string]domain.Quote, error) {
	if len(instruments) > maxQuoteInstruments {
		return nil, fmt.Errorf("quote: instruments length cannot exceed %d", maxQuoteInstruments)
	}

	out := make(map[string]domain.Quote)
	if err := c.get(ctx, CategoryQuote, "/quote", instrumentValues(instruments), "Quote", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// OHLC returns OHLC and last traded price keyed by "EXCHANGE:SYMBOL". At
// most 1000 instruments per call.
func (c *Client) OHLC(ctx context.Context, instruments ...string) (map[string]domain.OHLCQuote, error) {
	if len(instruments) > maxOHLCInstruments {
		return nil, fmt.Errorf("ohlc: instruments length cannot exceed %d", maxOHLCInstruments)
	}

	out := make(map[string]domain.OHLCQuote)
	if err := c.get(ctx, CategoryQuote, "/quote/ohlc", instrumentValues(instruments), "Quote/OHLC", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// LTP returns last traded prices keyed by "EXCHANGE:SYMBOL". At most 1000
// instruments per call.
func (c *Client) LTP(ctx context.Context, instruments ...string) (map[string]domain.LTPQuote, error) {
	if len(instruments) > maxOHLCInstruments {
		return nil, fmt.Errorf("ltp: instruments length cannot exceed %d", maxOHLCInstruments)
	}

	out := make(map[string]domain.LTPQuote)
	if err := c.get(ctx, CategoryQuote, "/quote/ltp", instrumentValues(instruments), "LTP", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// HistoricalData returns candle records for an instrument token over
// [from, to] at the given interval ("minute", "day", "5minute", ...).
func (c *Client) HistoricalData(ctx context.Context, instrumentToken int, interval string, from, to time.Time, continuous, oi bool) ([]domain.Candle, error) {
	path := fmt.Sprintf("/instruments/historical/%d/%s", instrumentToken, interval)

	payload := url.Values{
		"from":       {from.Format("2006-01-02 15:04:05")},
		"to":         {to.Format("2006-01-02 15:04:05")},
		"continuous": {boolFlag(continuous)},
		"oi":         {boolFlag(oi)},
	}

	var data struct {
		Candles []candleRow `json:"candles"`
	}
	if err := c.get(ctx, CategoryHistorical, path, payload, "Historical", &data); err != nil {
		return nil, err
	}

	candles := make([]domain.Candle, 0, len(data.Candles))
	for _, row := range data.Candles {
		candles = append(candles, domain.Candle(row))
	}
	return candles, nil
}

// ---------------------------------------------------------------------------
// Account and portfolio
// ---------------------------------------------------------------------------

// Profile returns the user profile.
func (c *Client) Profile(ctx context.Context) (*domain.Profile, error) {
	var p domain.Profile
	if err := c.get(ctx, CategoryDefault, "/user/profile", nil, "Profile", &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Margins returns funds, cash and margin information for both segments.
func (c *Client) Margins(ctx context.Context) (*domain.Margins, error) {
	var m domain.Margins
	if err := c.get(ctx, CategoryDefault, "/user/margins", nil, "Margins", &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// SegmentMargins returns the funds summary for a single segment.
func (c *Client) SegmentMargins(ctx context.Context, segment domain.MarginSegment) (*domain.SegmentMargin, error) {
	var m domain.SegmentMargin
	if err := c.get(ctx, CategoryDefault, "/user/margins/"+string(segment), nil, "Margins", &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// Holdings returns the long-term equity holdings.
func (c *Client) Holdings(ctx context.Context) ([]domain.Holding, error) {
	var h []domain.Holding
	if err := c.get(ctx, CategoryDefault, "/portfolio/holdings", nil, "Portfolio/holdings", &h); err != nil {
		return nil, err
	}
	return h, nil
}

// Positions returns the day and net position books.
func (c *Client) Positions(ctx context.Context) (*domain.Positions, error) {
	var p domain.Positions
	if err := c.get(ctx, CategoryDefault, "/portfolio/positions", nil, "Portfolio/positions", &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Auctions returns the instruments in the current auction session.
func (c *Client) Auctions(ctx context.Context) ([]domain.Auction, error) {
	var a []domain.Auction
	if err := c.get(ctx, CategoryDefault, "/portfolio/auctions", nil, "Portfolio/auctions", &a); err != nil {
		return nil, err
	}
	return a, nil
}

// ---------------------------------------------------------------------------
// Orders
// ---------------------------------------------------------------------------

// PlaceOrder places an order of the given variety and returns the order ID.
func (c *Client) PlaceOrder(ctx context.Context, variety domain.Variety, p domain.OrderParams) (string, error) {
	payload := url.Values{}
	setIfNotEmpty(payload, "exchange", string(p.Exchange))
	setIfNotEmpty(payload, "tradingsymbol", p.TradingSymbol)
	setIfNotEmpty(payload, "transaction_type", string(p.TransactionType))
	setIfPositive(payload, "quantity", p.Quantity)
	setIfNotEmpty(payload, "product", string(p.Product))
	setIfNotEmpty(payload, "order_type", string(p.OrderType))
	setIfPositiveFloat(payload, "price", p.Price)
	setIfNotEmpty(payload, "validity", string(p.Validity))
	setIfPositive(payload, "validity_ttl", int64(p.ValidityTTL))
	setIfPositive(payload, "disclosed_quantity", p.DisclosedQuantity)
	setIfPositiveFloat(payload, "trigger_price", p.TriggerPrice)
	setIfPositive(payload, "iceberg_legs", int64(p.IcebergLegs))
	setIfPositive(payload, "iceberg_quantity", p.IcebergQuantity)
	setIfNotEmpty(payload, "auction_number", p.AuctionNumber)
	setIfNotEmpty(payload, "tag", p.Tag)

	return c.orderMutation(ctx, http.MethodPost, "/orders/"+string(variety), payload, "Place Order")
}

// ModifyParams carries the modifiable fields of an open order. Zero-valued
// fields are omitted.
type ModifyParams struct {
	Quantity          int64
	Price             float64
	OrderType         domain.OrderType
	TriggerPrice      float64
	Validity          domain.Validity
	DisclosedQuantity int64
}

// ModifyOrder modifies an open order and returns the order ID.
func (c *Client) ModifyOrder(ctx context.Context, variety domain.Variety, orderID string, p ModifyParams) (string, error) {
	payload := url.Values{}
	setIfPositive(payload, "quantity", p.Quantity)
	setIfPositiveFloat(payload, "price", p.Price)
	setIfNotEmpty(payload, "order_type", string(p.OrderType))
	setIfPositiveFloat(payload, "trigger_price", p.TriggerPrice)
	setIfNotEmpty(payload, "validity", string(p.Validity))
	setIfPositive(payload, "disclosed_quantity", p.DisclosedQuantity)

	return c.orderMutation(ctx, http.MethodPut, "/orders/"+string(variety)+"/"+orderID, payload, "Modify Order")
}

// CancelOrder cancels an open order and returns the order ID.
func (c *Client) CancelOrder(ctx context.Context, variety domain.Variety, orderID string) (string, error) {
	return c.orderMutation(ctx, http.MethodDelete, "/orders/"+string(variety)+"/"+orderID, nil, "Cancel Order")
}

func (c *Client) orderMutation(ctx context.Context, method, path string, payload url.Values, hint string) (string, error) {
	resp, err := c.governor.Execute(ctx, CategoryOrder, method, c.baseURL+path, payload, c.timeout, hint)
	if err != nil {
		return "", err
	}

	var data struct {
		OrderID string `json:"order_id"`
	}
	if err := decodeData(resp.Body, hint, &data); err != nil {
		return "", err
	}
	return data.OrderID, nil
}

// Orders returns all orders for the day.
func (c *Client) Orders(ctx context.Context) ([]domain.Order, error) {
	var o []domain.Order
	if err := c.get(ctx, CategoryOrder, "/orders", nil, "Orders", &o); err != nil {
		return nil, err
	}
	return o, nil
}

// OrderHistory returns the state transitions of a single order.
func (c *Client) OrderHistory(ctx context.Context, orderID string) ([]domain.Order, error) {
	var o []domain.Order
	if err := c.get(ctx, CategoryOrder, "/orders/"+orderID, nil, "Order History", &o); err != nil {
		return nil, err
	}
	return o, nil
}

// Trades returns all executed trades for the day.
func (c *Client) Trades(ctx context.Context) ([]domain.Trade, error) {
	var tr []domain.Trade
	if err := c.get(ctx, CategoryDefault, "/trades", nil, "Trades", &tr); err != nil {
		return nil, err
	}
	return tr, nil
}

// OrderTrades returns the trades generated by a single order.
func (c *Client) OrderTrades(ctx context.Context, orderID string) ([]domain.Trade, error) {
	var tr []domain.Trade
	if err := c.get(ctx, CategoryOrder, "/orders/"+orderID+"/trades", nil, "Order Trades", &tr); err != nil {
		return nil, err
	}
	return tr, nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func instrumentValues(instruments []string) url.Values {
	v := url.Values{}
	for _, i := range instruments {
		v.Add("i", i)
	}
	return v
}

func setIfNotEmpty(v url.Values, key, val string) {
	if val != "" {
		v.Set(key, val)
	}
}

func setIfPositive(v url.Values, key string, val int64) {
	if val > 0 {
		v.Set(key, strconv.FormatInt(val, 10))
	}
}

func setIfPositiveFloat(v url.Values, key string, val float64) {
	if val > 0 {
		v.Set(key, strconv.FormatFloat(val, 'f', -1, 64))
	}
}

func boolFlag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// candleRow decodes the positional candle array
// [timestamp, open, high, low, close, volume, oi?].
type candleRow domain.Candle

func (r *candleRow) UnmarshalJSON(b []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	if len(raw) < 6 {
		return fmt.Errorf("candle row has %d fields, want at least 6", len(raw))
	}

	var ts string
	if err := json.Unmarshal(raw[0], &ts); err != nil {
		return fmt.Errorf("candle timestamp: %w", err)
	}
	t, err := time.Parse("2006-01-02T15:04:05-0700", ts)
	if err != nil {
		t, err = time.Parse(time.RFC3339, ts)
		if err != nil {
			return fmt.Errorf("candle timestamp %q: %w", ts, err)
		}
	}
	r.Timestamp = t

	for i, dest := range []*float64{&r.Open, &r.High, &r.Low, &r.Close} {
		if err := json.Unmarshal(raw[i+1], dest); err != nil {
			return fmt.Errorf("candle field %d: %w", i+1, err)
		}
	}
	if err := json.Unmarshal(raw[5], &r.Volume); err != nil {
		return fmt.Errorf("candle volume: %w", err)
	}
	if len(raw) > 6 {
		if err := json.Unmarshal(raw[6], &r.OI); err != nil {
			return fmt.Errorf("candle oi: %w", err)
		}
	}
	return nil
}

// parseInstrumentsCSV parses the instrument dump. The header row defines the
// column order; unknown columns are ignored.
func parseInstrumentsCSV(b []byte) ([]domain.Instrument, error) {
	r := csv.NewReader(strings.NewReader(string(b)))
	r.FieldsPerRecord = -1

	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("instruments: parsing csv: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	col := make(map[string]int, len(rows[0]))
	for i, name := range rows[0] {
		col[name] = i
	}

	field := func(row []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(row) {
			return ""
		}
		return row[i]
	}

	instruments := make([]domain.Instrument, 0, len(rows)-1)
	for _, row := range rows[1:] {
		token, err := strconv.Atoi(field(row, "instrument_token"))
		if err != nil {
			continue
		}
		exToken, _ := strconv.Atoi(field(row, "exchange_token"))
		lastPrice, _ := strconv.ParseFloat(field(row, "last_price"), 64)
		strike, _ := strconv.ParseFloat(field(row, "strike"), 64)
		tickSize, _ := strconv.ParseFloat(field(row, "tick_size"), 64)
		lotSize, _ := strconv.ParseInt(field(row, "lot_size"), 10, 64)

		instruments = append(instruments, domain.Instrument{
			InstrumentToken: token,
			ExchangeToken:   exToken,
			TradingSymbol:   field(row, "tradingsymbol"),
			Name:            field(row, "name"),
			LastPrice:       lastPrice,
			Expiry:          field(row, "expiry"),
			Strike:          strike,
			TickSize:        tickSize,
			LotSize:         lotSize,
			InstrumentType:  field(row, "instrument_type"),
			Segment:         field(row, "segment"),
			Exchange:        domain.Exchange(field(row, "exchange")),
		})
	}

	return instruments, nil
}
