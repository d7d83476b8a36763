// Package domain defines the core types shared across the kitetrader
// client: candles, quotes, orders, trades, holdings, positions, and
// account information.
package domain

import "time"

// Exchange identifies a trading exchange segment.
type Exchange string

const (
	ExchangeNSE Exchange = "NSE"
	ExchangeBSE Exchange = "BSE"
	ExchangeNFO Exchange = "NFO"
	ExchangeCDS Exchange = "CDS"
	ExchangeBFO Exchange = "BFO"
	ExchangeMCX Exchange = "MCX"
	ExchangeBCD Exchange = "BCD"
)

// TransactionType is the side of an order.
type TransactionType string

const (
	TransactionTypeBuy  TransactionType = "BUY"
	TransactionTypeSell TransactionType = "SELL"
)

// Product is the product segment an order belongs to.
type Product string

const (
	ProductMIS  Product = "MIS"
	ProductCNC  Product = "CNC"
	ProductNRML Product = "NRML"
	ProductCO   Product = "CO"
)

// OrderType controls how an order is priced.
type OrderType string

const (
	OrderTypeMarket OrderType = "MARKET"
	OrderTypeLimit  OrderType = "LIMIT"
	OrderTypeSL     OrderType = "SL"
	OrderTypeSLM    OrderType = "SL-M"
)

// Variety is the order variety accepted by the orders endpoints.
type Variety string

const (
	VarietyRegular Variety = "regular"
	VarietyCO      Variety = "co"
	VarietyAMO     Variety = "amo"
	VarietyIceberg Variety = "iceberg"
	VarietyAuction Variety = "auction"
)

// Validity controls how long an order stays live.
type Validity string

const (
	ValidityDay Validity = "DAY"
	ValidityIOC Validity = "IOC"
	ValidityTTL Validity = "TTL"
)

// PositionType distinguishes intraday from overnight positions.
type PositionType string

const (
	PositionTypeDay       PositionType = "day"
	PositionTypeOvernight PositionType = "overnight"
)

// MarginSegment selects a funds segment on the margins endpoint.
type MarginSegment string

const (
	MarginEquity    MarginSegment = "equity"
	MarginCommodity MarginSegment = "commodity"
)

// GTTType is the trigger type for GTT orders.
type GTTType string

const (
	GTTTypeSingle GTTType = "single"
	GTTTypeOCO    GTTType = "two-leg"
)

// Candle is a single OHLCV bar from the historical data endpoint.
type Candle struct {
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    int64
	OI        int64
}

// Quote is a full market quote for one instrument.
type Quote struct {
	InstrumentToken int     `json:"instrument_token"`
	LastPrice       float64 `json:"last_price"`
	LastQuantity    int64   `json:"last_quantity"`
	AveragePrice    float64 `json:"average_price"`
	Volume          int64   `json:"volume"`
	BuyQuantity     int64   `json:"buy_quantity"`
	SellQuantity    int64   `json:"sell_quantity"`
	OHLC            OHLC    `json:"ohlc"`
	NetChange       float64 `json:"net_change"`
	OI              float64 `json:"oi"`
	OIDayHigh       float64 `json:"oi_day_high"`
	OIDayLow        float64 `json:"oi_day_low"`
	Depth           Depth   `json:"depth"`
}

// OHLC is the open/high/low/close block embedded in quotes.
type OHLC struct {
	Open  float64 `json:"open"`
	High  float64 `json:"high"`
	Low   float64 `json:"low"`
	Close float64 `json:"close"`
}

// OHLCQuote is the reduced quote returned by the ohlc endpoint.
type OHLCQuote struct {
	InstrumentToken int     `json:"instrument_token"`
	LastPrice       float64 `json:"last_price"`
	OHLC            OHLC    `json:"ohlc"`
}

// LTPQuote is the minimal quote returned by the ltp endpoint.
type LTPQuote struct {
	InstrumentToken int     `json:"instrument_token"`
	LastPrice       float64 `json:"last_price"`
}

// DepthLevel is one level of the order book.
type DepthLevel struct {
	Price    float64 `json:"price"`
	Quantity int64   `json:"quantity"`
	Orders   int64   `json:"orders"`
}

// Depth is the five-level market depth on both sides of the book.
type Depth struct {
	Buy  []DepthLevel `json:"buy"`
	Sell []DepthLevel `json:"sell"`
}

// OrderParams carries the caller-supplied fields for placing an order.
// Zero-valued optional fields are omitted from the request payload.
type OrderParams struct {
	Exchange          Exchange
	TradingSymbol     string
	TransactionType   TransactionType
	Quantity          int64
	Product           Product
	OrderType         OrderType
	Price             float64
	Validity          Validity
	ValidityTTL       int
	DisclosedQuantity int64
	TriggerPrice      float64
	IcebergLegs       int
	IcebergQuantity   int64
	AuctionNumber     string
	Tag               string
}

// Order is a single order record as returned by the orders endpoints.
type Order struct {
	OrderID         string          `json:"order_id"`
	ExchangeOrderID string          `json:"exchange_order_id"`
	Status          string          `json:"status"`
	StatusMessage   string          `json:"status_message"`
	Variety         Variety         `json:"variety"`
	Exchange        Exchange        `json:"exchange"`
	TradingSymbol   string          `json:"tradingsymbol"`
	InstrumentToken int             `json:"instrument_token"`
	TransactionType TransactionType `json:"transaction_type"`
	OrderType       OrderType       `json:"order_type"`
	Product         Product         `json:"product"`
	Validity        Validity        `json:"validity"`
	Price           float64         `json:"price"`
	TriggerPrice    float64         `json:"trigger_price"`
	Quantity        int64           `json:"quantity"`
	FilledQuantity  int64           `json:"filled_quantity"`
	PendingQuantity int64           `json:"pending_quantity"`
	AveragePrice    float64         `json:"average_price"`
	Tag             string          `json:"tag"`
}

// Trade is a single executed trade.
type Trade struct {
	TradeID         string          `json:"trade_id"`
	OrderID         string          `json:"order_id"`
	Exchange        Exchange        `json:"exchange"`
	TradingSymbol   string          `json:"tradingsymbol"`
	InstrumentToken int             `json:"instrument_token"`
	TransactionType TransactionType `json:"transaction_type"`
	Product         Product         `json:"product"`
	AveragePrice    float64         `json:"average_price"`
	Quantity        int64           `json:"quantity"`
}

// Holding is one long-term equity holding.
type Holding struct {
	TradingSymbol   string   `json:"tradingsymbol"`
	Exchange        Exchange `json:"exchange"`
	InstrumentToken int      `json:"instrument_token"`
	ISIN            string   `json:"isin"`
	Product         Product  `json:"product"`
	Quantity        int64    `json:"quantity"`
	T1Quantity      int64    `json:"t1_quantity"`
	AveragePrice    float64  `json:"average_price"`
	LastPrice       float64  `json:"last_price"`
	PnL             float64  `json:"pnl"`
	DayChange       float64  `json:"day_change"`
}

// Position is one open position in the day or net book.
type Position struct {
	TradingSymbol   string   `json:"tradingsymbol"`
	Exchange        Exchange `json:"exchange"`
	InstrumentToken int      `json:"instrument_token"`
	Product         Product  `json:"product"`
	Quantity        int64    `json:"quantity"`
	AveragePrice    float64  `json:"average_price"`
	LastPrice       float64  `json:"last_price"`
	PnL             float64  `json:"pnl"`
	Realised        float64  `json:"realised"`
	Unrealised      float64  `json:"unrealised"`
	BuyQuantity     int64    `json:"buy_quantity"`
	SellQuantity    int64    `json:"sell_quantity"`
}

// Positions groups the day and net position books.
type Positions struct {
	Day []Position `json:"day"`
	Net []Position `json:"net"`
}

// AvailableMargin is the cash breakdown inside a margin segment.
type AvailableMargin struct {
	Cash          float64 `json:"cash"`
	Collateral    float64 `json:"collateral"`
	IntradayPayin float64 `json:"intraday_payin"`
	LiveBalance   float64 `json:"live_balance"`
}

// SegmentMargin is the funds summary for one segment.
type SegmentMargin struct {
	Enabled   bool            `json:"enabled"`
	Net       float64         `json:"net"`
	Available AvailableMargin `json:"available"`
}

// Margins groups the per-segment funds summaries.
type Margins struct {
	Equity    SegmentMargin `json:"equity"`
	Commodity SegmentMargin `json:"commodity"`
}

// Profile is the user profile record.
type Profile struct {
	UserID    string   `json:"user_id"`
	UserName  string   `json:"user_name"`
	Email     string   `json:"email"`
	UserType  string   `json:"user_type"`
	Broker    string   `json:"broker"`
	Exchanges []string `json:"exchanges"`
	Products  []string `json:"products"`
}

// Auction is one instrument in the current auction session.
type Auction struct {
	TradingSymbol string  `json:"tradingsymbol"`
	AuctionNumber string  `json:"auction_number"`
	Quantity      int64   `json:"quantity"`
	LastPrice     float64 `json:"last_price"`
	PnL           float64 `json:"pnl"`
}

// Instrument is one row of the tradable instrument dump.
type Instrument struct {
	InstrumentToken int
	ExchangeToken   int
	TradingSymbol   string
	Name            string
	LastPrice       float64
	Expiry          string
	Strike          float64
	TickSize        float64
	LotSize         int64
	InstrumentType  string
	Segment         string
	Exchange        Exchange
}
