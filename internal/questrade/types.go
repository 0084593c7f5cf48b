package questrade

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Credential is the OAuth state needed to call the API.
// It is a value: each request builds its own and may hand back a new one.
type Credential struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time // safe until, already reduced by the refresh margin
	APIServer    string
}

// Valid reports whether the access token may still be used at now.
// A zero ExpiresAt is never valid.
func (c Credential) Valid(now time.Time) bool {
	if c.ExpiresAt.IsZero() {
		return false
	}
	return !now.After(c.ExpiresAt)
}

// ExpiresAtUnix formats ExpiresAt as unix seconds, the transport form.
func (c Credential) ExpiresAtUnix() string {
	if c.ExpiresAt.IsZero() {
		return ""
	}
	return strconv.FormatInt(c.ExpiresAt.Unix(), 10)
}

// ParseExpiresAt parses unix seconds (optionally fractional) or RFC 3339.
// Anything else yields the zero time, which forces a refresh.
func ParseExpiresAt(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(secs, 0)
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		if math.IsNaN(f) || math.IsInf(f, 0) || f >= math.MaxInt64 || f <= math.MinInt64 {
			return time.Time{}
		}
		return time.Unix(int64(f), 0)
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	return time.Time{}
}

// RefreshResult is a credential plus whether a refresh happened during this call.
type RefreshResult struct {
	Credential Credential
	Refreshed  bool
}

// Number is a decimal that encodes as a bare JSON number.
type Number struct {
	decimal.Decimal
}

// NewNumber wraps a decimal.
func NewNumber(d decimal.Decimal) Number {
	return Number{Decimal: d}
}

// MarshalJSON implements json.Marshaler.
func (n Number) MarshalJSON() ([]byte, error) {
	return []byte(n.Decimal.String()), nil
}

// Position is a holding as reported by accounts/{id}/positions.
// The upstream record is kept verbatim and re-emitted as-is.
type Position struct {
	Symbol             string `json:"symbol"`
	SymbolID           int64  `json:"symbolId"`
	OpenQuantity       Number `json:"openQuantity"`
	ClosedQuantity     Number `json:"closedQuantity"`
	CurrentMarketValue Number `json:"currentMarketValue"`
	CurrentPrice       Number `json:"currentPrice"`
	AverageEntryPrice  Number `json:"averageEntryPrice"`
	DayPnl             Number `json:"dayPnl"`
	ClosedPnl          Number `json:"closedPnl"`
	OpenPnl            Number `json:"openPnl"`
	TotalCost          Number `json:"totalCost"`
	IsRealTime         bool   `json:"isRealTime"`
	IsUnderReorg       bool   `json:"isUnderReorg"`

	raw json.RawMessage
}

// UnmarshalJSON decodes the known fields and keeps the original record.
func (p *Position) UnmarshalJSON(data []byte) error {
	type plain Position
	var v plain
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*p = Position(v)
	p.raw = append(json.RawMessage(nil), data...)
	return nil
}

// MarshalJSON re-emits the upstream record when there is one.
func (p Position) MarshalJSON() ([]byte, error) {
	if len(p.raw) > 0 {
		return p.raw, nil
	}
	type plain Position
	return json.Marshal(plain(p))
}

// Account is one entry of the accounts listing.
type Account struct {
	Type              string        `json:"type"`
	Number            AccountNumber `json:"number"`
	Status            string        `json:"status"`
	IsPrimary         bool          `json:"isPrimary"`
	IsBilling         bool          `json:"isBilling"`
	ClientAccountType string        `json:"clientAccountType"`
}

// AccountNumber is an account identifier. Upstream sends it as a JSON string
// or a JSON number; both decode, and it always encodes as a string.
type AccountNumber string

// UnmarshalJSON implements json.Unmarshaler.
func (n *AccountNumber) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*n = AccountNumber(s)
		return nil
	}
	var num json.Number
	if err := json.Unmarshal(data, &num); err != nil {
		return err
	}
	*n = AccountNumber(num.String())
	return nil
}

// Balances is the accounts/{id}/balances document, passed through untouched.
type Balances map[string]json.RawMessage

// Activity is an account activity (trade, dividend, deposit...).
type Activity struct {
	TradeDate       string `json:"tradeDate"`
	TransactionDate string `json:"transactionDate"`
	SettlementDate  string `json:"settlementDate"`
	Action          string `json:"action"`
	Symbol          string `json:"symbol"`
	SymbolID        int64  `json:"symbolId"`
	Description     string `json:"description"`
	Currency        string `json:"currency"`
	Quantity        Number `json:"quantity"`
	Price           Number `json:"price"`
	GrossAmount     Number `json:"grossAmount"`
	Commission      Number `json:"commission"`
	NetAmount       Number `json:"netAmount"`
	Type            string `json:"type"`
}

// Symbol is a security record from the symbols endpoint.
type Symbol struct {
	Symbol            string `json:"symbol"`
	SymbolID          int64  `json:"symbolId"`
	Description       string `json:"description"`
	SecurityType      string `json:"securityType"`
	ListingExchange   string `json:"listingExchange"`
	Currency          string `json:"currency"`
	PrevDayClosePrice Number `json:"prevDayClosePrice"`
	IsTradable        bool   `json:"isTradable"`
	IsQuotable        bool   `json:"isQuotable"`
	HasOptions        bool   `json:"hasOptions"`
}

// Quote is a level 1 quote from markets/quotes.
type Quote struct {
	Symbol         string `json:"symbol"`
	SymbolID       int64  `json:"symbolId"`
	Tier           string `json:"tier"`
	BidPrice       Number `json:"bidPrice"`
	BidSize        int64  `json:"bidSize"`
	AskPrice       Number `json:"askPrice"`
	AskSize        int64  `json:"askSize"`
	LastTradePrice Number `json:"lastTradePrice"`
	LastTradeSize  int64  `json:"lastTradeSize"`
	LastTradeTick  string `json:"lastTradeTick"`
	LastTradeTime  string `json:"lastTradeTime"`
	Volume         int64  `json:"volume"`
	OpenPrice      Number `json:"openPrice"`
	HighPrice      Number `json:"highPrice"`
	LowPrice       Number `json:"lowPrice"`
	Delay          int    `json:"delay"`
	IsHalted       bool   `json:"isHalted"`
}

// Candle is one OHLCV bar from markets/candles.
type Candle struct {
	Start  string `json:"start"`
	End    string `json:"end"`
	Low    Number `json:"low"`
	High   Number `json:"high"`
	Open   Number `json:"open"`
	Close  Number `json:"close"`
	Volume int64  `json:"volume"`
}

// Order is the body of an order submission.
type Order struct {
	AccountNumber   int64   `json:"accountNumber,omitempty"`
	SymbolID        int64   `json:"symbolId"`
	Quantity        Number  `json:"quantity"`
	IcebergQuantity *Number `json:"icebergQuantity,omitempty"`
	LimitPrice      *Number `json:"limitPrice,omitempty"`
	StopPrice       *Number `json:"stopPrice,omitempty"`
	IsAllOrNone     bool    `json:"isAllOrNone"`
	IsAnonymous     bool    `json:"isAnonymous"`
	OrderType       string  `json:"orderType"`
	TimeInForce     string  `json:"timeInForce"`
	Action          string  `json:"action"`
	PrimaryRoute    string  `json:"primaryRoute"`
	SecondaryRoute  string  `json:"secondaryRoute"`
}

// OptionFilter selects option quotes by underlying and strike range.
type OptionFilter struct {
	OptionType     string  `json:"optionType,omitempty"`
	UnderlyingID   int64   `json:"underlyingId"`
	ExpiryDate     string  `json:"expiryDate"`
	MinStrikePrice *Number `json:"minstrikePrice,omitempty"`
	MaxStrikePrice *Number `json:"maxstrikePrice,omitempty"`
}

// Result is either a single record or a list of records.
// Lookups by one ticker produce One, lookups by several produce Many.
type Result[T any] struct {
	one  *T
	many []T
}

// One wraps a single record.
func One[T any](v T) Result[T] {
	return Result[T]{one: &v}
}

// Many wraps a list of records.
func Many[T any](vs []T) Result[T] {
	if vs == nil {
		vs = []T{}
	}
	return Result[T]{many: vs}
}

// Single returns the record and true when the result is One.
func (r Result[T]) Single() (T, bool) {
	if r.one == nil {
		var zero T
		return zero, false
	}
	return *r.one, true
}

// All returns every record regardless of shape.
func (r Result[T]) All() []T {
	if r.one != nil {
		return []T{*r.one}
	}
	return r.many
}

// MarshalJSON emits an object for One and an array for Many.
func (r Result[T]) MarshalJSON() ([]byte, error) {
	if r.one != nil {
		return json.Marshal(r.one)
	}
	return json.Marshal(r.All())
}

// SymbolResult is the shape returned by LookupSymbols.
type SymbolResult = Result[Symbol]

// QuoteResult is the shape returned by GetQuotes.
type QuoteResult = Result[Quote]
