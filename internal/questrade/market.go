package questrade

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	apperrors "holdings/internal/errors"
)

// Candle intervals accepted by markets/candles.
var candleIntervals = map[string]bool{
	"OneMinute": true, "TwoMinutes": true, "ThreeMinutes": true, "FourMinutes": true,
	"FiveMinutes": true, "TenMinutes": true, "FifteenMinutes": true, "TwentyMinutes": true,
	"HalfHour": true, "OneHour": true, "TwoHours": true, "FourHours": true,
	"OneDay": true, "OneWeek": true, "OneMonth": true, "OneYear": true,
}

// ValidInterval reports whether interval is a known candle granularity.
func ValidInterval(interval string) bool {
	return candleIntervals[interval]
}

// LookupSymbols resolves tickers to symbol records. A single ticker yields
// a One result, several tickers yield Many.
func (c *Client) LookupSymbols(ctx context.Context, tickers ...string) (SymbolResult, error) {
	tickers = cleanTickers(tickers)
	if len(tickers) == 0 {
		return SymbolResult{}, apperrors.Validation("at least one ticker is required")
	}

	params := url.Values{}
	params.Set("names", strings.Join(tickers, ","))
	doc, err := c.get(ctx, "symbols", "symbols", params)
	if err != nil {
		return SymbolResult{}, err
	}
	if _, err := doc.list("$.symbols", "symbolId"); err != nil {
		return SymbolResult{}, err
	}
	symbols := []Symbol{}
	if err := doc.decode("$.symbols", &symbols); err != nil {
		return SymbolResult{}, err
	}

	if len(tickers) == 1 {
		if len(symbols) == 0 {
			return SymbolResult{}, malformed(doc.op, "$.symbols[0]", doc.body, nil)
		}
		return One(symbols[0]), nil
	}
	return Many(symbols), nil
}

// GetQuotes returns level 1 quotes, with the same One/Many shape as LookupSymbols.
func (c *Client) GetQuotes(ctx context.Context, tickers ...string) (QuoteResult, error) {
	symbols, err := c.LookupSymbols(ctx, tickers...)
	if err != nil {
		return QuoteResult{}, err
	}
	_, single := symbols.Single()

	ids := make([]string, 0, len(symbols.All()))
	for _, s := range symbols.All() {
		ids = append(ids, strconv.FormatInt(s.SymbolID, 10))
	}
	if len(ids) == 0 {
		return Many[Quote](nil), nil
	}

	params := url.Values{}
	params.Set("ids", strings.Join(ids, ","))
	doc, err := c.get(ctx, "quotes", "markets/quotes", params)
	if err != nil {
		return QuoteResult{}, err
	}
	if _, err := doc.list("$.quotes", "symbolId"); err != nil {
		return QuoteResult{}, err
	}
	quotes := []Quote{}
	if err := doc.decode("$.quotes", &quotes); err != nil {
		return QuoteResult{}, err
	}

	if single {
		if len(quotes) == 0 {
			return QuoteResult{}, malformed(doc.op, "$.quotes[0]", doc.body, nil)
		}
		return One(quotes[0]), nil
	}
	return Many(quotes), nil
}

// GetCandles returns historical bars for a ticker between two dates.
func (c *Client) GetCandles(ctx context.Context, ticker string, start, end time.Time, interval string) ([]Candle, error) {
	if !ValidInterval(interval) {
		return nil, apperrors.Validation("unknown candle interval " + strconv.Quote(interval))
	}
	id, err := c.symbolID(ctx, ticker)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("startTime", midnight(start))
	params.Set("endTime", midnight(end))
	params.Set("interval", interval)

	doc, err := c.get(ctx, "candles", "markets/candles/"+strconv.FormatInt(id, 10), params)
	if err != nil {
		return nil, err
	}
	candles := []Candle{}
	if err := doc.decode("$.candles", &candles); err != nil {
		return nil, err
	}
	return candles, nil
}

// GetOptionChain returns the option chain of a ticker as reported upstream.
func (c *Client) GetOptionChain(ctx context.Context, ticker string) (json.RawMessage, error) {
	id, err := c.symbolID(ctx, ticker)
	if err != nil {
		return nil, err
	}
	doc, err := c.get(ctx, "option_chain", "symbols/"+strconv.FormatInt(id, 10)+"/options", nil)
	if err != nil {
		return nil, err
	}
	if _, err := doc.get("$.optionChain"); err != nil {
		return nil, err
	}
	return json.RawMessage(doc.body), nil
}

// GetOptionQuotes returns quotes for options selected by filters or by ID.
func (c *Client) GetOptionQuotes(ctx context.Context, filters []OptionFilter, optionIDs []int64) (json.RawMessage, error) {
	if len(filters) == 0 && len(optionIDs) == 0 {
		return nil, apperrors.Validation("filters or optionIds are required")
	}
	payload := struct {
		Filters   []OptionFilter `json:"filters,omitempty"`
		OptionIDs []int64        `json:"optionIds,omitempty"`
	}{filters, optionIDs}

	body, err := c.send(ctx, "option_quotes", http.MethodPost, "markets/quotes/options", nil, payload)
	if err != nil {
		return nil, err
	}
	doc, err := parseDocument("option_quotes", body)
	if err != nil {
		return nil, err
	}
	if _, err := doc.get("$.optionQuotes"); err != nil {
		return nil, err
	}
	return json.RawMessage(body), nil
}

// symbolID resolves exactly one ticker.
func (c *Client) symbolID(ctx context.Context, ticker string) (int64, error) {
	res, err := c.LookupSymbols(ctx, ticker)
	if err != nil {
		return 0, err
	}
	s, ok := res.Single()
	if !ok {
		return 0, apperrors.Validation("exactly one ticker is required")
	}
	return s.SymbolID, nil
}

// cleanTickers trims entries and drops empty ones.
func cleanTickers(tickers []string) []string {
	out := make([]string, 0, len(tickers))
	for _, t := range tickers {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}
