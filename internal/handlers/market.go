package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	apperrors "holdings/internal/errors"
	"holdings/internal/middleware"
	"holdings/internal/questrade"
)

const (
	defaultCandleInterval = "OneDay"
	maxFilterBytes        = 16 << 10
)

// MarketHandler handles symbol, quote, candle and option routes.
type MarketHandler struct {
	deps *Dependencies
}

// NewMarketHandler creates a new MarketHandler.
func NewMarketHandler(deps *Dependencies) *MarketHandler {
	return &MarketHandler{deps: deps}
}

// Symbols looks up ?names=a,b. One name yields an object, several an array.
func (h *MarketHandler) Symbols(w http.ResponseWriter, r *http.Request) {
	tickers, err := tickersParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	client, _, ok := h.deps.broker(w, r, fromCookies)
	if !ok {
		return
	}

	symbols, err := client.LookupSymbols(r.Context(), tickers...)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, symbols)
}

// Quotes returns quotes for ?names=a,b with the same shape rule as Symbols.
func (h *MarketHandler) Quotes(w http.ResponseWriter, r *http.Request) {
	tickers, err := tickersParam(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	client, _, ok := h.deps.broker(w, r, fromCookies)
	if !ok {
		return
	}

	quotes, err := client.GetQuotes(r.Context(), tickers...)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, quotes)
}

// Candles returns bars for {ticker} between ?start= and ?end=, at ?interval=.
func (h *MarketHandler) Candles(w http.ResponseWriter, r *http.Request) {
	ticker := strings.ToUpper(middleware.SanitizeString(chi.URLParam(r, "ticker")))
	if ticker == "" {
		writeError(w, r, apperrors.Validation("ticker is required"))
		return
	}
	start, end, err := middleware.ParseDateRange(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	interval := r.URL.Query().Get("interval")
	if interval == "" {
		interval = defaultCandleInterval
	}
	if !questrade.ValidInterval(interval) {
		writeError(w, r, apperrors.Validation("unknown interval"))
		return
	}
	client, _, ok := h.deps.broker(w, r, fromCookies)
	if !ok {
		return
	}

	candles, err := client.GetCandles(r.Context(), ticker, start, end, interval)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"candles": candles})
}

// OptionChain returns the option chain of {ticker}.
func (h *MarketHandler) OptionChain(w http.ResponseWriter, r *http.Request) {
	ticker := strings.ToUpper(middleware.SanitizeString(chi.URLParam(r, "ticker")))
	if ticker == "" {
		writeError(w, r, apperrors.Validation("ticker is required"))
		return
	}
	client, _, ok := h.deps.broker(w, r, fromCookies)
	if !ok {
		return
	}

	raw, err := client.GetOptionChain(r.Context(), ticker)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeRaw(w, http.StatusOK, raw)
}

// optionQuotesRequest is the body of POST /api/options/quotes.
type optionQuotesRequest struct {
	Filters   []questrade.OptionFilter `json:"filters"`
	OptionIDs []int64                  `json:"optionIds"`
}

// OptionQuotes returns quotes for options selected by filters or IDs.
func (h *MarketHandler) OptionQuotes(w http.ResponseWriter, r *http.Request) {
	var req optionQuotesRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxFilterBytes)).Decode(&req); err != nil {
		writeError(w, r, apperrors.Validation("invalid option quote body"))
		return
	}
	if len(req.Filters) == 0 && len(req.OptionIDs) == 0 {
		writeError(w, r, apperrors.Validation("filters or optionIds are required"))
		return
	}
	client, _, ok := h.deps.broker(w, r, fromCookies)
	if !ok {
		return
	}

	raw, err := client.GetOptionQuotes(r.Context(), req.Filters, req.OptionIDs)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeRaw(w, http.StatusOK, raw)
}

func tickersParam(r *http.Request) ([]string, error) {
	tickers := middleware.SplitTickers(r.URL.Query().Get("names"))
	if len(tickers) == 0 {
		return nil, apperrors.Validation("names is required")
	}
	return tickers, nil
}
