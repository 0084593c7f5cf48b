package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/rs/zerolog/hlog"

	apperrors "holdings/internal/errors"
	"holdings/internal/middleware"
	"holdings/internal/models"
	"holdings/internal/questrade"
)

const maxOrderBytes = 16 << 10

// AccountsHandler handles portfolio and per-account routes.
type AccountsHandler struct {
	deps *Dependencies
}

// NewAccountsHandler creates a new AccountsHandler.
func NewAccountsHandler(deps *Dependencies) *AccountsHandler {
	return &AccountsHandler{deps: deps}
}

// Summary returns every account's positions and the portfolio totals.
// Credentials come from the JSON body on login and from cookies afterwards.
func (h *AccountsHandler) Summary(w http.ResponseWriter, r *http.Request) {
	client, res, ok := h.deps.broker(w, r, fromBodyOrCookies)
	if !ok {
		return
	}

	entry := h.startHistory(r, "portfolio")

	summary, err := h.deps.Portfolio.Load(r.Context(), client)
	if err != nil {
		h.failHistory(r, entry, res.Refreshed, err)
		writeError(w, r, err)
		return
	}

	h.completeHistory(r, entry, res.Refreshed, len(summary.Accounts), summary.PositionCount())
	writeJSON(w, r, http.StatusOK, summary)
}

// Accounts lists the account records.
func (h *AccountsHandler) Accounts(w http.ResponseWriter, r *http.Request) {
	client, _, ok := h.deps.broker(w, r, fromCookies)
	if !ok {
		return
	}

	accounts, err := client.ListAccounts(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"accounts": accounts})
}

// Balances returns the balances document of one account.
func (h *AccountsHandler) Balances(w http.ResponseWriter, r *http.Request) {
	id, err := middleware.AccountID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	client, _, ok := h.deps.broker(w, r, fromCookies)
	if !ok {
		return
	}

	balances, err := client.GetBalances(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, balances)
}

// Activities returns account activities between ?start= and ?end= (YYYY-MM-DD).
func (h *AccountsHandler) Activities(w http.ResponseWriter, r *http.Request) {
	id, err := middleware.AccountID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	start, end, err := middleware.ParseDateRange(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	client, _, ok := h.deps.broker(w, r, fromCookies)
	if !ok {
		return
	}

	activities, err := client.GetActivities(r.Context(), id, start, end)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"activities": activities})
}

// SubmitOrder forwards an order to the brokerage once. It is never retried.
func (h *AccountsHandler) SubmitOrder(w http.ResponseWriter, r *http.Request) {
	id, err := middleware.AccountID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var order questrade.Order
	if err := json.NewDecoder(io.LimitReader(r.Body, maxOrderBytes)).Decode(&order); err != nil {
		writeError(w, r, apperrors.Validation("invalid order body"))
		return
	}
	if err := validateOrder(&order, id); err != nil {
		writeError(w, r, err)
		return
	}

	client, res, ok := h.deps.broker(w, r, fromCookies)
	if !ok {
		return
	}

	entry := h.startHistory(r, "order")
	raw, err := client.SubmitOrder(r.Context(), id, order)
	if err != nil {
		h.failHistory(r, entry, res.Refreshed, err)
		writeError(w, r, err)
		return
	}
	h.completeHistory(r, entry, res.Refreshed, 1, 0)
	writeRaw(w, http.StatusOK, raw)
}

// validateOrder checks the fields every order needs and fills in the account.
func validateOrder(o *questrade.Order, accountID int64) error {
	switch {
	case o.SymbolID <= 0:
		return apperrors.Validation("symbolId is required")
	case !o.Quantity.IsPositive():
		return apperrors.Validation("quantity must be positive")
	case o.OrderType == "":
		return apperrors.Validation("orderType is required")
	case o.TimeInForce == "":
		return apperrors.Validation("timeInForce is required")
	case o.Action != "Buy" && o.Action != "Sell":
		return apperrors.Validation("action must be Buy or Sell")
	case o.AccountNumber != 0 && o.AccountNumber != accountID:
		return apperrors.Validation("accountNumber does not match the account")
	}
	o.AccountNumber = accountID
	if o.PrimaryRoute == "" {
		o.PrimaryRoute = "AUTO"
	}
	if o.SecondaryRoute == "" {
		o.SecondaryRoute = "AUTO"
	}
	return nil
}

// History helpers. Recording failures are logged and never fail the request.

func (h *AccountsHandler) startHistory(r *http.Request, op string) *models.FetchHistory {
	if h.deps.HistoryRepo == nil {
		return nil
	}
	entry, err := h.deps.HistoryRepo.Start(op)
	if err != nil {
		hlog.FromRequest(r).Warn().Err(err).Msg("recording fetch start")
		return nil
	}
	return entry
}

func (h *AccountsHandler) completeHistory(r *http.Request, entry *models.FetchHistory, refreshed bool, accounts, positions int) {
	if entry == nil {
		return
	}
	if err := h.deps.HistoryRepo.Complete(entry, refreshed, accounts, positions); err != nil {
		hlog.FromRequest(r).Warn().Err(err).Msg("recording fetch completion")
	}
}

func (h *AccountsHandler) failHistory(r *http.Request, entry *models.FetchHistory, refreshed bool, cause error) {
	if entry == nil {
		return
	}
	if err := h.deps.HistoryRepo.Fail(entry, refreshed, apperrors.Kind(cause)); err != nil {
		hlog.FromRequest(r).Warn().Err(err).Msg("recording fetch failure")
	}
}
