package handlers

import (
	"net/http"

	"github.com/rs/zerolog/hlog"
	"github.com/skip2/go-qrcode"

	"holdings/internal/questrade"
)

const qrSize = 256

// SettingsHandler handles public configuration and login routes.
type SettingsHandler struct {
	deps *Dependencies
}

// NewSettingsHandler creates a new SettingsHandler.
func NewSettingsHandler(deps *Dependencies) *SettingsHandler {
	return &SettingsHandler{deps: deps}
}

// Settings returns the CORS origins and the OAuth client ID for the UI.
func (h *SettingsHandler) Settings(w http.ResponseWriter, r *http.Request) {
	cfg := h.deps.Config
	writeJSON(w, r, http.StatusOK, map[string]string{
		"cors_origin_local":              cfg.CORSOriginLocal,
		"cors_origin_questrade_callback": cfg.CORSOriginQuestradeCallback,
		"origin_questrade_client_id":     cfg.ClientID,
	})
}

// LoginURL returns the authorize URL the browser should open.
func (h *SettingsHandler) LoginURL(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"url": h.authorizeURL()})
}

// LoginQR renders the authorize URL as a PNG QR code, for signing in on a phone.
func (h *SettingsHandler) LoginQR(w http.ResponseWriter, r *http.Request) {
	if h.deps.Config.ClientID == "" {
		http.Error(w, "Login is not configured", http.StatusServiceUnavailable)
		return
	}
	png, err := qrcode.Encode(h.authorizeURL(), qrcode.Medium, qrSize)
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("encoding login QR code")
		http.Error(w, "Unexpected error occured.", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Write(png)
}

func (h *SettingsHandler) authorizeURL() string {
	cfg := h.deps.Config
	return questrade.AuthorizeURL(cfg.LoginURL, cfg.ClientID, cfg.CORSOriginQuestradeCallback)
}
