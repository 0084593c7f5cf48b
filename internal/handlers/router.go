package handlers

import (
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"holdings/internal/middleware"
)

// NewRouter wires every route. metrics may be nil, staticDir may be empty.
func NewRouter(deps *Dependencies, log zerolog.Logger, metrics http.Handler, staticDir string) *chi.Mux {
	r := chi.NewRouter()

	// Chi middleware (aliased as chimw to avoid conflict with our middleware package)
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(log))
	r.Use(chimw.Recoverer)
	r.Use(chimw.Compress(5))
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.CORS(deps.Config.CORSOrigins()))

	accounts := NewAccountsHandler(deps)
	market := NewMarketHandler(deps)
	settings := NewSettingsHandler(deps)
	history := NewHistoryHandler(deps)

	r.Get("/health", history.Health)
	if metrics != nil {
		r.Handle("/metrics", metrics)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.NoStore)

		r.Get("/settings", settings.Settings)
		r.Get("/questrade/login/", settings.LoginURL)
		r.Get("/questrade/login/qr", settings.LoginQR)
		r.Get("/history", history.Recent)

		// Portfolio
		r.Post("/accounts", accounts.Summary)
		r.Get("/accounts", accounts.Summary)
		r.Get("/accounts/list", accounts.Accounts)
		r.Get("/accounts/{id}/balances", accounts.Balances)
		r.Get("/accounts/{id}/activities", accounts.Activities)
		r.Post("/accounts/{id}/orders", accounts.SubmitOrder)

		// Market data
		r.Get("/symbols", market.Symbols)
		r.Get("/quotes", market.Quotes)
		r.Get("/candles/{ticker}", market.Candles)
		r.Get("/options/{ticker}", market.OptionChain)
		r.Post("/options/quotes", market.OptionQuotes)
	})

	if staticDir != "" {
		if info, err := os.Stat(staticDir); err == nil && info.IsDir() {
			r.Handle("/*", http.FileServer(http.Dir(staticDir)))
		} else {
			log.Warn().Str("dir", staticDir).Msg("static directory not found, UI disabled")
		}
	}

	return r
}
