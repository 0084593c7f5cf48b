package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"holdings/internal/config"
	"holdings/internal/database"
	"holdings/internal/handlers"
	"holdings/internal/observability"
	"holdings/internal/portfolio"
	"holdings/internal/questrade"
	"holdings/internal/repository"
	"holdings/internal/session"
)

func main() {
	// Load configuration
	cfg := config.New()
	log := observability.NewLogger("server")

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(reg)

	transport, err := newTransport(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to configure cookie sealing")
	}

	deps := handlers.NewDependencies().
		WithConfig(cfg).
		WithMetrics(metrics).
		WithTransport(transport).
		WithRefresher(questrade.NewRefresher(questrade.RefresherConfig{
			LoginURL: cfg.LoginURL,
			Margin:   cfg.ExpiryMargin,
			Grace:    cfg.RefreshGrace,
			Metrics:  metrics,
			Logger:   log.With().Str("component", "refresher").Logger(),
		})).
		WithConnector(questrade.NewConnector(questrade.ConnectorConfig{
			Timeout:           cfg.UpstreamTimeout,
			RequestsPerSecond: cfg.UpstreamRPS,
			Metrics:           metrics,
			Logger:            log.With().Str("component", "questrade").Logger(),
		})).
		WithPortfolio(portfolio.NewService(cfg.FetchConcurrency, metrics, log.With().Str("component", "portfolio").Logger()))

	// Fetch history is optional
	if cfg.DBPath != "" {
		db, err := database.New(cfg.DBPath)
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("failed to open database")
		}
		defer db.Close()

		if err := db.RunMigrations(); err != nil {
			log.Fatal().Err(err).Msg("failed to run migrations")
		}
		log.Info().Str("path", cfg.DBPath).Msg("database migrations completed")

		historyRepo := repository.NewFetchHistoryRepository(db)
		if cfg.HistoryRetention > 0 {
			pruned, err := historyRepo.DeleteOlderThan(time.Now().Add(-cfg.HistoryRetention))
			if err != nil {
				log.Warn().Err(err).Msg("pruning fetch history")
			} else if pruned > 0 {
				log.Info().Int64("rows", pruned).Msg("pruned fetch history")
			}
		}
		deps.WithHistoryRepo(historyRepo)
	}

	router := handlers.NewRouter(deps, log, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), cfg.StaticDir)

	// Create server
	server := &http.Server{
		Addr:         cfg.Address(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 2*cfg.UpstreamTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().Str("addr", cfg.Address()).Bool("development", cfg.IsDevelopment).Msg("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
		return
	}

	log.Info().Msg("server stopped")
}

// newTransport seals cookies when a secret is configured. Secure cookies
// are required outside development.
func newTransport(cfg *config.Config, log zerolog.Logger) (*session.Transport, error) {
	if cfg.CookieSecret == "" {
		if !cfg.IsDevelopment {
			log.Warn().Msg("COOKIE_SECRET not set, credential cookies are stored in clear")
		}
		return session.NewTransport(nil, !cfg.IsDevelopment), nil
	}
	sealer, err := session.NewSealer(cfg.CookieSecret)
	if err != nil {
		return nil, err
	}
	return session.NewTransport(sealer, !cfg.IsDevelopment), nil
}
