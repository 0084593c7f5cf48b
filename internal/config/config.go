// Package config provides application configuration.
package config

import (
	"os"
	"strconv"
	"time"

	"holdings/internal/questrade"
)

// Config holds the application configuration.
type Config struct {
	// Server settings
	Port      string
	Host      string
	StaticDir string

	// Questrade settings
	ClientID         string
	LoginURL         string // OAuth server, token and authorize paths are appended
	ExpiryMargin     time.Duration
	RefreshGrace     time.Duration
	UpstreamTimeout  time.Duration
	UpstreamRPS      float64 // 0 disables outbound pacing
	FetchConcurrency int

	// CORS origins, also reported by /api/settings
	CORSOriginLocal             string
	CORSOriginQuestradeCallback string

	// Cookie sealing, disabled when empty
	CookieSecret string

	// Fetch history database, disabled when empty
	DBPath           string
	HistoryRetention time.Duration

	LogLevel string

	// Environment
	IsDevelopment bool
}

// New creates a new Config with values from environment variables or defaults.
func New() *Config {
	return &Config{
		Port:                        getEnv("PORT", "8080"),
		Host:                        getEnv("HOST", "localhost"),
		StaticDir:                   getEnv("STATIC_DIR", "static"),
		ClientID:                    getEnv("QUESTRADE_CLIENT_ID", ""),
		LoginURL:                    getEnv("QUESTRADE_TOKEN_URL", questrade.DefaultLoginURL),
		ExpiryMargin:                clampMargin(getDuration("EXPIRY_MARGIN", questrade.DefaultExpiryMargin)),
		RefreshGrace:                getDuration("REFRESH_GRACE", questrade.DefaultRefreshGrace),
		UpstreamTimeout:             getDuration("UPSTREAM_TIMEOUT", questrade.DefaultTimeout),
		UpstreamRPS:                 getFloat("UPSTREAM_RPS", 0),
		FetchConcurrency:            getInt("FETCH_CONCURRENCY", 4),
		CORSOriginLocal:             getEnv("CORS_ORIGIN_LOCAL", "http://localhost:3000"),
		CORSOriginQuestradeCallback: getEnv("CORS_ORIGIN_QUESTRADE_CALLBACK", "http://localhost:3000/callback"),
		CookieSecret:                getEnv("COOKIE_SECRET", ""),
		DBPath:                      getEnv("DB_PATH", ""),
		HistoryRetention:            getDuration("HISTORY_RETENTION", 30*24*time.Hour),
		LogLevel:                    getEnv("LOG_LEVEL", "info"),
		IsDevelopment:               getEnv("ENV", "development") == "development",
	}
}

// Address returns the full address to bind the server to.
func (c *Config) Address() string {
	return c.Host + ":" + c.Port
}

// CORSOrigins returns the configured non-empty origins.
func (c *Config) CORSOrigins() []string {
	var origins []string
	for _, o := range []string{c.CORSOriginLocal, c.CORSOriginQuestradeCallback} {
		if o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

// clampMargin keeps the expiry margin within 0 to 300 seconds.
func clampMargin(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	if d > questrade.DefaultExpiryMargin {
		return questrade.DefaultExpiryMargin
	}
	return d
}

// getEnv returns the value of an environment variable or a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getDuration accepts Go durations ("90s") or plain seconds ("90").
func getDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return n
	}
	return defaultValue
}

func getFloat(key string, defaultValue float64) float64 {
	if f, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil {
		return f
	}
	return defaultValue
}
