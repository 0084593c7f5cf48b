package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors of the backend.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	TokenRefreshes   *prometheus.CounterVec
	UpstreamDuration *prometheus.HistogramVec
	PortfolioFetches *prometheus.CounterVec
	PositionsFetched prometheus.Counter
}

// NewMetrics registers all collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		TokenRefreshes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "holdings",
			Name:      "token_refreshes_total",
			Help:      "Token validity checks by outcome (valid, refreshed, shared, failed).",
		}, []string{"outcome"}),
		UpstreamDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "holdings",
			Name:      "upstream_request_duration_seconds",
			Help:      "Latency of brokerage API calls by operation and status.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"op", "status"}),
		PortfolioFetches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "holdings",
			Name:      "portfolio_fetches_total",
			Help:      "Portfolio summary requests by result kind.",
		}, []string{"result"}),
		PositionsFetched: f.NewCounter(prometheus.CounterOpts{
			Namespace: "holdings",
			Name:      "positions_fetched_total",
			Help:      "Positions returned by the brokerage across all accounts.",
		}),
	}
}

// RefreshOutcome counts one token validity check.
func (m *Metrics) RefreshOutcome(outcome string) {
	if m == nil {
		return
	}
	m.TokenRefreshes.WithLabelValues(outcome).Inc()
}

// ObserveUpstream records an upstream call. status is 0 for transport failures.
func (m *Metrics) ObserveUpstream(op string, status int, d time.Duration) {
	if m == nil {
		return
	}
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	m.UpstreamDuration.WithLabelValues(op, label).Observe(d.Seconds())
}

// PortfolioFetch counts one portfolio load. result is "ok" or an error kind.
func (m *Metrics) PortfolioFetch(result string, positions int) {
	if m == nil {
		return
	}
	m.PortfolioFetches.WithLabelValues(result).Inc()
	m.PositionsFetched.Add(float64(positions))
}
