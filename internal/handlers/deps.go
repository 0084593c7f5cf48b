package handlers

import (
	"holdings/internal/config"
	"holdings/internal/observability"
	"holdings/internal/portfolio"
	"holdings/internal/questrade"
	"holdings/internal/repository"
	"holdings/internal/session"
)

// Dependencies holds all handler dependencies.
type Dependencies struct {
	Config    *config.Config
	Refresher *questrade.Refresher
	Connector *questrade.Connector
	Portfolio *portfolio.Service
	Transport *session.Transport
	Metrics   *observability.Metrics

	// HistoryRepo is nil when fetch history is disabled.
	HistoryRepo *repository.FetchHistoryRepository
}

// NewDependencies creates an empty Dependencies container.
func NewDependencies() *Dependencies {
	return &Dependencies{}
}

// WithConfig sets the configuration.
func (d *Dependencies) WithConfig(c *config.Config) *Dependencies {
	d.Config = c
	return d
}

// WithRefresher sets the token refresher.
func (d *Dependencies) WithRefresher(r *questrade.Refresher) *Dependencies {
	d.Refresher = r
	return d
}

// WithConnector sets the brokerage connector.
func (d *Dependencies) WithConnector(c *questrade.Connector) *Dependencies {
	d.Connector = c
	return d
}

// WithPortfolio sets the portfolio service.
func (d *Dependencies) WithPortfolio(s *portfolio.Service) *Dependencies {
	d.Portfolio = s
	return d
}

// WithTransport sets the credential transport.
func (d *Dependencies) WithTransport(t *session.Transport) *Dependencies {
	d.Transport = t
	return d
}

// WithMetrics sets the metrics.
func (d *Dependencies) WithMetrics(m *observability.Metrics) *Dependencies {
	d.Metrics = m
	return d
}

// WithHistoryRepo sets the fetch history repository.
func (d *Dependencies) WithHistoryRepo(r *repository.FetchHistoryRepository) *Dependencies {
	d.HistoryRepo = r
	return d
}
