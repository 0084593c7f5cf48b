// Package portfolio folds per-account positions into portfolio totals.
package portfolio

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	apperrors "holdings/internal/errors"
	"holdings/internal/observability"
	"holdings/internal/questrade"
)

// DefaultConcurrency bounds in-flight position fetches per load.
const DefaultConcurrency = 4

// PositionSource is what Load needs from a brokerage client.
type PositionSource interface {
	ListAccountIDs(ctx context.Context) ([]int64, error)
	GetPositions(ctx context.Context, accountID int64) ([]questrade.Position, error)
}

// Summary is the derived portfolio view. It is recomputed on every request.
type Summary struct {
	Accounts         map[int64][]questrade.Position
	TotalMarketValue decimal.Decimal
	TotalCost        decimal.Decimal
}

// PositionCount returns the number of positions across all accounts.
func (s Summary) PositionCount() int {
	n := 0
	for _, ps := range s.Accounts {
		n += len(ps)
	}
	return n
}

type totalsJSON struct {
	MarketValue questrade.Number `json:"result_market_value"`
	TotalCost   questrade.Number `json:"result_total_cost"`
}

type summaryJSON struct {
	Accounts map[string][]questrade.Position `json:"accounts"`
	Summary  totalsJSON                      `json:"summary"`
}

// MarshalJSON writes {accounts:{id:[...]}, summary:{result_market_value, result_total_cost}}.
func (s Summary) MarshalJSON() ([]byte, error) {
	out := summaryJSON{
		Accounts: make(map[string][]questrade.Position, len(s.Accounts)),
		Summary: totalsJSON{
			MarketValue: questrade.NewNumber(s.TotalMarketValue),
			TotalCost:   questrade.NewNumber(s.TotalCost),
		},
	}
	for id, ps := range s.Accounts {
		if ps == nil {
			ps = []questrade.Position{}
		}
		out.Accounts[strconv.FormatInt(id, 10)] = ps
	}
	return json.Marshal(out)
}

// Aggregate sums currentMarketValue and totalCost over every position of
// every account. Values are added as reported, without currency conversion.
// Every account in the input appears in the result, with an empty slice when
// it holds nothing.
func Aggregate(positionsByAccount map[int64][]questrade.Position) Summary {
	s := Summary{
		Accounts:         make(map[int64][]questrade.Position, len(positionsByAccount)),
		TotalMarketValue: decimal.Zero,
		TotalCost:        decimal.Zero,
	}
	for id, positions := range positionsByAccount {
		if positions == nil {
			positions = []questrade.Position{}
		}
		s.Accounts[id] = positions

		marketValue, cost := decimal.Zero, decimal.Zero
		for _, p := range positions {
			marketValue = marketValue.Add(p.CurrentMarketValue.Decimal)
			cost = cost.Add(p.TotalCost.Decimal)
		}
		s.TotalMarketValue = s.TotalMarketValue.Add(marketValue)
		s.TotalCost = s.TotalCost.Add(cost)
	}
	return s
}

// Service loads positions for every account and aggregates them.
type Service struct {
	concurrency int
	metrics     *observability.Metrics
	log         zerolog.Logger
}

// NewService creates a Service. concurrency <= 0 selects DefaultConcurrency.
func NewService(concurrency int, metrics *observability.Metrics, log zerolog.Logger) *Service {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Service{concurrency: concurrency, metrics: metrics, log: log}
}

// Load lists the accounts, fetches their positions concurrently and
// aggregates them. The first failed fetch cancels the others and is
// returned; no partial summary is ever produced.
func (s *Service) Load(ctx context.Context, src PositionSource) (Summary, error) {
	start := time.Now()

	ids, err := src.ListAccountIDs(ctx)
	if err != nil {
		s.metrics.PortfolioFetch(apperrors.Kind(err), 0)
		return Summary{}, err
	}

	var (
		mu     sync.Mutex
		byAcct = make(map[int64][]questrade.Position, len(ids))
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, id := range ids {
		g.Go(func() error {
			positions, err := src.GetPositions(gctx, id)
			if err != nil {
				return err
			}
			mu.Lock()
			byAcct[id] = positions
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		s.metrics.PortfolioFetch(apperrors.Kind(err), 0)
		s.log.Warn().Err(err).Int("accounts", len(ids)).Msg("position fetch failed")
		return Summary{}, err
	}

	summary := Aggregate(byAcct)
	s.metrics.PortfolioFetch("ok", summary.PositionCount())
	s.log.Debug().
		Int("accounts", len(ids)).
		Int("positions", summary.PositionCount()).
		Dur("took", time.Since(start)).
		Msg("portfolio loaded")
	return summary, nil
}
