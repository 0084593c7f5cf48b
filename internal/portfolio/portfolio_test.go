package portfolio

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "holdings/internal/errors"
	"holdings/internal/observability"
	"holdings/internal/questrade"
)

func position(symbol, marketValue, cost string) questrade.Position {
	return questrade.Position{
		Symbol:             symbol,
		CurrentMarketValue: questrade.NewNumber(decimal.RequireFromString(marketValue)),
		TotalCost:          questrade.NewNumber(decimal.RequireFromString(cost)),
	}
}

func TestAggregate(t *testing.T) {
	tests := []struct {
		name        string
		input       map[int64][]questrade.Position
		marketValue string
		cost        string
		accounts    int
	}{
		{"no accounts", map[int64][]questrade.Position{}, "0", "0", 0},
		{"nil input", nil, "0", "0", 0},
		{"one empty account", map[int64][]questrade.Position{1: {}}, "0", "0", 1},
		{"nil position list", map[int64][]questrade.Position{1: nil}, "0", "0", 1},
		{
			"two accounts",
			map[int64][]questrade.Position{
				1: {position("THI.TO", "3120", "3000")},
				2: {position("AAPL", "880", "900")},
			},
			"4000", "3900", 2,
		},
		{
			"mixed with empty",
			map[int64][]questrade.Position{
				1: {position("A", "10.10", "10"), position("B", "0.20", "0.3")},
				2: {},
			},
			"10.3", "10.3", 2,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Aggregate(tt.input)
			assert.True(t, s.TotalMarketValue.Equal(decimal.RequireFromString(tt.marketValue)), "market value %s", s.TotalMarketValue)
			assert.True(t, s.TotalCost.Equal(decimal.RequireFromString(tt.cost)), "cost %s", s.TotalCost)
			assert.Len(t, s.Accounts, tt.accounts)
			for id, ps := range s.Accounts {
				assert.NotNil(t, ps, "account %d", id)
			}
		})
	}
}

func TestAggregate_NoFloatDrift(t *testing.T) {
	positions := make([]questrade.Position, 0, 1000)
	for i := 0; i < 1000; i++ {
		positions = append(positions, position("X", "0.1", "0.01"))
	}
	s := Aggregate(map[int64][]questrade.Position{1: positions})
	assert.Equal(t, "100", s.TotalMarketValue.String())
	assert.Equal(t, "10", s.TotalCost.String())
}

func TestAggregate_OrderIndependent(t *testing.T) {
	a := Aggregate(map[int64][]questrade.Position{
		1: {position("A", "1.5", "1"), position("B", "2.25", "2")},
		2: {position("C", "3", "3")},
	})
	b := Aggregate(map[int64][]questrade.Position{
		2: {position("C", "3", "3")},
		1: {position("B", "2.25", "2"), position("A", "1.5", "1")},
	})
	assert.True(t, a.TotalMarketValue.Equal(b.TotalMarketValue))
	assert.True(t, a.TotalCost.Equal(b.TotalCost))
}

func TestSummaryJSON(t *testing.T) {
	s := Aggregate(map[int64][]questrade.Position{
		26598145: {position("THI.TO", "3120", "3000")},
		11111111: nil,
	})
	out, err := json.Marshal(s)
	require.NoError(t, err)

	var decoded struct {
		Accounts map[string][]map[string]any `json:"accounts"`
		Summary  map[string]float64          `json:"summary"`
	}
	require.NoError(t, json.Unmarshal(out, &decoded))
	assert.Len(t, decoded.Accounts["26598145"], 1)
	assert.NotNil(t, decoded.Accounts["11111111"])
	assert.Empty(t, decoded.Accounts["11111111"])
	assert.Equal(t, 3120.0, decoded.Summary["result_market_value"])
	assert.Equal(t, 3000.0, decoded.Summary["result_total_cost"])
	assert.Contains(t, string(out), `"11111111":[]`)
}

// fakeSource serves canned positions; failing accounts return err.
type fakeSource struct {
	ids       []int64
	listErr   error
	positions map[int64][]questrade.Position
	failing   map[int64]error
	blocking  bool
	cancelled int32
}

func (f *fakeSource) ListAccountIDs(ctx context.Context) ([]int64, error) {
	return f.ids, f.listErr
}

func (f *fakeSource) GetPositions(ctx context.Context, accountID int64) ([]questrade.Position, error) {
	if err, ok := f.failing[accountID]; ok {
		return nil, err
	}
	if f.blocking {
		select {
		case <-ctx.Done():
			atomic.AddInt32(&f.cancelled, 1)
			return nil, ctx.Err()
		case <-time.After(5 * time.Second):
		}
	}
	return f.positions[accountID], nil
}

func newTestService(t *testing.T) (*Service, *observability.Metrics) {
	t.Helper()
	m := observability.NewMetrics(prometheus.NewRegistry())
	return NewService(0, m, zerolog.Nop()), m
}

func TestLoad(t *testing.T) {
	svc, m := newTestService(t)
	src := &fakeSource{
		ids: []int64{1, 2, 3},
		positions: map[int64][]questrade.Position{
			1: {position("THI.TO", "3120", "3000")},
			2: {position("AAPL", "880", "900")},
		},
	}

	s, err := svc.Load(context.Background(), src)
	require.NoError(t, err)
	assert.True(t, s.TotalMarketValue.Equal(decimal.NewFromInt(4000)))
	assert.True(t, s.TotalCost.Equal(decimal.NewFromInt(3900)))
	require.Contains(t, s.Accounts, int64(3))
	assert.Empty(t, s.Accounts[3])
	assert.Equal(t, 2, s.PositionCount())

	assert.Equal(t, 1.0, testutil.ToFloat64(m.PortfolioFetches.WithLabelValues("ok")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.PositionsFetched))
}

func TestLoad_FailFast(t *testing.T) {
	svc, m := newTestService(t)
	boom := &questrade.APIError{Op: "positions", Status: 500, Body: []byte("down")}
	src := &fakeSource{
		ids:      []int64{1, 2, 3},
		failing:  map[int64]error{2: boom},
		blocking: true,
	}

	start := time.Now()
	s, err := svc.Load(context.Background(), src)
	require.Error(t, err)
	assert.True(t, errors.Is(err, boom))
	assert.Nil(t, s.Accounts, "no partial summary")
	assert.Less(t, time.Since(start), 4*time.Second)
	assert.Equal(t, int32(2), atomic.LoadInt32(&src.cancelled))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PortfolioFetches.WithLabelValues("upstream_api")))
}

func TestLoad_ListFailure(t *testing.T) {
	svc, _ := newTestService(t)
	src := &fakeSource{listErr: apperrors.Timeout("accounts", context.DeadlineExceeded)}

	_, err := svc.Load(context.Background(), src)
	assert.True(t, apperrors.IsTimeout(err))
}

func TestLoad_NoAccounts(t *testing.T) {
	svc, _ := newTestService(t)

	s, err := svc.Load(context.Background(), &fakeSource{})
	require.NoError(t, err)
	assert.True(t, s.TotalMarketValue.IsZero())
	assert.True(t, s.TotalCost.IsZero())
	assert.NotNil(t, s.Accounts)
}
