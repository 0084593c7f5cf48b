package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"holdings/internal/config"
	"holdings/internal/database"
	"holdings/internal/models"
	"holdings/internal/observability"
	"holdings/internal/portfolio"
	"holdings/internal/questrade"
	"holdings/internal/repository"
	"holdings/internal/session"
)

var fixedNow = time.Date(2024, 3, 14, 15, 9, 26, 0, time.UTC)

// upstream fakes both the OAuth server and the REST API.
type upstream struct {
	*httptest.Server
	refreshes     int32
	orders        int32
	refreshStatus atomic.Int32
	failAccount   atomic.Int64
	slowAccount   atomic.Int64
}

func newUpstream(t *testing.T) *upstream {
	t.Helper()
	u := &upstream{}
	u.refreshStatus.Store(http.StatusOK)
	u.Server = httptest.NewServer(http.HandlerFunc(u.serve))
	t.Cleanup(u.Close)
	return u
}

func (u *upstream) serve(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/oauth2/token" {
		atomic.AddInt32(&u.refreshes, 1)
		if status := int(u.refreshStatus.Load()); status != http.StatusOK {
			http.Error(w, `{"error":"invalid_grant"}`, status)
			return
		}
		fmt.Fprintf(w, `{"access_token":"new-access","refresh_token":"new-refresh","expires_in":1800,"api_server":"%s/","token_type":"Bearer"}`, u.URL)
		return
	}

	auth := r.Header.Get("Authorization")
	if auth != "Bearer old-access" && auth != "Bearer new-access" {
		http.Error(w, `{"code":1017,"message":"Access token is invalid"}`, http.StatusUnauthorized)
		return
	}

	switch {
	case r.URL.Path == "/v1/accounts":
		fmt.Fprint(w, `{"accounts":[{"number":"111","type":"TFSA"},{"number":"222","type":"Margin"},{"number":"333","type":"RRSP"}]}`)
	case strings.HasSuffix(r.URL.Path, "/positions"):
		id := strings.Split(r.URL.Path, "/")[3]
		switch id {
		case strconv.FormatInt(u.failAccount.Load(), 10):
			http.Error(w, `{"code":1000,"message":"secret upstream detail"}`, http.StatusInternalServerError)
		case strconv.FormatInt(u.slowAccount.Load(), 10):
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
		case "111":
			fmt.Fprint(w, `{"positions":[{"symbol":"THI.TO","symbolId":38738,"currentMarketValue":3120,"totalCost":3000}]}`)
		case "222":
			fmt.Fprint(w, `{"positions":[{"symbol":"AAPL","symbolId":8049,"currentMarketValue":880,"totalCost":900}]}`)
		default:
			fmt.Fprint(w, `{"positions":[]}`)
		}
	case strings.HasSuffix(r.URL.Path, "/orders"):
		atomic.AddInt32(&u.orders, 1)
		fmt.Fprint(w, `{"orderId":1,"orders":[]}`)
	case r.URL.Path == "/v1/symbols":
		if r.URL.Query().Get("names") == "XYZ" {
			fmt.Fprint(w, `{"symbols":[{"symbol":"XYZ","symbolId":1}]}`)
			return
		}
		fmt.Fprint(w, `{"symbols":[{"symbol":"XYZ","symbolId":1},{"symbol":"ABC","symbolId":2}]}`)
	default:
		http.NotFound(w, r)
	}
}

type testEnv struct {
	up      *upstream
	router  http.Handler
	history *repository.FetchHistoryRepository
}

func newTestEnv(t *testing.T, withHistory bool) *testEnv {
	t.Helper()
	up := newUpstream(t)
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	cfg := &config.Config{
		ClientID:                    "client-1",
		LoginURL:                    up.URL,
		CORSOriginLocal:             "http://localhost:3000",
		CORSOriginQuestradeCallback: "http://localhost:3000/callback",
	}

	deps := NewDependencies().
		WithConfig(cfg).
		WithMetrics(metrics).
		WithTransport(session.NewTransport(nil, false)).
		WithRefresher(questrade.NewRefresher(questrade.RefresherConfig{
			LoginURL: up.URL,
			Margin:   questrade.DefaultExpiryMargin,
			Now:      func() time.Time { return fixedNow },
			Metrics:  metrics,
			Logger:   zerolog.Nop(),
		})).
		WithConnector(questrade.NewConnector(questrade.ConnectorConfig{
			Timeout: 200 * time.Millisecond,
			Metrics: metrics,
			Logger:  zerolog.Nop(),
		})).
		WithPortfolio(portfolio.NewService(4, metrics, zerolog.Nop()))

	env := &testEnv{up: up}
	if withHistory {
		db, err := database.New(filepath.Join(t.TempDir(), "test.db"))
		require.NoError(t, err)
		require.NoError(t, db.RunMigrations())
		t.Cleanup(func() { db.Close() })
		env.history = repository.NewFetchHistoryRepository(db)
		deps.WithHistoryRepo(env.history)
	}
	env.router = NewRouter(deps, zerolog.Nop(), nil, "")
	return env
}

func (e *testEnv) credential(expiresAt time.Time) questrade.Credential {
	return questrade.Credential{
		AccessToken:  "old-access",
		RefreshToken: "old-refresh",
		ExpiresAt:    expiresAt,
		APIServer:    e.up.URL + "/",
	}
}

func (e *testEnv) withCookies(req *http.Request, cred questrade.Credential) *http.Request {
	rec := httptest.NewRecorder()
	if err := session.NewTransport(nil, false).Write(rec, cred); err != nil {
		panic(err)
	}
	for _, c := range rec.Result().Cookies() {
		req.AddCookie(c)
	}
	return req
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func cookieValues(rec *httptest.ResponseRecorder) map[string]string {
	out := map[string]string{}
	for _, c := range rec.Result().Cookies() {
		out[c.Name] = c.Value
	}
	return out
}

type summaryResponse struct {
	Accounts map[string][]json.RawMessage `json:"accounts"`
	Summary  struct {
		MarketValue float64 `json:"result_market_value"`
		TotalCost   float64 `json:"result_total_cost"`
	} `json:"summary"`
}

func TestSummary_BodyCredential(t *testing.T) {
	env := newTestEnv(t, false)
	body := fmt.Sprintf(`{"access_token":"old-access","refresh_token":"old-refresh","expires_at":"%d","api_server":"%s/"}`,
		fixedNow.Add(time.Hour).Unix(), env.up.URL)

	rec := env.do(httptest.NewRequest(http.MethodPost, "/api/accounts", strings.NewReader(body)))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp summaryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 4000.0, resp.Summary.MarketValue)
	assert.Equal(t, 3900.0, resp.Summary.TotalCost)
	assert.Len(t, resp.Accounts, 3)
	assert.NotNil(t, resp.Accounts["333"])
	assert.Empty(t, resp.Accounts["333"])

	assert.Equal(t, int32(0), atomic.LoadInt32(&env.up.refreshes))
	cookies := cookieValues(rec)
	assert.Equal(t, "old-access", cookies["access_token"])
	assert.Equal(t, strconv.FormatInt(fixedNow.Add(time.Hour).Unix(), 10), cookies["expires_at"])
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
}

func TestSummary_RefreshesExpiredCookies(t *testing.T) {
	env := newTestEnv(t, false)
	req := env.withCookies(httptest.NewRequest(http.MethodGet, "/api/accounts", nil), env.credential(fixedNow.Add(-time.Minute)))

	rec := env.do(req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, int32(1), atomic.LoadInt32(&env.up.refreshes))

	cookies := cookieValues(rec)
	assert.Equal(t, "new-access", cookies["access_token"])
	assert.Equal(t, "new-refresh", cookies["refresh_token"])
	want := fixedNow.Add(1800*time.Second - questrade.DefaultExpiryMargin).Unix()
	assert.Equal(t, strconv.FormatInt(want, 10), cookies["expires_at"])
}

func TestSummary_MissingCredential(t *testing.T) {
	env := newTestEnv(t, false)

	rec := env.do(httptest.NewRequest(http.MethodPost, "/api/accounts", strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Unauthorized", strings.TrimSpace(rec.Body.String()))
	assert.Empty(t, rec.Result().Cookies())
}

func TestSummary_RefreshRejected(t *testing.T) {
	env := newTestEnv(t, false)
	env.up.refreshStatus.Store(http.StatusBadRequest)
	req := env.withCookies(httptest.NewRequest(http.MethodGet, "/api/accounts", nil), env.credential(fixedNow.Add(-time.Minute)))

	rec := env.do(req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Failed authorize", strings.TrimSpace(rec.Body.String()))
	assert.Empty(t, rec.Result().Cookies())
	assert.NotContains(t, rec.Body.String(), "invalid_grant")
}

func TestSummary_DownstreamFailureStillReissuesCookies(t *testing.T) {
	env := newTestEnv(t, true)
	env.up.failAccount.Store(222)
	req := env.withCookies(httptest.NewRequest(http.MethodGet, "/api/accounts", nil), env.credential(fixedNow.Add(-time.Minute)))

	rec := env.do(req)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Unexpected error occured.", strings.TrimSpace(rec.Body.String()))
	assert.NotContains(t, rec.Body.String(), "secret upstream detail")

	cookies := cookieValues(rec)
	assert.Equal(t, "new-access", cookies["access_token"])
	assert.Equal(t, "new-refresh", cookies["refresh_token"])

	entries, err := env.history.Recent(10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, models.FetchError, entries[0].Status)
	assert.Equal(t, "upstream_api", entries[0].ErrorKind)
	assert.True(t, entries[0].Refreshed)
}

func TestSummary_TimeoutMapsToRetryLater(t *testing.T) {
	env := newTestEnv(t, false)
	env.up.slowAccount.Store(333)
	req := env.withCookies(httptest.NewRequest(http.MethodGet, "/api/accounts", nil), env.credential(fixedNow.Add(time.Hour)))

	rec := env.do(req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "Try again later.", strings.TrimSpace(rec.Body.String()))
	assert.Equal(t, "old-access", cookieValues(rec)["access_token"])
}

func TestSummary_RecordsHistory(t *testing.T) {
	env := newTestEnv(t, true)
	req := env.withCookies(httptest.NewRequest(http.MethodGet, "/api/accounts", nil), env.credential(fixedNow.Add(time.Hour)))

	rec := env.do(req)
	require.Equal(t, http.StatusOK, rec.Code)

	hist := env.do(httptest.NewRequest(http.MethodGet, "/api/history?per_page=5", nil))
	require.Equal(t, http.StatusOK, hist.Code)

	var resp struct {
		Items []models.FetchHistory `json:"items"`
		Total int64                 `json:"total"`
	}
	require.NoError(t, json.Unmarshal(hist.Body.Bytes(), &resp))
	require.Len(t, resp.Items, 1)
	assert.Equal(t, int64(1), resp.Total)
	assert.Equal(t, models.FetchSuccess, resp.Items[0].Status)
	assert.Equal(t, 3, resp.Items[0].Accounts)
	assert.Equal(t, 2, resp.Items[0].Positions)
	assert.NotContains(t, hist.Body.String(), "old-access")
}

func TestSymbols_OneVersusMany(t *testing.T) {
	env := newTestEnv(t, false)
	cred := env.credential(fixedNow.Add(time.Hour))

	one := env.do(env.withCookies(httptest.NewRequest(http.MethodGet, "/api/symbols?names=xyz", nil), cred))
	require.Equal(t, http.StatusOK, one.Code, one.Body.String())
	assert.True(t, strings.HasPrefix(one.Body.String(), "{"))

	many := env.do(env.withCookies(httptest.NewRequest(http.MethodGet, "/api/symbols?names=XYZ,ABC", nil), cred))
	require.Equal(t, http.StatusOK, many.Code)
	assert.True(t, strings.HasPrefix(many.Body.String(), "["))

	missing := env.do(env.withCookies(httptest.NewRequest(http.MethodGet, "/api/symbols", nil), cred))
	assert.Equal(t, http.StatusBadRequest, missing.Code)
}

func TestSubmitOrder(t *testing.T) {
	env := newTestEnv(t, false)
	cred := env.credential(fixedNow.Add(time.Hour))

	order := `{"symbolId":38738,"quantity":10,"orderType":"Market","timeInForce":"Day","action":"Buy"}`
	rec := env.do(env.withCookies(httptest.NewRequest(http.MethodPost, "/api/accounts/111/orders", strings.NewReader(order)), cred))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"orderId":1,"orders":[]}`, rec.Body.String())
	assert.Equal(t, int32(1), atomic.LoadInt32(&env.up.orders))

	bad := `{"symbolId":38738,"quantity":0,"orderType":"Market","timeInForce":"Day","action":"Buy"}`
	rec = env.do(env.withCookies(httptest.NewRequest(http.MethodPost, "/api/accounts/111/orders", strings.NewReader(bad)), cred))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, int32(1), atomic.LoadInt32(&env.up.orders))
}

func TestActivities_Validation(t *testing.T) {
	env := newTestEnv(t, false)
	cred := env.credential(fixedNow.Add(time.Hour))

	rec := env.do(env.withCookies(httptest.NewRequest(http.MethodGet, "/api/accounts/111/activities?start=2024-02-01&end=2024-01-01", nil), cred))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "end must not be before start", strings.TrimSpace(rec.Body.String()))
}

func TestSettingsAndLogin(t *testing.T) {
	env := newTestEnv(t, false)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/api/settings", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var settings map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &settings))
	assert.Equal(t, "http://localhost:3000", settings["cors_origin_local"])
	assert.Equal(t, "http://localhost:3000/callback", settings["cors_origin_questrade_callback"])
	assert.Equal(t, "client-1", settings["origin_questrade_client_id"])

	rec = env.do(httptest.NewRequest(http.MethodGet, "/api/questrade/login/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var login map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &login))
	assert.Contains(t, login["url"], "/oauth2/authorize?")
	assert.Contains(t, login["url"], "response_type=token")

	rec = env.do(httptest.NewRequest(http.MethodGet, "/api/questrade/login/qr", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(rec.Body.String(), "\x89PNG"))
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t, false)
	req := httptest.NewRequest(http.MethodOptions, "/api/accounts", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "POST")

	rec := env.do(req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
}

func TestHistory_DisabledAndValidation(t *testing.T) {
	env := newTestEnv(t, false)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/api/history", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"items":[]`)

	rec = env.do(httptest.NewRequest(http.MethodGet, "/api/history?page=0", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(httptest.NewRequest(http.MethodGet, "/api/history?page=9223372036854775807&per_page=200", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var page struct {
		Offset int `json:"offset"`
		Page   int `json:"page"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.Equal(t, repository.MaxPage, page.Page)
	assert.GreaterOrEqual(t, page.Offset, 0)
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, true)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","database":"ok"}`, rec.Body.String())
}
