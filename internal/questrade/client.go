package questrade

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	apperrors "holdings/internal/errors"
	"holdings/internal/observability"
)

const (
	// DefaultTimeout bounds every upstream call.
	DefaultTimeout = 30 * time.Second

	apiVersionPath = "/v1/"

	// activityOffset is the fixed offset Questrade expects on activity and candle windows.
	activityOffset = "-05:00"
)

// ConnectorConfig configures a Connector.
type ConnectorConfig struct {
	HTTPClient *http.Client
	Timeout    time.Duration
	// RequestsPerSecond paces outbound calls across all clients. Zero disables pacing.
	RequestsPerSecond float64
	Metrics           *observability.Metrics
	Logger            zerolog.Logger
}

// Connector holds what clients share across requests: the HTTP transport,
// the outbound pacer and instrumentation. It carries no credentials.
type Connector struct {
	httpClient *http.Client
	timeout    time.Duration
	limiter    *rate.Limiter
	metrics    *observability.Metrics
	log        zerolog.Logger
}

// NewConnector creates a Connector.
func NewConnector(cfg ConnectorConfig) *Connector {
	c := &Connector{
		httpClient: cfg.HTTPClient,
		timeout:    cfg.Timeout,
		metrics:    cfg.Metrics,
		log:        cfg.Logger,
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{}
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	if cfg.RequestsPerSecond > 0 {
		burst := int(cfg.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	return c
}

// Client returns a client bound to the credential's access token and API server.
func (c *Connector) Client(cred Credential) *Client {
	return &Client{
		conn:        c,
		accessToken: cred.AccessToken,
		apiServer:   strings.TrimRight(cred.APIServer, "/"),
	}
}

// Client issues authenticated calls for one access token against one API server.
// It is immutable and safe for concurrent use.
type Client struct {
	conn        *Connector
	accessToken string
	apiServer   string
}

// APIServer returns the normalized base URL.
func (c *Client) APIServer() string {
	return c.apiServer
}

// send performs one authenticated call and returns the body of a 2xx response.
func (c *Client) send(ctx context.Context, op, method, endpoint string, params url.Values, payload any) ([]byte, error) {
	if c.accessToken == "" {
		return nil, apperrors.MissingCredential("access_token")
	}
	if c.apiServer == "" {
		return nil, apperrors.MissingCredential("api_server")
	}

	if c.conn.limiter != nil {
		if err := c.conn.limiter.Wait(ctx); err != nil {
			return nil, transportError(op, err)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, c.conn.timeout)
	defer cancel()

	target := c.apiServer + apiVersionPath + endpoint
	if len(params) > 0 {
		target += "?" + params.Encode()
	}

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("%s: encoding payload: %w", op, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("%s: building request: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.conn.httpClient.Do(req)
	if err != nil {
		c.conn.metrics.ObserveUpstream(op, 0, time.Since(start))
		return nil, transportError(op, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	c.conn.metrics.ObserveUpstream(op, resp.StatusCode, time.Since(start))
	if err != nil {
		return nil, transportError(op, err)
	}

	c.conn.log.Debug().Str("op", op).Int("status", resp.StatusCode).Dur("took", time.Since(start)).Msg("upstream call")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{Op: op, Status: resp.StatusCode, Body: data}
	}
	return data, nil
}

// get performs a GET and parses the body.
func (c *Client) get(ctx context.Context, op, endpoint string, params url.Values) (*document, error) {
	body, err := c.send(ctx, op, http.MethodGet, endpoint, params, nil)
	if err != nil {
		return nil, err
	}
	return parseDocument(op, body)
}

// ListAccounts returns the accounts the token can see.
func (c *Client) ListAccounts(ctx context.Context) ([]Account, error) {
	doc, err := c.get(ctx, "accounts", "accounts", nil)
	if err != nil {
		return nil, err
	}
	if _, err := doc.list("$.accounts", "number"); err != nil {
		return nil, err
	}
	var accounts []Account
	if err := doc.decode("$.accounts", &accounts); err != nil {
		return nil, err
	}
	return accounts, nil
}

// ListAccountIDs returns the numeric account identifiers in upstream order.
func (c *Client) ListAccountIDs(ctx context.Context) ([]int64, error) {
	doc, err := c.get(ctx, "accounts", "accounts", nil)
	if err != nil {
		return nil, err
	}
	items, err := doc.list("$.accounts", "number")
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(items))
	for i, item := range items {
		id, err := toInt64(item.(map[string]any)["number"])
		if err != nil {
			return nil, malformed(doc.op, fmt.Sprintf("$.accounts[%d].number", i), doc.body, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// GetPositions returns the positions of one account as reported upstream.
func (c *Client) GetPositions(ctx context.Context, accountID int64) ([]Position, error) {
	doc, err := c.get(ctx, "positions", accountPath(accountID, "positions"), nil)
	if err != nil {
		return nil, err
	}
	if _, err := doc.list("$.positions", "currentMarketValue", "totalCost"); err != nil {
		return nil, err
	}
	positions := []Position{}
	if err := doc.decode("$.positions", &positions); err != nil {
		return nil, err
	}
	return positions, nil
}

// GetBalances returns the balances document of one account.
func (c *Client) GetBalances(ctx context.Context, accountID int64) (Balances, error) {
	doc, err := c.get(ctx, "balances", accountPath(accountID, "balances"), nil)
	if err != nil {
		return nil, err
	}
	if _, err := doc.get("$.combinedBalances"); err != nil {
		return nil, err
	}
	var balances Balances
	if err := json.Unmarshal(doc.body, &balances); err != nil {
		return nil, malformed(doc.op, "$", doc.body, err)
	}
	return balances, nil
}

// GetActivities returns account activities between two dates. The window
// runs from start at midnight to end at midnight, both in a fixed -05:00 offset.
func (c *Client) GetActivities(ctx context.Context, accountID int64, start, end time.Time) ([]Activity, error) {
	params := url.Values{}
	params.Set("startTime", midnight(start))
	params.Set("endTime", midnight(end))

	doc, err := c.get(ctx, "activities", accountPath(accountID, "activities"), params)
	if err != nil {
		return nil, err
	}
	activities := []Activity{}
	if err := doc.decode("$.activities", &activities); err != nil {
		return nil, err
	}
	return activities, nil
}

// SubmitOrder places an order. It is not idempotent and is sent exactly once.
func (c *Client) SubmitOrder(ctx context.Context, accountID int64, order Order) (json.RawMessage, error) {
	c.conn.log.Info().Int64("account", accountID).Int64("symbol_id", order.SymbolID).Str("action", order.Action).Msg("posting order")
	body, err := c.send(ctx, "orders", http.MethodPost, accountPath(accountID, "orders"), nil, order)
	if err != nil {
		return nil, err
	}
	if !json.Valid(body) {
		return nil, malformed("orders", "$", body, nil)
	}
	return json.RawMessage(body), nil
}

func accountPath(accountID int64, resource string) string {
	return "accounts/" + strconv.FormatInt(accountID, 10) + "/" + resource
}

// midnight formats a date as YYYY-MM-DDT00:00:00-05:00.
func midnight(d time.Time) string {
	return d.Format("2006-01-02") + "T00:00:00" + activityOffset
}
