package questrade

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	apperrors "holdings/internal/errors"
	"holdings/internal/observability"
)

const (
	// DefaultLoginURL is the Questrade OAuth server.
	DefaultLoginURL = "https://login.questrade.com"

	tokenPath     = "/oauth2/token"
	authorizePath = "/oauth2/authorize"

	// DefaultExpiryMargin is subtracted from expires_in so a token is refreshed
	// before it can expire between the check and its use.
	DefaultExpiryMargin = 300 * time.Second

	// DefaultRefreshGrace is how long the credential issued for a refresh token
	// is handed to later requests still presenting that refresh token.
	DefaultRefreshGrace = 30 * time.Second

	httpClientTimeout = 30 * time.Second
)

// tokenResponse is the body of a successful refresh. It holds secrets, so
// malformed refresh responses never carry their payload into errors or logs.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    *int64 `json:"expires_in"`
	APIServer    string `json:"api_server"`
	TokenType    string `json:"token_type"`
}

// RefresherConfig configures a Refresher. An empty LoginURL, HTTPClient or Now
// selects the default; Margin and Grace are used as given.
type RefresherConfig struct {
	LoginURL   string
	Margin     time.Duration
	Grace      time.Duration
	HTTPClient *http.Client
	Now        func() time.Time
	Metrics    *observability.Metrics
	Logger     zerolog.Logger
}

// Refresher keeps credentials valid by exchanging refresh tokens.
//
// Refresh tokens are single-use. Concurrent refreshes of the same token are
// collapsed into one upstream call and the issued credential is remembered
// for a short grace window, so sibling requests carrying the same stale
// cookies receive the new credential instead of consuming the token again.
type Refresher struct {
	httpClient *http.Client
	loginURL   string
	margin     time.Duration
	grace      time.Duration
	now        func() time.Time
	metrics    *observability.Metrics
	log        zerolog.Logger

	group singleflight.Group

	mu     sync.Mutex
	recent map[string]issued
}

type issued struct {
	cred Credential
	at   time.Time
}

// NewRefresher creates a Refresher.
func NewRefresher(cfg RefresherConfig) *Refresher {
	r := &Refresher{
		httpClient: cfg.HTTPClient,
		loginURL:   cfg.LoginURL,
		margin:     cfg.Margin,
		grace:      cfg.Grace,
		now:        cfg.Now,
		metrics:    cfg.Metrics,
		log:        cfg.Logger,
		recent:     make(map[string]issued),
	}
	if r.httpClient == nil {
		r.httpClient = &http.Client{Timeout: httpClientTimeout}
	}
	if r.loginURL == "" {
		r.loginURL = DefaultLoginURL
	}
	if r.margin < 0 {
		r.margin = 0
	}
	if r.grace < 0 {
		r.grace = 0
	}
	if r.now == nil {
		r.now = time.Now
	}
	return r
}

// GetValidCredential returns current unchanged while it is valid, and
// otherwise a freshly issued credential with Refreshed set.
func (r *Refresher) GetValidCredential(ctx context.Context, current Credential) (RefreshResult, error) {
	if current.Valid(r.now()) {
		r.metrics.RefreshOutcome("valid")
		return RefreshResult{Credential: current}, nil
	}
	if current.RefreshToken == "" {
		r.metrics.RefreshOutcome("failed")
		return RefreshResult{}, apperrors.MissingCredential("refresh_token")
	}

	key := tokenKey(current.RefreshToken)
	if cred, ok := r.lookup(key); ok {
		r.metrics.RefreshOutcome("shared")
		return RefreshResult{Credential: cred, Refreshed: true}, nil
	}

	// The first caller's cancellation must not fail the callers sharing its flight.
	flightCtx := context.WithoutCancel(ctx)
	v, err, shared := r.group.Do(key, func() (any, error) {
		// A flight for this token may have finished since the lookup above.
		if cred, ok := r.lookup(key); ok {
			return cred, nil
		}
		cred, err := r.exchange(flightCtx, current.RefreshToken)
		if err != nil {
			return nil, err
		}
		r.remember(key, cred)
		return cred, nil
	})
	if err != nil {
		r.metrics.RefreshOutcome("failed")
		r.log.Warn().Err(err).Str("kind", apperrors.Kind(err)).Msg("token refresh failed")
		return RefreshResult{}, err
	}

	if shared {
		r.metrics.RefreshOutcome("shared")
	} else {
		r.metrics.RefreshOutcome("refreshed")
	}
	return RefreshResult{Credential: v.(Credential), Refreshed: true}, nil
}

// exchange calls the token endpoint with a refresh token.
func (r *Refresher) exchange(ctx context.Context, refreshToken string) (Credential, error) {
	u, err := url.Parse(r.loginURL + tokenPath)
	if err != nil {
		return Credential{}, apperrors.Wrap(apperrors.ErrUpstreamAuth, "invalid token url", err)
	}
	q := u.Query()
	q.Set("grant_type", "refresh_token")
	q.Set("refresh_token", refreshToken)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return Credential{}, apperrors.Wrap(apperrors.ErrUpstreamAuth, "building refresh request", err)
	}
	req.Header.Set("Accept", "application/json")

	r.log.Debug().Msg("refreshing access token")

	start := time.Now()
	resp, err := r.httpClient.Do(req)
	if err != nil {
		r.metrics.ObserveUpstream("token_refresh", 0, time.Since(start))
		if isTimeout(err) {
			return Credential{}, apperrors.Timeout("token refresh", err)
		}
		return Credential{}, apperrors.Wrap(apperrors.ErrUpstreamAuth, "token refresh request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	r.metrics.ObserveUpstream("token_refresh", resp.StatusCode, time.Since(start))
	if err != nil {
		if isTimeout(err) {
			return Credential{}, apperrors.Timeout("token refresh", err)
		}
		return Credential{}, apperrors.Wrap(apperrors.ErrUpstreamAuth, "reading refresh response", err)
	}

	if resp.StatusCode != http.StatusOK {
		return Credential{}, &AuthError{Status: resp.StatusCode, Body: body}
	}

	var tok tokenResponse
	if err := json.Unmarshal(body, &tok); err != nil {
		return Credential{}, malformed("token_refresh", "$", nil, err)
	}
	switch {
	case tok.AccessToken == "":
		return Credential{}, malformed("token_refresh", "access_token", nil, nil)
	case tok.RefreshToken == "":
		return Credential{}, malformed("token_refresh", "refresh_token", nil, nil)
	case tok.APIServer == "":
		return Credential{}, malformed("token_refresh", "api_server", nil, nil)
	case tok.ExpiresIn == nil:
		return Credential{}, malformed("token_refresh", "expires_in", nil, nil)
	}

	lifetime := time.Duration(*tok.ExpiresIn)*time.Second - r.margin
	if lifetime < 0 {
		lifetime = 0
	}
	now := r.now()
	cred := Credential{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    now.Add(lifetime),
		APIServer:    tok.APIServer,
	}

	r.log.Info().Time("expires_at", cred.ExpiresAt).Msg("access token refreshed")
	return cred, nil
}

func (r *Refresher) lookup(key string) (Credential, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.recent[key]
	if !ok || r.now().Sub(e.at) > r.grace {
		return Credential{}, false
	}
	return e.cred, true
}

func (r *Refresher) remember(key string, cred Credential) {
	if r.grace == 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	for k, e := range r.recent {
		if now.Sub(e.at) > r.grace {
			delete(r.recent, k)
		}
	}
	r.recent[key] = issued{cred: cred, at: now}
}

// tokenKey avoids holding raw refresh tokens as map keys.
func tokenKey(refreshToken string) string {
	sum := sha256.Sum256([]byte(refreshToken))
	return hex.EncodeToString(sum[:])
}

// AuthorizeURL builds the implicit-grant login URL the browser is sent to.
func AuthorizeURL(loginURL, clientID, redirectURI string) string {
	if loginURL == "" {
		loginURL = DefaultLoginURL
	}
	q := url.Values{}
	q.Set("client_id", clientID)
	q.Set("response_type", "token")
	q.Set("redirect_uri", redirectURI)
	return loginURL + authorizePath + "?" + q.Encode()
}
