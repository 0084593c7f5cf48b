// Package session moves credentials between HTTP requests and responses.
// The server keeps no token state: the browser's cookies are the only store.
package session

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	apperrors "holdings/internal/errors"
	"holdings/internal/questrade"
)

// Cookie names.
const (
	CookieAccessToken  = "access_token"
	CookieRefreshToken = "refresh_token"
	CookieExpiresAt    = "expires_at"
	CookieAPIServer    = "api_server"
)

const maxBodyBytes = 64 << 10

// Transport reads and writes credentials.
type Transport struct {
	sealer *Sealer
	secure bool
}

// NewTransport creates a Transport. A nil sealer stores cookie values in clear.
func NewTransport(sealer *Sealer, secure bool) *Transport {
	return &Transport{sealer: sealer, secure: secure}
}

// credentialBody is the JSON request form. expires_at may be a number or a string.
type credentialBody struct {
	AccessToken  string          `json:"access_token"`
	RefreshToken string          `json:"refresh_token"`
	ExpiresAt    json.RawMessage `json:"expires_at"`
	APIServer    string          `json:"api_server"`
}

// FromRequest reads the credential from a JSON body, falling back to cookies
// when the body is absent, undecodable or incomplete.
func (t *Transport) FromRequest(r *http.Request) (questrade.Credential, error) {
	if cred, ok := fromBody(r); ok {
		return cred, nil
	}
	return t.FromCookies(r)
}

// FromCookies reads the credential from request cookies.
// access_token, refresh_token and api_server are required; a missing or
// unparseable expires_at yields a zero expiry, which forces a refresh.
func (t *Transport) FromCookies(r *http.Request) (questrade.Credential, error) {
	var cred questrade.Credential
	var err error
	if cred.AccessToken, err = t.read(r, CookieAccessToken); err != nil {
		return questrade.Credential{}, err
	}
	if cred.RefreshToken, err = t.read(r, CookieRefreshToken); err != nil {
		return questrade.Credential{}, err
	}
	if cred.APIServer, err = t.read(r, CookieAPIServer); err != nil {
		return questrade.Credential{}, err
	}
	if exp, err := t.read(r, CookieExpiresAt); err == nil {
		cred.ExpiresAt = questrade.ParseExpiresAt(exp)
	}
	return cred, nil
}

// Write sets the four credential cookies on the response.
func (t *Transport) Write(w http.ResponseWriter, cred questrade.Credential) error {
	values := []struct{ name, value string }{
		{CookieAccessToken, cred.AccessToken},
		{CookieRefreshToken, cred.RefreshToken},
		{CookieExpiresAt, cred.ExpiresAtUnix()},
		{CookieAPIServer, cred.APIServer},
	}
	for _, v := range values {
		value := v.value
		if t.sealer != nil {
			sealed, err := t.sealer.Seal(v.name, value)
			if err != nil {
				return err
			}
			value = sealed
		}
		http.SetCookie(w, &http.Cookie{
			Name:     v.name,
			Value:    value,
			Path:     "/",
			HttpOnly: true,
			Secure:   t.secure,
			SameSite: http.SameSiteLaxMode,
		})
	}
	return nil
}

// read returns a non-empty cookie value, unsealed when sealing is on.
// A value that fails to open counts as missing.
func (t *Transport) read(r *http.Request, name string) (string, error) {
	c, err := r.Cookie(name)
	if err != nil || c.Value == "" {
		return "", apperrors.MissingCredential(name)
	}
	if t.sealer == nil {
		return c.Value, nil
	}
	value, err := t.sealer.Open(name, c.Value)
	if err != nil || value == "" {
		return "", apperrors.MissingCredential(name)
	}
	return value, nil
}

// fromBody decodes a credential from a JSON body. All four fields must be
// present, expires_at not null, for the body to be used.
func fromBody(r *http.Request) (questrade.Credential, bool) {
	if r.Body == nil || r.Body == http.NoBody {
		return questrade.Credential{}, false
	}
	var body credentialBody
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&body); err != nil {
		return questrade.Credential{}, false
	}
	expiresAt := rawScalar(body.ExpiresAt)
	if body.AccessToken == "" || body.RefreshToken == "" || body.APIServer == "" || expiresAt == "" {
		return questrade.Credential{}, false
	}
	return questrade.Credential{
		AccessToken:  body.AccessToken,
		RefreshToken: body.RefreshToken,
		ExpiresAt:    questrade.ParseExpiresAt(expiresAt),
		APIServer:    body.APIServer,
	}, true
}

// rawScalar returns a JSON string's contents or a number's literal text.
func rawScalar(raw json.RawMessage) string {
	s := strings.TrimSpace(string(raw))
	if unq, err := strconv.Unquote(s); err == nil {
		return unq
	}
	if s == "null" {
		return ""
	}
	return s
}
