package session

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "holdings/internal/errors"
	"holdings/internal/questrade"
)

const testSecret = "this-is-a-valid-32-character-key"

func sampleCredential() questrade.Credential {
	return questrade.Credential{
		AccessToken:  "C3lTUKuNQrAAmSD/TPjuV/HI7aNrAwDp",
		RefreshToken: "aSBe7wAAdx88QTbwut0tiu3SYic3ox8F",
		ExpiresAt:    time.Unix(1710428966, 0),
		APIServer:    "https://api01.iq.questrade.com/",
	}
}

// replay copies the cookies set on rec into a new request.
func replay(rec *httptest.ResponseRecorder) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/api/accounts", nil)
	for _, c := range rec.Result().Cookies() {
		req.AddCookie(c)
	}
	return req
}

func TestTransport_RoundTrip(t *testing.T) {
	sealer, err := NewSealer(testSecret)
	require.NoError(t, err)

	for name, tr := range map[string]*Transport{
		"clear":  NewTransport(nil, false),
		"sealed": NewTransport(sealer, true),
	} {
		t.Run(name, func(t *testing.T) {
			cred := sampleCredential()
			rec := httptest.NewRecorder()
			require.NoError(t, tr.Write(rec, cred))

			cookies := rec.Result().Cookies()
			require.Len(t, cookies, 4)
			for _, c := range cookies {
				assert.True(t, c.HttpOnly)
				assert.Equal(t, "/", c.Path)
				assert.Equal(t, http.SameSiteLaxMode, c.SameSite)
			}

			got, err := tr.FromCookies(replay(rec))
			require.NoError(t, err)
			assert.Equal(t, cred.AccessToken, got.AccessToken)
			assert.Equal(t, cred.RefreshToken, got.RefreshToken)
			assert.Equal(t, cred.APIServer, got.APIServer)
			assert.True(t, cred.ExpiresAt.Equal(got.ExpiresAt))
		})
	}
}

func TestTransport_ClearCookieValues(t *testing.T) {
	rec := httptest.NewRecorder()
	require.NoError(t, NewTransport(nil, false).Write(rec, sampleCredential()))

	values := map[string]string{}
	for _, c := range rec.Result().Cookies() {
		values[c.Name] = c.Value
	}
	assert.Equal(t, "1710428966", values[CookieExpiresAt])
	assert.Equal(t, "https://api01.iq.questrade.com/", values[CookieAPIServer])
}

func TestTransport_SealedValuesAreOpaque(t *testing.T) {
	sealer, err := NewSealer(testSecret)
	require.NoError(t, err)
	rec := httptest.NewRecorder()
	require.NoError(t, NewTransport(sealer, false).Write(rec, sampleCredential()))

	for _, c := range rec.Result().Cookies() {
		assert.NotContains(t, c.Value, "questrade")
		assert.NotContains(t, c.Value, "C3lTUKuN")
	}

	// Clear cookies are rejected by a sealing transport.
	clear := httptest.NewRecorder()
	require.NoError(t, NewTransport(nil, false).Write(clear, sampleCredential()))
	_, err = NewTransport(sealer, false).FromCookies(replay(clear))
	assert.True(t, apperrors.IsMissingCredential(err))
}

func TestTransport_MissingCookies(t *testing.T) {
	tr := NewTransport(nil, false)

	tests := []struct {
		name    string
		cookies map[string]string
		wantErr bool
	}{
		{"none", nil, true},
		{"no refresh token", map[string]string{CookieAccessToken: "a", CookieAPIServer: "s"}, true},
		{"empty access token", map[string]string{CookieAccessToken: "", CookieRefreshToken: "r", CookieAPIServer: "s"}, true},
		{"no expiry", map[string]string{CookieAccessToken: "a", CookieRefreshToken: "r", CookieAPIServer: "s"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			for k, v := range tt.cookies {
				req.AddCookie(&http.Cookie{Name: k, Value: v})
			}
			cred, err := tr.FromCookies(req)
			if tt.wantErr {
				assert.True(t, apperrors.IsMissingCredential(err))
				assert.Equal(t, "Unauthorized", apperrors.PublicMessage(err))
				return
			}
			require.NoError(t, err)
			assert.True(t, cred.ExpiresAt.IsZero())
		})
	}
}

func TestTransport_FromRequest(t *testing.T) {
	tr := NewTransport(nil, false)
	cookieCred := sampleCredential()
	cookieCred.AccessToken = "from-cookie"

	withCookies := func(body string) *http.Request {
		req := httptest.NewRequest(http.MethodPost, "/api/accounts", strings.NewReader(body))
		rec := httptest.NewRecorder()
		require.NoError(t, tr.Write(rec, cookieCred))
		for _, c := range rec.Result().Cookies() {
			req.AddCookie(c)
		}
		return req
	}

	tests := []struct {
		name      string
		body      string
		access    string
		expiresAt time.Time
	}{
		{
			"body wins",
			`{"access_token":"from-body","refresh_token":"r","api_server":"https://s/","expires_at":"1710428966"}`,
			"from-body", time.Unix(1710428966, 0),
		},
		{
			"numeric expiry",
			`{"access_token":"from-body","refresh_token":"r","api_server":"https://s/","expires_at":1710428966.5}`,
			"from-body", time.Unix(1710428966, 0),
		},
		{
			"incomplete body",
			`{"access_token":"from-body"}`,
			"from-cookie", cookieCred.ExpiresAt,
		},
		{
			"all but expires_at",
			`{"access_token":"from-body","refresh_token":"r","api_server":"https://s/"}`,
			"from-cookie", cookieCred.ExpiresAt,
		},
		{
			"null expires_at",
			`{"access_token":"from-body","refresh_token":"r","api_server":"https://s/","expires_at":null}`,
			"from-cookie", cookieCred.ExpiresAt,
		},
		{"invalid body", `{not json`, "from-cookie", cookieCred.ExpiresAt},
		{"empty body", ``, "from-cookie", cookieCred.ExpiresAt},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cred, err := tr.FromRequest(withCookies(tt.body))
			require.NoError(t, err)
			assert.Equal(t, tt.access, cred.AccessToken)
			assert.True(t, tt.expiresAt.Equal(cred.ExpiresAt))
		})
	}

	_, err := tr.FromRequest(httptest.NewRequest(http.MethodPost, "/api/accounts", strings.NewReader(`{}`)))
	assert.True(t, apperrors.IsMissingCredential(err))
}

func TestSealer(t *testing.T) {
	_, err := NewSealer("short")
	assert.ErrorIs(t, err, ErrInvalidSecret)

	s, err := NewSealer(testSecret)
	require.NoError(t, err)

	sealed, err := s.Seal(CookieAccessToken, "token")
	require.NoError(t, err)

	opened, err := s.Open(CookieAccessToken, sealed)
	require.NoError(t, err)
	assert.Equal(t, "token", opened)

	_, err = s.Open(CookieRefreshToken, sealed)
	assert.ErrorIs(t, err, ErrDecryptionFailed)

	_, err = s.Open(CookieAccessToken, "!!")
	assert.ErrorIs(t, err, ErrInvalidCiphertext)

	other, err := NewSealer("another-valid-32-character-secret")
	require.NoError(t, err)
	_, err = other.Open(CookieAccessToken, sealed)
	assert.ErrorIs(t, err, ErrDecryptionFailed)

	again, err := s.Seal(CookieAccessToken, "token")
	require.NoError(t, err)
	assert.NotEqual(t, sealed, again)
}
