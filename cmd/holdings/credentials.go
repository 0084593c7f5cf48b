package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"holdings/internal/questrade"
)

var errNoCredential = errors.New("no refresh token, pass -refresh-token or set QUESTRADE_REFRESH_TOKEN")

// Environment variables mirror the cookie names the web client uses.
const (
	envAccessToken  = "QUESTRADE_ACCESS_TOKEN"
	envRefreshToken = "QUESTRADE_REFRESH_TOKEN"
	envExpiresAt    = "QUESTRADE_EXPIRES_AT"
	envAPIServer    = "QUESTRADE_API_SERVER"
)

// credentialFlags holds a credential given on the command line. Flags
// default to the environment. Nothing is written to disk.
type credentialFlags struct {
	accessToken  string
	refreshToken string
	expiresAt    string
	apiServer    string
}

func (c *credentialFlags) register(f *flag.FlagSet) {
	f.StringVar(&c.accessToken, "access-token", os.Getenv(envAccessToken), "OAuth access token")
	f.StringVar(&c.refreshToken, "refresh-token", os.Getenv(envRefreshToken), "OAuth refresh token")
	f.StringVar(&c.expiresAt, "expires-at", os.Getenv(envExpiresAt), "access token expiry, unix seconds")
	f.StringVar(&c.apiServer, "api-server", os.Getenv(envAPIServer), "API server of the access token")
}

// credential returns the configured credential. Without an access token or
// expiry it is already expired, which forces an exchange on first use.
func (c *credentialFlags) credential() (questrade.Credential, error) {
	if c.refreshToken == "" {
		return questrade.Credential{}, errNoCredential
	}
	return questrade.Credential{
		AccessToken:  c.accessToken,
		RefreshToken: c.refreshToken,
		ExpiresAt:    questrade.ParseExpiresAt(c.expiresAt),
		APIServer:    c.apiServer,
	}, nil
}

// exportLines formats cred as shell assignments for the next invocation.
func exportLines(cred questrade.Credential) string {
	var b strings.Builder
	fmt.Fprintf(&b, "export %s=%q\n", envAccessToken, cred.AccessToken)
	fmt.Fprintf(&b, "export %s=%q\n", envRefreshToken, cred.RefreshToken)
	fmt.Fprintf(&b, "export %s=%q\n", envExpiresAt, cred.ExpiresAtUnix())
	fmt.Fprintf(&b, "export %s=%q\n", envAPIServer, cred.APIServer)
	return b.String()
}
