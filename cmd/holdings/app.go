package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/rs/zerolog"

	"holdings/internal/observability"
	"holdings/internal/questrade"
)

var (
	loginURL = flag.String("login-url", envOr("QUESTRADE_TOKEN_URL", questrade.DefaultLoginURL), "Questrade OAuth server")
	verbose  = flag.Bool("v", false, "Log upstream calls")

	credFlags credentialFlags
)

func init() {
	credFlags.register(flag.CommandLine)
}

// app carries what every command needs to reach the brokerage.
type app struct {
	creds     *credentialFlags
	refresher *questrade.Refresher
	connector *questrade.Connector
	log       zerolog.Logger
}

func newApp() *app {
	level := zerolog.WarnLevel
	if *verbose {
		level = zerolog.DebugLevel
	}
	log := observability.NewConsoleLogger("holdings", level)
	return &app{
		creds: &credFlags,
		refresher: questrade.NewRefresher(questrade.RefresherConfig{
			LoginURL: *loginURL,
			Margin:   questrade.DefaultExpiryMargin,
			Logger:   log,
		}),
		connector: questrade.NewConnector(questrade.ConnectorConfig{Logger: log}),
		log:       log,
	}
}

// credential returns a valid credential. Refresh tokens are single use, so
// after a refresh the new credential is printed to stderr for the next run.
func (a *app) credential(ctx context.Context, force bool) (questrade.Credential, error) {
	cred, err := a.creds.credential()
	if err != nil {
		return questrade.Credential{}, err
	}
	if force {
		cred.ExpiresAt = time.Time{}
	}
	res, err := a.refresher.GetValidCredential(ctx, cred)
	if err != nil {
		return questrade.Credential{}, err
	}
	if res.Refreshed && !force {
		fmt.Fprint(os.Stderr, "# refresh token rotated, the previous one is no longer valid\n")
		fmt.Fprint(os.Stderr, exportLines(res.Credential))
	}
	return res.Credential, nil
}

func (a *app) client(ctx context.Context) (*questrade.Client, error) {
	cred, err := a.credential(ctx, false)
	if err != nil {
		return nil, err
	}
	return a.connector.Client(cred), nil
}

// printMarkdown renders md for the terminal, falling back to the raw text.
func printMarkdown(md string) {
	r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(120))
	if err == nil {
		if out, err := r.Render(md); err == nil {
			fmt.Print(out)
			return
		}
	}
	fmt.Print(md)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
