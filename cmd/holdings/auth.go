package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"
	"github.com/skip2/go-qrcode"

	"holdings/internal/questrade"
)

type loginCmd struct {
	clientID string
	redirect string
}

func (*loginCmd) Name() string     { return "login" }
func (*loginCmd) Synopsis() string { return "print the Questrade authorize URL and its QR code" }
func (*loginCmd) Usage() string {
	return `holdings login [-client-id <id>] [-redirect <url>]

  Prints the URL that starts the implicit OAuth flow, and a QR code of it
  for signing in on a phone. A refresh token can also be generated under
  API Access in the Questrade account settings.
`
}

func (c *loginCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.clientID, "client-id", os.Getenv("QUESTRADE_CLIENT_ID"), "OAuth client ID")
	f.StringVar(&c.redirect, "redirect", "http://localhost:3000/callback", "OAuth redirect URI")
}

func (c *loginCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.clientID == "" {
		fmt.Fprintln(os.Stderr, "Error: -client-id or QUESTRADE_CLIENT_ID is required")
		return subcommands.ExitUsageError
	}
	u := questrade.AuthorizeURL(*loginURL, c.clientID, c.redirect)
	fmt.Println(u)

	qr, err := qrcode.New(u, qrcode.Medium)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	fmt.Print(qr.ToSmallString(false))
	return subcommands.ExitSuccess
}

type refreshCmd struct{}

func (*refreshCmd) Name() string     { return "refresh" }
func (*refreshCmd) Synopsis() string { return "exchange the refresh token and print the new credential" }
func (*refreshCmd) Usage() string {
	return `holdings refresh

  Exchanges the refresh token even if the access token is still valid, and
  prints the new credential as shell exports:

    eval "$(holdings refresh)"
`
}

func (*refreshCmd) SetFlags(*flag.FlagSet) {}

func (*refreshCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	cred, err := newApp().credential(ctx, true)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	fmt.Print(exportLines(cred))
	return subcommands.ExitSuccess
}
