package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/google/subcommands"
)

type quoteCmd struct{}

func (*quoteCmd) Name() string     { return "quote" }
func (*quoteCmd) Synopsis() string { return "display level 1 quotes" }
func (*quoteCmd) Usage() string {
	return `holdings quote <ticker>...

  Displays bid, ask and last trade for each ticker.
`
}

func (*quoteCmd) SetFlags(*flag.FlagSet) {}

func (*quoteCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "Error: at least one ticker is required")
		return subcommands.ExitUsageError
	}
	tickers := make([]string, 0, f.NArg())
	for _, arg := range f.Args() {
		tickers = append(tickers, strings.ToUpper(arg))
	}

	client, err := newApp().client(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	quotes, err := client.GetQuotes(ctx, tickers...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	printMarkdown(quotesMarkdown(quotes.All()))
	return subcommands.ExitSuccess
}
