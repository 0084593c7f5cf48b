package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"

	"holdings/internal/portfolio"
)

type summaryCmd struct {
	json        bool
	concurrency int
}

func (*summaryCmd) Name() string     { return "summary" }
func (*summaryCmd) Synopsis() string { return "display positions of every account and portfolio totals" }
func (*summaryCmd) Usage() string {
	return `holdings summary [-json] [-c n]

  Fetches the positions of every account and sums market value and cost.
`
}

func (c *summaryCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.json, "json", false, "print the same JSON document the server returns")
	f.IntVar(&c.concurrency, "c", portfolio.DefaultConcurrency, "accounts fetched in parallel")
}

func (c *summaryCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	a := newApp()
	client, err := a.client(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}

	summary, err := portfolio.NewService(c.concurrency, nil, a.log).Load(ctx, client)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}

	if c.json {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(summary); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return subcommands.ExitFailure
		}
		return subcommands.ExitSuccess
	}
	printMarkdown(summaryMarkdown(summary))
	return subcommands.ExitSuccess
}
