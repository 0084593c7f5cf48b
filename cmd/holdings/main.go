// Command holdings is a terminal client for a Questrade portfolio.
package main

import (
	"context"
	"flag"
	"os"
	"path"

	"github.com/google/subcommands"
)

func main() {
	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")

	commander.Register(&loginCmd{}, "auth")
	commander.Register(&refreshCmd{}, "auth")
	commander.Register(&summaryCmd{}, "portfolio")
	commander.Register(&quoteCmd{}, "market")

	flag.Parse()
	os.Exit(int(commander.Execute(context.Background())))
}
