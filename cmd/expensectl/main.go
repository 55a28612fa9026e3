// Command expensectl administers an expense tracker deployment: it creates
// users and applies database migrations for the configured backend.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path"

	"expensetracker/internal/backend"
	"expensetracker/internal/cli"
	"expensetracker/internal/config"
	"expensetracker/internal/log"

	"github.com/google/subcommands"
)

func main() {
	cfg, logger, err := cli.Setup(log.ComponentApp, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")
	commander.Register(newAddUserCmd(cfg, logger), "")
	commander.Register(&migrateCmd{cfg: cfg, logger: logger}, "")

	flag.Parse()
	os.Exit(int(commander.Execute(context.Background())))
}

// backendConfig resolves the backend settings without the event publisher;
// administrative writes do not emit change events.
func backendConfig(cfg *config.Config) (backend.Config, error) {
	bc, err := backend.FromAppConfig(cfg)
	if err != nil {
		return backend.Config{}, err
	}
	bc.AMQPURL = ""
	return bc, nil
}
