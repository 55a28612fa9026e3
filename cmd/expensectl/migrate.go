package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"expensetracker/internal/backend"
	"expensetracker/internal/config"
	"expensetracker/internal/log"

	"github.com/google/subcommands"
)

type migrateCmd struct {
	cfg    *config.Config
	logger *log.Logger
}

func (*migrateCmd) Name() string     { return "migrate" }
func (*migrateCmd) Synopsis() string { return "apply pending database migrations" }
func (*migrateCmd) Usage() string {
	return `expensectl migrate

  Applies the embedded migrations to the backend selected by DATA_BACKEND.
  The memory backend has nothing to migrate.
`
}

func (*migrateCmd) SetFlags(*flag.FlagSet) {}

func (c *migrateCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	bc, err := backendConfig(c.cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitUsageError
	}

	if err := backend.Migrate(bc); err != nil {
		c.logger.ErrorContext(ctx, "Migration failed",
			"backend", bc.Type.String(),
			log.FieldOperation, log.OpMigrate,
			log.FieldError, err.Error())
		return subcommands.ExitFailure
	}

	c.logger.InfoContext(ctx, "Migrations applied",
		"backend", bc.Type.String(),
		log.FieldOperation, log.OpMigrate)
	return subcommands.ExitSuccess
}
