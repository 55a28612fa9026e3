// Package cli provides common CLI initialization utilities shared by
// cmd/expense-api, cmd/expense-auditor and cmd/expensectl.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"expensetracker/internal/config"
	"expensetracker/internal/log"
)

// Setup loads .env, reads the configuration and builds the process logger,
// which also becomes the slog default.
func Setup(component string, out io.Writer) (*config.Config, *log.Logger, error) {
	if err := config.LoadDotEnv(); err != nil {
		return nil, nil, err
	}

	cfg := config.Load()
	logger := NewLogger(cfg, component, out)
	log.SetDefault(logger)
	return cfg, logger, nil
}

// NewLogger builds a logger honouring LOG_LEVEL and LOG_FORMAT.
func NewLogger(cfg *config.Config, component string, out io.Writer) *log.Logger {
	return log.New(log.Config{
		Level:     log.ParseLevel(cfg.LogLevel),
		Component: component,
		Format:    cfg.LogFormat,
		Output:    out,
	})
}

// MustSetup is Setup followed by config validation. Any failure is
// reported and the process exits with status 1.
func MustSetup(component string, out io.Writer) (*config.Config, *log.Logger) {
	cfg, logger, err := Setup(component, out)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		logger.ErrorContext(context.Background(), "Configuration validation failed", log.FieldError, err.Error())
		os.Exit(1)
	}
	return cfg, logger
}

// SignalContext returns a context cancelled on SIGINT or SIGTERM.
func SignalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
