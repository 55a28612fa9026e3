package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"expensetracker/internal/amqp"
	"expensetracker/internal/cli"
	"expensetracker/internal/config"
	"expensetracker/internal/events"
	"expensetracker/internal/log"

	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, logger := cli.MustSetup(log.ComponentAMQP, os.Stdout)
	if !cfg.AMQPEnabled() {
		logger.ErrorContext(context.Background(), "AMQP_URL is required for the auditor")
		os.Exit(1)
	}

	ctx, stop := cli.SignalContext()
	err := run(ctx, cfg, logger)
	stop()
	if err != nil {
		logger.ErrorContext(context.Background(), "Auditor failed", log.FieldError, err.Error())
		os.Exit(1)
	}
	logger.InfoContext(context.Background(), "Auditor stopped")
}

func run(ctx context.Context, cfg *config.Config, logger *log.Logger) error {
	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, events.BindingKey)
	if err != nil {
		return fmt.Errorf("initialize AMQP client: %w", err)
	}
	defer client.Close()

	auditor := events.NewAuditor(logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.InfoContext(gctx, "Consuming expense events",
			"exchange", cfg.AMQPExchange,
			"queue", cfg.AMQPQueue,
			log.FieldOperation, log.OpConsume)
		err := client.Consume(gctx, auditor.Handle)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	return g.Wait()
}
