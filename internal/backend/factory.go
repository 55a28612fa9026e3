package backend

import (
	"context"
	"errors"
	"fmt"

	"expensetracker/internal/amqp"
	"expensetracker/internal/events"
	"expensetracker/internal/log"
	"expensetracker/internal/storage"
	"expensetracker/internal/storage/memory"
	"expensetracker/internal/storage/postgres"
	"expensetracker/internal/storage/sqlite"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *log.Logger) Factory {
	return &DefaultFactory{logger: logger.WithComponent(log.ComponentStorage)}
}

// CreateBackend opens the store and, when AMQP is configured, wraps its unit
// of work with the change-event publisher. A broker that cannot be reached
// at startup only disables publishing.
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	store, closeStore, err := f.openStore(ctx, config)
	if err != nil {
		return nil, err
	}

	result := &BackendResult{
		Store:      store,
		UnitOfWork: store,
		Cleanup:    closeStore,
	}

	if config.AMQPURL == "" {
		return result, nil
	}

	client, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue, events.BindingKey)
	if err != nil {
		f.logger.WarnContext(ctx, "Failed to initialize AMQP client, continuing without events", log.FieldError, err.Error())
		return result, nil
	}
	f.logger.InfoContext(ctx, "Initialized AMQP client",
		"exchange", config.AMQPExchange,
		"queue", config.AMQPQueue)

	result.UnitOfWork = events.NewUnitOfWork(store, client, f.logger)
	result.Cleanup = func() error {
		return errors.Join(client.Close(), closeStore())
	}
	return result, nil
}

func (f *DefaultFactory) openStore(ctx context.Context, config Config) (Store, CleanupFunc, error) {
	switch config.Type {
	case MemoryBackend:
		f.logger.InfoContext(ctx, "Initialized memory backend")
		return memory.New(), func() error { return nil }, nil

	case SQLiteBackend:
		repo, err := sqlite.NewRepository(config.SQLiteDBPath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
		}
		f.logger.InfoContext(ctx, "Initialized SQLite backend", "db_path", config.SQLiteDBPath)
		return repo, repo.Close, nil

	case PostgresBackend:
		repo, err := postgres.NewRepository(ctx, config.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize PostgreSQL repository: %w", err)
		}
		f.logger.InfoContext(ctx, "Initialized PostgreSQL backend")
		return repo, repo.Close, nil

	default:
		return nil, nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

// Migrate applies pending schema migrations for the configured backend.
// The memory backend has no schema.
func Migrate(config Config) error {
	if err := config.Validate(); err != nil {
		return err
	}
	switch config.Type {
	case SQLiteBackend:
		return sqlite.RunMigrations(config.SQLiteDBPath)
	case PostgresBackend:
		return postgres.RunMigrations(config.DatabaseURL)
	default:
		return nil
	}
}

var (
	_ Store = (*memory.Store)(nil)
	_ Store = (*sqlite.Repository)(nil)
	_ Store = (*postgres.Repository)(nil)

	_ storage.UnitOfWork = (*events.UnitOfWork)(nil)
	_ events.Publisher   = (*amqp.Client)(nil)
)
