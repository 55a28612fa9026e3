package backend

import (
	"errors"
	"fmt"

	"expensetracker/internal/config"
)

var errNilConfig = errors.New("app config is nil")

// FromAppConfig selects the backend named by DATA_BACKEND and copies the
// settings it needs, plus the optional event-publishing settings.
func FromAppConfig(cfg *config.Config) (Config, error) {
	if cfg == nil {
		return Config{}, errNilConfig
	}

	bc := Config{
		Type:         BackendType(cfg.DataBackend),
		SQLiteDBPath: cfg.SQLiteDBPath,
		DatabaseURL:  cfg.DatabaseURL,
		AMQPURL:      cfg.AMQPURL,
		AMQPExchange: cfg.AMQPExchange,
		AMQPQueue:    cfg.AMQPQueue,
	}
	if !bc.Type.IsValid() {
		return Config{}, fmt.Errorf("unsupported DATA_BACKEND %q (want one of %v)", cfg.DataBackend, backendTypes)
	}
	return bc, nil
}

// Validate checks that the selected backend has what it needs to open.
func (c Config) Validate() error {
	switch c.Type {
	case MemoryBackend:
		return nil
	case SQLiteBackend:
		if c.SQLiteDBPath == "" {
			return errors.New("sqlite backend needs SQLITE_DB_PATH")
		}
		return nil
	case PostgresBackend:
		if c.DatabaseURL == "" {
			return errors.New("postgres backend needs DATABASE_URL")
		}
		return nil
	default:
		return fmt.Errorf("unsupported backend type %q", c.Type)
	}
}
