// Package backend builds the configured expense store and the unit of work
// that commits to it.
package backend

import (
	"context"
	"slices"

	"expensetracker/internal/storage"
)

// Store is implemented by every storage adapter.
type Store interface {
	storage.ExpenseReader
	storage.UnitOfWork
	storage.UserStore
	storage.Pinger
}

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult contains the store, the unit of work handlers should commit
// through, and a cleanup function releasing both.
type BackendResult struct {
	Store      Store
	UnitOfWork storage.UnitOfWork
	Cleanup    CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	SQLiteDBPath string
	DatabaseURL  string

	// Optional change-event publishing
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string
}

// BackendType represents the type of backend
type BackendType string

const (
	MemoryBackend   BackendType = "memory"
	SQLiteBackend   BackendType = "sqlite"
	PostgresBackend BackendType = "postgres"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

var backendTypes = []BackendType{MemoryBackend, SQLiteBackend, PostgresBackend}

// IsValid reports whether bt names a supported backend.
func (bt BackendType) IsValid() bool {
	return slices.Contains(backendTypes, bt)
}
