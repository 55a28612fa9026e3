package storage

import (
	"context"
	"errors"

	"expensetracker/internal/core"

	"github.com/google/uuid"
)

var (
	// ErrStale is returned by Commit when a staged update or removal no longer
	// matches a stored (id, owner) row. The whole batch is rolled back.
	ErrStale = errors.New("expense changed or removed concurrently")
	// ErrDuplicate is returned when an insert collides with an existing key.
	ErrDuplicate = errors.New("duplicate key")
)

// Ports for the expense store. Every read is scoped by owner.
type (
	ExpenseReader interface {
		// ListByOwner returns all expenses of owner. An empty slice is valid.
		ListByOwner(ctx context.Context, owner uuid.UUID) ([]core.Expense, error)

		// GetByOwnerAndID returns found=false both when id does not exist and
		// when it belongs to another owner.
		GetByOwnerAndID(ctx context.Context, owner, id uuid.UUID) (e core.Expense, found bool, err error)
	}

	// UnitOfWork durably applies every operation of a batch in one transaction.
	UnitOfWork interface {
		Commit(ctx context.Context, b *Batch) error
	}

	UserStore interface {
		CreateUser(ctx context.Context, u core.User) error
		UserByUsername(ctx context.Context, username string) (u core.User, found bool, err error)
	}

	// Pinger reports whether the backing store is reachable.
	Pinger interface {
		Ping(ctx context.Context) error
	}
)
