package expenses

import (
	"context"
	"errors"
	"fmt"
	"time"

	"expensetracker/internal/core"
	"expensetracker/internal/dispatch"
	"expensetracker/internal/result"
	"expensetracker/internal/storage"

	"github.com/google/uuid"
)

// NotFoundMessage is returned both for missing expenses and for expenses
// owned by someone else.
const NotFoundMessage = "Expense not found."

// Clock returns the current time. Tests replace it to control timestamps.
type Clock func() time.Time

// Handlers executes expense commands and queries against a store.
type Handlers struct {
	reader storage.ExpenseReader
	uow    storage.UnitOfWork
	now    Clock
}

type Option func(*Handlers)

// WithClock overrides the time source used for CreatedAt and UpdatedAt.
func WithClock(c Clock) Option {
	return func(h *Handlers) { h.now = c }
}

func NewHandlers(reader storage.ExpenseReader, uow storage.UnitOfWork, opts ...Option) *Handlers {
	h := &Handlers{reader: reader, uow: uow, now: time.Now}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register binds every expense handler into d.
func Register(d *dispatch.Dispatcher, h *Handlers) error {
	return errors.Join(
		dispatch.Register(d, h.Create),
		dispatch.Register(d, h.Update),
		dispatch.Register(d, h.Delete),
		dispatch.Register(d, h.GetByID),
		dispatch.Register(d, h.List),
	)
}

// Create records a new expense for the owner and returns it.
func (h *Handlers) Create(ctx context.Context, cmd CreateExpense) (result.Result[core.Expense], error) {
	e, err := core.NewExpense(cmd.OwnerID, cmd.details(), h.now())
	if err != nil {
		return result.Fail[core.Expense](result.Invalid, err.Error()), nil
	}

	b := storage.NewBatch()
	b.Add(e)
	if err := h.uow.Commit(ctx, b); err != nil {
		return result.Result[core.Expense]{}, fmt.Errorf("create expense: %w", err)
	}
	return result.Ok(e), nil
}

// Update overwrites the mutable fields of the owner's expense.
func (h *Handlers) Update(ctx context.Context, cmd UpdateExpense) (result.Result[bool], error) {
	e, found, err := h.load(ctx, cmd.OwnerID, cmd.ExpenseID)
	if err != nil {
		return result.Result[bool]{}, fmt.Errorf("update expense: %w", err)
	}
	if !found {
		return result.Fail[bool](result.NotFound, NotFoundMessage), nil
	}

	if err := e.Apply(cmd.details(), h.now()); err != nil {
		return result.Fail[bool](result.Invalid, err.Error()), nil
	}

	b := storage.NewBatch()
	b.Save(e)
	return h.commit(ctx, b, "update expense")
}

// Delete removes the owner's expense.
func (h *Handlers) Delete(ctx context.Context, cmd DeleteExpense) (result.Result[bool], error) {
	e, found, err := h.load(ctx, cmd.OwnerID, cmd.ExpenseID)
	if err != nil {
		return result.Result[bool]{}, fmt.Errorf("delete expense: %w", err)
	}
	if !found {
		return result.Fail[bool](result.NotFound, NotFoundMessage), nil
	}

	b := storage.NewBatch()
	b.Remove(e)
	return h.commit(ctx, b, "delete expense")
}

// GetByID returns the owner's expense.
func (h *Handlers) GetByID(ctx context.Context, q GetExpenseByID) (result.Result[core.Expense], error) {
	e, found, err := h.load(ctx, q.OwnerID, q.ExpenseID)
	if err != nil {
		return result.Result[core.Expense]{}, fmt.Errorf("get expense: %w", err)
	}
	if !found {
		return result.Fail[core.Expense](result.NotFound, NotFoundMessage), nil
	}
	return result.Ok(e), nil
}

// List returns the owner's expenses, newest date first.
func (h *Handlers) List(ctx context.Context, q ListExpensesByOwner) (result.Result[[]core.Expense], error) {
	if q.OwnerID == uuid.Nil {
		return result.Fail[[]core.Expense](result.Invalid, core.ErrMissingOwner.Error()), nil
	}
	list, err := h.reader.ListByOwner(ctx, q.OwnerID)
	if err != nil {
		return result.Result[[]core.Expense]{}, fmt.Errorf("list expenses: %w", err)
	}
	return result.Ok(list), nil
}

// load treats a nil owner or id as absent.
func (h *Handlers) load(ctx context.Context, owner, id uuid.UUID) (core.Expense, bool, error) {
	if owner == uuid.Nil || id == uuid.Nil {
		return core.Expense{}, false, nil
	}
	return h.reader.GetByOwnerAndID(ctx, owner, id)
}

// commit maps a row that vanished between load and commit to NotFound.
func (h *Handlers) commit(ctx context.Context, b *storage.Batch, op string) (result.Result[bool], error) {
	err := h.uow.Commit(ctx, b)
	if errors.Is(err, storage.ErrStale) {
		return result.Fail[bool](result.NotFound, NotFoundMessage), nil
	}
	if err != nil {
		return result.Result[bool]{}, fmt.Errorf("%s: %w", op, err)
	}
	return result.Ok(true), nil
}
