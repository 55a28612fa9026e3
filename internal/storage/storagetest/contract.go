// Package storagetest holds the behavioural contract every expense store must
// satisfy. Adapters run it from their own tests with a fresh store per test.
package storagetest

import (
	"context"
	"sync"
	"testing"
	"time"

	"expensetracker/internal/core"
	"expensetracker/internal/storage"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

// Store is the full set of ports an adapter implements.
type Store interface {
	storage.ExpenseReader
	storage.UnitOfWork
	storage.UserStore
}

// ContractSuite exercises a Store. Open is called before each test and must
// return an empty store plus a cleanup function.
type ContractSuite struct {
	suite.Suite
	Open func(t *testing.T) (Store, func())

	store   Store
	cleanup func()
	ctx     context.Context
}

func (s *ContractSuite) SetupTest() {
	s.store, s.cleanup = s.Open(s.T())
	s.ctx = context.Background()
}

func (s *ContractSuite) TearDownTest() {
	if s.cleanup != nil {
		s.cleanup()
	}
}

func (s *ContractSuite) newExpense(owner uuid.UUID, amount, category string, date core.Date) core.Expense {
	e, err := core.NewExpense(owner, core.ExpenseDetails{
		Amount:      core.Money{Amount: decimal.RequireFromString(amount), Currency: "CAD"},
		Category:    category,
		Date:        date,
		Description: "groceries",
	}, time.Now())
	require.NoError(s.T(), err)
	return e
}

func (s *ContractSuite) commit(ops func(b *storage.Batch)) error {
	b := storage.NewBatch()
	ops(b)
	return s.store.Commit(s.ctx, b)
}

func (s *ContractSuite) TestAddIsInvisibleUntilCommit() {
	owner := uuid.New()
	e := s.newExpense(owner, "82.45", "Food", core.NewDate(2026, 1, 5))

	b := storage.NewBatch()
	b.Add(e)

	_, found, err := s.store.GetByOwnerAndID(s.ctx, owner, e.ID)
	require.NoError(s.T(), err)
	s.False(found, "staged insert must not be visible before commit")

	require.NoError(s.T(), s.store.Commit(s.ctx, b))

	got, found, err := s.store.GetByOwnerAndID(s.ctx, owner, e.ID)
	require.NoError(s.T(), err)
	s.Require().True(found)
	s.Equal(e.ID, got.ID)
	s.Equal(e.OwnerID, got.OwnerID)
	s.True(e.Amount.Equal(got.Amount), "amount %s != %s", e.Amount.Fixed(), got.Amount.Fixed())
	s.Equal(e.Category, got.Category)
	s.True(e.Date.Equal(got.Date))
	s.Equal(e.Description, got.Description)
	s.True(e.CreatedAt.Equal(got.CreatedAt), "created_at %v != %v", e.CreatedAt, got.CreatedAt)
	s.True(got.CreatedAt.Equal(got.UpdatedAt))
}

func (s *ContractSuite) TestOtherOwnerCannotSee() {
	u1, u2 := uuid.New(), uuid.New()
	e := s.newExpense(u1, "10", "Food", core.NewDate(2026, 1, 5))
	require.NoError(s.T(), s.commit(func(b *storage.Batch) { b.Add(e) }))

	_, found, err := s.store.GetByOwnerAndID(s.ctx, u2, e.ID)
	require.NoError(s.T(), err)
	s.False(found)

	list, err := s.store.ListByOwner(s.ctx, u2)
	require.NoError(s.T(), err)
	s.Empty(list)
}

func (s *ContractSuite) TestMissingIsAbsentNotError() {
	_, found, err := s.store.GetByOwnerAndID(s.ctx, uuid.New(), uuid.New())
	require.NoError(s.T(), err)
	s.False(found)

	list, err := s.store.ListByOwner(s.ctx, uuid.New())
	require.NoError(s.T(), err)
	s.NotNil(list)
	s.Empty(list)
}

func (s *ContractSuite) TestSaveOverwritesMutableFields() {
	owner := uuid.New()
	e := s.newExpense(owner, "82.45", "Food", core.NewDate(2026, 1, 5))
	require.NoError(s.T(), s.commit(func(b *storage.Batch) { b.Add(e) }))

	updated := e
	require.NoError(s.T(), updated.Apply(core.ExpenseDetails{
		Amount:   core.Money{Amount: decimal.RequireFromString("90.00"), Currency: "USD"},
		Category: "Dining",
		Date:     core.NewDate(2026, 1, 6),
	}, time.Now()))
	require.NoError(s.T(), s.commit(func(b *storage.Batch) { b.Save(updated) }))

	got, found, err := s.store.GetByOwnerAndID(s.ctx, owner, e.ID)
	require.NoError(s.T(), err)
	s.Require().True(found)
	s.Equal("90.00", got.Amount.Fixed())
	s.Equal("USD", got.Amount.Currency)
	s.Equal("Dining", got.Category)
	s.Equal("2026-01-06", got.Date.String())
	s.Equal("", got.Description)
	s.True(e.CreatedAt.Equal(got.CreatedAt))
	s.True(got.UpdatedAt.After(e.UpdatedAt))
}

func (s *ContractSuite) TestRemoveDeletes() {
	owner := uuid.New()
	e := s.newExpense(owner, "5", "Food", core.NewDate(2026, 1, 5))
	require.NoError(s.T(), s.commit(func(b *storage.Batch) { b.Add(e) }))
	require.NoError(s.T(), s.commit(func(b *storage.Batch) { b.Remove(e) }))

	_, found, err := s.store.GetByOwnerAndID(s.ctx, owner, e.ID)
	require.NoError(s.T(), err)
	s.False(found)

	err = s.commit(func(b *storage.Batch) { b.Remove(e) })
	s.ErrorIs(err, storage.ErrStale)
}

func (s *ContractSuite) TestCommitIsAtomic() {
	owner := uuid.New()
	kept := s.newExpense(owner, "1", "Food", core.NewDate(2026, 1, 5))
	require.NoError(s.T(), s.commit(func(b *storage.Batch) { b.Add(kept) }))

	fresh := s.newExpense(owner, "2", "Food", core.NewDate(2026, 1, 6))
	ghost := s.newExpense(owner, "3", "Food", core.NewDate(2026, 1, 7)) // never inserted

	err := s.commit(func(b *storage.Batch) {
		b.Add(fresh)
		b.Remove(kept)
		b.Save(ghost)
	})
	s.ErrorIs(err, storage.ErrStale)

	list, err := s.store.ListByOwner(s.ctx, owner)
	require.NoError(s.T(), err)
	s.Require().Len(list, 1, "failed batch must leave no trace")
	s.Equal(kept.ID, list[0].ID)
}

func (s *ContractSuite) TestCrossOwnerWritesAreStale() {
	u1, u2 := uuid.New(), uuid.New()
	e := s.newExpense(u1, "5", "Food", core.NewDate(2026, 1, 5))
	require.NoError(s.T(), s.commit(func(b *storage.Batch) { b.Add(e) }))

	forged := e
	forged.OwnerID = u2
	s.ErrorIs(s.commit(func(b *storage.Batch) { b.Remove(forged) }), storage.ErrStale)
	s.ErrorIs(s.commit(func(b *storage.Batch) { b.Save(forged) }), storage.ErrStale)

	_, found, err := s.store.GetByOwnerAndID(s.ctx, u1, e.ID)
	require.NoError(s.T(), err)
	s.True(found)
}

func (s *ContractSuite) TestDuplicateInsert() {
	e := s.newExpense(uuid.New(), "5", "Food", core.NewDate(2026, 1, 5))
	require.NoError(s.T(), s.commit(func(b *storage.Batch) { b.Add(e) }))
	s.ErrorIs(s.commit(func(b *storage.Batch) { b.Add(e) }), storage.ErrDuplicate)
}

func (s *ContractSuite) TestListCountsAndOrder() {
	owner, other := uuid.New(), uuid.New()
	var created []core.Expense
	for day := 1; day <= 5; day++ {
		e := s.newExpense(owner, "1", "Food", core.NewDate(2026, 1, day))
		created = append(created, e)
		require.NoError(s.T(), s.commit(func(b *storage.Batch) { b.Add(e) }))
	}
	require.NoError(s.T(), s.commit(func(b *storage.Batch) {
		b.Add(s.newExpense(other, "1", "Food", core.NewDate(2026, 1, 1)))
	}))
	require.NoError(s.T(), s.commit(func(b *storage.Batch) {
		b.Remove(created[0])
		b.Remove(created[3])
	}))

	list, err := s.store.ListByOwner(s.ctx, owner)
	require.NoError(s.T(), err)
	s.Require().Len(list, 3)
	for _, e := range list {
		s.Equal(owner, e.OwnerID)
	}
	s.Equal("2026-01-05", list[0].Date.String())
	s.Equal("2026-01-03", list[1].Date.String())
	s.Equal("2026-01-02", list[2].Date.String())
}

func (s *ContractSuite) TestEmptyCommitIsNoop() {
	s.NoError(s.store.Commit(s.ctx, storage.NewBatch()))
}

func (s *ContractSuite) TestCanceledContextDoesNotCommit() {
	owner := uuid.New()
	e := s.newExpense(owner, "5", "Food", core.NewDate(2026, 1, 5))

	ctx, cancel := context.WithCancel(s.ctx)
	cancel()
	b := storage.NewBatch()
	b.Add(e)
	s.Error(s.store.Commit(ctx, b))

	_, found, err := s.store.GetByOwnerAndID(s.ctx, owner, e.ID)
	require.NoError(s.T(), err)
	s.False(found)
}

func (s *ContractSuite) TestConcurrentCommits() {
	owner := uuid.New()
	expenses := make([]core.Expense, 20)
	for i := range expenses {
		expenses[i] = s.newExpense(owner, "1", "Food", core.NewDate(2026, 1, 5))
	}

	var wg sync.WaitGroup
	errs := make(chan error, len(expenses))
	for _, e := range expenses {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b := storage.NewBatch()
			b.Add(e)
			errs <- s.store.Commit(s.ctx, b)
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		s.NoError(err)
	}

	list, err := s.store.ListByOwner(s.ctx, owner)
	require.NoError(s.T(), err)
	s.Len(list, 20)
}

func (s *ContractSuite) TestUsers() {
	u, err := core.NewUser("alice", "$2a$10$hash", time.Now())
	require.NoError(s.T(), err)
	require.NoError(s.T(), s.store.CreateUser(s.ctx, u))

	got, found, err := s.store.UserByUsername(s.ctx, "alice")
	require.NoError(s.T(), err)
	s.Require().True(found)
	s.Equal(u.ID, got.ID)
	s.Equal(u.PasswordHash, got.PasswordHash)
	s.True(u.CreatedAt.Equal(got.CreatedAt))

	dup, err := core.NewUser("alice", "other", time.Now())
	require.NoError(s.T(), err)
	s.ErrorIs(s.store.CreateUser(s.ctx, dup), storage.ErrDuplicate)

	_, found, err = s.store.UserByUsername(s.ctx, "bob")
	require.NoError(s.T(), err)
	s.False(found)
}
