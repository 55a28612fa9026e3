// Package memory keeps expenses and users in process memory. It is the
// default backend for local runs and the reference adapter in tests.
package memory

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"sync"

	"expensetracker/internal/core"
	"expensetracker/internal/storage"

	"github.com/google/uuid"
)

type Store struct {
	mu       sync.RWMutex
	expenses map[uuid.UUID]core.Expense
	users    map[string]core.User
}

func New() *Store {
	return &Store{
		expenses: make(map[uuid.UUID]core.Expense),
		users:    make(map[string]core.User),
	}
}

// Ping implements storage.Pinger
func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

// ListByOwner implements storage.ExpenseReader
func (s *Store) ListByOwner(ctx context.Context, owner uuid.UUID) ([]core.Expense, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []core.Expense{}
	for _, e := range s.expenses {
		if e.OwnedBy(owner) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.After(out[j].Date.Time)
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// GetByOwnerAndID implements storage.ExpenseReader
func (s *Store) GetByOwnerAndID(ctx context.Context, owner, id uuid.UUID) (core.Expense, bool, error) {
	if err := ctx.Err(); err != nil {
		return core.Expense{}, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.expenses[id]
	if !ok || !e.OwnedBy(owner) {
		return core.Expense{}, false, nil
	}
	return e, true, nil
}

// Commit implements storage.UnitOfWork. Operations are applied to a copy of
// the current state which replaces it only when every operation succeeded.
func (s *Store) Commit(ctx context.Context, b *storage.Batch) error {
	if b.Len() == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	next := maps.Clone(s.expenses)
	for _, op := range b.Ops() {
		e := op.Expense
		current, exists := next[e.ID]
		switch op.Kind {
		case storage.OpInsert:
			if exists {
				return fmt.Errorf("insert expense %s: %w", e.ID, storage.ErrDuplicate)
			}
			next[e.ID] = e
		case storage.OpUpdate:
			if !exists || current.OwnerID != e.OwnerID {
				return fmt.Errorf("expense %s: %w", e.ID, storage.ErrStale)
			}
			// Identity and creation time are never rewritten.
			e.CreatedAt = current.CreatedAt
			next[e.ID] = e
		case storage.OpDelete:
			if !exists || current.OwnerID != e.OwnerID {
				return fmt.Errorf("expense %s: %w", e.ID, storage.ErrStale)
			}
			delete(next, e.ID)
		default:
			return fmt.Errorf("unsupported operation %s", op.Kind)
		}
	}

	s.expenses = next
	return nil
}

// CreateUser implements storage.UserStore
func (s *Store) CreateUser(ctx context.Context, u core.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[u.Username]; exists {
		return fmt.Errorf("create user %s: %w", u.Username, storage.ErrDuplicate)
	}
	s.users[u.Username] = u
	return nil
}

// UserByUsername implements storage.UserStore
func (s *Store) UserByUsername(ctx context.Context, username string) (core.User, bool, error) {
	if err := ctx.Err(); err != nil {
		return core.User{}, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[username]
	return u, ok, nil
}
