// Package postgres implements the expense store on PostgreSQL through a pgx
// connection pool.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"expensetracker/internal/core"
	"expensetracker/internal/storage"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const uniqueViolation = "23505"

const expenseColumns = `id::text, owner_id::text, amount::text, currency, category, expense_date, description, created_at, updated_at`

type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository applies pending migrations and connects a pool to databaseURL.
func NewRepository(ctx context.Context, databaseURL string) (*Repository, error) {
	if err := RunMigrations(databaseURL); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Repository{pool: pool}, nil
}

func (r *Repository) Close() error {
	if r.pool != nil {
		r.pool.Close()
	}
	return nil
}

// Ping implements storage.Pinger
func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// ListByOwner implements storage.ExpenseReader
func (r *Repository) ListByOwner(ctx context.Context, owner uuid.UUID) ([]core.Expense, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+expenseColumns+` FROM expenses
		 WHERE owner_id = $1::uuid
		 ORDER BY expense_date DESC, created_at DESC`,
		owner.String())
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	defer rows.Close()

	expenses := []core.Expense{}
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		expenses = append(expenses, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expenses: %w", err)
	}
	return expenses, nil
}

// GetByOwnerAndID implements storage.ExpenseReader
func (r *Repository) GetByOwnerAndID(ctx context.Context, owner, id uuid.UUID) (core.Expense, bool, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+expenseColumns+` FROM expenses WHERE id = $1::uuid AND owner_id = $2::uuid`,
		id.String(), owner.String())

	e, err := scanExpense(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.Expense{}, false, nil
	}
	if err != nil {
		return core.Expense{}, false, fmt.Errorf("get expense: %w", err)
	}
	return e, true, nil
}

// Commit implements storage.UnitOfWork
func (r *Repository) Commit(ctx context.Context, b *storage.Batch) error {
	if b.Len() == 0 {
		return nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, op := range b.Ops() {
		if err := applyOp(ctx, tx, op); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	slog.DebugContext(ctx, "Batch committed to PostgreSQL", "ops", b.Len())
	return nil
}

func applyOp(ctx context.Context, tx pgx.Tx, op storage.Op) error {
	e := op.Expense
	switch op.Kind {
	case storage.OpInsert:
		_, err := tx.Exec(ctx,
			`INSERT INTO expenses (id, owner_id, amount, currency, category, expense_date, description, created_at, updated_at)
			 VALUES ($1::uuid, $2::uuid, $3::numeric, $4, $5, $6::date, $7, $8, $9)`,
			e.ID.String(), e.OwnerID.String(), e.Amount.Fixed(), e.Amount.Currency,
			e.Category, e.Date.String(), e.Description,
			core.Timestamp(e.CreatedAt), core.Timestamp(e.UpdatedAt))
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("insert expense %s: %w", e.ID, storage.ErrDuplicate)
			}
			return fmt.Errorf("insert expense %s: %w", e.ID, err)
		}
		return nil

	case storage.OpUpdate:
		tag, err := tx.Exec(ctx,
			`UPDATE expenses
			 SET amount = $1::numeric, currency = $2, category = $3, expense_date = $4::date, description = $5, updated_at = $6
			 WHERE id = $7::uuid AND owner_id = $8::uuid`,
			e.Amount.Fixed(), e.Amount.Currency, e.Category, e.Date.String(), e.Description,
			core.Timestamp(e.UpdatedAt), e.ID.String(), e.OwnerID.String())
		if err != nil {
			return fmt.Errorf("update expense %s: %w", e.ID, err)
		}
		return expectOneRow(tag, e.ID)

	case storage.OpDelete:
		tag, err := tx.Exec(ctx,
			`DELETE FROM expenses WHERE id = $1::uuid AND owner_id = $2::uuid`,
			e.ID.String(), e.OwnerID.String())
		if err != nil {
			return fmt.Errorf("delete expense %s: %w", e.ID, err)
		}
		return expectOneRow(tag, e.ID)

	default:
		return fmt.Errorf("unsupported operation %s", op.Kind)
	}
}

func expectOneRow(tag pgconn.CommandTag, id uuid.UUID) error {
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("expense %s: %w", id, storage.ErrStale)
	}
	return nil
}

// CreateUser implements storage.UserStore
func (r *Repository) CreateUser(ctx context.Context, u core.User) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO users (id, username, password_hash, created_at) VALUES ($1::uuid, $2, $3, $4)`,
		u.ID.String(), u.Username, u.PasswordHash, core.Timestamp(u.CreatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("create user %s: %w", u.Username, storage.ErrDuplicate)
		}
		return fmt.Errorf("create user %s: %w", u.Username, err)
	}

	slog.InfoContext(ctx, "User saved to PostgreSQL", "id", u.ID, "username", u.Username)
	return nil
}

// UserByUsername implements storage.UserStore
func (r *Repository) UserByUsername(ctx context.Context, username string) (core.User, bool, error) {
	var (
		u  core.User
		id string
	)
	err := r.pool.QueryRow(ctx,
		`SELECT id::text, username, password_hash, created_at FROM users WHERE username = $1`,
		username).Scan(&id, &u.Username, &u.PasswordHash, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.User{}, false, nil
	}
	if err != nil {
		return core.User{}, false, fmt.Errorf("get user by username: %w", err)
	}
	if u.ID, err = uuid.Parse(id); err != nil {
		return core.User{}, false, fmt.Errorf("parse user id: %w", err)
	}
	u.CreatedAt = u.CreatedAt.UTC()
	return u, true, nil
}

func scanExpense(row pgx.Row) (core.Expense, error) {
	var (
		e                 core.Expense
		id, owner, amount string
		date              time.Time
	)
	if err := row.Scan(&id, &owner, &amount, &e.Amount.Currency, &e.Category, &date,
		&e.Description, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return core.Expense{}, err
	}

	var err error
	if e.ID, err = uuid.Parse(id); err != nil {
		return core.Expense{}, fmt.Errorf("parse id: %w", err)
	}
	if e.OwnerID, err = uuid.Parse(owner); err != nil {
		return core.Expense{}, fmt.Errorf("parse owner id: %w", err)
	}
	if e.Amount.Amount, err = decimal.NewFromString(amount); err != nil {
		return core.Expense{}, fmt.Errorf("parse amount: %w", err)
	}
	e.Amount = e.Amount.Normalize()
	e.Date = core.DateOf(date)
	e.CreatedAt = e.CreatedAt.UTC()
	e.UpdatedAt = e.UpdatedAt.UTC()
	return e, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
