// Package sqlite implements the expense store on an embedded SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"expensetracker/internal/core"
	"expensetracker/internal/storage"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	_ "modernc.org/sqlite"
)

// Timestamps are stored as fixed-width UTC text so that lexical and
// chronological order agree.
const timestampLayout = "2006-01-02T15:04:05.000000Z07:00"

const expenseColumns = `id, owner_id, amount, currency, category, expense_date, description, created_at, updated_at`

type Repository struct {
	db *sql.DB
}

// NewRepository opens (creating if needed) the database at dbPath and
// applies pending migrations.
func NewRepository(dbPath string) (*Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	// Run migrations before the main pool touches the file
	if err := RunMigrations(dbPath); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Repository{db: db}, nil
}

func (r *Repository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping implements storage.Pinger
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// ListByOwner implements storage.ExpenseReader
func (r *Repository) ListByOwner(ctx context.Context, owner uuid.UUID) ([]core.Expense, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+expenseColumns+` FROM expenses
		 WHERE owner_id = ?
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
	row := r.db.QueryRowContext(ctx,
		`SELECT `+expenseColumns+` FROM expenses WHERE id = ? AND owner_id = ?`,
		id.String(), owner.String())

	e, err := scanExpense(row)
	if errors.Is(err, sql.ErrNoRows) {
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

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, op := range b.Ops() {
		if err := applyOp(ctx, tx, op); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	slog.DebugContext(ctx, "Batch committed to SQLite", "ops", b.Len())
	return nil
}

func applyOp(ctx context.Context, tx *sql.Tx, op storage.Op) error {
	e := op.Expense
	switch op.Kind {
	case storage.OpInsert:
		_, err := tx.ExecContext(ctx,
			`INSERT INTO expenses (`+expenseColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			e.ID.String(), e.OwnerID.String(), e.Amount.Fixed(), e.Amount.Currency,
			e.Category, e.Date.String(), e.Description,
			formatTimestamp(e.CreatedAt), formatTimestamp(e.UpdatedAt))
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("insert expense %s: %w", e.ID, storage.ErrDuplicate)
			}
			return fmt.Errorf("insert expense %s: %w", e.ID, err)
		}
		return nil

	case storage.OpUpdate:
		res, err := tx.ExecContext(ctx,
			`UPDATE expenses
			 SET amount = ?, currency = ?, category = ?, expense_date = ?, description = ?, updated_at = ?
			 WHERE id = ? AND owner_id = ?`,
			e.Amount.Fixed(), e.Amount.Currency, e.Category, e.Date.String(), e.Description,
			formatTimestamp(e.UpdatedAt), e.ID.String(), e.OwnerID.String())
		if err != nil {
			return fmt.Errorf("update expense %s: %w", e.ID, err)
		}
		return expectOneRow(res, e.ID)

	case storage.OpDelete:
		res, err := tx.ExecContext(ctx,
			`DELETE FROM expenses WHERE id = ? AND owner_id = ?`,
			e.ID.String(), e.OwnerID.String())
		if err != nil {
			return fmt.Errorf("delete expense %s: %w", e.ID, err)
		}
		return expectOneRow(res, e.ID)

	default:
		return fmt.Errorf("unsupported operation %s", op.Kind)
	}
}

func expectOneRow(res sql.Result, id uuid.UUID) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("expense %s: %w", id, storage.ErrStale)
	}
	return nil
}

// CreateUser implements storage.UserStore
func (r *Repository) CreateUser(ctx context.Context, u core.User) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, username, password_hash, created_at) VALUES (?, ?, ?, ?)`,
		u.ID.String(), u.Username, u.PasswordHash, formatTimestamp(u.CreatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("create user %s: %w", u.Username, storage.ErrDuplicate)
		}
		return fmt.Errorf("create user %s: %w", u.Username, err)
	}

	slog.InfoContext(ctx, "User saved to SQLite", "id", u.ID, "username", u.Username)
	return nil
}

// UserByUsername implements storage.UserStore
func (r *Repository) UserByUsername(ctx context.Context, username string) (core.User, bool, error) {
	var (
		u             core.User
		id, createdAt string
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, username, password_hash, created_at FROM users WHERE username = ?`,
		username).Scan(&id, &u.Username, &u.PasswordHash, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return core.User{}, false, nil
	}
	if err != nil {
		return core.User{}, false, fmt.Errorf("get user by username: %w", err)
	}
	if u.ID, err = uuid.Parse(id); err != nil {
		return core.User{}, false, fmt.Errorf("parse user id: %w", err)
	}
	if u.CreatedAt, err = parseTimestamp(createdAt); err != nil {
		return core.User{}, false, err
	}
	return u, true, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanExpense(s scanner) (core.Expense, error) {
	var (
		e                                         core.Expense
		id, owner, amount, date, created, updated string
	)
	if err := s.Scan(&id, &owner, &amount, &e.Amount.Currency, &e.Category, &date,
		&e.Description, &created, &updated); err != nil {
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
	if e.Date, err = core.ParseDate(date); err != nil {
		return core.Expense{}, fmt.Errorf("parse date %q: %w", date, err)
	}
	if e.CreatedAt, err = parseTimestamp(created); err != nil {
		return core.Expense{}, err
	}
	if e.UpdatedAt, err = parseTimestamp(updated); err != nil {
		return core.Expense{}, err
	}
	return e, nil
}

func formatTimestamp(t time.Time) string {
	return core.Timestamp(t).Format(timestampLayout)
}

func parseTimestamp(s string) (time.Time, error) {
	t, err := time.Parse(timestampLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
