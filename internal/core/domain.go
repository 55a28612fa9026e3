package core

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

const (
	MaxCategoryLength    = 64
	MaxDescriptionLength = 500
)

type (
	Date struct {
		time.Time
	}

	// Expense is a single spending entry owned by exactly one user.
	Expense struct {
		ID          uuid.UUID
		OwnerID     uuid.UUID
		Amount      Money
		Category    string
		Date        Date
		Description string // optional
		CreatedAt   time.Time
		UpdatedAt   time.Time
	}

	// ExpenseDetails holds the caller-editable fields of an Expense.
	ExpenseDetails struct {
		Amount      Money
		Category    string
		Date        Date
		Description string
	}

	User struct {
		ID           uuid.UUID
		Username     string
		PasswordHash string
		CreatedAt    time.Time
	}
)

var (
	ErrMissingOwner       = errors.New("owner is required")
	ErrMissingID          = errors.New("expense id is required")
	ErrEmptyCategory      = errors.New("category is required")
	ErrCategoryTooLong    = errors.New("category too long (max 64 characters)")
	ErrDescriptionTooLong = errors.New("description too long (max 500 characters)")
	ErrMissingDate        = errors.New("date is required")
	ErrInvalidDate        = errors.New("invalid date (expected YYYY-MM-DD)")
	ErrInvalidTimestamps  = errors.New("updated_at precedes created_at")
	ErrEmptyUsername      = errors.New("username is required")
	ErrEmptyPasswordHash  = errors.New("password hash is required")
	ErrUsernameColon      = errors.New("username must not contain ':'")
)

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf returns the calendar date of t as seen in UTC.
func DateOf(t time.Time) Date {
	y, m, d := t.UTC().Date()
	return Date{Time: time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

// ParseDate accepts either a plain calendar date (2006-01-02) or an RFC 3339
// timestamp, which is converted to UTC before its date is taken.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return DateOf(t), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return Date{}, ErrInvalidDate
	}
	return DateOf(t), nil
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrMissingDate
	}
	return nil
}

// String formats the date as YYYY-MM-DD.
func (d Date) String() string {
	return d.Format(time.DateOnly)
}

// Equal reports whether both dates fall on the same calendar day.
func (d Date) Equal(o Date) bool {
	return d.Time.Equal(o.Time)
}

// Timestamp normalizes t for storage: UTC, microsecond precision.
func Timestamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

// Normalize trims and canonicalizes the details in place.
func (d *ExpenseDetails) Normalize() {
	d.Category = strings.TrimSpace(d.Category)
	d.Description = strings.TrimSpace(d.Description)
	d.Date = DateOf(d.Date.Time)
	d.Amount = d.Amount.Normalize()
}

func (d ExpenseDetails) Validate() error {
	if err := d.Amount.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(d.Category) == "" {
		return ErrEmptyCategory
	}
	if utf8.RuneCountInString(d.Category) > MaxCategoryLength {
		return ErrCategoryTooLong
	}
	if utf8.RuneCountInString(d.Description) > MaxDescriptionLength {
		return ErrDescriptionTooLong
	}
	return d.Date.Validate()
}

// NewExpense builds a validated expense for owner with a fresh identifier.
// CreatedAt and UpdatedAt are both set to now.
func NewExpense(owner uuid.UUID, details ExpenseDetails, now time.Time) (Expense, error) {
	if owner == uuid.Nil {
		return Expense{}, ErrMissingOwner
	}
	details.Normalize()
	if err := details.Validate(); err != nil {
		return Expense{}, err
	}
	ts := Timestamp(now)
	return Expense{
		ID:          uuid.New(),
		OwnerID:     owner,
		Amount:      details.Amount,
		Category:    details.Category,
		Date:        details.Date,
		Description: details.Description,
		CreatedAt:   ts,
		UpdatedAt:   ts,
	}, nil
}

// Apply overwrites every mutable field and advances UpdatedAt strictly past
// its previous value. Identity, owner and CreatedAt are left untouched. On a
// validation error the expense is not modified.
func (e *Expense) Apply(details ExpenseDetails, now time.Time) error {
	details.Normalize()
	if err := details.Validate(); err != nil {
		return err
	}
	e.Amount = details.Amount
	e.Category = details.Category
	e.Date = details.Date
	e.Description = details.Description

	ts := Timestamp(now)
	if !ts.After(e.UpdatedAt) {
		ts = e.UpdatedAt.Add(time.Microsecond)
	}
	e.UpdatedAt = ts
	return nil
}

// Details returns the mutable fields of e.
func (e Expense) Details() ExpenseDetails {
	return ExpenseDetails{
		Amount:      e.Amount,
		Category:    e.Category,
		Date:        e.Date,
		Description: e.Description,
	}
}

// OwnedBy reports whether owner may see or modify e.
func (e Expense) OwnedBy(owner uuid.UUID) bool {
	return owner != uuid.Nil && e.OwnerID == owner
}

// Validate checks a fully formed expense, e.g. one loaded from storage.
func (e Expense) Validate() error {
	if e.ID == uuid.Nil {
		return ErrMissingID
	}
	if e.OwnerID == uuid.Nil {
		return ErrMissingOwner
	}
	if err := e.Details().Validate(); err != nil {
		return err
	}
	if e.UpdatedAt.Before(e.CreatedAt) {
		return ErrInvalidTimestamps
	}
	return nil
}

// NewUser builds a user record with a fresh identifier.
func NewUser(username, passwordHash string, now time.Time) (User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return User{}, ErrEmptyUsername
	}
	// Basic credentials split at the first colon.
	if strings.Contains(username, ":") {
		return User{}, ErrUsernameColon
	}
	if passwordHash == "" {
		return User{}, ErrEmptyPasswordHash
	}
	return User{
		ID:           uuid.New(),
		Username:     username,
		PasswordHash: passwordHash,
		CreatedAt:    Timestamp(now),
	}, nil
}
