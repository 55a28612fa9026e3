// Package expenses holds the commands, queries and handlers for expense
// records. Every handler scopes its reads and writes to the requesting owner.
package expenses

import (
	"expensetracker/internal/core"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	KindCreate  = "expense.create"
	KindUpdate  = "expense.update"
	KindDelete  = "expense.delete"
	KindGetByID = "expense.get"
	KindList    = "expense.list"
)

type CreateExpense struct {
	OwnerID     uuid.UUID
	Amount      decimal.Decimal
	Currency    string
	Category    string
	Date        core.Date
	Description string
}

func (CreateExpense) Kind() string { return KindCreate }

func (c CreateExpense) details() core.ExpenseDetails {
	return core.ExpenseDetails{
		Amount:      core.Money{Amount: c.Amount, Currency: c.Currency},
		Category:    c.Category,
		Date:        c.Date,
		Description: c.Description,
	}
}

// UpdateExpense overwrites every mutable field of an existing expense.
type UpdateExpense struct {
	OwnerID     uuid.UUID
	ExpenseID   uuid.UUID
	Amount      decimal.Decimal
	Currency    string
	Category    string
	Date        core.Date
	Description string
}

func (UpdateExpense) Kind() string { return KindUpdate }

func (c UpdateExpense) details() core.ExpenseDetails {
	return core.ExpenseDetails{
		Amount:      core.Money{Amount: c.Amount, Currency: c.Currency},
		Category:    c.Category,
		Date:        c.Date,
		Description: c.Description,
	}
}

type DeleteExpense struct {
	OwnerID   uuid.UUID
	ExpenseID uuid.UUID
}

func (DeleteExpense) Kind() string { return KindDelete }

type GetExpenseByID struct {
	OwnerID   uuid.UUID
	ExpenseID uuid.UUID
}

func (GetExpenseByID) Kind() string { return KindGetByID }

type ListExpensesByOwner struct {
	OwnerID uuid.UUID
}

func (ListExpensesByOwner) Kind() string { return KindList }
