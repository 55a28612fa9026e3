package http

import (
	"strings"
	"time"

	"expensetracker/internal/core"
)

// expenseResponse is the wire form of an expense. The amount is a fixed-point
// string with the currency's minor-unit digits, e.g. "82.45".
type expenseResponse struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"owner_id"`
	Amount      string    `json:"amount"`
	Currency    string    `json:"currency"`
	Category    string    `json:"category"`
	Date        string    `json:"date"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func toExpenseResponse(e core.Expense) expenseResponse {
	return expenseResponse{
		ID:          e.ID.String(),
		OwnerID:     e.OwnerID.String(),
		Amount:      e.Amount.Fixed(),
		Currency:    e.Amount.Currency,
		Category:    e.Category,
		Date:        e.Date.String(),
		Description: e.Description,
		CreatedAt:   e.CreatedAt,
		UpdatedAt:   e.UpdatedAt,
	}
}

func toExpenseResponses(list []core.Expense) []expenseResponse {
	out := make([]expenseResponse, 0, len(list))
	for _, e := range list {
		out = append(out, toExpenseResponse(e))
	}
	return out
}

// sanitizeInput removes control characters (except tab, LF, CR) and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}
