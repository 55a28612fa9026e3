// Package events turns committed expense changes into broker messages and
// consumes them again for auditing.
package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"expensetracker/internal/storage"

	"github.com/google/uuid"
)

type Type string

const (
	Created Type = "expense.created"
	Updated Type = "expense.updated"
	Deleted Type = "expense.deleted"
)

// BindingKey matches every expense event on a topic exchange.
const BindingKey = "expense.#"

var ErrMalformedEvent = errors.New("malformed event")

// Event is the message published after a successful commit. It carries
// identifiers only; consumers needing the full record read it from storage.
type Event struct {
	Type       Type      `json:"type"`
	ExpenseID  uuid.UUID `json:"expense_id"`
	OwnerID    uuid.UUID `json:"owner_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

// FromOp describes the effect of a committed operation.
func FromOp(op storage.Op, at time.Time) Event {
	t := Created
	switch op.Kind {
	case storage.OpUpdate:
		t = Updated
	case storage.OpDelete:
		t = Deleted
	}
	return Event{
		Type:       t,
		ExpenseID:  op.Expense.ID,
		OwnerID:    op.Expense.OwnerID,
		OccurredAt: at.UTC(),
	}
}

func (e Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// Decode parses and validates a message body.
func Decode(data []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	switch e.Type {
	case Created, Updated, Deleted:
	default:
		return Event{}, fmt.Errorf("%w: unknown type %q", ErrMalformedEvent, e.Type)
	}
	if e.ExpenseID == uuid.Nil || e.OwnerID == uuid.Nil {
		return Event{}, fmt.Errorf("%w: missing identifiers", ErrMalformedEvent)
	}
	return e, nil
}
