package events

import (
	"context"
	"fmt"

	"expensetracker/internal/amqp"
	"expensetracker/internal/log"
)

// Auditor writes every received expense event as a structured audit line.
type Auditor struct {
	logger *log.Logger
}

func NewAuditor(logger *log.Logger) *Auditor {
	return &Auditor{logger: logger.WithComponent(log.ComponentAudit)}
}

// Handle is an amqp.Handler. Malformed bodies are rejected without requeue.
func (a *Auditor) Handle(ctx context.Context, body []byte) error {
	ev, err := Decode(body)
	if err != nil {
		return fmt.Errorf("%w: %v", amqp.ErrReject, err)
	}

	a.logger.InfoContext(ctx, "Expense changed",
		log.FieldEventType, string(ev.Type),
		log.FieldExpenseID, ev.ExpenseID.String(),
		log.FieldOwnerID, ev.OwnerID.String(),
		"occurred_at", ev.OccurredAt)
	return nil
}
