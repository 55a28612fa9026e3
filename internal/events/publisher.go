package events

import (
	"context"
	"time"

	"expensetracker/internal/log"
	"expensetracker/internal/storage"
)

// Publisher sends a message body under a routing key.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, body []byte) error
}

// UnitOfWork commits through next and then publishes one event per
// operation. Publishing never fails a commit that already succeeded.
type UnitOfWork struct {
	next   storage.UnitOfWork
	pub    Publisher
	logger *log.Logger
	now    func() time.Time
}

func NewUnitOfWork(next storage.UnitOfWork, pub Publisher, logger *log.Logger) *UnitOfWork {
	return &UnitOfWork{
		next:   next,
		pub:    pub,
		logger: logger.WithComponent(log.ComponentAMQP),
		now:    time.Now,
	}
}

// Commit implements storage.UnitOfWork
func (u *UnitOfWork) Commit(ctx context.Context, b *storage.Batch) error {
	if err := u.next.Commit(ctx, b); err != nil {
		return err
	}

	at := u.now()
	// The request may be canceled right after commit; the events still go out.
	pubCtx := context.WithoutCancel(ctx)
	for _, op := range b.Ops() {
		ev := FromOp(op, at)
		body, err := ev.ToJSON()
		if err == nil {
			err = u.pub.Publish(pubCtx, string(ev.Type), body)
		}
		if err != nil {
			u.logger.WarnContext(ctx, "Failed to publish expense event",
				log.FieldOperation, log.OpPublish,
				log.FieldEventType, string(ev.Type),
				log.FieldExpenseID, ev.ExpenseID.String(),
				log.FieldError, err.Error())
		}
	}
	return nil
}
