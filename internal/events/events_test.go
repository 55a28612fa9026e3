package events

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"expensetracker/internal/amqp"
	"expensetracker/internal/core"
	"expensetracker/internal/log"
	"expensetracker/internal/storage"
	"expensetracker/internal/storage/memory"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type published struct {
	key  string
	body []byte
}

type recordingPublisher struct {
	mu   sync.Mutex
	msgs []published
	err  error
}

func (p *recordingPublisher) Publish(_ context.Context, key string, body []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, published{key: key, body: body})
	return nil
}

func newExpense(t *testing.T, owner uuid.UUID) core.Expense {
	t.Helper()
	e, err := core.NewExpense(owner, core.ExpenseDetails{
		Amount:   core.Money{Amount: decimal.RequireFromString("82.45"), Currency: "CAD"},
		Category: "Food",
		Date:     core.NewDate(2026, 1, 5),
	}, time.Now())
	require.NoError(t, err)
	return e
}

func testLogger(buf *bytes.Buffer) *log.Logger {
	return log.New(log.Config{Level: slog.LevelDebug, Format: "json", Output: buf})
}

func TestCommitPublishesOneEventPerOp(t *testing.T) {
	store := memory.New()
	pub := &recordingPublisher{}
	var buf bytes.Buffer
	uow := NewUnitOfWork(store, pub, testLogger(&buf))
	at := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)
	uow.now = func() time.Time { return at }

	owner := uuid.New()
	e := newExpense(t, owner)
	b := storage.NewBatch()
	b.Add(e)
	require.NoError(t, uow.Commit(context.Background(), b))

	b = storage.NewBatch()
	b.Remove(e)
	require.NoError(t, uow.Commit(context.Background(), b))

	require.Len(t, pub.msgs, 2)
	assert.Equal(t, string(Created), pub.msgs[0].key)
	assert.Equal(t, string(Deleted), pub.msgs[1].key)

	ev, err := Decode(pub.msgs[0].body)
	require.NoError(t, err)
	assert.Equal(t, Created, ev.Type)
	assert.Equal(t, e.ID, ev.ExpenseID)
	assert.Equal(t, owner, ev.OwnerID)
	assert.True(t, at.Equal(ev.OccurredAt))

	var raw map[string]any
	require.NoError(t, json.Unmarshal(pub.msgs[1].body, &raw))
	assert.Equal(t, "expense.deleted", raw["type"])
	assert.Equal(t, e.ID.String(), raw["expense_id"])
	assert.Equal(t, owner.String(), raw["owner_id"])
	assert.Contains(t, raw, "occurred_at")
}

func TestFailedCommitPublishesNothing(t *testing.T) {
	store := memory.New()
	pub := &recordingPublisher{}
	var buf bytes.Buffer
	uow := NewUnitOfWork(store, pub, testLogger(&buf))

	b := storage.NewBatch()
	b.Save(newExpense(t, uuid.New()))
	err := uow.Commit(context.Background(), b)

	assert.ErrorIs(t, err, storage.ErrStale)
	assert.Empty(t, pub.msgs)
}

func TestPublishFailureDoesNotFailCommit(t *testing.T) {
	store := memory.New()
	pub := &recordingPublisher{err: errors.New("broker down")}
	var buf bytes.Buffer
	uow := NewUnitOfWork(store, pub, testLogger(&buf))

	owner := uuid.New()
	e := newExpense(t, owner)
	b := storage.NewBatch()
	b.Add(e)
	require.NoError(t, uow.Commit(context.Background(), b))

	_, found, err := store.GetByOwnerAndID(context.Background(), owner, e.ID)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Contains(t, buf.String(), "Failed to publish expense event")
	assert.Contains(t, buf.String(), "broker down")
	assert.Contains(t, buf.String(), `"operation":"publish"`)
}

func TestFromOp(t *testing.T) {
	e := newExpense(t, uuid.New())
	tests := []struct {
		kind storage.OpKind
		want Type
	}{
		{storage.OpInsert, Created},
		{storage.OpUpdate, Updated},
		{storage.OpDelete, Deleted},
	}
	for _, tt := range tests {
		ev := FromOp(storage.Op{Kind: tt.kind, Expense: e}, time.Now())
		assert.Equal(t, tt.want, ev.Type)
		assert.Equal(t, e.ID, ev.ExpenseID)
		assert.Equal(t, time.UTC, ev.OccurredAt.Location())
	}
}

func TestDecodeRejectsMalformed(t *testing.T) {
	tests := map[string]string{
		"not json":       `{`,
		"unknown type":   `{"type":"expense.exploded","expense_id":"` + uuid.NewString() + `","owner_id":"` + uuid.NewString() + `"}`,
		"missing owner":  `{"type":"expense.created","expense_id":"` + uuid.NewString() + `"}`,
		"bad expense id": `{"type":"expense.created","expense_id":"nope","owner_id":"` + uuid.NewString() + `"}`,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Decode([]byte(body))
			assert.ErrorIs(t, err, ErrMalformedEvent)
		})
	}
}

func TestAuditorHandle(t *testing.T) {
	var buf bytes.Buffer
	a := NewAuditor(testLogger(&buf))

	ev := Event{Type: Updated, ExpenseID: uuid.New(), OwnerID: uuid.New(), OccurredAt: time.Now().UTC()}
	body, err := ev.ToJSON()
	require.NoError(t, err)

	require.NoError(t, a.Handle(context.Background(), body))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "Expense changed", line["msg"])
	assert.Equal(t, log.ComponentAudit, line[log.FieldComponent])
	assert.Equal(t, string(Updated), line[log.FieldEventType])
	assert.Equal(t, ev.ExpenseID.String(), line[log.FieldExpenseID])

	err = a.Handle(context.Background(), []byte(`garbage`))
	assert.ErrorIs(t, err, amqp.ErrReject)
}
