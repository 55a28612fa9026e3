package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"expensetracker/internal/log"
	"expensetracker/internal/result"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type ping struct{ N int }

func (ping) Kind() string { return "test.ping" }

type other struct{}

func (other) Kind() string { return "test.other" }

func double(_ context.Context, p ping) (int, error) { return p.N * 2, nil }

func TestRegisterAndSend(t *testing.T) {
	d := New()
	require.NoError(t, Register(d, double))

	got, err := Send[int](context.Background(), d, ping{N: 21})
	require.NoError(t, err)
	assert.Equal(t, 42, got)
	assert.Equal(t, []string{"test.ping"}, d.Kinds())
}

func TestDuplicateRegistration(t *testing.T) {
	d := New()
	require.NoError(t, Register(d, double))

	err := Register(d, double)
	assert.ErrorIs(t, err, ErrDuplicateHandler)
}

func TestUnknownKind(t *testing.T) {
	d := New()
	_, err := Send[int](context.Background(), d, other{})
	assert.ErrorIs(t, err, ErrNoHandler)
}

func TestWrongResponseType(t *testing.T) {
	d := New()
	require.NoError(t, Register(d, double))

	_, err := Send[string](context.Background(), d, ping{N: 1})
	assert.ErrorIs(t, err, ErrUnexpectedResult)
}

func TestHandlerErrorPropagates(t *testing.T) {
	boom := errors.New("boom")
	d := New()
	require.NoError(t, Register(d, func(context.Context, ping) (int, error) { return 0, boom }))

	_, err := Send[int](context.Background(), d, ping{})
	assert.ErrorIs(t, err, boom)
}

func TestMiddlewareOrder(t *testing.T) {
	var calls []string
	trace := func(name string) Middleware {
		return func(next HandlerFunc) HandlerFunc {
			return func(ctx context.Context, req Request) (any, error) {
				calls = append(calls, name+">")
				out, err := next(ctx, req)
				calls = append(calls, "<"+name)
				return out, err
			}
		}
	}

	d := New(trace("outer"), trace("inner"))
	require.NoError(t, Register(d, double))
	_, err := Send[int](context.Background(), d, ping{N: 1})
	require.NoError(t, err)

	assert.Equal(t, []string{"outer>", "inner>", "<inner", "<outer"}, calls)
}

func TestLoggingMiddleware(t *testing.T) {
	var buf bytes.Buffer
	logger := log.New(log.Config{Level: slog.LevelDebug, Format: "json", Output: &buf})

	d := New(Logging(logger))
	require.NoError(t, Register(d, func(context.Context, ping) (result.Result[int], error) {
		return result.Fail[int](result.NotFound, "Expense not found."), nil
	}))

	ctx := log.WithCorrelationID(context.Background(), "corr-1")
	res, err := Send[result.Result[int]](ctx, d, ping{})
	require.NoError(t, err)
	assert.True(t, res.IsFailure())

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)
	var line map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &line))
	assert.Equal(t, "Request rejected", line["msg"])
	assert.Equal(t, "test.ping", line[log.FieldRequestKind])
	assert.Equal(t, "not_found", line[log.FieldFailureKind])
	assert.Equal(t, "corr-1", line[log.FieldCorrelationID])
	assert.Equal(t, log.ComponentDispatch, line[log.FieldComponent])
}
