package log

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http/httptest"
	"testing"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(buf.Bytes(), &m); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	return m
}

func TestLoggerAddsComponentAndCorrelationID(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: slog.LevelDebug, Component: ComponentExpense, Format: "json", Output: &buf})

	ctx := WithCorrelationID(context.Background(), "abc-123")
	logger.InfoContext(ctx, "hello", FieldExpenseID, "e1")

	line := decodeLine(t, &buf)
	if line[FieldComponent] != ComponentExpense {
		t.Errorf("component = %v, want %s", line[FieldComponent], ComponentExpense)
	}
	if line[FieldCorrelationID] != "abc-123" {
		t.Errorf("correlation_id = %v, want abc-123", line[FieldCorrelationID])
	}
	if line[FieldExpenseID] != "e1" {
		t.Errorf("expense_id = %v, want e1", line[FieldExpenseID])
	}
}

func TestLoggerOmitsMissingCorrelationID(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: slog.LevelInfo, Component: ComponentApp, Format: "json", Output: &buf})

	logger.WarnContext(context.Background(), "careful")

	line := decodeLine(t, &buf)
	if _, ok := line[FieldCorrelationID]; ok {
		t.Errorf("unexpected correlation_id in %v", line)
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: slog.LevelWarn, Component: ComponentApp, Format: "json", Output: &buf})

	logger.DebugContext(context.Background(), "hidden")
	logger.InfoContext(context.Background(), "hidden")
	if buf.Len() != 0 {
		t.Fatalf("expected no output below warn, got %q", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" DEBUG ": slog.LevelDebug,
		"info":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestFromContext(t *testing.T) {
	if got := FromContext(context.Background()); got.Component() != "unknown" {
		t.Errorf("fallback component = %q, want unknown", got.Component())
	}

	logger := New(DefaultConfig())
	ctx := WithLogger(context.Background(), logger)
	if got := FromContext(ctx); got != logger {
		t.Error("FromContext did not return the stored logger")
	}
}

func TestStructuredLoggerLogError(t *testing.T) {
	var buf bytes.Buffer
	sl := NewStructuredLogger(New(Config{Level: slog.LevelInfo, Format: "json", Output: &buf}))

	sl.LogError(context.Background(), "commit failed", errors.New("disk full"), ComponentStorage, OpUpdate, nil)

	line := decodeLine(t, &buf)
	if line[FieldError] != "disk full" || line[FieldOperation] != OpUpdate || line[FieldComponent] != ComponentStorage {
		t.Errorf("unexpected line %v", line)
	}
}

func TestStructuredLoggerHTTPLevel(t *testing.T) {
	var buf bytes.Buffer
	sl := NewStructuredLogger(New(Config{Level: slog.LevelInfo, Format: "json", Output: &buf}))

	r := httptest.NewRequest("GET", "/users/x/expenses", nil)
	sl.LogHTTPEnd(context.Background(), r, 500, 3, "10.0.0.1")

	line := decodeLine(t, &buf)
	if line["level"] != "ERROR" {
		t.Errorf("level = %v, want ERROR", line["level"])
	}
	if line[FieldSuccess] != false {
		t.Errorf("success = %v, want false", line[FieldSuccess])
	}
}
