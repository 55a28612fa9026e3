package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"expensetracker/internal/core"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// maxBodyBytes caps the size of a request body.
const maxBodyBytes = 64 << 10

// RequestError is a client error detected before the request reaches a
// handler. Status is 400 for malformed input and 422 for well-formed input
// that breaks an expense invariant.
type RequestError struct {
	Status  int
	Message string
}

func (e *RequestError) Error() string { return e.Message }

func badRequest(format string, args ...any) *RequestError {
	return &RequestError{Status: http.StatusBadRequest, Message: fmt.Sprintf(format, args...)}
}

func unprocessable(err error) *RequestError {
	return &RequestError{Status: http.StatusUnprocessableEntity, Message: err.Error()}
}

// amountField accepts both a JSON string ("82.45") and a JSON number (82.45)
// and keeps the literal digits so no float rounding takes place.
type amountField struct {
	raw string
	set bool
}

func (a *amountField) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	a.set = true
	if len(b) > 0 && b[0] == '"' {
		return json.Unmarshal(b, &a.raw)
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	a.raw = n.String()
	return nil
}

// expenseBody is the wire form of a create or update request.
type expenseBody struct {
	Amount      amountField `json:"amount"`
	Currency    string      `json:"currency"`
	Category    string      `json:"category"`
	Date        string      `json:"date"`
	Description string      `json:"description"`
}

// ExpenseInput is a decoded and validated create or update payload.
type ExpenseInput struct {
	Amount      decimal.Decimal
	Currency    string
	Category    string
	Date        core.Date
	Description string
}

// ParseExpenseBody decodes the JSON body of r into an ExpenseInput. Unknown
// fields, trailing data and oversized bodies are malformed; values that
// break an expense invariant are unprocessable.
func ParseExpenseBody(w http.ResponseWriter, r *http.Request) (ExpenseInput, *RequestError) {
	var body expenseBody
	if rerr := decodeJSON(w, r, &body); rerr != nil {
		return ExpenseInput{}, rerr
	}

	if !body.Amount.set {
		return ExpenseInput{}, unprocessable(core.ErrInvalidAmount)
	}
	raw := strings.TrimSpace(body.Amount.raw)
	if strings.HasPrefix(raw, "-") {
		return ExpenseInput{}, unprocessable(core.ErrNegativeAmount)
	}
	amount, err := core.ParseAmount(raw)
	if err != nil {
		return ExpenseInput{}, unprocessable(err)
	}

	if strings.TrimSpace(body.Date) == "" {
		return ExpenseInput{}, unprocessable(core.ErrMissingDate)
	}
	date, err := core.ParseDate(body.Date)
	if err != nil {
		return ExpenseInput{}, unprocessable(err)
	}

	details := core.ExpenseDetails{
		Amount:      core.Money{Amount: amount, Currency: body.Currency},
		Category:    sanitizeInput(body.Category),
		Date:        date,
		Description: sanitizeInput(body.Description),
	}
	details.Normalize()
	if err := details.Validate(); err != nil {
		return ExpenseInput{}, unprocessable(err)
	}

	return ExpenseInput{
		Amount:      details.Amount.Amount,
		Currency:    details.Amount.Currency,
		Category:    details.Category,
		Date:        details.Date,
		Description: details.Description,
	}, nil
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) *RequestError {
	if ct := r.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		return badRequest("content type must be application/json")
	}

	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		var (
			syntaxErr *json.SyntaxError
			typeErr   *json.UnmarshalTypeError
			maxErr    *http.MaxBytesError
		)
		switch {
		case errors.Is(err, io.EOF):
			return badRequest("request body is empty")
		case errors.As(err, &maxErr):
			return badRequest("request body too large")
		case errors.As(err, &syntaxErr):
			return badRequest("malformed JSON at offset %d", syntaxErr.Offset)
		case errors.As(err, &typeErr):
			return badRequest("invalid value for field %q", typeErr.Field)
		case strings.HasPrefix(err.Error(), "json: unknown field "):
			return badRequest("unknown field %s", strings.TrimPrefix(err.Error(), "json: unknown field "))
		default:
			return badRequest("malformed JSON")
		}
	}
	if dec.More() {
		return badRequest("request body must contain a single JSON object")
	}
	return nil
}

// ParsePathID parses the named path value as a UUID.
func ParsePathID(r *http.Request, name string) (uuid.UUID, *RequestError) {
	raw := r.PathValue(name)
	id, err := uuid.Parse(raw)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, badRequest("invalid %s", name)
	}
	return id, nil
}
