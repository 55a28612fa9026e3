package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"expensetracker/internal/auth"
	"expensetracker/internal/core"
	"expensetracker/internal/dispatch"
	"expensetracker/internal/expenses"
	"expensetracker/internal/log"
	"expensetracker/internal/middleware/ratelimit"
	"expensetracker/internal/middleware/trace"
	"expensetracker/internal/storage"
	"expensetracker/internal/storage/memory"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

const testPassword = "correct horse"

func quietLogger() *log.Logger {
	return log.New(log.Config{Output: io.Discard, Format: "json"})
}

type ServerSuite struct {
	suite.Suite

	store  *memory.Store
	server *Server
	alice  core.User
	bob    core.User
}

func TestServerSuite(t *testing.T) {
	suite.Run(t, new(ServerSuite))
}

func (s *ServerSuite) SetupTest() {
	s.store = memory.New()
	logger := quietLogger()

	authn := auth.NewAuthenticator(s.store, 16, time.Minute, logger)
	var err error
	s.alice, err = authn.Register(context.Background(), "alice", testPassword)
	s.Require().NoError(err)
	s.bob, err = authn.Register(context.Background(), "bob", testPassword)
	s.Require().NoError(err)

	d := dispatch.New(dispatch.Logging(logger))
	s.Require().NoError(expenses.Register(d, expenses.NewHandlers(s.store, s.store)))

	s.server = NewServer(Options{
		Addr:          ":0",
		Dispatcher:    d,
		Pinger:        s.store,
		Authenticator: authn,
		Logger:        logger,
	})
}

func (s *ServerSuite) do(method, path, body string, user core.User) *httptest.ResponseRecorder {
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if user.Username != "" {
		req.SetBasicAuth(user.Username, testPassword)
	}
	rec := httptest.NewRecorder()
	s.server.Handler.ServeHTTP(rec, req)
	return rec
}

func expensesPath(u core.User) string {
	return "/users/" + u.ID.String() + "/expenses"
}

func (s *ServerSuite) create(u core.User, body string) expenseResponse {
	rec := s.do(http.MethodPost, expensesPath(u), body, u)
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())
	var out expenseResponse
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func (s *ServerSuite) errorMessage(rec *httptest.ResponseRecorder) string {
	var body errorBody
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body.Error
}

func (s *ServerSuite) TestHealthAndReadiness() {
	rec := s.do(http.MethodGet, "/healthz", "", core.User{})
	s.Equal(http.StatusOK, rec.Code)
	s.JSONEq(`{"status":"ok"}`, rec.Body.String())

	rec = s.do(http.MethodGet, "/readyz", "", core.User{})
	s.Equal(http.StatusOK, rec.Code)
	s.JSONEq(`{"status":"ready"}`, rec.Body.String())
}

func (s *ServerSuite) TestCreateThenGet() {
	created := s.create(s.alice, `{"amount":"82.45","currency":"cad","category":" Food ","date":"2024-03-05","description":"groceries"}`)

	s.Equal("82.45", created.Amount)
	s.Equal("CAD", created.Currency)
	s.Equal("Food", created.Category)
	s.Equal("2024-03-05", created.Date)
	s.Equal(s.alice.ID.String(), created.OwnerID)
	s.True(created.CreatedAt.Equal(created.UpdatedAt))

	rec := s.do(http.MethodGet, expensesPath(s.alice)+"/"+created.ID, "", s.alice)
	s.Require().Equal(http.StatusOK, rec.Code)
	var got expenseResponse
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &got))
	s.Equal(created.ID, got.ID)
	s.Equal(created.Amount, got.Amount)
	s.Equal("groceries", got.Description)
}

func (s *ServerSuite) TestCreateSetsLocation() {
	rec := s.do(http.MethodPost, expensesPath(s.alice), `{"amount":12.5,"currency":"EUR","category":"Books","date":"2024-01-31"}`, s.alice)
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())

	var out expenseResponse
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &out))
	s.Equal("12.50", out.Amount)
	s.Equal(expensesPath(s.alice)+"/"+out.ID, rec.Header().Get("Location"))
	s.Equal("application/json", rec.Header().Get("Content-Type"))
}

func (s *ServerSuite) TestCreateRejectsInvalidBody() {
	tests := []struct {
		name    string
		body    string
		status  int
		message string
	}{
		{"malformed json", `{"amount":`, http.StatusBadRequest, ""},
		{"empty body", ``, http.StatusBadRequest, "request body is empty"},
		{"unknown field", `{"amount":"1","currency":"EUR","category":"x","date":"2024-01-01","tip":"2"}`, http.StatusBadRequest, `unknown field "tip"`},
		{"trailing data", `{"amount":"1","currency":"EUR","category":"x","date":"2024-01-01"} {}`, http.StatusBadRequest, ""},
		{"wrong type", `{"amount":"1","currency":7,"category":"x","date":"2024-01-01"}`, http.StatusBadRequest, ""},
		{"negative amount", `{"amount":"-5","currency":"EUR","category":"x","date":"2024-01-01"}`, http.StatusUnprocessableEntity, core.ErrNegativeAmount.Error()},
		{"negative number amount", `{"amount":-5,"currency":"EUR","category":"x","date":"2024-01-01"}`, http.StatusUnprocessableEntity, core.ErrNegativeAmount.Error()},
		{"missing amount", `{"currency":"EUR","category":"x","date":"2024-01-01"}`, http.StatusUnprocessableEntity, core.ErrInvalidAmount.Error()},
		{"bad amount", `{"amount":"1e3","currency":"EUR","category":"x","date":"2024-01-01"}`, http.StatusUnprocessableEntity, core.ErrInvalidAmount.Error()},
		{"empty currency", `{"amount":"1","currency":" ","category":"x","date":"2024-01-01"}`, http.StatusUnprocessableEntity, core.ErrEmptyCurrency.Error()},
		{"unknown currency", `{"amount":"1","currency":"XYZ","category":"x","date":"2024-01-01"}`, http.StatusUnprocessableEntity, core.ErrUnknownCurrency.Error()},
		{"empty category", `{"amount":"1","currency":"EUR","category":"  ","date":"2024-01-01"}`, http.StatusUnprocessableEntity, core.ErrEmptyCategory.Error()},
		{"missing date", `{"amount":"1","currency":"EUR","category":"x"}`, http.StatusUnprocessableEntity, core.ErrMissingDate.Error()},
		{"bad date", `{"amount":"1","currency":"EUR","category":"x","date":"31/01/2024"}`, http.StatusUnprocessableEntity, core.ErrInvalidDate.Error()},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			req := httptest.NewRequest(http.MethodPost, expensesPath(s.alice), strings.NewReader(tt.body))
			req.SetBasicAuth(s.alice.Username, testPassword)
			rec := httptest.NewRecorder()
			s.server.Handler.ServeHTTP(rec, req)

			s.Equal(tt.status, rec.Code, rec.Body.String())
			if tt.message != "" {
				s.Equal(tt.message, s.errorMessage(rec))
			}
		})
	}

	rec := s.do(http.MethodGet, expensesPath(s.alice), "", s.alice)
	s.JSONEq(`[]`, rec.Body.String())
}

func (s *ServerSuite) TestRejectsWrongContentType() {
	req := httptest.NewRequest(http.MethodPost, expensesPath(s.alice), strings.NewReader(`amount=1`))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(s.alice.Username, testPassword)
	rec := httptest.NewRecorder()
	s.server.Handler.ServeHTTP(rec, req)
	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *ServerSuite) TestAuthentication() {
	rec := s.do(http.MethodGet, expensesPath(s.alice), "", core.User{})
	s.Equal(http.StatusUnauthorized, rec.Code)
	s.Contains(rec.Header().Get("WWW-Authenticate"), "Basic")

	req := httptest.NewRequest(http.MethodGet, expensesPath(s.alice), nil)
	req.SetBasicAuth("alice", "wrong password")
	rec = httptest.NewRecorder()
	s.server.Handler.ServeHTTP(rec, req)
	s.Equal(http.StatusUnauthorized, rec.Code)
}

func (s *ServerSuite) TestOtherUsersPathIsForbidden() {
	rec := s.do(http.MethodGet, expensesPath(s.bob), "", s.alice)
	s.Equal(http.StatusForbidden, rec.Code)

	rec = s.do(http.MethodPost, expensesPath(s.bob), `{"amount":"1","currency":"EUR","category":"x","date":"2024-01-01"}`, s.alice)
	s.Equal(http.StatusForbidden, rec.Code)
}

func (s *ServerSuite) TestMalformedIDs() {
	rec := s.do(http.MethodGet, "/users/not-a-uuid/expenses", "", s.alice)
	s.Equal(http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodGet, expensesPath(s.alice)+"/not-a-uuid", "", s.alice)
	s.Equal(http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodDelete, expensesPath(s.alice)+"/00000000-0000-0000-0000-000000000000", "", s.alice)
	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *ServerSuite) TestOtherOwnersExpenseIsNotFound() {
	bobs := s.create(s.bob, `{"amount":"10","currency":"USD","category":"Taxi","date":"2024-02-01"}`)
	path := expensesPath(s.alice) + "/" + bobs.ID

	for _, method := range []string{http.MethodGet, http.MethodDelete} {
		rec := s.do(method, path, "", s.alice)
		s.Equal(http.StatusNotFound, rec.Code, method)
		s.Equal(expenses.NotFoundMessage, s.errorMessage(rec))
	}

	rec := s.do(http.MethodPut, path, `{"amount":"1","currency":"USD","category":"x","date":"2024-02-01"}`, s.alice)
	s.Equal(http.StatusNotFound, rec.Code)

	rec = s.do(http.MethodGet, expensesPath(s.bob)+"/"+bobs.ID, "", s.bob)
	s.Require().Equal(http.StatusOK, rec.Code)
	var got expenseResponse
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &got))
	s.Equal("10.00", got.Amount)
}

func (s *ServerSuite) TestUpdate() {
	created := s.create(s.alice, `{"amount":"82.45","currency":"CAD","category":"Food","date":"2024-03-05"}`)
	path := expensesPath(s.alice) + "/" + created.ID

	rec := s.do(http.MethodPut, path, `{"amount":"90","currency":"CAD","category":"Dining","date":"2024-03-06","description":"dinner"}`, s.alice)
	s.Require().Equal(http.StatusNoContent, rec.Code, rec.Body.String())
	s.Empty(rec.Body.Bytes())

	rec = s.do(http.MethodGet, path, "", s.alice)
	var got expenseResponse
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &got))
	s.Equal("90.00", got.Amount)
	s.Equal("Dining", got.Category)
	s.Equal("2024-03-06", got.Date)
	s.Equal("dinner", got.Description)
	s.True(got.CreatedAt.Equal(created.CreatedAt))
	s.True(got.UpdatedAt.After(created.UpdatedAt))

	rec = s.do(http.MethodPut, path, `{"amount":"-1","currency":"CAD","category":"Dining","date":"2024-03-06"}`, s.alice)
	s.Equal(http.StatusUnprocessableEntity, rec.Code)
}

func (s *ServerSuite) TestDeleteTwice() {
	created := s.create(s.alice, `{"amount":"5","currency":"EUR","category":"Coffee","date":"2024-04-01"}`)
	path := expensesPath(s.alice) + "/" + created.ID

	rec := s.do(http.MethodDelete, path, "", s.alice)
	s.Equal(http.StatusNoContent, rec.Code)

	rec = s.do(http.MethodDelete, path, "", s.alice)
	s.Equal(http.StatusNotFound, rec.Code)

	rec = s.do(http.MethodGet, path, "", s.alice)
	s.Equal(http.StatusNotFound, rec.Code)
}

func (s *ServerSuite) TestListOrderAndScope() {
	s.create(s.alice, `{"amount":"1","currency":"EUR","category":"a","date":"2024-01-01"}`)
	s.create(s.alice, `{"amount":"2","currency":"EUR","category":"b","date":"2024-03-01"}`)
	s.create(s.bob, `{"amount":"3","currency":"EUR","category":"c","date":"2024-02-01"}`)

	rec := s.do(http.MethodGet, expensesPath(s.alice), "", s.alice)
	s.Require().Equal(http.StatusOK, rec.Code)
	var list []expenseResponse
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &list))
	s.Require().Len(list, 2)
	s.Equal("2024-03-01", list[0].Date)
	s.Equal("2024-01-01", list[1].Date)
}

func (s *ServerSuite) TestCorrelationIDAndSecurityHeaders() {
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(trace.HeaderCorrelationID, "req-42")
	rec := httptest.NewRecorder()
	s.server.Handler.ServeHTTP(rec, req)

	s.Equal("req-42", rec.Header().Get(trace.HeaderCorrelationID))
	s.Equal("nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func (s *ServerSuite) TestShutdownIsIdempotent() {
	ctx := context.Background()
	s.NoError(s.server.Shutdown(ctx))
	s.NoError(s.server.Shutdown(ctx))
}

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return errors.New("connection refused") }

type failingUsers struct {
	storage.UserStore
}

func (failingUsers) UserByUsername(context.Context, string) (core.User, bool, error) {
	return core.User{}, false, errors.New("database is locked")
}

func newBareServer(t *testing.T, opts Options) *Server {
	t.Helper()
	if opts.Logger == nil {
		opts.Logger = quietLogger()
	}
	if opts.Dispatcher == nil {
		opts.Dispatcher = dispatch.New()
	}
	if opts.Authenticator == nil {
		opts.Authenticator = auth.NewAuthenticator(memory.New(), 4, time.Minute, opts.Logger)
	}
	return NewServer(opts)
}

func TestReadinessFailure(t *testing.T) {
	srv := newBareServer(t, Options{Pinger: failingPinger{}})

	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"error":"not ready"}`, rec.Body.String())
}

func TestAuthStorageFailureIsInternalError(t *testing.T) {
	logger := quietLogger()
	authn := auth.NewAuthenticator(failingUsers{UserStore: memory.New()}, 4, time.Minute, logger)
	srv := newBareServer(t, Options{Authenticator: authn, Logger: logger})

	req := httptest.NewRequest(http.MethodGet, "/users/"+uuid.NewString()+"/expenses", nil)
	req.SetBasicAuth("alice", testPassword)
	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"internal error"}`, rec.Body.String())
}

func TestInfrastructureErrorIsOpaque(t *testing.T) {
	var logs bytes.Buffer
	logger := log.New(log.Config{Output: &logs, Format: "json"})
	store := memory.New()
	authn := auth.NewAuthenticator(store, 4, time.Minute, logger)
	u, err := authn.Register(context.Background(), "alice", testPassword)
	require.NoError(t, err)

	// No handlers registered: every dispatch fails with ErrNoHandler.
	srv := newBareServer(t, Options{Authenticator: authn, Logger: logger, Pinger: store})

	req := httptest.NewRequest(http.MethodGet, "/users/"+u.ID.String()+"/expenses", nil)
	req.SetBasicAuth("alice", testPassword)
	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"internal error"}`, rec.Body.String())
	assert.Contains(t, logs.String(), dispatch.ErrNoHandler.Error())
}

func TestRateLimitResponse(t *testing.T) {
	var logs bytes.Buffer
	limiter := ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: 1, CleanupInterval: time.Minute})
	srv := newBareServer(t, Options{Limiter: limiter, Logger: log.New(log.Config{Output: &logs, Format: "json"})})

	first := httptest.NewRecorder()
	srv.Handler.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, first.Code)

	second := httptest.NewRecorder()
	srv.Handler.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.NotEmpty(t, second.Header().Get("Retry-After"))
	assert.JSONEq(t, `{"error":"rate limit exceeded"}`, second.Body.String())
	assert.Contains(t, logs.String(), `"component":"rate_limit"`)
	assert.Contains(t, logs.String(), "Rate limit exceeded")
}
