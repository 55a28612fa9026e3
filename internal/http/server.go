package http

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"expensetracker/internal/auth"
	"expensetracker/internal/dispatch"
	"expensetracker/internal/log"
	"expensetracker/internal/middleware/ratelimit"
	"expensetracker/internal/middleware/security"
	"expensetracker/internal/middleware/trace"
	"expensetracker/internal/storage"
)

const readyTimeout = 2 * time.Second

// Server is the JSON API server. Expense routes require HTTP Basic
// credentials; /healthz and /readyz do not.
type Server struct {
	http.Server

	dispatcher *dispatch.Dispatcher
	pinger     storage.Pinger
	logger     *log.Logger
	errLog     *log.StructuredLogger

	shutdownOnce sync.Once
}

// Options wires the server to its collaborators. Limiter and Detector are
// optional.
type Options struct {
	Addr          string
	Dispatcher    *dispatch.Dispatcher
	Pinger        storage.Pinger
	Authenticator *auth.Authenticator
	Limiter       *ratelimit.Limiter
	Detector      *security.Detector
	Logger        *log.Logger
}

// NewServer builds the server and its middleware chain:
// trace, security headers, suspicious-request detection, rate limiting,
// request logger, then authentication for the expense routes.
func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	logger = logger.WithComponent(log.ComponentHTTP)

	detector := opts.Detector
	if detector == nil {
		detector = security.NewDetector(logger)
	}

	s := &Server{
		dispatcher: opts.Dispatcher,
		pinger:     opts.Pinger,
		logger:     logger,
		errLog:     log.NewStructuredLogger(logger),
	}

	api := http.NewServeMux()
	api.HandleFunc("GET /users/{userId}/expenses", s.handleListExpenses)
	api.HandleFunc("POST /users/{userId}/expenses", s.handleCreateExpense)
	api.HandleFunc("GET /users/{userId}/expenses/{expenseId}", s.handleGetExpense)
	api.HandleFunc("PUT /users/{userId}/expenses/{expenseId}", s.handleUpdateExpense)
	api.HandleFunc("DELETE /users/{userId}/expenses/{expenseId}", s.handleDeleteExpense)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.Handle("/users/", opts.Authenticator.Middleware(s.authFailed)(api))

	var handler http.Handler = log.Middleware(logger)(mux)
	if opts.Limiter != nil {
		limitLog := logger.WithComponent(log.ComponentRateLimit)
		handler = opts.Limiter.Middleware(detector.ExtractClientIP, func(w http.ResponseWriter, r *http.Request) {
			limitLog.WarnContext(r.Context(), "Rate limit exceeded",
				log.FieldClientIP, detector.ExtractClientIP(r),
				log.FieldPath, r.URL.Path)
			TooManyRequestsError().Write(w)
		})(handler)
	}
	handler = detector.Middleware(handler)
	handler = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(handler)
	handler = trace.NewMiddleware(logger, detector.ExtractClientIP).Middleware(handler)

	s.Server = http.Server{
		Addr:              opts.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Shutdown gracefully shuts down the server. Later calls are no-ops.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Body(map[string]string{"status": "ok"}).Write(w)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.pinger != nil {
		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()
		if err := s.pinger.Ping(ctx); err != nil {
			s.logger.WarnContext(r.Context(), "Readiness check failed", log.FieldError, err.Error())
			ServiceUnavailableError("not ready").Write(w)
			return
		}
	}
	NewJSONResponse().Body(map[string]string{"status": "ready"}).Write(w)
}

func (s *Server) authFailed(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, auth.ErrMissingCredentials) || errors.Is(err, auth.ErrInvalidCredentials) {
		UnauthorizedError("authentication required").Write(w)
		return
	}
	s.internalError(w, r, log.OpRead, err)
}

// internalError logs the cause and answers with an opaque 500.
func (s *Server) internalError(w http.ResponseWriter, r *http.Request, op string, err error) {
	s.errLog.LogError(r.Context(), "Request failed", err, log.ComponentHTTP, op,
		log.NewFields().WithHTTPRequest(r.Method, r.URL.Path))
	InternalServerError().Write(w)
}
