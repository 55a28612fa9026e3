package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"expensetracker/internal/auth"
	"expensetracker/internal/backend"
	"expensetracker/internal/cache"
	"expensetracker/internal/cli"
	"expensetracker/internal/config"
	"expensetracker/internal/dispatch"
	"expensetracker/internal/expenses"
	apphttp "expensetracker/internal/http"
	"expensetracker/internal/log"
	"expensetracker/internal/middleware/ratelimit"
	"expensetracker/internal/middleware/security"
	"expensetracker/internal/storage"

	"golang.org/x/sync/errgroup"
)

const cacheSweepInterval = time.Minute

func main() {
	cfg, logger := cli.MustSetup(log.ComponentApp, os.Stdout)

	ctx, stop := cli.SignalContext()
	err := run(ctx, cfg, logger)
	stop()
	if err != nil {
		logger.ErrorContext(context.Background(), "Server error", log.FieldError, err.Error())
		os.Exit(1)
	}
	logger.InfoContext(context.Background(), "Server stopped gracefully")
}

// app holds the wired API process before it starts serving.
type app struct {
	backend *backend.BackendResult
	server  *apphttp.Server
	limiter *ratelimit.Limiter
	caches  *cache.Manager
}

func newApp(ctx context.Context, cfg *config.Config, logger *log.Logger) (*app, error) {
	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, err
	}
	be, err := backend.NewFactory(logger).CreateBackend(ctx, backendCfg)
	if err != nil {
		return nil, fmt.Errorf("create %s backend: %w", backendCfg.Type, err)
	}
	logger.InfoContext(ctx, "Initialized backend", "backend", backendCfg.Type.String())

	a, err := wire(ctx, cfg, logger, be)
	if err != nil {
		if cerr := be.Cleanup(); cerr != nil {
			logger.WarnContext(ctx, "Backend cleanup failed", log.FieldError, cerr.Error())
		}
		return nil, err
	}
	return a, nil
}

func wire(ctx context.Context, cfg *config.Config, logger *log.Logger, be *backend.BackendResult) (*app, error) {
	authn := auth.NewAuthenticator(be.Store, cfg.UserCacheSize, cfg.UserCacheTTL, logger)
	if err := registerBootstrapUser(ctx, cfg, authn, logger); err != nil {
		return nil, err
	}
	caches := cache.NewManager(logger)
	caches.Register(authn.Cache())

	d := dispatch.New(dispatch.Logging(logger))
	if err := expenses.Register(d, expenses.NewHandlers(be.Store, be.UnitOfWork)); err != nil {
		return nil, fmt.Errorf("register handlers: %w", err)
	}

	detector := security.NewDetector(logger)
	for _, cidr := range cfg.TrustedProxies {
		if err := detector.AddTrustedProxy(cidr); err != nil {
			return nil, err
		}
	}

	limiter := ratelimit.NewLimiter(ratelimit.Config{
		RequestsPerMinute: cfg.RateLimitPerMinute,
		CleanupInterval:   5 * time.Minute,
	})

	srv := apphttp.NewServer(apphttp.Options{
		Addr:          net.JoinHostPort("", cfg.Port),
		Dispatcher:    d,
		Pinger:        be.Store,
		Authenticator: authn,
		Limiter:       limiter,
		Detector:      detector,
		Logger:        logger,
	})

	return &app{backend: be, server: srv, limiter: limiter, caches: caches}, nil
}

// registerBootstrapUser creates the configured startup account. An account
// that already exists is left untouched.
func registerBootstrapUser(ctx context.Context, cfg *config.Config, authn *auth.Authenticator, logger *log.Logger) error {
	if !cfg.HasBootstrapUser() {
		return nil
	}
	u, err := authn.Register(ctx, cfg.BootstrapUsername, cfg.BootstrapPassword)
	switch {
	case errors.Is(err, storage.ErrDuplicate):
		logger.InfoContext(ctx, "Bootstrap user already exists", log.FieldUsername, cfg.BootstrapUsername)
		return nil
	case err != nil:
		return fmt.Errorf("register bootstrap user: %w", err)
	}
	logger.InfoContext(ctx, "Registered bootstrap user",
		log.FieldUsername, u.Username,
		log.FieldOwnerID, u.ID.String(),
		log.FieldOperation, log.OpStartup)
	return nil
}

func (a *app) close(ctx context.Context, logger *log.Logger) {
	if err := a.backend.Cleanup(); err != nil {
		logger.WarnContext(ctx, "Backend cleanup failed", log.FieldError, err.Error())
	}
}

func run(ctx context.Context, cfg *config.Config, logger *log.Logger) error {
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close(ctx, logger)

	srv := a.server
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.InfoContext(gctx, "Starting expense API", "port", cfg.Port, "backend", cfg.DataBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen on %s: %w", srv.Addr, err)
		}
		return nil
	})

	g.Go(func() error {
		a.limiter.Run(gctx)
		return nil
	})

	a.caches.Start(gctx, cacheSweepInterval)

	g.Go(func() error {
		<-gctx.Done()
		logger.InfoContext(gctx, "Shutdown signal received", log.FieldOperation, log.OpShutdown)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	})

	err = g.Wait()
	a.caches.Wait()
	return err
}
