package main

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"expensetracker/internal/backend"
	"expensetracker/internal/config"
	"expensetracker/internal/log"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const bootstrapPassword = "correct horse battery"

func discardLogger() *log.Logger {
	return log.New(log.Config{Output: io.Discard, Format: "json"})
}

// defaultConfig loads the configuration an unconfigured deployment gets,
// plus the given overrides.
func defaultConfig(t *testing.T, env map[string]string) *config.Config {
	t.Helper()
	for _, key := range []string{
		"PORT", "DATA_BACKEND", "SQLITE_DB_PATH", "DATABASE_URL", "AMQP_URL",
		"TRUSTED_PROXIES", "BOOTSTRAP_USERNAME", "BOOTSTRAP_PASSWORD",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
	for k, v := range env {
		t.Setenv(k, v)
	}
	cfg := config.Load()
	require.NoError(t, cfg.Validate())
	return cfg
}

func listExpenses(t *testing.T, a *app, ownerID, username, password string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/users/"+ownerID+"/expenses", nil)
	req.SetBasicAuth(username, password)
	rec := httptest.NewRecorder()
	a.server.Handler.ServeHTTP(rec, req)
	return rec
}

func TestDefaultConfigServesBootstrapUser(t *testing.T) {
	ctx := context.Background()
	logger := discardLogger()
	cfg := defaultConfig(t, map[string]string{
		"BOOTSTRAP_USERNAME": "admin",
		"BOOTSTRAP_PASSWORD": bootstrapPassword,
	})
	require.Equal(t, config.BackendMemory, cfg.DataBackend)

	a, err := newApp(ctx, cfg, logger)
	require.NoError(t, err)
	defer a.close(ctx, logger)

	u, found, err := a.backend.Store.UserByUsername(ctx, "admin")
	require.NoError(t, err)
	require.True(t, found)

	rec := listExpenses(t, a, u.ID.String(), "admin", bootstrapPassword)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = listExpenses(t, a, u.ID.String(), "admin", "wrong password")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestBootstrapUserIsIdempotent(t *testing.T) {
	ctx := context.Background()
	logger := discardLogger()
	cfg := defaultConfig(t, map[string]string{
		"BOOTSTRAP_USERNAME": "admin",
		"BOOTSTRAP_PASSWORD": bootstrapPassword,
	})

	bc, err := backend.FromAppConfig(cfg)
	require.NoError(t, err)
	be, err := backend.NewFactory(logger).CreateBackend(ctx, bc)
	require.NoError(t, err)
	defer be.Cleanup()

	first, err := wire(ctx, cfg, logger, be)
	require.NoError(t, err)
	u, _, err := be.Store.UserByUsername(ctx, "admin")
	require.NoError(t, err)

	// A restart against the same store keeps the original account.
	second, err := wire(ctx, cfg, logger, be)
	require.NoError(t, err)
	again, _, err := be.Store.UserByUsername(ctx, "admin")
	require.NoError(t, err)
	assert.Equal(t, u.ID, again.ID)

	for _, a := range []*app{first, second} {
		rec := listExpenses(t, a, u.ID.String(), "admin", bootstrapPassword)
		assert.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestBootstrapUserRejectsWeakPassword(t *testing.T) {
	cfg := defaultConfig(t, map[string]string{
		"BOOTSTRAP_USERNAME": "admin",
		"BOOTSTRAP_PASSWORD": "short",
	})

	_, err := newApp(context.Background(), cfg, discardLogger())
	assert.ErrorContains(t, err, "register bootstrap user")
}

func TestTrustedProxiesAreApplied(t *testing.T) {
	ctx := context.Background()
	logger := discardLogger()
	cfg := defaultConfig(t, map[string]string{"TRUSTED_PROXIES": "203.0.113.0/24"})

	a, err := newApp(ctx, cfg, logger)
	require.NoError(t, err)
	defer a.close(ctx, logger)

	// The default limit is per client; a forwarded address gets its own bucket.
	for i := 0; i < cfg.RateLimitPerMinute; i++ {
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		req.RemoteAddr = "203.0.113.5:443"
		req.Header.Set("X-Forwarded-For", "198.51.100.1")
		rec := httptest.NewRecorder()
		a.server.Handler.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.RemoteAddr = "203.0.113.5:443"
	req.Header.Set("X-Forwarded-For", "198.51.100.2")
	rec := httptest.NewRecorder()
	a.server.Handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, a.limiter.ActiveClients())
}
