package middleware

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Proton-105/frostbank/internal/bot/handlers"
	apperrors "github.com/Proton-105/frostbank/internal/errors"
	"github.com/Proton-105/frostbank/internal/idempotency"
	"github.com/Proton-105/frostbank/internal/permission"
	"github.com/Proton-105/frostbank/internal/ratelimit"
	"github.com/Proton-105/frostbank/pkg/config"
	"github.com/Proton-105/frostbank/pkg/logger"
)

type nopResponder struct{}

func (nopResponder) Send(context.Context, handlers.Reply) error { return nil }
func (nopResponder) MentionUser(int64) string                  { return "" }
func (nopResponder) MentionRole(int64) (string, bool)          { return "", false }
func (nopResponder) MentionChannel(int64) (string, bool)       { return "", false }

func counting(calls *int) handlers.Handler {
	return func(context.Context, *handlers.Request, handlers.Responder) error {
		*calls++
		return nil
	}
}

func request(command string, userID int64) *handlers.Request {
	return &handlers.Request{
		Command:       command,
		Platform:      "discord",
		InteractionID: "1",
		Caller:        permission.Caller{UserID: userID},
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	rules := ratelimit.NewRules(config.RateLimitConfig{
		PerUser: config.RateLimitRule{Limit: 3, Window: "1m"},
		Commands: config.RateLimitCommands{
			Transfer: config.RateLimitRule{Limit: 1, Window: "1m"},
		},
		Whitelist: []int64{7},
	})
	mw := NewRateLimitMiddleware(ratelimit.NewMemoryLimiter(testLogger()), rules, testLogger())

	calls := 0
	handler := mw.Handle(counting(&calls))
	ctx := context.Background()

	require.NoError(t, handler(ctx, request("transfer", 100), nopResponder{}))

	err := handler(ctx, request("transfer", 100), nopResponder{})
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.CodeRateLimit, appErr.Code)
	assert.Greater(t, appErr.Params["Seconds"], 0)

	require.NoError(t, handler(ctx, request("balance", 100), nopResponder{}))
	assert.Error(t, handler(ctx, request("balance", 100), nopResponder{}), "per-user limit reached")

	for i := 0; i < 5; i++ {
		require.NoError(t, handler(ctx, request("transfer", 7), nopResponder{}))
	}

	assert.Equal(t, 7, calls)
}

func TestRateLimitMiddleware_NoLimiter(t *testing.T) {
	calls := 0
	handler := NewRateLimitMiddleware(nil, nil, testLogger()).Handle(counting(&calls))

	require.NoError(t, handler(context.Background(), request("transfer", 1), nopResponder{}))
	assert.Equal(t, 1, calls)
}

func TestIdempotency_DropsDuplicates(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	manager := idempotency.NewManager(idempotency.NewRedisStore(client, testLogger()), testLogger())

	calls := 0
	handler := Idempotency(manager, time.Hour, testLogger())(counting(&calls))
	ctx := context.Background()

	require.NoError(t, handler(ctx, request("grant", 1), nopResponder{}))
	require.NoError(t, handler(ctx, request("grant", 1), nopResponder{}))

	other := request("grant", 1)
	other.InteractionID = "2"
	require.NoError(t, handler(ctx, other, nopResponder{}))

	anonymous := request("grant", 1)
	anonymous.InteractionID = ""
	require.NoError(t, handler(ctx, anonymous, nopResponder{}))
	require.NoError(t, handler(ctx, anonymous, nopResponder{}))

	assert.Equal(t, 4, calls)
}

func TestIdempotency_NilManagerPassesThrough(t *testing.T) {
	calls := 0
	handler := Idempotency(nil, time.Hour, testLogger())(counting(&calls))

	require.NoError(t, handler(context.Background(), request("grant", 1), nopResponder{}))
	require.NoError(t, handler(context.Background(), request("grant", 1), nopResponder{}))
	assert.Equal(t, 2, calls)
}

func TestMetricsPassesErrorThrough(t *testing.T) {
	handler := Metrics(func(context.Context, *handlers.Request, handlers.Responder) error {
		return assert.AnError
	})

	assert.ErrorIs(t, handler(context.Background(), request("balance", 1), nopResponder{}), assert.AnError)
}

func TestHTTPLogging(t *testing.T) {
	handler := logger.Middleware(New(testLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short and stout"))
	})))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, "short and stout", rec.Body.String())
	assert.Equal(t, "text/plain", rec.Header().Get("Content-Type"))
	assert.NotEmpty(t, rec.Header().Get(logger.CorrelationIDHeader))
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
