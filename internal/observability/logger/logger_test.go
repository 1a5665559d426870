package logger

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/trailpay/internal/observability/context"
	"github.com/smallbiznis/trailpay/pkg/telemetry/correlation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestWithContextAddsRequestScopedFields(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	base := zap.New(core)

	ctx := obscontext.WithRequestID(context.Background(), "req-42")
	ctx = obscontext.WithActor(ctx, "guide-7", "guide")
	ctx = correlation.ContextWithCorrelationID(ctx, "01HZX")

	WithContext(ctx, base).Info("hello")

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "req-42", fields["request_id"])
	assert.Equal(t, "guide", fields["actor_role"])
	assert.Equal(t, "guide-7", fields["actor_id"])
	assert.Equal(t, "01HZX", fields["correlation_id"])
}

func TestDescribeSQL(t *testing.T) {
	cases := []struct {
		sql       string
		operation string
		table     string
	}{
		{`SELECT id FROM payment_events WHERE provider_event_id = ?`, "SELECT", "payment_events"},
		{`INSERT INTO transfers (id) VALUES (?)`, "INSERT", "transfers"},
		{`UPDATE bookings SET status = ? WHERE id = ?`, "UPDATE", "bookings"},
		{``, "UNKNOWN", ""},
	}
	for _, tc := range cases {
		operation, table := describeSQL(tc.sql)
		assert.Equal(t, tc.operation, operation, tc.sql)
		assert.Equal(t, tc.table, table, tc.sql)
	}
}

func TestGinMiddlewarePropagatesIdentifiers(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zapcore.DebugLevel)
	zap.ReplaceGlobals(zap.New(core))
	t.Cleanup(func() { zap.ReplaceGlobals(zap.NewNop()) })

	router := gin.New()
	router.Use(GinMiddleware(MiddlewareConfig{}))
	router.GET("/ping", func(c *gin.Context) {
		assert.Equal(t, "req-1", obscontext.RequestIDFromContext(c.Request.Context()))
		assert.Equal(t, "corr-1", correlation.ExtractCorrelationID(c.Request.Context()))
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("X-Request-Id", "req-1")
	req.Header.Set("X-Correlation-Id", "corr-1")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "req-1", rec.Header().Get("X-Request-Id"))
	assert.Equal(t, "corr-1", rec.Header().Get("X-Correlation-Id"))
	assert.Equal(t, 1, logs.FilterMessage("http_request").Len())
}

func TestWithContextOmitsMissingIdentifiers(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)

	WithBooking(WithContext(context.Background(), zap.New(core)), " bk-1 ").Info("refund requested")

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, map[string]interface{}{"booking_id": "bk-1"}, fields)
}

func TestRequestLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, requestLevel("/health", http.StatusOK, ""))
	assert.Equal(t, zapcore.ErrorLevel, requestLevel("/api/refunds", http.StatusInternalServerError, "internal_error"))
	assert.Equal(t, zapcore.WarnLevel, requestLevel("/webhooks/stripe", http.StatusBadRequest, "validation_error"))
	assert.Equal(t, zapcore.WarnLevel, requestLevel("/api/refunds", http.StatusForbidden, "authorization_error"))
	assert.Equal(t, zapcore.InfoLevel, requestLevel("/api/refunds", http.StatusBadRequest, "validation_error"))
}
