package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func performHealthCheck(t *testing.T, h *HealthHandler) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.GET("/healthz", h.Check)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	router.ServeHTTP(w, req)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return w, body
}

func okPinger(ctx context.Context) error { return nil }

func TestHealthCheckHealthy(t *testing.T) {
	h := NewHealthHandler(PingerFunc(okPinger), PingerFunc(okPinger), "redis", "fixed_window", zap.NewNop())

	w, body := performHealthCheck(t, h)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", body["status"])
	limiter := body["rate_limiter"].(map[string]any)
	assert.Equal(t, "redis", limiter["backend"])
	assert.Equal(t, "fixed_window", limiter["algorithm"])
	deps := body["dependencies"].(map[string]any)
	assert.Equal(t, "ok", deps["key_records"])
	assert.Equal(t, "ok", deps["rate_limit_store"])
}

func TestHealthCheckRecordStoreDown(t *testing.T) {
	down := PingerFunc(func(ctx context.Context) error { return errors.New("connection refused") })
	h := NewHealthHandler(down, PingerFunc(okPinger), "redis", "fixed_window", zap.NewNop())

	w, body := performHealthCheck(t, h)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "unhealthy", body["status"])
	deps := body["dependencies"].(map[string]any)
	assert.Equal(t, "error", deps["key_records"])
}

func TestHealthCheckInProcessCounters(t *testing.T) {
	h := NewHealthHandler(PingerFunc(okPinger), nil, "memory", "token_bucket", zap.NewNop())

	w, body := performHealthCheck(t, h)

	assert.Equal(t, http.StatusOK, w.Code)
	deps := body["dependencies"].(map[string]any)
	assert.Equal(t, "in-process", deps["rate_limit_store"])
}
