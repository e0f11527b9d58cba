package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nbalawat/api-dev-portal-sub001/internal/auth"
	"github.com/nbalawat/api-dev-portal-sub001/internal/domain/apikey"
	"github.com/nbalawat/api-dev-portal-sub001/internal/keymaterial"
	"github.com/nbalawat/api-dev-portal-sub001/internal/metrics"
	"github.com/nbalawat/api-dev-portal-sub001/internal/permission"
	"github.com/nbalawat/api-dev-portal-sub001/internal/ratelimit"
	"github.com/nbalawat/api-dev-portal-sub001/internal/storage/memstorage"
)

type admissionFixture struct {
	router   *gin.Engine
	repo     *memstorage.APIKeyRepository
	recorder *memstorage.ActivityRecorder
	keys     *keymaterial.Manager
	gate     *auth.Gate
	limits   *ratelimit.Manager
}

func newAdmissionFixture(t *testing.T, cfg ratelimit.ManagerConfig) *admissionFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	keys, err := keymaterial.NewManager("test-hmac-secret")
	require.NoError(t, err)

	repo := memstorage.NewAPIKeyRepository()
	recorder := memstorage.NewActivityRecorder()
	gate := auth.NewGate(repo, keys, recorder, zap.NewNop())

	algo, err := ratelimit.NewAlgorithm(ratelimit.AlgorithmFixedWindow, ratelimit.NewMemoryBackend())
	require.NoError(t, err)
	limits := ratelimit.NewManager(algo, cfg, zap.NewNop())

	router := gin.New()
	protected := router.Group("/api/v1/portal")
	protected.Use(AdmissionMiddleware(gate, limits, nil, zap.NewNop()))
	protected.GET("/data", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"key_id": GetAPIKey(c).KeyID})
	})
	protected.GET("/export",
		RequirePermission(permission.ResourceAnalytics, permission.PermissionExport, recorder, nil, zap.NewNop()),
		func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"ok": true})
		})

	return &admissionFixture{router: router, repo: repo, recorder: recorder, keys: keys, gate: gate, limits: limits}
}

func (f *admissionFixture) seedKey(t *testing.T, mutate func(*apikey.APIKey)) (*apikey.APIKey, string) {
	t.Helper()

	keyID, secret, digest, err := f.keys.GenerateKeyPair()
	require.NoError(t, err)

	record := &apikey.APIKey{
		KeyID:      keyID,
		SecretHash: digest,
		Name:       "test key",
		Status:     apikey.StatusActive,
		Scopes:     []string{"read"},
	}
	if mutate != nil {
		mutate(record)
	}
	_, err = f.repo.Create(context.Background(), record)
	require.NoError(t, err)
	return record, keyID + "." + secret
}

func (f *admissionFixture) get(path, credential string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if credential != "" {
		req.Header.Set("X-API-Key", credential)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestAdmissionMissingKey(t *testing.T) {
	f := newAdmissionFixture(t, ratelimit.ManagerConfig{})

	w := f.get("/api/v1/portal/data", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAdmissionInvalidKey(t *testing.T) {
	f := newAdmissionFixture(t, ratelimit.ManagerConfig{})
	f.seedKey(t, nil)

	w := f.get("/api/v1/portal/data", "ak_aaaaaaaaaaaaaaaaaaaaaaaa.sk_aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "UNAUTHENTICATED", body["code"])
}

func TestAdmissionRevokedKey(t *testing.T) {
	f := newAdmissionFixture(t, ratelimit.ManagerConfig{})
	_, credential := f.seedKey(t, func(k *apikey.APIKey) {
		k.Status = apikey.StatusRevoked
	})

	w := f.get("/api/v1/portal/data", credential)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestAdmissionRateLimitCountdown(t *testing.T) {
	f := newAdmissionFixture(t, ratelimit.ManagerConfig{})
	limit := int64(3)
	_, credential := f.seedKey(t, func(k *apikey.APIKey) {
		k.RateLimit = &limit
		k.RateLimitPeriod = apikey.PeriodMinute
	})

	for _, wantRemaining := range []int64{2, 1, 0} {
		w := f.get("/api/v1/portal/data", credential)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "3", w.Header().Get("X-RateLimit-Limit"))
		assert.Equal(t, strconv.FormatInt(wantRemaining, 10), w.Header().Get("X-RateLimit-Remaining"))
		assert.Equal(t, "fixed_window", w.Header().Get("X-RateLimit-Algorithm"))
	}

	w := f.get("/api/v1/portal/data", credential)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "RATE_LIMITED", body["code"])
	details, ok := body["details"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "per_key", details["layer"])
}

func TestAdmissionEndpointLayer(t *testing.T) {
	f := newAdmissionFixture(t, ratelimit.ManagerConfig{
		Endpoints: []ratelimit.EndpointRule{
			{Prefix: "/api/v1/portal", Limit: 1, Window: time.Minute},
		},
	})
	_, credential := f.seedKey(t, nil)

	w := f.get("/api/v1/portal/data", credential)
	require.Equal(t, http.StatusOK, w.Code)

	// a different key hits the same shared endpoint ceiling
	_, otherCredential := f.seedKey(t, nil)
	w = f.get("/api/v1/portal/data", otherCredential)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	details, ok := body["details"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "endpoint", details["layer"])
}

func admissionLatencySamples(t *testing.T, m *metrics.Admission) uint64 {
	t.Helper()
	var out dto.Metric
	require.NoError(t, m.AdmissionLatency.Write(&out))
	return out.GetHistogram().GetSampleCount()
}

func TestAdmissionLatencyObservedOnDeniedRequests(t *testing.T) {
	f := newAdmissionFixture(t, ratelimit.ManagerConfig{})
	m := metrics.NewAdmission("admissiontest", prometheus.NewRegistry())

	router := gin.New()
	router.GET("/api/v1/portal/data",
		AdmissionMiddleware(f.gate, f.limits, m, zap.NewNop()),
		func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"ok": true}) })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/portal/data", nil))
	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.EqualValues(t, 1, admissionLatencySamples(t, m), "a denied request is still observed")

	_, credential := f.seedKey(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/portal/data", nil)
	req.Header.Set("X-API-Key", credential)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 2, admissionLatencySamples(t, m))
}

func TestRequirePermissionDenied(t *testing.T) {
	f := newAdmissionFixture(t, ratelimit.ManagerConfig{})
	// the read scope does not include analytics export
	_, credential := f.seedKey(t, nil)

	w := f.get("/api/v1/portal/export", credential)
	assert.Equal(t, http.StatusForbidden, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "FORBIDDEN", body["code"])
}

func TestRequirePermissionGranted(t *testing.T) {
	f := newAdmissionFixture(t, ratelimit.ManagerConfig{})
	_, credential := f.seedKey(t, func(k *apikey.APIKey) {
		k.Scopes = []string{"analytics:export"}
	})

	w := f.get("/api/v1/portal/export", credential)
	assert.Equal(t, http.StatusOK, w.Code)
}
