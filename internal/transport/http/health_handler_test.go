package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"navpulse/internal/config"
	apierrors "navpulse/internal/errors"
	"navpulse/internal/services"
	"navpulse/internal/shared/testutil"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestHealthHandler(t *testing.T) {
	logger, _ := testutil.NewTestLogger(t)
	paths := config.NewPaths(t.TempDir(), "", "")
	require.NoError(t, paths.EnsureDirectories())

	var pingErr error
	store := pingFunc(func(context.Context) error { return pingErr })
	hs := services.NewHealthService(services.BuildInfo{Version: "v0.3.0", Commit: "deadbeef"}, paths, store, nil, logger)
	handler := NewHealthHandler(hs, logger)

	tests := []struct {
		name           string
		handlerFunc    http.HandlerFunc
		pingErr        error
		expectedStatus int
		checkResponse  func(t *testing.T, body map[string]interface{})
	}{
		{
			name:           "health",
			handlerFunc:    handler.HealthCheck,
			expectedStatus: http.StatusOK,
			checkResponse: func(t *testing.T, body map[string]interface{}) {
				assert.Equal(t, "ok", body["status"])
				assert.Equal(t, "v0.3.0", body["version"])
			},
		},
		{
			name:           "liveness",
			handlerFunc:    handler.LivenessCheck,
			expectedStatus: http.StatusOK,
			checkResponse: func(t *testing.T, body map[string]interface{}) {
				assert.Equal(t, "alive", body["status"])
				assert.Contains(t, body, "runtime")
			},
		},
		{
			name:           "ready",
			handlerFunc:    handler.ReadinessCheck,
			expectedStatus: http.StatusOK,
			checkResponse: func(t *testing.T, body map[string]interface{}) {
				assert.Equal(t, "ready", body["status"])
			},
		},
		{
			name:           "not ready",
			handlerFunc:    handler.ReadinessCheck,
			pingErr:        errors.New("database is locked"),
			expectedStatus: http.StatusServiceUnavailable,
			checkResponse: func(t *testing.T, body map[string]interface{}) {
				assert.Equal(t, "not_ready", body["status"])
				svcs := body["services"].(map[string]interface{})
				store := svcs["store"].(map[string]interface{})
				assert.Contains(t, store["message"], "database is locked")
			},
		},
		{
			name:           "version",
			handlerFunc:    handler.Version,
			expectedStatus: http.StatusOK,
			checkResponse: func(t *testing.T, body map[string]interface{}) {
				assert.Equal(t, "v0.3.0", body["version"])
				assert.Equal(t, "deadbeef", body["commit"])
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pingErr = tt.pingErr
			rec := httptest.NewRecorder()
			tt.handlerFunc(rec, httptest.NewRequest(http.MethodGet, "/", nil))

			assert.Equal(t, tt.expectedStatus, rec.Code)
			var body map[string]interface{}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			tt.checkResponse(t, body)
		})
	}
}

func TestMetricsHandler(t *testing.T) {
	logger, _ := testutil.NewTestLogger(t)
	eh := apierrors.NewErrorHandler(logger, false)

	t.Run("disabled", func(t *testing.T) {
		rec := httptest.NewRecorder()
		NewMetricsHandler(nil, eh).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("delegates", func(t *testing.T) {
		expo := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("# HELP nav_materialize_runs_total\n"))
		})
		rec := httptest.NewRecorder()
		NewMetricsHandler(expo, eh).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "nav_materialize_runs_total")
	})
}
