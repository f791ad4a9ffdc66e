package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/secwebscan/secwebscan/internal/config"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()

	return New(config.APIConfig{
		ListenAddr:     "127.0.0.1",
		Port:           0,
		RequestTimeout: 5 * time.Second,
	}, nil)
}

func doRequest(t *testing.T, s *Server, method, target string) *httptest.ResponseRecorder {
	t.Helper()

	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t)

	rec := doRequest(t, s, http.MethodGet, "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "not configured", resp.Database)
	assert.NotEmpty(t, resp.Uptime)
}

func TestResultsEndpoint(t *testing.T) {
	t.Run("unavailable without a store", func(t *testing.T) {
		s := newTestServer(t)

		rec := doRequest(t, s, http.MethodGet, "/api/v1/results")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

		var resp errorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Contains(t, resp.Error, "not configured")
	})

	t.Run("rejects out-of-range limits", func(t *testing.T) {
		s := newTestServer(t)

		for _, limit := range []string{"0", "-5", "1001", "abc"} {
			rec := doRequest(t, s, http.MethodGet, "/api/v1/results?limit="+limit)
			assert.Equal(t, http.StatusBadRequest, rec.Code, "limit=%s", limit)
		}
	})

	t.Run("only GET is routed", func(t *testing.T) {
		s := newTestServer(t)

		rec := doRequest(t, s, http.MethodPost, "/api/v1/results")
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t)

	rec := doRequest(t, s, http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestResponsesAreJSON(t *testing.T) {
	s := newTestServer(t)

	rec := doRequest(t, s, http.MethodGet, "/healthz")
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}
