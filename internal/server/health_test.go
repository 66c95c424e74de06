package server

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var h Health
	require.NoError(t, jsonDecode(rr, &h))
	assert.Equal(t, HealthStatusHealthy, h.Status)
	assert.Equal(t, "test", h.Version)
	assert.Equal(t, ComponentStatusUp, h.Components["database"].Status)
	assert.Equal(t, ComponentStatusUp, h.Components["storage"].Status)
}

func TestHealth_StorageDown(t *testing.T) {
	env := newTestEnv(t)
	env.blobs.FailPing(errors.New("connection refused"))

	rr := env.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)

	var h Health
	require.NoError(t, jsonDecode(rr, &h))
	assert.Equal(t, HealthStatusUnhealthy, h.Status)
	assert.Equal(t, ComponentStatusDown, h.Components["storage"].Status)
	assert.NotContains(t, rr.Body.String(), "connection refused")
}

func TestLive(t *testing.T) {
	env := newTestEnv(t)
	rr := env.do(httptest.NewRequest(http.MethodGet, "/live", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"alive"}`, rr.Body.String())
}

func TestOverallHealth(t *testing.T) {
	tests := []struct {
		name string
		in   []ComponentStatus
		want HealthStatus
	}{
		{"all up", []ComponentStatus{ComponentStatusUp, ComponentStatusUp}, HealthStatusHealthy},
		{"one degraded", []ComponentStatus{ComponentStatusUp, ComponentStatusDegraded}, HealthStatusDegraded},
		{"down wins", []ComponentStatus{ComponentStatusDegraded, ComponentStatusDown}, HealthStatusUnhealthy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := map[string]ComponentHealth{}
			for i, s := range tt.in {
				c[string(rune('a'+i))] = ComponentHealth{Status: s}
			}
			assert.Equal(t, tt.want, overallHealth(c))
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	res := env.upload(t, part{name: "a.txt", contentType: "text/plain", body: "abc"})
	env.list(t, res, "AAAAAAAAAAAA")

	rr := env.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, strings.HasPrefix(rr.Header().Get("Content-Type"), "text/plain; version=0.0.4"))

	body := rr.Body.String()
	assert.Contains(t, body, "# TYPE sfd_uploads_total counter\nsfd_uploads_total 1\n")
	assert.Contains(t, body, "sfd_upload_bytes_total 3\n")
	assert.Contains(t, body, `sfd_access_denied_total{reason="unauthorized"} 1`)
	// upload + list are counted before /metrics itself is logged.
	assert.Contains(t, body, "sfd_requests_total 2\n")
}

func TestPrometheusLabel(t *testing.T) {
	assert.Equal(t, `a\"b\\c\n`, prometheusLabel("a\"b\\c\n"))
}
