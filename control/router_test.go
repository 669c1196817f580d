// control/router_test.go
// Author: momentics <momentics@gmail.com>

package control

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func get(t *testing.T, h http.Handler, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	var body map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}
	return rec, body
}

func TestDebugRouterEndpoints(t *testing.T) {
	probes := NewDebugProbes()
	probes.RegisterProbe("ring.count", func() any { return 2 })
	metrics := NewMetricsRegistry()
	metrics.Add("ffi.errors", 3)
	metrics.Set("pool.size", 4)
	store := NewConfigStore(nil)

	h := NewDebugRouter(probes, metrics, store)

	rec, body := get(t, h, "/debug/state")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "application/json")
	assert.EqualValues(t, 2, body["ring.count"])

	rec, body = get(t, h, "/debug/state/ring.count")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 2, body["ring.count"])

	rec, _ = get(t, h, "/debug/state/missing")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, body = get(t, h, "/debug/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 3, body["ffi.errors"])
	assert.EqualValues(t, 4, body["pool.size"])

	rec, body = get(t, h, "/debug/config")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, body, "pool")
}

func TestDebugRouterNilSources(t *testing.T) {
	h := NewDebugRouter(nil, nil, nil)
	for _, path := range []string{"/debug/state", "/debug/metrics", "/debug/config"} {
		rec, _ := get(t, h, path)
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
	}
}

func TestDebugRouterRecoversProbePanic(t *testing.T) {
	probes := NewDebugProbes()
	probes.RegisterProbe("boom", func() any { panic("probe failed") })
	rec := httptest.NewRecorder()
	NewDebugRouter(probes, nil, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/state", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
