package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vesaa/gatewatch/internal/metrics"
	"github.com/vesaa/gatewatch/internal/models"
	"github.com/vesaa/gatewatch/internal/registry"
	"github.com/vesaa/gatewatch/internal/sysinfo"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

type fixedSnapshot models.MetricsSnapshot

func (f fixedSnapshot) Build() models.MetricsSnapshot { return models.MetricsSnapshot(f) }

type fakeCollector struct {
	info *sysinfo.HostInfo
	err  error
}

func (f fakeCollector) Collect(context.Context) (*sysinfo.HostInfo, error) { return f.info, f.err }

type fakeSessions struct {
	gotServer models.ServerID
	gotLimit  int
	out       []models.Session
	err       error
}

func (f *fakeSessions) Recent(_ context.Context, server models.ServerID, limit int) ([]models.Session, error) {
	f.gotServer, f.gotLimit = server, limit
	return f.out, f.err
}

func newTestAPI(t *testing.T, log io.Writer) *API {
	t.Helper()
	if log == nil {
		log = io.Discard
	}
	return &API{
		Metrics: fixedSnapshot{OpenAIConnections: 2, AgentConnections: 1, ServerUptime: 12.5, MemoryUsage: 3.25},
		Host: fakeCollector{info: &sysinfo.HostInfo{
			System:      &sysinfo.SystemInfo{Hostname: "box"},
			CPU:         &sysinfo.CPUInfo{Model: "test cpu", LogicalCores: 4},
			CollectedAt: time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC),
			Failed:      []string{sysinfo.FacetNetwork},
		}},
		Connections: registry.NewSet(models.Servers...),
		Logger:      slog.New(slog.NewTextHandler(log, nil)),
	}
}

func do(t *testing.T, api *API, method, target string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	engine, err := NewEngine(api)
	require.NoError(t, err)
	req := httptest.NewRequest(method, target, nil)
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func TestMetrics(t *testing.T) {
	w := do(t, newTestAPI(t, nil), http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.EqualValues(t, 2, body["openaiConnections"])
	assert.EqualValues(t, 1, body["agentConnections"])
	assert.EqualValues(t, 12.5, body["serverUptime"])
	assert.EqualValues(t, 3.25, body["memoryUsage"])
	assert.NotContains(t, body, "logFiles")
}

func TestSysinfoPartial(t *testing.T) {
	w := do(t, newTestAPI(t, nil), http.MethodGet, "/sysinfo", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Contains(t, body, "system")
	assert.Contains(t, body, "cpu")
	assert.NotContains(t, body, "network")
	assert.Equal(t, []any{"network"}, body["failed"])
}

func TestSysinfoTotalFailure(t *testing.T) {
	var logs bytes.Buffer
	api := newTestAPI(t, &logs)
	api.Host = fakeCollector{err: fmt.Errorf("all facets: %w", sysinfo.ErrCollaboratorUnavailable)}

	w := do(t, api, http.MethodGet, "/sysinfo", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Error retrieving system info", w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Type"), "text/plain")
	assert.Contains(t, logs.String(), "level=ERROR")
}

func TestSysinfoRendersView(t *testing.T) {
	api := newTestAPI(t, nil)
	api.RenderViews = true

	w := do(t, api, http.MethodGet, "/sysinfo", http.Header{"Accept": {"text/html"}})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, w.Body.String(), "box")
	assert.Contains(t, w.Body.String(), "unavailable: network")

	w = do(t, api, http.MethodGet, "/sysinfo", http.Header{"Accept": {"application/json"}})
	assert.Contains(t, w.Header().Get("Content-Type"), "application/json")
}

func TestConnections(t *testing.T) {
	api := newTestAPI(t, nil)
	set := registry.NewSet(models.Servers...)
	require.NoError(t, set.Add(models.ServerExternal, models.Connection{ID: "c1", Server: models.ServerExternal, OpenedAt: time.Now()}))
	api.Connections = set

	w := do(t, api, http.MethodGet, "/connections", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string][]models.Connection
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body["external"], 1)
	assert.Equal(t, "c1", body["external"][0].ID)
	assert.Empty(t, body["internal"])
	assert.NotNil(t, body["internal"])
}

func TestSessions(t *testing.T) {
	api := newTestAPI(t, nil)

	w := do(t, api, http.MethodGet, "/sessions", nil)
	assert.Equal(t, http.StatusNotFound, w.Code, "disabled store")

	fs := &fakeSessions{out: []models.Session{{ConnID: "c9", Server: models.ServerInternal}}}
	api.Sessions = fs

	w = do(t, api, http.MethodGet, "/sessions?server=internal&limit=5", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.ServerInternal, fs.gotServer)
	assert.Equal(t, 5, fs.gotLimit)
	assert.Contains(t, w.Body.String(), `"conn_id":"c9"`)

	w = do(t, api, http.MethodGet, "/sessions", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, fs.gotLimit, "store applies the default")

	w = do(t, api, http.MethodGet, "/sessions?limit=500", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 500, fs.gotLimit)

	fs.gotLimit = -1
	for _, target := range []string{
		"/sessions?limit=abc",
		"/sessions?limit=0",
		"/sessions?limit=501",
		"/sessions?server=other",
	} {
		w = do(t, api, http.MethodGet, target, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, target)
	}
	assert.Equal(t, -1, fs.gotLimit, "rejected requests never reach the store")
}

func TestPrometheusRoutes(t *testing.T) {
	api := newTestAPI(t, nil)

	w := do(t, api, http.MethodGet, "/metrics/prometheus", nil)
	assert.Equal(t, http.StatusOK, w.Code, "unmounted without a handler: falls back to the UI")
	assert.Contains(t, w.Body.String(), "<title>gatewatch</title>")

	set := registry.NewSet(models.Servers...)
	require.NoError(t, set.Add(models.ServerInternal, models.Connection{ID: "a1", Server: models.ServerInternal}))
	api.Prometheus = metrics.NewBuilder(set, time.Now()).PrometheusHandler()

	for _, target := range []string{"/metrics/prometheus", "/api/metrics"} {
		w = do(t, api, http.MethodGet, target, nil)
		require.Equal(t, http.StatusOK, w.Code, target)
		assert.Contains(t, w.Header().Get("Content-Type"), "text/plain", target)
		assert.Contains(t, w.Body.String(), `gatewatch_connections{server="internal"} 1`, target)
		assert.Contains(t, w.Body.String(), `gatewatch_connections{server="external"} 0`, target)
	}
}

func TestHealthz(t *testing.T) {
	w := do(t, newTestAPI(t, nil), http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
}

func TestStaticUI(t *testing.T) {
	api := newTestAPI(t, nil)

	w := do(t, api, http.MethodGet, "/", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "<title>gatewatch</title>")

	w = do(t, api, http.MethodGet, "/style.css", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/css")

	w = do(t, api, http.MethodPost, "/nothing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
