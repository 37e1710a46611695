package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platformbuilds/workcell-kpi/internal/api/handlers"
	"github.com/platformbuilds/workcell-kpi/internal/config"
	"github.com/platformbuilds/workcell-kpi/internal/kpi"
	"github.com/platformbuilds/workcell-kpi/internal/storage/sqlstore"
	"github.com/platformbuilds/workcell-kpi/pkg/cache"
	"github.com/platformbuilds/workcell-kpi/pkg/logger"
)

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

// newTestServer wires the real engine over a sqlmock-backed store.
func newTestServer(t *testing.T, cfg *config.Config) (*Server, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	log := logger.Nop()
	store := sqlstore.New(db, time.Second, log)
	tables := kpi.Tables{
		Line:   sqlstore.LineSpec("line_summary"),
		Node:   sqlstore.NodeSpec("node_snapshot"),
		Signal: sqlstore.SignalSpec("signal_log"),
	}
	status := kpi.NewStatusCache(cache.NewMemoryStore(log), store, tables.Node, kpi.StatusCacheOptions{
		Defaults: map[string][]string{"A1": {"robot-a", "robot-b"}},
	}, log)
	svc, err := kpi.NewService(store, nil, status, kpi.Options{Tables: tables, Params: kpi.DefaultParams()}, log)
	require.NoError(t, err)

	if cfg == nil {
		cfg = &config.Config{Environment: "test"}
	}
	return NewServer(cfg, log, svc, handlers.HealthDeps{SQL: stubPinger{}, Version: "test"}), mock
}

func doGet(s *Server, target string, hdr ...string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for i := 0; i+1 < len(hdr); i += 2 {
		req.Header.Set(hdr[i], hdr[i+1])
	}
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestServer_DashboardNoData(t *testing.T) {
	s, mock := newTestServer(t, nil)
	mock.ExpectQuery("SELECT MAX").WithArgs("A1").
		WillReturnRows(sqlmock.NewRows([]string{"max_time"}).AddRow(nil))

	w := doGet(s, "/api/dashboard?line_id=A1")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "no_data_recent", body["_source"])
	assert.Equal(t, "INTERVAL 6 HOUR", body["_window"])
	assert.Nil(t, body["oee_pct"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestServer_ValidationIs400(t *testing.T) {
	s, mock := newTestServer(t, nil)

	for _, target := range []string{
		"/api/dashboard?line_id=A1%27%3B%20DROP%20TABLE%20x",
		"/api/dashboard",
		"/api/analytics?line_id=A1&range=1y",
		"/api/analyze/timeseries?site=S1&range=1h",
		"/api/analyze/timeseries?site=S1&metric=oee",
	} {
		w := doGet(s, target)
		assert.Equal(t, http.StatusBadRequest, w.Code, target)
		assert.Contains(t, w.Body.String(), `"code":"INVALID_REQUEST"`, target)
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestServer_RetrievalFailureIsSanitized(t *testing.T) {
	s, mock := newTestServer(t, nil)
	mock.ExpectQuery("SELECT MAX").WillReturnError(errors.New("Error 1045: Access denied for user 'kpi'@'10.0.0.7'"))

	w := doGet(s, "/api/dashboard?line_id=A1")
	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), `"code":"RETRIEVAL_FAILED"`)
	assert.NotContains(t, w.Body.String(), "10.0.0.7")
	assert.NotContains(t, w.Body.String(), "Access denied")
}

func TestServer_DevicesStaticDefault(t *testing.T) {
	s, mock := newTestServer(t, nil)

	for _, path := range []string{"/api/dashboard_devices?line_id=A1", "/api/devices?line_id=A1"} {
		mock.ExpectQuery("SELECT DISTINCT").WithArgs("A1").
			WillReturnRows(sqlmock.NewRows([]string{"node_name"}))
		mock.ExpectQuery("JOIN").
			WillReturnRows(sqlmock.NewRows([]string{"node_name", "recorded_at", "health_code"}))

		w := doGet(s, path)
		require.Equal(t, http.StatusOK, w.Code, path)
		assert.Contains(t, w.Body.String(), `"_source":"static_default"`)
		assert.Contains(t, w.Body.String(), `"devices":["robot-a","robot-b"]`)
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestServer_TrendWithoutStoreIsRetrievalFailure(t *testing.T) {
	s, _ := newTestServer(t, nil)
	w := doGet(s, "/api/analysis/timeseries?site=S1")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), `"error":"data retrieval failed"`)
}

func TestServer_HealthAndWhoAmI(t *testing.T) {
	s, _ := newTestServer(t, nil)

	w := doGet(s, "/health")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Cache-Control"))

	w = doGet(s, "/api/health")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","db":true}`, w.Body.String())

	w = doGet(s, "/api/_whoami")
	require.Equal(t, http.StatusOK, w.Code)
	var st kpi.Settings
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
	assert.Equal(t, "line_summary", st.LineTable)
	assert.Equal(t, 3600.0, st.RecentThresholdSec)
	assert.Equal(t, 25.0, st.IdealLatencySec)

	w = doGet(s, "/api/nope")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestServer_CORSAndMetrics(t *testing.T) {
	cfg := &config.Config{Environment: "test"}
	cfg.CORS.AllowedOrigins = []string{"http://localhost:5173"}
	cfg.CORS.AllowCredentials = true
	cfg.Monitoring.PrometheusEnabled = true
	s, _ := newTestServer(t, cfg)

	w := doGet(s, "/health", "Origin", "http://localhost:5173")
	assert.Equal(t, "http://localhost:5173", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))

	w = doGet(s, "/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "workcell_kpi_http_requests_total")
}

func TestServer_Start_And_Handler(t *testing.T) {
	s, _ := newTestServer(t, &config.Config{Environment: "test", Port: 0})
	require.NotNil(t, s.Handler())

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- s.Start(ctx) }()

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatalf("server did not shut down in time")
	}
}

func TestServer_Start_Fails(t *testing.T) {
	s, _ := newTestServer(t, &config.Config{Environment: "test", Port: -1})
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	assert.Error(t, s.Start(ctx))
}
