package config

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platformbuilds/workcell-kpi/pkg/logger"
)

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	p := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	return p
}

func TestConfigLoading(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		config, err := LoadFrom("")
		require.NoError(t, err)

		assert.Equal(t, 8080, config.Port)
		assert.Equal(t, "line_summary", config.Tables.Line)
		assert.Equal(t, "node_snapshot", config.Tables.Node)
		assert.Equal(t, "signal_log", config.Tables.Signal)
		assert.Equal(t, 3600, config.KPI.RecentThresholdSec)
		assert.Equal(t, 25.0, config.KPI.IdealLatencySec)
		assert.Equal(t, 30.0, config.KPI.TargetStepSec)
		assert.Equal(t, "mean", config.KPI.LatencyMode)
		assert.Equal(t, 300, config.Devices.CacheTTLSec)
		assert.Equal(t, time.Hour, config.Devices.StatusWindow())
		assert.Equal(t, []string{"robot-a", "robot-b", "conveyor-a", "conveyor-b"}, config.Devices.StaticDefaultsMap()["A1"])
		assert.Equal(t, "kpi_timeseries", config.Trend.Measurement)
		assert.Equal(t, 10*time.Second, config.Database.SQL.QueryTimeoutDuration())
		assert.False(t, config.Cache.Enabled)
	})

	t.Run("load from file", func(t *testing.T) {
		dir := t.TempDir()
		p := writeConfig(t, dir, `
environment: test
port: 9999
log_level: debug

database:
  sql:
    host: db.internal
    name: plant
  victoria_metrics:
    endpoints:
      - "http://test-vm:8428"
    timeout: 5000

kpi:
  ideal_latency_sec: 20
  latency_mode: sum

devices:
  static_defaults:
    - entity: B2
      names: [press-1, press-2]
`)
		t.Setenv("CONFIG_PATH", p)

		config, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "test", config.Environment)
		assert.Equal(t, 9999, config.Port)
		assert.Equal(t, "debug", config.LogLevel)
		assert.Equal(t, "db.internal", config.Database.SQL.Host)
		assert.Equal(t, "plant", config.Database.SQL.Name)
		assert.Equal(t, []string{"http://test-vm:8428"}, config.Database.VictoriaMetrics.Endpoints)
		assert.Equal(t, 5*time.Second, config.Database.VictoriaMetrics.TimeoutDuration())
		assert.Equal(t, 20.0, config.KPI.IdealLatencySec)
		assert.Equal(t, "sum", config.KPI.LatencyMode)
		assert.Equal(t, map[string][]string{"B2": {"press-1", "press-2"}}, config.Devices.StaticDefaultsMap())
	})

	t.Run("environment overrides", func(t *testing.T) {
		t.Setenv("PORT", "7070")
		t.Setenv("DB_URL", "root:pw@tcp(mysql:3306)/workcell")
		t.Setenv("LINE_KPI_TABLE", "line_kpi")
		t.Setenv("DASHBOARD_RECENT_SEC", "900")
		t.Setenv("IDEAL_LATENCY_SEC", "12.5")
		t.Setenv("TARGET_STEP_SEC", "40")
		t.Setenv("VM_ENDPOINTS", "http://vm-a:8428, http://vm-b:8428")
		t.Setenv("CORS_ORIGINS", "https://twinworks.app, https://imp.twinworks.app")
		t.Setenv("VALKEY_CACHE_NODES", "valkey:6379")
		t.Setenv("TS_COL_SITE", "line")

		config, err := LoadFrom("")
		require.NoError(t, err)

		assert.Equal(t, 7070, config.Port)
		assert.Equal(t, "root:pw@tcp(mysql:3306)/workcell", config.Database.SQL.DSN)
		assert.Equal(t, "line_kpi", config.Tables.Line)
		assert.Equal(t, 15*time.Minute, config.KPI.RecentThreshold())
		assert.Equal(t, 12.5, config.KPI.IdealLatencySec)
		assert.Equal(t, 40.0, config.KPI.TargetStepSec)
		assert.Equal(t, []string{"http://vm-a:8428", "http://vm-b:8428"}, config.Database.VictoriaMetrics.Endpoints)
		assert.Equal(t, []string{"https://twinworks.app", "https://imp.twinworks.app"}, config.CORS.AllowedOrigins)
		assert.True(t, config.Cache.Enabled)
		assert.Equal(t, []string{"valkey:6379"}, config.Cache.Nodes)
		assert.Equal(t, "line", config.Trend.SiteLabel)
	})

	t.Run("url form of DB_URL is kept as-is", func(t *testing.T) {
		t.Setenv("DB_URL", "mysql+pymysql://root:pw@mysql:3306/workcell?charset=utf8mb4")

		config, err := LoadFrom("")
		require.NoError(t, err)
		assert.Equal(t, "mysql+pymysql://root:pw@mysql:3306/workcell?charset=utf8mb4", config.Database.SQL.DSN)
	})

	t.Run("missing explicit file is an error", func(t *testing.T) {
		_, err := LoadFrom(filepath.Join(t.TempDir(), "absent.yaml"))
		assert.Error(t, err)
	})
}

func TestConfigValidation(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"injected table name", map[string]string{"LINE_KPI_TABLE": "line_summary; DROP TABLE x"}, "tables.line"},
		{"bad log level", map[string]string{"LOG_LEVEL": "chatty"}, "invalid log level"},
		{"bad port", map[string]string{"PORT": "70000"}, "invalid port"},
		{"zero ideal latency", map[string]string{"IDEAL_LATENCY_SEC": "0"}, "ideal_latency_sec"},
		{"bad vm endpoint", map[string]string{"VM_ENDPOINTS": "vm:8428"}, "victoria_metrics endpoint"},
		{"wildcard cors with credentials", map[string]string{"CORS_ORIGINS": "*"}, "wildcard origin"},
		{"bad valkey node", map[string]string{"VALKEY_CACHE_NODES": "valkey"}, "Valkey node"},
		{"bad measurement", map[string]string{"STUDY_MEASUREMENT": "kpi-timeseries"}, "trend.measurement"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := LoadFrom("")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestValidateHelpers(t *testing.T) {
	assert.NoError(t, ValidateIdentifier("line_summary"))
	assert.Error(t, ValidateIdentifier("1line"))
	assert.Error(t, ValidateIdentifier("line summary"))
	assert.Error(t, ValidateIdentifier(""))

	assert.NoError(t, ValidateEndpoint("https://vm.example:8428"))
	assert.Error(t, ValidateEndpoint(""))
	assert.Error(t, ValidateEndpoint("ftp://vm"))

	assert.NoError(t, ValidateRedisNode("localhost:6379"))
	assert.Error(t, ValidateRedisNode(":6379"))
	assert.Error(t, ValidateRedisNode("localhost:port"))

	assert.Error(t, validateKPI(KPIConfig{RecentThresholdSec: 1, IdealLatencySec: 1, TargetStepSec: 1, LatencyMode: "median"}))
}

func TestConfigWatcher_ReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	p := writeConfig(t, dir, "kpi:\n  ideal_latency_sec: 25\n")
	initial, err := LoadFrom(p)
	require.NoError(t, err)

	w := NewConfigWatcher(p, initial, logger.Nop())
	var seen atomic.Value
	w.RegisterWatcher(func(c *Config) { seen.Store(c.KPI.IdealLatencySec) })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Start(ctx) }()

	// give the watcher a moment to register the directory
	time.Sleep(100 * time.Millisecond)

	// invalid content is ignored
	require.NoError(t, os.WriteFile(p, []byte("kpi:\n  ideal_latency_sec: -1\n"), 0o600))
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 25.0, w.GetConfig().KPI.IdealLatencySec)

	require.NoError(t, os.WriteFile(p, []byte("kpi:\n  ideal_latency_sec: 18\n"), 0o600))
	require.Eventually(t, func() bool {
		v, ok := seen.Load().(float64)
		return ok && v == 18
	}, 3*time.Second, 20*time.Millisecond)
	assert.Equal(t, 18.0, w.GetConfig().KPI.IdealLatencySec)

	w.Stop()
	w.Stop()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop")
	}
}
