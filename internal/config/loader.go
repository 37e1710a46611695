package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// Load loads configuration from various sources with priority order:
// 1. Environment variables
// 2. Configuration file (config.yaml, or the file named by CONFIG_PATH)
// 3. Default values
func Load() (*Config, error) {
	return LoadFrom(os.Getenv("CONFIG_PATH"))
}

// LoadFrom is Load with an explicit config file. An empty path searches the
// default locations and tolerates a missing file.
func LoadFrom(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/workcell/")
		v.AddConfigPath("./configs/")
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix("WORKCELL")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	overrideWithEnvVars(v)

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// ConfigFileUsed reports which file Load would read, or "" when none exists.
func ConfigFileUsed() string {
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	for _, dir := range []string{"/etc/workcell/", "./configs/", "./"} {
		p := dir + "config.yaml"
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// setDefaults sets reasonable default values
func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")
	v.SetDefault("port", 8080)
	v.SetDefault("log_level", "info")

	v.SetDefault("database.sql.host", "127.0.0.1")
	v.SetDefault("database.sql.port", 3306)
	v.SetDefault("database.sql.user", "root")
	v.SetDefault("database.sql.password", "")
	v.SetDefault("database.sql.name", "workcell")
	v.SetDefault("database.sql.location", "Local")
	v.SetDefault("database.sql.query_timeout", 10000)
	v.SetDefault("database.sql.max_open_conns", 20)
	v.SetDefault("database.sql.max_idle_conns", 5)
	v.SetDefault("database.sql.conn_max_lifetime", 30)

	v.SetDefault("database.victoria_metrics.endpoints", []string{"http://localhost:8428"})
	v.SetDefault("database.victoria_metrics.timeout", 30000)

	v.SetDefault("cache.enabled", false)
	v.SetDefault("cache.nodes", []string{})
	v.SetDefault("cache.ttl", 300)
	v.SetDefault("cache.db", 0)
	v.SetDefault("cache.auto_swap", true)

	v.SetDefault("cors.allowed_origins", []string{})
	v.SetDefault("cors.allowed_methods", []string{"GET", "OPTIONS"})
	v.SetDefault("cors.allowed_headers", []string{"Origin", "Content-Type", "Accept", "X-Request-ID"})
	v.SetDefault("cors.exposed_headers", []string{"X-Request-ID"})
	v.SetDefault("cors.allow_credentials", true)
	v.SetDefault("cors.max_age", 3600)

	v.SetDefault("monitoring.metrics_path", "/metrics")
	v.SetDefault("monitoring.prometheus_enabled", true)
	v.SetDefault("monitoring.tracing_enabled", false)
	v.SetDefault("monitoring.otlp_endpoint", "localhost:4317")
	v.SetDefault("monitoring.sample_ratio", 1.0)
	v.SetDefault("monitoring.service_name", "workcell-kpi")

	v.SetDefault("tables.line", "line_summary")
	v.SetDefault("tables.node", "node_snapshot")
	v.SetDefault("tables.signal", "signal_log")

	v.SetDefault("kpi.recent_threshold_sec", 3600)
	v.SetDefault("kpi.ideal_latency_sec", 25.0)
	v.SetDefault("kpi.target_step_sec", 30.0)
	v.SetDefault("kpi.latency_mode", "mean")
	v.SetDefault("kpi.default_lookback", "6h")

	v.SetDefault("devices.cache_ttl_sec", 300)
	v.SetDefault("devices.status_window_sec", 3600)
	v.SetDefault("devices.static_defaults", []map[string]interface{}{
		{"entity": "A1", "names": []string{"robot-a", "robot-b", "conveyor-a", "conveyor-b"}},
	})

	v.SetDefault("trend.measurement", "kpi_timeseries")
	v.SetDefault("trend.site_label", "site_id")
	v.SetDefault("trend.signal_label", "signal")
	v.SetDefault("trend.default_lookback", "30d")
	v.SetDefault("trend.default_interval", "1h")
	v.SetDefault("trend.max_points", 11000)
}

// overrideWithEnvVars explicitly handles the unprefixed deployment variables.
func overrideWithEnvVars(v *viper.Viper) {
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			v.Set("port", p)
		}
	}
	if env := os.Getenv("ENVIRONMENT"); env != "" {
		v.Set("environment", env)
	}
	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		v.Set("log_level", logLevel)
	}

	// Relational store
	setString(v, "DB_URL", "database.sql.dsn")
	setString(v, "DB_HOST", "database.sql.host")
	setInt(v, "DB_PORT", "database.sql.port")
	setString(v, "DB_USER", "database.sql.user")
	setString(v, "DB_PASS", "database.sql.password")
	setString(v, "DB_NAME", "database.sql.name")

	setString(v, "LINE_KPI_TABLE", "tables.line")
	setString(v, "NODE_KPI_TABLE", "tables.node")
	setString(v, "SIGNAL_TABLE", "tables.signal")

	setInt(v, "DASHBOARD_RECENT_SEC", "kpi.recent_threshold_sec")
	setFloat(v, "IDEAL_LATENCY_SEC", "kpi.ideal_latency_sec")
	setFloat(v, "TARGET_STEP_SEC", "kpi.target_step_sec")

	// Time-series store
	setList(v, "VM_ENDPOINTS", "database.victoria_metrics.endpoints")
	setString(v, "STUDY_MEASUREMENT", "trend.measurement")
	setString(v, "TS_COL_SITE", "trend.site_label")
	setString(v, "TS_COL_KIND", "trend.signal_label")

	setList(v, "CORS_ORIGINS", "cors.allowed_origins")

	if os.Getenv("VALKEY_CACHE_NODES") != "" {
		setList(v, "VALKEY_CACHE_NODES", "cache.nodes")
		v.Set("cache.enabled", true)
	}
	setInt(v, "CACHE_TTL", "cache.ttl")

	setString(v, "OTEL_EXPORTER_OTLP_ENDPOINT", "monitoring.otlp_endpoint")
}

func setString(v *viper.Viper, env, key string) {
	if s := os.Getenv(env); s != "" {
		v.Set(key, s)
	}
}

func setInt(v *viper.Viper, env, key string) {
	if s := os.Getenv(env); s != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			v.Set(key, n)
		}
	}
}

func setFloat(v *viper.Viper, env, key string) {
	if s := os.Getenv(env); s != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			v.Set(key, f)
		}
	}
}

func setList(v *viper.Viper, env, key string) {
	raw := os.Getenv(env)
	if raw == "" {
		return
	}
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	v.Set(key, out)
}
