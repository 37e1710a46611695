package config

import "time"

type Config struct {
	Environment string `mapstructure:"environment" yaml:"environment"`
	Port        int    `mapstructure:"port" yaml:"port"`
	LogLevel    string `mapstructure:"log_level" yaml:"log_level"`

	Database   DatabaseConfig   `mapstructure:"database" yaml:"database"`
	Cache      CacheConfig      `mapstructure:"cache" yaml:"cache"`
	CORS       CORSConfig       `mapstructure:"cors" yaml:"cors"`
	Monitoring MonitoringConfig `mapstructure:"monitoring" yaml:"monitoring"`
	Tables     TablesConfig     `mapstructure:"tables" yaml:"tables"`
	KPI        KPIConfig        `mapstructure:"kpi" yaml:"kpi"`
	Devices    DevicesConfig    `mapstructure:"devices" yaml:"devices"`
	Trend      TrendConfig      `mapstructure:"trend" yaml:"trend"`
}

// DatabaseConfig holds the relational store and the time-series store.
type DatabaseConfig struct {
	SQL             SQLConfig             `mapstructure:"sql" yaml:"sql"`
	VictoriaMetrics VictoriaMetricsConfig `mapstructure:"victoria_metrics" yaml:"victoria_metrics"`
}

// SQLConfig describes the MySQL-protocol store. DSN, when set, is either a
// go-sql-driver DSN or a mysql[+driver]:// URL, and the discrete fields are
// ignored.
type SQLConfig struct {
	DSN             string `mapstructure:"dsn" yaml:"dsn"`
	Host            string `mapstructure:"host" yaml:"host"`
	Port            int    `mapstructure:"port" yaml:"port"`
	User            string `mapstructure:"user" yaml:"user"`
	Password        string `mapstructure:"password" yaml:"password"`
	Name            string `mapstructure:"name" yaml:"name"`
	Location        string `mapstructure:"location" yaml:"location"`
	QueryTimeout    int    `mapstructure:"query_timeout" yaml:"query_timeout"` // milliseconds
	MaxOpenConns    int    `mapstructure:"max_open_conns" yaml:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns" yaml:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime" yaml:"conn_max_lifetime"` // minutes
}

type VictoriaMetricsConfig struct {
	Endpoints []string `mapstructure:"endpoints" yaml:"endpoints"`
	Timeout   int      `mapstructure:"timeout" yaml:"timeout"` // milliseconds
	Username  string   `mapstructure:"username" yaml:"username"`
	Password  string   `mapstructure:"password" yaml:"password"`
}

// CacheConfig backs the device status cache. With Enabled=false the cache is
// process-local memory.
type CacheConfig struct {
	Enabled  bool     `mapstructure:"enabled" yaml:"enabled"`
	Nodes    []string `mapstructure:"nodes" yaml:"nodes"`
	TTL      int      `mapstructure:"ttl" yaml:"ttl"` // seconds
	DB       int      `mapstructure:"db" yaml:"db"`
	Password string   `mapstructure:"password" yaml:"password"`
	AutoSwap bool     `mapstructure:"auto_swap" yaml:"auto_swap"`
}

type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins" yaml:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods" yaml:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers" yaml:"allowed_headers"`
	ExposedHeaders   []string `mapstructure:"exposed_headers" yaml:"exposed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials" yaml:"allow_credentials"`
	MaxAge           int      `mapstructure:"max_age" yaml:"max_age"`
}

type MonitoringConfig struct {
	MetricsPath       string  `mapstructure:"metrics_path" yaml:"metrics_path"`
	PrometheusEnabled bool    `mapstructure:"prometheus_enabled" yaml:"prometheus_enabled"`
	TracingEnabled    bool    `mapstructure:"tracing_enabled" yaml:"tracing_enabled"`
	OTLPEndpoint      string  `mapstructure:"otlp_endpoint" yaml:"otlp_endpoint"`
	SampleRatio       float64 `mapstructure:"sample_ratio" yaml:"sample_ratio"`
	ServiceName       string  `mapstructure:"service_name" yaml:"service_name"`
}

// TablesConfig names the three relational tables. Values are validated as
// plain identifiers at load time.
type TablesConfig struct {
	Line   string `mapstructure:"line" yaml:"line"`
	Node   string `mapstructure:"node" yaml:"node"`
	Signal string `mapstructure:"signal" yaml:"signal"`
}

// KPIConfig is the hot-reloadable derivation tuning block.
type KPIConfig struct {
	RecentThresholdSec int     `mapstructure:"recent_threshold_sec" yaml:"recent_threshold_sec"`
	IdealLatencySec    float64 `mapstructure:"ideal_latency_sec" yaml:"ideal_latency_sec"`
	TargetStepSec      float64 `mapstructure:"target_step_sec" yaml:"target_step_sec"`
	LatencyMode        string  `mapstructure:"latency_mode" yaml:"latency_mode"` // mean | sum
	DefaultLookback    string  `mapstructure:"default_lookback" yaml:"default_lookback"`
}

type DevicesConfig struct {
	CacheTTLSec     int               `mapstructure:"cache_ttl_sec" yaml:"cache_ttl_sec"`
	StatusWindowSec int               `mapstructure:"status_window_sec" yaml:"status_window_sec"`
	StaticDefaults  []StaticDeviceSet `mapstructure:"static_defaults" yaml:"static_defaults"`
}

// StaticDeviceSet is the device list served for an entity when the store has none.
type StaticDeviceSet struct {
	Entity string   `mapstructure:"entity" yaml:"entity"`
	Names  []string `mapstructure:"names" yaml:"names"`
}

// TrendConfig maps the TSDB series used by the trend query.
type TrendConfig struct {
	Measurement     string `mapstructure:"measurement" yaml:"measurement"`
	SiteLabel       string `mapstructure:"site_label" yaml:"site_label"`
	SignalLabel     string `mapstructure:"signal_label" yaml:"signal_label"`
	DefaultLookback string `mapstructure:"default_lookback" yaml:"default_lookback"`
	DefaultInterval string `mapstructure:"default_interval" yaml:"default_interval"`
	MaxPoints       int    `mapstructure:"max_points" yaml:"max_points"`
}

func (c SQLConfig) QueryTimeoutDuration() time.Duration {
	return time.Duration(c.QueryTimeout) * time.Millisecond
}

func (c VictoriaMetricsConfig) TimeoutDuration() time.Duration {
	return time.Duration(c.Timeout) * time.Millisecond
}

func (c KPIConfig) RecentThreshold() time.Duration {
	return time.Duration(c.RecentThresholdSec) * time.Second
}

func (c DevicesConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSec) * time.Second
}

func (c DevicesConfig) StatusWindow() time.Duration {
	return time.Duration(c.StatusWindowSec) * time.Second
}

// StaticDefaultsMap indexes StaticDefaults by entity.
func (c DevicesConfig) StaticDefaultsMap() map[string][]string {
	out := make(map[string][]string, len(c.StaticDefaults))
	for _, s := range c.StaticDefaults {
		if s.Entity == "" || len(s.Names) == 0 {
			continue
		}
		out[s.Entity] = append([]string(nil), s.Names...)
	}
	return out
}
