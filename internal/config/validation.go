package config

import (
	"fmt"
	"net"
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

var (
	identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
	durationPattern   = regexp.MustCompile(`^\d+[smhdw]$`)
)

func validateConfig(config *Config) error {
	if config.Port < 1 || config.Port > 65535 {
		return fmt.Errorf("invalid port number: %d", config.Port)
	}

	validLogLevels := []string{"debug", "info", "warn", "error", "fatal"}
	if !contains(validLogLevels, config.LogLevel) {
		return fmt.Errorf("invalid log level: %s", config.LogLevel)
	}

	validEnvironments := []string{"development", "staging", "production", "test"}
	if !contains(validEnvironments, config.Environment) {
		return fmt.Errorf("invalid environment: %s", config.Environment)
	}

	if config.Database.SQL.DSN == "" {
		if config.Database.SQL.Host == "" {
			return fmt.Errorf("database host is required when no DSN is set")
		}
		if config.Database.SQL.Name == "" {
			return fmt.Errorf("database name is required when no DSN is set")
		}
	}
	if config.Database.SQL.QueryTimeout <= 0 {
		return fmt.Errorf("database.sql.query_timeout must be positive")
	}

	if len(config.Database.VictoriaMetrics.Endpoints) == 0 {
		return fmt.Errorf("at least one VictoriaMetrics endpoint is required")
	}
	for _, ep := range config.Database.VictoriaMetrics.Endpoints {
		if err := ValidateEndpoint(ep); err != nil {
			return fmt.Errorf("victoria_metrics endpoint %q: %w", ep, err)
		}
	}

	for name, table := range map[string]string{
		"tables.line":   config.Tables.Line,
		"tables.node":   config.Tables.Node,
		"tables.signal": config.Tables.Signal,
	} {
		if err := ValidateIdentifier(table); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	for name, ident := range map[string]string{
		"trend.measurement":  config.Trend.Measurement,
		"trend.site_label":   config.Trend.SiteLabel,
		"trend.signal_label": config.Trend.SignalLabel,
	} {
		if err := ValidateIdentifier(ident); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	if !durationPattern.MatchString(config.Trend.DefaultLookback) {
		return fmt.Errorf("trend.default_lookback must look like 30d, got %q", config.Trend.DefaultLookback)
	}
	if !durationPattern.MatchString(config.Trend.DefaultInterval) {
		return fmt.Errorf("trend.default_interval must look like 1h, got %q", config.Trend.DefaultInterval)
	}
	if config.Trend.MaxPoints <= 0 {
		return fmt.Errorf("trend.max_points must be positive")
	}

	if err := validateKPI(config.KPI); err != nil {
		return err
	}

	if config.Devices.CacheTTLSec <= 0 {
		return fmt.Errorf("devices.cache_ttl_sec must be positive")
	}
	if config.Devices.StatusWindowSec <= 0 {
		return fmt.Errorf("devices.status_window_sec must be positive")
	}

	if config.Cache.Enabled {
		for _, node := range config.Cache.Nodes {
			if err := ValidateRedisNode(node); err != nil {
				return err
			}
		}
	}

	if config.CORS.AllowCredentials && contains(config.CORS.AllowedOrigins, "*") {
		return fmt.Errorf("cors: wildcard origin cannot be combined with credentials")
	}

	return nil
}

// validateKPI checks the tuning block. It runs on load and on every hot reload.
func validateKPI(k KPIConfig) error {
	if k.RecentThresholdSec <= 0 {
		return fmt.Errorf("kpi.recent_threshold_sec must be positive")
	}
	if k.IdealLatencySec <= 0 {
		return fmt.Errorf("kpi.ideal_latency_sec must be positive")
	}
	if k.TargetStepSec <= 0 {
		return fmt.Errorf("kpi.target_step_sec must be positive")
	}
	if k.LatencyMode != "mean" && k.LatencyMode != "sum" {
		return fmt.Errorf("kpi.latency_mode must be mean or sum, got %q", k.LatencyMode)
	}
	return nil
}

// ValidateIdentifier accepts plain SQL/PromQL identifiers only.
func ValidateIdentifier(name string) error {
	if !identifierPattern.MatchString(name) {
		return fmt.Errorf("invalid identifier %q", name)
	}
	return nil
}

// ValidateEndpoint validates that an endpoint is properly formatted
func ValidateEndpoint(endpoint string) error {
	if endpoint == "" {
		return fmt.Errorf("endpoint cannot be empty")
	}

	parsed, err := url.Parse(endpoint)
	if err != nil {
		return fmt.Errorf("invalid endpoint URL: %w", err)
	}

	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("endpoint must use http or https scheme")
	}

	if parsed.Host == "" {
		return fmt.Errorf("endpoint must include host")
	}

	return nil
}

// ValidateRedisNode validates Valkey node format
func ValidateRedisNode(node string) error {
	if node == "" {
		return fmt.Errorf("Valkey node cannot be empty")
	}

	host, port, err := net.SplitHostPort(node)
	if err != nil {
		return fmt.Errorf("Valkey node must be in format host:port: %w", err)
	}

	if host == "" {
		return fmt.Errorf("Valkey node must include host")
	}

	if _, err := strconv.Atoi(port); err != nil {
		return fmt.Errorf("invalid Valkey port: %w", err)
	}

	return nil
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if strings.EqualFold(item, s) {
			return true
		}
	}
	return false
}
