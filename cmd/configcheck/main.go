// configcheck loads a configuration file through the same path as the server,
// checks the table layouts and prints the effective settings as YAML with
// secrets redacted. It exits non-zero if validation fails.
package main

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/platformbuilds/workcell-kpi/internal/config"
	"github.com/platformbuilds/workcell-kpi/internal/storage/sqlstore"
)

const (
	// MinArgsRequired represents the minimum number of command line arguments required
	MinArgsRequired = 2
	// ExitCodeError represents the exit code for errors
	ExitCodeError = 1
)

func main() {
	if len(os.Args) < MinArgsRequired {
		fmt.Println("Usage: configcheck <config-file>")
		fmt.Println("Example: configcheck configs/config.yaml")
		os.Exit(ExitCodeError)
	}

	configFile := os.Args[1]
	fmt.Printf("Checking configuration file: %s\n", configFile)

	cfg, err := config.LoadFrom(configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(ExitCodeError)
	}

	fmt.Println("\n=== Tables ===")
	for _, spec := range []sqlstore.TableSpec{
		sqlstore.LineSpec(cfg.Tables.Line),
		sqlstore.NodeSpec(cfg.Tables.Node),
		sqlstore.SignalSpec(cfg.Tables.Signal),
	} {
		if err := spec.Validate(); err != nil {
			fmt.Fprintf(os.Stderr, "❌ table %s: %v\n", spec.Table, err)
			os.Exit(ExitCodeError)
		}
		fmt.Printf("  %s\n", spec.Table)
	}

	fmt.Println("\n=== Effective configuration ===")
	out, err := yaml.Marshal(redact(*cfg))
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(ExitCodeError)
	}
	fmt.Print(string(out))

	fmt.Println("\n=== Derived ===")
	fmt.Printf("  Recent threshold:  %s\n", cfg.KPI.RecentThreshold())
	fmt.Printf("  SQL query timeout: %s\n", cfg.Database.SQL.QueryTimeoutDuration())
	fmt.Printf("  TSDB timeout:      %s\n", cfg.Database.VictoriaMetrics.TimeoutDuration())
	fmt.Printf("  Device cache TTL:  %s\n", cfg.Devices.CacheTTL())
	fmt.Printf("  Status window:     %s\n", cfg.Devices.StatusWindow())
	fmt.Printf("  Static devices:    %d entities\n", len(cfg.Devices.StaticDefaultsMap()))

	fmt.Println("\n✅ Configuration is valid")
}

const redacted = "********"

// redact blanks credentials, keeping the DSN host part.
func redact(cfg config.Config) config.Config {
	if cfg.Database.SQL.Password != "" {
		cfg.Database.SQL.Password = redacted
	}
	if cfg.Database.SQL.DSN != "" {
		if at := strings.LastIndex(cfg.Database.SQL.DSN, "@"); at >= 0 {
			cfg.Database.SQL.DSN = redacted + cfg.Database.SQL.DSN[at:]
		}
	}
	if cfg.Database.VictoriaMetrics.Password != "" {
		cfg.Database.VictoriaMetrics.Password = redacted
	}
	if cfg.Cache.Password != "" {
		cfg.Cache.Password = redacted
	}
	return cfg
}
