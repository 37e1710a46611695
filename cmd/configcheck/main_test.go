package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"gopkg.in/yaml.v3"

	"github.com/platformbuilds/workcell-kpi/internal/config"
)

func TestRedact(t *testing.T) {
	var cfg config.Config
	cfg.Database.SQL.DSN = "kpi:s3cret@tcp(db:3306)/kpi?parseTime=true"
	cfg.Database.SQL.Password = "s3cret"
	cfg.Database.VictoriaMetrics.Password = "vm-pass"
	cfg.Tables.Line = "line_summary"

	r := redact(cfg)
	assert.Equal(t, "********@tcp(db:3306)/kpi?parseTime=true", r.Database.SQL.DSN)
	assert.Equal(t, redacted, r.Database.SQL.Password)
	assert.Equal(t, redacted, r.Database.VictoriaMetrics.Password)
	assert.Empty(t, r.Cache.Password)
	assert.Equal(t, "s3cret", cfg.Database.SQL.Password)

	out, err := yaml.Marshal(r)
	assert.NoError(t, err)
	assert.NotContains(t, string(out), "s3cret")
	assert.Contains(t, string(out), "line: line_summary")
}
