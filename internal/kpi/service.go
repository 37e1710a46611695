package kpi

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/platformbuilds/workcell-kpi/internal/monitoring"
	"github.com/platformbuilds/workcell-kpi/internal/storage/sqlstore"
	"github.com/platformbuilds/workcell-kpi/internal/storage/victoria"
	"github.com/platformbuilds/workcell-kpi/internal/tracing"
	"github.com/platformbuilds/workcell-kpi/pkg/logger"
)

// RecordStore is the relational query surface the engine reads from.
type RecordStore interface {
	MaxTime(ctx context.Context, spec sqlstore.TableSpec, entity string) (time.Time, bool, error)
	Window(ctx context.Context, spec sqlstore.TableSpec, wq sqlstore.WindowQuery) ([]sqlstore.Record, error)
	DistinctLabel(ctx context.Context, spec sqlstore.TableSpec, label sqlstore.Label, entity, coarseEquals string) ([]string, error)
	DistinctPairs(ctx context.Context, spec sqlstore.TableSpec, entity string) ([]sqlstore.LabelPair, error)
	LatestPerLeaf(ctx context.Context, spec sqlstore.TableSpec, entity string, since time.Time, field sqlstore.Field) ([]sqlstore.Record, error)
}

// TrendStore is the time-series query surface.
type TrendStore interface {
	QueryTrend(ctx context.Context, q victoria.TrendQuery) ([]victoria.Sample, error)
}

// Tables binds the three logical tables to their physical layouts.
type Tables struct {
	Line   sqlstore.TableSpec
	Node   sqlstore.TableSpec
	Signal sqlstore.TableSpec
}

// Options configures a Service.
type Options struct {
	Tables Tables
	Params Params
	// DefaultLookback applies when a dashboard request carries no lookback.
	DefaultLookback string
	TrendLookback   string
	TrendInterval   string
	Now             func() time.Time
}

// Service is the KPI aggregation engine. It is safe for concurrent use; all
// per-request state is local to the call.
type Service struct {
	records RecordStore
	trend   TrendStore
	status  *StatusCache
	tables  Tables
	now     func() time.Time
	logger  logger.Logger

	defaultLookback string
	trendLookback   string
	trendInterval   string

	mu     sync.RWMutex
	params Params
}

func NewService(records RecordStore, trend TrendStore, status *StatusCache, opts Options, log logger.Logger) (*Service, error) {
	if log == nil {
		log = logger.Nop()
	}
	for _, spec := range []sqlstore.TableSpec{opts.Tables.Line, opts.Tables.Node, opts.Tables.Signal} {
		if err := spec.Validate(); err != nil {
			return nil, err
		}
	}
	if err := opts.Params.validate(); err != nil {
		return nil, err
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.DefaultLookback == "" {
		opts.DefaultLookback = "6h"
	}
	if opts.TrendLookback == "" {
		opts.TrendLookback = "30d"
	}
	if opts.TrendInterval == "" {
		opts.TrendInterval = "1h"
	}
	return &Service{
		records:         records,
		trend:           trend,
		status:          status,
		tables:          opts.Tables,
		now:             opts.Now,
		logger:          log,
		defaultLookback: opts.DefaultLookback,
		trendLookback:   opts.TrendLookback,
		trendInterval:   opts.TrendInterval,
		params:          opts.Params,
	}, nil
}

// Params returns the current derivation constants.
func (s *Service) Params() Params {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.params
}

// UpdateParams swaps the derivation constants. Invalid values are rejected
// and the previous set stays active.
func (s *Service) UpdateParams(p Params) error {
	if err := p.validate(); err != nil {
		return err
	}
	s.mu.Lock()
	s.params = p
	s.mu.Unlock()
	s.logger.Info("kpi parameters updated",
		"ideal_latency_sec", p.IdealLatencySec,
		"target_step_sec", p.TargetStepSec,
		"recent_threshold", p.RecentThreshold,
		"latency_mode", p.LatencyMode)
	return nil
}

// Settings is the effective configuration echoed by the whoami endpoint.
type Settings struct {
	LineTable          string  `json:"line_table"`
	NodeTable          string  `json:"node_table"`
	SignalTable        string  `json:"signal_table"`
	RecentThresholdSec float64 `json:"recent_threshold_sec"`
	IdealLatencySec    float64 `json:"ideal_latency_sec"`
	TargetStepSec      float64 `json:"target_step_sec"`
	LatencyMode        string  `json:"latency_mode"`
	DefaultLookback    string  `json:"default_lookback"`
	TrendLookback      string  `json:"trend_lookback"`
	TrendInterval      string  `json:"trend_interval"`
}

func (s *Service) Settings() Settings {
	p := s.Params()
	return Settings{
		LineTable:          s.tables.Line.Table,
		NodeTable:          s.tables.Node.Table,
		SignalTable:        s.tables.Signal.Table,
		RecentThresholdSec: p.RecentThreshold.Seconds(),
		IdealLatencySec:    p.IdealLatencySec,
		TargetStepSec:      p.TargetStepSec,
		LatencyMode:        string(p.LatencyMode),
		DefaultLookback:    s.defaultLookback,
		TrendLookback:      s.trendLookback,
		TrendInterval:      s.trendInterval,
	}
}

// Devices returns the device list and latest status for a line.
func (s *Service) Devices(ctx context.Context, entity string) (*DevicesResult, error) {
	if err := ValidateEntityID("line_id", entity); err != nil {
		return nil, err
	}
	ctx, span := tracing.StartOperationSpan(ctx, "devices", entity)
	defer span.End()

	res, err := s.status.Lookup(ctx, entity, s.Params().RecentThreshold)
	if err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}
	monitoring.RecordResponse("devices", res.Source)
	return res, nil
}

// ComponentTypesResult lists the distinct components of a site.
type ComponentTypesResult struct {
	Types  []string `json:"types"`
	Source string   `json:"_source"`
	Table  string   `json:"_table"`
	Site   string   `json:"_site"`
}

func (s *Service) ComponentTypes(ctx context.Context, site string) (*ComponentTypesResult, error) {
	if err := ValidateEntityID("site", site); err != nil {
		return nil, err
	}
	types, err := s.records.DistinctLabel(ctx, s.tables.Signal, sqlstore.LabelCoarse, site, "")
	if err != nil {
		return nil, retrievalError(err, "list component types")
	}
	return &ComponentTypesResult{Types: types, Source: SourceSQL, Table: s.tables.Signal.Table, Site: site}, nil
}

// NodeNamesResult lists the distinct node names of a site.
type NodeNamesResult struct {
	Nodes     []string `json:"nodes"`
	Source    string   `json:"_source"`
	Table     string   `json:"_table"`
	Site      string   `json:"_site"`
	Component *string  `json:"_component"`
}

// NodeNames lists node names, narrowed to one component when given.
func (s *Service) NodeNames(ctx context.Context, site, component string) (*NodeNamesResult, error) {
	if err := ValidateEntityID("site", site); err != nil {
		return nil, err
	}
	component = strings.TrimSpace(component)
	names, err := s.records.DistinctLabel(ctx, s.tables.Signal, sqlstore.LabelLeaf, site, component)
	if err != nil {
		return nil, retrievalError(err, "list node names")
	}
	res := &NodeNamesResult{Nodes: names, Source: SourceSQL, Table: s.tables.Signal.Table, Site: site}
	if component != "" {
		res.Component = &component
	}
	return res, nil
}

// NodesResult lists distinct (component, node) pairs of a site.
type NodesResult struct {
	Nodes  []sqlstore.LabelPair `json:"nodes"`
	Source string               `json:"_source"`
	Table  string               `json:"_table"`
	Site   string               `json:"_site"`
}

func (s *Service) Nodes(ctx context.Context, site string) (*NodesResult, error) {
	if err := ValidateEntityID("site", site); err != nil {
		return nil, err
	}
	pairs, err := s.records.DistinctPairs(ctx, s.tables.Signal, site)
	if err != nil {
		return nil, retrievalError(err, "list nodes")
	}
	return &NodesResult{Nodes: pairs, Source: SourceSQL, Table: s.tables.Signal.Table, Site: site}, nil
}

// SplitList parses a comma-separated filter, dropping blanks.
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if v := strings.TrimSpace(part); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// formatTime keeps fractional seconds; buckets are distinct raw timestamps.
func formatTime(t time.Time) string { return t.Format(time.RFC3339Nano) }

func formatTimePtr(t time.Time) *string {
	v := formatTime(t)
	return &v
}
