package kpi

import (
	"context"
	"time"

	"github.com/platformbuilds/workcell-kpi/internal/monitoring"
	"github.com/platformbuilds/workcell-kpi/internal/storage/sqlstore"
	"github.com/platformbuilds/workcell-kpi/internal/tracing"
)

// LineSeries holds time-aligned arrays, one entry per distinct timestamp.
type LineSeries struct {
	Time          []string   `json:"time"`
	Quality       []*float64 `json:"quality_pct"`
	Performance   []*float64 `json:"performance_pct"`
	Availability  []*float64 `json:"availability_pct"`
	OEE           []*float64 `json:"oee_pct"`
	Throughput    []*float64 `json:"throughput_uph"`
	Latency       []*float64 `json:"latency_s"`
	TaktAdherence []*float64 `json:"takt_adherence_pct"`
	Energy        []*float64 `json:"energy_kwh"`
}

type AnalyticsMeta struct {
	LineID          string   `json:"line_id"`
	Range           string   `json:"range"`
	IntervalExpr    string   `json:"interval_expr"`
	AnchorTime      *string  `json:"anchor_time"`
	NodeNames       []string `json:"node_names"`
	IdealLatencySec float64  `json:"ideal_latency_sec"`
	TargetStepSec   float64  `json:"target_step_sec"`
	RunTimeSec      *float64 `json:"run_time_sec"`
	Source          string   `json:"_source"`
	Fallback        string   `json:"_fallback,omitempty"`
}

// AnalyticsResult is the multi-point analytics response.
type AnalyticsResult struct {
	LineTS      LineSeries           `json:"line_ts"`
	LatencyDist map[string][]float64 `json:"latency_dist"`
	Meta        AnalyticsMeta        `json:"_meta"`
}

var analyticsMetrics = []string{
	"quality_pct", "performance_pct", "availability_pct", "oee_pct",
	"throughput_uph", "latency_s", "takt_adherence_pct", "energy_kwh",
}

// Analytics builds the line KPI series over a fixed range ending at the
// line's anchor, plus per-node latency distributions. With no data it
// returns the simulated series.
func (s *Service) Analytics(ctx context.Context, entity, rangeName string) (*AnalyticsResult, error) {
	if err := ValidateEntityID("line_id", entity); err != nil {
		return nil, err
	}
	w, err := AnalyticsRange(rangeName)
	if err != nil {
		return nil, err
	}
	if rangeName == "" {
		rangeName = "24h"
	}
	ctx, span := tracing.StartOperationSpan(ctx, "analytics", entity)
	defer span.End()

	p := s.Params()
	anchor, err := s.resolveAnchor(ctx, s.tables.Line, entity)
	if err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}
	if !anchor.Found {
		return s.simulatedAnalytics(entity, rangeName, w, p), nil
	}

	from := anchor.Time.Add(-w.Duration())
	rows, err := s.records.Window(ctx, s.tables.Line, sqlstore.WindowQuery{
		Entity: entity,
		From:   from,
		To:     anchor.Time,
		Fields: []sqlstore.Field{sqlstore.FieldTotal, sqlstore.FieldBad, sqlstore.FieldLatency, sqlstore.FieldEnergy},
	})
	if err != nil {
		err = retrievalError(err, "fetch line window")
		tracing.RecordError(span, err)
		return nil, err
	}
	buckets := foldLine(rows)
	if len(buckets) == 0 {
		return s.simulatedAnalytics(entity, rangeName, w, p), nil
	}

	observed := buckets[len(buckets)-1].Time.Sub(buckets[0].Time).Seconds()

	ts := LineSeries{}
	for _, b := range buckets {
		in := b.Agg.lineInputs(observed)
		m := Derive(in, p)
		ts.Time = append(ts.Time, formatTime(b.Time))
		ts.Quality = append(ts.Quality, round(m.Quality, placesPct))
		ts.Performance = append(ts.Performance, round(m.Performance, placesPct))
		ts.Availability = append(ts.Availability, round(m.Availability, placesPct))
		ts.OEE = append(ts.OEE, round(m.OEE, placesPct))
		ts.Throughput = append(ts.Throughput, round(m.Throughput, placesThroughput))
		ts.Latency = append(ts.Latency, round(in.Latency, placesSeconds))
		ts.TaktAdherence = append(ts.TaktAdherence, round(m.TaktAdherence, placesPct))
		ts.Energy = append(ts.Energy, round(b.Agg.energy.total(), placesEnergy))
	}

	names, err := s.records.DistinctLabel(ctx, s.tables.Node, sqlstore.LabelLeaf, entity, "")
	if err != nil {
		err = retrievalError(err, "list node names")
		tracing.RecordError(span, err)
		return nil, err
	}
	dist, err := s.latencyDist(ctx, entity, names, from, anchor.Time)
	if err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}

	monitoring.RecordResponse("analytics", SourceOK)
	return &AnalyticsResult{
		LineTS:      ts,
		LatencyDist: dist,
		Meta: AnalyticsMeta{
			LineID:          entity,
			Range:           rangeName,
			IntervalExpr:    w.IntervalExpr(),
			AnchorTime:      formatTimePtr(anchor.Time),
			NodeNames:       names,
			IdealLatencySec: p.IdealLatencySec,
			TargetStepSec:   p.TargetStepSec,
			RunTimeSec:      ptr(observed),
			Source:          SourceOK,
		},
	}, nil
}

// latencyDist collects the raw latency readings of each node in the window.
// Every listed node gets an entry, possibly empty.
func (s *Service) latencyDist(ctx context.Context, entity string, names []string, from, to time.Time) (map[string][]float64, error) {
	dist := make(map[string][]float64, len(names))
	if len(names) == 0 {
		return dist, nil
	}
	for _, n := range names {
		dist[n] = []float64{}
	}
	rows, err := s.records.Window(ctx, s.tables.Node, sqlstore.WindowQuery{
		Entity:      entity,
		From:        from,
		To:          to,
		Fields:      []sqlstore.Field{sqlstore.FieldLatency},
		RequireLeaf: true,
		LeafIn:      names,
		NonNull:     []sqlstore.Field{sqlstore.FieldLatency},
	})
	if err != nil {
		return nil, retrievalError(err, "fetch node latency")
	}
	for _, r := range rows {
		v := r.Value(sqlstore.FieldLatency)
		if v == nil {
			continue
		}
		if _, ok := dist[r.Leaf]; ok {
			dist[r.Leaf] = append(dist[r.Leaf], *v)
		}
	}
	return dist, nil
}

func (s *Service) simulatedAnalytics(entity, rangeName string, w Window, p Params) *AnalyticsResult {
	syn := Synthesize(s.now(), analyticsMetrics...)
	ts := LineSeries{
		Quality:       syn.Pointers("quality_pct"),
		Performance:   syn.Pointers("performance_pct"),
		Availability:  syn.Pointers("availability_pct"),
		OEE:           syn.Pointers("oee_pct"),
		Throughput:    syn.Pointers("throughput_uph"),
		Latency:       syn.Pointers("latency_s"),
		TaktAdherence: syn.Pointers("takt_adherence_pct"),
		Energy:        syn.Pointers("energy_kwh"),
	}
	for _, t := range syn.Times {
		ts.Time = append(ts.Time, formatTime(t))
	}
	monitoring.RecordFallback("analytics")
	monitoring.RecordResponse("analytics", SourceSimulated)
	return &AnalyticsResult{
		LineTS:      ts,
		LatencyDist: map[string][]float64{},
		Meta: AnalyticsMeta{
			LineID:          entity,
			Range:           rangeName,
			IntervalExpr:    w.IntervalExpr(),
			NodeNames:       []string{},
			IdealLatencySec: p.IdealLatencySec,
			TargetStepSec:   p.TargetStepSec,
			Source:          SourceSimulated,
			Fallback:        FallbackNoData,
		},
	}
}
