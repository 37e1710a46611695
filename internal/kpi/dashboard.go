package kpi

import (
	"context"
	"strings"

	"github.com/platformbuilds/workcell-kpi/internal/monitoring"
	"github.com/platformbuilds/workcell-kpi/internal/storage/sqlstore"
	"github.com/platformbuilds/workcell-kpi/internal/tracing"
)

var lineFields = []sqlstore.Field{
	sqlstore.FieldTotal,
	sqlstore.FieldBad,
	sqlstore.FieldLatency,
	sqlstore.FieldQueueDelay,
	sqlstore.FieldWIP,
	sqlstore.FieldEnergy,
}

// DashboardResult is the single-point KPI response. Every metric is null
// unless Source is "ok".
type DashboardResult struct {
	TotalCount       *float64 `json:"total_count"`
	YieldPct         *float64 `json:"yield_pct"`
	CycleTimeSec     *float64 `json:"cycle_time_s"`
	TaktAdherencePct *float64 `json:"takt_adherence_pct"`
	ThroughputUPH    *float64 `json:"throughput_uph"`
	QueueTimeSec     *float64 `json:"queue_time_s"`
	WIPCount         *float64 `json:"wip_ct"`
	RunTimeHours     *float64 `json:"run_time_h"`
	PerformancePct   *float64 `json:"performance_pct"`
	QualityRatioPct  *float64 `json:"quality_ratio_pct"`
	AvailabilityPct  *float64 `json:"availability_pct"`
	OEEPct           *float64 `json:"oee_pct"`
	EnergyKWh        *float64 `json:"energy_kwh"`
	Source           string   `json:"_source"`
	Time             *string  `json:"_time,omitempty"`
	AgeSec           *float64 `json:"_age_sec,omitempty"`
	Window           string   `json:"_window"`
}

// Dashboard computes the KPI set of the newest line-summary bucket. A blank
// lookback takes the configured default. strict keeps the lookback unit as
// given instead of normalising weeks to days.
func (s *Service) Dashboard(ctx context.Context, entity, lookback string, strict bool) (*DashboardResult, error) {
	if err := ValidateEntityID("line_id", entity); err != nil {
		return nil, err
	}
	ctx, span := tracing.StartOperationSpan(ctx, "dashboard", entity)
	defer span.End()

	p := s.Params()
	if strings.TrimSpace(lookback) == "" {
		lookback = s.defaultLookback
	}
	w := ParseLookback(lookback)
	if strict {
		w = ParseLookbackStrict(lookback)
	}

	anchor, err := s.resolveAnchor(ctx, s.tables.Line, entity)
	if err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}
	now := s.now()
	if src := freshness(anchor, now, p.RecentThreshold); src != SourceOK {
		monitoring.RecordResponse("dashboard", src)
		return &DashboardResult{Source: src, Window: w.IntervalExpr()}, nil
	}

	rows, err := s.records.Window(ctx, s.tables.Line, sqlstore.WindowQuery{
		Entity: entity,
		From:   anchor.Time.Add(-w.Duration()),
		To:     anchor.Time,
		Fields: lineFields,
	})
	if err != nil {
		err = retrievalError(err, "fetch line window")
		tracing.RecordError(span, err)
		return nil, err
	}
	buckets := foldLine(rows)
	if len(buckets) == 0 {
		// anchor row disappeared between the two queries
		monitoring.RecordResponse("dashboard", SourceNoData)
		return &DashboardResult{Source: SourceNoData, Window: w.IntervalExpr()}, nil
	}

	last := buckets[len(buckets)-1]
	in := last.Agg.lineInputs(w.Seconds())
	m := Derive(in, p)
	age := anchor.Age(now).Seconds()

	res := &DashboardResult{
		TotalCount:       in.Total,
		YieldPct:         round(m.Quality, placesPct),
		CycleTimeSec:     round(in.Latency, placesSeconds),
		TaktAdherencePct: round(m.TaktAdherence, placesPct),
		ThroughputUPH:    round(m.Throughput, placesThroughput),
		QueueTimeSec:     round(last.Agg.queue.mean(), placesSeconds),
		WIPCount:         round(last.Agg.wip.mean(), placesThroughput),
		RunTimeHours:     round(ptr(w.Seconds()/3600), placesPct),
		PerformancePct:   round(m.Performance, placesPct),
		QualityRatioPct:  round(m.Quality, placesPct),
		AvailabilityPct:  round(m.Availability, placesPct),
		OEEPct:           round(m.OEE, placesPct),
		EnergyKWh:        round(last.Agg.energy.total(), placesEnergy),
		Source:           SourceOK,
		Time:             formatTimePtr(last.Time),
		AgeSec:           &age,
		Window:           w.IntervalExpr(),
	}
	monitoring.RecordResponse("dashboard", SourceOK)
	return res, nil
}
