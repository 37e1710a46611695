package kpi

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/prometheus/common/model"

	"github.com/platformbuilds/workcell-kpi/internal/monitoring"
	"github.com/platformbuilds/workcell-kpi/internal/storage/sqlstore"
	"github.com/platformbuilds/workcell-kpi/internal/storage/victoria"
	"github.com/platformbuilds/workcell-kpi/internal/tracing"
)

// TimeseriesRequest is a filtered per-node/per-component series query.
type TimeseriesRequest struct {
	Site       string
	Metric     string
	Range      string
	Components []string
	Nodes      []string
}

type SeriesPayload struct {
	Key       string     `json:"key"`
	Kind      SeriesKind `json:"kind"`
	Component string     `json:"component"`
	NodeName  *string    `json:"node_name"`
	Time      []string   `json:"time"`
	Values    []*float64 `json:"values"`
}

// TimeseriesResult is the filtered timeseries response. Anchor and bounds
// are null when the site has no rows.
type TimeseriesResult struct {
	Site       string          `json:"site"`
	Metric     SeriesMetric    `json:"metric"`
	Range      string          `json:"range"`
	Series     []SeriesPayload `json:"series"`
	Source     string          `json:"_source"`
	Table      string          `json:"_table"`
	RateMode   RateMode        `json:"_rate_mode,omitempty"`
	AnchorTime *string         `json:"anchor_time"`
	TFrom      *string         `json:"t_from"`
	TTo        *string         `json:"t_to"`
}

// Timeseries folds signal rows in [anchor-range, anchor] into one series per
// node and, when components are filtered, one per component.
func (s *Service) Timeseries(ctx context.Context, req TimeseriesRequest) (*TimeseriesResult, error) {
	if err := ValidateEntityID("site", req.Site); err != nil {
		return nil, err
	}
	metric, err := ParseSeriesMetric(req.Metric)
	if err != nil {
		return nil, err
	}
	w, err := SeriesRange(req.Range)
	if err != nil {
		return nil, err
	}
	rangeName := strings.ToLower(strings.TrimSpace(req.Range))
	if rangeName == "" {
		rangeName = "30m"
	}
	ctx, span := tracing.StartOperationSpan(ctx, "timeseries", req.Site)
	defer span.End()

	p := s.Params()
	res := &TimeseriesResult{
		Site:   req.Site,
		Metric: metric,
		Range:  rangeName,
		Series: []SeriesPayload{},
		Source: SourceSQL,
		Table:  s.tables.Signal.Table,
	}
	if metric == MetricLatency {
		res.RateMode = p.LatencyMode
	}

	anchor, err := s.resolveAnchor(ctx, s.tables.Signal, req.Site)
	if err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}
	if !anchor.Found {
		monitoring.RecordResponse("timeseries", SourceNoData)
		return res, nil
	}

	from := anchor.Time.Add(-w.Duration())
	rows, err := s.records.Window(ctx, s.tables.Signal, sqlstore.WindowQuery{
		Entity:        req.Site,
		From:          from,
		To:            anchor.Time,
		Fields:        metric.fields(),
		RequireCoarse: true,
		RequireLeaf:   true,
		CoarseIn:      req.Components,
		LeafIn:        req.Nodes,
	})
	if err != nil {
		err = retrievalError(err, "fetch signal window")
		tracing.RecordError(span, err)
		return nil, err
	}

	agg := NewSeriesAggregator(metric, req.Components, req.Nodes)
	for _, r := range rows {
		agg.Add(r)
	}
	for _, ser := range agg.Result(p.LatencyMode) {
		out := SeriesPayload{
			Key:       ser.Key,
			Kind:      ser.Kind,
			Component: ser.Component,
			Time:      make([]string, len(ser.Times)),
			Values:    make([]*float64, len(ser.Values)),
		}
		if ser.Kind == KindNode {
			name := ser.NodeName
			out.NodeName = &name
		}
		for i := range ser.Times {
			out.Time[i] = formatTime(ser.Times[i])
			out.Values[i] = round(ser.Values[i], placesPct)
		}
		res.Series = append(res.Series, out)
	}

	res.AnchorTime = formatTimePtr(anchor.Time)
	res.TFrom = formatTimePtr(from)
	res.TTo = formatTimePtr(anchor.Time)
	monitoring.RecordResponse("timeseries", SourceSQL)
	return res, nil
}

var trendSignals = []string{"output_rate", "latency_s"}

var trendDurationRe = regexp.MustCompile(`^\d+[smhdw]$`)

// TrendPoint is one bucket of a trend series.
type TrendPoint struct {
	T string   `json:"t"`
	V *float64 `json:"v"`
}

// TrendResult is the TSDB trend response.
type TrendResult struct {
	Site       string       `json:"site"`
	Lookback   string       `json:"lookback"`
	Interval   string       `json:"interval"`
	Source     string       `json:"_source"`
	Fallback   string       `json:"_fallback,omitempty"`
	OutputRate []TrendPoint `json:"output_rate"`
	Latency    []TrendPoint `json:"latency_s"`
}

// trendDuration accepts only the plain n<unit> form; anything else, and
// zero, falls back to def.
func trendDuration(v, def string) (string, time.Duration) {
	if trendDurationRe.MatchString(v) {
		if d, err := model.ParseDuration(v); err == nil && d > 0 {
			return v, time.Duration(d)
		}
	}
	d, _ := model.ParseDuration(def)
	return def, time.Duration(d)
}

// Trend returns bucketed averages of output_rate and latency_s for a site
// over [now-lookback, now]. An empty result is replaced by the simulated
// series.
func (s *Service) Trend(ctx context.Context, site, lookback, interval string) (*TrendResult, error) {
	if err := ValidateEntityID("site", site); err != nil {
		return nil, err
	}
	lookback, lookbackDur := trendDuration(lookback, s.trendLookback)
	interval, step := trendDuration(interval, s.trendInterval)
	if s.trend == nil {
		return nil, retrievalError(errNoTrendStore, "trend query")
	}

	ctx, span := tracing.StartOperationSpan(ctx, "trend", site)
	defer span.End()

	end := s.now()
	samples, err := s.trend.QueryTrend(ctx, victoria.TrendQuery{
		Site:    site,
		Signals: trendSignals,
		Start:   end.Add(-lookbackDur),
		End:     end,
		Step:    step,
	})
	if err != nil {
		err = retrievalError(err, "trend query")
		tracing.RecordError(span, err)
		return nil, err
	}
	if len(samples) == 0 {
		return s.simulatedTrend(lookback, interval), nil
	}

	res := &TrendResult{
		Site:       site,
		Lookback:   lookback,
		Interval:   interval,
		Source:     SourceTSDB,
		OutputRate: []TrendPoint{},
		Latency:    []TrendPoint{},
	}
	for _, smp := range samples {
		switch smp.Signal {
		case "output_rate":
			res.OutputRate = append(res.OutputRate, TrendPoint{T: formatTime(smp.Time), V: round(smp.Value, placesThroughput)})
		case "latency_s":
			res.Latency = append(res.Latency, TrendPoint{T: formatTime(smp.Time), V: round(smp.Value, placesSeconds)})
		}
	}
	monitoring.RecordResponse("trend", SourceTSDB)
	return res, nil
}

func (s *Service) simulatedTrend(lookback, interval string) *TrendResult {
	syn := Synthesize(s.now(), trendSignals...)
	points := func(metric string) []TrendPoint {
		vals := syn.Pointers(metric)
		out := make([]TrendPoint, len(vals))
		for i, v := range vals {
			out[i] = TrendPoint{T: formatTime(syn.Times[i]), V: v}
		}
		return out
	}
	monitoring.RecordFallback("trend")
	monitoring.RecordResponse("trend", SourceSimulated)
	return &TrendResult{
		Site:       "SIM",
		Lookback:   lookback,
		Interval:   interval,
		Source:     SourceSimulated,
		Fallback:   FallbackNoData,
		OutputRate: points("output_rate"),
		Latency:    points("latency_s"),
	}
}
