package victoria

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
	"go.opentelemetry.io/otel/attribute"

	"github.com/platformbuilds/workcell-kpi/internal/config"
	"github.com/platformbuilds/workcell-kpi/internal/monitoring"
	"github.com/platformbuilds/workcell-kpi/internal/tracing"
	"github.com/platformbuilds/workcell-kpi/pkg/logger"
)

// Sample is one bucketed point of a signal. Value is nil for NaN buckets.
type Sample struct {
	Signal string
	Time   time.Time
	Value  *float64
}

// TrendQuery asks for the bucketed average of the given signals for one site.
type TrendQuery struct {
	Site    string
	Signals []string
	Start   time.Time
	End     time.Time
	Step    time.Duration
}

// Client queries VictoriaMetrics through its Prometheus-compatible API.
// Requests rotate across the configured endpoints; a failed request is not
// retried on another endpoint.
type Client struct {
	apis        []v1.API
	endpoints   []string
	next        uint32
	timeout     time.Duration
	maxPoints   int
	measurement string
	siteLabel   string
	signalLabel string
	logger      logger.Logger
}

type basicAuthTransport struct {
	username, password string
	next               http.RoundTripper
}

func (t basicAuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())
	r.SetBasicAuth(t.username, t.password)
	return t.next.RoundTrip(r)
}

func NewClient(cfg config.VictoriaMetricsConfig, trend config.TrendConfig, log logger.Logger) (*Client, error) {
	if len(cfg.Endpoints) == 0 {
		return nil, fmt.Errorf("victoria: no endpoints configured")
	}
	if log == nil {
		log = logger.Nop()
	}
	var rt http.RoundTripper = api.DefaultRoundTripper
	if cfg.Username != "" {
		rt = basicAuthTransport{username: cfg.Username, password: cfg.Password, next: rt}
	}

	c := &Client{
		timeout:     cfg.TimeoutDuration(),
		maxPoints:   trend.MaxPoints,
		measurement: trend.Measurement,
		siteLabel:   trend.SiteLabel,
		signalLabel: trend.SignalLabel,
		logger:      log,
	}
	for _, ep := range cfg.Endpoints {
		ac, err := api.NewClient(api.Config{Address: strings.TrimRight(ep, "/"), RoundTripper: rt})
		if err != nil {
			return nil, fmt.Errorf("victoria: endpoint %s: %w", ep, err)
		}
		c.apis = append(c.apis, v1.NewAPI(ac))
		c.endpoints = append(c.endpoints, ep)
	}
	return c, nil
}

func (c *Client) pick() (v1.API, string) {
	i := int(atomic.AddUint32(&c.next, 1)-1) % len(c.apis)
	return c.apis[i], c.endpoints[i]
}

// BuildQuery renders the bucketed-average PromQL for a trend query. Site and
// signal values are validated by the caller; label and metric names come
// from configuration.
func (c *Client) BuildQuery(q TrendQuery) string {
	return fmt.Sprintf(`avg by (%s) (avg_over_time(%s{%s=%q,%s=~%q}[%s]))`,
		c.signalLabel, c.measurement,
		c.siteLabel, q.Site,
		c.signalLabel, strings.Join(q.Signals, "|"),
		model.Duration(q.Step).String(),
	)
}

// ClampStep widens step so the range holds at most maxPoints buckets.
func ClampStep(start, end time.Time, step time.Duration, maxPoints int) time.Duration {
	if step <= 0 {
		step = time.Minute
	}
	span := end.Sub(start)
	if maxPoints <= 0 || span <= 0 {
		return step
	}
	if int64(span/step) <= int64(maxPoints) {
		return step
	}
	min := time.Duration(math.Ceil(float64(span) / float64(maxPoints)))
	return min.Truncate(time.Second) + time.Second
}

// QueryTrend runs a range query and flattens the matrix into samples sorted
// by signal then time.
func (c *Client) QueryTrend(ctx context.Context, q TrendQuery) ([]Sample, error) {
	q.Step = ClampStep(q.Start, q.End, q.Step, c.maxPoints)
	query := c.BuildQuery(q)
	client, endpoint := c.pick()

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	ctx, span := tracing.StartStoreSpan(ctx, "tsdb", "query_range",
		attribute.String("tsdb.endpoint", endpoint),
		attribute.String("tsdb.site", q.Site),
	)
	defer span.End()

	c.logger.Debug("tsdb query", "endpoint", endpoint, "query", query, "step", q.Step, "start", q.Start, "end", q.End)

	start := time.Now()
	val, warnings, err := client.QueryRange(ctx, query, v1.Range{Start: q.Start, End: q.End, Step: q.Step})
	elapsed := time.Since(start)
	for _, w := range warnings {
		c.logger.Warn("tsdb query warning", "endpoint", endpoint, "warning", w)
	}

	var samples []Sample
	if err == nil {
		samples, err = flatten(val, c.signalLabel)
	}
	monitoring.RecordStoreQuery("tsdb", "query_range", elapsed, err == nil)
	tracing.RecordQueryMetrics(span, elapsed, len(samples), err)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
			return nil, errors.WithSecondaryError(errors.Wrapf(ctxErr, "tsdb query_range on %s", endpoint), err)
		}
		return nil, errors.Wrapf(err, "tsdb query_range on %s", endpoint)
	}
	return samples, nil
}

func flatten(val model.Value, signalLabel string) ([]Sample, error) {
	matrix, ok := val.(model.Matrix)
	if !ok {
		return nil, fmt.Errorf("unexpected result type %s", val.Type())
	}
	out := []Sample{}
	for _, stream := range matrix {
		signal := string(stream.Metric[model.LabelName(signalLabel)])
		if signal == "" {
			continue
		}
		for _, p := range stream.Values {
			s := Sample{Signal: signal, Time: p.Timestamp.Time().UTC()}
			if v := float64(p.Value); !math.IsNaN(v) && !math.IsInf(v, 0) {
				s.Value = &v
			}
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Signal != out[j].Signal {
			return out[i].Signal < out[j].Signal
		}
		return out[i].Time.Before(out[j].Time)
	})
	return out, nil
}

// Ping checks that the next endpoint answers a trivial instant query.
func (c *Client) Ping(ctx context.Context) error {
	client, endpoint := c.pick()
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	if _, _, err := client.Query(ctx, "1", time.Now()); err != nil {
		return errors.Wrapf(err, "tsdb ping %s", endpoint)
	}
	return nil
}
