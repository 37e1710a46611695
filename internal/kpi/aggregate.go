package kpi

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/platformbuilds/workcell-kpi/internal/storage/sqlstore"
)

// RateMode selects how rate metrics (latency, cycle time) are reduced.
type RateMode string

const (
	RateMean RateMode = "mean"
	RateSum  RateMode = "sum"
)

func ParseRateMode(s string) (RateMode, error) {
	switch RateMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", RateMean:
		return RateMean, nil
	case RateSum:
		return RateSum, nil
	}
	return "", validationf("latency mode must be mean or sum")
}

type fold struct {
	sum float64
	n   int
}

func (f *fold) add(v *float64) {
	if v == nil || math.IsNaN(*v) {
		return
	}
	f.sum += *v
	f.n++
}

func (f fold) total() *float64 {
	if f.n == 0 {
		return nil
	}
	return ptr(f.sum)
}

func (f fold) mean() *float64 {
	if f.n == 0 {
		return nil
	}
	return ptr(f.sum / float64(f.n))
}

// Aggregate is the folded state of one (key, timestamp) bucket.
type Aggregate struct {
	latency    fold
	ratioTotal float64
	ratioBad   float64
	ratioN     int

	// line-summary fields
	total  fold
	bad    fold
	queue  fold
	wip    fold
	energy fold
}

// AddRate folds one rate observation; nil is skipped.
func (a *Aggregate) AddRate(v *float64) { a.latency.add(v) }

// AddRatio folds a total/bad pair. Rows missing either count are skipped.
func (a *Aggregate) AddRatio(total, bad *float64) {
	if total == nil || bad == nil {
		return
	}
	a.ratioTotal += math.Max(*total, 0)
	a.ratioBad += math.Max(*bad, 0)
	a.ratioN++
}

// Rate reduces the folded rate observations per mode.
func (a Aggregate) Rate(mode RateMode) *float64 {
	if mode == RateSum {
		return a.latency.total()
	}
	return a.latency.mean()
}

// Quality is the good share of the folded ratio counts, in percent.
func (a Aggregate) Quality() *float64 {
	if a.ratioN == 0 {
		return nil
	}
	return qualityPct(&a.ratioTotal, &a.ratioBad)
}

func (a *Aggregate) addLine(r sqlstore.Record) {
	a.latency.add(r.Value(sqlstore.FieldLatency))
	a.total.add(r.Value(sqlstore.FieldTotal))
	a.bad.add(r.Value(sqlstore.FieldBad))
	a.queue.add(r.Value(sqlstore.FieldQueueDelay))
	a.wip.add(r.Value(sqlstore.FieldWIP))
	a.energy.add(r.Value(sqlstore.FieldEnergy))
}

// lineInputs turns a line-summary bucket into derivation inputs. Counts and
// energy are summed across rows sharing the timestamp, durations averaged.
func (a Aggregate) lineInputs(runTimeSec float64) Inputs {
	return Inputs{
		Total:      a.total.total(),
		Bad:        a.bad.total(),
		Latency:    a.latency.mean(),
		RunTimeSec: runTimeSec,
	}
}

// bucketSet keeps one Aggregate per distinct timestamp.
type bucketSet struct {
	byTime map[int64]*Aggregate
	times  map[int64]time.Time
}

func newBucketSet() *bucketSet {
	return &bucketSet{byTime: make(map[int64]*Aggregate), times: make(map[int64]time.Time)}
}

func (b *bucketSet) at(t time.Time) *Aggregate {
	k := t.UnixNano()
	agg, ok := b.byTime[k]
	if !ok {
		agg = &Aggregate{}
		b.byTime[k] = agg
		b.times[k] = t
	}
	return agg
}

type bucket struct {
	Time time.Time
	Agg  *Aggregate
}

func (b *bucketSet) sorted() []bucket {
	keys := make([]int64, 0, len(b.byTime))
	for k := range b.byTime {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	out := make([]bucket, len(keys))
	for i, k := range keys {
		out[i] = bucket{Time: b.times[k], Agg: b.byTime[k]}
	}
	return out
}

// foldLine folds line-summary rows by timestamp.
func foldLine(rows []sqlstore.Record) []bucket {
	set := newBucketSet()
	for _, r := range rows {
		set.at(r.Time).addLine(r)
	}
	return set.sorted()
}

// SeriesMetric is the metric a filtered timeseries reports.
type SeriesMetric string

const (
	MetricQuality SeriesMetric = "quality_pct"
	MetricLatency SeriesMetric = "latency"
)

func ParseSeriesMetric(s string) (SeriesMetric, error) {
	switch SeriesMetric(strings.ToLower(strings.TrimSpace(s))) {
	case "", MetricQuality:
		return MetricQuality, nil
	case MetricLatency:
		return MetricLatency, nil
	}
	return "", validationf("metric must be 'quality_pct' or 'latency'")
}

func (m SeriesMetric) fields() []sqlstore.Field {
	if m == MetricLatency {
		return []sqlstore.Field{sqlstore.FieldLatency}
	}
	return []sqlstore.Field{sqlstore.FieldTotal, sqlstore.FieldBad}
}

// SeriesKind is the grouping level of a series.
type SeriesKind string

const (
	KindNode      SeriesKind = "node"
	KindComponent SeriesKind = "component"
)

type keyedSeries struct {
	key       string
	kind      SeriesKind
	component string
	node      string
	buckets   *bucketSet
}

// SeriesAggregator folds signal rows into a node series per leaf label and,
// when a component filter is set, a component series per coarse label.
// Series keep first-seen order.
type SeriesAggregator struct {
	metric     SeriesMetric
	components map[string]struct{}
	nodes      map[string]struct{}
	order      []*keyedSeries
	byKey      map[string]*keyedSeries
}

func NewSeriesAggregator(metric SeriesMetric, components, nodes []string) *SeriesAggregator {
	return &SeriesAggregator{
		metric:     metric,
		components: toSet(components),
		nodes:      toSet(nodes),
		byKey:      make(map[string]*keyedSeries),
	}
}

func toSet(vals []string) map[string]struct{} {
	if len(vals) == 0 {
		return nil
	}
	out := make(map[string]struct{}, len(vals))
	for _, v := range vals {
		out[v] = struct{}{}
	}
	return out
}

func (a *SeriesAggregator) series(key string, kind SeriesKind, component, node string) *keyedSeries {
	s, ok := a.byKey[key]
	if !ok {
		s = &keyedSeries{key: key, kind: kind, component: component, node: node, buckets: newBucketSet()}
		a.byKey[key] = s
		a.order = append(a.order, s)
	}
	return s
}

func (a *SeriesAggregator) fold(agg *Aggregate, r sqlstore.Record) {
	if a.metric == MetricLatency {
		agg.AddRate(r.Value(sqlstore.FieldLatency))
		return
	}
	agg.AddRatio(r.Value(sqlstore.FieldTotal), r.Value(sqlstore.FieldBad))
}

// Add folds one row. Rows without both labels are ignored.
func (a *SeriesAggregator) Add(r sqlstore.Record) {
	comp, node := strings.TrimSpace(r.Coarse), strings.TrimSpace(r.Leaf)
	if comp == "" || node == "" {
		return
	}
	if _, ok := a.nodes[node]; a.nodes == nil || ok {
		s := a.series("node:"+node, KindNode, comp, node)
		a.fold(s.buckets.at(r.Time), r)
	}
	if a.components != nil {
		if _, ok := a.components[comp]; ok {
			s := a.series("component:"+comp, KindComponent, comp, "")
			a.fold(s.buckets.at(r.Time), r)
		}
	}
}

// Series is one folded series as parallel time/value slices.
type Series struct {
	Key       string
	Kind      SeriesKind
	Component string
	NodeName  string
	Times     []time.Time
	Values    []*float64
}

// Result reduces every series. Values are at full precision.
func (a *SeriesAggregator) Result(mode RateMode) []Series {
	out := make([]Series, 0, len(a.order))
	for _, s := range a.order {
		bs := s.buckets.sorted()
		ser := Series{
			Key:       s.key,
			Kind:      s.kind,
			Component: s.component,
			NodeName:  s.node,
			Times:     make([]time.Time, len(bs)),
			Values:    make([]*float64, len(bs)),
		}
		for i, b := range bs {
			ser.Times[i] = b.Time
			if a.metric == MetricLatency {
				ser.Values[i] = b.Agg.Rate(mode)
			} else {
				ser.Values[i] = b.Agg.Quality()
			}
		}
		out = append(out, ser)
	}
	return out
}
