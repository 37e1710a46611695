package kpi

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/platformbuilds/workcell-kpi/internal/storage/sqlstore"
	"github.com/platformbuilds/workcell-kpi/internal/storage/victoria"
	"github.com/platformbuilds/workcell-kpi/pkg/cache"
	"github.com/platformbuilds/workcell-kpi/pkg/logger"
)

// fakeRecords emulates the relational store over in-memory rows keyed by
// table name. Window honours the time range and IN filters.
type fakeRecords struct {
	mu      sync.Mutex
	rows    map[string]map[string][]sqlstore.Record // table -> entity -> rows
	labels  map[string][]string                     // table/label/entity -> names
	pairs   []sqlstore.LabelPair
	latest  []sqlstore.Record
	err     error
	windows []sqlstore.WindowQuery
	calls   map[string]int
}

func newFakeRecords() *fakeRecords {
	return &fakeRecords{
		rows:   make(map[string]map[string][]sqlstore.Record),
		labels: make(map[string][]string),
		calls:  make(map[string]int),
	}
}

func (f *fakeRecords) add(table, entity string, recs ...sqlstore.Record) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.rows[table] == nil {
		f.rows[table] = make(map[string][]sqlstore.Record)
	}
	f.rows[table][entity] = append(f.rows[table][entity], recs...)
}

func labelKey(table string, l sqlstore.Label, entity string) string {
	return table + "/" + l.String() + "/" + entity
}

func (f *fakeRecords) setLabels(table string, l sqlstore.Label, entity string, names ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.labels[labelKey(table, l, entity)] = names
}

func (f *fakeRecords) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakeRecords) MaxTime(_ context.Context, spec sqlstore.TableSpec, entity string) (time.Time, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["max_time"]++
	if f.err != nil {
		return time.Time{}, false, f.err
	}
	var max time.Time
	found := false
	for _, r := range f.rows[spec.Table][entity] {
		if !found || r.Time.After(max) {
			max, found = r.Time, true
		}
	}
	return max, found, nil
}

func contains(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

func (f *fakeRecords) Window(_ context.Context, spec sqlstore.TableSpec, wq sqlstore.WindowQuery) ([]sqlstore.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["window"]++
	f.windows = append(f.windows, wq)
	if f.err != nil {
		return nil, f.err
	}
	var out []sqlstore.Record
	for _, r := range f.rows[spec.Table][wq.Entity] {
		if r.Time.Before(wq.From) || r.Time.After(wq.To) {
			continue
		}
		if len(wq.CoarseIn) > 0 && !contains(wq.CoarseIn, r.Coarse) {
			continue
		}
		if len(wq.LeafIn) > 0 && !contains(wq.LeafIn, r.Leaf) {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (f *fakeRecords) DistinctLabel(_ context.Context, spec sqlstore.TableSpec, label sqlstore.Label, entity, coarseEquals string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["distinct_"+label.String()]++
	if f.err != nil {
		return nil, f.err
	}
	key := labelKey(spec.Table, label, entity)
	if coarseEquals != "" {
		key += "/" + coarseEquals
	}
	return append([]string{}, f.labels[key]...), nil
}

func (f *fakeRecords) DistinctPairs(_ context.Context, _ sqlstore.TableSpec, _ string) ([]sqlstore.LabelPair, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["distinct_pairs"]++
	if f.err != nil {
		return nil, f.err
	}
	return append([]sqlstore.LabelPair{}, f.pairs...), nil
}

func (f *fakeRecords) LatestPerLeaf(_ context.Context, _ sqlstore.TableSpec, _ string, since time.Time, _ sqlstore.Field) ([]sqlstore.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["latest_per_leaf"]++
	if f.err != nil {
		return nil, f.err
	}
	var out []sqlstore.Record
	for _, r := range f.latest {
		if r.Time.After(since) {
			out = append(out, r)
		}
	}
	return out, nil
}

type fakeTrend struct {
	samples []victoria.Sample
	err     error
	last    victoria.TrendQuery
}

func (f *fakeTrend) QueryTrend(_ context.Context, q victoria.TrendQuery) ([]victoria.Sample, error) {
	f.last = q
	return f.samples, f.err
}

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

var testNow = time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC)

func testTables() Tables {
	return Tables{
		Line:   sqlstore.LineSpec("line_summary"),
		Node:   sqlstore.NodeSpec("node_snapshot"),
		Signal: sqlstore.SignalSpec("signal_log"),
	}
}

func f64(v float64) *float64 { return &v }

func lineRow(t time.Time, total, bad, latency *float64) sqlstore.Record {
	return sqlstore.Record{Time: t, Values: map[sqlstore.Field]*float64{
		sqlstore.FieldTotal:   total,
		sqlstore.FieldBad:     bad,
		sqlstore.FieldLatency: latency,
	}}
}

type fixture struct {
	svc     *Service
	records *fakeRecords
	trend   *fakeTrend
	clock   *testClock
	store   cache.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := &testClock{t: testNow}
	records := newFakeRecords()
	trend := &fakeTrend{}
	store := cache.NewMemoryStore(logger.Nop())
	tables := testTables()
	status := NewStatusCache(store, records, tables.Node, StatusCacheOptions{
		TTL:          300 * time.Second,
		StatusWindow: time.Hour,
		Defaults:     map[string][]string{"A1": {"robot-a", "robot-b", "conveyor-a", "conveyor-b"}},
		Now:          clock.Now,
	}, logger.Nop())
	svc, err := NewService(records, trend, status, Options{
		Tables: tables,
		Params: DefaultParams(),
		Now:    clock.Now,
	}, logger.Nop())
	require.NoError(t, err)
	return &fixture{svc: svc, records: records, trend: trend, clock: clock, store: store}
}
