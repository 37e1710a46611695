package kpi

import (
	"context"
	"encoding/json"
	"math"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/platformbuilds/workcell-kpi/internal/storage/sqlstore"
	"github.com/platformbuilds/workcell-kpi/pkg/cache"
	"github.com/platformbuilds/workcell-kpi/pkg/logger"
)

// Device list provenance.
const (
	DevicesCache   = "cache"
	DevicesLive    = "live"
	DevicesStatic  = "static_default"
	DevicesEmpty   = "empty"
	cacheKeyPrefix = "devices:"
)

// StatusSnapshot is the latest health reading of one device.
type StatusSnapshot struct {
	Status *int    `json:"status"`
	Time   string  `json:"time"`
	AgeSec float64 `json:"age_sec"`
	Recent bool    `json:"recent"`
}

// DevicesResult is the device status response.
type DevicesResult struct {
	Devices        []string                  `json:"devices"`
	Source         string                    `json:"_source"`
	Status         map[string]StatusSnapshot `json:"status"`
	StatusInterval string                    `json:"_status_interval,omitempty"`
}

type statusEntry struct {
	Names       []string                  `json:"names"`
	Status      map[string]StatusSnapshot `json:"status"`
	PopulatedAt time.Time                 `json:"populated_at"`
}

// StatusCacheOptions configures a StatusCache. Zero values take defaults.
type StatusCacheOptions struct {
	TTL          time.Duration
	StatusWindow time.Duration
	Defaults     map[string][]string
	Now          func() time.Time
}

// StatusCache serves per-entity device lists and latest health, refreshed
// synchronously once an entry is older than the TTL. Entries are replaced
// whole, so concurrent refills only cost a redundant query.
type StatusCache struct {
	store    cache.Store
	records  RecordStore
	spec     sqlstore.TableSpec
	ttl      time.Duration
	window   Window
	defaults map[string][]string
	now      func() time.Time
	logger   logger.Logger
}

func NewStatusCache(store cache.Store, records RecordStore, spec sqlstore.TableSpec, opts StatusCacheOptions, log logger.Logger) *StatusCache {
	if log == nil {
		log = logger.Nop()
	}
	if opts.TTL <= 0 {
		opts.TTL = 300 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &StatusCache{
		store:    store,
		records:  records,
		spec:     spec,
		ttl:      opts.TTL,
		window:   windowFor(opts.StatusWindow),
		defaults: opts.Defaults,
		now:      opts.Now,
		logger:   log,
	}
}

// windowFor expresses a status window in the largest whole unit.
func windowFor(d time.Duration) Window {
	if d <= 0 {
		return Window{Count: 1, Unit: UnitHour}
	}
	for _, u := range []Unit{UnitDay, UnitHour, UnitMinute} {
		if d%u.Size() == 0 {
			return Window{Count: int(d / u.Size()), Unit: u}
		}
	}
	return Window{Count: int(math.Ceil(d.Seconds())), Unit: UnitSecond}
}

func (c *StatusCache) key(entity string) string { return cacheKeyPrefix + entity }

// Lookup returns the device list and status map for entity. recent is the
// freshness threshold applied to each device's latest reading.
func (c *StatusCache) Lookup(ctx context.Context, entity string, recent time.Duration) (*DevicesResult, error) {
	now := c.now()
	if e, ok := c.cached(ctx, entity, now); ok {
		return &DevicesResult{
			Devices:        e.Names,
			Source:         DevicesCache,
			Status:         e.Status,
			StatusInterval: c.window.Label(),
		}, nil
	}

	names, err := c.records.DistinctLabel(ctx, c.spec, sqlstore.LabelLeaf, entity, "")
	if err != nil {
		return nil, retrievalError(err, "list devices")
	}
	latest, err := c.records.LatestPerLeaf(ctx, c.spec, entity, now.Add(-c.window.Duration()), sqlstore.FieldHealth)
	if err != nil {
		return nil, retrievalError(err, "latest device status")
	}
	status := buildStatus(latest, now, recent)

	if len(names) > 0 {
		entry := statusEntry{Names: names, Status: status, PopulatedAt: now}
		if err := c.store.Set(ctx, c.key(entity), entry, c.ttl); err != nil {
			c.logger.Warn("device cache write failed", "entity", entity, "error", err)
		}
		return &DevicesResult{
			Devices:        names,
			Source:         DevicesLive,
			Status:         status,
			StatusInterval: c.window.Label(),
		}, nil
	}

	if static, ok := c.defaults[entity]; ok && len(static) > 0 {
		return &DevicesResult{
			Devices: append([]string(nil), static...),
			Source:  DevicesStatic,
			Status:  map[string]StatusSnapshot{},
		}, nil
	}
	return &DevicesResult{Devices: []string{}, Source: DevicesEmpty, Status: map[string]StatusSnapshot{}}, nil
}

// cached returns a live entry. Unreadable, expired and empty entries count
// as misses.
func (c *StatusCache) cached(ctx context.Context, entity string, now time.Time) (statusEntry, bool) {
	var e statusEntry
	raw, err := c.store.Get(ctx, c.key(entity))
	if err != nil {
		if !errors.Is(err, cache.ErrNotFound) {
			c.logger.Warn("device cache read failed", "entity", entity, "error", err)
		}
		return e, false
	}
	if err := json.Unmarshal(raw, &e); err != nil {
		c.logger.Warn("device cache entry unreadable", "entity", entity, "error", err)
		return e, false
	}
	if len(e.Names) == 0 || now.Sub(e.PopulatedAt) >= c.ttl {
		return e, false
	}
	if e.Status == nil {
		e.Status = map[string]StatusSnapshot{}
	}
	return e, true
}

func buildStatus(rows []sqlstore.Record, now time.Time, recent time.Duration) map[string]StatusSnapshot {
	out := make(map[string]StatusSnapshot, len(rows))
	for _, r := range rows {
		if r.Leaf == "" {
			continue
		}
		age := now.Sub(r.Time)
		var code *int
		if v := r.Value(sqlstore.FieldHealth); v != nil && *v == math.Trunc(*v) {
			n := int(*v)
			code = &n
		}
		ok := age <= recent && code != nil && *code >= 1 && *code <= 3
		snap := StatusSnapshot{
			Time:   formatTime(r.Time),
			AgeSec: age.Seconds(),
			Recent: ok,
		}
		if ok {
			snap.Status = code
		}
		out[r.Leaf] = snap
	}
	return out
}
