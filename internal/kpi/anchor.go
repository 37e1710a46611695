package kpi

import (
	"context"
	"time"

	"github.com/platformbuilds/workcell-kpi/internal/storage/sqlstore"
)

// Anchor is the newest record time of an entity. Found is false when the
// entity has no rows.
type Anchor struct {
	Time  time.Time
	Found bool
}

func (s *Service) resolveAnchor(ctx context.Context, spec sqlstore.TableSpec, entity string) (Anchor, error) {
	t, found, err := s.records.MaxTime(ctx, spec, entity)
	if err != nil {
		return Anchor{}, retrievalError(err, "resolve anchor")
	}
	return Anchor{Time: t, Found: found}, nil
}

// Age is how far the anchor lies behind now.
func (a Anchor) Age(now time.Time) time.Duration {
	return now.Sub(a.Time)
}

// freshness gates single-point queries: no anchor is no_data_recent, an
// anchor older than recent is too_old.
func freshness(a Anchor, now time.Time, recent time.Duration) string {
	if !a.Found {
		return SourceNoData
	}
	if a.Age(now) > recent {
		return SourceTooOld
	}
	return SourceOK
}
