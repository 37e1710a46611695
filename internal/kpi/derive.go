package kpi

import (
	"math"
	"time"
)

// Params are the derivation constants. They are hot-reloadable.
type Params struct {
	IdealLatencySec float64
	TargetStepSec   float64
	RecentThreshold time.Duration
	LatencyMode     RateMode
}

// DefaultParams mirror the configuration defaults.
func DefaultParams() Params {
	return Params{
		IdealLatencySec: 25,
		TargetStepSec:   30,
		RecentThreshold: time.Hour,
		LatencyMode:     RateMean,
	}
}

func (p Params) validate() error {
	if p.IdealLatencySec <= 0 || p.TargetStepSec <= 0 {
		return validationf("ideal latency and target step must be positive")
	}
	if p.RecentThreshold <= 0 {
		return validationf("recent threshold must be positive")
	}
	if _, err := ParseRateMode(string(p.LatencyMode)); err != nil {
		return err
	}
	return nil
}

// Inputs are the folded values one metric set is derived from.
type Inputs struct {
	Total   *float64
	Bad     *float64
	Latency *float64
	// RunTimeSec is the window length for single-point queries or the
	// observed first-to-last span for series; the two are never mixed.
	RunTimeSec float64
}

// MetricSet holds the derived metrics at full precision. nil means the
// inputs were insufficient.
type MetricSet struct {
	Availability  *float64
	Performance   *float64
	Quality       *float64
	OEE           *float64
	TaktAdherence *float64
	Throughput    *float64
}

// Derive applies the fixed formulas. Missing inputs and zero divisors give
// nil, never zero.
func Derive(in Inputs, p Params) MetricSet {
	var m MetricSet
	if in.Total != nil {
		m.Availability = ptr(100)
	}
	if in.Latency != nil && *in.Latency > 0 {
		m.Performance = ptr(p.IdealLatencySec * 100 / *in.Latency)
		m.TaktAdherence = ptr(p.TargetStepSec * 100 / *in.Latency)
	}
	m.Quality = qualityPct(in.Total, in.Bad)
	if in.Total != nil && in.RunTimeSec > 0 {
		m.Throughput = ptr(*in.Total / (in.RunTimeSec / 3600))
	}
	if m.Availability != nil && m.Performance != nil && m.Quality != nil {
		m.OEE = ptr(*m.Availability / 100 * *m.Performance / 100 * *m.Quality / 100 * 100)
	}
	return m
}

func qualityPct(total, bad *float64) *float64 {
	if total == nil || bad == nil || *total <= 0 {
		return nil
	}
	good := math.Max(*total-*bad, 0)
	return ptr(good / *total * 100)
}

func ptr(v float64) *float64 { return &v }

// Presentation precision.
const (
	placesPct        = 2
	placesThroughput = 1
	placesEnergy     = 3
	placesSeconds    = 2
)

func round(v *float64, places int) *float64 {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return nil
	}
	scale := math.Pow(10, float64(places))
	return ptr(math.Round(*v*scale) / scale)
}
