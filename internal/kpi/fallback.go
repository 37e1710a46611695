package kpi

import "time"

// Provenance markers.
const (
	SourceOK        = "ok"
	SourceNoData    = "no_data_recent"
	SourceTooOld    = "too_old"
	SourceSimulated = "simulated"
	SourceSQL       = "sql"
	SourceTSDB      = "tsdb"

	FallbackNoData = "no_data"
)

var fallbackOffsets = []time.Duration{-36 * time.Hour, -24 * time.Hour, -12 * time.Hour, -6 * time.Hour, 0}

var fallbackValues = map[string][]float64{
	"output_rate":        {420, 450, 480, 460, 440},
	"latency_s":          {9.2, 8.1, 7.6, 7.2, 7.6},
	"quality_pct":        {97.8, 98.2, 98.6, 98.1, 98.4},
	"performance_pct":    {88.5, 90.2, 92.1, 91.4, 90.8},
	"availability_pct":   {100, 100, 100, 100, 100},
	"oee_pct":            {86.55, 88.58, 90.81, 89.66, 89.35},
	"throughput_uph":     {420, 450, 480, 460, 440},
	"takt_adherence_pct": {326.09, 370.37, 394.74, 416.67, 394.74},
	"energy_kwh":         {12.4, 13.1, 13.8, 13.3, 12.9},
}

// Synthetic is a fixed five-point demo series set.
type Synthetic struct {
	Times  []time.Time
	Values map[string][]float64
}

// Synthesize builds the demo series for the named metrics at -36h, -24h,
// -12h, -6h and 0h from now truncated to the hour. Unknown names are skipped.
func Synthesize(now time.Time, metrics ...string) Synthetic {
	base := now.UTC().Truncate(time.Hour)
	s := Synthetic{
		Times:  make([]time.Time, len(fallbackOffsets)),
		Values: make(map[string][]float64, len(metrics)),
	}
	for i, off := range fallbackOffsets {
		s.Times[i] = base.Add(off)
	}
	for _, m := range metrics {
		vals, ok := fallbackValues[m]
		if !ok {
			continue
		}
		s.Values[m] = append([]float64(nil), vals...)
	}
	return s
}

// Pointers returns the named series as nullable values.
func (s Synthetic) Pointers(metric string) []*float64 {
	vals := s.Values[metric]
	out := make([]*float64, len(vals))
	for i, v := range vals {
		out[i] = ptr(v)
	}
	return out
}
