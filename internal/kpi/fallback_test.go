package kpi

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSynthesize_FivePointsAtFixedOffsets(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 47, 13, 0, time.UTC)
	s := Synthesize(now, "output_rate", "latency_s")

	require.Len(t, s.Times, 5)
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, base.Add(-36*time.Hour), s.Times[0])
	assert.Equal(t, base.Add(-24*time.Hour), s.Times[1])
	assert.Equal(t, base.Add(-12*time.Hour), s.Times[2])
	assert.Equal(t, base.Add(-6*time.Hour), s.Times[3])
	assert.Equal(t, base, s.Times[4])

	assert.Equal(t, []float64{420, 450, 480, 460, 440}, s.Values["output_rate"])
	assert.Equal(t, []float64{9.2, 8.1, 7.6, 7.2, 7.6}, s.Values["latency_s"])
}

func TestSynthesize_Deterministic(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 5, 0, 0, time.FixedZone("KST", 9*3600))
	a := Synthesize(now, analyticsMetrics...)
	b := Synthesize(now.Add(30*time.Second), analyticsMetrics...)
	assert.Equal(t, a, b)
	for _, m := range analyticsMetrics {
		assert.Len(t, a.Values[m], 5, m)
	}
}

func TestSynthesize_UnknownMetricSkippedAndCopied(t *testing.T) {
	s := Synthesize(testNow, "nope", "energy_kwh")
	assert.NotContains(t, s.Values, "nope")
	s.Values["energy_kwh"][0] = -1
	assert.Equal(t, 12.4, Synthesize(testNow, "energy_kwh").Values["energy_kwh"][0])
	assert.Len(t, s.Pointers("missing"), 0)
}
