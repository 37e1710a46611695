package kpi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDerive_QualityFormula(t *testing.T) {
	m := Derive(Inputs{Total: f64(200), Bad: f64(20)}, DefaultParams())
	require.NotNil(t, m.Quality)
	assert.Equal(t, 90.00, *round(m.Quality, placesPct))
}

func TestDerive_MissingLatencyLeavesOEENull(t *testing.T) {
	m := Derive(Inputs{Total: f64(100), Bad: f64(10)}, DefaultParams())
	require.NotNil(t, m.Quality)
	assert.InDelta(t, 90.0, *m.Quality, 1e-9)
	assert.Nil(t, m.Performance)
	assert.Nil(t, m.TaktAdherence)
	assert.Nil(t, m.OEE)
	require.NotNil(t, m.Availability)
	assert.Equal(t, 100.0, *m.Availability)
}

func TestDerive_OEEAllOrNothing(t *testing.T) {
	opts := []*float64{nil, f64(0), f64(50), f64(120)}
	for _, total := range opts {
		for _, bad := range opts {
			for _, lat := range opts {
				m := Derive(Inputs{Total: total, Bad: bad, Latency: lat, RunTimeSec: 3600}, DefaultParams())
				all := m.Availability != nil && m.Performance != nil && m.Quality != nil
				assert.Equal(t, all, m.OEE != nil)
			}
		}
	}
}

func TestDerive_FullSet(t *testing.T) {
	p := DefaultParams()
	m := Derive(Inputs{Total: f64(480), Bad: f64(12), Latency: f64(27.5), RunTimeSec: 6 * 3600}, p)

	assert.InDelta(t, 97.5, *m.Quality, 1e-9)
	assert.InDelta(t, 25*100/27.5, *m.Performance, 1e-9)
	assert.InDelta(t, 30*100/27.5, *m.TaktAdherence, 1e-9)
	assert.InDelta(t, 80.0, *m.Throughput, 1e-9)
	assert.InDelta(t, 0.975*(25/27.5)*100, *m.OEE, 1e-9)
	assert.Equal(t, 88.64, *round(m.OEE, placesPct))
}

func TestDerive_Guards(t *testing.T) {
	p := DefaultParams()

	m := Derive(Inputs{Total: f64(0), Bad: f64(0), Latency: f64(0)}, p)
	assert.Nil(t, m.Quality)
	assert.Nil(t, m.Performance)
	assert.Nil(t, m.Throughput)
	assert.NotNil(t, m.Availability)

	m = Derive(Inputs{Total: f64(10), Bad: f64(25), Latency: f64(-3), RunTimeSec: 1800}, p)
	assert.Equal(t, 0.0, *m.Quality)
	assert.Nil(t, m.Performance)
	assert.Equal(t, 20.0, *m.Throughput)

	m = Derive(Inputs{}, p)
	assert.Equal(t, MetricSet{}, m)
}

func TestRound(t *testing.T) {
	assert.Nil(t, round(nil, 2))
	assert.Equal(t, 326.09, *round(f64(30*100/9.2), placesPct))
	assert.Equal(t, 12.346, *round(f64(12.3456), placesEnergy))
	assert.Equal(t, 80.1, *round(f64(80.06), placesThroughput))
}

func TestParamsValidate(t *testing.T) {
	assert.NoError(t, DefaultParams().validate())

	p := DefaultParams()
	p.IdealLatencySec = 0
	assert.True(t, IsValidation(p.validate()))

	p = DefaultParams()
	p.LatencyMode = "median"
	assert.Error(t, p.validate())

	p = DefaultParams()
	p.RecentThreshold = 0
	assert.Error(t, p.validate())
}
