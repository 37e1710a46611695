package kpi

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLookback(t *testing.T) {
	tests := []struct {
		in   string
		want Window
	}{
		{"30m", Window{30, UnitMinute}},
		{"6h", Window{6, UnitHour}},
		{" 45 S ", Window{45, UnitSecond}},
		{"5d", Window{5, UnitDay}},
		{"7d", Window{7, UnitDay}},
		{"10d", Window{7, UnitDay}},
		{"1w", Window{7, UnitDay}},
		{"3W", Window{7, UnitDay}},
		{"0h", Window{1, UnitHour}},
		{"9x", DefaultWindow},
		{"", DefaultWindow},
		{"h", DefaultWindow},
		{"-5m", DefaultWindow},
		{"1.5h", DefaultWindow},
		{"6h; DROP TABLE line_summary", DefaultWindow},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%q", tt.in), func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLookback(tt.in))
		})
	}
}

func TestParseLookback_EveryWellFormedInputIsResolved(t *testing.T) {
	for _, u := range []string{"s", "m", "h", "d", "w", "S", "M", "H", "D", "W"} {
		for _, n := range []int{1, 2, 7, 8, 59, 600} {
			in := fmt.Sprintf("%d%s", n, u)
			w := ParseLookback(in)
			assert.Greater(t, w.Duration(), time.Duration(0), in)
			if u == "d" || u == "D" || u == "w" || u == "W" {
				assert.LessOrEqual(t, w.Duration(), 7*24*time.Hour, in)
				assert.Equal(t, UnitDay, w.Unit, in)
			} else {
				assert.Equal(t, n, w.Count, in)
			}
		}
	}
}

func TestParseLookback_HugeCountStaysInRange(t *testing.T) {
	w := ParseLookback("99999999999999999999h")
	assert.Equal(t, UnitHour, w.Unit)
	assert.Equal(t, maxCount, w.Count)
	assert.Greater(t, w.Duration(), time.Duration(0))
}

func TestParseLookbackStrict(t *testing.T) {
	assert.Equal(t, Window{1, UnitWeek}, ParseLookbackStrict("2w"))
	assert.Equal(t, Window{7, UnitDay}, ParseLookbackStrict("30d"))
	assert.Equal(t, Window{90, UnitMinute}, ParseLookbackStrict("90m"))
	assert.Equal(t, DefaultWindow, ParseLookbackStrict("soon"))
	assert.Equal(t, 7*24*time.Hour, ParseLookbackStrict("1w").Duration())
}

func TestWindowRendering(t *testing.T) {
	w := Window{24, UnitHour}
	assert.Equal(t, "INTERVAL 24 HOUR", w.IntervalExpr())
	assert.Equal(t, "24HOUR", w.Label())
	assert.Equal(t, float64(86400), w.Seconds())
	assert.Equal(t, "hour", w.Unit.String())
}

func TestAnalyticsRange(t *testing.T) {
	w, err := AnalyticsRange("7d")
	require.NoError(t, err)
	assert.Equal(t, Window{7, UnitDay}, w)

	w, err = AnalyticsRange("30d")
	require.NoError(t, err)
	assert.Equal(t, 30*24*time.Hour, w.Duration())

	w, err = AnalyticsRange("")
	require.NoError(t, err)
	assert.Equal(t, Window{24, UnitHour}, w)

	_, err = AnalyticsRange("1y")
	assert.True(t, IsValidation(err))
}

func TestSeriesRange(t *testing.T) {
	w, err := SeriesRange(" 1DAY ")
	require.NoError(t, err)
	assert.Equal(t, 24*time.Hour, w.Duration())

	w, err = SeriesRange("")
	require.NoError(t, err)
	assert.Equal(t, 30*time.Minute, w.Duration())

	_, err = SeriesRange("2day")
	assert.True(t, IsValidation(err))
}

func TestWindowFor(t *testing.T) {
	assert.Equal(t, Window{1, UnitHour}, windowFor(time.Hour))
	assert.Equal(t, Window{90, UnitMinute}, windowFor(90*time.Minute))
	assert.Equal(t, Window{2, UnitDay}, windowFor(48*time.Hour))
	assert.Equal(t, Window{1, UnitHour}, windowFor(0))
	assert.Equal(t, Window{61, UnitSecond}, windowFor(61*time.Second))
}
