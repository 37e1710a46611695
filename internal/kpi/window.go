package kpi

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Unit is the closed set of window units. Only Keyword values ever reach
// generated query text.
type Unit int

const (
	UnitSecond Unit = iota
	UnitMinute
	UnitHour
	UnitDay
	UnitWeek
)

var unitInfo = [...]struct {
	name    string
	keyword string
	size    time.Duration
}{
	UnitSecond: {"second", "SECOND", time.Second},
	UnitMinute: {"minute", "MINUTE", time.Minute},
	UnitHour:   {"hour", "HOUR", time.Hour},
	UnitDay:    {"day", "DAY", 24 * time.Hour},
	UnitWeek:   {"week", "WEEK", 7 * 24 * time.Hour},
}

func (u Unit) String() string  { return unitInfo[u].name }
func (u Unit) Keyword() string { return unitInfo[u].keyword }
func (u Unit) Size() time.Duration {
	return unitInfo[u].size
}

const (
	maxDays = 7
	// maxCount keeps count*unit inside time.Duration for every unit.
	maxCount = 1_000_000
)

// DefaultWindow is what an unparseable lookback resolves to.
var DefaultWindow = Window{Count: 6, Unit: UnitHour}

// Window is a resolved lookback: Count of Unit, always positive.
type Window struct {
	Count int
	Unit  Unit
}

func (w Window) Duration() time.Duration {
	return time.Duration(w.Count) * w.Unit.Size()
}

func (w Window) Seconds() float64 { return w.Duration().Seconds() }

// IntervalExpr renders the window as a SQL interval literal for display.
func (w Window) IntervalExpr() string {
	return fmt.Sprintf("INTERVAL %d %s", w.Count, w.Unit.Keyword())
}

// Label is the compact form used in response metadata, e.g. "1HOUR".
func (w Window) Label() string {
	return fmt.Sprintf("%d%s", w.Count, w.Unit.Keyword())
}

var lookbackRe = regexp.MustCompile(`(?i)^\s*(\d+)\s*([smhdw])\s*$`)

var unitLetters = map[string]Unit{
	"s": UnitSecond,
	"m": UnitMinute,
	"h": UnitHour,
	"d": UnitDay,
	"w": UnitWeek,
}

func scanLookback(s string) (int, Unit, bool) {
	m := lookbackRe.FindStringSubmatch(s)
	if m == nil {
		return 0, 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n > maxCount {
		n = maxCount
	}
	if n < 1 {
		n = 1
	}
	return n, unitLetters[strings.ToLower(m[2])], true
}

// ParseLookback resolves a lookback such as "30m", "6h" or "2w". It never
// fails: unparseable input yields DefaultWindow. Days are capped at 7 and any
// week count becomes 7 days.
func ParseLookback(s string) Window {
	n, u, ok := scanLookback(s)
	if !ok {
		return DefaultWindow
	}
	switch u {
	case UnitDay:
		if n > maxDays {
			n = maxDays
		}
	case UnitWeek:
		n, u = maxDays, UnitDay
	}
	return Window{Count: n, Unit: u}
}

// ParseLookbackStrict keeps the caller's unit as given, weeks included, and
// applies only the 7-day cap.
func ParseLookbackStrict(s string) Window {
	n, u, ok := scanLookback(s)
	if !ok {
		return DefaultWindow
	}
	switch u {
	case UnitDay:
		if n > maxDays {
			n = maxDays
		}
	case UnitWeek:
		n = 1
	}
	return Window{Count: n, Unit: u}
}

// AnalyticsRange maps the analytics range enum. Empty means 24h.
func AnalyticsRange(r string) (Window, error) {
	switch r {
	case "", "24h":
		return Window{Count: 24, Unit: UnitHour}, nil
	case "7d":
		return Window{Count: 7, Unit: UnitDay}, nil
	case "30d":
		return Window{Count: 30, Unit: UnitDay}, nil
	}
	return Window{}, validationf("range must be one of 24h, 7d, 30d")
}

// SeriesRange maps the filtered timeseries range enum. Empty means 30m.
func SeriesRange(r string) (Window, error) {
	switch strings.ToLower(strings.TrimSpace(r)) {
	case "", "30m":
		return Window{Count: 30, Unit: UnitMinute}, nil
	case "1day":
		return Window{Count: 1, Unit: UnitDay}, nil
	case "7day":
		return Window{Count: 7, Unit: UnitDay}, nil
	}
	return Window{}, validationf("range must be one of 30m, 1day, 7day")
}
