package sqlstore

import (
	"fmt"
	"regexp"
	"time"
)

// Field is a logical numeric column. TableSpec maps it onto the physical name.
type Field string

const (
	FieldTotal      Field = "total"
	FieldBad        Field = "bad"
	FieldLatency    Field = "latency"
	FieldQueueDelay Field = "queue_delay"
	FieldWIP        Field = "wip"
	FieldEnergy     Field = "energy"
	FieldHealth     Field = "health_code"
)

// Label selects one of the two grouping columns of a table.
type Label int

const (
	// LabelCoarse is the component/type grouping.
	LabelCoarse Label = iota
	// LabelLeaf is the node/device grouping.
	LabelLeaf
)

func (l Label) String() string {
	if l == LabelCoarse {
		return "coarse"
	}
	return "leaf"
}

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// TableSpec maps one entity table onto the generic windowed query shapes.
// Every name in it is an identifier from configuration, never request input.
type TableSpec struct {
	Table        string
	EntityColumn string
	TimeColumn   string
	CoarseColumn string // empty when the table has no component label
	LeafColumn   string // empty when the table has no node label
	Fields       map[Field]string
}

// LineSpec is the per-line summary table (one row per line per tick).
func LineSpec(table string) TableSpec {
	return TableSpec{
		Table:        table,
		EntityColumn: "line_id",
		TimeColumn:   "recorded_at",
		Fields: map[Field]string{
			FieldTotal:      "units_total",
			FieldBad:        "units_scrap",
			FieldLatency:    "latency_s",
			FieldQueueDelay: "queue_delay_s",
			FieldWIP:        "wip_units",
			FieldEnergy:     "energy_kwh",
		},
	}
}

// NodeSpec is the per-node snapshot table carrying health and latency.
func NodeSpec(table string) TableSpec {
	return TableSpec{
		Table:        table,
		EntityColumn: "line_id",
		TimeColumn:   "observed_at",
		LeafColumn:   "node_name",
		Fields: map[Field]string{
			FieldLatency: "latency_s",
			FieldHealth:  "health_code",
		},
	}
}

// SignalSpec is the per-site signal log with component and node labels.
func SignalSpec(table string) TableSpec {
	return TableSpec{
		Table:        table,
		EntityColumn: "site_id",
		TimeColumn:   "logged_at",
		CoarseColumn: "component",
		LeafColumn:   "node_name",
		Fields: map[Field]string{
			FieldLatency: "latency_s",
			FieldTotal:   "sample_total",
			FieldBad:     "sample_bad",
		},
	}
}

// Validate rejects any name that is not a plain identifier.
func (s TableSpec) Validate() error {
	names := []string{s.Table, s.EntityColumn, s.TimeColumn}
	if s.CoarseColumn != "" {
		names = append(names, s.CoarseColumn)
	}
	if s.LeafColumn != "" {
		names = append(names, s.LeafColumn)
	}
	for _, col := range s.Fields {
		names = append(names, col)
	}
	for _, n := range names {
		if !identRe.MatchString(n) {
			return fmt.Errorf("sqlstore: invalid identifier %q in table spec", n)
		}
	}
	return nil
}

func (s TableSpec) labelColumn(l Label) (string, error) {
	col := s.LeafColumn
	if l == LabelCoarse {
		col = s.CoarseColumn
	}
	if col == "" {
		return "", fmt.Errorf("sqlstore: table %s has no %s label", s.Table, l)
	}
	return col, nil
}

func (s TableSpec) fieldColumn(f Field) (string, error) {
	col, ok := s.Fields[f]
	if !ok {
		return "", fmt.Errorf("sqlstore: table %s has no field %q", s.Table, f)
	}
	return col, nil
}

// Record is one raw row: timestamp, labels and the requested numeric fields.
// A nil value is a SQL NULL.
type Record struct {
	Time   time.Time
	Coarse string
	Leaf   string
	Values map[Field]*float64
}

// Value returns the field value or nil when absent or NULL.
func (r Record) Value(f Field) *float64 {
	if r.Values == nil {
		return nil
	}
	return r.Values[f]
}

// WindowQuery selects rows of one entity in the closed interval [From, To].
type WindowQuery struct {
	Entity        string
	From, To      time.Time
	Fields        []Field
	RequireCoarse bool
	RequireLeaf   bool
	CoarseIn      []string
	LeafIn        []string
	NonNull       []Field
}

// LabelPair is one distinct (component, node) combination.
type LabelPair struct {
	Coarse string `json:"component"`
	Leaf   string `json:"node_name"`
}
