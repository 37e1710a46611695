package sqlstore

import (
	"fmt"
	"strings"
	"time"
)

func quote(ident string) string { return "`" + ident + "`" }

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?, ", n-1) + "?"
}

func nonEmpty(col string) string {
	return fmt.Sprintf("%s IS NOT NULL AND %s <> ''", col, col)
}

// windowLayout records which columns a window query selects, in order.
type windowLayout struct {
	coarse bool
	leaf   bool
	fields []Field
}

func buildMaxTime(spec TableSpec, entity string) (string, []interface{}) {
	q := fmt.Sprintf("SELECT MAX(%s) AS max_time FROM %s WHERE %s = ?",
		quote(spec.TimeColumn), quote(spec.Table), quote(spec.EntityColumn))
	return q, []interface{}{entity}
}

func buildWindow(spec TableSpec, wq WindowQuery) (string, []interface{}, windowLayout, error) {
	var layout windowLayout
	cols := []string{quote(spec.TimeColumn)}
	var where []string
	args := []interface{}{wq.Entity, wq.From, wq.To}

	where = append(where,
		quote(spec.EntityColumn)+" = ?",
		quote(spec.TimeColumn)+" >= ?",
		quote(spec.TimeColumn)+" <= ?",
	)

	if spec.CoarseColumn != "" {
		c := quote(spec.CoarseColumn)
		cols = append(cols, c)
		layout.coarse = true
		if wq.RequireCoarse || len(wq.CoarseIn) > 0 {
			where = append(where, nonEmpty(c))
		}
		if len(wq.CoarseIn) > 0 {
			where = append(where, fmt.Sprintf("%s IN (%s)", c, placeholders(len(wq.CoarseIn))))
			for _, v := range wq.CoarseIn {
				args = append(args, v)
			}
		}
	} else if wq.RequireCoarse || len(wq.CoarseIn) > 0 {
		return "", nil, layout, fmt.Errorf("sqlstore: table %s has no coarse label", spec.Table)
	}

	if spec.LeafColumn != "" {
		c := quote(spec.LeafColumn)
		cols = append(cols, c)
		layout.leaf = true
		if wq.RequireLeaf || len(wq.LeafIn) > 0 {
			where = append(where, nonEmpty(c))
		}
		if len(wq.LeafIn) > 0 {
			where = append(where, fmt.Sprintf("%s IN (%s)", c, placeholders(len(wq.LeafIn))))
			for _, v := range wq.LeafIn {
				args = append(args, v)
			}
		}
	} else if wq.RequireLeaf || len(wq.LeafIn) > 0 {
		return "", nil, layout, fmt.Errorf("sqlstore: table %s has no leaf label", spec.Table)
	}

	for _, f := range wq.Fields {
		col, err := spec.fieldColumn(f)
		if err != nil {
			return "", nil, layout, err
		}
		cols = append(cols, quote(col))
		layout.fields = append(layout.fields, f)
	}
	for _, f := range wq.NonNull {
		col, err := spec.fieldColumn(f)
		if err != nil {
			return "", nil, layout, err
		}
		where = append(where, quote(col)+" IS NOT NULL")
	}

	q := fmt.Sprintf("SELECT %s FROM %s WHERE %s ORDER BY %s ASC",
		strings.Join(cols, ", "), quote(spec.Table), strings.Join(where, " AND "), quote(spec.TimeColumn))
	return q, args, layout, nil
}

// buildDistinctLabel lists distinct non-empty values of one label for an
// entity, optionally narrowed to a single coarse value.
func buildDistinctLabel(spec TableSpec, label Label, entity, coarseEquals string) (string, []interface{}, error) {
	col, err := spec.labelColumn(label)
	if err != nil {
		return "", nil, err
	}
	c := quote(col)
	where := []string{quote(spec.EntityColumn) + " = ?", nonEmpty(c)}
	args := []interface{}{entity}
	if coarseEquals != "" {
		cc, err := spec.labelColumn(LabelCoarse)
		if err != nil {
			return "", nil, err
		}
		where = append(where, quote(cc)+" = ?")
		args = append(args, coarseEquals)
	}
	q := fmt.Sprintf("SELECT DISTINCT %s FROM %s WHERE %s ORDER BY %s",
		c, quote(spec.Table), strings.Join(where, " AND "), c)
	return q, args, nil
}

func buildDistinctPairs(spec TableSpec, entity string) (string, []interface{}, error) {
	cc, err := spec.labelColumn(LabelCoarse)
	if err != nil {
		return "", nil, err
	}
	lc, err := spec.labelColumn(LabelLeaf)
	if err != nil {
		return "", nil, err
	}
	c, l := quote(cc), quote(lc)
	q := fmt.Sprintf("SELECT DISTINCT %s, %s FROM %s WHERE %s = ? AND %s AND %s ORDER BY %s, %s",
		c, l, quote(spec.Table), quote(spec.EntityColumn), nonEmpty(l), nonEmpty(c), c, l)
	return q, []interface{}{entity}, nil
}

// buildLatestPerLeaf is the entity-to-latest-status join: for each leaf seen
// since the cutoff, the row at its own MAX(time).
func buildLatestPerLeaf(spec TableSpec, entity string, since time.Time, field Field) (string, []interface{}, error) {
	lc, err := spec.labelColumn(LabelLeaf)
	if err != nil {
		return "", nil, err
	}
	fc, err := spec.fieldColumn(field)
	if err != nil {
		return "", nil, err
	}
	l, t, e, tbl := quote(lc), quote(spec.TimeColumn), quote(spec.EntityColumn), quote(spec.Table)
	q := fmt.Sprintf(
		"SELECT s.%s, s.%s, s.%s FROM %s AS s "+
			"JOIN (SELECT %s, MAX(%s) AS max_time FROM %s WHERE %s = ? AND %s > ? GROUP BY %s) AS latest "+
			"ON latest.%s = s.%s AND latest.max_time = s.%s "+
			"WHERE s.%s = ? ORDER BY s.%s",
		l, t, quote(fc), tbl,
		l, t, tbl, e, t, l,
		l, l, t,
		e, l,
	)
	return q, []interface{}{entity, since, entity}, nil
}
