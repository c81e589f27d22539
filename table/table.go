package table

import (
	"fmt"
	"sort"
)

// DType identifies the value type of a column. Cells hold the corresponding
// Go type (int64, float64, string, bool) or nil for null.
type DType int

const (
	// Int64 is a signed 64-bit integer column.
	Int64 DType = iota
	// Float64 is a double precision floating point column.
	Float64
	// String is a UTF-8 string column.
	String
	// Bool is a boolean column.
	Bool
)

// String returns the lowercase type name used in metadata and error messages.
func (d DType) String() string {
	switch d {
	case Int64:
		return "int64"
	case Float64:
		return "float64"
	case String:
		return "string"
	case Bool:
		return "bool"
	default:
		return "unknown"
	}
}

// Numeric reports whether the dtype participates in numeric computations.
func (d DType) Numeric() bool { return d == Int64 || d == Float64 }

type column struct {
	name   string
	dtype  DType
	values []any
}

// Table is an immutable columnar dataset. The zero value is an empty table.
type Table struct {
	cols []column
	rows int
}

// NumRows returns the number of rows.
func (t *Table) NumRows() int { return t.rows }

// NumCols returns the number of columns.
func (t *Table) NumCols() int { return len(t.cols) }

// ColumnNames returns the column names in table order. The slice is a copy.
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.cols))
	for i, c := range t.cols {
		names[i] = c.name
	}
	return names
}

// HasColumn reports whether a column with the given name exists.
func (t *Table) HasColumn(name string) bool {
	_, ok := t.index(name)
	return ok
}

// DType returns the dtype of the named column. The boolean is false when the
// column does not exist.
func (t *Table) DType(name string) (DType, bool) {
	i, ok := t.index(name)
	if !ok {
		return 0, false
	}
	return t.cols[i].dtype, true
}

// Value returns the cell at (row, column name), nil for null cells. It
// panics on out-of-range rows or unknown columns; callers are expected to
// validate both beforehand.
func (t *Table) Value(row int, name string) any {
	i, ok := t.index(name)
	if !ok {
		panic(fmt.Sprintf("table: unknown column %q", name))
	}
	return t.cols[i].values[row]
}

func (t *Table) index(name string) (int, bool) {
	for i, c := range t.cols {
		if c.name == name {
			return i, true
		}
	}
	return 0, false
}

// NumericColumn extracts the named column as float64 values with a parallel
// validity mask (false marks null cells). The boolean result is false when
// the column exists but is not numeric; unknown columns must be checked with
// HasColumn first.
func (t *Table) NumericColumn(name string) (vals []float64, valid []bool, ok bool) {
	i, found := t.index(name)
	if !found || !t.cols[i].dtype.Numeric() {
		return nil, nil, false
	}
	c := t.cols[i]
	vals = make([]float64, t.rows)
	valid = make([]bool, t.rows)
	for r, v := range c.values {
		if v == nil {
			continue
		}
		switch x := v.(type) {
		case int64:
			vals[r] = float64(x)
		case float64:
			vals[r] = x
		}
		valid[r] = true
	}
	return vals, valid, true
}

// Head returns a new table containing at most n leading rows.
func (t *Table) Head(n int) *Table {
	if n > t.rows {
		n = t.rows
	}
	cols := make([]column, len(t.cols))
	for i, c := range t.cols {
		vals := make([]any, n)
		copy(vals, c.values[:n])
		cols[i] = column{name: c.name, dtype: c.dtype, values: vals}
	}
	return &Table{cols: cols, rows: n}
}

// SelectRows returns a new table containing the given row positions in
// order. Positions may repeat; each must be in range.
func (t *Table) SelectRows(rows []int) *Table {
	cols := make([]column, len(t.cols))
	for i, c := range t.cols {
		vals := make([]any, len(rows))
		for j, r := range rows {
			vals[j] = c.values[r]
		}
		cols[i] = column{name: c.name, dtype: c.dtype, values: vals}
	}
	return &Table{cols: cols, rows: len(rows)}
}

// Records materializes the table as one map per row, keyed by column name.
// Null cells are present with nil values. Intended for JSON payloads and
// row-shaped persistence, not bulk computation.
func (t *Table) Records() []map[string]any {
	recs := make([]map[string]any, t.rows)
	for r := 0; r < t.rows; r++ {
		rec := make(map[string]any, len(t.cols))
		for _, c := range t.cols {
			rec[c.name] = c.values[r]
		}
		recs[r] = rec
	}
	return recs
}

// ColumnStats holds the descriptive metadata computed per column at file
// registration time.
type ColumnStats struct {
	Name      string
	DType     DType
	NullCount int
	Distinct  int
}

// Stats computes per-column null and distinct-value counts in a single pass.
// Nulls do not count toward Distinct.
func (t *Table) Stats() []ColumnStats {
	out := make([]ColumnStats, len(t.cols))
	for i, c := range t.cols {
		seen := make(map[any]struct{}, t.rows)
		nulls := 0
		for _, v := range c.values {
			if v == nil {
				nulls++
				continue
			}
			seen[v] = struct{}{}
		}
		out[i] = ColumnStats{Name: c.name, DType: c.dtype, NullCount: nulls, Distinct: len(seen)}
	}
	return out
}

// Compare orders two cells of the same dtype class. Nulls order before any
// value; numeric cells compare as float64, strings lexicographically and
// false before true. Cells of differing dtype classes order numeric <
// string < bool.
func Compare(a, b any) int {
	if a == nil || b == nil {
		switch {
		case a == nil && b == nil:
			return 0
		case a == nil:
			return -1
		default:
			return 1
		}
	}
	ca, cb := classOf(a), classOf(b)
	if ca != cb {
		if ca < cb {
			return -1
		}
		return 1
	}
	switch ca {
	case classNumeric:
		fa, fb := toFloat(a), toFloat(b)
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		}
		return 0
	case classString:
		sa, sb := a.(string), b.(string)
		switch {
		case sa < sb:
			return -1
		case sa > sb:
			return 1
		}
		return 0
	default:
		ba, bb := a.(bool), b.(bool)
		switch {
		case !ba && bb:
			return -1
		case ba && !bb:
			return 1
		}
		return 0
	}
}

const (
	classNumeric = iota
	classString
	classBool
)

func classOf(v any) int {
	switch v.(type) {
	case int64, float64:
		return classNumeric
	case string:
		return classString
	default:
		return classBool
	}
}

func toFloat(v any) float64 {
	switch x := v.(type) {
	case int64:
		return float64(x)
	case float64:
		return x
	}
	return 0
}

// SortedDistinct returns the distinct non-null values of the named column in
// Compare order. Used by tests and summaries; aggregation does its own
// grouping.
func (t *Table) SortedDistinct(name string) []any {
	i, ok := t.index(name)
	if !ok {
		return nil
	}
	seen := make(map[any]struct{})
	var out []any
	for _, v := range t.cols[i].values {
		if v == nil {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Slice(out, func(a, b int) bool { return Compare(out[a], out[b]) < 0 })
	return out
}
