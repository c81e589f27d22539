package dataop

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/datachat-ai/datachat/core"
	"github.com/datachat-ai/datachat/table"
)

// rowBatch is how many rows are processed between cancellation checks, so a
// caller-supplied budget can interrupt large scans without per-row overhead.
const rowBatch = 1024

// CorrelationMatrix is the pairwise linear correlation over the requested
// numeric columns. Values[i][j] corresponds to (Columns[i], Columns[j]).
// Pairs with fewer than two complete observations or zero variance report 0.
type CorrelationMatrix struct {
	Columns []string    `json:"columns"`
	Values  [][]float64 `json:"values"`
}

// ColumnDescribe is the per-column describe summary: non-null count, mean,
// sample standard deviation, min, quartiles and max.
type ColumnDescribe struct {
	Column string  `json:"column"`
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	Std    float64 `json:"std"`
	Min    float64 `json:"min"`
	P25    float64 `json:"p25"`
	P50    float64 `json:"p50"`
	P75    float64 `json:"p75"`
	Max    float64 `json:"max"`
}

// Result is the outcome of applying a descriptor: a derived table for
// aggregation/filter/sort, or an aggregate payload for statistical methods.
type Result struct {
	Kind        Kind               `json:"kind"`
	Table       *table.Table       `json:"-"`
	Rows        []map[string]any   `json:"rows,omitempty"`
	Correlation *CorrelationMatrix `json:"correlation,omitempty"`
	Describe    []ColumnDescribe   `json:"describe,omitempty"`
}

// Apply executes the descriptor against the table. The input table is never
// mutated; every failure is a typed error from the core taxonomy and no
// partial result is ever returned alongside one.
func Apply(ctx context.Context, t *table.Table, d Descriptor) (*Result, error) {
	switch op := d.(type) {
	case Aggregation:
		return applyAggregation(ctx, t, op)
	case Filter:
		return applyFilter(ctx, t, op)
	case Sort:
		return applySort(ctx, t, op)
	case Statistical:
		return applyStatistical(ctx, t, op)
	default:
		return nil, &core.UnsupportedOperationError{Type: fmt.Sprintf("%T", d)}
	}
}

func tableResult(kind Kind, t *table.Table) *Result {
	return &Result{Kind: kind, Table: t, Rows: t.Records()}
}

func checkColumns(t *table.Table, names ...[]string) error {
	for _, group := range names {
		for _, name := range group {
			if !t.HasColumn(name) {
				return &core.UnknownColumnError{Column: name}
			}
		}
	}
	return nil
}

// --- aggregation ---

type aggState struct {
	count int
	sum   float64
	min   any
	max   any
}

func applyAggregation(ctx context.Context, t *table.Table, op Aggregation) (*Result, error) {
	if err := checkColumns(t, op.GroupBy, op.Targets); err != nil {
		return nil, err
	}
	for _, target := range op.Targets {
		dtype, _ := t.DType(target)
		switch op.Func {
		case AggMean, AggSum:
			if !dtype.Numeric() {
				return nil, &core.UnsupportedColumnTypeError{Column: target, DType: dtype.String()}
			}
		case AggMin, AggMax:
			if !dtype.Numeric() && dtype != table.String {
				return nil, &core.UnsupportedColumnTypeError{Column: target, DType: dtype.String()}
			}
		}
	}

	type group struct {
		key    []any
		states []aggState
	}
	groups := make(map[string]*group)
	for r := 0; r < t.NumRows(); r++ {
		if r%rowBatch == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		key := make([]any, len(op.GroupBy))
		for i, col := range op.GroupBy {
			key[i] = t.Value(r, col)
		}
		mk := mapKey(key)
		g, ok := groups[mk]
		if !ok {
			g = &group{key: key, states: make([]aggState, len(op.Targets))}
			for i := range g.states {
				g.states[i] = aggState{}
			}
			groups[mk] = g
		}
		for i, target := range op.Targets {
			v := t.Value(r, target)
			if v == nil {
				continue
			}
			st := &g.states[i]
			st.count++
			switch op.Func {
			case AggMean, AggSum:
				st.sum += asFloat(v)
			case AggMin:
				if st.min == nil || table.Compare(v, st.min) < 0 {
					st.min = v
				}
			case AggMax:
				if st.max == nil || table.Compare(v, st.max) > 0 {
					st.max = v
				}
			}
		}
	}

	ordered := make([]*group, 0, len(groups))
	for _, g := range groups {
		ordered = append(ordered, g)
	}
	sort.Slice(ordered, func(a, b int) bool {
		return compareKeys(ordered[a].key, ordered[b].key) < 0
	})

	b := table.NewBuilder()
	for i, col := range op.GroupBy {
		dtype, _ := t.DType(col)
		vals := make([]any, len(ordered))
		for j, g := range ordered {
			vals[j] = g.key[i]
		}
		b.AddColumn(col, dtype, vals)
	}
	// Output dtype: mean is always float64, count int64, sum preserves
	// int64 inputs, min/max preserve the source dtype.
	for i, target := range op.Targets {
		srcType, _ := t.DType(target)
		outType := srcType
		switch op.Func {
		case AggMean:
			outType = table.Float64
		case AggCount:
			outType = table.Int64
		case AggSum:
			if srcType != table.Int64 {
				outType = table.Float64
			}
		}
		vals := make([]any, len(ordered))
		for j, g := range ordered {
			st := g.states[i]
			switch op.Func {
			case AggMean:
				if st.count > 0 {
					vals[j] = st.sum / float64(st.count)
				}
			case AggSum:
				if outType == table.Int64 {
					vals[j] = int64(st.sum)
				} else {
					vals[j] = st.sum
				}
			case AggCount:
				vals[j] = int64(st.count)
			case AggMin:
				vals[j] = st.min
			case AggMax:
				vals[j] = st.max
			}
		}
		b.AddColumn(target, outType, vals)
	}
	out, err := b.Build()
	if err != nil {
		return nil, &core.ValidationError{Field: "target_columns", Reason: err.Error()}
	}
	return tableResult(KindAggregation, out), nil
}

func asFloat(v any) float64 {
	switch x := v.(type) {
	case int64:
		return float64(x)
	case float64:
		return x
	}
	return 0
}

func mapKey(key []any) string {
	return fmt.Sprintf("%#v", key)
}

func compareKeys(a, b []any) int {
	for i := range a {
		if c := table.Compare(a[i], b[i]); c != 0 {
			return c
		}
	}
	return 0
}

// --- filter ---

func applyFilter(ctx context.Context, t *table.Table, op Filter) (*Result, error) {
	cols := make(map[string]struct{})
	op.expr.collectColumns(cols)
	for name := range cols {
		if !t.HasColumn(name) {
			return nil, &core.UnknownColumnError{Column: name}
		}
	}
	var keep []int
	for r := 0; r < t.NumRows(); r++ {
		if r%rowBatch == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if op.expr.eval(t, r) {
			keep = append(keep, r)
		}
	}
	return tableResult(KindFilter, t.SelectRows(keep)), nil
}

// --- sort ---

func applySort(ctx context.Context, t *table.Table, op Sort) (*Result, error) {
	if err := checkColumns(t, op.Columns); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows := make([]int, t.NumRows())
	for i := range rows {
		rows[i] = i
	}
	sort.SliceStable(rows, func(a, b int) bool {
		for i, col := range op.Columns {
			c := table.Compare(t.Value(rows[a], col), t.Value(rows[b], col))
			if c == 0 {
				continue
			}
			if op.Ascending[i] {
				return c < 0
			}
			return c > 0
		}
		return false
	})
	return tableResult(KindSort, t.SelectRows(rows)), nil
}

// --- statistical ---

func applyStatistical(ctx context.Context, t *table.Table, op Statistical) (*Result, error) {
	if err := checkColumns(t, op.Columns); err != nil {
		return nil, err
	}
	series := make([][]float64, len(op.Columns))
	masks := make([][]bool, len(op.Columns))
	for i, name := range op.Columns {
		vals, valid, ok := t.NumericColumn(name)
		if !ok {
			dtype, _ := t.DType(name)
			return nil, &core.UnsupportedColumnTypeError{Column: name, DType: dtype.String()}
		}
		series[i] = vals
		masks[i] = valid
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	switch op.Method {
	case StatCorrelation:
		return &Result{Kind: KindStatistical, Correlation: correlate(op.Columns, series, masks)}, nil
	case StatDescribe:
		out := make([]ColumnDescribe, len(op.Columns))
		for i, name := range op.Columns {
			out[i] = describe(name, series[i], masks[i])
		}
		return &Result{Kind: KindStatistical, Describe: out}, nil
	}
	return nil, &core.UnsupportedOperationError{Type: string(op.Method)}
}

// correlate computes Pearson coefficients with pairwise completion: each
// pair uses only rows where both cells are non-null.
func correlate(names []string, series [][]float64, masks [][]bool) *CorrelationMatrix {
	n := len(names)
	values := make([][]float64, n)
	for i := range values {
		values[i] = make([]float64, n)
		values[i][i] = 1
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			r := pearson(series[i], series[j], masks[i], masks[j])
			values[i][j] = r
			values[j][i] = r
		}
	}
	cols := make([]string, n)
	copy(cols, names)
	return &CorrelationMatrix{Columns: cols, Values: values}
}

func pearson(xs, ys []float64, xm, ym []bool) float64 {
	var n int
	var sumX, sumY float64
	for i := range xs {
		if xm[i] && ym[i] {
			n++
			sumX += xs[i]
			sumY += ys[i]
		}
	}
	if n < 2 {
		return 0
	}
	meanX, meanY := sumX/float64(n), sumY/float64(n)
	var cov, varX, varY float64
	for i := range xs {
		if xm[i] && ym[i] {
			dx, dy := xs[i]-meanX, ys[i]-meanY
			cov += dx * dy
			varX += dx * dx
			varY += dy * dy
		}
	}
	if varX == 0 || varY == 0 {
		return 0
	}
	return cov / math.Sqrt(varX*varY)
}

func describe(name string, vals []float64, valid []bool) ColumnDescribe {
	clean := make([]float64, 0, len(vals))
	for i, v := range vals {
		if valid[i] {
			clean = append(clean, v)
		}
	}
	d := ColumnDescribe{Column: name, Count: len(clean)}
	if len(clean) == 0 {
		return d
	}
	sort.Float64s(clean)
	var sum float64
	for _, v := range clean {
		sum += v
	}
	d.Mean = sum / float64(len(clean))
	if len(clean) > 1 {
		var ss float64
		for _, v := range clean {
			dv := v - d.Mean
			ss += dv * dv
		}
		d.Std = math.Sqrt(ss / float64(len(clean)-1))
	}
	d.Min = clean[0]
	d.Max = clean[len(clean)-1]
	d.P25 = percentile(clean, 0.25)
	d.P50 = percentile(clean, 0.50)
	d.P75 = percentile(clean, 0.75)
	return d
}

// percentile uses linear interpolation between closest ranks on an already
// sorted slice.
func percentile(sorted []float64, q float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}
