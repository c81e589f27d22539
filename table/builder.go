package table

import "fmt"

// Builder assembles a Table column by column. Append columns with the typed
// helpers or AddColumn, then call Build. A Builder must not be reused after
// Build.
type Builder struct {
	cols []column
	err  error
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder { return &Builder{} }

// AddColumn appends a column of the given dtype. Values must be nil (null)
// or the Go type matching the dtype; a mismatch is reported by Build.
func (b *Builder) AddColumn(name string, dtype DType, values []any) *Builder {
	if b.err != nil {
		return b
	}
	for i, v := range values {
		if v == nil {
			continue
		}
		if !matchesDType(v, dtype) {
			b.err = fmt.Errorf("column %q row %d: %T is not %s", name, i, v, dtype)
			return b
		}
	}
	vals := make([]any, len(values))
	copy(vals, values)
	b.cols = append(b.cols, column{name: name, dtype: dtype, values: vals})
	return b
}

// AddInt64 appends an int64 column without nulls.
func (b *Builder) AddInt64(name string, values []int64) *Builder {
	vals := make([]any, len(values))
	for i, v := range values {
		vals[i] = v
	}
	return b.AddColumn(name, Int64, vals)
}

// AddFloat64 appends a float64 column without nulls.
func (b *Builder) AddFloat64(name string, values []float64) *Builder {
	vals := make([]any, len(values))
	for i, v := range values {
		vals[i] = v
	}
	return b.AddColumn(name, Float64, vals)
}

// AddString appends a string column without nulls.
func (b *Builder) AddString(name string, values []string) *Builder {
	vals := make([]any, len(values))
	for i, v := range values {
		vals[i] = v
	}
	return b.AddColumn(name, String, vals)
}

// AddBool appends a bool column without nulls.
func (b *Builder) AddBool(name string, values []bool) *Builder {
	vals := make([]any, len(values))
	for i, v := range values {
		vals[i] = v
	}
	return b.AddColumn(name, Bool, vals)
}

// Build validates the accumulated columns (uniform length, unique names) and
// returns the finished Table.
func (b *Builder) Build() (*Table, error) {
	if b.err != nil {
		return nil, b.err
	}
	rows := 0
	names := make(map[string]struct{}, len(b.cols))
	for i, c := range b.cols {
		if _, dup := names[c.name]; dup {
			return nil, fmt.Errorf("duplicate column %q", c.name)
		}
		names[c.name] = struct{}{}
		if i == 0 {
			rows = len(c.values)
		} else if len(c.values) != rows {
			return nil, fmt.Errorf("column %q has %d rows, want %d", c.name, len(c.values), rows)
		}
	}
	return &Table{cols: b.cols, rows: rows}, nil
}

// MustBuild is Build for fixtures and examples where construction cannot fail.
func (b *Builder) MustBuild() *Table {
	t, err := b.Build()
	if err != nil {
		panic(err)
	}
	return t
}

func matchesDType(v any, dtype DType) bool {
	switch v.(type) {
	case int64:
		return dtype == Int64
	case float64:
		return dtype == Float64
	case string:
		return dtype == String
	case bool:
		return dtype == Bool
	}
	return false
}

// FromRecords rebuilds a table from row-shaped data using an explicit column
// order and dtypes, coercing the loose types row decoding produces (ints for
// float columns, byte slices for strings). Missing keys and nils become null
// cells.
func FromRecords(names []string, dtypes []DType, recs []map[string]any) (*Table, error) {
	if len(names) != len(dtypes) {
		return nil, fmt.Errorf("got %d names for %d dtypes", len(names), len(dtypes))
	}
	b := NewBuilder()
	for i, name := range names {
		vals := make([]any, len(recs))
		for r, rec := range recs {
			v, ok := rec[name]
			if !ok || v == nil {
				continue
			}
			cv, err := coerce(v, dtypes[i])
			if err != nil {
				return nil, fmt.Errorf("column %q row %d: %w", name, r, err)
			}
			vals[r] = cv
		}
		b.AddColumn(name, dtypes[i], vals)
	}
	return b.Build()
}

func coerce(v any, dtype DType) (any, error) {
	switch dtype {
	case Int64:
		switch x := v.(type) {
		case int64:
			return x, nil
		case int32:
			return int64(x), nil
		case int:
			return int64(x), nil
		case float64:
			return int64(x), nil
		}
	case Float64:
		switch x := v.(type) {
		case float64:
			return x, nil
		case float32:
			return float64(x), nil
		case int64:
			return float64(x), nil
		case int:
			return float64(x), nil
		}
	case String:
		switch x := v.(type) {
		case string:
			return x, nil
		case []byte:
			return string(x), nil
		}
	case Bool:
		if x, ok := v.(bool); ok {
			return x, nil
		}
	}
	return nil, fmt.Errorf("cannot coerce %T to %s", v, dtype)
}

// ParseDType maps a metadata type name back to its DType.
func ParseDType(s string) (DType, error) {
	switch s {
	case "int64":
		return Int64, nil
	case "float64":
		return Float64, nil
	case "string":
		return String, nil
	case "bool":
		return Bool, nil
	}
	return 0, fmt.Errorf("unknown dtype %q", s)
}
