package dataop

import (
	"encoding/json"

	"github.com/datachat-ai/datachat/core"
)

// Kind tags the operation variant of a Descriptor.
type Kind string

const (
	// KindAggregation groups rows and aggregates target columns per group.
	KindAggregation Kind = "aggregation"
	// KindFilter retains rows matching a predicate expression.
	KindFilter Kind = "filter"
	// KindSort stably reorders rows by one or more key columns.
	KindSort Kind = "sort"
	// KindStatistical computes correlation or describe summaries.
	KindStatistical Kind = "statistical"
)

// AggFunc names the aggregate applied to each target column within a group.
type AggFunc string

const (
	AggMean  AggFunc = "mean"
	AggSum   AggFunc = "sum"
	AggCount AggFunc = "count"
	AggMin   AggFunc = "min"
	AggMax   AggFunc = "max"
)

// StatMethod selects the statistical computation.
type StatMethod string

const (
	StatCorrelation StatMethod = "correlation"
	StatDescribe    StatMethod = "describe"
)

// Descriptor is a fully validated operation instruction. The variant set is
// closed; each variant carries only its required fields.
type Descriptor interface {
	Kind() Kind
	sealed()
}

// Aggregation partitions rows by the composite key over GroupBy and applies
// Func to each target column within each group.
type Aggregation struct {
	GroupBy []string
	Func    AggFunc
	Targets []string
}

func (Aggregation) Kind() Kind { return KindAggregation }
func (Aggregation) sealed()    {}

// Filter retains rows for which the predicate evaluates true. The expression
// is parsed at construction, so a malformed predicate is a validation
// failure rather than an execution one.
type Filter struct {
	Predicate string

	expr boolExpr
}

func (Filter) Kind() Kind { return KindFilter }
func (Filter) sealed()    {}

// Sort reorders rows by Columns in listed priority order. Ascending holds
// one flag per column.
type Sort struct {
	Columns   []string
	Ascending []bool
}

func (Sort) Kind() Kind { return KindSort }
func (Sort) sealed()    {}

// Statistical computes a correlation matrix or per-column describe summary
// over the named columns.
type Statistical struct {
	Method  StatMethod
	Columns []string
}

func (Statistical) Kind() Kind { return KindStatistical }
func (Statistical) sealed()    {}

// wire mirrors the untrusted JSON shape emitted by the model client.
type wire struct {
	Type             string          `json:"type"`
	Method           string          `json:"method"`
	Columns          []string        `json:"columns"`
	TargetColumns    []string        `json:"target_columns"`
	AggFunc          string          `json:"agg_func"`
	Ascending        json.RawMessage `json:"ascending"`
	Predicate        string          `json:"predicate"`
	Query            string          `json:"query"` // legacy alias for predicate
	AdditionalParams map[string]any  `json:"additional_params"`
}

// ParseDescriptor validates raw descriptor JSON into a Descriptor. Failures
// are, in order of precedence: UnsupportedOperationError for an unknown
// type tag, then ValidationError naming the first missing or malformed
// field.
func ParseDescriptor(raw []byte) (Descriptor, error) {
	var w wire
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, &core.ValidationError{Field: "descriptor", Reason: err.Error()}
	}

	switch Kind(w.Type) {
	case KindAggregation:
		return parseAggregation(w)
	case KindFilter:
		return parseFilter(w)
	case KindSort:
		return parseSort(w)
	case KindStatistical:
		return parseStatistical(w)
	case "":
		return nil, &core.ValidationError{Field: "type"}
	default:
		return nil, &core.UnsupportedOperationError{Type: w.Type}
	}
}

func parseAggregation(w wire) (Descriptor, error) {
	if len(w.Columns) == 0 {
		return nil, &core.ValidationError{Field: "columns"}
	}
	if w.AggFunc == "" {
		return nil, &core.ValidationError{Field: "agg_func"}
	}
	fn := AggFunc(w.AggFunc)
	switch fn {
	case AggMean, AggSum, AggCount, AggMin, AggMax:
	default:
		return nil, &core.ValidationError{Field: "agg_func", Reason: "unknown function " + w.AggFunc}
	}
	if len(w.TargetColumns) == 0 {
		return nil, &core.ValidationError{Field: "target_columns"}
	}
	return Aggregation{GroupBy: w.Columns, Func: fn, Targets: w.TargetColumns}, nil
}

func parseFilter(w wire) (Descriptor, error) {
	pred := w.Predicate
	if pred == "" {
		pred = w.Query
	}
	if pred == "" {
		return nil, &core.ValidationError{Field: "predicate"}
	}
	expr, err := parsePredicate(pred)
	if err != nil {
		return nil, &core.ValidationError{Field: "predicate", Reason: err.Error()}
	}
	return Filter{Predicate: pred, expr: expr}, nil
}

func parseSort(w wire) (Descriptor, error) {
	if len(w.Columns) == 0 {
		return nil, &core.ValidationError{Field: "columns"}
	}
	asc, err := parseAscending(w.Ascending, len(w.Columns))
	if err != nil {
		return nil, err
	}
	return Sort{Columns: w.Columns, Ascending: asc}, nil
}

// parseAscending accepts a single bool (broadcast to every column), a
// per-column bool list, or absence (all ascending).
func parseAscending(raw json.RawMessage, n int) ([]bool, error) {
	asc := make([]bool, n)
	if len(raw) == 0 || string(raw) == "null" {
		for i := range asc {
			asc[i] = true
		}
		return asc, nil
	}
	var single bool
	if err := json.Unmarshal(raw, &single); err == nil {
		for i := range asc {
			asc[i] = single
		}
		return asc, nil
	}
	var list []bool
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, &core.ValidationError{Field: "ascending", Reason: "expected bool or bool list"}
	}
	if len(list) != n {
		return nil, &core.ValidationError{Field: "ascending", Reason: "length does not match columns"}
	}
	return list, nil
}

func parseStatistical(w wire) (Descriptor, error) {
	if w.Method == "" {
		return nil, &core.ValidationError{Field: "method"}
	}
	m := StatMethod(w.Method)
	switch m {
	case StatCorrelation, StatDescribe:
	default:
		return nil, &core.UnsupportedOperationError{Type: "statistical/" + w.Method}
	}
	if len(w.Columns) == 0 {
		return nil, &core.ValidationError{Field: "columns"}
	}
	return Statistical{Method: m, Columns: w.Columns}, nil
}
