package table

import "testing"

func TestBuilder_Validation(t *testing.T) {
	_, err := NewBuilder().
		AddFloat64("a", []float64{1, 2}).
		AddInt64("b", []int64{1}).
		Build()
	if err == nil {
		t.Fatal("expected length mismatch error")
	}

	_, err = NewBuilder().
		AddFloat64("a", []float64{1}).
		AddFloat64("a", []float64{2}).
		Build()
	if err == nil {
		t.Fatal("expected duplicate column error")
	}

	_, err = NewBuilder().
		AddColumn("a", Int64, []any{int64(1), "oops"}).
		Build()
	if err == nil {
		t.Fatal("expected dtype mismatch error")
	}
}

func TestTable_StatsCountsNullsAndDistinct(t *testing.T) {
	tbl := NewBuilder().
		AddColumn("x", String, []any{"a", nil, "a", "b"}).
		MustBuild()
	stats := tbl.Stats()
	if len(stats) != 1 {
		t.Fatalf("expected one column, got %d", len(stats))
	}
	if stats[0].NullCount != 1 || stats[0].Distinct != 2 {
		t.Fatalf("unexpected stats: %+v", stats[0])
	}
}

func TestTable_NumericColumn(t *testing.T) {
	tbl := NewBuilder().
		AddColumn("n", Int64, []any{int64(3), nil}).
		AddString("s", []string{"x", "y"}).
		MustBuild()

	vals, valid, ok := tbl.NumericColumn("n")
	if !ok || vals[0] != 3 || valid[1] {
		t.Fatalf("unexpected extraction: vals=%v valid=%v ok=%v", vals, valid, ok)
	}
	if _, _, ok := tbl.NumericColumn("s"); ok {
		t.Error("string column must not extract as numeric")
	}
}

func TestCompare_Ordering(t *testing.T) {
	cases := []struct {
		a, b any
		want int
	}{
		{int64(1), float64(2), -1},
		{float64(2), int64(2), 0},
		{"a", "b", -1},
		{false, true, -1},
		{nil, int64(0), -1},
		{nil, nil, 0},
	}
	for _, c := range cases {
		if got := Compare(c.a, c.b); got != c.want {
			t.Errorf("Compare(%v, %v) = %d, want %d", c.a, c.b, got, c.want)
		}
	}
}

func TestFromRecords_RoundTrip(t *testing.T) {
	src := NewBuilder().
		AddString("name", []string{"x", "y"}).
		AddColumn("v", Float64, []any{1.5, nil}).
		MustBuild()

	back, err := FromRecords(src.ColumnNames(), []DType{String, Float64}, src.Records())
	if err != nil {
		t.Fatalf("round trip failed: %v", err)
	}
	if back.NumRows() != 2 || back.Value(1, "v") != nil || back.Value(0, "v") != 1.5 {
		t.Fatalf("round trip mismatch: %+v", back.Records())
	}
}

func TestSortedDistinct(t *testing.T) {
	tbl := NewBuilder().
		AddColumn("x", String, []any{"b", nil, "a", "b"}).
		MustBuild()
	got := tbl.SortedDistinct("x")
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("unexpected distinct values: %v", got)
	}
	if tbl.SortedDistinct("missing") != nil {
		t.Error("unknown column must yield nil")
	}
}

func TestHead_ClampsToRowCount(t *testing.T) {
	tbl := NewBuilder().AddInt64("i", []int64{1, 2}).MustBuild()
	if h := tbl.Head(10); h.NumRows() != 2 {
		t.Fatalf("expected 2 rows, got %d", h.NumRows())
	}
}
