package dataop

import (
	"testing"

	"github.com/datachat-ai/datachat/table"
)

func predTable(t *testing.T) *table.Table {
	t.Helper()
	return table.NewBuilder().
		AddString("region", []string{"EU", "US", "EU", "APAC"}).
		AddFloat64("sales", []float64{10, 25, 40, 5}).
		AddBool("active", []bool{true, false, true, true}).
		MustBuild()
}

func evalRows(t *testing.T, tbl *table.Table, input string) []int {
	t.Helper()
	expr, err := parsePredicate(input)
	if err != nil {
		t.Fatalf("parse %q: %v", input, err)
	}
	var out []int
	for r := 0; r < tbl.NumRows(); r++ {
		if expr.eval(tbl, r) {
			out = append(out, r)
		}
	}
	return out
}

func TestPredicate_Comparisons(t *testing.T) {
	tbl := predTable(t)
	cases := []struct {
		input string
		want  []int
	}{
		{"sales > 10", []int{1, 2}},
		{"sales >= 10", []int{0, 1, 2}},
		{"sales != 25", []int{0, 2, 3}},
		{"region == 'EU'", []int{0, 2}},
		{`region != "EU"`, []int{1, 3}},
		{"active == true", []int{0, 2, 3}},
		{"sales > 10 AND region == 'EU'", []int{2}},
		{"sales < 10 OR sales > 30", []int{2, 3}},
		{"(region == 'EU' OR region == 'US') AND sales <= 25", []int{0, 1}},
		{"sales > 10 && active == false", []int{1}},
		{"region == 'EU' || region == 'APAC'", []int{0, 2, 3}},
	}
	for _, tc := range cases {
		got := evalRows(t, tbl, tc.input)
		if len(got) != len(tc.want) {
			t.Errorf("%q matched %v, want %v", tc.input, got, tc.want)
			continue
		}
		for i := range got {
			if got[i] != tc.want[i] {
				t.Errorf("%q matched %v, want %v", tc.input, got, tc.want)
				break
			}
		}
	}
}

func TestPredicate_NullsNeverMatch(t *testing.T) {
	tbl := table.NewBuilder().
		AddColumn("v", table.Float64, []any{1.0, nil, 3.0}).
		MustBuild()
	if got := evalRows(t, tbl, "v >= 0"); len(got) != 2 {
		t.Fatalf("null row must not match, got rows %v", got)
	}
	if got := evalRows(t, tbl, "v != 1"); len(got) != 1 || got[0] != 2 {
		t.Fatalf("null row must not match != either, got %v", got)
	}
}

func TestPredicate_ParseErrors(t *testing.T) {
	bad := []string{
		"",
		"sales >",
		"> 10",
		"sales == ",
		"sales = 10 extra",
		"region == unquoted",
		"(sales > 1",
		"sales >> 3",
	}
	for _, input := range bad {
		if _, err := parsePredicate(input); err == nil {
			t.Errorf("expected parse failure for %q", input)
		}
	}
}

func TestPredicate_AndBindsTighterThanOr(t *testing.T) {
	tbl := predTable(t)
	// Without precedence this would read ((APAC OR EU) AND sales>30) = {2}.
	got := evalRows(t, tbl, "region == 'APAC' OR region == 'EU' AND sales > 30")
	if len(got) != 2 || got[0] != 2 || got[1] != 3 {
		t.Fatalf("precedence broken, matched %v", got)
	}
}
