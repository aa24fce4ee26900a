package internal

import (
	"testing"

	"github.com/golem-base/golemsql"
)

func translatorTable() *golemsql.Table {
	return &golemsql.Table{
		Name:      "t",
		EntityTTL: 10,
		Columns: []*golemsql.Column{
			{Name: "age", Type: golemsql.TypeInteger, Indexed: true},
			{Name: "name", Type: golemsql.TypeVarChar, Length: 50, Indexed: true, Nullable: true},
			{Name: "price", Type: golemsql.TypeDecimal, Precision: 8, Scale: 2, Indexed: true, Nullable: true},
			{Name: "note", Type: golemsql.TypeText, Nullable: true}, // indexable type, no index
		},
	}
}

func ageCol(t *golemsql.Table) *golemsql.Column   { return t.FindColumn("age") }
func nameCol(t *golemsql.Table) *golemsql.Column  { return t.FindColumn("name") }
func priceCol(t *golemsql.Table) *golemsql.Column { return t.FindColumn("price") }

func TestTranslateScopeOnly(t *testing.T) {
	table := translatorTable()
	got, err := TranslateQuery("app", table, nil)
	if err != nil {
		t.Fatal(err)
	}
	want := `row_type="json" && relation="app.t"`
	if got.Predicate != want {
		t.Errorf("predicate = %q, want %q", got.Predicate, want)
	}
	if got.Residual != nil {
		t.Error("no condition should leave no residual")
	}
}

// The wire-format vectors: these strings are what the store sees.
func TestTranslateKnownVectors(t *testing.T) {
	table := translatorTable()

	tests := []struct {
		name string
		cond *Condition
		want string
	}{
		{
			name: "int and string equality",
			cond: NewLogic(LogicAnd,
				NewLeaf(&Predicate{Column: ageCol(table), Op: OpGt, Value: int64(30)}),
				NewLeaf(&Predicate{Column: nameCol(table), Op: OpEq, Value: "Al"}),
			),
			want: `row_type="json" && relation="app.t" && idx_age>9223372036854775838 && idx_name="Al"`,
		},
		{
			name: "like prefix",
			cond: NewLeaf(&Predicate{Column: nameCol(table), Op: OpLike, Value: "Al%"}),
			want: `row_type="json" && relation="app.t" && idx_name ~ "Al*"`,
		},
		{
			name: "decimal range",
			cond: NewLeaf(&Predicate{Column: priceCol(table), Op: OpGe, Value: "10.50"}),
			want: `row_type="json" && relation="app.t" && idx_price>=".000010.50"`,
		},
		{
			name: "or group is parenthesized",
			cond: NewLogic(LogicOr,
				NewLeaf(&Predicate{Column: ageCol(table), Op: OpLt, Value: int64(0)}),
				NewLeaf(&Predicate{Column: ageCol(table), Op: OpGt, Value: int64(10)}),
			),
			want: `row_type="json" && relation="app.t" && (idx_age<9223372036854775808 || idx_age>9223372036854775818)`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := TranslateQuery("app", table, tt.cond)
			if err != nil {
				t.Fatal(err)
			}
			if got.Predicate != tt.want {
				t.Errorf("predicate = %q\nwant        %q", got.Predicate, tt.want)
			}
			if got.Residual != nil {
				t.Errorf("unexpected residual")
			}
		})
	}
}

func TestTranslateNotPushdown(t *testing.T) {
	table := translatorTable()

	// NOT (age <= 5) inverts to age > 5
	cond := NewLogic(LogicNot, NewLeaf(&Predicate{Column: ageCol(table), Op: OpLe, Value: int64(5)}))
	got, err := TranslateQuery("app", table, cond)
	if err != nil {
		t.Fatal(err)
	}
	want := `row_type="json" && relation="app.t" && idx_age>9223372036854775813`
	if got.Predicate != want {
		t.Errorf("predicate = %q, want %q", got.Predicate, want)
	}
	if got.Residual != nil {
		t.Error("invertible NOT should leave no residual")
	}

	// NOT (a AND b) becomes (NOT a OR NOT b) via De Morgan
	cond = NewLogic(LogicNot, NewLogic(LogicAnd,
		NewLeaf(&Predicate{Column: ageCol(table), Op: OpLt, Value: int64(1)}),
		NewLeaf(&Predicate{Column: ageCol(table), Op: OpGe, Value: int64(9)}),
	))
	got, err = TranslateQuery("app", table, cond)
	if err != nil {
		t.Fatal(err)
	}
	want = `row_type="json" && relation="app.t" && (idx_age>=9223372036854775809 || idx_age<9223372036854775817)`
	if got.Predicate != want {
		t.Errorf("predicate = %q, want %q", got.Predicate, want)
	}
}

func TestTranslateNumericNotEquals(t *testing.T) {
	table := translatorTable()
	cond := NewLogic(LogicNot, NewLeaf(&Predicate{Column: ageCol(table), Op: OpEq, Value: int64(7)}))
	got, err := TranslateQuery("app", table, cond)
	if err != nil {
		t.Fatal(err)
	}
	want := `row_type="json" && relation="app.t" && (idx_age<9223372036854775815 || idx_age>9223372036854775815)`
	if got.Predicate != want {
		t.Errorf("predicate = %q, want %q", got.Predicate, want)
	}
}

func TestTranslateResiduals(t *testing.T) {
	table := translatorTable()

	// IS NULL is never expressible
	cond := NewLeaf(&Predicate{Column: nameCol(table), Op: OpIsNull})
	got, err := TranslateQuery("app", table, cond)
	if err != nil {
		t.Fatal(err)
	}
	if got.Predicate != `row_type="json" && relation="app.t"` {
		t.Errorf("IS NULL must not constrain the store predicate, got %q", got.Predicate)
	}
	if got.Residual == nil {
		t.Fatal("IS NULL must post-filter")
	}

	// unindexed column predicates post-filter
	note := table.FindColumn("note")
	cond = NewLogic(LogicAnd,
		NewLeaf(&Predicate{Column: ageCol(table), Op: OpGt, Value: int64(1)}),
		NewLeaf(&Predicate{Column: note, Op: OpEq, Value: "x"}),
	)
	got, err = TranslateQuery("app", table, cond)
	if err != nil {
		t.Fatal(err)
	}
	if got.Predicate != `row_type="json" && relation="app.t" && idx_age>9223372036854775809` {
		t.Errorf("indexed half must still push down, got %q", got.Predicate)
	}
	if got.Residual == nil {
		t.Fatal("unindexed half must post-filter")
	}

	// an inexpressible OR branch widens the whole OR
	cond = NewLogic(LogicOr,
		NewLeaf(&Predicate{Column: ageCol(table), Op: OpGt, Value: int64(1)}),
		NewLeaf(&Predicate{Column: nameCol(table), Op: OpIsNull}),
	)
	got, err = TranslateQuery("app", table, cond)
	if err != nil {
		t.Fatal(err)
	}
	if got.Predicate != `row_type="json" && relation="app.t"` {
		t.Errorf("OR with inexpressible branch must full-scan the scope, got %q", got.Predicate)
	}
	if got.Residual == nil {
		t.Fatal("whole OR must post-filter")
	}
}

func TestTranslateStringEscaping(t *testing.T) {
	table := translatorTable()
	cond := NewLeaf(&Predicate{Column: nameCol(table), Op: OpEq, Value: `a"b\c`})
	got, err := TranslateQuery("app", table, cond)
	if err != nil {
		t.Fatal(err)
	}
	want := `row_type="json" && relation="app.t" && idx_name="a\"b\\c"`
	if got.Predicate != want {
		t.Errorf("predicate = %q, want %q", got.Predicate, want)
	}
}

func TestTranslateGlobEscaping(t *testing.T) {
	table := translatorTable()
	cond := NewLeaf(&Predicate{Column: nameCol(table), Op: OpLike, Value: "a*b%"})
	got, err := TranslateQuery("app", table, cond)
	if err != nil {
		t.Fatal(err)
	}
	want := `row_type="json" && relation="app.t" && idx_name ~ "a\\*b*"`
	if got.Predicate != want {
		t.Errorf("predicate = %q, want %q", got.Predicate, want)
	}
}

func TestEvalCondition(t *testing.T) {
	table := translatorTable()
	row := golemsql.Row{"age": int64(31), "name": "Alice", "price": "10.50", "note": nil}

	tests := []struct {
		name string
		cond *Condition
		want bool
	}{
		{"gt true", NewLeaf(&Predicate{Column: ageCol(table), Op: OpGt, Value: int64(30)}), true},
		{"gt false", NewLeaf(&Predicate{Column: ageCol(table), Op: OpGt, Value: int64(31)}), false},
		{"like", NewLeaf(&Predicate{Column: nameCol(table), Op: OpLike, Value: "Al%"}), true},
		{"decimal ge", NewLeaf(&Predicate{Column: priceCol(table), Op: OpGe, Value: "10.50"}), true},
		{"is null", NewLeaf(&Predicate{Column: table.FindColumn("note"), Op: OpIsNull}), true},
		{"is not null", NewLeaf(&Predicate{Column: table.FindColumn("note"), Op: OpIsNotNull}), false},
		{
			"and short-circuit",
			NewLogic(LogicAnd,
				NewLeaf(&Predicate{Column: ageCol(table), Op: OpGt, Value: int64(30)}),
				NewLeaf(&Predicate{Column: nameCol(table), Op: OpEq, Value: "Bob"}),
			),
			false,
		},
		{
			"not",
			NewLogic(LogicNot, NewLeaf(&Predicate{Column: nameCol(table), Op: OpEq, Value: "Bob"})),
			true,
		},
		{
			"negated leaf",
			NewLeaf(&Predicate{Column: nameCol(table), Op: OpEq, Value: "Bob", Negated: true}),
			true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EvalCondition(tt.cond, row); got != tt.want {
				t.Errorf("eval = %v, want %v", got, tt.want)
			}
		})
	}
}
