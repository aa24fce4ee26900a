package internal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/golem-base/golemsql"
)

func newTestAnalyzer(t *testing.T) (*Analyzer, *Catalog) {
	t.Helper()
	catalog := newTestCatalog(t)
	require.NoError(t, catalog.Apply(&CreateTableOp{Table: &golemsql.Table{
		Name:      "t",
		EntityTTL: 100,
		Columns: []*golemsql.Column{
			{Name: "age", Type: golemsql.TypeInteger, Indexed: true, Nullable: true},
			{Name: "name", Type: golemsql.TypeVarChar, Length: 50, Indexed: true, Nullable: true},
			{Name: "price", Type: golemsql.TypeDecimal, Precision: 8, Scale: 2, Indexed: true, Nullable: true},
			{Name: "x", Type: golemsql.TypeDouble, Nullable: true},
			{Name: "created", Type: golemsql.TypeDateTime, Nullable: true},
		},
	}}))
	return NewAnalyzer(catalog, 100), catalog
}

func TestAnalyzeCreateTable(t *testing.T) {
	analyzer, _ := newTestAnalyzer(t)

	plan, err := analyzer.Analyze(
		"CREATE TABLE users (id INTEGER PRIMARY KEY AUTO_INCREMENT, name VARCHAR(50) NOT NULL, " +
			"active BOOLEAN DEFAULT TRUE, joined DATETIME DEFAULT CURRENT_TIMESTAMP, " +
			"balance DECIMAL(10,2), INDEX (name)) COMMENT 'btl=500'")
	require.NoError(t, err)

	ddl, ok := plan.(*DDLPlan)
	require.True(t, ok)
	create, ok := ddl.Op.(*CreateTableOp)
	require.True(t, ok)

	table := create.Table
	assert.Equal(t, "users", table.Name)
	assert.Equal(t, uint64(500), table.EntityTTL)
	require.Len(t, table.Columns, 5)

	id := table.FindColumn("id")
	require.NotNil(t, id)
	assert.True(t, id.PrimaryKey)
	assert.True(t, id.AutoIncrement)
	assert.False(t, id.Nullable)
	assert.Equal(t, golemsql.TypeInteger, id.Type)

	name := table.FindColumn("name")
	assert.Equal(t, 50, name.Length)
	assert.False(t, name.Nullable)

	active := table.FindColumn("active")
	assert.Equal(t, golemsql.TypeBoolean, active.Type)
	require.True(t, active.HasDefault)
	defaultValue, err := CoerceValue(active, active.Default)
	require.NoError(t, err)
	assert.Equal(t, true, defaultValue)

	joined := table.FindColumn("joined")
	assert.Equal(t, golemsql.DefaultCurrentTimestamp, joined.Default)

	balance := table.FindColumn("balance")
	assert.Equal(t, golemsql.TypeDecimal, balance.Type)
	assert.Equal(t, 10, balance.Precision)
	assert.Equal(t, 2, balance.Scale)

	require.Len(t, table.Indexes, 1)
	assert.Equal(t, "name", table.Indexes[0].Column)
}

func TestAnalyzeIntrospection(t *testing.T) {
	analyzer, _ := newTestAnalyzer(t)

	plan, err := analyzer.Analyze("SHOW TABLES")
	require.NoError(t, err)
	assert.IsType(t, &ShowTablesPlan{}, plan)

	plan, err = analyzer.Analyze("DESCRIBE t;")
	require.NoError(t, err)
	describe, ok := plan.(*DescribeTablePlan)
	require.True(t, ok)
	assert.Equal(t, "t", describe.Table)

	plan, err = analyzer.Analyze("SELECT 1")
	require.NoError(t, err)
	constant, ok := plan.(*SelectConstantPlan)
	require.True(t, ok)
	require.Len(t, constant.Values, 1)
	assert.Equal(t, int64(1), constant.Values[0])
}

func TestAnalyzeInsert(t *testing.T) {
	analyzer, _ := newTestAnalyzer(t)

	plan, err := analyzer.Analyze(
		"INSERT INTO t (age, name, price, created) VALUES (30, 'Al', 10.50, '2024-06-01 12:00:00'), (-5, NULL, NULL, NULL)")
	require.NoError(t, err)

	insert, ok := plan.(*InsertPlan)
	require.True(t, ok)
	require.Len(t, insert.Rows, 2)

	assert.Equal(t, int64(30), insert.Rows[0]["age"])
	assert.Equal(t, "Al", insert.Rows[0]["name"])
	assert.Equal(t, "10.50", insert.Rows[0]["price"])
	assert.Equal(t, time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC), insert.Rows[0]["created"])
	assert.Equal(t, int64(-5), insert.Rows[1]["age"])
	assert.Nil(t, insert.Rows[1]["name"])
}

func TestAnalyzeInsertErrors(t *testing.T) {
	analyzer, _ := newTestAnalyzer(t)

	_, err := analyzer.Analyze("INSERT INTO missing (age) VALUES (1)")
	assert.True(t, golemsql.IsProgrammingError(err))

	_, err = analyzer.Analyze("INSERT INTO t (ghost) VALUES (1)")
	assert.True(t, golemsql.IsProgrammingError(err))

	_, err = analyzer.Analyze("INSERT INTO t (age) VALUES ('old')")
	assert.True(t, golemsql.IsProgrammingError(err), "string into INTEGER must be a type mismatch, got %v", err)

	_, err = analyzer.Analyze("INSERT INTO t (age, name) VALUES (1)")
	assert.True(t, golemsql.IsProgrammingError(err))

	_, err = analyzer.Analyze("INSERT INTO t (price) VALUES (123456789.00)")
	assert.True(t, golemsql.IsDataError(err), "DECIMAL overflow must be a DataError, got %v", err)
}

func TestAnalyzeSelectWhere(t *testing.T) {
	analyzer, _ := newTestAnalyzer(t)

	plan, err := analyzer.Analyze("SELECT * FROM t WHERE age > 30 AND name = 'Al'")
	require.NoError(t, err)
	sel, ok := plan.(*SelectPlan)
	require.True(t, ok)
	require.NotNil(t, sel.Where)
	assert.Equal(t, LogicAnd, sel.Where.Logic)
	require.Len(t, sel.Where.Children, 2)
	assert.Equal(t, OpGt, sel.Where.Children[0].Leaf.Op)
	assert.Equal(t, int64(30), sel.Where.Children[0].Leaf.Value)
	assert.Equal(t, OpEq, sel.Where.Children[1].Leaf.Op)
	assert.Equal(t, "Al", sel.Where.Children[1].Leaf.Value)
}

// End-to-end wire vectors: SQL text in, store predicate out.
func TestAnalyzeAndTranslateVectors(t *testing.T) {
	analyzer, _ := newTestAnalyzer(t)

	tests := []struct {
		sql  string
		want string
	}{
		{
			"SELECT * FROM t WHERE age > 30 AND name = 'Al'",
			`row_type="json" && relation="app.t" && idx_age>9223372036854775838 && idx_name="Al"`,
		},
		{
			"SELECT * FROM t WHERE name LIKE 'Al%'",
			`row_type="json" && relation="app.t" && idx_name ~ "Al*"`,
		},
		{
			"SELECT * FROM t WHERE price >= 10.50",
			`row_type="json" && relation="app.t" && idx_price>=".000010.50"`,
		},
	}
	for _, tt := range tests {
		plan, err := analyzer.Analyze(tt.sql)
		require.NoError(t, err, tt.sql)
		sel, ok := plan.(*SelectPlan)
		require.True(t, ok, tt.sql)

		translation, err := TranslateQuery("app", sel.Table, sel.Where)
		require.NoError(t, err, tt.sql)
		assert.Equal(t, tt.want, translation.Predicate, tt.sql)
		assert.Nil(t, translation.Residual, tt.sql)
	}
}

func TestAnalyzeSelectOrderLimit(t *testing.T) {
	analyzer, _ := newTestAnalyzer(t)

	plan, err := analyzer.Analyze("SELECT age, name FROM t WHERE age >= -1 ORDER BY age DESC LIMIT 10 OFFSET 2")
	require.NoError(t, err)
	sel := plan.(*SelectPlan)

	assert.Equal(t, []string{"age", "name"}, sel.Columns)
	require.Len(t, sel.OrderBy, 1)
	assert.Equal(t, "age", sel.OrderBy[0].Column)
	assert.True(t, sel.OrderBy[0].Desc)
	assert.True(t, sel.HasLimit)
	assert.Equal(t, 10, sel.Limit)
	assert.Equal(t, 2, sel.Offset)
}

func TestAnalyzeUnsupported(t *testing.T) {
	analyzer, _ := newTestAnalyzer(t)

	unsupported := []string{
		"SELECT * FROM t JOIN t2 ON t.age = t2.age",
		"SELECT COUNT(*) FROM t",
		"SELECT * FROM t GROUP BY age",
		"SELECT * FROM t WHERE age IN (1, 2)",
		"SELECT * FROM t WHERE name LIKE '%Al'",
		"SELECT * FROM t WHERE name LIKE 'A_l%'",
		"SELECT * FROM t WHERE age + 1 > 3",
		"SELECT * FROM t WHERE x > 1.0",
		"SELECT * FROM (SELECT age FROM t) sub",
	}
	for _, sql := range unsupported {
		_, err := analyzer.Analyze(sql)
		assert.True(t, golemsql.IsNotSupportedError(err), "%s should be NotSupported, got %v", sql, err)
	}

	_, err := analyzer.Analyze("SELECT * FROM t WHERE ghost = 1")
	assert.True(t, golemsql.IsProgrammingError(err))

	_, err = analyzer.Analyze("SELECT * FROM")
	assert.True(t, golemsql.IsProgrammingError(err))
}

func TestAnalyzeNotEquals(t *testing.T) {
	analyzer, _ := newTestAnalyzer(t)

	plan, err := analyzer.Analyze("SELECT * FROM t WHERE age != 7")
	require.NoError(t, err)
	sel := plan.(*SelectPlan)
	require.NotNil(t, sel.Where)
	assert.Equal(t, LogicNot, sel.Where.Logic)
	assert.Equal(t, OpEq, sel.Where.Children[0].Leaf.Op)
}

func TestAnalyzeUpdateDelete(t *testing.T) {
	analyzer, _ := newTestAnalyzer(t)

	plan, err := analyzer.Analyze("UPDATE t SET name = 'Bo' WHERE age = 1")
	require.NoError(t, err)
	update := plan.(*UpdatePlan)
	assert.Equal(t, "Bo", update.Set["name"])
	require.NotNil(t, update.Where)

	plan, err = analyzer.Analyze("DELETE FROM t WHERE name IS NULL")
	require.NoError(t, err)
	del := plan.(*DeletePlan)
	require.NotNil(t, del.Where)
	assert.Equal(t, OpIsNull, del.Where.Leaf.Op)
}
