package internal

import (
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/pingcap/tidb/pkg/parser/ast"
	"github.com/pingcap/tidb/pkg/parser/opcode"

	"github.com/golem-base/golemsql"
)

// DML and SELECT resolution: every referenced column is checked
// against the catalog, literals are coerced to the column's canonical
// type, and WHERE clauses are normalized into a Condition tree.

func (a *Analyzer) analyzeInsert(stmt *ast.InsertStmt) (Plan, error) {
	if stmt.IsReplace {
		return nil, golemsql.NewNotSupportedError(golemsql.ErrCodeUnsupportedSQL, "REPLACE is not supported")
	}
	if len(stmt.Setlist) > 0 {
		return nil, golemsql.NewNotSupportedError(golemsql.ErrCodeUnsupportedSQL, "INSERT ... SET is not supported")
	}
	if stmt.Select != nil {
		return nil, golemsql.NewNotSupportedError(golemsql.ErrCodeUnsupportedSQL, "INSERT ... SELECT is not supported")
	}

	tableName, err := singleTableName(stmt.Table)
	if err != nil {
		return nil, err
	}
	table, err := a.catalog.Table(tableName)
	if err != nil {
		return nil, err
	}

	var columns []*golemsql.Column
	if len(stmt.Columns) == 0 {
		columns = table.Columns
	} else {
		columns = make([]*golemsql.Column, 0, len(stmt.Columns))
		for _, colName := range stmt.Columns {
			col := table.FindColumn(colName.Name.O)
			if col == nil {
				return nil, golemsql.NewProgrammingError(golemsql.ErrCodeUnknownColumn,
					"unknown column").WithTable(tableName).WithColumn(colName.Name.O)
			}
			columns = append(columns, col)
		}
	}

	plan := &InsertPlan{Table: table}
	for _, list := range stmt.Lists {
		if len(list) != len(columns) {
			return nil, golemsql.NewProgrammingError(golemsql.ErrCodeParseFailed,
				"INSERT has %d values for %d columns", len(list), len(columns)).WithTable(tableName)
		}
		row := make(golemsql.Row, len(columns))
		for i, expr := range list {
			lit, ok := classifyLiteral(expr)
			if !ok {
				return nil, golemsql.NewNotSupportedError(golemsql.ErrCodeUnsupportedSQL,
					"INSERT values must be literals").WithTable(tableName).WithColumn(columns[i].Name)
			}
			value, err := coerceLiteral(columns[i], lit)
			if err != nil {
				return nil, err
			}
			row[columns[i].Name] = value
		}
		if err := checkRequiredColumns(table, row); err != nil {
			return nil, err
		}
		plan.Rows = append(plan.Rows, row)
	}
	if len(plan.Rows) == 0 {
		return nil, golemsql.NewProgrammingError(golemsql.ErrCodeParseFailed,
			"INSERT without a VALUES list").WithTable(tableName)
	}
	return plan, nil
}

// checkRequiredColumns rejects rows leaving a NOT NULL column without
// a value or a default generator.
func checkRequiredColumns(table *golemsql.Table, row golemsql.Row) error {
	for _, col := range table.Columns {
		if col.Nullable || col.HasDefault || col.AutoIncrement {
			continue
		}
		if v, ok := row[col.Name]; !ok || v == nil {
			return golemsql.NewDataError(golemsql.ErrCodeNullViolation,
				"column is NOT NULL and has no default").WithTable(table.Name).WithColumn(col.Name)
		}
	}
	return nil
}

func (a *Analyzer) analyzeUpdate(stmt *ast.UpdateStmt) (Plan, error) {
	if stmt.Order != nil || stmt.Limit != nil {
		return nil, golemsql.NewNotSupportedError(golemsql.ErrCodeUnsupportedSQL,
			"UPDATE with ORDER BY or LIMIT is not supported")
	}
	tableName, err := singleTableName(stmt.TableRefs)
	if err != nil {
		return nil, err
	}
	table, err := a.catalog.Table(tableName)
	if err != nil {
		return nil, err
	}

	set := make(golemsql.Row, len(stmt.List))
	for _, assign := range stmt.List {
		col := table.FindColumn(assign.Column.Name.O)
		if col == nil {
			return nil, golemsql.NewProgrammingError(golemsql.ErrCodeUnknownColumn,
				"unknown column").WithTable(tableName).WithColumn(assign.Column.Name.O)
		}
		lit, ok := classifyLiteral(assign.Expr)
		if !ok {
			return nil, golemsql.NewNotSupportedError(golemsql.ErrCodeUnsupportedSQL,
				"UPDATE values must be literals").WithTable(tableName).WithColumn(col.Name)
		}
		value, err := coerceLiteral(col, lit)
		if err != nil {
			return nil, err
		}
		if value == nil && !col.Nullable {
			return nil, golemsql.NewDataError(golemsql.ErrCodeNullViolation,
				"column is NOT NULL").WithTable(tableName).WithColumn(col.Name)
		}
		set[col.Name] = value
	}
	if len(set) == 0 {
		return nil, golemsql.NewProgrammingError(golemsql.ErrCodeParseFailed,
			"UPDATE without assignments").WithTable(tableName)
	}

	where, err := a.buildWhere(stmt.Where, table)
	if err != nil {
		return nil, err
	}
	return &UpdatePlan{Table: table, Set: set, Where: where}, nil
}

func (a *Analyzer) analyzeDelete(stmt *ast.DeleteStmt) (Plan, error) {
	if stmt.IsMultiTable {
		return nil, golemsql.NewNotSupportedError(golemsql.ErrCodeUnsupportedSQL,
			"multi-table DELETE is not supported")
	}
	tableName, err := singleTableName(stmt.TableRefs)
	if err != nil {
		return nil, err
	}
	table, err := a.catalog.Table(tableName)
	if err != nil {
		return nil, err
	}
	where, err := a.buildWhere(stmt.Where, table)
	if err != nil {
		return nil, err
	}
	return &DeletePlan{Table: table, Where: where}, nil
}

func (a *Analyzer) analyzeSelect(stmt *ast.SelectStmt) (Plan, error) {
	if stmt.From == nil {
		return a.analyzeSelectConstant(stmt)
	}
	if stmt.GroupBy != nil || stmt.Having != nil {
		return nil, golemsql.NewNotSupportedError(golemsql.ErrCodeUnsupportedSQL,
			"GROUP BY and HAVING are not supported")
	}
	if stmt.Distinct {
		return nil, golemsql.NewNotSupportedError(golemsql.ErrCodeUnsupportedSQL, "DISTINCT is not supported")
	}

	tableName, err := singleTableName(stmt.From)
	if err != nil {
		return nil, err
	}
	table, err := a.catalog.Table(tableName)
	if err != nil {
		return nil, err
	}

	plan := &SelectPlan{Table: table}

	for _, field := range stmt.Fields.Fields {
		if field.WildCard != nil {
			if len(stmt.Fields.Fields) != 1 {
				return nil, golemsql.NewNotSupportedError(golemsql.ErrCodeUnsupportedSQL,
					"mixing * with named columns is not supported")
			}
			break
		}
		colExpr, ok := field.Expr.(*ast.ColumnNameExpr)
		if !ok {
			return nil, golemsql.NewNotSupportedError(golemsql.ErrCodeUnsupportedSQL,
				"only plain column references may be selected")
		}
		col := table.FindColumn(colExpr.Name.Name.O)
		if col == nil {
			return nil, golemsql.NewProgrammingError(golemsql.ErrCodeUnknownColumn,
				"unknown column").WithTable(tableName).WithColumn(colExpr.Name.Name.O)
		}
		plan.Columns = append(plan.Columns, col.Name)
	}

	plan.Where, err = a.buildWhere(stmt.Where, table)
	if err != nil {
		return nil, err
	}

	if stmt.OrderBy != nil {
		for _, item := range stmt.OrderBy.Items {
			colExpr, ok := item.Expr.(*ast.ColumnNameExpr)
			if !ok {
				return nil, golemsql.NewNotSupportedError(golemsql.ErrCodeUnsupportedSQL,
					"ORDER BY supports plain columns only")
			}
			col := table.FindColumn(colExpr.Name.Name.O)
			if col == nil {
				return nil, golemsql.NewProgrammingError(golemsql.ErrCodeUnknownColumn,
					"unknown column").WithTable(tableName).WithColumn(colExpr.Name.Name.O)
			}
			plan.OrderBy = append(plan.OrderBy, OrderSpec{Column: col.Name, Desc: item.Desc})
		}
	}

	if stmt.Limit != nil {
		plan.HasLimit = true
		if stmt.Limit.Count != nil {
			n, err := exprToInt(stmt.Limit.Count)
			if err != nil {
				return nil, err
			}
			plan.Limit = n
		}
		if stmt.Limit.Offset != nil {
			n, err := exprToInt(stmt.Limit.Offset)
			if err != nil {
				return nil, err
			}
			plan.Offset = n
		}
	}
	return plan, nil
}

func (a *Analyzer) analyzeSelectConstant(stmt *ast.SelectStmt) (Plan, error) {
	plan := &SelectConstantPlan{}
	for _, field := range stmt.Fields.Fields {
		lit, ok := classifyLiteral(field.Expr)
		if !ok {
			return nil, golemsql.NewNotSupportedError(golemsql.ErrCodeUnsupportedSQL,
				"SELECT without FROM supports literals only")
		}
		name := field.AsName.O
		if name == "" {
			name = lit.text
		}
		plan.Names = append(plan.Names, name)
		plan.Values = append(plan.Values, lit.value())
	}
	return plan, nil
}

// singleTableName unwraps a FROM clause that must reference exactly
// one plain table. Joins are pushed to the caller-side plan.
func singleTableName(refs *ast.TableRefsClause) (string, error) {
	if refs == nil || refs.TableRefs == nil {
		return "", golemsql.NewProgrammingError(golemsql.ErrCodeParseFailed, "missing table reference")
	}
	join := refs.TableRefs
	if join.Right != nil {
		return "", golemsql.NewNotSupportedError(golemsql.ErrCodeUnsupportedSQL,
			"joins are not supported; evaluate them caller-side")
	}
	source, ok := join.Left.(*ast.TableSource)
	if !ok {
		return "", golemsql.NewNotSupportedError(golemsql.ErrCodeUnsupportedSQL, "unsupported table reference")
	}
	tableName, ok := source.Source.(*ast.TableName)
	if !ok {
		return "", golemsql.NewNotSupportedError(golemsql.ErrCodeUnsupportedSQL,
			"subqueries in FROM are not supported")
	}
	return tableName.Name.O, nil
}

// --- WHERE normalization ---

func (a *Analyzer) buildWhere(expr ast.ExprNode, table *golemsql.Table) (*Condition, error) {
	if expr == nil {
		return nil, nil
	}
	return a.buildCondition(expr, table)
}

func (a *Analyzer) buildCondition(expr ast.ExprNode, table *golemsql.Table) (*Condition, error) {
	switch e := expr.(type) {
	case *ast.ParenthesesExpr:
		return a.buildCondition(e.Expr, table)

	case *ast.BinaryOperationExpr:
		switch e.Op {
		case opcode.LogicAnd, opcode.LogicOr:
			left, err := a.buildCondition(e.L, table)
			if err != nil {
				return nil, err
			}
			right, err := a.buildCondition(e.R, table)
			if err != nil {
				return nil, err
			}
			kind := LogicAnd
			if e.Op == opcode.LogicOr {
				kind = LogicOr
			}
			return NewLogic(kind, left, right), nil

		case opcode.EQ, opcode.NE, opcode.LT, opcode.LE, opcode.GT, opcode.GE:
			return a.buildComparison(e, table)
		}
		return nil, golemsql.NewNotSupportedError(golemsql.ErrCodeUnsupportedSQL,
			"unsupported operator %s in WHERE", e.Op.String())

	case *ast.UnaryOperationExpr:
		if e.Op == opcode.Not || e.Op == opcode.Not2 {
			child, err := a.buildCondition(e.V, table)
			if err != nil {
				return nil, err
			}
			return NewLogic(LogicNot, child), nil
		}
		return nil, golemsql.NewNotSupportedError(golemsql.ErrCodeUnsupportedSQL,
			"unsupported unary operator in WHERE")

	case *ast.PatternLikeOrIlikeExpr:
		return a.buildLike(e, table)

	case *ast.IsNullExpr:
		col, err := a.resolvePredicateColumn(e.Expr, table)
		if err != nil {
			return nil, err
		}
		op := OpIsNull
		if e.Not {
			op = OpIsNotNull
		}
		return NewLeaf(&Predicate{Column: col, Op: op}), nil

	case *ast.PatternInExpr, *ast.BetweenExpr, *ast.SubqueryExpr, *ast.ExistsSubqueryExpr:
		return nil, golemsql.NewNotSupportedError(golemsql.ErrCodeUnsupportedSQL,
			"unsupported construct in WHERE")
	}
	return nil, golemsql.NewNotSupportedError(golemsql.ErrCodeUnsupportedSQL,
		"unsupported expression in WHERE")
}

func (a *Analyzer) buildComparison(e *ast.BinaryOperationExpr, table *golemsql.Table) (*Condition, error) {
	colExpr, valExpr := e.L, e.R
	op := e.Op
	if _, isCol := colExpr.(*ast.ColumnNameExpr); !isCol {
		// literal <op> column: flip operands and mirror the operator
		colExpr, valExpr = e.R, e.L
		switch op {
		case opcode.LT:
			op = opcode.GT
		case opcode.LE:
			op = opcode.GE
		case opcode.GT:
			op = opcode.LT
		case opcode.GE:
			op = opcode.LE
		}
	}

	col, err := a.resolvePredicateColumn(colExpr, table)
	if err != nil {
		return nil, err
	}
	lit, ok := classifyLiteral(valExpr)
	if !ok {
		return nil, golemsql.NewNotSupportedError(golemsql.ErrCodeUnsupportedSQL,
			"comparisons must be against literals").WithTable(table.Name).WithColumn(col.Name)
	}
	if lit.kind == litNull {
		return nil, golemsql.NewProgrammingError(golemsql.ErrCodeTypeMismatch,
			"comparison with NULL is always unknown; use IS NULL").WithColumn(col.Name)
	}
	value, err := coerceLiteral(col, lit)
	if err != nil {
		return nil, err
	}

	var cmp CompareOp
	switch op {
	case opcode.EQ:
		cmp = OpEq
	case opcode.LT:
		cmp = OpLt
	case opcode.LE:
		cmp = OpLe
	case opcode.GT:
		cmp = OpGt
	case opcode.GE:
		cmp = OpGe
	case opcode.NE:
		// a != b lowers to NOT (a = b)
		return NewLogic(LogicNot, NewLeaf(&Predicate{Column: col, Op: OpEq, Value: value})), nil
	}
	return NewLeaf(&Predicate{Column: col, Op: cmp, Value: value}), nil
}

func (a *Analyzer) buildLike(e *ast.PatternLikeOrIlikeExpr, table *golemsql.Table) (*Condition, error) {
	col, err := a.resolvePredicateColumn(e.Expr, table)
	if err != nil {
		return nil, err
	}
	switch col.Type {
	case golemsql.TypeVarChar, golemsql.TypeChar, golemsql.TypeText:
	default:
		return nil, golemsql.NewNotSupportedError(golemsql.ErrCodeUnsupportedLike,
			"LIKE requires a string column").WithTable(table.Name).WithColumn(col.Name)
	}

	lit, ok := classifyLiteral(e.Pattern)
	if !ok || lit.kind != litString {
		return nil, golemsql.NewNotSupportedError(golemsql.ErrCodeUnsupportedLike,
			"LIKE pattern must be a string literal").WithColumn(col.Name)
	}
	pattern := lit.text
	if strings.ContainsAny(pattern, "_") ||
		!strings.HasSuffix(pattern, "%") ||
		strings.Contains(strings.TrimSuffix(pattern, "%"), "%") {
		return nil, golemsql.NewNotSupportedError(golemsql.ErrCodeUnsupportedLike,
			"only prefix patterns ('abc%%') are supported").WithColumn(col.Name)
	}

	leaf := NewLeaf(&Predicate{Column: col, Op: OpLike, Value: pattern})
	if e.Not {
		return NewLogic(LogicNot, leaf), nil
	}
	return leaf, nil
}

// resolvePredicateColumn resolves a column reference inside a WHERE
// clause. Payload-only types can never satisfy a predicate: the store
// has no annotation to compare against.
func (a *Analyzer) resolvePredicateColumn(expr ast.ExprNode, table *golemsql.Table) (*golemsql.Column, error) {
	colExpr, ok := expr.(*ast.ColumnNameExpr)
	if !ok {
		return nil, golemsql.NewNotSupportedError(golemsql.ErrCodeUnsupportedSQL,
			"arithmetic over columns is not supported in WHERE")
	}
	if qualifier := colExpr.Name.Table.O; qualifier != "" && qualifier != table.Name {
		return nil, golemsql.NewProgrammingError(golemsql.ErrCodeUnknownTable,
			"unknown table qualifier %q", qualifier).WithTable(table.Name)
	}
	col := table.FindColumn(colExpr.Name.Name.O)
	if col == nil {
		return nil, golemsql.NewProgrammingError(golemsql.ErrCodeUnknownColumn,
			"unknown column").WithTable(table.Name).WithColumn(colExpr.Name.Name.O)
	}
	if !col.Type.Indexable() {
		return nil, golemsql.NewNotSupportedError(golemsql.ErrCodeNotIndexable,
			"column %s is not indexable", col.Name).WithTable(table.Name).WithColumn(col.Name)
	}
	return col, nil
}

// --- literals ---

type litKind int

const (
	litNull litKind = iota
	litString
	litNumber
	litBool
)

type literal struct {
	kind litKind
	text string
}

func (l literal) value() any {
	switch l.kind {
	case litNull:
		return nil
	case litBool:
		return strings.EqualFold(l.text, "TRUE")
	case litNumber:
		if n, err := strconv.ParseInt(l.text, 10, 64); err == nil {
			return n
		}
		if f, err := strconv.ParseFloat(l.text, 64); err == nil {
			return f
		}
		return l.text
	default:
		return l.text
	}
}

// classifyLiteral recognizes a restored literal expression. Anything
// that is not a plain literal (column refs, arithmetic, functions)
// reports false.
func classifyLiteral(expr ast.ExprNode) (literal, bool) {
	switch expr.(type) {
	case *ast.ColumnNameExpr, *ast.SubqueryExpr, *ast.FuncCallExpr, *ast.AggregateFuncExpr,
		*ast.BinaryOperationExpr, *ast.CaseExpr:
		return literal{}, false
	case *ast.UnaryOperationExpr:
		// allow negative numeric literals: -5 restores as -5
	}

	text := restoreExpr(expr)
	if text == "" {
		return literal{}, false
	}
	upper := strings.ToUpper(text)
	switch upper {
	case "NULL":
		return literal{kind: litNull}, true
	case "TRUE", "FALSE":
		return literal{kind: litBool, text: upper}, true
	}
	if unquoted, ok := tryUnquoteSQLString(text); ok {
		return literal{kind: litString, text: unquoted}, true
	}
	if strings.HasPrefix(upper, "X'") && strings.HasSuffix(text, "'") {
		if raw, err := hex.DecodeString(text[2 : len(text)-1]); err == nil {
			return literal{kind: litString, text: string(raw)}, true
		}
	}
	if isNumericLiteral(text) {
		return literal{kind: litNumber, text: text}, true
	}
	return literal{}, false
}

func isNumericLiteral(s string) bool {
	if s == "" {
		return false
	}
	i := 0
	if s[0] == '-' || s[0] == '+' {
		i++
	}
	digits, dot := 0, false
	for ; i < len(s); i++ {
		switch {
		case s[i] >= '0' && s[i] <= '9':
			digits++
		case s[i] == '.' && !dot:
			dot = true
		default:
			return false
		}
	}
	return digits > 0
}

// coerceLiteral converts a classified literal to the column's
// canonical value, rejecting shape mismatches up front.
func coerceLiteral(col *golemsql.Column, lit literal) (any, error) {
	if lit.kind == litNull {
		return nil, nil
	}
	if lit.kind == litString {
		switch col.Type {
		case golemsql.TypeTinyInt, golemsql.TypeSmallInt, golemsql.TypeInteger, golemsql.TypeBigInt,
			golemsql.TypeFloat, golemsql.TypeDouble, golemsql.TypeReal,
			golemsql.TypeDecimal, golemsql.TypeNumeric:
			return nil, golemsql.NewProgrammingError(golemsql.ErrCodeTypeMismatch,
				"string literal %q does not fit %s", lit.text, col.Type).WithColumn(col.Name)
		}
	}
	if lit.kind == litNumber {
		switch col.Type {
		case golemsql.TypeVarChar, golemsql.TypeChar, golemsql.TypeText:
			return nil, golemsql.NewProgrammingError(golemsql.ErrCodeTypeMismatch,
				"numeric literal %s does not fit %s", lit.text, col.Type).WithColumn(col.Name)
		}
	}
	return CoerceValue(col, lit.text)
}

func exprToInt(expr ast.ExprNode) (int, error) {
	text := restoreExpr(expr)
	n, err := strconv.Atoi(text)
	if err != nil || n < 0 {
		return 0, golemsql.NewProgrammingError(golemsql.ErrCodeParseFailed,
			"LIMIT/OFFSET must be a non-negative integer, got %q", text)
	}
	return n, nil
}
