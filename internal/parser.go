package internal

import (
	"strconv"
	"strings"

	"github.com/pingcap/tidb/pkg/parser"
	"github.com/pingcap/tidb/pkg/parser/ast"
	"github.com/pingcap/tidb/pkg/parser/format"
	_ "github.com/pingcap/tidb/pkg/parser/test_driver"

	"github.com/golem-base/golemsql"
)

// Analyzer parses SQL text and resolves it against the catalog into a
// typed plan. It uses TiDB's parser, so the accepted grammar is MySQL.
type Analyzer struct {
	p          *parser.Parser
	catalog    *Catalog
	defaultTTL uint64
}

// NewAnalyzer creates an analyzer bound to a catalog.
func NewAnalyzer(catalog *Catalog, defaultTTL uint64) *Analyzer {
	return &Analyzer{
		p:          parser.New(),
		catalog:    catalog,
		defaultTTL: defaultTTL,
	}
}

// Analyze turns one SQL statement into a plan. Introspection
// statements are recognized before the full parse so they stay
// independent of the SQL grammar.
func (a *Analyzer) Analyze(sql string) (Plan, error) {
	if plan := a.analyzeIntrospection(sql); plan != nil {
		return plan, nil
	}

	stmts, _, err := a.p.Parse(sql, "", "")
	if err != nil {
		return nil, golemsql.NewProgrammingError(golemsql.ErrCodeParseFailed, "cannot parse statement").WithCause(err)
	}
	if len(stmts) != 1 {
		return nil, golemsql.NewNotSupportedError(golemsql.ErrCodeUnsupportedSQL,
			"expected exactly one statement, got %d", len(stmts))
	}

	switch stmt := stmts[0].(type) {
	case *ast.CreateTableStmt:
		return a.analyzeCreateTable(stmt)
	case *ast.DropTableStmt:
		return a.analyzeDropTable(stmt)
	case *ast.CreateIndexStmt:
		return a.analyzeCreateIndex(stmt)
	case *ast.DropIndexStmt:
		return a.analyzeDropIndex(stmt)
	case *ast.AlterTableStmt:
		return a.analyzeAlterTable(stmt)
	case *ast.InsertStmt:
		return a.analyzeInsert(stmt)
	case *ast.UpdateStmt:
		return a.analyzeUpdate(stmt)
	case *ast.DeleteStmt:
		return a.analyzeDelete(stmt)
	case *ast.SelectStmt:
		return a.analyzeSelect(stmt)
	default:
		return nil, golemsql.NewNotSupportedError(golemsql.ErrCodeUnsupportedSQL,
			"unsupported statement %T", stmt)
	}
}

// analyzeIntrospection matches SHOW TABLES and DESCRIBE/DESC <table>.
// These never touch the backing store.
func (a *Analyzer) analyzeIntrospection(sql string) Plan {
	trimmed := strings.TrimSuffix(strings.TrimSpace(sql), ";")
	upper := strings.ToUpper(trimmed)

	if upper == "SHOW TABLES" {
		return &ShowTablesPlan{}
	}
	for _, kw := range []string{"DESCRIBE ", "DESC "} {
		if strings.HasPrefix(upper, kw) {
			name := strings.TrimSpace(trimmed[len(kw):])
			name = strings.Trim(name, "`")
			if validIdentifier(name) {
				return &DescribeTablePlan{Table: name}
			}
		}
	}
	return nil
}

// --- DDL ---

func (a *Analyzer) analyzeCreateTable(stmt *ast.CreateTableStmt) (Plan, error) {
	table := &golemsql.Table{
		Name:      stmt.Table.Name.O,
		EntityTTL: a.defaultTTL,
	}

	for _, opt := range stmt.Options {
		if opt.Tp == ast.TableOptionComment {
			// the block TTL rides on the table comment: COMMENT 'btl=500'
			if ttl, ok := parseBTLComment(opt.StrValue); ok {
				table.EntityTTL = ttl
			}
		}
	}

	for _, colDef := range stmt.Cols {
		col, err := a.convertColumnDef(colDef, table)
		if err != nil {
			return nil, err
		}
		table.Columns = append(table.Columns, col)
	}

	for _, cons := range stmt.Constraints {
		if err := a.convertTableConstraint(cons, table); err != nil {
			return nil, err
		}
	}

	return &DDLPlan{Op: &CreateTableOp{Table: table, IfNotExists: stmt.IfNotExists}}, nil
}

func (a *Analyzer) analyzeDropTable(stmt *ast.DropTableStmt) (Plan, error) {
	if len(stmt.Tables) != 1 {
		return nil, golemsql.NewNotSupportedError(golemsql.ErrCodeUnsupportedSQL,
			"DROP TABLE supports exactly one table")
	}
	return &DDLPlan{Op: &DropTableOp{Name: stmt.Tables[0].Name.O, IfExists: stmt.IfExists}}, nil
}

func (a *Analyzer) analyzeCreateIndex(stmt *ast.CreateIndexStmt) (Plan, error) {
	if len(stmt.IndexPartSpecifications) != 1 {
		return nil, golemsql.NewNotSupportedError(golemsql.ErrCodeUnsupportedSQL,
			"composite indexes are not supported; AND single-column predicates instead")
	}
	spec := stmt.IndexPartSpecifications[0]
	if spec.Column == nil {
		return nil, golemsql.NewNotSupportedError(golemsql.ErrCodeUnsupportedSQL,
			"expression indexes are not supported")
	}
	return &DDLPlan{Op: &CreateIndexOp{
		Name:   stmt.IndexName,
		Table:  stmt.Table.Name.O,
		Column: spec.Column.Name.O,
	}}, nil
}

func (a *Analyzer) analyzeDropIndex(stmt *ast.DropIndexStmt) (Plan, error) {
	return &DDLPlan{Op: &DropIndexOp{Name: stmt.IndexName, Table: stmt.Table.Name.O}}, nil
}

func (a *Analyzer) analyzeAlterTable(stmt *ast.AlterTableStmt) (Plan, error) {
	if len(stmt.Specs) != 1 {
		return nil, golemsql.NewNotSupportedError(golemsql.ErrCodeUnsupportedSQL,
			"ALTER TABLE supports exactly one alteration per statement")
	}
	spec := stmt.Specs[0]
	tableName := stmt.Table.Name.O

	switch spec.Tp {
	case ast.AlterTableAddColumns:
		if len(spec.NewColumns) != 1 {
			return nil, golemsql.NewNotSupportedError(golemsql.ErrCodeUnsupportedSQL,
				"ADD COLUMN supports exactly one column per statement")
		}
		table, err := a.catalog.Table(tableName)
		if err != nil {
			return nil, err
		}
		col, err := a.convertColumnDef(spec.NewColumns[0], table)
		if err != nil {
			return nil, err
		}
		return &DDLPlan{Op: &AddColumnOp{Table: tableName, Column: col}}, nil

	case ast.AlterTableAddConstraint:
		cons := spec.Constraint
		switch cons.Tp {
		case ast.ConstraintUniq, ast.ConstraintUniqKey, ast.ConstraintUniqIndex:
			return &DDLPlan{Op: &AddConstraintOp{Table: tableName, Constraint: &golemsql.Constraint{
				Name:    cons.Name,
				Kind:    golemsql.ConstraintUnique,
				Columns: constraintColumns(cons),
			}}}, nil
		case ast.ConstraintForeignKey:
			fk := &golemsql.Constraint{
				Name:    cons.Name,
				Kind:    golemsql.ConstraintForeignKey,
				Columns: constraintColumns(cons),
			}
			if cons.Refer != nil {
				fk.RefTable = cons.Refer.Table.Name.O
				for _, refCol := range cons.Refer.IndexPartSpecifications {
					if refCol.Column != nil {
						fk.RefColumns = append(fk.RefColumns, refCol.Column.Name.O)
					}
				}
			}
			return &DDLPlan{Op: &AddConstraintOp{Table: tableName, Constraint: fk}}, nil
		}
		return nil, golemsql.NewNotSupportedError(golemsql.ErrCodeUnsupportedSQL,
			"unsupported constraint in ALTER TABLE")
	}
	return nil, golemsql.NewNotSupportedError(golemsql.ErrCodeUnsupportedSQL,
		"unsupported ALTER TABLE alteration")
}

func constraintColumns(cons *ast.Constraint) []string {
	cols := make([]string, 0, len(cons.Keys))
	for _, key := range cons.Keys {
		if key.Column != nil {
			cols = append(cols, key.Column.Name.O)
		}
	}
	return cols
}

// convertColumnDef maps a parsed column definition onto the catalog
// column model. Inline UNIQUE declarations land on the table as
// recorded constraints.
func (a *Analyzer) convertColumnDef(colDef *ast.ColumnDef, table *golemsql.Table) (*golemsql.Column, error) {
	col := &golemsql.Column{
		Name:     colDef.Name.Name.O,
		Nullable: true,
	}

	sqlType, length, precision, scale, err := mapFieldType(colDef.Tp.String())
	if err != nil {
		return nil, err
	}
	col.Type = sqlType
	col.Length = length
	col.Precision = precision
	col.Scale = scale

	for _, opt := range colDef.Options {
		switch opt.Tp {
		case ast.ColumnOptionNotNull:
			col.Nullable = false
		case ast.ColumnOptionNull:
			col.Nullable = true
		case ast.ColumnOptionPrimaryKey:
			col.PrimaryKey = true
			col.Nullable = false
			col.Indexed = true
		case ast.ColumnOptionAutoIncrement:
			col.AutoIncrement = true
			col.Default = golemsql.DefaultAutoIncrement
			col.HasDefault = true
		case ast.ColumnOptionDefaultValue:
			col.Default = defaultFromExpr(opt.Expr)
			col.HasDefault = true
		case ast.ColumnOptionUniqKey:
			table.Constraints = append(table.Constraints, &golemsql.Constraint{
				Kind:    golemsql.ConstraintUnique,
				Columns: []string{col.Name},
			})
		case ast.ColumnOptionReference:
			if opt.Refer == nil {
				continue
			}
			fk := &golemsql.Constraint{
				Kind:     golemsql.ConstraintForeignKey,
				Columns:  []string{col.Name},
				RefTable: opt.Refer.Table.Name.O,
			}
			for _, refCol := range opt.Refer.IndexPartSpecifications {
				if refCol.Column != nil {
					fk.RefColumns = append(fk.RefColumns, refCol.Column.Name.O)
				}
			}
			table.Constraints = append(table.Constraints, fk)
		case ast.ColumnOptionComment:
			// ignored
		}
	}
	return col, nil
}

func (a *Analyzer) convertTableConstraint(cons *ast.Constraint, table *golemsql.Table) error {
	switch cons.Tp {
	case ast.ConstraintPrimaryKey:
		if len(cons.Keys) != 1 || cons.Keys[0].Column == nil {
			return golemsql.NewNotSupportedError(golemsql.ErrCodeUnsupportedSQL,
				"composite primary keys are not supported")
		}
		name := cons.Keys[0].Column.Name.O
		col := table.FindColumn(name)
		if col == nil {
			return golemsql.NewProgrammingError(golemsql.ErrCodeUnknownColumn,
				"primary key references unknown column").WithTable(table.Name).WithColumn(name)
		}
		col.PrimaryKey = true
		col.Nullable = false
		col.Indexed = true
		return nil

	case ast.ConstraintKey, ast.ConstraintIndex:
		if len(cons.Keys) != 1 || cons.Keys[0].Column == nil {
			return golemsql.NewNotSupportedError(golemsql.ErrCodeUnsupportedSQL,
				"composite indexes are not supported; AND single-column predicates instead")
		}
		table.Indexes = append(table.Indexes, &golemsql.Index{
			Name:   cons.Name,
			Column: cons.Keys[0].Column.Name.O,
		})
		return nil

	case ast.ConstraintUniq, ast.ConstraintUniqKey, ast.ConstraintUniqIndex:
		table.Constraints = append(table.Constraints, &golemsql.Constraint{
			Name:    cons.Name,
			Kind:    golemsql.ConstraintUnique,
			Columns: constraintColumns(cons),
		})
		return nil

	case ast.ConstraintForeignKey:
		fk := &golemsql.Constraint{
			Name:    cons.Name,
			Kind:    golemsql.ConstraintForeignKey,
			Columns: constraintColumns(cons),
		}
		if cons.Refer != nil {
			fk.RefTable = cons.Refer.Table.Name.O
			for _, refCol := range cons.Refer.IndexPartSpecifications {
				if refCol.Column != nil {
					fk.RefColumns = append(fk.RefColumns, refCol.Column.Name.O)
				}
			}
		}
		table.Constraints = append(table.Constraints, fk)
		return nil
	}
	return golemsql.NewNotSupportedError(golemsql.ErrCodeUnsupportedSQL, "unsupported table constraint")
}

// mapFieldType converts the parser's printed field type (for example
// "int(11)", "varchar(50)", "decimal(8,2)", "tinyint(1)") into the
// catalog type model. MySQL spells BOOLEAN as tinyint(1).
func mapFieldType(printed string) (sqlType golemsql.SQLType, length, precision, scale int, err error) {
	raw := strings.ToLower(strings.TrimSpace(printed))
	if strings.Contains(raw, "unsigned") {
		return "", 0, 0, 0, golemsql.NewNotSupportedError(golemsql.ErrCodeUnsupportedSQL,
			"unsigned integer types are not supported")
	}

	name := raw
	var args []int
	if open := strings.IndexByte(raw, '('); open >= 0 {
		name = strings.TrimSpace(raw[:open])
		end := strings.IndexByte(raw, ')')
		if end > open {
			for _, part := range strings.Split(raw[open+1:end], ",") {
				n, convErr := strconv.Atoi(strings.TrimSpace(part))
				if convErr != nil {
					return "", 0, 0, 0, golemsql.NewProgrammingError(golemsql.ErrCodeParseFailed,
						"bad type arguments in %q", printed)
				}
				args = append(args, n)
			}
		}
	}

	switch name {
	case "tinyint":
		if len(args) == 1 && args[0] == 1 {
			return golemsql.TypeBoolean, 0, 0, 0, nil
		}
		return golemsql.TypeTinyInt, 0, 0, 0, nil
	case "smallint":
		return golemsql.TypeSmallInt, 0, 0, 0, nil
	case "int", "integer", "mediumint":
		return golemsql.TypeInteger, 0, 0, 0, nil
	case "bigint":
		return golemsql.TypeBigInt, 0, 0, 0, nil
	case "datetime":
		return golemsql.TypeDateTime, 0, 0, 0, nil
	case "timestamp":
		return golemsql.TypeTimestamp, 0, 0, 0, nil
	case "varchar":
		if len(args) == 1 {
			length = args[0]
		}
		return golemsql.TypeVarChar, length, 0, 0, nil
	case "char":
		if len(args) == 1 {
			length = args[0]
		}
		return golemsql.TypeChar, length, 0, 0, nil
	case "text", "tinytext", "mediumtext", "longtext":
		return golemsql.TypeText, 0, 0, 0, nil
	case "decimal", "numeric":
		precision, scale = 10, 0
		if len(args) >= 1 {
			precision = args[0]
		}
		if len(args) >= 2 {
			scale = args[1]
		}
		return golemsql.TypeDecimal, 0, precision, scale, nil
	case "float":
		return golemsql.TypeFloat, 0, 0, 0, nil
	case "double":
		return golemsql.TypeDouble, 0, 0, 0, nil
	case "real":
		return golemsql.TypeReal, 0, 0, 0, nil
	case "blob", "tinyblob", "mediumblob", "longblob":
		return golemsql.TypeBlob, 0, 0, 0, nil
	case "varbinary", "binary":
		return golemsql.TypeVarBinary, 0, 0, 0, nil
	}
	return "", 0, 0, 0, golemsql.NewNotSupportedError(golemsql.ErrCodeUnsupportedSQL,
		"unsupported column type %q", printed)
}

// parseBTLComment reads a "btl=<blocks>" table comment.
func parseBTLComment(comment string) (uint64, bool) {
	for _, field := range strings.Fields(comment) {
		if rest, ok := strings.CutPrefix(strings.ToLower(field), "btl="); ok {
			if n, err := strconv.ParseUint(rest, 10, 64); err == nil {
				return n, true
			}
		}
	}
	return 0, false
}

// defaultFromExpr renders a column DEFAULT expression. Function-style
// defaults collapse to their generator tag.
func defaultFromExpr(expr ast.ExprNode) string {
	text := restoreExpr(expr)
	upper := strings.ToUpper(text)
	if strings.HasPrefix(upper, "CURRENT_TIMESTAMP") || upper == "NOW()" {
		return golemsql.DefaultCurrentTimestamp
	}
	if unquoted, ok := tryUnquoteSQLString(text); ok {
		return unquoted
	}
	return text
}

// restoreExpr prints an expression back to SQL text. The analyzer
// classifies literals from this text rather than reaching into the
// driver value types.
func restoreExpr(expr ast.ExprNode) string {
	if expr == nil {
		return ""
	}
	var sb strings.Builder
	ctx := format.NewRestoreCtx(format.DefaultRestoreFlags, &sb)
	if err := expr.Restore(ctx); err != nil {
		return ""
	}
	return strings.TrimSpace(sb.String())
}

// tryUnquoteSQLString unwraps a single-quoted SQL string literal,
// collapsing doubled quotes and backslash escapes. Restored literals
// may carry a charset introducer (_utf8mb4'...', N'...'), which is
// stripped.
func tryUnquoteSQLString(s string) (string, bool) {
	if len(s) < 2 || s[len(s)-1] != '\'' {
		return "", false
	}
	if s[0] != '\'' {
		q := strings.IndexByte(s, '\'')
		if q <= 0 || !isStringIntroducer(s[:q]) {
			return "", false
		}
		s = s[q:]
		if len(s) < 2 {
			return "", false
		}
	}
	body := s[1 : len(s)-1]
	var b strings.Builder
	for i := 0; i < len(body); i++ {
		c := body[i]
		switch {
		case c == '\'' && i+1 < len(body) && body[i+1] == '\'':
			b.WriteByte('\'')
			i++
		case c == '\\' && i+1 < len(body):
			i++
			switch body[i] {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case 'r':
				b.WriteByte('\r')
			case '0':
				b.WriteByte(0)
			default:
				b.WriteByte(body[i])
			}
		default:
			b.WriteByte(c)
		}
	}
	return b.String(), true
}

// isStringIntroducer recognizes MySQL charset introducers on string
// literals: N'...' and _charset'...'.
func isStringIntroducer(prefix string) bool {
	prefix = strings.TrimSpace(prefix)
	if strings.EqualFold(prefix, "n") {
		return true
	}
	if !strings.HasPrefix(prefix, "_") || len(prefix) == 1 {
		return false
	}
	for _, r := range prefix[1:] {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
		default:
			return false
		}
	}
	return true
}
