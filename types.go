package golemsql

import (
	"context"
	"strings"
)

// SQLType is a declared column type from the supported scalar set.
type SQLType string

const (
	TypeTinyInt   SQLType = "TINYINT"
	TypeSmallInt  SQLType = "SMALLINT"
	TypeInteger   SQLType = "INTEGER"
	TypeBigInt    SQLType = "BIGINT"
	TypeBoolean   SQLType = "BOOLEAN"
	TypeDateTime  SQLType = "DATETIME"
	TypeTimestamp SQLType = "TIMESTAMP"
	TypeVarChar   SQLType = "VARCHAR"
	TypeChar      SQLType = "CHAR"
	TypeText      SQLType = "TEXT"
	TypeDecimal   SQLType = "DECIMAL"
	TypeNumeric   SQLType = "NUMERIC"
	TypeFloat     SQLType = "FLOAT"
	TypeDouble    SQLType = "DOUBLE"
	TypeReal      SQLType = "REAL"
	TypeBlob      SQLType = "BLOB"
	TypeVarBinary SQLType = "VARBINARY"
)

// NormalizeSQLType maps a raw type name to its canonical SQLType.
// Returns false when the name is not a supported scalar type.
func NormalizeSQLType(name string) (SQLType, bool) {
	switch SQLType(strings.ToUpper(strings.TrimSpace(name))) {
	case TypeTinyInt:
		return TypeTinyInt, true
	case TypeSmallInt:
		return TypeSmallInt, true
	case TypeInteger, "INT":
		return TypeInteger, true
	case TypeBigInt:
		return TypeBigInt, true
	case TypeBoolean, "BOOL":
		return TypeBoolean, true
	case TypeDateTime:
		return TypeDateTime, true
	case TypeTimestamp:
		return TypeTimestamp, true
	case TypeVarChar:
		return TypeVarChar, true
	case TypeChar:
		return TypeChar, true
	case TypeText:
		return TypeText, true
	case TypeDecimal:
		return TypeDecimal, true
	case TypeNumeric:
		return TypeNumeric, true
	case TypeFloat:
		return TypeFloat, true
	case TypeDouble:
		return TypeDouble, true
	case TypeReal:
		return TypeReal, true
	case TypeBlob:
		return TypeBlob, true
	case TypeVarBinary:
		return TypeVarBinary, true
	default:
		return "", false
	}
}

// IsIntegerType reports whether the type encodes to a shifted u64
// numeric annotation.
func (t SQLType) IsIntegerType() bool {
	switch t {
	case TypeTinyInt, TypeSmallInt, TypeInteger, TypeBigInt:
		return true
	}
	return false
}

// IsNumericAnnotated reports whether indexed values of this type live
// in the numeric annotation map.
func (t SQLType) IsNumericAnnotated() bool {
	switch t {
	case TypeTinyInt, TypeSmallInt, TypeInteger, TypeBigInt, TypeBoolean, TypeDateTime, TypeTimestamp:
		return true
	}
	return false
}

// IsStringAnnotated reports whether indexed values of this type live
// in the string annotation map. DECIMAL is string-annotated via its
// order-preserving lexicographic encoding.
func (t SQLType) IsStringAnnotated() bool {
	switch t {
	case TypeVarChar, TypeChar, TypeText, TypeDecimal, TypeNumeric:
		return true
	}
	return false
}

// Indexable reports whether a column of this type may carry an index.
// FLOAT/DOUBLE/REAL and binary types are payload-only: the store ranks
// annotations by u64 or byte order and neither agrees with float
// semantics or is wanted for blobs.
func (t SQLType) Indexable() bool {
	return t.IsNumericAnnotated() || t.IsStringAnnotated()
}

// IntWidth returns the bit width used for range validation of integer
// types, or 0 for non-integer types.
func (t SQLType) IntWidth() int {
	switch t {
	case TypeTinyInt:
		return 8
	case TypeSmallInt:
		return 16
	case TypeInteger:
		return 32
	case TypeBigInt:
		return 64
	}
	return 0
}

// Column is one column of a table definition.
type Column struct {
	Name          string  `toml:"name"`
	Type          SQLType `toml:"type"`
	Length        int     `toml:"length,omitempty"`    // VARCHAR/CHAR character limit, 0 = unconstrained
	Precision     int     `toml:"precision,omitempty"` // DECIMAL only
	Scale         int     `toml:"scale,omitempty"`     // DECIMAL only
	Nullable      bool    `toml:"nullable"`
	Default       string  `toml:"default,omitempty"` // literal, or generator tag
	HasDefault    bool    `toml:"has_default,omitempty"`
	AutoIncrement bool    `toml:"auto_increment,omitempty"`
	PrimaryKey    bool    `toml:"primary_key,omitempty"`
	Indexed       bool    `toml:"indexed"`
}

// Default generator tags recognized in Column.Default.
const (
	DefaultCurrentTimestamp = "current_timestamp"
	DefaultAutoIncrement    = "autoincrement"
)

// Index is a named single-column index. Composite indexes are not
// expressible; multi-predicate lookups AND single-column predicates.
type Index struct {
	Name   string `toml:"name"`
	Column string `toml:"column"`
}

// ConstraintKind tags a declared-but-unenforced constraint.
type ConstraintKind string

const (
	ConstraintUnique     ConstraintKind = "unique"
	ConstraintForeignKey ConstraintKind = "foreign_key"
)

// Constraint records a UNIQUE or FOREIGN KEY declaration. The store
// has no conditional write, so these are metadata only.
type Constraint struct {
	Name       string         `toml:"name"`
	Kind       ConstraintKind `toml:"kind"`
	Columns    []string       `toml:"columns"`
	RefTable   string         `toml:"ref_table,omitempty"`
	RefColumns []string       `toml:"ref_columns,omitempty"`
}

// Table is one table definition within a schema.
type Table struct {
	Name        string        `toml:"name"`
	EntityTTL   uint64        `toml:"entity_ttl"`
	Columns     []*Column     `toml:"columns"`
	Indexes     []*Index      `toml:"indexes,omitempty"`
	Constraints []*Constraint `toml:"constraints,omitempty"`
}

// FindColumn returns the column with the given name, or nil.
func (t *Table) FindColumn(name string) *Column {
	for _, c := range t.Columns {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// PrimaryKeyColumn returns the primary key column, or nil.
func (t *Table) PrimaryKeyColumn() *Column {
	for _, c := range t.Columns {
		if c.PrimaryKey {
			return c
		}
	}
	return nil
}

// IsIndexed reports whether the named column is covered by the primary
// key or a declared index.
func (t *Table) IsIndexed(column string) bool {
	if c := t.FindColumn(column); c != nil && (c.Indexed || c.PrimaryKey) {
		return true
	}
	for _, idx := range t.Indexes {
		if idx.Column == column {
			return true
		}
	}
	return false
}

// Schema is the per-tenant table registry persisted by the catalog.
type Schema struct {
	ID     string   `toml:"-"`
	Tables []*Table `toml:"tables"`
}

// FindTable returns the table with the given name, or nil.
func (s *Schema) FindTable(name string) *Table {
	for _, t := range s.Tables {
		if t.Name == name {
			return t
		}
	}
	return nil
}

// Row is a decoded row keyed by column name. Values use the canonical
// Go representation for each SQL type: int64, bool, time.Time, string,
// float64, []byte, or nil.
type Row map[string]any

// ResultColumn describes one column of a result set.
type ResultColumn struct {
	Name string
	Type SQLType
}

// ExecResult is the outcome of one executed statement: a result set
// for reads, an affected-row count for writes.
type ExecResult struct {
	Columns  []ResultColumn
	Rows     [][]any
	RowCount int64
}

// StatementExecutor runs one SQL statement. Implemented by the
// internal engine; consumed by Connection.
type StatementExecutor interface {
	Execute(ctx context.Context, sql string) (*ExecResult, error)
}
