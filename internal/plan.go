package internal

import (
	"github.com/golem-base/golemsql"
)

// Typed plans produced by the analyzer and consumed by the engine.

// Plan is an analyzed, catalog-resolved statement.
type Plan interface {
	plan()
}

// DDLOp is one catalog mutation.
type DDLOp interface {
	ddlOp()
}

type CreateTableOp struct {
	Table       *golemsql.Table
	IfNotExists bool
}

type DropTableOp struct {
	Name     string
	IfExists bool
}

type CreateIndexOp struct {
	Name   string
	Table  string
	Column string
}

type DropIndexOp struct {
	Name  string
	Table string
}

type AddColumnOp struct {
	Table  string
	Column *golemsql.Column
}

type AddConstraintOp struct {
	Table      string
	Constraint *golemsql.Constraint
}

func (*CreateTableOp) ddlOp()   {}
func (*DropTableOp) ddlOp()     {}
func (*CreateIndexOp) ddlOp()   {}
func (*DropIndexOp) ddlOp()     {}
func (*AddColumnOp) ddlOp()     {}
func (*AddConstraintOp) ddlOp() {}

// DDLPlan mutates the catalog; it never touches the backing store.
type DDLPlan struct {
	Op DDLOp
}

// InsertPlan writes one or more fully coerced rows.
type InsertPlan struct {
	Table *golemsql.Table
	Rows  []golemsql.Row
}

// UpdatePlan merges Set into every row matching Where.
type UpdatePlan struct {
	Table *golemsql.Table
	Set   golemsql.Row
	Where *Condition // nil = all rows
}

// DeletePlan removes every row matching Where.
type DeletePlan struct {
	Table *golemsql.Table
	Where *Condition
}

// OrderSpec is one ORDER BY term.
type OrderSpec struct {
	Column string
	Desc   bool
}

// SelectPlan reads rows. Columns empty means `*` in definition order.
type SelectPlan struct {
	Table    *golemsql.Table
	Columns  []string
	Where    *Condition
	OrderBy  []OrderSpec
	Limit    int
	Offset   int
	HasLimit bool
}

// ShowTablesPlan and DescribeTablePlan are the introspection surface;
// they read the catalog only.
type ShowTablesPlan struct{}

type DescribeTablePlan struct {
	Table string
}

// SelectConstantPlan evaluates `SELECT <literal>[, ...]` without a
// table.
type SelectConstantPlan struct {
	Names  []string
	Values []any
}

func (*DDLPlan) plan()            {}
func (*InsertPlan) plan()         {}
func (*UpdatePlan) plan()         {}
func (*DeletePlan) plan()         {}
func (*SelectPlan) plan()         {}
func (*ShowTablesPlan) plan()     {}
func (*DescribeTablePlan) plan()  {}
func (*SelectConstantPlan) plan() {}

// CompareOp is a normalized predicate operator.
type CompareOp string

const (
	OpEq        CompareOp = "="
	OpLt        CompareOp = "<"
	OpLe        CompareOp = "<="
	OpGt        CompareOp = ">"
	OpGe        CompareOp = ">="
	OpLike      CompareOp = "like" // prefix-only pattern
	OpIsNull    CompareOp = "is_null"
	OpIsNotNull CompareOp = "is_not_null"
)

// LogicKind joins child conditions.
type LogicKind string

const (
	LogicAnd LogicKind = "and"
	LogicOr  LogicKind = "or"
	LogicNot LogicKind = "not"
)

// Predicate is a normalized leaf: column, operator, coerced value.
// For OpLike, Value is the raw pattern with its trailing '%'.
// Negated marks leaves whose negation has no inverse operator
// (= and LIKE); it is set by NOT push-down and honored by the
// in-core evaluator.
type Predicate struct {
	Column  *golemsql.Column
	Op      CompareOp
	Value   any
	Negated bool
}

// Condition is the normalized WHERE tree. Exactly one of Leaf or
// (Logic, Children) is set; LogicNot has a single child.
type Condition struct {
	Leaf     *Predicate
	Logic    LogicKind
	Children []*Condition
}

// NewLeaf wraps a predicate.
func NewLeaf(p *Predicate) *Condition {
	return &Condition{Leaf: p}
}

// NewLogic joins children under a logic node.
func NewLogic(kind LogicKind, children ...*Condition) *Condition {
	return &Condition{Logic: kind, Children: children}
}
