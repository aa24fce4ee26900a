package internal

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golem-base/golemsql"
)

// The translator lowers a normalized condition tree into the store's
// predicate language. Leaves the store cannot express (IS NULL,
// negated LIKE, predicates over unindexed columns) drop into an
// in-core post-filter applied after decoding.

// Translation is the store-side predicate plus the in-core residue.
type Translation struct {
	Predicate string
	Residual  *Condition // nil when the store predicate is exact
}

// TenantScope renders the scope prefix every row query carries.
func TenantScope(appID, table string) string {
	return fmt.Sprintf(`%s=%s && %s=%s`,
		golemsql.AnnotationRowType, quotePredicateString(golemsql.RowTypeJSON),
		golemsql.AnnotationRelation, quotePredicateString(appID+"."+table))
}

// CounterScope renders the predicate selecting one autoincrement
// counter entity.
func CounterScope(appID, table, column string) string {
	return fmt.Sprintf(`%s=%s && %s=%s`,
		golemsql.AnnotationRowType, quotePredicateString(golemsql.RowTypeCounter),
		golemsql.AnnotationRelation, quotePredicateString(appID+"."+table+"."+column))
}

// TranslateQuery builds the full store predicate for a condition over
// one table, ANDed with the tenant scope.
func TranslateQuery(appID string, table *golemsql.Table, cond *Condition) (Translation, error) {
	scope := TenantScope(appID, table.Name)
	if cond == nil {
		return Translation{Predicate: scope}, nil
	}

	nnf := pushNot(cond, false)
	frag, residual, err := lower(table, nnf)
	if err != nil {
		return Translation{}, err
	}

	t := Translation{Predicate: scope, Residual: residual}
	if frag != "" {
		t.Predicate = scope + " && " + frag
	}
	return t, nil
}

// pushNot rewrites the tree into negation normal form. Comparison
// leaves invert their operator; leaves with no exact inverse keep a
// Negated mark and are resolved by lower into post-filters.
func pushNot(cond *Condition, negated bool) *Condition {
	if cond.Leaf != nil {
		leaf := *cond.Leaf
		if !negated {
			return NewLeaf(&leaf)
		}
		switch leaf.Op {
		case OpLt:
			leaf.Op = OpGe
		case OpLe:
			leaf.Op = OpGt
		case OpGt:
			leaf.Op = OpLe
		case OpGe:
			leaf.Op = OpLt
		case OpIsNull:
			leaf.Op = OpIsNotNull
		case OpIsNotNull:
			leaf.Op = OpIsNull
		default:
			// = and LIKE have no single inverse operator
			leaf.Negated = !leaf.Negated
		}
		return NewLeaf(&leaf)
	}

	switch cond.Logic {
	case LogicNot:
		return pushNot(cond.Children[0], !negated)
	case LogicAnd, LogicOr:
		kind := cond.Logic
		if negated {
			if kind == LogicAnd {
				kind = LogicOr
			} else {
				kind = LogicAnd
			}
		}
		children := make([]*Condition, len(cond.Children))
		for i, child := range cond.Children {
			children[i] = pushNot(child, negated)
		}
		return NewLogic(kind, children...)
	}
	return cond
}

// lower renders an NNF tree. The returned fragment is a sound
// over-approximation: every matching row satisfies it, and residual
// re-checks whatever the fragment loosened.
func lower(table *golemsql.Table, cond *Condition) (string, *Condition, error) {
	if cond.Leaf != nil {
		return lowerLeaf(table, cond)
	}

	switch cond.Logic {
	case LogicAnd:
		var frags []string
		var residuals []*Condition
		for _, child := range cond.Children {
			frag, residual, err := lower(table, child)
			if err != nil {
				return "", nil, err
			}
			if frag != "" {
				frags = append(frags, frag)
			}
			if residual != nil {
				residuals = append(residuals, residual)
			}
		}
		return strings.Join(frags, " && "), combineResiduals(LogicAnd, residuals), nil

	case LogicOr:
		var frags []string
		for _, child := range cond.Children {
			frag, residual, err := lower(table, child)
			if err != nil {
				return "", nil, err
			}
			if frag == "" || residual != nil {
				// one unconstrained branch widens the whole OR to a
				// full scan; re-check the entire subtree in core
				return "", cond, nil
			}
			frags = append(frags, frag)
		}
		return "(" + strings.Join(frags, " || ") + ")", nil, nil
	}
	return "", nil, golemsql.NewInternalError(golemsql.ErrCodeInternalFailure, "unexpected logic node")
}

func lowerLeaf(table *golemsql.Table, cond *Condition) (string, *Condition, error) {
	leaf := cond.Leaf

	// IS NULL family is inexpressible: absence of an annotation cannot
	// be queried, and the payload is canonical anyway.
	if leaf.Op == OpIsNull || leaf.Op == OpIsNotNull {
		return "", cond, nil
	}

	// Values on unindexed columns never made it into annotations.
	if !table.IsIndexed(leaf.Column.Name) {
		return "", cond, nil
	}

	if leaf.Negated {
		if leaf.Op == OpEq && leaf.Column.Type.IsNumericAnnotated() {
			// numeric != lowers to a range disjunction
			enc, err := EncodeColumnValue(leaf.Column, leaf.Value)
			if err != nil {
				return "", nil, err
			}
			key := golemsql.IndexAnnotationPrefix + leaf.Column.Name
			frag := fmt.Sprintf("(%s<%d || %s>%d)", key, enc.Numeric, key, enc.Numeric)
			return frag, nil, nil
		}
		// negated string = / LIKE: fetch the scope, filter in core
		return "", cond, nil
	}

	key := golemsql.IndexAnnotationPrefix + leaf.Column.Name

	if leaf.Op == OpLike {
		prefix := strings.TrimSuffix(leaf.Value.(string), "%")
		return key + " ~ " + quotePredicateString(escapeGlob(prefix)+"*"), nil, nil
	}

	enc, err := EncodeColumnValue(leaf.Column, leaf.Value)
	if err != nil {
		return "", nil, err
	}
	if enc.IsNumeric {
		return key + string(leaf.Op) + strconv.FormatUint(enc.Numeric, 10), nil, nil
	}
	return key + string(leaf.Op) + quotePredicateString(enc.Str), nil, nil
}

func combineResiduals(kind LogicKind, residuals []*Condition) *Condition {
	switch len(residuals) {
	case 0:
		return nil
	case 1:
		return residuals[0]
	default:
		return NewLogic(kind, residuals...)
	}
}

// quotePredicateString renders a double-quoted string literal in the
// store's predicate grammar.
func quotePredicateString(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		default:
			b.WriteByte(s[i])
		}
	}
	b.WriteByte('"')
	return b.String()
}

// escapeGlob protects glob metacharacters in a literal prefix.
func escapeGlob(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

// --- in-core residual evaluation ---

// EvalCondition applies a condition tree to a decoded row. SQL
// three-valued logic collapses to boolean here: a comparison against
// NULL is false, which matches what the store-side predicate would
// have returned for a missing annotation.
func EvalCondition(cond *Condition, row golemsql.Row) bool {
	if cond == nil {
		return true
	}
	if cond.Leaf != nil {
		return evalLeaf(cond.Leaf, row)
	}
	switch cond.Logic {
	case LogicAnd:
		for _, child := range cond.Children {
			if !EvalCondition(child, row) {
				return false
			}
		}
		return true
	case LogicOr:
		for _, child := range cond.Children {
			if EvalCondition(child, row) {
				return true
			}
		}
		return false
	case LogicNot:
		return !EvalCondition(cond.Children[0], row)
	}
	return false
}

func evalLeaf(leaf *Predicate, row golemsql.Row) bool {
	value, present := row[leaf.Column.Name]
	isNull := !present || value == nil

	switch leaf.Op {
	case OpIsNull:
		return isNull
	case OpIsNotNull:
		return !isNull
	}
	if isNull {
		return false
	}

	var match bool
	switch leaf.Op {
	case OpLike:
		s, ok := value.(string)
		match = ok && strings.HasPrefix(s, strings.TrimSuffix(leaf.Value.(string), "%"))
	default:
		cmp, ok := compareValues(leaf.Column, value, leaf.Value)
		if !ok {
			return false
		}
		switch leaf.Op {
		case OpEq:
			match = cmp == 0
		case OpLt:
			match = cmp < 0
		case OpLe:
			match = cmp <= 0
		case OpGt:
			match = cmp > 0
		case OpGe:
			match = cmp >= 0
		}
	}
	if leaf.Negated {
		return !match
	}
	return match
}

// compareValues orders two canonical values of one column type.
func compareValues(col *golemsql.Column, a, b any) (int, bool) {
	switch col.Type {
	case golemsql.TypeTinyInt, golemsql.TypeSmallInt, golemsql.TypeInteger, golemsql.TypeBigInt:
		av, aok := a.(int64)
		bv, bok := b.(int64)
		if !aok || !bok {
			return 0, false
		}
		return compareOrdered(av, bv), true

	case golemsql.TypeBoolean:
		av, aok := a.(bool)
		bv, bok := b.(bool)
		if !aok || !bok {
			return 0, false
		}
		return compareOrdered(boolInt(av), boolInt(bv)), true

	case golemsql.TypeDateTime, golemsql.TypeTimestamp:
		av, aok := a.(time.Time)
		bv, bok := b.(time.Time)
		if !aok || !bok {
			return 0, false
		}
		return compareOrdered(av.Unix(), bv.Unix()), true

	case golemsql.TypeVarChar, golemsql.TypeChar, golemsql.TypeText:
		av, aok := a.(string)
		bv, bok := b.(string)
		if !aok || !bok {
			return 0, false
		}
		return strings.Compare(av, bv), true

	case golemsql.TypeDecimal, golemsql.TypeNumeric:
		av, aok := a.(string)
		bv, bok := b.(string)
		if !aok || !bok {
			return 0, false
		}
		ae, errA := EncodeDecimal(av, col.Precision, col.Scale)
		be, errB := EncodeDecimal(bv, col.Precision, col.Scale)
		if errA != nil || errB != nil {
			return 0, false
		}
		return strings.Compare(ae, be), true

	case golemsql.TypeFloat, golemsql.TypeDouble, golemsql.TypeReal:
		av, aok := toComparableFloat(a)
		bv, bok := toComparableFloat(b)
		if !aok || !bok {
			return 0, false
		}
		return compareOrdered(av, bv), true
	}
	return 0, false
}

func compareOrdered[T int64 | float64](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

func toComparableFloat(v any) (float64, bool) {
	switch f := v.(type) {
	case float64:
		return f, true
	case int64:
		return float64(f), true
	}
	return 0, false
}
