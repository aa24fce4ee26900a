package internal

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/golem-base/golemsql"
)

// MemStore is an in-process EntityClient: a map of entities plus an
// evaluator for the store's predicate grammar. It backs the test
// suites and the CLI's dry-run mode; it does not expire BTLs.
type MemStore struct {
	mu       sync.Mutex
	entities map[string]golemsql.Entity
	block    uint64
	address  string
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		entities: make(map[string]golemsql.Entity),
		address:  "0x" + strings.ReplaceAll(uuid.NewString(), "-", ""),
	}
}

// Len reports the number of live entities.
func (m *MemStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entities)
}

func (m *MemStore) CreateEntities(ctx context.Context, entities []golemsql.Entity) ([]golemsql.Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	receipts := make([]golemsql.Receipt, 0, len(entities))
	for _, entity := range entities {
		m.block++
		sum := sha256.Sum256(append(entity.Payload, []byte(uuid.NewString())...))
		key := "0x" + hex.EncodeToString(sum[:])
		m.entities[key] = cloneEntity(entity)
		receipts = append(receipts, golemsql.Receipt{Key: key, ExpirationBlock: m.block + entity.BTL})
	}
	return receipts, nil
}

func (m *MemStore) UpdateEntities(ctx context.Context, updates []golemsql.EntityUpdate) ([]golemsql.Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	receipts := make([]golemsql.Receipt, 0, len(updates))
	for _, update := range updates {
		if _, ok := m.entities[update.Key]; !ok {
			return receipts, fmt.Errorf("entity %s not found", update.Key)
		}
		m.block++
		m.entities[update.Key] = cloneEntity(update.Entity)
		receipts = append(receipts, golemsql.Receipt{Key: update.Key, ExpirationBlock: m.block + update.BTL})
	}
	return receipts, nil
}

func (m *MemStore) DeleteEntities(ctx context.Context, keys []string) ([]golemsql.Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	receipts := make([]golemsql.Receipt, 0, len(keys))
	for _, key := range keys {
		if _, ok := m.entities[key]; !ok {
			return receipts, fmt.Errorf("entity %s not found", key)
		}
		delete(m.entities, key)
		receipts = append(receipts, golemsql.Receipt{Key: key})
	}
	return receipts, nil
}

func (m *MemStore) QueryEntities(ctx context.Context, predicate string) ([]golemsql.QueryResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	expr, err := parsePredicate(predicate)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var results []golemsql.QueryResult
	for key, entity := range m.entities {
		if expr.eval(entity) {
			value := make([]byte, len(entity.Payload))
			copy(value, entity.Payload)
			results = append(results, golemsql.QueryResult{Key: key, Value: value})
		}
	}
	return results, nil
}

func (m *MemStore) GetAccountAddress(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return m.address, nil
}

func cloneEntity(entity golemsql.Entity) golemsql.Entity {
	out := golemsql.Entity{
		Payload:            append([]byte(nil), entity.Payload...),
		BTL:                entity.BTL,
		StringAnnotations:  make(map[string]string, len(entity.StringAnnotations)),
		NumericAnnotations: make(map[string]uint64, len(entity.NumericAnnotations)),
	}
	for k, v := range entity.StringAnnotations {
		out.StringAnnotations[k] = v
	}
	for k, v := range entity.NumericAnnotations {
		out.NumericAnnotations[k] = v
	}
	return out
}

// --- predicate grammar ---
//
// orExpr  := andExpr ( '||' andExpr )*
// andExpr := term ( '&&' term )*
// term    := '(' orExpr ')' | ident op value
// op      := '=' | '<' | '<=' | '>' | '>=' | '~'
// value   := '"' chars '"' | uint

type predExpr interface {
	eval(entity golemsql.Entity) bool
}

type predOr struct{ children []predExpr }
type predAnd struct{ children []predExpr }

type predCmp struct {
	field    string
	op       string
	strValue string
	numValue uint64
	isString bool
}

func (p *predOr) eval(entity golemsql.Entity) bool {
	for _, child := range p.children {
		if child.eval(entity) {
			return true
		}
	}
	return false
}

func (p *predAnd) eval(entity golemsql.Entity) bool {
	for _, child := range p.children {
		if !child.eval(entity) {
			return false
		}
	}
	return true
}

func (p *predCmp) eval(entity golemsql.Entity) bool {
	if p.isString {
		value, ok := entity.StringAnnotations[p.field]
		if !ok {
			return false
		}
		if p.op == "~" {
			return globMatch(p.strValue, value)
		}
		return cmpSatisfied(strings.Compare(value, p.strValue), p.op)
	}

	value, ok := entity.NumericAnnotations[p.field]
	if !ok {
		return false
	}
	switch {
	case value < p.numValue:
		return cmpSatisfied(-1, p.op)
	case value > p.numValue:
		return cmpSatisfied(1, p.op)
	default:
		return cmpSatisfied(0, p.op)
	}
}

func cmpSatisfied(cmp int, op string) bool {
	switch op {
	case "=":
		return cmp == 0
	case "<":
		return cmp < 0
	case "<=":
		return cmp <= 0
	case ">":
		return cmp > 0
	case ">=":
		return cmp >= 0
	}
	return false
}

type predParser struct {
	input string
	pos   int
}

func parsePredicate(input string) (predExpr, error) {
	p := &predParser{input: input}
	expr, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos != len(p.input) {
		return nil, fmt.Errorf("predicate: trailing input at offset %d", p.pos)
	}
	return expr, nil
}

func (p *predParser) parseOr() (predExpr, error) {
	first, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	children := []predExpr{first}
	for p.consume("||") {
		next, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		children = append(children, next)
	}
	if len(children) == 1 {
		return first, nil
	}
	return &predOr{children: children}, nil
}

func (p *predParser) parseAnd() (predExpr, error) {
	first, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	children := []predExpr{first}
	for p.consume("&&") {
		next, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		children = append(children, next)
	}
	if len(children) == 1 {
		return first, nil
	}
	return &predAnd{children: children}, nil
}

func (p *predParser) parseTerm() (predExpr, error) {
	p.skipSpace()
	if p.consume("(") {
		expr, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if !p.consume(")") {
			return nil, fmt.Errorf("predicate: missing ')' at offset %d", p.pos)
		}
		return expr, nil
	}

	field, err := p.parseIdent()
	if err != nil {
		return nil, err
	}
	op, err := p.parseOp()
	if err != nil {
		return nil, err
	}

	p.skipSpace()
	if p.pos < len(p.input) && p.input[p.pos] == '"' {
		value, err := p.parseString()
		if err != nil {
			return nil, err
		}
		return &predCmp{field: field, op: op, strValue: value, isString: true}, nil
	}
	value, err := p.parseUint()
	if err != nil {
		return nil, err
	}
	if op == "~" {
		return nil, fmt.Errorf("predicate: glob requires a string operand")
	}
	return &predCmp{field: field, op: op, numValue: value}, nil
}

func (p *predParser) parseIdent() (string, error) {
	p.skipSpace()
	start := p.pos
	for p.pos < len(p.input) {
		c := p.input[p.pos]
		if c == '_' || c == '$' ||
			(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') {
			p.pos++
			continue
		}
		break
	}
	if p.pos == start {
		return "", fmt.Errorf("predicate: expected identifier at offset %d", start)
	}
	return p.input[start:p.pos], nil
}

func (p *predParser) parseOp() (string, error) {
	p.skipSpace()
	for _, op := range []string{"<=", ">=", "=", "<", ">", "~"} {
		if strings.HasPrefix(p.input[p.pos:], op) {
			p.pos += len(op)
			return op, nil
		}
	}
	return "", fmt.Errorf("predicate: expected operator at offset %d", p.pos)
}

func (p *predParser) parseString() (string, error) {
	p.pos++ // opening quote
	var b strings.Builder
	for p.pos < len(p.input) {
		c := p.input[p.pos]
		switch c {
		case '"':
			p.pos++
			return b.String(), nil
		case '\\':
			if p.pos+1 >= len(p.input) {
				return "", fmt.Errorf("predicate: dangling escape")
			}
			p.pos++
			b.WriteByte(p.input[p.pos])
			p.pos++
		default:
			b.WriteByte(c)
			p.pos++
		}
	}
	return "", fmt.Errorf("predicate: unterminated string")
}

func (p *predParser) parseUint() (uint64, error) {
	p.skipSpace()
	start := p.pos
	for p.pos < len(p.input) && p.input[p.pos] >= '0' && p.input[p.pos] <= '9' {
		p.pos++
	}
	if p.pos == start {
		return 0, fmt.Errorf("predicate: expected value at offset %d", start)
	}
	return strconv.ParseUint(p.input[start:p.pos], 10, 64)
}

func (p *predParser) skipSpace() {
	for p.pos < len(p.input) && (p.input[p.pos] == ' ' || p.input[p.pos] == '\t' || p.input[p.pos] == '\n') {
		p.pos++
	}
}

func (p *predParser) consume(token string) bool {
	p.skipSpace()
	if strings.HasPrefix(p.input[p.pos:], token) {
		p.pos += len(token)
		return true
	}
	return false
}

// globMatch implements the store's glob dialect: '*' any sequence,
// '?' any single byte, '[set]' classes, backslash escapes.
func globMatch(pattern, s string) bool {
	return globMatchAt(pattern, s, 0, 0)
}

func globMatchAt(pattern, s string, pi, si int) bool {
	for pi < len(pattern) {
		switch pattern[pi] {
		case '*':
			for skip := si; skip <= len(s); skip++ {
				if globMatchAt(pattern, s, pi+1, skip) {
					return true
				}
			}
			return false
		case '?':
			if si >= len(s) {
				return false
			}
			pi++
			si++
		case '[':
			end := strings.IndexByte(pattern[pi:], ']')
			if end < 0 || si >= len(s) {
				return false
			}
			if !strings.ContainsRune(pattern[pi+1:pi+end], rune(s[si])) {
				return false
			}
			pi += end + 1
			si++
		case '\\':
			pi++
			if pi >= len(pattern) || si >= len(s) || pattern[pi] != s[si] {
				return false
			}
			pi++
			si++
		default:
			if si >= len(s) || pattern[pi] != s[si] {
				return false
			}
			pi++
			si++
		}
	}
	return si == len(s)
}
