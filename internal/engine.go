package internal

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/golem-base/golemsql"
)

// Engine executes analyzed plans against the backing store. One
// engine serves one (app_id, schema_id) pair; statement execution is
// strictly sequential per cursor, and the engine performs no
// locking of its own.
type Engine struct {
	client   golemsql.EntityClient
	catalog  *Catalog
	analyzer *Analyzer
	cfg      *golemsql.Config
	appID    string
	logger   *zap.Logger
}

// NewEngine wires an engine over a store client and a catalog.
func NewEngine(client golemsql.EntityClient, catalog *Catalog, cfg *golemsql.Config, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		client:   client,
		catalog:  catalog,
		analyzer: NewAnalyzer(catalog, cfg.Catalog.DefaultTTL),
		cfg:      cfg,
		appID:    cfg.Connection.AppID,
		logger:   logger,
	}
}

// Execute analyzes and runs one SQL statement.
func (e *Engine) Execute(ctx context.Context, sql string) (*golemsql.ExecResult, error) {
	started := time.Now()
	plan, err := e.analyzer.Analyze(sql)
	if err != nil {
		return nil, err
	}

	var result *golemsql.ExecResult
	switch p := plan.(type) {
	case *DDLPlan:
		err = e.catalog.Apply(p.Op)
		result = &golemsql.ExecResult{}
	case *ShowTablesPlan:
		result = e.executeShowTables()
	case *DescribeTablePlan:
		result, err = e.executeDescribe(p)
	case *SelectConstantPlan:
		result = executeSelectConstant(p)
	case *InsertPlan:
		result, err = e.executeInsert(ctx, p)
	case *UpdatePlan:
		result, err = e.executeUpdate(ctx, p)
	case *DeletePlan:
		result, err = e.executeDelete(ctx, p)
	case *SelectPlan:
		result, err = e.executeSelect(ctx, p)
	default:
		err = golemsql.NewInternalError(golemsql.ErrCodeInternalFailure, "unhandled plan %T", plan)
	}
	if err != nil {
		return nil, err
	}

	e.logger.Debug("statement executed",
		zap.String("app_id", e.appID),
		zap.Int64("rows", result.RowCount),
		zap.Duration("elapsed", time.Since(started)))
	return result, nil
}

// --- introspection (catalog only, no store round-trip) ---

func (e *Engine) executeShowTables() *golemsql.ExecResult {
	names := e.catalog.TableNames()
	rows := make([][]any, 0, len(names))
	for _, name := range names {
		rows = append(rows, []any{name})
	}
	return &golemsql.ExecResult{
		Columns:  []golemsql.ResultColumn{{Name: "Tables", Type: golemsql.TypeText}},
		Rows:     rows,
		RowCount: int64(len(rows)),
	}
}

func (e *Engine) executeDescribe(plan *DescribeTablePlan) (*golemsql.ExecResult, error) {
	table, err := e.catalog.Table(plan.Table)
	if err != nil {
		return nil, err
	}
	rows := make([][]any, 0, len(table.Columns))
	for _, col := range table.Columns {
		nullable := "YES"
		if !col.Nullable {
			nullable = "NO"
		}
		key := ""
		switch {
		case col.PrimaryKey:
			key = "PRI"
		case table.IsIndexed(col.Name):
			key = "MUL"
		}
		var def any
		if col.HasDefault {
			def = col.Default
		}
		extra := ""
		if col.AutoIncrement {
			extra = "auto_increment"
		}
		rows = append(rows, []any{col.Name, renderTypeName(col), nullable, key, def, extra})
	}
	return &golemsql.ExecResult{
		Columns: []golemsql.ResultColumn{
			{Name: "Field", Type: golemsql.TypeText},
			{Name: "Type", Type: golemsql.TypeText},
			{Name: "Null", Type: golemsql.TypeText},
			{Name: "Key", Type: golemsql.TypeText},
			{Name: "Default", Type: golemsql.TypeText},
			{Name: "Extra", Type: golemsql.TypeText},
		},
		Rows:     rows,
		RowCount: int64(len(rows)),
	}, nil
}

func renderTypeName(col *golemsql.Column) string {
	switch col.Type {
	case golemsql.TypeVarChar, golemsql.TypeChar:
		if col.Length > 0 {
			return fmt.Sprintf("%s(%d)", col.Type, col.Length)
		}
		return string(col.Type)
	case golemsql.TypeDecimal, golemsql.TypeNumeric:
		return fmt.Sprintf("%s(%d,%d)", col.Type, col.Precision, col.Scale)
	default:
		return string(col.Type)
	}
}

func executeSelectConstant(plan *SelectConstantPlan) *golemsql.ExecResult {
	columns := make([]golemsql.ResultColumn, len(plan.Values))
	for i, value := range plan.Values {
		columns[i] = golemsql.ResultColumn{Name: plan.Names[i], Type: constantType(value)}
	}
	return &golemsql.ExecResult{Columns: columns, Rows: [][]any{plan.Values}, RowCount: 1}
}

func constantType(value any) golemsql.SQLType {
	switch value.(type) {
	case int64:
		return golemsql.TypeBigInt
	case float64:
		return golemsql.TypeDouble
	case bool:
		return golemsql.TypeBoolean
	default:
		return golemsql.TypeText
	}
}

// --- read path ---

// entityRow pairs a decoded row with its store entity key so updates
// and deletes can address the entity.
type entityRow struct {
	key string
	row golemsql.Row
}

// selectEntities runs the translated query and applies any residual
// filter the store could not express.
func (e *Engine) selectEntities(ctx context.Context, table *golemsql.Table, cond *Condition) ([]entityRow, error) {
	translation, err := TranslateQuery(e.appID, table, cond)
	if err != nil {
		return nil, err
	}
	results, err := e.queryEntities(ctx, translation.Predicate)
	if err != nil {
		return nil, err
	}

	rows := make([]entityRow, 0, len(results))
	for _, res := range results {
		row, err := DecodeRow(table, res.Value)
		if err != nil {
			return nil, err
		}
		if translation.Residual != nil && !EvalCondition(translation.Residual, row) {
			continue
		}
		rows = append(rows, entityRow{key: res.Key, row: row})
	}
	return rows, nil
}

func (e *Engine) executeSelect(ctx context.Context, plan *SelectPlan) (*golemsql.ExecResult, error) {
	matched, err := e.selectEntities(ctx, plan.Table, plan.Where)
	if err != nil {
		return nil, err
	}

	// ORDER BY is always applied in core: the store's result order is
	// implementation-defined.
	if len(plan.OrderBy) > 0 {
		sortRows(plan.Table, matched, plan.OrderBy)
	}

	if plan.Offset > 0 {
		if plan.Offset >= len(matched) {
			matched = nil
		} else {
			matched = matched[plan.Offset:]
		}
	}
	if plan.HasLimit && plan.Limit < len(matched) {
		matched = matched[:plan.Limit]
	}
	if fetchCap := e.cfg.Query.MaxFetchSize; fetchCap > 0 && len(matched) > fetchCap {
		matched = matched[:fetchCap]
	}

	columns := plan.Columns
	if len(columns) == 0 {
		columns = make([]string, 0, len(plan.Table.Columns))
		for _, col := range plan.Table.Columns {
			columns = append(columns, col.Name)
		}
	}

	result := &golemsql.ExecResult{Columns: make([]golemsql.ResultColumn, len(columns))}
	for i, name := range columns {
		result.Columns[i] = golemsql.ResultColumn{Name: name, Type: plan.Table.FindColumn(name).Type}
	}
	for _, er := range matched {
		out := make([]any, len(columns))
		for i, name := range columns {
			out[i] = er.row[name]
		}
		result.Rows = append(result.Rows, out)
	}
	result.RowCount = int64(len(result.Rows))
	return result, nil
}

// sortRows orders rows by the ORDER BY terms. NULL sorts before
// every value, matching what an ascending index scan would yield.
func sortRows(table *golemsql.Table, rows []entityRow, orderBy []OrderSpec) {
	sort.SliceStable(rows, func(i, j int) bool {
		for _, spec := range orderBy {
			col := table.FindColumn(spec.Column)
			a, b := rows[i].row[spec.Column], rows[j].row[spec.Column]

			var cmp int
			switch {
			case a == nil && b == nil:
				cmp = 0
			case a == nil:
				cmp = -1
			case b == nil:
				cmp = 1
			default:
				cmp, _ = compareValues(col, a, b)
			}
			if spec.Desc {
				cmp = -cmp
			}
			if cmp != 0 {
				return cmp < 0
			}
		}
		return false
	})
}

// --- store round-trips ---

// queryEntities reads with a per-call timeout and bounded exponential
// backoff. Only reads retry; the store has no idempotency tokens, so
// a write that may have landed must not be repeated.
func (e *Engine) queryEntities(ctx context.Context, predicate string) ([]golemsql.QueryResult, error) {
	operation := func() ([]golemsql.QueryResult, error) {
		callCtx, cancel := context.WithTimeout(ctx, e.cfg.Query.Timeout)
		defer cancel()
		results, err := e.client.QueryEntities(callCtx, predicate)
		if err != nil {
			return nil, e.wrapStoreError(err, callCtx)
		}
		return results, nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = e.cfg.Query.RetryBaseDelay
	results, err := backoff.RetryNotifyWithData(
		operation,
		backoff.WithContext(backoff.WithMaxRetries(policy, uint64(e.cfg.Query.MaxReadRetries)), ctx),
		func(err error, wait time.Duration) {
			e.logger.Warn("query retry",
				zap.Error(err),
				zap.Duration("backoff", wait))
		},
	)
	if err != nil {
		return nil, err
	}
	return results, nil
}

// wrapStoreError lifts a client failure into the operational class,
// preserving the original message.
func (e *Engine) wrapStoreError(err error, callCtx context.Context) error {
	if _, ok := golemsql.AsError(err); ok {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		return golemsql.NewOperationalError(golemsql.ErrCodeTimeout, "timeout").WithCause(err)
	}
	return golemsql.NewOperationalError(golemsql.ErrCodeStoreRPC, "backing store call failed").WithCause(err)
}
