package golemsql

import (
	"context"
)

// Cursor executes statements and iterates result sets, DB-API style.
// A cursor is not safe for concurrent use; execution within one
// cursor is strictly sequential.
//
// UNIQUE and FOREIGN KEY declarations are accepted by DDL but never
// enforced at write time, and autoincrement ids are reserved without
// locking — concurrent INSERTs can draw duplicates. Callers needing
// uniqueness under concurrency must supply explicit ids.
type Cursor struct {
	conn     *Connection
	result   *ExecResult
	fetchPos int
	closed   bool
}

// Execute binds params into the statement and runs it. Bound
// parameters use the %(name)s style; :name is normalized to it.
func (cur *Cursor) Execute(ctx context.Context, query string, params map[string]any) error {
	if cur.closed {
		return NewInterfaceError(ErrCodeCursorClosed, "cursor is closed")
	}
	if cur.conn.isClosed() {
		return NewInterfaceError(ErrCodeConnectionClosed, "connection is closed")
	}

	bound := query
	if params != nil {
		var err error
		bound, err = BindParameters(query, params)
		if err != nil {
			return err
		}
	}

	result, err := cur.conn.executor.Execute(ctx, bound)
	if err != nil {
		cur.result = nil
		cur.fetchPos = 0
		return err
	}
	cur.result = result
	cur.fetchPos = 0
	return nil
}

// Description describes the columns of the current result set, or nil
// after a statement that returns no rows.
func (cur *Cursor) Description() []ResultColumn {
	if cur.result == nil {
		return nil
	}
	return cur.result.Columns
}

// RowCount reports rows returned by the last SELECT or affected by
// the last DML statement; -1 before any execution.
func (cur *Cursor) RowCount() int64 {
	if cur.result == nil {
		return -1
	}
	return cur.result.RowCount
}

// FetchOne returns the next row, or nil when the set is exhausted.
func (cur *Cursor) FetchOne() ([]any, error) {
	if cur.closed {
		return nil, NewInterfaceError(ErrCodeCursorClosed, "cursor is closed")
	}
	if cur.result == nil {
		return nil, NewInterfaceError(ErrCodeNoResultSet, "no statement has been executed")
	}
	if cur.fetchPos >= len(cur.result.Rows) {
		return nil, nil
	}
	row := cur.result.Rows[cur.fetchPos]
	cur.fetchPos++
	return row, nil
}

// FetchMany returns up to n rows.
func (cur *Cursor) FetchMany(n int) ([][]any, error) {
	if cur.closed {
		return nil, NewInterfaceError(ErrCodeCursorClosed, "cursor is closed")
	}
	if cur.result == nil {
		return nil, NewInterfaceError(ErrCodeNoResultSet, "no statement has been executed")
	}
	if n <= 0 {
		return nil, nil
	}
	end := cur.fetchPos + n
	if end > len(cur.result.Rows) {
		end = len(cur.result.Rows)
	}
	rows := cur.result.Rows[cur.fetchPos:end]
	cur.fetchPos = end
	return rows, nil
}

// FetchAll returns every remaining row.
func (cur *Cursor) FetchAll() ([][]any, error) {
	if cur.closed {
		return nil, NewInterfaceError(ErrCodeCursorClosed, "cursor is closed")
	}
	if cur.result == nil {
		return nil, NewInterfaceError(ErrCodeNoResultSet, "no statement has been executed")
	}
	rows := cur.result.Rows[cur.fetchPos:]
	cur.fetchPos = len(cur.result.Rows)
	return rows, nil
}

// Close releases the cursor.
func (cur *Cursor) Close() error {
	cur.closed = true
	cur.result = nil
	return nil
}
