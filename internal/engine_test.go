package internal

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/golem-base/golemsql"
)

// newTestEngine builds an engine over a fresh in-memory store and a
// temp-dir catalog. Engines created with the same store but different
// app ids share entities, which is how tenant isolation is exercised.
func newTestEngine(t *testing.T, store *MemStore, appID string) *Engine {
	t.Helper()
	cfg := golemsql.DefaultConfig()
	cfg.Connection = golemsql.ConnectionConfig{
		RPCURL:     "http://localhost:8545",
		WSURL:      "ws://localhost:8546",
		PrivateKey: "deadbeef",
		AppID:      appID,
		SchemaID:   "schema-" + appID,
	}
	cfg.Catalog.Dir = t.TempDir()

	catalog, err := NewCatalog(cfg.Catalog, cfg.Connection.SchemaID, zap.NewNop())
	require.NoError(t, err)
	return NewEngine(store, catalog, cfg, zap.NewNop())
}

func mustExec(t *testing.T, e *Engine, sql string) *golemsql.ExecResult {
	t.Helper()
	result, err := e.Execute(context.Background(), sql)
	require.NoError(t, err, sql)
	return result
}

func TestDDLPersistenceAndIntrospection(t *testing.T) {
	engine := newTestEngine(t, NewMemStore(), "app")

	mustExec(t, engine, "CREATE TABLE users (id INTEGER PRIMARY KEY, name VARCHAR(50))")

	result := mustExec(t, engine, "SHOW TABLES")
	require.Len(t, result.Rows, 1)
	assert.Equal(t, "users", result.Rows[0][0])

	result = mustExec(t, engine, "DESCRIBE users")
	require.Len(t, result.Rows, 2)
	assert.Equal(t, "id", result.Rows[0][0])
	assert.Equal(t, "INTEGER", result.Rows[0][1])
	assert.Equal(t, "PRI", result.Rows[0][3])
	assert.Equal(t, "name", result.Rows[1][0])
	assert.Equal(t, "VARCHAR(50)", result.Rows[1][1])
}

func TestInsertThenSelect(t *testing.T) {
	engine := newTestEngine(t, NewMemStore(), "app")
	mustExec(t, engine, "CREATE TABLE users (id INTEGER PRIMARY KEY, name VARCHAR(50))")

	result := mustExec(t, engine, "INSERT INTO users (id, name) VALUES (1, 'a'), (2, 'b')")
	assert.Equal(t, int64(2), result.RowCount)

	result = mustExec(t, engine, "SELECT * FROM users WHERE id > 1")
	require.Len(t, result.Rows, 1)
	assert.Equal(t, int64(2), result.Rows[0][0])
	assert.Equal(t, "b", result.Rows[0][1])
}

func TestRangeOnNegativeIntegers(t *testing.T) {
	engine := newTestEngine(t, NewMemStore(), "app")
	mustExec(t, engine, "CREATE TABLE t (delta INTEGER, INDEX (delta))")
	mustExec(t, engine, "INSERT INTO t (delta) VALUES (-5), (0), (5)")

	result := mustExec(t, engine, "SELECT delta FROM t WHERE delta >= -1 ORDER BY delta")
	require.Len(t, result.Rows, 2)
	assert.Equal(t, int64(0), result.Rows[0][0])
	assert.Equal(t, int64(5), result.Rows[1][0])
}

func TestDecimalRange(t *testing.T) {
	engine := newTestEngine(t, NewMemStore(), "app")
	mustExec(t, engine, "CREATE TABLE t (price DECIMAL(6,2), INDEX (price))")
	mustExec(t, engine, "INSERT INTO t (price) VALUES (-10.50), (0.00), (10.50)")

	result := mustExec(t, engine, "SELECT price FROM t WHERE price > -1.00 ORDER BY price")
	require.Len(t, result.Rows, 2)
	assert.Equal(t, "0.00", result.Rows[0][0])
	assert.Equal(t, "10.50", result.Rows[1][0])
}

func TestTenantIsolation(t *testing.T) {
	store := NewMemStore()
	engineA := newTestEngine(t, store, "A")
	engineB := newTestEngine(t, store, "B")

	mustExec(t, engineA, "CREATE TABLE users (id INTEGER PRIMARY KEY, name VARCHAR(20))")
	mustExec(t, engineB, "CREATE TABLE users (id INTEGER PRIMARY KEY, name VARCHAR(20))")

	mustExec(t, engineA, "INSERT INTO users (id, name) VALUES (1, 'from-a')")
	mustExec(t, engineB, "INSERT INTO users (id, name) VALUES (1, 'from-b')")

	result := mustExec(t, engineA, "SELECT name FROM users")
	require.Len(t, result.Rows, 1)
	assert.Equal(t, "from-a", result.Rows[0][0])

	result = mustExec(t, engineB, "SELECT name FROM users")
	require.Len(t, result.Rows, 1)
	assert.Equal(t, "from-b", result.Rows[0][0])
}

func TestNonIndexableRejection(t *testing.T) {
	engine := newTestEngine(t, NewMemStore(), "app")
	mustExec(t, engine, "CREATE TABLE t (x DOUBLE)")

	_, err := engine.Execute(context.Background(), "SELECT * FROM t WHERE x > 1.0")
	assert.True(t, golemsql.IsNotSupportedError(err), "predicate on DOUBLE must be NotSupported, got %v", err)
}

func TestUpdateAndDelete(t *testing.T) {
	engine := newTestEngine(t, NewMemStore(), "app")
	mustExec(t, engine, "CREATE TABLE users (id INTEGER PRIMARY KEY, name VARCHAR(50))")
	mustExec(t, engine, "INSERT INTO users (id, name) VALUES (1, 'a'), (2, 'b'), (3, 'c')")

	result := mustExec(t, engine, "UPDATE users SET name = 'updated' WHERE id >= 2")
	assert.Equal(t, int64(2), result.RowCount)

	result = mustExec(t, engine, "SELECT name FROM users WHERE id = 1")
	require.Len(t, result.Rows, 1)
	assert.Equal(t, "a", result.Rows[0][0])

	result = mustExec(t, engine, "SELECT name FROM users WHERE id = 3")
	require.Len(t, result.Rows, 1)
	assert.Equal(t, "updated", result.Rows[0][0])

	result = mustExec(t, engine, "DELETE FROM users WHERE name = 'updated'")
	assert.Equal(t, int64(2), result.RowCount)

	result = mustExec(t, engine, "SELECT * FROM users")
	assert.Len(t, result.Rows, 1)
}

func TestAutoincrement(t *testing.T) {
	store := NewMemStore()
	engine := newTestEngine(t, store, "app")
	mustExec(t, engine, "CREATE TABLE logs (id INTEGER PRIMARY KEY AUTO_INCREMENT, msg TEXT)")

	mustExec(t, engine, "INSERT INTO logs (msg) VALUES ('one')")
	mustExec(t, engine, "INSERT INTO logs (msg) VALUES ('two')")
	mustExec(t, engine, "INSERT INTO logs (msg) VALUES ('three')")

	result := mustExec(t, engine, "SELECT id, msg FROM logs ORDER BY id")
	require.Len(t, result.Rows, 3)
	assert.Equal(t, int64(1), result.Rows[0][0])
	assert.Equal(t, int64(2), result.Rows[1][0])
	assert.Equal(t, int64(3), result.Rows[2][0])

	// counter rides in its own entity, invisible to row queries
	results, err := store.QueryEntities(context.Background(), `row_type="counter" && relation="app.logs.id"`)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestDefaultsApplied(t *testing.T) {
	engine := newTestEngine(t, NewMemStore(), "app")
	mustExec(t, engine, "CREATE TABLE events (id INTEGER PRIMARY KEY, at DATETIME DEFAULT CURRENT_TIMESTAMP, level VARCHAR(10) DEFAULT 'info')")
	mustExec(t, engine, "INSERT INTO events (id) VALUES (1)")

	result := mustExec(t, engine, "SELECT at, level FROM events WHERE id = 1")
	require.Len(t, result.Rows, 1)
	assert.NotNil(t, result.Rows[0][0], "current_timestamp default must fill the column")
	assert.Equal(t, "info", result.Rows[0][1])
}

func TestIsNullPostFilter(t *testing.T) {
	engine := newTestEngine(t, NewMemStore(), "app")
	mustExec(t, engine, "CREATE TABLE t (id INTEGER PRIMARY KEY, name VARCHAR(20))")
	mustExec(t, engine, "INSERT INTO t (id, name) VALUES (1, 'a'), (2, NULL)")

	result := mustExec(t, engine, "SELECT id FROM t WHERE name IS NULL")
	require.Len(t, result.Rows, 1)
	assert.Equal(t, int64(2), result.Rows[0][0])

	result = mustExec(t, engine, "SELECT id FROM t WHERE name IS NOT NULL")
	require.Len(t, result.Rows, 1)
	assert.Equal(t, int64(1), result.Rows[0][0])
}

func TestNotEqualsAndLike(t *testing.T) {
	engine := newTestEngine(t, NewMemStore(), "app")
	mustExec(t, engine, "CREATE TABLE people (id INTEGER PRIMARY KEY, name VARCHAR(30), INDEX (name))")
	mustExec(t, engine, "INSERT INTO people (id, name) VALUES (1, 'Alice'), (2, 'Alfred'), (3, 'Bob')")

	result := mustExec(t, engine, "SELECT name FROM people WHERE name LIKE 'Al%' ORDER BY name")
	require.Len(t, result.Rows, 2)
	assert.Equal(t, "Alfred", result.Rows[0][0])
	assert.Equal(t, "Alice", result.Rows[1][0])

	result = mustExec(t, engine, "SELECT name FROM people WHERE id != 2 ORDER BY id")
	require.Len(t, result.Rows, 2)
	assert.Equal(t, "Alice", result.Rows[0][0])
	assert.Equal(t, "Bob", result.Rows[1][0])

	result = mustExec(t, engine, "SELECT name FROM people WHERE NOT name LIKE 'Al%'")
	require.Len(t, result.Rows, 1)
	assert.Equal(t, "Bob", result.Rows[0][0])
}

func TestOrderLimitOffset(t *testing.T) {
	engine := newTestEngine(t, NewMemStore(), "app")
	mustExec(t, engine, "CREATE TABLE n (v INTEGER, INDEX (v))")
	mustExec(t, engine, "INSERT INTO n (v) VALUES (3), (1), (4), (1), (5), (9), (2), (6)")

	result := mustExec(t, engine, "SELECT v FROM n ORDER BY v DESC LIMIT 3")
	require.Len(t, result.Rows, 3)
	assert.Equal(t, int64(9), result.Rows[0][0])
	assert.Equal(t, int64(6), result.Rows[1][0])
	assert.Equal(t, int64(5), result.Rows[2][0])

	result = mustExec(t, engine, "SELECT v FROM n ORDER BY v LIMIT 2 OFFSET 3")
	require.Len(t, result.Rows, 2)
	assert.Equal(t, int64(3), result.Rows[0][0])
	assert.Equal(t, int64(4), result.Rows[1][0])
}

func TestDatetimeRange(t *testing.T) {
	engine := newTestEngine(t, NewMemStore(), "app")
	mustExec(t, engine, "CREATE TABLE ev (id INTEGER PRIMARY KEY, at DATETIME, INDEX (at))")
	mustExec(t, engine, "INSERT INTO ev (id, at) VALUES (1, '2024-01-01 00:00:00'), (2, '2024-06-01 00:00:00'), (3, '2024-12-01 00:00:00')")

	result := mustExec(t, engine, "SELECT id FROM ev WHERE at > '2024-03-01 00:00:00' ORDER BY at")
	require.Len(t, result.Rows, 2)
	assert.Equal(t, int64(2), result.Rows[0][0])
	assert.Equal(t, int64(3), result.Rows[1][0])

	_, err := engine.Execute(context.Background(), "INSERT INTO ev (id, at) VALUES (4, '1950-01-01 00:00:00')")
	assert.True(t, golemsql.IsDataError(err), "pre-epoch datetime must be a DataError, got %v", err)
}

func TestDropTableRemovesCatalogEntry(t *testing.T) {
	engine := newTestEngine(t, NewMemStore(), "app")
	mustExec(t, engine, "CREATE TABLE tmp (id INTEGER PRIMARY KEY)")
	mustExec(t, engine, "DROP TABLE tmp")

	_, err := engine.Execute(context.Background(), "SELECT * FROM tmp")
	assert.True(t, golemsql.IsProgrammingError(err))

	result := mustExec(t, engine, "SHOW TABLES")
	assert.Empty(t, result.Rows)
}
