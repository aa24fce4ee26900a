package factory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/golem-base/golemsql"
	"github.com/golem-base/golemsql/internal"
)

func testConnect(t *testing.T, store *internal.MemStore, appID string) *golemsql.Connection {
	t.Helper()
	cfg := golemsql.DefaultConfig()
	cfg.Catalog.Dir = t.TempDir()

	dsn := "golembase://?rpc_url=http://localhost:8545&ws_url=ws://localhost:8546&private_key=abc&app_id=" +
		appID + "&schema_id=s-" + appID
	conn, err := Connect(context.Background(), dsn, WithConfig(cfg), WithClient(store))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestConnectRejectsBadDSN(t *testing.T) {
	_, err := Connect(context.Background(), "golembase://?rpc_url=only")
	assert.True(t, golemsql.IsInterfaceError(err))
}

func TestCursorLifecycle(t *testing.T) {
	conn := testConnect(t, internal.NewMemStore(), "app")
	ctx := context.Background()

	cursor, err := conn.Cursor()
	require.NoError(t, err)

	require.NoError(t, cursor.Execute(ctx, "CREATE TABLE users (id INTEGER PRIMARY KEY, name VARCHAR(50))", nil))
	require.NoError(t, cursor.Execute(ctx,
		"INSERT INTO users (id, name) VALUES (%(id1)s, %(n1)s), (%(id2)s, %(n2)s)",
		map[string]any{"id1": 1, "n1": "a", "id2": 2, "n2": "b"}))
	assert.Equal(t, int64(2), cursor.RowCount())

	require.NoError(t, cursor.Execute(ctx, "SELECT * FROM users WHERE id > %(min)s", map[string]any{"min": 1}))
	require.Len(t, cursor.Description(), 2)
	assert.Equal(t, "id", cursor.Description()[0].Name)

	row, err := cursor.FetchOne()
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, int64(2), row[0])
	assert.Equal(t, "b", row[1])

	row, err = cursor.FetchOne()
	require.NoError(t, err)
	assert.Nil(t, row, "exhausted result set must fetch nil")

	require.NoError(t, cursor.Close())
	err = cursor.Execute(ctx, "SELECT 1", nil)
	assert.True(t, golemsql.IsInterfaceError(err))
}

func TestFetchManyAndAll(t *testing.T) {
	conn := testConnect(t, internal.NewMemStore(), "app")
	ctx := context.Background()

	cursor, err := conn.Cursor()
	require.NoError(t, err)
	defer cursor.Close()

	require.NoError(t, cursor.Execute(ctx, "CREATE TABLE n (v INTEGER, INDEX (v))", nil))
	require.NoError(t, cursor.Execute(ctx, "INSERT INTO n (v) VALUES (1), (2), (3), (4), (5)", nil))
	require.NoError(t, cursor.Execute(ctx, "SELECT v FROM n ORDER BY v", nil))

	batch, err := cursor.FetchMany(2)
	require.NoError(t, err)
	require.Len(t, batch, 2)
	assert.Equal(t, int64(1), batch[0][0])

	rest, err := cursor.FetchAll()
	require.NoError(t, err)
	require.Len(t, rest, 3)
	assert.Equal(t, int64(5), rest[2][0])
}

func TestIntrospectionSkipsStore(t *testing.T) {
	conn := testConnect(t, internal.NewMemStore(), "app")
	ctx := context.Background()

	cursor, err := conn.Cursor()
	require.NoError(t, err)
	defer cursor.Close()

	require.NoError(t, cursor.Execute(ctx, "SELECT 1", nil))
	row, err := cursor.FetchOne()
	require.NoError(t, err)
	assert.Equal(t, int64(1), row[0])

	require.NoError(t, cursor.Execute(ctx, "SHOW TABLES", nil))
	rows, err := cursor.FetchAll()
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestClosedConnection(t *testing.T) {
	conn := testConnect(t, internal.NewMemStore(), "app")
	require.NoError(t, conn.Close())

	_, err := conn.Cursor()
	assert.True(t, golemsql.IsInterfaceError(err))
}
