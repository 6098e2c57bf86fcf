package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"querybridge/internal/dberr"
	"querybridge/internal/driver"
	"querybridge/internal/exporter"
	"querybridge/internal/logical"
	"querybridge/internal/storage"
	"querybridge/internal/stream"
	"querybridge/internal/worker"
)

// fakeConn answers every statement with a single-column result. The SQL text
// of each Execute call is recorded so tests can assert on translation.
type fakeConn struct {
	engine  dberr.Engine
	rows    [][]any
	execSQL []string
	pingErr error
}

func (c *fakeConn) Engine() dberr.Engine       { return c.engine }
func (c *fakeConn) Ping(context.Context) error { return c.pingErr }
func (c *fakeConn) ConcurrentStatements() bool { return false }
func (c *fakeConn) Close() error               { return nil }

func (c *fakeConn) ListSchemas(context.Context) ([]logical.Schema, error) {
	return []logical.Schema{{Name: "main"}}, nil
}

func (c *fakeConn) ListTables(_ context.Context, schema string) ([]logical.Table, error) {
	return []logical.Table{
		{Schema: schema, Name: "users", Kind: logical.TableKindTable},
		{Schema: schema, Name: "ghost", Kind: logical.TableKindTable},
	}, nil
}

func (c *fakeConn) DescribeTable(_ context.Context, schema, table string) ([]logical.Column, error) {
	if table == "ghost" {
		return nil, &dberr.SchemaError{Engine: c.engine, Reason: dberr.SchemaNotFound, Object: table}
	}
	return []logical.Column{{Name: "id", Type: logical.Type{Kind: logical.KindInt, Width: 64, Signed: true}}}, nil
}

func (c *fakeConn) Execute(_ context.Context, req driver.Request) (driver.RowSource, error) {
	c.execSQL = append(c.execSQL, req.SQL)
	return &fakeRows{rows: c.rows}, nil
}

type fakeRows struct {
	rows [][]any
	pos  int
}

func (r *fakeRows) Columns() []logical.Column {
	return []logical.Column{{Name: "value", Type: logical.Type{Kind: logical.KindInt, Width: 64, Signed: true}}}
}

func (r *fakeRows) Next(ctx context.Context) ([]any, bool, error) {
	if r.pos >= len(r.rows) {
		return nil, false, nil
	}
	row := r.rows[r.pos]
	r.pos++
	return row, true, nil
}

func (r *fakeRows) Close() error { return nil }

func newTestService(t *testing.T, conn *fakeConn) (*Service, *Handle, string) {
	t.Helper()
	dir := t.TempDir()
	sink, err := storage.NewLocalSink(dir)
	require.NoError(t, err)

	svc := New(Options{
		Open: func(context.Context, driver.Profile) (driver.Conn, error) { return conn, nil },
		Sink: sink,
	})
	t.Cleanup(func() { _ = svc.Close() })

	h, err := svc.Connect(context.Background(), driver.Profile{Name: "test", Engine: conn.engine})
	require.NoError(t, err)
	t.Cleanup(h.Close)
	return svc, h, dir
}

func TestConnectAndQuery(t *testing.T) {
	for _, engine := range []dberr.Engine{
		dberr.EngineDuckDB, dberr.EngineSQLite, dberr.EngineMySQL,
		dberr.EnginePostgres, dberr.EngineClickHouse,
	} {
		t.Run(string(engine), func(t *testing.T) {
			conn := &fakeConn{engine: engine, rows: [][]any{{int64(1)}}}
			svc, h, _ := newTestService(t, conn)
			assert.Equal(t, engine, h.Engine())

			batches, err := svc.Preview(context.Background(), h, driver.Request{SQL: "SELECT 1"}, 0)
			require.NoError(t, err)
			require.Len(t, batches, 1)
			assert.Equal(t, 1, batches[0].Rows)
			assert.Equal(t, int64(1), batches[0].Values[0][0])
		})
	}
}

func TestConnectPingFailureReleasesSession(t *testing.T) {
	conn := &fakeConn{engine: dberr.EngineSQLite, pingErr: errors.New("gone")}
	sink, err := storage.NewLocalSink(t.TempDir())
	require.NoError(t, err)
	svc := New(Options{
		Open: func(context.Context, driver.Profile) (driver.Conn, error) { return conn, nil },
		Sink: sink,
	})
	defer svc.Close()

	_, err = svc.Connect(context.Background(), driver.Profile{Name: "test", Engine: dberr.EngineSQLite})
	assert.Error(t, err)
}

func TestQueryRejectsBadSQL(t *testing.T) {
	conn := &fakeConn{engine: dberr.EngineSQLite}
	svc, h, _ := newTestService(t, conn)

	_, _, err := svc.Query(context.Background(), h, driver.Request{SQL: "SELECT (1"})
	var qErr *dberr.QueryError
	require.ErrorAs(t, err, &qErr)
	assert.Equal(t, dberr.QuerySyntax, qErr.Reason)
	assert.Empty(t, conn.execSQL)
}

func TestQueryAppliesRowLimit(t *testing.T) {
	conn := &fakeConn{engine: dberr.EnginePostgres, rows: [][]any{{int64(1)}}}
	svc, h, _ := newTestService(t, conn)

	st, _, err := svc.Query(context.Background(), h, driver.Request{SQL: "SELECT * FROM t", RowLimit: 10})
	require.NoError(t, err)
	_, err = stream.Collect(context.Background(), st, 0)
	require.NoError(t, err)

	require.Len(t, conn.execSQL, 1)
	assert.Equal(t, "SELECT * FROM (SELECT * FROM t) AS paged LIMIT 10", conn.execSQL[0])
}

func TestMetadataSkipsVanishedTables(t *testing.T) {
	conn := &fakeConn{engine: dberr.EngineSQLite}
	svc, h, _ := newTestService(t, conn)

	cat, err := svc.Metadata(context.Background(), h)
	require.NoError(t, err)
	require.Len(t, cat.Schemas, 1)
	assert.Equal(t, "main", cat.Schemas[0].Name)
	require.Len(t, cat.Schemas[0].Tables, 2)

	assert.Len(t, cat.Schemas[0].Tables[0].Columns, 1)
	assert.Empty(t, cat.Schemas[0].Tables[1].Columns)
}

func TestQueryTablePagesAndQuotes(t *testing.T) {
	conn := &fakeConn{engine: dberr.EngineMySQL, rows: [][]any{{int64(1)}}}
	svc, h, _ := newTestService(t, conn)

	st, _, err := svc.QueryTable(context.Background(), h, "shop", "orders", Page{
		Limit:   50,
		Offset:  100,
		OrderBy: "id DESC",
	})
	require.NoError(t, err)
	require.NoError(t, st.Close())

	require.Len(t, conn.execSQL, 1)
	assert.Equal(t,
		"SELECT * FROM (SELECT * FROM `shop`.`orders` ORDER BY id DESC) AS paged LIMIT 50 OFFSET 100",
		conn.execSQL[0])
}

func TestTableRowCount(t *testing.T) {
	conn := &fakeConn{engine: dberr.EngineDuckDB, rows: [][]any{{int64(42)}}}
	svc, h, _ := newTestService(t, conn)

	n, err := svc.TableRowCount(context.Background(), h, "main", "users", "")
	require.NoError(t, err)
	assert.Equal(t, int64(42), n)
	assert.Equal(t, `SELECT COUNT(*) FROM "main"."users"`, conn.execSQL[0])

	_, err = svc.TableRowCount(context.Background(), h, "main", "users", "score > 5")
	require.NoError(t, err)
	assert.Equal(t, `SELECT COUNT(*) FROM "main"."users" WHERE score > 5`, conn.execSQL[1])
}

func TestDropTable(t *testing.T) {
	conn := &fakeConn{engine: dberr.EngineSQLite}
	svc, h, _ := newTestService(t, conn)

	require.NoError(t, svc.DropTable(context.Background(), h, "", "old_stuff", logical.TableKindTable))
	assert.Equal(t, `DROP TABLE "old_stuff"`, conn.execSQL[0])

	require.NoError(t, svc.DropTable(context.Background(), h, "", "old_view", logical.TableKindView))
	assert.Equal(t, `DROP VIEW "old_view"`, conn.execSQL[1])
}

func TestExportEndToEnd(t *testing.T) {
	conn := &fakeConn{engine: dberr.EngineSQLite, rows: [][]any{{int64(1)}, {int64(2)}}}
	svc, h, dir := newTestService(t, conn)

	job, err := svc.Export(h, driver.Request{SQL: "SELECT value FROM t"}, "", "result.csv", exporter.Options{})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return job.Status() == worker.StatusCompleted
	}, 5*time.Second, 10*time.Millisecond, "export did not finish: %v", job.Err())

	data, err := os.ReadFile(filepath.Join(dir, "result.csv"))
	require.NoError(t, err)
	assert.Equal(t, "value\n1\n2\n", string(data))

	got, ok := svc.ExportJob(job.ID)
	require.True(t, ok)
	assert.Same(t, job, got)
}

func TestExportUnknownExtension(t *testing.T) {
	conn := &fakeConn{engine: dberr.EngineSQLite}
	svc, h, _ := newTestService(t, conn)

	_, err := svc.Export(h, driver.Request{SQL: "SELECT 1"}, "", "result.dat", exporter.Options{})
	var eErr *dberr.ExportError
	require.ErrorAs(t, err, &eErr)
}

func TestCancelExport(t *testing.T) {
	conn := &fakeConn{engine: dberr.EngineSQLite}
	svc, _, _ := newTestService(t, conn)

	assert.False(t, svc.CancelExport(uuid.New()))
}
