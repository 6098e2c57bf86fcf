package driver

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"querybridge/internal/dberr"
	"querybridge/internal/logical"
)

func mockQuery(t *testing.T, rows *sqlmock.Rows) *sqlSource {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	mock.ExpectQuery("SELECT").WillReturnRows(rows)
	native, err := db.Query("SELECT * FROM t")
	require.NoError(t, err)

	src, err := newSQLSource(dberr.EngineMySQL, native)
	require.NoError(t, err)
	t.Cleanup(func() { _ = src.Close() })
	return src
}

func TestSQLSourceColumns(t *testing.T) {
	rows := sqlmock.NewRowsWithColumnDefinition(
		sqlmock.NewColumn("id").OfType("BIGINT", int64(0)).Nullable(false),
		sqlmock.NewColumn("amount").OfType("DECIMAL", "").WithPrecisionAndScale(10, 2).Nullable(true),
		sqlmock.NewColumn("name").OfType("VARCHAR", "").Nullable(true),
	)
	src := mockQuery(t, rows)

	cols := src.Columns()
	require.Len(t, cols, 3)

	assert.Equal(t, "id", cols[0].Name)
	assert.Equal(t, logical.KindInt, cols[0].Type.Kind)
	assert.False(t, cols[0].Nullable)
	assert.Equal(t, 0, cols[0].Position)

	assert.Equal(t, logical.KindDecimal, cols[1].Type.Kind)
	assert.Equal(t, 10, cols[1].Type.Precision)
	assert.Equal(t, 2, cols[1].Type.Scale)
	assert.True(t, cols[1].Nullable)

	assert.Equal(t, logical.KindString, cols[2].Type.Kind)
}

func TestSQLSourceCoercesRows(t *testing.T) {
	rows := sqlmock.NewRowsWithColumnDefinition(
		sqlmock.NewColumn("id").OfType("BIGINT", int64(0)).Nullable(false),
		sqlmock.NewColumn("amount").OfType("DECIMAL", "").WithPrecisionAndScale(10, 2).Nullable(true),
	).AddRow(int64(7), "123.45").AddRow(int64(8), nil)
	src := mockQuery(t, rows)

	row, ok, err := src.Next(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(7), row[0])
	dec, isDec := row[1].(logical.Decimal)
	require.True(t, isDec)
	assert.Equal(t, "123.45", dec.Text)
	assert.Equal(t, 2, dec.Scale)

	row, ok, err = src.Next(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Nil(t, row[1])

	_, ok, err = src.Next(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

// SQLite reports no declared type for expression columns; the adapter must
// infer their kinds from the first row instead of failing the query.
func TestSQLSourceUntypedColumns(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	rows := sqlmock.NewRowsWithColumnDefinition(
		sqlmock.NewColumn("1").OfType("", int64(0)),
		sqlmock.NewColumn("COUNT(*)").OfType("", int64(0)),
	).AddRow(int64(1), int64(3)).AddRow(int64(1), int64(3))
	mock.ExpectQuery("SELECT").WillReturnRows(rows)

	native, err := db.Query("SELECT 1, COUNT(*) FROM t")
	require.NoError(t, err)
	src, err := newSQLSource(dberr.EngineSQLite, native)
	require.NoError(t, err)
	t.Cleanup(func() { _ = src.Close() })

	cols := src.Columns()
	require.Len(t, cols, 2)
	assert.Equal(t, logical.Type{Kind: logical.KindInt, Width: 64, Signed: true}, cols[0].Type)
	assert.Equal(t, logical.KindInt, cols[1].Type.Kind)

	// The row consumed during inference is still delivered.
	row, ok, err := src.Next(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(1), row[0])
	assert.Equal(t, int64(3), row[1])

	row, ok, err = src.Next(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(1), row[0])

	_, ok, err = src.Next(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSQLSourceUntypedColumnsEmptyResult(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	rows := sqlmock.NewRowsWithColumnDefinition(
		sqlmock.NewColumn("value").OfType("", nil),
	)
	mock.ExpectQuery("SELECT").WillReturnRows(rows)

	native, err := db.Query("SELECT value FROM t WHERE 0")
	require.NoError(t, err)
	src, err := newSQLSource(dberr.EngineSQLite, native)
	require.NoError(t, err)
	t.Cleanup(func() { _ = src.Close() })

	assert.Equal(t, logical.KindAny, src.Columns()[0].Type.Kind)
	_, ok, err := src.Next(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSQLSourceContextCancelled(t *testing.T) {
	rows := sqlmock.NewRowsWithColumnDefinition(
		sqlmock.NewColumn("id").OfType("BIGINT", int64(0)).Nullable(false),
	).AddRow(int64(1))
	src := mockQuery(t, rows)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := src.Next(ctx)
	assert.True(t, dberr.IsCancelled(err))
}

func TestSQLSourceCloseIdempotent(t *testing.T) {
	rows := sqlmock.NewRowsWithColumnDefinition(
		sqlmock.NewColumn("id").OfType("BIGINT", int64(0)).Nullable(false),
	)
	src := mockQuery(t, rows)

	require.NoError(t, src.Close())
	require.NoError(t, src.Close())
}
