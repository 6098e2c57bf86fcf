package session

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"querybridge/internal/dberr"
	"querybridge/internal/driver"
	"querybridge/internal/logical"
	"querybridge/internal/stream"
)

// fakeConn is a minimal driver.Conn for pool and session tests.
type fakeConn struct {
	engine     dberr.Engine
	concurrent bool
	pingErr    error
	execErr    error
	rows       [][]any
	blockRows  bool
	closed     atomic.Bool
}

func (c *fakeConn) Engine() dberr.Engine       { return c.engine }
func (c *fakeConn) Ping(context.Context) error { return c.pingErr }
func (c *fakeConn) ConcurrentStatements() bool { return c.concurrent }
func (c *fakeConn) Close() error               { c.closed.Store(true); return nil }

func (c *fakeConn) ListSchemas(context.Context) ([]logical.Schema, error) {
	return []logical.Schema{{Name: "main"}}, nil
}

func (c *fakeConn) ListTables(_ context.Context, schema string) ([]logical.Table, error) {
	return []logical.Table{{Schema: schema, Name: "t", Kind: logical.TableKindTable}}, nil
}

func (c *fakeConn) DescribeTable(context.Context, string, string) ([]logical.Column, error) {
	return []logical.Column{{Name: "id", Type: logical.Type{Kind: logical.KindInt, Width: 64, Signed: true}}}, nil
}

func (c *fakeConn) Execute(_ context.Context, _ driver.Request) (driver.RowSource, error) {
	if c.execErr != nil {
		return nil, c.execErr
	}
	return &fakeRows{conn: c, rows: c.rows, block: c.blockRows}, nil
}

type fakeRows struct {
	conn  *fakeConn
	rows  [][]any
	pos   int
	block bool
}

func (r *fakeRows) Columns() []logical.Column {
	return []logical.Column{{Name: "id", Type: logical.Type{Kind: logical.KindInt, Width: 64, Signed: true}}}
}

func (r *fakeRows) Next(ctx context.Context) ([]any, bool, error) {
	if r.block && r.pos >= len(r.rows) {
		<-ctx.Done()
		return nil, false, ctx.Err()
	}
	if r.pos >= len(r.rows) {
		return nil, false, nil
	}
	row := r.rows[r.pos]
	r.pos++
	return row, true, nil
}

func (r *fakeRows) Close() error { return nil }

func testProfile() driver.Profile {
	return driver.Profile{
		Name:           "test",
		Engine:         dberr.EngineSQLite,
		Path:           ":memory:",
		PoolSize:       2,
		AcquireTimeout: 100 * time.Millisecond,
	}
}

func TestPoolReusesIdleSession(t *testing.T) {
	var opened atomic.Int32
	open := func(context.Context, driver.Profile) (driver.Conn, error) {
		opened.Add(1)
		return &fakeConn{engine: dberr.EngineSQLite}, nil
	}
	p := NewPool(testProfile(), open, nil)
	defer p.Close()

	s1, err := p.Acquire(context.Background())
	require.NoError(t, err)
	id := s1.ID
	p.Release(s1)

	s2, err := p.Acquire(context.Background())
	require.NoError(t, err)
	defer p.Release(s2)

	assert.Equal(t, id, s2.ID)
	assert.Equal(t, int32(1), opened.Load())
}

func TestPoolExhaustion(t *testing.T) {
	open := func(context.Context, driver.Profile) (driver.Conn, error) {
		return &fakeConn{engine: dberr.EngineSQLite}, nil
	}
	p := NewPool(testProfile(), open, nil)
	defer p.Close()

	s1, err := p.Acquire(context.Background())
	require.NoError(t, err)
	defer p.Release(s1)
	s2, err := p.Acquire(context.Background())
	require.NoError(t, err)
	defer p.Release(s2)

	_, err = p.Acquire(context.Background())
	var cErr *dberr.ConnectionError
	require.ErrorAs(t, err, &cErr)
	assert.Equal(t, dberr.ConnPoolExhausted, cErr.Reason)
}

func TestPoolAcquireCancelled(t *testing.T) {
	open := func(context.Context, driver.Profile) (driver.Conn, error) {
		return &fakeConn{engine: dberr.EngineSQLite}, nil
	}
	p := NewPool(testProfile(), open, nil)
	defer p.Close()

	s1, _ := p.Acquire(context.Background())
	defer p.Release(s1)
	s2, _ := p.Acquire(context.Background())
	defer p.Release(s2)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.Acquire(ctx)
	assert.True(t, dberr.IsCancelled(err))
}

func TestPoolEvictsBrokenSession(t *testing.T) {
	var opened atomic.Int32
	conns := []*fakeConn{
		{engine: dberr.EngineSQLite, pingErr: errors.New("gone")},
		{engine: dberr.EngineSQLite},
	}
	open := func(context.Context, driver.Profile) (driver.Conn, error) {
		return conns[opened.Add(1)-1], nil
	}
	p := NewPool(testProfile(), open, nil)
	defer p.Close()

	s1, err := p.Acquire(context.Background())
	require.NoError(t, err)
	require.Error(t, s1.Ping(context.Background()))
	require.True(t, s1.Broken())
	p.Release(s1)
	assert.True(t, conns[0].closed.Load())

	s2, err := p.Acquire(context.Background())
	require.NoError(t, err)
	defer p.Release(s2)
	assert.NotEqual(t, s1.ID, s2.ID)
	assert.Equal(t, int32(2), opened.Load())
}

func TestPoolRetriesTransientDialFailures(t *testing.T) {
	var attempts atomic.Int32
	open := func(context.Context, driver.Profile) (driver.Conn, error) {
		if attempts.Add(1) == 1 {
			return nil, &dberr.ConnectionError{Engine: dberr.EngineSQLite, Reason: dberr.ConnUnreachable, Err: errors.New("refused")}
		}
		return &fakeConn{engine: dberr.EngineSQLite}, nil
	}
	p := NewPool(testProfile(), open, nil)
	defer p.Close()

	s, err := p.Acquire(context.Background())
	require.NoError(t, err)
	defer p.Release(s)
	assert.Equal(t, int32(2), attempts.Load())
}

func TestPoolDoesNotRetryAuthFailures(t *testing.T) {
	var attempts atomic.Int32
	open := func(context.Context, driver.Profile) (driver.Conn, error) {
		attempts.Add(1)
		return nil, &dberr.ConnectionError{Engine: dberr.EnginePostgres, Reason: dberr.ConnAuthFailed, Err: errors.New("bad password")}
	}
	p := NewPool(testProfile(), open, nil)
	defer p.Close()

	_, err := p.Acquire(context.Background())
	var cErr *dberr.ConnectionError
	require.ErrorAs(t, err, &cErr)
	assert.Equal(t, dberr.ConnAuthFailed, cErr.Reason)
	assert.Equal(t, int32(1), attempts.Load())
}

func TestManagerSharesPoolPerProfile(t *testing.T) {
	open := func(context.Context, driver.Profile) (driver.Conn, error) {
		return &fakeConn{engine: dberr.EngineSQLite}, nil
	}
	m := NewManager(open, nil)
	defer m.CloseAll()

	a := m.Pool(testProfile())
	b := m.Pool(testProfile())
	assert.Same(t, a, b)

	other := testProfile()
	other.Name = "other"
	assert.NotSame(t, a, m.Pool(other))
}

func TestSessionExecuteAndStream(t *testing.T) {
	conn := &fakeConn{engine: dberr.EngineSQLite, rows: [][]any{{int64(1)}, {int64(2)}}}
	s := newSession(testProfile(), conn, slog.Default())
	defer s.Close()

	st, queryID, err := s.Execute(context.Background(), driver.Request{SQL: "SELECT id FROM t"}, stream.Limits{})
	require.NoError(t, err)
	assert.NotEqual(t, queryID.String(), "00000000-0000-0000-0000-000000000000")

	batches, err := stream.Collect(context.Background(), st, 0)
	require.NoError(t, err)
	require.Len(t, batches, 1)
	assert.Equal(t, 2, batches[0].Rows)
}

func TestSessionSerializesStatements(t *testing.T) {
	conn := &fakeConn{engine: dberr.EngineSQLite, rows: [][]any{{int64(1)}}}
	s := newSession(testProfile(), conn, slog.Default())
	defer s.Close()

	st, _, err := s.Execute(context.Background(), driver.Request{SQL: "SELECT 1"}, stream.Limits{})
	require.NoError(t, err)

	// The statement slot is held until the stream closes.
	started := make(chan struct{})
	done := make(chan struct{})
	go func() {
		close(started)
		st2, _, err := s.Execute(context.Background(), driver.Request{SQL: "SELECT 2"}, stream.Limits{})
		if err == nil {
			_ = st2.Close()
		}
		close(done)
	}()

	<-started
	select {
	case <-done:
		t.Fatal("second statement ran while the first cursor was open")
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, st.Close())
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("second statement never ran after the first cursor closed")
	}
}

func TestSessionCancelQuery(t *testing.T) {
	conn := &fakeConn{engine: dberr.EngineDuckDB, blockRows: true}
	s := newSession(testProfile(), conn, slog.Default())
	defer s.Close()

	st, queryID, err := s.Execute(context.Background(), driver.Request{SQL: "SELECT * FROM big"}, stream.Limits{})
	require.NoError(t, err)
	defer st.Close()

	s.Cancel(queryID)
	_, err = st.Next(context.Background())
	assert.True(t, dberr.IsCancelled(err))
}

func TestSessionStatementTimeout(t *testing.T) {
	conn := &fakeConn{engine: dberr.EngineDuckDB, blockRows: true}
	s := newSession(testProfile(), conn, slog.Default())
	defer s.Close()

	req := driver.Request{SQL: "SELECT * FROM big", Timeout: 20 * time.Millisecond}
	st, _, err := s.Execute(context.Background(), req, stream.Limits{})
	require.NoError(t, err)
	defer st.Close()

	_, err = st.Next(context.Background())
	assert.True(t, dberr.IsTimeout(err))
}

func TestSessionExecuteErrorMarksFatalBroken(t *testing.T) {
	conn := &fakeConn{
		engine:  dberr.EngineMySQL,
		execErr: &dberr.ConnectionError{Engine: dberr.EngineMySQL, Reason: dberr.ConnUnreachable, Err: errors.New("server gone")},
	}
	s := newSession(testProfile(), conn, slog.Default())
	defer s.Close()

	_, _, err := s.Execute(context.Background(), driver.Request{SQL: "SELECT 1"}, stream.Limits{})
	require.Error(t, err)
	assert.True(t, s.Broken())
}

func TestSessionMetadata(t *testing.T) {
	conn := &fakeConn{engine: dberr.EngineSQLite}
	s := newSession(testProfile(), conn, slog.Default())
	defer s.Close()

	schemas, err := s.ListSchemas(context.Background())
	require.NoError(t, err)
	require.Len(t, schemas, 1)

	tables, err := s.ListTables(context.Background(), "main")
	require.NoError(t, err)
	require.Len(t, tables, 1)
	assert.Equal(t, "main", tables[0].Schema)

	cols, err := s.DescribeTable(context.Background(), "main", "t")
	require.NoError(t, err)
	require.Len(t, cols, 1)
	assert.Equal(t, "id", cols[0].Name)
}
