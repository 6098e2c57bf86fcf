package stream

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"querybridge/internal/dberr"
	"querybridge/internal/logical"
)

// fakeSource feeds a fixed set of rows, optionally failing after some of them.
type fakeSource struct {
	cols    []logical.Column
	rows    [][]any
	pos     int
	failAt  int // fail before emitting row failAt when >= 0
	failErr error
	closed  bool
	block   chan struct{} // when set, Next blocks on it
}

func (f *fakeSource) Columns() []logical.Column { return f.cols }

func (f *fakeSource) Next(ctx context.Context) ([]any, bool, error) {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, false, ctx.Err()
		}
	}
	if f.failErr != nil && f.pos == f.failAt {
		return nil, false, f.failErr
	}
	if f.pos >= len(f.rows) {
		return nil, false, nil
	}
	row := f.rows[f.pos]
	f.pos++
	return row, true, nil
}

func (f *fakeSource) Close() error {
	f.closed = true
	return nil
}

func intCols() []logical.Column {
	return []logical.Column{{Name: "id", Type: logical.Type{Kind: logical.KindInt, Width: 64}}}
}

func intRows(n int) [][]any {
	rows := make([][]any, n)
	for i := range rows {
		rows[i] = []any{int64(i)}
	}
	return rows
}

func drain(t *testing.T, s Stream) []*Batch {
	t.Helper()
	var batches []*Batch
	for {
		b, err := s.Next(context.Background())
		if err == io.EOF {
			return batches
		}
		require.NoError(t, err)
		batches = append(batches, b)
	}
}

func TestPipelineRowLimitSplitsBatches(t *testing.T) {
	src := &fakeSource{cols: intCols(), rows: intRows(7)}
	st := New(context.Background(), dberr.EngineDuckDB, src, Limits{MaxRows: 3})
	defer st.Close()

	batches := drain(t, st)
	require.Len(t, batches, 3)
	assert.Equal(t, 3, batches[0].Rows)
	assert.Equal(t, 3, batches[1].Rows)
	assert.Equal(t, 1, batches[2].Rows)
	assert.Equal(t, int64(6), batches[2].Values[0][0])
	assert.True(t, src.closed)
}

func TestPipelineByteCeilingDefersRow(t *testing.T) {
	cols := []logical.Column{{Name: "s", Type: logical.Type{Kind: logical.KindString}}}
	big := strings.Repeat("x", 100)
	src := &fakeSource{cols: cols, rows: [][]any{{big}, {big}, {big}}}

	// Each row estimates at 116 bytes, so two rows cross the ceiling.
	st := New(context.Background(), dberr.EngineSQLite, src, Limits{MaxRows: 100, MaxBytes: 150})
	defer st.Close()

	batches := drain(t, st)
	require.Len(t, batches, 3)
	for _, b := range batches {
		assert.Equal(t, 1, b.Rows)
	}
}

func TestPipelineOversizedRowShipsAlone(t *testing.T) {
	cols := []logical.Column{{Name: "s", Type: logical.Type{Kind: logical.KindString}}}
	src := &fakeSource{cols: cols, rows: [][]any{{strings.Repeat("x", 1000)}}}
	st := New(context.Background(), dberr.EngineDuckDB, src, Limits{MaxRows: 100, MaxBytes: 64})
	defer st.Close()

	batches := drain(t, st)
	require.Len(t, batches, 1)
	assert.Equal(t, 1, batches[0].Rows)
}

func TestPipelineSchemaDrift(t *testing.T) {
	src := &fakeSource{cols: intCols(), rows: [][]any{{int64(1)}, {int64(2), "extra"}}}
	st := New(context.Background(), dberr.EngineMySQL, src, Limits{MaxRows: 10})
	defer st.Close()

	_, err := st.Next(context.Background())
	var qErr *dberr.QueryError
	require.ErrorAs(t, err, &qErr)
	assert.Equal(t, dberr.QuerySchemaDrift, qErr.Reason)
}

func TestPipelineSourceErrorPassesThrough(t *testing.T) {
	want := &dberr.QueryError{Engine: dberr.EnginePostgres, Reason: dberr.QueryRuntime, Err: errors.New("boom")}
	src := &fakeSource{cols: intCols(), rows: intRows(2), failAt: 1, failErr: want}
	st := New(context.Background(), dberr.EnginePostgres, src, Limits{MaxRows: 10})
	defer st.Close()

	_, err := st.Next(context.Background())
	assert.Equal(t, want, err)
}

func TestPipelineCancellation(t *testing.T) {
	src := &fakeSource{cols: intCols(), block: make(chan struct{})}
	ctx, cancel := context.WithCancel(context.Background())
	st := New(ctx, dberr.EngineClickHouse, src, Limits{})
	defer st.Close()

	cancel()
	_, err := st.Next(context.Background())
	var qErr *dberr.QueryError
	require.ErrorAs(t, err, &qErr)
	assert.Equal(t, dberr.QueryCancelled, qErr.Reason)
}

func TestPipelineCloseReleasesSource(t *testing.T) {
	src := &fakeSource{cols: intCols(), block: make(chan struct{})}
	st := New(context.Background(), dberr.EngineDuckDB, src, Limits{})

	require.NoError(t, st.Close())
	require.NoError(t, st.Close())
	assert.True(t, src.closed)
}

func TestPipelineEmptyResult(t *testing.T) {
	src := &fakeSource{cols: intCols()}
	st := New(context.Background(), dberr.EngineDuckDB, src, Limits{})
	defer st.Close()

	_, err := st.Next(context.Background())
	assert.Equal(t, io.EOF, err)
	assert.Equal(t, intCols(), st.Columns())
}

func TestPipelineNextHonorsConsumerDeadline(t *testing.T) {
	src := &fakeSource{cols: intCols(), block: make(chan struct{})}
	st := New(context.Background(), dberr.EngineDuckDB, src, Limits{})
	defer st.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := st.Next(ctx)
	var qErr *dberr.QueryError
	require.ErrorAs(t, err, &qErr)
	assert.Equal(t, dberr.QueryTimeout, qErr.Reason)
}

func TestCollect(t *testing.T) {
	src := &fakeSource{cols: intCols(), rows: intRows(5)}
	st := New(context.Background(), dberr.EngineDuckDB, src, Limits{MaxRows: 2})

	batches, err := Collect(context.Background(), st, 0)
	require.NoError(t, err)
	require.Len(t, batches, 3)
	assert.True(t, src.closed)
}

func TestCollectMaxBatches(t *testing.T) {
	src := &fakeSource{cols: intCols(), rows: intRows(10)}
	st := New(context.Background(), dberr.EngineDuckDB, src, Limits{MaxRows: 2})

	batches, err := Collect(context.Background(), st, 1)
	require.NoError(t, err)
	require.Len(t, batches, 1)
	assert.Equal(t, 2, batches[0].Rows)
}

func TestBatchRow(t *testing.T) {
	src := &fakeSource{cols: intCols(), rows: intRows(3)}
	st := New(context.Background(), dberr.EngineDuckDB, src, Limits{MaxRows: 10})
	batches, err := Collect(context.Background(), st, 0)
	require.NoError(t, err)
	require.Len(t, batches, 1)
	assert.Equal(t, []any{int64(1)}, batches[0].Row(1))
}
