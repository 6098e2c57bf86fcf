package exporter

import (
	"context"
	"io"
	"time"

	"querybridge/internal/dberr"
	"querybridge/internal/stream"
)

// Result carries the final counters of a finished export.
type Result struct {
	Rows     int64
	Bytes    int64
	Duration time.Duration
}

// Progress is invoked after each batch with cumulative rows and bytes
// written. Implementations must be fast; they run on the export path.
type Progress func(rows, bytes int64)

// countingWriter tracks bytes handed to the destination.
type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

// Run drains one result stream into an encoder built by build, reporting
// progress at batch boundaries. The stream is closed on return. Encoder
// failures surface as writer errors in the export taxonomy; source failures
// keep their query taxonomy.
func Run(ctx context.Context, st stream.Stream, format Format, w io.Writer, opts Options, progress Progress) (*Result, error) {
	start := time.Now()
	defer st.Close()

	cw := &countingWriter{w: w}
	enc, err := New(format, cw, opts)
	if err != nil {
		return nil, &dberr.ExportError{Reason: dberr.ExportWriter, Err: err}
	}

	var rows int64
	began := false
	for {
		if err := ctx.Err(); err != nil {
			return nil, &dberr.QueryError{Reason: dberr.QueryCancelled, Err: err}
		}

		batch, err := st.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		if !began {
			if err := enc.Begin(batch.Columns); err != nil {
				return nil, &dberr.ExportError{Reason: dberr.ExportWriter, Err: err}
			}
			began = true
		}

		for i := 0; i < batch.Rows; i++ {
			if err := enc.WriteRow(batch.Row(i)); err != nil {
				return nil, &dberr.ExportError{Reason: dberr.ExportWriter, Err: err}
			}
		}
		rows += int64(batch.Rows)
		if progress != nil {
			progress(rows, cw.n)
		}
	}

	if !began {
		// Zero-row result still produces a valid file with headers. The
		// stream surfaces its column schema even when no rows arrive, so a
		// missing schema here means the source never started.
		if cols := st.Columns(); cols != nil {
			if err := enc.Begin(cols); err != nil {
				return nil, &dberr.ExportError{Reason: dberr.ExportWriter, Err: err}
			}
		}
	}

	if err := enc.Close(); err != nil {
		return nil, &dberr.ExportError{Reason: dberr.ExportWriter, Err: err}
	}
	if progress != nil {
		progress(rows, cw.n)
	}
	return &Result{Rows: rows, Bytes: cw.n, Duration: time.Since(start)}, nil
}
