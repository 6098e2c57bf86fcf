package stream

import (
	"context"
	"fmt"
	"io"
	"sync"

	"querybridge/internal/dberr"
	"querybridge/internal/driver"
	"querybridge/internal/logical"
)

// Stream is a pull-based, finite producer of batches. Next returns io.EOF
// after the final batch. Streams are not restartable.
type Stream interface {
	Columns() []logical.Column
	Next(ctx context.Context) (*Batch, error)
	Close() error
}

type item struct {
	batch *Batch
	err   error
}

// pipeline relays rows from a driver's row source into bounded batches on a
// dedicated goroutine. Blocking native clients (DuckDB, SQLite, MySQL) do
// their work on that goroutine, so a slow query never stalls the consumer's
// scheduler; the channel capacity of one keeps at most a single batch
// buffered ahead of the consumer.
type pipeline struct {
	engine dberr.Engine
	cols   []logical.Column
	items  chan item
	cancel context.CancelFunc
	once   sync.Once
	done   chan struct{}
}

// New starts relaying from src. The first batch fixes the schema for the
// whole query; a native row that later disagrees with it fails the stream
// with a schema drift error instead of emitting a malformed batch.
func New(ctx context.Context, engine dberr.Engine, src driver.RowSource, limits Limits) Stream {
	runCtx, cancel := context.WithCancel(ctx)
	p := &pipeline{
		engine: engine,
		cols:   src.Columns(),
		items:  make(chan item, 1),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go p.produce(runCtx, src, limits.normalized())
	return p
}

func (p *pipeline) Columns() []logical.Column { return p.cols }

func (p *pipeline) produce(ctx context.Context, src driver.RowSource, limits Limits) {
	defer close(p.done)
	defer close(p.items)
	defer func() { _ = src.Close() }()

	current := newBatch(p.cols)
	var deferred []any
	var deferredSize int64

	send := func(b *Batch) bool {
		select {
		case p.items <- item{batch: b}:
			return true
		case <-ctx.Done():
			p.fail(ctx, ctx.Err())
			return false
		}
	}

	for {
		if err := ctx.Err(); err != nil {
			p.fail(ctx, err)
			return
		}

		var row []any
		var size int64
		if deferred != nil {
			row, size = deferred, deferredSize
			deferred = nil
		} else {
			next, ok, err := src.Next(ctx)
			if err != nil {
				p.fail(ctx, err)
				return
			}
			if !ok {
				if current.Rows > 0 {
					send(current)
				}
				return
			}
			row = next
			size = estimateRowSize(row)
		}

		if len(row) != len(p.cols) {
			p.fail(ctx, &dberr.QueryError{
				Engine: p.engine,
				Reason: dberr.QuerySchemaDrift,
				Err:    fmt.Errorf("row has %d values, schema has %d columns", len(row), len(p.cols)),
			})
			return
		}

		// A row that would blow the byte ceiling waits for the next batch,
		// unless the batch is empty (a lone oversized row still ships).
		if current.Rows > 0 && current.Bytes+size > limits.MaxBytes {
			deferred, deferredSize = row, size
			if !send(current) {
				return
			}
			current = newBatch(p.cols)
			continue
		}

		current.appendRow(row, size)
		if current.Rows >= limits.MaxRows {
			if !send(current) {
				return
			}
			current = newBatch(p.cols)
		}
	}
}

// fail delivers a terminal error, wrapping bare context errors so the
// consumer always sees the taxonomy.
func (p *pipeline) fail(ctx context.Context, err error) {
	switch err {
	case context.Canceled:
		err = &dberr.QueryError{Engine: p.engine, Reason: dberr.QueryCancelled, Err: err}
	case context.DeadlineExceeded:
		err = &dberr.QueryError{Engine: p.engine, Reason: dberr.QueryTimeout, Err: err}
	}
	select {
	case p.items <- item{err: err}:
	case <-ctx.Done():
		// Consumer is gone; the error has nowhere to go.
		select {
		case p.items <- item{err: err}:
		default:
		}
	}
}

func (p *pipeline) Next(ctx context.Context) (*Batch, error) {
	select {
	case it, ok := <-p.items:
		if !ok {
			return nil, io.EOF
		}
		if it.err != nil {
			return nil, it.err
		}
		return it.batch, nil
	case <-ctx.Done():
		switch ctx.Err() {
		case context.DeadlineExceeded:
			return nil, &dberr.QueryError{Engine: p.engine, Reason: dberr.QueryTimeout, Err: ctx.Err()}
		default:
			return nil, &dberr.QueryError{Engine: p.engine, Reason: dberr.QueryCancelled, Err: ctx.Err()}
		}
	}
}

// Close cancels production and waits for the producer to release the native
// cursor. Safe to call more than once; resources are released even if the
// cancel races with normal completion.
func (p *pipeline) Close() error {
	p.once.Do(func() {
		p.cancel()
		// Drain so the producer is never stuck on a full channel.
		go func() {
			for range p.items {
			}
		}()
		<-p.done
	})
	return nil
}

// Collect drains up to maxBatches batches (all of them when maxBatches <= 0)
// and closes the stream. Intended for preview-sized result sets.
func Collect(ctx context.Context, s Stream, maxBatches int) ([]*Batch, error) {
	defer func() { _ = s.Close() }()

	var batches []*Batch
	for maxBatches <= 0 || len(batches) < maxBatches {
		b, err := s.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		batches = append(batches, b)
	}
	return batches, nil
}
