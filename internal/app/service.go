// Package app is the public surface consumed by a UI or CLI. It ties the
// session pools, dialect translation, streaming pipeline, and export workers
// together behind one Service.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"querybridge/internal/dberr"
	"querybridge/internal/dialect"
	"querybridge/internal/driver"
	"querybridge/internal/exporter"
	"querybridge/internal/logical"
	"querybridge/internal/observability"
	"querybridge/internal/session"
	"querybridge/internal/storage"
	"querybridge/internal/stream"
	"querybridge/internal/worker"
)

// Service is the connector core's entry point. One Service instance serves
// any number of connection profiles concurrently.
type Service struct {
	sessions *session.Manager
	workers  *worker.Pool
	sink     storage.Sink
	limits   stream.Limits
	timeout  time.Duration
	logger   *slog.Logger
}

// Options configures a Service.
type Options struct {
	// Open substitutes the driver dial function; nil uses the real drivers.
	Open session.OpenFunc
	// Sink receives export artifacts.
	Sink storage.Sink
	// Limits caps result batch size; zero values take defaults.
	Limits stream.Limits
	// ExportWorkers bounds concurrent export jobs.
	ExportWorkers int
	// ExportTimeout bounds one export end to end. Zero means no deadline.
	ExportTimeout time.Duration
	Logger        *slog.Logger
}

// New builds a started Service. Call Close to tear it down.
func New(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	sessions := session.NewManager(opts.Open, logger)
	workers := worker.NewPool(opts.ExportWorkers, sessions, opts.Sink, opts.Limits, logger)
	workers.Start()
	return &Service{
		sessions: sessions,
		workers:  workers,
		sink:     opts.Sink,
		limits:   opts.Limits,
		timeout:  opts.ExportTimeout,
		logger:   logger,
	}
}

// Handle identifies one live connection lease.
type Handle struct {
	profile driver.Profile
	pool    *session.Pool
	sess    *session.Session
}

// Engine reports the handle's engine kind.
func (h *Handle) Engine() dberr.Engine { return h.sess.Engine() }

// Connect acquires a session for the profile, dialing a fresh connection if
// the pool has no idle one. The handle must be released with Close.
func (s *Service) Connect(ctx context.Context, profile driver.Profile) (*Handle, error) {
	pool := s.sessions.Pool(profile)
	start := time.Now()
	sess, err := pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	observability.RecordPoolWait(string(profile.Engine), time.Since(start))

	if err := sess.Ping(ctx); err != nil {
		pool.Release(sess)
		return nil, err
	}
	return &Handle{profile: profile, pool: pool, sess: sess}, nil
}

// Close returns the handle's session to its pool.
func (h *Handle) Close() {
	h.pool.Release(h.sess)
}

// Metadata snapshots the catalog tree: schemas, their tables and views, and
// each table's ordered columns. The snapshot is not kept in sync; callers
// re-query to refresh.
func (s *Service) Metadata(ctx context.Context, h *Handle) (*logical.Catalog, error) {
	schemas, err := h.sess.ListSchemas(ctx)
	if err != nil {
		return nil, err
	}

	out := &logical.Catalog{Schemas: make([]logical.CatalogSchema, 0, len(schemas))}
	for _, schema := range schemas {
		tables, err := h.sess.ListTables(ctx, schema.Name)
		if err != nil {
			return nil, err
		}
		for i := range tables {
			cols, err := h.sess.DescribeTable(ctx, schema.Name, tables[i].Name)
			if err != nil {
				if _, ok := err.(*dberr.SchemaError); ok {
					continue
				}
				return nil, err
			}
			tables[i].Columns = cols
		}
		out.Schemas = append(out.Schemas, logical.CatalogSchema{Name: schema.Name, Tables: tables})
	}
	return out, nil
}

// Query executes one statement and returns its live batch stream along with
// the query ID usable with CancelQuery. The caller must Close the stream.
func (s *Service) Query(ctx context.Context, h *Handle, req driver.Request) (stream.Stream, uuid.UUID, error) {
	engine := h.profile.Engine
	if err := dialect.Validate(engine, req.SQL); err != nil {
		return nil, uuid.Nil, err
	}
	req.SQL = dialect.Translate(engine, req.SQL)
	if req.RowLimit > 0 {
		req.SQL = dialect.WrapLimit(engine, req.SQL, int64(req.RowLimit), 0)
	}

	start := time.Now()
	st, queryID, err := h.sess.Execute(ctx, req, s.limits)
	if err != nil {
		observability.RecordQuery(string(engine), "error", time.Since(start))
		return nil, uuid.Nil, err
	}
	observability.RecordQuery(string(engine), "ok", time.Since(start))
	return st, queryID, nil
}

// Preview materializes up to rowLimit rows for display. The underlying
// cursor is fully released before Preview returns.
func (s *Service) Preview(ctx context.Context, h *Handle, req driver.Request, rowLimit int) ([]*stream.Batch, error) {
	if rowLimit > 0 {
		req.RowLimit = rowLimit
	}
	st, _, err := s.Query(ctx, h, req)
	if err != nil {
		return nil, err
	}
	return stream.Collect(ctx, st, 0)
}

// Page addresses one window of a table browse.
type Page struct {
	Limit  int64
	Offset int64
	// Where is an optional filter expression without the WHERE keyword.
	Where string
	// OrderBy is an optional ordering expression without the ORDER BY
	// keyword.
	OrderBy string
}

// QueryTable streams one page of a table's rows, quoting the table path for
// the engine's dialect.
func (s *Service) QueryTable(ctx context.Context, h *Handle, schema, table string, page Page) (stream.Stream, uuid.UUID, error) {
	engine := h.profile.Engine
	sql := "SELECT * FROM " + dialect.QuoteQualified(engine, schema, table)
	if page.Where != "" {
		sql += " WHERE " + page.Where
	}
	if page.OrderBy != "" {
		sql += " ORDER BY " + page.OrderBy
	}
	sql = dialect.WrapLimit(engine, sql, page.Limit, page.Offset)

	st, queryID, err := h.sess.Execute(ctx, driver.Request{SQL: sql}, s.limits)
	if err != nil {
		return nil, uuid.Nil, err
	}
	return st, queryID, nil
}

// TableRowCount returns COUNT(*) for one table. An optional filter
// expression, given without the WHERE keyword, narrows the count.
func (s *Service) TableRowCount(ctx context.Context, h *Handle, schema, table, condition string) (int64, error) {
	sql := "SELECT COUNT(*) FROM " + dialect.QuoteQualified(h.profile.Engine, schema, table)
	if condition != "" {
		sql += " WHERE " + condition
	}
	st, _, err := h.sess.Execute(ctx, driver.Request{SQL: sql}, s.limits)
	if err != nil {
		return 0, err
	}
	batches, err := stream.Collect(ctx, st, 1)
	if err != nil {
		return 0, err
	}
	if len(batches) == 0 || batches[0].Rows == 0 {
		return 0, fmt.Errorf("count query returned no rows")
	}
	switch v := batches[0].Row(0)[0].(type) {
	case int64:
		return v, nil
	case uint64:
		return int64(v), nil
	case logical.Decimal:
		var n int64
		_, err := fmt.Sscan(v.Text, &n)
		return n, err
	default:
		return 0, fmt.Errorf("count query returned %T", v)
	}
}

// DropTable removes one table or view. The statement runs to completion;
// there is no result stream.
func (s *Service) DropTable(ctx context.Context, h *Handle, schema, table string, kind logical.TableKind) error {
	verb := "DROP TABLE "
	if kind == logical.TableKindView {
		verb = "DROP VIEW "
	}
	sql := verb + dialect.QuoteQualified(h.profile.Engine, schema, table)
	st, _, err := h.sess.Execute(ctx, driver.Request{SQL: sql}, s.limits)
	if err != nil {
		return err
	}
	defer st.Close()
	for {
		if _, err := st.Next(ctx); err == io.EOF {
			return nil
		} else if err != nil {
			return err
		}
	}
}

// CancelQuery aborts one in-flight query on the handle's session.
func (s *Service) CancelQuery(h *Handle, queryID uuid.UUID) {
	h.sess.Cancel(queryID)
}

// Export submits a background export job draining req into dest. When format
// is empty it is inferred from the destination filename. The returned job
// exposes progress polling and cancellation.
func (s *Service) Export(h *Handle, req driver.Request, format exporter.Format, dest string, opts exporter.Options) (*worker.ExportJob, error) {
	if format == "" {
		inferred, err := exporter.FormatForPath(dest)
		if err != nil {
			return nil, &dberr.ExportError{Reason: dberr.ExportWriter, Err: err}
		}
		format = inferred
	}

	job := worker.NewExportJob(h.profile, req, format, dest, opts, s.timeout)
	if !s.workers.Submit(job) {
		job.Cancel()
		return nil, &dberr.ExportError{Reason: dberr.ExportWriter, Err: fmt.Errorf("export queue is full")}
	}
	return job, nil
}

// CancelExport aborts a submitted export job.
func (s *Service) CancelExport(id uuid.UUID) bool {
	return s.workers.Cancel(id)
}

// ExportJob looks up a submitted export job.
func (s *Service) ExportJob(id uuid.UUID) (*worker.ExportJob, bool) {
	return s.workers.Job(id)
}

// Close stops the export workers and tears down every session pool.
func (s *Service) Close() error {
	s.workers.Stop()
	return s.sessions.CloseAll()
}
