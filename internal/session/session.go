// Package session owns live native connections. A Session binds one driver
// handle to one pool slot, tracks in-flight queries for cancellation, and
// serializes statements on handles that cannot run them concurrently.
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"querybridge/internal/dberr"
	"querybridge/internal/driver"
	"querybridge/internal/logical"
	"querybridge/internal/stream"
)

// Session wraps one live driver connection. Native handles are never shared
// across sessions; concurrent use within a session is gated by the handle's
// own capability.
type Session struct {
	ID      uuid.UUID
	profile driver.Profile
	conn    driver.Conn
	logger  *slog.Logger

	// execMu serializes statements on single-statement handles. It is held
	// for the whole cursor lifetime, released on stream close.
	execMu sync.Mutex

	mu       sync.Mutex
	inflight map[uuid.UUID]context.CancelFunc
	broken   bool
	closed   bool
}

func newSession(profile driver.Profile, conn driver.Conn, logger *slog.Logger) *Session {
	return &Session{
		ID:       uuid.New(),
		profile:  profile,
		conn:     conn,
		logger:   logger,
		inflight: make(map[uuid.UUID]context.CancelFunc),
	}
}

// Engine reports the session's engine kind.
func (s *Session) Engine() dberr.Engine { return s.conn.Engine() }

// Profile returns the immutable profile this session is bound to.
func (s *Session) Profile() driver.Profile { return s.profile }

func (s *Session) lockExec() func() {
	if s.conn.ConcurrentStatements() {
		return func() {}
	}
	s.execMu.Lock()
	return s.execMu.Unlock
}

// Execute runs one statement and streams its results. The statement timeout
// is req.Timeout, falling back to the profile default; on expiry the query
// is cancelled and the stream fails with a timeout error. The returned query
// ID can be passed to Cancel while the stream is being consumed.
func (s *Session) Execute(ctx context.Context, req driver.Request, limits stream.Limits) (stream.Stream, uuid.UUID, error) {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = s.profile.StatementTimeout
	}

	queryCtx := context.Background()
	var cancel context.CancelFunc
	if timeout > 0 {
		queryCtx, cancel = context.WithTimeout(ctx, timeout)
	} else {
		queryCtx, cancel = context.WithCancel(ctx)
	}

	queryID := uuid.New()
	s.mu.Lock()
	s.inflight[queryID] = cancel
	s.mu.Unlock()

	unlock := s.lockExec()

	release := func() {
		s.mu.Lock()
		delete(s.inflight, queryID)
		s.mu.Unlock()
		cancel()
		unlock()
	}

	start := time.Now()
	src, err := s.conn.Execute(queryCtx, req)
	if err != nil {
		release()
		if dberr.Fatal(err) {
			s.markBroken()
		}
		return nil, uuid.Nil, err
	}
	s.logger.Debug("query started",
		"engine", string(s.conn.Engine()),
		"query_id", queryID.String(),
		"elapsed", time.Since(start),
	)

	inner := stream.New(queryCtx, s.conn.Engine(), src, limits)
	return &trackedStream{Stream: inner, release: release}, queryID, nil
}

// Cancel aborts one in-flight query. Cancellation is cooperative at batch
// boundaries, backed by the native out-of-band cancel where the engine has
// one; racing with normal completion is harmless.
func (s *Session) Cancel(queryID uuid.UUID) {
	s.mu.Lock()
	cancel, ok := s.inflight[queryID]
	s.mu.Unlock()
	if ok {
		cancel()
	}
}

// CancelAll aborts every in-flight query on the session.
func (s *Session) CancelAll() {
	s.mu.Lock()
	cancels := make([]context.CancelFunc, 0, len(s.inflight))
	for _, c := range s.inflight {
		cancels = append(cancels, c)
	}
	s.mu.Unlock()
	for _, c := range cancels {
		c()
	}
}

// ListSchemas snapshots the catalog's schemas.
func (s *Session) ListSchemas(ctx context.Context) ([]logical.Schema, error) {
	defer s.lockExec()()
	return s.conn.ListSchemas(ctx)
}

// ListTables snapshots one schema's tables and views.
func (s *Session) ListTables(ctx context.Context, schema string) ([]logical.Table, error) {
	defer s.lockExec()()
	return s.conn.ListTables(ctx, schema)
}

// DescribeTable snapshots one table's ordered column descriptors.
func (s *Session) DescribeTable(ctx context.Context, schema, table string) ([]logical.Column, error) {
	defer s.lockExec()()
	return s.conn.DescribeTable(ctx, schema, table)
}

// Ping verifies the native handle and marks the session broken on failure.
func (s *Session) Ping(ctx context.Context) error {
	if err := s.conn.Ping(ctx); err != nil {
		s.markBroken()
		return err
	}
	return nil
}

func (s *Session) markBroken() {
	s.mu.Lock()
	s.broken = true
	s.mu.Unlock()
}

// Broken reports whether the session's native handle is no longer usable.
// The pool evicts broken sessions instead of reusing them.
func (s *Session) Broken() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.broken
}

// Close cancels in-flight queries and releases the native handle.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.CancelAll()
	return s.conn.Close()
}

// trackedStream releases the session's statement slot when the consumer is
// done with the cursor.
type trackedStream struct {
	stream.Stream
	release func()
	once    sync.Once
}

func (t *trackedStream) Close() error {
	err := t.Stream.Close()
	t.once.Do(t.release)
	return err
}
