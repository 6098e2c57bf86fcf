package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"querybridge/internal/dberr"
	"querybridge/internal/driver"
)

const (
	defaultPoolSize       = 4
	defaultAcquireTimeout = 10 * time.Second

	openAttempts    = 3
	openBackoffBase = 250 * time.Millisecond
)

// OpenFunc dials a native connection for a profile. Tests substitute fakes.
type OpenFunc func(ctx context.Context, profile driver.Profile) (driver.Conn, error)

// Pool bounds the live sessions for one profile. Acquire blocks until a slot
// frees or the acquire timeout elapses; idle sessions are reused, broken ones
// evicted on release.
type Pool struct {
	profile driver.Profile
	open    OpenFunc
	logger  *slog.Logger
	sem     *semaphore.Weighted

	mu     sync.Mutex
	idle   []*Session
	closed bool
}

// NewPool builds a pool for one profile. A nil open uses the real drivers.
func NewPool(profile driver.Profile, open OpenFunc, logger *slog.Logger) *Pool {
	if open == nil {
		open = driver.Open
	}
	if logger == nil {
		logger = slog.Default()
	}
	size := profile.PoolSize
	if size <= 0 {
		size = defaultPoolSize
	}
	return &Pool{
		profile: profile,
		open:    open,
		logger:  logger.With("engine", string(profile.Engine), "profile", profile.Name),
		sem:     semaphore.NewWeighted(int64(size)),
	}
}

// Acquire returns a session holding one pool slot. Callers must hand the
// session back with Release. When every slot is busy the call waits up to the
// profile's acquire timeout and then fails with a pool exhaustion error
// rather than queueing indefinitely.
func (p *Pool) Acquire(ctx context.Context) (*Session, error) {
	timeout := p.profile.AcquireTimeout
	if timeout <= 0 {
		timeout = defaultAcquireTimeout
	}
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := p.sem.Acquire(waitCtx, 1); err != nil {
		if ctx.Err() != nil {
			return nil, &dberr.QueryError{Engine: p.profile.Engine, Reason: dberr.QueryCancelled, Err: ctx.Err()}
		}
		return nil, &dberr.ConnectionError{
			Engine: p.profile.Engine,
			Reason: dberr.ConnPoolExhausted,
			Err:    err,
		}
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.sem.Release(1)
		return nil, &dberr.ConnectionError{Engine: p.profile.Engine, Reason: dberr.ConnUnreachable, Err: context.Canceled}
	}
	if n := len(p.idle); n > 0 {
		s := p.idle[n-1]
		p.idle = p.idle[:n-1]
		p.mu.Unlock()
		return s, nil
	}
	p.mu.Unlock()

	conn, err := p.openWithRetry(ctx)
	if err != nil {
		p.sem.Release(1)
		return nil, err
	}
	return newSession(p.profile, conn, p.logger), nil
}

// openWithRetry retries transient dial failures with linear backoff. Auth
// failures and other non-transient errors surface immediately.
func (p *Pool) openWithRetry(ctx context.Context) (driver.Conn, error) {
	var lastErr error
	for attempt := 0; attempt < openAttempts; attempt++ {
		if attempt > 0 {
			p.logger.Warn("retrying connect", "attempt", attempt+1, "error", lastErr)
			select {
			case <-time.After(time.Duration(attempt) * openBackoffBase):
			case <-ctx.Done():
				return nil, lastErr
			}
		}
		conn, err := p.open(ctx, p.profile)
		if err == nil {
			return conn, nil
		}
		lastErr = err
		if !dberr.Retryable(err) {
			return nil, err
		}
	}
	return nil, lastErr
}

// Release returns a session to the pool. Broken sessions are closed and their
// slot freed for a fresh dial.
func (p *Pool) Release(s *Session) {
	if s == nil {
		return
	}
	defer p.sem.Release(1)

	if s.Broken() {
		p.logger.Warn("evicting broken session", "session_id", s.ID.String())
		_ = s.Close()
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		_ = s.Close()
		return
	}
	p.idle = append(p.idle, s)
}

// Close shuts down idle sessions. Sessions checked out at the time of the
// call are closed by Release once handed back.
func (p *Pool) Close() error {
	p.mu.Lock()
	p.closed = true
	idle := p.idle
	p.idle = nil
	p.mu.Unlock()

	var first error
	for _, s := range idle {
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Manager keys pools by profile so repeated connects to the same target share
// one bounded pool.
type Manager struct {
	open   OpenFunc
	logger *slog.Logger

	mu    sync.Mutex
	pools map[string]*Pool
}

// NewManager builds an empty pool registry. A nil open uses the real drivers.
func NewManager(open OpenFunc, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{open: open, logger: logger, pools: make(map[string]*Pool)}
}

// Pool returns the pool for a profile, creating it on first use.
func (m *Manager) Pool(profile driver.Profile) *Pool {
	key := profile.Key()
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.pools[key]; ok {
		return p
	}
	p := NewPool(profile, m.open, m.logger)
	m.pools[key] = p
	return p
}

// CloseAll tears down every pool. Used at shutdown.
func (m *Manager) CloseAll() error {
	m.mu.Lock()
	pools := make([]*Pool, 0, len(m.pools))
	for _, p := range m.pools {
		pools = append(pools, p)
	}
	m.pools = make(map[string]*Pool)
	m.mu.Unlock()

	var first error
	for _, p := range pools {
		if err := p.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
