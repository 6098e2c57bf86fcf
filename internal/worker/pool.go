package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"querybridge/internal/dberr"
	"querybridge/internal/dialect"
	"querybridge/internal/exporter"
	"querybridge/internal/observability"
	"querybridge/internal/session"
	"querybridge/internal/storage"
	"querybridge/internal/stream"
)

const jobQueueDepth = 100

// Pool runs export jobs on a fixed set of workers. Session concurrency per
// database is still bounded by the session pools; this pool only bounds how
// many exports encode and upload at once.
type Pool struct {
	queue   chan *ExportJob
	workers int
	wg      sync.WaitGroup
	quit    chan struct{}

	sessions *session.Manager
	sink     storage.Sink
	limits   stream.Limits
	logger   *slog.Logger

	mu   sync.Mutex
	jobs map[uuid.UUID]*ExportJob
}

// NewPool initializes the pool without starting the workers.
func NewPool(workers int, sessions *session.Manager, sink storage.Sink, limits stream.Limits, logger *slog.Logger) *Pool {
	if workers <= 0 {
		workers = 2
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{
		queue:    make(chan *ExportJob, jobQueueDepth),
		workers:  workers,
		quit:     make(chan struct{}),
		sessions: sessions,
		sink:     sink,
		limits:   limits,
		logger:   logger,
		jobs:     make(map[uuid.UUID]*ExportJob),
	}
}

// Start launches the worker goroutines.
func (p *Pool) Start() {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.workerLoop(i)
	}
	p.logger.Info("export workers started", "workers", p.workers)
}

// Submit queues a job. It returns false when the queue is full or the pool
// is shutting down; a rejected job is unregistered again so lookups do not
// find it.
func (p *Pool) Submit(job *ExportJob) bool {
	p.mu.Lock()
	p.jobs[job.ID] = job
	p.mu.Unlock()

	select {
	case <-p.quit:
	default:
		select {
		case p.queue <- job:
			return true
		default:
		}
	}
	p.mu.Lock()
	delete(p.jobs, job.ID)
	p.mu.Unlock()
	return false
}

// Job looks up a submitted job by ID.
func (p *Pool) Job(id uuid.UUID) (*ExportJob, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	job, ok := p.jobs[id]
	return job, ok
}

// Cancel aborts a submitted job by ID.
func (p *Pool) Cancel(id uuid.UUID) bool {
	job, ok := p.Job(id)
	if !ok {
		return false
	}
	job.Cancel()
	return true
}

// Stop shuts the pool down and waits for in-flight jobs to finish. Jobs
// still sitting in the queue are cancelled so pollers reach a terminal
// state.
func (p *Pool) Stop() {
	close(p.quit)
	p.wg.Wait()
	for {
		select {
		case job := <-p.queue:
			job.finish(StatusCancelled, nil)
		default:
			p.logger.Info("export workers stopped")
			return
		}
	}
}

func (p *Pool) workerLoop(id int) {
	defer p.wg.Done()
	for {
		select {
		case job := <-p.queue:
			p.processJob(id, job)
		case <-p.quit:
			return
		}
	}
}

func (p *Pool) processJob(workerID int, job *ExportJob) {
	log := p.logger.With("worker_id", workerID, "job_id", job.ID.String(), "format", string(job.Format))
	log.Info("export started", "key", job.Key)

	job.Started = time.Now()
	job.setStatus(StatusRunning)

	result, err := p.executeExport(job)
	switch {
	case err == nil:
		job.finish(StatusCompleted, nil)
		observability.RecordExport(string(job.Format), "completed", result.Bytes)
		log.Info("export completed", "rows", result.Rows, "bytes", result.Bytes, "elapsed", result.Duration)
	case cancelled(err):
		job.finish(StatusCancelled, err)
		observability.RecordExport(string(job.Format), "cancelled", 0)
		p.removeArtifact(job, log)
		log.Info("export cancelled")
	default:
		job.finish(StatusFailed, err)
		observability.RecordExport(string(job.Format), "failed", 0)
		p.removeArtifact(job, log)
		log.Error("export failed", "error", err)
	}
}

// executeExport runs the full pipeline for one job: acquire a session,
// translate and execute the statement, and drain the stream through the
// format encoder into the sink.
func (p *Pool) executeExport(job *ExportJob) (*exporter.Result, error) {
	engine := job.Profile.Engine

	if err := dialect.ValidateReadOnly(engine, job.Request.SQL); err != nil {
		return nil, err
	}
	req := job.Request
	req.SQL = dialect.Translate(engine, req.SQL)

	pool := p.sessions.Pool(job.Profile)
	waitStart := time.Now()
	sess, err := pool.Acquire(job.ctx)
	if err != nil {
		return nil, err
	}
	observability.RecordPoolWait(string(engine), time.Since(waitStart))
	defer pool.Release(sess)

	st, _, err := sess.Execute(job.ctx, req, p.limits)
	if err != nil {
		return nil, err
	}
	defer st.Close()

	w, done := p.sink.Create(job.ctx, job.Key)
	if w == nil {
		return nil, <-done
	}

	result, runErr := exporter.Run(job.ctx, st, job.Format, w, job.Options, func(rows, bytes int64) {
		prev, _ := job.Progress()
		job.recordProgress(rows, bytes)
		if rows > prev {
			observability.RecordRows(string(engine), rows-prev)
		}
	})
	closeErr := w.Close()
	sinkErr := <-done

	if runErr != nil {
		return nil, runErr
	}
	if closeErr != nil {
		return nil, closeErr
	}
	if sinkErr != nil {
		return nil, sinkErr
	}
	return result, nil
}

// removeArtifact deletes whatever partial output reached the sink. A
// truncated file that parses as complete is worse than no file.
func (p *Pool) removeArtifact(job *ExportJob, log *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := p.sink.Remove(ctx, job.Key); err != nil {
		log.Warn("could not remove partial export", "key", job.Key, "error", err)
	}
}

func cancelled(err error) bool {
	if dberr.IsCancelled(err) || dberr.IsTimeout(err) {
		return true
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
