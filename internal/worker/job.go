// Package worker runs export jobs in the background. Each job drains one
// query's result stream into a storage sink; the pool bounds how many run at
// once and gives callers progress polling and cancellation.
package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"querybridge/internal/driver"
	"querybridge/internal/exporter"
)

// Status is the lifecycle state of an export job.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusRunning   Status = "RUNNING"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
	StatusFailed    Status = "FAILED"
)

// Terminal reports whether a job in this status will not change again.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusFailed
}

// ExportJob is one unit of export work. Progress counters are updated after
// every batch and safe to read while the job runs.
type ExportJob struct {
	ID      uuid.UUID
	Profile driver.Profile
	Request driver.Request
	Format  exporter.Format
	Options exporter.Options
	// Key is the destination object key within the sink.
	Key string

	Submitted time.Time
	Started   time.Time
	Finished  time.Time

	rows  atomic.Int64
	bytes atomic.Int64

	mu     sync.Mutex
	status Status
	err    error

	ctx    context.Context
	cancel context.CancelFunc
}

// NewExportJob builds a pending job. Timeout bounds the whole export, not
// just the statement; zero means no deadline.
func NewExportJob(profile driver.Profile, req driver.Request, format exporter.Format, key string, opts exporter.Options, timeout time.Duration) *ExportJob {
	ctx := context.Background()
	var cancel context.CancelFunc
	if timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, timeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}
	return &ExportJob{
		ID:        uuid.New(),
		Profile:   profile,
		Request:   req,
		Format:    format,
		Options:   opts,
		Key:       key,
		Submitted: time.Now(),
		status:    StatusPending,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Cancel requests the job stop. Already-terminal jobs are unaffected.
func (j *ExportJob) Cancel() { j.cancel() }

// Status returns the current lifecycle state.
func (j *ExportJob) Status() Status {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.status
}

// Err returns the failure that ended the job, if any.
func (j *ExportJob) Err() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.err
}

// Progress returns cumulative rows and bytes written so far.
func (j *ExportJob) Progress() (rows, bytes int64) {
	return j.rows.Load(), j.bytes.Load()
}

func (j *ExportJob) setStatus(s Status) {
	j.mu.Lock()
	j.status = s
	j.mu.Unlock()
}

func (j *ExportJob) finish(s Status, err error) {
	j.mu.Lock()
	if !j.status.Terminal() {
		j.status = s
		j.err = err
		j.Finished = time.Now()
	}
	j.mu.Unlock()
	j.cancel()
}

func (j *ExportJob) recordProgress(rows, bytes int64) {
	j.rows.Store(rows)
	j.bytes.Store(bytes)
}
