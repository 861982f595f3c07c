// Package jobs provides a small in-process background job queue.
//
// Guide pre-generation and other slow side effects are enqueued here so
// request handlers never wait on LLM calls. Concurrency is bounded by a
// weighted semaphore; job status is observable through the admin API.
package jobs

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sertaodev/pnae-assistant-go/internal/infra/observability"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// JobStatus is the lifecycle state of a queued job.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
)

// jobTimeout bounds a single job run, LLM calls included.
const jobTimeout = 2 * time.Minute

// Finished job records stay visible to the admin API for the retention
// window and are evicted afterwards. The cap bounds the map even when
// jobs finish faster than the window drains them.
const (
	jobRetention  = time.Hour
	maxJobRecords = 500
)

// Job is the observable record of one queued unit of work.
type Job struct {
	ID         string     `json:"id"`
	Kind       string     `json:"kind"`
	Status     JobStatus  `json:"status"`
	Error      string     `json:"error,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Queue runs jobs in the background with bounded concurrency.
type Queue struct {
	sem     *semaphore.Weighted
	metrics *observability.Metrics
	logger  *zap.Logger

	mu   sync.RWMutex
	jobs map[string]*Job
	wg   sync.WaitGroup

	closed   bool
	closedMu sync.Mutex
}

// NewQueue creates a queue that runs at most workers jobs concurrently.
func NewQueue(workers int64, metrics *observability.Metrics, logger *zap.Logger) *Queue {
	if workers < 1 {
		workers = 1
	}
	return &Queue{
		sem:     semaphore.NewWeighted(workers),
		metrics: metrics,
		logger:  logger,
		jobs:    make(map[string]*Job),
	}
}

// Enqueue registers fn to run in the background and returns the job id.
// Returns the empty string when the queue is already shut down.
func (q *Queue) Enqueue(kind string, fn func(ctx context.Context) error) string {
	q.closedMu.Lock()
	if q.closed {
		q.closedMu.Unlock()
		q.logger.Warn("job rejected, queue is shut down", zap.String("kind", kind))
		return ""
	}
	q.wg.Add(1)
	q.closedMu.Unlock()

	job := &Job{
		ID:        uuid.NewString(),
		Kind:      kind,
		Status:    JobPending,
		CreatedAt: time.Now(),
	}
	q.mu.Lock()
	q.jobs[job.ID] = job
	q.evictLocked(time.Now())
	q.mu.Unlock()
	q.metrics.IncrJob(string(JobPending))

	go q.run(job, fn)
	return job.ID
}

func (q *Queue) run(job *Job, fn func(ctx context.Context) error) {
	defer q.wg.Done()

	// Jobs outlive the request that enqueued them, so they get their own
	// context rather than inheriting a cancelled one.
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	if err := q.sem.Acquire(ctx, 1); err != nil {
		q.finish(job, err)
		return
	}
	defer q.sem.Release(1)

	now := time.Now()
	q.mu.Lock()
	job.Status = JobRunning
	job.StartedAt = &now
	q.mu.Unlock()
	q.metrics.IncrJob(string(JobRunning))

	q.finish(job, fn(ctx))
}

func (q *Queue) finish(job *Job, err error) {
	now := time.Now()
	q.mu.Lock()
	job.FinishedAt = &now
	if err != nil {
		job.Status = JobFailed
		job.Error = err.Error()
	} else {
		job.Status = JobSucceeded
	}
	status := job.Status
	q.mu.Unlock()

	q.metrics.IncrJob(string(status))
	if err != nil {
		q.logger.Error("background job failed",
			zap.String("job_id", job.ID),
			zap.String("kind", job.Kind),
			zap.Error(err),
		)
	} else {
		q.logger.Debug("background job finished",
			zap.String("job_id", job.ID),
			zap.String("kind", job.Kind),
		)
	}
}

// evictLocked drops finished records past the retention window, then
// oldest-finished-first down to the cap. Pending and running jobs are
// never evicted. Caller holds q.mu.
func (q *Queue) evictLocked(now time.Time) {
	for id, job := range q.jobs {
		if job.FinishedAt != nil && now.Sub(*job.FinishedAt) > jobRetention {
			delete(q.jobs, id)
		}
	}
	if len(q.jobs) <= maxJobRecords {
		return
	}

	finished := make([]*Job, 0, len(q.jobs))
	for _, job := range q.jobs {
		if job.FinishedAt != nil {
			finished = append(finished, job)
		}
	}
	sort.Slice(finished, func(i, j int) bool {
		return finished[i].FinishedAt.Before(*finished[j].FinishedAt)
	})
	for _, job := range finished {
		if len(q.jobs) <= maxJobRecords {
			return
		}
		delete(q.jobs, job.ID)
	}
}

// Get returns a copy of the job record, or nil when the id is unknown.
func (q *Queue) Get(id string) *Job {
	q.mu.RLock()
	defer q.mu.RUnlock()

	job, ok := q.jobs[id]
	if !ok {
		return nil
	}
	copied := *job
	return &copied
}

// List returns copies of all job records, newest first.
func (q *Queue) List() []Job {
	q.mu.RLock()
	defer q.mu.RUnlock()

	out := make([]Job, 0, len(q.jobs))
	for _, job := range q.jobs {
		out = append(out, *job)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// Shutdown stops accepting new jobs and waits for running ones to finish,
// up to the context deadline.
func (q *Queue) Shutdown(ctx context.Context) error {
	q.closedMu.Lock()
	q.closed = true
	q.closedMu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
