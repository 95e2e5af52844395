package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/kiranshivaraju/reelscraper/internal/progress"
	"github.com/kiranshivaraju/reelscraper/internal/store"
	"github.com/kiranshivaraju/reelscraper/pkg/models"
)

var (
	// ErrShuttingDown is returned by Submit after Shutdown has started.
	ErrShuttingDown = errors.New("runner is shutting down")
	// ErrJobNotFound is returned for job IDs the runner or store never saw.
	ErrJobNotFound = errors.New("job not found")
	// ErrInvalidRequest is returned for submissions that fail validation.
	ErrInvalidRequest = errors.New("invalid job request")
)

// Executor drives a job to a terminal state.
type Executor interface {
	Run(ctx context.Context, job *models.Job) error
}

// JobStore is the durable record of submitted jobs.
type JobStore interface {
	CreateJob(ctx context.Context, job *models.Job) error
	GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error)
	UpdateJobState(ctx context.Context, id uuid.UUID, state models.JobState, opts ...store.JobUpdateOption) error
}

// Request is a job submission.
type Request struct {
	Targets   []models.Target
	ItemLimit int
	Columns   []string
}

// Validate checks targets, item limit and column names. maxLimit <= 0
// disables the upper bound.
func (r Request) Validate(maxLimit int) error {
	if len(r.Targets) == 0 {
		return fmt.Errorf("%w: at least one username or hashtag is required", ErrInvalidRequest)
	}
	for _, t := range r.Targets {
		if err := t.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
	}
	if r.ItemLimit < 1 || (maxLimit > 0 && r.ItemLimit > maxLimit) {
		return fmt.Errorf("%w: max_items must be between 1 and %d", ErrInvalidRequest, maxLimit)
	}
	for _, c := range r.Columns {
		if !models.IsKnownColumn(c) {
			return fmt.Errorf("%w: unknown column %q", ErrInvalidRequest, c)
		}
	}
	return nil
}

// RunnerConfig tunes admission control.
type RunnerConfig struct {
	// MaxConcurrent caps how many jobs hold a browser at once.
	MaxConcurrent int64
	MaxItemLimit  int
}

// Runner schedules jobs. Each job runs in its own goroutine, but at most
// MaxConcurrent of them may be past admission at any moment.
type Runner struct {
	exec    Executor
	tracker progress.Tracker
	store   JobStore
	sem     *semaphore.Weighted
	cfg     RunnerConfig

	baseCtx context.Context
	stop    context.CancelFunc

	mu      sync.Mutex
	cancels map[uuid.UUID]context.CancelFunc
	closed  bool
	wg      sync.WaitGroup
}

// NewRunner returns a Runner. js may be nil when jobs are not persisted.
func NewRunner(exec Executor, tracker progress.Tracker, js JobStore, cfg RunnerConfig) *Runner {
	if cfg.MaxConcurrent < 1 {
		cfg.MaxConcurrent = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		exec:    exec,
		tracker: tracker,
		store:   js,
		sem:     semaphore.NewWeighted(cfg.MaxConcurrent),
		cfg:     cfg,
		baseCtx: ctx,
		stop:    cancel,
		cancels: make(map[uuid.UUID]context.CancelFunc),
	}
}

// Submit validates req, records a queued job and starts it asynchronously.
// It never waits for the job to be admitted.
func (r *Runner) Submit(ctx context.Context, req Request) (*models.Job, error) {
	if err := req.Validate(r.cfg.MaxItemLimit); err != nil {
		return nil, err
	}
	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()
	if closed {
		return nil, ErrShuttingDown
	}

	now := time.Now().UTC()
	job := &models.Job{
		ID:        uuid.New(),
		Targets:   append([]models.Target(nil), req.Targets...),
		ItemLimit: req.ItemLimit,
		Columns:   append([]string(nil), req.Columns...),
		State:     models.JobStateQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if r.store != nil {
		if err := r.store.CreateJob(ctx, job); err != nil {
			return nil, fmt.Errorf("recording job: %w", err)
		}
	}
	if err := r.tracker.Put(ctx, job.Snapshot()); err != nil {
		return nil, fmt.Errorf("publishing job: %w", err)
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrShuttingDown
	}
	jobCtx, cancel := context.WithCancel(r.baseCtx)
	r.cancels[job.ID] = cancel
	r.wg.Add(1)
	r.mu.Unlock()

	snapshot := *job
	go r.run(jobCtx, cancel, job)

	slog.Info("job submitted", "job_id", job.ID, "targets", len(job.Targets), "item_limit", job.ItemLimit)
	return &snapshot, nil
}

func (r *Runner) run(ctx context.Context, cancel context.CancelFunc, job *models.Job) {
	defer r.wg.Done()
	defer func() {
		cancel()
		r.mu.Lock()
		delete(r.cancels, job.ID)
		r.mu.Unlock()
	}()

	log := slog.With("job_id", job.ID)

	if err := r.sem.Acquire(ctx, 1); err != nil {
		log.Info("job cancelled before admission")
		job.State = models.JobStateError
		job.ErrorMessage = ReasonCancelled
		job.UpdatedAt = time.Now().UTC()
		r.publish(job)
		r.record(job, models.JobStateError, store.WithErrorMessage(ReasonCancelled))
		return
	}
	defer r.sem.Release(1)

	log.Info("job admitted")
	r.record(job, models.JobStateRunning)

	if err := r.exec.Run(ctx, job); err != nil {
		log.Warn("job failed", "reason", job.ErrorMessage, "error", err)
		r.record(job, models.JobStateError, store.WithErrorMessage(job.ErrorMessage), store.WithProgress(job.Progress))
		return
	}
	r.record(job, models.JobStateDone,
		store.WithProgress(job.Progress),
		store.WithRecordCount(job.RecordCount),
		store.WithResultLocation(job.ResultLocation))
}

func (r *Runner) publish(job *models.Job) {
	if err := r.tracker.Put(context.Background(), job.Snapshot()); err != nil {
		slog.Warn("publishing progress failed", "job_id", job.ID, "error", err)
	}
}

func (r *Runner) record(job *models.Job, state models.JobState, opts ...store.JobUpdateOption) {
	if r.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := r.store.UpdateJobState(ctx, job.ID, state, opts...); err != nil {
		slog.Warn("recording job state failed", "job_id", job.ID, "state", state, "error", err)
	}
}

// Cancel stops a queued or running job. The job still reaches a terminal
// state, after its browser has been released.
func (r *Runner) Cancel(id uuid.UUID) error {
	r.mu.Lock()
	cancel, ok := r.cancels[id]
	r.mu.Unlock()
	if !ok {
		return ErrJobNotFound
	}
	cancel()
	slog.Info("job cancellation requested", "job_id", id)
	return nil
}

// Active returns the number of jobs that have not yet finished.
func (r *Runner) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.cancels)
}

// Wait blocks until every submitted job has finished.
func (r *Runner) Wait() {
	r.wg.Wait()
}

// Shutdown refuses new jobs, cancels the running ones and waits for them to
// finish or for ctx to expire.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	r.stop()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
