package job

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

// ErrNotFound is returned for unknown job IDs.
var ErrNotFound = errors.New("job not found")

const jobColumns = `id, type, status, file_path, params, progress, result, error, created_at, started_at, completed_at`

// JobQueue persists jobs in the jobs table and runs them one at a time in
// creation order.
type JobQueue struct {
	db       *sql.DB
	logger   *log.Logger
	mu       sync.RWMutex
	wake     chan struct{}
	cancels  map[string]context.CancelFunc
	handlers map[JobType]JobHandler
	cleanup  func(*Job)
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewJobQueue creates a queue. Register handlers, then call Start.
func NewJobQueue(db *sql.DB, logger *log.Logger) *JobQueue {
	ctx, cancel := context.WithCancel(context.Background())
	return &JobQueue{
		db:       db,
		logger:   logger.WithPrefix("job"),
		wake:     make(chan struct{}, 1),
		cancels:  make(map[string]context.CancelFunc),
		handlers: make(map[JobType]JobHandler),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// RegisterHandler registers a handler for a job type
func (q *JobQueue) RegisterHandler(jobType JobType, handler JobHandler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[jobType] = handler
}

// OnFinish sets a hook that runs once a job reaches a terminal state.
func (q *JobQueue) OnFinish(fn func(*Job)) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.cleanup = fn
}

// Start resumes interrupted jobs and starts the worker.
func (q *JobQueue) Start() error {
	// Mark any previously "running" jobs as pending (server restarted)
	res, err := q.db.Exec("UPDATE jobs SET status = ?, progress = 0, started_at = NULL WHERE status = ?",
		StatusPending, StatusRunning)
	if err != nil {
		return fmt.Errorf("resume jobs: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		q.logger.Info("resumed interrupted jobs", "count", n)
	}

	q.wg.Add(1)
	go q.worker()
	return nil
}

// Enqueue creates a new job and wakes the worker
func (q *JobQueue) Enqueue(jobType JobType, filePath string, params any) (*Job, error) {
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshal params: %w", err)
	}

	job := &Job{
		ID:        uuid.New().String(),
		Type:      jobType,
		Status:    StatusPending,
		FilePath:  filePath,
		Params:    paramsJSON,
		Progress:  0,
		CreatedAt: time.Now().UTC(),
	}

	_, err = q.db.Exec(`
		INSERT INTO jobs (id, type, status, file_path, params, progress, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.Type, job.Status, job.FilePath, string(job.Params), job.Progress, job.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}

	q.logger.Info("job queued", "id", job.ID, "type", job.Type)
	q.notify()
	return job, nil
}

func (q *JobQueue) notify() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// GetJob retrieves a job by ID
func (q *JobQueue) GetJob(id string) (*Job, error) {
	job, err := scanJob(q.db.QueryRow(`SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return job, err
}

// ListJobs returns all jobs ordered by creation time (newest first)
func (q *JobQueue) ListJobs() ([]*Job, error) {
	rows, err := q.db.Query(`SELECT ` + jobColumns + ` FROM jobs ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	jobs := []*Job{}
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*Job, error) {
	job := &Job{}
	var params, result, errMsg sql.NullString
	var startedAt, completedAt sql.NullTime

	err := row.Scan(&job.ID, &job.Type, &job.Status, &job.FilePath, &params, &job.Progress,
		&result, &errMsg, &job.CreatedAt, &startedAt, &completedAt)
	if err != nil {
		return nil, err
	}

	if params.Valid {
		job.Params = json.RawMessage(params.String)
	}
	if result.Valid {
		job.Result = json.RawMessage(result.String)
	}
	if errMsg.Valid {
		job.Error = errMsg.String
	}
	if startedAt.Valid {
		job.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		job.CompletedAt = &completedAt.Time
	}
	return job, nil
}

// CancelJob cancels a pending or running job. Cancelling a finished job is
// a no-op.
func (q *JobQueue) CancelJob(id string) error {
	job, err := q.GetJob(id)
	if err != nil {
		return err
	}

	// q.mu orders this against the worker claiming the job
	q.mu.Lock()
	res, err := q.db.Exec(`
		UPDATE jobs SET status = ?, completed_at = ?
		WHERE id = ? AND status IN (?, ?)`,
		StatusCancelled, time.Now().UTC(), id, StatusPending, StatusRunning,
	)
	cancelFn, running := q.cancels[id]
	q.mu.Unlock()
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil
	}
	q.logger.Info("job cancelled", "id", id)

	if running {
		// the worker finishes the job once the handler returns
		cancelFn()
		return nil
	}

	job.Status = StatusCancelled
	q.finish(job)
	return nil
}

// UpdateProgress updates the progress of a running job
func (q *JobQueue) UpdateProgress(id string, progress float64) {
	if _, err := q.db.Exec("UPDATE jobs SET progress = ? WHERE id = ?", progress, id); err != nil {
		q.logger.Warn("update progress", "id", id, "err", err)
	}
}

// Stop shuts down the queue and waits for the worker. A job interrupted by
// Stop stays running in the database and is resumed by the next Start.
func (q *JobQueue) Stop() {
	q.cancel()
	q.wg.Wait()
}

// worker processes pending jobs one at a time
func (q *JobQueue) worker() {
	defer q.wg.Done()
	for {
		for q.ctx.Err() == nil {
			job, ctx, err := q.claimNext()
			if err != nil {
				if !errors.Is(err, sql.ErrNoRows) {
					q.logger.Error("claim job", "err", err)
				}
				break
			}
			q.processJob(ctx, job)
		}

		select {
		case <-q.ctx.Done():
			return
		case <-q.wake:
		}
	}
}

// claimNext marks the oldest pending job as running, registers its cancel
// func and returns it.
func (q *JobQueue) claimNext() (*Job, context.Context, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, err := scanJob(q.db.QueryRow(`SELECT `+jobColumns+` FROM jobs
		WHERE status = ? ORDER BY created_at ASC, rowid ASC LIMIT 1`, StatusPending))
	if err != nil {
		return nil, nil, err
	}

	now := time.Now().UTC()
	if _, err := q.db.Exec("UPDATE jobs SET status = ?, started_at = ? WHERE id = ?",
		StatusRunning, now, job.ID); err != nil {
		return nil, nil, err
	}
	job.Status = StatusRunning
	job.StartedAt = &now

	ctx, cancelFn := context.WithCancel(q.ctx)
	q.cancels[job.ID] = cancelFn
	return job, ctx, nil
}

// processJob runs a single job
func (q *JobQueue) processJob(ctx context.Context, job *Job) {
	q.mu.RLock()
	handler, ok := q.handlers[job.Type]
	q.mu.RUnlock()

	var err error
	if ok {
		q.logger.Info("job started", "id", job.ID, "type", job.Type)
		updateProgress := func(progress float64) {
			q.UpdateProgress(job.ID, progress)
		}
		err = handler(ctx, job, updateProgress)
	} else {
		err = fmt.Errorf("no handler for job type: %s", job.Type)
	}
	cancelled := ctx.Err() != nil

	q.mu.Lock()
	if cancelFn, ok := q.cancels[job.ID]; ok {
		cancelFn()
		delete(q.cancels, job.ID)
	}
	q.mu.Unlock()

	switch {
	case err == nil && !cancelled:
		q.completeJob(job)
	case q.ctx.Err() != nil:
		q.logger.Info("job interrupted by shutdown", "id", job.ID)
	case cancelled:
		job.Status = StatusCancelled
		q.finish(job)
	default:
		q.failJob(job, err.Error())
	}
}

func (q *JobQueue) completeJob(job *Job) {
	now := time.Now().UTC()
	_, err := q.db.Exec(`UPDATE jobs SET status = ?, progress = 1.0, result = ?, completed_at = ?
		WHERE id = ? AND status = ?`,
		StatusCompleted, nullableJSON(job.Result), now, job.ID, StatusRunning)
	if err != nil {
		q.logger.Error("complete job", "id", job.ID, "err", err)
	}
	job.Status = StatusCompleted
	job.Progress = 1
	job.CompletedAt = &now
	q.logger.Info("job completed", "id", job.ID, "took", now.Sub(*job.StartedAt).Round(time.Millisecond))
	q.finish(job)
}

func (q *JobQueue) failJob(job *Job, errMsg string) {
	now := time.Now().UTC()
	_, err := q.db.Exec("UPDATE jobs SET status = ?, error = ?, completed_at = ? WHERE id = ? AND status = ?",
		StatusFailed, errMsg, now, job.ID, StatusRunning)
	if err != nil {
		q.logger.Error("fail job", "id", job.ID, "err", err)
	}
	job.Status = StatusFailed
	job.Error = errMsg
	job.CompletedAt = &now
	q.logger.Warn("job failed", "id", job.ID, "err", errMsg)
	q.finish(job)
}

func (q *JobQueue) finish(job *Job) {
	q.mu.RLock()
	fn := q.cleanup
	q.mu.RUnlock()
	if fn != nil {
		fn(job)
	}
}

func nullableJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
