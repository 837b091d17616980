package async

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/datalake-etl/internal/common"
	"github.com/joseph-ayodele/datalake-etl/internal/repository"
)

type LoadQueue struct {
	loader  Loader
	logger  *slog.Logger
	workers int
	timeout time.Duration
	onDone  func(Job, repository.LoadResult, error)

	ch   chan Job
	wg   sync.WaitGroup
	once sync.Once

	mu     sync.RWMutex
	closed bool
}

type Option func(*LoadQueue)

func WithWorkers(n int) Option {
	return func(q *LoadQueue) {
		if n > 0 {
			q.workers = n
		}
	}
}

func WithQueueSize(n int) Option {
	return func(q *LoadQueue) {
		if n > 0 {
			q.ch = make(chan Job, n)
		}
	}
}

func WithJobTimeout(d time.Duration) Option {
	return func(q *LoadQueue) {
		if d > 0 {
			q.timeout = d
		}
	}
}

// WithOnDone registers a callback run by the worker after every job.
func WithOnDone(fn func(Job, repository.LoadResult, error)) Option {
	return func(q *LoadQueue) { q.onDone = fn }
}

// FromConfig maps the queue settings onto options.
func FromConfig(c common.QueueConfig) []Option {
	return []Option{WithWorkers(c.Workers), WithQueueSize(c.QueueSize), WithJobTimeout(c.Timeout)}
}

func NewLoadQueue(loader Loader, logger *slog.Logger, opts ...Option) *LoadQueue {
	if logger == nil {
		logger = slog.Default()
	}
	q := &LoadQueue{
		loader:  loader,
		logger:  logger,
		workers: 2,
		timeout: 2 * time.Minute,
		ch:      make(chan Job, 64),
	}
	for _, o := range opts {
		o(q)
	}
	q.start()
	return q
}

func (q *LoadQueue) start() {
	q.once.Do(func() {
		for i := 0; i < q.workers; i++ {
			q.wg.Add(1)
			go func(workerID int) {
				defer q.wg.Done()
				q.logger.Info("load.worker.started", "worker_id", workerID)

				for job := range q.ch {
					q.run(workerID, job)
				}

				q.logger.Info("load.worker.stopped", "worker_id", workerID)
			}(i + 1)
		}
	})
}

func (q *LoadQueue) run(workerID int, job Job) {
	ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
	defer cancel()
	if job.RunID != "" {
		ctx = common.WithRunID(ctx, job.RunID)
	}

	var (
		res repository.LoadResult
		err error
	)
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("%w: load panicked: %v", common.ErrInternal, r)
			}
		}()
		res, err = q.loader.Load(ctx, job.Dataset, job.Records)
	}()

	if err != nil {
		q.logger.Error("load.job.failed", "worker_id", workerID, "job_id", job.ID, "dataset", job.Dataset, "error", err)
	} else {
		q.logger.Info("load.job.ok", "worker_id", workerID, "job_id", job.ID, "dataset", job.Dataset,
			"batch_id", res.BatchID, "rows", res.Rows, "waited", time.Since(job.SubmittedAt))
	}
	if q.onDone != nil {
		q.onDone(job, res, err)
	}
}

// Enqueue assigns the job an id when it has none and hands it to a worker.
// A full queue blocks the caller until a slot frees up or ctx ends.
func (q *LoadQueue) Enqueue(ctx context.Context, job Job) (uuid.UUID, error) {
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if job.SubmittedAt.IsZero() {
		job.SubmittedAt = time.Now()
	}

	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		q.logger.Warn("cannot enqueue: queue is shutting down", "job_id", job.ID)
		return uuid.Nil, ErrQueueClosed
	}
	select {
	case q.ch <- job:
		q.logger.Info("load.job.queued", "job_id", job.ID, "dataset", job.Dataset, "records", len(job.Records))
		return job.ID, nil
	default:
	}

	q.logger.Warn("queue full, applying backpressure", "job_id", job.ID)
	select {
	case q.ch <- job:
		return job.ID, nil
	case <-ctx.Done():
		return uuid.Nil, ctx.Err()
	}
}

// Shutdown stops accepting jobs and waits for queued ones to drain or ctx to end.
func (q *LoadQueue) Shutdown(ctx context.Context) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.ch)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() { defer close(done); q.wg.Wait() }()

	select {
	case <-ctx.Done():
		q.logger.Warn("shutdown interrupted by context")
	case <-done:
		q.logger.Info("queue drained, shutdown complete")
	}
}
