package worker

import (
	"context"
	"errors"
	"sync"

	"github.com/boddenberg/wa-groups-bfa-go/internal/domain"
	"github.com/boddenberg/wa-groups-bfa-go/internal/infra/queue"
	"github.com/boddenberg/wa-groups-bfa-go/internal/infra/resilience"

	"go.uber.org/zap"
)

// ErrQueueFull is returned by Enqueue when the buffer is full.
var ErrQueueFull = errors.New("dispatch queue is full")

// ErrQueueClosed is returned by Enqueue after Close.
var ErrQueueClosed = errors.New("dispatch queue is closed")

// LocalQueue is the in-process dispatch queue used when no broker is
// configured. Jobs live in memory only: a restart loses queued jobs, and
// the messages stay in queued.
type LocalQueue struct {
	jobs    chan domain.DispatchJob
	workers int
	retry   resilience.Config
	logger  *zap.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewLocalQueue creates a queue holding up to size jobs, drained by workers
// goroutines. A failing handler is retried per retry.
func NewLocalQueue(size, workers int, retry resilience.Config, logger *zap.Logger) *LocalQueue {
	if size < 1 {
		size = 1
	}
	if workers < 1 {
		workers = 1
	}
	return &LocalQueue{
		jobs:    make(chan domain.DispatchJob, size),
		workers: workers,
		retry:   retry,
		logger:  logger,
	}
}

// Enqueue adds a job without blocking.
func (q *LocalQueue) Enqueue(ctx context.Context, job domain.DispatchJob) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return ErrQueueClosed
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case q.jobs <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

// Consume starts the workers. They stop when ctx is done or the queue is
// closed and drained. Consuming a closed queue fails with ErrQueueClosed.
func (q *LocalQueue) Consume(ctx context.Context, handler queue.Handler) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.work(ctx, i, handler)
	}
	q.logger.Info("local dispatch queue started", zap.Int("workers", q.workers))
	return nil
}

func (q *LocalQueue) work(ctx context.Context, id int, handler queue.Handler) {
	defer q.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-q.jobs:
			if !ok {
				return
			}
			err := resilience.RetryWithBackoff(ctx, q.retry, func() error {
				return handler(ctx, job)
			})
			if err != nil {
				q.logger.Error("dispatch job dropped",
					zap.Int("worker", id),
					zap.String("job_id", job.JobID),
					zap.String("message_id", job.MessageID),
					zap.Error(err),
				)
			}
		}
	}
}

// Close stops accepting jobs and waits for the workers to finish.
func (q *LocalQueue) Close() error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.jobs)
	}
	q.mu.Unlock()

	q.wg.Wait()
	return nil
}

// Len returns the number of jobs waiting.
func (q *LocalQueue) Len() int {
	return len(q.jobs)
}
