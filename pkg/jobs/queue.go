package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/educore-sync/pkg/retry"
)

// Job is a unit of background sync work, e.g. refreshing one collection for one viewer.
type Job struct {
	ID         string
	Kind       string
	ViewerID   string
	Collection string
	Attempt    int
	Enqueued   time.Time
}

// Handler processes a job.
type Handler func(context.Context, Job) error

// QueueConfig configures worker pool behaviour.
type QueueConfig struct {
	Workers    int
	BufferSize int
	Retry      retry.Policy
	Logger     *zap.Logger
	// OnGiveUp is called once a job exhausted its retries or failed permanently.
	OnGiveUp func(Job, error)
}

// Queue is an in-memory job dispatcher backed by goroutines. Failed jobs are
// re-enqueued after the retry policy's backoff.
type Queue struct {
	name    string
	handler Handler

	workers  int
	policy   retry.Policy
	logger   *zap.Logger
	onGiveUp func(Job, error)

	jobs    chan Job
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	started bool
}

// NewQueue builds a new queue with the provided handler.
func NewQueue(name string, handler Handler, cfg QueueConfig) *Queue {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = cfg.Workers * 16
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = retry.Default()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &Queue{
		name:     name,
		handler:  handler,
		workers:  cfg.Workers,
		policy:   cfg.Retry,
		logger:   cfg.Logger,
		onGiveUp: cfg.OnGiveUp,
		jobs:     make(chan Job, cfg.BufferSize),
	}
}

// Start begins worker consumption. Safe to call more than once.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started {
		return
	}
	q.ctx, q.cancel = context.WithCancel(ctx)
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker()
	}
	q.started = true
	q.logger.Info("queue started", zap.String("queue", q.name), zap.Int("workers", q.workers))
}

// Stop cancels workers and waits for them to exit.
func (q *Queue) Stop() {
	q.mu.Lock()
	if !q.started {
		q.mu.Unlock()
		return
	}
	q.cancel()
	q.started = false
	q.mu.Unlock()
	q.wg.Wait()
	q.logger.Info("queue stopped", zap.String("queue", q.name))
}

// Enqueue pushes a job onto the queue.
func (q *Queue) Enqueue(job Job) error {
	q.mu.Lock()
	ctx := q.ctx
	started := q.started
	q.mu.Unlock()

	if !started {
		return fmt.Errorf("queue %s not started", q.name)
	}
	if job.Enqueued.IsZero() {
		job.Enqueued = time.Now().UTC()
	}

	select {
	case <-ctx.Done():
		return fmt.Errorf("queue %s stopped: %w", q.name, ctx.Err())
	case q.jobs <- job:
		return nil
	}
}

func (q *Queue) worker() {
	defer q.wg.Done()
	for {
		select {
		case <-q.ctx.Done():
			return
		case job := <-q.jobs:
			job.Attempt++
			if err := q.handler(q.ctx, job); err != nil {
				q.handleFailure(job, err)
			}
		}
	}
}

func (q *Queue) handleFailure(job Job, err error) {
	fields := []zap.Field{
		zap.String("queue", q.name),
		zap.String("job_id", job.ID),
		zap.String("kind", job.Kind),
		zap.String("collection", job.Collection),
		zap.Int("attempt", job.Attempt),
		zap.Error(err),
	}
	if !q.policy.ShouldRetry(job.Attempt, err) {
		q.logger.Error("job failed permanently", fields...)
		if q.onGiveUp != nil {
			q.onGiveUp(job, err)
		}
		return
	}
	delay := q.policy.Backoff(job.Attempt)
	q.logger.Warn("job failed, retrying", append(fields, zap.Duration("backoff", delay))...)

	go func(j Job) {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-q.ctx.Done():
			return
		case <-timer.C:
			if err := q.Enqueue(j); err != nil {
				q.logger.Error("failed to requeue job", zap.String("queue", q.name), zap.String("job_id", j.ID), zap.Error(err))
			}
		}
	}(job)
}
