package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Job is one unit of background work. Attempt counts prior failed runs.
type Job struct {
	ID       string
	Type     string
	Payload  interface{}
	Attempt  int
	Enqueued time.Time
}

// Handler processes a job. Returning an error schedules a retry unless the error is
// marked Permanent or the retry budget is spent.
type Handler func(context.Context, Job) error

// QueueConfig sizes the pool and its retry policy. Zero values get defaults.
type QueueConfig struct {
	Workers    int
	BufferSize int
	MaxRetries int
	RetryDelay time.Duration
	Logger     *zap.Logger
}

func (c QueueConfig) withDefaults() QueueConfig {
	c.Workers = max(c.Workers, 1)
	if c.BufferSize <= 0 {
		c.BufferSize = 4 * c.Workers
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = time.Second
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	return c
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Queue dispatches jobs to a fixed pool of goroutines. Jobs live in memory only; callers
// persist job state themselves and replay it after a restart.
type Queue struct {
	name    string
	run     Handler
	opts    QueueConfig
	backlog chan Job
	log     *zap.Logger

	mu      sync.Mutex
	ctx     context.Context // nil until Start
	halt    context.CancelFunc
	workers sync.WaitGroup
	retries sync.WaitGroup
}

// NewQueue builds an idle queue; call Start before Enqueue.
func NewQueue(name string, handler Handler, cfg QueueConfig) *Queue {
	opts := cfg.withDefaults()
	return &Queue{
		name:    name,
		run:     handler,
		opts:    opts,
		backlog: make(chan Job, opts.BufferSize),
		log:     opts.Logger.With(zap.String("queue", name)),
	}
}

// Start launches the workers. Calls after the first are ignored.
func (q *Queue) Start(parent context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.ctx != nil {
		return
	}
	q.ctx, q.halt = context.WithCancel(parent)
	q.workers.Add(q.opts.Workers)
	for n := 0; n < q.opts.Workers; n++ {
		go q.work(q.ctx)
	}
	q.log.Info("queue started", zap.Int("workers", q.opts.Workers))
}

// Stop cancels the workers and pending retries, then waits for running handlers to return.
// Jobs still buffered are dropped.
func (q *Queue) Stop() {
	q.mu.Lock()
	halt := q.halt
	q.mu.Unlock()
	if halt == nil {
		return
	}
	halt()
	q.workers.Wait()
	q.retries.Wait()
	q.log.Info("queue stopped", zap.Int("dropped", len(q.backlog)))
}

// Enqueue pushes a job, blocking while the buffer is full.
func (q *Queue) Enqueue(job Job) error {
	q.mu.Lock()
	ctx := q.ctx
	q.mu.Unlock()
	if ctx == nil {
		return fmt.Errorf("queue %s: not started", q.name)
	}
	if job.Enqueued.IsZero() {
		job.Enqueued = time.Now().UTC()
	}
	select {
	case q.backlog <- job:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("queue %s: %w", q.name, ctx.Err())
	}
}

func (q *Queue) work(ctx context.Context) {
	defer q.workers.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-q.backlog:
			if err := q.run(ctx, job); err != nil {
				q.fail(ctx, job, err)
			}
		}
	}
}

func (q *Queue) fail(ctx context.Context, job Job, err error) {
	log := q.log.With(zap.String("job_id", job.ID), zap.String("type", job.Type), zap.Int("attempt", job.Attempt))
	switch {
	case IsPermanent(err):
		log.Error("job failed permanently", zap.Error(err))
		return
	case job.Attempt >= q.opts.MaxRetries:
		log.Error("job retry budget spent", zap.Error(err))
		return
	}
	log.Warn("job failed, will retry", zap.Duration("delay", q.opts.RetryDelay), zap.Error(err))

	job.Attempt++
	q.retries.Add(1)
	go func() {
		defer q.retries.Done()
		wait := time.NewTimer(q.opts.RetryDelay)
		defer wait.Stop()
		select {
		case <-ctx.Done():
			return
		case <-wait.C:
		}
		if err := q.Enqueue(job); err != nil {
			log.Error("requeue failed", zap.Error(err))
		}
	}()
}
