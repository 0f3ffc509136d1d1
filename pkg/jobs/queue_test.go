package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu       sync.Mutex
	attempts []int
	done     chan struct{}
}

func (r *recorder) record(attempt int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts = append(r.attempts, attempt)
	return len(r.attempts)
}

func (r *recorder) snapshot() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.attempts...)
}

func TestEnqueueBeforeStartFails(t *testing.T) {
	q := NewQueue("test", func(context.Context, Job) error { return nil }, QueueConfig{})
	assert.Error(t, q.Enqueue(Job{ID: "a"}))
}

func TestQueueRetriesUntilSuccess(t *testing.T) {
	rec := &recorder{done: make(chan struct{})}
	q := NewQueue("test", func(_ context.Context, job Job) error {
		if rec.record(job.Attempt) < 3 {
			return errors.New("transient")
		}
		close(rec.done)
		return nil
	}, QueueConfig{MaxRetries: 5, RetryDelay: time.Millisecond})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "a"}))
	select {
	case <-rec.done:
	case <-time.After(2 * time.Second):
		t.Fatal("job did not succeed")
	}
	assert.Equal(t, []int{0, 1, 2}, rec.snapshot())
}

func TestQueueDropsPermanentFailures(t *testing.T) {
	rec := &recorder{}
	q := NewQueue("test", func(_ context.Context, job Job) error {
		rec.record(job.Attempt)
		return Permanent(errors.New("broken"))
	}, QueueConfig{MaxRetries: 5, RetryDelay: time.Millisecond})
	q.Start(context.Background())

	require.NoError(t, q.Enqueue(Job{ID: "a"}))
	require.Eventually(t, func() bool { return len(rec.snapshot()) == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	q.Stop()
	assert.Equal(t, []int{0}, rec.snapshot())
}

func TestQueueStopsRetryingAfterBudget(t *testing.T) {
	rec := &recorder{}
	q := NewQueue("test", func(_ context.Context, job Job) error {
		rec.record(job.Attempt)
		return errors.New("always")
	}, QueueConfig{MaxRetries: 2, RetryDelay: time.Millisecond})
	q.Start(context.Background())

	require.NoError(t, q.Enqueue(Job{ID: "a"}))
	require.Eventually(t, func() bool { return len(rec.snapshot()) == 3 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	q.Stop()
	assert.Equal(t, []int{0, 1, 2}, rec.snapshot())
}

func TestPermanentHelpers(t *testing.T) {
	base := errors.New("x")
	assert.Nil(t, Permanent(nil))
	assert.True(t, IsPermanent(Permanent(base)))
	assert.ErrorIs(t, Permanent(base), base)
	assert.False(t, IsPermanent(base))
}
