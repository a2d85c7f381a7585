package feed

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// DefaultTaskTimeout bounds a single background task.
const DefaultTaskTimeout = 10 * time.Second

type task struct {
	id   string
	name string
	fn   func(ctx context.Context) error
}

// TaskQueue runs best-effort background work, such as persisting items
// fetched from upstream, on a single worker goroutine. Submission never
// blocks: when the queue is full the task is dropped.
type TaskQueue struct {
	tasks   chan task
	timeout time.Duration
	logger  *slog.Logger

	pending sync.WaitGroup
	failed  atomic.Int64
	dropped atomic.Int64
}

// NewTaskQueue creates a queue holding at most size pending tasks.
func NewTaskQueue(size int, timeout time.Duration, logger *slog.Logger) *TaskQueue {
	if size <= 0 {
		size = 256
	}
	if timeout <= 0 {
		timeout = DefaultTaskTimeout
	}
	return &TaskQueue{
		tasks:   make(chan task, size),
		timeout: timeout,
		logger:  logger,
	}
}

// Submit enqueues fn. It returns false if the queue is full.
func (q *TaskQueue) Submit(name string, fn func(ctx context.Context) error) bool {
	t := task{id: uuid.NewString(), name: name, fn: fn}
	q.pending.Add(1)
	select {
	case q.tasks <- t:
		return true
	default:
		q.pending.Done()
		q.dropped.Add(1)
		q.logger.Warn("task queue full, dropping task", "task", name, "task_id", t.id)
		return false
	}
}

// Start runs the worker until ctx is cancelled. Tasks still queued at that
// point are discarded.
func (q *TaskQueue) Start(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			q.drain()
			return
		case t := <-q.tasks:
			q.run(ctx, t)
		}
	}
}

func (q *TaskQueue) run(ctx context.Context, t task) {
	defer q.pending.Done()

	ctx, cancel := context.WithTimeout(ctx, q.timeout)
	defer cancel()

	start := time.Now()
	if err := t.fn(ctx); err != nil {
		q.failed.Add(1)
		q.logger.Error("background task failed", "task", t.name, "task_id", t.id, "error", err)
		return
	}
	q.logger.Debug("background task done", "task", t.name, "task_id", t.id, "duration", time.Since(start))
}

func (q *TaskQueue) drain() {
	for {
		select {
		case t := <-q.tasks:
			q.logger.Warn("discarding queued task on shutdown", "task", t.name, "task_id", t.id)
			q.pending.Done()
		default:
			return
		}
	}
}

// Flush waits until every submitted task has finished or been discarded.
func (q *TaskQueue) Flush() {
	q.pending.Wait()
}

// Failed returns the number of tasks that returned an error.
func (q *TaskQueue) Failed() int64 { return q.failed.Load() }

// Dropped returns the number of tasks rejected because the queue was full.
func (q *TaskQueue) Dropped() int64 { return q.dropped.Load() }
