package port

import (
	"context"
	"time"
)

// Task is a background job: a stable type name plus an opaque payload. The
// payload encoding belongs to the task's producer and handler, not the queue.
type Task struct {
	Type    string
	Payload []byte
}

// Handler processes one task. A non-nil error requeues the task under the
// adapter's retry policy, so handlers must be idempotent.
type Handler func(ctx context.Context, task Task) error

// EnqueueOption tunes delivery. Zero values mean "adapter default".
type EnqueueOption struct {
	Queue     string        // logical queue name
	ProcessIn time.Duration // delay before the task becomes runnable
	MaxRetry  int           // retry budget before the task is parked
	UniqueTTL time.Duration // suppress duplicate enqueues within this window
}

// Client enqueues tasks for asynchronous processing.
type Client interface {
	Enqueue(ctx context.Context, t Task, opts ...EnqueueOption) (id string, err error)
	Close() error
}

// Server consumes tasks. Run blocks until the context is canceled.
type Server interface {
	Register(taskType string, h Handler)
	Run(ctx context.Context) error
	Stop(ctx context.Context) error
}
