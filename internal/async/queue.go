package async

import (
	"context"
	"errors"
	"time"
)

// Job asks the worker to execute one bot run.
type Job struct {
	RunID       string
	SubmittedAt time.Time
	TraceID     string
}

// Handler executes a job. Errors are logged by the queue.
type Handler func(ctx context.Context, job Job) error

var ErrQueueClosed = errors.New("queue is shutting down")

type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	Shutdown(ctx context.Context)
}
