package runs

import (
	"context"
	"sync/atomic"

	"github.com/fiscalops/apbots/internal/repository"
)

// CancellationToken is polled between documents, never mid-document.
type CancellationToken interface {
	Cancelled(ctx context.Context) (bool, error)
}

// RepositoryToken reads the run's cancel_requested flag.
type RepositoryToken struct {
	Runs  repository.RunRepository
	RunID string
}

func (t RepositoryToken) Cancelled(ctx context.Context) (bool, error) {
	return t.Runs.CancelRequested(ctx, t.RunID)
}

// StaticToken is flipped in-process.
type StaticToken struct {
	cancelled atomic.Bool
}

func (t *StaticToken) Cancel() { t.cancelled.Store(true) }

func (t *StaticToken) Cancelled(context.Context) (bool, error) {
	return t.cancelled.Load(), nil
}
