package runs

import (
	"context"
	"errors"
)

var (
	ErrNotFound          = errors.New("run not found")
	ErrAlreadyExists     = errors.New("run already exists")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// Registry stores run records. Implementations must be safe for concurrent use.
type Registry interface {
	Create(ctx context.Context, run Run) error
	Get(ctx context.Context, id string) (Run, error)
	// UpdateStatus moves a run to status. errMsg is kept only for StatusFailed.
	UpdateStatus(ctx context.Context, id string, status Status, errMsg string) error
	List(ctx context.Context) ([]Run, error)
}
