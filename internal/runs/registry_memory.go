package runs

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRegistry keeps runs in a map for the lifetime of the process.
// Entries are never evicted.
type MemoryRegistry struct {
	mu   sync.RWMutex
	byID map[string]Run
	now  func() time.Time
}

// NewMemoryRegistry constructs a MemoryRegistry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		byID: make(map[string]Run),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// Create stores a new run.
func (r *MemoryRegistry) Create(ctx context.Context, run Run) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[run.ID]; ok {
		return ErrAlreadyExists
	}
	if run.Status == "" {
		run.Status = StatusInitializing
	}
	if run.UpdatedAt.IsZero() {
		run.UpdatedAt = r.now()
	}
	r.byID[run.ID] = run
	return nil
}

// Get returns a run by ID.
func (r *MemoryRegistry) Get(ctx context.Context, id string) (Run, error) {
	if err := ctx.Err(); err != nil {
		return Run{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	run, ok := r.byID[id]
	if !ok {
		return Run{}, ErrNotFound
	}
	return run, nil
}

// UpdateStatus applies a status transition.
func (r *MemoryRegistry) UpdateStatus(ctx context.Context, id string, status Status, errMsg string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.byID[id]
	if !ok {
		return ErrNotFound
	}
	if err := checkTransition(id, run.Status, status); err != nil {
		return err
	}
	run.Status = status
	run.Error = ""
	if status == StatusFailed {
		run.Error = errMsg
	}
	run.UpdatedAt = r.now()
	r.byID[id] = run
	return nil
}

// List returns all runs, newest first.
func (r *MemoryRegistry) List(ctx context.Context) ([]Run, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	out := make([]Run, 0, len(r.byID))
	for _, run := range r.byID {
		out = append(out, run)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartTime.After(out[j].StartTime)
	})
	return out, nil
}
