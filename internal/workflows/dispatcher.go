package workflows

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"resume-pipeline/internal/shared/telemetry"
)

// ErrShuttingDown is returned by Go once Shutdown has been called.
var ErrShuttingDown = errors.New("dispatcher is shutting down")

// Dispatcher runs background jobs with bounded concurrency. Jobs are never
// cancelled; Shutdown stops intake and waits for running jobs.
type Dispatcher struct {
	sem    *semaphore.Weighted
	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool
	logger *zap.Logger
}

// NewDispatcher allows up to concurrency jobs at once.
func NewDispatcher(concurrency int, logger *zap.Logger) *Dispatcher {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Dispatcher{
		sem:    semaphore.NewWeighted(int64(concurrency)),
		logger: telemetry.Named(logger, "dispatcher"),
	}
}

// Go schedules job. The job's context keeps the values of ctx but not its
// cancellation, so a finished request does not abort the run.
func (d *Dispatcher) Go(ctx context.Context, name string, job func(ctx context.Context)) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrShuttingDown
	}
	d.wg.Add(1)
	d.mu.Unlock()

	jobCtx := context.WithoutCancel(ctx)
	go func() {
		defer d.wg.Done()
		if err := d.sem.Acquire(jobCtx, 1); err != nil {
			d.logger.Error("dispatch.acquire_failed", zap.String("job", name), zap.Error(err))
			return
		}
		defer d.sem.Release(1)
		defer func() {
			if r := recover(); r != nil {
				d.logger.Error("dispatch.panic",
					zap.String("job", name),
					zap.String("error", fmt.Sprint(r)),
					zap.ByteString("stack", debug.Stack()),
				)
			}
		}()
		job(jobCtx)
	}()
	return nil
}

// Shutdown refuses new jobs and waits for running ones until ctx is done.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
