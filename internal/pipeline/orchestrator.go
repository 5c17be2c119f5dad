package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"go.uber.org/zap"

	"resume-pipeline/internal/runs"
	"resume-pipeline/internal/shared/metrics"
	"resume-pipeline/internal/shared/telemetry"
	"resume-pipeline/internal/shared/util"
)

// ErrStagePanic wraps a panic recovered from a stage.
var ErrStagePanic = errors.New("stage panicked")

// Orchestrator runs the stages of one run in order and keeps the registry
// entry in step with the stage being executed.
type Orchestrator struct {
	registry runs.Registry
	stages   []Stage
	logger   *zap.Logger
}

// NewOrchestrator returns an orchestrator over stages, in the given order.
func NewOrchestrator(registry runs.Registry, logger *zap.Logger, stages ...Stage) *Orchestrator {
	return &Orchestrator{
		registry: registry,
		stages:   stages,
		logger:   telemetry.Named(logger, "pipeline"),
	}
}

// Run executes every stage for runID, which must already be registered.
// A stage error or panic marks the run failed and is returned together with
// the partial record.
func (o *Orchestrator) Run(ctx context.Context, runID, name string, input Record) (Record, error) {
	run, err := o.registry.Get(ctx, runID)
	if err != nil {
		return input, err
	}

	logger := o.logger.With(zap.String("run_id", runID), zap.String("name", name))
	metrics.IncRunStarted()
	started := time.Now()
	prev := run.Status
	rec := input

	for _, stage := range o.stages {
		status := stage.Status()
		if err := o.registry.UpdateStatus(ctx, runID, status, ""); err != nil {
			return rec, o.fail(ctx, logger, runID, status, started, err)
		}
		logger.Info("pipeline.status",
			zap.String("status_transition", string(prev)+"->"+string(status)),
		)
		prev = status

		stageStart := time.Now()
		next, err := runStage(ctx, stage, rec)
		elapsed := time.Since(stageStart)
		metrics.ObserveStageDurationMs(string(status), float64(elapsed.Milliseconds()))
		if err != nil {
			return rec, o.fail(ctx, logger, runID, status, started, err)
		}
		logger.Debug("pipeline.stage_done",
			zap.String("stage", string(status)),
			zap.String("step", next.Step),
			zap.Bool("success", next.Success),
			zap.Int64("duration_ms", elapsed.Milliseconds()),
		)
		rec = next
	}

	if err := o.registry.UpdateStatus(ctx, runID, runs.StatusCompleted, ""); err != nil {
		return rec, o.fail(ctx, logger, runID, runs.StatusCompleted, started, err)
	}
	total := time.Since(started)
	metrics.IncRunCompleted()
	metrics.ObserveRunDurationMs(float64(total.Milliseconds()))
	logger.Info("pipeline.status",
		zap.String("status_transition", string(prev)+"->"+string(runs.StatusCompleted)),
		zap.Int64("duration_ms", total.Milliseconds()),
	)
	return rec, nil
}

func runStage(ctx context.Context, stage Stage, rec Record) (out Record, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrStagePanic, r)
			telemetry.L().Error("pipeline.stage_panic",
				zap.String("stage", string(stage.Status())),
				zap.ByteString("stack", debug.Stack()),
			)
		}
	}()
	return stage.Run(ctx, rec)
}

func (o *Orchestrator) fail(ctx context.Context, logger *zap.Logger, runID string, stage runs.Status, started time.Time, cause error) error {
	msg := util.SanitizeError(cause)
	// Record the failure even when the caller's context is gone.
	if err := o.registry.UpdateStatus(context.WithoutCancel(ctx), runID, runs.StatusFailed, msg); err != nil {
		logger.Error("pipeline.mark_failed", zap.Error(err))
	}
	total := time.Since(started)
	metrics.IncRunFailed()
	metrics.ObserveRunDurationMs(float64(total.Milliseconds()))
	logger.Error("pipeline.status",
		zap.String("status_transition", string(stage)+"->"+string(runs.StatusFailed)),
		zap.String("error", msg),
		zap.Int64("duration_ms", total.Milliseconds()),
	)
	return fmt.Errorf("run %s failed at %s: %w", runID, stage, cause)
}
