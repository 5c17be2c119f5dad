package workflows

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"resume-pipeline/internal/pipeline"
	"resume-pipeline/internal/runs"
	"resume-pipeline/internal/shared/storage/object"
	"resume-pipeline/internal/shared/telemetry"
	"resume-pipeline/internal/shared/util"
)

const defaultRunName = "default_workflow"

var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrTooLarge          = errors.New("document exceeds the upload limit")
	ErrNotReady          = errors.New("run has not completed")
	ErrResultUnavailable = errors.New("run result unavailable")
)

// Runner executes a registered run.
type Runner interface {
	Run(ctx context.Context, runID, name string, input pipeline.Record) (pipeline.Record, error)
}

// ResultSink persists and serves final records.
type ResultSink interface {
	Save(ctx context.Context, runID string, rec pipeline.Record) error
	Load(ctx context.Context, runID string) (json.RawMessage, error)
}

// Submission is one uploaded document and its run options.
type Submission struct {
	Name           string
	Filename       string
	ContentType    string
	Content        []byte
	AdditionalData string
}

// Prepared is a registered run and the record it will start from.
type Prepared struct {
	Run   runs.Run
	Input pipeline.Record
}

// StatusView is the public shape of a run.
type StatusView struct {
	RunID     string      `json:"run_id"`
	Name      string      `json:"name"`
	StartTime time.Time   `json:"start_time"`
	Status    runs.Status `json:"status"`
	Error     string      `json:"error,omitempty"`
}

// RunInfo describes a synchronous execution.
type RunInfo struct {
	RunID                string      `json:"run_id"`
	Name                 string      `json:"name"`
	ExecutionTimeSeconds float64     `json:"execution_time_seconds"`
	Status               runs.Status `json:"status"`
}

// SyncResult is the outcome of RunSync. Record is the partial record when
// the run failed.
type SyncResult struct {
	Record pipeline.Record
	Info   RunInfo
}

// Service registers runs and executes them in the foreground or through
// the dispatcher.
type Service struct {
	Registry       runs.Registry
	Runner         Runner
	Results        ResultSink
	Dispatcher     *Dispatcher
	MaxUploadBytes int64
	Logger         *zap.Logger

	newID func() string
	now   func() time.Time
}

func (s *Service) logger() *zap.Logger {
	if s.Logger == nil {
		return telemetry.Named(nil, "workflows")
	}
	return s.Logger
}

func (s *Service) id() string {
	if s.newID != nil {
		return s.newID()
	}
	return uuid.NewString()
}

func (s *Service) clock() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now().UTC()
}

// Submit validates the upload, builds the input record and registers the
// run as initializing. The document bytes are never stored in the registry.
func (s *Service) Submit(ctx context.Context, sub Submission) (Prepared, error) {
	filename := strings.TrimSpace(sub.Filename)
	contentType := strings.TrimSpace(sub.ContentType)
	if filename == "" || contentType == "" {
		return Prepared{}, fmt.Errorf("%w: the file must have a name and a content type", ErrInvalidInput)
	}
	safeName, err := util.SanitizeFileName(filename)
	if err != nil {
		return Prepared{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if s.MaxUploadBytes > 0 && int64(len(sub.Content)) > s.MaxUploadBytes {
		return Prepared{}, ErrTooLarge
	}
	name := strings.TrimSpace(sub.Name)
	if name == "" {
		name = defaultRunName
	}

	input := pipeline.Record{
		Input: &pipeline.Input{
			Filename:    safeName,
			ContentType: contentType,
			ContentB64:  base64.StdEncoding.EncodeToString(sub.Content),
		},
		Extra: additionalData(sub.AdditionalData),
	}

	run := runs.Run{
		ID:          s.id(),
		Name:        name,
		StartTime:   s.clock(),
		Status:      runs.StatusInitializing,
		Filename:    safeName,
		ContentType: contentType,
	}
	if err := s.Registry.Create(ctx, run); err != nil {
		return Prepared{}, fmt.Errorf("register run: %w", err)
	}
	s.logger().Info("run.submitted",
		zap.String("run_id", run.ID),
		zap.String("name", name),
		zap.String("filename", safeName),
		zap.String("content_type", contentType),
		zap.Int("size_bytes", len(sub.Content)),
		zap.String("sha256", util.Digest(sub.Content)),
	)
	return Prepared{Run: run, Input: input}, nil
}

// additionalData decodes a JSON object into the record's extra data. Any
// other payload is kept verbatim under "additional_data".
func additionalData(raw string) map[string]any {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(raw), &obj); err != nil || obj == nil {
		return map[string]any{"additional_data": raw}
	}
	return obj
}

// Execute runs a prepared submission and persists the final record.
// Persistence failures are logged and do not fail the run.
func (s *Service) Execute(ctx context.Context, p Prepared) (pipeline.Record, error) {
	rec, err := s.Runner.Run(ctx, p.Run.ID, p.Run.Name, p.Input)
	if err != nil {
		return rec, err
	}
	if s.Results != nil {
		if err := s.Results.Save(ctx, p.Run.ID, rec); err != nil {
			s.logger().Error("run.result_save_failed", zap.String("run_id", p.Run.ID), zap.Error(err))
		}
	}
	return rec, nil
}

// RunSync submits and executes in the caller's goroutine. Once registered,
// the run is detached from ctx cancellation: a disconnecting caller does not
// abort it.
func (s *Service) RunSync(ctx context.Context, sub Submission) (SyncResult, error) {
	p, err := s.Submit(ctx, sub)
	if err != nil {
		return SyncResult{}, err
	}
	runCtx := context.WithoutCancel(ctx)
	rec, runErr := s.Execute(runCtx, p)

	info := RunInfo{
		RunID:                p.Run.ID,
		Name:                 p.Run.Name,
		ExecutionTimeSeconds: s.clock().Sub(p.Run.StartTime).Seconds(),
		Status:               runs.StatusFailed,
	}
	if run, err := s.Registry.Get(runCtx, p.Run.ID); err == nil {
		info.Status = run.Status
	}
	return SyncResult{Record: rec, Info: info}, runErr
}

// Launch submits and hands execution to the dispatcher.
func (s *Service) Launch(ctx context.Context, sub Submission) (runs.Run, error) {
	if s.Dispatcher == nil {
		return runs.Run{}, ErrShuttingDown
	}
	p, err := s.Submit(ctx, sub)
	if err != nil {
		return runs.Run{}, err
	}
	err = s.Dispatcher.Go(ctx, p.Run.ID, func(ctx context.Context) {
		// Faults are already recorded on the run by the orchestrator.
		_, _ = s.Execute(ctx, p)
	})
	if err != nil {
		if uerr := s.Registry.UpdateStatus(ctx, p.Run.ID, runs.StatusFailed, util.SanitizeError(err)); uerr != nil {
			s.logger().Error("run.mark_failed", zap.String("run_id", p.Run.ID), zap.Error(uerr))
		}
		return runs.Run{}, err
	}
	return p.Run, nil
}

// Status returns the current view of runID or runs.ErrNotFound.
func (s *Service) Status(ctx context.Context, runID string) (StatusView, error) {
	run, err := s.Registry.Get(ctx, runID)
	if err != nil {
		return StatusView{}, err
	}
	return viewOf(run), nil
}

// List returns every known run.
func (s *Service) List(ctx context.Context) ([]StatusView, error) {
	all, err := s.Registry.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]StatusView, 0, len(all))
	for _, run := range all {
		out = append(out, viewOf(run))
	}
	return out, nil
}

// Result returns the stored final record of a completed run.
func (s *Service) Result(ctx context.Context, runID string) (json.RawMessage, error) {
	run, err := s.Registry.Get(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run.Status != runs.StatusCompleted {
		return nil, fmt.Errorf("%w: status is %s", ErrNotReady, run.Status)
	}
	if s.Results == nil {
		return nil, ErrResultUnavailable
	}
	body, err := s.Results.Load(ctx, runID)
	if errors.Is(err, object.ErrNotFound) {
		return nil, ErrResultUnavailable
	}
	return body, err
}

func viewOf(run runs.Run) StatusView {
	return StatusView{
		RunID:     run.ID,
		Name:      run.Name,
		StartTime: run.StartTime,
		Status:    run.Status,
		Error:     run.Error,
	}
}
