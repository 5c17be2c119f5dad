package llm

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"resume-pipeline/internal/catalog"
	"resume-pipeline/internal/cv"
	"resume-pipeline/internal/shared/telemetry"
)

// ResumeExtractor pulls formations and experiences out of résumé text.
type ResumeExtractor struct {
	completer Completer
	provider  string
	maxTokens int
	logger    *zap.Logger
}

// NewResumeExtractor returns an extractor backed by c. provider names the
// backend in the pipeline output.
func NewResumeExtractor(c Completer, provider string, maxTokens int, logger *zap.Logger) *ResumeExtractor {
	return &ResumeExtractor{
		completer: c,
		provider:  provider,
		maxTokens: maxTokens,
		logger:    telemetry.Named(logger, "extractor"),
	}
}

// Name returns the provider name.
func (e *ResumeExtractor) Name() string {
	return e.provider
}

// ExtractFields sends text to the model and validates the reply. Malformed
// replies degrade to an empty FieldSet; call failures are returned.
func (e *ResumeExtractor) ExtractFields(ctx context.Context, text string) (cv.FieldSet, error) {
	if e == nil || e.completer == nil {
		return cv.FieldSet{}, ErrNotConfigured
	}
	req := ExtractionRequest(text, e.maxTokens)
	e.logger.Debug("llm.request", zap.String("prompt", telemetry.Truncate(req.Prompt, 500)))

	raw, err := e.completer.Complete(ctx, req)
	if err != nil {
		return cv.FieldSet{}, fmt.Errorf("field extraction call: %w", err)
	}
	e.logger.Debug("llm.response", zap.String("reply", telemetry.Truncate(raw, 500)))

	fields, stats := cv.ParseFieldSet(raw)
	if stats.Malformed || stats.Dropped > 0 {
		e.logger.Warn("llm.reply_normalized",
			zap.Bool("malformed", stats.Malformed),
			zap.Int("dropped_records", stats.Dropped),
		)
	}
	return fields, nil
}

// TitleMatcher asks the model for the best catalog entry for one experience.
type TitleMatcher struct {
	completer Completer
	logger    *zap.Logger
}

// NewTitleMatcher returns a matcher backed by c.
func NewTitleMatcher(c Completer, logger *zap.Logger) *TitleMatcher {
	return &TitleMatcher{completer: c, logger: telemetry.Named(logger, "matcher")}
}

// MatchOne returns the best match for q, or nil when the model found none.
func (m *TitleMatcher) MatchOne(ctx context.Context, q cv.MatchQuery, entries []catalog.Category) (*cv.Match, error) {
	if m == nil || m.completer == nil {
		return nil, ErrNotConfigured
	}
	raw, err := m.completer.Complete(ctx, MatchingRequest(q, entries))
	if err != nil {
		return nil, fmt.Errorf("category matching call: %w", err)
	}

	match, err := cv.ParseMatch(raw)
	if errors.Is(err, cv.ErrInvalidMatch) {
		m.logger.Info("llm.no_match", zap.String("title", q.Title), zap.String("reply", telemetry.Truncate(raw, 200)))
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return match, nil
}
