package pipeline

import (
	"context"
	"errors"
	"strings"

	"resume-pipeline/internal/runs"
)

var (
	errNoDocument    = errors.New("no document data available")
	errNoText        = errors.New("no text content extracted from the document")
	errNotConfigured = errors.New("language model API key is not configured")
)

// FieldExtraction asks the configured extractor for formations and
// experiences. Precondition failures and extractor faults become an error
// section; the run continues.
type FieldExtraction struct {
	Extractor FieldExtractor
}

func (FieldExtraction) Status() runs.Status { return runs.StatusFieldExtraction }

func (s FieldExtraction) Run(ctx context.Context, rec Record) (Record, error) {
	rec.Step = "field_extraction"

	switch {
	case !rec.PDFAvailable || rec.ExtractionError != "" || rec.Extracted == nil:
		return fieldsFailed(rec, errNoDocument.Error()), nil
	case strings.TrimSpace(rec.Extracted.Text) == "":
		return fieldsFailed(rec, errNoText.Error()), nil
	case s.Extractor == nil:
		return fieldsFailed(rec, errNotConfigured.Error()), nil
	}

	fields, err := s.Extractor.ExtractFields(ctx, rec.Extracted.Text)
	if err != nil {
		return fieldsFailed(rec, "field extraction failed: "+err.Error()), nil
	}
	at := now()
	rec.ExtractedFields = &FieldsResult{
		FieldSet:       &fields,
		Status:         StageSuccess,
		Extractor:      s.Extractor.Name(),
		ExtractionTime: &at,
	}
	rec.Success = true
	return rec, nil
}

func fieldsFailed(rec Record, msg string) Record {
	rec.ExtractedFields = &FieldsResult{Status: StageError, Error: msg}
	rec.Success = false
	return rec
}
