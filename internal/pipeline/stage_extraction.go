package pipeline

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"resume-pipeline/internal/extract"
	"resume-pipeline/internal/runs"
)

// TextExtraction decodes the submitted document and extracts its text.
// Decode and parse faults are recorded in the record, never returned.
type TextExtraction struct{}

func (TextExtraction) Status() runs.Status { return runs.StatusExtraction }

func (TextExtraction) Run(ctx context.Context, rec Record) (Record, error) {
	rec.Step = "extraction"
	if rec.Input == nil {
		rec.PDFAvailable = false
		return rec, nil
	}
	rec.PDFAvailable = true

	filename := rec.Input.Filename
	if filename == "" {
		filename = defaultFilename
	}
	contentType := rec.Input.ContentType
	if contentType == "" {
		contentType = defaultContentType
	}
	started := now()

	data, err := base64.StdEncoding.DecodeString(rec.Input.ContentB64)
	if err != nil {
		return extractionFailed(rec, filename, started, fmt.Errorf("decode document: %w", err)), nil
	}
	doc, err := extract.FromBytes(ctx, data, contentType, filename)
	if err != nil {
		return extractionFailed(rec, filename, started, err), nil
	}

	meta := make(map[string]string, len(doc.Metadata)+2)
	for k, v := range doc.Metadata {
		meta[k] = v
	}
	meta["source"] = metadataSource
	meta["extraction_time"] = started.Format(time.RFC3339Nano)

	rec.ExtractionError = ""
	rec.Extracted = &Extracted{
		Filename:    filename,
		ContentType: contentType,
		SizeBytes:   doc.SizeBytes,
		NumPages:    doc.NumPages(),
		Text:        doc.Text(),
		Metadata:    meta,
	}
	return rec, nil
}

func extractionFailed(rec Record, filename string, at time.Time, err error) Record {
	rec.ExtractionError = err.Error()
	rec.Extracted = &Extracted{
		Filename: filename,
		Error:    err.Error(),
		Metadata: map[string]string{
			"source":             metadataSource,
			"extraction_time":    at.Format(time.RFC3339Nano),
			"extraction_success": "false",
		},
	}
	return rec
}
