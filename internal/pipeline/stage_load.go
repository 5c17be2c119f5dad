package pipeline

import (
	"context"

	"github.com/oklog/ulid/v2"

	"resume-pipeline/internal/cv"
	"resume-pipeline/internal/runs"
)

const summaryKeywords = 5

// Load wraps the transformed section for callers. It calls no external
// service; only the timestamp and storage reference vary between calls.
type Load struct{}

func (Load) Status() runs.Status { return runs.StatusLoad }

func (Load) Run(ctx context.Context, rec Record) (Record, error) {
	rec.Step = "load_complete"
	t := rec.Transformed

	if t.Failed() {
		original := t.Error
		if original == "" {
			original = "unknown error"
		}
		rec.Loaded = &Loaded{
			Error:         "data transformation failed",
			OriginalError: original,
			LoadStatus:    "failed",
			LoadTime:      now(),
		}
		rec.Success = false
		return rec, nil
	}

	loaded := &Loaded{
		OriginalData:     t,
		LoadStatus:       "success",
		LoadTime:         now(),
		StorageReference: storageRefPrefix + ulid.Make().String(),
	}
	if t != nil && t.Statistics != nil {
		s := &Summary{
			Filename:    t.OriginalFilename,
			WordCount:   t.Statistics.WordCount,
			PageCount:   t.Statistics.PageCount,
			TopKeywords: []string{},
			Language:    "unknown",
		}
		if s.Filename == "" {
			s.Filename = defaultFilename
		}
		if ca := t.ContentAnalysis; ca != nil {
			n := min(len(ca.Keywords), summaryKeywords)
			s.TopKeywords = append(s.TopKeywords, ca.Keywords[:n]...)
			s.Language = ca.Language
		}
		loaded.Summary = s
		if t.CVData != nil && t.CVData.CategoryMatches != nil {
			loaded.CategoryMatches = append([]cv.TitleMatches{}, t.CVData.CategoryMatches...)
		}
	}
	rec.Loaded = loaded
	rec.Success = true
	return rec, nil
}
