package pipeline

import (
	"context"
	"strings"

	"resume-pipeline/internal/cv"
	"resume-pipeline/internal/runs"
)

// CategoryMatching matches every titled experience against the reference
// catalog. A failure on one experience is recorded on that entry only.
type CategoryMatching struct {
	Matcher CategoryMatcher
	Catalog CatalogSource
}

func (CategoryMatching) Status() runs.Status { return runs.StatusCategoryMatching }

func (s CategoryMatching) Run(ctx context.Context, rec Record) (Record, error) {
	rec.Step = "category_matching"

	fields := rec.ExtractedFields
	if !rec.Success || fields == nil || fields.Status == StageError || fields.FieldSet == nil {
		return matchingDone(rec, StageError, "no extracted fields available", nil), nil
	}
	if len(fields.Experiences) == 0 {
		return matchingDone(rec, StageWarning, "no professional experience found", nil), nil
	}
	if s.Matcher == nil {
		return matchingDone(rec, StageError, errNotConfigured.Error(), nil), nil
	}
	if s.Catalog == nil {
		return matchingDone(rec, StageError, "reference catalog unavailable", nil), nil
	}

	entries, err := s.Catalog.Entries(ctx)
	if err != nil {
		return matchingDone(rec, StageError, err.Error(), nil), nil
	}
	if len(entries) == 0 {
		return matchingDone(rec, StageError, "reference catalog unavailable", nil), nil
	}

	out := make([]cv.TitleMatches, 0, len(fields.Experiences))
	for _, exp := range fields.Experiences {
		title := strings.TrimSpace(exp.Title)
		if title == "" {
			continue
		}
		entry := cv.TitleMatches{Title: title, Matches: []cv.Match{}}
		m, err := s.Matcher.MatchOne(ctx, cv.MatchQuery{
			Title:       title,
			Company:     exp.Company,
			Description: exp.Description,
		}, entries)
		switch {
		case err != nil:
			entry.Error = err.Error()
		case m != nil:
			entry.Matches = append(entry.Matches, *m)
		}
		out = append(out, entry)
	}
	return matchingDone(rec, StageSuccess, "", out), nil
}

func matchingDone(rec Record, status StageStatus, msg string, matches []cv.TitleMatches) Record {
	if matches == nil {
		matches = []cv.TitleMatches{}
	}
	rec.CategoryMatches = &MatchResult{Status: status, Error: msg, Matches: matches}
	rec.Success = status != StageError
	return rec
}
