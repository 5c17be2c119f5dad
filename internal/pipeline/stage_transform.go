package pipeline

import (
	"context"
	"sort"
	"strings"
	"unicode/utf8"

	"resume-pipeline/internal/cv"
	"resume-pipeline/internal/runs"
)

const maxKeywords = 10

// Transformation computes text statistics and assembles cv_data from the
// model sections that did not report an error.
type Transformation struct{}

func (Transformation) Status() runs.Status { return runs.StatusTransformation }

func (Transformation) Run(ctx context.Context, rec Record) (Record, error) {
	rec.Step = "transformation"
	if !rec.PDFAvailable {
		return rec, nil
	}
	if rec.ExtractionError != "" {
		rec.Transformed = &Transformed{
			Status:             StageError,
			Error:              "extraction failed: " + rec.ExtractionError,
			TransformationTime: now(),
		}
		rec.Success = false
		return rec, nil
	}

	ex := rec.Extracted
	if ex == nil {
		ex = &Extracted{Filename: defaultFilename}
	}
	words := strings.Fields(ex.Text)

	t := &Transformed{
		OriginalFilename: ex.Filename,
		Statistics: &Statistics{
			WordCount:      len(words),
			CharacterCount: utf8.RuneCountInString(ex.Text),
			PageCount:      ex.NumPages,
		},
		ContentAnalysis: &ContentAnalysis{
			Keywords: topKeywords(words, maxKeywords),
			Language: guessLanguage(ex.Metadata["language"]),
		},
		CVData:             assembleCVData(rec),
		Metadata:           ex.Metadata,
		TransformationTime: now(),
	}
	rec.Transformed = t
	rec.Success = true
	return rec, nil
}

func assembleCVData(rec Record) *CVData {
	data := &CVData{}
	if f := rec.ExtractedFields; f != nil && f.Status != StageError && f.FieldSet != nil {
		data.Formations = f.Formations
		data.Experiences = f.Experiences
		data.Extractor = f.Extractor
	}
	if m := rec.CategoryMatches; m != nil && m.Status != StageError {
		data.CategoryMatches = m.Matches
		if data.CategoryMatches == nil {
			data.CategoryMatches = []cv.TitleMatches{}
		}
	}
	return data
}

// topKeywords returns the most frequent words longer than three characters,
// case-folded after the length check. Ties keep first-seen order.
func topKeywords(words []string, limit int) []string {
	counts := map[string]int{}
	var order []string
	for _, w := range words {
		// Length is measured before folding; some runes change size when lowercased.
		if utf8.RuneCountInString(w) <= 3 {
			continue
		}
		w = strings.ToLower(w)
		if counts[w] == 0 {
			order = append(order, w)
		}
		counts[w]++
	}
	sort.SliceStable(order, func(i, j int) bool {
		return counts[order[i]] > counts[order[j]]
	})
	if len(order) > limit {
		order = order[:limit]
	}
	if order == nil {
		order = []string{}
	}
	return order
}

func guessLanguage(tag string) string {
	if strings.Contains(strings.ToLower(tag), "fr") {
		return "fr"
	}
	return "en"
}
