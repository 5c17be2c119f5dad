package pipeline

import (
	"context"

	"resume-pipeline/internal/catalog"
	"resume-pipeline/internal/cv"
	"resume-pipeline/internal/runs"
)

// Stage is one step of a run. Run receives the accumulated record and
// returns it enriched; a returned error aborts the run.
type Stage interface {
	Status() runs.Status
	Run(ctx context.Context, rec Record) (Record, error)
}

// FieldExtractor turns résumé text into structured fields.
type FieldExtractor interface {
	Name() string
	ExtractFields(ctx context.Context, text string) (cv.FieldSet, error)
}

// CategoryMatcher picks the best catalog entry for one experience. A nil
// match with a nil error means nothing fits.
type CategoryMatcher interface {
	MatchOne(ctx context.Context, q cv.MatchQuery, entries []catalog.Category) (*cv.Match, error)
}

// CatalogSource provides the reference catalog.
type CatalogSource interface {
	Entries(ctx context.Context) ([]catalog.Category, error)
}

// Dependencies are the collaborators of the default stages. Extractor and
// Matcher may be nil when no model is configured.
type Dependencies struct {
	Extractor FieldExtractor
	Matcher   CategoryMatcher
	Catalog   CatalogSource
}

// DefaultStages returns the five stages in run order.
func DefaultStages(deps Dependencies) []Stage {
	return []Stage{
		TextExtraction{},
		FieldExtraction{Extractor: deps.Extractor},
		CategoryMatching{Matcher: deps.Matcher, Catalog: deps.Catalog},
		Transformation{},
		Load{},
	}
}
