package pipeline

import (
	"context"
	"encoding/base64"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resume-pipeline/internal/catalog"
	"resume-pipeline/internal/cv"
	"resume-pipeline/internal/extract/extracttest"
	"resume-pipeline/internal/llm"
	"resume-pipeline/internal/runs"
)

type recordingRegistry struct {
	runs.Registry
	mu       sync.Mutex
	statuses []runs.Status
}

func (r *recordingRegistry) UpdateStatus(ctx context.Context, id string, status runs.Status, errMsg string) error {
	r.mu.Lock()
	r.statuses = append(r.statuses, status)
	r.mu.Unlock()
	return r.Registry.UpdateStatus(ctx, id, status, errMsg)
}

func newRegistry(t *testing.T, ids ...string) *recordingRegistry {
	t.Helper()
	reg := &recordingRegistry{Registry: runs.NewMemoryRegistry()}
	for _, id := range ids {
		require.NoError(t, reg.Create(context.Background(), runs.Run{
			ID:        id,
			Name:      "test",
			StartTime: time.Now().UTC(),
			Status:    runs.StatusInitializing,
		}))
	}
	return reg
}

func documentInput(data []byte) Record {
	return Record{
		Input: &Input{
			Filename:    "cv.pdf",
			ContentType: "application/pdf",
			ContentB64:  base64.StdEncoding.EncodeToString(data),
		},
		Extra: map[string]any{"sentinel": "keep"},
	}
}

type fakeExtractor struct {
	fields cv.FieldSet
	err    error
}

func (f fakeExtractor) Name() string { return "fake" }

func (f fakeExtractor) ExtractFields(ctx context.Context, text string) (cv.FieldSet, error) {
	return f.fields, f.err
}

type fakeMatcher struct {
	mu     sync.Mutex
	titles []string
	fn     func(q cv.MatchQuery) (*cv.Match, error)
}

func (f *fakeMatcher) MatchOne(ctx context.Context, q cv.MatchQuery, entries []catalog.Category) (*cv.Match, error) {
	f.mu.Lock()
	f.titles = append(f.titles, q.Title)
	f.mu.Unlock()
	if f.fn == nil {
		return nil, nil
	}
	return f.fn(q)
}

type staticCatalog struct {
	entries []catalog.Category
	err     error
}

func (s staticCatalog) Entries(ctx context.Context) ([]catalog.Category, error) {
	return s.entries, s.err
}

var oneEntry = staticCatalog{entries: []catalog.Category{{ID: "M1203", Code: "M1203", Label: "Comptabilité"}}}

func TestRunWithoutCredential(t *testing.T) {
	reg := newRegistry(t, "run-1")
	o := NewOrchestrator(reg, nil, DefaultStages(Dependencies{Catalog: oneEntry})...)

	got, err := o.Run(context.Background(), "run-1", "cv", documentInput(extracttest.PDF("Jean Dupont Comptable", "Experience ACME Lyon")))
	require.NoError(t, err)

	require.NotNil(t, got.ExtractedFields)
	assert.Equal(t, StageError, got.ExtractedFields.Status)
	assert.Contains(t, got.ExtractedFields.Error, "API key is not configured")
	assert.Equal(t, StageError, got.CategoryMatches.Status)

	require.NotNil(t, got.Transformed)
	require.NotNil(t, got.Transformed.Statistics)
	assert.Equal(t, 2, got.Transformed.Statistics.PageCount)
	assert.Equal(t, len(strings.Fields(got.Extracted.Text)), got.Transformed.Statistics.WordCount)
	assert.Positive(t, got.Transformed.Statistics.WordCount)
	assert.Nil(t, got.Transformed.CVData.CategoryMatches)

	require.NotNil(t, got.Loaded)
	assert.Equal(t, "success", got.Loaded.LoadStatus)
	assert.Nil(t, got.Loaded.CategoryMatches)
	require.NotNil(t, got.Loaded.Summary)
	assert.Equal(t, 2, got.Loaded.Summary.PageCount)
	assert.True(t, got.Success)

	run, err := reg.Get(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, runs.StatusCompleted, run.Status)
}

func TestRunWithCorruptDocument(t *testing.T) {
	reg := newRegistry(t, "run-1")
	o := NewOrchestrator(reg, nil, DefaultStages(Dependencies{})...)

	got, err := o.Run(context.Background(), "run-1", "cv", documentInput([]byte("definitely not a pdf")))
	require.NoError(t, err)

	assert.True(t, got.PDFAvailable)
	assert.NotEmpty(t, got.ExtractionError)
	assert.Empty(t, got.Extracted.Text)
	assert.Equal(t, "false", got.Extracted.Metadata["extraction_success"])

	require.NotNil(t, got.Transformed)
	assert.True(t, got.Transformed.Failed())
	assert.Nil(t, got.Transformed.Statistics)

	assert.Equal(t, "failed", got.Loaded.LoadStatus)
	assert.Equal(t, "data transformation failed", got.Loaded.Error)
	assert.Contains(t, got.Loaded.OriginalError, got.ExtractionError)
	assert.False(t, got.Success)

	run, err := reg.Get(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, runs.StatusCompleted, run.Status)
}

func TestRunMatchesExperienceAgainstCatalog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metiers.csv")
	require.NoError(t, os.WriteFile(path, []byte("code_rome;libelle_rome\nM1203;Comptabilité\nD1106;Vente en alimentation\n"), 0o644))
	cache := catalog.NewCache(catalog.Options{Path: path, TTL: time.Hour})

	extractor := llm.NewResumeExtractor(llm.CompleterFunc(func(ctx context.Context, req llm.Request) (string, error) {
		return `{"formations":[],"experiences_professionnelles":[
			{"periode":"2019-2023","poste":"Comptable","entreprise":"ACME","description":"Bilans","competences":["Sage"]},
			{"periode":"2018","poste":"","entreprise":"Beta","description":"","competences":[]}
		]}`, nil
	}), "openai", 2000, nil)

	var prompts []string
	matcher := llm.NewTitleMatcher(llm.CompleterFunc(func(ctx context.Context, req llm.Request) (string, error) {
		prompts = append(prompts, req.Prompt)
		return `{"id":"M1203","code":"M1203","label":"Comptabilité","score":0.9}`, nil
	}), nil)

	reg := newRegistry(t, "run-1")
	o := NewOrchestrator(reg, nil, DefaultStages(Dependencies{Extractor: extractor, Matcher: matcher, Catalog: cache})...)

	got, err := o.Run(context.Background(), "run-1", "cv", documentInput(extracttest.PDF("Jean Dupont Comptable chez ACME")))
	require.NoError(t, err)

	want := []cv.TitleMatches{{
		Title:   "Comptable",
		Matches: []cv.Match{{ID: "M1203", Code: "M1203", Label: "Comptabilité", Score: 0.9}},
	}}
	assert.Equal(t, want, got.Loaded.CategoryMatches)
	assert.Equal(t, "openai", got.Transformed.CVData.Extractor)
	require.Len(t, prompts, 1)
	assert.Contains(t, prompts[0], "D1106")
}

func TestStagesPreserveEarlierSections(t *testing.T) {
	matcher := &fakeMatcher{fn: func(q cv.MatchQuery) (*cv.Match, error) {
		return &cv.Match{ID: "M1203", Code: "M1203", Label: "Comptabilité", Score: 0.5}, nil
	}}
	stages := DefaultStages(Dependencies{
		Extractor: fakeExtractor{fields: cv.FieldSet{
			Formations:  []cv.Formation{},
			Experiences: []cv.Experience{{Title: "Comptable"}},
		}},
		Matcher: matcher,
		Catalog: oneEntry,
	})

	rec := documentInput(extracttest.PDF("Comptable confirme"))
	input := rec.Input
	for _, stage := range stages {
		before := rec
		next, err := stage.Run(context.Background(), rec)
		require.NoError(t, err, stage.Status())

		assert.Equal(t, "keep", next.Extra["sentinel"], stage.Status())
		assert.Same(t, input, next.Input, stage.Status())
		if before.Extracted != nil {
			assert.Same(t, before.Extracted, next.Extracted, stage.Status())
		}
		if before.ExtractedFields != nil {
			assert.Same(t, before.ExtractedFields, next.ExtractedFields, stage.Status())
		}
		if before.CategoryMatches != nil {
			assert.Same(t, before.CategoryMatches, next.CategoryMatches, stage.Status())
		}
		if before.Transformed != nil {
			assert.Same(t, before.Transformed, next.Transformed, stage.Status())
		}
		rec = next
	}
	assert.NotNil(t, rec.Loaded)
}

func TestCategoryMatchingSkipsBlankTitles(t *testing.T) {
	matcher := &fakeMatcher{}
	stage := CategoryMatching{Matcher: matcher, Catalog: oneEntry}
	rec := Record{Success: true, ExtractedFields: &FieldsResult{
		Status: StageSuccess,
		FieldSet: &cv.FieldSet{Experiences: []cv.Experience{
			{Title: ""}, {Title: "   "}, {Title: "Vendeur"},
		}},
	}}

	got, err := stage.Run(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, StageSuccess, got.CategoryMatches.Status)
	require.Len(t, got.CategoryMatches.Matches, 1)
	assert.Equal(t, "Vendeur", got.CategoryMatches.Matches[0].Title)
	assert.Empty(t, got.CategoryMatches.Matches[0].Error)
	assert.Equal(t, []string{"Vendeur"}, matcher.titles)
}

func TestCategoryMatchingRecordsPerExperienceErrors(t *testing.T) {
	matcher := &fakeMatcher{fn: func(q cv.MatchQuery) (*cv.Match, error) {
		if q.Title == "A" {
			return nil, errors.New("rate limited")
		}
		return &cv.Match{ID: "1", Code: "1", Label: "B", Score: 1}, nil
	}}
	stage := CategoryMatching{Matcher: matcher, Catalog: oneEntry}
	rec := Record{Success: true, ExtractedFields: &FieldsResult{
		Status:   StageSuccess,
		FieldSet: &cv.FieldSet{Experiences: []cv.Experience{{Title: "A"}, {Title: "B"}}},
	}}

	got, err := stage.Run(context.Background(), rec)
	require.NoError(t, err)
	require.Len(t, got.CategoryMatches.Matches, 2)
	assert.Equal(t, "rate limited", got.CategoryMatches.Matches[0].Error)
	assert.Empty(t, got.CategoryMatches.Matches[0].Matches)
	assert.Len(t, got.CategoryMatches.Matches[1].Matches, 1)
	assert.True(t, got.Success)
}

func TestCategoryMatchingShortCircuits(t *testing.T) {
	withExperience := &FieldsResult{Status: StageSuccess, FieldSet: &cv.FieldSet{Experiences: []cv.Experience{{Title: "A"}}}}
	tests := []struct {
		name        string
		rec         Record
		catalog     CatalogSource
		wantStatus  StageStatus
		wantSuccess bool
	}{
		{
			name:       "extraction failed",
			rec:        Record{ExtractedFields: &FieldsResult{Status: StageError, Error: "x"}},
			catalog:    oneEntry,
			wantStatus: StageError,
		},
		{
			name:        "no experiences",
			rec:         Record{Success: true, ExtractedFields: &FieldsResult{Status: StageSuccess, FieldSet: &cv.FieldSet{}}},
			catalog:     oneEntry,
			wantStatus:  StageWarning,
			wantSuccess: true,
		},
		{
			name:       "catalog unavailable",
			rec:        Record{Success: true, ExtractedFields: withExperience},
			catalog:    staticCatalog{err: catalog.ErrUnavailable},
			wantStatus: StageError,
		},
		{
			name:       "empty catalog",
			rec:        Record{Success: true, ExtractedFields: withExperience},
			catalog:    staticCatalog{},
			wantStatus: StageError,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			matcher := &fakeMatcher{}
			got, err := CategoryMatching{Matcher: matcher, Catalog: tt.catalog}.Run(context.Background(), tt.rec)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.CategoryMatches.Status != tt.wantStatus || got.Success != tt.wantSuccess {
				t.Fatalf("got status=%s success=%v", got.CategoryMatches.Status, got.Success)
			}
			if got.CategoryMatches.Matches == nil || len(got.CategoryMatches.Matches) != 0 {
				t.Fatalf("expected an empty match list, got %v", got.CategoryMatches.Matches)
			}
			if len(matcher.titles) != 0 {
				t.Fatalf("matcher should not be called, got %v", matcher.titles)
			}
		})
	}
}

func TestFieldExtractionPreconditions(t *testing.T) {
	withText := &Extracted{Text: "Jean Dupont"}
	tests := []struct {
		name      string
		rec       Record
		extractor FieldExtractor
		want      string
	}{
		{"not a document", Record{}, fakeExtractor{}, errNoDocument.Error()},
		{"extraction error", Record{PDFAvailable: true, ExtractionError: "bad", Extracted: withText}, fakeExtractor{}, errNoDocument.Error()},
		{"no text", Record{PDFAvailable: true, Extracted: &Extracted{Text: " \n\n"}}, fakeExtractor{}, errNoText.Error()},
		{"no credential", Record{PDFAvailable: true, Extracted: withText}, nil, errNotConfigured.Error()},
		{"call failure", Record{PDFAvailable: true, Extracted: withText}, fakeExtractor{err: errors.New("503")}, "field extraction failed: 503"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FieldExtraction{Extractor: tt.extractor}.Run(context.Background(), tt.rec)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.ExtractedFields.Status != StageError || got.ExtractedFields.Error != tt.want {
				t.Fatalf("got %+v", got.ExtractedFields)
			}
			if got.Success {
				t.Fatalf("expected success=false")
			}
		})
	}
}

func TestLoadIsIdempotent(t *testing.T) {
	rec := Record{PDFAvailable: true, Extracted: &Extracted{
		Filename: "cv.pdf",
		NumPages: 1,
		Text:     "alpha beta gamma delta alpha beta alpha epsilon zeta theta\n\n",
		Metadata: map[string]string{"language": "fr-FR"},
	}}
	transformed, err := Transformation{}.Run(context.Background(), rec)
	require.NoError(t, err)

	first, err := Load{}.Run(context.Background(), transformed)
	require.NoError(t, err)
	second, err := Load{}.Run(context.Background(), transformed)
	require.NoError(t, err)

	assert.Equal(t, first.Loaded.LoadStatus, second.Loaded.LoadStatus)
	assert.Equal(t, first.Loaded.Summary, second.Loaded.Summary)
	assert.True(t, strings.HasPrefix(first.Loaded.StorageReference, storageRefPrefix))
	assert.NotEqual(t, first.Loaded.StorageReference, second.Loaded.StorageReference)

	s := first.Loaded.Summary
	assert.Equal(t, "fr", s.Language)
	assert.Equal(t, []string{"alpha", "beta", "gamma", "delta", "epsilon"}, s.TopKeywords)
	assert.Len(t, transformed.Transformed.ContentAnalysis.Keywords, 7)
}

func TestNonDocumentInputPassesThrough(t *testing.T) {
	reg := newRegistry(t, "run-1")
	o := NewOrchestrator(reg, nil, DefaultStages(Dependencies{})...)

	got, err := o.Run(context.Background(), "run-1", "placeholder", Record{Extra: map[string]any{"initial": "data"}})
	require.NoError(t, err)
	assert.False(t, got.PDFAvailable)
	assert.Nil(t, got.Extracted)
	assert.Nil(t, got.Transformed)
	assert.Equal(t, "success", got.Loaded.LoadStatus)
	assert.Nil(t, got.Loaded.Summary)
	assert.Equal(t, "data", got.Extra["initial"])
}

func TestTopKeywords(t *testing.T) {
	words := strings.Fields("Data data Team team team the and Go Projet projet Lyon")
	assert.Equal(t, []string{"team", "data", "projet", "lyon"}, topKeywords(words, 10))
	assert.Equal(t, []string{"team", "data"}, topKeywords(words, 2))
	assert.Equal(t, []string{}, topKeywords(nil, 10))
	// Length is measured in characters, not bytes.
	assert.Equal(t, []string{"été!"}, topKeywords([]string{"été", "été!"}, 10))
	// "İ" lowercases to two runes; the three-letter word must still be dropped.
	assert.Equal(t, []string{"istanbul"}, topKeywords([]string{"İİİ", "ISTANBUL"}, 10))
}

func TestGuessLanguage(t *testing.T) {
	assert.Equal(t, "fr", guessLanguage("fr-FR"))
	assert.Equal(t, "fr", guessLanguage("FR"))
	assert.Equal(t, "en", guessLanguage(""))
	assert.Equal(t, "en", guessLanguage("de-DE"))
}
