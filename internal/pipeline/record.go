package pipeline

import (
	"time"

	"resume-pipeline/internal/cv"
)

// StageStatus is the in-band outcome a stage reports in its own section.
type StageStatus string

const (
	StageSuccess StageStatus = "success"
	StageWarning StageStatus = "warning"
	StageError   StageStatus = "error"
)

const (
	defaultFilename    = "document.pdf"
	defaultContentType = "application/pdf"
	metadataSource     = "pdf_upload"
	storageRefPrefix   = "pdf_analysis_"
)

// Record is the payload threaded through the stages. Each stage sets only
// the section it owns and returns the record with every other field intact.
type Record struct {
	Input *Input         `json:"input,omitempty"`
	Extra map[string]any `json:"extra,omitempty"`

	Step            string `json:"step,omitempty"`
	Success         bool   `json:"success"`
	PDFAvailable    bool   `json:"pdf_available"`
	ExtractionError string `json:"extraction_error,omitempty"`

	Extracted       *Extracted    `json:"extracted,omitempty"`
	ExtractedFields *FieldsResult `json:"extracted_fields,omitempty"`
	CategoryMatches *MatchResult  `json:"category_matches,omitempty"`
	Transformed     *Transformed  `json:"transformed,omitempty"`
	Loaded          *Loaded       `json:"loaded,omitempty"`
}

// Input is the submitted document. A record without Input is not
// document-derived and passes through the extraction stages untouched.
type Input struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	ContentB64  string `json:"content_b64"`
}

// Extracted is the text extraction section.
type Extracted struct {
	Filename    string            `json:"pdf_filename"`
	ContentType string            `json:"content_type,omitempty"`
	SizeBytes   int               `json:"pdf_size_bytes"`
	NumPages    int               `json:"num_pages"`
	Text        string            `json:"text_content"`
	Metadata    map[string]string `json:"metadata"`
	Error       string            `json:"error,omitempty"`
}

// FieldsResult is the field extraction section. The embedded field set is
// nil when the stage did not succeed.
type FieldsResult struct {
	*cv.FieldSet

	Status         StageStatus `json:"status"`
	Error          string      `json:"error,omitempty"`
	Extractor      string      `json:"extractor,omitempty"`
	ExtractionTime *time.Time  `json:"extraction_time,omitempty"`
}

// MatchResult is the category matching section. Matches is never nil.
type MatchResult struct {
	Status  StageStatus       `json:"status"`
	Error   string            `json:"error,omitempty"`
	Matches []cv.TitleMatches `json:"matches"`
}

// Transformed is the statistics and assembly section.
type Transformed struct {
	Status             StageStatus       `json:"status,omitempty"`
	Error              string            `json:"error,omitempty"`
	OriginalFilename   string            `json:"original_filename,omitempty"`
	Statistics         *Statistics       `json:"statistics,omitempty"`
	ContentAnalysis    *ContentAnalysis  `json:"content_analysis,omitempty"`
	CVData             *CVData           `json:"cv_data,omitempty"`
	Metadata           map[string]string `json:"metadata,omitempty"`
	TransformationTime time.Time         `json:"transformation_time"`
}

// Failed reports whether the transformation recorded an upstream failure.
func (t *Transformed) Failed() bool {
	return t != nil && t.Status == StageError
}

type Statistics struct {
	WordCount      int `json:"word_count"`
	CharacterCount int `json:"character_count"`
	PageCount      int `json:"page_count"`
}

type ContentAnalysis struct {
	Keywords []string `json:"keywords"`
	Language string   `json:"language"`
}

// CVData combines the model-derived sections that reported no error.
// CategoryMatches is nil when matching failed.
type CVData struct {
	Formations      []cv.Formation    `json:"formations,omitempty"`
	Experiences     []cv.Experience   `json:"experiences_professionnelles,omitempty"`
	Extractor       string            `json:"extractor,omitempty"`
	CategoryMatches []cv.TitleMatches `json:"category_matches,omitempty"`
}

// Loaded is the final section returned to callers.
type Loaded struct {
	LoadStatus       string            `json:"load_status"`
	LoadTime         time.Time         `json:"load_time"`
	Error            string            `json:"error,omitempty"`
	OriginalError    string            `json:"original_error,omitempty"`
	OriginalData     *Transformed      `json:"original_data,omitempty"`
	StorageReference string            `json:"storage_reference,omitempty"`
	Summary          *Summary          `json:"analysis_summary,omitempty"`
	CategoryMatches  []cv.TitleMatches `json:"category_matches,omitempty"`
}

// Summary is the compact view of a successful analysis.
type Summary struct {
	Filename    string   `json:"filename"`
	WordCount   int      `json:"word_count"`
	PageCount   int      `json:"page_count"`
	TopKeywords []string `json:"top_keywords"`
	Language    string   `json:"language"`
}

var now = func() time.Time { return time.Now().UTC() }
