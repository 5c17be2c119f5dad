package llm

import (
	_ "embed"
	"fmt"
	"strings"

	"resume-pipeline/internal/catalog"
	"resume-pipeline/internal/cv"
)

var (
	//go:embed prompts/extraction_system.txt
	extractionSystem string
	//go:embed prompts/extraction_user.txt
	extractionUser string
	//go:embed prompts/matching_system.txt
	matchingSystem string
	//go:embed prompts/matching_user.txt
	matchingUser string
)

// ExtractionRequest builds the field-extraction call for resumeText.
func ExtractionRequest(resumeText string, maxTokens int) Request {
	return Request{
		System:    strings.TrimSpace(extractionSystem),
		Prompt:    strings.ReplaceAll(extractionUser, "{{RESUME_TEXT}}", resumeText),
		MaxTokens: maxTokens,
	}
}

// MatchingRequest builds the single-best-match call for one experience.
func MatchingRequest(q cv.MatchQuery, entries []catalog.Category) Request {
	replacer := strings.NewReplacer(
		"{{TITLE}}", q.Title,
		"{{COMPANY}}", q.Company,
		"{{DESCRIPTION}}", q.Description,
		"{{CATALOG}}", RenderCatalog(entries),
	)
	return Request{
		System: strings.TrimSpace(matchingSystem),
		Prompt: replacer.Replace(matchingUser),
	}
}

// RenderCatalog renders entries as a numbered list, one per line.
func RenderCatalog(entries []catalog.Category) string {
	var b strings.Builder
	for i, e := range entries {
		fmt.Fprintf(&b, "%d. ID: %s, Code: %s, Label: %s\n", i+1, e.ID, e.Code, e.Label)
	}
	return strings.TrimRight(b.String(), "\n")
}
