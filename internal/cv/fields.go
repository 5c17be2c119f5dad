package cv

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

const formationSchema = `{
  "type": "object",
  "required": ["periode", "diplome", "etablissement", "description"],
  "properties": {
    "periode": {"type": "string"},
    "diplome": {"type": "string"},
    "etablissement": {"type": "string"},
    "description": {"type": "string"}
  }
}`

const experienceSchema = `{
  "type": "object",
  "required": ["periode", "poste", "entreprise", "description"],
  "properties": {
    "periode": {"type": "string"},
    "poste": {"type": "string"},
    "entreprise": {"type": "string"},
    "description": {"type": "string"}
  }
}`

var (
	formationValidator  = mustSchema(formationSchema)
	experienceValidator = mustSchema(experienceSchema)
)

func mustSchema(src string) *gojsonschema.Schema {
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(src))
	if err != nil {
		panic(fmt.Sprintf("compile schema: %v", err))
	}
	return s
}

// ParseStats reports what ParseFieldSet discarded.
type ParseStats struct {
	Malformed bool // reply was not a JSON object
	Dropped   int  // records failing their schema
}

// ParseFieldSet decodes a model reply into a FieldSet. A reply that is not a
// JSON object yields two empty lists; records that do not match their schema
// are dropped. Lists are never nil.
func ParseFieldSet(raw string) (FieldSet, ParseStats) {
	out := FieldSet{Formations: []Formation{}, Experiences: []Experience{}}
	var stats ParseStats

	var doc map[string]any
	if err := json.Unmarshal([]byte(StripFences(raw)), &doc); err != nil || doc == nil {
		stats.Malformed = true
		return out, stats
	}

	for _, item := range asList(doc["formations"]) {
		if !valid(formationValidator, item) {
			stats.Dropped++
			continue
		}
		m := item.(map[string]any)
		out.Formations = append(out.Formations, Formation{
			Period:      str(m["periode"]),
			Degree:      str(m["diplome"]),
			Institution: str(m["etablissement"]),
			Description: str(m["description"]),
		})
	}

	for _, item := range asList(doc["experiences_professionnelles"]) {
		if !valid(experienceValidator, item) {
			stats.Dropped++
			continue
		}
		m := item.(map[string]any)
		out.Experiences = append(out.Experiences, Experience{
			Period:      str(m["periode"]),
			Title:       str(m["poste"]),
			Company:     str(m["entreprise"]),
			Description: str(m["description"]),
			Skills:      skills(m["competences"]),
		})
	}
	return out, stats
}

// StripFences removes a surrounding markdown code fence, if any.
func StripFences(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func valid(schema *gojsonschema.Schema, item any) bool {
	if _, ok := item.(map[string]any); !ok {
		return false
	}
	res, err := schema.Validate(gojsonschema.NewGoLoader(item))
	return err == nil && res.Valid()
}

func asList(v any) []any {
	list, _ := v.([]any)
	return list
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

func skills(v any) []string {
	out := []string{}
	for _, item := range asList(v) {
		if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
			out = append(out, strings.TrimSpace(s))
		}
	}
	return out
}
