package cv

// Formation is one education record. JSON keys follow the extraction prompt.
type Formation struct {
	Period      string `json:"periode"`
	Degree      string `json:"diplome"`
	Institution string `json:"etablissement"`
	Description string `json:"description"`
}

// Experience is one professional-experience record.
type Experience struct {
	Period      string   `json:"periode"`
	Title       string   `json:"poste"`
	Company     string   `json:"entreprise"`
	Description string   `json:"description"`
	Skills      []string `json:"competences"`
}

// FieldSet is the structured content extracted from a résumé.
type FieldSet struct {
	Formations  []Formation  `json:"formations"`
	Experiences []Experience `json:"experiences_professionnelles"`
}

// Match is the best reference category for one job title.
type Match struct {
	ID    string  `json:"id" mapstructure:"id" validate:"required"`
	Code  string  `json:"code" mapstructure:"code" validate:"required"`
	Label string  `json:"label" mapstructure:"label" validate:"required"`
	Score float64 `json:"score" mapstructure:"score" validate:"gte=0,lte=1"`
}

// TitleMatches holds the matches found for one experience. Error is set when
// matching that experience failed.
type TitleMatches struct {
	Title   string  `json:"title"`
	Matches []Match `json:"matches"`
	Error   string  `json:"error,omitempty"`
}

// MatchQuery is the experience context sent to the matcher.
type MatchQuery struct {
	Title       string
	Company     string
	Description string
}
