package cv

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
)

var (
	// ErrMalformedReply means the reply could not be read as a JSON object.
	ErrMalformedReply = errors.New("model reply is not a JSON object")
	// ErrInvalidMatch means the reply parsed but does not describe a usable match.
	ErrInvalidMatch = errors.New("model reply is not a valid match")
)

var validate = validator.New()

// Older prompts used the catalog's column names.
var matchAliases = map[string]string{
	"code_rome": "code",
	"libelle":   "label",
}

// ParseMatch decodes a single-match reply. Numeric ids and string scores are
// accepted; missing fields or a score outside [0,1] yield ErrInvalidMatch.
func ParseMatch(raw string) (*Match, error) {
	var doc map[string]any
	if err := json.Unmarshal([]byte(StripFences(raw)), &doc); err != nil || doc == nil {
		return nil, ErrMalformedReply
	}
	for alias, key := range matchAliases {
		if _, ok := doc[key]; !ok {
			if v, ok := doc[alias]; ok {
				doc[key] = v
			}
		}
	}

	var m Match
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &m,
		WeaklyTypedInput: true,
		TagName:          "mapstructure",
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMatch, err)
	}
	if _, ok := doc["score"]; !ok {
		return nil, fmt.Errorf("%w: score missing", ErrInvalidMatch)
	}
	if err := validate.Struct(m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMatch, err)
	}
	return &m, nil
}
