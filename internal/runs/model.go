package runs

import (
	"fmt"
	"time"
)

// Status is the lifecycle state of a pipeline run.
type Status string

const (
	StatusInitializing     Status = "initializing"
	StatusExtraction       Status = "extraction"
	StatusFieldExtraction  Status = "openai_extraction"
	StatusCategoryMatching Status = "openai_matching"
	StatusTransformation   Status = "transformation"
	StatusLoad             Status = "chargement"
	StatusCompleted        Status = "completed"
	StatusFailed           Status = "failed"
)

var statusRank = map[Status]int{
	StatusInitializing:     0,
	StatusExtraction:       1,
	StatusFieldExtraction:  2,
	StatusCategoryMatching: 3,
	StatusTransformation:   4,
	StatusLoad:             5,
	StatusCompleted:        6,
}

// Run is the registry entry of one pipeline invocation.
type Run struct {
	ID          string    `json:"run_id"`
	Name        string    `json:"name"`
	StartTime   time.Time `json:"start_time"`
	Status      Status    `json:"status"`
	Error       string    `json:"error,omitempty"`
	Filename    string    `json:"filename,omitempty"`
	ContentType string    `json:"content_type,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ParseStatus validates a stored status value.
func ParseStatus(raw string) (Status, error) {
	s := Status(raw)
	if s == StatusFailed {
		return s, nil
	}
	if _, ok := statusRank[s]; !ok {
		return "", fmt.Errorf("unknown run status %q", raw)
	}
	return s, nil
}

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransition reports whether a run may move from s to next. Statuses only
// advance in pipeline order; failed is reachable from any non-terminal state.
func (s Status) CanTransition(next Status) bool {
	if s.Terminal() {
		return false
	}
	if next == StatusFailed {
		return true
	}
	from, okFrom := statusRank[s]
	to, okTo := statusRank[next]
	return okFrom && okTo && to > from
}

func checkTransition(id string, from, to Status) error {
	if !from.CanTransition(to) {
		return fmt.Errorf("run %s %s->%s: %w", id, from, to, ErrInvalidTransition)
	}
	return nil
}
