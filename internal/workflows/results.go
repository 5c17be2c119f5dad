package workflows

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"resume-pipeline/internal/pipeline"
	"resume-pipeline/internal/shared/storage/object"
)

// ResultStore persists final records in an object store under
// runs/<run_id>/result.json.
type ResultStore struct {
	Store object.Store
}

// NewResultStore wraps store.
func NewResultStore(store object.Store) *ResultStore {
	return &ResultStore{Store: store}
}

func resultKey(runID string) (string, error) {
	return object.CleanKey("runs/" + runID + "/result.json")
}

// Save writes rec as JSON.
func (r *ResultStore) Save(ctx context.Context, runID string, rec pipeline.Record) error {
	key, err := resultKey(runID)
	if err != nil {
		return err
	}
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	if _, err := r.Store.Put(ctx, key, "application/json", bytes.NewReader(body)); err != nil {
		return fmt.Errorf("store result: %w", err)
	}
	return nil
}

// Load returns the stored JSON for runID, or object.ErrNotFound.
func (r *ResultStore) Load(ctx context.Context, runID string) (json.RawMessage, error) {
	key, err := resultKey(runID)
	if err != nil {
		return nil, err
	}
	rc, err := r.Store.Open(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	body, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read result: %w", err)
	}
	return json.RawMessage(body), nil
}
