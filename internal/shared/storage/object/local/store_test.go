package local

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"resume-pipeline/internal/shared/storage/object"
)

func TestPutOpenRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := New(t.TempDir())

	n, err := store.Put(ctx, "runs/abc/result.json", "application/json", strings.NewReader(`{"ok":true}`))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if n != 11 {
		t.Fatalf("expected 11 bytes, got %d", n)
	}
	if _, err := store.Put(ctx, "runs/abc/result.json", "application/json", strings.NewReader(`{}`)); err != nil {
		t.Fatalf("overwrite: %v", err)
	}

	rc, err := store.Open(ctx, "runs/abc/result.json")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	if string(data) != `{}` {
		t.Fatalf("unexpected content %q", data)
	}
}

func TestOpenMissing(t *testing.T) {
	store := New(t.TempDir())
	if _, err := store.Open(context.Background(), "runs/none/result.json"); !errors.Is(err, object.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRejectsEscapingKeys(t *testing.T) {
	store := New(t.TempDir())
	for _, key := range []string{"../etc/passwd", "/abs/key", "", "a/../../b"} {
		if _, err := store.Put(context.Background(), key, "", strings.NewReader("x")); !errors.Is(err, object.ErrInvalidKey) {
			t.Fatalf("key %q: expected ErrInvalidKey, got %v", key, err)
		}
	}
}
