package object

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"
)

var (
	ErrNotFound   = errors.New("object not found")
	ErrInvalidKey = errors.New("invalid storage key")
)

// Store defines the contract for saving and retrieving binary objects by key.
type Store interface {
	Put(ctx context.Context, key, contentType string, r io.Reader) (int64, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// CleanKey normalizes a slash-separated key and rejects keys escaping the store root.
func CleanKey(key string) (string, error) {
	trimmed := strings.TrimSpace(key)
	if trimmed == "" || strings.HasPrefix(trimmed, "/") {
		return "", ErrInvalidKey
	}
	clean := path.Clean(trimmed)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", ErrInvalidKey
	}
	return clean, nil
}
