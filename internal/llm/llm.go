package llm

import (
	"context"
	"errors"
)

// ErrNotConfigured is returned when no provider credential is available.
var ErrNotConfigured = errors.New("language model API key is not configured")

// Request is one completion call. MaxTokens of zero leaves the provider default.
type Request struct {
	System    string
	Prompt    string
	MaxTokens int
}

// Completer abstracts LLM providers returning a single JSON text reply.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// CompleterFunc adapts a function to Completer.
type CompleterFunc func(ctx context.Context, req Request) (string, error)

// Complete calls f.
func (f CompleterFunc) Complete(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}
