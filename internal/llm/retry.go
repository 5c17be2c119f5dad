package llm

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"go.uber.org/zap"

	"resume-pipeline/internal/shared/util"
)

const retryBaseDelay = 300 * time.Millisecond

type retryingCompleter struct {
	base   Completer
	delay  time.Duration
	logger *zap.Logger
}

// WithRetry retries a completion once after a transient provider failure.
func WithRetry(base Completer, logger *zap.Logger) Completer {
	if base == nil {
		return nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return retryingCompleter{base: base, delay: retryBaseDelay, logger: logger}
}

func (r retryingCompleter) Complete(ctx context.Context, req Request) (string, error) {
	reply, err := r.base.Complete(ctx, req)
	if err == nil || !Transient(err) || ctx.Err() != nil {
		return reply, err
	}

	r.logger.Warn("llm.retry", zap.Int("attempt", 1), zap.String("error", util.SanitizeError(err)))
	timer := time.NewTimer(r.delay)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	return r.base.Complete(ctx, req)
}

// Transient reports whether err looks like a timeout, a dropped connection
// or a provider-side 5xx.
func Transient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range []string{
		"http status 5",
		"error 5",
		"server_error",
		"status: unavailable",
		"request timeout",
		"connection reset",
		"connection refused",
		"broken pipe",
		"tls handshake timeout",
		"unexpected eof",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
