package llm

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// TransientError marks an upstream failure that is safe to retry: rate
// limiting, timeouts, and 5xx responses. A permanent error (bad request,
// auth failure, schema violation) is never wrapped in TransientError and
// must not be retried.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// IsTransient reports whether err, or something it wraps, is a TransientError.
func IsTransient(err error) bool {
	var t *TransientError
	if errors.As(err, &t) {
		return true
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests || apiErr.HTTPStatusCode >= 500
	}
	return false
}

// upstreamError wraps an HTTP status code and response body into an error,
// marking it transient when the status indicates rate limiting or a server
// fault on the provider's side.
func upstreamError(provider string, statusCode int, body string) error {
	err := fmt.Errorf("%s returned status %d: %s", provider, statusCode, body)
	if statusCode == http.StatusTooManyRequests || statusCode >= 500 {
		return &TransientError{Err: err}
	}
	return err
}

// RetryingProvider wraps a Provider with exponential backoff retry on
// transient upstream errors, capped at a fixed retry ceiling. Permanent
// errors are returned immediately without retry.
type RetryingProvider struct {
	provider Provider
	ceiling  int
	backoff  time.Duration
}

// NewRetryingProvider wraps provider with retry-with-backoff behavior.
// ceiling is the maximum number of retries attempted after the first call.
func NewRetryingProvider(provider Provider, ceiling int) Provider {
	return &RetryingProvider{provider: provider, ceiling: ceiling, backoff: time.Second}
}

func (r *RetryingProvider) Name() string { return r.provider.Name() }

func (r *RetryingProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	var lastErr error
	for attempt := 0; attempt <= r.ceiling; attempt++ {
		resp, err := r.provider.Complete(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !IsTransient(err) || attempt == r.ceiling {
			return nil, err
		}

		wait := time.Duration(math.Pow(2, float64(attempt))) * r.backoff
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
	return nil, lastErr
}
