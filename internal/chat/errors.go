package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrEmptyQuery indicates the turn carried no usable query text.
var ErrEmptyQuery = errors.New("empty query")

// ErrorKind categorizes a synthesis failure.
type ErrorKind string

const (
	// KindTimeout covers per-call deadline expiry and network timeouts.
	KindTimeout ErrorKind = "timeout"
	// KindQuota covers rate limiting and quota exhaustion.
	KindQuota ErrorKind = "quota"
	// KindMalformed covers empty or unusable model output.
	KindMalformed ErrorKind = "malformed"
	// KindUnavailable covers transient provider and network failures.
	KindUnavailable ErrorKind = "unavailable"
)

// SynthesisError is a classified model-call failure. Retriable failures
// are retried once before the turn falls back to the article listing.
type SynthesisError struct {
	Kind      ErrorKind
	Retriable bool
	Err       error
}

func (e *SynthesisError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("synthesis failed (%s)", e.Kind)
	}
	return fmt.Sprintf("synthesis failed (%s): %v", e.Kind, e.Err)
}

func (e *SynthesisError) Unwrap() error { return e.Err }

// retriablePatterns groups transient error substrings by category,
// matched case-insensitively against err.Error().
//
// NOTE: string matching is used because Genkit and the provider SDKs do
// not expose typed errors for transient failures. Re-evaluate if Genkit
// adds structured error types.
var retriablePatterns = []struct {
	kind     ErrorKind
	patterns []string
}{
	{KindQuota, []string{"rate limit", "quota exceeded", "429", "resource exhausted"}},
	{KindTimeout, []string{"timeout", "deadline exceeded"}},
	{KindUnavailable, []string{"500", "502", "503", "504", "unavailable", "connection reset", "temporary"}},
}

// classify wraps a raw model-call error as a SynthesisError.
func classify(err error) *SynthesisError {
	if errors.Is(err, context.DeadlineExceeded) {
		return &SynthesisError{Kind: KindTimeout, Retriable: true, Err: err}
	}
	if errors.Is(err, context.Canceled) {
		// Caller gave up; retrying cannot help.
		return &SynthesisError{Kind: KindTimeout, Retriable: false, Err: err}
	}

	msg := strings.ToLower(err.Error())
	for _, group := range retriablePatterns {
		for _, p := range group.patterns {
			if strings.Contains(msg, p) {
				return &SynthesisError{Kind: group.kind, Retriable: true, Err: err}
			}
		}
	}
	return &SynthesisError{Kind: KindMalformed, Retriable: false, Err: err}
}
