package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestClassifyLLMError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want RetryClass
	}{
		{"nil", nil, RetryClassNonRetryable},
		{"rate limit", errors.New("status 429: too many requests"), RetryClassRetryable},
		{"server", errors.New("503 service unavailable"), RetryClassRetryable},
		{"network", errors.New("dial tcp: connection refused"), RetryClassRetryable},
		{"deadline", errors.New("context deadline exceeded"), RetryClassMaybe},
		{"auth", errors.New("401 unauthorized"), RetryClassNonRetryable},
		{"unknown", errors.New("something odd"), RetryClassNonRetryable},
		{"cancelled", fmt.Errorf("call: %w", context.Canceled), RetryClassNonRetryable},
		{"pre-classified", NewEngineError(errors.New("x"), RetryClassMaybe), RetryClassMaybe},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyLLMError(tt.err); got != tt.want {
				t.Errorf("ClassifyLLMError() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestExtractRetryAfter(t *testing.T) {
	wrapped := WrapLLMError(errors.New("429 rate limit"), 429, "7")
	if got := ExtractRetryAfter(wrapped); got != 7*time.Second {
		t.Errorf("ExtractRetryAfter(header) = %v, want 7s", got)
	}

	fromText := errors.New("Rate limited, retry after 3 seconds")
	if got := ExtractRetryAfter(fromText); got != 3*time.Second {
		t.Errorf("ExtractRetryAfter(text) = %v, want 3s", got)
	}

	if got := ExtractRetryAfter(errors.New("boom")); got != 0 {
		t.Errorf("ExtractRetryAfter(none) = %v, want 0", got)
	}
}

func TestWrapLLMErrorFlags(t *testing.T) {
	err := WrapLLMError(errors.New("401 unauthorized"), 401, "")
	var engineErr *EngineError
	if !errors.As(err, &engineErr) {
		t.Fatalf("expected *EngineError, got %T", err)
	}
	if !engineErr.IsAuth || engineErr.Class != RetryClassNonRetryable {
		t.Errorf("unexpected classification: %+v", engineErr)
	}
}

func TestCallErrorUnwrap(t *testing.T) {
	base := errors.New("boom")
	err := WrapWithContext(base, "broadcast", "Guard")
	if !errors.Is(err, base) {
		t.Fatal("CallError should unwrap to the original error")
	}
	if got := err.Error(); got != "[op=broadcast subject=Guard] boom" {
		t.Errorf("Error() = %q", got)
	}
	if WrapWithContext(nil, "x", "y") != nil {
		t.Error("wrapping nil should return nil")
	}
}
