package errors

import (
	"context"
	"fmt"
	"net"
	"syscall"
	"testing"
	"time"
)

func TestCategorize(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorType
	}{
		{"nil stays nil", nil, Unknown},
		{"already categorized", NewHttpError("https://x.com", 500), Http},
		{"wrapped scan error", fmt.Errorf("outer: %w", NewAuthRequiredError("https://x.com", 401)), AuthRequired},
		{"context cancelled", context.Canceled, Cancelled},
		{"deadline exceeded", context.DeadlineExceeded, Timeout},
		{"connection refused", syscall.ECONNREFUSED, Network},
		{"dns failure", &net.DNSError{Err: "no such host", Name: "x.invalid"}, Network},
		{"opaque error", fmt.Errorf("something odd"), Unknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Categorize(tt.err, "https://x.com")
			if tt.err == nil {
				if got != nil {
					t.Errorf("Categorize(nil) = %v, want nil", got)
				}
				return
			}
			if got.Type != tt.want {
				t.Errorf("Categorize(%v).Type = %v, want %v", tt.err, got.Type, tt.want)
			}
		})
	}
}

func TestCategorizeHTTPStatus(t *testing.T) {
	tests := []struct {
		status int
		want   ErrorType
		isNil  bool
	}{
		{200, Unknown, true},
		{301, Unknown, true},
		{401, AuthRequired, false},
		{403, AuthRequired, false},
		{404, Http, false},
		{500, Http, false},
	}

	for _, tt := range tests {
		got := CategorizeHTTPStatus(tt.status, "https://x.com")
		if tt.isNil {
			if got != nil {
				t.Errorf("CategorizeHTTPStatus(%d) = %v, want nil", tt.status, got)
			}
			continue
		}
		if got == nil || got.Type != tt.want {
			t.Errorf("CategorizeHTTPStatus(%d) = %v, want type %v", tt.status, got, tt.want)
		}
		if got.StatusCode != tt.status {
			t.Errorf("StatusCode = %d, want %d", got.StatusCode, tt.status)
		}
	}
}

func TestRetryability(t *testing.T) {
	if !IsRetryable(NewNetworkError("https://x.com", "send", nil)) {
		t.Error("network errors must be retryable")
	}
	if !IsRetryable(NewTimeoutError("https://x.com", "send", nil)) {
		t.Error("timeout errors must be retryable")
	}
	for _, err := range []*ScanError{
		NewHttpError("https://x.com", 500),
		NewAuthRequiredError("https://x.com", 401),
		NewChallengeUnsolvedError("https://x.com", "nope", nil),
		NewConsistencyError("broken"),
		NewMalformedRecordError(3, "bad entry"),
	} {
		if IsRetryable(err) {
			t.Errorf("%v must not be retryable", err.Type)
		}
	}
}

func TestRetrierStopsOnNonRetryable(t *testing.T) {
	r := NewRetrier(RetryConfig{
		MaxAttempts:    3,
		InitialDelay:   time.Millisecond,
		MaxDelay:       5 * time.Millisecond,
		Multiplier:     2.0,
		RetryableTypes: []ErrorType{Network, Timeout},
	})

	calls := 0
	result := r.Do(context.Background(), "verify", "https://x.com", func(ctx context.Context) error {
		calls++
		return NewHttpError("https://x.com", 500)
	})

	if result.Success {
		t.Error("expected failure")
	}
	if calls != 1 {
		t.Errorf("non-retryable error retried: %d calls, want 1", calls)
	}
	if GetErrorType(result.LastError) != Http {
		t.Errorf("LastError type = %v, want Http", GetErrorType(result.LastError))
	}
}

func TestRetrierRecovers(t *testing.T) {
	r := NewRetrier(RetryConfig{
		MaxAttempts:    3,
		InitialDelay:   time.Millisecond,
		MaxDelay:       5 * time.Millisecond,
		Multiplier:     2.0,
		RetryableTypes: []ErrorType{Network, Timeout},
	})

	calls := 0
	result := r.Do(context.Background(), "verify", "https://x.com", func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return NewNetworkError("https://x.com", "send", nil)
		}
		return nil
	})

	if !result.Success {
		t.Fatalf("expected success, got %v", result.LastError)
	}
	if result.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", result.Attempts)
	}
}

func TestRetrierHonorsCancellation(t *testing.T) {
	r := NewRetrier(RetryConfig{
		MaxAttempts:    5,
		InitialDelay:   50 * time.Millisecond,
		MaxDelay:       time.Second,
		Multiplier:     2.0,
		RetryableTypes: []ErrorType{Network},
	})

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	result := r.Do(ctx, "verify", "https://x.com", func(ctx context.Context) error {
		calls++
		cancel()
		return NewNetworkError("https://x.com", "send", nil)
	})

	if result.Success {
		t.Error("expected failure")
	}
	if calls != 1 {
		t.Errorf("cancelled retrier kept going: %d calls", calls)
	}
	if GetErrorType(result.LastError) != Cancelled {
		t.Errorf("LastError type = %v, want Cancelled", GetErrorType(result.LastError))
	}
}

func TestScanErrorWrapping(t *testing.T) {
	cause := fmt.Errorf("root cause")
	err := NewScanError(Network, "https://x.com", "send", "boom", cause)

	if err.Unwrap() != cause {
		t.Error("Unwrap did not return the cause")
	}
	if GetStatusCode(NewHttpError("https://x.com", 503)) != 503 {
		t.Error("GetStatusCode lost the code")
	}
	if !IsAuthRequired(NewAuthRequiredError("https://x.com", 403)) {
		t.Error("IsAuthRequired false for auth error")
	}
	if IsAuthRequired(err) {
		t.Error("IsAuthRequired true for network error")
	}
}
