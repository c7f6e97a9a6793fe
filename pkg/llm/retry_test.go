package llm

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetryBacksOffUntilSuccess(t *testing.T) {
	var waits []time.Duration
	cfg := RetryConfig{MaxAttempts: 4, BaseDelay: 10 * time.Millisecond, MaxDelay: 25 * time.Millisecond,
		Sleep: func(d time.Duration) { waits = append(waits, d) }}
	calls := 0
	resp, err := Retry(context.Background(), cfg, func(context.Context) (Response, error) {
		calls++
		if calls < 4 {
			return Response{}, StatusError{Provider: "p", Code: 503}
		}
		return Response{Text: "listo"}, nil
	})
	if err != nil || resp.Text != "listo" {
		t.Fatalf("expected success, got %q %v", resp.Text, err)
	}
	want := []time.Duration{10 * time.Millisecond, 20 * time.Millisecond, 25 * time.Millisecond}
	if len(waits) != len(want) {
		t.Fatalf("expected %d waits, got %v", len(want), waits)
	}
	for i := range want {
		if waits[i] != want[i] {
			t.Fatalf("wait %d = %s, want %s", i, waits[i], want[i])
		}
	}
}

func TestRetryStopsOnClientError(t *testing.T) {
	calls := 0
	_, err := Retry(context.Background(), RetryConfig{Sleep: func(time.Duration) {}}, func(context.Context) (Response, error) {
		calls++
		return Response{}, StatusError{Provider: "p", Code: 400}
	})
	var status StatusError
	if !errors.As(err, &status) || calls != 1 {
		t.Fatalf("expected one call ending in status error, got %d %v", calls, err)
	}
}

func TestRetryReturnsContextError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Retry(ctx, RetryConfig{}, func(context.Context) (Response, error) {
		t.Fatalf("fn must not run after cancel")
		return Response{}, nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected canceled, got %v", err)
	}
}
