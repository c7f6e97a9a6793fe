package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/harunnryd/asisten/pkg/metrics"
	"github.com/harunnryd/asisten/pkg/resilience"
	"github.com/harunnryd/asisten/pkg/turn"
)

type flakyAdapter struct {
	errs  []error
	calls int
}

func (f *flakyAdapter) Name() string { return "flaky" }

func (f *flakyAdapter) Generate(context.Context, Context) (Response, error) {
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return Response{}, err
	}
	return Response{Text: "ok"}, nil
}

func (f *flakyAdapter) MapTools(tools []Tool) (any, error) { return tools, nil }

func TestCircuitBreakerOpensAfterRateLimits(t *testing.T) {
	limit := resilience.RateLimitError{Provider: "flaky", Message: "429"}
	inner := &flakyAdapter{errs: []error{limit, limit}}
	a := NewCircuitBreakerAdapter(inner, resilience.NewCircuitBreaker(2, time.Hour))
	obs := metrics.NewMemoryObserver()
	a.SetObserver(obs)
	ctx := turn.WithID(context.Background(), "turn-1")

	for i := 0; i < 2; i++ {
		if _, err := a.Generate(ctx, Context{}); !resilience.IsRateLimit(err) {
			t.Fatalf("call %d: expected rate limit, got %v", i, err)
		}
	}
	if a.State() != resilience.BreakerOpen {
		t.Fatalf("expected open breaker, got %s", a.State())
	}
	_, err := a.Generate(ctx, Context{})
	if !resilience.IsRateLimit(err) {
		t.Fatalf("expected fast failure, got %v", err)
	}
	if inner.calls != 2 {
		t.Fatalf("expected inner skipped while open, got %d calls", inner.calls)
	}
	if obs.Count(metrics.EventRateLimit) != 2 || obs.Count(metrics.EventBreakerOpen) != 1 || obs.Count(metrics.EventBreakerDenied) != 1 {
		t.Fatalf("unexpected events %+v", obs.Events())
	}
	for _, ev := range obs.Events() {
		if ev.Tags["turn_id"] != "turn-1" {
			t.Fatalf("expected turn id tag, got %+v", ev.Tags)
		}
	}
}

func TestCircuitBreakerPassesThroughOtherErrors(t *testing.T) {
	boom := errors.New("boom")
	inner := &flakyAdapter{errs: []error{boom}}
	a := NewCircuitBreakerAdapter(inner, nil)
	if _, err := a.Generate(context.Background(), Context{}); !errors.Is(err, boom) {
		t.Fatalf("expected inner error, got %v", err)
	}
	resp, err := a.Generate(context.Background(), Context{})
	if err != nil || resp.Text != "ok" {
		t.Fatalf("expected success, got %q %v", resp.Text, err)
	}
	if a.State() != resilience.BreakerClosed {
		t.Fatalf("expected closed breaker, got %s", a.State())
	}
}
