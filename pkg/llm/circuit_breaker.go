package llm

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/harunnryd/asisten/pkg/metrics"
	"github.com/harunnryd/asisten/pkg/resilience"
	"github.com/harunnryd/asisten/pkg/turn"
)

// CircuitBreakerAdapter stops calling a generator that keeps answering with
// rate limits, failing fast with a RateLimitError until the cooldown passes.
type CircuitBreakerAdapter struct {
	inner   LLMAdapter
	breaker *resilience.CircuitBreaker
	obs     atomic.Pointer[metrics.Observer]
	open    atomic.Bool
}

func NewCircuitBreakerAdapter(inner LLMAdapter, breaker *resilience.CircuitBreaker) *CircuitBreakerAdapter {
	if breaker == nil {
		breaker = resilience.NewCircuitBreaker(3, 30*time.Second)
	}
	return &CircuitBreakerAdapter{inner: inner, breaker: breaker}
}

func (a *CircuitBreakerAdapter) Name() string { return a.inner.Name() }

func (a *CircuitBreakerAdapter) SetObserver(obs metrics.Observer) {
	a.obs.Store(&obs)
}

// State reports the breaker state for status endpoints and tests.
func (a *CircuitBreakerAdapter) State() resilience.BreakerState { return a.breaker.State() }

func (a *CircuitBreakerAdapter) Generate(ctx context.Context, input Context) (Response, error) {
	if !a.breaker.Allow() {
		if a.open.CompareAndSwap(false, true) {
			a.record(ctx, metrics.EventBreakerOpen)
		}
		a.record(ctx, metrics.EventBreakerDenied)
		return Response{}, resilience.RateLimitError{Provider: a.Name(), Message: "circuit open"}
	}
	if a.open.CompareAndSwap(true, false) {
		a.record(ctx, metrics.EventBreakerClose)
	}
	resp, err := a.inner.Generate(ctx, input)
	if err != nil {
		if resilience.IsRateLimit(err) {
			a.record(ctx, metrics.EventRateLimit)
		}
		a.breaker.OnError(err)
		return Response{}, err
	}
	a.breaker.OnSuccess()
	return resp, nil
}

func (a *CircuitBreakerAdapter) MapTools(tools []Tool) (any, error) {
	return a.inner.MapTools(tools)
}

func (a *CircuitBreakerAdapter) record(ctx context.Context, name string) {
	p := a.obs.Load()
	if p == nil || *p == nil {
		return
	}
	tags := map[string]string{
		"provider":  a.inner.Name(),
		"component": "llm",
		"state":     a.breaker.State().String(),
	}
	if id := turn.IDFromContext(ctx); id != "" {
		tags["turn_id"] = id
	}
	(*p).RecordEvent(metrics.MetricsEvent{Name: name, Time: time.Now(), Tags: tags})
}

var _ LLMAdapter = (*CircuitBreakerAdapter)(nil)
