package agent

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/harunnryd/asisten/pkg/errorsx"
	"github.com/harunnryd/asisten/pkg/llm"
	"github.com/harunnryd/asisten/pkg/metrics"
	"github.com/harunnryd/asisten/pkg/resilience"
	"github.com/harunnryd/asisten/pkg/turn"
)

type scriptedLLM struct {
	mu        sync.Mutex
	responses []llm.Response
	errs      []error
	inputs    []llm.Context
}

func (s *scriptedLLM) Name() string { return "scripted" }

func (s *scriptedLLM) MapTools(tools []llm.Tool) (any, error) { return tools, nil }

func (s *scriptedLLM) Generate(ctx context.Context, input llm.Context) (llm.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.inputs)
	s.inputs = append(s.inputs, input)
	if n < len(s.errs) && s.errs[n] != nil {
		return llm.Response{}, s.errs[n]
	}
	if n >= len(s.responses) {
		n = len(s.responses) - 1
	}
	return s.responses[n], nil
}

type captureRegistry struct {
	mu    sync.Mutex
	calls []map[string]any
	fail  bool
	delay time.Duration
}

func (r *captureRegistry) Tools() []llm.Tool {
	return []llm.Tool{{Name: "get_weather", Description: "clima"}}
}

func (r *captureRegistry) HandleTool(ctx context.Context, name string, args map[string]any) (string, error) {
	r.mu.Lock()
	r.calls = append(r.calls, args)
	r.mu.Unlock()
	if r.delay > 0 {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(r.delay):
		}
	}
	if r.fail {
		return "", errors.New("servicio caído")
	}
	return "Soleado, 25°C", nil
}

func noRetry() llm.RetryConfig {
	return llm.RetryConfig{MaxAttempts: 1}
}

func TestRespondWaitsForCommit(t *testing.T) {
	model := &scriptedLLM{responses: []llm.Response{{Text: "  Hola, ¿en qué te ayudo?  "}}}
	a := New(model, nil, Options{Retry: noRetry()})
	reply, err := a.Respond(context.Background(), "hola")
	if err != nil {
		t.Fatalf("respond: %v", err)
	}
	if reply != "Hola, ¿en qué te ayudo?" {
		t.Fatalf("unexpected reply %q", reply)
	}
	if len(a.History()) != 0 {
		t.Fatalf("an undelivered reply must not enter history")
	}
	a.Commit("hola", reply)
	hist := a.History()
	if len(hist) != 2 || llm.Role(hist[0]) != llm.RoleUser || llm.Role(hist[1]) != llm.RoleAssistant {
		t.Fatalf("unexpected history %+v", hist)
	}
	first := model.inputs[0].Messages
	if llm.Role(first[0]) != llm.RoleSystem || llm.Content(first[0]) != DefaultInstructions {
		t.Fatalf("expected system instructions first, got %+v", first[0])
	}

	if _, err := a.Respond(context.Background(), "otra"); err != nil {
		t.Fatalf("respond: %v", err)
	}
	second := model.inputs[1].Messages
	if len(second) != 4 || llm.Content(second[1]) != "hola" || llm.Content(second[3]) != "otra" {
		t.Fatalf("committed exchange should precede the new question, got %+v", second)
	}
	a.Commit("sin respuesta", "")
	if hist := a.History(); len(hist) != 3 || llm.Role(hist[2]) != llm.RoleUser {
		t.Fatalf("empty reply should record only the user, got %+v", hist)
	}
}

func TestDescribeAndReset(t *testing.T) {
	a := New(&scriptedLLM{responses: []llm.Response{{Text: "ok"}}}, &captureRegistry{}, Options{})
	a.Commit("hola", "ok")
	desc := a.Describe()
	if desc["provider"] != "scripted" || desc["history"] != "2" {
		t.Fatalf("unexpected describe %v", desc)
	}
	a.Reset()
	if a.Describe()["history"] != "0" {
		t.Fatalf("expected empty history after reset")
	}
}

func TestRespondFailureLeavesHistoryUntouched(t *testing.T) {
	model := &scriptedLLM{
		responses: []llm.Response{{Text: "ok"}},
		errs:      []error{resilience.RateLimitError{Provider: "scripted", Message: "slow down"}},
	}
	a := New(model, nil, Options{Retry: noRetry()})
	_, err := a.Respond(context.Background(), "hola")
	if !errorsx.HasReason(err, errorsx.ReasonGenerateRateLimit) {
		t.Fatalf("expected rate limit reason, got %v", err)
	}
	if len(a.History()) != 0 {
		t.Fatalf("history must stay empty after failure")
	}
}

func TestRespondCancelledDoesNotCommit(t *testing.T) {
	model := &scriptedLLM{responses: []llm.Response{{Text: "tarde"}}}
	a := New(model, nil, Options{Retry: noRetry()})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := a.Respond(ctx, "hola"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	if len(a.History()) != 0 {
		t.Fatalf("history must stay empty after cancellation")
	}
}

func TestRespondRunsToolRound(t *testing.T) {
	model := &scriptedLLM{responses: []llm.Response{
		{ToolCalls: []llm.ToolCall{{ID: "c1", Name: "get_weather", Arguments: map[string]any{"location": "Madrid"}}}},
		{Text: "En Madrid hace sol."},
	}}
	reg := &captureRegistry{}
	obs := metrics.NewMemoryObserver()
	a := New(model, reg, Options{Retry: noRetry(), Observer: obs})
	ctx := turn.WithID(context.Background(), "t-1")
	reply, err := a.Respond(ctx, "¿Qué tiempo hace en Madrid?")
	if err != nil {
		t.Fatalf("respond: %v", err)
	}
	if reply != "En Madrid hace sol." {
		t.Fatalf("unexpected reply %q", reply)
	}
	if len(reg.calls) != 1 || reg.calls[0]["location"] != "Madrid" || reg.calls[0][MetaIdempotency] != "t-1:c1" {
		t.Fatalf("unexpected tool calls %+v", reg.calls)
	}
	second := model.inputs[1].Messages
	last := second[len(second)-1]
	if llm.Role(last) != llm.RoleTool || llm.Content(last) != "Soleado, 25°C" {
		t.Fatalf("expected tool result last, got %+v", last)
	}
	if obs.Count(metrics.EventToolCall) != 1 || obs.Count(metrics.EventLLMUsage) != 2 {
		t.Fatalf("unexpected metrics %+v", obs.Events())
	}
	a.Commit("¿Qué tiempo hace en Madrid?", reply)
	if len(a.History()) != 2 {
		t.Fatalf("tool messages must not be committed, got %d", len(a.History()))
	}
}

func TestRespondToolFailureAddsGuidance(t *testing.T) {
	model := &scriptedLLM{responses: []llm.Response{
		{ToolCalls: []llm.ToolCall{{ID: "c1", Name: "get_weather"}}},
		{Text: "No pude consultar el clima."},
	}}
	a := New(model, &captureRegistry{fail: true}, Options{Retry: noRetry()})
	if _, err := a.Respond(context.Background(), "clima"); err != nil {
		t.Fatalf("respond: %v", err)
	}
	second := model.inputs[1].Messages
	last := second[len(second)-1]
	if llm.Role(last) != llm.RoleSystem || llm.Content(last) != toolFailureMessage {
		t.Fatalf("expected failure guidance, got %+v", last)
	}
	toolMsg := second[len(second)-2]
	if !strings.HasPrefix(llm.Content(toolMsg), "error:") {
		t.Fatalf("expected error tool content, got %q", llm.Content(toolMsg))
	}
}

func TestRespondCapsToolRounds(t *testing.T) {
	model := &scriptedLLM{responses: []llm.Response{
		{Text: "sigo", ToolCalls: []llm.ToolCall{{ID: "c", Name: "get_weather"}}},
	}}
	a := New(model, &captureRegistry{}, Options{Retry: noRetry(), MaxToolRounds: 2})
	reply, err := a.Respond(context.Background(), "bucle")
	if err != nil {
		t.Fatalf("respond: %v", err)
	}
	if reply != "sigo" {
		t.Fatalf("unexpected reply %q", reply)
	}
	if len(model.inputs) != 3 {
		t.Fatalf("expected 3 generations, got %d", len(model.inputs))
	}
	if len(model.inputs[2].Tools) != 0 {
		t.Fatalf("final round must not offer tools")
	}
}

func TestHistoryIsPruned(t *testing.T) {
	model := &scriptedLLM{responses: []llm.Response{{Text: "vale"}}}
	a := New(model, nil, Options{Retry: noRetry(), MaxHistory: 2})
	for _, text := range []string{"uno", "dos", "tres"} {
		reply, err := a.Respond(context.Background(), text)
		if err != nil {
			t.Fatalf("respond: %v", err)
		}
		a.Commit(text, reply)
	}
	hist := a.History()
	if len(hist) != 2 || llm.Content(hist[0]) != "tres" {
		t.Fatalf("unexpected pruned history %+v", hist)
	}
}
