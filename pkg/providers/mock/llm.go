package mock

import (
	"context"
	"sync"
	"time"

	"github.com/harunnryd/asisten/pkg/llm"
)

// LLMAdapter returns scripted replies in order, repeating the last one.
type LLMAdapter struct {
	cfg   LLMConfig
	mu    sync.Mutex
	calls []llm.Context
}

type LLMConfig struct {
	ResponseText string
	Responses    []llm.Response
	Delay        time.Duration
	Err          error
}

func NewLLMAdapter(cfg LLMConfig) *LLMAdapter {
	if cfg.ResponseText == "" && len(cfg.Responses) == 0 {
		cfg.ResponseText = "mock response"
	}
	return &LLMAdapter{cfg: cfg}
}

func (a *LLMAdapter) Name() string { return "mock_llm" }

func (a *LLMAdapter) Generate(ctx context.Context, input llm.Context) (llm.Response, error) {
	a.mu.Lock()
	n := len(a.calls)
	a.calls = append(a.calls, input)
	a.mu.Unlock()
	if a.cfg.Delay > 0 {
		timer := time.NewTimer(a.cfg.Delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return llm.Response{}, ctx.Err()
		case <-timer.C:
		}
	}
	if a.cfg.Err != nil {
		return llm.Response{}, a.cfg.Err
	}
	if len(a.cfg.Responses) == 0 {
		return llm.Response{Text: a.cfg.ResponseText}, nil
	}
	if n >= len(a.cfg.Responses) {
		n = len(a.cfg.Responses) - 1
	}
	return a.cfg.Responses[n], nil
}

func (a *LLMAdapter) MapTools(tools []llm.Tool) (any, error) {
	return tools, nil
}

// Calls returns the contexts passed to Generate.
func (a *LLMAdapter) Calls() []llm.Context {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]llm.Context(nil), a.calls...)
}

var _ llm.LLMAdapter = (*LLMAdapter)(nil)
