package agent

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jinzhu/copier"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/harunnryd/asisten/pkg/errorsx"
	"github.com/harunnryd/asisten/pkg/llm"
	"github.com/harunnryd/asisten/pkg/metrics"
	"github.com/harunnryd/asisten/pkg/redact"
	"github.com/harunnryd/asisten/pkg/resilience"
	"github.com/harunnryd/asisten/pkg/turn"
)

// DefaultInstructions is the conversational system prompt.
const DefaultInstructions = "Eres un asistente de voz amable y conciso. Responde siempre en español, " +
	"con frases cortas y naturales para ser leídas en voz alta. No uses listas, tablas ni formato markdown. " +
	"Usa las herramientas disponibles cuando la pregunta lo requiera."

const toolFailureMessage = "Una herramienta falló. Explica el problema al usuario en una frase y ofrece una alternativa."

type Options struct {
	Instructions  string
	MaxHistory    int
	MaxTokens     int
	MaxToolRounds int
	Retry         llm.RetryConfig
	Tools         ToolDispatcherOptions
	Observer      metrics.Observer
	Logger        *slog.Logger
}

// Agent turns one user utterance into one reply, running tool rounds as the
// model requests them. Respond leaves the history alone; the caller commits
// the exchange once the reply is actually delivered.
type Agent struct {
	adapter    llm.LLMAdapter
	registry   llm.ToolRegistry
	dispatcher *ToolDispatcher
	opts       Options
	logger     *slog.Logger

	mu      sync.Mutex
	history []map[string]any
}

func New(adapter llm.LLMAdapter, registry llm.ToolRegistry, opts Options) *Agent {
	if opts.Instructions == "" {
		opts.Instructions = DefaultInstructions
	}
	if opts.MaxToolRounds <= 0 {
		opts.MaxToolRounds = 4
	}
	if opts.Observer == nil {
		opts.Observer = metrics.NoopObserver{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	a := &Agent{adapter: adapter, registry: registry, opts: opts, logger: logger}
	if registry != nil {
		a.dispatcher = NewToolDispatcher(registry, opts.Tools)
		a.dispatcher.SetLogger(logger)
	}
	return a
}

// Respond implements the orchestrator's response generator.
func (a *Agent) Respond(ctx context.Context, userText string) (string, error) {
	turnID := turn.IDFromContext(ctx)
	ctx, span := tracer.Start(ctx, "agent respond")
	defer span.End()
	span.SetAttributes(attribute.String("turn.id", turnID))

	working := append(a.snapshot(), llm.UserMessage(userText))
	tools := a.tools()
	for round := 0; ; round++ {
		input := llm.Context{Messages: a.contextMessages(working)}
		if round < a.opts.MaxToolRounds {
			input.Tools = tools
		}
		resp, err := a.generate(ctx, turnID, input)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return "", err
		}
		if len(resp.ToolCalls) == 0 || round >= a.opts.MaxToolRounds || a.dispatcher == nil {
			reply := strings.TrimSpace(resp.Text)
			if err := ctx.Err(); err != nil {
				return "", err
			}
			span.SetAttributes(attribute.Int("agent.tool_rounds", round))
			return reply, nil
		}
		names := make([]string, 0, len(resp.ToolCalls))
		for _, call := range resp.ToolCalls {
			names = append(names, call.Name)
		}
		span.SetAttributes(attribute.StringSlice("agent.tool_calls", names))
		results, err := a.dispatcher.Dispatch(ctx, turnID, resp.ToolCalls)
		if err != nil {
			return "", err
		}
		working = append(working, llm.AssistantToolCallMessage(resp.Text, resp.ToolCalls))
		failed := false
		for _, res := range results {
			working = append(working, llm.ToolResultMessage(res.Call.ID, res.Call.Name, res.Content))
			a.recordTool(turnID, res)
			if res.Status != StatusOK {
				failed = true
			}
		}
		if failed {
			working = append(working, llm.SystemMessage(toolFailureMessage))
		}
	}
}

func (a *Agent) generate(ctx context.Context, turnID string, input llm.Context) (llm.Response, error) {
	ctx, span := tracer.Start(ctx, "generate llm")
	defer span.End()
	start := time.Now()
	resp, err := llm.Retry(ctx, a.opts.Retry, func(ctx context.Context) (llm.Response, error) {
		return a.adapter.Generate(ctx, input)
	})
	if err != nil {
		if cerr := ctx.Err(); cerr != nil {
			return llm.Response{}, cerr
		}
		reason := errorsx.ReasonGenerate
		if resilience.IsRateLimit(err) {
			reason = errorsx.ReasonGenerateRateLimit
		}
		span.RecordError(err)
		return llm.Response{}, errorsx.Wrap(err, reason)
	}
	a.opts.Observer.RecordEvent(metrics.MetricsEvent{
		Name:  metrics.EventLLMUsage,
		Time:  time.Now(),
		Value: float64(time.Since(start).Milliseconds()),
		Tags: map[string]string{
			"turn_id":   turnID,
			"provider":  a.adapter.Name(),
			"component": "llm",
		},
		Fields: map[string]any{
			"prompt_tokens":     resp.Usage.PromptTokens,
			"completion_tokens": resp.Usage.CompletionTokens,
			"total_tokens":      resp.Usage.TotalTokens,
			"tool_calls":        len(resp.ToolCalls),
		},
	})
	a.logger.Debug("llm_generated", "turn_id", turnID, "provider", a.adapter.Name(),
		"tool_calls", len(resp.ToolCalls), redact.String("text", resp.Text))
	return resp, nil
}

func (a *Agent) recordTool(turnID string, res ToolResult) {
	fields := map[string]any{"tool": res.Call.Name, "status": res.Status}
	if res.Err != nil {
		fields["error"] = res.Err.Error()
	}
	a.opts.Observer.RecordEvent(metrics.MetricsEvent{
		Name:   metrics.EventToolCall,
		Time:   time.Now(),
		Value:  float64(res.Duration.Milliseconds()),
		Tags:   map[string]string{"turn_id": turnID, "component": "tools", "tool": res.Call.Name},
		Fields: fields,
	})
}

func (a *Agent) tools() []llm.Tool {
	if a.registry == nil {
		return nil
	}
	return a.registry.Tools()
}

func (a *Agent) contextMessages(working []map[string]any) []map[string]any {
	out := make([]map[string]any, 0, len(working)+1)
	out = append(out, llm.SystemMessage(a.opts.Instructions))
	return append(out, prune(working, 0, a.opts.MaxTokens)...)
}

// snapshot copies the committed history so tool rounds append to their own slice.
func (a *Agent) snapshot() []map[string]any {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []map[string]any
	if err := copier.Copy(&out, a.history); err != nil {
		a.logger.Warn("agent_history_copy_failed", "error", err)
		out = append(out, a.history...)
	}
	return out
}

// Commit appends a delivered exchange to the history. An empty reply records
// only the user's side.
func (a *Agent) Commit(userText, reply string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.history = append(a.history, llm.UserMessage(userText))
	if reply != "" {
		a.history = append(a.history, llm.AssistantMessage(reply))
	}
	a.history = prune(a.history, a.opts.MaxHistory, a.opts.MaxTokens)
}

// History returns a copy of the committed conversation.
func (a *Agent) History() []map[string]any {
	return a.snapshot()
}

// Reset forgets the conversation.
func (a *Agent) Reset() {
	a.mu.Lock()
	a.history = nil
	a.mu.Unlock()
}

// Describe summarises the agent for status output.
func (a *Agent) Describe() map[string]string {
	a.mu.Lock()
	n := len(a.history)
	a.mu.Unlock()
	return map[string]string{
		"provider": a.adapter.Name(),
		"history":  strconv.Itoa(n),
		"tools":    strconv.Itoa(len(a.tools())),
	}
}
