package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/genai"

	"github.com/harunnryd/asisten/pkg/llm"
	"github.com/harunnryd/asisten/pkg/resilience"
)

// generator is the slice of *genai.Models the adapter calls.
type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

type Adapter struct {
	Model       string
	Temperature float32
	MaxTokens   int32
	models      generator
}

// NewAdapter builds a Gemini API client. httpClient may be nil.
func NewAdapter(ctx context.Context, apiKey, model string, httpClient *http.Client) (*Adapter, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: httpClient,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	return &Adapter{Model: model, models: client.Models}, nil
}

func (a *Adapter) Name() string { return "gemini" }

func (a *Adapter) MapTools(tools []llm.Tool) (any, error) {
	if len(tools) == 0 {
		return nil, nil
	}
	decls := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, t := range tools {
		decls = append(decls, &genai.FunctionDeclaration{
			Name:                 t.Name,
			Description:          t.Description,
			ParametersJsonSchema: t.Schema,
		})
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}, nil
}

func (a *Adapter) Generate(ctx context.Context, input llm.Context) (llm.Response, error) {
	if a.models == nil {
		return llm.Response{}, errors.New("gemini: adapter not initialized")
	}
	system, contents := toContents(input.Messages)
	cfg := &genai.GenerateContentConfig{SystemInstruction: system}
	if a.Temperature > 0 {
		cfg.Temperature = genai.Ptr(a.Temperature)
	}
	if a.MaxTokens > 0 {
		cfg.MaxOutputTokens = a.MaxTokens
	}
	if len(input.Tools) > 0 {
		mapped, err := a.MapTools(input.Tools)
		if err != nil {
			return llm.Response{}, err
		}
		cfg.Tools, _ = mapped.([]*genai.Tool)
	}
	resp, err := a.models.GenerateContent(ctx, a.Model, contents, cfg)
	if err != nil {
		return llm.Response{}, mapError(err)
	}
	out := llm.Response{Text: resp.Text()}
	for _, call := range resp.FunctionCalls() {
		out.ToolCalls = append(out.ToolCalls, llm.ToolCall{ID: call.ID, Name: call.Name, Arguments: call.Args})
	}
	if len(resp.Candidates) > 0 {
		out.FinishReason = string(resp.Candidates[0].FinishReason)
	}
	if u := resp.UsageMetadata; u != nil {
		out.Usage = llm.Usage{
			PromptTokens:     int(u.PromptTokenCount),
			CompletionTokens: int(u.CandidatesTokenCount),
			TotalTokens:      int(u.TotalTokenCount),
		}
	}
	return out, nil
}

// toContents converts chat-completions style history into Gemini contents.
// System messages are merged into the system instruction.
func toContents(messages []map[string]any) (*genai.Content, []*genai.Content) {
	var system *genai.Content
	contents := make([]*genai.Content, 0, len(messages))
	for _, msg := range messages {
		switch llm.Role(msg) {
		case llm.RoleSystem:
			if system == nil {
				system = &genai.Content{}
			}
			system.Parts = append(system.Parts, &genai.Part{Text: llm.Content(msg)})
		case llm.RoleUser:
			contents = append(contents, genai.NewContentFromText(llm.Content(msg), genai.RoleUser))
		case llm.RoleAssistant:
			c := &genai.Content{Role: genai.RoleModel}
			if text := llm.Content(msg); text != "" {
				c.Parts = append(c.Parts, &genai.Part{Text: text})
			}
			for _, call := range toolCalls(msg) {
				c.Parts = append(c.Parts, &genai.Part{FunctionCall: &genai.FunctionCall{ID: call.ID, Name: call.Name, Args: call.Arguments}})
			}
			if len(c.Parts) > 0 {
				contents = append(contents, c)
			}
		case llm.RoleTool:
			name, _ := msg["name"].(string)
			id, _ := msg["tool_call_id"].(string)
			contents = append(contents, &genai.Content{
				Role: genai.RoleUser,
				Parts: []*genai.Part{{FunctionResponse: &genai.FunctionResponse{
					ID:       id,
					Name:     name,
					Response: map[string]any{"output": llm.Content(msg)},
				}}},
			})
		}
	}
	return system, contents
}

func toolCalls(msg map[string]any) []llm.ToolCall {
	items, _ := msg["tool_calls"].([]map[string]any)
	out := make([]llm.ToolCall, 0, len(items))
	for _, item := range items {
		fn, _ := item["function"].(map[string]any)
		id, _ := item["id"].(string)
		name, _ := fn["name"].(string)
		raw, _ := fn["arguments"].(string)
		args := map[string]any{}
		_ = json.Unmarshal([]byte(raw), &args)
		out = append(out, llm.ToolCall{ID: id, Name: name, Arguments: args})
	}
	return out
}

func mapError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Code == http.StatusTooManyRequests {
			return resilience.RateLimitError{Provider: "gemini", Message: apiErr.Message}
		}
		return llm.StatusError{Provider: "gemini", Code: apiErr.Code, Body: apiErr.Message}
	}
	return err
}

var _ llm.LLMAdapter = (*Adapter)(nil)
