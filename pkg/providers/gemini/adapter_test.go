package gemini

import (
	"context"
	"testing"

	"google.golang.org/genai"

	"github.com/harunnryd/asisten/pkg/llm"
	"github.com/harunnryd/asisten/pkg/resilience"
)

type captureGenerator struct {
	contents []*genai.Content
	config   *genai.GenerateContentConfig
	resp     *genai.GenerateContentResponse
	err      error
}

func (c *captureGenerator) GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	c.contents = contents
	c.config = config
	return c.resp, c.err
}

func TestGenerateConvertsHistory(t *testing.T) {
	gen := &captureGenerator{resp: &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			FinishReason: genai.FinishReasonStop,
			Content:      &genai.Content{Role: genai.RoleModel, Parts: []*genai.Part{{Text: "Hace sol"}}},
		}},
		UsageMetadata: &genai.GenerateContentResponseUsageMetadata{PromptTokenCount: 3, CandidatesTokenCount: 2, TotalTokenCount: 5},
	}}
	a := &Adapter{Model: "gemini-2.0-flash", models: gen}
	resp, err := a.Generate(context.Background(), llm.Context{
		Messages: []map[string]any{
			llm.SystemMessage("Eres un asistente"),
			llm.UserMessage("¿Qué tiempo hace?"),
			llm.AssistantToolCallMessage("", []llm.ToolCall{{ID: "1", Name: "get_weather", Arguments: map[string]any{"location": "Lima"}}}),
			llm.ToolResultMessage("1", "get_weather", "soleado"),
		},
		Tools: []llm.Tool{{Name: "get_weather", Schema: map[string]any{"type": "object"}}},
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if resp.Text != "Hace sol" || resp.Usage.TotalTokens != 5 {
		t.Fatalf("unexpected response %+v", resp)
	}
	if gen.config.SystemInstruction == nil || gen.config.SystemInstruction.Parts[0].Text != "Eres un asistente" {
		t.Fatalf("expected system instruction")
	}
	if len(gen.contents) != 3 {
		t.Fatalf("expected 3 contents, got %d", len(gen.contents))
	}
	if gen.contents[1].Parts[0].FunctionCall == nil || gen.contents[1].Parts[0].FunctionCall.Args["location"] != "Lima" {
		t.Fatalf("expected function call part")
	}
	if gen.contents[2].Parts[0].FunctionResponse == nil {
		t.Fatalf("expected function response part")
	}
	if len(gen.config.Tools) != 1 {
		t.Fatalf("expected mapped tools")
	}
}

func TestGenerateMapsRateLimit(t *testing.T) {
	gen := &captureGenerator{err: genai.APIError{Code: 429, Message: "quota"}}
	a := &Adapter{Model: "m", models: gen}
	_, err := a.Generate(context.Background(), llm.Context{Messages: []map[string]any{llm.UserMessage("hola")}})
	if !resilience.IsRateLimit(err) {
		t.Fatalf("expected rate limit, got %v", err)
	}
}
