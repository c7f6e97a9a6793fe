package llm

import (
	"context"
	"encoding/json"
)

type Tool struct {
	Name        string
	Description string
	Schema      any
}

type Context struct {
	Messages []map[string]any
	Tools    []Tool
}

type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

type Response struct {
	Text         string
	Usage        Usage
	FinishReason string
	ToolCalls    []ToolCall
}

// LLMAdapter is implemented by every chat model vendor.
type LLMAdapter interface {
	Generate(ctx context.Context, input Context) (Response, error)
	MapTools(tools []Tool) (providerTools any, err error)
	Name() string
}

type ToolCall struct {
	ID        string
	Name      string
	Arguments map[string]any
}

// Message roles in the chat history.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

func SystemMessage(text string) map[string]any {
	return map[string]any{"role": RoleSystem, "content": text}
}

func UserMessage(text string) map[string]any {
	return map[string]any{"role": RoleUser, "content": text}
}

func AssistantMessage(text string) map[string]any {
	return map[string]any{"role": RoleAssistant, "content": text}
}

// AssistantToolCallMessage records the model's request to run calls, in the
// chat-completions shape every adapter understands.
func AssistantToolCallMessage(text string, calls []ToolCall) map[string]any {
	items := make([]map[string]any, 0, len(calls))
	for _, c := range calls {
		args, _ := json.Marshal(c.Arguments)
		items = append(items, map[string]any{
			"id":   c.ID,
			"type": "function",
			"function": map[string]any{
				"name":      c.Name,
				"arguments": string(args),
			},
		})
	}
	return map[string]any{"role": RoleAssistant, "content": text, "tool_calls": items}
}

// ToolResultMessage carries one tool result back to the model.
func ToolResultMessage(callID, name, content string) map[string]any {
	return map[string]any{"role": RoleTool, "tool_call_id": callID, "name": name, "content": content}
}

// Role returns the role of a history message.
func Role(msg map[string]any) string {
	role, _ := msg["role"].(string)
	return role
}

// Content returns the text content of a history message.
func Content(msg map[string]any) string {
	content, _ := msg["content"].(string)
	return content
}
