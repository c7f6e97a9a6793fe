package llm

import "context"

// ToolRegistry exposes callable tools to the model.
type ToolRegistry interface {
	Tools() []Tool
	HandleTool(ctx context.Context, name string, args map[string]any) (string, error)
}
