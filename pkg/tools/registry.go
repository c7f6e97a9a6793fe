package tools

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/invopop/jsonschema"
	"github.com/mitchellh/mapstructure"

	"github.com/harunnryd/asisten/pkg/errorsx"
	"github.com/harunnryd/asisten/pkg/llm"
)

// Handler runs one tool call.
type Handler func(ctx context.Context, args map[string]any) (string, error)

// Registry maps tool names to handlers and exposes their schemas to the model.
type Registry struct {
	mu       sync.RWMutex
	tools    map[string]llm.Tool
	handlers map[string]Handler
}

func NewRegistry() *Registry {
	return &Registry{tools: map[string]llm.Tool{}, handlers: map[string]Handler{}}
}

// Register adds or replaces a tool.
func (r *Registry) Register(tool llm.Tool, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Name] = tool
	r.handlers[tool.Name] = h
}

// Tools returns the registered tools sorted by name.
func (r *Registry) Tools() []llm.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]llm.Tool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (r *Registry) HandleTool(ctx context.Context, name string, args map[string]any) (string, error) {
	r.mu.RLock()
	h := r.handlers[name]
	r.mu.RUnlock()
	if h == nil {
		return "", errorsx.New(errorsx.ReasonToolUnknown, fmt.Sprintf("unknown tool %q", name))
	}
	return h(ctx, args)
}

var _ llm.ToolRegistry = (*Registry)(nil)

// SchemaFor reflects the JSON schema of an argument struct.
func SchemaFor(v any) *jsonschema.Schema {
	reflector := jsonschema.Reflector{DoNotReference: true, Anonymous: true}
	schema := reflector.Reflect(v)
	schema.Version = ""
	return schema
}

// decodeArgs decodes model arguments into a struct using its json tags.
func decodeArgs(args map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	return dec.Decode(args)
}
