package asisten

import (
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"

	"github.com/harunnryd/asisten/pkg/adapters/stt"
	"github.com/harunnryd/asisten/pkg/adapters/tts"
	"github.com/harunnryd/asisten/pkg/llm"
	"github.com/harunnryd/asisten/pkg/metrics"
)

// Env carries per-session values a provider factory may need besides the config.
type Env struct {
	SessionID string
	Stdin     io.Reader
	Stdout    io.Writer
	Observer  metrics.Observer
	Logger    *slog.Logger
}

type STTFactory func(cfg Config, env Env) (stt.RecognitionStream, error)
type TTSFactory func(cfg Config, env Env) (tts.SpeechOutput, error)
type LLMFactory func(cfg Config, env Env) (llm.LLMAdapter, error)

type ProviderRegistry struct {
	stt map[string]STTFactory
	tts map[string]TTSFactory
	llm map[string]LLMFactory
}

func NewProviderRegistry() *ProviderRegistry {
	return &ProviderRegistry{
		stt: make(map[string]STTFactory),
		tts: make(map[string]TTSFactory),
		llm: make(map[string]LLMFactory),
	}
}

func providerKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func (r *ProviderRegistry) RegisterSTT(name string, factory STTFactory) {
	r.stt[providerKey(name)] = factory
}

func (r *ProviderRegistry) RegisterTTS(name string, factory TTSFactory) {
	r.tts[providerKey(name)] = factory
}

func (r *ProviderRegistry) RegisterLLM(name string, factory LLMFactory) {
	r.llm[providerKey(name)] = factory
}

func (r *ProviderRegistry) BuildSTT(provider string, cfg Config, env Env) (stt.RecognitionStream, error) {
	fn := r.stt[providerKey(provider)]
	if fn == nil {
		return nil, fmt.Errorf("stt provider not registered: %s", provider)
	}
	return fn(cfg, env)
}

func (r *ProviderRegistry) BuildTTS(provider string, cfg Config, env Env) (tts.SpeechOutput, error) {
	fn := r.tts[providerKey(provider)]
	if fn == nil {
		return nil, fmt.Errorf("tts provider not registered: %s", provider)
	}
	return fn(cfg, env)
}

func (r *ProviderRegistry) BuildLLM(provider string, cfg Config, env Env) (llm.LLMAdapter, error) {
	fn := r.llm[providerKey(provider)]
	if fn == nil {
		return nil, fmt.Errorf("llm provider not registered: %s", provider)
	}
	return fn(cfg, env)
}

// Providers lists registered names per kind, sorted.
func (r *ProviderRegistry) Providers() map[string][]string {
	out := map[string][]string{
		"stt": keys(r.stt),
		"tts": keys(r.tts),
		"llm": keys(r.llm),
	}
	return out
}

func keys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
