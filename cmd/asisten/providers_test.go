package main

import (
	"strings"
	"testing"

	"github.com/harunnryd/asisten/pkg/asisten"
	"github.com/harunnryd/asisten/pkg/llm"
)

func configWith(stt, tts, llmName string, settings map[string]any) asisten.Config {
	cfg := asisten.DefaultConfig()
	cfg.Vendors.STT = asisten.VendorConfig{Provider: stt}
	cfg.Vendors.TTS = asisten.VendorConfig{Provider: tts}
	cfg.Vendors.LLM = asisten.VendorConfig{Provider: llmName, Settings: settings}
	return cfg
}

func TestRegisterProvidersCoversEveryVendor(t *testing.T) {
	reg := asisten.NewProviderRegistry()
	registerProviders(reg)
	names := reg.Providers()
	want := map[string][]string{
		"stt": {"console", "deepgram", "mock"},
		"tts": {"console", "elevenlabs", "mock"},
		"llm": {"gemini", "mock", "openai"},
	}
	for kind, list := range want {
		if strings.Join(names[kind], ",") != strings.Join(list, ",") {
			t.Fatalf("%s providers = %v, want %v", kind, names[kind], list)
		}
	}
}

func TestOpenAIProviderWrapsBreakerByDefault(t *testing.T) {
	reg := asisten.NewProviderRegistry()
	registerProviders(reg)
	cfg := configWith("mock", "mock", "openai", map[string]any{"api_key": "sk-test", "model": "gpt-4o-mini"})
	adapter, err := reg.BuildLLM("openai", cfg, asisten.Env{})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if _, ok := adapter.(*llm.CircuitBreakerAdapter); !ok {
		t.Fatalf("expected breaker wrapper, got %T", adapter)
	}

	cfg.Vendors.LLM.Settings["use_circuit_breaker"] = false
	adapter, err = reg.BuildLLM("openai", cfg, asisten.Env{})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if _, ok := adapter.(*llm.CircuitBreakerAdapter); ok {
		t.Fatalf("expected bare adapter")
	}
}

func TestProviderSettingsValidation(t *testing.T) {
	reg := asisten.NewProviderRegistry()
	registerProviders(reg)

	cfg := configWith("mock", "mock", "openai", map[string]any{"model": "gpt-4o-mini"})
	if _, err := reg.BuildLLM("openai", cfg, asisten.Env{}); err == nil || !strings.Contains(err.Error(), "missing: api_key") {
		t.Fatalf("expected missing api_key, got %v", err)
	}

	cfg = configWith("mock", "mock", "mock", map[string]any{"tool_calls": []any{}})
	if _, err := reg.BuildLLM("mock", cfg, asisten.Env{}); err == nil || !strings.Contains(err.Error(), "unknown: tool_calls") {
		t.Fatalf("expected unknown key error, got %v", err)
	}

	cfg = configWith("deepgram", "mock", "mock", nil)
	cfg.Vendors.STT.Settings = map[string]any{"api_key": "k", "model": "nova-2", "encoding": "opus"}
	if _, err := reg.BuildSTT("deepgram", cfg, asisten.Env{}); err == nil || !strings.Contains(err.Error(), "encoding") {
		t.Fatalf("expected encoding error, got %v", err)
	}

	cfg = configWith("mock", "elevenlabs", "mock", nil)
	cfg.Vendors.TTS.Settings = map[string]any{"api_key": "k"}
	if _, err := reg.BuildTTS("elevenlabs", cfg, asisten.Env{}); err == nil || !strings.Contains(err.Error(), "voice_id") {
		t.Fatalf("expected voice_id error, got %v", err)
	}
}

func TestConsoleAndMockProvidersBuild(t *testing.T) {
	reg := asisten.NewProviderRegistry()
	registerProviders(reg)
	var out strings.Builder
	env := asisten.Env{Stdin: strings.NewReader("hola\n"), Stdout: &out}

	cfg := configWith("console", "console", "mock", map[string]any{"responses": []any{"uno", "dos"}})
	cfg.Vendors.STT.Settings = map[string]any{"emit_interim": true}
	cfg.Vendors.TTS.Settings = map[string]any{"prefix": "> "}

	if recog, err := reg.BuildSTT("console", cfg, env); err != nil || recog == nil {
		t.Fatalf("console stt: %v", err)
	}
	if speech, err := reg.BuildTTS("console", cfg, env); err != nil || speech == nil {
		t.Fatalf("console tts: %v", err)
	}
	adapter, err := reg.BuildLLM("mock", cfg, env)
	if err != nil {
		t.Fatalf("mock llm: %v", err)
	}
	resp, err := adapter.Generate(t.Context(), llm.Context{})
	if err != nil || resp.Text != "uno" {
		t.Fatalf("expected first scripted response, got %q %v", resp.Text, err)
	}

	cfg.Vendors.STT.Settings = map[string]any{"script": []any{"hola", "salir"}, "interval_ms": 10}
	if _, err := reg.BuildSTT("mock", cfg, env); err != nil {
		t.Fatalf("mock stt: %v", err)
	}
}
