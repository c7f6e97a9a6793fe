package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/harunnryd/asisten/pkg/adapters/stt"
	"github.com/harunnryd/asisten/pkg/adapters/tts"
	"github.com/harunnryd/asisten/pkg/asisten"
	"github.com/harunnryd/asisten/pkg/configutil"
	"github.com/harunnryd/asisten/pkg/llm"
	"github.com/harunnryd/asisten/pkg/providers/console"
	"github.com/harunnryd/asisten/pkg/providers/deepgram"
	"github.com/harunnryd/asisten/pkg/providers/elevenlabs"
	"github.com/harunnryd/asisten/pkg/providers/gemini"
	"github.com/harunnryd/asisten/pkg/providers/mock"
	"github.com/harunnryd/asisten/pkg/providers/openai"
	"github.com/harunnryd/asisten/pkg/resilience"
)

type deepgramSettings struct {
	APIKey           string `mapstructure:"api_key"`
	Model            string `mapstructure:"model"`
	Language         string `mapstructure:"language"`
	SampleRate       int    `mapstructure:"sample_rate"`
	Encoding         string `mapstructure:"encoding"`
	Interim          *bool  `mapstructure:"interim"`
	VADEvents        *bool  `mapstructure:"vad_events"`
	EchoCancellation *bool  `mapstructure:"echo_cancellation"`
	UtteranceEndMS   *int   `mapstructure:"utterance_end_ms"`
	Source           string `mapstructure:"source"`
}

type consoleSTTSettings struct {
	EmitInterim    *bool `mapstructure:"emit_interim"`
	InterimDelayMS int   `mapstructure:"interim_delay_ms"`
}

type mockSTTSettings struct {
	Script     []string `mapstructure:"script"`
	IntervalMS int      `mapstructure:"interval_ms"`
}

type elevenlabsSettings struct {
	APIKey       string `mapstructure:"api_key"`
	VoiceID      string `mapstructure:"voice_id"`
	ModelID      string `mapstructure:"model_id"`
	OutputFormat string `mapstructure:"output_format"`
	SampleRate   int    `mapstructure:"sample_rate"`
	BaseURL      string `mapstructure:"base_url"`
	Sink         string `mapstructure:"sink"`
}

type consoleTTSSettings struct {
	WordDelayMS int    `mapstructure:"word_delay_ms"`
	Prefix      string `mapstructure:"prefix"`
}

type mockTTSSettings struct {
	DurationMS int `mapstructure:"duration_ms"`
}

type BreakerSettings struct {
	UseCircuitBreaker *bool `mapstructure:"use_circuit_breaker"`
	CircuitThreshold  int   `mapstructure:"circuit_threshold"`
	CircuitCooldownMs int   `mapstructure:"circuit_cooldown_ms"`
}

type openAISettings struct {
	APIKey      string  `mapstructure:"api_key"`
	Model       string  `mapstructure:"model"`
	BaseURL     string  `mapstructure:"base_url"`
	Temperature float64 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`

	BreakerSettings `mapstructure:",squash"`
}

type geminiSettings struct {
	APIKey      string  `mapstructure:"api_key"`
	Model       string  `mapstructure:"model"`
	Temperature float64 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`

	BreakerSettings `mapstructure:",squash"`
}

type mockLLMSettings struct {
	ResponseText string   `mapstructure:"response_text"`
	Responses    []string `mapstructure:"responses"`
	DelayMS      int      `mapstructure:"delay_ms"`
}

var breakerKeys = []string{"use_circuit_breaker", "circuit_threshold", "circuit_cooldown_ms"}

func registerProviders(reg *asisten.ProviderRegistry) {
	reg.RegisterSTT("deepgram", func(cfg asisten.Config, env asisten.Env) (stt.RecognitionStream, error) {
		if err := validateSettings("vendors.stt.settings", cfg.Vendors.STT.Settings, configutil.Schema{
			Required: []string{"api_key", "model"},
			Optional: []string{"language", "sample_rate", "encoding", "interim", "vad_events", "echo_cancellation", "utterance_end_ms", "source"},
		}); err != nil {
			return nil, err
		}
		var settings deepgramSettings
		if err := configutil.DecodeSettings(cfg.Vendors.STT.Settings, &settings); err != nil {
			return nil, err
		}
		if err := configutil.RequireString(settings.APIKey, "vendors.stt.settings.api_key"); err != nil {
			return nil, err
		}
		if err := configutil.RequireString(settings.Model, "vendors.stt.settings.model"); err != nil {
			return nil, err
		}
		if settings.Encoding != "" && !validDeepgramEncoding(settings.Encoding) {
			return nil, fmt.Errorf("vendors.stt.settings.encoding must be one of [linear16, mulaw], got %s", settings.Encoding)
		}
		utteranceEnd := configutil.Value(settings.UtteranceEndMS, 1000)
		if utteranceEnd < 0 || utteranceEnd > 5000 {
			return nil, fmt.Errorf("vendors.stt.settings.utterance_end_ms must be between 0 and 5000, got %d", utteranceEnd)
		}
		source, err := openSource(settings.Source, env.Stdin)
		if err != nil {
			return nil, err
		}
		return deepgram.New(deepgram.Config{
			APIKey:     settings.APIKey,
			Model:      settings.Model,
			Language:   configutil.StringOr(settings.Language, "es"),
			SampleRate: settings.SampleRate,
			Encoding:   settings.Encoding,
			Interim:    configutil.Value(settings.Interim, true),
			VADEvents:  configutil.Value(settings.VADEvents, true),
			SessionID:  env.SessionID,
			Params: deepgram.DeepgramParams{
				EchoCancellation: configutil.Value(settings.EchoCancellation, true),
				UtteranceEndMS:   utteranceEnd,
			},
			Source: source,
		}), nil
	})

	reg.RegisterSTT("console", func(cfg asisten.Config, env asisten.Env) (stt.RecognitionStream, error) {
		if err := validateSettings("vendors.stt.settings", cfg.Vendors.STT.Settings, configutil.Schema{
			Optional: []string{"emit_interim", "interim_delay_ms"},
		}); err != nil {
			return nil, err
		}
		var settings consoleSTTSettings
		if err := configutil.DecodeSettings(cfg.Vendors.STT.Settings, &settings); err != nil {
			return nil, err
		}
		in := env.Stdin
		if in == nil {
			in = os.Stdin
		}
		return console.NewSTT(console.STTConfig{
			Input:        in,
			EmitInterim:  configutil.Value(settings.EmitInterim, false),
			InterimDelay: configutil.Millis(settings.InterimDelayMS, 0),
		}), nil
	})

	reg.RegisterSTT("mock", func(cfg asisten.Config, env asisten.Env) (stt.RecognitionStream, error) {
		if err := validateSettings("vendors.stt.settings", cfg.Vendors.STT.Settings, configutil.Schema{
			Optional: []string{"script", "interval_ms"},
		}); err != nil {
			return nil, err
		}
		var settings mockSTTSettings
		if err := configutil.DecodeSettings(cfg.Vendors.STT.Settings, &settings); err != nil {
			return nil, err
		}
		script := make([]stt.Event, 0, len(settings.Script))
		for _, line := range settings.Script {
			script = append(script, stt.Final(line))
		}
		return mock.NewSTT(mock.STTConfig{
			Script:   script,
			Interval: configutil.Millis(settings.IntervalMS, 500*time.Millisecond),
		}), nil
	})

	reg.RegisterTTS("elevenlabs", func(cfg asisten.Config, env asisten.Env) (tts.SpeechOutput, error) {
		if err := validateSettings("vendors.tts.settings", cfg.Vendors.TTS.Settings, configutil.Schema{
			Required: []string{"api_key", "voice_id"},
			Optional: []string{"model_id", "output_format", "sample_rate", "base_url", "sink"},
		}); err != nil {
			return nil, err
		}
		var settings elevenlabsSettings
		if err := configutil.DecodeSettings(cfg.Vendors.TTS.Settings, &settings); err != nil {
			return nil, err
		}
		if err := configutil.RequireString(settings.APIKey, "vendors.tts.settings.api_key"); err != nil {
			return nil, err
		}
		if err := configutil.RequireString(settings.VoiceID, "vendors.tts.settings.voice_id"); err != nil {
			return nil, err
		}
		sink, err := openSink(settings.Sink)
		if err != nil {
			return nil, err
		}
		out := elevenlabs.New(elevenlabs.Config{
			APIKey:       settings.APIKey,
			VoiceID:      settings.VoiceID,
			ModelID:      settings.ModelID,
			OutputFormat: configutil.StringOr(settings.OutputFormat, "pcm_16000"),
			SampleRate:   settings.SampleRate,
			SessionID:    env.SessionID,
			BaseURL:      settings.BaseURL,
			Sink:         sink,
		})
		if env.Observer != nil {
			out.SetObserver(env.Observer)
		}
		return out, nil
	})

	reg.RegisterTTS("console", func(cfg asisten.Config, env asisten.Env) (tts.SpeechOutput, error) {
		if err := validateSettings("vendors.tts.settings", cfg.Vendors.TTS.Settings, configutil.Schema{
			Optional: []string{"word_delay_ms", "prefix"},
		}); err != nil {
			return nil, err
		}
		var settings consoleTTSSettings
		if err := configutil.DecodeSettings(cfg.Vendors.TTS.Settings, &settings); err != nil {
			return nil, err
		}
		out := env.Stdout
		if out == nil {
			out = os.Stdout
		}
		return console.NewTTS(console.TTSConfig{
			Output:    out,
			WordDelay: configutil.Millis(settings.WordDelayMS, 0),
			Prefix:    settings.Prefix,
		}), nil
	})

	reg.RegisterTTS("mock", func(cfg asisten.Config, env asisten.Env) (tts.SpeechOutput, error) {
		if err := validateSettings("vendors.tts.settings", cfg.Vendors.TTS.Settings, configutil.Schema{
			Optional: []string{"duration_ms"},
		}); err != nil {
			return nil, err
		}
		var settings mockTTSSettings
		if err := configutil.DecodeSettings(cfg.Vendors.TTS.Settings, &settings); err != nil {
			return nil, err
		}
		return mock.NewTTS(mock.TTSConfig{Duration: configutil.Millis(settings.DurationMS, 0)}), nil
	})

	reg.RegisterLLM("openai", func(cfg asisten.Config, env asisten.Env) (llm.LLMAdapter, error) {
		if err := validateSettings("vendors.llm.settings", cfg.Vendors.LLM.Settings, configutil.Schema{
			Required: []string{"api_key", "model"},
			Optional: append([]string{"base_url", "temperature", "max_tokens"}, breakerKeys...),
		}); err != nil {
			return nil, err
		}
		var settings openAISettings
		if err := configutil.DecodeSettings(cfg.Vendors.LLM.Settings, &settings); err != nil {
			return nil, err
		}
		if err := configutil.RequireString(settings.APIKey, "vendors.llm.settings.api_key"); err != nil {
			return nil, err
		}
		if err := configutil.RequireString(settings.Model, "vendors.llm.settings.model"); err != nil {
			return nil, err
		}
		adapter := openai.NewAdapter(settings.APIKey, settings.Model)
		if settings.BaseURL != "" {
			adapter.BaseURL = settings.BaseURL
		}
		adapter.Temperature = settings.Temperature
		adapter.MaxTokens = settings.MaxTokens
		return withBreaker(adapter, settings.BreakerSettings), nil
	})

	reg.RegisterLLM("gemini", func(cfg asisten.Config, env asisten.Env) (llm.LLMAdapter, error) {
		if err := validateSettings("vendors.llm.settings", cfg.Vendors.LLM.Settings, configutil.Schema{
			Required: []string{"api_key", "model"},
			Optional: append([]string{"temperature", "max_tokens"}, breakerKeys...),
		}); err != nil {
			return nil, err
		}
		var settings geminiSettings
		if err := configutil.DecodeSettings(cfg.Vendors.LLM.Settings, &settings); err != nil {
			return nil, err
		}
		if err := configutil.RequireString(settings.APIKey, "vendors.llm.settings.api_key"); err != nil {
			return nil, err
		}
		if err := configutil.RequireString(settings.Model, "vendors.llm.settings.model"); err != nil {
			return nil, err
		}
		adapter, err := gemini.NewAdapter(context.Background(), settings.APIKey, settings.Model, nil)
		if err != nil {
			return nil, err
		}
		adapter.Temperature = float32(settings.Temperature)
		adapter.MaxTokens = int32(settings.MaxTokens)
		return withBreaker(adapter, settings.BreakerSettings), nil
	})

	reg.RegisterLLM("mock", func(cfg asisten.Config, env asisten.Env) (llm.LLMAdapter, error) {
		if err := validateSettings("vendors.llm.settings", cfg.Vendors.LLM.Settings, configutil.Schema{
			Optional: []string{"response_text", "responses", "delay_ms"},
		}); err != nil {
			return nil, err
		}
		var settings mockLLMSettings
		if err := configutil.DecodeSettings(cfg.Vendors.LLM.Settings, &settings); err != nil {
			return nil, err
		}
		responses := make([]llm.Response, 0, len(settings.Responses))
		for _, text := range settings.Responses {
			responses = append(responses, llm.Response{Text: text})
		}
		return mock.NewLLMAdapter(mock.LLMConfig{
			ResponseText: settings.ResponseText,
			Responses:    responses,
			Delay:        configutil.Millis(settings.DelayMS, 0),
		}), nil
	})
}

func withBreaker(adapter llm.LLMAdapter, settings BreakerSettings) llm.LLMAdapter {
	if !configutil.Value(settings.UseCircuitBreaker, true) {
		return adapter
	}
	threshold := settings.CircuitThreshold
	if threshold == 0 {
		threshold = 3
	}
	cooldown := configutil.Millis(settings.CircuitCooldownMs, 30*time.Second)
	return llm.NewCircuitBreakerAdapter(adapter, resilience.NewCircuitBreaker(threshold, cooldown))
}

func validateSettings(path string, input map[string]any, schema configutil.Schema) error {
	return schema.Validate(path, input)
}

func validDeepgramEncoding(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "linear16", "mulaw":
		return true
	default:
		return false
	}
}

// openSource resolves where raw microphone audio comes from: "stdin", a file
// path, or nothing.
func openSource(source string, stdin io.Reader) (io.Reader, error) {
	switch strings.TrimSpace(source) {
	case "":
		return nil, nil
	case "stdin", "-":
		if stdin == nil {
			return os.Stdin, nil
		}
		return stdin, nil
	default:
		f, err := os.Open(source)
		if err != nil {
			return nil, fmt.Errorf("vendors.stt.settings.source: %w", err)
		}
		return f, nil
	}
}

func openSink(sink string) (io.Writer, error) {
	switch strings.TrimSpace(sink) {
	case "":
		return io.Discard, nil
	case "stdout", "-":
		return os.Stdout, nil
	default:
		f, err := os.Create(sink)
		if err != nil {
			return nil, fmt.Errorf("vendors.tts.settings.sink: %w", err)
		}
		return f, nil
	}
}
