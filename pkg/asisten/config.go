package asisten

import (
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/spf13/viper"

	"github.com/harunnryd/asisten/pkg/errorsx"
	"github.com/harunnryd/asisten/pkg/turn"
)

type Config struct {
	Environment   string              `mapstructure:"environment"`
	LogLevel      string              `mapstructure:"log_level"`
	LogFormat     string              `mapstructure:"log_format"`
	Vendors       VendorsConfig       `mapstructure:"vendors"`
	Assistant     AssistantConfig     `mapstructure:"assistant"`
	Turn          TurnConfig          `mapstructure:"turn"`
	Agent         AgentConfig         `mapstructure:"agent"`
	Tools         ToolsConfig         `mapstructure:"tools"`
	Text          TextConfig          `mapstructure:"text"`
	HTTP          HTTPConfig          `mapstructure:"http"`
	Journal       JournalConfig       `mapstructure:"journal"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	Privacy       PrivacyConfig       `mapstructure:"privacy"`
}

type VendorConfig struct {
	Provider string         `mapstructure:"provider"`
	Settings map[string]any `mapstructure:"settings"`
}

type VendorsConfig struct {
	STT VendorConfig `mapstructure:"stt"`
	TTS VendorConfig `mapstructure:"tts"`
	LLM VendorConfig `mapstructure:"llm"`
}

type AssistantConfig struct {
	ExitKeywords   []string `mapstructure:"exit_keywords"`
	Farewell       string   `mapstructure:"farewell"`
	ApologyFormat  string   `mapstructure:"apology_format"`
	NoMatchMessage string   `mapstructure:"no_match_message"`
	StopTimeoutMS  int      `mapstructure:"stop_timeout_ms"`
}

type TurnConfig struct {
	Strategy        string `mapstructure:"strategy"`
	MinInterimWords int    `mapstructure:"min_interim_words"`
}

type AgentConfig struct {
	Instructions  string `mapstructure:"instructions"`
	MaxHistory    int    `mapstructure:"max_history"`
	MaxTokens     int    `mapstructure:"max_tokens"`
	MaxToolRounds int    `mapstructure:"max_tool_rounds"`
	RetryAttempts int    `mapstructure:"retry_attempts"`
}

type SMSConfig struct {
	AccountSID string `mapstructure:"account_sid"`
	AuthToken  string `mapstructure:"auth_token"`
	From       string `mapstructure:"from"`
}

type ToolsConfig struct {
	Enabled          []string  `mapstructure:"enabled"`
	Concurrency      int       `mapstructure:"concurrency"`
	TimeoutMS        int       `mapstructure:"timeout_ms"`
	Retries          int       `mapstructure:"retries"`
	RetryBackoffMS   int       `mapstructure:"retry_backoff_ms"`
	WeatherBaseURL   string    `mapstructure:"weather_base_url"`
	GeocodingBaseURL string    `mapstructure:"geocoding_base_url"`
	SMS              SMSConfig `mapstructure:"sms"`
}

type TextConfig struct {
	Replacements map[string]string `mapstructure:"replacements"`
	// MaxChars and MaxSentences trim replies before they are published and
	// spoken. Zero disables the bound.
	MaxChars     int `mapstructure:"max_chars"`
	MaxSentences int `mapstructure:"max_sentences"`
}

type HTTPConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

type JournalConfig struct {
	Driver       string `mapstructure:"driver"`
	DSN          string `mapstructure:"dsn"`
	HistoryLimit int    `mapstructure:"history_limit"`
}

type ObservabilityConfig struct {
	ArtifactsDir  string  `mapstructure:"artifacts_dir"`
	RetentionDays int     `mapstructure:"retention_days"`
	SampleRate    float64 `mapstructure:"sample_rate"`
	MetricsBuffer int     `mapstructure:"metrics_buffer"`
}

type PrivacyConfig struct {
	RedactPII bool `mapstructure:"redact_pii"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("assistant.exit_keywords", []string{"exit", "salir"})
	v.SetDefault("assistant.farewell", "Hasta luego. ¡Que tengas un buen día!")
	v.SetDefault("assistant.apology_format", "Lo siento, ocurrió un error: %s")
	v.SetDefault("assistant.no_match_message", "No se pudo reconocer el audio")
	v.SetDefault("assistant.stop_timeout_ms", 2000)
	v.SetDefault("turn.strategy", "aggressive")
	v.SetDefault("turn.min_interim_words", 2)
	v.SetDefault("agent.instructions", "")
	v.SetDefault("agent.max_history", 20)
	v.SetDefault("agent.max_tokens", 0)
	v.SetDefault("agent.max_tool_rounds", 4)
	v.SetDefault("agent.retry_attempts", 3)
	v.SetDefault("tools.concurrency", 4)
	v.SetDefault("tools.timeout_ms", 6000)
	v.SetDefault("tools.retries", 1)
	v.SetDefault("tools.retry_backoff_ms", 200)
	v.SetDefault("text.max_chars", 0)
	v.SetDefault("text.max_sentences", 0)
	v.SetDefault("http.enabled", false)
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("journal.driver", "memory")
	v.SetDefault("journal.history_limit", 100)
	v.SetDefault("observability.artifacts_dir", "")
	v.SetDefault("observability.retention_days", 0)
	v.SetDefault("observability.sample_rate", 1.0)
	v.SetDefault("observability.metrics_buffer", 2048)
	v.SetDefault("privacy.redact_pii", true)
}

// DefaultConfig returns the configuration used when no file sets a key.
func DefaultConfig() Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	return cfg
}

func LoadConfig(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return Config{}, errorsx.Wrap(fmt.Errorf("read config: %w", err), errorsx.ReasonConfig)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, errorsx.Wrap(fmt.Errorf("unmarshal: %w", err), errorsx.ReasonConfig)
	}

	expandEnvStrings(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, errorsx.Wrap(fmt.Errorf("validate config: %w", err), errorsx.ReasonConfig)
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.Vendors.STT.Provider) == "" {
		return fmt.Errorf("vendors.stt.provider is required")
	}
	if strings.TrimSpace(c.Vendors.TTS.Provider) == "" {
		return fmt.Errorf("vendors.tts.provider is required")
	}
	if strings.TrimSpace(c.Vendors.LLM.Provider) == "" {
		return fmt.Errorf("vendors.llm.provider is required")
	}
	if c.Assistant.ApologyFormat != "" && !strings.Contains(c.Assistant.ApologyFormat, "%s") {
		return fmt.Errorf("assistant.apology_format must contain %%s")
	}
	if _, err := turn.StrategyByName(c.Turn.Strategy, c.Turn.MinInterimWords); err != nil {
		return fmt.Errorf("turn.strategy: %w", err)
	}
	switch strings.ToLower(strings.TrimSpace(c.Journal.Driver)) {
	case "", "memory":
	case "postgres", "pgx":
		if strings.TrimSpace(c.Journal.DSN) == "" {
			return fmt.Errorf("journal.dsn is required for driver %q", c.Journal.Driver)
		}
	default:
		return fmt.Errorf("journal.driver %q is not supported", c.Journal.Driver)
	}
	if c.Observability.SampleRate < 0 || c.Observability.SampleRate > 1 {
		return fmt.Errorf("observability.sample_rate must be within [0, 1]")
	}
	if c.HTTP.Enabled && strings.TrimSpace(c.HTTP.Addr) == "" {
		return fmt.Errorf("http.addr is required when http.enabled is set")
	}
	return nil
}

func expandEnvStrings(cfg *Config) {
	expandValue(reflect.ValueOf(cfg))
	cfg.Vendors.STT.Settings = expandSettings(cfg.Vendors.STT.Settings)
	cfg.Vendors.TTS.Settings = expandSettings(cfg.Vendors.TTS.Settings)
	cfg.Vendors.LLM.Settings = expandSettings(cfg.Vendors.LLM.Settings)
}

func expandSettings(settings map[string]any) map[string]any {
	if settings == nil {
		return nil
	}
	for k, v := range settings {
		settings[k] = expandAny(v)
	}
	return settings
}

func expandAny(v any) any {
	switch val := v.(type) {
	case string:
		return os.ExpandEnv(val)
	case []any:
		for i := range val {
			val[i] = expandAny(val[i])
		}
		return val
	case map[string]any:
		for k, v := range val {
			val[k] = expandAny(v)
		}
		return val
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, v := range val {
			ks, ok := k.(string)
			if !ok {
				continue
			}
			out[ks] = expandAny(v)
		}
		return out
	default:
		return v
	}
}

func expandValue(v reflect.Value) {
	if !v.IsValid() {
		return
	}
	if v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return
		}
		expandValue(v.Elem())
		return
	}
	switch v.Kind() {
	case reflect.Struct:
		for i := 0; i < v.NumField(); i++ {
			expandValue(v.Field(i))
		}
	case reflect.String:
		if v.CanSet() {
			v.SetString(os.ExpandEnv(v.String()))
		}
	case reflect.Slice, reflect.Array:
		for i := 0; i < v.Len(); i++ {
			expandValue(v.Index(i))
		}
	case reflect.Map:
		if v.Type().Key().Kind() == reflect.String && v.Type().Elem().Kind() == reflect.String {
			for _, key := range v.MapKeys() {
				val := v.MapIndex(key)
				v.SetMapIndex(key, reflect.ValueOf(os.ExpandEnv(val.String())))
			}
		}
	}
}
