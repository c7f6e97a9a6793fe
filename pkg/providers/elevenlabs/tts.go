package elevenlabs

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/harunnryd/asisten/pkg/adapters/tts"
	"github.com/harunnryd/asisten/pkg/errorsx"
	"github.com/harunnryd/asisten/pkg/logging"
	"github.com/harunnryd/asisten/pkg/metrics"
	"github.com/harunnryd/asisten/pkg/resilience"
)

const DefaultBaseURL = "wss://api.elevenlabs.io"

type Config struct {
	APIKey       string
	VoiceID      string
	ModelID      string
	OutputFormat string
	SampleRate   int
	SessionID    string
	BaseURL      string
	// Sink receives decoded audio. Defaults to io.Discard.
	Sink io.Writer
}

// SpeechOutput opens one stream-input websocket per utterance and writes the
// returned audio to the sink until ElevenLabs marks the stream final.
type SpeechOutput struct {
	cfg     Config
	logger  *slog.Logger
	breaker *resilience.CircuitBreaker

	mu      sync.Mutex
	obs     metrics.Observer
	current *utterance
}

type utterance struct {
	conn    *websocket.Conn
	stopped chan struct{}
	once    sync.Once
}

func (u *utterance) stop() {
	u.once.Do(func() { close(u.stopped) })
}

func New(cfg Config) *SpeechOutput {
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 44100
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Sink == nil {
		cfg.Sink = io.Discard
	}
	return &SpeechOutput{
		cfg:     cfg,
		logger:  logging.NewComponentLogger(slog.Default(), "elevenlabs_tts"),
		breaker: resilience.NewCircuitBreaker(3, 30*time.Second),
	}
}

func (s *SpeechOutput) Name() string { return "elevenlabs_tts" }

// SetObserver allows metrics emission for breaker events.
func (s *SpeechOutput) SetObserver(obs metrics.Observer) {
	s.mu.Lock()
	s.obs = obs
	s.mu.Unlock()
}

func (s *SpeechOutput) Speak(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if s.cfg.APIKey == "" || s.cfg.VoiceID == "" {
		return errorsx.New(errorsx.ReasonSpeakConnect, "missing elevenlabs config")
	}
	if !s.breaker.Allow() {
		s.record(metrics.EventBreakerDenied)
		return errorsx.Wrap(resilience.RateLimitError{Provider: "elevenlabs", Message: "circuit open"}, errorsx.ReasonSpeakCircuitOpen)
	}
	conn, err := s.dial(ctx)
	if err != nil {
		s.breaker.OnError(err)
		if resilience.IsRateLimit(err) {
			s.record(metrics.EventRateLimit)
			return errorsx.Wrap(err, errorsx.ReasonSpeakRateLimit)
		}
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		return errorsx.Wrap(err, errorsx.ReasonSpeakConnect)
	}
	u := &utterance{conn: conn, stopped: make(chan struct{})}
	s.mu.Lock()
	if prev := s.current; prev != nil {
		prev.stop()
	}
	s.current = u
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		if s.current == u {
			s.current = nil
		}
		s.mu.Unlock()
		_ = conn.Close()
	}()

	done := make(chan error, 1)
	go func() { done <- s.stream(conn, u, text) }()

	select {
	case err := <-done:
		if err != nil {
			s.breaker.OnError(err)
			return errorsx.Wrap(err, errorsx.ReasonSpeak)
		}
		s.breaker.OnSuccess()
		return nil
	case <-ctx.Done():
		u.stop()
		s.abort(conn)
		return ctx.Err()
	case <-u.stopped:
		s.abort(conn)
		return tts.ErrSpeechStopped
	}
}

// StopSpeaking aborts the utterance in flight, if any.
func (s *SpeechOutput) StopSpeaking(ctx context.Context) error {
	s.mu.Lock()
	u := s.current
	s.mu.Unlock()
	if u == nil {
		return nil
	}
	s.logger.Info("tts stop requested", slog.String("session_id", s.cfg.SessionID))
	u.stop()
	return nil
}

func (s *SpeechOutput) dial(ctx context.Context) (*websocket.Conn, error) {
	u, err := s.buildURL()
	if err != nil {
		return nil, err
	}
	s.logger.Debug("connecting to ElevenLabs", slog.String("output_format", s.cfg.OutputFormat))
	dialer := websocket.Dialer{Proxy: http.ProxyFromEnvironment, HandshakeTimeout: 10 * time.Second}
	conn, resp, err := dialer.DialContext(ctx, u, http.Header{
		"xi-api-key": []string{s.cfg.APIKey},
	})
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusTooManyRequests {
			s.logger.Error("ElevenLabs rate limit exceeded", slog.String("status", resp.Status))
			return nil, resilience.RateLimitError{Provider: "elevenlabs", Message: resp.Status}
		}
		s.logger.Error("failed to connect to ElevenLabs", slog.String("error", err.Error()))
		return nil, err
	}
	return conn, nil
}

// stream sends the whole utterance then copies audio to the sink.
func (s *SpeechOutput) stream(conn *websocket.Conn, u *utterance, text string) error {
	init := map[string]any{
		"text":                   " ",
		"try_trigger_generation": true,
		"voice_settings": map[string]any{
			"stability":        0.5,
			"similarity_boost": 0.8,
		},
		"generation_config": map[string]any{
			"chunk_length_schedule": []int{120, 160, 250, 290},
		},
	}
	for _, payload := range []map[string]any{init, {"text": text + " ", "flush": true}, {"text": ""}} {
		if err := writeJSON(conn, payload); err != nil {
			return err
		}
	}
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			return err
		}
		final, err := s.handleMessage(u, data)
		if err != nil {
			return err
		}
		if final {
			return nil
		}
	}
}

func (s *SpeechOutput) handleMessage(u *utterance, data []byte) (bool, error) {
	var msg map[string]any
	if err := json.Unmarshal(data, &msg); err != nil {
		s.logger.Warn("tts websocket raw data", "data", string(data))
		return false, nil
	}
	if e, ok := msg["error"].(string); ok && e != "" {
		return false, errors.New("elevenlabs: " + e)
	}
	audio := firstString(msg, "audio", "audio_base_64", "audio_base64")
	if audio != "" {
		raw, err := base64.StdEncoding.DecodeString(audio)
		if err != nil {
			s.logger.Error("tts audio decode error", "error", err)
		} else {
			select {
			case <-u.stopped:
				return false, nil
			default:
			}
			s.logger.Debug("tts audio chunk received", slog.Int("size_bytes", len(raw)))
			if _, err := s.cfg.Sink.Write(raw); err != nil {
				return false, err
			}
		}
	}
	final, _ := msg["isFinal"].(bool)
	return final, nil
}

func (s *SpeechOutput) abort(conn *websocket.Conn) {
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	_ = conn.Close()
}

func (s *SpeechOutput) buildURL() (string, error) {
	base, err := url.Parse(s.cfg.BaseURL)
	if err != nil {
		return "", err
	}
	base.Path = strings.TrimRight(base.Path, "/") + "/v1/text-to-speech/" + url.PathEscape(s.cfg.VoiceID) + "/stream-input"
	q := url.Values{}
	if s.cfg.ModelID != "" {
		q.Set("model_id", s.cfg.ModelID)
	}
	if s.cfg.OutputFormat != "" {
		q.Set("output_format", s.cfg.OutputFormat)
	}
	q.Set("optimize_streaming_latency", "4")
	base.RawQuery = q.Encode()
	return base.String(), nil
}

func (s *SpeechOutput) record(name string) {
	s.mu.Lock()
	obs := s.obs
	s.mu.Unlock()
	if obs == nil {
		return
	}
	obs.RecordEvent(metrics.MetricsEvent{
		Name: name,
		Time: time.Now(),
		Tags: map[string]string{"provider": s.Name(), "component": "tts"},
	})
}

func writeJSON(conn *websocket.Conn, payload map[string]any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, b)
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

var _ tts.SpeechOutput = (*SpeechOutput)(nil)
