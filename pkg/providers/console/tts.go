package console

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/harunnryd/asisten/pkg/adapters/tts"
)

type TTSConfig struct {
	Output io.Writer
	// WordDelay paces output to mimic speech; zero prints at once.
	WordDelay time.Duration
	Prefix    string
}

// SpeechOutput "speaks" by printing words at speech pace.
type SpeechOutput struct {
	cfg     TTSConfig
	mu      sync.Mutex
	stop    chan struct{}
	writeMu sync.Mutex
}

func NewTTS(cfg TTSConfig) *SpeechOutput {
	if cfg.Prefix == "" {
		cfg.Prefix = "🔊 "
	}
	return &SpeechOutput{cfg: cfg}
}

func (s *SpeechOutput) Name() string { return "console_tts" }

func (s *SpeechOutput) Speak(ctx context.Context, text string) error {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	stop := make(chan struct{})
	s.mu.Lock()
	if s.stop != nil {
		close(s.stop)
	}
	s.stop = stop
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		if s.stop == stop {
			s.stop = nil
		}
		s.mu.Unlock()
	}()

	s.write(s.cfg.Prefix)
	for i, w := range words {
		if i > 0 {
			s.write(" ")
		}
		s.write(w)
		if s.cfg.WordDelay <= 0 {
			continue
		}
		select {
		case <-ctx.Done():
			s.write(" …\n")
			return ctx.Err()
		case <-stop:
			s.write(" …\n")
			return tts.ErrSpeechStopped
		case <-time.After(s.cfg.WordDelay):
		}
	}
	s.write("\n")
	return ctx.Err()
}

func (s *SpeechOutput) StopSpeaking(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop != nil {
		close(s.stop)
		s.stop = nil
	}
	return nil
}

func (s *SpeechOutput) write(text string) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_, _ = fmt.Fprint(s.cfg.Output, text)
}

var _ tts.SpeechOutput = (*SpeechOutput)(nil)
