package mock

import (
	"context"
	"sync"
	"time"

	"github.com/harunnryd/asisten/pkg/adapters/tts"
)

type TTSConfig struct {
	// Duration is how long each utterance "plays".
	Duration time.Duration
	SpeakErr error
	StopErr  error
}

// SpeechOutput records utterances and blocks for Duration per utterance.
type SpeechOutput struct {
	cfg     TTSConfig
	mu      sync.Mutex
	spoken  []string
	stops   int
	playing chan struct{}
}

func NewTTS(cfg TTSConfig) *SpeechOutput {
	return &SpeechOutput{cfg: cfg}
}

func (s *SpeechOutput) Name() string { return "mock_tts" }

func (s *SpeechOutput) Speak(ctx context.Context, text string) error {
	if s.cfg.SpeakErr != nil {
		return s.cfg.SpeakErr
	}
	stop := make(chan struct{})
	s.mu.Lock()
	s.spoken = append(s.spoken, text)
	s.playing = stop
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		if s.playing == stop {
			s.playing = nil
		}
		s.mu.Unlock()
	}()
	if s.cfg.Duration <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(s.cfg.Duration)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-stop:
		return tts.ErrSpeechStopped
	case <-timer.C:
		return nil
	}
}

func (s *SpeechOutput) StopSpeaking(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stops++
	if s.playing != nil {
		close(s.playing)
		s.playing = nil
	}
	return s.cfg.StopErr
}

// Spoken returns every text passed to Speak.
func (s *SpeechOutput) Spoken() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.spoken...)
}

// Stops counts StopSpeaking calls.
func (s *SpeechOutput) Stops() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stops
}

var _ tts.SpeechOutput = (*SpeechOutput)(nil)
