package tts

import (
	"context"
	"errors"
	"time"
)

// ErrSpeechStopped is returned by Speak when StopSpeaking cut the utterance short.
var ErrSpeechStopped = errors.New("speech stopped")

// SpeechOutput defines the contract for any speech synthesis vendor.
type SpeechOutput interface {
	// Name returns adapter name for logging/metrics.
	Name() string
	// Speak renders text and returns once playback is done or ctx ends.
	Speak(ctx context.Context, text string) error
	// StopSpeaking aborts the current utterance. It returns nil when nothing is playing.
	StopSpeaking(ctx context.Context) error
}

// StopResult records one best-effort stop attempt.
type StopResult struct {
	Attempted bool
	Err       error
	Elapsed   time.Duration
}

// OK reports whether the attempt was made and did not fail.
func (r StopResult) OK() bool { return r.Attempted && r.Err == nil }

// Stop calls out.StopSpeaking bounded by timeout and reports the outcome.
func Stop(ctx context.Context, out SpeechOutput, timeout time.Duration) StopResult {
	if out == nil {
		return StopResult{}
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	start := time.Now()
	err := out.StopSpeaking(ctx)
	return StopResult{Attempted: true, Err: err, Elapsed: time.Since(start)}
}

// Config contains vendor-agnostic synthesis configuration.
type Config struct {
	SessionID  string
	SampleRate int
	Channels   int
}
