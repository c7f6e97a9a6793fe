package mock

import (
	"context"
	"sync"
	"time"

	"github.com/harunnryd/asisten/pkg/adapters/stt"
)

type STTConfig struct {
	// Script is replayed once on Start, each event after Interval.
	Script   []stt.Event
	Interval time.Duration
	StartErr error
}

// RecognitionStream is a scripted recognizer. Tests push events directly.
type RecognitionStream struct {
	cfg     STTConfig
	out     chan stt.Event
	mu      sync.Mutex
	cancel  context.CancelFunc
	started bool
	starts  int
	stops   int
}

func NewSTT(cfg STTConfig) *RecognitionStream {
	return &RecognitionStream{cfg: cfg, out: make(chan stt.Event, 64)}
}

func (s *RecognitionStream) Name() string { return "mock_stt" }

func (s *RecognitionStream) Start(ctx context.Context) error {
	if s.cfg.StartErr != nil {
		return s.cfg.StartErr
	}
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.started = true
	s.starts++
	script := s.cfg.Script
	s.mu.Unlock()
	if len(script) > 0 {
		go s.replay(runCtx, script)
	}
	return nil
}

func (s *RecognitionStream) replay(ctx context.Context, script []stt.Event) {
	for _, ev := range script {
		if s.cfg.Interval > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.cfg.Interval):
			}
		}
		select {
		case <-ctx.Done():
			return
		case s.out <- ev:
		}
	}
}

func (s *RecognitionStream) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return nil
	}
	s.cancel()
	s.started = false
	s.stops++
	return nil
}

// Push delivers ev to the consumer as if the vendor produced it.
func (s *RecognitionStream) Push(ev stt.Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	s.out <- ev
}

func (s *RecognitionStream) Results() <-chan stt.Event { return s.out }

// Starts and Stops count effective transitions.
func (s *RecognitionStream) Starts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.starts
}

func (s *RecognitionStream) Stops() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stops
}

var _ stt.RecognitionStream = (*RecognitionStream)(nil)
