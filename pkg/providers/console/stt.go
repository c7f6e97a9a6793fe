package console

import (
	"bufio"
	"context"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/harunnryd/asisten/pkg/adapters/stt"
)

type STTConfig struct {
	Input io.Reader
	// EmitInterim sends each line as an Interim before the Final, like a
	// live recognizer would while the user is still talking.
	EmitInterim bool
	// InterimDelay is the pause between the Interim and the Final.
	InterimDelay time.Duration
}

// RecognitionStream treats every input line as one recognized utterance.
// An empty line is reported as NoMatch.
type RecognitionStream struct {
	cfg     STTConfig
	out     chan stt.Event
	mu      sync.Mutex
	cancel  context.CancelFunc
	started bool
	lines   chan string
	once    sync.Once
}

func NewSTT(cfg STTConfig) *RecognitionStream {
	return &RecognitionStream{cfg: cfg, out: make(chan stt.Event, 64), lines: make(chan string)}
}

func (s *RecognitionStream) Name() string { return "console_stt" }

func (s *RecognitionStream) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}
	// One reader for the process lifetime; restarts only resume delivery.
	s.once.Do(func() { go s.scan() })
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.started = true
	go s.deliver(runCtx)
	return nil
}

func (s *RecognitionStream) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return nil
	}
	s.cancel()
	s.started = false
	return nil
}

func (s *RecognitionStream) Results() <-chan stt.Event { return s.out }

func (s *RecognitionStream) scan() {
	scanner := bufio.NewScanner(s.cfg.Input)
	for scanner.Scan() {
		s.lines <- scanner.Text()
	}
	close(s.lines)
}

func (s *RecognitionStream) deliver(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-s.lines:
			if !ok {
				s.send(ctx, stt.SessionStopped())
				return
			}
			text := strings.TrimSpace(line)
			if text == "" {
				s.send(ctx, stt.NoMatch())
				continue
			}
			if s.cfg.EmitInterim {
				s.send(ctx, stt.Interim(text))
				if s.cfg.InterimDelay > 0 {
					select {
					case <-ctx.Done():
						return
					case <-time.After(s.cfg.InterimDelay):
					}
				}
			}
			s.send(ctx, stt.Final(text))
		}
	}
}

func (s *RecognitionStream) send(ctx context.Context, ev stt.Event) {
	select {
	case <-ctx.Done():
	case s.out <- ev:
	}
}

var _ stt.RecognitionStream = (*RecognitionStream)(nil)
