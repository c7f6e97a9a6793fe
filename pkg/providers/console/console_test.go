package console

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/harunnryd/asisten/pkg/adapters/stt"
	"github.com/harunnryd/asisten/pkg/adapters/tts"
)

func TestSTTEmitsInterimFinalAndNoMatch(t *testing.T) {
	s := NewSTT(STTConfig{Input: strings.NewReader("hola\n\n"), EmitInterim: true})
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s.Stop(context.Background())
	want := []stt.EventKind{stt.EventInterim, stt.EventFinal, stt.EventNoMatch, stt.EventSessionStopped}
	for i, kind := range want {
		select {
		case ev := <-s.Results():
			if ev.Kind != kind {
				t.Fatalf("event %d: expected %s, got %s", i, kind, ev.Kind)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for %s", kind)
		}
	}
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestTTSPrintsAndStops(t *testing.T) {
	out := &syncBuffer{}
	s := NewTTS(TTSConfig{Output: out, Prefix: "> "})
	if err := s.Speak(context.Background(), "Hola  mundo"); err != nil {
		t.Fatalf("speak: %v", err)
	}
	if out.String() != "> Hola mundo\n" {
		t.Fatalf("unexpected output %q", out.String())
	}

	slow := NewTTS(TTSConfig{Output: out, WordDelay: time.Second})
	done := make(chan error, 1)
	go func() { done <- slow.Speak(context.Background(), "uno dos tres") }()
	deadline := time.Now().Add(time.Second)
	for !strings.Contains(out.String(), "uno") && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	_ = slow.StopSpeaking(context.Background())
	select {
	case err := <-done:
		if !errors.Is(err, tts.ErrSpeechStopped) {
			t.Fatalf("expected ErrSpeechStopped, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("speak did not stop")
	}
}
