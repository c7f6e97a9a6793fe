package elevenlabs

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/harunnryd/asisten/pkg/adapters/tts"
	"github.com/harunnryd/asisten/pkg/errorsx"
)

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newServer(t *testing.T, finish bool) (*httptest.Server, chan string) {
	t.Helper()
	texts := make(chan string, 8)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("xi-api-key") != "key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.URL.Query().Get("model_id") != "eleven_flash_v2_5" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for i := 0; i < 3; i++ {
			var msg map[string]any
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			if text, _ := msg["text"].(string); strings.TrimSpace(text) != "" {
				texts <- text
			}
		}
		_ = conn.WriteJSON(map[string]any{"audio": base64.StdEncoding.EncodeToString([]byte("pcm"))})
		if finish {
			_ = conn.WriteJSON(map[string]any{"isFinal": true})
			return
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	return srv, texts
}

func newOutput(srv *httptest.Server, sink *lockedBuffer) *SpeechOutput {
	return New(Config{
		APIKey:  "key",
		VoiceID: "voice",
		ModelID: "eleven_flash_v2_5",
		BaseURL: "ws" + strings.TrimPrefix(srv.URL, "http"),
		Sink:    sink,
	})
}

func TestSpeakStreamsAudioUntilFinal(t *testing.T) {
	srv, texts := newServer(t, true)
	defer srv.Close()
	sink := &lockedBuffer{}
	out := newOutput(srv, sink)
	if err := out.Speak(context.Background(), "Hola mundo"); err != nil {
		t.Fatalf("speak: %v", err)
	}
	if got := <-texts; got != "Hola mundo " {
		t.Fatalf("unexpected text sent %q", got)
	}
	if sink.String() != "pcm" {
		t.Fatalf("expected decoded audio in sink, got %q", sink.String())
	}
}

func TestStopSpeakingAbortsUtterance(t *testing.T) {
	srv, _ := newServer(t, false)
	defer srv.Close()
	sink := &lockedBuffer{}
	out := newOutput(srv, sink)
	done := make(chan error, 1)
	go func() { done <- out.Speak(context.Background(), "una respuesta larga") }()
	deadline := time.Now().Add(2 * time.Second)
	for sink.String() == "" && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if err := out.StopSpeaking(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
	select {
	case err := <-done:
		if !errors.Is(err, tts.ErrSpeechStopped) {
			t.Fatalf("expected ErrSpeechStopped, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("speak did not return after stop")
	}
	if err := out.StopSpeaking(context.Background()); err != nil {
		t.Fatalf("stop when idle must be nil: %v", err)
	}
}

func TestSpeakHonorsContext(t *testing.T) {
	srv, _ := newServer(t, false)
	defer srv.Close()
	out := newOutput(srv, &lockedBuffer{})
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if err := out.Speak(ctx, "hola"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestSpeakRequiresConfig(t *testing.T) {
	out := New(Config{})
	err := out.Speak(context.Background(), "hola")
	if !errorsx.HasReason(err, errorsx.ReasonSpeakConnect) {
		t.Fatalf("expected connect reason, got %v", err)
	}
	if err := out.Speak(context.Background(), "   "); err != nil {
		t.Fatalf("empty text must be a no-op: %v", err)
	}
}
