package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/harunnryd/asisten/pkg/adapters/stt"
	"github.com/harunnryd/asisten/pkg/adapters/tts"
	"github.com/harunnryd/asisten/pkg/assistant"
	"github.com/harunnryd/asisten/pkg/store"
)

type fakeAssistant struct {
	mu      sync.Mutex
	running bool
	events  []stt.Event
	reasons []string
	stopErr error
}

func (f *fakeAssistant) Status() assistant.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return assistant.Status{Running: f.running, SessionID: "s1", TurnID: "t1", Phase: "SPEAKING"}
}

func (f *fakeAssistant) HandleEvent(ev stt.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
}

func (f *fakeAssistant) Interrupt(reason string) tts.StopResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reasons = append(f.reasons, reason)
	return tts.StopResult{Attempted: true, Err: f.stopErr, Elapsed: 12 * time.Millisecond}
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, path, nil)
	} else {
		r = httptest.NewRequest(method, path, strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func TestHealthzAndStatus(t *testing.T) {
	srv := New(Config{}, &fakeAssistant{running: true}, nil, nil)
	if w := do(t, srv.Handler(), http.MethodGet, "/healthz", ""); w.Code != http.StatusOK || w.Body.String() != "ok" {
		t.Fatalf("unexpected healthz: %d %q", w.Code, w.Body.String())
	}
	w := do(t, srv.Handler(), http.MethodGet, "/status", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var st assistant.Status
	if err := json.Unmarshal(w.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !st.Running || st.TurnID != "t1" || st.Phase != "SPEAKING" {
		t.Fatalf("unexpected status: %+v", st)
	}
}

func TestSayInjectsFinal(t *testing.T) {
	asst := &fakeAssistant{running: true}
	srv := New(Config{}, asst, nil, nil)
	w := do(t, srv.Handler(), http.MethodPost, "/say", `{"text":"  hola  "}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", w.Code)
	}
	if len(asst.events) != 1 || asst.events[0].Kind != stt.EventFinal || asst.events[0].Text != "hola" {
		t.Fatalf("unexpected events: %+v", asst.events)
	}
	if w := do(t, srv.Handler(), http.MethodPost, "/say", `{"text":"  "}`); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for blank text, got %d", w.Code)
	}
	if w := do(t, srv.Handler(), http.MethodPost, "/say", `not-json`); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad json, got %d", w.Code)
	}
}

func TestSayRejectedWhenStopped(t *testing.T) {
	asst := &fakeAssistant{}
	srv := New(Config{}, asst, nil, nil)
	if w := do(t, srv.Handler(), http.MethodPost, "/say", `{"text":"hola"}`); w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", w.Code)
	}
	if len(asst.events) != 0 {
		t.Fatalf("no event should be injected")
	}
}

func TestInterruptReportsStopResult(t *testing.T) {
	asst := &fakeAssistant{running: true, stopErr: errors.New("device busy")}
	srv := New(Config{}, asst, nil, nil)
	w := do(t, srv.Handler(), http.MethodPost, "/interrupt", `{"reason":"operator"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var out interruptResponse
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !out.Attempted || out.Error != "device busy" || out.ElapsedMs != 12 {
		t.Fatalf("unexpected response: %+v", out)
	}
	do(t, srv.Handler(), http.MethodPost, "/interrupt", "")
	if len(asst.reasons) != 2 || asst.reasons[0] != "operator" || asst.reasons[1] != "http" {
		t.Fatalf("unexpected reasons: %v", asst.reasons)
	}
}

func TestTurnsReadsJournal(t *testing.T) {
	if w := do(t, New(Config{}, &fakeAssistant{}, nil, nil).Handler(), http.MethodGet, "/turns", ""); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 without journal, got %d", w.Code)
	}
	j := store.NewMemoryJournal(10)
	for _, id := range []string{"a", "b", "c"} {
		_ = j.Append(context.Background(), store.TurnRecord{ID: id, Phase: "COMPLETED"})
	}
	srv := New(Config{HistoryLimit: 2}, &fakeAssistant{}, j, nil)
	w := do(t, srv.Handler(), http.MethodGet, "/turns?limit=5", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var recs []store.TurnRecord
	if err := json.Unmarshal(w.Body.Bytes(), &recs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(recs) != 2 || recs[0].ID != "c" {
		t.Fatalf("unexpected records: %+v", recs)
	}
	if w := do(t, srv.Handler(), http.MethodGet, "/turns?limit=zero", ""); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

type fakeConversation struct {
	mu      sync.Mutex
	history int
}

func (f *fakeConversation) Describe() map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return map[string]string{"provider": "mock", "history": fmt.Sprint(f.history)}
}

func (f *fakeConversation) Reset() {
	f.mu.Lock()
	f.history = 0
	f.mu.Unlock()
}

func TestConversationDescribeAndReset(t *testing.T) {
	if w := do(t, New(Config{}, &fakeAssistant{}, nil, nil).Handler(), http.MethodGet, "/conversation", ""); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 without conversation, got %d", w.Code)
	}
	conv := &fakeConversation{history: 4}
	srv := New(Config{Conversation: conv}, &fakeAssistant{}, nil, nil)
	w := do(t, srv.Handler(), http.MethodGet, "/conversation", "")
	var desc map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &desc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if w.Code != http.StatusOK || desc["history"] != "4" || desc["provider"] != "mock" {
		t.Fatalf("unexpected describe %d %v", w.Code, desc)
	}
	if w := do(t, srv.Handler(), http.MethodDelete, "/conversation", ""); w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}
	if conv.Describe()["history"] != "0" {
		t.Fatalf("expected history cleared")
	}
}

func TestStartStopsWithContext(t *testing.T) {
	srv := New(Config{Addr: "127.0.0.1:0"}, &fakeAssistant{}, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Start(ctx) }()
	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("start returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("server did not stop")
	}
}
