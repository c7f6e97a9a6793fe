package observers

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/harunnryd/asisten/pkg/metrics"
	"github.com/harunnryd/asisten/pkg/redact"
)

func TestTimelineObserverWritesJSONL(t *testing.T) {
	dir := t.TempDir()
	obs := NewTimelineObserver(dir)

	obs.RecordEvent(metrics.MetricsEvent{
		Name: metrics.EventTurnStarted,
		Time: time.Now(),
		Tags: map[string]string{"session_id": "session-1", "turn_id": "turn-1"},
	})
	obs.RecordEvent(metrics.MetricsEvent{
		Name: metrics.EventTurnPhase,
		Time: time.Now(),
		Tags: map[string]string{"session_id": "session-1", "turn_id": "turn-1", "to": "COMPLETED"},
	})
	_ = obs.Close()

	b, err := os.ReadFile(filepath.Join(dir, "session-1.jsonl"))
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(b)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	var entry timelineEvent
	if err := json.Unmarshal([]byte(lines[1]), &entry); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if entry.Event != metrics.EventTurnPhase || entry.TurnID != "turn-1" || entry.Tags["to"] != "COMPLETED" {
		t.Fatalf("unexpected entry: %+v", entry)
	}
}

func TestTimelineObserverRedactsFields(t *testing.T) {
	redact.SetEnabled(true)
	defer redact.SetEnabled(false)
	dir := t.TempDir()
	obs := NewTimelineObserver(dir)
	obs.RecordEvent(metrics.MetricsEvent{
		Name:   metrics.EventToolCall,
		Time:   time.Now(),
		Tags:   map[string]string{"turn_id": "turn-9"},
		Fields: map[string]any{"error": "could not text ana@example.com"},
	})
	_ = obs.Close()
	b, err := os.ReadFile(filepath.Join(dir, "turn-9.jsonl"))
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	if strings.Contains(string(b), "ana@example.com") {
		t.Fatalf("email should be redacted: %s", b)
	}
}

func TestUsageObserverSumsPerSession(t *testing.T) {
	dir := t.TempDir()
	obs := NewUsageObserver(dir)
	tags := map[string]string{"session_id": "s1", "turn_id": "t1"}
	obs.RecordEvent(metrics.MetricsEvent{Name: metrics.EventTurnStarted, Tags: tags})
	obs.RecordEvent(metrics.MetricsEvent{Name: metrics.EventLLMUsage, Tags: tags, Fields: map[string]any{
		"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15,
	}})
	obs.RecordEvent(metrics.MetricsEvent{Name: metrics.EventLLMUsage, Tags: tags, Fields: map[string]any{
		"prompt_tokens": float64(20), "total_tokens": float64(20),
	}})
	obs.RecordEvent(metrics.MetricsEvent{Name: metrics.EventToolCall, Tags: map[string]string{"session_id": "s1", "tool": "get_weather"}})
	obs.RecordEvent(metrics.MetricsEvent{Name: metrics.EventSpeechDone, Tags: tags, Value: 1500})
	obs.RecordEvent(metrics.MetricsEvent{Name: metrics.EventLLMUsage, Fields: map[string]any{"total_tokens": 99}})

	sum, ok := obs.Summary("s1")
	if !ok {
		t.Fatalf("missing summary")
	}
	if sum.Turns != 1 || sum.LLMCalls != 2 || sum.PromptTokens != 30 || sum.TotalTokens != 35 {
		t.Fatalf("unexpected summary: %+v", sum)
	}
	if sum.ToolCalls["get_weather"] != 1 || sum.SpeechSeconds != 1.5 {
		t.Fatalf("unexpected summary: %+v", sum)
	}
	if err := obs.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "s1.usage.json")); err != nil {
		t.Fatalf("usage file: %v", err)
	}
}

func TestLatencyObserverLogsOnTerminalPhase(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, nil))
	obs := NewLatencyObserver(log)
	start := time.Now()
	tags := func(extra ...string) map[string]string {
		m := map[string]string{"turn_id": "t1", "session_id": "s1"}
		for i := 0; i+1 < len(extra); i += 2 {
			m[extra[i]] = extra[i+1]
		}
		return m
	}
	obs.RecordEvent(metrics.MetricsEvent{Name: metrics.EventTurnStarted, Time: start, Tags: tags()})
	obs.RecordEvent(metrics.MetricsEvent{Name: metrics.EventGenerationDone, Time: start.Add(300 * time.Millisecond), Tags: tags()})
	obs.RecordEvent(metrics.MetricsEvent{Name: metrics.EventSpeechStarted, Time: start.Add(310 * time.Millisecond), Tags: tags()})
	if obs.Pending() != 1 {
		t.Fatalf("expected one pending turn")
	}
	obs.RecordEvent(metrics.MetricsEvent{Name: metrics.EventTurnPhase, Time: start.Add(time.Second), Tags: tags("to", "COMPLETED")})
	if obs.Pending() != 0 {
		t.Fatalf("terminal phase should clear the turn")
	}
	out := buf.String()
	if !strings.Contains(out, `"generate_ms":300`) || !strings.Contains(out, `"total_ms":1000`) {
		t.Fatalf("unexpected log: %s", out)
	}
	obs.RecordEvent(metrics.MetricsEvent{Name: metrics.EventSpeechDone, Time: start.Add(2 * time.Second), Tags: tags()})
	if obs.Pending() != 0 {
		t.Fatalf("late events must not reopen a finished turn")
	}
}

func TestTaggedObserverKeepsExistingTags(t *testing.T) {
	mem := metrics.NewMemoryObserver()
	obs := NewMultiObserver(WithTags(mem, map[string]string{"session_id": "s1", "turn_id": "default"}))
	obs.RecordEvent(metrics.MetricsEvent{Name: "x", Tags: map[string]string{"turn_id": "t1"}})
	evs := mem.Events()
	if len(evs) != 1 || evs[0].Tags["session_id"] != "s1" || evs[0].Tags["turn_id"] != "t1" {
		t.Fatalf("unexpected tags: %+v", evs)
	}
}

func TestPurgeArtifactsOnlyRemovesOldArtifacts(t *testing.T) {
	dir := t.TempDir()
	old := time.Now().Add(-72 * time.Hour)
	for _, name := range []string{"a.jsonl", "b.usage.json", "notes.txt"} {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
		if err := os.Chtimes(path, old, old); err != nil {
			t.Fatalf("chtimes: %v", err)
		}
	}
	if err := os.WriteFile(filepath.Join(dir, "fresh.jsonl"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	removed, err := PurgeArtifacts(dir, 24*time.Hour)
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if removed != 2 {
		t.Fatalf("expected 2 removed, got %d", removed)
	}
	if _, err := os.Stat(filepath.Join(dir, "notes.txt")); err != nil {
		t.Fatalf("unrelated file removed")
	}
	if n, err := PurgeArtifacts(filepath.Join(dir, "missing"), time.Hour); n != 0 || err != nil {
		t.Fatalf("missing dir should be a no-op, got %d %v", n, err)
	}
}
