package observers

import (
	"log/slog"
	"sync"
	"time"

	"github.com/harunnryd/asisten/pkg/metrics"
)

// LatencyObserver logs per-turn timings once the turn reaches a terminal phase.
type LatencyObserver struct {
	mu    sync.Mutex
	turns map[string]*turnTimes
	log   *slog.Logger
}

type turnTimes struct {
	started     time.Time
	generated   time.Time
	speechStart time.Time
	speechDone  time.Time
	toolCalls   int
	sessionID   string
}

func NewLatencyObserver(log *slog.Logger) *LatencyObserver {
	if log == nil {
		log = slog.Default()
	}
	return &LatencyObserver{
		turns: make(map[string]*turnTimes),
		log:   log,
	}
}

func (o *LatencyObserver) RecordEvent(ev metrics.MetricsEvent) {
	turnID := ""
	if ev.Tags != nil {
		turnID = ev.Tags["turn_id"]
	}
	if turnID == "" {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	t := o.turns[turnID]
	if ev.Name == metrics.EventTurnStarted {
		if t == nil {
			o.turns[turnID] = &turnTimes{started: ev.Time, sessionID: ev.Tags["session_id"]}
		}
		return
	}
	// late events of a finished turn are ignored
	if t == nil {
		return
	}
	switch ev.Name {
	case metrics.EventGenerationDone:
		t.generated = ev.Time
	case metrics.EventSpeechStarted:
		if t.speechStart.IsZero() {
			t.speechStart = ev.Time
		}
	case metrics.EventSpeechDone:
		t.speechDone = ev.Time
	case metrics.EventToolCall:
		t.toolCalls++
	case metrics.EventTurnPhase:
		switch ev.Tags["to"] {
		case "COMPLETED", "CANCELLED", "FAILED":
			o.logLocked(turnID, ev.Tags["to"], ev.Time, t)
			delete(o.turns, turnID)
		}
	}
}

// Pending reports how many turns have not reached a terminal phase.
func (o *LatencyObserver) Pending() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.turns)
}

func (o *LatencyObserver) logLocked(turnID, phase string, ended time.Time, t *turnTimes) {
	o.log.Info("turn_latency",
		"turn_id", turnID,
		"session_id", t.sessionID,
		"phase", phase,
		"generate_ms", durationMs(t.started, t.generated),
		"first_speech_ms", durationMs(t.started, t.speechStart),
		"speech_ms", durationMs(t.speechStart, t.speechDone),
		"total_ms", durationMs(t.started, ended),
		"tool_calls", t.toolCalls,
	)
}

func durationMs(a, b time.Time) int64 {
	if a.IsZero() || b.IsZero() {
		return -1
	}
	return b.Sub(a).Milliseconds()
}

var _ metrics.Observer = (*LatencyObserver)(nil)
