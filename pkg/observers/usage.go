package observers

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/harunnryd/asisten/pkg/metrics"
)

// UsageSummary aggregates what a session consumed from its vendors.
type UsageSummary struct {
	SessionID        string         `json:"session_id"`
	Turns            int            `json:"turns"`
	BargeIns         int            `json:"barge_ins"`
	PromptTokens     int            `json:"prompt_tokens"`
	CompletionTokens int            `json:"completion_tokens"`
	TotalTokens      int            `json:"total_tokens"`
	LLMCalls         int            `json:"llm_calls"`
	ToolCalls        map[string]int `json:"tool_calls,omitempty"`
	SpeechSeconds    float64        `json:"speech_seconds"`
	RateLimits       int            `json:"rate_limits"`
	RecordedAtUTC    string         `json:"recorded_at_utc"`
}

// UsageObserver sums token, tool and speech usage per session and writes a
// <session>.usage.json summary on Close.
type UsageObserver struct {
	dir   string
	mu    sync.Mutex
	stats map[string]*UsageSummary
}

func NewUsageObserver(dir string) *UsageObserver {
	return &UsageObserver{dir: dir, stats: make(map[string]*UsageSummary)}
}

func (o *UsageObserver) RecordEvent(ev metrics.MetricsEvent) {
	id := ""
	if ev.Tags != nil {
		id = ev.Tags["session_id"]
	}
	if id == "" {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	stat := o.stats[id]
	if stat == nil {
		stat = &UsageSummary{SessionID: id}
		o.stats[id] = stat
	}
	switch ev.Name {
	case metrics.EventTurnStarted:
		stat.Turns++
	case metrics.EventBargeIn:
		stat.BargeIns++
	case metrics.EventLLMUsage:
		stat.LLMCalls++
		stat.PromptTokens += intField(ev.Fields, "prompt_tokens")
		stat.CompletionTokens += intField(ev.Fields, "completion_tokens")
		stat.TotalTokens += intField(ev.Fields, "total_tokens")
	case metrics.EventToolCall:
		if stat.ToolCalls == nil {
			stat.ToolCalls = map[string]int{}
		}
		stat.ToolCalls[ev.Tags["tool"]]++
	case metrics.EventSpeechDone:
		stat.SpeechSeconds += ev.Value / 1000
	case metrics.EventRateLimit:
		stat.RateLimits++
	}
}

// Summary returns a copy of the session's totals.
func (o *UsageObserver) Summary(sessionID string) (UsageSummary, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	stat, ok := o.stats[sessionID]
	if !ok {
		return UsageSummary{}, false
	}
	out := *stat
	if stat.ToolCalls != nil {
		out.ToolCalls = make(map[string]int, len(stat.ToolCalls))
		for k, v := range stat.ToolCalls {
			out.ToolCalls[k] = v
		}
	}
	return out, true
}

func (o *UsageObserver) Close() error {
	if strings.TrimSpace(o.dir) == "" {
		return nil
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := os.MkdirAll(o.dir, 0o755); err != nil {
		return err
	}
	var errOut error
	for id, stat := range o.stats {
		stat.RecordedAtUTC = time.Now().UTC().Format(time.RFC3339)
		b, err := json.MarshalIndent(stat, "", "  ")
		if err != nil {
			errOut = errors.Join(errOut, err)
			continue
		}
		path := filepath.Join(o.dir, sanitizeID(id)+".usage.json")
		if err := os.WriteFile(path, b, 0o644); err != nil {
			errOut = errors.Join(errOut, err)
		}
	}
	return errOut
}

func intField(fields map[string]any, key string) int {
	if fields == nil {
		return 0
	}
	switch v := fields[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

var _ metrics.Observer = (*UsageObserver)(nil)
