package observers

import (
	"encoding/json"
	"errors"
	"maps"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/harunnryd/asisten/pkg/metrics"
	"github.com/harunnryd/asisten/pkg/redact"
)

// TimelineObserver appends every event to <dir>/<session>.jsonl. Events
// without a session id fall back to their turn id; events with neither are
// dropped. String tags and fields pass through redact before they are written.
type TimelineObserver struct {
	dir string

	mu       sync.Mutex
	sessions map[string]*timelineFile
}

type timelineFile struct {
	f   *os.File
	enc *json.Encoder
}

type timelineEvent struct {
	Time      time.Time         `json:"time"`
	Event     string            `json:"event"`
	SessionID string            `json:"session_id,omitempty"`
	TurnID    string            `json:"turn_id,omitempty"`
	Value     float64           `json:"value,omitempty"`
	Tags      map[string]string `json:"tags,omitempty"`
	Fields    map[string]any    `json:"fields,omitempty"`
}

func NewTimelineObserver(dir string) *TimelineObserver {
	return &TimelineObserver{dir: strings.TrimSpace(dir), sessions: make(map[string]*timelineFile)}
}

// RecordEvent implements metrics.Observer. Write failures are ignored so a
// full disk never stalls a turn.
func (o *TimelineObserver) RecordEvent(ev metrics.MetricsEvent) {
	entry := timelineEvent{
		Time:      ev.Time.UTC(),
		Event:     ev.Name,
		SessionID: ev.Tags["session_id"],
		TurnID:    ev.Tags["turn_id"],
		Value:     ev.Value,
		Tags:      redactTags(ev.Tags),
		Fields:    sanitizeFields(ev.Fields),
	}
	key := sanitizeID(entry.SessionID)
	if key == "" {
		key = sanitizeID(entry.TurnID)
	}
	if key == "" || o.dir == "" {
		return
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if tf := o.open(key); tf != nil {
		_ = tf.enc.Encode(entry)
	}
}

// Close flushes and closes every session file. The observer can keep
// recording afterwards; files are reopened in append mode.
func (o *TimelineObserver) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	var err error
	for key, tf := range o.sessions {
		err = errors.Join(err, tf.f.Close())
		delete(o.sessions, key)
	}
	return err
}

func (o *TimelineObserver) open(key string) *timelineFile {
	if tf, ok := o.sessions[key]; ok {
		return tf
	}
	if err := os.MkdirAll(o.dir, 0o755); err != nil {
		return nil
	}
	f, err := os.OpenFile(filepath.Join(o.dir, key+".jsonl"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil
	}
	tf := &timelineFile{f: f, enc: json.NewEncoder(f)}
	o.sessions[key] = tf
	return tf
}

// sanitizeID turns an id into a safe file name stem.
func sanitizeID(id string) string {
	return strings.Map(func(r rune) rune {
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || strings.ContainsRune("-_.", r) {
			return r
		}
		return '_'
	}, strings.TrimSpace(id))
}

func copyTags(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	return maps.Clone(in)
}

func redactTags(in map[string]string) map[string]string {
	out := copyTags(in)
	for k, v := range out {
		out[k] = redact.Text(v)
	}
	return out
}

func sanitizeFields(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		if s, ok := v.(string); ok {
			v = redact.Text(s)
		}
		out[k] = v
	}
	return out
}

var _ metrics.Observer = (*TimelineObserver)(nil)
