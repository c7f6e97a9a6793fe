package observers

import (
	"context"
	"log/slog"

	"github.com/harunnryd/asisten/pkg/metrics"
)

type LoggerObserver struct {
	log   *slog.Logger
	level slog.Level
}

func NewLoggerObserver(log *slog.Logger) *LoggerObserver {
	if log == nil {
		log = slog.Default()
	}
	return &LoggerObserver{log: log, level: slog.LevelDebug}
}

func (o *LoggerObserver) RecordEvent(ev metrics.MetricsEvent) {
	level := o.level
	if metrics.Priority(ev.Name) && ev.Name != metrics.EventTurnPhase {
		level = slog.LevelInfo
	}
	if !o.log.Enabled(context.Background(), level) {
		return
	}
	attrs := []slog.Attr{
		slog.String("name", ev.Name),
		slog.Time("time", ev.Time),
		slog.Float64("value", ev.Value),
	}
	for k, v := range ev.Tags {
		attrs = append(attrs, slog.String(k, v))
	}
	for k, v := range ev.Fields {
		attrs = append(attrs, slog.Any(k, v))
	}
	o.log.LogAttrs(context.Background(), level, "metrics", attrs...)
}

type MultiObserver struct {
	list []metrics.Observer
}

func NewMultiObserver(list ...metrics.Observer) *MultiObserver {
	return &MultiObserver{list: list}
}

func (m *MultiObserver) RecordEvent(ev metrics.MetricsEvent) {
	for _, obs := range m.list {
		if obs != nil {
			obs.RecordEvent(ev)
		}
	}
}

// Flush flushes every child that buffers.
func (m *MultiObserver) Flush() error {
	var first error
	for _, obs := range m.list {
		if f, ok := obs.(metrics.Flusher); ok {
			if err := f.Flush(); err != nil && first == nil {
				first = err
			}
		}
	}
	return first
}

// TaggedObserver adds fixed tags, such as the session id, to every event
// that does not already carry them.
type TaggedObserver struct {
	next metrics.Observer
	tags map[string]string
}

func WithTags(next metrics.Observer, tags map[string]string) *TaggedObserver {
	return &TaggedObserver{next: next, tags: copyTags(tags)}
}

func (o *TaggedObserver) RecordEvent(ev metrics.MetricsEvent) {
	if o.next == nil {
		return
	}
	tags := copyTags(ev.Tags)
	if tags == nil {
		tags = make(map[string]string, len(o.tags))
	}
	for k, v := range o.tags {
		if _, ok := tags[k]; !ok {
			tags[k] = v
		}
	}
	ev.Tags = tags
	o.next.RecordEvent(ev)
}

var (
	_ metrics.Observer = (*LoggerObserver)(nil)
	_ metrics.Observer = (*MultiObserver)(nil)
	_ metrics.Observer = (*TaggedObserver)(nil)
)
