package metrics

import "time"

type MetricsEvent struct {
	Name   string
	Time   time.Time
	Value  float64
	Tags   map[string]string
	Fields map[string]any
}

type Observer interface {
	RecordEvent(ev MetricsEvent)
}

type Flusher interface {
	Flush() error
}

type NoopObserver struct{}

func (NoopObserver) RecordEvent(MetricsEvent) {}

// Event names shared by the orchestrator, the agent and the providers.
const (
	EventRecognition    = "recognition_event"
	EventTurnStarted    = "turn_started"
	EventTurnPhase      = "turn_phase"
	EventBargeIn        = "barge_in"
	EventStopSpeaking   = "stop_speaking"
	EventGenerationDone = "generation_done"
	EventSpeechStarted  = "speech_started"
	EventSpeechDone     = "speech_done"
	EventLLMUsage       = "llm_usage"
	EventToolCall       = "tool_call"
	EventRateLimit      = "rate_limit"
	EventBreakerOpen    = "breaker_open"
	EventBreakerClose   = "breaker_close"
	EventBreakerDenied  = "breaker_denied"
)

// Priority reports events that must survive sampling.
func Priority(name string) bool {
	switch name {
	case EventTurnStarted, EventTurnPhase, EventBargeIn, EventRateLimit, EventBreakerOpen, EventBreakerDenied:
		return true
	default:
		return false
	}
}
