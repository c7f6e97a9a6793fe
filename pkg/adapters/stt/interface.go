package stt

import (
	"context"
	"time"
)

// EventKind tags a recognition event.
type EventKind int

const (
	EventInterim EventKind = iota
	EventFinal
	EventNoMatch
	EventError
	EventSessionStopped
)

func (k EventKind) String() string {
	switch k {
	case EventInterim:
		return "interim"
	case EventFinal:
		return "final"
	case EventNoMatch:
		return "no_match"
	case EventError:
		return "error"
	case EventSessionStopped:
		return "session_stopped"
	default:
		return "unknown"
	}
}

// Event is one recognition result or control notification.
type Event struct {
	Kind    EventKind
	Text    string
	Message string
	Time    time.Time
}

func Interim(text string) Event { return Event{Kind: EventInterim, Text: text, Time: time.Now()} }
func Final(text string) Event   { return Event{Kind: EventFinal, Text: text, Time: time.Now()} }
func NoMatch() Event            { return Event{Kind: EventNoMatch, Time: time.Now()} }
func Error(msg string) Event    { return Event{Kind: EventError, Message: msg, Time: time.Now()} }
func SessionStopped() Event     { return Event{Kind: EventSessionStopped, Time: time.Now()} }

// RecognitionStream defines the contract for any speech recognition vendor.
type RecognitionStream interface {
	// Name returns adapter name for logging/metrics.
	Name() string
	// Start begins continuous recognition.
	Start(ctx context.Context) error
	// Stop ends recognition. Stopping an idle stream is not an error.
	Stop(ctx context.Context) error
	// Results returns the event channel. It stays the same across restarts.
	Results() <-chan Event
}

// Config contains vendor-agnostic recognition configuration.
type Config struct {
	SessionID  string
	SampleRate int
	Language   string
}
