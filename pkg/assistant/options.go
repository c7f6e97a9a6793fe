package assistant

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/harunnryd/asisten/pkg/metrics"
	"github.com/harunnryd/asisten/pkg/store"
	"github.com/harunnryd/asisten/pkg/turn"
)

const (
	DefaultFarewell       = "Hasta luego. ¡Que tengas un buen día!"
	DefaultApologyFormat  = "Lo siento, ocurrió un error: %s"
	DefaultNoMatchMessage = "No se pudo reconocer el audio"
	DefaultStopTimeout    = 2 * time.Second
)

// DefaultExitKeywords end the session when found anywhere in a final transcript.
var DefaultExitKeywords = []string{"exit", "salir"}

// ResponseGenerator produces the assistant reply for one user utterance.
type ResponseGenerator interface {
	Respond(ctx context.Context, userText string) (string, error)
}

// ResponseGeneratorFunc adapts a function to ResponseGenerator.
type ResponseGeneratorFunc func(ctx context.Context, userText string) (string, error)

func (f ResponseGeneratorFunc) Respond(ctx context.Context, userText string) (string, error) {
	return f(ctx, userText)
}

// ReplyCommitter is implemented by generators that remember the dialogue.
// Commit is called only for a reply that its turn, still live, is about to
// publish and speak; superseded or failed turns never reach it.
type ReplyCommitter interface {
	Commit(userText, reply string)
}

type Options struct {
	ExitKeywords   []string
	Farewell       string
	ApologyFormat  string
	NoMatchMessage string
	// StopTimeout bounds each StopSpeaking call made by Interrupt.
	StopTimeout time.Duration
	Strategy    turn.Strategy
	SessionID   string
	// Normalize rewrites user text before generation. Shape rewrites the
	// reply before it is published and spoken.
	Normalize func(string) string
	Shape     func(string) string
	Journal   store.Journal
	Observer  metrics.Observer
	Logger    *slog.Logger
}

func (o Options) withDefaults() Options {
	if len(o.ExitKeywords) == 0 {
		o.ExitKeywords = DefaultExitKeywords
	}
	keywords := make([]string, 0, len(o.ExitKeywords))
	for _, k := range o.ExitKeywords {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			keywords = append(keywords, k)
		}
	}
	o.ExitKeywords = keywords
	if o.Farewell == "" {
		o.Farewell = DefaultFarewell
	}
	if o.ApologyFormat == "" || !strings.Contains(o.ApologyFormat, "%s") {
		o.ApologyFormat = DefaultApologyFormat
	}
	if o.NoMatchMessage == "" {
		o.NoMatchMessage = DefaultNoMatchMessage
	}
	if o.StopTimeout <= 0 {
		o.StopTimeout = DefaultStopTimeout
	}
	if o.Strategy == nil {
		o.Strategy = turn.AggressiveStrategy{}
	}
	if o.Observer == nil {
		o.Observer = metrics.NoopObserver{}
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}
