package turn

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Turn is one assistant response cycle. It owns the cancellation handle that
// every collaborator call made on its behalf observes.
type Turn struct {
	id        string
	text      string
	createdAt time.Time

	ctx       context.Context
	cancel    context.CancelFunc
	cancelled atomic.Bool

	mu       sync.Mutex
	phase    Phase
	endedAt  time.Time
	listener PhaseListener
}

// New creates a turn in PhaseGenerating whose context derives from parent.
func New(parent context.Context, text string, listener PhaseListener) *Turn {
	if parent == nil {
		parent = context.Background()
	}
	id := uuid.NewString()
	ctx, cancel := context.WithCancel(WithID(parent, id))
	return &Turn{
		id:        id,
		text:      text,
		createdAt: time.Now(),
		ctx:       ctx,
		cancel:    cancel,
		phase:     PhaseGenerating,
		listener:  listener,
	}
}

type idKey struct{}

// WithID returns a context carrying a turn id.
func WithID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, idKey{}, id)
}

// IDFromContext returns the id of the turn that owns ctx, or "".
func IDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(idKey{}).(string)
	return id
}

func (t *Turn) ID() string               { return t.id }
func (t *Turn) Text() string             { return t.text }
func (t *Turn) CreatedAt() time.Time     { return t.createdAt }
func (t *Turn) Context() context.Context { return t.ctx }
func (t *Turn) Cancelled() bool          { return t.cancelled.Load() }

// Phase returns the current phase.
func (t *Turn) Phase() Phase {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.phase
}

// EndedAt returns when the turn reached a terminal phase, or zero.
func (t *Turn) EndedAt() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.endedAt
}

// Transition moves to a new phase with validation.
func (t *Turn) Transition(to Phase, reason string) error {
	t.mu.Lock()
	from := t.phase
	if !transitionValid(from, to) {
		t.mu.Unlock()
		return &InvalidTransitionError{TurnID: t.id, From: from, To: to}
	}
	t.phase = to
	now := time.Now()
	if to.Terminal() {
		t.endedAt = now
	}
	t.mu.Unlock()

	t.notify(PhaseChange{TurnID: t.id, From: from, To: to, Timestamp: now, Reason: reason})
	return nil
}

// Cancel signals the turn's context. A turn that has not reached a terminal
// phase moves to PhaseCancelled immediately; a terminal one keeps its phase.
// Only the first call has any effect and reports true.
func (t *Turn) Cancel(reason string) bool {
	t.mu.Lock()
	if !t.cancelled.CompareAndSwap(false, true) {
		t.mu.Unlock()
		return false
	}
	from := t.phase
	changed := !from.Terminal()
	now := time.Now()
	if changed {
		t.phase = PhaseCancelled
		t.endedAt = now
	}
	t.mu.Unlock()

	t.cancel()
	if changed {
		t.notify(PhaseChange{TurnID: t.id, From: from, To: PhaseCancelled, Timestamp: now, Reason: reason})
	}
	return true
}

// Close releases the context resources once the turn's work has unwound.
// It does not mark the turn as cancelled.
func (t *Turn) Close() {
	t.cancel()
}

func (t *Turn) notify(ev PhaseChange) {
	if t.listener != nil {
		t.listener.OnPhaseChange(ev)
	}
}
