package turn

import "time"

// Phase is the lifecycle position of a Turn.
type Phase int

const (
	PhaseGenerating Phase = iota
	PhaseSpeaking
	PhaseCompleted
	PhaseCancelled
	PhaseFailed
)

// String returns the string representation of a Phase
func (p Phase) String() string {
	switch p {
	case PhaseGenerating:
		return "GENERATING"
	case PhaseSpeaking:
		return "SPEAKING"
	case PhaseCompleted:
		return "COMPLETED"
	case PhaseCancelled:
		return "CANCELLED"
	case PhaseFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Terminal reports whether no further transitions are allowed.
func (p Phase) Terminal() bool {
	return p == PhaseCompleted || p == PhaseCancelled || p == PhaseFailed
}

var validTransitions = map[Phase][]Phase{
	PhaseGenerating: {PhaseSpeaking, PhaseCancelled, PhaseFailed},
	PhaseSpeaking:   {PhaseCompleted, PhaseCancelled, PhaseFailed},
}

func transitionValid(from, to Phase) bool {
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// PhaseChange represents a phase transition event.
type PhaseChange struct {
	TurnID    string
	From      Phase
	To        Phase
	Timestamp time.Time
	Reason    string
}

// PhaseListener observes turn phase changes.
type PhaseListener interface {
	OnPhaseChange(event PhaseChange)
}

// PhaseListenerFunc adapts a function to PhaseListener.
type PhaseListenerFunc func(event PhaseChange)

func (f PhaseListenerFunc) OnPhaseChange(event PhaseChange) { f(event) }

// InvalidTransitionError represents an invalid phase transition attempt
type InvalidTransitionError struct {
	TurnID string
	From   Phase
	To     Phase
}

func (e *InvalidTransitionError) Error() string {
	return "turn " + e.TurnID + ": invalid phase transition from " + e.From.String() + " to " + e.To.String()
}
