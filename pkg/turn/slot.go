package turn

import "sync"

// Slot holds at most one live Turn. Every read-modify-write of the held turn
// happens under the slot's mutex.
type Slot struct {
	mu      sync.Mutex
	current *Turn
}

// Current returns the held turn, which may already be cancelled.
func (s *Slot) Current() *Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Replace cancels the held turn and installs next in one critical section.
// onInstalled, when set, runs before the lock is released so that anything it
// publishes is ordered before a later Interrupt of next.
func (s *Slot) Replace(next *Turn, onInstalled func()) (prev *Turn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev = s.current
	if prev != nil {
		prev.Cancel("replaced")
	}
	s.current = next
	if onInstalled != nil {
		onInstalled()
	}
	return prev
}

// Interrupt cancels the held turn but leaves it in the slot; the turn clears
// itself with Release once its work unwinds. It returns the held turn, if any,
// and whether this call was the one that cancelled it.
func (s *Slot) Interrupt(reason string) (*Turn, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil, false
	}
	return s.current, s.current.Cancel(reason)
}

// IfLive runs fn under the slot lock when t is held and not cancelled.
func (s *Slot) IfLive(t *Turn, fn func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t == nil || s.current != t || t.Cancelled() {
		return false
	}
	if fn != nil {
		fn()
	}
	return true
}

// Release clears the slot only if it still holds t.
func (s *Slot) Release(t *Turn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != t {
		return false
	}
	s.current = nil
	return true
}
