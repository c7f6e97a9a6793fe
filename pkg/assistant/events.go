package assistant

import (
	"sync"
	"time"
)

// EventKind names a lifecycle notification.
type EventKind int

const (
	UserSpoke EventKind = iota
	AssistantResponding
	AssistantResponded
	ErrorOccurred
)

func (k EventKind) String() string {
	switch k {
	case UserSpoke:
		return "user_spoke"
	case AssistantResponding:
		return "assistant_responding"
	case AssistantResponded:
		return "assistant_responded"
	case ErrorOccurred:
		return "error_occurred"
	default:
		return "unknown"
	}
}

// Event is one lifecycle notification for the presentation layer.
type Event struct {
	Kind   EventKind
	Text   string
	TurnID string
	Time   time.Time
}

// Listener receives lifecycle notifications on the notifier goroutine, in
// publish order. It may call back into the orchestrator.
type Listener interface {
	OnEvent(ev Event)
}

type ListenerFunc func(ev Event)

func (f ListenerFunc) OnEvent(ev Event) { f(ev) }

// notifier queues events without blocking the publisher and delivers them
// from a single goroutine.
type notifier struct {
	mu        sync.Mutex
	queue     []Event
	listeners map[int]Listener
	nextID    int
	wake      chan struct{}
	closed    bool
	done      chan struct{}
}

func newNotifier() *notifier {
	n := &notifier{
		listeners: map[int]Listener{},
		wake:      make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
	go n.run()
	return n
}

func (n *notifier) subscribe(l Listener) func() {
	n.mu.Lock()
	id := n.nextID
	n.nextID++
	n.listeners[id] = l
	n.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			n.mu.Lock()
			delete(n.listeners, id)
			n.mu.Unlock()
		})
	}
}

func (n *notifier) publish(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return
	}
	n.queue = append(n.queue, ev)
	n.mu.Unlock()
	select {
	case n.wake <- struct{}{}:
	default:
	}
}

func (n *notifier) run() {
	defer close(n.done)
	for range n.wake {
		for {
			n.mu.Lock()
			if len(n.queue) == 0 {
				closed := n.closed
				n.mu.Unlock()
				if closed {
					return
				}
				break
			}
			ev := n.queue[0]
			n.queue = n.queue[1:]
			listeners := make([]Listener, 0, len(n.listeners))
			for id := 0; id < n.nextID; id++ {
				if l, ok := n.listeners[id]; ok {
					listeners = append(listeners, l)
				}
			}
			n.mu.Unlock()
			for _, l := range listeners {
				l.OnEvent(ev)
			}
		}
	}
}

// close delivers what is queued, then stops the goroutine.
func (n *notifier) close() {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		<-n.done
		return
	}
	n.closed = true
	n.mu.Unlock()
	select {
	case n.wake <- struct{}{}:
	default:
	}
	<-n.done
}
