package store

import (
	"context"
	"sync"
	"time"
)

// TurnRecord is the terminal state of one turn.
type TurnRecord struct {
	ID        string    `json:"id" db:"id"`
	SessionID string    `json:"session_id" db:"session_id"`
	UserText  string    `json:"user_text" db:"user_text"`
	Reply     string    `json:"reply,omitempty" db:"reply"`
	Phase     string    `json:"phase" db:"phase"`
	Error     string    `json:"error,omitempty" db:"error"`
	StartedAt time.Time `json:"started_at" db:"started_at"`
	EndedAt   time.Time `json:"ended_at" db:"ended_at"`
}

// Duration returns how long the turn was alive.
func (r TurnRecord) Duration() time.Duration {
	if r.EndedAt.IsZero() {
		return 0
	}
	return r.EndedAt.Sub(r.StartedAt)
}

// Journal stores terminal turns. Recent returns the newest first.
type Journal interface {
	Append(ctx context.Context, rec TurnRecord) error
	Recent(ctx context.Context, limit int) ([]TurnRecord, error)
	Close() error
}

// MemoryJournal keeps the last Capacity records in memory.
type MemoryJournal struct {
	mu       sync.Mutex
	records  []TurnRecord
	capacity int
}

func NewMemoryJournal(capacity int) *MemoryJournal {
	if capacity <= 0 {
		capacity = 100
	}
	return &MemoryJournal{capacity: capacity}
}

func (j *MemoryJournal) Append(_ context.Context, rec TurnRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.records = append(j.records, rec)
	if over := len(j.records) - j.capacity; over > 0 {
		j.records = append([]TurnRecord(nil), j.records[over:]...)
	}
	return nil
}

func (j *MemoryJournal) Recent(_ context.Context, limit int) ([]TurnRecord, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if limit <= 0 || limit > len(j.records) {
		limit = len(j.records)
	}
	out := make([]TurnRecord, 0, limit)
	for i := len(j.records) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, j.records[i])
	}
	return out, nil
}

func (j *MemoryJournal) Close() error { return nil }
