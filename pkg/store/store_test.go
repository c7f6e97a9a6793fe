package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestMemoryJournalKeepsNewestFirst(t *testing.T) {
	j := NewMemoryJournal(3)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if err := j.Append(ctx, TurnRecord{ID: string(rune('a' + i))}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	got, err := j.Recent(ctx, 0)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 records, got %d", len(got))
	}
	if got[0].ID != "e" || got[2].ID != "c" {
		t.Fatalf("unexpected order: %+v", got)
	}
	two, _ := j.Recent(ctx, 2)
	if len(two) != 2 || two[1].ID != "d" {
		t.Fatalf("unexpected limited result: %+v", two)
	}
}

func TestOpenSelectsDriver(t *testing.T) {
	j, err := Open(context.Background(), "", "", 10)
	if err != nil {
		t.Fatalf("open memory: %v", err)
	}
	if _, ok := j.(*MemoryJournal); !ok {
		t.Fatalf("expected memory journal, got %T", j)
	}
	if _, err := Open(context.Background(), "sqlite", "", 10); err == nil {
		t.Fatalf("expected unknown driver error")
	}
	if _, err := Open(context.Background(), "postgres", "", 10); err == nil {
		t.Fatalf("expected missing dsn error")
	}
}

func TestRecordDuration(t *testing.T) {
	start := time.Now()
	rec := TurnRecord{StartedAt: start, EndedAt: start.Add(1500 * time.Millisecond)}
	if rec.Duration() != 1500*time.Millisecond {
		t.Fatalf("unexpected duration %s", rec.Duration())
	}
	if (TurnRecord{StartedAt: start}).Duration() != 0 {
		t.Fatalf("open record should have zero duration")
	}
}

func TestPostgresJournalRoundTrip(t *testing.T) {
	dsn := os.Getenv("ASISTEN_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("ASISTEN_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()
	j, err := OpenPostgres(ctx, dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer j.Close()
	rec := TurnRecord{
		ID:        uuid.NewString(),
		SessionID: "test",
		UserText:  "hola",
		Reply:     "buenas",
		Phase:     "COMPLETED",
		StartedAt: time.Now().Add(-time.Second).UTC(),
		EndedAt:   time.Now().UTC(),
	}
	if err := j.Append(ctx, rec); err != nil {
		t.Fatalf("append: %v", err)
	}
	got, err := j.Recent(ctx, 1)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 1 || got[0].ID != rec.ID || got[0].Reply != "buenas" {
		t.Fatalf("unexpected records: %+v", got)
	}
}
