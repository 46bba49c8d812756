package sessionlog

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "sessions.db"))
	if err != nil {
		t.Fatalf("open session log: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSessionLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.StartSession(ctx, "sess-1", `{"asr_engine":"whisper"}`); err != nil {
		t.Fatalf("start session: %v", err)
	}
	if err := s.AppendTurn(ctx, Turn{SessionID: "sess-1", Transcript: "hello", Response: "hi there", Status: "ok", DurationMs: 812}); err != nil {
		t.Fatalf("append turn: %v", err)
	}
	if err := s.AppendTurn(ctx, Turn{SessionID: "sess-1", Status: "cancelled"}); err != nil {
		t.Fatalf("append turn: %v", err)
	}
	if err := s.EndSession(ctx, "sess-1"); err != nil {
		t.Fatalf("end session: %v", err)
	}

	sessions, err := s.ListSessions(ctx, 10)
	if err != nil {
		t.Fatalf("list sessions: %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("expected 1 session, got %d", len(sessions))
	}
	if sessions[0].TurnCount != 2 {
		t.Fatalf("turn count = %d", sessions[0].TurnCount)
	}
	if sessions[0].EndedAt == nil {
		t.Fatal("ended_at not stamped")
	}

	turns, err := s.SessionTurns(ctx, "sess-1")
	if err != nil {
		t.Fatalf("session turns: %v", err)
	}
	if len(turns) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(turns))
	}
	if turns[0].Transcript != "hello" || turns[0].Response != "hi there" {
		t.Fatalf("first turn = %+v", turns[0])
	}
	if turns[1].Status != "cancelled" {
		t.Fatalf("second turn status = %q", turns[1].Status)
	}
}

func TestPruneKeepsNewestSessions(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < maxSessions+5; i++ {
		offset := time.Duration(i) * time.Minute
		s.clock = func() time.Time { return base.Add(offset) }
		if err := s.StartSession(ctx, fmt.Sprintf("sess-%03d", i), ""); err != nil {
			t.Fatalf("start session %d: %v", i, err)
		}
	}

	sessions, err := s.ListSessions(ctx, maxSessions*2)
	if err != nil {
		t.Fatalf("list sessions: %v", err)
	}
	if len(sessions) != maxSessions {
		t.Fatalf("expected pruning to %d sessions, got %d", maxSessions, len(sessions))
	}
	if sessions[0].ID != fmt.Sprintf("sess-%03d", maxSessions+4) {
		t.Fatalf("newest session = %s", sessions[0].ID)
	}
}

func TestRecorderWritesThrough(t *testing.T) {
	s := openTestStore(t)
	rec := NewRecorder(s)

	rec.SessionStarted("sess-9", "")
	rec.TurnCompleted(Turn{SessionID: "sess-9", Transcript: "refill status", Response: "it shipped", Status: "ok"})
	rec.SessionEnded("sess-9")
	rec.Close()

	turns, err := s.SessionTurns(context.Background(), "sess-9")
	if err != nil {
		t.Fatalf("session turns: %v", err)
	}
	if len(turns) != 1 || turns[0].Response != "it shipped" {
		t.Fatalf("turns = %+v", turns)
	}
}

func TestNilRecorderIsNoOp(t *testing.T) {
	var rec *Recorder
	rec.SessionStarted("x", "")
	rec.TurnCompleted(Turn{})
	rec.SessionEnded("x")
	rec.Close()
}

// Sessions on hijacked connections outlive server shutdown, so writes
// arriving after Close must be dropped, not panic.
func TestRecorderWriteAfterCloseDrops(t *testing.T) {
	s := openTestStore(t)
	rec := NewRecorder(s)
	rec.Close()

	rec.SessionStarted("late", "")
	rec.TurnCompleted(Turn{SessionID: "late", Status: "ok"})
	rec.SessionEnded("late")
	rec.Close()

	turns, err := s.SessionTurns(context.Background(), "late")
	if err != nil {
		t.Fatalf("session turns: %v", err)
	}
	if len(turns) != 0 {
		t.Fatalf("recorded %d turns after close, want 0", len(turns))
	}
}
