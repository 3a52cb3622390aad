package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/thoretheking/Junosixteen-sub000/internal/mission"
)

func openTestArchive(t *testing.T) *Archive {
	t.Helper()
	a, err := Open(filepath.Join(t.TempDir(), "archive.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a
}

func sampleSession(sessionID, userID string, finishedAt time.Time) ArchivedSession {
	return ArchivedSession{
		SessionID: sessionID,
		UserID:    userID,
		Level:     4,
		Success:   true,
		Points:    1400,
		Lives:     2,
		History: []mission.AttemptRecord{
			{QuestionID: "q1", Index: 1, Correct: true, PointsAwarded: 100},
		},
		StartedAt:  finishedAt.Add(-20 * time.Minute),
		FinishedAt: finishedAt,
	}
}

func TestArchiveAndList(t *testing.T) {
	a := openTestArchive(t)
	ctx := context.Background()
	finished := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	if err := a.Archive(ctx, sampleSession("sess-1", "user-1", finished)); err != nil {
		t.Fatalf("Archive failed: %v", err)
	}

	got, err := a.ListFinished(ctx, "user-1")
	if err != nil {
		t.Fatalf("ListFinished failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d sessions, want 1", len(got))
	}
	s := got[0]
	if s.SessionID != "sess-1" || s.UserID != "user-1" || s.Level != 4 {
		t.Errorf("identity roundtrip failed: %+v", s)
	}
	if !s.Success || s.Points != 1400 || s.Lives != 2 {
		t.Errorf("outcome roundtrip failed: %+v", s)
	}
	if len(s.History) != 1 || s.History[0].QuestionID != "q1" {
		t.Errorf("history roundtrip failed: %+v", s.History)
	}
	if !s.FinishedAt.Equal(finished) {
		t.Errorf("finishedAt = %v, want %v", s.FinishedAt, finished)
	}
}

func TestArchive_Idempotent(t *testing.T) {
	a := openTestArchive(t)
	ctx := context.Background()
	finished := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	first := sampleSession("sess-1", "user-1", finished)
	if err := a.Archive(ctx, first); err != nil {
		t.Fatalf("first Archive failed: %v", err)
	}

	second := first
	second.Points = 999
	if err := a.Archive(ctx, second); err != nil {
		t.Fatalf("second Archive failed: %v", err)
	}

	got, err := a.ListFinished(ctx, "user-1")
	if err != nil {
		t.Fatalf("ListFinished failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d sessions after re-archive, want 1", len(got))
	}
	if got[0].Points != 999 {
		t.Errorf("points = %d, want latest value 999", got[0].Points)
	}
}

func TestListFinished_NewestFirstPerUser(t *testing.T) {
	a := openTestArchive(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	for i, sessionID := range []string{"old", "mid", "new"} {
		s := sampleSession(sessionID, "user-1", base.Add(time.Duration(i)*time.Hour))
		if err := a.Archive(ctx, s); err != nil {
			t.Fatalf("Archive %s failed: %v", sessionID, err)
		}
	}
	if err := a.Archive(ctx, sampleSession("other", "user-2", base)); err != nil {
		t.Fatalf("Archive failed: %v", err)
	}

	got, err := a.ListFinished(ctx, "user-1")
	if err != nil {
		t.Fatalf("ListFinished failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d sessions, want 3", len(got))
	}
	wantOrder := []string{"new", "mid", "old"}
	for i, want := range wantOrder {
		if got[i].SessionID != want {
			t.Errorf("position %d: got %s, want %s", i, got[i].SessionID, want)
		}
	}

	empty, err := a.ListFinished(ctx, "user-3")
	if err != nil {
		t.Fatalf("ListFinished for unknown user failed: %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("unknown user has %d sessions, want 0", len(empty))
	}
}

func TestOpen_CreatesParentDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deep", "nested", "archive.db")
	a, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer a.Close()

	if err := a.Archive(context.Background(), sampleSession("s", "u", time.Now())); err != nil {
		t.Errorf("Archive in nested path failed: %v", err)
	}
}
