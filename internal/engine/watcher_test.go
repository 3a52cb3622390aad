package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/goleak"
)

func TestRulesWatcher_LoadsExistingOverrideOnStart(t *testing.T) {
	defer goleak.VerifyNone(t)

	// An override that declares every session passed, regardless of answers.
	override := "decision_status(/passed) :- mission_session(UserId, SessionId, Level).\n"
	path := filepath.Join(t.TempDir(), "override.mgl")
	if err := os.WriteFile(path, []byte(override), 0644); err != nil {
		t.Fatalf("write override: %v", err)
	}

	eng := newTestEngine(t)
	w, err := NewRulesWatcher(path, eng)
	if err != nil {
		t.Fatalf("NewRulesWatcher failed: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer w.Stop()

	snap := evaluate(t, eng, baseRequest())
	if got := status(t, snap); got != StatusPassed {
		t.Errorf("status with override = %s, want %s", got, StatusPassed)
	}
}

func TestRulesWatcher_BrokenOverrideKeepsEmbeddedRules(t *testing.T) {
	path := filepath.Join(t.TempDir(), "override.mgl")
	if err := os.WriteFile(path, []byte("not a rule at all"), 0644); err != nil {
		t.Fatalf("write override: %v", err)
	}

	eng := newTestEngine(t)
	w, err := NewRulesWatcher(path, eng)
	if err != nil {
		t.Fatalf("NewRulesWatcher failed: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer w.Stop()

	snap := evaluate(t, eng, baseRequest())
	if got := status(t, snap); got != StatusInProgress {
		t.Errorf("status = %s, want embedded rules to stay active (%s)", got, StatusInProgress)
	}
}
