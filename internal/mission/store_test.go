package mission

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func newTestStore() *Store {
	return NewStore(testRules, testChallenges)
}

func TestStore_DispatchSyncAppliesInOrder(t *testing.T) {
	defer goleak.VerifyNone(t)

	s := newTestStore()
	defer s.Close()

	s.DispatchSync("sess-1", Start{MissionID: "m1", At: time.Now()})
	s.DispatchSync("sess-1", CorrectAnswer{QuestionID: "q1", Points: 100})
	s.DispatchSync("sess-1", CorrectAnswer{QuestionID: "q2", Points: 100})

	state, ok := s.CurrentMission("sess-1")
	if !ok {
		t.Fatal("session not found")
	}
	if state.Index != 3 || state.Points != 200 {
		t.Errorf("index/points = %d/%d, want 3/200", state.Index, state.Points)
	}
}

func TestStore_SessionsAreIsolated(t *testing.T) {
	s := newTestStore()
	defer s.Close()

	s.DispatchSync("a", Start{MissionID: "m1"})
	s.DispatchSync("b", Start{MissionID: "m2"})
	s.DispatchSync("a", LoseLife{})

	if got := s.TotalLives("a"); got != 2 {
		t.Errorf("session a lives = %d, want 2", got)
	}
	if got := s.TotalLives("b"); got != 3 {
		t.Errorf("session b lives = %d, want 3", got)
	}
}

func TestStore_ConcurrentDispatch(t *testing.T) {
	defer goleak.VerifyNone(t)

	s := newTestStore()
	defer s.Close()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		sessionID := fmt.Sprintf("sess-%d", i)
		s.DispatchSync(sessionID, Start{MissionID: "m"})
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 5; j++ {
				s.DispatchSync(sessionID, CorrectAnswer{QuestionID: "q", Points: 10})
			}
		}()
	}
	wg.Wait()

	for i := 0; i < 8; i++ {
		sessionID := fmt.Sprintf("sess-%d", i)
		state, ok := s.CurrentMission(sessionID)
		if !ok || state.Points != 50 {
			t.Errorf("%s points = %d (found=%v), want 50", sessionID, state.Points, ok)
		}
	}
}

func TestStore_Selectors(t *testing.T) {
	s := newTestStore()
	defer s.Close()

	if s.CanContinue("missing") {
		t.Error("unknown session should not continue")
	}
	if got := s.ProgressPercent("missing"); got != 0 {
		t.Errorf("progress for unknown session = %v, want 0", got)
	}

	s.DispatchSync("sess-1", Start{MissionID: "m1"})
	if !s.CanContinue("sess-1") {
		t.Error("fresh session should continue")
	}

	s.DispatchSync("sess-1", CorrectAnswer{QuestionID: "q1", Points: 100})
	if got := s.ProgressPercent("sess-1"); got != 10 {
		t.Errorf("progress = %v, want 10", got)
	}

	for i := 0; i < 9; i++ {
		s.DispatchSync("sess-1", CorrectAnswer{QuestionID: "q", Points: 100})
	}
	if got := s.ProgressPercent("sess-1"); got != 100 {
		t.Errorf("progress after finish = %v, want 100", got)
	}
	if s.CanContinue("sess-1") {
		t.Error("finished session should not continue")
	}
}

func TestStore_Delete(t *testing.T) {
	s := newTestStore()
	defer s.Close()

	s.DispatchSync("sess-1", Start{MissionID: "m1"})
	s.Delete("sess-1")
	if _, ok := s.CurrentMission("sess-1"); ok {
		t.Error("deleted session still present")
	}
}
