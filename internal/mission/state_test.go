package mission

import (
	"testing"
	"time"
)

var testRules = Rules{
	QuestionCount:   10,
	LivesStart:      3,
	MaxRegularLives: 3,
	MaxTotalLives:   5,
}

type fakeChallenges map[string]bool

func (f fakeChallenges) Has(id string) bool { return f[id] }

var testChallenges = fakeChallenges{"firewall-breach": true}

func reduce(s State, ev Event) (State, []Effect) {
	return Reduce(testRules, testChallenges, s, ev)
}

func startedState(t *testing.T) State {
	t.Helper()
	s, effects := reduce(State{}, Start{MissionID: "m1", At: time.Now()})
	if len(effects) != 0 {
		t.Fatalf("unexpected start effects: %v", effects)
	}
	return s
}

func hasEffect(effects []Effect, kind EffectKind) bool {
	for _, e := range effects {
		if e.Kind == kind {
			return true
		}
	}
	return false
}

func TestStart(t *testing.T) {
	s := startedState(t)
	if s.Phase != Active {
		t.Errorf("phase = %s, want active", s.Phase)
	}
	if s.Lives != 3 || s.BonusLives != 0 {
		t.Errorf("lives = %d/%d, want 3/0", s.Lives, s.BonusLives)
	}
	if s.Index != 1 {
		t.Errorf("index = %d, want 1", s.Index)
	}
}

func TestStart_LivesOutOfRangeFallsBackToDefault(t *testing.T) {
	for _, lives := range []int{-1, 0, 4, 99} {
		s, _ := reduce(State{}, Start{MissionID: "m1", Lives: lives})
		if s.Lives != testRules.LivesStart {
			t.Errorf("Start with lives=%d: got %d, want %d", lives, s.Lives, testRules.LivesStart)
		}
	}
}

func TestCorrectAnswer_AdvancesAndScores(t *testing.T) {
	s := startedState(t)
	s, effects := reduce(s, CorrectAnswer{QuestionID: "q1", Points: 100, At: time.Now()})
	if len(effects) != 0 {
		t.Errorf("unexpected effects: %v", effects)
	}
	if s.Index != 2 || s.Points != 100 || s.Streak != 1 {
		t.Errorf("index/points/streak = %d/%d/%d, want 2/100/1", s.Index, s.Points, s.Streak)
	}
	if len(s.History) != 1 || !s.History[0].Correct {
		t.Errorf("history = %v, want one correct record", s.History)
	}
}

func TestCorrectAnswer_FinishesMission(t *testing.T) {
	s := startedState(t)
	var effects []Effect
	for i := 0; i < 10; i++ {
		s, effects = reduce(s, CorrectAnswer{QuestionID: "q", Points: 100, At: time.Now()})
	}
	if s.Phase != FinishedSuccess {
		t.Fatalf("phase = %s, want finished_success", s.Phase)
	}
	if !s.BonusGameAvailable {
		t.Error("bonus game should unlock on success")
	}
	if !hasEffect(effects, EffectMissionPassed) || !hasEffect(effects, EffectBonusUnlocked) {
		t.Errorf("final effects = %v, want mission passed and bonus unlocked", effects)
	}
	if s.Points != 1000 {
		t.Errorf("points = %d, want 1000", s.Points)
	}
}

func TestWrongAnswer_RegisteredChallengeDefersLifeLoss(t *testing.T) {
	s := startedState(t)
	s, effects := reduce(s, WrongAnswer{QuestionID: "q1", ChallengeID: "firewall-breach"})
	if len(effects) != 0 {
		t.Errorf("unexpected effects: %v", effects)
	}
	if s.Phase != AwaitingChallenge {
		t.Errorf("phase = %s, want awaiting_challenge", s.Phase)
	}
	if s.Lives != 3 {
		t.Errorf("lives = %d, want 3 while challenge pending", s.Lives)
	}
	if s.PendingChallengeID != "firewall-breach" {
		t.Errorf("pending challenge = %q", s.PendingChallengeID)
	}
	if s.Streak != 0 {
		t.Errorf("streak = %d, want 0 after wrong answer", s.Streak)
	}
}

func TestWrongAnswer_UnknownChallengeLosesLifeDirectly(t *testing.T) {
	s := startedState(t)
	s, effects := reduce(s, WrongAnswer{QuestionID: "q1", ChallengeID: "no-such-thing"})
	if !hasEffect(effects, EffectChallengeNotFound) {
		t.Errorf("effects = %v, want challenge-not-found", effects)
	}
	if s.Phase != Active || s.Lives != 2 {
		t.Errorf("phase/lives = %s/%d, want active/2", s.Phase, s.Lives)
	}
}

func TestChallengeCompleted_SuccessKeepsIndex(t *testing.T) {
	s := startedState(t)
	s, _ = reduce(s, WrongAnswer{QuestionID: "q1", ChallengeID: "firewall-breach"})
	s, effects := reduce(s, ChallengeCompleted{Success: true})
	if len(effects) != 0 {
		t.Errorf("unexpected effects: %v", effects)
	}
	if s.Phase != Active || s.Lives != 3 {
		t.Errorf("phase/lives = %s/%d, want active/3", s.Phase, s.Lives)
	}
	// A second chance, not a skip.
	if s.Index != 1 {
		t.Errorf("index = %d, want 1", s.Index)
	}
}

func TestChallengeCompleted_FailureLosesLife(t *testing.T) {
	s := startedState(t)
	s, _ = reduce(s, WrongAnswer{QuestionID: "q1", ChallengeID: "firewall-breach"})
	s, _ = reduce(s, ChallengeCompleted{Success: false})
	if s.Phase != Active || s.Lives != 2 {
		t.Errorf("phase/lives = %s/%d, want active/2", s.Phase, s.Lives)
	}
}

func TestLoseLife_BonusConsumedFirst(t *testing.T) {
	s := startedState(t)
	s, _ = reduce(s, GainLife{Amount: 2}) // 3 regular + 2 bonus
	s, _ = reduce(s, LoseLife{})
	if s.Lives != 3 || s.BonusLives != 1 {
		t.Errorf("lives = %d/%d, want 3/1", s.Lives, s.BonusLives)
	}
}

func TestLoseLife_ZeroTotalFailsMission(t *testing.T) {
	s := startedState(t)
	var effects []Effect
	for i := 0; i < 3; i++ {
		s, effects = reduce(s, LoseLife{})
	}
	if s.Phase != FinishedFail {
		t.Errorf("phase = %s, want finished_fail", s.Phase)
	}
	if !hasEffect(effects, EffectMissionFailed) {
		t.Errorf("effects = %v, want mission failed", effects)
	}
}

func TestGainLife_FillsRegularThenBonusWithCap(t *testing.T) {
	s := startedState(t)
	s, _ = reduce(s, LoseLife{}) // 2 regular
	s, _ = reduce(s, GainLife{Amount: 10})
	if s.Lives != testRules.MaxRegularLives {
		t.Errorf("regular lives = %d, want %d", s.Lives, testRules.MaxRegularLives)
	}
	if s.TotalLives() != testRules.MaxTotalLives {
		t.Errorf("total lives = %d, want %d", s.TotalLives(), testRules.MaxTotalLives)
	}
}

func TestBonusGame_OnlyOnceAndOnlyAfterSuccess(t *testing.T) {
	s := startedState(t)
	_, effects := reduce(s, BonusGameCompleted{Success: true, Points: 50})
	if !hasEffect(effects, EffectWarnInvalid) {
		t.Error("bonus game before finishing should warn and no-op")
	}

	for i := 0; i < 10; i++ {
		s, _ = reduce(s, CorrectAnswer{QuestionID: "q", Points: 100})
	}
	s, _ = reduce(s, BonusGameCompleted{Success: true, Points: 50})
	if s.Points != 1050 {
		t.Errorf("points = %d, want 1050", s.Points)
	}
	if s.TotalLives() != 4 {
		t.Errorf("total lives = %d, want 4 after bonus win", s.TotalLives())
	}

	before := s
	s, effects = reduce(s, BonusGameCompleted{Success: true, Points: 50})
	if !hasEffect(effects, EffectWarnInvalid) {
		t.Error("second bonus game should warn")
	}
	if s.Points != before.Points {
		t.Error("second bonus game must not score")
	}
}

func TestReset_RestartsCounters(t *testing.T) {
	s := startedState(t)
	s, _ = reduce(s, CorrectAnswer{QuestionID: "q1", Points: 100})
	s, _ = reduce(s, LoseLife{})
	s, _ = reduce(s, Reset{At: time.Now()})

	if s.Phase != Active || s.Index != 1 || s.Points != 0 {
		t.Errorf("phase/index/points = %s/%d/%d, want active/1/0", s.Phase, s.Index, s.Points)
	}
	if s.Lives != testRules.LivesStart {
		t.Errorf("lives = %d, want refilled to %d", s.Lives, testRules.LivesStart)
	}
	if len(s.History) != 0 {
		t.Errorf("history = %v, want cleared", s.History)
	}
	if s.MissionID != "m1" {
		t.Errorf("missionID = %q, want preserved", s.MissionID)
	}
}

func TestInvalidTransitionsAreNoOps(t *testing.T) {
	tests := []struct {
		name  string
		state State
		event Event
	}{
		{"answer before start", State{}, CorrectAnswer{QuestionID: "q"}},
		{"wrong answer before start", State{}, WrongAnswer{QuestionID: "q"}},
		{"challenge without pending", startedState(t), ChallengeCompleted{Success: true}},
		{"lose life before start", State{}, LoseLife{}},
		{"gain life before start", State{}, GainLife{Amount: 1}},
		{"reset before start", State{}, Reset{}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			next, effects := reduce(tc.state, tc.event)
			if !hasEffect(effects, EffectWarnInvalid) {
				t.Errorf("effects = %v, want warn", effects)
			}
			if next.Phase != tc.state.Phase || next.Points != tc.state.Points || next.Index != tc.state.Index {
				t.Errorf("state changed on invalid transition: %+v -> %+v", tc.state, next)
			}
		})
	}
}

func TestHistoryIsImmutableAcrossSnapshots(t *testing.T) {
	s := startedState(t)
	s1, _ := reduce(s, CorrectAnswer{QuestionID: "q1", Points: 100})
	s2, _ := reduce(s1, CorrectAnswer{QuestionID: "q2", Points: 100})
	s3, _ := reduce(s1, WrongAnswer{QuestionID: "q2b", ChallengeID: ""})

	if len(s1.History) != 1 {
		t.Fatalf("s1 history length = %d, want 1", len(s1.History))
	}
	if s2.History[1].QuestionID != "q2" {
		t.Errorf("s2 history[1] = %q, want q2", s2.History[1].QuestionID)
	}
	if s3.History[1].QuestionID != "q2b" {
		t.Errorf("s3 history[1] = %q, want q2b", s3.History[1].QuestionID)
	}
	// Divergent futures must not overwrite each other's records.
	if s2.History[1].QuestionID == s3.History[1].QuestionID {
		t.Error("history slices are shared between snapshots")
	}
}

func TestAttemptRecord_CarriesKindPartAndSelection(t *testing.T) {
	s := startedState(t)
	s, _ = reduce(s, CorrectAnswer{
		QuestionID:       "q5",
		Kind:             KindRisk,
		Part:             "A",
		SelectedOptionID: "opt-3",
		Points:           100,
	})
	s, _ = reduce(s, WrongAnswer{
		QuestionID:       "q5",
		Kind:             KindRisk,
		Part:             "B",
		SelectedOptionID: "opt-1",
	})

	if len(s.History) != 2 {
		t.Fatalf("history length = %d, want 2", len(s.History))
	}
	rec := s.History[0]
	if rec.Kind != KindRisk || rec.Part != "A" || rec.SelectedOptionID != "opt-3" {
		t.Errorf("first record = %+v, want risk/A/opt-3", rec)
	}
	rec = s.History[1]
	if rec.Kind != KindRisk || rec.Part != "B" || rec.SelectedOptionID != "opt-1" || rec.Correct {
		t.Errorf("second record = %+v, want incorrect risk/B/opt-1", rec)
	}
}

func TestAttemptRecord_KindDefaultsToStandard(t *testing.T) {
	s := startedState(t)
	s, _ = reduce(s, CorrectAnswer{QuestionID: "q1", Points: 100})
	if got := s.History[0].Kind; got != KindStandard {
		t.Errorf("kind = %q, want %q", got, KindStandard)
	}
}

func TestChallengeCompleted_OutcomeIsRecorded(t *testing.T) {
	s := startedState(t)
	s, _ = reduce(s, WrongAnswer{QuestionID: "q3", ChallengeID: "firewall-breach"})
	s, _ = reduce(s, ChallengeCompleted{Success: true})

	last := s.History[len(s.History)-1]
	if last.Kind != KindChallenge || last.QuestionID != "firewall-breach" || !last.Correct {
		t.Errorf("challenge record = %+v, want correct challenge entry for firewall-breach", last)
	}

	s, _ = reduce(s, WrongAnswer{QuestionID: "q3", ChallengeID: "firewall-breach"})
	s, _ = reduce(s, ChallengeCompleted{Success: false})
	last = s.History[len(s.History)-1]
	if last.Kind != KindChallenge || last.Correct {
		t.Errorf("challenge record = %+v, want failed challenge entry", last)
	}
}
