// Package mission implements the client-visible mission state machine:
// lives, points, question index, streak and the bonus mini-game. All
// transitions are pure functions of (state, event); invalid transitions are
// no-ops that surface a warning effect and never corrupt state.
package mission

import "time"

// Phase is the lifecycle phase of a mission session.
type Phase int

const (
	NotStarted Phase = iota
	Active
	AwaitingChallenge
	FinishedSuccess
	FinishedFail
)

func (p Phase) String() string {
	switch p {
	case NotStarted:
		return "not_started"
	case Active:
		return "active"
	case AwaitingChallenge:
		return "awaiting_challenge"
	case FinishedSuccess:
		return "finished_success"
	case FinishedFail:
		return "finished_fail"
	default:
		return "unknown"
	}
}

// QuestionKind classifies a history entry.
type QuestionKind string

const (
	KindStandard  QuestionKind = "standard"
	KindRisk      QuestionKind = "risk"
	KindTeam      QuestionKind = "team"
	KindChallenge QuestionKind = "challenge"
)

// AttemptRecord is one append-only history entry. Part is "A" or "B" for
// risk questions and empty otherwise.
type AttemptRecord struct {
	QuestionID       string       `json:"questionId"`
	Index            int          `json:"index"`
	Kind             QuestionKind `json:"kind"`
	Part             string       `json:"part,omitempty"`
	SelectedOptionID string       `json:"selectedOptionId,omitempty"`
	Correct          bool         `json:"correct"`
	TimeMs           int64        `json:"timeMs"`
	PointsAwarded    int          `json:"pointsAwarded"`
	Timestamp        time.Time    `json:"timestamp"`
}

// State is a mission session snapshot. Value semantics: reducers return new
// snapshots and never mutate shared history slices in place.
type State struct {
	MissionID          string
	Phase              Phase
	Lives              int // regular lives
	BonusLives         int
	Points             int
	Index              int // next question, 1-based
	Streak             int
	BonusGameAvailable bool
	BonusGamePlayed    bool
	History            []AttemptRecord
	PendingQuestionID  string
	PendingChallengeID string
	StartedAt          time.Time
	FinishedAt         time.Time
}

// TotalLives is regular plus bonus lives.
func (s State) TotalLives() int { return s.Lives + s.BonusLives }

// Finished reports whether the mission reached a terminal phase.
func (s State) Finished() bool {
	return s.Phase == FinishedSuccess || s.Phase == FinishedFail
}

// Success reports a successful finish.
func (s State) Success() bool { return s.Phase == FinishedSuccess }

// Rules fixes the structural parameters of the machine.
type Rules struct {
	QuestionCount   int
	LivesStart      int
	MaxRegularLives int
	MaxTotalLives   int
}

// Event is the closed set of mission events.
type Event interface {
	isEvent()
}

type Start struct {
	MissionID string
	Lives     int
	At        time.Time
}

type CorrectAnswer struct {
	QuestionID       string
	Kind             QuestionKind
	Part             string
	SelectedOptionID string
	Points           int
	TimeMs           int64
	At               time.Time
}

type WrongAnswer struct {
	QuestionID       string
	Kind             QuestionKind
	Part             string
	SelectedOptionID string
	ChallengeID      string
	TimeMs           int64
	At               time.Time
}

type ChallengeCompleted struct {
	Success bool
	At      time.Time
}

type LoseLife struct{}

type GainLife struct {
	Amount int
}

type BonusGameCompleted struct {
	Success bool
	Points  int
	At      time.Time
}

// Reset restarts a session after a RESET_RISK or RESET_DEADLINE decision:
// counters back to index 1 and zero points, lives refilled, history cleared.
type Reset struct {
	At time.Time
}

func (Start) isEvent()              {}
func (CorrectAnswer) isEvent()      {}
func (WrongAnswer) isEvent()        {}
func (ChallengeCompleted) isEvent() {}
func (LoseLife) isEvent()           {}
func (GainLife) isEvent()           {}
func (BonusGameCompleted) isEvent() {}
func (Reset) isEvent()              {}

// EffectKind classifies reducer side-signals.
type EffectKind int

const (
	EffectWarnInvalid EffectKind = iota
	EffectChallengeNotFound
	EffectBonusUnlocked
	EffectMissionPassed
	EffectMissionFailed
)

// Effect is a signal the reducer emits alongside the new state. Effects are
// for logging and telemetry; they carry no state of their own.
type Effect struct {
	Kind    EffectKind
	Message string
}

// ChallengeChecker answers whether a challenge id is registered.
type ChallengeChecker interface {
	Has(id string) bool
}

// Reduce applies one event to a state snapshot.
func Reduce(rules Rules, challenges ChallengeChecker, s State, ev Event) (State, []Effect) {
	switch e := ev.(type) {
	case Start:
		lives := e.Lives
		if lives <= 0 || lives > rules.MaxRegularLives {
			lives = rules.LivesStart
		}
		return State{
			MissionID: e.MissionID,
			Phase:     Active,
			Lives:     lives,
			Index:     1,
			StartedAt: e.At,
		}, nil

	case CorrectAnswer:
		if s.Phase != Active {
			return s, warnInvalid("correctAnswer", s)
		}
		next := s
		next.Points += e.Points
		next.Index++
		next.Streak++
		next.History = appendRecord(s.History, AttemptRecord{
			QuestionID:       e.QuestionID,
			Index:            s.Index,
			Kind:             kindOrStandard(e.Kind),
			Part:             e.Part,
			SelectedOptionID: e.SelectedOptionID,
			Correct:          true,
			TimeMs:           e.TimeMs,
			PointsAwarded:    e.Points,
			Timestamp:        e.At,
		})
		if next.Index > rules.QuestionCount {
			next.Phase = FinishedSuccess
			next.BonusGameAvailable = true
			next.FinishedAt = e.At
			return next, []Effect{
				{Kind: EffectMissionPassed, Message: "all questions answered"},
				{Kind: EffectBonusUnlocked, Message: "bonus mini-game available"},
			}
		}
		return next, nil

	case WrongAnswer:
		if s.Phase != Active {
			return s, warnInvalid("wrongAnswer", s)
		}
		next := s
		next.Streak = 0
		next.History = appendRecord(s.History, AttemptRecord{
			QuestionID:       e.QuestionID,
			Index:            s.Index,
			Kind:             kindOrStandard(e.Kind),
			Part:             e.Part,
			SelectedOptionID: e.SelectedOptionID,
			Correct:          false,
			TimeMs:           e.TimeMs,
			Timestamp:        e.At,
		})
		if e.ChallengeID != "" && challenges != nil && challenges.Has(e.ChallengeID) {
			next.Phase = AwaitingChallenge
			next.PendingQuestionID = e.QuestionID
			next.PendingChallengeID = e.ChallengeID
			return next, nil
		}
		var effects []Effect
		if e.ChallengeID != "" {
			// Unregistered challenge id: fall back to direct life loss.
			effects = append(effects, Effect{
				Kind:    EffectChallengeNotFound,
				Message: "challenge " + e.ChallengeID + " not registered, losing life",
			})
		}
		next, lossEffects := loseLife(next, e.At)
		return next, append(effects, lossEffects...)

	case ChallengeCompleted:
		if s.Phase != AwaitingChallenge {
			return s, warnInvalid("challengeCompleted", s)
		}
		next := s
		next.Phase = Active
		next.PendingQuestionID = ""
		next.PendingChallengeID = ""
		next.History = appendRecord(s.History, AttemptRecord{
			QuestionID: s.PendingChallengeID,
			Index:      s.Index,
			Kind:       KindChallenge,
			Correct:    e.Success,
			Timestamp:  e.At,
		})
		if e.Success {
			// A second chance, not a bypass: the question index does not
			// advance.
			return next, nil
		}
		return loseLife(next, e.At)

	case LoseLife:
		if s.Finished() || s.Phase == NotStarted {
			return s, warnInvalid("loseLife", s)
		}
		return loseLife(s, time.Time{})

	case GainLife:
		if s.Phase == NotStarted {
			return s, warnInvalid("gainLife", s)
		}
		return gainLives(rules, s, e.Amount), nil

	case BonusGameCompleted:
		if s.Phase != FinishedSuccess || !s.BonusGameAvailable || s.BonusGamePlayed {
			return s, warnInvalid("bonusGameCompleted", s)
		}
		next := s
		next.BonusGamePlayed = true
		if e.Success {
			next.Points += e.Points
			next = gainLives(rules, next, 1)
		}
		return next, nil

	case Reset:
		if s.Phase == NotStarted {
			return s, warnInvalid("reset", s)
		}
		return State{
			MissionID: s.MissionID,
			Phase:     Active,
			Lives:     rules.LivesStart,
			Index:     1,
			StartedAt: e.At,
		}, nil

	default:
		return s, warnInvalid("unknown event", s)
	}
}

func warnInvalid(event string, s State) []Effect {
	return []Effect{{
		Kind:    EffectWarnInvalid,
		Message: event + " ignored in phase " + s.Phase.String(),
	}}
}

// loseLife consumes bonus lives before regular lives; reaching zero total
// lives fails the mission.
func loseLife(s State, at time.Time) (State, []Effect) {
	next := s
	if next.BonusLives > 0 {
		next.BonusLives--
	} else if next.Lives > 0 {
		next.Lives--
	}
	if next.TotalLives() == 0 {
		next.Phase = FinishedFail
		next.FinishedAt = at
		return next, []Effect{{Kind: EffectMissionFailed, Message: "out of lives"}}
	}
	return next, nil
}

// gainLives fills regular lives first, overflows into bonus lives and hard
// caps the total.
func gainLives(rules Rules, s State, amount int) State {
	next := s
	for i := 0; i < amount; i++ {
		if next.TotalLives() >= rules.MaxTotalLives {
			break
		}
		if next.Lives < rules.MaxRegularLives {
			next.Lives++
		} else {
			next.BonusLives++
		}
	}
	return next
}

// appendRecord copies before appending so older snapshots stay immutable.
func kindOrStandard(k QuestionKind) QuestionKind {
	if k == "" {
		return KindStandard
	}
	return k
}

func appendRecord(history []AttemptRecord, rec AttemptRecord) []AttemptRecord {
	out := make([]AttemptRecord, len(history), len(history)+1)
	copy(out, history)
	return append(out, rec)
}
