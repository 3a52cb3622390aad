package challenge

// Answer-quality rubric. The score is an independent signal for adaptive
// difficulty; it never feeds pass/fail.

const (
	guessThresholdMs   = 3000
	fatigueThresholdMs = 60000

	helpPenalty  = 0.8
	guessPenalty = 0.9
	rescueBonus  = 0.2
)

// Attempt is one scored answer.
type Attempt struct {
	Correct  bool
	HelpUsed bool
	TimeMs   int64
	// ChallengeSuccess is set when a boss challenge resolved this attempt;
	// its outcome overrides the running score.
	ChallengeSuccess *bool
}

// Score is the rubric result for one attempt.
type Score struct {
	Value        float64
	GuessPattern bool
	Fatigue      bool
}

// Evaluate scores a single attempt.
func Evaluate(a Attempt) Score {
	var s Score
	if a.Correct {
		s.Value = 1.0
	}
	if a.HelpUsed {
		s.Value *= helpPenalty
	}
	if a.TimeMs >= 0 && a.TimeMs < guessThresholdMs {
		s.Value *= guessPenalty
		s.GuessPattern = true
	}
	if a.TimeMs > fatigueThresholdMs {
		s.Fatigue = true
	}
	if a.ChallengeSuccess != nil {
		if *a.ChallengeSuccess {
			s.Value += rescueBonus
			if s.Value > 1 {
				s.Value = 1
			}
		} else {
			s.Value = 0
		}
	}
	if s.Value < 0 {
		s.Value = 0
	}
	if s.Value > 1 {
		s.Value = 1
	}
	return s
}

// DifficultyAdjust aggregates recent attempts into a difficulty delta:
// -1 to ease off, +1 to push harder, 0 to hold.
func DifficultyAdjust(recent []Attempt) int {
	if len(recent) == 0 {
		return 0
	}

	var scoreSum float64
	var helpCount int
	for _, a := range recent {
		scoreSum += Evaluate(a).Value
		if a.HelpUsed {
			helpCount++
		}
	}
	avg := scoreSum / float64(len(recent))
	helpRate := float64(helpCount) / float64(len(recent))

	switch {
	case avg < 0.55 || helpRate > 0.25:
		return -1
	case avg > 0.82 && helpRate < 0.10:
		return 1
	default:
		return 0
	}
}
