// Package facts converts raw mission session events into the normalized,
// insertion-ordered fact set consumed by the decision engine. The fact set is
// rebuilt fresh for every decision cycle from the caller-supplied event log;
// no server-side accumulation is authoritative.
package facts

import (
	"fmt"
	"strings"
	"time"
)

// Fact represents a single logical fact (atom) in the decision EDB.
type Fact struct {
	Predicate string
	Args      []interface{}
}

// String returns the Datalog string representation of the fact.
// Strings starting with "/" are emitted as Mangle name constants.
func (f Fact) String() string {
	var args []string
	for _, arg := range f.Args {
		switch v := arg.(type) {
		case string:
			if strings.HasPrefix(v, "/") {
				args = append(args, v)
			} else {
				args = append(args, fmt.Sprintf("%q", v))
			}
		case int:
			args = append(args, fmt.Sprintf("%d", v))
		case int64:
			args = append(args, fmt.Sprintf("%d", v))
		case bool:
			if v {
				args = append(args, "/true")
			} else {
				args = append(args, "/false")
			}
		default:
			args = append(args, fmt.Sprintf("%v", v))
		}
	}
	return fmt.Sprintf("%s(%s).", f.Predicate, strings.Join(args, ", "))
}

// Answer is one answered question part from the session event log.
type Answer struct {
	Idx     int    `json:"idx"`
	Part    string `json:"part,omitempty"` // "A", "B" or empty for single-part questions
	Correct bool   `json:"correct"`
}

// TeamAnswer is one group member's result on the team question.
type TeamAnswer struct {
	MemberID string `json:"memberId"`
	Correct  bool   `json:"correct"`
}

// Request is a full decision request: the session event log plus mission
// identity. It is the durable source of truth for a decision.
type Request struct {
	UserID      string       `json:"userId"`
	SessionID   string       `json:"sessionId"`
	Level       int          `json:"level"`
	Watched     []int        `json:"watched"`
	Answers     []Answer     `json:"answers"`
	TeamAnswers []TeamAnswer `json:"teamAnswers,omitempty"`
	DeadlineISO string       `json:"deadlineISO"`
	BasePoints  map[int]int  `json:"basePoints,omitempty"`
	// RiskOverrides lists risk indexes whose failure was forgiven by a
	// passed boss challenge.
	RiskOverrides []int `json:"riskOverrides,omitempty"`
}

// Shape fixes the structural parameters of a mission for fact extraction.
type Shape struct {
	QuestionCount         int
	RiskIndexes           []int
	TeamIndex             int
	BasePoints            int
	RiskMultiplier        int
	TeamMultiplier        int
	TeamThresholdPermille int
}

// InconsistentFactsError reports conflicting correctness values for the same
// (idx, part). This is a caller error; it is never resolved last-write-wins.
type InconsistentFactsError struct {
	Idx  int
	Part string
}

func (e *InconsistentFactsError) Error() string {
	part := e.Part
	if part == "" {
		part = "-"
	}
	return fmt.Sprintf("inconsistent facts: conflicting correctness for question %d part %s", e.Idx, part)
}

// normalizePart maps an answer part tag to its Mangle name constant.
func normalizePart(part string) (string, error) {
	switch strings.ToUpper(strings.TrimSpace(part)) {
	case "":
		return "/none", nil
	case "A":
		return "/a", nil
	case "B":
		return "/b", nil
	default:
		return "", fmt.Errorf("unknown answer part %q", part)
	}
}

// Extract builds the complete fact set for one decision cycle. The now
// timestamp is captured once by the caller and never re-sampled mid-cycle, so
// every deadline comparison in the cycle sees the same clock reading.
func Extract(req Request, shape Shape, now time.Time) ([]Fact, error) {
	deadline, err := time.Parse(time.RFC3339, req.DeadlineISO)
	if err != nil {
		return nil, fmt.Errorf("parse deadline %q: %w", req.DeadlineISO, err)
	}

	out := make([]Fact, 0, 16+len(req.Watched)+len(req.Answers)+len(req.TeamAnswers)+shape.QuestionCount*2)

	out = append(out, Fact{"mission_session", []interface{}{req.UserID, req.SessionID, req.Level}})
	out = append(out, Fact{"question_count", []interface{}{shape.QuestionCount}})
	out = append(out, Fact{"team_threshold", []interface{}{shape.TeamThresholdPermille}})
	out = append(out, Fact{"risk_multiplier", []interface{}{shape.RiskMultiplier}})
	out = append(out, Fact{"team_multiplier", []interface{}{shape.TeamMultiplier}})
	for _, idx := range shape.RiskIndexes {
		out = append(out, Fact{"risk_index", []interface{}{idx}})
	}
	out = append(out, Fact{"team_index", []interface{}{shape.TeamIndex}})
	for i := 1; i <= shape.QuestionCount; i++ {
		out = append(out, Fact{"question_index", []interface{}{i}})
	}

	// Base points: per-index overrides win over the default table.
	for i := 1; i <= shape.QuestionCount; i++ {
		pts := shape.BasePoints
		if override, ok := req.BasePoints[i]; ok {
			pts = override
		}
		out = append(out, Fact{"base_points", []interface{}{i, pts}})
	}

	seenWatched := make(map[int]bool, len(req.Watched))
	for _, idx := range req.Watched {
		if seenWatched[idx] {
			continue
		}
		seenWatched[idx] = true
		out = append(out, Fact{"watched", []interface{}{idx}})
	}

	// Answers dedupe on identical values and reject contradictions.
	type partKey struct {
		idx  int
		part string
	}
	seenAnswers := make(map[partKey]bool, len(req.Answers))
	for _, a := range req.Answers {
		part, err := normalizePart(a.Part)
		if err != nil {
			return nil, err
		}
		key := partKey{a.Idx, part}
		if prev, ok := seenAnswers[key]; ok {
			if prev != a.Correct {
				return nil, &InconsistentFactsError{Idx: a.Idx, Part: strings.TrimPrefix(part, "/")}
			}
			continue
		}
		seenAnswers[key] = a.Correct
		out = append(out, Fact{"answer", []interface{}{a.Idx, part, a.Correct}})
	}

	seenMembers := make(map[string]bool, len(req.TeamAnswers))
	for _, ta := range req.TeamAnswers {
		if prev, ok := seenMembers[ta.MemberID]; ok {
			if prev != ta.Correct {
				return nil, &InconsistentFactsError{Idx: shape.TeamIndex, Part: "team:" + ta.MemberID}
			}
			continue
		}
		seenMembers[ta.MemberID] = ta.Correct
		out = append(out, Fact{"team_answer", []interface{}{ta.MemberID, ta.Correct}})
	}

	for _, idx := range req.RiskOverrides {
		out = append(out, Fact{"challenge_override", []interface{}{idx}})
	}

	out = append(out, Fact{"deadline", []interface{}{deadline.UnixMilli()}})
	// Exactly one now fact per cycle.
	out = append(out, Fact{"now", []interface{}{now.UnixMilli()}})

	return out, nil
}
