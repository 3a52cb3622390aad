// Package risk implements the per-risk-question control machine: limited
// attempts, boss challenge fallback and cooldown. The authoritative
// consequence of running out of attempts is decided by the progression
// engine; this machine records the client-side mechanics and telemetry.
package risk

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/thoretheking/Junosixteen-sub000/internal/logging"
)

// Phase is the state of one risk question's control machine.
type Phase int

const (
	Ready Phase = iota
	Locked
	ChallengeActive
)

func (p Phase) String() string {
	switch p {
	case Ready:
		return "ready"
	case Locked:
		return "locked"
	case ChallengeActive:
		return "challenge_active"
	default:
		return "unknown"
	}
}

// Rejection reasons. All rejections leave state unchanged.
var (
	ErrLocked          = errors.New("risk question is cooling down")
	ErrChallengeActive = errors.New("boss challenge in progress")
	ErrOutOfAttempts   = errors.New("no attempts remaining")
	ErrHintUsed        = errors.New("hint already used")
	ErrNoChallenge     = errors.New("no boss challenge active")
)

// Control is the per-question record.
type Control struct {
	QuestionID          string
	Phase               Phase
	MaxAttempts         int
	AttemptsUsed        int
	Cooldown            time.Duration
	LockUntil           time.Time
	ActiveChallengeID   string
	BossChallengeFailed bool
	HintUsed            bool
	HintCost            int
	AdaptiveHelp        string
}

// CooldownActive reports whether the cooldown gate is closed at the given
// instant.
func (c Control) CooldownActive(now time.Time) bool {
	return c.Phase == Locked && now.Before(c.LockUntil)
}

// Recorder receives risk telemetry events. Implementations must not block.
type Recorder interface {
	Record(event, questionID string)
}

// Manager owns the control records for one session and drives cooldown
// expiry on a cooperative 1-second tick.
type Manager struct {
	mu       sync.Mutex
	controls map[string]*controlState

	maxAttempts int
	cooldown    time.Duration
	clock       func() time.Time
	recorder    Recorder
}

type controlState struct {
	Control
	outOfAttemptsFired bool
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock replaces the wall clock, for deterministic tests.
func WithClock(clock func() time.Time) Option {
	return func(m *Manager) { m.clock = clock }
}

// WithRecorder attaches a telemetry recorder.
func WithRecorder(r Recorder) Option {
	return func(m *Manager) { m.recorder = r }
}

// NewManager creates a manager.
func NewManager(maxAttempts int, cooldown time.Duration, opts ...Option) *Manager {
	m := &Manager{
		controls:    make(map[string]*controlState),
		maxAttempts: maxAttempts,
		cooldown:    cooldown,
		clock:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) state(questionID string) *controlState {
	cs, ok := m.controls[questionID]
	if !ok {
		cs = &controlState{Control: Control{
			QuestionID:  questionID,
			Phase:       Ready,
			MaxAttempts: m.maxAttempts,
			Cooldown:    m.cooldown,
		}}
		m.controls[questionID] = cs
	}
	return cs
}

// Attempt consumes one attempt. Valid only in Ready with attempts remaining;
// rejected otherwise with no state change.
func (m *Manager) Attempt(questionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cs := m.state(questionID)
	switch cs.Phase {
	case Locked:
		return fmt.Errorf("%w: until %s", ErrLocked, cs.LockUntil.Format(time.RFC3339))
	case ChallengeActive:
		return ErrChallengeActive
	}
	if cs.AttemptsUsed >= cs.MaxAttempts {
		return ErrOutOfAttempts
	}
	cs.AttemptsUsed++
	logging.Risk("question %s: attempt %d/%d", questionID, cs.AttemptsUsed, cs.MaxAttempts)
	return nil
}

// Fail records an incorrect risk answer and opens the boss challenge.
func (m *Manager) Fail(questionID, bossChallengeID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cs := m.state(questionID)
	if cs.Phase != Ready {
		return fmt.Errorf("fail rejected in phase %s", cs.Phase)
	}
	cs.Phase = ChallengeActive
	cs.ActiveChallengeID = bossChallengeID

	// The engine decides the authoritative consequence; we only record the
	// telemetry event, exactly once.
	if cs.AttemptsUsed >= cs.MaxAttempts && !cs.outOfAttemptsFired {
		cs.outOfAttemptsFired = true
		if m.recorder != nil {
			m.recorder.Record("out_of_attempts", questionID)
		}
	}
	return nil
}

// BossChallengePassed is a full reprieve: back to Ready with no attempt
// increment and no life loss.
func (m *Manager) BossChallengePassed(questionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cs := m.state(questionID)
	if cs.Phase != ChallengeActive {
		return ErrNoChallenge
	}
	cs.Phase = Ready
	cs.ActiveChallengeID = ""
	logging.Risk("question %s: boss challenge passed, reprieve granted", questionID)
	return nil
}

// BossChallengeFailed starts the cooldown.
func (m *Manager) BossChallengeFailed(questionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cs := m.state(questionID)
	if cs.Phase != ChallengeActive {
		return ErrNoChallenge
	}
	cs.Phase = Locked
	cs.ActiveChallengeID = ""
	cs.BossChallengeFailed = true
	cs.LockUntil = m.clock().Add(cs.Cooldown)
	logging.Risk("question %s: boss challenge failed, locked until %s", questionID, cs.LockUntil.Format(time.RFC3339))
	return nil
}

// UseHint marks the one-time hint as consumed and records what it cost. The
// caller must pre-validate that the session has enough points to pay for it.
func (m *Manager) UseHint(questionID string, cost int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cs := m.state(questionID)
	if cs.HintUsed {
		return ErrHintUsed
	}
	cs.HintUsed = true
	cs.HintCost = cost
	if m.recorder != nil {
		m.recorder.Record("hint_used", questionID)
	}
	logging.Risk("question %s: hint consumed for %d points", questionID, cost)
	return nil
}

// SetAdaptiveHelp attaches adaptive help content to a question.
func (m *Manager) SetAdaptiveHelp(questionID, help string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state(questionID).AdaptiveHelp = help
}

// ApplyAdaptivity reacts to a difficulty adjustment: easing off (negative)
// attaches the help content, anything else clears it.
func (m *Manager) ApplyAdaptivity(questionID string, adjust int, help string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cs := m.state(questionID)
	if adjust < 0 {
		cs.AdaptiveHelp = help
		logging.Risk("question %s: adaptive help attached", questionID)
		return
	}
	cs.AdaptiveHelp = ""
}

// Snapshot returns a copy of the control record.
func (m *Manager) Snapshot(questionID string) (Control, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cs, ok := m.controls[questionID]
	if !ok {
		return Control{}, false
	}
	return cs.Control, true
}

// Tick advances cooldown expiry: Locked becomes Ready once now >= lockUntil.
func (m *Manager) Tick() {
	now := m.clock()
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, cs := range m.controls {
		if cs.Phase == Locked && !now.Before(cs.LockUntil) {
			cs.Phase = Ready
			cs.LockUntil = time.Time{}
			logging.Risk("question %s: cooldown expired", cs.QuestionID)
		}
	}
}

// Run drives Tick on a cooperative 1-second interval until the context is
// cancelled. The ticker is always stopped on exit so no stale timer fires
// into an already-changed state.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Tick()
		}
	}
}
