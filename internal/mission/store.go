package mission

import (
	"sync"

	"github.com/thoretheking/Junosixteen-sub000/internal/logging"
)

// Store holds mission state for multiple concurrent sessions. All mutation
// is serialized through a single dispatcher goroutine; concurrent events for
// the same session queue instead of racing. Selectors read a consistent
// snapshot under a read lock.
type Store struct {
	rules      Rules
	challenges ChallengeChecker

	mu       sync.RWMutex
	sessions map[string]State

	events chan envelope
	done   chan struct{}
}

type envelope struct {
	sessionID string
	event     Event
	ack       chan struct{} // non-nil for synchronous dispatch
}

// NewStore creates a store and starts its dispatcher.
func NewStore(rules Rules, challenges ChallengeChecker) *Store {
	s := &Store{
		rules:      rules,
		challenges: challenges,
		sessions:   make(map[string]State),
		events:     make(chan envelope, 64),
		done:       make(chan struct{}),
	}
	go s.dispatch()
	return s
}

func (s *Store) dispatch() {
	defer close(s.done)
	log := logging.Get(logging.CategoryMission)

	for env := range s.events {
		s.mu.RLock()
		state := s.sessions[env.sessionID]
		s.mu.RUnlock()

		next, effects := Reduce(s.rules, s.challenges, state, env.event)

		s.mu.Lock()
		s.sessions[env.sessionID] = next
		s.mu.Unlock()

		for _, eff := range effects {
			switch eff.Kind {
			case EffectWarnInvalid:
				log.Warn("session %s: %s", env.sessionID, eff.Message)
			default:
				log.Info("session %s: %s", env.sessionID, eff.Message)
			}
		}
		if env.ack != nil {
			close(env.ack)
		}
	}
}

// Dispatch enqueues an event for a session. Events for the same session are
// applied in dispatch order.
func (s *Store) Dispatch(sessionID string, ev Event) {
	s.events <- envelope{sessionID: sessionID, event: ev}
}

// DispatchSync enqueues an event and waits until it has been applied.
func (s *Store) DispatchSync(sessionID string, ev Event) {
	ack := make(chan struct{})
	s.events <- envelope{sessionID: sessionID, event: ev, ack: ack}
	<-ack
}

// Close stops the dispatcher after draining queued events.
func (s *Store) Close() {
	close(s.events)
	<-s.done
}

// CurrentMission returns the state snapshot for a session.
func (s *Store) CurrentMission(sessionID string) (State, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.sessions[sessionID]
	return state, ok
}

// TotalLives returns regular plus bonus lives for a session.
func (s *Store) TotalLives(sessionID string) int {
	state, ok := s.CurrentMission(sessionID)
	if !ok {
		return 0
	}
	return state.TotalLives()
}

// ProgressPercent reports answered progress through the mission, 0..100.
func (s *Store) ProgressPercent(sessionID string) float64 {
	state, ok := s.CurrentMission(sessionID)
	if !ok || s.rules.QuestionCount == 0 {
		return 0
	}
	if state.Phase == FinishedSuccess {
		return 100
	}
	answered := state.Index - 1
	if answered < 0 {
		answered = 0
	}
	return float64(answered) / float64(s.rules.QuestionCount) * 100
}

// CanContinue reports whether the session accepts further answers.
func (s *Store) CanContinue(sessionID string) bool {
	state, ok := s.CurrentMission(sessionID)
	if !ok {
		return false
	}
	return (state.Phase == Active || state.Phase == AwaitingChallenge) && state.TotalLives() > 0
}

// Delete removes a session from the working set.
func (s *Store) Delete(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
}
