// Package server exposes the mission engine over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/thoretheking/Junosixteen-sub000/internal/challenge"
	"github.com/thoretheking/Junosixteen-sub000/internal/decision"
	"github.com/thoretheking/Junosixteen-sub000/internal/engine"
	"github.com/thoretheking/Junosixteen-sub000/internal/facts"
	"github.com/thoretheking/Junosixteen-sub000/internal/mission"
	"github.com/thoretheking/Junosixteen-sub000/internal/progression"
	"github.com/thoretheking/Junosixteen-sub000/internal/risk"
)

// Evaluator runs a decision request through the progression controller.
type Evaluator interface {
	Evaluate(ctx context.Context, req facts.Request) (*progression.Result, error)
}

// MissionReader exposes the read-only mission selectors.
type MissionReader interface {
	CurrentMission(sessionID string) (mission.State, bool)
	TotalLives(sessionID string) int
	ProgressPercent(sessionID string) float64
	CanContinue(sessionID string) bool
}

// MissionDispatcher accepts mission events. Implemented by the mission store;
// the event route is registered only when the reader also dispatches.
type MissionDispatcher interface {
	DispatchSync(sessionID string, ev mission.Event)
}

// Server is the HTTP surface.
type Server struct {
	controller Evaluator
	missions   MissionReader
	risks      *risk.Hub
	logger     *zap.Logger
	router     *mux.Router
}

// New creates a server. missions and risks may be nil when the corresponding
// surface is not served.
func New(controller Evaluator, missions MissionReader, risks *risk.Hub, logger *zap.Logger) *Server {
	s := &Server{
		controller: controller,
		missions:   missions,
		risks:      risks,
		logger:     logger,
	}
	r := mux.NewRouter()
	r.Use(s.logRequests)
	r.HandleFunc("/decision", s.handleDecision).Methods(http.MethodPost)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	if missions != nil {
		r.HandleFunc("/missions/{sessionID}", s.handleMission).Methods(http.MethodGet)
		if _, ok := missions.(MissionDispatcher); ok {
			r.HandleFunc("/missions/{sessionID}/events", s.handleMissionEvent).Methods(http.MethodPost)
		}
	}
	if risks != nil {
		r.HandleFunc("/missions/{sessionID}/risk/{questionID}", s.handleRiskControl).Methods(http.MethodGet)
		r.HandleFunc("/missions/{sessionID}/risk/{questionID}/events", s.handleRiskEvent).Methods(http.MethodPost)
	}
	s.router = r
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("duration", time.Since(start)))
	})
}

type errorBody struct {
	Error string `json:"error"`
	Cause string `json:"cause,omitempty"`
}

func (s *Server) handleDecision(w http.ResponseWriter, r *http.Request) {
	var req facts.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "malformed request body", Cause: err.Error()})
		return
	}

	result, err := s.controller.Evaluate(r.Context(), req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	var validationErr *progression.ValidationError
	var inconsistentErr *facts.InconsistentFactsError

	switch {
	case errors.As(err, &validationErr):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "validation failed", Cause: validationErr.Error()})
	case errors.As(err, &inconsistentErr):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{Error: "inconsistent facts", Cause: inconsistentErr.Error()})
	case errors.Is(err, decision.ErrServiceUnavailable):
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "decision evaluator unavailable", Cause: err.Error()})
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeJSON(w, http.StatusGatewayTimeout, errorBody{Error: "decision timed out", Cause: err.Error()})
	default:
		s.logger.Error("decision failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error", Cause: err.Error()})
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":        "ok",
		"engineVersion": engine.Version,
	})
}

type missionView struct {
	MissionID       string  `json:"missionId"`
	Phase           string  `json:"phase"`
	Lives           int     `json:"lives"`
	BonusLives      int     `json:"bonusLives"`
	TotalLives      int     `json:"totalLives"`
	Points          int     `json:"points"`
	Index           int     `json:"index"`
	Streak          int     `json:"streak"`
	ProgressPercent float64 `json:"progressPercent"`
	CanContinue     bool    `json:"canContinue"`
}

func (s *Server) handleMission(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["sessionID"]
	state, ok := s.missions.CurrentMission(sessionID)
	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "unknown session"})
		return
	}
	writeJSON(w, http.StatusOK, missionView{
		MissionID:       state.MissionID,
		Phase:           state.Phase.String(),
		Lives:           state.Lives,
		BonusLives:      state.BonusLives,
		TotalLives:      state.TotalLives(),
		Points:          state.Points,
		Index:           state.Index,
		Streak:          state.Streak,
		ProgressPercent: s.missions.ProgressPercent(sessionID),
		CanContinue:     s.missions.CanContinue(sessionID),
	})
}

type missionEventBody struct {
	Type             string `json:"type"`
	MissionID        string `json:"missionId,omitempty"`
	QuestionID       string `json:"questionId,omitempty"`
	Kind             string `json:"kind,omitempty"`
	Part             string `json:"part,omitempty"`
	SelectedOptionID string `json:"selectedOptionId,omitempty"`
	ChallengeID      string `json:"challengeId,omitempty"`
	Points           int    `json:"points,omitempty"`
	TimeMs           int64  `json:"timeMs,omitempty"`
	Lives            int    `json:"lives,omitempty"`
	Amount           int    `json:"amount,omitempty"`
	Success          bool   `json:"success,omitempty"`
}

func (b missionEventBody) event(now time.Time) (mission.Event, error) {
	switch b.Type {
	case "start":
		return mission.Start{MissionID: b.MissionID, Lives: b.Lives, At: now}, nil
	case "correct_answer":
		return mission.CorrectAnswer{
			QuestionID:       b.QuestionID,
			Kind:             mission.QuestionKind(b.Kind),
			Part:             b.Part,
			SelectedOptionID: b.SelectedOptionID,
			Points:           b.Points,
			TimeMs:           b.TimeMs,
			At:               now,
		}, nil
	case "wrong_answer":
		return mission.WrongAnswer{
			QuestionID:       b.QuestionID,
			Kind:             mission.QuestionKind(b.Kind),
			Part:             b.Part,
			SelectedOptionID: b.SelectedOptionID,
			ChallengeID:      b.ChallengeID,
			TimeMs:           b.TimeMs,
			At:               now,
		}, nil
	case "challenge_completed":
		return mission.ChallengeCompleted{Success: b.Success, At: now}, nil
	case "lose_life":
		return mission.LoseLife{}, nil
	case "gain_life":
		return mission.GainLife{Amount: b.Amount}, nil
	case "bonus_game_completed":
		return mission.BonusGameCompleted{Success: b.Success, Points: b.Points, At: now}, nil
	case "reset":
		return mission.Reset{At: now}, nil
	default:
		return nil, fmt.Errorf("unknown event type %q", b.Type)
	}
}

func (s *Server) handleMissionEvent(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["sessionID"]
	var body missionEventBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "malformed request body", Cause: err.Error()})
		return
	}
	ev, err := body.event(time.Now())
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid event", Cause: err.Error()})
		return
	}
	s.missions.(MissionDispatcher).DispatchSync(sessionID, ev)
	s.handleMission(w, r)
}

type riskView struct {
	QuestionID        string `json:"questionId"`
	Phase             string `json:"phase"`
	AttemptsUsed      int    `json:"attemptsUsed"`
	MaxAttempts       int    `json:"maxAttempts"`
	LockUntil         string `json:"lockUntil,omitempty"`
	ActiveChallengeID string `json:"activeChallengeId,omitempty"`
	HintUsed          bool   `json:"hintUsed"`
	HintCost          int    `json:"hintCost,omitempty"`
	AdaptiveHelp      string `json:"adaptiveHelp,omitempty"`
}

func riskViewOf(ctrl risk.Control) riskView {
	v := riskView{
		QuestionID:        ctrl.QuestionID,
		Phase:             ctrl.Phase.String(),
		AttemptsUsed:      ctrl.AttemptsUsed,
		MaxAttempts:       ctrl.MaxAttempts,
		ActiveChallengeID: ctrl.ActiveChallengeID,
		HintUsed:          ctrl.HintUsed,
		HintCost:          ctrl.HintCost,
		AdaptiveHelp:      ctrl.AdaptiveHelp,
	}
	if !ctrl.LockUntil.IsZero() {
		v.LockUntil = ctrl.LockUntil.Format(time.RFC3339)
	}
	return v
}

type riskAttemptBody struct {
	Correct          bool  `json:"correct"`
	HelpUsed         bool  `json:"helpUsed"`
	TimeMs           int64 `json:"timeMs"`
	ChallengeSuccess *bool `json:"challengeSuccess,omitempty"`
}

type riskEventBody struct {
	Type        string            `json:"type"`
	ChallengeID string            `json:"challengeId,omitempty"`
	Cost        int               `json:"cost,omitempty"`
	Help        string            `json:"help,omitempty"`
	Recent      []riskAttemptBody `json:"recent,omitempty"`
}

func (s *Server) handleRiskControl(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	ctrl, ok := s.risks.Session(vars["sessionID"]).Snapshot(vars["questionID"])
	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "unknown risk question"})
		return
	}
	writeJSON(w, http.StatusOK, riskViewOf(ctrl))
}

func (s *Server) handleRiskEvent(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	mgr := s.risks.Session(vars["sessionID"])
	questionID := vars["questionID"]

	var body riskEventBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "malformed request body", Cause: err.Error()})
		return
	}

	var err error
	switch body.Type {
	case "attempt":
		err = mgr.Attempt(questionID)
	case "fail":
		err = mgr.Fail(questionID, body.ChallengeID)
	case "boss_passed":
		err = mgr.BossChallengePassed(questionID)
	case "boss_failed":
		err = mgr.BossChallengeFailed(questionID)
	case "hint":
		err = mgr.UseHint(questionID, body.Cost)
	case "adaptivity":
		recent := make([]challenge.Attempt, len(body.Recent))
		for i, a := range body.Recent {
			recent[i] = challenge.Attempt{
				Correct:          a.Correct,
				HelpUsed:         a.HelpUsed,
				TimeMs:           a.TimeMs,
				ChallengeSuccess: a.ChallengeSuccess,
			}
		}
		mgr.ApplyAdaptivity(questionID, challenge.DifficultyAdjust(recent), body.Help)
	default:
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid event", Cause: fmt.Sprintf("unknown event type %q", body.Type)})
		return
	}
	if err != nil {
		// Rejections leave the control record unchanged and are state
		// conflicts, never server faults.
		writeJSON(w, http.StatusConflict, errorBody{Error: "risk event rejected", Cause: err.Error()})
		return
	}

	ctrl, _ := mgr.Snapshot(questionID)
	writeJSON(w, http.StatusOK, riskViewOf(ctrl))
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
