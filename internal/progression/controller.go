// Package progression orchestrates fact extraction and decision evaluation
// behind one request/response contract, and applies the resulting decision
// to the session working set: resets clear it, passes archive it.
package progression

import (
	"context"
	"fmt"
	"time"

	"github.com/thoretheking/Junosixteen-sub000/internal/decision"
	"github.com/thoretheking/Junosixteen-sub000/internal/facts"
	"github.com/thoretheking/Junosixteen-sub000/internal/store"
	"github.com/thoretheking/Junosixteen-sub000/internal/telemetry"
)

// ValidationError rejects a malformed request before any fact is built. No
// partial state is produced.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid request: field %s: %s", e.Field, e.Reason)
}

// Decider runs one decision cycle.
type Decider interface {
	Decide(ctx context.Context, req facts.Request) (*decision.Decision, error)
}

// Archiver persists finished sessions.
type Archiver interface {
	Archive(ctx context.Context, s store.ArchivedSession) error
}

// Result is the controller's response contract.
type Result struct {
	Status       decision.Status `json:"status"`
	PointsRaw    int             `json:"pointsRaw"`
	PointsFinal  *int            `json:"pointsFinal,omitempty"`
	NextQuestion *int            `json:"nextQuestion,omitempty"`
	Debug        Debug           `json:"debug"`
}

// Debug carries evaluation metadata for the client.
type Debug struct {
	FactsCount  int   `json:"factsCount"`
	QueryTimeMs int64 `json:"queryTimeMs"`
}

// Controller wires the decision client to the session working set.
type Controller struct {
	decider  Decider
	repo     Repository
	archiver Archiver
	sink     telemetry.Sink
	maxLevel int
	clock    func() time.Time
}

// Option configures a Controller.
type Option func(*Controller)

// WithArchiver attaches the finished-session archive.
func WithArchiver(a Archiver) Option {
	return func(c *Controller) { c.archiver = a }
}

// WithTelemetry attaches a telemetry sink.
func WithTelemetry(s telemetry.Sink) Option {
	return func(c *Controller) { c.sink = s }
}

// WithClock replaces the wall clock, for deterministic tests.
func WithClock(clock func() time.Time) Option {
	return func(c *Controller) { c.clock = clock }
}

// New creates a controller.
func New(decider Decider, repo Repository, opts ...Option) *Controller {
	c := &Controller{
		decider:  decider,
		repo:     repo,
		sink:     telemetry.Nop{},
		maxLevel: 10,
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Validate checks a request without evaluating it.
func (c *Controller) Validate(req facts.Request) error {
	if req.UserID == "" {
		return &ValidationError{Field: "userId", Reason: "required"}
	}
	if req.SessionID == "" {
		return &ValidationError{Field: "sessionId", Reason: "required"}
	}
	if req.Level < 1 || req.Level > c.maxLevel {
		return &ValidationError{Field: "level", Reason: fmt.Sprintf("must be in [1,%d], got %d", c.maxLevel, req.Level)}
	}
	if req.Watched == nil {
		return &ValidationError{Field: "watched", Reason: "must be an array"}
	}
	if req.Answers == nil {
		return &ValidationError{Field: "answers", Reason: "must be an array"}
	}
	if req.DeadlineISO == "" {
		return &ValidationError{Field: "deadlineISO", Reason: "required"}
	}
	if _, err := time.Parse(time.RFC3339, req.DeadlineISO); err != nil {
		return &ValidationError{Field: "deadlineISO", Reason: "must be RFC3339"}
	}
	return nil
}

// Evaluate validates, decides and applies the decision. Application is
// all-or-nothing: on any error no working-set mutation happens.
func (c *Controller) Evaluate(ctx context.Context, req facts.Request) (*Result, error) {
	if err := c.Validate(req); err != nil {
		return nil, err
	}

	dec, err := c.decider.Decide(ctx, req)
	if err != nil {
		return nil, err
	}

	key := req.SessionID
	switch dec.Status {
	case decision.StatusResetRisk, decision.StatusResetDeadline:
		// Facts cleared, counters restart at index 1 / points 0 on the
		// next cycle.
		c.repo.Delete(key)
		c.sink.Emit(telemetry.Event{
			Name:      "session_reset",
			SessionID: req.SessionID,
			Fields:    map[string]interface{}{"reason": string(dec.Status)},
		})

	case decision.StatusPassed:
		if c.archiver != nil {
			points := dec.PointsRaw
			if dec.PointsFinal != nil {
				points = *dec.PointsFinal
			}
			archived := store.ArchivedSession{
				SessionID:  req.SessionID,
				UserID:     req.UserID,
				Level:      req.Level,
				Success:    true,
				Points:     points,
				FinishedAt: c.clock(),
				StartedAt:  c.clock(),
			}
			if err := c.archiver.Archive(ctx, archived); err != nil {
				return nil, fmt.Errorf("archive passed session: %w", err)
			}
		}
		c.repo.Delete(key)
		c.sink.Emit(telemetry.Event{
			Name:      "mission_passed",
			SessionID: req.SessionID,
			Fields:    map[string]interface{}{"level": req.Level, "points": dec.PointsFinal},
		})

	default:
		c.repo.Put(key, Entry{Request: req, LastStatus: dec.Status})
	}

	return &Result{
		Status:       dec.Status,
		PointsRaw:    dec.PointsRaw,
		PointsFinal:  dec.PointsFinal,
		NextQuestion: dec.NextQuestion,
		Debug: Debug{
			FactsCount:  dec.FactsCount,
			QueryTimeMs: dec.QueryTime.Milliseconds(),
		},
	}, nil
}
