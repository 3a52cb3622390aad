// Package decision turns a session event log into a typed mission decision.
// It builds the fact set once per cycle, evaluates it against the rule
// engine with bounded timeout and exponential-backoff retry, and extracts the
// four decision queries (status, raw points, final points, next question)
// from a single snapshot.
package decision

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/thoretheking/Junosixteen-sub000/internal/engine"
	"github.com/thoretheking/Junosixteen-sub000/internal/facts"
	"github.com/thoretheking/Junosixteen-sub000/internal/logging"
)

// Status is the outcome of a decision cycle.
type Status string

const (
	StatusInProgress    Status = "IN_PROGRESS"
	StatusPassed        Status = "PASSED"
	StatusResetRisk     Status = "RESET_RISK"
	StatusResetDeadline Status = "RESET_DEADLINE"
)

// ErrServiceUnavailable marks evaluator failure after all retries. It is
// surfaced explicitly and never mapped to a default status.
var ErrServiceUnavailable = errors.New("decision evaluator unavailable")

// Decision is the full typed result of one evaluation cycle.
type Decision struct {
	Status       Status        `json:"status"`
	PointsRaw    int           `json:"pointsRaw"`
	PointsFinal  *int          `json:"pointsFinal,omitempty"`
	NextQuestion *int          `json:"nextQuestion,omitempty"`
	FactsCount   int           `json:"factsCount"`
	QueryTime    time.Duration `json:"-"`
}

// Snapshot is the read surface of one engine evaluation.
type Snapshot interface {
	Rows(predicate string, varNames ...string) ([]engine.Row, error)
	Facts() int
}

// Evaluator runs one fact set to fixpoint. Evaluation is pure: identical
// fact sets yield identical snapshots.
type Evaluator interface {
	Evaluate(ctx context.Context, fs []facts.Fact) (Snapshot, error)
}

// Client coordinates fact extraction, evaluation and row extraction.
type Client struct {
	evaluator   Evaluator
	shape       facts.Shape
	attempts    int
	backoffBase time.Duration
	clock       func() time.Time
	sleep       func(context.Context, time.Duration) error
}

// Option configures a Client.
type Option func(*Client)

// WithClock replaces the wall clock, for deterministic tests.
func WithClock(clock func() time.Time) Option {
	return func(c *Client) { c.clock = clock }
}

// WithRetry sets the retry budget and backoff base.
func WithRetry(attempts int, backoffBase time.Duration) Option {
	return func(c *Client) {
		c.attempts = attempts
		c.backoffBase = backoffBase
	}
}

// New creates a decision client.
func New(evaluator Evaluator, shape facts.Shape, opts ...Option) *Client {
	c := &Client{
		evaluator:   evaluator,
		shape:       shape,
		attempts:    3,
		backoffBase: 100 * time.Millisecond,
		clock:       time.Now,
		sleep:       sleepCtx,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Decide runs one full decision cycle for the given request.
func (c *Client) Decide(ctx context.Context, req facts.Request) (*Decision, error) {
	start := time.Now()

	// One now fact per cycle; every query below sees the same clock reading.
	now := c.clock()
	fs, err := facts.Extract(req, c.shape, now)
	if err != nil {
		return nil, err
	}

	snap, err := c.evaluateWithRetry(ctx, fs)
	if err != nil {
		return nil, err
	}

	dec := &Decision{FactsCount: snap.Facts()}

	// The four queries are read-only over one immutable snapshot and can
	// run concurrently.
	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		status, err := extractStatus(snap)
		if err != nil {
			return err
		}
		dec.Status = status
		return nil
	})
	g.Go(func() error {
		total, err := extractOptionalTotal(snap, "points_raw")
		if err != nil {
			return err
		}
		if total != nil {
			dec.PointsRaw = *total
		}
		return nil
	})
	g.Go(func() error {
		total, err := extractOptionalTotal(snap, "points_final")
		if err != nil {
			return err
		}
		dec.PointsFinal = total
		return nil
	})
	g.Go(func() error {
		next, err := extractNextQuestion(snap)
		if err != nil {
			return err
		}
		dec.NextQuestion = next
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Final points are defined on passed missions only.
	if dec.Status != StatusPassed {
		dec.PointsFinal = nil
	}

	dec.QueryTime = time.Since(start)
	logging.DecisionDebug("decide session=%s status=%s raw=%d facts=%d in %v",
		req.SessionID, dec.Status, dec.PointsRaw, dec.FactsCount, dec.QueryTime)
	return dec, nil
}

// evaluateWithRetry retries transient evaluator failures with exponential
// backoff. Context cancellation aborts immediately.
func (c *Client) evaluateWithRetry(ctx context.Context, fs []facts.Fact) (Snapshot, error) {
	var lastErr error
	for attempt := 0; attempt < c.attempts; attempt++ {
		if attempt > 0 {
			backoff := c.backoffBase << uint(attempt)
			logging.Decision("evaluator retry %d/%d after %v: %v", attempt, c.attempts-1, backoff, lastErr)
			if err := c.sleep(ctx, backoff); err != nil {
				return nil, err
			}
		}

		snap, err := c.evaluator.Evaluate(ctx, fs)
		if err == nil {
			return snap, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err
	}
	return nil, fmt.Errorf("%w: %d attempts failed, last: %v", ErrServiceUnavailable, c.attempts, lastErr)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// extractStatus expects exactly one decision_status row; anything else means
// the rule set is broken and must not be silently defaulted.
func extractStatus(snap Snapshot) (Status, error) {
	rows, err := snap.Rows("decision_status", "Status")
	if err != nil {
		return "", err
	}
	if len(rows) != 1 {
		return "", fmt.Errorf("expected exactly one decision_status row, got %d", len(rows))
	}
	name, ok := rows[0]["Status"].(string)
	if !ok {
		return "", fmt.Errorf("decision_status bound to non-name value %v", rows[0]["Status"])
	}
	switch name {
	case engine.StatusInProgress:
		return StatusInProgress, nil
	case engine.StatusPassed:
		return StatusPassed, nil
	case engine.StatusResetRisk:
		return StatusResetRisk, nil
	case engine.StatusResetDeadline:
		return StatusResetDeadline, nil
	default:
		return "", fmt.Errorf("unknown decision_status %q", name)
	}
}

// extractOptionalTotal reads a single-arity total predicate; no row means the
// sum is undefined (zero correct answers, or not passed).
func extractOptionalTotal(snap Snapshot, predicate string) (*int, error) {
	rows, err := snap.Rows(predicate, "Total")
	if err != nil {
		return nil, err
	}
	switch len(rows) {
	case 0:
		return nil, nil
	case 1:
		total, err := rowInt(rows[0], "Total")
		if err != nil {
			return nil, fmt.Errorf("%s: %w", predicate, err)
		}
		return &total, nil
	default:
		return nil, fmt.Errorf("expected at most one %s row, got %d", predicate, len(rows))
	}
}

func extractNextQuestion(snap Snapshot) (*int, error) {
	rows, err := snap.Rows("next_question", "Idx")
	if err != nil {
		return nil, err
	}
	switch len(rows) {
	case 0:
		return nil, nil
	case 1:
		idx, err := rowInt(rows[0], "Idx")
		if err != nil {
			return nil, fmt.Errorf("next_question: %w", err)
		}
		return &idx, nil
	default:
		return nil, fmt.Errorf("expected at most one next_question row, got %d", len(rows))
	}
}

func rowInt(row engine.Row, name string) (int, error) {
	switch v := row[name].(type) {
	case int64:
		return int(v), nil
	case int:
		return v, nil
	default:
		return 0, fmt.Errorf("variable %s bound to non-number value %v", name, row[name])
	}
}
