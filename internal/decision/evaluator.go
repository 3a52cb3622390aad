package decision

import (
	"context"

	"github.com/thoretheking/Junosixteen-sub000/internal/engine"
	"github.com/thoretheking/Junosixteen-sub000/internal/facts"
)

// engineEvaluator adapts the concrete Mangle engine to the Evaluator
// boundary.
type engineEvaluator struct {
	eng *engine.Engine
}

// NewEngineEvaluator wraps an engine as an Evaluator.
func NewEngineEvaluator(eng *engine.Engine) Evaluator {
	return engineEvaluator{eng: eng}
}

func (e engineEvaluator) Evaluate(ctx context.Context, fs []facts.Fact) (Snapshot, error) {
	snap, err := e.eng.Evaluate(ctx, fs)
	if err != nil {
		return nil, err
	}
	return snap, nil
}
