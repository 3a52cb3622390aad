// Package engine wraps the google/mangle Datalog engine as the mission
// decision evaluator. Each evaluation builds a fresh fact store from the
// extracted fact set, runs the embedded progression rules to fixpoint and
// exposes the derived predicates as typed rows binding named variables.
package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/mangle/analysis"
	"github.com/google/mangle/ast"
	"github.com/google/mangle/engine"
	"github.com/google/mangle/factstore"
	"github.com/google/mangle/parse"

	"github.com/thoretheking/Junosixteen-sub000/internal/facts"
	"github.com/thoretheking/Junosixteen-sub000/internal/logging"
)

// Config holds evaluator configuration.
type Config struct {
	QueryTimeout time.Duration // per-evaluation budget, default 5s
	FactLimit    int           // max EDB facts per evaluation, 0 = unlimited
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		QueryTimeout: 5 * time.Second,
		FactLimit:    100000,
	}
}

// Engine compiles the progression rules once and evaluates fact sets against
// them. Safe for concurrent use; evaluations never share mutable state.
type Engine struct {
	config Config

	mu          sync.RWMutex
	programInfo *analysis.ProgramInfo
	declIndex   map[string]ast.PredicateSym
	rulesText   string
}

// Row binds the variable names of one derived fact to their values.
type Row map[string]interface{}

// Snapshot is the immutable result of one fixpoint evaluation.
type Snapshot struct {
	store     factstore.FactStore
	declIndex map[string]ast.PredicateSym
	FactCount int
}

// New compiles the embedded progression program.
func New(cfg Config) (*Engine, error) {
	e := &Engine{config: cfg}
	if err := e.setProgram(schemaDecls + "\n" + progressionRules); err != nil {
		return nil, fmt.Errorf("embedded progression rules failed to compile: %w", err)
	}
	return e, nil
}

// setProgram parses and analyzes a full program (decls + rules) and installs
// it as the active program. A failing program never replaces the last good
// one.
func (e *Engine) setProgram(text string) error {
	parsed, err := parse.Unit(strings.NewReader(text))
	if err != nil {
		return fmt.Errorf("parse rules: %w", err)
	}
	programInfo, err := analysis.AnalyzeOneUnit(parsed, nil)
	if err != nil {
		return fmt.Errorf("analyze rules: %w", err)
	}

	declIndex := make(map[string]ast.PredicateSym, len(programInfo.Decls))
	for sym := range programInfo.Decls {
		declIndex[sym.Symbol] = sym
	}

	e.mu.Lock()
	e.programInfo = programInfo
	e.declIndex = declIndex
	e.rulesText = text
	e.mu.Unlock()
	return nil
}

// SetRules replaces the rule section while keeping the embedded schema. Used
// by the override watcher; validation happens before installation.
func (e *Engine) SetRules(rules string) error {
	return e.setProgram(schemaDecls + "\n" + rules)
}

// RulesText returns the active program text.
func (e *Engine) RulesText() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.rulesText
}

// Evaluate runs one fixpoint over the given fact set. The evaluation is
// bounded by the configured query timeout unless the context carries an
// earlier deadline. Identical fact sets yield identical snapshots.
func (e *Engine) Evaluate(ctx context.Context, fs []facts.Fact) (*Snapshot, error) {
	e.mu.RLock()
	programInfo := e.programInfo
	declIndex := e.declIndex
	e.mu.RUnlock()

	if programInfo == nil {
		return nil, fmt.Errorf("no rules loaded")
	}
	if e.config.FactLimit > 0 && len(fs) > e.config.FactLimit {
		return nil, fmt.Errorf("fact limit exceeded: %d > %d", len(fs), e.config.FactLimit)
	}

	timeout := e.config.QueryTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	timer := logging.StartTimer(logging.CategoryEngine, "Evaluate")
	resultChan := make(chan *Snapshot, 1)
	errChan := make(chan error, 1)

	go func() {
		store := factstore.NewSimpleInMemoryStore()
		for _, f := range fs {
			atom, err := factToAtom(f, declIndex)
			if err != nil {
				errChan <- err
				return
			}
			store.Add(atom)
		}

		// Gas limit keeps a pathological override rule set from
		// exploding the derived fact count.
		const derivedFactLimit = 500000
		if _, err := engine.EvalProgramWithStats(programInfo, store,
			engine.WithCreatedFactLimit(derivedFactLimit)); err != nil {
			errChan <- fmt.Errorf("fixpoint evaluation failed: %w", err)
			return
		}

		resultChan <- &Snapshot{
			store:     store,
			declIndex: declIndex,
			FactCount: len(fs),
		}
	}()

	select {
	case snap := <-resultChan:
		timer.Stop()
		return snap, nil
	case err := <-errChan:
		timer.Stop()
		return nil, err
	case <-ctx.Done():
		return nil, fmt.Errorf("evaluation timed out after %v: %w", timer.Stop(), ctx.Err())
	}
}

// Facts reports how many EDB facts the snapshot was built from.
func (s *Snapshot) Facts() int { return s.FactCount }

// Rows returns every derived fact for a predicate, binding the given variable
// names positionally. Consumers extract values by bound name, never by
// matching serialized text.
func (s *Snapshot) Rows(predicate string, varNames ...string) ([]Row, error) {
	sym, ok := s.declIndex[predicate]
	if !ok {
		return nil, fmt.Errorf("predicate %s is not declared", predicate)
	}
	if len(varNames) != sym.Arity {
		return nil, fmt.Errorf("predicate %s has arity %d, got %d variable names", predicate, sym.Arity, len(varNames))
	}

	var rows []Row
	err := s.store.GetFacts(ast.NewQuery(sym), func(atom ast.Atom) error {
		row := make(Row, len(varNames))
		for i, name := range varNames {
			row[name] = baseTermToValue(atom.Args[i])
		}
		rows = append(rows, row)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// factToAtom converts an extracted fact to a Mangle atom, checking the
// predicate against the declared schema.
func factToAtom(f facts.Fact, declIndex map[string]ast.PredicateSym) (ast.Atom, error) {
	sym, ok := declIndex[f.Predicate]
	if !ok {
		return ast.Atom{}, fmt.Errorf("predicate %s is not declared in the schema", f.Predicate)
	}
	if len(f.Args) != sym.Arity {
		return ast.Atom{}, fmt.Errorf("predicate %s expects %d args, got %d", f.Predicate, sym.Arity, len(f.Args))
	}

	terms := make([]ast.BaseTerm, 0, len(f.Args))
	for _, arg := range f.Args {
		switch v := arg.(type) {
		case string:
			if strings.HasPrefix(v, "/") {
				c, err := ast.Name(v)
				if err != nil {
					return ast.Atom{}, err
				}
				terms = append(terms, c)
			} else {
				terms = append(terms, ast.String(v))
			}
		case int:
			terms = append(terms, ast.Number(int64(v)))
		case int64:
			terms = append(terms, ast.Number(v))
		case bool:
			if v {
				terms = append(terms, ast.TrueConstant)
			} else {
				terms = append(terms, ast.FalseConstant)
			}
		default:
			return ast.Atom{}, fmt.Errorf("predicate %s: unsupported fact argument type %T", f.Predicate, v)
		}
	}
	return ast.NewAtom(f.Predicate, terms...), nil
}

// baseTermToValue extracts the Go value from a Mangle BaseTerm.
func baseTermToValue(term ast.BaseTerm) interface{} {
	switch t := term.(type) {
	case ast.Constant:
		switch t.Type {
		case ast.NameType:
			return t.Symbol
		case ast.StringType:
			return t.Symbol
		case ast.NumberType:
			return t.NumValue
		default:
			return t.Symbol
		}
	default:
		return fmt.Sprintf("%v", term)
	}
}
