// Package challenge holds the closed table of boss challenges offered after
// a risk-question failure, plus the rubric scoring of answer quality.
package challenge

import "time"

// Input is the closed set of challenge input shapes. Each challenge kind
// validates exactly one variant; every other variant is simply wrong, never
// an error.
type Input interface {
	isInput()
}

// SequenceInput is an ordered sequence of tokens to match.
type SequenceInput struct {
	Values []string
}

// CountInput reports how many targets were hit.
type CountInput struct {
	Hits int
}

// SingleInput is a single-value answer.
type SingleInput struct {
	Value string
}

// MappingInput is a key to value assignment.
type MappingInput struct {
	Values map[string]string
}

func (SequenceInput) isInput() {}
func (CountInput) isInput()    {}
func (SingleInput) isInput()   {}
func (MappingInput) isInput()  {}

// Kind discriminates the challenge input shape.
type Kind int

const (
	KindSequence Kind = iota
	KindCount
	KindSingle
	KindMapping
)

// Challenge is one boss challenge definition. Validate is pure and total:
// malformed or mismatched input yields false, never a panic.
type Challenge struct {
	ID         string
	WorldTag   string
	Kind       Kind
	TimeLimit  time.Duration
	Difficulty int

	// Expected answer, one field per kind.
	WantSequence []string
	MinHits      int
	WantValue    string
	WantMapping  map[string]string
}

// Validate checks an input against the challenge's expected answer.
func (c Challenge) Validate(in Input) bool {
	switch c.Kind {
	case KindSequence:
		seq, ok := in.(SequenceInput)
		if !ok || len(seq.Values) != len(c.WantSequence) {
			return false
		}
		for i, v := range c.WantSequence {
			if seq.Values[i] != v {
				return false
			}
		}
		return true
	case KindCount:
		cnt, ok := in.(CountInput)
		return ok && cnt.Hits >= c.MinHits
	case KindSingle:
		single, ok := in.(SingleInput)
		return ok && single.Value == c.WantValue
	case KindMapping:
		mapping, ok := in.(MappingInput)
		if !ok || len(mapping.Values) != len(c.WantMapping) {
			return false
		}
		for k, want := range c.WantMapping {
			if mapping.Values[k] != want {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// Registry is a closed table of challenges keyed by id.
type Registry struct {
	byID map[string]Challenge
}

// NewRegistry builds a registry from explicit definitions.
func NewRegistry(defs ...Challenge) *Registry {
	r := &Registry{byID: make(map[string]Challenge, len(defs))}
	for _, def := range defs {
		r.byID[def.ID] = def
	}
	return r
}

// Lookup returns the challenge for an id.
func (r *Registry) Lookup(id string) (Challenge, bool) {
	c, ok := r.byID[id]
	return c, ok
}

// Has reports whether the id is registered.
func (r *Registry) Has(id string) bool {
	_, ok := r.byID[id]
	return ok
}

// DefaultRegistry returns the built-in boss challenge table.
func DefaultRegistry() *Registry {
	return NewRegistry(
		Challenge{
			ID:           "firewall-breach",
			WorldTag:     "cyber",
			Kind:         KindSequence,
			TimeLimit:    30 * time.Second,
			Difficulty:   2,
			WantSequence: []string{"scan", "exploit", "patch"},
		},
		Challenge{
			ID:         "asteroid-run",
			WorldTag:   "space",
			Kind:       KindCount,
			TimeLimit:  45 * time.Second,
			Difficulty: 1,
			MinHits:    8,
		},
		Challenge{
			ID:         "vault-code",
			WorldTag:   "heist",
			Kind:       KindSingle,
			TimeLimit:  20 * time.Second,
			Difficulty: 3,
			WantValue:  "7421",
		},
		Challenge{
			ID:         "circuit-wiring",
			WorldTag:   "lab",
			Kind:       KindMapping,
			TimeLimit:  60 * time.Second,
			Difficulty: 2,
			WantMapping: map[string]string{
				"red":   "ground",
				"blue":  "signal",
				"green": "power",
			},
		},
	)
}
