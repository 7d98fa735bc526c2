package orchestration

import (
	"time"

	"github.com/zhouzirui/boardroom/internal/model/persona"
)

// Complexity is the classifier's assessment of how much decomposition a
// message needs.
type Complexity string

const (
	Simple   Complexity = "simple"
	Compound Complexity = "compound"
	Complex  Complexity = "complex"
)

// ParseComplexity normalises a model-produced label; unknown values map to Simple.
func ParseComplexity(raw string) Complexity {
	switch Complexity(raw) {
	case Compound:
		return Compound
	case Complex:
		return Complex
	default:
		return Simple
	}
}

// AtLeast returns the greater of c and min.
func (c Complexity) AtLeast(min Complexity) Complexity {
	if c.rank() < min.rank() {
		return min
	}
	return c
}

func (c Complexity) rank() int {
	switch c {
	case Compound:
		return 1
	case Complex:
		return 2
	default:
		return 0
	}
}

// SubQuery is a decomposed fragment of the user's request.
type SubQuery struct {
	ID       string        `json:"id"`
	Focus    string        `json:"focus"`
	Query    string        `json:"query"`
	Personas []persona.Key `json:"agents"`
}

// Plan is the classifier's output for one inbound message.
type Plan struct {
	Intent         string            `json:"intent"`
	Complexity     Complexity        `json:"complexity"`
	SubQueries     []SubQuery        `json:"sub_queries"`
	Reasoning      string            `json:"reasoning"`
	Fallback       bool              `json:"fallback,omitempty"`
	Warnings       []string          `json:"warnings,omitempty"`
	ContextUpdates map[string]string `json:"context_updates,omitempty"`
}

// Personas returns every persona referenced by the plan, deduplicated, in
// first-seen order.
func (p Plan) Personas() []persona.Key {
	seen := make(map[persona.Key]struct{})
	var keys []persona.Key
	for _, sq := range p.SubQueries {
		for _, key := range sq.Personas {
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			keys = append(keys, key)
		}
	}
	return keys
}

// Failure classifies why a persona call produced no content.
type Failure string

const (
	FailureNone     Failure = ""
	FailureTimeout  Failure = "timeout"
	FailureError    Failure = "error"
	FailureCanceled Failure = "canceled"
)

// Result is the outcome of one (sub-query, persona) call.
type Result struct {
	Persona    persona.Key   `json:"agent"`
	SubQueryID string        `json:"sub_query_id"`
	Content    string        `json:"content,omitempty"`
	Failure    Failure       `json:"failure,omitempty"`
	Err        error         `json:"-"`
	Latency    time.Duration `json:"latency"`
}

// OK reports whether the call produced content.
func (r Result) OK() bool {
	return r.Failure == FailureNone
}
