package rules

import (
	"strings"

	"mark/internal/types"
)

// Policy selects how file verdicts combine into a project verdict.
type Policy string

const (
	// PolicyAnyProducer: one producer file classifies the whole project.
	// Production capability anywhere is the dominant signal; the consumer
	// side has no symmetric promotion.
	PolicyAnyProducer Policy = "any_producer"
	// PolicyMajority: strict majority vote among decided file verdicts.
	PolicyMajority Policy = "majority"
)

// ParsePolicy maps a config string to a Policy. Empty input selects
// PolicyAnyProducer; hyphens are accepted in place of underscores.
func ParsePolicy(s string) (Policy, bool) {
	s = strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_")
	switch Policy(s) {
	case "", PolicyAnyProducer:
		return PolicyAnyProducer, true
	case PolicyMajority:
		return PolicyMajority, true
	}
	return "", false
}

// Engine evaluates an ordered rule list over per-file matches. An Engine is
// immutable after construction and safe for concurrent use.
type Engine struct {
	rules []Rule
}

// NewEngine freezes the rule list. Order is evaluation order.
func NewEngine(list []Rule) *Engine {
	return &Engine{rules: list}
}

// RuleIDs returns the configured rule identifiers in evaluation order.
func (e *Engine) RuleIDs() []string {
	out := make([]string, 0, len(e.rules))
	for _, r := range e.rules {
		out = append(out, r.ID)
	}
	return out
}

// EvaluateFile runs every rule in order and derives the file verdict.
// A role wins only with strictly greater fired evidence weight; no rule
// firing, or equal weights, yields UNDETERMINED. Ties are never resolved in
// favor of either role.
func (e *Engine) EvaluateFile(path string, matches []types.KeywordMatch) types.Verdict {
	evidence := make([]types.RuleEvidence, 0, len(e.rules))
	for _, r := range e.rules {
		ev := r.Eval(matches, evidence)
		ev.RuleID = r.ID
		evidence = append(evidence, ev)
	}

	var producer, consumer float64
	for i, ev := range evidence {
		if !ev.Fired {
			continue
		}
		switch e.rules[i].Role {
		case types.RoleProducer:
			producer += ev.Weight
		case types.RoleConsumer:
			consumer += ev.Weight
		}
	}

	role := types.RoleUndetermined
	switch {
	case producer > consumer:
		role = types.RoleProducer
	case consumer > producer:
		role = types.RoleConsumer
	}
	return types.Verdict{Scope: types.ScopeFile, Role: role, Path: path, Evidence: evidence}
}

// Combine aggregates file verdicts into the project verdict under the given
// policy. The returned verdict carries the fired evidence of the files that
// decided it, in file order.
func Combine(fileVerdicts []types.Verdict, policy Policy) types.Verdict {
	var producers, consumers int
	for _, v := range fileVerdicts {
		switch v.Role {
		case types.RoleProducer:
			producers++
		case types.RoleConsumer:
			consumers++
		}
	}

	role := types.RoleUndetermined
	switch policy {
	case PolicyMajority:
		if producers > consumers {
			role = types.RoleProducer
		} else if consumers > producers {
			role = types.RoleConsumer
		}
	default: // PolicyAnyProducer
		if producers > 0 {
			role = types.RoleProducer
		} else if consumers > 0 {
			role = types.RoleConsumer
		}
	}

	var evidence []types.RuleEvidence
	for _, v := range fileVerdicts {
		if v.Role != role || role == types.RoleUndetermined {
			continue
		}
		for _, ev := range v.Evidence {
			if ev.Fired {
				evidence = append(evidence, ev)
			}
		}
	}
	return types.Verdict{Scope: types.ScopeProject, Role: role, Evidence: evidence}
}
