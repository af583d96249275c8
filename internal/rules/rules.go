package rules

import (
	"fmt"
	"strings"

	"mark/internal/types"
)

// Rule is one heuristic predicate over a file's keyword matches. Rules are
// pure: Eval sees the full match set plus the evidence of previously
// evaluated rules in the same pass, which is how compound rules are built.
type Rule struct {
	ID   string
	Role types.Role // role the rule argues for when it fires
	Eval func(matches []types.KeywordMatch, prior []types.RuleEvidence) types.RuleEvidence
}

// Overrides toggles individual rules at construction time. A disabled rule is
// omitted from the list entirely; evaluation never branches on toggles.
type Overrides struct {
	// DisableRule3 drops the third rule of the consumer analyzer
	// (consumer-only-file). The zero value keeps every rule.
	DisableRule3 bool
}

// DefaultOverrides enables every rule.
func DefaultOverrides() Overrides {
	return Overrides{}
}

// For returns the ordered rule list for an analyzer role. The metrics adjunct
// applies no role rules. Unknown roles return an error so the factory can
// refuse construction.
func For(role types.Role, ov Overrides) ([]Rule, error) {
	switch role {
	case types.RoleProducer:
		return []Rule{producerLibrary(), trainingCall(), consumerLibrary()}, nil
	case types.RoleConsumer:
		list := []Rule{consumerLibrary(), loadCall()}
		if !ov.DisableRule3 {
			list = append(list, consumerOnlyFile())
		}
		return append(list, producerLibrary()), nil
	case types.RoleMetrics:
		return nil, nil
	}
	return nil, fmt.Errorf("rules: no rule set for role %q", role)
}

// producerLibrary fires when any producer-signal dictionary entry matched.
func producerLibrary() Rule {
	return signalRule("producer-library", types.RoleProducer)
}

// consumerLibrary fires when any consumer-signal dictionary entry matched.
func consumerLibrary() Rule {
	return signalRule("consumer-library", types.RoleConsumer)
}

func signalRule(id string, role types.Role) Rule {
	return Rule{
		ID:   id,
		Role: role,
		Eval: func(matches []types.KeywordMatch, _ []types.RuleEvidence) types.RuleEvidence {
			cited := filterBySignal(matches, role)
			return types.RuleEvidence{
				Fired:   len(cited) > 0,
				Weight:  totalWeight(cited),
				Matches: cited,
			}
		},
	}
}

// trainingCall is a compound rule: a producer library is present and at least
// one producer-signal match is a dotted invocation (torch.save, model.fit).
func trainingCall() Rule {
	return dottedCallRule("training-call", types.RoleProducer, "producer-library")
}

// loadCall is the consumer counterpart of trainingCall
// (transformers.pipeline, joblib.load).
func loadCall() Rule {
	return dottedCallRule("load-call", types.RoleConsumer, "consumer-library")
}

func dottedCallRule(id string, role types.Role, requires string) Rule {
	return Rule{
		ID:   id,
		Role: role,
		Eval: func(matches []types.KeywordMatch, prior []types.RuleEvidence) types.RuleEvidence {
			if !fired(prior, requires) {
				return types.RuleEvidence{}
			}
			var cited []types.KeywordMatch
			for _, m := range filterBySignal(matches, role) {
				if strings.Contains(m.Entry.Name, ".") {
					cited = append(cited, m)
				}
			}
			return types.RuleEvidence{
				Fired:   len(cited) > 0,
				Weight:  totalWeight(cited),
				Matches: cited,
			}
		},
	}
}

// consumerOnlyFile is the consumer analyzer's third rule: a consumer library
// matched and the file shows no producer signal at all.
func consumerOnlyFile() Rule {
	return Rule{
		ID:   "consumer-only-file",
		Role: types.RoleConsumer,
		Eval: func(matches []types.KeywordMatch, prior []types.RuleEvidence) types.RuleEvidence {
			if !fired(prior, "consumer-library") {
				return types.RuleEvidence{}
			}
			if len(filterBySignal(matches, types.RoleProducer)) > 0 {
				return types.RuleEvidence{}
			}
			cited := filterBySignal(matches, types.RoleConsumer)
			return types.RuleEvidence{
				Fired:   len(cited) > 0,
				Weight:  totalWeight(cited),
				Matches: cited,
			}
		},
	}
}

func filterBySignal(matches []types.KeywordMatch, role types.Role) []types.KeywordMatch {
	var out []types.KeywordMatch
	for _, m := range matches {
		if m.Entry.Signal.Matches(role) {
			out = append(out, m)
		}
	}
	return out
}

func totalWeight(matches []types.KeywordMatch) float64 {
	var w float64
	for _, m := range matches {
		w += m.Entry.EvidenceWeight()
	}
	return w
}

func fired(prior []types.RuleEvidence, ruleID string) bool {
	for _, ev := range prior {
		if ev.RuleID == ruleID && ev.Fired {
			return true
		}
	}
	return false
}
