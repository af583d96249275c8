package rules

import (
	"testing"

	"mark/internal/types"
)

func match(file, name string, signal types.Signal, count int) types.KeywordMatch {
	lines := make([]int, count)
	for i := range lines {
		lines[i] = i + 1
	}
	return types.KeywordMatch{
		File:  file,
		Entry: types.LibraryEntry{Name: name, Signal: signal},
		Count: count,
		Lines: lines,
	}
}

func engineFor(t *testing.T, role types.Role, ov Overrides) *Engine {
	t.Helper()
	list, err := For(role, ov)
	if err != nil {
		t.Fatalf("For(%s): %v", role, err)
	}
	return NewEngine(list)
}

func TestProducerFileVerdict(t *testing.T) {
	e := engineFor(t, types.RoleProducer, DefaultOverrides())
	v := e.EvaluateFile("train.py", []types.KeywordMatch{
		match("train.py", "torch", types.SignalProducer, 2),
	})
	if v.Role != types.RoleProducer {
		t.Fatalf("role: got %s want producer", v.Role)
	}
	if v.Scope != types.ScopeFile {
		t.Fatalf("scope: got %s", v.Scope)
	}
	if !v.Evidence[0].Fired || v.Evidence[0].RuleID != "producer-library" {
		t.Fatalf("evidence: %+v", v.Evidence)
	}
}

func TestNoMatchesIsUndetermined(t *testing.T) {
	e := engineFor(t, types.RoleProducer, DefaultOverrides())
	v := e.EvaluateFile("util.py", nil)
	if v.Role != types.RoleUndetermined {
		t.Fatalf("role: got %s want undetermined", v.Role)
	}
}

func TestEqualWeightTieIsUndetermined(t *testing.T) {
	for _, role := range []types.Role{types.RoleProducer, types.RoleConsumer} {
		e := engineFor(t, role, DefaultOverrides())
		v := e.EvaluateFile("mixed.py", []types.KeywordMatch{
			match("mixed.py", "torch", types.SignalProducer, 1),
			match("mixed.py", "onnxruntime", types.SignalConsumer, 1),
		})
		if v.Role != types.RoleUndetermined {
			t.Fatalf("%s analyzer: tie resolved to %s", role, v.Role)
		}
	}
}

func TestCompoundTrainingCallNeedsLibraryRule(t *testing.T) {
	e := engineFor(t, types.RoleProducer, DefaultOverrides())
	v := e.EvaluateFile("train.py", []types.KeywordMatch{
		match("train.py", "torch", types.SignalProducer, 1),
		match("train.py", "torch.save", types.SignalProducer, 1),
	})
	var trainingCall *types.RuleEvidence
	for i := range v.Evidence {
		if v.Evidence[i].RuleID == "training-call" {
			trainingCall = &v.Evidence[i]
		}
	}
	if trainingCall == nil || !trainingCall.Fired {
		t.Fatalf("training-call did not fire: %+v", v.Evidence)
	}
	if len(trainingCall.Matches) != 1 || trainingCall.Matches[0].Entry.Name != "torch.save" {
		t.Fatalf("training-call cited %+v", trainingCall.Matches)
	}
}

func TestConsumerRule3Toggle(t *testing.T) {
	enabled := engineFor(t, types.RoleConsumer, DefaultOverrides())
	ids := enabled.RuleIDs()
	want := []string{"consumer-library", "load-call", "consumer-only-file", "producer-library"}
	if len(ids) != len(want) {
		t.Fatalf("rule ids: got %v", ids)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("ids[%d]=%s want %s", i, ids[i], want[i])
		}
	}

	disabled := engineFor(t, types.RoleConsumer, Overrides{DisableRule3: true})
	ids = disabled.RuleIDs()
	want = []string{"consumer-library", "load-call", "producer-library"}
	if len(ids) != len(want) {
		t.Fatalf("rule ids with rule 3 off: got %v", ids)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("ids[%d]=%s want %s", i, ids[i], want[i])
		}
	}
}

func TestConsumerOnlyFileRule(t *testing.T) {
	e := engineFor(t, types.RoleConsumer, DefaultOverrides())

	v := e.EvaluateFile("predict.py", []types.KeywordMatch{
		match("predict.py", "onnxruntime", types.SignalConsumer, 1),
	})
	if v.Role != types.RoleConsumer {
		t.Fatalf("role: got %s want consumer", v.Role)
	}
	found := false
	for _, ev := range v.Evidence {
		if ev.RuleID == "consumer-only-file" && ev.Fired {
			found = true
		}
	}
	if !found {
		t.Fatalf("consumer-only-file did not fire: %+v", v.Evidence)
	}

	// The rule must not fire when the file also shows a producer signal.
	v = e.EvaluateFile("mixed.py", []types.KeywordMatch{
		match("mixed.py", "onnxruntime", types.SignalConsumer, 1),
		match("mixed.py", "torch", types.SignalProducer, 1),
	})
	for _, ev := range v.Evidence {
		if ev.RuleID == "consumer-only-file" && ev.Fired {
			t.Fatalf("consumer-only-file fired despite producer signal")
		}
	}
}

func TestWeightedEntriesBreakTies(t *testing.T) {
	e := engineFor(t, types.RoleProducer, DefaultOverrides())
	v := e.EvaluateFile("mixed.py", []types.KeywordMatch{
		{File: "mixed.py", Entry: types.LibraryEntry{Name: "torch", Signal: types.SignalProducer, Weight: 2}, Count: 1, Lines: []int{1}},
		match("mixed.py", "onnxruntime", types.SignalConsumer, 1),
	})
	if v.Role != types.RoleProducer {
		t.Fatalf("weighted producer entry lost: %s", v.Role)
	}
}

func TestCombineAnyProducer(t *testing.T) {
	files := []types.Verdict{
		{Scope: types.ScopeFile, Role: types.RoleConsumer, Path: "a.py"},
		{Scope: types.ScopeFile, Role: types.RoleConsumer, Path: "b.py"},
		{Scope: types.ScopeFile, Role: types.RoleProducer, Path: "c.py"},
	}
	v := Combine(files, PolicyAnyProducer)
	if v.Role != types.RoleProducer {
		t.Fatalf("any-producer: got %s", v.Role)
	}
	if v.Scope != types.ScopeProject {
		t.Fatalf("scope: got %s", v.Scope)
	}
}

func TestCombineConsumerWhenNoProducerFile(t *testing.T) {
	files := []types.Verdict{
		{Scope: types.ScopeFile, Role: types.RoleConsumer, Path: "a.py"},
		{Scope: types.ScopeFile, Role: types.RoleUndetermined, Path: "b.py"},
	}
	v := Combine(files, PolicyAnyProducer)
	if v.Role != types.RoleConsumer {
		t.Fatalf("got %s want consumer", v.Role)
	}
}

func TestCombineMajority(t *testing.T) {
	files := []types.Verdict{
		{Role: types.RoleProducer}, {Role: types.RoleConsumer}, {Role: types.RoleConsumer},
	}
	if v := Combine(files, PolicyMajority); v.Role != types.RoleConsumer {
		t.Fatalf("majority: got %s", v.Role)
	}
	// Under the default policy the same set is promoted to producer.
	if v := Combine(files, PolicyAnyProducer); v.Role != types.RoleProducer {
		t.Fatalf("any-producer: got %s", v.Role)
	}
	// A majority tie stays undetermined.
	tied := []types.Verdict{{Role: types.RoleProducer}, {Role: types.RoleConsumer}}
	if v := Combine(tied, PolicyMajority); v.Role != types.RoleUndetermined {
		t.Fatalf("majority tie: got %s", v.Role)
	}
}

func TestCombineEmptyIsUndetermined(t *testing.T) {
	if v := Combine(nil, PolicyAnyProducer); v.Role != types.RoleUndetermined {
		t.Fatalf("empty project: got %s", v.Role)
	}
}

func TestCombineOrderIndependent(t *testing.T) {
	a := []types.Verdict{
		{Role: types.RoleConsumer}, {Role: types.RoleProducer}, {Role: types.RoleUndetermined},
	}
	b := []types.Verdict{a[2], a[0], a[1]}
	if Combine(a, PolicyAnyProducer).Role != Combine(b, PolicyAnyProducer).Role {
		t.Fatal("project verdict depends on file order")
	}
}

func TestParsePolicyAcceptsSpellings(t *testing.T) {
	for _, s := range []string{"", "any_producer", "any-producer", " Any-Producer "} {
		p, ok := ParsePolicy(s)
		if !ok || p != PolicyAnyProducer {
			t.Fatalf("ParsePolicy(%q) = %q, %v", s, p, ok)
		}
	}
	if p, ok := ParsePolicy("majority"); !ok || p != PolicyMajority {
		t.Fatalf("ParsePolicy(majority) = %q, %v", p, ok)
	}
	if _, ok := ParsePolicy("unanimous"); ok {
		t.Fatal("ParsePolicy accepted an unknown policy")
	}
}
