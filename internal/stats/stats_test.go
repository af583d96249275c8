package stats

import (
	"math/rand"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mark/internal/types"
)

func rep(id string, role types.Role, tally map[string]int) types.ProjectReport {
	return types.ProjectReport{
		ProjectID:    id,
		Verdict:      types.Verdict{Scope: types.ScopeProject, Role: role},
		KeywordTally: tally,
	}
}

func cmpRec(id string, outcome types.Outcome) types.ComparisonRecord {
	return types.ComparisonRecord{ProjectID: id, Outcome: outcome}
}

func TestAggregateRolesAndKeywords(t *testing.T) {
	reports := []types.ProjectReport{
		rep("p/a", types.RoleProducer, map[string]int{"torch": 3, "sklearn": 1}),
		rep("p/b", types.RoleProducer, map[string]int{"torch": 2}),
		rep("p/c", types.RoleConsumer, map[string]int{"onnxruntime": 2}),
		rep("p/d", types.RoleUndetermined, nil),
	}
	s := Aggregate(reports, nil)

	assert.Equal(t, 4, s.Projects)
	assert.Equal(t, 2, s.RoleCounts[types.RoleProducer])
	assert.Equal(t, 1, s.RoleCounts[types.RoleConsumer])
	assert.Equal(t, 1, s.RoleCounts[types.RoleUndetermined])
	assert.InDelta(t, 0.5, s.RoleShares[types.RoleProducer], 1e-9)

	require.Len(t, s.TopKeywords, 3)
	assert.Equal(t, KeywordCount{Name: "torch", Count: 5}, s.TopKeywords[0])
	// Equal counts fall back to name order.
	assert.Equal(t, "onnxruntime", s.TopKeywords[1].Name)
	assert.Equal(t, "sklearn", s.TopKeywords[2].Name)
}

func TestAggregatePrecisionRecallExcludesUnknown(t *testing.T) {
	comparisons := []types.ComparisonRecord{
		cmpRec("p/a", types.OutcomeTP),
		cmpRec("p/b", types.OutcomeTP),
		cmpRec("p/c", types.OutcomeFP),
		cmpRec("p/d", types.OutcomeFN),
		cmpRec("p/e", types.OutcomeTN),
		cmpRec("p/f", types.OutcomeUnknown),
		cmpRec("p/g", types.OutcomeUnknown),
	}
	s := Aggregate(nil, comparisons)

	assert.Equal(t, Confusion{TP: 2, FP: 1, TN: 1, FN: 1, Unmatched: 2}, s.Confusion)
	assert.InDelta(t, 2.0/3.0, s.Precision, 1e-4)
	assert.InDelta(t, 2.0/3.0, s.Recall, 1e-4)
	assert.InDelta(t, 2.0/3.0, s.F1, 1e-4)
}

func TestAggregateEmptyInputsYieldZeroes(t *testing.T) {
	s := Aggregate(nil, nil)
	assert.Equal(t, 0, s.Projects)
	assert.Zero(t, s.Precision)
	assert.Zero(t, s.Recall)
	assert.Zero(t, s.F1)
	assert.Empty(t, s.TopKeywords)
}

func TestAggregateMetricsWeighting(t *testing.T) {
	m1 := &types.ProjectMetrics{ProjectID: "p/a", CCAvg: 2, MIAvg: 80, TotalSLOC: 100}
	m2 := &types.ProjectMetrics{ProjectID: "p/b", CCAvg: 4, MIAvg: 60, TotalSLOC: 300}
	reports := []types.ProjectReport{
		{ProjectID: "p/a", Verdict: types.Verdict{Role: types.RoleUndetermined}, Metrics: m1},
		{ProjectID: "p/b", Verdict: types.Verdict{Role: types.RoleUndetermined}, Metrics: m2},
	}
	s := Aggregate(reports, nil)
	assert.Equal(t, 400, s.TotalSLOC)
	assert.InDelta(t, 65.0, s.MIAvg, 1e-9) // (80*100 + 60*300) / 400
	assert.InDelta(t, 3.0, s.CCAvg, 1e-9)
}

func TestAggregateOrderIndependent(t *testing.T) {
	reports := []types.ProjectReport{
		rep("p/a", types.RoleProducer, map[string]int{"torch": 1}),
		rep("p/b", types.RoleConsumer, map[string]int{"onnxruntime": 4}),
		rep("p/c", types.RoleProducer, map[string]int{"sklearn": 2, "torch": 2}),
	}
	comparisons := []types.ComparisonRecord{
		cmpRec("p/a", types.OutcomeTP),
		cmpRec("p/b", types.OutcomeTN),
		cmpRec("p/c", types.OutcomeFP),
	}
	want := Aggregate(reports, comparisons)

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 5; i++ {
		rng.Shuffle(len(reports), func(a, b int) { reports[a], reports[b] = reports[b], reports[a] })
		rng.Shuffle(len(comparisons), func(a, b int) { comparisons[a], comparisons[b] = comparisons[b], comparisons[a] })
		got := Aggregate(reports, comparisons)
		if !reflect.DeepEqual(want, got) {
			t.Fatalf("shuffle %d changed summary:\n%+v\n%+v", i, want, got)
		}
	}
}

func TestAggregateCountsWarnings(t *testing.T) {
	reports := []types.ProjectReport{
		{
			ProjectID:    "p/a",
			Verdict:      types.Verdict{Role: types.RoleUndetermined},
			EmptyProject: &types.EmptyProjectWarning{ProjectID: "p/a"},
		},
		{
			ProjectID:    "p/b",
			Verdict:      types.Verdict{Role: types.RoleConsumer},
			ScanWarnings: []types.ScanWarning{{Path: "bin/blob", Reason: "not valid utf-8"}},
		},
	}
	s := Aggregate(reports, nil)
	assert.Equal(t, 1, s.EmptyCount)
	assert.Equal(t, 1, s.WarningCount)
}
