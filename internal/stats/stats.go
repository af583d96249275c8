// Package stats reduces a finished run's reports and comparison records into
// corpus-level numbers. Everything here is a pure fold over its inputs, so
// the summary is independent of report order.
package stats

import (
	"math"
	"sort"

	"mark/internal/types"
)

// KeywordCount is one row of the keyword frequency ranking.
type KeywordCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Confusion holds the oracle comparison tallies. Producer is the positive
// class; Unmatched counts UNKNOWN outcomes, which never enter the
// precision/recall denominators.
type Confusion struct {
	TP        int `json:"tp"`
	FP        int `json:"fp"`
	TN        int `json:"tn"`
	FN        int `json:"fn"`
	Unmatched int `json:"unmatched"`
}

// Summary is the aggregate over one run.
type Summary struct {
	Projects     int                    `json:"projects"`
	RoleCounts   map[types.Role]int     `json:"role_counts"`
	RoleShares   map[types.Role]float64 `json:"role_shares"`
	Confusion    Confusion              `json:"confusion"`
	Precision    float64                `json:"precision"`
	Recall       float64                `json:"recall"`
	F1           float64                `json:"f1"`
	TopKeywords  []KeywordCount         `json:"top_keywords,omitempty"`
	CCAvg        float64                `json:"cc_avg"`
	MIAvg        float64                `json:"mi_avg"`
	TotalSLOC    int                    `json:"total_sloc"`
	EmptyCount   int                    `json:"empty_projects"`
	WarningCount int                    `json:"scan_warnings"`
}

// TopKeywordLimit caps the ranking emitted in summaries.
const TopKeywordLimit = 20

// Aggregate folds reports and comparison records into a Summary. Both inputs
// may be reordered or partially empty; counts and ratios do not change.
func Aggregate(reports []types.ProjectReport, comparisons []types.ComparisonRecord) Summary {
	s := Summary{
		Projects:   len(reports),
		RoleCounts: map[types.Role]int{},
		RoleShares: map[types.Role]float64{},
	}

	tally := map[string]int{}
	var miWeighted float64
	var ccSum float64
	var ccProjects int
	for _, r := range reports {
		s.RoleCounts[r.Verdict.Role]++
		if r.EmptyProject != nil {
			s.EmptyCount++
		}
		s.WarningCount += len(r.ScanWarnings)
		for name, n := range r.KeywordTally {
			tally[name] += n
		}
		if r.Metrics != nil {
			s.TotalSLOC += r.Metrics.TotalSLOC
			miWeighted += r.Metrics.MIAvg * float64(r.Metrics.TotalSLOC)
			ccSum += r.Metrics.CCAvg
			ccProjects++
		}
	}
	if s.Projects > 0 {
		for role, n := range s.RoleCounts {
			s.RoleShares[role] = round4(float64(n) / float64(s.Projects))
		}
	}
	if s.TotalSLOC > 0 {
		s.MIAvg = round2(miWeighted / float64(s.TotalSLOC))
	}
	if ccProjects > 0 {
		s.CCAvg = round2(ccSum / float64(ccProjects))
	}
	s.TopKeywords = rank(tally, TopKeywordLimit)

	for _, c := range comparisons {
		switch c.Outcome {
		case types.OutcomeTP:
			s.Confusion.TP++
		case types.OutcomeFP:
			s.Confusion.FP++
		case types.OutcomeTN:
			s.Confusion.TN++
		case types.OutcomeFN:
			s.Confusion.FN++
		default:
			s.Confusion.Unmatched++
		}
	}
	s.Precision, s.Recall, s.F1 = prf(s.Confusion)
	return s
}

// prf derives precision, recall and F1 from the confusion tallies. Empty
// denominators yield 0, not NaN.
func prf(c Confusion) (precision, recall, f1 float64) {
	if c.TP+c.FP > 0 {
		precision = float64(c.TP) / float64(c.TP+c.FP)
	}
	if c.TP+c.FN > 0 {
		recall = float64(c.TP) / float64(c.TP+c.FN)
	}
	if precision+recall > 0 {
		f1 = 2 * precision * recall / (precision + recall)
	}
	return round4(precision), round4(recall), round4(f1)
}

// rank orders the keyword tally by descending count, then name, and truncates.
func rank(tally map[string]int, limit int) []KeywordCount {
	if len(tally) == 0 {
		return nil
	}
	out := make([]KeywordCount, 0, len(tally))
	for name, n := range tally {
		out = append(out, KeywordCount{Name: name, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Name < out[j].Name
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }

func round4(v float64) float64 { return math.Round(v*10000) / 10000 }
