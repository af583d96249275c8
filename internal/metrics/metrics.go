package metrics

import (
	"strings"

	"mark/internal/types"
)

// Provider computes code-quality metrics for one file. Metric computation
// lives outside the core; the pipeline only consumes and aggregates the
// returned values. A provider failure on one file is treated as zero values
// for that file, never as a run failure.
type Provider interface {
	Measure(f types.SourceFile) (types.CodeMetrics, error)
}

// Func adapts a function to the Provider interface.
type Func func(f types.SourceFile) (types.CodeMetrics, error)

func (fn Func) Measure(f types.SourceFile) (types.CodeMetrics, error) { return fn(f) }

// Noop reports zero complexity and maintainability but still counts SLOC, so
// metrics runs without an external provider produce line totals.
type Noop struct{}

func (Noop) Measure(f types.SourceFile) (types.CodeMetrics, error) {
	return types.CodeMetrics{SLOC: SLOC(f.Text)}, nil
}

// SLOC counts source lines: non-blank lines that are not # comments, the
// counting rule of the original corpus reports.
func SLOC(text string) int {
	n := 0
	for _, line := range strings.Split(text, "\n") {
		s := strings.TrimSpace(line)
		if s == "" || strings.HasPrefix(s, "#") {
			continue
		}
		n++
	}
	return n
}

// Accumulator folds per-file metrics into the project aggregate: mean
// cyclomatic complexity over measured files and maintainability index
// weighted by SLOC.
type Accumulator struct {
	projectID string
	ccSum     float64
	ccFiles   int
	miWeight  float64
	totalSLOC int
}

// NewAccumulator starts an empty aggregate for one project.
func NewAccumulator(projectID string) *Accumulator {
	return &Accumulator{projectID: projectID}
}

// Add folds one file's metrics in. Files with zero SLOC contribute nothing to
// the MI average.
func (a *Accumulator) Add(m types.CodeMetrics) {
	if a == nil {
		return
	}
	if m.CyclomaticComplexity > 0 {
		a.ccSum += m.CyclomaticComplexity
		a.ccFiles++
	}
	if m.SLOC > 0 {
		a.miWeight += m.MaintainabilityIndex * float64(m.SLOC)
		a.totalSLOC += m.SLOC
	}
}

// Project returns the aggregate. Empty accumulators yield zero averages.
func (a *Accumulator) Project() types.ProjectMetrics {
	out := types.ProjectMetrics{ProjectID: a.projectID, TotalSLOC: a.totalSLOC}
	if a.ccFiles > 0 {
		out.CCAvg = round2(a.ccSum / float64(a.ccFiles))
	}
	if a.totalSLOC > 0 {
		out.MIAvg = round2(a.miWeight / float64(a.totalSLOC))
	}
	return out
}

func round2(v float64) float64 {
	if v < 0 {
		return float64(int64(v*100-0.5)) / 100
	}
	return float64(int64(v*100+0.5)) / 100
}
