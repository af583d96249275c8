// Package report persists a finished run: CSV files mirroring the corpus
// output layout, a run store with file and postgres backends, and an optional
// S3 archive of the written files.
package report

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"path"
	"regexp"
	"sort"
	"strconv"

	"mark/internal/safeio"
	"mark/internal/stats"
	"mark/internal/types"
)

const (
	ResultsFile    = "results.csv"
	ComparisonFile = "comparison.csv"
	SummaryFile    = "summary.csv"
)

// WriteResults writes one row per project: id, predicted role and the fired
// evidence, in report order. The write is atomic.
func WriteResults(fs *safeio.SafeFS, dir string, reports []types.ProjectReport) error {
	rows := [][]string{{"project_id", "predicted_role", "evidence_summary"}}
	for _, r := range reports {
		rows = append(rows, []string{r.ProjectID, string(r.Verdict.Role), r.EvidenceSummary()})
	}
	return writeCSV(fs, path.Join(dir, ResultsFile), rows)
}

// WriteComparison writes the merged oracle records.
func WriteComparison(fs *safeio.SafeFS, dir string, records []types.ComparisonRecord) error {
	rows := [][]string{{"project_id", "predicted_role", "expected_role", "outcome"}}
	for _, rec := range records {
		rows = append(rows, []string{
			rec.ProjectID, string(rec.Predicted), string(rec.Expected), string(rec.Outcome),
		})
	}
	return writeCSV(fs, path.Join(dir, ComparisonFile), rows)
}

// WriteSummary writes the run aggregate as key/value rows so downstream
// spreadsheets need no schema knowledge.
func WriteSummary(fs *safeio.SafeFS, dir string, s stats.Summary) error {
	rows := [][]string{
		{"metric", "value"},
		{"projects", itoa(s.Projects)},
		{"empty_projects", itoa(s.EmptyCount)},
		{"scan_warnings", itoa(s.WarningCount)},
	}
	roles := make([]string, 0, len(s.RoleCounts))
	for role := range s.RoleCounts {
		roles = append(roles, string(role))
	}
	sort.Strings(roles)
	for _, role := range roles {
		rows = append(rows, []string{"count_" + role, itoa(s.RoleCounts[types.Role(role)])})
	}
	rows = append(rows,
		[]string{"tp", itoa(s.Confusion.TP)},
		[]string{"fp", itoa(s.Confusion.FP)},
		[]string{"tn", itoa(s.Confusion.TN)},
		[]string{"fn", itoa(s.Confusion.FN)},
		[]string{"unmatched", itoa(s.Confusion.Unmatched)},
		[]string{"precision", ftoa(s.Precision)},
		[]string{"recall", ftoa(s.Recall)},
		[]string{"f1", ftoa(s.F1)},
	)
	for _, kw := range s.TopKeywords {
		rows = append(rows, []string{"keyword_" + kw.Name, itoa(kw.Count)})
	}
	return writeCSV(fs, path.Join(dir, SummaryFile), rows)
}

// WriteRunFiles writes every CSV a run produces and returns the file names,
// relative to dir. The metrics file is written only when at least one report
// carries metric aggregates.
func WriteRunFiles(fs *safeio.SafeFS, dir string, run Run) ([]string, error) {
	if err := WriteResults(fs, dir, run.Reports); err != nil {
		return nil, err
	}
	names := []string{ResultsFile}
	if len(run.Comparisons) > 0 {
		if err := WriteComparison(fs, dir, run.Comparisons); err != nil {
			return nil, err
		}
		names = append(names, ComparisonFile)
	}
	if err := WriteSummary(fs, dir, run.Summary); err != nil {
		return nil, err
	}
	names = append(names, SummaryFile)
	if hasMetrics(run.Reports) {
		name, err := WriteMetrics(fs, dir, run.Reports)
		if err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, nil
}

func hasMetrics(reports []types.ProjectReport) bool {
	for _, r := range reports {
		if r.Metrics != nil {
			return true
		}
	}
	return false
}

var metricsFileRe = regexp.MustCompile(`^(\d+)_metrics\.csv$`)

// WriteMetrics writes per-project metric aggregates to the next free
// N_metrics.csv in dir (1_metrics.csv, 2_metrics.csv, ...) and returns the
// chosen file name. Existing files are never overwritten.
func WriteMetrics(fs *safeio.SafeFS, dir string, reports []types.ProjectReport) (string, error) {
	name, err := nextMetricsName(fs, dir)
	if err != nil {
		return "", err
	}
	rows := [][]string{{"ProjectName", "CC_avg", "MI_avg", "SLOC"}}
	for _, r := range reports {
		if r.Metrics == nil {
			continue
		}
		rows = append(rows, []string{
			r.ProjectID, ftoa(r.Metrics.CCAvg), ftoa(r.Metrics.MIAvg), itoa(r.Metrics.TotalSLOC),
		})
	}
	if err := writeCSV(fs, path.Join(dir, name), rows); err != nil {
		return "", err
	}
	return name, nil
}

func nextMetricsName(fs *safeio.SafeFS, dir string) (string, error) {
	max := 0
	entries, err := fs.ReadDir(dir)
	if err == nil {
		for _, e := range entries {
			m := metricsFileRe.FindStringSubmatch(e.Name())
			if m == nil {
				continue
			}
			if n, err := strconv.Atoi(m[1]); err == nil && n > max {
				max = n
			}
		}
	}
	return fmt.Sprintf("%d_metrics.csv", max+1), nil
}

func writeCSV(fs *safeio.SafeFS, p string, rows [][]string) error {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.WriteAll(rows); err != nil {
		return fmt.Errorf("report: encode %s: %w", p, err)
	}
	if err := fs.WriteFileAtomic(p, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("report: write %s: %w", p, err)
	}
	return nil
}

func itoa(n int) string { return strconv.Itoa(n) }

func ftoa(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
