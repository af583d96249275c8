package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"flag"
	"io/fs"
	"log"
	"os/signal"
	"path"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"mark/internal/analyzer"
	"mark/internal/dictionary"
	"mark/internal/extract"
	"mark/internal/oracle"
	"mark/internal/pipeline"
	"mark/internal/report"
	"mark/internal/rules"
	"mark/internal/safeio"
	"mark/internal/scan"
	"mark/internal/stats"
	"mark/internal/types"
)

const (
	outDir      = "out"
	reportsFile = "reports.json"
)

func main() {
	ioDir := flag.String("io", "io", "directory holding dictionaries, oracle and outputs")
	reposDir := flag.String("repos", "repos", "directory holding cloned repositories (owner/name)")
	role := flag.String("role", "producer", "analyzer role: producer, consumer or metrics")
	dict := flag.String("dict", "base", "dictionary type: base or extended")
	policy := flag.String("policy", "any-producer", "project verdict policy: any-producer or majority")
	strategy := flag.String("strategy", "word", "keyword extraction strategy")
	concurrency := flag.Int("concurrency", 0, "worker count, 0 means GOMAXPROCS")
	noRules3 := flag.Bool("no-rules-3", false, "disable the consumer-only-file rule")
	analysis := flag.Bool("analysis", false, "run the classification batch")
	merge := flag.Bool("merge", false, "merge predictions with the oracle")
	resultAnalysis := flag.Bool("result-analysis", false, "aggregate results into summary.csv")
	all := flag.Bool("all", false, "run analysis, merge and result analysis")
	flag.Parse()

	_ = godotenv.Load()

	if *all {
		*analysis, *merge, *resultAnalysis = true, true, true
	}
	if !*analysis && !*merge && !*resultAnalysis {
		log.Fatal("nothing to do: pass --analysis, --merge, --result-analysis or --all")
	}

	ioFS, err := safeio.NewSafeFS(*ioDir)
	if err != nil {
		log.Fatalf("io dir: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *analysis {
		runAnalysis(ctx, ioFS, *reposDir, analysisOptions{
			role:        *role,
			dict:        *dict,
			policy:      *policy,
			strategy:    *strategy,
			concurrency: *concurrency,
			noRules3:    *noRules3,
		})
	}
	if *merge {
		runMerge(ioFS)
	}
	if *resultAnalysis {
		runResultAnalysis(ioFS)
	}
}

type analysisOptions struct {
	role        string
	dict        string
	policy      string
	strategy    string
	concurrency int
	noRules3    bool
}

func runAnalysis(ctx context.Context, ioFS *safeio.SafeFS, reposDir string, opts analysisOptions) {
	role, ok := types.ParseRole(opts.role)
	if !ok {
		log.Fatalf("unknown role %q", opts.role)
	}
	dictType, ok := dictionary.ParseType(opts.dict)
	if !ok {
		log.Fatalf("unknown dictionary type %q", opts.dict)
	}
	policy, ok := rules.ParsePolicy(opts.policy)
	if !ok {
		log.Fatalf("unknown policy %q", opts.policy)
	}
	kind, ok := extract.ParseKind(opts.strategy)
	if !ok {
		log.Fatalf("unknown strategy %q", opts.strategy)
	}
	overrides := rules.DefaultOverrides()
	if opts.noRules3 {
		overrides.DisableRule3 = true
	}

	a, err := analyzer.Build(ioFS, analyzer.Config{
		Role:     role,
		DictType: dictType,
		Filters:  scan.DefaultFilters(),
		Strategy: kind,
		Rules:    overrides,
		Policy:   policy,
	})
	if err != nil {
		log.Fatalf("build analyzer: %v", err)
	}

	repoFS, err := safeio.NewSafeFS(reposDir)
	if err != nil {
		log.Fatalf("repos dir: %v", err)
	}
	projects, err := scan.Projects(repoFS, ".")
	if err != nil {
		log.Fatalf("list projects: %v", err)
	}
	log.Printf("analyzing %d projects as %s", len(projects), role)

	batch := &pipeline.Batch{
		Analyzer:    a,
		Concurrency: opts.concurrency,
		Observer: func(ev pipeline.Event) {
			if ev.Type == pipeline.EventProjectDone {
				log.Printf("[%d/%d] %s -> %s", ev.Completed, ev.Total, ev.ProjectID, ev.Verdict)
			}
		},
	}
	reports, err := batch.Run(ctx, repoFS, projects)
	if err != nil {
		log.Fatalf("batch: %v", err)
	}

	for _, r := range reports {
		if r.EmptyProject != nil {
			log.Printf("warning: %s has no scannable files", r.ProjectID)
		}
		for _, w := range r.ScanWarnings {
			log.Printf("warning: %s %s: %s", r.ProjectID, w.Path, w.Reason)
		}
	}

	saveReports(ioFS, reports)
	if err := report.WriteResults(ioFS, outDir, reports); err != nil {
		log.Fatalf("%v", err)
	}
	if role == types.RoleMetrics {
		name, err := report.WriteMetrics(ioFS, outDir, reports)
		if err != nil {
			log.Fatalf("%v", err)
		}
		log.Printf("wrote %s", path.Join(outDir, name))
	}
	log.Printf("wrote %s", path.Join(outDir, report.ResultsFile))
}

func runMerge(ioFS *safeio.SafeFS) {
	reports := loadReports(ioFS)
	o, err := oracle.Load(ioFS, "oracle.csv")
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			log.Printf("no oracle.csv, comparison will be all UNKNOWN")
			o = nil
		} else {
			log.Fatalf("oracle: %v", err)
		}
	}
	records := oracle.Merge(reports, o)
	if err := report.WriteComparison(ioFS, outDir, records); err != nil {
		log.Fatalf("%v", err)
	}
	if o != nil {
		if stale := o.Unlabeled(reports); len(stale) > 0 {
			log.Printf("warning: %d oracle rows matched no analyzed project", len(stale))
		}
	}
	log.Printf("wrote %s", path.Join(outDir, report.ComparisonFile))
}

func runResultAnalysis(ioFS *safeio.SafeFS) {
	reports := loadReports(ioFS)
	comparisons := loadComparisons(ioFS)
	summary := stats.Aggregate(reports, comparisons)
	if err := report.WriteSummary(ioFS, outDir, summary); err != nil {
		log.Fatalf("%v", err)
	}
	log.Printf("projects=%d precision=%.4f recall=%.4f f1=%.4f unmatched=%d",
		summary.Projects, summary.Precision, summary.Recall, summary.F1, summary.Confusion.Unmatched)
	log.Printf("wrote %s", path.Join(outDir, report.SummaryFile))
}

func saveReports(ioFS *safeio.SafeFS, reports []types.ProjectReport) {
	b, err := json.MarshalIndent(reports, "", "  ")
	if err != nil {
		log.Fatalf("encode reports: %v", err)
	}
	if err := ioFS.WriteFileAtomic(path.Join(outDir, reportsFile), b, 0o644); err != nil {
		log.Fatalf("write reports: %v", err)
	}
}

func loadReports(ioFS *safeio.SafeFS) []types.ProjectReport {
	raw, err := ioFS.ReadFile(path.Join(outDir, reportsFile))
	if err != nil {
		log.Fatalf("read %s (run --analysis first): %v", reportsFile, err)
	}
	var reports []types.ProjectReport
	if err := json.Unmarshal(raw, &reports); err != nil {
		log.Fatalf("decode %s: %v", reportsFile, err)
	}
	return reports
}

func loadComparisons(ioFS *safeio.SafeFS) []types.ComparisonRecord {
	raw, err := ioFS.ReadFile(path.Join(outDir, report.ComparisonFile))
	if err != nil {
		log.Printf("no %s, summary will skip oracle metrics", report.ComparisonFile)
		return nil
	}
	rows, err := csv.NewReader(strings.NewReader(string(raw))).ReadAll()
	if err != nil {
		log.Fatalf("decode %s: %v", report.ComparisonFile, err)
	}
	var out []types.ComparisonRecord
	for i, row := range rows {
		if i == 0 || len(row) < 4 {
			continue
		}
		rec := types.ComparisonRecord{
			ProjectID: row[0],
			Outcome:   types.Outcome(row[3]),
		}
		if role, ok := types.ParseRole(row[1]); ok {
			rec.Predicted = role
		}
		if role, ok := types.ParseRole(row[2]); ok {
			rec.Expected = role
		}
		out = append(out, rec)
	}
	return out
}
