// Package service executes classification runs on behalf of the gateway.
package service

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"path"
	"sync/atomic"
	"time"

	"mark/internal/analyzer"
	"mark/internal/dictionary"
	"mark/internal/extract"
	"mark/internal/gateway/hub"
	"mark/internal/oracle"
	"mark/internal/pipeline"
	"mark/internal/report"
	"mark/internal/rules"
	"mark/internal/safeio"
	"mark/internal/scan"
	"mark/internal/stats"
	"mark/internal/types"
)

// OracleFile is looked up in the IO directory when a run asks for merging.
const OracleFile = "oracle.csv"

// RunParams is a submitted run request.
type RunParams struct {
	Role         string `json:"role"`
	DictType     string `json:"dict_type,omitempty"`
	Policy       string `json:"policy,omitempty"`
	Strategy     string `json:"strategy,omitempty"`
	DisableRule3 bool   `json:"disable_rule3,omitempty"`
	Merge        bool   `json:"merge,omitempty"`
	Concurrency  int    `json:"concurrency,omitempty"`
}

// Runner builds analyzers and drives batches, publishing progress to the hub
// and persisting each finished run.
type Runner struct {
	ioFS     *safeio.SafeFS
	repoFS   *safeio.SafeFS
	reposDir string
	store    *report.Store
	events   *hub.Hub
	archive  *report.S3Archive
	workers  int
	dicts    *dictionary.Cache

	seq atomic.Int64
}

func NewRunner(ioFS, repoFS *safeio.SafeFS, reposDir string, store *report.Store, events *hub.Hub, archive *report.S3Archive, workers int) (*Runner, error) {
	if ioFS == nil || repoFS == nil {
		return nil, fmt.Errorf("io and repo filesystems are required")
	}
	dicts, err := dictionary.NewCache(16)
	if err != nil {
		return nil, err
	}
	return &Runner{
		ioFS:     ioFS,
		repoFS:   repoFS,
		reposDir: reposDir,
		store:    store,
		events:   events,
		archive:  archive,
		workers:  workers,
		dicts:    dicts,
	}, nil
}

// Store exposes the run store for read handlers.
func (r *Runner) Store() *report.Store { return r.store }

// Submit validates params, assigns a run ID and executes the run in the
// background. Configuration errors surface immediately; everything after
// that is reported through the store and progress events.
func (r *Runner) Submit(params RunParams) (string, error) {
	cfg, err := r.buildConfig(params)
	if err != nil {
		return "", err
	}
	a, err := analyzer.Build(r.ioFS, cfg)
	if err != nil {
		return "", err
	}
	runID := r.nextRunID()
	go r.execute(context.Background(), runID, a, params)
	return runID, nil
}

func (r *Runner) buildConfig(params RunParams) (analyzer.Config, error) {
	var zero analyzer.Config
	role, ok := types.ParseRole(params.Role)
	if !ok {
		return zero, fmt.Errorf("unknown role %q", params.Role)
	}
	dictType := dictionary.TypeBase
	if params.DictType != "" {
		dictType, ok = dictionary.ParseType(params.DictType)
		if !ok {
			return zero, fmt.Errorf("unknown dictionary type %q", params.DictType)
		}
	}
	policy := rules.PolicyAnyProducer
	if params.Policy != "" {
		policy, ok = rules.ParsePolicy(params.Policy)
		if !ok {
			return zero, fmt.Errorf("unknown policy %q", params.Policy)
		}
	}
	kind := extract.KindWord
	if params.Strategy != "" {
		kind, ok = extract.ParseKind(params.Strategy)
		if !ok {
			return zero, fmt.Errorf("unknown strategy %q", params.Strategy)
		}
	}
	overrides := rules.DefaultOverrides()
	if params.DisableRule3 {
		overrides.DisableRule3 = true
	}
	return analyzer.Config{
		Role:         role,
		DictType:     dictType,
		Filters:      scan.DefaultFilters(),
		Strategy:     kind,
		Rules:        overrides,
		Policy:       policy,
		Dictionaries: r.dicts,
	}, nil
}

func (r *Runner) execute(ctx context.Context, runID string, a *analyzer.Analyzer, params RunParams) {
	projects, err := scan.Projects(r.repoFS, r.reposDir)
	if err != nil {
		log.Printf("run %s: list projects: %v", runID, err)
		return
	}

	workers := params.Concurrency
	if workers <= 0 {
		workers = r.workers
	}
	batch := &pipeline.Batch{
		Analyzer:    a,
		Concurrency: workers,
		Observer:    r.events.Observer(runID),
	}
	reports, err := batch.Run(ctx, r.repoFS, projects)
	if err != nil {
		log.Printf("run %s: batch: %v", runID, err)
		return
	}

	var comparisons []types.ComparisonRecord
	if params.Merge {
		comparisons = r.merge(runID, reports)
	}

	run := report.Run{
		RunID:       runID,
		Role:        a.Role(),
		DictType:    params.DictType,
		Policy:      params.Policy,
		CreatedAt:   time.Now().UTC(),
		Summary:     stats.Aggregate(reports, comparisons),
		Reports:     reports,
		Comparisons: comparisons,
	}
	if err := r.store.Put(run); err != nil {
		log.Printf("run %s: store: %v", runID, err)
	}

	outDir := path.Join("out", runID)
	names, err := report.WriteRunFiles(r.ioFS, outDir, run)
	if err != nil {
		log.Printf("run %s: write reports: %v", runID, err)
		return
	}
	r.archiveFiles(ctx, runID, outDir, names)
}

func (r *Runner) merge(runID string, reports []types.ProjectReport) []types.ComparisonRecord {
	o, err := oracle.Load(r.ioFS, OracleFile)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			log.Printf("run %s: no %s, skipping merge", runID, OracleFile)
		} else {
			log.Printf("run %s: oracle: %v", runID, err)
		}
		return oracle.Merge(reports, nil)
	}
	return oracle.Merge(reports, o)
}

func (r *Runner) archiveFiles(ctx context.Context, runID, outDir string, names []string) {
	if r.archive == nil {
		return
	}
	for _, name := range names {
		content, err := r.ioFS.ReadFile(path.Join(outDir, name))
		if err != nil {
			log.Printf("run %s: archive read %s: %v", runID, name, err)
			continue
		}
		if err := r.archive.Put(ctx, runID, name, content); err != nil {
			log.Printf("run %s: archive put %s: %v", runID, name, err)
		}
	}
}

func (r *Runner) nextRunID() string {
	n := r.seq.Add(1)
	return fmt.Sprintf("run-%s-%03d", time.Now().UTC().Format("20060102-150405"), n)
}
