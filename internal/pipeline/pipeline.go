// Package pipeline fans a corpus of repositories over a bounded worker pool.
// One analyzer instance serves all workers; its dictionary and rules are
// read-only, so no state is shared between in-flight projects.
package pipeline

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"mark/internal/analyzer"
	"mark/internal/safeio"
	"mark/internal/scan"
	"mark/internal/types"
)

// EventType tags a progress event.
type EventType string

const (
	EventBatchStart  EventType = "batch_start"
	EventProjectDone EventType = "project_done"
	EventBatchDone   EventType = "batch_done"
)

// Event is one progress notification. ProjectID and Role are set for
// project_done; Completed/Total track batch progress.
type Event struct {
	Type      EventType  `json:"type"`
	Role      types.Role `json:"role,omitempty"`
	ProjectID string     `json:"project_id,omitempty"`
	Verdict   types.Role `json:"verdict,omitempty"`
	Completed int        `json:"completed"`
	Total     int        `json:"total"`
	Err       string     `json:"err,omitempty"`
}

// Observer receives progress events. Calls are serialized; a nil observer is
// a no-op.
type Observer func(Event)

// Batch runs one role's analyzer over a list of projects.
type Batch struct {
	Analyzer    *analyzer.Analyzer
	Concurrency int // <=0 means GOMAXPROCS
	Observer    Observer

	emitMu sync.Mutex
}

// Run analyzes every project and returns reports in input order. A failing
// project never aborts the batch: it yields an undetermined report carrying
// the failure as a scan warning. Run returns early only on context
// cancellation, in which case unstarted projects are missing from the output.
func (b *Batch) Run(ctx context.Context, repoFS *safeio.SafeFS, projects []scan.Project) ([]types.ProjectReport, error) {
	if b.Analyzer == nil {
		return nil, fmt.Errorf("pipeline: analyzer is required")
	}
	workers := b.Concurrency
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > len(projects) {
		workers = len(projects)
	}

	b.emit(Event{Type: EventBatchStart, Role: b.Analyzer.Role(), Total: len(projects)})

	reports := make([]types.ProjectReport, len(projects))
	done := make([]bool, len(projects))
	jobs := make(chan int)

	var wg sync.WaitGroup
	var mu sync.Mutex
	completed := 0

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				p := projects[i]
				report, err := b.Analyzer.AnalyzeProject(ctx, repoFS, p)
				if err != nil {
					if ctx.Err() != nil {
						return
					}
					report = failedReport(p, err)
				}
				mu.Lock()
				reports[i] = report
				done[i] = true
				completed++
				n := completed
				mu.Unlock()
				ev := Event{
					Type:      EventProjectDone,
					Role:      b.Analyzer.Role(),
					ProjectID: p.ID,
					Verdict:   report.Verdict.Role,
					Completed: n,
					Total:     len(projects),
				}
				if err != nil {
					ev.Err = err.Error()
				}
				b.emit(ev)
			}
		}()
	}

	// Scheduling stops at the first cancellation; in-flight projects drain.
	var schedErr error
dispatch:
	for i := range projects {
		select {
		case <-ctx.Done():
			schedErr = ctx.Err()
			break dispatch
		case jobs <- i:
		}
	}
	close(jobs)
	wg.Wait()

	b.emit(Event{Type: EventBatchDone, Role: b.Analyzer.Role(), Completed: completed, Total: len(projects)})

	if schedErr != nil {
		return compact(reports, done), schedErr
	}
	return reports, nil
}

func (b *Batch) emit(ev Event) {
	if b.Observer == nil {
		return
	}
	b.emitMu.Lock()
	defer b.emitMu.Unlock()
	b.Observer(ev)
}

// failedReport wraps a project-level failure so the batch still completes.
func failedReport(p scan.Project, err error) types.ProjectReport {
	return types.ProjectReport{
		ProjectID:    p.ID,
		Verdict:      types.Verdict{Scope: types.ScopeProject, Role: types.RoleUndetermined},
		ScanWarnings: []types.ScanWarning{{Path: p.Root, Reason: err.Error()}},
	}
}

func compact(reports []types.ProjectReport, done []bool) []types.ProjectReport {
	out := reports[:0]
	for i, ok := range done {
		if ok {
			out = append(out, reports[i])
		}
	}
	return out
}
