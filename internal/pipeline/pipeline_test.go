package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"mark/internal/analyzer"
	"mark/internal/safeio"
	"mark/internal/scan"
	"mark/internal/types"
)

func corpus(t *testing.T, projects map[string]map[string]string) (*safeio.SafeFS, []scan.Project) {
	t.Helper()
	root := t.TempDir()
	dict := filepath.Join(root, "library_dictionary")
	if err := os.MkdirAll(dict, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dict, "producer.csv"),
		[]byte("torch,producer\nonnxruntime,consumer\n"), 0o644); err != nil {
		t.Fatalf("write dict: %v", err)
	}
	for id, files := range projects {
		rel := filepath.Join("repos", filepath.FromSlash(id))
		if err := os.MkdirAll(filepath.Join(root, rel), 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", id, err)
		}
		for name, content := range files {
			p := filepath.Join(root, rel, name)
			if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
				t.Fatalf("mkdir: %v", err)
			}
			if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
				t.Fatalf("write: %v", err)
			}
		}
	}
	fs, err := safeio.NewSafeFS(root)
	if err != nil {
		t.Fatalf("NewSafeFS: %v", err)
	}
	// Deterministic input order for the batch.
	projectsSorted, err := scan.Projects(fs, "repos")
	if err != nil {
		t.Fatalf("Projects: %v", err)
	}
	return fs, projectsSorted
}

func producerAnalyzer(t *testing.T, fs *safeio.SafeFS) *analyzer.Analyzer {
	t.Helper()
	a, err := analyzer.Build(fs, analyzer.Config{Role: types.RoleProducer})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return a
}

func TestBatchPreservesInputOrder(t *testing.T) {
	fs, projects := corpus(t, map[string]map[string]string{
		"o/a": {"train.py": "import torch\n"},
		"o/b": {"run.py": "import onnxruntime\n"},
		"o/c": {"main.py": "print('hi')\n"},
	})
	b := &Batch{Analyzer: producerAnalyzer(t, fs), Concurrency: 2}

	reports, err := b.Run(context.Background(), fs, projects)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(reports) != len(projects) {
		t.Fatalf("got %d reports want %d", len(reports), len(projects))
	}
	for i, r := range reports {
		if r.ProjectID != projects[i].ID {
			t.Fatalf("report %d out of order: %s vs %s", i, r.ProjectID, projects[i].ID)
		}
	}
	byID := map[string]types.Role{}
	for _, r := range reports {
		byID[r.ProjectID] = r.Verdict.Role
	}
	if byID["o/a"] != types.RoleProducer {
		t.Fatalf("o/a: %s", byID["o/a"])
	}
	if byID["o/b"] != types.RoleConsumer {
		t.Fatalf("o/b: %s", byID["o/b"])
	}
	if byID["o/c"] != types.RoleUndetermined {
		t.Fatalf("o/c: %s", byID["o/c"])
	}
}

func TestBatchConcurrencyIndependence(t *testing.T) {
	files := map[string]map[string]string{}
	for _, id := range []string{"o/p1", "o/p2", "o/p3", "o/p4", "o/p5"} {
		files[id] = map[string]string{"main.py": "import torch\ntorch.save(m, 'f')\n"}
	}
	fs, projects := corpus(t, files)
	a := producerAnalyzer(t, fs)

	serial := &Batch{Analyzer: a, Concurrency: 1}
	parallel := &Batch{Analyzer: a, Concurrency: 4}
	want, err := serial.Run(context.Background(), fs, projects)
	if err != nil {
		t.Fatalf("serial: %v", err)
	}
	got, err := parallel.Run(context.Background(), fs, projects)
	if err != nil {
		t.Fatalf("parallel: %v", err)
	}
	for i := range want {
		if want[i].ProjectID != got[i].ProjectID || want[i].Verdict.Role != got[i].Verdict.Role {
			t.Fatalf("report %d differs: %+v vs %+v", i, want[i], got[i])
		}
	}
}

func TestBatchEmitsProgressEvents(t *testing.T) {
	fs, projects := corpus(t, map[string]map[string]string{
		"o/a": {"a.py": "import torch\n"},
		"o/b": {"b.py": "x = 1\n"},
	})
	var mu sync.Mutex
	var events []Event
	b := &Batch{
		Analyzer:    producerAnalyzer(t, fs),
		Concurrency: 2,
		Observer: func(ev Event) {
			mu.Lock()
			events = append(events, ev)
			mu.Unlock()
		},
	}
	if _, err := b.Run(context.Background(), fs, projects); err != nil {
		t.Fatalf("Run: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(events) != 4 {
		t.Fatalf("got %d events want 4: %+v", len(events), events)
	}
	if events[0].Type != EventBatchStart || events[0].Total != 2 {
		t.Fatalf("first event: %+v", events[0])
	}
	last := events[len(events)-1]
	if last.Type != EventBatchDone || last.Completed != 2 {
		t.Fatalf("last event: %+v", last)
	}
	done := 0
	for _, ev := range events[1 : len(events)-1] {
		if ev.Type == EventProjectDone {
			done++
		}
	}
	if done != 2 {
		t.Fatalf("project_done events: %d", done)
	}
}

func TestBatchMissingProjectRootIsIsolated(t *testing.T) {
	fs, projects := corpus(t, map[string]map[string]string{
		"o/a": {"a.py": "import torch\n"},
	})
	projects = append(projects, scan.Project{ID: "o/gone", Root: "repos/o/gone"})
	b := &Batch{Analyzer: producerAnalyzer(t, fs), Concurrency: 2}

	reports, err := b.Run(context.Background(), fs, projects)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(reports) != 2 {
		t.Fatalf("got %d reports want 2", len(reports))
	}
	var gone types.ProjectReport
	for _, r := range reports {
		if r.ProjectID == "o/gone" {
			gone = r
		}
	}
	if gone.Verdict.Role != types.RoleUndetermined || len(gone.ScanWarnings) == 0 {
		t.Fatalf("failed project not isolated: %+v", gone)
	}
}

func TestBatchCancellationStopsScheduling(t *testing.T) {
	files := map[string]map[string]string{}
	for i := 0; i < 8; i++ {
		files["o/p"+string(rune('a'+i))] = map[string]string{"main.py": "x = 1\n"}
	}
	fs, projects := corpus(t, files)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	b := &Batch{Analyzer: producerAnalyzer(t, fs), Concurrency: 2}
	reports, err := b.Run(ctx, fs, projects)
	if err != context.Canceled {
		t.Fatalf("want context.Canceled, got %v", err)
	}
	if len(reports) == len(projects) {
		t.Fatal("cancelled run still analyzed every project")
	}
}

func TestObserverCallsAreSerialized(t *testing.T) {
	fs, projects := corpus(t, map[string]map[string]string{
		"o/a": {"a.py": "import torch\n"},
		"o/b": {"b.py": "x = 1\n"},
		"o/c": {"c.py": "torch.save(m)\n"},
		"o/d": {"d.py": "y = 2\n"},
	})
	var inflight, overlaps atomic.Int32
	b := &Batch{
		Analyzer:    producerAnalyzer(t, fs),
		Concurrency: 4,
		Observer: func(Event) {
			if inflight.Add(1) > 1 {
				overlaps.Add(1)
			}
			time.Sleep(time.Millisecond)
			inflight.Add(-1)
		},
	}
	if _, err := b.Run(context.Background(), fs, projects); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if n := overlaps.Load(); n != 0 {
		t.Fatalf("observer entered concurrently %d times", n)
	}
}
