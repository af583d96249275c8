package report

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

func (s *Store) ensureLoadedFile() {
	s.loadOnce.Do(func() {
		b, err := os.ReadFile(s.path)
		if err != nil {
			return
		}
		var runs []Run
		if err := json.Unmarshal(b, &runs); err != nil {
			return
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		for _, run := range runs {
			id := strings.TrimSpace(run.RunID)
			if id == "" {
				continue
			}
			s.byID[id] = run
		}
	})
}

func (s *Store) saveFile() {
	s.mu.RLock()
	runs := make([]Run, 0, len(s.byID))
	for _, run := range s.byID {
		runs = append(runs, run)
	}
	s.mu.RUnlock()
	sort.Slice(runs, func(i, j int) bool { return runs[i].RunID < runs[j].RunID })

	b, err := json.MarshalIndent(runs, "", "  ")
	if err != nil {
		return
	}
	_ = os.MkdirAll(filepath.Dir(s.path), 0o755)
	_ = os.WriteFile(s.path, b, 0o644)
}

func (s *Store) putFile(run Run) {
	s.ensureLoadedFile()
	s.mu.Lock()
	s.byID[run.RunID] = run
	s.mu.Unlock()
	s.saveFile()
}

func (s *Store) getFile(runID string) (Run, bool) {
	s.ensureLoadedFile()
	s.mu.RLock()
	run, ok := s.byID[runID]
	s.mu.RUnlock()
	return run, ok
}

func (s *Store) listFile() []RunMeta {
	s.ensureLoadedFile()
	s.mu.RLock()
	out := make([]RunMeta, 0, len(s.byID))
	for _, run := range s.byID {
		out = append(out, RunMeta{
			RunID:     run.RunID,
			Role:      run.Role,
			CreatedAt: run.CreatedAt,
			Projects:  len(run.Reports),
		})
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].RunID < out[j].RunID
	})
	return out
}
