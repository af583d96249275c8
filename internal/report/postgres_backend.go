package report

import (
	"encoding/json"

	"mark/internal/types"
)

func (s *Store) ensureSchema() error {
	if s == nil || s.db == nil {
		return nil
	}
	s.schemaOnce.Do(func() {
		_, s.schemaErr = s.db.Exec(`
CREATE TABLE IF NOT EXISTS runs (
  run_id TEXT PRIMARY KEY,
  role TEXT NOT NULL,
  dict_type TEXT NOT NULL DEFAULT '',
  policy TEXT NOT NULL DEFAULT '',
  created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
  projects INTEGER NOT NULL DEFAULT 0,
  payload JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs (created_at DESC);
`)
	})
	return s.schemaErr
}

func (s *Store) putDB(run Run) error {
	if err := s.ensureSchema(); err != nil {
		return err
	}
	payload, err := json.Marshal(run)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`
INSERT INTO runs (run_id, role, dict_type, policy, created_at, projects, payload)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (run_id)
DO UPDATE SET role=EXCLUDED.role,
  dict_type=EXCLUDED.dict_type,
  policy=EXCLUDED.policy,
  created_at=EXCLUDED.created_at,
  projects=EXCLUDED.projects,
  payload=EXCLUDED.payload`,
		run.RunID, string(run.Role), run.DictType, run.Policy,
		run.CreatedAt, len(run.Reports), payload)
	return err
}

func (s *Store) getDB(runID string) (Run, bool) {
	if err := s.ensureSchema(); err != nil {
		return Run{}, false
	}
	var payload []byte
	row := s.db.QueryRow(`SELECT payload FROM runs WHERE run_id = $1`, runID)
	if err := row.Scan(&payload); err != nil {
		return Run{}, false
	}
	var run Run
	if err := json.Unmarshal(payload, &run); err != nil {
		return Run{}, false
	}
	return run, true
}

func (s *Store) listDB() []RunMeta {
	if err := s.ensureSchema(); err != nil {
		return nil
	}
	rows, err := s.db.Query(`SELECT run_id, role, created_at, projects
FROM runs ORDER BY created_at DESC, run_id`)
	if err != nil {
		return nil
	}
	defer rows.Close()
	out := make([]RunMeta, 0, 32)
	for rows.Next() {
		var m RunMeta
		var role string
		if err := rows.Scan(&m.RunID, &role, &m.CreatedAt, &m.Projects); err != nil {
			continue
		}
		m.Role = roleFromDB(role)
		out = append(out, m)
	}
	return out
}

func roleFromDB(v string) types.Role {
	if role, ok := types.ParseRole(v); ok {
		return role
	}
	return types.RoleUndetermined
}
