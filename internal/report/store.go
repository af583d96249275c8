package report

import (
	"database/sql"
	"os"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	_ "github.com/jackc/pgx/v5/stdlib"

	"mark/internal/stats"
	"mark/internal/types"
)

// Run is one persisted batch: its configuration, every project report, the
// oracle comparison and the aggregate.
type Run struct {
	RunID       string                   `json:"run_id"`
	Role        types.Role               `json:"role"`
	DictType    string                   `json:"dict_type"`
	Policy      string                   `json:"policy"`
	CreatedAt   time.Time                `json:"created_at"`
	Summary     stats.Summary            `json:"summary"`
	Reports     []types.ProjectReport    `json:"reports,omitempty"`
	Comparisons []types.ComparisonRecord `json:"comparisons,omitempty"`
}

// RunMeta is the listing view of a run.
type RunMeta struct {
	RunID     string     `json:"run_id"`
	Role      types.Role `json:"role"`
	CreatedAt time.Time  `json:"created_at"`
	Projects  int        `json:"projects"`
}

// Store keeps finished runs. With a DSN it persists to postgres and caches
// lookups in an LRU; otherwise it keeps a JSON file on disk. All methods are
// safe for concurrent use.
type Store struct {
	path string
	db   *sql.DB

	loadOnce sync.Once
	mu       sync.RWMutex
	byID     map[string]Run

	schemaOnce sync.Once
	schemaErr  error

	runCache *lru.Cache[string, Run]
}

// NewFileStore keeps runs in a single JSON file at path.
func NewFileStore(path string) *Store {
	return &Store{path: path, byID: make(map[string]Run)}
}

// NewPostgresStore connects through the pgx stdlib driver.
func NewPostgresStore(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", strings.TrimSpace(dsn))
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	cache, err := lru.New[string, Run](256)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db, runCache: cache}, nil
}

// NewStoreFromEnv picks postgres when REPORT_STORE_PG_DSN is set and
// reachable, else falls back to the file backend at path.
func NewStoreFromEnv(path string) *Store {
	dsn := strings.TrimSpace(os.Getenv("REPORT_STORE_PG_DSN"))
	if dsn == "" {
		return NewFileStore(path)
	}
	s, err := NewPostgresStore(dsn)
	if err != nil {
		return NewFileStore(path)
	}
	return s
}

// Put records or replaces a run.
func (s *Store) Put(run Run) error {
	if s == nil {
		return nil
	}
	run.RunID = strings.TrimSpace(run.RunID)
	if run.RunID == "" {
		return nil
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	if s.db != nil {
		err := s.putDB(run)
		if err == nil && s.runCache != nil {
			s.runCache.Remove(run.RunID)
		}
		return err
	}
	s.putFile(run)
	return nil
}

// Get returns a stored run by ID.
func (s *Store) Get(runID string) (Run, bool) {
	if s == nil {
		return Run{}, false
	}
	runID = strings.TrimSpace(runID)
	if runID == "" {
		return Run{}, false
	}
	if s.db != nil {
		if s.runCache != nil {
			if cached, ok := s.runCache.Get(runID); ok {
				return cached, true
			}
		}
		run, ok := s.getDB(runID)
		if ok && s.runCache != nil {
			s.runCache.Add(runID, run)
		}
		return run, ok
	}
	return s.getFile(runID)
}

// List returns run metadata, newest first.
func (s *Store) List() []RunMeta {
	if s == nil {
		return nil
	}
	if s.db != nil {
		return s.listDB()
	}
	return s.listFile()
}

// Close releases the database connection, if any.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
