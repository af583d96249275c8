package dictionary

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"path"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"mark/internal/safeio"
	"mark/internal/types"
)

// DictDir is the directory under the IO root holding the curated CSVs:
// library_dictionary/<role>.csv for the base set and
// library_dictionary/extended/<role>.csv for the extended set.
const DictDir = "library_dictionary"

// Path returns the repo-relative CSV path for a role/type pair.
func Path(role types.Role, typ Type) string {
	if typ == TypeExtended {
		return path.Join(DictDir, "extended", string(role)+".csv")
	}
	return path.Join(DictDir, string(role)+".csv")
}

// Load reads and validates the dictionary for one role. The returned value is
// immutable; loading failures are fatal to the run.
func Load(fs *safeio.SafeFS, role types.Role, typ Type) (*Dictionary, error) {
	if fs == nil {
		return nil, &LoadError{Source: string(role), Reason: "io filesystem is required"}
	}
	switch role {
	case types.RoleProducer, types.RoleConsumer, types.RoleMetrics:
	default:
		return nil, &LoadError{Source: string(role), Reason: "unknown analyzer role"}
	}
	rel := Path(role, typ)
	raw, err := fs.ReadFile(rel)
	if err != nil {
		return nil, &LoadError{Source: rel, Reason: "read failed", Err: err}
	}
	rows, err := parseCSV(raw)
	if err != nil {
		return nil, &LoadError{Source: rel, Reason: "malformed csv", Err: err}
	}
	return build(rel, role, typ, rows)
}

// parseCSV reads all rows, tolerating a header line that names the columns.
func parseCSV(raw []byte) ([][]string, error) {
	r := csv.NewReader(bytes.NewReader(raw))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	all, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(all) > 0 && strings.EqualFold(strings.TrimSpace(all[0][0]), "name") {
		all = all[1:]
	}
	out := all[:0]
	for _, row := range all {
		if len(row) == 1 && strings.TrimSpace(row[0]) == "" {
			continue
		}
		out = append(out, row)
	}
	return out, nil
}

// Cache shares loaded dictionaries across analyzer builds within one process.
// Entries are immutable so a hit can be handed out without copying.
type Cache struct {
	mu  sync.Mutex
	lru *lru.Cache[string, *Dictionary]
}

// NewCache builds a cache holding at most n dictionaries.
func NewCache(n int) (*Cache, error) {
	if n <= 0 {
		n = 16
	}
	c, err := lru.New[string, *Dictionary](n)
	if err != nil {
		return nil, err
	}
	return &Cache{lru: c}, nil
}

// Load returns the cached dictionary for (fs root, role, type), loading it on
// first use.
func (c *Cache) Load(fs *safeio.SafeFS, role types.Role, typ Type) (*Dictionary, error) {
	if c == nil || c.lru == nil {
		return Load(fs, role, typ)
	}
	key := fmt.Sprintf("%s|%s|%s", fs.Root(), role, typ)
	c.mu.Lock()
	defer c.mu.Unlock()
	if d, ok := c.lru.Get(key); ok {
		return d, nil
	}
	d, err := Load(fs, role, typ)
	if err != nil {
		return nil, err
	}
	c.lru.Add(key, d)
	return d, nil
}
