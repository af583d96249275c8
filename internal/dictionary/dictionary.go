package dictionary

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"mark/internal/types"
)

// Type selects which curated dictionary set to load.
type Type string

const (
	TypeBase     Type = "base"
	TypeExtended Type = "extended"
)

// ParseType maps a config string to a Type. Empty input selects the base set.
func ParseType(s string) (Type, bool) {
	switch Type(strings.ToLower(strings.TrimSpace(s))) {
	case "", TypeBase:
		return TypeBase, true
	case TypeExtended:
		return TypeExtended, true
	}
	return "", false
}

// LoadError is fatal to a run: classification cannot proceed without a valid
// dictionary. It wraps the underlying cause.
type LoadError struct {
	Source string
	Reason string
	Err    error
}

func (e *LoadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("dictionary %s: %s: %v", e.Source, e.Reason, e.Err)
	}
	return fmt.Sprintf("dictionary %s: %s", e.Source, e.Reason)
}

func (e *LoadError) Unwrap() error { return e.Err }

// Dictionary is an immutable set of library/keyword entries for one role.
// It is shared read-only across all analyzer instances of a run.
type Dictionary struct {
	role    types.Role
	typ     Type
	byName  map[string]types.LibraryEntry
	ordered []types.LibraryEntry // sorted by name for stable iteration
}

// Role returns the analyzer role this dictionary was loaded for.
func (d *Dictionary) Role() types.Role { return d.role }

// Kind returns the curated set the dictionary came from.
func (d *Dictionary) Kind() Type { return d.typ }

// Len returns the number of entries.
func (d *Dictionary) Len() int {
	if d == nil {
		return 0
	}
	return len(d.ordered)
}

// Lookup finds an entry by exact name.
func (d *Dictionary) Lookup(name string) (types.LibraryEntry, bool) {
	if d == nil {
		return types.LibraryEntry{}, false
	}
	e, ok := d.byName[name]
	return e, ok
}

// Entries returns all entries sorted by name. Callers must not mutate the
// returned slice.
func (d *Dictionary) Entries() []types.LibraryEntry {
	if d == nil {
		return nil
	}
	return d.ordered
}

// build validates rows and freezes them into a Dictionary. Duplicate names
// with identical signals collapse to one entry; conflicting signals are a
// load failure.
func build(source string, role types.Role, typ Type, rows [][]string) (*Dictionary, error) {
	byName := make(map[string]types.LibraryEntry, len(rows))
	for i, row := range rows {
		if len(row) < 2 {
			return nil, &LoadError{Source: source, Reason: fmt.Sprintf("row %d: want columns name,role_signal[,weight], got %d columns", i+1, len(row))}
		}
		name := strings.TrimSpace(row[0])
		if name == "" {
			return nil, &LoadError{Source: source, Reason: fmt.Sprintf("row %d: empty name", i+1)}
		}
		signal, ok := types.ParseSignal(row[1])
		if !ok {
			return nil, &LoadError{Source: source, Reason: fmt.Sprintf("row %d: unknown role_signal %q", i+1, row[1])}
		}
		entry := types.LibraryEntry{Name: name, Signal: signal}
		if len(row) > 2 && strings.TrimSpace(row[2]) != "" {
			w, err := strconv.ParseFloat(strings.TrimSpace(row[2]), 64)
			if err != nil {
				return nil, &LoadError{Source: source, Reason: fmt.Sprintf("row %d: bad weight %q", i+1, row[2]), Err: err}
			}
			if w < 0 {
				return nil, &LoadError{Source: source, Reason: fmt.Sprintf("row %d: negative weight", i+1)}
			}
			entry.Weight = w
		}
		if prev, dup := byName[name]; dup {
			if prev.Signal != entry.Signal {
				return nil, &LoadError{Source: source, Reason: fmt.Sprintf("duplicate entry %q with conflicting signals %s and %s", name, prev.Signal, entry.Signal)}
			}
			continue
		}
		byName[name] = entry
	}
	if len(byName) == 0 {
		return nil, &LoadError{Source: source, Reason: "no entries"}
	}
	ordered := make([]types.LibraryEntry, 0, len(byName))
	for _, e := range byName {
		ordered = append(ordered, e)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Name < ordered[j].Name })
	return &Dictionary{role: role, typ: typ, byName: byName, ordered: ordered}, nil
}
