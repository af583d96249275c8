package extract

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"mark/internal/dictionary"
	"mark/internal/types"
)

// Strategy turns one file's text into the set of dictionary entries it
// mentions. Implementations must be stateless so one instance can serve
// concurrent repository analyses.
type Strategy interface {
	Name() string
	Extract(f types.SourceFile, d *dictionary.Dictionary) ([]types.KeywordMatch, error)
}

// Kind names a registered extraction strategy.
type Kind string

const (
	// KindWord is the default: whole-identifier matching over an index of the
	// file's tokens.
	KindWord Kind = "word"
)

// ParseKind maps a config string to a Kind. Empty input selects the default.
func ParseKind(s string) (Kind, bool) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case "", KindWord:
		return KindWord, true
	}
	return "", false
}

// New constructs the strategy for a kind. Callers depend only on the Strategy
// contract, never on a concrete matcher.
func New(kind Kind) (Strategy, error) {
	switch kind {
	case "", KindWord:
		return WordMatcher{}, nil
	}
	return nil, fmt.Errorf("extract: unknown strategy %q", kind)
}

// WordMatcher matches dictionary entries against whole identifiers and dotted
// identifier chains, case-sensitively. Multiple occurrences in one file
// increment Count rather than producing duplicate matches.
type WordMatcher struct{}

func (WordMatcher) Name() string { return string(KindWord) }

func (WordMatcher) Extract(f types.SourceFile, d *dictionary.Dictionary) ([]types.KeywordMatch, error) {
	if d == nil || d.Len() == 0 {
		return nil, nil
	}
	// Undecodable content yields zero matches, not an error.
	if !utf8.ValidString(f.Text) {
		return nil, nil
	}
	idx := Build([]byte(f.Text))
	var out []types.KeywordMatch
	for _, entry := range d.Entries() {
		lines := idx.Find(entry.Name)
		if len(lines) == 0 {
			continue
		}
		out = append(out, types.KeywordMatch{
			File:  f.Path,
			Entry: entry,
			Count: len(lines),
			Lines: lines,
		})
	}
	// Order by first occurrence, then name, so evidence reads in file order.
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Lines[0] != out[j].Lines[0] {
			return out[i].Lines[0] < out[j].Lines[0]
		}
		return out[i].Entry.Name < out[j].Entry.Name
	})
	return out, nil
}
