package extract

import (
	"unicode"
	"unicode/utf8"
)

/*
Word index over a single file.

Rules:
- Keep only ident-like words: start with Unicode letter or '_' and continue
  with letter/digit/'_'.
- Numbers and symbols are delimiters; matching is case-sensitive and whole
  identifiers only, so "torch" never hits inside "torchvision".
- Dotted chains of adjacent identifiers ("transformers.pipeline") are indexed
  alongside the plain words so dotted dictionary entries match exactly.
- Positions are 1-based line numbers.
*/

const maxChain = 4

type token struct {
	text  string
	line  int
	start int // byte offset of first rune
	end   int // byte offset just past last rune
}

// Index holds postings for one file: word (or dotted chain) -> line numbers
// in occurrence order.
type Index struct {
	post map[string][]int
}

// Build parses file content and collects words and dotted chains.
func Build(src []byte) *Index {
	idx := &Index{post: make(map[string][]int)}
	toks := tokenize(src)
	for _, t := range toks {
		idx.add(t.text, t.line)
	}
	// Dotted chains: consecutive tokens joined by a single '.' byte.
	for i := range toks {
		chain := toks[i].text
		end := toks[i].end
		for j := i + 1; j < len(toks) && j-i < maxChain; j++ {
			if toks[j].start != end+1 || end >= len(src) || src[end] != '.' {
				break
			}
			chain += "." + toks[j].text
			end = toks[j].end
			idx.add(chain, toks[i].line)
		}
	}
	return idx
}

func tokenize(src []byte) []token {
	isStart := func(r rune) bool { return r == '_' || unicode.IsLetter(r) }
	isCont := func(r rune) bool { return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r) }

	var toks []token
	line := 1
	i := 0
	for i < len(src) {
		r, w := utf8.DecodeRune(src[i:])
		if r == '\n' {
			line++
			i += w
			continue
		}
		if r == utf8.RuneError && w == 1 {
			// Treat invalid bytes as delimiters.
			i++
			continue
		}
		if isStart(r) {
			start := i
			i += w
			for i < len(src) {
				rc, wc := utf8.DecodeRune(src[i:])
				if rc == '\n' || !isCont(rc) {
					break
				}
				i += wc
			}
			toks = append(toks, token{text: string(src[start:i]), line: line, start: start, end: i})
			continue
		}
		i += w
	}
	return toks
}

func (x *Index) add(word string, line int) {
	x.post[word] = append(x.post[word], line)
}

// Find returns the 1-based lines of exact matches for word in this file.
func (x *Index) Find(word string) []int {
	if x == nil {
		return nil
	}
	return x.post[word]
}
