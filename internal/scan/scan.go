package scan

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/bmatcuk/doublestar"

	"mark/internal/safeio"
	"mark/internal/types"
)

// Filters is the recognized scanner configuration. Zero values fall back to
// the defaults from DefaultFilters.
type Filters struct {
	// IncludeGlobs, when non-empty, restricts the scan to matching
	// repo-relative paths (doublestar syntax).
	IncludeGlobs []string
	// ExcludeGlobs removes matching paths. Applied after includes.
	ExcludeGlobs []string
	// MaxFileSize skips files larger than this many bytes. <=0 means no limit.
	MaxFileSize int64
	// AllowedExts restricts files by extension (with or without leading dot,
	// case-insensitive). Empty means all extensions.
	AllowedExts []string
}

// Directories never descended into, matching the corpus layout: dependency
// trees and VCS metadata carry no classification signal.
var skipDirs = map[string]bool{
	".git":         true,
	".hg":          true,
	".svn":         true,
	"node_modules": true,
	"vendor":       true,
	"__pycache__":  true,
	".venv":        true,
	"venv":         true,
	"dist":         true,
	"build":        true,
	".cache":       true,
}

// DefaultFilters excludes test and example directories and caps file size at
// 1 MiB, the shape of the original corpus runs.
func DefaultFilters() Filters {
	return Filters{
		ExcludeGlobs: []string{
			"**/test/**", "**/tests/**", "**/testing/**",
			"**/example/**", "**/examples/**", "**/docs/**",
		},
		MaxFileSize: 1 << 20,
	}
}

// Visit receives each candidate file in deterministic order.
type Visit func(f types.SourceFile)

// Scan walks root through fs and emits matching files to visit, ordered
// lexicographically by repo-relative path so repeated runs over an unchanged
// tree produce identical output. Unreadable files and directories, along with
// undecodable files, are skipped and recorded as warnings; they never abort
// the scan.
func Scan(sfs *safeio.SafeFS, root string, filters Filters, visit Visit) ([]types.ScanWarning, error) {
	if sfs == nil {
		return nil, fmt.Errorf("scan: filesystem is required")
	}
	if visit == nil {
		return nil, fmt.Errorf("scan: visit callback is required")
	}
	rootInfo, err := sfs.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("scan: root %s: %w", root, err)
	}
	if !rootInfo.IsDir() {
		return nil, fmt.Errorf("scan: root %s is not a directory", root)
	}

	allowedExts := normalizeExts(filters.AllowedExts)

	var warnings []types.ScanWarning
	warn := func(rel, reason string) {
		warnings = append(warnings, types.ScanWarning{Path: rel, Reason: reason})
	}

	// WalkDir visits entries in lexical order per directory, which gives the
	// deterministic whole-tree ordering the reporting layer depends on.
	onDirErr := func(rel string, err error) {
		warn(rel, "read dir failed: "+err.Error())
	}
	err = walkDir(sfs, root, ".", onDirErr, func(rel string, d fs.DirEntry) error {
		if d.IsDir() {
			if skipDirs[d.Name()] {
				return fs.SkipDir
			}
			return nil
		}
		if !matches(rel, filters, allowedExts) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			warn(rel, "stat failed: "+err.Error())
			return nil
		}
		if filters.MaxFileSize > 0 && info.Size() > filters.MaxFileSize {
			return nil
		}
		raw, err := sfs.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
		if err != nil {
			warn(rel, "read failed: "+err.Error())
			return nil
		}
		if !utf8.Valid(raw) {
			warn(rel, "not valid utf-8")
			return nil
		}
		visit(types.SourceFile{Path: rel, Text: string(raw)})
		return nil
	})
	if err != nil {
		return warnings, err
	}
	return warnings, nil
}

// Files is Scan collected into a slice, for callers that do not stream.
func Files(sfs *safeio.SafeFS, root string, filters Filters) ([]types.SourceFile, []types.ScanWarning, error) {
	var out []types.SourceFile
	warnings, err := Scan(sfs, root, filters, func(f types.SourceFile) {
		out = append(out, f)
	})
	return out, warnings, err
}

func matches(rel string, filters Filters, allowedExts map[string]bool) bool {
	if len(allowedExts) > 0 {
		ext := strings.ToLower(filepath.Ext(rel))
		if ext == "" || !allowedExts[ext] {
			return false
		}
	}
	if len(filters.IncludeGlobs) > 0 && !anyGlob(filters.IncludeGlobs, rel) {
		return false
	}
	if anyGlob(filters.ExcludeGlobs, rel) {
		return false
	}
	return true
}

func anyGlob(globs []string, rel string) bool {
	for _, g := range globs {
		if g == "" {
			continue
		}
		if ok, err := doublestar.Match(g, rel); err == nil && ok {
			return true
		}
	}
	return false
}

func normalizeExts(exts []string) map[string]bool {
	if len(exts) == 0 {
		return nil
	}
	out := make(map[string]bool, len(exts))
	for _, ext := range exts {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		out[ext] = true
	}
	return out
}

// walkDir recurses through sfs in lexical order, invoking fn with the
// repo-relative slash path of every entry under root. Unreadable
// subdirectories are reported through onDirErr and the walk continues with
// their siblings; only a failure on root itself aborts.
func walkDir(sfs *safeio.SafeFS, root, rel string, onDirErr func(rel string, err error), fn func(rel string, d fs.DirEntry) error) error {
	dir := root
	if rel != "." {
		dir = filepath.Join(root, filepath.FromSlash(rel))
	}
	entries, err := sfs.ReadDir(dir)
	if err != nil {
		if rel == "." {
			return err
		}
		onDirErr(rel, err)
		return nil
	}
	for _, d := range entries {
		childRel := d.Name()
		if rel != "." {
			childRel = rel + "/" + d.Name()
		}
		err := fn(childRel, d)
		if err == fs.SkipDir {
			continue
		}
		if err != nil {
			return err
		}
		if d.IsDir() {
			if err := walkDir(sfs, root, childRel, onDirErr, fn); err != nil {
				return err
			}
		}
	}
	return nil
}
