package scan

import (
	"fmt"
	"sort"
	"strings"

	"mark/internal/safeio"
)

// Project is one analyzable repository checkout. The corpus layout is
// <repos>/<owner>/<name>; ID is "owner/name" and doubles as the oracle key.
type Project struct {
	ID   string
	Root string // repos-relative path of the checkout
}

// Projects lists all repository checkouts under reposDir in deterministic
// order. Non-directory entries are ignored.
func Projects(sfs *safeio.SafeFS, reposDir string) ([]Project, error) {
	if sfs == nil {
		return nil, fmt.Errorf("scan: filesystem is required")
	}
	owners, err := sfs.ReadDir(reposDir)
	if err != nil {
		return nil, fmt.Errorf("scan: repos dir %s: %w", reposDir, err)
	}
	var out []Project
	for _, owner := range owners {
		if !owner.IsDir() {
			continue
		}
		children, err := sfs.ReadDir(reposDir + "/" + owner.Name())
		if err != nil {
			continue
		}
		for _, repo := range children {
			if !repo.IsDir() {
				continue
			}
			out = append(out, Project{
				ID:   owner.Name() + "/" + repo.Name(),
				Root: strings.TrimPrefix(reposDir+"/"+owner.Name()+"/"+repo.Name(), "./"),
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
