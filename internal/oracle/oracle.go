// Package oracle loads ground-truth labels and merges them with predicted
// project roles into comparison records. Producer is the positive class;
// undetermined predictions are counted separately from both classes.
package oracle

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strings"

	"mark/internal/safeio"
	"mark/internal/types"
)

// Oracle is an immutable set of ground-truth labels keyed by project ID.
type Oracle struct {
	byID map[string]types.Role
}

// Load reads a two-column CSV (project_id, expected_role) through fs. A
// header row is tolerated. Duplicate project IDs with conflicting roles are
// rejected; blank lines are skipped.
func Load(fs *safeio.SafeFS, path string) (*Oracle, error) {
	raw, err := fs.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("oracle: read %s: %w", path, err)
	}
	return Parse(strings.NewReader(string(raw)), path)
}

// Parse is Load over an already-open reader. source names the input in errors.
func Parse(r io.Reader, source string) (*Oracle, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	byID := make(map[string]types.Role)
	line := 0
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("oracle: parse %s: %w", source, err)
		}
		line++
		if len(rec) == 0 {
			continue
		}
		id := strings.TrimSpace(rec[0])
		if id == "" {
			continue
		}
		if len(rec) < 2 {
			return nil, fmt.Errorf("oracle: %s line %d: missing expected role", source, line)
		}
		role, ok := types.ParseRole(rec[1])
		if !ok {
			// Skip a header row but reject anything else unparseable.
			if line == 1 && looksLikeHeader(rec) {
				continue
			}
			return nil, fmt.Errorf("oracle: %s line %d: unknown role %q", source, line, rec[1])
		}
		if prev, seen := byID[id]; seen && prev != role {
			return nil, fmt.Errorf("oracle: %s line %d: conflicting roles for %s: %s vs %s", source, line, id, prev, role)
		}
		byID[id] = role
	}
	return &Oracle{byID: byID}, nil
}

func looksLikeHeader(rec []string) bool {
	first := strings.ToLower(strings.TrimSpace(rec[0]))
	return first == "project_id" || first == "project" || first == "id"
}

// Expected reports the ground-truth role for a project, if present.
func (o *Oracle) Expected(projectID string) (types.Role, bool) {
	role, ok := o.byID[projectID]
	return role, ok
}

// Len reports the number of labeled projects.
func (o *Oracle) Len() int { return len(o.byID) }

// Merge pairs every report with its oracle label and classifies the outcome.
// Reports without a label become UNKNOWN rather than being dropped; every
// input report yields exactly one record, in input order. A nil oracle marks
// all records UNKNOWN.
func Merge(reports []types.ProjectReport, o *Oracle) []types.ComparisonRecord {
	out := make([]types.ComparisonRecord, 0, len(reports))
	for _, r := range reports {
		rec := types.ComparisonRecord{
			ProjectID: r.ProjectID,
			Predicted: r.Verdict.Role,
			Outcome:   types.OutcomeUnknown,
		}
		if r.Verdict.Role == types.RoleUndetermined {
			rec.Undetermined = true
		}
		if o != nil {
			if expected, ok := o.Expected(r.ProjectID); ok {
				rec.Expected = expected
				rec.Outcome = classify(r.Verdict.Role, expected)
			}
		}
		out = append(out, rec)
	}
	return out
}

// classify maps a prediction/label pair to its confusion cell. An
// undetermined prediction is never a correct answer: against a producer label
// it is a miss (FN), against anything else a non-answer (UNKNOWN).
func classify(predicted, expected types.Role) types.Outcome {
	if predicted == types.RoleUndetermined {
		if expected == types.RoleProducer {
			return types.OutcomeFN
		}
		return types.OutcomeUnknown
	}
	switch {
	case predicted == types.RoleProducer && expected == types.RoleProducer:
		return types.OutcomeTP
	case predicted == types.RoleProducer && expected != types.RoleProducer:
		return types.OutcomeFP
	case predicted != types.RoleProducer && expected == types.RoleProducer:
		return types.OutcomeFN
	default:
		return types.OutcomeTN
	}
}

// Unlabeled returns the labeled project IDs that appear in the oracle but in
// none of the reports, sorted. Useful for flagging stale ground truth.
func (o *Oracle) Unlabeled(reports []types.ProjectReport) []string {
	if o == nil {
		return nil
	}
	seen := make(map[string]bool, len(reports))
	for _, r := range reports {
		seen[r.ProjectID] = true
	}
	var missing []string
	for id := range o.byID {
		if !seen[id] {
			missing = append(missing, id)
		}
	}
	sort.Strings(missing)
	return missing
}
