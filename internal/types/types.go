package types

import "strings"

// Roles ---------------------------------------------------------------------------

// Role identifies what an analyzer looks for, and what a verdict assigns.
type Role string

const (
	RoleProducer     Role = "producer"
	RoleConsumer     Role = "consumer"
	RoleMetrics      Role = "metrics"
	RoleUndetermined Role = "undetermined"
)

// ParseRole maps a config/CSV string to a Role. The second return is false for
// unrecognized values.
func ParseRole(s string) (Role, bool) {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleProducer:
		return RoleProducer, true
	case RoleConsumer:
		return RoleConsumer, true
	case RoleMetrics:
		return RoleMetrics, true
	case RoleUndetermined:
		return RoleUndetermined, true
	}
	return "", false
}

// Signal declares which role(s) a dictionary entry argues for.
type Signal string

const (
	SignalProducer Signal = "producer"
	SignalConsumer Signal = "consumer"
	SignalBoth     Signal = "both"
)

// ParseSignal maps a CSV role_signal column value to a Signal.
func ParseSignal(s string) (Signal, bool) {
	switch Signal(strings.ToLower(strings.TrimSpace(s))) {
	case SignalProducer:
		return SignalProducer, true
	case SignalConsumer:
		return SignalConsumer, true
	case SignalBoth:
		return SignalBoth, true
	}
	return "", false
}

// Matches reports whether the signal argues for the given role.
func (s Signal) Matches(role Role) bool {
	if s == SignalBoth {
		return role == RoleProducer || role == RoleConsumer
	}
	return string(s) == string(role)
}

// Dictionary ----------------------------------------------------------------------

// LibraryEntry is one row of a library dictionary. Entries are immutable once
// loaded; Name is unique within a dictionary.
type LibraryEntry struct {
	Name   string  `json:"name"`
	Signal Signal  `json:"role_signal"`
	Weight float64 `json:"weight,omitempty"`
}

// EvidenceWeight returns the weight an entry contributes when matched. Entries
// without an explicit weight count as 1 (binary fired/not-fired).
func (e LibraryEntry) EvidenceWeight() float64 {
	if e.Weight > 0 {
		return e.Weight
	}
	return 1
}

// Scan ----------------------------------------------------------------------------

// SourceFile is a read-only view of one scanned file. Path is repo-relative
// using forward slashes.
type SourceFile struct {
	Path string
	Text string
}

// ScanWarning records a file that was skipped without aborting the run.
type ScanWarning struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// EmptyProjectWarning records a project that produced no scannable files.
type EmptyProjectWarning struct {
	ProjectID string `json:"project_id"`
}

// Extraction ----------------------------------------------------------------------

// KeywordMatch ties a dictionary entry to its occurrences within one file.
// Count is >= 1; Lines holds 1-based line numbers in occurrence order.
type KeywordMatch struct {
	File  string       `json:"file"`
	Entry LibraryEntry `json:"entry"`
	Count int          `json:"count"`
	Lines []int        `json:"lines,omitempty"`
}

// Rules / verdicts ----------------------------------------------------------------

// RuleEvidence records the outcome of one rule over one file's matches.
type RuleEvidence struct {
	RuleID  string         `json:"rule_id"`
	Fired   bool           `json:"fired"`
	Weight  float64        `json:"weight,omitempty"`
	Matches []KeywordMatch `json:"matches,omitempty"`
}

// Scope distinguishes file-level from project-level verdicts.
type Scope string

const (
	ScopeFile    Scope = "file"
	ScopeProject Scope = "project"
)

// Verdict is the role assigned to a file or project after rule evaluation,
// with the evidence that produced it in evaluation order.
type Verdict struct {
	Scope    Scope          `json:"scope"`
	Role     Role           `json:"role"`
	Path     string         `json:"path,omitempty"`
	Evidence []RuleEvidence `json:"evidence,omitempty"`
}

// Oracle / comparison -------------------------------------------------------------

// OracleEntry is one row of externally supplied ground truth.
type OracleEntry struct {
	ProjectID string `json:"project_id"`
	Expected  Role   `json:"expected_role"`
}

// Outcome classifies a prediction against the oracle, with producer treated as
// the positive class.
type Outcome string

const (
	OutcomeTP      Outcome = "TP"
	OutcomeFP      Outcome = "FP"
	OutcomeTN      Outcome = "TN"
	OutcomeFN      Outcome = "FN"
	OutcomeUnknown Outcome = "UNKNOWN"
)

// ComparisonRecord is one merged prediction/oracle row.
type ComparisonRecord struct {
	ProjectID    string  `json:"project_id"`
	Predicted    Role    `json:"predicted_role"`
	Expected     Role    `json:"expected_role,omitempty"`
	Outcome      Outcome `json:"outcome"`
	Undetermined bool    `json:"undetermined,omitempty"`
}

// Metrics -------------------------------------------------------------------------

// CodeMetrics holds values computed by the external metrics provider. The core
// only consumes and aggregates them.
type CodeMetrics struct {
	CyclomaticComplexity float64 `json:"cyclomatic_complexity"`
	MaintainabilityIndex float64 `json:"maintainability_index"`
	SLOC                 int     `json:"sloc"`
}

// ProjectMetrics is the per-project aggregate of provider values: mean CC over
// all measured blocks and MI weighted by SLOC.
type ProjectMetrics struct {
	ProjectID string  `json:"project_id"`
	CCAvg     float64 `json:"cc_avg"`
	MIAvg     float64 `json:"mi_avg"`
	TotalSLOC int     `json:"total_sloc"`
}

// Reports -------------------------------------------------------------------------

// ProjectReport is the per-repository unit of output: the project verdict plus
// everything needed for explainability and corpus statistics.
type ProjectReport struct {
	ProjectID    string                `json:"project_id"`
	Verdict      Verdict               `json:"verdict"`
	FileVerdicts []Verdict             `json:"file_verdicts,omitempty"`
	KeywordTally map[string]int        `json:"keyword_tally,omitempty"`
	Metrics      *ProjectMetrics       `json:"metrics,omitempty"`
	ScanWarnings []ScanWarning         `json:"scan_warnings,omitempty"`
	EmptyProject *EmptyProjectWarning  `json:"empty_project,omitempty"`
	FilesScanned int                   `json:"files_scanned"`
}

// EvidenceSummary renders the fired rules and matched keywords of the project
// verdict in a stable, compact form for tabular output.
func (r ProjectReport) EvidenceSummary() string {
	var parts []string
	for _, ev := range r.Verdict.Evidence {
		if !ev.Fired {
			continue
		}
		names := make([]string, 0, len(ev.Matches))
		for _, m := range ev.Matches {
			names = append(names, m.Entry.Name)
		}
		parts = append(parts, ev.RuleID+"("+strings.Join(names, " ")+")")
	}
	return strings.Join(parts, "; ")
}
