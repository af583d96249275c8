package analyzer

import (
	"context"
	"fmt"
	"log"

	"mark/internal/dictionary"
	"mark/internal/extract"
	"mark/internal/metrics"
	"mark/internal/rules"
	"mark/internal/safeio"
	"mark/internal/scan"
	"mark/internal/types"
)

// UnsupportedRoleError is a caller misconfiguration: the requested
// role/dictionary combination cannot be built. Fatal to the run.
type UnsupportedRoleError struct {
	Role     types.Role
	DictType dictionary.Type
}

func (e *UnsupportedRoleError) Error() string {
	return fmt.Sprintf("analyzer: unsupported role %q with dictionary type %q", e.Role, e.DictType)
}

// Config is the construction surface consumed by Build. Callers depend on
// this enumeration, never on concrete analyzer wiring.
type Config struct {
	Role     types.Role
	DictType dictionary.Type
	Filters  scan.Filters
	Strategy extract.Kind
	Rules    rules.Overrides
	Policy   rules.Policy

	// Metrics supplies the external metrics provider for the metrics role.
	// Nil falls back to the SLOC-only Noop provider.
	Metrics metrics.Provider

	// Dictionaries optionally shares loaded dictionaries across builds.
	Dictionaries *dictionary.Cache
}

// Analyzer runs one role's scan→extract→rules pass over repositories. The
// dictionary and rule configuration are read-only after Build, so one
// instance may analyze projects concurrently.
type Analyzer struct {
	role     types.Role
	dict     *dictionary.Dictionary
	engine   *rules.Engine
	strategy extract.Strategy
	filters  scan.Filters
	policy   rules.Policy
	provider metrics.Provider
}

// Build constructs the configured analyzer: dictionary loaded, rules
// enabled/disabled, strategy resolved. Identical inputs always yield an
// analyzer with identical rule configuration.
func Build(ioFS *safeio.SafeFS, cfg Config) (*Analyzer, error) {
	switch cfg.Role {
	case types.RoleProducer, types.RoleConsumer, types.RoleMetrics:
	default:
		return nil, &UnsupportedRoleError{Role: cfg.Role, DictType: cfg.DictType}
	}
	if _, ok := dictionary.ParseType(string(cfg.DictType)); !ok {
		return nil, &UnsupportedRoleError{Role: cfg.Role, DictType: cfg.DictType}
	}

	dict, err := loadDict(ioFS, cfg)
	if err != nil {
		return nil, err
	}
	list, err := rules.For(cfg.Role, cfg.Rules)
	if err != nil {
		return nil, &UnsupportedRoleError{Role: cfg.Role, DictType: cfg.DictType}
	}
	strategy, err := extract.New(cfg.Strategy)
	if err != nil {
		return nil, err
	}
	policy := cfg.Policy
	if policy == "" {
		policy = rules.PolicyAnyProducer
	}
	provider := cfg.Metrics
	if provider == nil {
		provider = metrics.Noop{}
	}
	return &Analyzer{
		role:     cfg.Role,
		dict:     dict,
		engine:   rules.NewEngine(list),
		strategy: strategy,
		filters:  cfg.Filters,
		policy:   policy,
		provider: provider,
	}, nil
}

func loadDict(ioFS *safeio.SafeFS, cfg Config) (*dictionary.Dictionary, error) {
	typ := cfg.DictType
	if typ == "" {
		typ = dictionary.TypeBase
	}
	if cfg.Dictionaries != nil {
		return cfg.Dictionaries.Load(ioFS, cfg.Role, typ)
	}
	return dictionary.Load(ioFS, cfg.Role, typ)
}

// Role returns the role this analyzer argues for.
func (a *Analyzer) Role() types.Role { return a.role }

// Dictionary exposes the loaded dictionary (read-only).
func (a *Analyzer) Dictionary() *dictionary.Dictionary { return a.dict }

// AnalyzeProject scans one repository and derives its project verdict.
// File-level failures are isolated: unreadable or undecodable files become
// warnings or empty match sets, and the project still reports.
func (a *Analyzer) AnalyzeProject(ctx context.Context, repoFS *safeio.SafeFS, project scan.Project) (types.ProjectReport, error) {
	report := types.ProjectReport{ProjectID: project.ID, KeywordTally: map[string]int{}}
	if a == nil {
		return report, fmt.Errorf("analyzer is required")
	}
	if err := ctx.Err(); err != nil {
		return report, err
	}

	acc := metrics.NewAccumulator(project.ID)
	var fileVerdicts []types.Verdict

	warnings, err := scan.Scan(repoFS, project.Root, a.filters, func(f types.SourceFile) {
		matches, xerr := a.strategy.Extract(f, a.dict)
		if xerr != nil {
			// Extraction failures degrade to zero matches for this file.
			log.Printf("extract %s %s: %v", project.ID, f.Path, xerr)
			matches = nil
		}
		for _, m := range matches {
			report.KeywordTally[m.Entry.Name] += m.Count
		}
		if a.role == types.RoleMetrics {
			m, merr := a.provider.Measure(f)
			if merr != nil {
				log.Printf("metrics %s %s: %v", project.ID, f.Path, merr)
				m = types.CodeMetrics{}
			}
			acc.Add(m)
		}
		fileVerdicts = append(fileVerdicts, a.engine.EvaluateFile(f.Path, matches))
	})
	if err != nil {
		return report, fmt.Errorf("analyze %s: %w", project.ID, err)
	}
	report.ScanWarnings = warnings
	report.FilesScanned = len(fileVerdicts)

	if len(fileVerdicts) == 0 {
		report.EmptyProject = &types.EmptyProjectWarning{ProjectID: project.ID}
		report.Verdict = types.Verdict{Scope: types.ScopeProject, Role: types.RoleUndetermined}
		return report, nil
	}

	report.FileVerdicts = fileVerdicts
	report.Verdict = rules.Combine(fileVerdicts, a.policy)
	if a.role == types.RoleMetrics {
		pm := acc.Project()
		report.Metrics = &pm
	}
	return report, nil
}
