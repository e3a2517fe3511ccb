// Package facade dispatches a compile request to the distributed
// AGENTS.md compiler, the CLAUDE.md formatter, or both, injects the
// constitution block, and aggregates the results (C11).
//
// Collaborators are held as interfaces rather than concrete types, per
// the corpus's "polymorphic compiler with optional collaborators"
// pattern generalized to explicit, swappable fields instead of a class
// hierarchy: production code gets the real optimizer/compiler/
// constitution packages; tests can substitute fakes.
package facade

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/seiggy/apm/internal/compiler"
	"github.com/seiggy/apm/internal/constitution"
	"github.com/seiggy/apm/internal/optimizer"
	"github.com/seiggy/apm/internal/primitive"
	"github.com/seiggy/apm/internal/template"
)

// Target selects which output format(s) to compile.
type Target string

const (
	TargetVSCode Target = "vscode"
	TargetAgents Target = "agents"
	TargetClaude Target = "claude"
	TargetAll    Target = "all"
)

// agentsGeneratedMarker is checked on an existing AGENTS.md's second
// line before clean_orphaned may delete it — never by extension alone
// (§9 Open Question: user-edited files named AGENTS.md must never be
// widened into deletion candidates).
const agentsGeneratedMarker = "<!-- Generated by APM CLI -->"

// DistributedCompiler renders and writes AGENTS.md placements, either
// spread across the project (the default) or folded into one
// monolithic file when single-file mode is forced.
type DistributedCompiler interface {
	CompileDistributed(base string, coll *primitive.Collection, scan *optimizer.ProjectScan, opts compiler.Options) (*compiler.Result, error)
	CompileSingleFile(base string, coll *primitive.Collection, opts compiler.Options) (*compiler.Result, error)
}

// ClaudeFormatter renders and writes CLAUDE.md placements.
type ClaudeFormatter interface {
	CompileClaudeMD(base string, coll *primitive.Collection, scan *optimizer.ProjectScan, depIDs []string, opts compiler.Options) (*compiler.Result, error)
}

// ConstitutionInjector injects the constitution block into one
// rendered file's content.
type ConstitutionInjector interface {
	Inject(compiledOutput, constitutionPath string, noConstitution bool) (constitution.Result, error)
}

type defaultDistributedCompiler struct{}

func (defaultDistributedCompiler) CompileDistributed(base string, coll *primitive.Collection, scan *optimizer.ProjectScan, opts compiler.Options) (*compiler.Result, error) {
	return compiler.CompileDistributed(base, coll, scan, opts)
}

func (defaultDistributedCompiler) CompileSingleFile(base string, coll *primitive.Collection, opts compiler.Options) (*compiler.Result, error) {
	return compiler.CompileSingleFile(base, coll, opts)
}

type defaultClaudeFormatter struct{}

func (defaultClaudeFormatter) CompileClaudeMD(base string, coll *primitive.Collection, scan *optimizer.ProjectScan, depIDs []string, opts compiler.Options) (*compiler.Result, error) {
	return compiler.CompileClaudeMD(base, coll, scan, depIDs, opts)
}

type defaultConstitutionInjector struct{}

func (defaultConstitutionInjector) Inject(compiledOutput, constitutionPath string, noConstitution bool) (constitution.Result, error) {
	return constitution.Inject(compiledOutput, constitutionPath, noConstitution)
}

// Facade holds the owned, swappable collaborator references (§9).
type Facade struct {
	Distributed  DistributedCompiler
	ClaudeFmt    ClaudeFormatter
	Constitution ConstitutionInjector
}

// New returns a Facade wired to the real production collaborators.
func New() *Facade {
	return &Facade{
		Distributed:  defaultDistributedCompiler{},
		ClaudeFmt:    defaultClaudeFormatter{},
		Constitution: defaultConstitutionInjector{},
	}
}

// Options configures one Compile call.
type Options struct {
	Base                   string
	Target                 Target
	DryRun                 bool
	SingleFile             bool
	CleanOrphaned          bool
	ConstitutionPath       string // defaults to constitution.DefaultPath when empty
	NoConstitution         bool
	APMVersion             string
	ChatmodeName           string
	MinInstructionsPerFile int
	SourceAttribution      bool
	DepIDs                 []string // declared dependency ids, for the CLAUDE.md "# Dependencies" section
}

// Result is the facade's aggregated output (§4.9: "results are merged
// by summing integer stats and concatenating warnings/errors").
type Result struct {
	BuildID            string
	Stats              compiler.Stats
	Warnings           []string
	Errors             []string
	ConstitutionStatus constitution.Status
	DryRunSummary      string
	WrittenFiles       []string
	OrphansRemoved     []string
}

// Compile dispatches on opts.Target (§4.9).
func (f *Facade) Compile(coll *primitive.Collection, scan *optimizer.ProjectScan, opts Options) (*Result, error) {
	buildID := uuid.New().String()
	constitutionPath := opts.ConstitutionPath
	if constitutionPath == "" {
		constitutionPath = filepath.Join(opts.Base, constitution.DefaultPath)
	}

	copts := compiler.Options{
		APMVersion:             opts.APMVersion,
		DryRun:                 opts.DryRun,
		SourceAttribution:      opts.SourceAttribution,
		MinInstructionsPerFile: opts.MinInstructionsPerFile,
		ChatmodeName:           opts.ChatmodeName,
		SkipWrite:              !opts.DryRun, // always render-then-inject-then-write ourselves, unless dry-run short-circuits first
	}

	result := &Result{BuildID: buildID}

	switch opts.Target {
	case TargetVSCode, TargetAgents:
		var r *compiler.Result
		var err error
		if opts.SingleFile {
			r, err = f.Distributed.CompileSingleFile(opts.Base, coll, copts)
		} else {
			r, err = f.Distributed.CompileDistributed(opts.Base, coll, scan, copts)
		}
		if err != nil {
			return nil, err
		}
		f.mergeAndFinalize(result, r, constitutionPath, buildID, opts)

	case TargetClaude:
		r, err := f.ClaudeFmt.CompileClaudeMD(opts.Base, coll, scan, opts.DepIDs, copts)
		if err != nil {
			return nil, err
		}
		f.mergeAndFinalize(result, r, constitutionPath, buildID, opts)

	case TargetAll:
		var ra *compiler.Result
		var err error
		if opts.SingleFile {
			ra, err = f.Distributed.CompileSingleFile(opts.Base, coll, copts)
		} else {
			ra, err = f.Distributed.CompileDistributed(opts.Base, coll, scan, copts)
		}
		if err != nil {
			return nil, err
		}
		f.mergeAndFinalize(result, ra, constitutionPath, buildID, opts)

		rc, err := f.ClaudeFmt.CompileClaudeMD(opts.Base, coll, scan, opts.DepIDs, copts)
		if err != nil {
			return nil, err
		}
		f.mergeAndFinalize(result, rc, constitutionPath, buildID, opts)

	default:
		return nil, fmt.Errorf("facade: unsupported target %q", opts.Target)
	}

	if opts.CleanOrphaned && !opts.DryRun {
		removed, err := cleanOrphaned(opts.Base, result.WrittenFiles)
		if err != nil {
			return nil, err
		}
		result.OrphansRemoved = removed
	}

	return result, nil
}

// mergeAndFinalize folds one compiler.Result into the aggregate,
// injecting the constitution block and the resolved build ID into each
// placement (unless this is a dry run, where nothing is written)
// before handing placements to compiler.WritePlacements.
func (f *Facade) mergeAndFinalize(into *Result, r *compiler.Result, constitutionPath, buildID string, opts Options) {
	into.Stats.FilesGenerated += r.Stats.FilesGenerated
	into.Stats.TotalInstructionsPlaced += r.Stats.TotalInstructionsPlaced
	into.Stats.PatternsCovered += r.Stats.PatternsCovered
	into.Warnings = append(into.Warnings, r.Warnings...)
	into.Errors = append(into.Errors, r.Errors...)

	if opts.DryRun {
		if r.DryRunSummary != "" {
			into.DryRunSummary = strings.TrimSpace(into.DryRunSummary + "\n" + r.DryRunSummary)
		}
		return
	}

	for i, p := range r.Placements {
		cr, err := f.Constitution.Inject(p.Content, constitutionPath, opts.NoConstitution)
		if err != nil {
			into.Errors = append(into.Errors, fmt.Sprintf("injecting constitution into %s: %v", p.OutputPath, err))
			continue
		}
		r.Placements[i].Content = strings.ReplaceAll(cr.Content, template.BuildIDPlaceholder, buildID)
		into.ConstitutionStatus = cr.Status
	}

	compiler.WritePlacements(r.Placements, r)
	into.Errors = append(into.Errors, r.Errors...)
	for _, p := range r.Placements {
		into.WrittenFiles = append(into.WrittenFiles, p.OutputPath)
	}
}

// cleanOrphaned deletes previously generated AGENTS.md/CLAUDE.md files
// whose path is no longer in the current placement set, identified
// only by the header marker on line 2 (never by extension alone, per
// the Open Question decision in §9).
func cleanOrphaned(base string, current []string) ([]string, error) {
	keep := make(map[string]bool, len(current))
	for _, p := range current {
		keep[p] = true
	}

	var removed []string
	err := filepath.Walk(base, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		name := filepath.Base(path)
		if name != "AGENTS.md" && name != "CLAUDE.md" {
			return nil
		}
		if keep[path] {
			return nil
		}
		if !hasGeneratedMarker(path) {
			return nil
		}
		if rmErr := os.Remove(path); rmErr == nil {
			removed = append(removed, path)
		}
		return nil
	})
	sort.Strings(removed)
	return removed, err
}

func hasGeneratedMarker(path string) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	lines := strings.SplitN(string(data), "\n", 3)
	return len(lines) >= 2 && strings.TrimSpace(lines[1]) == agentsGeneratedMarker
}
