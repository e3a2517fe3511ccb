// Package compiler assembles per-directory AGENTS.md/CLAUDE.md output
// files from a PlacementMap, writes them under a cross-process file
// lock, and formats the sibling CLAUDE.md variant (C9).
package compiler

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gofrs/flock"

	"github.com/seiggy/apm/internal/linkresolve"
	"github.com/seiggy/apm/internal/optimizer"
	"github.com/seiggy/apm/internal/primitive"
	"github.com/seiggy/apm/internal/template"
)

// ErrLockTimeout is returned when a per-file write lock could not be
// acquired in time (§5's scoped write-lock discipline).
var ErrLockTimeout = errors.New("compiler: timed out acquiring write lock")

const lockWait = 50 * time.Millisecond
const lockTimeout = 2 * time.Second

// PlacementResult is one generated (or would-be-generated, on dry run)
// output file.
type PlacementResult struct {
	Directory        string
	OutputPath       string
	Content          string
	InstructionCount int
}

// Stats aggregates counts across a compilation run (§4.7 step 3).
type Stats struct {
	FilesGenerated          int
	TotalInstructionsPlaced int
	PatternsCovered         int
}

// Result is the output of CompileDistributed or CompileClaudeMD.
type Result struct {
	Placements     []PlacementResult
	Stats          Stats
	Warnings       []string
	Errors         []string
	DryRunSummary  string
	OptimizerNotes []optimizer.OptimizationDecision
}

// Options configures a compilation run.
type Options struct {
	APMVersion             string
	DryRun                 bool
	SourceAttribution      bool
	MinInstructionsPerFile int
	Registry               linkresolve.FilenameRegistry
	ChatmodeName           string // name of a chatmode to attach to every placement, "" for none

	// SkipWrite renders placements without writing them to disk and
	// without producing a dry-run summary. Used by the facade when a
	// collaborator (e.g. the constitution injector) must transform
	// content before it is persisted.
	SkipWrite bool
}

// CompileDistributed builds one AGENTS.md per placement directory
// (§4.7).
func CompileDistributed(base string, coll *primitive.Collection, scan *optimizer.ProjectScan, opts Options) (*Result, error) {
	placements, decisions := optimizer.Optimize(coll.Instructions(), scan, optimizer.Options{MinInstructionsPerFile: opts.MinInstructionsPerFile})

	chatmodeContent := ""
	if opts.ChatmodeName != "" {
		for _, cm := range coll.Chatmodes() {
			if cm.Name == opts.ChatmodeName {
				chatmodeContent = cm.Content
				break
			}
		}
	}

	result := &Result{OptimizerNotes: decisions}
	patterns := make(map[string]bool)

	dirs := sortedKeys(placements)
	for _, dir := range dirs {
		instrs := placements[dir]
		sections := template.BuildConditionalSections(instrs, opts.SourceAttribution)
		content := template.GenerateAgentsMDTemplate(template.Data{
			APMVersion:      opts.APMVersion,
			ChatmodeContent: chatmodeContent,
			Sections:        sections,
		})

		outputPath := filepath.Join(base, dir, "AGENTS.md")
		sourceFile := filepath.Join(base, dir, "AGENTS.md")
		content = linkresolve.ResolveForCompilation(content, sourceFile, outputPath, base, opts.Registry)

		result.Placements = append(result.Placements, PlacementResult{
			Directory:        dir,
			OutputPath:       outputPath,
			Content:          content,
			InstructionCount: len(instrs),
		})

		result.Stats.FilesGenerated++
		result.Stats.TotalInstructionsPlaced += len(instrs)
		for _, instr := range instrs {
			patterns[instr.ApplyTo] = true
		}
	}
	result.Stats.PatternsCovered = len(patterns)

	if opts.DryRun {
		result.DryRunSummary = renderDryRunSummary(result.Placements)
		return result, nil
	}
	if opts.SkipWrite {
		return result, nil
	}

	WritePlacements(result.Placements, result)
	return result, nil
}

// CompileClaudeMD is the sibling CLAUDE.md formatter: groups by
// apply_to under "# Project Standards", never includes chatmode
// bodies, and appends a sorted "# Dependencies" import section for
// installed apm_modules packages, wrapped in the same header/footer
// every generated file carries (§4.7's CLAUDE.md formatter; §6.3).
func CompileClaudeMD(base string, coll *primitive.Collection, scan *optimizer.ProjectScan, depIDs []string, opts Options) (*Result, error) {
	placements, decisions := optimizer.Optimize(coll.Instructions(), scan, optimizer.Options{MinInstructionsPerFile: opts.MinInstructionsPerFile})

	result := &Result{OptimizerNotes: decisions}
	patterns := make(map[string]bool)

	deps := existingDependencyDirs(base, depIDs)

	dirs := sortedKeys(placements)
	for _, dir := range dirs {
		instrs := placements[dir]
		sections := template.BuildConditionalSections(instrs, opts.SourceAttribution)

		var sb strings.Builder
		sb.WriteString("# Project Standards\n\n")
		rendered := make([]string, 0, len(sections))
		for _, s := range sections {
			rendered = append(rendered, template.RenderSection(s))
		}
		sb.WriteString(strings.Join(rendered, "\n\n"))

		if len(deps) > 0 {
			sb.WriteString("\n\n# Dependencies\n\n")
			for _, id := range deps {
				sb.WriteString(fmt.Sprintf("@apm_modules/%s/CLAUDE.md\n", id))
			}
		}

		outputPath := filepath.Join(base, dir, "CLAUDE.md")
		body := template.WrapDocument("CLAUDE.md", opts.APMVersion, sb.String())
		content := linkresolve.ResolveForCompilation(body, outputPath, outputPath, base, opts.Registry)

		result.Placements = append(result.Placements, PlacementResult{
			Directory:        dir,
			OutputPath:       outputPath,
			Content:          content,
			InstructionCount: len(instrs),
		})
		result.Stats.FilesGenerated++
		result.Stats.TotalInstructionsPlaced += len(instrs)
		for _, instr := range instrs {
			patterns[instr.ApplyTo] = true
		}
	}
	result.Stats.PatternsCovered = len(patterns)

	if opts.DryRun {
		result.DryRunSummary = renderDryRunSummary(result.Placements)
		return result, nil
	}
	if opts.SkipWrite {
		return result, nil
	}

	WritePlacements(result.Placements, result)
	return result, nil
}

// CompileSingleFile builds one monolithic AGENTS.md at base, folding
// every instruction into a single body (ignoring the optimizer's
// placement map entirely) and inlining local markdown links instead of
// rewriting them (§4.9: "invoke distributed (or single-file if
// forced)"; §4.4 op 3).
func CompileSingleFile(base string, coll *primitive.Collection, opts Options) (*Result, error) {
	instrs := coll.Instructions()
	sections := template.BuildConditionalSections(instrs, opts.SourceAttribution)

	chatmodeContent := ""
	if opts.ChatmodeName != "" {
		for _, cm := range coll.Chatmodes() {
			if cm.Name == opts.ChatmodeName {
				chatmodeContent = cm.Content
				break
			}
		}
	}

	content := template.GenerateAgentsMDTemplate(template.Data{
		APMVersion:      opts.APMVersion,
		ChatmodeContent: chatmodeContent,
		Sections:        sections,
	})

	outputPath := filepath.Join(base, "AGENTS.md")
	content = linkresolve.ResolveMarkdownLinks(content, base)

	patterns := make(map[string]bool)
	for _, instr := range instrs {
		patterns[instr.ApplyTo] = true
	}

	result := &Result{
		Placements: []PlacementResult{{
			Directory:        ".",
			OutputPath:       outputPath,
			Content:          content,
			InstructionCount: len(instrs),
		}},
		Stats: Stats{
			FilesGenerated:          1,
			TotalInstructionsPlaced: len(instrs),
			PatternsCovered:         len(patterns),
		},
	}

	if opts.DryRun {
		result.DryRunSummary = renderDryRunSummary(result.Placements)
		return result, nil
	}
	if opts.SkipWrite {
		return result, nil
	}

	WritePlacements(result.Placements, result)
	return result, nil
}

// existingDependencyDirs filters depIDs ("owner/repo") to those whose
// apm_modules install directory actually exists, sorted for
// deterministic output.
func existingDependencyDirs(base string, depIDs []string) []string {
	var out []string
	for _, id := range depIDs {
		parts := strings.SplitN(id, "/", 2)
		if len(parts) != 2 {
			continue
		}
		dir := filepath.Join(base, "apm_modules", parts[0], parts[1])
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

func sortedKeys(m optimizer.PlacementMap) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// WritePlacements writes each placement's current Content to its
// OutputPath under a per-file lock, appending any failure to into's
// Errors. Exposed so the facade can inject the constitution block
// between rendering and writing (§4.9).
func WritePlacements(placements []PlacementResult, into *Result) {
	for _, p := range placements {
		if err := writeWithLock(p.OutputPath, []byte(p.Content)); err != nil {
			into.Errors = append(into.Errors, fmt.Sprintf("writing %s: %v", p.OutputPath, err))
		}
	}
}

// writeWithLock writes data to path, guarded by a sibling ".lock" file
// so concurrent compiler invocations never interleave writes to the
// same output file.
func writeWithLock(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	fl := flock.New(path + ".lock")
	ctx, cancel := context.WithTimeout(context.Background(), lockTimeout)
	defer cancel()

	locked, err := fl.TryLockContext(ctx, lockWait)
	if err != nil || !locked {
		return ErrLockTimeout
	}
	defer fl.Unlock()

	return os.WriteFile(path, data, 0o644)
}

// renderDryRunSummary produces the human-readable placement summary
// emitted instead of writing files (§4.7 step 4).
func renderDryRunSummary(placements []PlacementResult) string {
	var sb strings.Builder
	sb.WriteString("Dry run: the following files would be generated:\n")
	for _, p := range placements {
		sb.WriteString(fmt.Sprintf("  %s (%d instructions)\n", p.OutputPath, p.InstructionCount))
	}
	return sb.String()
}
