// Package discovery walks the local project tree and installed
// dependency packages to build a primitive.Collection (C5), honoring
// "local wins, first-declared wins" priority (§4.3, invariant I6).
package discovery

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/seiggy/apm/internal/primitive"
)

// conventionDirs are the directories discovery walks for primitive
// files, relative to a package (or project) root. ".apm/" is the
// primary convention; ".github/" is supported for legacy projects that
// keep Copilot-style instructions there.
var conventionDirs = []string{".apm", ".github"}

// Result is the outcome of a discovery walk: the built collection plus
// any non-fatal parse warnings collected along the way (§4.3: invalid
// files produce a warning and are skipped, never aborting discovery).
type Result struct {
	Collection *primitive.Collection
	Warnings   []primitive.ParseWarning
}

// DiscoverLocal walks only the project's own conventions, tagging every
// primitive source = "local".
func DiscoverLocal(base string) Result {
	coll := primitive.NewCollection()
	var warnings []primitive.ParseWarning
	for _, conv := range conventionDirs {
		walkConvention(filepath.Join(base, conv), primitive.LocalSource(), coll, &warnings)
	}
	return Result{Collection: coll, Warnings: warnings}
}

// DependencyDir names a dependency's id and its installed directory, in
// the declaration order discovery must respect (§4.3 step 2).
type DependencyDir struct {
	ID  string
	Dir string
}

// DiscoverWithDependencies walks local conventions first, then each
// dependency's install directory in the order given, recording a
// Conflict on the collection whenever a primitive of the same type and
// name already exists (§4.3 step 3, invariant I6: local beats
// dependency:*, and among dependencies earlier-declared beats later).
func DiscoverWithDependencies(base string, deps []DependencyDir) Result {
	coll := primitive.NewCollection()
	var warnings []primitive.ParseWarning

	for _, conv := range conventionDirs {
		walkConvention(filepath.Join(base, conv), primitive.LocalSource(), coll, &warnings)
	}

	for _, dep := range deps {
		source := primitive.DependencySource(dep.ID)
		for _, conv := range conventionDirs {
			walkConvention(filepath.Join(dep.Dir, conv), source, coll, &warnings)
		}
	}

	return Result{Collection: coll, Warnings: warnings}
}

// recognizedSuffixes lists the filename suffixes of primitive files
// discovery attempts to parse (SKILL.md is handled separately since its
// identity comes from its parent directory).
var recognizedSuffixes = []string{
	".instructions.md",
	".context.md",
	".memory.md",
	".agent.md",
	".chatmode.md",
}

// walkConvention recursively scans dir for primitive files, adding each
// parsed primitive to coll under source. A missing directory is
// silently skipped — it is normal for a package not to use every
// convention.
func walkConvention(dir string, source primitive.Source, coll *primitive.Collection, warnings *[]primitive.ParseWarning) {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return
	}

	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // unreadable entry: skip, never abort the walk
		}
		if d.IsDir() {
			return nil
		}

		name := d.Name()
		if name == "SKILL.md" {
			addParsed(path, source, coll, warnings)
			return nil
		}
		for _, suffix := range recognizedSuffixes {
			if strings.HasSuffix(name, suffix) {
				addParsed(path, source, coll, warnings)
				return nil
			}
		}
		return nil
	})
}

func addParsed(path string, source primitive.Source, coll *primitive.Collection, warnings *[]primitive.ParseWarning) {
	value, warn, err := primitive.ParseFile(path, source)
	if err != nil {
		*warnings = append(*warnings, primitive.ParseWarning{FilePath: path, Message: err.Error()})
		return
	}
	if warn != nil {
		*warnings = append(*warnings, *warn)
		return
	}
	switch v := value.(type) {
	case primitive.Instruction:
		coll.AddInstruction(v)
	case primitive.Context:
		coll.AddContext(v)
	case primitive.Chatmode:
		coll.AddChatmode(v)
	case primitive.Skill:
		coll.AddSkill(v)
	}
}
