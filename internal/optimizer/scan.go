// Package optimizer computes AGENTS.md/CLAUDE.md placement directories
// for a set of instructions, minimizing context pollution while
// guaranteeing every matching file has a placement in its ancestry
// (C7, §4.5 — the hardest algorithm in the system).
package optimizer

import (
	"os"
	"path/filepath"
	"strings"
)

// skipDirNames are always excluded from the scan regardless of
// operator-supplied exclude patterns.
var skipDirNames = map[string]bool{
	".git":         true,
	"node_modules": true,
	"__pycache__":  true,
	"dist":         true,
	"build":        true,
}

// DirectoryAnalysis is the per-directory scan cache (§4.5.1, §3's
// DirectoryAnalysis).
type DirectoryAnalysis struct {
	Path           string // relative to the project base, "" for root
	Depth          int
	TotalFiles     int
	FileTypes      map[string]int // extension (with leading dot) -> count
	PatternMatches map[string]int
}

// ProjectScan is the full walk result: every visited directory plus the
// relative path of every visited file.
type ProjectScan struct {
	BaseDir     string
	Directories map[string]*DirectoryAnalysis // keyed by relative path, "" = root
	Files       []string                      // relative paths, slash-separated
}

// Scan walks baseDir, recording a DirectoryAnalysis per directory and
// skipping names in skipDirNames, dot-prefixed segments, and any
// directory matched by an exclude pattern (§4.5.1).
func Scan(baseDir string, excludePatterns []string) (*ProjectScan, error) {
	scan := &ProjectScan{
		BaseDir:     baseDir,
		Directories: make(map[string]*DirectoryAnalysis),
	}

	var walk func(relDir string, depth int) error
	walk = func(relDir string, depth int) error {
		abs := filepath.Join(baseDir, relDir)
		entries, err := os.ReadDir(abs)
		if err != nil {
			return err
		}

		analysis := &DirectoryAnalysis{
			Path:           toSlash(relDir),
			Depth:          depth,
			FileTypes:      make(map[string]int),
			PatternMatches: make(map[string]int),
		}
		scan.Directories[toSlash(relDir)] = analysis

		for _, entry := range entries {
			name := entry.Name()
			if entry.IsDir() {
				if skipDirNames[name] || strings.HasPrefix(name, ".") {
					continue
				}
				childRel := joinRel(relDir, name)
				if matchesExcludeDir(childRel, name, excludePatterns) {
					continue
				}
				if err := walk(childRel, depth+1); err != nil {
					return err
				}
				continue
			}
			if strings.HasPrefix(name, ".") {
				continue
			}
			analysis.TotalFiles++
			ext := filepath.Ext(name)
			analysis.FileTypes[ext]++
			scan.Files = append(scan.Files, toSlash(joinRel(relDir, name)))
		}
		return nil
	}

	if err := walk("", 0); err != nil {
		return nil, err
	}
	return scan, nil
}

func joinRel(dir, name string) string {
	if dir == "" {
		return name
	}
	return dir + string(filepath.Separator) + name
}

func toSlash(p string) string {
	return filepath.ToSlash(p)
}

// matchesExcludeDir checks a directory (by its relative path and bare
// name) against operator exclude patterns. A trailing "/" in a pattern
// means "directory only" and is stripped before matching.
func matchesExcludeDir(relPath, name string, patterns []string) bool {
	rel := toSlash(relPath)
	for _, pat := range patterns {
		p := strings.TrimSuffix(pat, "/")
		if MatchGlob(p, rel, caseInsensitiveFS) || MatchGlob(p, name, caseInsensitiveFS) {
			return true
		}
	}
	return false
}

// dirOf returns the directory that directly contains file (no
// trailing filename), using "/" relative paths throughout.
func dirOf(file string) string {
	d := filepath.ToSlash(filepath.Dir(file))
	if d == "." {
		return ""
	}
	return d
}
