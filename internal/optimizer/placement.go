package optimizer

import (
	"sort"
	"strings"

	"github.com/seiggy/apm/internal/primitive"
)

// PlacementMap maps a placement directory (relative to the project
// root, "" meaning the root itself) to the instructions placed there.
type PlacementMap map[string][]primitive.Instruction

// OptimizationDecision records the reasoning behind one instruction's
// placement, for verbose/trace output only (§4.5.6) — it never
// feeds back into placement itself.
type OptimizationDecision struct {
	Pattern           string
	MatchCount        int
	Score             float64
	Strategy          string
	ChosenDirectories []string
	Global            bool
}

const (
	scoreLowThreshold  = 0.3
	scoreHighThreshold = 0.7
	diversityWeight    = 0.5
)

// Options configures a placement run.
type Options struct {
	MinInstructionsPerFile int // supplemented post-pass threshold; 0 disables it
}

// Optimize computes a PlacementMap and a parallel OptimizationDecision
// list for instructions against scan (§4.5.2).
func Optimize(instructions []primitive.Instruction, scan *ProjectScan, opts Options) (PlacementMap, []OptimizationDecision) {
	placements := make(PlacementMap)
	var decisions []OptimizationDecision

	nonEmptyDirs := countNonEmptyDirs(scan)
	matchCache := make(map[string][]string) // pattern -> matching directories

	for _, instr := range instructions {
		if instr.IsGlobal() {
			placements[""] = append(placements[""], instr)
			decisions = append(decisions, OptimizationDecision{
				Pattern: "", Strategy: "global", Global: true, ChosenDirectories: []string{""},
			})
			continue
		}

		matches, ok := matchCache[instr.ApplyTo]
		if !ok {
			matches = matchingDirectories(instr.ApplyTo, scan)
			matchCache[instr.ApplyTo] = matches
		}

		if len(matches) == 0 {
			dir := intendedDirectory(instr.ApplyTo, scan)
			placements[dir] = append(placements[dir], instr)
			decisions = append(decisions, OptimizationDecision{
				Pattern: instr.ApplyTo, Strategy: "no_match_intended", ChosenDirectories: []string{dir},
			})
			continue
		}

		score := distributionScore(matches, nonEmptyDirs)
		strategy, dir := chooseStrategy(score, matches)
		placements[dir] = append(placements[dir], instr)
		decisions = append(decisions, OptimizationDecision{
			Pattern:           instr.ApplyTo,
			MatchCount:        len(matches),
			Score:             score,
			Strategy:          strategy,
			ChosenDirectories: []string{dir},
		})
	}

	if opts.MinInstructionsPerFile > 1 {
		placements = mergeSparsePlacements(placements, opts.MinInstructionsPerFile)
	}

	return placements, decisions
}

func countNonEmptyDirs(scan *ProjectScan) int {
	n := 0
	for _, d := range scan.Directories {
		if d.TotalFiles > 0 {
			n++
		}
	}
	if n == 0 {
		return 1 // avoid division by zero; no instruction can match anyway
	}
	return n
}

// matchingDirectories returns, in sorted order, every directory (by
// relative path) containing at least one file whose relative path
// matches pattern (§4.5.2).
func matchingDirectories(pattern string, scan *ProjectScan) []string {
	seen := make(map[string]bool)
	for _, f := range scan.Files {
		if MatchGlob(pattern, f, caseInsensitiveFS) {
			seen[dirOf(f)] = true
		}
	}
	dirs := make([]string, 0, len(seen))
	for d := range seen {
		dirs = append(dirs, d)
	}
	sort.Strings(dirs)
	return dirs
}

// intendedDirectory returns the first literal (non-glob) path segment
// of pattern if it names an existing directory in scan, else "" (root)
// (§4.5.2: "place at the intended directory... else at project root").
func intendedDirectory(pattern string, scan *ProjectScan) string {
	segs := splitSegments(pattern)
	if len(segs) == 0 {
		return ""
	}
	first := segs[0]
	if strings.ContainsAny(first, "*?") {
		return ""
	}
	if _, ok := scan.Directories[first]; ok {
		return first
	}
	return ""
}

// distributionScore implements §4.5.2's formula verbatim.
func distributionScore(matches []string, nonEmptyDirCount int) float64 {
	baseRatio := float64(len(matches)) / float64(nonEmptyDirCount)

	depths := make([]float64, len(matches))
	var sum float64
	for i, d := range matches {
		depth := float64(strings.Count(d, "/"))
		if d != "" {
			depth++ // depth counts path components, not separators
		}
		depths[i] = depth
		sum += depth
	}
	mean := sum / float64(len(depths))
	var variance float64
	for _, d := range depths {
		diff := d - mean
		variance += diff * diff
	}
	variance /= float64(len(depths))

	diversityFactor := 1 + variance*diversityWeight
	return baseRatio * diversityFactor
}

func chooseStrategy(score float64, matches []string) (strategy string, dir string) {
	switch {
	case score < scoreLowThreshold:
		return "single_point", commonAncestor(matches)
	case score <= scoreHighThreshold:
		return "selective_multi", commonAncestor(matches)
	default:
		return "distributed", ""
	}
}

// commonAncestor returns the deepest directory that is an ancestor of
// (or equal to) every directory in dirs (§4.5.2, I9).
func commonAncestor(dirs []string) string {
	if len(dirs) == 0 {
		return ""
	}
	common := splitSegments(dirs[0])
	for _, d := range dirs[1:] {
		segs := splitSegments(d)
		common = commonPrefix(common, segs)
		if len(common) == 0 {
			return ""
		}
	}
	return strings.Join(common, "/")
}

func commonPrefix(a, b []string) []string {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	i := 0
	for i < n && a[i] == b[i] {
		i++
	}
	return a[:i]
}

// mergeSparsePlacements implements the min_instructions_per_file
// post-pass: any placement directory carrying fewer instructions than
// the threshold is merged upward into the nearest ancestor directory
// already present in the map (root if none), so coverage (I9) is
// preserved — merging only ever moves an instruction toward the root,
// never away from the files it applies to.
func mergeSparsePlacements(placements PlacementMap, threshold int) PlacementMap {
	dirs := make([]string, 0, len(placements))
	for d := range placements {
		dirs = append(dirs, d)
	}
	sort.Slice(dirs, func(i, j int) bool { return len(dirs[i]) > len(dirs[j]) }) // deepest first

	merged := make(PlacementMap, len(placements))
	for d, instrs := range placements {
		merged[d] = append([]primitive.Instruction(nil), instrs...)
	}

	for _, d := range dirs {
		if d == "" {
			continue // root has nowhere upward to go
		}
		if len(merged[d]) >= threshold {
			continue
		}
		target := nearestAncestorInMap(d, merged)
		merged[target] = append(merged[target], merged[d]...)
		delete(merged, d)
	}

	return merged
}

func nearestAncestorInMap(dir string, placements PlacementMap) string {
	segs := splitSegments(dir)
	for i := len(segs) - 1; i > 0; i-- {
		candidate := strings.Join(segs[:i], "/")
		if _, ok := placements[candidate]; ok {
			return candidate
		}
	}
	return ""
}
