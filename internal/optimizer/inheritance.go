package optimizer

import "strings"

// InheritanceChain returns the sequence of ancestor directories of w,
// from w itself up to and including the project root (""), deepest
// first (§4.5.5).
func InheritanceChain(w string) []string {
	segs := splitSegments(w)
	chain := make([]string, 0, len(segs)+1)
	for i := len(segs); i >= 0; i-- {
		chain = append(chain, strings.Join(segs[:i], "/"))
	}
	return chain
}

// ContextLoad is the inheritance-chain diagnostic for one working
// directory: how many placed instructions are visible from it, and how
// many of those are actually relevant to files living directly in it.
// Used only for diagnostics, never for placement decisions (§4.5.5).
type ContextLoad struct {
	Directory       string
	TotalLoad       int
	RelevantLoad    int
	EfficiencyRatio float64
}

// AnalyzeInheritance computes the ContextLoad for w given the resolved
// placements and the project scan (to know which files live directly
// in w).
func AnalyzeInheritance(w string, placements PlacementMap, scan *ProjectScan) ContextLoad {
	chain := make(map[string]bool)
	for _, d := range InheritanceChain(w) {
		chain[d] = true
	}

	var total, relevant int
	for dir, instrs := range placements {
		if !chain[dir] {
			continue
		}
		for _, instr := range instrs {
			total++
			if instr.IsGlobal() {
				relevant++
				continue
			}
			if matchesAnyFileDirectlyIn(instr.ApplyTo, w, scan) {
				relevant++
			}
		}
	}

	ratio := 1.0
	if total > 0 {
		ratio = float64(relevant) / float64(total)
	}
	return ContextLoad{Directory: w, TotalLoad: total, RelevantLoad: relevant, EfficiencyRatio: ratio}
}

func matchesAnyFileDirectlyIn(pattern, dir string, scan *ProjectScan) bool {
	for _, f := range scan.Files {
		if dirOf(f) != dir {
			continue
		}
		if MatchGlob(pattern, f, caseInsensitiveFS) {
			return true
		}
	}
	return false
}
