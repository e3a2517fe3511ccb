package optimizer

import (
	"runtime"
	"strings"
)

// caseInsensitiveFS mirrors the host's case-sensitivity convention
// (§4.5.3: "case-insensitively on case-insensitive filesystems"). macOS
// and Windows default to case-insensitive filesystems; Linux does not.
var caseInsensitiveFS = runtime.GOOS == "windows" || runtime.GOOS == "darwin"

// MatchGlob reports whether relPath (slash-separated, relative to the
// project root) matches pattern. This is a hand-rolled recursive
// matcher — not the host filesystem glob or a third-party globbing
// library — since `**` handling and case sensitivity here must follow
// §4.5.3 exactly rather than whatever the host or a library happens to
// do.
//
// A filename-only pattern (no "/") matches on the base name alone;
// anything else matches against the full relative path.
func MatchGlob(pattern, relPath string, foldCase bool) bool {
	if !strings.Contains(pattern, "/") {
		relPath = baseName(relPath)
	}
	patSegs := splitSegments(pattern)
	pathSegs := splitSegments(relPath)
	return matchSegments(patSegs, pathSegs, foldCase)
}

func baseName(p string) string {
	if i := strings.LastIndexByte(p, '/'); i >= 0 {
		return p[i+1:]
	}
	return p
}

func splitSegments(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

// matchSegments recursively matches pattern segments against path
// segments, handling "**" (zero or more segments) explicitly.
func matchSegments(pat, path []string, foldCase bool) bool {
	if len(pat) == 0 {
		return len(path) == 0
	}

	if pat[0] == "**" {
		if matchSegments(pat[1:], path, foldCase) {
			return true
		}
		if len(path) == 0 {
			return false
		}
		return matchSegments(pat, path[1:], foldCase)
	}

	if len(path) == 0 {
		return false
	}
	if !matchSegment(pat[0], path[0], foldCase) {
		return false
	}
	return matchSegments(pat[1:], path[1:], foldCase)
}

// matchSegment matches a single path segment against a single pattern
// segment containing zero or more "*" tokens (each matching any run of
// non-separator characters, including the empty run).
func matchSegment(pat, seg string, foldCase bool) bool {
	if foldCase {
		pat = strings.ToLower(pat)
		seg = strings.ToLower(seg)
	}
	return matchStar(pat, seg)
}

func matchStar(pat, s string) bool {
	if pat == "" {
		return s == ""
	}
	if pat[0] == '*' {
		if matchStar(pat[1:], s) {
			return true
		}
		if s == "" {
			return false
		}
		return matchStar(pat, s[1:])
	}
	if s == "" {
		return false
	}
	if pat[0] != s[0] {
		return false
	}
	return matchStar(pat[1:], s[1:])
}
