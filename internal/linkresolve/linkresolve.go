// Package linkresolve classifies and rewrites markdown links of the
// shape [text](path) across compilation, installation, single-file
// inlining, and validation (C6).
package linkresolve

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// linkPattern matches a markdown link: [text](path). The text group
// excludes "]" and the path group excludes ")" and whitespace-wrapped
// forms are handled after the match via TrimSpace.
var linkPattern = regexp.MustCompile(`\[([^\]]*)\]\(([^)]*)\)`)

// Warning is one unresolved-target finding from ValidateLinkTargets.
type Warning struct {
	Link    string // the raw path as written in the link
	Message string
}

// classify describes what kind of target a link path names.
type classify int

const (
	classifyExternal classify = iota
	classifyAnchor
	classifyContext
	classifyScheme // non-external scheme (mailto:, data:, ...): never resolved, never validated
	classifyOther
)

var externalSchemes = []string{"http://", "https://"}
var nonExternalSchemes = []string{"javascript:", "data:", "file:", "ftp:", "mailto:"}

func classifyLink(path string) classify {
	p := strings.TrimSpace(path)
	if strings.HasPrefix(p, "#") {
		return classifyAnchor
	}
	for _, scheme := range externalSchemes {
		if strings.HasPrefix(p, scheme) {
			rest := p[len(scheme):]
			if rest != "" && !strings.HasPrefix(rest, "/") {
				return classifyExternal // has a non-empty host
			}
		}
	}
	for _, scheme := range nonExternalSchemes {
		if strings.HasPrefix(p, scheme) {
			return classifyScheme
		}
	}
	if strings.HasSuffix(p, ".context.md") || strings.HasSuffix(p, ".memory.md") {
		return classifyContext
	}
	return classifyOther
}

// FilenameRegistry maps a bare filename to its actual path on disk, used
// as the first lookup tier in resolve_for_compilation/_installation.
type FilenameRegistry map[string]string

// findCodeBlockRanges locates fenced code block byte ranges so links
// inside them are never touched — the same code-fence-awareness the
// import resolver uses.
type codeRange struct{ start, end int }

func findCodeBlockRanges(content string) []codeRange {
	var ranges []codeRange
	fence := "```"
	pos := 0
	for {
		start := strings.Index(content[pos:], fence)
		if start < 0 {
			break
		}
		start += pos
		searchFrom := start + len(fence)
		if nl := strings.Index(content[searchFrom:], "\n"); nl >= 0 {
			searchFrom += nl + 1
		}
		end := strings.Index(content[searchFrom:], fence)
		if end < 0 {
			ranges = append(ranges, codeRange{start, len(content)})
			break
		}
		end += searchFrom + len(fence)
		ranges = append(ranges, codeRange{start, end})
		pos = end
	}
	return ranges
}

func isInCodeRange(pos int, ranges []codeRange) bool {
	for _, r := range ranges {
		if pos >= r.start && pos < r.end {
			return true
		}
	}
	return false
}

func isInInlineCode(content string, pos int) bool {
	lineStart := strings.LastIndex(content[:pos], "\n")
	if lineStart < 0 {
		lineStart = 0
	} else {
		lineStart++
	}
	line := content[lineStart:]
	relPos := pos - lineStart
	inCode := false
	for i := 0; i < len(line) && i < relPos; i++ {
		if line[i] == '`' {
			inCode = !inCode
		}
	}
	return inCode
}

// locateTarget finds a context link's real path via the three-tier
// lookup in §4.4: filename registry, relative to the source file's
// directory, relative to the project root.
func locateTarget(registry FilenameRegistry, path, sourceDir, projectRoot string) (string, bool) {
	base := filepath.Base(path)
	if registry != nil {
		if resolved, ok := registry[base]; ok {
			if _, err := os.Stat(resolved); err == nil {
				return resolved, true
			}
		}
	}
	candidate := filepath.Join(sourceDir, path)
	if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
		return candidate, true
	}
	candidate = filepath.Join(projectRoot, path)
	if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
		return candidate, true
	}
	return "", false
}

// rewriteLinks walks content's links in reverse byte-position order
// (so earlier replacements don't shift later offsets) and replaces each
// context link whose target resolves, leaving everything else as-is.
func rewriteLinks(content, sourceFile, projectRoot, outputDir string, registry FilenameRegistry) string {
	sourceDir := filepath.Dir(sourceFile)
	ranges := findCodeBlockRanges(content)
	matches := linkPattern.FindAllStringSubmatchIndex(content, -1)
	result := content
	for i := len(matches) - 1; i >= 0; i-- {
		m := matches[i]
		full0, full1 := m[0], m[1]
		pathStart, pathEnd := m[4], m[5]
		if isInCodeRange(full0, ranges) || isInInlineCode(content, full0) {
			continue
		}
		path := content[pathStart:pathEnd]
		if classifyLink(path) != classifyContext {
			continue
		}
		target, ok := locateTarget(registry, strings.TrimSpace(path), sourceDir, projectRoot)
		if !ok {
			continue // I8: unresolvable link preserved untouched
		}
		rel, err := filepath.Rel(outputDir, target)
		if err != nil {
			continue
		}
		rel = filepath.ToSlash(rel)
		text := content[m[2]:m[3]]
		replacement := "[" + text + "](" + rel + ")"
		result = result[:full0] + replacement + result[full1:]
	}
	return result
}

// ResolveForCompilation rewrites every context link in content to be
// relative to compiledOutput's directory (§4.4 op 1).
func ResolveForCompilation(content, sourceFile, compiledOutput, projectRoot string, registry FilenameRegistry) string {
	return rewriteLinks(content, sourceFile, projectRoot, filepath.Dir(compiledOutput), registry)
}

// ResolveForInstallation rewrites every context link in content to be
// relative to targetFile's directory (§4.4 op 2).
func ResolveForInstallation(content, sourceFile, targetFile, projectRoot string, registry FilenameRegistry) string {
	return rewriteLinks(content, sourceFile, projectRoot, filepath.Dir(targetFile), registry)
}

// ResolveMarkdownLinks inlines the content of every .md/.txt link whose
// target exists, prefixed by "**text**:\n\n", with the target's own
// frontmatter stripped first. Used only in single-file output mode
// (§4.4 op 3).
func ResolveMarkdownLinks(content, baseDir string) string {
	ranges := findCodeBlockRanges(content)
	matches := linkPattern.FindAllStringSubmatchIndex(content, -1)
	result := content
	for i := len(matches) - 1; i >= 0; i-- {
		m := matches[i]
		full0, full1 := m[0], m[1]
		if isInCodeRange(full0, ranges) || isInInlineCode(content, full0) {
			continue
		}
		path := strings.TrimSpace(content[m[4]:m[5]])
		switch classifyLink(path) {
		case classifyExternal, classifyAnchor, classifyScheme:
			continue
		}
		if !strings.HasSuffix(path, ".md") && !strings.HasSuffix(path, ".txt") {
			continue
		}

		target := filepath.Join(baseDir, path)
		data, err := os.ReadFile(target)
		if err != nil {
			continue // I8-style: missing target preserved verbatim
		}

		text := content[m[2]:m[3]]
		_, body, _ := stripFrontmatter(data)
		replacement := "**" + text + "**:\n\n" + strings.TrimSpace(body)
		result = result[:full0] + replacement + result[full1:]
	}
	return result
}

// stripFrontmatter removes a leading "---\n...\n---" YAML block, if
// present, returning the raw yaml bytes (unused here) and the body.
func stripFrontmatter(data []byte) (yamlPart []byte, body string, has bool) {
	content := string(data)
	if !strings.HasPrefix(content, "---") {
		return nil, content, false
	}
	rest := content[3:]
	rest = strings.TrimLeft(rest, " \t")
	if len(rest) > 0 && rest[0] == '\n' {
		rest = rest[1:]
	}
	if strings.HasPrefix(rest, "---") {
		return []byte{}, strings.TrimLeft(rest[3:], "\r\n"), true
	}
	endIdx := strings.Index(rest, "\n---")
	if endIdx < 0 {
		return nil, content, false
	}
	remaining := rest[endIdx+4:]
	return []byte(rest[:endIdx]), strings.TrimLeft(remaining, "\r\n"), true
}

// ValidateLinkTargets returns one Warning per link whose target does
// not exist, skipping external links and anchors (§4.4 op 4).
func ValidateLinkTargets(content, baseDir string) []Warning {
	ranges := findCodeBlockRanges(content)
	matches := linkPattern.FindAllStringSubmatchIndex(content, -1)
	var warnings []Warning
	for _, m := range matches {
		full0 := m[0]
		if isInCodeRange(full0, ranges) || isInInlineCode(content, full0) {
			continue
		}
		path := strings.TrimSpace(content[m[4]:m[5]])
		switch classifyLink(path) {
		case classifyExternal, classifyAnchor, classifyScheme:
			continue
		}
		target := filepath.Join(baseDir, path)
		if _, err := os.Stat(target); err != nil {
			warnings = append(warnings, Warning{Link: path, Message: "link target not found: " + path})
		}
	}
	return warnings
}
