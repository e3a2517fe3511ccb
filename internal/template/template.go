// Package template renders the conditional sections and the overall
// AGENTS.md body (C8).
package template

import (
	"fmt"
	"sort"
	"strings"

	"github.com/seiggy/apm/internal/primitive"
)

// Section is one rendered group of instructions sharing an exact
// applyTo pattern (or the global group).
type Section struct {
	Title   string
	Pattern string // "" for the global section
	Bodies  []string
}

// BuildConditionalSections partitions instructions by their exact
// ApplyTo string, sorts each group by name, and renders a titled
// section per group (§4.6). When attribute is true, each body is
// preceded by an attribution comment naming its source instruction.
func BuildConditionalSections(instructions []primitive.Instruction, attribute bool) []Section {
	groups := make(map[string][]primitive.Instruction)
	var patterns []string
	for _, instr := range instructions {
		if _, ok := groups[instr.ApplyTo]; !ok {
			patterns = append(patterns, instr.ApplyTo)
		}
		groups[instr.ApplyTo] = append(groups[instr.ApplyTo], instr)
	}
	sort.Strings(patterns)

	sections := make([]Section, 0, len(patterns))
	for _, pattern := range patterns {
		group := groups[pattern]
		sort.Slice(group, func(i, j int) bool { return group[i].Name < group[j].Name })

		title := "Global"
		if pattern != "" {
			title = fmt.Sprintf("Files matching `%s`", pattern)
		}

		bodies := make([]string, 0, len(group))
		for _, instr := range group {
			body := instr.Content
			if attribute {
				body = fmt.Sprintf("<!-- from %s -->\n%s", instr.Name, body)
			}
			bodies = append(bodies, body)
		}
		sections = append(sections, Section{Title: title, Pattern: pattern, Bodies: bodies})
	}
	return sections
}

// RenderSection joins a section's title and bodies (separated by a
// blank line) into markdown.
func RenderSection(s Section) string {
	var sb strings.Builder
	sb.WriteString("## " + s.Title + "\n\n")
	sb.WriteString(strings.Join(s.Bodies, "\n\n"))
	return sb.String()
}

// Data is everything generate_agents_md_template needs to render the
// full output body (§4.6).
type Data struct {
	APMVersion      string
	ChatmodeContent string // optional; empty when no chatmode is attached
	Sections        []Section
}

// BuildIDPlaceholder is filled in (or stripped) post-injection, never
// by the template builder itself — deterministic tests mask it (§9).
const BuildIDPlaceholder = "__BUILD_ID__"

// renderHeader emits the fixed header block every generated output
// file carries (§6.3): title, the `--clean` marker on line 2, the
// build-id placeholder, and the APM version, followed by a blank line.
func renderHeader(title, apmVersion string) string {
	var sb strings.Builder
	sb.WriteString("# " + title + "\n")
	sb.WriteString("<!-- Generated by APM CLI -->\n")
	sb.WriteString(fmt.Sprintf("<!-- Build ID: %s -->\n", BuildIDPlaceholder))
	sb.WriteString(fmt.Sprintf("<!-- APM Version: %s -->\n", apmVersion))
	sb.WriteString("\n")
	return sb.String()
}

// renderFooter emits the fixed footer every generated output file
// carries (§6.3).
func renderFooter() string {
	var sb strings.Builder
	sb.WriteString("\n\n---\n")
	sb.WriteString("*This file was generated by APM CLI. Do not edit manually.*\n")
	sb.WriteString("*To regenerate: `apm compile`*\n")
	return sb.String()
}

// WrapDocument wraps body with the header/footer shared by every
// generated output file (§6.3: "header block ... optional constitution
// block, generated sections, footer" applies to both AGENTS.md and
// CLAUDE.md). Callers that build their own body content — the
// CLAUDE.md formatter, for one — still get the required marker,
// build-id placeholder, and footer this way.
func WrapDocument(title, apmVersion, body string) string {
	var sb strings.Builder
	sb.WriteString(renderHeader(title, apmVersion))
	sb.WriteString(body)
	sb.WriteString(renderFooter())
	return sb.String()
}

// GenerateAgentsMDTemplate renders the full AGENTS.md body per the
// fixed layout in §4.6.
func GenerateAgentsMDTemplate(data Data) string {
	var body strings.Builder
	if data.ChatmodeContent != "" {
		body.WriteString(strings.TrimSpace(data.ChatmodeContent))
		body.WriteString("\n\n")
	}

	rendered := make([]string, 0, len(data.Sections))
	for _, s := range data.Sections {
		rendered = append(rendered, RenderSection(s))
	}
	body.WriteString(strings.Join(rendered, "\n\n"))

	return WrapDocument("AGENTS.md", data.APMVersion, body.String())
}
