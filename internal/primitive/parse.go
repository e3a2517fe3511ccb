package primitive

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ParseWarning is a non-fatal issue found while parsing a primitive file.
// The file that produced it is skipped, never aborting discovery (§4.3).
type ParseWarning struct {
	FilePath string
	Message  string
}

func (w ParseWarning) String() string {
	return fmt.Sprintf("%s: %s", w.FilePath, w.Message)
}

// frontmatter is the superset of fields recognized across primitive
// kinds. Unknown keys are ignored by yaml.Unmarshal's default behavior.
type frontmatter struct {
	ApplyTo      string   `yaml:"applyTo"`
	Description  string   `yaml:"description"`
	Author       string   `yaml:"author"`
	Version      string   `yaml:"version"`
	Name         string   `yaml:"name"`
	AllowedTools []string `yaml:"allowed-tools"`
	Arguments    []string `yaml:"arguments"`
}

// splitFrontmatter extracts a leading "---\n...\n---" YAML block and the
// body that follows. Mirrors the teacher's splitSkillFrontmatter /
// ParseRuleFrontmatter: content is returned whole as the body when no
// frontmatter delimiters are present.
func splitFrontmatter(data []byte) (yamlPart []byte, body string, hasFrontmatter bool) {
	content := string(data)
	if !strings.HasPrefix(content, "---") {
		return nil, content, false
	}

	rest := content[3:]
	rest = strings.TrimLeft(rest, " \t")
	if len(rest) > 0 && rest[0] == '\n' {
		rest = rest[1:]
	} else if len(rest) > 1 && rest[0] == '\r' && rest[1] == '\n' {
		rest = rest[2:]
	}

	if strings.HasPrefix(rest, "---") {
		// Empty frontmatter block.
		b := strings.TrimLeft(rest[3:], "\r\n")
		return []byte{}, b, true
	}

	endIdx := strings.Index(rest, "\n---")
	if endIdx < 0 {
		return nil, content, false
	}

	yamlContent := rest[:endIdx]
	remaining := rest[endIdx+4:]
	remaining = strings.TrimLeft(remaining, "\r\n")

	return []byte(yamlContent), remaining, true
}

// ParseFile reads a markdown primitive file from disk and dispatches on
// its filename suffix to produce a typed primitive.
func ParseFile(path string, source Source) (any, *ParseWarning, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("reading primitive file %s: %w", path, err)
	}
	return ParseContent(data, path, source)
}

// ParseContent parses a primitive from raw bytes with an associated
// file path (used to determine both the primitive kind and, for
// SKILL.md, the derived name).
//
// On success exactly one of (Instruction, Context, Chatmode, Skill) is
// returned via the any return value. On a recoverable validation
// problem, warning is non-nil and value is nil: the file must be
// skipped, never aborting discovery (§4.3).
func ParseContent(data []byte, path string, source Source) (value any, warning *ParseWarning, err error) {
	yamlPart, body, has := splitFrontmatter(data)

	var fm frontmatter
	var raw map[string]any
	if has && len(yamlPart) > 0 {
		if uerr := yaml.Unmarshal(yamlPart, &fm); uerr != nil {
			return nil, &ParseWarning{FilePath: path, Message: fmt.Sprintf("invalid frontmatter: %v", uerr)}, nil
		}
		// Unmarshal into a raw map too, so we can tell "applyTo: present
		// but empty" (valid, global) apart from "applyTo key absent"
		// (invalid) — yaml.Unmarshal into the typed struct above can't
		// distinguish the two, since both yield the zero value.
		_ = yaml.Unmarshal(yamlPart, &raw)
	}
	_, applyToPresent := raw["applyTo"]

	base := Base{
		Name:        fm.Name,
		FilePath:    path,
		Content:     strings.TrimSpace(body),
		Source:      source,
		Description: fm.Description,
		Author:      fm.Author,
		Version:     fm.Version,
	}

	name := filepath.Base(path)
	switch {
	case strings.HasSuffix(name, ".instructions.md"):
		if !has {
			return nil, &ParseWarning{FilePath: path, Message: "missing required field 'applyTo': no frontmatter found"}, nil
		}
		if !applyToPresent {
			return nil, &ParseWarning{FilePath: path, Message: "missing required field 'applyTo'"}, nil
		}
		if base.Name == "" {
			base.Name = strings.TrimSuffix(name, ".instructions.md")
		}
		return Instruction{Base: base, ApplyTo: fm.ApplyTo}, nil, nil

	case strings.HasSuffix(name, ".context.md"):
		base.Name = strings.TrimSuffix(name, ".context.md")
		return Context{Base: base}, nil, nil

	case strings.HasSuffix(name, ".memory.md"):
		base.Name = strings.TrimSuffix(name, ".memory.md")
		return Context{Base: base}, nil, nil

	case strings.HasSuffix(name, ".agent.md"):
		if base.Name == "" {
			base.Name = strings.TrimSuffix(name, ".agent.md")
		}
		return Chatmode{Base: base}, nil, nil

	case strings.HasSuffix(name, ".chatmode.md"):
		if base.Name == "" {
			base.Name = strings.TrimSuffix(name, ".chatmode.md")
		}
		return Chatmode{Base: base}, nil, nil

	case name == "SKILL.md":
		if base.Description == "" {
			return nil, &ParseWarning{FilePath: path, Message: "missing required field 'description'"}, nil
		}
		if base.Name == "" {
			base.Name = filepath.Base(filepath.Dir(path))
		}
		return Skill{
			Base:         base,
			Dir:          filepath.Dir(path),
			AllowedTools: fm.AllowedTools,
			Arguments:    fm.Arguments,
		}, nil, nil

	default:
		return nil, &ParseWarning{FilePath: path, Message: "unrecognized primitive filename"}, nil
	}
}
