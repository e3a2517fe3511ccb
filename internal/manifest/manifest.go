// Package manifest parses and serializes apm.yml (§6.1) and apm.lock
// (§6.2).
package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Placement configures the optimizer's minimum-instructions-per-file hint.
type Placement struct {
	MinInstructionsPerFile int `yaml:"min_instructions_per_file"`
}

// Compilation is the manifest's "compilation:" block.
type Compilation struct {
	Output            string      `yaml:"output"`
	Target            string      `yaml:"target"`
	Strategy          string      `yaml:"strategy"`
	Chatmode          string      `yaml:"chatmode"`
	ResolveLinks      *bool       `yaml:"resolve_links"`
	SourceAttribution bool        `yaml:"source_attribution"`
	SingleFile        bool        `yaml:"single_file"` // legacy alias for strategy=single-file
	Placement         Placement   `yaml:"placement"`
	Exclude           ExcludeList `yaml:"exclude"`
}

// ExcludeList accepts either a single glob string or a list of globs.
type ExcludeList []string

// UnmarshalYAML accepts "exclude: foo/**" or "exclude: [foo/**, bar/**]".
func (e *ExcludeList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.SequenceNode:
		var list []string
		if err := value.Decode(&list); err != nil {
			return err
		}
		*e = list
		return nil
	case yaml.ScalarNode:
		*e = []string{value.Value}
		return nil
	default:
		return fmt.Errorf("expected string or list for exclude, got YAML kind %d", value.Kind)
	}
}

// Dependencies is the manifest's "dependencies:" block. MCP dependencies
// are recorded but uninterpreted — MCP client adapters are out of scope
// (§1) and the core never parses their contents.
type Dependencies struct {
	APM []string `yaml:"apm"`
	MCP []string `yaml:"mcp"`
}

// Manifest is the parsed form of apm.yml.
type Manifest struct {
	Name         string            `yaml:"name"`
	Version      string            `yaml:"version"`
	Description  string            `yaml:"description"`
	Author       string            `yaml:"author"`
	Target       string            `yaml:"target"`
	Scripts      map[string]string `yaml:"scripts"`
	Dependencies Dependencies      `yaml:"dependencies"`
	Compilation  Compilation       `yaml:"compilation"`
}

// ParseError records a manifest that failed to parse. Per §6.1, the
// resolver reacts to this by producing a placeholder root package named
// "error", never by aborting.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parsing manifest %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Load reads and parses apm.yml from dir. A missing file is reported via
// the bool return (not an error): callers that need a placeholder graph
// root should check it rather than treat os.ErrNotExist specially.
func Load(dir string) (*Manifest, bool, error) {
	path := filepath.Join(dir, "apm.yml")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("reading manifest %s: %w", path, err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, true, &ParseError{Path: path, Err: err}
	}
	return &m, true, nil
}

// Save serializes a Manifest to apm.yml in dir. Present for round-trip
// testing (L2: parse → serialize → parse is the identity on recognized
// fields); the install layer is the usual writer in production.
func Save(dir string, m *Manifest) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("serializing manifest: %w", err)
	}
	path := filepath.Join(dir, "apm.yml")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing manifest %s: %w", path, err)
	}
	return nil
}

// LockEntry is one dependency's pinned resolution (§6.2).
type LockEntry struct {
	RepoURL        string `yaml:"repo_url"`
	ResolvedCommit string `yaml:"resolved_commit"`
	ResolvedRef    string `yaml:"resolved_ref"`
	Version        string `yaml:"version"`
	Depth          int    `yaml:"depth"`
	ResolvedBy     string `yaml:"resolved_by,omitempty"`
}

// Lockfile is the parsed form of apm.lock.
type Lockfile struct {
	LockfileVersion string               `yaml:"lockfile_version"`
	GeneratedAt     time.Time            `yaml:"generated_at"`
	APMVersion      string               `yaml:"apm_version"`
	Dependencies    map[string]LockEntry `yaml:"dependencies"`
}

// LoadLockfile reads apm.lock from dir, if present.
func LoadLockfile(dir string) (*Lockfile, bool, error) {
	path := filepath.Join(dir, "apm.lock")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("reading lockfile %s: %w", path, err)
	}
	var lf Lockfile
	if err := yaml.Unmarshal(data, &lf); err != nil {
		return nil, true, fmt.Errorf("parsing lockfile %s: %w", path, err)
	}
	return &lf, true, nil
}

// SaveLockfile serializes a Lockfile to apm.lock in dir.
func SaveLockfile(dir string, lf *Lockfile) error {
	data, err := yaml.Marshal(lf)
	if err != nil {
		return fmt.Errorf("serializing lockfile: %w", err)
	}
	path := filepath.Join(dir, "apm.lock")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing lockfile %s: %w", path, err)
	}
	return nil
}
