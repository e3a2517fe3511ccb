package facade

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/seiggy/apm/internal/compiler"
	"github.com/seiggy/apm/internal/constitution"
	"github.com/seiggy/apm/internal/optimizer"
	"github.com/seiggy/apm/internal/primitive"
)

func touch(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
}

func newCollectionWithRule(t *testing.T) *primitive.Collection {
	t.Helper()
	coll := primitive.NewCollection()
	coll.AddInstruction(primitive.Instruction{
		Base:    primitive.Base{Name: "rule", Content: "Follow conventions.", Source: primitive.LocalSource()},
		ApplyTo: "",
	})
	return coll
}

func TestCompile_AgentsTargetWritesDistributed(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "a.go"))
	scan, err := optimizer.Scan(root, nil)
	if err != nil {
		t.Fatal(err)
	}

	f := New()
	result, err := f.Compile(newCollectionWithRule(t), scan, Options{
		Base:           root,
		Target:         TargetAgents,
		APMVersion:     "1.0.0",
		NoConstitution: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if result.Stats.FilesGenerated != 1 {
		t.Fatalf("expected 1 file generated, got %d", result.Stats.FilesGenerated)
	}
	if _, err := os.Stat(filepath.Join(root, "AGENTS.md")); err != nil {
		t.Errorf("expected AGENTS.md written: %v", err)
	}
	if result.ConstitutionStatus != constitution.StatusSkipped {
		t.Errorf("expected SKIPPED constitution status, got %s", result.ConstitutionStatus)
	}
	if result.BuildID == "" {
		t.Error("expected a non-empty build id")
	}
}

func TestCompile_ClaudeTargetWritesClaudeMD(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "a.go"))
	scan, _ := optimizer.Scan(root, nil)

	f := New()
	result, err := f.Compile(newCollectionWithRule(t), scan, Options{
		Base:           root,
		Target:         TargetClaude,
		APMVersion:     "1.0.0",
		NoConstitution: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(root, "CLAUDE.md")); err != nil {
		t.Errorf("expected CLAUDE.md written: %v", err)
	}
	if len(result.WrittenFiles) != 1 {
		t.Errorf("expected 1 written file tracked, got %d", len(result.WrittenFiles))
	}
}

func TestCompile_AllTargetMergesStatsAndWritesBoth(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "a.go"))
	scan, _ := optimizer.Scan(root, nil)

	f := New()
	result, err := f.Compile(newCollectionWithRule(t), scan, Options{
		Base:           root,
		Target:         TargetAll,
		APMVersion:     "1.0.0",
		NoConstitution: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(root, "AGENTS.md")); err != nil {
		t.Errorf("expected AGENTS.md written: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "CLAUDE.md")); err != nil {
		t.Errorf("expected CLAUDE.md written: %v", err)
	}
	if result.Stats.FilesGenerated != 2 {
		t.Errorf("expected merged FilesGenerated=2, got %d", result.Stats.FilesGenerated)
	}
	if result.Stats.TotalInstructionsPlaced != 2 {
		t.Errorf("expected merged TotalInstructionsPlaced=2, got %d", result.Stats.TotalInstructionsPlaced)
	}
}

func TestCompile_SingleFileModeSkipsOptimizerPlacement(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "sub", "a.go"))
	scan, _ := optimizer.Scan(root, nil)

	f := New()
	result, err := f.Compile(newCollectionWithRule(t), scan, Options{
		Base:           root,
		Target:         TargetAgents,
		APMVersion:     "1.0.0",
		SingleFile:     true,
		NoConstitution: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(root, "sub", "AGENTS.md")); err == nil {
		t.Error("expected no nested AGENTS.md in single-file mode")
	}
	data, err := os.ReadFile(filepath.Join(root, "AGENTS.md"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "Follow conventions.") {
		t.Error("expected single monolithic AGENTS.md containing the instruction body")
	}
	if len(result.WrittenFiles) != 1 {
		t.Errorf("expected exactly one written file, got %v", result.WrittenFiles)
	}
}

func TestCompile_DryRunDoesNotWriteOrCleanOrphans(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "a.go"))
	scan, _ := optimizer.Scan(root, nil)

	orphan := filepath.Join(root, "stale", "AGENTS.md")
	if err := os.MkdirAll(filepath.Dir(orphan), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(orphan, []byte("# AGENTS.md\n"+agentsGeneratedMarker+"\nstale\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	f := New()
	result, err := f.Compile(newCollectionWithRule(t), scan, Options{
		Base:           root,
		Target:         TargetAgents,
		APMVersion:     "1.0.0",
		DryRun:         true,
		CleanOrphaned:  true,
		NoConstitution: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if result.DryRunSummary == "" {
		t.Error("expected a dry-run summary")
	}
	if _, err := os.Stat(filepath.Join(root, "AGENTS.md")); err == nil {
		t.Error("expected no file written on dry run")
	}
	if _, err := os.Stat(orphan); err != nil {
		t.Error("expected orphan left untouched during dry run")
	}
}

func TestCompile_CleanOrphanedRemovesOnlyMarkedFiles(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "a.go"))
	scan, _ := optimizer.Scan(root, nil)

	generatedOrphan := filepath.Join(root, "stale", "AGENTS.md")
	userFile := filepath.Join(root, "handwritten", "AGENTS.md")
	for _, p := range []string{generatedOrphan, userFile} {
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(generatedOrphan, []byte("# AGENTS.md\n"+agentsGeneratedMarker+"\nstale content\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(userFile, []byte("# AGENTS.md\nhand-authored, no marker\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	f := New()
	result, err := f.Compile(newCollectionWithRule(t), scan, Options{
		Base:           root,
		Target:         TargetAgents,
		APMVersion:     "1.0.0",
		CleanOrphaned:  true,
		NoConstitution: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(generatedOrphan); !os.IsNotExist(err) {
		t.Error("expected marker-bearing orphan to be removed")
	}
	if _, err := os.Stat(userFile); err != nil {
		t.Error("expected hand-authored file without the marker to survive")
	}
	if len(result.OrphansRemoved) != 1 || result.OrphansRemoved[0] != generatedOrphan {
		t.Errorf("expected OrphansRemoved=[%s], got %v", generatedOrphan, result.OrphansRemoved)
	}
}

func TestCompile_CleanOrphanedRemovesStaleClaudeMD(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "a.go"))
	scan, _ := optimizer.Scan(root, nil)

	staleClaude := filepath.Join(root, "stale", "CLAUDE.md")
	if err := os.MkdirAll(filepath.Dir(staleClaude), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(staleClaude, []byte("# CLAUDE.md\n"+agentsGeneratedMarker+"\nstale content\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	f := New()
	result, err := f.Compile(newCollectionWithRule(t), scan, Options{
		Base:           root,
		Target:         TargetClaude,
		APMVersion:     "1.0.0",
		CleanOrphaned:  true,
		NoConstitution: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(staleClaude); !os.IsNotExist(err) {
		t.Error("expected marker-bearing stale CLAUDE.md to be removed")
	}
	if len(result.OrphansRemoved) != 1 || result.OrphansRemoved[0] != staleClaude {
		t.Errorf("expected OrphansRemoved=[%s], got %v", staleClaude, result.OrphansRemoved)
	}
}

func TestCompile_BuildIDReplacesPlaceholderInOutput(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "a.go"))
	scan, _ := optimizer.Scan(root, nil)

	f := New()
	result, err := f.Compile(newCollectionWithRule(t), scan, Options{
		Base:           root,
		Target:         TargetAgents,
		APMVersion:     "1.0.0",
		NoConstitution: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(filepath.Join(root, "AGENTS.md"))
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "__BUILD_ID__") {
		t.Error("expected build id placeholder to be replaced")
	}
	if !strings.Contains(string(data), result.BuildID) {
		t.Error("expected output to contain the resolved build id")
	}
}

func TestCompile_ConstitutionInjectedBeforeWrite(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "a.go"))
	scan, _ := optimizer.Scan(root, nil)

	constPath := filepath.Join(root, ".specify", "memory", "constitution.md")
	if err := os.MkdirAll(filepath.Dir(constPath), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(constPath, []byte("Governance rules.\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	f := New()
	result, err := f.Compile(newCollectionWithRule(t), scan, Options{
		Base:       root,
		Target:     TargetAgents,
		APMVersion: "1.0.0",
	})
	if err != nil {
		t.Fatal(err)
	}
	if result.ConstitutionStatus != constitution.StatusCreated {
		t.Errorf("expected CREATED, got %s", result.ConstitutionStatus)
	}
	data, err := os.ReadFile(filepath.Join(root, "AGENTS.md"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "Governance rules.") {
		t.Errorf("expected constitution content injected into written output, got:\n%s", data)
	}
}

func TestCompile_ConstitutionInjectedAfterClaudeMDHeader(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "a.go"))
	scan, _ := optimizer.Scan(root, nil)

	constPath := filepath.Join(root, ".specify", "memory", "constitution.md")
	if err := os.MkdirAll(filepath.Dir(constPath), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(constPath, []byte("Governance rules.\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	f := New()
	result, err := f.Compile(newCollectionWithRule(t), scan, Options{
		Base:       root,
		Target:     TargetClaude,
		APMVersion: "1.0.0",
	})
	if err != nil {
		t.Fatal(err)
	}
	if result.ConstitutionStatus != constitution.StatusCreated {
		t.Errorf("expected CREATED, got %s", result.ConstitutionStatus)
	}
	data, err := os.ReadFile(filepath.Join(root, "CLAUDE.md"))
	if err != nil {
		t.Fatal(err)
	}
	content := string(data)
	if !strings.Contains(content, "Governance rules.") {
		t.Errorf("expected constitution content injected into written output, got:\n%s", content)
	}
	headerEnd := strings.Index(content, "\n\n")
	blockStart := strings.Index(content, "<!-- SPEC-KIT CONSTITUTION: BEGIN -->")
	if headerEnd < 0 || blockStart < 0 || blockStart <= headerEnd {
		t.Errorf("expected the constitution block right after the real header block, got:\n%s", content)
	}
	if !strings.Contains(content[:blockStart], "<!-- Generated by APM CLI -->") {
		t.Error("expected the generated marker to precede the constitution block")
	}
}

// fakeDistributed lets TestCompile_UnsupportedTarget exercise the
// default-case error path without touching the filesystem.
type fakeDistributed struct{}

func (fakeDistributed) CompileDistributed(string, *primitive.Collection, *optimizer.ProjectScan, compiler.Options) (*compiler.Result, error) {
	return &compiler.Result{}, nil
}

func (fakeDistributed) CompileSingleFile(string, *primitive.Collection, compiler.Options) (*compiler.Result, error) {
	return &compiler.Result{}, nil
}

func TestCompile_UnsupportedTarget(t *testing.T) {
	f := &Facade{Distributed: fakeDistributed{}}
	_, err := f.Compile(primitive.NewCollection(), &optimizer.ProjectScan{}, Options{Target: Target("bogus")})
	if err == nil {
		t.Error("expected an error for an unsupported target")
	}
}
