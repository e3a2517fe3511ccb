package optimizer

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

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

func TestScan_SkipsKnownDirs(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "src", "main.go"))
	touch(t, filepath.Join(root, "node_modules", "dep", "index.js"))
	touch(t, filepath.Join(root, ".git", "HEAD"))

	scan, err := Scan(root, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := scan.Directories["node_modules/dep"]; ok {
		t.Error("expected node_modules to be skipped")
	}
	if _, ok := scan.Directories[".git"]; ok {
		t.Error("expected .git to be skipped")
	}
	if _, ok := scan.Directories["src"]; !ok {
		t.Error("expected src to be scanned")
	}
}

func TestScan_ExcludePattern(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "vendor", "lib", "a.go"))
	touch(t, filepath.Join(root, "src", "a.go"))

	scan, err := Scan(root, []string{"vendor/**"})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := scan.Directories["vendor"]; ok {
		t.Error("expected vendor to be excluded")
	}
	if _, ok := scan.Directories["src"]; !ok {
		t.Error("expected src to remain")
	}
}

func TestMatchGlob_DoubleStarAndSingleStar(t *testing.T) {
	cases := []struct {
		pattern, path string
		want          bool
	}{
		{"*.py", "main.py", true},
		{"*.py", "pkg/main.py", true}, // filename-only pattern matches on base name
		{"src/**/*.go", "src/a.go", true},
		{"src/**/*.go", "src/pkg/a.go", true},
		{"src/**/*.go", "other/a.go", false},
		{"**", "anything/at/all.txt", true},
		{"docs/*.md", "docs/sub/a.md", false},
	}
	for _, c := range cases {
		if got := MatchGlob(c.pattern, c.path, false); got != c.want {
			t.Errorf("MatchGlob(%q, %q) = %v, want %v", c.pattern, c.path, got, c.want)
		}
	}
}

func instr(name, applyTo string) primitive.Instruction {
	return primitive.Instruction{
		Base:    primitive.Base{Name: name, Source: primitive.LocalSource(), Content: name + " body"},
		ApplyTo: applyTo,
	}
}

func TestOptimize_GlobalPlacedAtRoot(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "a.go"))
	scan, _ := Scan(root, nil)

	placements, decisions := Optimize([]primitive.Instruction{instr("global", "")}, scan, Options{})
	if len(placements[""]) != 1 {
		t.Errorf("expected global instruction at root, got %v", placements)
	}
	if decisions[0].Strategy != "global" {
		t.Errorf("expected global strategy, got %s", decisions[0].Strategy)
	}
}

func TestOptimize_NoMatchUsesIntendedDirectory(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "backend", "placeholder.txt"))
	scan, _ := Scan(root, nil)

	placements, decisions := Optimize([]primitive.Instruction{instr("py", "backend/*.py")}, scan, Options{})
	if len(placements["backend"]) != 1 {
		t.Errorf("expected placement at intended directory 'backend', got %v", placements)
	}
	if decisions[0].Strategy != "no_match_intended" {
		t.Errorf("unexpected strategy: %s", decisions[0].Strategy)
	}
}

func TestOptimize_SinglePointConcentratedMatches(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "backend", "api", "a.py"))
	touch(t, filepath.Join(root, "backend", "api", "b.py"))
	for i := 0; i < 9; i++ {
		touch(t, filepath.Join(root, "other"+string(rune('a'+i)), "file.js"))
	}
	scan, _ := Scan(root, nil)

	placements, decisions := Optimize([]primitive.Instruction{instr("py", "backend/api/*.py")}, scan, Options{})
	if len(placements["backend/api"]) != 1 {
		t.Errorf("expected single_point placement at backend/api, got %v", placements)
	}
	if decisions[0].Strategy != "single_point" {
		t.Errorf("expected single_point, got %s (score=%f)", decisions[0].Strategy, decisions[0].Score)
	}
}

func TestOptimize_DistributedWhenSpreadWide(t *testing.T) {
	root := t.TempDir()
	for _, d := range []string{"a", "b", "c", "d", "e"} {
		touch(t, filepath.Join(root, d, "file.go"))
	}
	scan, _ := Scan(root, nil)

	placements, decisions := Optimize([]primitive.Instruction{instr("go", "**/*.go")}, scan, Options{})
	if len(placements[""]) != 1 {
		t.Errorf("expected distributed placement at root, got %v", placements)
	}
	if decisions[0].Strategy != "distributed" {
		t.Errorf("expected distributed, got %s (score=%f)", decisions[0].Strategy, decisions[0].Score)
	}
}

func TestOptimize_CoverageGuarantee(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "pkg", "a", "x.go"))
	touch(t, filepath.Join(root, "pkg", "b", "y.go"))
	scan, _ := Scan(root, nil)

	placements, _ := Optimize([]primitive.Instruction{instr("go", "pkg/**/*.go")}, scan, Options{})

	var placementDir string
	for d, instrs := range placements {
		if len(instrs) > 0 {
			placementDir = d
		}
	}
	for _, f := range []string{"pkg/a/x.go", "pkg/b/y.go"} {
		d := dirOf(f)
		if !strings.HasPrefix(d, placementDir) {
			t.Errorf("file %s (dir %s) not covered by placement %q", f, d, placementDir)
		}
	}
}

func TestOptimize_MinInstructionsPerFileMergesUpward(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "tiny", "only.rb"))
	touch(t, filepath.Join(root, "other1", "file.txt"))
	touch(t, filepath.Join(root, "other2", "file.txt"))
	touch(t, filepath.Join(root, "other3", "file.txt"))
	scan, _ := Scan(root, nil)

	placements, _ := Optimize([]primitive.Instruction{instr("rb", "tiny/*.rb")}, scan, Options{MinInstructionsPerFile: 2})
	if _, ok := placements["tiny"]; ok {
		t.Error("expected sparse placement to be merged upward, not left in place")
	}
	if len(placements[""]) != 1 {
		t.Errorf("expected merged instruction to land at root, got %v", placements)
	}
}
