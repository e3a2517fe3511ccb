// Package constitution injects a hash-tagged, idempotent excerpt of a
// project-level governance file at the head of compiled output (C10).
package constitution

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"strings"
)

// Status is the outcome of one injection attempt.
type Status string

const (
	StatusCreated   Status = "CREATED"
	StatusUnchanged Status = "UNCHANGED"
	StatusUpdated   Status = "UPDATED"
	StatusMissing   Status = "MISSING"
	StatusSkipped   Status = "SKIPPED"
)

const (
	beginMarker = "<!-- SPEC-KIT CONSTITUTION: BEGIN -->"
	endMarker   = "<!-- SPEC-KIT CONSTITUTION: END -->"
)

// DefaultPath is the conventional location of the constitution file.
const DefaultPath = ".specify/memory/constitution.md"

// Result reports what Inject did.
type Result struct {
	Status  Status
	Content string // the (possibly unchanged) full output content
	Hash    string // empty when Status is MISSING or SKIPPED
}

// Hash computes the 12-hex-char content hash used in the block header
// (§4.8 step 1), grounded on the checkpoint hashing pattern: sha256 of
// the raw bytes, hex-encoded, truncated.
func Hash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])[:12]
}

// renderBlock builds the delimited constitution block (§4.8 step 2).
func renderBlock(hash, path, content string) string {
	var sb strings.Builder
	sb.WriteString(beginMarker + "\n")
	sb.WriteString("hash: " + hash + " path: " + path + "\n")
	sb.WriteString(strings.TrimRight(content, "\n") + "\n")
	sb.WriteString(endMarker)
	return sb.String()
}

// Inject reads the constitution file at constitutionPath (if present)
// and inserts or updates its block immediately after compiledOutput's
// header (the first blank line after the title, §4.8 step 3), never
// leaving more than one block in the result (I10).
//
// When the constitution file is absent, noConstitution controls the
// reported status: MISSING when false (no flag was passed to suppress
// the warning), SKIPPED when true (the operator explicitly opted out
// with --no-constitution) — in both cases any existing block in
// compiledOutput is left untouched.
func Inject(compiledOutput string, constitutionPath string, noConstitution bool) (Result, error) {
	data, err := os.ReadFile(constitutionPath)
	if err != nil {
		status := StatusMissing
		if noConstitution {
			status = StatusSkipped
		}
		return Result{Status: status, Content: compiledOutput}, nil
	}

	hash := Hash(data)
	block := renderBlock(hash, constitutionPath, string(data))

	existing, hasExisting := extractBlock(compiledOutput)
	if hasExisting && existing == block {
		return Result{Status: StatusUnchanged, Content: compiledOutput, Hash: hash}, nil
	}

	status := StatusCreated
	if hasExisting {
		status = StatusUpdated
	}

	without := removeBlock(compiledOutput)
	inserted := insertAfterHeader(without, block)
	return Result{Status: status, Content: inserted, Hash: hash}, nil
}

// extractBlock finds an existing constitution block in content, if
// any.
func extractBlock(content string) (string, bool) {
	start := strings.Index(content, beginMarker)
	if start < 0 {
		return "", false
	}
	end := strings.Index(content[start:], endMarker)
	if end < 0 {
		return "", false
	}
	end += start + len(endMarker)
	return content[start:end], true
}

// removeBlock strips an existing constitution block (and one trailing
// blank line, if present) from content, so Inject never leaves more
// than the one block it's about to (re)insert (I10).
func removeBlock(content string) string {
	start := strings.Index(content, beginMarker)
	if start < 0 {
		return content
	}
	end := strings.Index(content[start:], endMarker)
	if end < 0 {
		return content
	}
	end += start + len(endMarker)

	before := content[:start]
	after := content[end:]
	after = strings.TrimPrefix(after, "\n")
	after = strings.TrimPrefix(after, "\n")
	before = strings.TrimRight(before, "\n")
	return before + "\n\n" + strings.TrimLeft(after, "\n")
}

// insertAfterHeader places block right after the first blank line
// following the title (§4.8 step 3): everything up to and including
// that blank line is the "header".
func insertAfterHeader(content, block string) string {
	idx := strings.Index(content, "\n\n")
	if idx < 0 {
		// No blank line found: treat the whole content as the header and
		// append the block at the end.
		return strings.TrimRight(content, "\n") + "\n\n" + block + "\n"
	}
	header := content[:idx]
	rest := content[idx+2:]
	return header + "\n\n" + block + "\n\n" + rest
}
