// Package analyze implements the four deterministic static analyzers
// (dependency, pattern, secret, config) that make up the lightweight
// scan pipeline's core, per spec.md §4.3. All four share the same
// input/output shape so the lightweight orchestrator can run them in a
// fixed sequence and concatenate their findings.
package analyze

import "github.com/vibecheck/vibecheck/pkg/models"

// File is one source or manifest file loaded into memory for analysis.
type File struct {
	Path    string
	Content string
}

// Finding is the output shape every analyzer emits. The lightweight
// orchestrator stamps AssessmentID/ID/CreatedAt/Agent when persisting.
type Finding struct {
	Severity    models.Severity
	Category    string
	Title       string
	Description string
	Location    *models.Location
	Evidence    map[string]any
	Remediation string
}

// codeExtensions are the source-file extensions the pattern analyzer
// scans line by line, per spec.md §4.3.
var codeExtensions = map[string]bool{
	".py": true, ".js": true, ".ts": true, ".jsx": true, ".tsx": true,
	".vue": true, ".svelte": true, ".rb": true, ".php": true, ".java": true, ".go": true,
}

// IsCodeFile reports whether path has one of the pattern analyzer's
// recognized source extensions.
func IsCodeFile(path string) bool {
	return codeExtensions[extOf(path)]
}

func extOf(path string) string {
	dot := -1
	for i := len(path) - 1; i >= 0 && path[i] != '/'; i-- {
		if path[i] == '.' {
			dot = i
			break
		}
	}
	if dot == -1 {
		return ""
	}
	return path[dot:]
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
