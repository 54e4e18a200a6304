package analyze

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/vibecheck/vibecheck/pkg/llmclient"
	"github.com/vibecheck/vibecheck/pkg/models"
)

// llmByteBudget bounds the cumulative size of concatenated file excerpts
// sent to the contextual analyzer, per spec.md §4.4.
const llmByteBudget = 50_000

// priorityKeywords rank which files get excerpted first; more keyword
// hits sort earlier.
var priorityKeywords = []string{
	"route", "api", "auth", "login", "middleware", "db", "database", "config", "server", "app",
}

// llmFinding is the shape the contextual analyzer expects back from the
// model, per spec.md §4.4.
type llmFinding struct {
	Severity    string `json:"severity"`
	Category    string `json:"category"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Remediation string `json:"remediation"`
}

// LLMContextual runs the single-shot contextual pass over prioritized
// file excerpts, per spec.md §4.4. Any parse or API failure yields no
// findings — it never fails the assessment.
func LLMContextual(ctx context.Context, client llmclient.Client, files []File, info models.ProjectInfo) []Finding {
	prioritized := prioritizeFiles(files)
	excerpt := concatenateWithinBudget(prioritized)
	if excerpt == "" {
		return nil
	}

	prompt := buildPrompt(excerpt, info)
	raw, err := client.Complete(ctx, prompt)
	if err != nil {
		return nil
	}

	parsed, err := parseLLMFindings(raw)
	if err != nil {
		return nil
	}
	return parsed
}

func prioritizeFiles(files []File) []File {
	type scored struct {
		file File
		hits int
	}
	scoredFiles := make([]scored, len(files))
	for i, f := range files {
		lower := strings.ToLower(f.Path)
		hits := 0
		for _, kw := range priorityKeywords {
			if strings.Contains(lower, kw) {
				hits++
			}
		}
		scoredFiles[i] = scored{file: f, hits: hits}
	}
	// Stable sort by hits descending, preserving original order on ties
	// (Go's sort.SliceStable would work here too; a manual insertion sort
	// keeps this dependency-free and the input sizes are small).
	for i := 1; i < len(scoredFiles); i++ {
		j := i
		for j > 0 && scoredFiles[j-1].hits < scoredFiles[j].hits {
			scoredFiles[j-1], scoredFiles[j] = scoredFiles[j], scoredFiles[j-1]
			j--
		}
	}
	out := make([]File, len(scoredFiles))
	for i, sf := range scoredFiles {
		out[i] = sf.file
	}
	return out
}

func concatenateWithinBudget(files []File) string {
	var b strings.Builder
	total := 0
	for _, f := range files {
		block := fmt.Sprintf("### %s\n```\n%s\n```\n\n", f.Path, f.Content)
		if total+len(block) > llmByteBudget {
			break // never split a file, per spec.md §4.4
		}
		b.WriteString(block)
		total += len(block)
	}
	return b.String()
}

func buildPrompt(excerpt string, info models.ProjectInfo) string {
	var b strings.Builder
	b.WriteString("You are a security reviewer. Given the following source excerpts")
	if info.Language != "" {
		fmt.Fprintf(&b, " (language: %s", info.Language)
		if info.Framework != "" {
			fmt.Fprintf(&b, ", framework: %s", info.Framework)
		}
		b.WriteString(")")
	}
	b.WriteString(", identify security issues. Focus on: business logic flaws, ")
	b.WriteString("authorization design, data exposure, framework-specific misconfiguration, ")
	b.WriteString("cryptography misuse, and input handling.\n\n")
	b.WriteString("Respond with ONLY a JSON array. Each element must have exactly these keys: ")
	b.WriteString(`"severity" (one of critical/high/medium/low/info), "category", "title", "description", "remediation".`)
	b.WriteString("\n\n")
	b.WriteString(excerpt)
	return b.String()
}

// parseLLMFindings strips an optional surrounding triple-fence, parses a
// JSON array, and drops any element missing required keys or carrying an
// invalid severity, per spec.md §4.4.
func parseLLMFindings(raw string) ([]Finding, error) {
	raw = stripFence(raw)

	var parsed []llmFinding
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, fmt.Errorf("parse llm findings: %w", err)
	}

	var out []Finding
	for _, f := range parsed {
		if f.Severity == "" || f.Category == "" || f.Title == "" || f.Description == "" || f.Remediation == "" {
			continue
		}
		sev := models.Severity(f.Severity)
		if !models.ValidSeverity(sev) {
			continue
		}
		out = append(out, Finding{
			Severity:    sev,
			Category:    f.Category,
			Title:       f.Title,
			Description: f.Description,
			Remediation: f.Remediation,
		})
	}
	return out, nil
}

func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl != -1 {
		first := strings.TrimSpace(s[:nl])
		if first == "json" || first == "" {
			s = s[nl+1:]
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
