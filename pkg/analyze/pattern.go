package analyze

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/vibecheck/vibecheck/pkg/models"
)

// patternRule is one entry of the fixed ordered pattern table, per
// spec.md §4.3. The regex is compiled once at package init, mirroring
// the teacher's masking.CompiledPattern approach.
type patternRule struct {
	re          *regexp.Regexp
	severity    models.Severity
	category    string
	title       string
	description string
	remediation string
}

var patternRules = compilePatternRules([]struct {
	pattern     string
	severity    models.Severity
	category    string
	title       string
	description string
	remediation string
}{
	{
		pattern:     `\.raw\(["'` + "`" + `][^"'` + "`" + `]*\$\{|SELECT\b.*["'`+"`"+`]\s*\+|f["']\s*SELECT\b|execute\([^)]*%\s*\(`,
		severity:    models.SeverityCritical,
		category:    "sql_injection",
		title:       "Potential SQL injection via %s",
		description: "A SQL query appears to be built by concatenating or interpolating untrusted input rather than using parameterized queries.",
		remediation: "Use parameterized queries or an ORM's query builder instead of string concatenation or f-strings.",
	},
	{
		pattern:     `\.innerHTML\s*=|dangerouslySetInnerHTML|v-html\s*=`,
		severity:    models.SeverityHigh,
		category:    "xss",
		title:       "Potential cross-site scripting via %s",
		description: "Untrusted content may be rendered as raw HTML without sanitization, enabling script injection.",
		remediation: "Sanitize HTML before rendering, or use text-only rendering APIs (textContent, {text} bindings).",
	},
	{
		pattern:     `\beval\(|\bexec\(|new Function\(`,
		severity:    models.SeverityCritical,
		category:    "code_injection",
		title:       "Dynamic code execution via %s",
		description: "Code is constructed and executed dynamically, which can run attacker-controlled input as code.",
		remediation: "Avoid eval/exec/Function constructors; use safe parsers or explicit dispatch tables instead.",
	},
	{
		pattern:     `child_process\.exec\(|subprocess\.(Popen|call|run)\([^)]*shell\s*=\s*True|os\.system\(`,
		severity:    models.SeverityCritical,
		category:    "command_injection",
		title:       "Potential command injection via %s",
		description: "A shell command appears to be built from dynamic input and executed through a shell.",
		remediation: "Use an argv-array exec API without shell=True/child_process.exec's shell interpretation, and validate input.",
	},
	{
		pattern:     `pickle\.loads\(|yaml\.load\((?!.*Loader=yaml\.SafeLoader)`,
		severity:    models.SeverityHigh,
		category:    "insecure_deserialization",
		title:       "Insecure deserialization via %s",
		description: "Untrusted data is deserialized using a format capable of executing arbitrary code on load.",
		remediation: "Use pickle/yaml only with trusted input, or switch to safe loaders (yaml.safe_load) and data-only formats like JSON.",
	},
	{
		pattern:     `req\.(query|params|body)\[[^\]]+\]\s*(?:;|$)|request\.(GET|POST)\.get\(`,
		severity:    models.SeverityLow,
		category:    "unvalidated_input",
		title:       "Unvalidated request parameter via %s",
		description: "A request parameter is read and used without an accompanying validation step nearby.",
		remediation: "Validate and sanitize all request parameters before use, ideally via a schema validator.",
	},
	{
		pattern:     `DEBUG\s*=\s*True|debug\s*:\s*true|app\.debug\s*=\s*true`,
		severity:    models.SeverityMedium,
		category:    "debug_mode",
		title:       "Debug mode enabled via %s",
		description: "Debug mode appears to be hardcoded on, which can leak stack traces and internals in production.",
		remediation: "Drive debug mode from an environment variable that defaults to false.",
	},
	{
		pattern:     `Access-Control-Allow-Origin["']?\s*[:=]\s*["']\*|cors\(\{\s*origin:\s*["']\*`,
		severity:    models.SeverityMedium,
		category:    "wildcard_cors",
		title:       "Wildcard CORS origin via %s",
		description: "CORS is configured to allow any origin, removing same-origin protections for this endpoint.",
		remediation: "Restrict Access-Control-Allow-Origin to an explicit allow-list of trusted origins.",
	},
	{
		pattern:     `console\.log\([^)]*(password|token|secret|apikey)|log(ger)?\.(info|debug|warn)\([^)]*(password|token|secret)`,
		severity:    models.SeverityMedium,
		category:    "sensitive_log",
		title:       "Sensitive value in log statement via %s",
		description: "A log statement appears to include a variable named like a secret or credential.",
		remediation: "Redact or omit secrets, tokens, and passwords from log statements.",
	},
})

func compilePatternRules(defs []struct {
	pattern     string
	severity    models.Severity
	category    string
	title       string
	description string
	remediation string
}) []patternRule {
	out := make([]patternRule, 0, len(defs))
	for _, d := range defs {
		out = append(out, patternRule{
			re:          regexp.MustCompile("(?i)" + d.pattern),
			severity:    d.severity,
			category:    d.category,
			title:       d.title,
			description: d.description,
			remediation: d.remediation,
		})
	}
	return out
}

// Pattern runs the fixed regex pattern table over every source file,
// emitting at most one finding per (file, regex) pair — the first
// matching line — per spec.md §4.3.
func Pattern(files []File) []Finding {
	var findings []Finding
	for _, f := range files {
		if !IsCodeFile(f.Path) {
			continue
		}
		lines := strings.Split(f.Content, "\n")
		for _, rule := range patternRules {
			for i, line := range lines {
				loc := rule.re.FindString(line)
				if loc == "" {
					continue
				}
				findings = append(findings, Finding{
					Severity:    rule.severity,
					Category:    rule.category,
					Title:       fmt.Sprintf(rule.title, f.Path),
					Description: rule.description,
					Location: &models.Location{
						File: f.Path, Line: i + 1, Snippet: truncate(strings.TrimSpace(line), 200),
					},
					Remediation: rule.remediation,
				})
				break // one finding per (file, regex): skip remaining lines
			}
		}
	}
	return findings
}
