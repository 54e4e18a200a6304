package analyze

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/vibecheck/vibecheck/pkg/models"
)

// secretRule is one entry of the first-pass fixed regex table, per
// spec.md §4.3.
type secretRule struct {
	re     *regexp.Regexp
	label  string
	isTest bool // downgrades a match to "high" instead of "critical"
}

var secretRules = []secretRule{
	{re: regexp.MustCompile(`AKIA[0-9A-Z]{16}`), label: "aws_access_key_id"},
	{re: regexp.MustCompile(`(?i)aws_secret_access_key\s*[:=]\s*["']?([A-Za-z0-9/+=]{40})["']?`), label: "aws_secret_access_key"},
	{re: regexp.MustCompile(`ghp_[A-Za-z0-9]{36}`), label: "github_token"},
	{re: regexp.MustCompile(`github_pat_[A-Za-z0-9_]{22,255}`), label: "github_fine_grained_token"},
	{re: regexp.MustCompile(`sk_live_[A-Za-z0-9]{24,}`), label: "stripe_live_secret_key"},
	{re: regexp.MustCompile(`pk_live_[A-Za-z0-9]{24,}`), label: "stripe_live_publishable_key"},
	{re: regexp.MustCompile(`sk_test_[A-Za-z0-9]{24,}`), label: "stripe_test_secret_key", isTest: true},
	{re: regexp.MustCompile(`xox[baprs]-[A-Za-z0-9-]{10,}`), label: "slack_token"},
	{re: regexp.MustCompile(`(?i)jwt_secret\s*[:=]\s*["']?([^"'\s]{8,})["']?`), label: "jwt_secret"},
	{re: regexp.MustCompile(`(?i)(postgres|postgresql|mysql|mongodb(\+srv)?)://[^:\s]+:[^@\s]+@[^\s"']+`), label: "db_url_with_credentials"},
	{re: regexp.MustCompile(`-----BEGIN (RSA |EC |OPENSSH )?PRIVATE KEY-----`), label: "pem_private_key"},
	{re: regexp.MustCompile(`SG\.[A-Za-z0-9_\-]{20,}\.[A-Za-z0-9_\-]{20,}`), label: "sendgrid_api_key"},
	{re: regexp.MustCompile(`AC[a-f0-9]{32}`), label: "twilio_account_sid"},
	{re: regexp.MustCompile(`AIza[0-9A-Za-z_\-]{35}`), label: "google_api_key"},
	{re: regexp.MustCompile(`(?i)(secret|password|token)\s*[:=]\s*["']([^"'\s]{8,})["']`), label: "generic_secret_assignment"},
}

// secretSkipPaths matches files the secret analyzer never scans, per spec.md §4.3.
var secretSkipPaths = regexp.MustCompile(`(?i)(_test\.|\.test\.|/test/|/tests/|\.example(\.|$)|\.lock$|package-lock\.json$|yarn\.lock$|\.min\.js$|/node_modules/|/vendor/)`)

// placeholderMarkers are substrings (case-insensitive) that mark a
// captured value as a placeholder rather than a real secret, per spec.md §4.3.
var placeholderMarkers = []string{
	"your_", "example", "placeholder", "changeme", "xxx", "todo", "replace",
	"insert", "dummy", "fake", "sample", "test_", "sk_test_", "pk_test_",
	"change_me", "<your", "${", "{{", "process.env", "os.environ", "os.getenv", "env[",
}

func isPlaceholder(value string) bool {
	lower := strings.ToLower(value)
	for _, marker := range placeholderMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// redact replaces the interior of a captured secret with asterisks,
// keeping at most the first/last four characters, per spec.md §4.3 / §8.
func redact(secret string) string {
	if len(secret) <= 8 {
		return "****"
	}
	return secret[:4] + strings.Repeat("*", len(secret)-8) + secret[len(secret)-4:]
}

// assignmentLine matches "secret|key|token|password|pwd = '...'" style
// assignments for the entropy fallback pass, per spec.md §4.3.
var assignmentLine = regexp.MustCompile(`(?i)\b(secret|key|token|password|pwd)\w*\s*[:=]\s*["']([^"']{8,})["']`)

const entropyThreshold = 4.0

// Secret runs the two-pass secret/entropy analyzer over the given
// files, per spec.md §4.3.
func Secret(files []File) []Finding {
	var findings []Finding
	seenLines := make(map[string]bool) // "(file, line)" already flagged by the first pass

	for _, f := range files {
		if secretSkipPaths.MatchString(f.Path) {
			continue
		}
		lines := strings.Split(f.Content, "\n")

		// First pass: fixed regex table.
		for lineIdx, line := range lines {
			for _, rule := range secretRules {
				match := rule.re.FindStringSubmatchIndex(line)
				if match == nil {
					continue
				}
				value := extractCapture(line, match)
				if isPlaceholder(value) {
					continue
				}

				sev := models.SeverityCritical
				if rule.isTest {
					sev = models.SeverityHigh
				}
				redacted := strings.Replace(line, value, redact(value), 1)
				findings = append(findings, Finding{
					Severity:    sev,
					Category:    "secret_exposure",
					Title:       fmt.Sprintf("Exposed %s", humanizeLabel(rule.label)),
					Description: fmt.Sprintf("A value matching the %s pattern was found hardcoded in source.", humanizeLabel(rule.label)),
					Location: &models.Location{
						File: f.Path, Line: lineIdx + 1, Snippet: truncate(strings.TrimSpace(redacted), 200),
					},
					Remediation: "Remove the secret from source control, rotate it, and load it from an environment variable or secret manager.",
				})
				seenLines[lineKey(f.Path, lineIdx)] = true
			}
		}

		// Second pass: Shannon-entropy fallback on assignment-shaped lines.
		for lineIdx, line := range lines {
			if seenLines[lineKey(f.Path, lineIdx)] {
				continue
			}
			m := assignmentLine.FindStringSubmatch(line)
			if m == nil {
				continue
			}
			value := m[2]
			if isPlaceholder(value) {
				continue
			}
			if ShannonEntropy(value) <= entropyThreshold {
				continue
			}
			redacted := strings.Replace(line, value, redact(value), 1)
			findings = append(findings, Finding{
				Severity:    models.SeverityHigh,
				Category:    "secret_exposure",
				Title:       "Possible high-entropy secret",
				Description: "A high-entropy string is assigned to a secret-like variable name, suggesting a hardcoded credential.",
				Location: &models.Location{
					File: f.Path, Line: lineIdx + 1, Snippet: truncate(strings.TrimSpace(redacted), 200),
				},
				Remediation: "Remove the secret from source control, rotate it, and load it from an environment variable or secret manager.",
			})
			seenLines[lineKey(f.Path, lineIdx)] = true
		}
	}
	return findings
}

// extractCapture returns the last submatch group if one exists, else the
// whole match.
func extractCapture(line string, match []int) string {
	if len(match) >= 4 && match[2] != -1 {
		return line[match[2]:match[3]]
	}
	return line[match[0]:match[1]]
}

func lineKey(path string, idx int) string {
	return path + "#" + strconv.Itoa(idx)
}

func humanizeLabel(label string) string {
	return strings.ReplaceAll(label, "_", " ")
}
