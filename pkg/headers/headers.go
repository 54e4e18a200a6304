// Package headers implements the security-header analyzer, per spec.md
// §2: HEAD-probes a path and classifies missing/weak headers. It backs
// both the robust agent loop's check_headers tool (spec.md §4.7) and the
// config analyzer's implicit header expectations.
package headers

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/vibecheck/vibecheck/pkg/httpprobe"
)

// Issue is one missing or weak security header observation.
type Issue struct {
	Header      string
	Severity    string // matches models.Severity as a string to avoid an import cycle with analyze
	Description string
}

// Result is the outcome of checking a single path's headers.
type Result struct {
	Path       string
	StatusCode int
	Issues     []Issue
}

// expected lists the headers the analyzer checks for, in report order.
var expected = []struct {
	name        string
	severity    string
	missingDesc string
	weakCheck   func(value string) (weak bool, desc string)
}{
	{
		name:        "Strict-Transport-Security",
		severity:    "medium",
		missingDesc: "HSTS is not enforced; the site can be reached over plain HTTP or downgraded.",
	},
	{
		name:        "Content-Security-Policy",
		severity:    "medium",
		missingDesc: "No Content-Security-Policy is set, leaving no defense-in-depth against injected scripts.",
	},
	{
		name:        "X-Content-Type-Options",
		severity:    "low",
		missingDesc: "X-Content-Type-Options: nosniff is missing, allowing MIME-sniffing in older browsers.",
		weakCheck: func(v string) (bool, string) {
			if !strings.EqualFold(strings.TrimSpace(v), "nosniff") {
				return true, "X-Content-Type-Options is set but not to \"nosniff\"."
			}
			return false, ""
		},
	},
	{
		name:        "X-Frame-Options",
		severity:    "medium",
		missingDesc: "X-Frame-Options is missing, leaving the response framable and susceptible to clickjacking.",
	},
	{
		name:        "Referrer-Policy",
		severity:    "low",
		missingDesc: "No Referrer-Policy is set; full URLs (including query strings) may leak to third parties via the Referer header.",
	},
}

// Check HEAD-probes target+path and classifies its security headers.
func Check(ctx context.Context, targetURL, path string, timeout time.Duration) (*Result, error) {
	resp, err := httpprobe.Do(ctx, httpprobe.Request{
		Method: http.MethodHead,
		URL:    httpprobe.JoinURL(targetURL, path),
	}, timeout)
	if err != nil {
		return nil, err
	}

	res := &Result{Path: path, StatusCode: resp.StatusCode}
	for _, h := range expected {
		v := resp.Headers.Get(h.name)
		if v == "" {
			res.Issues = append(res.Issues, Issue{Header: h.name, Severity: h.severity, Description: h.missingDesc})
			continue
		}
		if h.weakCheck != nil {
			if weak, desc := h.weakCheck(v); weak {
				res.Issues = append(res.Issues, Issue{Header: h.name, Severity: h.severity, Description: desc})
			}
		}
	}

	if cors := resp.Headers.Get("Access-Control-Allow-Origin"); cors == "*" {
		res.Issues = append(res.Issues, Issue{
			Header:      "Access-Control-Allow-Origin",
			Severity:    "medium",
			Description: "CORS allows any origin (Access-Control-Allow-Origin: *).",
		})
	}

	return res, nil
}

// Summary renders a short human-readable summary, used as the
// check_headers tool's textual result for the LLM agent.
func (r *Result) Summary() string {
	if len(r.Issues) == 0 {
		return fmt.Sprintf("%s (status %d): no header issues found", r.Path, r.StatusCode)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s (status %d): %d issue(s)\n", r.Path, r.StatusCode, len(r.Issues))
	for _, iss := range r.Issues {
		fmt.Fprintf(&b, "- [%s] %s: %s\n", iss.Severity, iss.Header, iss.Description)
	}
	return b.String()
}
