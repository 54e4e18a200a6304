// Package coverage implements the coverage builder: bounded BFS path
// discovery seeded by a fixed common-path list and extended by
// references mined from response bodies, per spec.md §4.6.
package coverage

import (
	"context"
	"net/http"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/vibecheck/vibecheck/pkg/httpprobe"
	"github.com/vibecheck/vibecheck/pkg/models"
)

// Budget is the per-depth configuration table from spec.md §4.6.
type Budget struct {
	SeedPaths      int
	MaxRequests    int
	MaxDiscovered  int
}

var budgets = map[models.Depth]Budget{
	models.DepthQuick:    {SeedPaths: 15, MaxRequests: 12, MaxDiscovered: 25},
	models.DepthStandard: {SeedPaths: 35, MaxRequests: 24, MaxDiscovered: 55},
	models.DepthDeep:     {SeedPaths: 60, MaxRequests: 40, MaxDiscovered: 90},
}

// BudgetFor returns the budget for depth, defaulting to standard.
func BudgetFor(depth models.Depth) Budget {
	if b, ok := budgets[depth]; ok {
		return b
	}
	return budgets[models.DepthStandard]
}

// commonPaths is the fixed seed list BFS starts from, per spec.md §4.6.
var commonPaths = []string{
	"/", "/api", "/api/v1", "/api/v2", "/admin", "/login", "/logout", "/register",
	"/docs", "/openapi.json", "/swagger", "/swagger.json", "/swagger-ui", "/graphql",
	"/metrics", "/health", "/healthz", "/status", "/.well-known/security.txt",
	"/.well-known/openid-configuration", "/robots.txt", "/sitemap.xml", "/favicon.ico",
	"/api/users", "/api/user", "/api/auth", "/api/login", "/api/admin", "/api/config",
	"/api/health", "/api/status", "/api/docs", "/api/swagger", "/static", "/assets",
	"/dashboard", "/account", "/accounts", "/settings", "/profile", "/users", "/user",
	"/config", "/configuration", "/debug", "/test", "/.env", "/.git/config",
	"/wp-admin", "/wp-login.php", "/phpmyadmin", "/actuator", "/actuator/health",
	"/console", "/internal", "/api/internal", "/v1", "/v2", "/api/v3", "/upload",
	"/uploads", "/files", "/download", "/downloads", "/search", "/api/search",
}

// staticAssetSuffixes are filtered out of mined path references.
var staticAssetSuffixes = []string{
	".png", ".jpg", ".jpeg", ".gif", ".svg", ".ico", ".webp", ".woff", ".woff2", ".ttf", ".eot", ".map",
}

var (
	quotedPathRe = regexp.MustCompile(`["'` + "`" + `](/[^"'` + "`" + `\s]{0,240})["'` + "`" + `]`)
	fetchCallRe  = regexp.MustCompile(`(?:fetch|axios\.(?:get|post|put|patch|delete))\(\s*["'` + "`" + `]([^"'` + "`" + `]+)["'` + "`" + `]`)
)

// Probe is the subset of httpprobe.Do the builder depends on, so tests
// can substitute a canned set of responses without a real network.
type Probe func(ctx context.Context, url string) (*httpprobe.Response, error)

// Result is the coverage context returned to the robust orchestrator and
// fed, trimmed, to every agent.
type Result struct {
	ProbedCount      int
	SeedPaths        []string
	ReachablePaths   []PathStatus
	RequestSamples   []string
}

// PathStatus is one reachable path and the status it returned.
type PathStatus struct {
	Path   string
	Status int
}

// Build runs the bounded BFS against targetURL using probe for each
// request, per spec.md §4.6.
func Build(ctx context.Context, targetURL string, depth models.Depth, probe Probe) Result {
	budget := BudgetFor(depth)

	seeds := commonPaths
	if budget.SeedPaths < len(seeds) {
		seeds = seeds[:budget.SeedPaths]
	}

	queue := append([]string(nil), seeds...)
	seen := make(map[string]bool, len(seeds))
	for _, s := range seeds {
		seen[s] = true
	}

	var result Result
	result.SeedPaths = append([]string(nil), seeds...)
	requestSampleSet := map[string]bool{}

	for len(queue) > 0 && result.ProbedCount < budget.MaxRequests {
		path := queue[0]
		queue = queue[1:]

		resp, err := probe(ctx, httpprobe.JoinURL(targetURL, path))
		result.ProbedCount++
		if err != nil {
			continue
		}
		if resp.StatusCode != http.StatusNotFound {
			result.ReachablePaths = append(result.ReachablePaths, PathStatus{Path: path, Status: resp.StatusCode})
		}

		if strings.Contains(path, "?") && len(requestSampleSet) < 10 {
			if !requestSampleSet[path] {
				requestSampleSet[path] = true
				result.RequestSamples = append(result.RequestSamples, path)
			}
		}

		for _, ref := range mineReferences(resp.Body) {
			if len(seen) >= budget.MaxDiscovered {
				break
			}
			if seen[ref] {
				continue
			}
			seen[ref] = true
			queue = append(queue, ref)
		}
	}

	sort.Strings(result.SeedPaths)
	if len(result.ReachablePaths) > 80 {
		result.ReachablePaths = result.ReachablePaths[:80]
	}
	return result
}

// mineReferences extracts candidate path references from a response
// body, per spec.md §4.6.
func mineReferences(body string) []string {
	var out []string
	add := func(raw string) {
		norm, ok := Normalize(raw)
		if !ok || isStaticAsset(norm) {
			return
		}
		out = append(out, norm)
	}
	for _, m := range quotedPathRe.FindAllStringSubmatch(body, -1) {
		add(m[1])
	}
	for _, m := range fetchCallRe.FindAllStringSubmatch(body, -1) {
		add(m[1])
	}
	return out
}

// Normalize strips scheme/host, preserves query string, and drops a
// trailing slash except for root, per spec.md §4.6/§8.
func Normalize(ref string) (string, bool) {
	ref = strings.TrimSpace(ref)
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		rest := ref
		rest = strings.TrimPrefix(rest, "https://")
		rest = strings.TrimPrefix(rest, "http://")
		if i := strings.IndexByte(rest, '/'); i != -1 {
			ref = rest[i:]
		} else {
			ref = "/"
		}
	}
	if !strings.HasPrefix(ref, "/") {
		return "", false
	}
	if ref != "/" && strings.HasSuffix(ref, "/") {
		ref = strings.TrimRight(ref, "/")
		if ref == "" {
			ref = "/"
		}
	}
	return ref, true
}

func isStaticAsset(path string) bool {
	clean := path
	if i := strings.IndexByte(clean, '?'); i != -1 {
		clean = clean[:i]
	}
	lower := strings.ToLower(clean)
	for _, suf := range staticAssetSuffixes {
		if strings.HasSuffix(lower, suf) {
			return true
		}
	}
	return false
}

// HTTPProbe adapts httpprobe.Do to the Probe signature with a fixed
// timeout, used by the robust orchestrator's real (non-test) wiring.
func HTTPProbe(timeout time.Duration) Probe {
	return func(ctx context.Context, url string) (*httpprobe.Response, error) {
		return httpprobe.Do(ctx, httpprobe.Request{Method: http.MethodGet, URL: url}, timeout)
	}
}
