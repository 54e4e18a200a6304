package analyze

import (
	"path"
	"regexp"
	"strings"

	"github.com/vibecheck/vibecheck/pkg/models"
)

// Config runs the misconfiguration analyzer over a project's manifest
// and infra files, per spec.md §4.3. Unlike Pattern/Secret this
// analyzer reasons about the file set as a whole (e.g. ".env present
// but not gitignored") rather than one file in isolation.
func Config(files []File) []Finding {
	var findings []Finding

	byName := make(map[string]File, len(files))
	for _, f := range files {
		byName[path.Base(f.Path)] = f
	}
	has := func(name string) (File, bool) {
		f, ok := byName[name]
		return f, ok
	}

	gitignore, hasGitignore := has(".gitignore")
	if !hasGitignore {
		findings = append(findings, Finding{
			Severity:    models.SeverityHigh,
			Category:    "missing_gitignore",
			Title:       "Missing .gitignore",
			Description: "The project has no .gitignore, making it easy to accidentally commit secrets, build artifacts, or local configuration.",
			Remediation: "Add a .gitignore covering at minimum .env*, node_modules/, and build output directories.",
		})
	}

	if envFile, ok := has(".env"); ok {
		ignored := hasGitignore && gitignoreCovers(gitignore.Content, ".env")
		if !ignored {
			findings = append(findings, Finding{
				Severity:    models.SeverityCritical,
				Category:    "env_file_not_ignored",
				Title:       "Environment file not excluded from version control",
				Description: ".env is present in the repository and is not covered by .gitignore, risking committed credentials.",
				Location:    &models.Location{File: envFile.Path},
				Remediation: "Add .env (and .env.*) to .gitignore and remove any already-committed copies from history.",
			})
		}
	}

	for _, f := range files {
		name := path.Base(f.Path)
		switch {
		case name == "Dockerfile":
			findings = append(findings, dockerfileFindings(f)...)
		case strings.HasPrefix(name, "next.config."):
			findings = append(findings, nextConfigFindings(f)...)
		case name == "package.json":
			findings = append(findings, packageJSONFindings(f)...)
		case strings.HasPrefix(name, "docker-compose") && (strings.HasSuffix(name, ".yml") || strings.HasSuffix(name, ".yaml")):
			findings = append(findings, dockerComposeFindings(f)...)
		}
	}

	return findings
}

// gitignoreCovers reports whether any non-comment line in a .gitignore's
// content would exclude the given bare filename (a conservative
// substring check, not a full gitignore-pattern matcher).
func gitignoreCovers(content, name string) bool {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.Contains(line, name) {
			return true
		}
	}
	return false
}

var dockerUserRoot = regexp.MustCompile(`(?i)^\s*USER\s+root\s*$`)
var dockerUserLine = regexp.MustCompile(`(?i)^\s*USER\s+`)
var dockerCopyEnv = regexp.MustCompile(`(?i)^\s*COPY\s+.*\.env\b`)

func dockerfileFindings(f File) []Finding {
	var findings []Finding
	lines := strings.Split(f.Content, "\n")

	sawUser := false
	sawUserRoot := false
	for i, line := range lines {
		if dockerUserLine.MatchString(line) {
			sawUser = true
			if !sawUserRoot && dockerUserRoot.MatchString(line) {
				sawUserRoot = true
				findings = append(findings, Finding{
					Severity:    models.SeverityMedium,
					Category:    "dockerfile_root_user",
					Title:       "Container explicitly runs as root",
					Description: "The Dockerfile sets USER root, running the container process with full root privileges.",
					Location:    &models.Location{File: f.Path, Line: i + 1, Snippet: truncate(strings.TrimSpace(line), 200)},
					Remediation: "Create and switch to an unprivileged user before the final CMD/ENTRYPOINT.",
				})
			}
		}
		if dockerCopyEnv.MatchString(line) {
			findings = append(findings, Finding{
				Severity:    models.SeverityCritical,
				Category:    "dockerfile_copies_env",
				Title:       "Dockerfile copies .env into the image",
				Description: "A COPY instruction bakes a .env file into the image layer, embedding its secrets in the built artifact.",
				Location:    &models.Location{File: f.Path, Line: i + 1, Snippet: truncate(strings.TrimSpace(line), 200)},
				Remediation: "Inject secrets at runtime (env vars, mounted secrets) instead of copying .env into the image.",
			})
		}
	}
	if !sawUser {
		findings = append(findings, Finding{
			Severity:    models.SeverityMedium,
			Category:    "dockerfile_missing_user",
			Title:       "Dockerfile never switches away from root",
			Description: "No USER instruction is present, so the container runs as root by default.",
			Location:    &models.Location{File: f.Path},
			Remediation: "Add a non-root USER instruction before the final CMD/ENTRYPOINT.",
		})
	}
	return findings
}

var nextReactStrictFalse = regexp.MustCompile(`reactStrictMode\s*:\s*false`)
var nextWildcardDomain = regexp.MustCompile(`domains\s*:\s*\[[^\]]*\*`)

func nextConfigFindings(f File) []Finding {
	var findings []Finding
	if loc := nextReactStrictFalse.FindStringIndex(f.Content); loc != nil {
		findings = append(findings, Finding{
			Severity:    models.SeverityLow,
			Category:    "react_strict_mode_disabled",
			Title:       "React strict mode disabled",
			Description: "reactStrictMode is set to false, disabling extra runtime checks that catch unsafe lifecycle and rendering patterns.",
			Location:    &models.Location{File: f.Path, Line: lineOf(f.Content, loc[0])},
			Remediation: "Enable reactStrictMode to catch unsafe patterns during development.",
		})
	}
	if loc := nextWildcardDomain.FindStringIndex(f.Content); loc != nil {
		findings = append(findings, Finding{
			Severity:    models.SeverityMedium,
			Category:    "wildcard_image_domain",
			Title:       "Wildcard image domain allowed",
			Description: "next.config allows image optimization from a wildcarded domain, which can be abused for SSRF-style proxying.",
			Location:    &models.Location{File: f.Path, Line: lineOf(f.Content, loc[0])},
			Remediation: "List explicit, trusted image domains instead of a wildcard pattern.",
		})
	}
	return findings
}

var packageJSONLifecycleScript = regexp.MustCompile(`"(pre|post)install"\s*:`)

func packageJSONFindings(f File) []Finding {
	var findings []Finding
	if loc := packageJSONLifecycleScript.FindStringIndex(f.Content); loc != nil {
		findings = append(findings, Finding{
			Severity:    models.SeverityInfo,
			Category:    "npm_lifecycle_script",
			Title:       "package.json declares an install lifecycle script",
			Description: "pre/postinstall scripts run arbitrary code on every `npm install`, including in CI and on contributors' machines.",
			Location:    &models.Location{File: f.Path, Line: lineOf(f.Content, loc[0])},
			Remediation: "Review the script contents and confirm it's necessary; prefer explicit build steps over install hooks.",
		})
	}
	return findings
}

var composeOpenPort = regexp.MustCompile(`["']?0\.0\.0\.0:\d+["']?\s*:\s*["']?\d+`)

func dockerComposeFindings(f File) []Finding {
	var findings []Finding
	lines := strings.Split(f.Content, "\n")
	for i, line := range lines {
		if composeOpenPort.MatchString(line) {
			findings = append(findings, Finding{
				Severity:    models.SeverityMedium,
				Category:    "compose_port_bound_to_all_interfaces",
				Title:       "Service port bound to all interfaces",
				Description: "A port mapping explicitly binds to 0.0.0.0, exposing the service on every network interface of the host.",
				Location:    &models.Location{File: f.Path, Line: i + 1, Snippet: truncate(strings.TrimSpace(line), 200)},
				Remediation: "Bind to 127.0.0.1 or a specific internal interface unless the service must be reachable externally.",
			})
		}
	}
	return findings
}

func lineOf(content string, byteOffset int) int {
	return strings.Count(content[:byteOffset], "\n") + 1
}
