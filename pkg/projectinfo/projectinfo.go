// Package projectinfo extracts project facts (language, framework,
// dependencies, .gitignore presence) from a repository's manifests, per
// spec.md §2 / §4.2 step 3.
package projectinfo

import (
	"encoding/json"
	"path"
	"regexp"
	"strings"

	"github.com/vibecheck/vibecheck/pkg/models"
)

// manifestLanguage maps a manifest basename to the language it implies.
var manifestLanguage = map[string]string{
	"package.json":     "javascript",
	"requirements.txt": "python",
	"pyproject.toml":   "python",
	"Cargo.toml":       "rust",
	"go.mod":           "go",
	"pom.xml":          "java",
	"build.gradle":     "java",
	"Gemfile":          "ruby",
	"composer.json":    "php",
}

// pythonFrameworkDeps maps a python dependency name to its framework tag.
var pythonFrameworkDeps = map[string]string{
	"flask": "flask", "django": "django", "fastapi": "fastapi",
}

// Detect extracts project info from the acquired file set, per spec.md
// §4.2 step 3: language, framework, dependencies, .gitignore presence.
func Detect(files []models.InlineFile) models.ProjectInfo {
	byName := make(map[string]models.InlineFile, len(files))
	extCounts := make(map[string]int)
	for _, f := range files {
		byName[path.Base(f.Path)] = f
		if ext := extOf(f.Path); ext != "" {
			extCounts[ext]++
		}
	}

	info := models.ProjectInfo{Dependencies: map[string]string{}}

	if gi, ok := byName[".gitignore"]; ok {
		info.HasGitignore = true
		info.GitignoreLines = nonEmptyLines(gi.Content)
	}

	for name, lang := range manifestLanguage {
		if _, ok := byName[name]; ok {
			info.Language = lang
			break
		}
	}

	if pkg, ok := byName["package.json"]; ok {
		deps, framework := detectNodeManifest(pkg.Content)
		for k, v := range deps {
			info.Dependencies[k] = v
		}
		if framework != "" {
			info.Framework = framework
		}
	}

	if req, ok := byName["requirements.txt"]; ok {
		deps, framework := detectRequirementsTxt(req.Content)
		for k, v := range deps {
			info.Dependencies[k] = v
		}
		if info.Framework == "" {
			info.Framework = framework
		}
	}

	if info.Language == "" {
		info.Language = mostFrequentExtLanguage(extCounts)
	}

	return info
}

var nodeDepVerRe = regexp.MustCompile(`^[~^]?v?`)

// nodeFrameworkSignatures maps a node dependency name to a framework tag,
// per spec.md §4.2 ("next" → "nextjs", flask/django/fastapi for python).
var nodeFrameworkSignatures = map[string]string{
	"next": "nextjs", "nuxt": "nuxtjs", "express": "express",
	"@nestjs/core": "nestjs", "react": "react", "vue": "vue",
}

func detectNodeManifest(content string) (deps map[string]string, framework string) {
	var manifest struct {
		Dependencies    map[string]string `json:"dependencies"`
		DevDependencies map[string]string `json:"devDependencies"`
	}
	deps = map[string]string{}
	if err := json.Unmarshal([]byte(content), &manifest); err != nil {
		return deps, ""
	}
	for name, v := range manifest.Dependencies {
		deps[name] = nodeDepVerRe.ReplaceAllString(v, "")
	}
	for name, v := range manifest.DevDependencies {
		if _, exists := deps[name]; !exists {
			deps[name] = nodeDepVerRe.ReplaceAllString(v, "")
		}
	}
	for name, fw := range nodeFrameworkSignatures {
		if _, ok := deps[name]; ok {
			framework = fw
			break
		}
	}
	return deps, framework
}

var reqLineRe = regexp.MustCompile(`^([A-Za-z0-9_.\-]+)\s*(==|>=|<=|~=)?\s*([0-9][A-Za-z0-9_.\-]*)?`)

func detectRequirementsTxt(content string) (deps map[string]string, framework string) {
	deps = map[string]string{}
	for _, raw := range strings.Split(content, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		m := reqLineRe.FindStringSubmatch(line)
		if m == nil || m[1] == "" {
			continue
		}
		name := strings.ToLower(m[1])
		version := m[3]
		if version == "" {
			version = "*"
		}
		deps[name] = version
		if fw, ok := pythonFrameworkDeps[name]; ok && framework == "" {
			framework = fw
		}
	}
	return deps, framework
}

// sourceLanguageExts maps a source extension to the language name
// reported when no manifest identifies the project, per spec.md §4.2
// ("fall back to the most frequent source extension").
var sourceLanguageExts = map[string]string{
	".py": "python", ".js": "javascript", ".ts": "typescript", ".jsx": "javascript",
	".tsx": "typescript", ".rb": "ruby", ".php": "php", ".java": "java", ".go": "go",
}

func mostFrequentExtLanguage(extCounts map[string]int) string {
	best, bestCount := "", 0
	for ext, lang := range sourceLanguageExts {
		if n := extCounts[ext]; n > bestCount {
			bestCount = n
			best = lang
		}
	}
	return best
}

func extOf(p string) string {
	i := strings.LastIndexByte(p, '.')
	if i == -1 {
		return ""
	}
	return p[i:]
}

func nonEmptyLines(content string) []string {
	var out []string
	for _, l := range strings.Split(content, "\n") {
		l = strings.TrimSpace(l)
		if l != "" {
			out = append(out, l)
		}
	}
	return out
}
