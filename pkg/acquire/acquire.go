// Package acquire implements the repository acquirer: a shallow clone of
// a public repo into a working directory, a filtered read into memory,
// and cleanup, per spec.md §2 / §4.2 step 2.
package acquire

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/vibecheck/vibecheck/pkg/models"
)

// maxFileBytes is the per-file size cap; larger files are dropped
// entirely rather than truncated, per spec.md §4.2.
const maxFileBytes = 100_000

// skipDirs are directory basenames never descended into.
var skipDirs = map[string]bool{
	".git": true, "node_modules": true, "__pycache__": true, ".next": true,
	".nuxt": true, "dist": true, "build": true, "venv": true, ".venv": true,
	"vendor": true, "target": true,
}

// codeOrConfigExt are extensions the lightweight pipeline reads, beyond
// the pattern analyzer's own narrower codeExtensions set (e.g. JSON/YAML
// manifests the config/dependency analyzers need).
var codeOrConfigExt = map[string]bool{
	".py": true, ".js": true, ".ts": true, ".jsx": true, ".tsx": true,
	".vue": true, ".svelte": true, ".rb": true, ".php": true, ".java": true, ".go": true,
	".json": true, ".yml": true, ".yaml": true, ".toml": true, ".env": true,
	".txt": true, ".cfg": true, ".ini": true, ".mod": true,
}

// wellKnownConfigBasenames are read regardless of extension.
var wellKnownConfigBasenames = map[string]bool{
	"Dockerfile": true, "package.json": true, "requirements.txt": true,
	"Cargo.toml": true, "go.mod": true, ".gitignore": true, ".env": true,
	"docker-compose.yml": true, "docker-compose.yaml": true,
}

// Clone shallow-clones repoURL (depth=1) into a fresh temp directory
// under baseDir, retrying transient failures with exponential backoff,
// and returns the working directory path. The caller must call Cleanup.
func Clone(ctx context.Context, baseDir, repoURL string, timeout time.Duration) (string, error) {
	workDir, err := os.MkdirTemp(baseDir, "vibecheck-clone-*")
	if err != nil {
		return "", fmt.Errorf("create clone working directory: %w", err)
	}

	cloneCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	b.MaxElapsedTime = timeout

	op := func() error {
		cmd := exec.CommandContext(cloneCtx, "git", "clone", "--depth", "1", "--quiet", repoURL, workDir)
		out, runErr := cmd.CombinedOutput()
		if runErr == nil {
			return nil
		}
		if errors.Is(cloneCtx.Err(), context.DeadlineExceeded) {
			return backoff.Permanent(fmt.Errorf("clone timed out: %w", cloneCtx.Err()))
		}
		return fmt.Errorf("git clone: %w: %s", runErr, strings.TrimSpace(string(out)))
	}

	if err := backoff.Retry(op, backoff.WithContext(b, cloneCtx)); err != nil {
		_ = os.RemoveAll(workDir)
		return "", err
	}
	return workDir, nil
}

// Cleanup removes a clone's working directory. Always called, even on
// the clone-failed path, per spec.md §4.2 step 7.
func Cleanup(workDir string) {
	if workDir == "" {
		return
	}
	_ = os.RemoveAll(workDir)
}

// ReadFiltered walks root and loads every file the lightweight pipeline
// should analyze, applying spec.md §4.2's skip/size/decode rules.
func ReadFiltered(root string) ([]models.InlineFile, error) {
	var out []models.InlineFile

	err := filepath.Walk(root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, relErr := filepath.Rel(root, p)
		if relErr != nil {
			return relErr
		}
		if info.IsDir() {
			if skipDirs[info.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if !shouldRead(info.Name()) {
			return nil
		}
		if info.Size() > maxFileBytes {
			return nil
		}

		data, readErr := os.ReadFile(p)
		if readErr != nil {
			return nil // unreadable file (permissions, symlink race): skip, don't fail the whole walk
		}
		out = append(out, models.InlineFile{
			Path:    filepath.ToSlash(rel),
			Content: decodeUTF8Lenient(data),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk repository: %w", err)
	}
	return out, nil
}

func shouldRead(basename string) bool {
	if wellKnownConfigBasenames[basename] {
		return true
	}
	if strings.HasPrefix(basename, "next.config.") || strings.HasPrefix(basename, "docker-compose") {
		return true
	}
	return codeOrConfigExt[extOf(basename)]
}

func extOf(name string) string {
	i := strings.LastIndexByte(name, '.')
	if i == -1 {
		return ""
	}
	return name[i:]
}

// decodeUTF8Lenient decodes data as UTF-8, dropping invalid byte
// sequences rather than failing the read, per spec.md §4.2 ("ignoring
// errors").
func decodeUTF8Lenient(data []byte) string {
	return strings.ToValidUTF8(string(data), "")
}
