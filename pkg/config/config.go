// Package config loads VibeCheck's environment-driven configuration.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every environment-sourced setting VibeCheck needs, per
// spec.md §6.
type Config struct {
	DatabaseURL string

	GeminiAPIKey string
	GeminiModel  string

	OpenAIAPIKey string
	OpenAIModel  string

	CloneDir string
	Debug    bool

	// HTTPAddr is the address the REST server listens on. Not in spec.md's
	// env var list verbatim but needed to run the server; defaults match
	// the teacher's own "::8080"-style default.
	HTTPAddr string

	Retention RetentionConfig
}

// RetentionConfig governs the background cleanup loop (pkg/cleanup),
// mirroring the teacher's own session-retention settings.
type RetentionConfig struct {
	AssessmentRetention time.Duration
	TunnelSessionTTL    time.Duration
	CleanupInterval     time.Duration
}

const (
	defaultGeminiModel = "gemini-2.5-flash"
	defaultCloneDir    = "/tmp/vibecheck-repos"
	defaultHTTPAddr    = ":8080"

	defaultAssessmentRetention = 30 * 24 * time.Hour
	defaultTunnelSessionTTL    = 24 * time.Hour
	defaultCleanupInterval     = time.Hour
)

// Load reads .env (if present, via godotenv) then the process environment,
// the same two-step the teacher's cmd/tarsy/main.go performs before
// constructing its own Config.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("failed to load .env file", "error", err)
	}

	cfg := &Config{
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		GeminiAPIKey: os.Getenv("GEMINI_API_KEY"),
		GeminiModel:  envOr("GEMINI_MODEL", defaultGeminiModel),
		OpenAIAPIKey: os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:  os.Getenv("OPENAI_MODEL"),
		CloneDir:     envOr("CLONE_DIR", defaultCloneDir),
		Debug:        os.Getenv("DEBUG") == "true" || os.Getenv("DEBUG") == "1",
		HTTPAddr:     envOr("VIBECHECK_HTTP_ADDR", defaultHTTPAddr),
		Retention: RetentionConfig{
			AssessmentRetention: envOrDuration("ASSESSMENT_RETENTION", defaultAssessmentRetention),
			TunnelSessionTTL:    envOrDuration("TUNNEL_SESSION_TTL", defaultTunnelSessionTTL),
			CleanupInterval:     envOrDuration("CLEANUP_INTERVAL", defaultCleanupInterval),
		},
	}

	if cfg.DatabaseURL == "" {
		return nil, &LoadError{Field: "DATABASE_URL", Err: fmt.Errorf("must be set")}
	}

	return cfg, nil
}

// HasLLM reports whether any LLM API key is configured — the gate the
// lightweight orchestrator's contextual analyzer and the robust
// orchestrator's GEMINI_API_KEY_MISSING precondition both consult.
func (c *Config) HasLLM() bool {
	return c.GeminiAPIKey != "" || c.OpenAIAPIKey != ""
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		slog.Warn("invalid duration env var, using default", "key", key, "value", v, "error", err)
		return fallback
	}
	return d
}

// LoadError wraps a missing/invalid configuration field, mirroring the
// teacher's pkg/config/errors.go LoadError shape.
type LoadError struct {
	Field string
	Err   error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("config: %s: %v", e.Field, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// CloneTimeout is the wall-clock bound on shallow repo clones (spec.md §5).
const CloneTimeout = 60 * time.Second

// TunnelAwaitTimeout bounds proxy_request (spec.md §5 / §4.8).
const TunnelAwaitTimeout = 15 * time.Second

// AgentProbeTimeout bounds the robust agent's http_request tool (spec.md §5).
const AgentProbeTimeout = 10 * time.Second

// MCPProbeTimeout bounds the MCP-client-facing probe (spec.md §5).
const MCPProbeTimeout = 30 * time.Second
