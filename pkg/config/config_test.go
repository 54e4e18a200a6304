package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	_, err := Load()
	require.Error(t, err)
	var loadErr *LoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Equal(t, "DATABASE_URL", loadErr.Field)
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/vibecheck")
	t.Setenv("GEMINI_MODEL", "")
	t.Setenv("CLONE_DIR", "")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, defaultGeminiModel, cfg.GeminiModel)
	assert.Equal(t, defaultCloneDir, cfg.CloneDir)
	assert.False(t, cfg.HasLLM())
}

func TestConfig_HasLLM(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/vibecheck")
	t.Setenv("GEMINI_API_KEY", "test-key")
	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.HasLLM())
}
