package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestDefault verifies the production defaults
func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "http://www.iqplus.info/news/stock_news/go-to-page", cfg.ListingURL)
	assert.Equal(t, "iqplus", cfg.Source)
	assert.Equal(t, 5, cfg.MaxPages)
	assert.Equal(t, 1, cfg.StartPage)
	assert.Equal(t, 3, cfg.RetryAttempts)
	assert.Equal(t, "phi3", cfg.OllamaModel)
	assert.Equal(t, "Asia/Jakarta", cfg.Timezone)
}

// TestLoadFile verifies YAML values override defaults and a missing file is
// not an error
func TestLoadFile(t *testing.T) {
	cfg := Default()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("max_pages: 9\nollama_model: llama3\n"), 0o644))

	require.NoError(t, cfg.loadFile(path))
	assert.Equal(t, 9, cfg.MaxPages)
	assert.Equal(t, "llama3", cfg.OllamaModel)
	assert.Equal(t, "iqplus", cfg.Source, "unset fields keep their defaults")

	missing := Default()
	require.NoError(t, missing.loadFile(filepath.Join(t.TempDir(), "absent.yaml")))
	assert.Equal(t, Default(), missing)
}

// TestLoadFile_Invalid verifies a malformed file is rejected
func TestLoadFile_Invalid(t *testing.T) {
	cfg := Default()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("max_pages: [broken"), 0o644))

	assert.Error(t, cfg.loadFile(path))
}

// TestLoadEnv verifies environment overrides
func TestLoadEnv(t *testing.T) {
	t.Setenv("IQNEWS_MAX_PAGES", "7")
	t.Setenv("OLLAMA_API", "http://localhost:11434/api/generate")
	t.Setenv("IQNEWS_TIMEZONE", "UTC")
	t.Setenv("IQNEWS_START_PAGE", "not a number")

	cfg := Default()
	cfg.loadEnv()

	assert.Equal(t, 7, cfg.MaxPages)
	assert.Equal(t, "http://localhost:11434/api/generate", cfg.OllamaEndpoint)
	assert.Equal(t, "UTC", cfg.Timezone)
	assert.Equal(t, 1, cfg.StartPage, "unparseable numbers are ignored")
}

// TestLocation verifies timezone resolution
func TestLocation(t *testing.T) {
	cfg := Default()
	cfg.Timezone = "UTC"
	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, "UTC", loc.String())

	cfg.Timezone = "Not/AZone"
	_, err = cfg.Location()
	assert.Error(t, err)
}
