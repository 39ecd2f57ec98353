// Package config holds the pipeline configuration. One Config is built at
// startup and threaded explicitly through every component constructor; there
// is no ambient global state.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full pipeline configuration.
type Config struct {
	// ListingURL is the listing URL prefix; page N is "<ListingURL>,N.html".
	ListingURL string `yaml:"listing_url"`

	// Source is the source label stamped on extracted articles.
	Source string `yaml:"source"`

	// MaxPages is the pagination ceiling per crawl.
	MaxPages int `yaml:"max_pages"`

	// StartPage is the first listing page visited.
	StartPage int `yaml:"start_page"`

	// RetryAttempts bounds page-load retries.
	RetryAttempts int `yaml:"retry_attempts"`

	// StoreDSN is the document store path.
	StoreDSN string `yaml:"store_dsn"`

	// DataDir receives the per-stage JSON hand-off files.
	DataDir string `yaml:"data_dir"`

	// OllamaEndpoint is the generate endpoint of the analysis model.
	OllamaEndpoint string `yaml:"ollama_endpoint"`

	// OllamaModel names the model used for analysis.
	OllamaModel string `yaml:"ollama_model"`

	// Timezone is the IANA zone the pipeline's "yesterday" is computed in.
	Timezone string `yaml:"timezone"`
}

// Default returns the production defaults.
func Default() Config {
	return Config{
		ListingURL:     "http://www.iqplus.info/news/stock_news/go-to-page",
		Source:         "iqplus",
		MaxPages:       5,
		StartPage:      1,
		RetryAttempts:  3,
		StoreDSN:       "iqnews.db",
		DataDir:        "data",
		OllamaEndpoint: "http://ollama:11434/api/generate",
		OllamaModel:    "phi3",
		Timezone:       "Asia/Jakarta",
	}
}

// Load builds the configuration: defaults, overridden by ~/.iqnews/config.yaml
// when present, overridden in turn by environment variables.
func Load() (Config, error) {
	cfg := Default()

	homeDir, err := os.UserHomeDir()
	if err == nil {
		path := filepath.Join(homeDir, ".iqnews", "config.yaml")
		if err := cfg.loadFile(path); err != nil {
			return Config{}, err
		}
	}

	cfg.loadEnv()
	return cfg, nil
}

// loadFile merges a YAML config file into cfg. A missing file is not an
// error; an unparseable one is.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

// loadEnv applies environment variable overrides.
func (c *Config) loadEnv() {
	setString(&c.ListingURL, "IQNEWS_LISTING_URL")
	setString(&c.Source, "IQNEWS_SOURCE")
	setInt(&c.MaxPages, "IQNEWS_MAX_PAGES")
	setInt(&c.StartPage, "IQNEWS_START_PAGE")
	setInt(&c.RetryAttempts, "IQNEWS_RETRY_ATTEMPTS")
	setString(&c.StoreDSN, "IQNEWS_STORE_DSN")
	setString(&c.DataDir, "IQNEWS_DATA_DIR")
	setString(&c.OllamaEndpoint, "OLLAMA_API")
	setString(&c.OllamaModel, "OLLAMA_MODEL")
	setString(&c.Timezone, "IQNEWS_TIMEZONE")
}

// Location resolves the configured timezone.
func (c Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

func setString(dst *string, key string) {
	if value := os.Getenv(key); value != "" {
		*dst = value
	}
}

func setInt(dst *int, key string) {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			*dst = n
		}
	}
}
