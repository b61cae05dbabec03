// Package config loads ledger-guard configuration from a TOML file with
// environment-variable overrides for deployment secrets.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Config holds all ledger-guard configuration.
type Config struct {
	GCP      GCPConfig      `toml:"gcp"`
	Model    ModelConfig    `toml:"model"`
	Pipeline PipelineConfig `toml:"pipeline"`
	Memory   MemoryConfig   `toml:"memory"`
	Notion   NotionConfig   `toml:"notion"`
}

// GCPConfig holds Google Cloud settings for storage and persistence.
type GCPConfig struct {
	ProjectID string `toml:"project_id"`
	Dataset   string `toml:"dataset"`
	Bucket    string `toml:"bucket"`
}

// ModelConfig holds hosted-model settings.
type ModelConfig struct {
	// Name is the generation model used for parsing and categorization.
	Name string `toml:"name"`
	// EmbeddingModel is used for the similarity cache.
	EmbeddingModel string `toml:"embedding_model"`
	// MaxChars bounds the statement text sent in a single parse request.
	MaxChars int `toml:"max_chars"`
}

// PipelineConfig holds analysis orchestration settings.
type PipelineConfig struct {
	// Permits is the number of concurrent categorization calls in flight.
	Permits int `toml:"permits"`
	// QueueBuffer is the capacity of the in-memory job queue.
	QueueBuffer int `toml:"queue_buffer"`
	// ForecastHorizonMonths is the default projection window.
	ForecastHorizonMonths int `toml:"forecast_horizon_months"`
}

// MemoryConfig holds similarity-cache settings.
type MemoryConfig struct {
	// DBPath is the SQLite file backing the category memory.
	DBPath string `toml:"db_path"`
	// MinSimilarity is the recall threshold for cached categorizations.
	MinSimilarity float64 `toml:"min_similarity"`
}

// NotionConfig holds completion-notice settings. Empty token disables notices.
type NotionConfig struct {
	Token      string `toml:"token,omitempty"`
	DatabaseID string `toml:"database_id,omitempty"`
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		GCP: GCPConfig{
			Dataset: "ledger",
		},
		Model: ModelConfig{
			Name:           "gemini-2.5-flash",
			EmbeddingModel: "gemini-embedding-001",
			MaxChars:       20000,
		},
		Pipeline: PipelineConfig{
			Permits:               3,
			QueueBuffer:           100,
			ForecastHorizonMonths: 3,
		},
		Memory: MemoryConfig{
			DBPath:        "ledger-guard-memory.db",
			MinSimilarity: 0.85,
		},
	}
}

// Load reads the config file at path, returning defaults if it doesn't exist.
// Secrets and deployment identifiers can be supplied via environment instead
// of the file: LEDGER_GUARD_PROJECT, LEDGER_GUARD_BUCKET, NOTION_TOKEN.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return cfg, fmt.Errorf("reading config: %w", err)
		}
	} else if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if v := os.Getenv("LEDGER_GUARD_PROJECT"); v != "" {
		cfg.GCP.ProjectID = v
	}
	if v := os.Getenv("LEDGER_GUARD_BUCKET"); v != "" {
		cfg.GCP.Bucket = v
	}
	if v := os.Getenv("NOTION_TOKEN"); v != "" {
		cfg.Notion.Token = v
	}

	return cfg, nil
}
