package main

import (
	"context"
	"fmt"
	"log"

	"github.com/jonathan/internship-compass/internal/catalog"
	"github.com/jonathan/internship-compass/internal/config"
	"github.com/jonathan/internship-compass/internal/db"
	"github.com/jonathan/internship-compass/internal/llm"
)

// loadConfig merges the config file, if any, over environment values and defaults.
func loadConfig(path string) (config.Config, error) {
	defaults := config.FromEnv()
	defaults.Port = 8080
	defaults.SessionTTLMinutes = 30

	if path == "" {
		return defaults, defaults.Validate()
	}

	fileCfg, err := config.LoadConfig(path)
	if err != nil {
		return config.Config{}, err
	}
	if err := fileCfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return fileCfg.MergeWithDefaults(defaults), nil
}

// llmConfig applies model overrides to the default tiers.
func llmConfig(cfg config.Config) *llm.Config {
	out := llm.DefaultConfig().
		WithModel(llm.TierStandard, cfg.RankingModel).
		WithModel(llm.TierLite, cfg.TranslationModel)
	if cfg.Temperature > 0 {
		out.Temperature = cfg.Temperature
	}
	return out
}

func newLLMClient(ctx context.Context, cfg config.Config) (llm.Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY environment variable is required")
	}
	client, err := llm.NewClient(ctx, llmConfig(cfg), cfg.APIKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM client: %w", err)
	}
	return client, nil
}

// loadCatalog returns the embedded catalog, or the database catalog when a
// database URL is configured. The returned func releases the connection.
func loadCatalog(ctx context.Context, cfg config.Config) (*catalog.Catalog, func(), error) {
	if cfg.DatabaseURL == "" {
		cat, err := catalog.Default()
		return cat, func() {}, err
	}

	database, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	if err := database.EnsureSchema(ctx); err != nil {
		database.Close()
		return nil, nil, err
	}

	if cfg.SeedCatalog {
		if err := seedCatalog(ctx, database); err != nil {
			database.Close()
			return nil, nil, err
		}
	}

	cat, err := catalog.Load(ctx, database)
	if err != nil {
		database.Close()
		return nil, nil, err
	}
	log.Printf("[catalog] loaded %d internships from database", cat.Len())
	return cat, database.Close, nil
}

func seedCatalog(ctx context.Context, database *db.DB) error {
	internships, sectors, err := catalog.Embedded()
	if err != nil {
		return err
	}
	if err := database.SeedCatalog(ctx, sectors, internships); err != nil {
		return fmt.Errorf("failed to seed catalog: %w", err)
	}
	log.Printf("[catalog] seeded %d internships and %d sectors", len(internships), len(sectors))
	return nil
}
