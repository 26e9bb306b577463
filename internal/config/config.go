// Package config provides configuration loading and validation for the server.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jonathan/internship-compass/internal/i18n"
)

// Config represents the server configuration that can be loaded from a JSON file.
// All fields are optional; missing values use defaults, flags, or environment variables.
type Config struct {
	Port            int    `json:"port,omitempty"`
	DefaultLanguage string `json:"default_language,omitempty"` // Language new visitors start in
	DatabaseURL     string `json:"database_url,omitempty"`     // PostgreSQL catalog source
	CookieSecret    string `json:"cookie_secret,omitempty"`    // HMAC key for the language cookie

	// Model overrides
	APIKey           string  `json:"api_key,omitempty"`           // Gemini API key
	RankingModel     string  `json:"ranking_model,omitempty"`     // Standard tier override
	TranslationModel string  `json:"translation_model,omitempty"` // Lite tier override
	Temperature      float32 `json:"temperature,omitempty"`

	SessionTTLMinutes int  `json:"session_ttl_minutes,omitempty"`
	SeedCatalog       bool `json:"seed_catalog,omitempty"` // Write the embedded catalog to the database on startup
	Verbose           bool `json:"verbose,omitempty"`
}

// LoadConfig loads configuration from a JSON file.
// Returns an error if the file cannot be read or parsed.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config path is empty")
	}

	if !filepath.IsAbs(path) {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
		path = filepath.Join(cwd, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	return &cfg, nil
}

// Validate checks that the configuration has valid values.
// Required values such as the API key are checked by the command after merging.
func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("config error: 'port' must be between 0 and 65535, got %d", c.Port)
	}
	if c.SessionTTLMinutes < 0 {
		return fmt.Errorf("config error: 'session_ttl_minutes' must be non-negative")
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("config error: 'temperature' must be between 0 and 2")
	}
	if c.DefaultLanguage != "" {
		if _, ok := i18n.Normalize(c.DefaultLanguage); !ok {
			return fmt.Errorf("config error: unsupported default_language %q", c.DefaultLanguage)
		}
	}
	return nil
}

// MergeWithDefaults returns a new Config with empty fields filled from defaults.
func (c *Config) MergeWithDefaults(defaults Config) Config {
	result := *c

	if result.Port == 0 {
		result.Port = defaults.Port
	}
	if result.DefaultLanguage == "" {
		result.DefaultLanguage = defaults.DefaultLanguage
	}
	if result.DatabaseURL == "" {
		result.DatabaseURL = defaults.DatabaseURL
	}
	if result.CookieSecret == "" {
		result.CookieSecret = defaults.CookieSecret
	}
	if result.APIKey == "" {
		result.APIKey = defaults.APIKey
	}
	if result.RankingModel == "" {
		result.RankingModel = defaults.RankingModel
	}
	if result.TranslationModel == "" {
		result.TranslationModel = defaults.TranslationModel
	}
	if result.Temperature == 0 {
		result.Temperature = defaults.Temperature
	}
	if result.SessionTTLMinutes == 0 {
		result.SessionTTLMinutes = defaults.SessionTTLMinutes
	}

	// Bool fields: cannot distinguish unset from false, so flags win

	return result
}

// FromEnv returns the values set through environment variables.
func FromEnv() Config {
	return Config{
		APIKey:       os.Getenv("GEMINI_API_KEY"),
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		CookieSecret: os.Getenv("COOKIE_SECRET"),
	}
}
