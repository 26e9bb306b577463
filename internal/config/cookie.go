package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
	"os"
	"strconv"
)

// CookieConfig holds the signing key and lifetime of the language cookie.
type CookieConfig struct {
	Secret     string
	MaxAgeDays int
	// Ephemeral is set when the secret was generated for this process only.
	Ephemeral bool
}

// NewCookieConfig reads COOKIE_SECRET and COOKIE_MAX_AGE_DAYS (default: 365).
// A secret passed in overrides the environment. When neither is set a random
// secret is generated, so cookies stop verifying after a restart.
func NewCookieConfig(secret string) (*CookieConfig, error) {
	if secret == "" {
		secret = os.Getenv("COOKIE_SECRET")
	}

	maxAgeStr := os.Getenv("COOKIE_MAX_AGE_DAYS")
	if maxAgeStr == "" {
		maxAgeStr = "365"
	}
	maxAge, err := strconv.Atoi(maxAgeStr)
	if err != nil {
		return nil, fmt.Errorf("invalid COOKIE_MAX_AGE_DAYS: %v", err)
	}

	cfg := &CookieConfig{Secret: secret, MaxAgeDays: maxAge}
	if cfg.Secret == "" {
		buf := make([]byte, 32)
		if _, err := rand.Read(buf); err != nil {
			return nil, fmt.Errorf("failed to generate cookie secret: %w", err)
		}
		cfg.Secret = hex.EncodeToString(buf)
		cfg.Ephemeral = true
		log.Printf("[config] COOKIE_SECRET not set, using a per-process secret; saved languages will not survive restarts")
	}

	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *CookieConfig) normalize() error {
	if len(c.Secret) < 16 {
		return fmt.Errorf("COOKIE_SECRET must be at least 16 characters")
	}
	if c.MaxAgeDays < 1 {
		return fmt.Errorf("COOKIE_MAX_AGE_DAYS must be at least 1 day, got: %d", c.MaxAgeDays)
	}
	return nil
}
