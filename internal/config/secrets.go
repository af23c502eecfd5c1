package config

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Secrets are read from the environment only.
type Secrets struct {
	PremiumAPIKey string `env:"VERSECAST_PREMIUM_API_KEY"`
	// ProviderAPIKey is the provider's own variable name.
	ProviderAPIKey string `env:"ELEVENLABS_API_KEY"`
}

// APIKey returns the premium key, preferring the versecast variable.
func (s Secrets) APIKey() string {
	if s.PremiumAPIKey != "" {
		return s.PremiumAPIKey
	}
	return s.ProviderAPIKey
}

// LoadSecrets loads the given .env files, if they exist, then parses the
// environment. Variables already set are not overridden.
func LoadSecrets(files ...string) (Secrets, error) {
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Secrets{}, fmt.Errorf("load %s: %w", f, err)
		}
	}
	s, err := env.ParseAs[Secrets]()
	if err != nil {
		return Secrets{}, fmt.Errorf("parse environment: %w", err)
	}
	s.PremiumAPIKey = s.APIKey()
	return s, nil
}
