package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds everything the service reads from the environment. A .env
// file in the working directory is merged in first when present.
type Config struct {
	Addr          string
	BaseURL       string
	StoreDSN      string
	Serializer    string
	NoteTemplate  string
	SessionSecret string

	DocstoreURL   string
	DocstoreToken string

	AutoLinks    bool
	LinkInterval time.Duration
	CustomField  string
}

func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := Config{
		Addr:          stringEnv("ANNOSYNC_ADDR", ":8090"),
		BaseURL:       os.Getenv("ANNOSYNC_BASE_URL"),
		StoreDSN:      stringEnv("ANNOSYNC_STORE_DSN", "notes://"),
		Serializer:    stringEnv("ANNOSYNC_SERIALIZER", "85gj"),
		NoteTemplate:  os.Getenv("ANNOSYNC_NOTE_TEMPLATE"),
		SessionSecret: os.Getenv("ANNOSYNC_SESSION_SECRET"),
		DocstoreURL:   os.Getenv("DOCSTORE_URL"),
		DocstoreToken: os.Getenv("DOCSTORE_TOKEN"),
		AutoLinks:     boolEnv("ANNOSYNC_AUTO_LINKS", false),
		LinkInterval:  durationEnv("ANNOSYNC_LINK_INTERVAL", 30*time.Minute),
		CustomField:   stringEnv("ANNOSYNC_CUSTOM_FIELD", "Annotations"),
	}
	return cfg, cfg.validate()
}

func (c Config) validate() error {
	if c.DocstoreURL == "" {
		return errors.New("config: DOCSTORE_URL is required")
	}
	if c.DocstoreToken == "" {
		return errors.New("config: DOCSTORE_TOKEN is required")
	}
	if c.SessionSecret == "" {
		return errors.New("config: ANNOSYNC_SESSION_SECRET is required")
	}
	if c.AutoLinks && c.BaseURL == "" {
		return errors.New("config: ANNOSYNC_BASE_URL is required when ANNOSYNC_AUTO_LINKS is set")
	}
	return nil
}

func stringEnv(name, fallback string) string {
	if value := os.Getenv(name); value != "" {
		return value
	}
	return fallback
}

func boolEnv(name string, fallback bool) bool {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return value
}

func durationEnv(name string, fallback time.Duration) time.Duration {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return value
}
