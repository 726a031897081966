// Package config loads server configuration from the environment and
// engine profiles from YAML.
package config

import "os"

// Config holds server configuration.
type Config struct {
	Port        string
	LogLevel    string
	DatabaseURL string
	StorePath   string
	ProfilesDir string
}

// Load loads configuration from environment variables.
func Load() *Config {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "INFO"
	}

	storePath := os.Getenv("STORE_PATH")
	if storePath == "" {
		storePath = "psur-regos.db"
	}

	profilesDir := os.Getenv("PROFILES_DIR")
	if profilesDir == "" {
		profilesDir = "profiles"
	}

	return &Config{
		Port:        port,
		LogLevel:    logLevel,
		DatabaseURL: os.Getenv("DATABASE_URL"),
		StorePath:   storePath,
		ProfilesDir: profilesDir,
	}
}
