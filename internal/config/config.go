// Package config provides configuration management for Engram.
// It loads settings from environment variables with the ENGRAM_ prefix
// and provides sensible defaults for all configuration options.
package config

import (
	"os"
	"strconv"
)

// Config holds all configuration settings for the Engram application.
type Config struct {
	Server    ServerConfig
	Storage   StorageConfig
	Embedding EmbeddingConfig
	Security  SecurityConfig
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Port int    // Server port (default: 7411)
	Host string // Server host (default: 127.0.0.1)
}

// StorageConfig contains database and storage configuration.
type StorageConfig struct {
	Engine      string // Storage engine: sqlite, postgres (default: sqlite)
	SQLitePath  string // Path to the SQLite database file (default: ./data/engram.db)
	PostgresDSN string // PostgreSQL connection string
}

// EmbeddingConfig contains embedding provider configuration.
type EmbeddingConfig struct {
	Provider     string // Embedding provider: ollama, openai, none (default: ollama)
	OllamaURL    string // Ollama API URL (default: http://localhost:11434)
	OllamaModel  string // Ollama embedding model (default: nomic-embed-text)
	OpenAIAPIKey string // OpenAI API key
	OpenAIModel  string // OpenAI embedding model (default: text-embedding-3-small)
}

// SecurityConfig contains security and rate-limiting settings.
type SecurityConfig struct {
	Mode           string  // Security mode: development, production (default: development)
	APIToken       string  // API authentication token (required in production)
	RateLimitRPS   float64 // Sustained request rate per second (default: 25)
	RateLimitBurst int     // Maximum burst size (default: 50)
}

// Load builds a Config from environment variables with defaults.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port: getEnvInt("ENGRAM_PORT", 7411),
			Host: getEnv("ENGRAM_HOST", "127.0.0.1"),
		},
		Storage: StorageConfig{
			Engine:      getEnv("ENGRAM_STORAGE_ENGINE", "sqlite"),
			SQLitePath:  getEnv("ENGRAM_SQLITE_PATH", "./data/engram.db"),
			PostgresDSN: getEnv("ENGRAM_POSTGRES_DSN", ""),
		},
		Embedding: EmbeddingConfig{
			Provider:     getEnv("ENGRAM_EMBEDDING_PROVIDER", "ollama"),
			OllamaURL:    getEnv("ENGRAM_OLLAMA_URL", "http://localhost:11434"),
			OllamaModel:  getEnv("ENGRAM_EMBEDDING_MODEL", "nomic-embed-text"),
			OpenAIAPIKey: getEnv("ENGRAM_OPENAI_API_KEY", ""),
			OpenAIModel:  getEnv("ENGRAM_OPENAI_EMBEDDING_MODEL", "text-embedding-3-small"),
		},
		Security: SecurityConfig{
			Mode:           getEnv("ENGRAM_SECURITY_MODE", "development"),
			APIToken:       getEnv("ENGRAM_API_TOKEN", ""),
			RateLimitRPS:   getEnvFloat("ENGRAM_RATE_LIMIT_RPS", 25),
			RateLimitBurst: getEnvInt("ENGRAM_RATE_LIMIT_BURST", 50),
		},
	}
}

// getEnv retrieves a string environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns a default
// value. If the variable exists but cannot be parsed, the default is used.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvFloat retrieves a float environment variable or returns a default
// value. If the variable exists but cannot be parsed, the default is used.
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}
