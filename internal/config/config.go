// Package config reads the environment-variable configuration described in
// spec.md §6: DATABASE_URL, DB_MAX_CONNECTIONS, PORT.
package config

import (
	"os"
	"strconv"
)

// Config holds the process-level configuration for cmd/server.
type Config struct {
	// DatabaseURL selects the persistent backend when non-empty; the
	// in-memory backend is used otherwise.
	DatabaseURL string
	// MaxConnections bounds the Postgres connection pool.
	MaxConnections int
	// Port is the HTTP listener port.
	Port int
}

// Load reads Config from the process environment, applying the defaults
// from spec.md §6 (DB_MAX_CONNECTIONS=10, PORT=3001).
func Load() Config {
	return Config{
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		MaxConnections: getEnvInt("DB_MAX_CONNECTIONS", 10),
		Port:           getEnvInt("PORT", 3001),
	}
}

// UsePersistentBackend reports whether a persistent (Postgres) event store
// backend should be used, per spec.md §6's "if set, use persistent backend".
func (c Config) UsePersistentBackend() bool {
	return c.DatabaseURL != ""
}

func getEnvInt(key string, fallback int) int {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}
