// Package config loads the handful of environment variables this service
// cares about. Everything else (routing, CORS, the migration runner) is an
// external collaborator and configures itself.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds server-wide settings sourced from the environment.
type Config struct {
	// Port is the TCP port the HTTP server listens on.
	Port string
	// DatabaseURL is a "sqlite:<path>" DSN; only the sqlite scheme is supported.
	DatabaseURL string
	// BuildVersion is stamped on every response via x-build-version.
	BuildVersion string
	// RequestTimeout bounds every handler invocation.
	RequestTimeout time.Duration
	// DBTimeout bounds every individual database call.
	DBTimeout time.Duration
	// ZipTimeout bounds ZIP decompression during ingest.
	ZipTimeout time.Duration
}

// Load reads configuration from the environment, falling back to an .env
// file in the working directory if present (godotenv.Load is a no-op when
// the file doesn't exist and ignores the resulting error, matching how local
// dev environments are usually bootstrapped).
func Load() (*Config, error) {
	_ = godotenv.Load()

	port := firstNonEmpty(os.Getenv("PORT"), os.Getenv("REDGROUSE_BACKEND_PORT"), "3001")
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		dbURL = "sqlite:redgrouse.db"
	}
	build := os.Getenv("BUILD_VERSION")
	if build == "" {
		build = "dev"
	}

	return &Config{
		Port:           port,
		DatabaseURL:    dbURL,
		BuildVersion:   build,
		RequestTimeout: durationEnv("REQUEST_TIMEOUT", 30*time.Second),
		DBTimeout:      durationEnv("DB_TIMEOUT", 10*time.Second),
		ZipTimeout:     durationEnv("ZIP_TIMEOUT", 30*time.Second),
	}, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func durationEnv(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	return def
}

// SQLitePath strips the "sqlite:" scheme prefix from DatabaseURL, returning
// the filesystem path modernc.org/sqlite should open.
func (c *Config) SQLitePath() string {
	const scheme = "sqlite:"
	if len(c.DatabaseURL) > len(scheme) && c.DatabaseURL[:len(scheme)] == scheme {
		return c.DatabaseURL[len(scheme):]
	}
	return c.DatabaseURL
}
