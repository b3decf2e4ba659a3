package server

import (
	"os"
	"strconv"
	"time"
)

// Profile selects environment-specific defaults.
type Profile string

const (
	ProfileProd Profile = "prod"
	ProfileTest Profile = "test"
)

// Config is the environment-derived server configuration.
type Config struct {
	Profile            Profile
	DBPath             string
	Listen             string
	MigrateTimeout     time.Duration
	SnapshotCacheSize  int
	BroadcastQueueSize int
	BroadcastWorkers   int
	DebugLevel         string
}

// ConfigFromEnv reads configuration from the environment, applying profile
// defaults for anything unset.
func ConfigFromEnv() Config {
	cfg := Config{
		Profile:            ProfileProd,
		DBPath:             envOr("NOMMIE_DB_PATH", envOr("DATABASE_URL", "nommie.sqlite")),
		Listen:             envOr("NOMMIE_LISTEN", "127.0.0.1:8080"),
		MigrateTimeout:     envMillis("NOMMIE_MIGRATE_TIMEOUT_MS", 30*time.Second),
		SnapshotCacheSize:  256,
		BroadcastQueueSize: 1024,
		BroadcastWorkers:   4,
		DebugLevel:         envOr("NOMMIE_DEBUG_LEVEL", "info"),
	}
	if os.Getenv("NOMMIE_PROFILE") == string(ProfileTest) {
		cfg.Profile = ProfileTest
	}
	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envMillis(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	ms, err := strconv.Atoi(v)
	if err != nil || ms <= 0 {
		return fallback
	}
	return time.Duration(ms) * time.Millisecond
}
