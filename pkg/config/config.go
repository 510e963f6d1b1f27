// Package config holds the runtime configuration for the server.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config carries everything the server reads from flags and the environment.
type Config struct {
	Debug bool
	Port  string

	// RedisURL points at the durable game-record store. Empty means the
	// server keeps records in memory only.
	RedisURL string

	// DatabaseURL enables the Postgres archive of finished games. Optional.
	DatabaseURL string

	APIKeys []string

	// Defaults applied when a game record carries no time control.
	DefaultInitialTime time.Duration
	DefaultIncrement   time.Duration

	// ReconnectGrace is how long a disconnected player may be away during an
	// active game before the game is forfeited as abandoned.
	ReconnectGrace time.Duration

	// ReconcileThreshold bounds how far a client-reported clock value may
	// deviate from the authoritative clock before it is discarded.
	ReconcileThreshold time.Duration

	// RetentionWindow is how long a finished session stays resident for late
	// reads before it is removed from the session store.
	RetentionWindow time.Duration

	// RecordTTL is the expiry applied to game records in redis.
	RecordTTL time.Duration
}

// FromEnv fills in everything not set by flags from the environment,
// falling back to defaults suitable for development.
func (c *Config) FromEnv() {
	c.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))
	c.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))

	if envAPIKeys := os.Getenv("API_KEYS"); envAPIKeys != "" {
		for _, key := range strings.Split(envAPIKeys, ",") {
			if key = strings.TrimSpace(key); key != "" {
				c.APIKeys = append(c.APIKeys, key)
			}
		}
	}

	c.DefaultInitialTime = envDuration("DEFAULT_INITIAL_TIME_SEC", 600*time.Second)
	c.DefaultIncrement = envDuration("DEFAULT_INCREMENT_SEC", 0)
	c.ReconnectGrace = envDuration("RECONNECT_GRACE_SEC", 30*time.Second)
	c.ReconcileThreshold = envDuration("CLOCK_RECONCILE_THRESHOLD_SEC", 5*time.Second)
	c.RetentionWindow = envDuration("SESSION_RETENTION_SEC", 60*time.Second)
	c.RecordTTL = envDuration("RECORD_TTL_SEC", 24*3600*time.Second)
}

func envDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return time.Duration(n) * time.Second
}
