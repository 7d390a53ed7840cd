package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/eldtechnologies/messenger/internal/store"
)

// Config holds all configuration for the application.
type Config struct {
	Port     string
	Env      string
	RedisURL string // optional: summary cache and rate limiting
	NodeID   int64  // snowflake node, unique per running instance

	// Store
	StoreBackend               string
	CassandraHosts             []string
	CassandraPort              int
	CassandraKeyspace          string
	CassandraReplicationFactor int
	CassandraConsistency       string
	DatabaseURL                string
	SQLitePath                 string

	// Connection bootstrap and per-operation retry
	ConnectAttempts       int
	ConnectInitialBackoff time.Duration
	ConnectMaxBackoff     time.Duration
	OpRetries             int

	// Rate limiting
	RateLimitWhitelist []string // IPs or CIDRs exempt from rate limiting
}

// Load reads configuration from environment variables.
// In development, it loads from .env file if present.
func Load() (*Config, error) {
	// Load .env file if it exists (for development)
	_ = godotenv.Load()

	cfg := &Config{
		Port:                 getEnv("PORT", "8000"),
		Env:                  getEnv("ENV", "development"),
		RedisURL:             os.Getenv("REDIS_URL"),
		StoreBackend:         getEnv("STORE_BACKEND", store.BackendCassandra),
		CassandraKeyspace:    getEnv("CASSANDRA_KEYSPACE", "messenger"),
		CassandraConsistency: getEnv("CASSANDRA_CONSISTENCY", "QUORUM"),
		DatabaseURL:          os.Getenv("DATABASE_URL"),
		SQLitePath:           getEnv("SQLITE_PATH", "./data/messenger.db"),
	}

	cfg.CassandraHosts = splitList(getEnv("CASSANDRA_HOST", "localhost"))

	var err error
	if cfg.CassandraPort, err = getEnvInt("CASSANDRA_PORT", 9042); err != nil {
		return nil, err
	}
	if cfg.CassandraReplicationFactor, err = getEnvInt("CASSANDRA_REPLICATION_FACTOR", 3); err != nil {
		return nil, err
	}
	if cfg.ConnectAttempts, err = getEnvInt("CONNECT_ATTEMPTS", 10); err != nil {
		return nil, err
	}
	if cfg.OpRetries, err = getEnvInt("OP_RETRIES", 3); err != nil {
		return nil, err
	}
	if cfg.ConnectInitialBackoff, err = getEnvDuration("CONNECT_INITIAL_BACKOFF", 5*time.Second); err != nil {
		return nil, err
	}
	if cfg.ConnectMaxBackoff, err = getEnvDuration("CONNECT_MAX_BACKOFF", 30*time.Second); err != nil {
		return nil, err
	}

	nodeID, err := getEnvInt("NODE_ID", 0)
	if err != nil {
		return nil, err
	}
	cfg.NodeID = int64(nodeID)

	// Parse whitelist (comma-separated IPs or CIDRs)
	cfg.RateLimitWhitelist = splitList(os.Getenv("RATE_LIMIT_WHITELIST"))

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.StoreBackend {
	case store.BackendCassandra:
		if len(c.CassandraHosts) == 0 {
			return fmt.Errorf("CASSANDRA_HOST is required for the cassandra backend")
		}
	case store.BackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres backend")
		}
	case store.BackendSQLite:
	default:
		return fmt.Errorf("STORE_BACKEND must be cassandra, postgres or sqlite, got %q", c.StoreBackend)
	}

	if c.NodeID < 0 || c.NodeID > 1023 {
		return fmt.Errorf("NODE_ID must be between 0 and 1023, got %d", c.NodeID)
	}
	if c.ConnectAttempts < 1 {
		return fmt.Errorf("CONNECT_ATTEMPTS must be at least 1, got %d", c.ConnectAttempts)
	}
	if c.OpRetries < 0 {
		return fmt.Errorf("OP_RETRIES must not be negative, got %d", c.OpRetries)
	}

	// In production, a missing cache means no rate limiting
	if c.Env == "production" && c.RedisURL == "" {
		return fmt.Errorf("REDIS_URL is required in production")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// StoreConfig returns the settings the store gateway needs.
func (c *Config) StoreConfig() store.Config {
	return store.Config{
		Backend:               c.StoreBackend,
		CassandraHosts:        c.CassandraHosts,
		CassandraPort:         c.CassandraPort,
		Keyspace:              c.CassandraKeyspace,
		ReplicationFactor:     c.CassandraReplicationFactor,
		Consistency:           c.CassandraConsistency,
		DatabaseURL:           c.DatabaseURL,
		SQLitePath:            c.SQLitePath,
		ConnectAttempts:       c.ConnectAttempts,
		ConnectInitialBackoff: c.ConnectInitialBackoff,
		ConnectMaxBackoff:     c.ConnectMaxBackoff,
		OpRetries:             c.OpRetries,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %q is not an integer", key, value)
	}
	return n, nil
}

// getEnvDuration accepts Go durations ("750ms") or plain seconds ("5").
func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %q is not a duration", key, value)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, entry := range strings.Split(s, ",") {
		entry = strings.TrimSpace(entry)
		if entry != "" {
			out = append(out, entry)
		}
	}
	return out
}
