package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eldtechnologies/messenger/internal/store"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("STORE_BACKEND", "")
	t.Setenv("ENV", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8000", cfg.Port)
	assert.True(t, cfg.IsDevelopment())
	assert.Equal(t, store.BackendCassandra, cfg.StoreBackend)
	assert.Equal(t, []string{"localhost"}, cfg.CassandraHosts)
	assert.Equal(t, 9042, cfg.CassandraPort)
	assert.Equal(t, 3, cfg.CassandraReplicationFactor)
	assert.Equal(t, 10, cfg.ConnectAttempts)
	assert.Equal(t, 5*time.Second, cfg.ConnectInitialBackoff)
	assert.Equal(t, 30*time.Second, cfg.ConnectMaxBackoff)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("STORE_BACKEND", "sqlite")
	t.Setenv("CASSANDRA_HOST", "cass-1, cass-2")
	t.Setenv("CONNECT_INITIAL_BACKOFF", "250ms")
	t.Setenv("CONNECT_MAX_BACKOFF", "7")
	t.Setenv("NODE_ID", "12")
	t.Setenv("RATE_LIMIT_WHITELIST", "10.0.0.0/8, 127.0.0.1")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"cass-1", "cass-2"}, cfg.CassandraHosts)
	assert.Equal(t, 250*time.Millisecond, cfg.ConnectInitialBackoff)
	assert.Equal(t, 7*time.Second, cfg.ConnectMaxBackoff)
	assert.Equal(t, int64(12), cfg.NodeID)
	assert.Equal(t, []string{"10.0.0.0/8", "127.0.0.1"}, cfg.RateLimitWhitelist)

	sc := cfg.StoreConfig()
	assert.Equal(t, store.BackendSQLite, sc.Backend)
	assert.Equal(t, cfg.CassandraKeyspace, sc.Keyspace)
	assert.Equal(t, 250*time.Millisecond, sc.ConnectInitialBackoff)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"unknown backend", map[string]string{"STORE_BACKEND": "mongodb"}},
		{"postgres without url", map[string]string{"STORE_BACKEND": "postgres", "DATABASE_URL": ""}},
		{"bad port", map[string]string{"CASSANDRA_PORT": "ninety"}},
		{"node id out of range", map[string]string{"NODE_ID": "2048"}},
		{"bad duration", map[string]string{"CONNECT_MAX_BACKOFF": "soon"}},
		{"production without redis", map[string]string{"ENV": "production", "REDIS_URL": ""}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
