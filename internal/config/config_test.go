package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var serverKeys = []string{
	"LISTEN_ADDR", "GIN_MODE", "WORKER_POOL_SIZE", "MAX_CONNECTIONS",
	"READ_TIMEOUT", "WRITE_TIMEOUT", "HEARTBEAT_INTERVAL", "HEARTBEAT_TIMEOUT",
	"REDIS_ADDR", "NATS_URL", "DATABASE_URL",
}

func clearEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
	}
}

func TestLoadServer_Defaults(t *testing.T) {
	clearEnv(t, serverKeys...)

	cfg, err := LoadServer()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.WS.ListenAddr)
	assert.Equal(t, 256, cfg.WS.WorkerPoolSize)
	assert.Equal(t, 30*time.Second, cfg.WS.Heartbeat.Interval)
	assert.Empty(t, cfg.RedisAddr)
	assert.Empty(t, cfg.NATSURL)
	assert.Empty(t, cfg.DatabaseURL)
}

func TestLoadServer_Overrides(t *testing.T) {
	clearEnv(t, serverKeys...)
	t.Setenv("LISTEN_ADDR", ":9000")
	t.Setenv("WORKER_POOL_SIZE", "8")
	t.Setenv("READ_TIMEOUT", "3s")
	t.Setenv("HEARTBEAT_INTERVAL", "5s")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("NATS_URL", "nats://localhost:4222")

	cfg, err := LoadServer()
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.WS.ListenAddr)
	assert.Equal(t, 8, cfg.WS.WorkerPoolSize)
	assert.Equal(t, 3*time.Second, cfg.WS.ReadTimeout)
	assert.Equal(t, 5*time.Second, cfg.WS.Heartbeat.Interval)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
	assert.Equal(t, "nats://localhost:4222", cfg.NATSURL)
}

func TestLoadServer_Invalid(t *testing.T) {
	tests := []struct{ key, value string }{
		{"WORKER_POOL_SIZE", "zero"},
		{"MAX_CONNECTIONS", "-1"},
		{"WRITE_TIMEOUT", "soon"},
		{"HEARTBEAT_TIMEOUT", "-5s"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			clearEnv(t, serverKeys...)
			t.Setenv(tt.key, tt.value)
			_, err := LoadServer()
			assert.Error(t, err)
		})
	}
}

func TestLoadClient(t *testing.T) {
	clearEnv(t, "DRIFT_SERVER_URL", "DRIFT_WAIT", "DRIFT_TYPING_IDLE")

	cfg, err := LoadClient()
	require.NoError(t, err)
	assert.Equal(t, "ws://localhost:8080/ws", cfg.ServerURL)
	assert.Zero(t, cfg.Wait)
	assert.Equal(t, time.Second, cfg.TypingIdle)

	t.Setenv("DRIFT_WAIT", "15s")
	cfg, err = LoadClient()
	require.NoError(t, err)
	assert.Equal(t, 15*time.Second, cfg.Wait)
}

func TestLoadDotEnv_DoesNotOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(path, []byte("LISTEN_ADDR=:7000\nNATS_URL=nats://from-file:4222\n"), 0o600))

	clearEnv(t, serverKeys...)
	t.Setenv("LISTEN_ADDR", ":6000")
	require.NoError(t, os.Unsetenv("NATS_URL"))

	LoadDotEnv(path, filepath.Join(dir, "missing.env"))
	t.Cleanup(func() { os.Unsetenv("NATS_URL") })

	cfg, err := LoadServer()
	require.NoError(t, err)
	assert.Equal(t, ":6000", cfg.WS.ListenAddr)
	assert.Equal(t, "nats://from-file:4222", cfg.NATSURL)
}
