// Package config reads process configuration from the environment. A .env
// file in the working directory, if present, is loaded first; variables
// already set in the environment win.
package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/orbit/chat-app/internal/ws"
)

// Server is the configuration of cmd/wsserver.
type Server struct {
	WS          ws.ServerConfig
	RedisAddr   string // empty disables rate limiting
	NATSURL     string // empty disables event publishing
	DatabaseURL string // empty keeps reports in the log only
}

// Client is the configuration of cmd/drift.
type Client struct {
	ServerURL  string
	Wait       time.Duration // 0 waits forever before expanding the search
	TypingIdle time.Duration
}

// LoadDotEnv loads files (default ".env") into the environment without
// overriding existing variables. A missing file is not an error.
func LoadDotEnv(files ...string) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !os.IsNotExist(err) {
			log.Printf("[config] could not load %s: %v", f, err)
		}
	}
}

// LoadServer builds the server configuration from the environment.
func LoadServer() (Server, error) {
	cfg := Server{WS: ws.DefaultServerConfig()}
	var err error

	cfg.WS.ListenAddr = str("LISTEN_ADDR", cfg.WS.ListenAddr)
	cfg.WS.GinMode = str("GIN_MODE", cfg.WS.GinMode)
	if cfg.WS.WorkerPoolSize, err = positiveInt("WORKER_POOL_SIZE", cfg.WS.WorkerPoolSize); err != nil {
		return Server{}, err
	}
	if cfg.WS.MaxConnections, err = positiveInt("MAX_CONNECTIONS", cfg.WS.MaxConnections); err != nil {
		return Server{}, err
	}
	if cfg.WS.ReadTimeout, err = duration("READ_TIMEOUT", cfg.WS.ReadTimeout); err != nil {
		return Server{}, err
	}
	if cfg.WS.WriteTimeout, err = duration("WRITE_TIMEOUT", cfg.WS.WriteTimeout); err != nil {
		return Server{}, err
	}
	if cfg.WS.Heartbeat.Interval, err = duration("HEARTBEAT_INTERVAL", cfg.WS.Heartbeat.Interval); err != nil {
		return Server{}, err
	}
	if cfg.WS.Heartbeat.Timeout, err = duration("HEARTBEAT_TIMEOUT", cfg.WS.Heartbeat.Timeout); err != nil {
		return Server{}, err
	}

	cfg.RedisAddr = str("REDIS_ADDR", "")
	cfg.NATSURL = str("NATS_URL", "")
	cfg.DatabaseURL = str("DATABASE_URL", "")
	return cfg, nil
}

// LoadClient builds the client configuration from the environment.
func LoadClient() (Client, error) {
	cfg := Client{
		ServerURL:  str("DRIFT_SERVER_URL", "ws://localhost:8080/ws"),
		TypingIdle: time.Second,
	}
	var err error
	if cfg.Wait, err = duration("DRIFT_WAIT", 0); err != nil {
		return Client{}, err
	}
	if cfg.TypingIdle, err = duration("DRIFT_TYPING_IDLE", cfg.TypingIdle); err != nil {
		return Client{}, err
	}
	return cfg, nil
}

func str(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func positiveInt(key string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("config: %s must be a positive integer, got %q", key, v)
	}
	return n, nil
}

func duration(key string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("config: %s must be a non-negative duration, got %q", key, v)
	}
	return d, nil
}
