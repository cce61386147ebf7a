package config

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/seantiz/scribe/internal/session"
	"github.com/seantiz/scribe/internal/store"
)

const (
	defaultListenAddr = ":8080"
	defaultStore      = store.BackendSQLite
	defaultStorePath  = "scribe.db"
	defaultRedisAddr  = "localhost:6379"
	defaultJobTimeout = 60 * time.Second
	defaultSession    = session.ModeAuthorized

	envListenAddr = "SCRIBE_LISTEN_ADDR"
	envStore      = "SCRIBE_STORE"
	envStorePath  = "SCRIBE_STORE_PATH"
	envRedisAddr  = "SCRIBE_REDIS_ADDR"
	envJobTimeout = "SCRIBE_JOB_TIMEOUT"
	envSession    = "SCRIBE_SESSION"
	envLogLevel   = "SCRIBE_LOG_LEVEL"
)

// Config holds application configuration loaded from environment variables.
type Config struct {
	ListenAddr string
	Store      string
	StorePath  string
	RedisAddr  string
	JobTimeout time.Duration
	Session    string
	LogLevel   slog.Level
}

// Load reads configuration from environment variables with sensible defaults.
// Unparseable values fall back to their defaults.
func Load() Config {
	cfg := Config{
		ListenAddr: defaultListenAddr,
		Store:      defaultStore,
		StorePath:  defaultStorePath,
		RedisAddr:  defaultRedisAddr,
		JobTimeout: defaultJobTimeout,
		Session:    defaultSession,
		LogLevel:   slog.LevelInfo,
	}

	if v := os.Getenv(envListenAddr); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv(envStore); v != "" {
		cfg.Store = strings.ToLower(v)
	}
	if v := os.Getenv(envStorePath); v != "" {
		cfg.StorePath = v
	}
	if v := os.Getenv(envRedisAddr); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv(envJobTimeout); v != "" {
		cfg.JobTimeout = parseDuration(v, defaultJobTimeout)
	}
	if v := os.Getenv(envSession); v != "" {
		cfg.Session = strings.ToLower(v)
	}
	if v := os.Getenv(envLogLevel); v != "" {
		cfg.LogLevel = parseLogLevel(v)
	}

	return cfg
}

// StoreOptions returns the options for store.Open.
func (c Config) StoreOptions() store.Options {
	return store.Options{
		Backend:   c.Store,
		Path:      c.StorePath,
		RedisAddr: c.RedisAddr,
	}
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger creates a structured JSON logger writing to w at the configured level.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}
