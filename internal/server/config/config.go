package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	defaultDBPath            = "~/.eventworks/journal.db"
	defaultAPIPort           = "7788"
	defaultAPIListenAddr     = "127.0.0.1:" + defaultAPIPort
	defaultMetricsListenAddr = "127.0.0.1:7789"
	defaultDispatch          = DispatchAsync
	defaultJournalRetention  = 10000
	defaultLogLevel          = "info"
)

// Dispatch modes for the daemon's registry.
const (
	DispatchAsync = "async"
	DispatchSync  = "sync"
)

// ServerConfig captures the runtime configuration required by the daemon.
type ServerConfig struct {
	DatabasePath      string
	APIListenAddr     string
	MetricsListenAddr string
	Dispatch          string
	JournalRetention  int
	LogLevel          string
	APIKey            string
	AllowCIDRs        []string
}

// FromEnv loads server configuration from environment variables, applying
// opinionated defaults when unset.
func FromEnv() (ServerConfig, error) {
	cfg := ServerConfig{
		DatabasePath:      expandPath(getenv("EVENTWORKS_DB_PATH", defaultDBPath)),
		APIListenAddr:     strings.TrimSpace(getenv("EVENTWORKS_API_LISTEN", defaultAPIListenAddr)),
		MetricsListenAddr: strings.TrimSpace(getenv("EVENTWORKS_METRICS_LISTEN", defaultMetricsListenAddr)),
		Dispatch:          strings.ToLower(strings.TrimSpace(getenv("EVENTWORKS_DISPATCH", defaultDispatch))),
		LogLevel:          getenv("EVENTWORKS_LOG_LEVEL", defaultLogLevel),
		APIKey:            strings.TrimSpace(os.Getenv("EVENTWORKS_API_KEY")),
		AllowCIDRs:        splitList(os.Getenv("EVENTWORKS_API_ALLOW_CIDR")),
	}

	retention, err := strconv.Atoi(getenv("EVENTWORKS_JOURNAL_RETENTION", strconv.Itoa(defaultJournalRetention)))
	if err != nil {
		return ServerConfig{}, fmt.Errorf("invalid journal retention: %w", err)
	}
	if retention < 0 {
		return ServerConfig{}, fmt.Errorf("journal retention must not be negative, got %d", retention)
	}
	cfg.JournalRetention = retention

	switch cfg.Dispatch {
	case DispatchAsync, DispatchSync:
	default:
		return ServerConfig{}, fmt.Errorf("invalid dispatch mode %q (want %s or %s)", cfg.Dispatch, DispatchAsync, DispatchSync)
	}

	if cfg.APIListenAddr == "" {
		return ServerConfig{}, fmt.Errorf("api listen address required")
	}
	if _, _, err := net.SplitHostPort(cfg.APIListenAddr); err != nil {
		return ServerConfig{}, fmt.Errorf("invalid api listen address %q: %w", cfg.APIListenAddr, err)
	}
	if cfg.MetricsListenAddr != "" {
		if _, _, err := net.SplitHostPort(cfg.MetricsListenAddr); err != nil {
			return ServerConfig{}, fmt.Errorf("invalid metrics listen address %q: %w", cfg.MetricsListenAddr, err)
		}
	}

	for _, cidr := range cfg.AllowCIDRs {
		if _, _, err := net.ParseCIDR(cidr); err != nil {
			return ServerConfig{}, fmt.Errorf("invalid allow cidr %q: %w", cidr, err)
		}
	}

	if cfg.DatabasePath == "" {
		return ServerConfig{}, fmt.Errorf("database path required")
	}

	return cfg, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func expandPath(path string) string {
	path = strings.TrimSpace(path)
	if path == "" || path == ":memory:" {
		return path
	}
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return filepath.Clean(path)
}
