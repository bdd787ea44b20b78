// Package config loads and validates application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	// Server settings.
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// CORS settings. "*" allows any origin, matching a development setup
	// where the dashboard runs on a different port.
	CORSAllowedOrigins []string

	// Archive settings. An empty path disables the SQLite snapshot
	// archive entirely.
	ArchivePath   string
	ArchiveBuffer int

	// Streaming settings.
	WSSendBuffer int

	// OTEL settings.
	OTELEndpoint string
	OTELInsecure bool
	ServiceName  string

	// Operational settings.
	LogLevel            string
	MaxRequestBodyBytes int64
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (Config, error) {
	cfg := Config{
		Port:                envInt("LTRAIL_PORT", 8080),
		ReadTimeout:         envDuration("LTRAIL_READ_TIMEOUT", 30*time.Second),
		WriteTimeout:        envDuration("LTRAIL_WRITE_TIMEOUT", 30*time.Second),
		CORSAllowedOrigins:  envList("LTRAIL_CORS_ALLOWED_ORIGINS", []string{"*"}),
		ArchivePath:         envStr("LTRAIL_ARCHIVE_PATH", ""),
		ArchiveBuffer:       envInt("LTRAIL_ARCHIVE_BUFFER", 256),
		WSSendBuffer:        envInt("LTRAIL_WS_SEND_BUFFER", 64),
		OTELEndpoint:        envStr("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		OTELInsecure:        envBool("OTEL_EXPORTER_OTLP_INSECURE", true),
		ServiceName:         envStr("OTEL_SERVICE_NAME", "ltrail"),
		LogLevel:            envStr("LTRAIL_LOG_LEVEL", "info"),
		MaxRequestBodyBytes: int64(envInt("LTRAIL_MAX_REQUEST_BODY_BYTES", 1*1024*1024)), // 1 MB default
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that required configuration is present and coherent.
func (c Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config: LTRAIL_PORT must be in (0, 65535]")
	}
	if c.MaxRequestBodyBytes <= 0 {
		return fmt.Errorf("config: LTRAIL_MAX_REQUEST_BODY_BYTES must be positive")
	}
	if c.ArchiveBuffer <= 0 {
		return fmt.Errorf("config: LTRAIL_ARCHIVE_BUFFER must be positive")
	}
	if c.WSSendBuffer <= 0 {
		return fmt.Errorf("config: LTRAIL_WS_SEND_BUFFER must be positive")
	}
	return nil
}

func envStr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

func envBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}

func envList(key string, defaultVal []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}
