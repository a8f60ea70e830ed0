// Package config provides configuration management for the fetch service.
// Configuration is loaded from environment variables with sensible defaults.
package config

import (
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"github.com/spf13/cast"
)

const (
	// Default values
	DefaultPort            = 8000
	DefaultBind            = "0.0.0.0"
	DefaultLogLevel        = "info"
	DefaultDownloadsDir    = "downloads"
	DefaultCleanupInterval = 24 * time.Hour
	DefaultRetention       = 72 * time.Hour
	DefaultMaxFileSizeMB   = 50000
	DefaultPublicURL       = "http://localhost:8000"
	DefaultCORSOrigins     = "*"

	maxHours = float64(math.MaxInt64 / int64(time.Hour))

	// Environment variable names
	EnvPort            = "FETCHD_PORT"
	EnvBind            = "FETCHD_BIND"
	EnvLogLevel        = "FETCHD_LOG_LEVEL"
	EnvDownloadsDir    = "FETCHD_DOWNLOADS_DIR"
	EnvCleanupInterval = "FETCHD_CLEANUP_INTERVAL"
	EnvRetention       = "FETCHD_RETENTION"
	EnvMaxFileSizeMB   = "FETCHD_MAX_FILE_SIZE_MB"
	EnvPublicURL       = "FETCHD_PUBLIC_URL"
	EnvYtDlpPath       = "FETCHD_YTDLP_PATH"
	EnvMaxConcurrent   = "FETCHD_MAX_CONCURRENT"
	EnvCORSOrigins     = "FETCHD_CORS_ORIGINS"
)

// Config defines the application configuration interface
type Config interface {
	Port() int
	Bind() string
	LogLevel() string
	DownloadsDir() string
	CleanupInterval() time.Duration
	Retention() time.Duration
	MaxFileSizeMB() int
	PublicURL() string
	YtDlpPath() string
	MaxConcurrent() int
	CORSOrigins() []string
}

// EnvConfig reads configuration from environment variables
type EnvConfig struct {
	port            int
	bind            string
	logLevel        string
	downloadsDir    string
	cleanupInterval time.Duration
	retention       time.Duration
	maxFileSizeMB   int
	publicURL       string
	ytDlpPath       string
	maxConcurrent   int
	corsOrigins     []string
}

// New creates a new EnvConfig with defaults and environment variable overrides
func New() (*EnvConfig, error) {
	cfg := &EnvConfig{
		port:            DefaultPort,
		bind:            DefaultBind,
		logLevel:        DefaultLogLevel,
		downloadsDir:    DefaultDownloadsDir,
		cleanupInterval: DefaultCleanupInterval,
		retention:       DefaultRetention,
		maxFileSizeMB:   DefaultMaxFileSizeMB,
		publicURL:       DefaultPublicURL,
		corsOrigins:     splitList(DefaultCORSOrigins),
	}

	// Override port from environment
	if p := os.Getenv(EnvPort); p != "" {
		port, err := cast.ToIntE(p)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvPort, err)
		}
		if port < 1 || port > 65535 {
			return nil, fmt.Errorf("invalid %s: port must be between 1 and 65535", EnvPort)
		}
		cfg.port = port
	}

	if b := os.Getenv(EnvBind); b != "" {
		cfg.bind = b
	}

	if ll := os.Getenv(EnvLogLevel); ll != "" {
		cfg.logLevel = ll
	}

	if dd := os.Getenv(EnvDownloadsDir); dd != "" {
		cfg.downloadsDir = dd
	}

	if v := os.Getenv(EnvCleanupInterval); v != "" {
		d, err := parseHours(v)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvCleanupInterval, err)
		}
		cfg.cleanupInterval = d
	}

	if v := os.Getenv(EnvRetention); v != "" {
		d, err := parseHours(v)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvRetention, err)
		}
		cfg.retention = d
	}

	if v := os.Getenv(EnvMaxFileSizeMB); v != "" {
		mb, err := cast.ToIntE(v)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvMaxFileSizeMB, err)
		}
		if mb < 0 {
			return nil, fmt.Errorf("invalid %s: must not be negative", EnvMaxFileSizeMB)
		}
		cfg.maxFileSizeMB = mb
	}

	if u := os.Getenv(EnvPublicURL); u != "" {
		cfg.publicURL = strings.TrimRight(u, "/")
	}

	cfg.ytDlpPath = os.Getenv(EnvYtDlpPath)

	if v := os.Getenv(EnvMaxConcurrent); v != "" {
		n, err := cast.ToIntE(v)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvMaxConcurrent, err)
		}
		if n < 0 {
			return nil, fmt.Errorf("invalid %s: must not be negative", EnvMaxConcurrent)
		}
		cfg.maxConcurrent = n
	}

	if v := os.Getenv(EnvCORSOrigins); v != "" {
		cfg.corsOrigins = splitList(v)
	}

	return cfg, nil
}

// Port returns the HTTP server port
func (c *EnvConfig) Port() int {
	return c.port
}

// Bind returns the address the HTTP server listens on
func (c *EnvConfig) Bind() string {
	return c.bind
}

// LogLevel returns the log level (debug, info, warn, error)
func (c *EnvConfig) LogLevel() string {
	return c.logLevel
}

// DownloadsDir returns the shared output directory
func (c *EnvConfig) DownloadsDir() string {
	return c.downloadsDir
}

// CleanupInterval returns the delay between retention sweeps
func (c *EnvConfig) CleanupInterval() time.Duration {
	return c.cleanupInterval
}

// Retention returns the age after which files and job records are removed
func (c *EnvConfig) Retention() time.Duration {
	return c.retention
}

// MaxFileSizeMB is advisory; it is passed to the engine as a size guard.
func (c *EnvConfig) MaxFileSizeMB() int {
	return c.maxFileSizeMB
}

// PublicURL returns the externally reachable base URL for download links
func (c *EnvConfig) PublicURL() string {
	return c.publicURL
}

func (c *EnvConfig) YtDlpPath() string {
	return c.ytDlpPath
}

// MaxConcurrent returns the worker bound; zero means unbounded.
func (c *EnvConfig) MaxConcurrent() int {
	return c.maxConcurrent
}

func (c *EnvConfig) CORSOrigins() []string {
	return c.corsOrigins
}

// parseHours accepts either a Go duration ("36h", "90m") or a bare number of
// hours, which may be fractional ("1.5").
func parseHours(v string) (time.Duration, error) {
	v = strings.TrimSpace(v)
	if h, err := cast.ToFloat64E(v); err == nil {
		if math.IsNaN(h) || h <= 0 {
			return 0, fmt.Errorf("must be positive")
		}
		if h > maxHours {
			return 0, fmt.Errorf("too large")
		}
		return time.Duration(h * float64(time.Hour)), nil
	}
	d, err := cast.ToDurationE(v)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("must be positive")
	}
	return d, nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Version information (set at build time via ldflags)
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)
