// Package config provides configuration loading for scorekeep.
//
// Settings come from a YAML file and SCOREKEEP_* environment variables,
// with defaults filled in for everything left unset. See LoadWithFile.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Config holds the complete scorekeep configuration.
type Config struct {
	Workspace WorkspaceConfig `koanf:"workspace"`
	VCS       VCSConfig       `koanf:"vcs"`
	HTTP      HTTPConfig      `koanf:"http"`
	NATS      NATSConfig      `koanf:"nats"`
	State     StateConfig     `koanf:"state"`
	Logging   LoggingConfig   `koanf:"logging"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
}

// WorkspaceConfig controls where projects live and how they are saved.
type WorkspaceConfig struct {
	DocumentsDir     string   `koanf:"documents_dir"`
	TemplatesDir     string   `koanf:"templates_dir"` // optional overlay for the built-in templates
	DebugMirror      bool     `koanf:"debug_mirror"`  // also write <file>.yaml on every save
	Watch            bool     `koanf:"watch"`
	AutosaveInterval Duration `koanf:"autosave_interval"`
}

// VCSConfig holds project history settings.
type VCSConfig struct {
	// Dir keeps one repository per project. Empty keeps history in memory.
	Dir         string `koanf:"dir"`
	RemoteBase  string `koanf:"remote_base"`
	AuthorName  string `koanf:"author_name"`
	AuthorEmail string `koanf:"author_email"`
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Host            string   `koanf:"host"`
	Port            int      `koanf:"port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// Addr returns host:port.
func (c HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// NATSConfig holds the notification bridge settings. An empty URL
// disables the bridge.
type NATSConfig struct {
	URL           string `koanf:"url"`
	Token         Secret `koanf:"token"`
	SubjectPrefix string `koanf:"subject_prefix"`
}

// StateConfig holds the recent-projects database location.
type StateConfig struct {
	Path string `koanf:"path"`
}

// LoggingConfig selects the log level and format.
type LoggingConfig struct {
	Level    string `koanf:"level"`
	Format   string `koanf:"format"`
	Sampling bool   `koanf:"sampling"`
	// OTEL also sends logs through the telemetry log exporter.
	OTEL bool `koanf:"otel"`
}

// TelemetryConfig controls OpenTelemetry trace and metric export.
type TelemetryConfig struct {
	Enabled  bool   `koanf:"enabled"`
	Endpoint string `koanf:"endpoint"`
	Protocol string `koanf:"protocol"` // grpc or http/protobuf
	Insecure bool   `koanf:"insecure"`
	// SampleRatio is the share of traces kept. Zero keeps all of them.
	SampleRatio     float64  `koanf:"sample_ratio"`
	MetricsInterval Duration `koanf:"metrics_interval"`
}

var validLevels = map[string]bool{
	"trace": true,
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate validates the configuration.
//
// Returns an error if:
//   - HTTP port is not between 1 and 65535
//   - Shutdown timeout is not positive
//   - Documents directory is empty
//   - Log level or format is unknown
//   - Telemetry protocol or sample ratio is invalid
func (c *Config) Validate() error {
	if c.HTTP.Port < 1 || c.HTTP.Port > 65535 {
		return fmt.Errorf("invalid http port: %d (must be 1-65535)", c.HTTP.Port)
	}
	if c.HTTP.ShutdownTimeout <= 0 {
		return errors.New("shutdown timeout must be positive")
	}
	if c.Workspace.DocumentsDir == "" {
		return errors.New("workspace documents_dir is required")
	}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("unknown log level %q", c.Logging.Level)
	}
	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		return fmt.Errorf("log format must be 'json' or 'console', got %q", c.Logging.Format)
	}
	if c.NATS.Token.IsSet() && c.NATS.URL == "" {
		return errors.New("nats token set without nats url")
	}
	if c.Telemetry.Protocol != "grpc" && c.Telemetry.Protocol != "http/protobuf" {
		return fmt.Errorf("telemetry protocol must be 'grpc' or 'http/protobuf', got %q", c.Telemetry.Protocol)
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("telemetry sample_ratio must be between 0 and 1, got %v", c.Telemetry.SampleRatio)
	}
	return nil
}

// expandHome replaces a leading ~ with the user's home directory.
func expandHome(path, home string) string {
	if path == "~" {
		return home
	}
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(home, path[2:])
	}
	return path
}

// dataDir is where scorekeep keeps its own files.
func dataDir(home string) string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "scorekeep")
	}
	return filepath.Join(home, ".local", "share", "scorekeep")
}
