package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	// EnvPrefix starts every environment variable scorekeep reads.
	EnvPrefix = "SCOREKEEP_"

	maxConfigFileSize = 1024 * 1024 // 1MB
)

// ErrPathNotAllowed is returned for config files outside the config
// directories.
var ErrPathNotAllowed = errors.New("config file must be in ~/.config/scorekeep/ or /etc/scorekeep/")

// LoadWithFile loads configuration from a YAML file, then overrides it with
// environment variables.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (SCOREKEEP_HTTP_PORT, SCOREKEEP_VCS_REMOTE_BASE, ...)
//  2. YAML config file (~/.config/scorekeep/config.yaml)
//  3. Defaults
//
// A missing file is not an error. An existing file must have 0600 or 0400
// permissions, be at most 1MB and live under ~/.config/scorekeep/ or
// /etc/scorekeep/.
//
// Environment variables drop the prefix and split on the first underscore:
//
//	SCOREKEEP_HTTP_PORT          -> http.port
//	SCOREKEEP_VCS_REMOTE_BASE    -> vcs.remote_base
//	SCOREKEEP_WORKSPACE_DOCUMENTS_DIR -> workspace.documents_dir
func LoadWithFile(configPath string) (*Config, error) {
	k := koanf.New(".")

	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}
	if configPath == "" {
		configPath = DefaultPath(home)
	}

	if err := validateConfigPath(configPath, home); err != nil {
		return nil, fmt.Errorf("config path validation failed: %w", err)
	}
	content, err := readConfigFile(configPath)
	if err != nil {
		return nil, err
	}
	if content != nil {
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg, home)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// DefaultPath returns ~/.config/scorekeep/config.yaml for home.
func DefaultPath(home string) string {
	return filepath.Join(home, ".config", "scorekeep", "config.yaml")
}

// envKey maps SCOREKEEP_SECTION_FIELD_NAME to section.field_name.
func envKey(s string) string {
	lower := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	section, field, ok := strings.Cut(lower, "_")
	if !ok {
		return lower
	}
	return section + "." + field
}

// readConfigFile returns nil content when the file does not exist. The
// file is opened once and checked through its descriptor.
func readConfigFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if err := validateConfigFileProperties(info); err != nil {
		return nil, fmt.Errorf("config file validation failed: %w", err)
	}

	content, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return content, nil
}

// EnsureConfigDir creates ~/.config/scorekeep with 0700 permissions.
func EnsureConfigDir() error {
	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}
	configDir := filepath.Dir(DefaultPath(home))
	if err := os.MkdirAll(configDir, 0o700); err != nil {
		return fmt.Errorf("failed to create config directory %s: %w", configDir, err)
	}
	return nil
}

// validateConfigPath checks that path is in an allowed directory, even
// if the file does not exist yet.
func validateConfigPath(path, home string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}
	resolved, err := filepath.EvalSymlinks(absPath)
	if err != nil {
		resolved = absPath
	}

	allowedDirs := []string{
		filepath.Dir(DefaultPath(home)),
		"/etc/scorekeep",
	}
	for _, dir := range allowedDirs {
		candidates := []string{dir}
		if r, err := filepath.EvalSymlinks(dir); err == nil && r != dir {
			candidates = append(candidates, r)
		}
		for _, c := range candidates {
			if within(resolved, c) {
				return nil
			}
		}
	}
	return ErrPathNotAllowed
}

func within(path, dir string) bool {
	return path == dir || strings.HasPrefix(path, dir+string(filepath.Separator))
}

// validateConfigFileProperties checks file permissions and size.
func validateConfigFileProperties(info os.FileInfo) error {
	if runtime.GOOS != "windows" {
		perm := info.Mode().Perm()
		if perm != 0o600 && perm != 0o400 {
			return fmt.Errorf("insecure config file permissions: %v (expected 0600 or 0400)", perm)
		}
	}
	if info.Size() > maxConfigFileSize {
		return fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}
	return nil
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config, home string) {
	data := dataDir(home)

	// Workspace defaults
	if cfg.Workspace.DocumentsDir == "" {
		cfg.Workspace.DocumentsDir = filepath.Join(home, "Documents", "scorekeep")
	}
	cfg.Workspace.DocumentsDir = expandHome(cfg.Workspace.DocumentsDir, home)
	cfg.Workspace.TemplatesDir = expandHome(cfg.Workspace.TemplatesDir, home)

	// History defaults
	if cfg.VCS.Dir == "" {
		cfg.VCS.Dir = filepath.Join(data, "history")
	}
	cfg.VCS.Dir = expandHome(cfg.VCS.Dir, home)
	cfg.VCS.RemoteBase = expandHome(cfg.VCS.RemoteBase, home)

	// Server defaults
	if cfg.HTTP.Host == "" {
		cfg.HTTP.Host = "127.0.0.1"
	}
	if cfg.HTTP.Port == 0 {
		cfg.HTTP.Port = 9090
	}
	if cfg.HTTP.ShutdownTimeout == 0 {
		cfg.HTTP.ShutdownTimeout = Duration(10 * time.Second)
	}

	if cfg.NATS.SubjectPrefix == "" {
		cfg.NATS.SubjectPrefix = "scorekeep"
	}

	if cfg.State.Path == "" {
		cfg.State.Path = filepath.Join(data, "state.db")
	}
	cfg.State.Path = expandHome(cfg.State.Path, home)

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Telemetry.Endpoint == "" {
		cfg.Telemetry.Endpoint = "localhost:4317"
	}
	if cfg.Telemetry.Protocol == "" {
		cfg.Telemetry.Protocol = "grpc"
	}
	if cfg.Telemetry.SampleRatio == 0 {
		cfg.Telemetry.SampleRatio = 1
	}
	if cfg.Telemetry.MetricsInterval == 0 {
		cfg.Telemetry.MetricsInterval = Duration(15 * time.Second)
	}
}
