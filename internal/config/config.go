// Package config loads settings shared by mbtoold and mbctl.
// It uses koanf v2 to read a YAML file and can write the configuration back
// (mbctl config init).
//
// Configuration is loaded from /etc/mbtool/config.yaml by default. Every key
// is optional; missing keys take the defaults from Default.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	goyaml "gopkg.in/yaml.v3"

	"github.com/Anik1199/DualBootPatcher/internal/journal"
)

// DefaultConfigPath is the default location of the configuration file.
const DefaultConfigPath = "/etc/mbtool/config.yaml"

// Config holds the settings loaded from the YAML config file.
// Fields carry koanf tags for loading and yaml/json tags for output.
type Config struct {
	// SocketPath is the daemon's Unix socket.
	SocketPath string `koanf:"socket_path" yaml:"socket_path" json:"socket_path"`

	// AllowedUIDs may talk to the daemon besides root.
	AllowedUIDs []uint32 `koanf:"allowed_uids" yaml:"allowed_uids" json:"allowed_uids"`

	// LogLevel is one of "debug", "info", "warn", "error".
	LogLevel string `koanf:"log_level" yaml:"log_level" json:"log_level"`

	// JournalPath is the bbolt file recording daemon operations.
	JournalPath string `koanf:"journal_path" yaml:"journal_path" json:"journal_path"`

	// JournalRetentionDays is how long journal entries are kept.
	JournalRetentionDays int `koanf:"journal_retention_days" yaml:"journal_retention_days" json:"journal_retention_days"`

	// JournalPruneSchedule is a five-field cron expression.
	JournalPruneSchedule string `koanf:"journal_prune_schedule" yaml:"journal_prune_schedule" json:"journal_prune_schedule"`

	// CacheDir holds the copied payload archive and the staging lock.
	CacheDir string `koanf:"cache_dir" yaml:"cache_dir" json:"cache_dir"`

	// FilesDir receives the extracted payload.
	FilesDir string `koanf:"files_dir" yaml:"files_dir" json:"files_dir"`

	// AssetsDir contains the bundled data-<version>.tar.xz archives.
	AssetsDir string `koanf:"assets_dir" yaml:"assets_dir" json:"assets_dir"`

	// ExternalStorage is the root searched for MultiBoot/ named slots.
	ExternalStorage string `koanf:"external_storage" yaml:"external_storage" json:"external_storage"`

	// Locale selects the language of location names, e.g. "en" or "de".
	Locale string `koanf:"locale" yaml:"locale" json:"locale"`

	// RequestTimeoutSeconds bounds each daemon request. Zero disables it.
	RequestTimeoutSeconds int `koanf:"request_timeout_seconds" yaml:"request_timeout_seconds" json:"request_timeout_seconds"`
}

// Validation errors returned by Load.
var (
	ErrSocketPathRequired    = errors.New("socket_path is required")
	ErrInvalidLogLevel       = errors.New("log_level must be one of debug, info, warn, error")
	ErrInvalidRetention      = errors.New("journal_retention_days must be positive")
	ErrInvalidPruneSchedule  = errors.New("journal_prune_schedule is not a valid cron expression")
	ErrInvalidRequestTimeout = errors.New("request_timeout_seconds must not be negative")
)

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		SocketPath:           "/run/mbtool/daemon.sock",
		LogLevel:             "info",
		JournalPath:          "/var/lib/mbtool/journal.db",
		JournalRetentionDays: 30,
		JournalPruneSchedule: journal.DefaultPruneSchedule,
		CacheDir:             "/var/cache/mbtool",
		FilesDir:             "/var/lib/mbtool/files",
		AssetsDir:            "/usr/share/mbtool/assets",
		ExternalStorage:      "/sdcard",
		Locale:               "en",
	}
}

// Load reads configuration from the YAML file at path, applies defaults for
// missing keys and validates the result. A missing file is reported with an
// error wrapping os.ErrNotExist.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// LoadOrDefault is Load, except that a missing file yields Default.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

func (c *Config) applyDefaults() {
	d := Default()
	if c.SocketPath == "" {
		c.SocketPath = d.SocketPath
	}
	if c.LogLevel == "" {
		c.LogLevel = d.LogLevel
	}
	if c.JournalPath == "" {
		c.JournalPath = d.JournalPath
	}
	if c.JournalRetentionDays == 0 {
		c.JournalRetentionDays = d.JournalRetentionDays
	}
	if c.JournalPruneSchedule == "" {
		c.JournalPruneSchedule = d.JournalPruneSchedule
	}
	if c.CacheDir == "" {
		c.CacheDir = d.CacheDir
	}
	if c.FilesDir == "" {
		c.FilesDir = d.FilesDir
	}
	if c.AssetsDir == "" {
		c.AssetsDir = d.AssetsDir
	}
	if c.ExternalStorage == "" {
		c.ExternalStorage = d.ExternalStorage
	}
	if c.Locale == "" {
		c.Locale = d.Locale
	}
}

// Validate checks the loaded values.
func (c *Config) Validate() error {
	if c.SocketPath == "" {
		return ErrSocketPathRequired
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return ErrInvalidLogLevel
	}
	if c.JournalRetentionDays <= 0 {
		return ErrInvalidRetention
	}
	if err := journal.ValidateSchedule(c.JournalPruneSchedule); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPruneSchedule, err)
	}
	if c.RequestTimeoutSeconds < 0 {
		return ErrInvalidRequestTimeout
	}
	return nil
}

// JournalRetention returns the retention as a duration.
func (c *Config) JournalRetention() time.Duration {
	return time.Duration(c.JournalRetentionDays) * 24 * time.Hour
}

// RequestTimeout returns the per-request limit, zero meaning none.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

// Save writes the configuration to path as YAML, creating parent
// directories as needed.
func Save(path string, cfg *Config) error {
	data, err := goyaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config to %s: %w", path, err)
	}

	return nil
}
