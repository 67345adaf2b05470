// Package config provides configuration loading for calgrid.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure.
type Config struct {
	// Identity is the current user's mail address. It decides whether a
	// meeting was organized by the user.
	Identity      string             `yaml:"identity"`
	Grid          GridConfig         `yaml:"grid"`
	Sources       []SourceConfig     `yaml:"sources"`
	Sync          SyncConfig         `yaml:"sync"`
	Notifications NotificationConfig `yaml:"notifications"`
	Store         StoreConfig        `yaml:"store"`
}

// SyncConfig configures the view refresh.
type SyncConfig struct {
	// Refresh is a cron spec, e.g. "*/5 * * * *" or "@every 5m".
	Refresh string `yaml:"refresh"`
	// Lookahead widens the fetched range past the visible days.
	Lookahead time.Duration `yaml:"lookahead"`
}

// SourceConfig configures a calendar source.
type SourceConfig struct {
	Name        string       `yaml:"name"`
	Type        string       `yaml:"type"` // "ics", "caldav", "icloud", "ms365", "file"
	URL         string       `yaml:"url"`
	Path        string       `yaml:"path,omitempty"` // For file: directory holding <folder>.ics
	Username    string       `yaml:"username,omitempty"`
	Password    string       `yaml:"password,omitempty"`
	PasswordCmd string       `yaml:"password_cmd,omitempty"`
	ClientID    string       `yaml:"client_id,omitempty"` // For ms365
	Calendars   []string     `yaml:"calendars,omitempty"` // For CalDAV/MS365: which calendars to sync
	Folder      string       `yaml:"folder,omitempty"`    // Default folder passed to Fetch
	ReadOnly    []string     `yaml:"read_only,omitempty"` // For file: folders that reject reschedules
	Filters     FilterConfig `yaml:"filters,omitempty"`   // Per-source filters (include)
}

// FilterConfig configures event filtering.
type FilterConfig struct {
	Mode  string       `yaml:"mode"` // "or" or "and"
	Rules []FilterRule `yaml:"rules"`
}

// FilterRule defines a single filter rule.
// Use exactly one of: Contains, Exact, Prefix, Suffix, or Regex.
type FilterRule struct {
	Field           string `yaml:"field"`              // "title", "label", "organizer", "source", "folder", "busy", "private"
	Contains        string `yaml:"contains,omitempty"` // Substring match
	Exact           string `yaml:"exact,omitempty"`    // Exact string match
	Prefix          string `yaml:"prefix,omitempty"`   // Starts with
	Suffix          string `yaml:"suffix,omitempty"`   // Ends with
	Regex           string `yaml:"regex,omitempty"`    // Regular expression
	CaseInsensitive bool   `yaml:"case_insensitive"`
}

// NotificationConfig configures desktop notifications.
type NotificationConfig struct {
	Enabled bool `yaml:"enabled"`
	// ConfirmTimeout bounds how long the attendee prompt waits for an answer.
	ConfirmTimeout time.Duration `yaml:"confirm_timeout"`
}

// StoreConfig configures local persistence.
type StoreConfig struct {
	// Snapshots is the directory holding known-good event snapshots.
	Snapshots string `yaml:"snapshots"`
}

// Load reads configuration from the default location (~/.config/calgrid/config.yaml).
func Load() (*Config, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return nil, fmt.Errorf("get config dir: %w", err)
	}

	path := filepath.Join(configDir, "calgrid", "config.yaml")
	return LoadFrom(path)
}

// LoadFrom reads configuration from a specific path.
func LoadFrom(path string) (*Config, error) {
	path = expandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes configuration from YAML and applies defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	cfg.applyDefaults()

	// Expand paths
	cfg.Store.Snapshots = expandPath(cfg.Store.Snapshots)
	for i := range cfg.Sources {
		cfg.Sources[i].Path = expandPath(cfg.Sources[i].Path)
	}

	return &cfg, nil
}

// Default returns a configuration with every default applied.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	cfg.Store.Snapshots = expandPath(cfg.Store.Snapshots)
	return &cfg
}

// applyDefaults sets default values for unspecified config options.
func (c *Config) applyDefaults() {
	if c.Sync.Refresh == "" {
		c.Sync.Refresh = "@every 5m"
	}
	if c.Notifications.ConfirmTimeout == 0 {
		c.Notifications.ConfirmTimeout = time.Minute
	}
	if c.Store.Snapshots == "" {
		c.Store.Snapshots = "~/.local/share/calgrid/snapshots"
	}
	for i := range c.Sources {
		if c.Sources[i].Filters.Mode == "" {
			c.Sources[i].Filters.Mode = "or"
		}
	}
	for _, field := range c.Grid.Normalize() {
		slog.Warn("grid setting out of range, using default", "setting", field)
	}
}

// GetPassword returns the password for a source, executing password_cmd if needed.
func (s *SourceConfig) GetPassword() (string, error) {
	if s.Password != "" {
		return s.Password, nil
	}
	if s.PasswordCmd == "" {
		return "", nil
	}

	// Execute the password command
	cmd := exec.Command("sh", "-c", s.PasswordCmd)
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("execute password_cmd: %w", err)
	}

	return strings.TrimSpace(string(out)), nil
}

// expandPath expands ~ to the user's home directory.
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}

// parseDuration extends time.ParseDuration with "d" (days) and "w" (weeks).
// Negative values are rejected.
func parseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}

	var unit time.Duration
	switch {
	case strings.HasSuffix(s, "d"):
		unit = 24 * time.Hour
	case strings.HasSuffix(s, "w"):
		unit = 7 * 24 * time.Hour
	}

	if unit != 0 {
		n, err := strconv.Atoi(s[:len(s)-1])
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q", s)
		}
		if n < 0 {
			return 0, fmt.Errorf("negative duration %q", s)
		}
		return time.Duration(n) * unit, nil
	}

	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %q", s)
	}
	return d, nil
}

// UnmarshalYAML implements custom unmarshaling for duration fields.
func (c *SyncConfig) UnmarshalYAML(node *yaml.Node) error {
	var raw struct {
		Refresh   string `yaml:"refresh"`
		Lookahead string `yaml:"lookahead"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}

	d, err := parseDuration(raw.Lookahead)
	if err != nil {
		return fmt.Errorf("parse lookahead: %w", err)
	}
	c.Lookahead = d
	c.Refresh = raw.Refresh
	return nil
}

// UnmarshalYAML implements custom unmarshaling for notification config.
func (c *NotificationConfig) UnmarshalYAML(node *yaml.Node) error {
	var raw struct {
		Enabled        bool   `yaml:"enabled"`
		ConfirmTimeout string `yaml:"confirm_timeout"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}

	d, err := parseDuration(raw.ConfirmTimeout)
	if err != nil {
		return fmt.Errorf("parse confirm_timeout: %w", err)
	}
	c.Enabled = raw.Enabled
	c.ConfirmTimeout = d
	return nil
}
