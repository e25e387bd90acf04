package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

var (
	// ErrNotConfigured indicates the config file does not exist yet.
	ErrNotConfigured = errors.New("not configured")
	// ErrInvalid indicates the config file exists but cannot be used.
	ErrInvalid = errors.New("invalid configuration")
)

// Sync modes accepted by SyncSettings.Mode.
const (
	ModeFull        = "full"
	ModeIncremental = "incremental"
)

// Config is the persisted application configuration. The Emby and Trakt
// sections are pointers so that "not set up" is a nil check rather than a
// scatter of empty-field checks.
type Config struct {
	Emby  *EmbySettings  `yaml:"emby,omitempty"`
	Trakt *TraktSettings `yaml:"trakt,omitempty"`
	Sync  SyncSettings   `yaml:"sync"`
}

// EmbySettings holds the source server session created by setup.
type EmbySettings struct {
	ServerURL   string `yaml:"server_url"`
	UserID      string `yaml:"user_id"`
	AccessToken string `yaml:"access_token"`
	DeviceID    string `yaml:"device_id"`
}

// TraktSettings holds the sink application credentials and OAuth tokens.
type TraktSettings struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	AccessToken  string `yaml:"access_token"`
	RefreshToken string `yaml:"refresh_token"`
	ExpiresAt    int64  `yaml:"expires_at,omitempty"` // unix seconds
}

// SyncSettings controls download behavior.
type SyncSettings struct {
	Mode     string     `yaml:"mode"`
	LastSync *time.Time `yaml:"last_sync,omitempty"`
}

// EmbyConfigured reports whether the source section is usable.
func (c *Config) EmbyConfigured() bool {
	return c.Emby != nil && c.Emby.ServerURL != "" && c.Emby.AccessToken != ""
}

// TraktConfigured reports whether the sink section is usable.
func (c *Config) TraktConfigured() bool {
	return c.Trakt != nil && c.Trakt.ClientID != "" && c.Trakt.AccessToken != ""
}

// Manager loads and saves the config file. Writes go through a temp file
// rename and the result is chmodded to owner read/write only.
type Manager struct {
	fs   afero.Fs
	path string
}

// NewManager creates a manager for config.yaml inside dataDir.
func NewManager(fsys afero.Fs, dataDir string) *Manager {
	return &Manager{fs: fsys, path: filepath.Join(dataDir, "config.yaml")}
}

// Path returns the config file location.
func (m *Manager) Path() string {
	return m.path
}

// Exists reports whether the config file is present.
func (m *Manager) Exists() bool {
	ok, err := afero.Exists(m.fs, m.path)
	return err == nil && ok
}

// Load reads the config file. Returns ErrNotConfigured when missing.
func (m *Manager) Load() (*Config, error) {
	data, err := afero.ReadFile(m.fs, m.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s not found, run 'embysync setup' first", ErrNotConfigured, m.path)
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if cfg.Sync.Mode == "" {
		cfg.Sync.Mode = ModeIncremental
	}
	if cfg.Sync.Mode != ModeFull && cfg.Sync.Mode != ModeIncremental {
		return nil, fmt.Errorf("%w: unknown sync mode %q", ErrInvalid, cfg.Sync.Mode)
	}
	return &cfg, nil
}

// Save writes the config atomically with 0600 permissions.
func (m *Manager) Save(cfg *Config) error {
	if err := m.fs.MkdirAll(filepath.Dir(m.path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	tmp := m.path + ".tmp"
	if err := afero.WriteFile(m.fs, tmp, data, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := m.fs.Rename(tmp, m.path); err != nil {
		_ = m.fs.Remove(tmp)
		return fmt.Errorf("replace config: %w", err)
	}
	// Rename can carry over old permissions; enforce owner-only again.
	if err := m.fs.Chmod(m.path, 0o600); err != nil {
		return fmt.Errorf("chmod config: %w", err)
	}
	return nil
}
