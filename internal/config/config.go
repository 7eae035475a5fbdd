// Package config loads the optional CLI configuration file.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"syscall"

	"gopkg.in/yaml.v3"
)

// FileName is the name of the config file inside the vault directory.
const FileName = "config.yaml"

// Defaults.
const (
	DefaultAutoLockMinutes = 5
	DefaultAuditMaxEntries = 1000
)

// ErrConfigInsecure is returned when the config file has insecure permissions
var ErrConfigInsecure = errors.New("config file has insecure permissions")

// ErrConfigSymlink is returned when the config file is a symlink
var ErrConfigSymlink = errors.New("config file is a symlink")

// Config holds the user-tunable settings. Every field is optional; zero
// values fall back to defaults.
type Config struct {
	VaultPath       string `yaml:"vault_path"`
	AutoLockMinutes int    `yaml:"auto_lock_minutes"`
	AuditMaxEntries int    `yaml:"audit_max_entries"`
}

// Default returns a config populated with defaults. The vault lives under
// the user's home directory unless overridden.
func Default() *Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return &Config{
		VaultPath:       filepath.Join(home, ".credvault"),
		AutoLockMinutes: DefaultAutoLockMinutes,
		AuditMaxEntries: DefaultAuditMaxEntries,
	}
}

// Load reads the config file from dir, falling back to defaults when the
// file is absent. The file must be a regular file with 0600 permissions;
// symlinks are rejected to avoid following a planted link.
func Load(dir string) (*Config, error) {
	cfg := Default()
	path := filepath.Join(dir, FileName)

	f, err := os.OpenFile(path, os.O_RDONLY|syscall.O_NOFOLLOW, 0)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		if errors.Is(err, syscall.ELOOP) {
			return nil, ErrConfigSymlink
		}
		return nil, fmt.Errorf("config: failed to open %s: %w", path, err)
	}
	defer f.Close()

	// fstat the open descriptor so the permission check and the read see the
	// same file.
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("config: failed to stat %s: %w", path, err)
	}
	if perm := info.Mode().Perm(); perm&0077 != 0 {
		return nil, fmt.Errorf("%w: %04o (expected 0600)", ErrConfigInsecure, perm)
	}

	content, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("config: failed to read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(content, cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse %s: %w", path, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) validate() error {
	if c.AutoLockMinutes < 0 {
		return fmt.Errorf("config: auto_lock_minutes must not be negative: %d", c.AutoLockMinutes)
	}
	if c.AuditMaxEntries < 0 {
		return fmt.Errorf("config: audit_max_entries must not be negative: %d", c.AuditMaxEntries)
	}
	return nil
}

func (c *Config) applyDefaults() {
	d := Default()
	if c.VaultPath == "" {
		c.VaultPath = d.VaultPath
	}
	if c.AutoLockMinutes == 0 {
		c.AutoLockMinutes = d.AutoLockMinutes
	}
	if c.AuditMaxEntries == 0 {
		c.AuditMaxEntries = d.AuditMaxEntries
	}
}
