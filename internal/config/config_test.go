package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, dir, content string, perm os.FileMode) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(content), perm); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
}

func TestLoadAbsentFile(t *testing.T) {
	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.AutoLockMinutes != DefaultAutoLockMinutes {
		t.Errorf("AutoLockMinutes = %d, want %d", cfg.AutoLockMinutes, DefaultAutoLockMinutes)
	}
	if cfg.AuditMaxEntries != DefaultAuditMaxEntries {
		t.Errorf("AuditMaxEntries = %d, want %d", cfg.AuditMaxEntries, DefaultAuditMaxEntries)
	}
	if cfg.VaultPath == "" {
		t.Error("VaultPath should default to a home-relative path")
	}
}

func TestLoadOverrides(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "vault_path: /tmp/v\nauto_lock_minutes: 10\n", 0600)

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.VaultPath != "/tmp/v" {
		t.Errorf("VaultPath = %q", cfg.VaultPath)
	}
	if cfg.AutoLockMinutes != 10 {
		t.Errorf("AutoLockMinutes = %d, want 10", cfg.AutoLockMinutes)
	}
	// Unset field falls back to its default.
	if cfg.AuditMaxEntries != DefaultAuditMaxEntries {
		t.Errorf("AuditMaxEntries = %d, want default", cfg.AuditMaxEntries)
	}
}

func TestLoadRejectsInsecurePermissions(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "auto_lock_minutes: 10\n", 0644)

	if _, err := Load(dir); !errors.Is(err, ErrConfigInsecure) {
		t.Errorf("Load() error = %v, want ErrConfigInsecure", err)
	}
}

func TestLoadRejectsSymlink(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "real.yaml")
	if err := os.WriteFile(target, []byte("auto_lock_minutes: 10\n"), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if err := os.Symlink(target, filepath.Join(dir, FileName)); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	if _, err := Load(dir); !errors.Is(err, ErrConfigSymlink) {
		t.Errorf("Load() error = %v, want ErrConfigSymlink", err)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "auto_lock_minutes: -1\n", 0600)

	if _, err := Load(dir); err == nil {
		t.Error("Load() should reject negative auto_lock_minutes")
	}
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "auto_lock_minutes: [not an int\n", 0600)

	if _, err := Load(dir); err == nil {
		t.Error("Load() should reject malformed YAML")
	}
}
