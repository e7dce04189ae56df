package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const (
	// MaxBackups caps how many timestamped backups `bmsync config backup`
	// keeps around; cleanupOldBackups prunes the rest.
	MaxBackups = 3

	// BackupSuffix separates the timestamp from the config's own extension,
	// e.g. config.yaml.bak.20260730-101500.
	BackupSuffix = ".bak"
)

// BackupUserConfig snapshots the user config so `bmsync config restore` has
// something to fall back to after a hand edit goes wrong. Returns the
// backup path, or "" if there was no user config to back up.
func BackupUserConfig() (string, error) {
	configPath := GetUserConfigPath()

	if !UserConfigExists() {
		return "", nil
	}

	timestamp := time.Now().Format("20060102-150405")
	backupPath := fmt.Sprintf("%s%s.%s", configPath, BackupSuffix, timestamp)

	data, err := os.ReadFile(configPath)
	if err != nil {
		return "", fmt.Errorf("failed to read config for backup: %w", err)
	}

	if err := os.WriteFile(backupPath, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write backup: %w", err)
	}

	if err := cleanupOldBackups(configPath); err != nil {
		// Best-effort: the backup itself already succeeded.
		_ = err
	}

	return backupPath, nil
}

// ListUserConfigBackups returns all backup files for the user config,
// sorted by modification time (newest first).
func ListUserConfigBackups() ([]string, error) {
	configPath := GetUserConfigPath()
	configDir := filepath.Dir(configPath)
	configBase := filepath.Base(configPath)

	entries, err := os.ReadDir(configDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list config directory: %w", err)
	}

	var backups []string
	prefix := configBase + BackupSuffix + "."
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.HasPrefix(entry.Name(), prefix) {
			backups = append(backups, filepath.Join(configDir, entry.Name()))
		}
	}

	sort.Slice(backups, func(i, j int) bool {
		infoI, _ := os.Stat(backups[i])
		infoJ, _ := os.Stat(backups[j])
		if infoI == nil || infoJ == nil {
			return false
		}
		return infoI.ModTime().After(infoJ.ModTime())
	})

	return backups, nil
}

// cleanupOldBackups removes backups beyond MaxBackups, keeping the newest.
func cleanupOldBackups(configPath string) error {
	backups, err := ListUserConfigBackups()
	if err != nil {
		return err
	}

	if len(backups) <= MaxBackups {
		return nil
	}

	for _, backup := range backups[MaxBackups:] {
		if err := os.Remove(backup); err != nil {
			continue
		}
	}

	return nil
}

// RestoreUserConfig overwrites the user config with the contents of
// backupPath, first backing up whatever config is currently in place so a
// bad restore is itself recoverable.
func RestoreUserConfig(backupPath string) error {
	configPath := GetUserConfigPath()

	if _, err := os.Stat(backupPath); err != nil {
		return fmt.Errorf("backup file not found: %w", err)
	}

	if UserConfigExists() {
		if _, err := BackupUserConfig(); err != nil {
			return fmt.Errorf("failed to backup current config before restore: %w", err)
		}
	}

	data, err := os.ReadFile(backupPath)
	if err != nil {
		return fmt.Errorf("failed to read backup: %w", err)
	}

	configDir := GetUserConfigDir()
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write restored config: %w", err)
	}

	return nil
}
