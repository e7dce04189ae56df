package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config represents the complete configuration for a knowledge base project.
// It mirrors the schema documented in SPEC_FULL.md Section B.1.
type Config struct {
	Version int          `yaml:"version" json:"version"`
	Paths   PathsConfig  `yaml:"paths" json:"paths"`
	Sync    SyncConfig   `yaml:"sync" json:"sync"`
	Search  SearchConfig `yaml:"search" json:"search"`
	Server  ServerConfig `yaml:"server" json:"server"`
}

// PathsConfig configures which paths are included/excluded from a sync.
type PathsConfig struct {
	Include []string `yaml:"include" json:"include"`
	Exclude []string `yaml:"exclude" json:"exclude"`
}

// SyncConfig configures the sync pipeline (C8).
type SyncConfig struct {
	// UpdatePermalinksOnMove rewrites a file's frontmatter permalink when its
	// derived value changes because the file moved. Default false (opt-in);
	// see SPEC_FULL.md §E for the resolved Open Question.
	UpdatePermalinksOnMove bool `yaml:"update_permalinks_on_move" json:"update_permalinks_on_move"`

	// WatermarkEpsilonMS is the safety margin subtracted from the persisted
	// last_scan_timestamp before it is used to filter unchanged files, to
	// absorb filesystem mtime truncation/clock skew.
	WatermarkEpsilonMS int `yaml:"watermark_epsilon_ms" json:"watermark_epsilon_ms"`

	// CircuitBreakerThreshold is the consecutive per-file failure count after
	// which a file is quarantined and reported in skipped_files.
	CircuitBreakerThreshold int `yaml:"circuit_breaker_threshold" json:"circuit_breaker_threshold"`

	// MaxConcurrentFiles bounds the errgroup fan-out across sync_file calls
	// within one sync pass.
	MaxConcurrentFiles int `yaml:"max_concurrent_files" json:"max_concurrent_files"`
}

// SearchConfig configures the search-index query surface (C5).
type SearchConfig struct {
	MaxResults int `yaml:"max_results" json:"max_results"`
}

// ServerConfig configures ambient process behavior.
type ServerConfig struct {
	LogLevel string `yaml:"log_level" json:"log_level"`
}

// defaultExcludePatterns are always excluded from a scan, layered under any
// project .gitignore/.bmignore patterns.
var defaultExcludePatterns = []string{
	".git/**",
	".bmdata/**",
	"**/.DS_Store",
	"**/*.tmp",
	"**/__pycache__/**",
}

// NewConfig creates a new Config with sensible defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Paths: PathsConfig{
			Include: []string{},
			Exclude: defaultExcludePatterns,
		},
		Sync: SyncConfig{
			UpdatePermalinksOnMove:  false,
			WatermarkEpsilonMS:      500,
			CircuitBreakerThreshold: 3,
			MaxConcurrentFiles:      8,
		},
		Search: SearchConfig{
			MaxResults: 20,
		},
		Server: ServerConfig{
			LogLevel: "info",
		},
	}
}

// GetUserConfigPath returns the path to the user/global configuration file.
// It follows XDG Base Directory specification:
//   - $XDG_CONFIG_HOME/basic-memory/config.yaml (if XDG_CONFIG_HOME is set)
//   - ~/.config/basic-memory/config.yaml (default)
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "basic-memory", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "basic-memory", "config.yaml")
	}
	return filepath.Join(home, ".config", "basic-memory", "config.yaml")
}

// GetUserConfigDir returns the directory containing the user configuration.
func GetUserConfigDir() string {
	return filepath.Dir(GetUserConfigPath())
}

// UserConfigExists returns true if the user configuration file exists.
func UserConfigExists() bool {
	return fileExists(GetUserConfigPath())
}

// loadUserConfig loads the user/global configuration file if it exists.
// Returns nil config and nil error if the file doesn't exist (that's OK).
func loadUserConfig() (*Config, error) {
	configPath := GetUserConfigPath()

	if !fileExists(configPath) {
		return nil, nil
	}

	cfg := NewConfig()
	if err := cfg.loadYAML(configPath); err != nil {
		return nil, fmt.Errorf("failed to load user config from %s: %w", configPath, err)
	}

	return cfg, nil
}

// Load loads configuration for the project rooted at dir, in order of
// increasing precedence:
//  1. Hardcoded defaults
//  2. User/global config (~/.config/basic-memory/config.yaml)
//  3. Project config (.bmconfig.yaml in the project root)
//  4. Environment variables (BMSYNC_*)
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if userCfg, err := loadUserConfig(); err != nil {
		return nil, fmt.Errorf("failed to load user config: %w", err)
	} else if userCfg != nil {
		cfg.mergeWith(userCfg)
	}

	if err := cfg.loadFromFile(dir); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// loadFromFile attempts to load configuration from .bmconfig.yaml or .bmconfig.yml.
func (c *Config) loadFromFile(dir string) error {
	yamlPath := filepath.Join(dir, ".bmconfig.yaml")
	if _, err := os.Stat(yamlPath); err == nil {
		return c.loadYAML(yamlPath)
	}

	ymlPath := filepath.Join(dir, ".bmconfig.yml")
	if _, err := os.Stat(ymlPath); err == nil {
		return c.loadYAML(ymlPath)
	}

	return nil
}

// loadYAML loads and merges configuration from a YAML file.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	c.mergeWith(&parsed)
	return nil
}

// mergeWith merges non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	if len(other.Paths.Include) > 0 {
		c.Paths.Include = other.Paths.Include
	}
	if len(other.Paths.Exclude) > 0 {
		c.Paths.Exclude = append(c.Paths.Exclude, other.Paths.Exclude...)
	}

	if other.Sync.WatermarkEpsilonMS != 0 {
		c.Sync.WatermarkEpsilonMS = other.Sync.WatermarkEpsilonMS
	}
	if other.Sync.CircuitBreakerThreshold != 0 {
		c.Sync.CircuitBreakerThreshold = other.Sync.CircuitBreakerThreshold
	}
	if other.Sync.MaxConcurrentFiles != 0 {
		c.Sync.MaxConcurrentFiles = other.Sync.MaxConcurrentFiles
	}
	// UpdatePermalinksOnMove is boolean; only an explicit project/user file
	// merges it, which the caller invokes per-file, so a true here always wins.
	if other.Sync.UpdatePermalinksOnMove {
		c.Sync.UpdatePermalinksOnMove = true
	}

	if other.Search.MaxResults != 0 {
		c.Search.MaxResults = other.Search.MaxResults
	}

	if other.Server.LogLevel != "" {
		c.Server.LogLevel = other.Server.LogLevel
	}
}

// applyEnvOverrides applies BMSYNC_* environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("BMSYNC_LOG_LEVEL"); v != "" {
		c.Server.LogLevel = v
	}
	if v := os.Getenv("BMSYNC_MAX_RESULTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Search.MaxResults = n
		}
	}
	if v := os.Getenv("BMSYNC_CIRCUIT_BREAKER_THRESHOLD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Sync.CircuitBreakerThreshold = n
		}
	}
	if v := os.Getenv("BMSYNC_WATERMARK_EPSILON_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			c.Sync.WatermarkEpsilonMS = n
		}
	}
	if v := os.Getenv("BMSYNC_UPDATE_PERMALINKS_ON_MOVE"); v != "" {
		c.Sync.UpdatePermalinksOnMove = strings.ToLower(v) == "true" || v == "1"
	}
}

// FindProjectRoot finds the project root directory by walking up from
// startDir looking for a .git directory or a .bmconfig.yaml/.yml file.
func FindProjectRoot(startDir string) (string, error) {
	absDir, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}

	currentDir := absDir
	for {
		if dirExists(filepath.Join(currentDir, ".git")) {
			return currentDir, nil
		}

		if fileExists(filepath.Join(currentDir, ".bmconfig.yaml")) ||
			fileExists(filepath.Join(currentDir, ".bmconfig.yml")) {
			return currentDir, nil
		}

		parentDir := filepath.Dir(currentDir)
		if parentDir == currentDir {
			return absDir, nil
		}
		currentDir = parentDir
	}
}

// fileExists checks if a file exists and is not a directory.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

// dirExists checks if a directory exists.
func dirExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	if c.Sync.CircuitBreakerThreshold < 1 {
		return fmt.Errorf("sync.circuit_breaker_threshold must be at least 1, got %d", c.Sync.CircuitBreakerThreshold)
	}
	if c.Sync.WatermarkEpsilonMS < 0 {
		return fmt.Errorf("sync.watermark_epsilon_ms must be non-negative, got %d", c.Sync.WatermarkEpsilonMS)
	}
	if c.Sync.MaxConcurrentFiles < 1 {
		return fmt.Errorf("sync.max_concurrent_files must be at least 1, got %d", c.Sync.MaxConcurrentFiles)
	}
	if c.Search.MaxResults < 0 {
		return fmt.Errorf("search.max_results must be non-negative, got %d", c.Search.MaxResults)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Server.LogLevel)] {
		return fmt.Errorf("server.log_level must be 'debug', 'info', 'warn', or 'error', got %s", c.Server.LogLevel)
	}

	return nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// LoadUserConfig loads the user configuration file.
// Returns nil config and nil error if the file doesn't exist.
func LoadUserConfig() (*Config, error) {
	return loadUserConfig()
}
