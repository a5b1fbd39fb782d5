// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/jeranaias/ragchat/internal/api"
	"github.com/jeranaias/ragchat/internal/logging"
	"github.com/jeranaias/ragchat/internal/upload"
	"github.com/jeranaias/ragchat/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete ragchat configuration.
type Config struct {
	Version string `toml:"version" json:"version"`

	API     APIConfig     `toml:"api" json:"api"`
	Upload  UploadConfig  `toml:"upload" json:"upload"`
	Chat    ChatConfig    `toml:"chat" json:"chat"`
	Logging LoggingConfig `toml:"logging" json:"logging"`
	Auth    AuthConfig    `toml:"auth" json:"auth"`
}

// APIConfig locates the RAG service.
type APIConfig struct {
	BaseURL           string  `toml:"base_url" json:"base_url"`
	TimeoutSeconds    int     `toml:"timeout_seconds" json:"timeout_seconds"` // 0 = no timeout
	RequestsPerSecond float64 `toml:"requests_per_second" json:"requests_per_second"`
	Burst             int     `toml:"burst" json:"burst"`
	UserAgent         string  `toml:"user_agent" json:"user_agent"`
}

// UploadConfig controls document uploads and processing polls.
type UploadConfig struct {
	MaxSizeMB      int      `toml:"max_size_mb" json:"max_size_mb"`
	AllowedTypes   []string `toml:"allowed_types" json:"allowed_types"`
	PollIntervalMS int      `toml:"poll_interval_ms" json:"poll_interval_ms"`
	MaxAttempts    int      `toml:"max_attempts" json:"max_attempts"`
	ResetDelayMS   int      `toml:"reset_delay_ms" json:"reset_delay_ms"`
	ErrorMarkers   []string `toml:"error_markers" json:"error_markers"`
}

// ChatConfig holds presentation settings for the terminal shell.
type ChatConfig struct {
	Markdown     bool   `toml:"markdown" json:"markdown"`
	Style        string `toml:"style" json:"style"` // auto, dark, light, notty
	SidebarWidth int    `toml:"sidebar_width" json:"sidebar_width"`
}

// LoggingConfig controls the zap logger and its rotating file.
type LoggingConfig struct {
	Level      string `toml:"level" json:"level"`
	File       string `toml:"file" json:"file"` // empty = console only
	MaxSizeMB  int    `toml:"max_size_mb" json:"max_size_mb"`
	MaxBackups int    `toml:"max_backups" json:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days" json:"max_age_days"`
	JSON       bool   `toml:"json" json:"json"`
}

// AuthConfig holds the bearer token used when no login flow is present.
type AuthConfig struct {
	Token string `toml:"token" json:"token"`
}

// =============================================================================
// DEFAULT CONFIGURATION
// =============================================================================

// Default returns the default configuration.
func Default() *Config {
	policy := upload.DefaultPolicy()
	return &Config{
		Version: "1",
		API: APIConfig{
			BaseURL: api.DefaultBaseURL,
		},
		Upload: UploadConfig{
			MaxSizeMB:      int(policy.MaxBytes >> 20),
			AllowedTypes:   policy.AllowedTypes,
			PollIntervalMS: int(policy.PollInterval / time.Millisecond),
			MaxAttempts:    policy.MaxAttempts,
			ResetDelayMS:   int(policy.ResetDelay / time.Millisecond),
			ErrorMarkers:   policy.ErrorMarkers,
		},
		Chat: ChatConfig{
			Markdown:     true,
			Style:        "auto",
			SidebarWidth: 28,
		},
		Logging: LoggingConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

// ClientConfig converts the section into an api.Config.
func (c APIConfig) ClientConfig() *api.Config {
	return &api.Config{
		BaseURL:           c.BaseURL,
		Timeout:           time.Duration(c.TimeoutSeconds) * time.Second,
		RequestsPerSecond: c.RequestsPerSecond,
		Burst:             c.Burst,
		UserAgent:         c.UserAgent,
	}
}

// Policy converts the section into an upload.Policy.
func (c UploadConfig) Policy() upload.Policy {
	return upload.Policy{
		MaxBytes:     int64(c.MaxSizeMB) << 20,
		AllowedTypes: append([]string(nil), c.AllowedTypes...),
		PollInterval: time.Duration(c.PollIntervalMS) * time.Millisecond,
		MaxAttempts:  c.MaxAttempts,
		ResetDelay:   time.Duration(c.ResetDelayMS) * time.Millisecond,
		ErrorMarkers: append([]string(nil), c.ErrorMarkers...),
	}
}

// Options converts the section into logging.Options.
func (c LoggingConfig) Options() logging.Options {
	return logging.Options{
		Level:       c.Level,
		File:        c.File,
		MaxSizeMB:   c.MaxSizeMB,
		MaxBackups:  c.MaxBackups,
		MaxAgeDays:  c.MaxAgeDays,
		JSONConsole: c.JSON,
	}
}

// =============================================================================
// CONFIG PATHS
// =============================================================================

// ConfigDir returns the configuration directory (~/.ragchat).
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".ragchat"), nil
}

// ConfigPathTOML returns the path to the TOML config file.
func ConfigPathTOML() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// ConfigPathJSON returns the path to the JSON config file.
func ConfigPathJSON() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// DefaultPath returns the file Load would read: the TOML file if it exists,
// else the JSON file if it exists, else the TOML path.
func DefaultPath() (string, error) {
	tomlPath, err := ConfigPathTOML()
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(tomlPath); err == nil {
		return tomlPath, nil
	}
	jsonPath, err := ConfigPathJSON()
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(jsonPath); err == nil {
		return jsonPath, nil
	}
	return tomlPath, nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads configuration from the config file(s).
// Tries TOML first, then JSON, and falls back to defaults. Variables from
// ./.env are added to the environment, then environment overrides are
// applied last. A broken file is reported alongside the defaults.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := Default()
	var loadErr error

	for _, pathFn := range []func() (string, error){ConfigPathTOML, ConfigPathJSON} {
		path, err := pathFn()
		if err != nil {
			continue
		}
		if _, statErr := os.Stat(path); statErr != nil {
			continue
		}
		loaded, err := LoadFromPath(path)
		if err != nil {
			loadErr = err
			continue
		}
		return loaded, nil
	}

	if err := cfg.finish(); err != nil {
		return nil, err
	}
	return cfg, loadErr
}

// LoadFromPath loads configuration from a specific file. The format is
// chosen by extension (.json, anything else is TOML).
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	var err error
	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = LoadJSON(cfg, path)
	} else {
		err = LoadTOML(cfg, path)
	}
	if err != nil {
		return nil, err
	}

	if err := cfg.finish(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadTOML decodes a TOML file over cfg.
func LoadTOML(cfg *Config, path string) error {
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return fmt.Errorf("failed to load TOML config: %w", err)
	}
	return nil
}

// LoadJSON decodes a JSON file over cfg.
func LoadJSON(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read JSON config: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to load JSON config: %w", err)
	}
	return nil
}

// finish applies overrides and defaults, then validates.
func (c *Config) finish() error {
	c.ApplyEnvOverrides()
	c.SetDefaults()
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save saves the configuration to the default TOML file.
func Save(cfg *Config) error {
	path, err := ConfigPathTOML()
	if err != nil {
		return err
	}
	return SaveTOML(cfg, path)
}

// SaveTOML writes cfg as TOML with owner-only permissions.
func SaveTOML(cfg *Config, path string) error {
	var buf bytes.Buffer
	buf.WriteString("# ragchat configuration file\n")
	buf.WriteString("# Generated by ragchat - edit with care\n\n")

	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.AtomicWriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// SaveJSON writes cfg as indented JSON with owner-only permissions.
func SaveJSON(cfg *Config, path string) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.AtomicWriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	var errs ValidateErrors
	add := func(field, format string, args ...interface{}) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	// API
	if u, err := url.Parse(c.API.BaseURL); err != nil {
		add("api.base_url", "invalid URL: %v", err)
	} else if u.Scheme != "http" && u.Scheme != "https" {
		add("api.base_url", "scheme must be http or https, got %q", u.Scheme)
	} else if u.Host == "" {
		add("api.base_url", "missing host")
	}
	if c.API.TimeoutSeconds < 0 {
		add("api.timeout_seconds", "must be >= 0, got %d", c.API.TimeoutSeconds)
	}
	if c.API.RequestsPerSecond < 0 {
		add("api.requests_per_second", "must be >= 0, got %g", c.API.RequestsPerSecond)
	}
	if c.API.Burst < 0 {
		add("api.burst", "must be >= 0, got %d", c.API.Burst)
	}

	// Upload
	if c.Upload.MaxSizeMB <= 0 {
		add("upload.max_size_mb", "must be positive, got %d", c.Upload.MaxSizeMB)
	}
	if c.Upload.PollIntervalMS <= 0 {
		add("upload.poll_interval_ms", "must be positive, got %d", c.Upload.PollIntervalMS)
	}
	if c.Upload.MaxAttempts <= 0 {
		add("upload.max_attempts", "must be positive, got %d", c.Upload.MaxAttempts)
	}
	if c.Upload.ResetDelayMS <= 0 {
		add("upload.reset_delay_ms", "must be positive, got %d", c.Upload.ResetDelayMS)
	}
	for _, t := range c.Upload.AllowedTypes {
		if !strings.Contains(t, "/") {
			add("upload.allowed_types", "invalid MIME type %q", t)
		}
	}

	// Chat
	switch strings.ToLower(c.Chat.Style) {
	case "auto", "dark", "light", "notty":
	default:
		add("chat.style", "invalid style %q, must be one of: auto, dark, light, notty", c.Chat.Style)
	}
	if c.Chat.SidebarWidth < 0 {
		add("chat.sidebar_width", "must be >= 0, got %d", c.Chat.SidebarWidth)
	}

	// Logging
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		add("logging.level", "%v", err)
	}
	if c.Logging.MaxSizeMB < 0 || c.Logging.MaxBackups < 0 || c.Logging.MaxAgeDays < 0 {
		add("logging", "rotation limits must be >= 0")
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// SetDefaults fills zero values with defaults.
func (c *Config) SetDefaults() {
	def := Default()

	if c.Version == "" {
		c.Version = def.Version
	}
	if c.API.BaseURL == "" {
		c.API.BaseURL = def.API.BaseURL
	}
	c.API.BaseURL = strings.TrimRight(c.API.BaseURL, "/")

	if c.Upload.MaxSizeMB == 0 {
		c.Upload.MaxSizeMB = def.Upload.MaxSizeMB
	}
	if len(c.Upload.AllowedTypes) == 0 {
		c.Upload.AllowedTypes = def.Upload.AllowedTypes
	}
	if c.Upload.PollIntervalMS == 0 {
		c.Upload.PollIntervalMS = def.Upload.PollIntervalMS
	}
	if c.Upload.MaxAttempts == 0 {
		c.Upload.MaxAttempts = def.Upload.MaxAttempts
	}
	if c.Upload.ResetDelayMS == 0 {
		c.Upload.ResetDelayMS = def.Upload.ResetDelayMS
	}
	if c.Upload.ErrorMarkers == nil {
		c.Upload.ErrorMarkers = def.Upload.ErrorMarkers
	}

	if c.Chat.Style == "" {
		c.Chat.Style = def.Chat.Style
	}
	if c.Chat.SidebarWidth == 0 {
		c.Chat.SidebarWidth = def.Chat.SidebarWidth
	}

	if c.Logging.Level == "" {
		c.Logging.Level = def.Logging.Level
	}
	if c.Logging.MaxSizeMB == 0 {
		c.Logging.MaxSizeMB = def.Logging.MaxSizeMB
	}
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides to the config.
//
// Supported environment variables:
//   - RAGCHAT_API_URL: overrides api.base_url
//   - RAGCHAT_TIMEOUT: overrides api.timeout_seconds
//   - RAGCHAT_TOKEN: overrides auth.token
//   - RAGCHAT_MAX_UPLOAD_MB: overrides upload.max_size_mb
//   - RAGCHAT_POLL_ATTEMPTS: overrides upload.max_attempts
//   - RAGCHAT_LOG_LEVEL: overrides logging.level
//   - RAGCHAT_LOG_FILE: overrides logging.file
//   - RAGCHAT_MARKDOWN: set to "0" or "false" to print assistant text raw
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("RAGCHAT_API_URL"); v != "" {
		c.API.BaseURL = v
	}
	if n, ok := envInt("RAGCHAT_TIMEOUT"); ok {
		c.API.TimeoutSeconds = n
	}
	if v := os.Getenv("RAGCHAT_TOKEN"); v != "" {
		c.Auth.Token = v
	}
	if n, ok := envInt("RAGCHAT_MAX_UPLOAD_MB"); ok {
		c.Upload.MaxSizeMB = n
	}
	if n, ok := envInt("RAGCHAT_POLL_ATTEMPTS"); ok {
		c.Upload.MaxAttempts = n
	}
	if v := os.Getenv("RAGCHAT_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("RAGCHAT_LOG_FILE"); v != "" {
		c.Logging.File = v
	}
	if v := os.Getenv("RAGCHAT_MARKDOWN"); v != "" {
		c.Chat.Markdown = v == "1" || strings.ToLower(v) == "true"
	}
}

func envInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, false
	}
	return n, true
}

// =============================================================================
// HELPERS
// =============================================================================

// Clone creates a deep copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	clone.Upload.AllowedTypes = append([]string(nil), c.Upload.AllowedTypes...)
	clone.Upload.ErrorMarkers = append([]string(nil), c.Upload.ErrorMarkers...)
	return &clone
}

// String returns the config as JSON with the token redacted.
func (c *Config) String() string {
	safe := c.Clone()
	if safe.Auth.Token != "" {
		safe.Auth.Token = "[REDACTED]"
	}
	data, _ := json.MarshalIndent(safe, "", "  ")
	return string(data)
}
