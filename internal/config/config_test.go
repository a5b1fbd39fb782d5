// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate points HOME at a temp dir and clears RAGCHAT_* variables.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	for _, kv := range os.Environ() {
		if k, _, ok := strings.Cut(kv, "="); ok && strings.HasPrefix(k, "RAGCHAT_") {
			t.Setenv(k, "")
		}
	}
	return home
}

// =============================================================================
// DEFAULTS
// =============================================================================

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.API.BaseURL != "http://localhost:5000/api" {
		t.Errorf("BaseURL = %q", cfg.API.BaseURL)
	}
}

func TestDefault_UploadPolicyMatchesPipeline(t *testing.T) {
	p := Default().Upload.Policy()

	assert.Equal(t, int64(16<<20), p.MaxBytes)
	assert.Equal(t, time.Second, p.PollInterval)
	assert.Equal(t, 30, p.MaxAttempts)
	assert.Equal(t, 3*time.Second, p.ResetDelay)
	assert.Equal(t, []string{"Error", "Failed"}, p.ErrorMarkers)
}

func TestSetDefaults_FillsZeroValues(t *testing.T) {
	cfg := &Config{API: APIConfig{BaseURL: "https://rag.example.com/api/"}}
	cfg.SetDefaults()

	if cfg.API.BaseURL != "https://rag.example.com/api" {
		t.Errorf("trailing slash not trimmed: %q", cfg.API.BaseURL)
	}
	if cfg.Upload.MaxAttempts != 30 || cfg.Logging.Level != "info" || cfg.Chat.Style != "auto" {
		t.Errorf("zero values not filled: %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("filled config invalid: %v", err)
	}
}

func TestSetDefaults_KeepsEmptyMarkers(t *testing.T) {
	cfg := Default()
	cfg.Upload.ErrorMarkers = []string{}
	cfg.SetDefaults()
	if len(cfg.Upload.ErrorMarkers) != 0 {
		t.Errorf("explicit empty markers replaced: %v", cfg.Upload.ErrorMarkers)
	}
}

// =============================================================================
// VALIDATION
// =============================================================================

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"ftp scheme", func(c *Config) { c.API.BaseURL = "ftp://host/api" }, "api.base_url"},
		{"no host", func(c *Config) { c.API.BaseURL = "http:///api" }, "api.base_url"},
		{"negative timeout", func(c *Config) { c.API.TimeoutSeconds = -1 }, "api.timeout_seconds"},
		{"negative rps", func(c *Config) { c.API.RequestsPerSecond = -2 }, "api.requests_per_second"},
		{"zero max size", func(c *Config) { c.Upload.MaxSizeMB = 0 }, "upload.max_size_mb"},
		{"zero attempts", func(c *Config) { c.Upload.MaxAttempts = 0 }, "upload.max_attempts"},
		{"zero interval", func(c *Config) { c.Upload.PollIntervalMS = 0 }, "upload.poll_interval_ms"},
		{"bad mime", func(c *Config) { c.Upload.AllowedTypes = []string{"pdf"} }, "upload.allowed_types"},
		{"bad style", func(c *Config) { c.Chat.Style = "neon" }, "chat.style"},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)

			err := cfg.Validate()
			var verrs ValidateErrors
			require.True(t, errors.As(err, &verrs), "want ValidateErrors, got %v", err)
			require.Len(t, verrs, 1)
			assert.Equal(t, tc.field, verrs[0].Field)
		})
	}
}

func TestValidateErrors_Error(t *testing.T) {
	errs := ValidateErrors{
		{Field: "a", Message: "bad"},
		{Field: "b", Message: "worse"},
	}
	if got := errs.Error(); got != "a: bad; b: worse" {
		t.Errorf("Error() = %q", got)
	}
	if got := (ValidateErrors{}).Error(); got != "no validation errors" {
		t.Errorf("empty Error() = %q", got)
	}
}

// =============================================================================
// LOAD / SAVE
// =============================================================================

func TestLoadFromPath_TOML(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	data := `
[api]
base_url = "https://rag.example.com/api"
timeout_seconds = 15

[upload]
max_size_mb = 4
max_attempts = 5
allowed_types = ["application/pdf"]

[logging]
level = "debug"
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0600))

	cfg, err := LoadFromPath(path)
	require.NoError(t, err)

	assert.Equal(t, "https://rag.example.com/api", cfg.API.BaseURL)
	assert.Equal(t, 15*time.Second, cfg.API.ClientConfig().Timeout)
	assert.Equal(t, int64(4<<20), cfg.Upload.Policy().MaxBytes)
	assert.Equal(t, 5, cfg.Upload.MaxAttempts)
	assert.Equal(t, []string{"application/pdf"}, cfg.Upload.AllowedTypes)
	assert.Equal(t, "debug", cfg.Logging.Options().Level)
	// untouched sections keep defaults
	assert.Equal(t, 1000, cfg.Upload.PollIntervalMS)
	assert.True(t, cfg.Chat.Markdown)
}

func TestLoadFromPath_JSON(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"api":{"base_url":"http://10.0.0.2:5000/api"},"chat":{"style":"dark"}}`), 0600))

	cfg, err := LoadFromPath(path)
	require.NoError(t, err)
	assert.Equal(t, "http://10.0.0.2:5000/api", cfg.API.BaseURL)
	assert.Equal(t, "dark", cfg.Chat.Style)
}

func TestLoadFromPath_Invalid(t *testing.T) {
	isolate(t)
	dir := t.TempDir()

	broken := filepath.Join(dir, "broken.toml")
	require.NoError(t, os.WriteFile(broken, []byte("[api\nbase_url="), 0600))
	_, err := LoadFromPath(broken)
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.toml")
	require.NoError(t, os.WriteFile(bad, []byte("[api]\nbase_url = \"ftp://x\"\n"), 0600))
	_, err = LoadFromPath(bad)
	var verrs ValidateErrors
	assert.True(t, errors.As(err, &verrs))

	_, err = LoadFromPath(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}

func TestLoad_NoFilesGivesDefaults(t *testing.T) {
	isolate(t)
	cfg, err := Load()
	require.NoError(t, err)
	if diff := cmp.Diff(Default(), cfg); diff != "" {
		t.Errorf("Load() without files differs from defaults (-want +got):\n%s", diff)
	}
}

func TestLoad_PrefersTOMLOverJSON(t *testing.T) {
	home := isolate(t)
	dir := filepath.Join(home, ".ragchat")
	require.NoError(t, os.MkdirAll(dir, 0700))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte("[chat]\nstyle = \"light\"\n"), 0600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.json"), []byte(`{"chat":{"style":"dark"}}`), 0600))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "light", cfg.Chat.Style)

	path, err := DefaultPath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "config.toml"), path)
}

func TestLoad_BrokenFileFallsBackToJSON(t *testing.T) {
	home := isolate(t)
	dir := filepath.Join(home, ".ragchat")
	require.NoError(t, os.MkdirAll(dir, 0700))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte("not toml ["), 0600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.json"), []byte(`{"chat":{"style":"dark"}}`), 0600))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "dark", cfg.Chat.Style)
}

func TestSaveTOML_RoundTrip(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "nested", "config.toml")

	cfg := Default()
	cfg.API.BaseURL = "https://rag.example.com/api"
	cfg.Upload.MaxAttempts = 12
	cfg.Auth.Token = "secret"
	require.NoError(t, SaveTOML(cfg, path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	if info.Mode().Perm() != 0600 {
		t.Errorf("mode = %v, want 0600", info.Mode().Perm())
	}
	raw, _ := os.ReadFile(path)
	assert.True(t, strings.HasPrefix(string(raw), "# ragchat configuration file"))

	loaded, err := LoadFromPath(path)
	require.NoError(t, err)
	if diff := cmp.Diff(cfg, loaded); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestSaveJSON_RoundTrip(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "config.json")

	cfg := Default()
	cfg.Chat.Markdown = false
	require.NoError(t, SaveJSON(cfg, path))

	loaded, err := LoadFromPath(path)
	require.NoError(t, err)
	if diff := cmp.Diff(cfg, loaded); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

// =============================================================================
// ENVIRONMENT
// =============================================================================

func TestApplyEnvOverrides(t *testing.T) {
	isolate(t)
	t.Setenv("RAGCHAT_API_URL", "https://env.example.com/api")
	t.Setenv("RAGCHAT_TIMEOUT", "9")
	t.Setenv("RAGCHAT_TOKEN", "tok")
	t.Setenv("RAGCHAT_MAX_UPLOAD_MB", "2")
	t.Setenv("RAGCHAT_POLL_ATTEMPTS", "not-a-number")
	t.Setenv("RAGCHAT_LOG_LEVEL", "warn")
	t.Setenv("RAGCHAT_MARKDOWN", "false")

	cfg := Default()
	cfg.ApplyEnvOverrides()

	assert.Equal(t, "https://env.example.com/api", cfg.API.BaseURL)
	assert.Equal(t, 9, cfg.API.TimeoutSeconds)
	assert.Equal(t, "tok", cfg.Auth.Token)
	assert.Equal(t, 2, cfg.Upload.MaxSizeMB)
	assert.Equal(t, 30, cfg.Upload.MaxAttempts, "unparseable value ignored")
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.False(t, cfg.Chat.Markdown)
}

func TestLoad_EnvBeatsFile(t *testing.T) {
	home := isolate(t)
	dir := filepath.Join(home, ".ragchat")
	require.NoError(t, os.MkdirAll(dir, 0700))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte("[logging]\nlevel = \"debug\"\n"), 0600))
	t.Setenv("RAGCHAT_LOG_LEVEL", "error")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "error", cfg.Logging.Level)
}

// =============================================================================
// HELPERS
// =============================================================================

func TestClone_IsDeep(t *testing.T) {
	orig := Default()
	cp := orig.Clone()
	cp.Upload.AllowedTypes[0] = "x/y"
	cp.Upload.ErrorMarkers[0] = "Oops"
	if orig.Upload.AllowedTypes[0] == "x/y" || orig.Upload.ErrorMarkers[0] == "Oops" {
		t.Error("Clone shares slices")
	}
}

func TestString_RedactsToken(t *testing.T) {
	cfg := Default()
	cfg.Auth.Token = "super-secret"
	s := cfg.String()
	if strings.Contains(s, "super-secret") || !strings.Contains(s, "[REDACTED]") {
		t.Errorf("token not redacted:\n%s", s)
	}
	if cfg.Auth.Token != "super-secret" {
		t.Error("String mutated the config")
	}
}

// =============================================================================
// GLOBAL
// =============================================================================

// Run with: go test -race ./internal/config/
func TestGlobal_ConcurrentAccess(t *testing.T) {
	isolate(t)
	ResetGlobalForTesting()
	t.Cleanup(ResetGlobalForTesting)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			c := Default()
			c.Version = "test"
			SetGlobal(c)
		}()
		go func() {
			defer wg.Done()
			if Global() == nil {
				t.Error("Global() returned nil")
			}
		}()
	}
	wg.Wait()
}

func TestGlobal_LoadsOnFirstUse(t *testing.T) {
	home := isolate(t)
	ResetGlobalForTesting()
	t.Cleanup(ResetGlobalForTesting)

	path := filepath.Join(home, ".ragchat", "config.toml")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0700))
	require.NoError(t, os.WriteFile(path, []byte("[chat]\nsidebar_width = 40\n"), 0600))

	assert.Equal(t, 40, Global().Chat.SidebarWidth)

	c := Default()
	SetGlobal(c)
	assert.Same(t, c, Global())
}
