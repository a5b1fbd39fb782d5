// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for ragchat.
//
// Supports both TOML and JSON configuration formats, with sensible defaults,
// .env files, environment variable overrides, and validation.
//
// # Key Types
//
//   - Config: Main configuration structure with all settings
//   - APIConfig: RAG service location, timeout and throttle
//   - UploadConfig: Upload limits and poll timings
//   - LoggingConfig: Log level and rotating log file
//   - Watcher: Reloads the file when it changes on disk
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Environment variables (RAGCHAT_*), including those from ./.env
//   - ~/.ragchat/config.toml
//   - ~/.ragchat/config.json
//   - Built-in defaults
//
// # Usage
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	client, err := api.NewClient(cfg.API.ClientConfig(), auth.NewStore(cfg.Auth.Token))
package config
