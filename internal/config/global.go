// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import "sync"

// =============================================================================
// GLOBAL CONFIG
// =============================================================================

var (
	globalConfig *Config
	globalMu     sync.RWMutex
)

// Global returns the process-wide config, loading it on first use.
// A load failure leaves the defaults in place.
func Global() *Config {
	globalMu.RLock()
	cfg := globalConfig
	globalMu.RUnlock()
	if cfg != nil {
		return cfg
	}

	globalMu.Lock()
	defer globalMu.Unlock()
	if globalConfig == nil {
		loaded, err := Load()
		if err != nil || loaded == nil {
			loaded = Default()
		}
		globalConfig = loaded
	}
	return globalConfig
}

// SetGlobal replaces the process-wide config. The watcher calls this after
// every successful reload.
func SetGlobal(cfg *Config) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalConfig = cfg
}

// ResetGlobalForTesting clears the process-wide config.
func ResetGlobalForTesting() {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalConfig = nil
}
