// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/jeranaias/ragchat/internal/chat"
	"github.com/jeranaias/ragchat/internal/config"
	"github.com/jeranaias/ragchat/internal/ui/shell"
	"github.com/jeranaias/ragchat/internal/ui/styles"
)

// =============================================================================
// INTERACTIVE MODE
// =============================================================================

func (a *app) runTUI(ctx context.Context) error {
	ctrl := a.newController()
	defer ctrl.Close()

	m := shell.New(ctx, ctrl, shell.Options{
		Chat:  config.Global().Chat,
		Theme: styles.NewTheme(),
	})
	p := tea.NewProgram(m,
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
		tea.WithContext(ctx),
	)

	if w := a.watchConfig(ctrl, p); w != nil {
		defer w.Close()
	}

	a.log.Info("TUI_STARTED", zap.String("base_url", config.Global().API.BaseURL))
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

// watchConfig hot-reloads the config file while the shell runs. It returns
// nil when the file's directory cannot be watched.
func (a *app) watchConfig(ctrl *chat.Controller, p *tea.Program) *config.Watcher {
	if a.cfgPath == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(a.cfgPath), 0700); err != nil {
		a.log.Debug("CONFIG_WATCH_DISABLED", zap.Error(err))
		return nil
	}

	w, err := config.Watch(a.cfgPath, config.DefaultDebounce,
		func(cfg *config.Config) {
			a.reload(ctrl, cfg)
			p.Send(shell.ConfigMsg{Chat: cfg.Chat})
		},
		func(err error) {
			a.log.Warn("CONFIG_RELOAD_FAILED", zap.String("path", a.cfgPath), zap.Error(err))
		})
	if err != nil {
		a.log.Debug("CONFIG_WATCH_DISABLED", zap.Error(err))
		return nil
	}
	return w
}

// reload applies the parts of a new config that can change at runtime.
// Command-line flags keep precedence.
func (a *app) reload(ctrl *chat.Controller, cfg *config.Config) {
	if a.cmd != nil {
		a.applyFlags(a.cmd, cfg)
	}

	ctrl.SetUploadPolicy(cfg.Upload.Policy())
	if err := a.log.SetLevel(cfg.Logging.Level); err != nil {
		a.log.Warn("CONFIG_RELOAD_FAILED", zap.Error(err))
	}
	if cfg.Auth.Token != a.store.Token() {
		a.store.SetToken(cfg.Auth.Token)
	}
	if cfg.API.BaseURL != config.Global().API.BaseURL {
		a.log.Warn("CONFIG_RESTART_REQUIRED", zap.String("field", "api.base_url"))
	}

	config.SetGlobal(cfg)
	a.log.Info("CONFIG_RELOADED", zap.String("path", a.cfgPath))
}
