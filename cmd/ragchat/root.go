// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jeranaias/ragchat/internal/api"
	"github.com/jeranaias/ragchat/internal/auth"
	"github.com/jeranaias/ragchat/internal/chat"
	"github.com/jeranaias/ragchat/internal/config"
	"github.com/jeranaias/ragchat/internal/logging"
)

// =============================================================================
// APPLICATION
// =============================================================================

// app holds what every subcommand shares once flags are parsed.
type app struct {
	// Global flags
	configPath string
	baseURL    string
	token      string
	logLevel   string
	timeout    time.Duration

	// the loaded config itself lives in config.Global so reloads reach
	// every reader
	cfgPath string
	log     *logging.Logger
	store   *auth.Store
	client  *api.Client

	// command whose flags were parsed
	cmd *cobra.Command

	// stdout for non-interactive output; tests replace it
	out io.Writer
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "ragchat",
		Short: "Chat with your documents through a RAG service",
		Long: `ragchat is a terminal client for a retrieval-augmented chat service.

Upload PDF, DOCX or TXT documents, then ask questions about them in
persistent chat sessions. Run without arguments to start the interactive
interface.`,
		Version:       fmt.Sprintf("%s (commit %s, built %s)", Version, GitCommit, BuildDate),
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd, cmd == cmd.Root())
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			a.teardown()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runTUI(cmd.Context())
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&a.configPath, "config", "c", "", "Config file (default: ~/.ragchat/config.toml)")
	flags.StringVar(&a.baseURL, "base-url", "", "RAG service base URL (overrides config)")
	flags.StringVar(&a.token, "token", "", "Bearer token (overrides config and RAGCHAT_TOKEN)")
	flags.StringVar(&a.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	flags.DurationVar(&a.timeout, "timeout", 0, "Per-request timeout (overrides config)")

	root.AddCommand(
		a.healthCmd(),
		a.sessionsCmd(),
		a.askCmd(),
		a.uploadCmd(),
		a.clearCmd(),
		a.configCmd(),
	)
	return root
}

// setup loads configuration, builds the logger and the API client.
// Interactive mode keeps the console quiet and logs to a file instead.
func (a *app) setup(cmd *cobra.Command, interactive bool) error {
	a.cmd = cmd
	if a.out == nil {
		a.out = cmd.OutOrStdout()
	}

	cfg, path, err := a.loadConfig()
	if err != nil {
		return err
	}
	a.applyFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	a.cfgPath = path
	config.SetGlobal(cfg)

	opts := cfg.Logging.Options()
	if interactive {
		opts.Console = io.Discard
		if opts.File == "" {
			if dir, err := config.ConfigDir(); err == nil {
				opts.File = filepath.Join(dir, "ragchat.log")
			}
		}
	} else {
		opts.Console = cmd.ErrOrStderr()
	}
	a.log, err = logging.New(opts)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}

	a.store = auth.NewStore(cfg.Auth.Token)
	a.client, err = api.NewClient(cfg.API.ClientConfig(), a.store, api.WithLogger(a.log.Logger))
	if err != nil {
		return err
	}

	a.log.Debug("CONFIG_LOADED",
		zap.String("path", path),
		zap.String("base_url", cfg.API.BaseURL),
		zap.Bool("interactive", interactive))
	return nil
}

func (a *app) loadConfig() (*config.Config, string, error) {
	if a.configPath != "" {
		cfg, err := config.LoadFromPath(a.configPath)
		return cfg, a.configPath, err
	}

	path, err := config.DefaultPath()
	if err != nil {
		return nil, "", err
	}
	cfg, err := config.Load()
	if err != nil {
		if cfg == nil {
			return nil, "", err
		}
		// broken file on disk: keep going on defaults
		fmt.Fprintf(a.out, "warning: %v (using defaults)\n", err)
	}
	return cfg, path, nil
}

// applyFlags lets explicitly set flags win over file and environment.
func (a *app) applyFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("base-url") {
		cfg.API.BaseURL = a.baseURL
	}
	if flags.Changed("token") {
		cfg.Auth.Token = a.token
	}
	if flags.Changed("log-level") {
		cfg.Logging.Level = a.logLevel
	}
	if flags.Changed("timeout") {
		cfg.API.TimeoutSeconds = int(a.timeout / time.Second)
	}
}

func (a *app) teardown() {
	if a.log != nil {
		_ = a.log.Close()
	}
}

// newController wires a controller for the loaded configuration.
func (a *app) newController(opts ...chat.Option) *chat.Controller {
	base := []chat.Option{
		chat.WithUploadPolicy(config.Global().Upload.Policy()),
		chat.WithLogger(a.log.Logger),
	}
	return chat.New(a.client, a.store, append(base, opts...)...)
}
