// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jeranaias/ragchat/internal/api"
	"github.com/jeranaias/ragchat/internal/chat"
	"github.com/jeranaias/ragchat/internal/config"
	"github.com/jeranaias/ragchat/internal/model"
	"github.com/jeranaias/ragchat/internal/ui/styles"
	"github.com/jeranaias/ragchat/internal/upload"
)

// =============================================================================
// HEALTH
// =============================================================================

func (a *app) healthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check that the RAG service is reachable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctrl := a.newController()
			defer ctrl.Close()

			if err := ctrl.CheckHealth(cmd.Context()); err != nil {
				fmt.Fprintln(a.out, styles.RenderError("Disconnected: "+err.Error()))
				return err
			}
			status := ctrl.APIStatus()
			fmt.Fprintln(a.out, styles.RenderSuccess(fmt.Sprintf("%s (%d chunks)", status.Label(), status.ChunksCount)))

			if info, err := ctrl.Info(cmd.Context()); err == nil && info.CurrentFile != "" {
				fmt.Fprintf(a.out, "Current file: %s\n", info.CurrentFile)
			}
			return nil
		},
	}
}

// =============================================================================
// SESSIONS
// =============================================================================

func (a *app) sessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "sessions",
		Aliases: []string{"session", "ls"},
		Short:   "List chat sessions",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctrl := a.newController()
			defer ctrl.Close()
			if err := ctrl.RefreshSessions(cmd.Context()); err != nil {
				return err
			}
			printSessions(a.out, ctrl.Snapshot().Sessions)
			return nil
		},
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "new",
			Short: "Create a chat session",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				ctrl := a.newController()
				defer ctrl.Close()
				s, err := ctrl.NewChat(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(a.out, "%s\t%s\n", s.ID, s.Title)
				return nil
			},
		},
		&cobra.Command{
			Use:   "delete ID",
			Short: "Delete a chat session",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				ctrl := a.newController()
				defer ctrl.Close()
				if err := ctrl.DeleteSession(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(a.out, "Deleted %s\n", args[0])
				return nil
			},
		},
		&cobra.Command{
			Use:   "show ID",
			Short: "Print a session's history",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				ctrl := a.newController()
				defer ctrl.Close()
				if err := ctrl.SwitchSession(cmd.Context(), args[0]); err != nil {
					return err
				}
				printMessages(a.out, ctrl.Snapshot().Messages)
				return nil
			},
		},
	)
	return cmd
}

// =============================================================================
// ASK
// =============================================================================

func (a *app) askCmd() *cobra.Command {
	var sessionID string
	var newChat bool

	cmd := &cobra.Command{
		Use:   "ask QUESTION...",
		Short: "Ask one question and print the answer",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			ctrl := a.newController()
			defer ctrl.Close()

			if err := ctrl.CheckHealth(ctx); err != nil {
				return err
			}
			if err := a.enterSession(ctx, ctrl, sessionID, newChat); err != nil {
				return err
			}

			before := len(ctrl.Snapshot().Messages)
			_, err := ctrl.Send(ctx, strings.Join(args, " "))
			msgs := ctrl.Snapshot().Messages
			if before < len(msgs) {
				// skip the echoed question
				printMessages(a.out, msgs[before+1:])
			}
			return err
		},
	}
	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "Session to ask in")
	cmd.Flags().BoolVar(&newChat, "new", false, "Start a new session")
	return cmd
}

// enterSession selects id, or creates a session when id is empty.
func (a *app) enterSession(ctx context.Context, ctrl *chat.Controller, id string, forceNew bool) error {
	if id != "" && forceNew {
		return errors.New("--session and --new are mutually exclusive")
	}
	if id != "" {
		return ctrl.SwitchSession(ctx, id)
	}
	s, err := ctrl.NewChat(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Session %s\n", s.ID)
	return nil
}

// =============================================================================
// UPLOAD / CLEAR
// =============================================================================

func (a *app) uploadCmd() *cobra.Command {
	var sessionID string

	cmd := &cobra.Command{
		Use:   "upload PATH",
		Short: "Upload a PDF, DOCX or TXT document and wait for processing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			ctrl := a.newController()
			defer ctrl.Close()

			// size is checked from the file's metadata before a session is created
			f, err := upload.ReadFile(args[0], ctrl.UploadPolicy().MaxBytes)
			if err != nil {
				if api.KindOf(err) == api.KindValidation {
					fmt.Fprintln(a.out, styles.RenderError(api.ServerMessage(err, upload.MsgBadType)))
				}
				return err
			}
			if err := a.enterSession(ctx, ctrl, sessionID, false); err != nil {
				return err
			}

			before := len(ctrl.Snapshot().Messages)
			err = ctrl.Upload(ctx, f)
			snap := ctrl.Snapshot()
			printMessages(a.out, snap.Messages[before:])
			if err != nil && api.KindOf(err) == api.KindValidation {
				fmt.Fprintln(a.out, styles.RenderError(snap.UploadStatus.Message))
			}
			return err
		},
	}
	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "Session to upload into (default: a new one)")
	return cmd
}

func (a *app) clearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove all documents from the service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctrl := a.newController()
			defer ctrl.Close()
			before := len(ctrl.Snapshot().Messages)
			err := ctrl.ClearDocuments(cmd.Context())
			printMessages(a.out, ctrl.Snapshot().Messages[before:])
			return err
		},
	}
}

// =============================================================================
// CONFIG
// =============================================================================

func (a *app) configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or create the configuration file",
	}

	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := a.cfgPath
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			var err error
			if strings.EqualFold(filepath.Ext(path), ".json") {
				err = config.SaveJSON(config.Default(), path)
			} else {
				err = config.SaveTOML(config.Default(), path)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Wrote %s\n", path)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Print the effective configuration (token redacted)",
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintln(a.out, config.Global().String())
			},
		},
		&cobra.Command{
			Use:   "path",
			Short: "Print the config file path",
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintln(a.out, a.cfgPath)
			},
		},
		initCmd,
	)
	return cmd
}

// =============================================================================
// OUTPUT
// =============================================================================

func printSessions(w io.Writer, sessions []model.Session) {
	if len(sessions) == 0 {
		fmt.Fprintln(w, "No sessions.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tID\tTITLE")
	for i, s := range sessions {
		fmt.Fprintf(tw, "%d\t%s\t%s\n", i+1, s.ID, s.Title)
	}
	tw.Flush()
}

func printMessages(w io.Writer, msgs []model.Message) {
	for _, m := range msgs {
		switch {
		case m.Role != model.RoleSystem:
			fmt.Fprintf(w, "%s: %s\n", m.Role.DisplayName(), m.Text)
		case m.Kind == model.KindError:
			fmt.Fprintln(w, styles.RenderError(m.Text))
		case m.Kind == model.KindSuccess:
			fmt.Fprintln(w, styles.RenderSuccess(m.Text))
		default:
			fmt.Fprintln(w, styles.RenderInfo(m.Text))
		}
	}
}
