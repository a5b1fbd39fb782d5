// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/ragchat/internal/api"
)

// =============================================================================
// BUBBLE TEA INTEGRATION
// =============================================================================

// ChangedMsg carries the state after a change.
type ChangedMsg struct {
	Snapshot Snapshot
}

// ResultMsg reports the outcome of a command started with one of the *Cmd
// helpers.
type ResultMsg struct {
	Op  string
	Err error

	// Sent is set by SendCmd
	Sent bool
}

// WaitForChange resolves to ChangedMsg on the next change, or to nil once
// the controller is closed.
func WaitForChange(c *Controller) tea.Cmd {
	return func() tea.Msg {
		select {
		case <-c.changes:
			return ChangedMsg{Snapshot: c.Snapshot()}
		case <-c.done:
			return nil
		}
	}
}

// StartCmd runs Start.
func StartCmd(ctx context.Context, c *Controller) tea.Cmd {
	return func() tea.Msg {
		return ResultMsg{Op: "start", Err: c.Start(ctx)}
	}
}

// SendCmd runs Send.
func SendCmd(ctx context.Context, c *Controller, text string) tea.Cmd {
	return func() tea.Msg {
		sent, err := c.Send(ctx, text)
		return ResultMsg{Op: "send", Err: err, Sent: sent}
	}
}

// SwitchCmd runs SwitchSession.
func SwitchCmd(ctx context.Context, c *Controller, id string) tea.Cmd {
	return func() tea.Msg {
		return ResultMsg{Op: "switch", Err: c.SwitchSession(ctx, id)}
	}
}

// NewChatCmd runs NewChat.
func NewChatCmd(ctx context.Context, c *Controller) tea.Cmd {
	return func() tea.Msg {
		_, err := c.NewChat(ctx)
		return ResultMsg{Op: "new", Err: err}
	}
}

// DeleteCmd runs DeleteSession.
func DeleteCmd(ctx context.Context, c *Controller, id string) tea.Cmd {
	return func() tea.Msg {
		return ResultMsg{Op: "delete", Err: c.DeleteSession(ctx, id)}
	}
}

// UploadCmd runs Upload.
func UploadCmd(ctx context.Context, c *Controller, f api.File) tea.Cmd {
	return func() tea.Msg {
		return ResultMsg{Op: "upload", Err: c.Upload(ctx, f)}
	}
}

// ClearCmd runs ClearDocuments.
func ClearCmd(ctx context.Context, c *Controller) tea.Cmd {
	return func() tea.Msg {
		return ResultMsg{Op: "clear", Err: c.ClearDocuments(ctx)}
	}
}

// HealthCmd runs CheckHealth.
func HealthCmd(ctx context.Context, c *Controller) tea.Cmd {
	return func() tea.Msg {
		return ResultMsg{Op: "health", Err: c.CheckHealth(ctx)}
	}
}
