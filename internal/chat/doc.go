// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat composes the API client, session registry, message log and
// upload pipeline into the controller a UI shell drives.
//
// Controller methods block the calling goroutine until the remote call they
// wrap has finished. A shell runs them as goroutines or tea.Cmds and redraws
// from Snapshot whenever Changes fires. Results that arrive after the user
// has moved to another session are dropped rather than appended to the
// wrong conversation.
//
// # Key Types
//
//   - Controller: the orchestrator
//   - Snapshot: an immutable view for rendering
//   - Service: the remote operations the controller needs (*api.Client)
//
// # Usage
//
//	ctrl := chat.New(client, store, chat.WithLogger(log))
//	defer ctrl.Close()
//	_ = ctrl.Start(ctx)
//	_ = ctrl.SwitchSession(ctx, id)
//	sent, err := ctrl.Send(ctx, "Summarize the report")
//
// # Bubble Tea
//
// WaitForChange returns a tea.Cmd that resolves to ChangedMsg on the next
// state change; re-issue it from Update to keep listening. The *Cmd helpers
// wrap the blocking operations and report back with ResultMsg.
package chat
