// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session tracks the user's chat sessions and which one is active.
//
// Sessions are persisted by the remote service; the Registry only caches the
// last listing and the active id. Selecting a session does nothing beyond
// recording the id and notifying listeners. The chat controller listens and
// reloads the message log.
//
// # Key Types
//
//   - Registry: cached session list plus active selection
//   - Backend: the subset of the API client the registry calls
//
// # Usage
//
//	reg := session.NewRegistry(client, session.WithLogger(log))
//	reg.OnSelect(func(id string) { ... })
//	_ = reg.Refresh(ctx)
//	s, err := reg.Create(ctx) // selects the new session
//
// Deleting the active session clears the selection before the request is
// sent, so the UI falls back to the greeting even if the delete fails.
package session
