// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package api provides the HTTP client for the remote RAG service.
//
// Every call carries the bearer token from the auth collaborator, the
// header that disables tunnelling-proxy interstitials, and a fresh
// X-Request-ID. Calls return either a typed payload or an *Error whose Kind
// places the failure in the controller's taxonomy.
//
// # Key Types
//
//   - Client: typed wrapper over the service endpoints
//   - Error, ErrorKind: failure taxonomy (validation, network, server,
//     unauthorized, attempts exhausted, invalid response)
//   - File: an in-memory document handed to Upload
//
// # Usage
//
//	client, err := api.NewClient(api.DefaultConfig(), auth.NewStore(token))
//	health, err := client.Health(ctx)
//	reply, err := client.SendChat(ctx, "What is in the report?", sessionID)
//
// The client never refreshes credentials. A 401 or 403 comes back as
// KindUnauthorized with the server's text intact.
package api
