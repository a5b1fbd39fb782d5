// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures shared by the chat controller.
//
// # Key Types
//
//   - Session: a conversation thread on the RAG service (opaque ID + title)
//   - Message: a single entry in the message log (user, assistant, or system)
//   - APIStatus: connectivity and document-readiness of the remote service
//   - UploadStatus: the displayed status of the upload pipeline
//
// All types are plain values. Components that share them replace whole
// values instead of mutating fields in place, so a reader never observes a
// half-updated status.
package model
