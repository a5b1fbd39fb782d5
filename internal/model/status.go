// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import "time"

// =============================================================================
// SESSION
// =============================================================================

// Session is a conversation thread persisted by the remote service.
type Session struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// =============================================================================
// API STATUS
// =============================================================================

// APIStatus describes connectivity and document readiness of the RAG service.
type APIStatus struct {
	Connected       bool      `json:"connected"`
	DocumentsLoaded bool      `json:"documents_loaded"`
	ChunksCount     int       `json:"chunks_count,omitempty"`
	CheckedAt       time.Time `json:"checked_at"`
}

// Disconnected is the status recorded when the service cannot be reached.
func Disconnected(at time.Time) APIStatus {
	return APIStatus{CheckedAt: at}
}

// Label returns the short connectivity label shown next to the assistant name.
func (s APIStatus) Label() string {
	switch {
	case !s.Connected:
		return "Disconnected"
	case s.DocumentsLoaded:
		return "Document loaded"
	default:
		return "Ready for upload"
	}
}

// =============================================================================
// UPLOAD STATUS
// =============================================================================

// Phase is the displayed phase of the upload pipeline.
type Phase string

const (
	PhaseIdle    Phase = "idle"
	PhaseLoading Phase = "loading"
	PhaseSuccess Phase = "success"
	PhaseError   Phase = "error"
)

// IsTerminal reports whether the phase ends an upload.
func (p Phase) IsTerminal() bool {
	return p == PhaseSuccess || p == PhaseError
}

// UploadStatus is the transient status line of the upload pipeline.
type UploadStatus struct {
	Message string `json:"message"`
	Phase   Phase  `json:"phase"`
}

// IdleUpload is the empty status shown when no upload is in progress.
var IdleUpload = UploadStatus{Phase: PhaseIdle}

// IsIdle reports whether nothing should be displayed.
func (s UploadStatus) IsIdle() bool {
	return s.Phase == PhaseIdle || s.Phase == ""
}
