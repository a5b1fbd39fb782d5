// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

// ChatRequest is the body of POST /chat.
type ChatRequest struct {
	Message   string  `json:"message"`
	SessionID *string `json:"session_id"` // null when no session is active
}

// File is a document handed to Upload. ContentType may be empty, in which
// case the upload pipeline detects it before validation.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// Size returns the file size in bytes.
func (f File) Size() int64 {
	return int64(len(f.Data))
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status          string `json:"status"`
	Message         string `json:"message"`
	DocumentsLoaded bool   `json:"documents_loaded"`
	ChunksCount     int    `json:"chunks_count"`
}

// SessionRecord is one entry of GET /history, or the body of POST /history.
type SessionRecord struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// HistoryRecord is one message of GET /history/{id}.
type HistoryRecord struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt Timestamp `json:"created_at"`
}

// ChatResponse is returned by POST /chat.
type ChatResponse struct {
	Response   string   `json:"response"`
	Sources    []string `json:"sources"`
	ChunksUsed int      `json:"chunks_used"`
	Query      string   `json:"query,omitempty"`
}

// UploadResponse is returned by POST /upload on success.
type UploadResponse struct {
	Message  string `json:"message"`
	Filename string `json:"filename"`
	Status   string `json:"status"`
}

// ProcessingStatus is returned by GET /upload/status.
type ProcessingStatus struct {
	IsProcessing bool   `json:"is_processing"`
	Message      string `json:"message"`
	Progress     int    `json:"progress"`
	CurrentFile  string `json:"current_file"`
}

// ClearResponse is returned by POST /clear.
type ClearResponse struct {
	Message     string `json:"message"`
	ChunksCount int    `json:"chunks_count"`
}

// InfoResponse is returned by GET /info.
type InfoResponse struct {
	DocumentsLoaded bool   `json:"documents_loaded"`
	ChunksCount     int    `json:"chunks_count"`
	CurrentFile     string `json:"current_file"`
	IsProcessing    bool   `json:"is_processing"`
}

// errorBody is the {"error": "..."} shape of failed responses.
type errorBody struct {
	Error string `json:"error"`
}

// =============================================================================
// TIMESTAMP
// =============================================================================

// Timestamp accepts the date formats the service has been seen to emit:
// RFC 3339, naive ISO 8601 (treated as UTC), "YYYY-MM-DD HH:MM:SS" and the
// RFC 1123 form produced by default JSON encoders. Null or empty is zero.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	http.TimeFormat,
	time.RFC1123Z,
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		t.Time = time.Time{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		t.Time = time.Time{}
		return nil
	}
	var lastErr error
	for _, layout := range timestampLayouts {
		parsed, err := time.ParseInLocation(layout, s, time.UTC)
		if err == nil {
			t.Time = parsed
			return nil
		}
		lastErr = err
	}
	return lastErr
}

// MarshalJSON implements json.Marshaler.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.UTC().Format(time.RFC3339Nano))
}
