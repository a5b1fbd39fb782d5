// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures shared by the chat controller.
package model

import (
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleAssistant:
		return "Assistant"
	case RoleSystem:
		return "System"
	default:
		return string(r)
	}
}

// RoleFromServer maps a role string from the history endpoint.
// Only "assistant" is treated as the bot; everything else is the user.
func RoleFromServer(role string) Role {
	if role == string(RoleAssistant) {
		return RoleAssistant
	}
	return RoleUser
}

// =============================================================================
// KIND TYPE
// =============================================================================

// Kind tags a system message for presentation. It carries no logic.
type Kind string

const (
	KindNone    Kind = ""
	KindInfo    Kind = "info"
	KindSuccess Kind = "success"
	KindError   Kind = "error"
)

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Message represents a single entry in the message log.
type Message struct {
	ID        int64     `json:"id"`
	Role      Role      `json:"role"`
	Kind      Kind      `json:"kind,omitempty"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`

	// Retrieval metadata (assistant messages only)
	Sources    []string `json:"sources,omitempty"`
	ChunksUsed int      `json:"chunks_used,omitempty"`
}

var lastID atomic.Int64

// NextID returns a process-wide unique, increasing message ID.
func NextID() int64 {
	return lastID.Add(1)
}

// NewMessage creates a message with a fresh ID and the given timestamp.
func NewMessage(role Role, text string, ts time.Time) Message {
	return Message{
		ID:        NextID(),
		Role:      role,
		Text:      text,
		Timestamp: ts,
	}
}

// IsSystem reports whether the message is a local notice rather than a
// conversation turn.
func (m Message) IsSystem() bool {
	return m.Role == RoleSystem
}

// HasSources reports whether the reply cited any documents.
func (m Message) HasSources() bool {
	return len(m.Sources) > 0
}

// Preview returns a truncated preview of the message text.
// Uses rune-based truncation to handle Unicode correctly.
func (m Message) Preview(maxLen int) string {
	runes := []rune(m.Text)
	if maxLen <= 3 || len(runes) <= maxLen {
		return m.Text
	}
	return string(runes[:maxLen-3]) + "..."
}

// Clone returns a copy that shares no slices with m.
func (m Message) Clone() Message {
	if m.Sources != nil {
		m.Sources = append([]string(nil), m.Sources...)
	}
	return m
}

// FormatSources renders the one-line source summary appended after a reply,
// e.g. "Sources: doc1.pdf (2 chunks used)".
func FormatSources(sources []string, chunksUsed int) string {
	return "Sources: " + strings.Join(sources, ", ") + " (" + strconv.Itoa(chunksUsed) + " chunks used)"
}
