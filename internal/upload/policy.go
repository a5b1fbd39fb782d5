// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package upload

import (
	"fmt"
	"mime"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/jeranaias/ragchat/internal/api"
)

// Accepted document types.
const (
	TypePDF  = "application/pdf"
	TypeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	TypeText = "text/plain"
)

// MsgBadType is shown when a file is not on the allow-list.
const MsgBadType = "Please upload a PDF, DOCX, or TXT file."

// extensionTypes is consulted when content sniffing only finds a container.
var extensionTypes = map[string]string{
	".pdf":  TypePDF,
	".docx": TypeDOCX,
	".txt":  TypeText,
}

// Policy holds the limits and timings of the pipeline.
type Policy struct {
	// MaxBytes is the largest accepted file (default: 16 MiB)
	MaxBytes int64

	// AllowedTypes is the MIME allow-list
	AllowedTypes []string

	// PollInterval is the wait between status polls (default: 1s)
	PollInterval time.Duration

	// MaxAttempts bounds the number of status polls (default: 30)
	MaxAttempts int

	// ResetDelay is how long a terminal status stays visible (default: 3s)
	ResetDelay time.Duration

	// ErrorMarkers classify a final processing message as a failure when
	// any of them occurs in it (default: "Error", "Failed")
	ErrorMarkers []string
}

// DefaultPolicy returns the default policy.
func DefaultPolicy() Policy {
	return Policy{
		MaxBytes:     16 << 20,
		AllowedTypes: []string{TypePDF, TypeDOCX, TypeText},
		PollInterval: time.Second,
		MaxAttempts:  30,
		ResetDelay:   3 * time.Second,
		ErrorMarkers: []string{"Error", "Failed"},
	}
}

// withDefaults fills zero fields from DefaultPolicy and copies the slices.
func (p Policy) withDefaults() Policy {
	def := DefaultPolicy()
	if p.MaxBytes <= 0 {
		p.MaxBytes = def.MaxBytes
	}
	if len(p.AllowedTypes) == 0 {
		p.AllowedTypes = def.AllowedTypes
	}
	if p.PollInterval <= 0 {
		p.PollInterval = def.PollInterval
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = def.MaxAttempts
	}
	if p.ResetDelay <= 0 {
		p.ResetDelay = def.ResetDelay
	}
	if p.ErrorMarkers == nil {
		p.ErrorMarkers = def.ErrorMarkers
	}
	p.AllowedTypes = append([]string(nil), p.AllowedTypes...)
	p.ErrorMarkers = append([]string(nil), p.ErrorMarkers...)
	return p
}

// Allows reports whether contentType is on the allow-list. MIME parameters
// such as charset are ignored.
func (p Policy) Allows(contentType string) bool {
	ct := normalizeType(contentType)
	for _, allowed := range p.AllowedTypes {
		if strings.EqualFold(ct, allowed) {
			return true
		}
	}
	return false
}

// IsFailure reports whether a final processing message names a failure.
func (p Policy) IsFailure(message string) bool {
	for _, marker := range p.ErrorMarkers {
		if marker != "" && strings.Contains(message, marker) {
			return true
		}
	}
	return false
}

// DetectType returns the content type of f. A caller-supplied type wins;
// otherwise the leading bytes are sniffed and, when that only yields a
// generic container, the file extension decides.
func (p Policy) DetectType(f api.File) string {
	if f.ContentType != "" {
		return normalizeType(f.ContentType)
	}

	mt := mimetype.Detect(f.Data)
	for _, allowed := range p.AllowedTypes {
		if mt.Is(allowed) {
			return allowed
		}
	}
	if byExt, ok := extensionTypes[strings.ToLower(filepath.Ext(f.Name))]; ok {
		if mt.Is("application/octet-stream") || mt.Is("application/zip") {
			return byExt
		}
	}
	return normalizeType(mt.String())
}

// Check validates f and returns it with its content type filled in. The type
// is checked before the size.
func (p Policy) Check(f api.File) (api.File, error) {
	p = p.withDefaults()
	f.ContentType = p.DetectType(f)
	if !p.Allows(f.ContentType) {
		return f, api.NewValidationError("upload", MsgBadType)
	}
	if f.Size() > p.MaxBytes {
		return f, api.NewValidationError("upload", TooLargeMessage(p.MaxBytes))
	}
	return f, nil
}

// TooLargeMessage is shown when a file exceeds max bytes, e.g.
// "File size must be less than 16MB.".
func TooLargeMessage(max int64) string {
	if max >= 1<<20 && max%(1<<20) == 0 {
		return fmt.Sprintf("File size must be less than %dMB.", max>>20)
	}
	return fmt.Sprintf("File size must be less than %d bytes.", max)
}

func normalizeType(ct string) string {
	if mediaType, _, err := mime.ParseMediaType(ct); err == nil {
		return mediaType
	}
	return strings.ToLower(strings.TrimSpace(ct))
}
