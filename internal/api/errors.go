// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"errors"
	"strconv"
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// ErrorKind categorizes failures for handling.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	// KindValidation: input rejected locally before any network call
	KindValidation
	// KindNetwork: the request could not complete
	KindNetwork
	// KindServer: non-2xx response
	KindServer
	// KindUnauthorized: 401/403 from the service
	KindUnauthorized
	// KindAttemptsExhausted: a polling bound was reached
	KindAttemptsExhausted
	// KindInvalidResponse: 2xx with a body that could not be decoded
	KindInvalidResponse
)

// String returns the name of the kind.
func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNetwork:
		return "network"
	case KindServer:
		return "server"
	case KindUnauthorized:
		return "unauthorized"
	case KindAttemptsExhausted:
		return "attempts_exhausted"
	case KindInvalidResponse:
		return "invalid_response"
	default:
		return "unknown"
	}
}

// Error is returned by every Client method.
type Error struct {
	Kind ErrorKind

	// Op names the operation, e.g. "send chat"
	Op string

	// Message is the human-readable description
	Message string

	// Detail is the text from the server's {"error": ...} body, if any
	Detail string

	// StatusCode is the HTTP status for server/unauthorized errors
	StatusCode int

	Cause error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Cause != nil {
		return msg + ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches sentinel errors by kind, so errors.Is(err, ErrUnauthorized)
// holds for every unauthorized response.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Op == "" && t.StatusCode == 0
}

// Sentinel errors for kind checks.
var (
	ErrValidation        = &Error{Kind: KindValidation, Message: "invalid input"}
	ErrNetwork           = &Error{Kind: KindNetwork, Message: "request could not complete"}
	ErrServer            = &Error{Kind: KindServer, Message: "server error"}
	ErrUnauthorized      = &Error{Kind: KindUnauthorized, Message: "unauthorized"}
	ErrAttemptsExhausted = &Error{Kind: KindAttemptsExhausted, Message: "attempts exhausted"}
	ErrInvalidResponse   = &Error{Kind: KindInvalidResponse, Message: "invalid response"}
)

// KindOf returns the kind of err, or KindUnknown for foreign errors.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// ServerMessage returns the text a user should see for err. Server and
// unauthorized errors yield the server-provided text when there is one,
// otherwise fallback. Other errors yield their message.
func ServerMessage(err error, fallback string) string {
	if err == nil {
		return ""
	}
	var e *Error
	if !errors.As(err, &e) {
		return err.Error()
	}
	switch e.Kind {
	case KindServer, KindUnauthorized, KindInvalidResponse:
		if e.Detail != "" {
			return e.Detail
		}
		return fallback
	default:
		return e.Message
	}
}

// NewValidationError builds a KindValidation error.
func NewValidationError(op, message string) *Error {
	return &Error{Kind: KindValidation, Op: op, Message: message, Detail: message}
}

func statusError(op string, code int, status, detail string) *Error {
	kind := KindServer
	if code == 401 || code == 403 {
		kind = KindUnauthorized
	}
	msg := detail
	if msg == "" {
		msg = "unexpected status " + strconv.Itoa(code)
		if status != "" {
			msg = "unexpected status " + status
		}
	}
	return &Error{Kind: kind, Op: op, Message: msg, Detail: detail, StatusCode: code}
}
