// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package auth defines the credential collaborator consumed by the API
// client and the chat controller.
//
// Token acquisition and refresh belong to the host application. The
// controller only reads the current bearer token, asks whether the user is
// signed in, and listens for sign-in/sign-out transitions.
package auth

import (
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Provider is the minimal view of the authentication subsystem.
type Provider interface {
	// Token returns the current bearer credential, or "" when signed out.
	Token() string

	// IsAuthenticated reports whether a usable credential is present.
	IsAuthenticated() bool

	// OnAuthChange registers fn to be called after every sign-in or
	// sign-out. The returned func removes the listener.
	OnAuthChange(fn func(authenticated bool)) (unsubscribe func())
}

// =============================================================================
// IN-MEMORY STORE
// =============================================================================

// Store is an in-memory Provider. The host sets the token after login and
// clears it on logout.
//
// When the token is a JWT carrying an "exp" claim, IsAuthenticated turns
// false once it has passed. The signature is never verified here; the
// remote service does that and answers 401 when it disagrees.
type Store struct {
	mu        sync.Mutex
	token     string
	claims    jwt.MapClaims
	listeners map[int]func(bool)
	nextID    int
	now       func() time.Time
}

// NewStore creates a Store holding token (may be empty).
func NewStore(token string) *Store {
	s := &Store{
		listeners: make(map[int]func(bool)),
		now:       time.Now,
	}
	s.token, s.claims = token, parseClaims(token)
	return s
}

// Token returns the current bearer credential.
func (s *Store) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// IsAuthenticated reports whether a non-expired token is held.
func (s *Store) IsAuthenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authenticatedLocked()
}

// Subject returns the "username" claim, falling back to "sub", of a JWT
// token. It returns "" for opaque tokens.
func (s *Store) Subject() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.claims == nil {
		return ""
	}
	if name, ok := s.claims["username"].(string); ok && name != "" {
		return name
	}
	sub, _ := s.claims.GetSubject()
	return sub
}

// SetToken installs a new credential and notifies listeners.
func (s *Store) SetToken(token string) {
	s.mu.Lock()
	s.token, s.claims = token, parseClaims(token)
	state := s.authenticatedLocked()
	fns := s.snapshotLocked()
	s.mu.Unlock()

	for _, fn := range fns {
		fn(state)
	}
}

// Clear signs out and notifies listeners.
func (s *Store) Clear() {
	s.SetToken("")
}

// OnAuthChange registers a listener. Listeners run synchronously on the
// goroutine calling SetToken or Clear, outside the store's lock.
func (s *Store) OnAuthChange(fn func(authenticated bool)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

// SetClock overrides the time source used for expiry checks.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *Store) authenticatedLocked() bool {
	if s.token == "" {
		return false
	}
	if s.claims == nil {
		return true
	}
	exp, err := s.claims.GetExpirationTime()
	if err != nil || exp == nil {
		return true
	}
	return s.now().Before(exp.Time)
}

func (s *Store) snapshotLocked() []func(bool) {
	fns := make([]func(bool), 0, len(s.listeners))
	for i := 0; i < s.nextID; i++ {
		if fn, ok := s.listeners[i]; ok {
			fns = append(fns, fn)
		}
	}
	return fns
}

// parseClaims extracts claims from a JWT without verifying it. Opaque
// tokens yield nil.
func parseClaims(token string) jwt.MapClaims {
	if token == "" {
		return nil
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil
	}
	return claims
}
