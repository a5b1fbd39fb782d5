// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"slices"
	"sync"

	"go.uber.org/zap"

	"github.com/jeranaias/ragchat/internal/api"
	"github.com/jeranaias/ragchat/internal/logging"
	"github.com/jeranaias/ragchat/internal/model"
)

// Backend is implemented by *api.Client.
type Backend interface {
	ListSessions(ctx context.Context) ([]api.SessionRecord, error)
	CreateSession(ctx context.Context) (*api.SessionRecord, error)
	DeleteSession(ctx context.Context, id string) error
}

// =============================================================================
// REGISTRY
// =============================================================================

// Registry caches the session list and the active session id.
type Registry struct {
	mu sync.Mutex

	backend  Backend
	sessions []model.Session
	active   string

	// refresh generations: issued counts started refreshes, applied is the
	// newest one whose result is in sessions
	issued  uint64
	applied uint64

	// Callbacks
	onSelect []func(id string)
	onList   []func([]model.Session)

	log *zap.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Registry) {
		r.log = logging.OrNop(l).Named("session")
	}
}

// NewRegistry creates an empty registry with nothing selected.
func NewRegistry(backend Backend, opts ...Option) *Registry {
	r := &Registry{
		backend: backend,
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// =============================================================================
// STATE
// =============================================================================

// Sessions returns a copy of the cached list in server order.
func (r *Registry) Sessions() []model.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.Session(nil), r.sessions...)
}

// Active returns the selected session id, or "".
func (r *Registry) Active() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// Find looks up a cached session by id.
func (r *Registry) Find(id string) (model.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.sessions {
		if s.ID == id {
			return s, true
		}
	}
	return model.Session{}, false
}

// =============================================================================
// SELECTION
// =============================================================================

// Select makes id the active session and notifies listeners. Selecting the
// already active id is a no-op and returns false.
func (r *Registry) Select(id string) bool {
	r.mu.Lock()
	if r.active == id {
		r.mu.Unlock()
		return false
	}
	r.active = id
	fns := slices.Clone(r.onSelect)
	r.mu.Unlock()

	r.log.Debug("SESSION_SELECTED", zap.String("session", id))
	for _, fn := range fns {
		fn(id)
	}
	return true
}

// Clear deselects the active session.
func (r *Registry) Clear() bool {
	return r.Select("")
}

// Reset forgets the cached list and the selection, e.g. on sign-out.
func (r *Registry) Reset() {
	r.mu.Lock()
	r.sessions = nil
	r.issued++
	r.applied = r.issued
	listFns := slices.Clone(r.onList)
	r.mu.Unlock()

	r.Clear()
	for _, fn := range listFns {
		fn(nil)
	}
}

// =============================================================================
// REMOTE OPERATIONS
// =============================================================================

// Refresh reloads the list. On failure the cache is kept and the error is
// logged and returned. A response older than one already applied is
// dropped.
func (r *Registry) Refresh(ctx context.Context) error {
	r.mu.Lock()
	r.issued++
	gen := r.issued
	r.mu.Unlock()

	records, err := r.backend.ListSessions(ctx)
	if err != nil {
		r.log.Warn("SESSION_REFRESH_FAILED", zap.Error(err))
		return err
	}

	list := make([]model.Session, 0, len(records))
	for _, rec := range records {
		list = append(list, model.Session{ID: rec.ID, Title: rec.Title})
	}

	r.mu.Lock()
	if gen < r.applied {
		r.mu.Unlock()
		r.log.Debug("SESSION_LIST_STALE_DISCARDED", zap.Uint64("generation", gen), zap.Int("count", len(list)))
		return nil
	}
	r.applied = gen
	r.sessions = list
	fns := slices.Clone(r.onList)
	r.mu.Unlock()

	r.log.Debug("SESSION_LIST_REFRESHED", zap.Int("count", len(list)))
	for _, fn := range fns {
		fn(append([]model.Session(nil), list...))
	}
	return nil
}

// Create starts a new session on the service and selects it.
func (r *Registry) Create(ctx context.Context) (model.Session, error) {
	rec, err := r.backend.CreateSession(ctx)
	if err != nil {
		r.log.Warn("SESSION_CREATE_FAILED", zap.Error(err))
		return model.Session{}, err
	}
	s := model.Session{ID: rec.ID, Title: rec.Title}
	r.log.Info("SESSION_CREATED", zap.String("session", s.ID))
	r.Select(s.ID)
	return s, nil
}

// Delete removes session id. The selection is cleared first when id is
// active, and the list is refreshed whatever the outcome. Only a rejection
// by the service is returned; transport failures are logged.
func (r *Registry) Delete(ctx context.Context, id string) error {
	if id == "" {
		return api.NewValidationError("delete session", "session id is required")
	}
	if r.Active() == id {
		r.Clear()
	}

	err := r.backend.DeleteSession(ctx, id)
	_ = r.Refresh(ctx)

	if err == nil {
		r.log.Info("SESSION_DELETED", zap.String("session", id))
		return nil
	}
	r.log.Warn("SESSION_DELETE_FAILED", zap.String("session", id), zap.Error(err))
	switch api.KindOf(err) {
	case api.KindServer, api.KindUnauthorized:
		return err
	default:
		return nil
	}
}

// =============================================================================
// CALLBACKS
// =============================================================================

// OnSelect registers fn to run after each selection change, outside the lock.
func (r *Registry) OnSelect(fn func(id string)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onSelect = append(r.onSelect, fn)
}

// OnListChange registers fn to run after each successful refresh or reset.
func (r *Registry) OnListChange(fn func([]model.Session)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onList = append(r.onList, fn)
}
