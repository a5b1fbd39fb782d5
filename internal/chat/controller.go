// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jeranaias/ragchat/internal/api"
	"github.com/jeranaias/ragchat/internal/auth"
	"github.com/jeranaias/ragchat/internal/history"
	"github.com/jeranaias/ragchat/internal/logging"
	"github.com/jeranaias/ragchat/internal/model"
	"github.com/jeranaias/ragchat/internal/session"
	"github.com/jeranaias/ragchat/internal/upload"
)

// System message texts.
const (
	MsgCleared      = "All documents cleared successfully!"
	MsgClearFailed  = "Failed to clear documents"
	msgChatFallback = "Failed to get response"
	msgChatHint     = ". Please make sure the Flask API is running."

	// runes of the first question shown for an untitled session
	titlePreviewLen = 48
)

// ErrNoActiveSession is returned by Send when no session is selected.
var ErrNoActiveSession = errors.New("chat: no active session")

// Service is the remote API used by the controller. *api.Client implements it.
type Service interface {
	session.Backend
	upload.Backend

	Health(ctx context.Context) (*api.HealthResponse, error)
	Info(ctx context.Context) (*api.InfoResponse, error)
	GetHistory(ctx context.Context, id string) ([]api.HistoryRecord, error)
	SendChat(ctx context.Context, text, sessionID string) (*api.ChatResponse, error)
	ClearDocuments(ctx context.Context) (*api.ClearResponse, error)
}

// =============================================================================
// SNAPSHOT
// =============================================================================

// Snapshot is a consistent, read-only view of the controller state.
type Snapshot struct {
	Messages      []model.Message
	PendingSend   bool
	APIStatus     model.APIStatus
	UploadStatus  model.UploadStatus
	Sessions      []model.Session
	ActiveSession string
	// ActiveTitle is the active session's title or, when the service has
	// none, a preview of its first question. "" when nothing is selected.
	ActiveTitle   string
	Uploading     bool
	Authenticated bool
}

// =============================================================================
// OPTIONS
// =============================================================================

type options struct {
	policy upload.Policy
	clock  upload.Clock
	logger *zap.Logger
	now    func() time.Time
}

// Option configures a Controller.
type Option func(*options)

// WithUploadPolicy sets the initial upload policy.
func WithUploadPolicy(p upload.Policy) Option {
	return func(o *options) { o.policy = p }
}

// WithClock sets the clock used by upload polling.
func WithClock(c upload.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithLogger sets the logger shared by all components.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithNow overrides the time source for local timestamps and health checks.
func WithNow(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// =============================================================================
// CONTROLLER
// =============================================================================

// Controller orchestrates one signed-in user's chat.
type Controller struct {
	svc      Service
	auth     auth.Provider
	sessions *session.Registry
	history  *history.Log
	uploads  *upload.Pipeline

	mu      sync.Mutex
	status  model.APIStatus
	pending map[string]struct{} // sessions with a send in flight
	closed  bool

	now       func() time.Time
	changes   chan struct{}
	done      chan struct{}
	bg        context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	unsubAuth func()

	log *zap.Logger
}

// New wires a controller. provider may be nil when the service needs no
// credentials.
func New(svc Service, provider auth.Provider, opts ...Option) *Controller {
	o := options{policy: upload.DefaultPolicy(), clock: upload.RealClock(), now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	zl := logging.OrNop(o.logger)

	c := &Controller{
		svc:     svc,
		auth:    provider,
		now:     o.now,
		changes: make(chan struct{}, 1),
		done:    make(chan struct{}),
		pending: make(map[string]struct{}),
		log:     zl.Named("chat"),
	}
	c.bg, c.cancel = context.WithCancel(context.Background())
	c.status = model.Disconnected(time.Time{})

	c.history = history.New(history.WithClock(o.now), history.WithLogger(zl))
	c.sessions = session.NewRegistry(svc, session.WithLogger(zl))
	c.uploads = upload.New(svc, c.history,
		upload.WithPolicy(o.policy),
		upload.WithClock(o.clock),
		upload.WithLogger(zl),
		upload.WithReadinessHook(func(ctx context.Context) { _ = c.CheckHealth(ctx) }))

	c.sessions.OnSelect(c.handleSelect)
	c.sessions.OnListChange(func([]model.Session) { c.notify() })
	c.history.OnChange(func([]model.Message) { c.notify() })
	c.uploads.OnStatus(func(model.UploadStatus) { c.notify() })

	if provider != nil {
		c.unsubAuth = provider.OnAuthChange(c.handleAuthChange)
	}
	return c
}

// Close detaches from the auth provider and waits for background work.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	if c.unsubAuth != nil {
		c.unsubAuth()
	}
	c.cancel()
	c.wg.Wait()
	close(c.done)
}

// Start checks health and lists sessions concurrently and shows the
// greeting. It returns the first failure; both requests always complete.
func (c *Controller) Start(ctx context.Context) error {
	if c.sessions.Active() == "" {
		c.history.Reset()
	}

	var g errgroup.Group
	g.Go(func() error { return c.CheckHealth(ctx) })
	g.Go(func() error { return c.sessions.Refresh(ctx) })
	err := g.Wait()

	c.log.Info("CONTROLLER_STARTED",
		zap.Bool("connected", c.APIStatus().Connected),
		zap.Int("sessions", len(c.sessions.Sessions())),
		zap.Error(err))
	return err
}

// =============================================================================
// SESSIONS
// =============================================================================

// SwitchSession selects id ("" for none) and loads its history. Selecting
// the active session again does nothing.
func (c *Controller) SwitchSession(ctx context.Context, id string) error {
	if !c.sessions.Select(id) {
		return nil
	}
	return c.loadActive(ctx)
}

// NewChat creates a session on the service, selects it and loads its
// (empty) history.
func (c *Controller) NewChat(ctx context.Context) (model.Session, error) {
	s, err := c.sessions.Create(ctx)
	if err != nil {
		return model.Session{}, err
	}
	return s, c.loadActive(ctx)
}

// DeleteSession deletes id, clearing the selection first when it is active.
func (c *Controller) DeleteSession(ctx context.Context, id string) error {
	return c.sessions.Delete(ctx, id)
}

// RefreshSessions reloads the session list.
func (c *Controller) RefreshSessions(ctx context.Context) error {
	return c.sessions.Refresh(ctx)
}

// handleSelect runs synchronously on every selection change.
func (c *Controller) handleSelect(id string) {
	if id == "" {
		c.history.Reset()
		return
	}
	c.history.Activate(id)
}

// loadActive fetches the history of the current activation and refreshes
// the session list alongside it. A failed fetch leaves the log untouched.
func (c *Controller) loadActive(ctx context.Context) error {
	t := c.history.Current()
	if t.SessionID == "" {
		return c.sessions.Refresh(ctx)
	}

	var g errgroup.Group
	g.Go(func() error {
		records, err := c.svc.GetHistory(ctx, t.SessionID)
		if err != nil {
			if !c.history.IsCurrent(t) {
				c.log.Debug("HISTORY_FETCH_FAILED_STALE", zap.String("session", t.SessionID), zap.Error(err))
				return nil
			}
			c.log.Warn("HISTORY_FETCH_FAILED", zap.String("session", t.SessionID), zap.Error(err))
			return err
		}
		if err := c.history.Apply(t, records); err != nil && !errors.Is(err, history.ErrStale) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		_ = c.sessions.Refresh(ctx)
		return nil
	})
	return g.Wait()
}

// =============================================================================
// CHAT
// =============================================================================

// Send posts text to the active session. It returns false without doing
// anything when text is blank or a send to that session is pending. On a failed
// request a system error message is appended and the error returned.
func (c *Controller) Send(ctx context.Context, text string) (bool, error) {
	if strings.TrimSpace(text) == "" {
		return false, nil
	}

	c.mu.Lock()
	t := c.history.Current()
	if t.SessionID == "" {
		c.mu.Unlock()
		return false, ErrNoActiveSession
	}
	if _, busy := c.pending[t.SessionID]; busy {
		c.mu.Unlock()
		return false, nil
	}
	c.pending[t.SessionID] = struct{}{}
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, t.SessionID)
		c.mu.Unlock()
		c.notify()
	}()

	if _, err := c.history.AppendUserFor(t, text); err != nil {
		return false, nil
	}
	c.notify()

	start := c.now()
	resp, err := c.svc.SendChat(ctx, text, t.SessionID)
	if err != nil {
		c.log.Warn("CHAT_FAILED", zap.String("session", t.SessionID), zap.Error(err))
		msg := "Error: " + api.ServerMessage(err, msgChatFallback) + msgChatHint
		if _, serr := c.history.AppendSystemFor(t, msg, model.KindError); serr != nil {
			c.log.Debug("CHAT_ERROR_DISCARDED", zap.String("session", t.SessionID))
		}
		return true, err
	}

	if _, err := c.history.AppendAssistantFor(t, resp.Response, resp.Sources, resp.ChunksUsed); err != nil {
		c.log.Info("CHAT_REPLY_DISCARDED", zap.String("session", t.SessionID))
		return true, nil
	}
	c.log.Info("CHAT_REPLY",
		zap.String("session", t.SessionID),
		zap.Int("sources", len(resp.Sources)),
		zap.Int("chunks_used", resp.ChunksUsed),
		zap.Duration("latency", c.now().Sub(start)))
	return true, nil
}

// =============================================================================
// DOCUMENTS
// =============================================================================

// Upload validates and submits f, then follows processing to the end.
func (c *Controller) Upload(ctx context.Context, f api.File) error {
	return c.uploads.Run(ctx, f)
}

// UploadPolicy returns the limits and timings new uploads run with.
func (c *Controller) UploadPolicy() upload.Policy {
	return c.uploads.Policy()
}

// UploadFile reads path and uploads it. A file over the size limit is
// refused before it is read.
func (c *Controller) UploadFile(ctx context.Context, path string) error {
	f, err := c.uploads.Load(path)
	if err != nil {
		return err
	}
	return c.uploads.Run(ctx, f)
}

// SetUploadPolicy replaces the upload limits and timings.
func (c *Controller) SetUploadPolicy(p upload.Policy) {
	c.uploads.SetPolicy(p)
}

// ClearDocuments removes every loaded document on the service. The result
// notice is dropped if the user switched sessions meanwhile.
func (c *Controller) ClearDocuments(ctx context.Context) error {
	t := c.history.Current()
	if _, err := c.svc.ClearDocuments(ctx); err != nil {
		c.log.Warn("DOCUMENTS_CLEAR_FAILED", zap.Error(err))
		c.systemFor(t, MsgClearFailed, model.KindError)
		return err
	}
	c.log.Info("DOCUMENTS_CLEARED")
	c.systemFor(t, MsgCleared, model.KindSuccess)
	_ = c.CheckHealth(ctx)
	return nil
}

func (c *Controller) systemFor(t history.Ticket, text string, kind model.Kind) {
	if _, err := c.history.AppendSystemFor(t, text, kind); err != nil {
		c.log.Debug("NOTICE_DISCARDED", zap.String("session", t.SessionID), zap.String("text", text))
	}
}

// =============================================================================
// HEALTH
// =============================================================================

// CheckHealth queries the service. Success replaces APIStatus; a transport
// failure marks it disconnected; any other failure keeps the last value.
func (c *Controller) CheckHealth(ctx context.Context) error {
	h, err := c.svc.Health(ctx)
	if err != nil {
		c.log.Debug("HEALTH_CHECK_FAILED", zap.Error(err))
		if api.KindOf(err) == api.KindNetwork {
			c.setStatus(model.Disconnected(c.now()))
		}
		return err
	}
	c.setStatus(model.APIStatus{
		Connected:       true,
		DocumentsLoaded: h.DocumentsLoaded,
		ChunksCount:     h.ChunksCount,
		CheckedAt:       c.now(),
	})
	return nil
}

// Info returns the service's document summary.
func (c *Controller) Info(ctx context.Context) (*api.InfoResponse, error) {
	info, err := c.svc.Info(ctx)
	if err != nil {
		c.log.Debug("INFO_FAILED", zap.Error(err))
		return nil, err
	}
	return info, nil
}

// APIStatus returns the last health result.
func (c *Controller) APIStatus() model.APIStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

func (c *Controller) setStatus(s model.APIStatus) {
	c.mu.Lock()
	c.status = s
	c.mu.Unlock()
	c.notify()
}

// =============================================================================
// AUTH
// =============================================================================

// handleAuthChange clears user data on sign-out and reloads on sign-in.
func (c *Controller) handleAuthChange(authenticated bool) {
	if !authenticated {
		c.log.Info("AUTH_SIGNED_OUT")
		c.sessions.Reset()
		c.history.Reset()
		c.notify()
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.wg.Add(1)
	c.mu.Unlock()

	c.log.Info("AUTH_SIGNED_IN")
	go func() {
		defer c.wg.Done()
		_ = c.Start(c.bg)
	}()
}

// =============================================================================
// VIEW
// =============================================================================

// Snapshot returns the current state for rendering.
func (c *Controller) Snapshot() Snapshot {
	active := c.sessions.Active()
	c.mu.Lock()
	status := c.status
	_, pending := c.pending[active]
	c.mu.Unlock()

	msgs := c.history.Messages()
	return Snapshot{
		Messages:      msgs,
		PendingSend:   pending,
		APIStatus:     status,
		UploadStatus:  c.uploads.Status(),
		Sessions:      c.sessions.Sessions(),
		ActiveSession: active,
		ActiveTitle:   c.activeTitle(active, msgs),
		Uploading:     c.uploads.Busy(),
		Authenticated: c.auth == nil || c.auth.IsAuthenticated(),
	}
}

func (c *Controller) activeTitle(id string, msgs []model.Message) string {
	if id == "" {
		return ""
	}
	if s, ok := c.sessions.Find(id); ok && s.Title != "" {
		return s.Title
	}
	for _, m := range msgs {
		if m.Role == model.RoleUser {
			return m.Preview(titlePreviewLen)
		}
	}
	return ""
}

// CanSend reports whether text may be sent now: it is not blank, no send
// to the active session is pending, the service is reachable and a session is active.
func (c *Controller) CanSend(text string) bool {
	if strings.TrimSpace(text) == "" {
		return false
	}
	s := c.Snapshot()
	return !s.PendingSend && s.APIStatus.Connected && s.ActiveSession != ""
}

// CanUpload reports whether an upload may start: none is in flight and a
// session is active.
func (c *Controller) CanUpload() bool {
	return !c.uploads.Busy() && c.sessions.Active() != ""
}

// Changes fires after state changes. Bursts coalesce into one signal.
func (c *Controller) Changes() <-chan struct{} {
	return c.changes
}

func (c *Controller) notify() {
	select {
	case c.changes <- struct{}{}:
	default:
	}
}
