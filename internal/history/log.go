// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package history

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jeranaias/ragchat/internal/api"
	"github.com/jeranaias/ragchat/internal/logging"
	"github.com/jeranaias/ragchat/internal/model"
)

// Greeting is the single message shown when no session is selected.
const Greeting = "Hello! I'm AI RAG Assistant. Select a chat or start a new one!"

// ErrStale is returned when a result arrives for a session or generation
// that is no longer current.
var ErrStale = errors.New("history: stale result discarded")

// Ticket identifies one activation of the log.
type Ticket struct {
	SessionID string
	gen       uint64
}

// =============================================================================
// LOG
// =============================================================================

// Log is the message sequence of the active session.
type Log struct {
	mu        sync.Mutex
	msgs      []model.Message
	session   string
	gen       uint64
	lastTS    time.Time
	now       func() time.Time
	listeners map[int]func([]model.Message)
	order     []int
	nextID    int
	log       *zap.Logger
}

// Option configures a Log.
type Option func(*Log)

// WithClock overrides the time source used for local timestamps.
func WithClock(now func() time.Time) Option {
	return func(l *Log) {
		if now != nil {
			l.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(z *zap.Logger) Option {
	return func(l *Log) {
		l.log = logging.OrNop(z).Named("history")
	}
}

// New creates a log holding the greeting.
func New(opts ...Option) *Log {
	l := &Log{
		now:       time.Now,
		listeners: make(map[int]func([]model.Message)),
		log:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.msgs = []model.Message{l.greetingLocked()}
	return l
}

// =============================================================================
// READ
// =============================================================================

// Messages returns the current snapshot. The slice and its messages must be
// treated as read-only.
func (l *Log) Messages() []model.Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.msgs[:len(l.msgs):len(l.msgs)]
}

// Len returns the number of messages.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.msgs)
}

// Session returns the session the log was last activated for, or "".
func (l *Log) Session() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.session
}

// Current returns the ticket of the current activation.
func (l *Log) Current() Ticket {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Ticket{SessionID: l.session, gen: l.gen}
}

// IsCurrent reports whether t still names the current activation.
func (l *Log) IsCurrent(t Ticket) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.currentLocked(t)
}

// =============================================================================
// ACTIVATION
// =============================================================================

// Activate starts a new generation for session id. Messages are left in
// place until Apply delivers the fetched history.
func (l *Log) Activate(id string) Ticket {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.gen++
	l.session = id
	return Ticket{SessionID: id, gen: l.gen}
}

// Apply replaces the log with fetched history if t is still current.
// Role "assistant" maps to the assistant; any other role is the user.
func (l *Log) Apply(t Ticket, records []api.HistoryRecord) error {
	l.mu.Lock()
	if !l.currentLocked(t) {
		l.mu.Unlock()
		l.log.Debug("HISTORY_STALE_DISCARDED",
			zap.String("session", t.SessionID),
			zap.Int("records", len(records)))
		return ErrStale
	}

	next := make([]model.Message, 0, len(records))
	for _, r := range records {
		ts := r.CreatedAt.Time
		if ts.IsZero() {
			ts = l.stampLocked()
		} else {
			ts = ts.Local()
		}
		next = append(next, model.NewMessage(model.RoleFromServer(r.Role), r.Content, ts))
	}
	l.msgs = next
	snap, fns := l.changedLocked()
	l.mu.Unlock()

	l.log.Debug("HISTORY_APPLIED", zap.String("session", t.SessionID), zap.Int("messages", len(next)))
	notify(fns, snap)
	return nil
}

// Reset leaves no session selected and shows the greeting alone.
func (l *Log) Reset() Ticket {
	l.mu.Lock()
	l.gen++
	l.session = ""
	l.msgs = []model.Message{l.greetingLocked()}
	t := Ticket{gen: l.gen}
	snap, fns := l.changedLocked()
	l.mu.Unlock()

	notify(fns, snap)
	return t
}

// =============================================================================
// APPEND
// =============================================================================

// AppendUser appends a user turn.
func (l *Log) AppendUser(text string) model.Message {
	m, _ := l.append(nil, func(ts time.Time) []model.Message {
		return []model.Message{model.NewMessage(model.RoleUser, text, ts)}
	})
	return m[0]
}

// AppendAssistant appends an assistant reply and, when sources is non-empty,
// a system info line summarizing them.
func (l *Log) AppendAssistant(text string, sources []string, chunksUsed int) []model.Message {
	m, _ := l.append(nil, assistantBuilder(text, sources, chunksUsed))
	return m
}

// AppendSystem appends a local notice.
func (l *Log) AppendSystem(text string, kind model.Kind) model.Message {
	m, _ := l.append(nil, systemBuilder(text, kind))
	return m[0]
}

// AppendUserFor is AppendUser guarded by t.
func (l *Log) AppendUserFor(t Ticket, text string) (model.Message, error) {
	m, err := l.append(&t, func(ts time.Time) []model.Message {
		return []model.Message{model.NewMessage(model.RoleUser, text, ts)}
	})
	if err != nil {
		return model.Message{}, err
	}
	return m[0], nil
}

// AppendAssistantFor is AppendAssistant guarded by t.
func (l *Log) AppendAssistantFor(t Ticket, text string, sources []string, chunksUsed int) ([]model.Message, error) {
	return l.append(&t, assistantBuilder(text, sources, chunksUsed))
}

// AppendSystemFor is AppendSystem guarded by t.
func (l *Log) AppendSystemFor(t Ticket, text string, kind model.Kind) (model.Message, error) {
	m, err := l.append(&t, systemBuilder(text, kind))
	if err != nil {
		return model.Message{}, err
	}
	return m[0], nil
}

func assistantBuilder(text string, sources []string, chunksUsed int) func(time.Time) []model.Message {
	return func(ts time.Time) []model.Message {
		reply := model.NewMessage(model.RoleAssistant, text, ts)
		reply.ChunksUsed = chunksUsed
		if len(sources) > 0 {
			reply.Sources = append([]string(nil), sources...)
		}
		if !reply.HasSources() {
			return []model.Message{reply}
		}
		note := model.NewMessage(model.RoleSystem, model.FormatSources(sources, chunksUsed), ts)
		note.Kind = model.KindInfo
		return []model.Message{reply, note}
	}
}

func systemBuilder(text string, kind model.Kind) func(time.Time) []model.Message {
	return func(ts time.Time) []model.Message {
		m := model.NewMessage(model.RoleSystem, text, ts)
		m.Kind = kind
		return []model.Message{m}
	}
}

func (l *Log) append(guard *Ticket, build func(time.Time) []model.Message) ([]model.Message, error) {
	l.mu.Lock()
	if guard != nil && !l.currentLocked(*guard) {
		l.mu.Unlock()
		l.log.Debug("HISTORY_APPEND_DISCARDED", zap.String("session", guard.SessionID))
		return nil, ErrStale
	}

	added := build(l.stampLocked())
	next := make([]model.Message, 0, len(l.msgs)+len(added))
	next = append(next, l.msgs...)
	next = append(next, added...)
	l.msgs = next
	snap, fns := l.changedLocked()
	l.mu.Unlock()

	notify(fns, snap)
	return added, nil
}

// =============================================================================
// LISTENERS
// =============================================================================

// OnChange registers fn to receive each new snapshot. fn runs on the
// mutating goroutine, outside the lock.
func (l *Log) OnChange(fn func([]model.Message)) (unsubscribe func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	id := l.nextID
	l.nextID++
	l.listeners[id] = fn
	l.order = append(l.order, id)
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.listeners, id)
	}
}

func (l *Log) changedLocked() ([]model.Message, []func([]model.Message)) {
	fns := make([]func([]model.Message), 0, len(l.listeners))
	live := l.order[:0]
	for _, id := range l.order {
		if fn, ok := l.listeners[id]; ok {
			fns = append(fns, fn)
			live = append(live, id)
		}
	}
	l.order = live
	return l.msgs[:len(l.msgs):len(l.msgs)], fns
}

func notify(fns []func([]model.Message), snap []model.Message) {
	for _, fn := range fns {
		fn(snap)
	}
}

// =============================================================================
// HELPERS
// =============================================================================

func (l *Log) currentLocked(t Ticket) bool {
	return t.gen == l.gen && t.SessionID == l.session
}

// stampLocked returns a local timestamp never earlier than the previous one.
func (l *Log) stampLocked() time.Time {
	ts := l.now()
	if ts.Before(l.lastTS) {
		ts = l.lastTS
	}
	l.lastTS = ts
	return ts
}

func (l *Log) greetingLocked() model.Message {
	return model.NewMessage(model.RoleAssistant, Greeting, l.stampLocked())
}
