// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package upload

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"go.uber.org/zap"

	"github.com/jeranaias/ragchat/internal/api"
	"github.com/jeranaias/ragchat/internal/history"
	"github.com/jeranaias/ragchat/internal/logging"
	"github.com/jeranaias/ragchat/internal/model"
)

// Status line texts.
const (
	MsgUploading       = "Uploading and processing document..."
	MsgUploaded        = "Document uploaded successfully! Processing..."
	MsgProcessing      = "Processing document..."
	MsgProcessed       = "Document processed successfully!"
	MsgStatusUnknown   = "Processing status unknown"
	msgUploadFailedFmt = "Upload failed: %s"
)

// ErrBusy is returned by Run while another upload is in flight.
var ErrBusy = errors.New("upload: another upload is in progress")

// =============================================================================
// STATE
// =============================================================================

// State is the position of the pipeline in its run.
type State int

const (
	StateIdle State = iota
	StateValidating
	StateUploading
	StateSubmitted
	StatePolling
	StateTerminal
)

// String returns the name of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateValidating:
		return "validating"
	case StateUploading:
		return "uploading"
	case StateSubmitted:
		return "submitted"
	case StatePolling:
		return "polling"
	case StateTerminal:
		return "terminal"
	default:
		return "unknown"
	}
}

// =============================================================================
// COLLABORATORS
// =============================================================================

// Backend is implemented by *api.Client.
type Backend interface {
	Upload(ctx context.Context, f api.File) (*api.UploadResponse, error)
	UploadStatus(ctx context.Context) (*api.ProcessingStatus, error)
}

// Notices receives the system messages of a run. *history.Log implements it.
// A run captures Current when it starts; its notices are dropped once the
// log has moved to another activation.
type Notices interface {
	Current() history.Ticket
	AppendSystemFor(t history.Ticket, text string, kind model.Kind) (model.Message, error)
}

// =============================================================================
// PIPELINE
// =============================================================================

// Pipeline runs one upload at a time.
type Pipeline struct {
	mu sync.Mutex

	backend Backend
	notices Notices
	clock   Clock
	policy  Policy

	state  State
	status model.UploadStatus
	busy   bool
	run    uint64
	reset  Timer

	onStatus  []func(model.UploadStatus)
	readiness func(ctx context.Context)

	log *zap.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithClock replaces the real clock.
func WithClock(c Clock) Option {
	return func(p *Pipeline) {
		if c != nil {
			p.clock = c
		}
	}
}

// WithPolicy sets the initial policy. Zero fields take defaults.
func WithPolicy(policy Policy) Option {
	return func(p *Pipeline) {
		p.policy = policy.withDefaults()
	}
}

// WithReadinessHook sets the function called on every terminal transition.
func WithReadinessHook(fn func(ctx context.Context)) Option {
	return func(p *Pipeline) {
		p.readiness = fn
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) {
		p.log = logging.OrNop(l).Named("upload")
	}
}

// New creates an idle pipeline.
func New(backend Backend, notices Notices, opts ...Option) *Pipeline {
	p := &Pipeline{
		backend: backend,
		notices: notices,
		clock:   RealClock(),
		policy:  DefaultPolicy(),
		status:  model.IdleUpload,
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Status returns the current status line.
func (p *Pipeline) Status() model.UploadStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// State returns the current state.
func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Busy reports whether a run is in flight.
func (p *Pipeline) Busy() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.busy
}

// Policy returns the current policy.
func (p *Pipeline) Policy() Policy {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.policy.withDefaults()
}

// SetPolicy replaces the policy. A run in flight keeps the policy it
// started with.
func (p *Pipeline) SetPolicy(policy Policy) {
	policy = policy.withDefaults()
	p.mu.Lock()
	p.policy = policy
	p.mu.Unlock()
	p.log.Info("UPLOAD_POLICY_UPDATED",
		zap.Int64("max_bytes", policy.MaxBytes),
		zap.Int("max_attempts", policy.MaxAttempts),
		zap.Duration("poll_interval", policy.PollInterval))
}

// OnStatus registers fn to receive every status change, outside the lock.
func (p *Pipeline) OnStatus(fn func(model.UploadStatus)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onStatus = append(p.onStatus, fn)
}

// =============================================================================
// VALIDATION
// =============================================================================

// Validate checks f against the policy. On failure the status line shows
// the reason and the pipeline returns to idle; nothing is sent and no
// message is logged.
func (p *Pipeline) Validate(f api.File) (api.File, error) {
	p.mu.Lock()
	policy := p.policy
	p.mu.Unlock()

	checked, err := policy.Check(f)
	if err != nil {
		p.refuse(err)
		return checked, err
	}
	return checked, nil
}

// Load reads path for Run. A file over the size limit is refused from its
// metadata alone and the status line shows why, as with Validate.
func (p *Pipeline) Load(path string) (api.File, error) {
	p.mu.Lock()
	busy, policy := p.busy, p.policy
	p.mu.Unlock()
	if busy {
		return api.File{}, ErrBusy
	}

	f, err := ReadFile(path, policy.MaxBytes)
	if err != nil && api.KindOf(err) == api.KindValidation {
		p.log.Info("UPLOAD_REFUSED", zap.String("file", f.Name), zap.Error(err))
		p.refuse(err)
	}
	return f, err
}

// refuse shows a validation failure and returns to idle.
func (p *Pipeline) refuse(err error) {
	p.mu.Lock()
	p.state = StateIdle
	if p.reset != nil {
		p.reset.Stop()
		p.reset = nil
	}
	p.mu.Unlock()
	p.setStatus(model.UploadStatus{Message: api.ServerMessage(err, MsgBadType), Phase: model.PhaseError})
}

// =============================================================================
// RUN
// =============================================================================

// Run validates, uploads and follows processing of f. It blocks until a
// terminal state is reached. Errors are also reflected in the status line
// and, for upload failures, in a system message.
func (p *Pipeline) Run(ctx context.Context, f api.File) error {
	p.mu.Lock()
	if p.busy {
		p.mu.Unlock()
		return ErrBusy
	}
	p.busy = true
	p.run++
	run := p.run
	if p.reset != nil {
		p.reset.Stop()
		p.reset = nil
	}
	p.state = StateValidating
	policy := p.policy
	p.mu.Unlock()
	ticket := p.notices.Current()

	defer func() {
		p.mu.Lock()
		p.busy = false
		p.mu.Unlock()
	}()

	f, err := p.Validate(f)
	if err != nil {
		return err
	}

	p.transition(StateUploading)
	p.setStatus(model.UploadStatus{Message: MsgUploading, Phase: model.PhaseLoading})
	p.notice(ticket, fmt.Sprintf(`Uploading "%s"...`, f.Name), model.KindInfo)
	p.log.Info("UPLOAD_STARTED",
		zap.String("file", f.Name),
		zap.String("content_type", f.ContentType),
		zap.Int64("bytes", f.Size()))

	if _, err := p.backend.Upload(ctx, f); err != nil {
		text := fmt.Sprintf(msgUploadFailedFmt, api.ServerMessage(err, "Upload failed"))
		p.log.Warn("UPLOAD_FAILED", zap.String("file", f.Name), zap.Error(err))
		p.notice(ticket, text, model.KindError)
		p.terminate(ctx, run, policy, model.UploadStatus{Message: text, Phase: model.PhaseError})
		return err
	}

	p.transition(StateSubmitted)
	p.setStatus(model.UploadStatus{Message: MsgUploaded, Phase: model.PhaseSuccess})
	p.notice(ticket,
		fmt.Sprintf(`"%s" uploaded successfully! You can now ask questions about this document.`, f.Name),
		model.KindSuccess)

	return p.poll(ctx, run, policy, f.Name)
}

// poll asks for processing status until the service reports completion or
// the attempt bound is reached. The first poll is sent immediately.
func (p *Pipeline) poll(ctx context.Context, run uint64, policy Policy, name string) error {
	p.transition(StatePolling)

	for attempt := 1; ; attempt++ {
		st, err := p.backend.UploadStatus(ctx)
		if err != nil {
			p.log.Warn("UPLOAD_POLL_FAILED", zap.String("file", name), zap.Int("attempt", attempt), zap.Error(err))
			p.terminate(ctx, run, policy, model.UploadStatus{Message: MsgStatusUnknown, Phase: model.PhaseError})
			return err
		}

		p.log.Debug("UPLOAD_POLL",
			zap.Int("attempt", attempt),
			zap.Bool("processing", st.IsProcessing),
			zap.Int("progress", st.Progress))

		if !st.IsProcessing {
			final := model.UploadStatus{Message: st.Message, Phase: model.PhaseSuccess}
			if policy.IsFailure(st.Message) {
				final.Phase = model.PhaseError
			}
			if final.Message == "" {
				final.Message = MsgProcessed
			}
			p.terminate(ctx, run, policy, final)
			return nil
		}

		if attempt >= policy.MaxAttempts {
			p.terminate(ctx, run, policy, model.UploadStatus{Message: MsgStatusUnknown, Phase: model.PhaseError})
			return &api.Error{
				Kind:    api.KindAttemptsExhausted,
				Op:      "upload status",
				Message: fmt.Sprintf("%s still processing after %d polls", name, attempt),
			}
		}

		msg := st.Message
		if msg == "" {
			msg = MsgProcessing
		}
		p.setStatus(model.UploadStatus{Message: msg, Phase: model.PhaseLoading})

		if err := p.clock.Sleep(ctx, policy.PollInterval); err != nil {
			p.terminate(ctx, run, policy, model.UploadStatus{Message: MsgStatusUnknown, Phase: model.PhaseError})
			return &api.Error{Kind: api.KindNetwork, Op: "upload status", Message: "polling canceled", Cause: err}
		}
	}
}

// terminate records the final status, arms the idle reset and calls the
// readiness hook.
func (p *Pipeline) terminate(ctx context.Context, run uint64, policy Policy, status model.UploadStatus) {
	p.mu.Lock()
	p.state = StateTerminal
	if p.reset != nil {
		p.reset.Stop()
	}
	p.reset = p.clock.AfterFunc(policy.ResetDelay, func() { p.resetStatus(run) })
	hook := p.readiness
	p.mu.Unlock()

	p.setStatus(status)
	p.log.Info("UPLOAD_TERMINAL", zap.String("phase", string(status.Phase)), zap.String("message", status.Message))

	if hook != nil {
		hook(context.WithoutCancel(ctx))
	}
}

// resetStatus clears the status line unless a newer run has started.
func (p *Pipeline) resetStatus(run uint64) {
	p.mu.Lock()
	if p.run != run || p.state != StateTerminal {
		p.mu.Unlock()
		return
	}
	p.state = StateIdle
	p.reset = nil
	p.mu.Unlock()
	p.setStatus(model.IdleUpload)
}

// notice appends a system message unless the user has left the session the
// run started in. Status and readiness stay global either way.
func (p *Pipeline) notice(t history.Ticket, text string, kind model.Kind) {
	if _, err := p.notices.AppendSystemFor(t, text, kind); err != nil {
		p.log.Debug("UPLOAD_NOTICE_DISCARDED", zap.String("session", t.SessionID), zap.String("text", text))
	}
}

func (p *Pipeline) transition(s State) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}

func (p *Pipeline) setStatus(s model.UploadStatus) {
	p.mu.Lock()
	p.status = s
	fns := slices.Clone(p.onStatus)
	p.mu.Unlock()
	for _, fn := range fns {
		fn(s)
	}
}
