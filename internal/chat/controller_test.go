// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/jeranaias/ragchat/internal/api"
	"github.com/jeranaias/ragchat/internal/api/apitest"
	"github.com/jeranaias/ragchat/internal/auth"
	"github.com/jeranaias/ragchat/internal/history"
	"github.com/jeranaias/ragchat/internal/model"
	"github.com/jeranaias/ragchat/internal/upload"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreAnyFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreAnyFunction("net/http.(*persistConn).writeLoop"),
	)
}

// =============================================================================
// HARNESS
// =============================================================================

type fixture struct {
	srv   *apitest.Server
	store *auth.Store
	clock *upload.FakeClock
	ctrl  *Controller
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	srv := apitest.NewServer()
	store := auth.NewStore("tok")
	client, err := api.NewClient(&api.Config{BaseURL: srv.BaseURL(), Timeout: 5 * time.Second}, store)
	require.NoError(t, err)

	clock := upload.NewFakeClock()
	ctrl := New(client, store, WithClock(clock))
	t.Cleanup(func() {
		ctrl.Close()
		srv.Close()
	})
	return &fixture{srv: srv, store: store, clock: clock, ctrl: ctrl}
}

// selectSession seeds the service with id and switches to it.
func (f *fixture) selectSession(t *testing.T, id string, records ...api.HistoryRecord) {
	t.Helper()
	f.srv.SetSessions(api.SessionRecord{ID: id, Title: "Chat " + id})
	f.srv.SetHistory(id, records...)
	require.NoError(t, f.ctrl.SwitchSession(context.Background(), id))
}

type line struct {
	Role model.Role
	Kind model.Kind
	Text string
}

func lines(msgs []model.Message) []line {
	out := make([]line, len(msgs))
	for i, m := range msgs {
		out[i] = line{m.Role, m.Kind, m.Text}
	}
	return out
}

// =============================================================================
// START
// =============================================================================

func TestStart(t *testing.T) {
	f := newFixture(t)
	f.srv.SetSessions(api.SessionRecord{ID: "a", Title: "Alpha"}, api.SessionRecord{ID: "b", Title: "Beta"})
	f.srv.OnHealth(func() apitest.Reply {
		return apitest.Reply{Body: api.HealthResponse{Status: "healthy", DocumentsLoaded: true, ChunksCount: 7}}
	})

	require.NoError(t, f.ctrl.Start(context.Background()))

	snap := f.ctrl.Snapshot()
	assert.True(t, snap.APIStatus.Connected)
	assert.True(t, snap.APIStatus.DocumentsLoaded)
	assert.Equal(t, 7, snap.APIStatus.ChunksCount)
	assert.Len(t, snap.Sessions, 2)
	assert.Empty(t, snap.ActiveSession)
	require.Len(t, snap.Messages, 1)
	assert.Equal(t, history.Greeting, snap.Messages[0].Text)
	assert.True(t, snap.Authenticated)
}

func TestStart_ServiceDown(t *testing.T) {
	f := newFixture(t)
	f.srv.Close()

	err := f.ctrl.Start(context.Background())
	require.Error(t, err)
	assert.False(t, f.ctrl.APIStatus().Connected)
	assert.Len(t, f.ctrl.Snapshot().Messages, 1)
}

// =============================================================================
// SESSION SWITCHING
// =============================================================================

func TestSwitchSession_LoadsHistory(t *testing.T) {
	f := newFixture(t)
	f.selectSession(t, "a",
		api.HistoryRecord{Role: "user", Content: "hi"},
		api.HistoryRecord{Role: "assistant", Content: "hello"})

	want := []line{
		{model.RoleUser, model.KindNone, "hi"},
		{model.RoleAssistant, model.KindNone, "hello"},
	}
	if diff := cmp.Diff(want, lines(f.ctrl.Snapshot().Messages)); diff != "" {
		t.Errorf("messages (-want +got):\n%s", diff)
	}
	assert.Equal(t, "Chat a", f.ctrl.Snapshot().ActiveTitle)
	assert.Equal(t, 1, f.srv.Count(http.MethodGet, "/history"), "list refreshed on selection")
}

func TestSwitchSession_StaleHistoryDiscarded(t *testing.T) {
	f := newFixture(t)
	f.srv.SetHistory("a", api.HistoryRecord{Role: "user", Content: "from a"})
	f.srv.SetHistory("b", api.HistoryRecord{Role: "user", Content: "from b"})
	releaseA := f.srv.HoldHistory("a")
	defer releaseA()

	errA := make(chan error, 1)
	go func() { errA <- f.ctrl.SwitchSession(context.Background(), "a") }()
	require.Eventually(t, func() bool {
		return f.srv.Count(http.MethodGet, "/history/a") == 1
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, f.ctrl.SwitchSession(context.Background(), "b"))
	releaseA()
	require.NoError(t, <-errA)

	msgs := f.ctrl.Snapshot().Messages
	require.Len(t, msgs, 1)
	assert.Equal(t, "from b", msgs[0].Text)
	assert.Equal(t, "b", f.ctrl.Snapshot().ActiveSession)
}

func TestSwitchSession_StaleFailureIgnored(t *testing.T) {
	f := newFixture(t)
	f.srv.SetSessions(api.SessionRecord{ID: "a"}, api.SessionRecord{ID: "b"})
	f.srv.SetHistory("b", api.HistoryRecord{Role: "user", Content: "from b"})
	releaseA := f.srv.HoldHistory("a")
	defer releaseA()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errA := make(chan error, 1)
	go func() { errA <- f.ctrl.SwitchSession(ctx, "a") }()
	require.Eventually(t, func() bool {
		return f.srv.Count(http.MethodGet, "/history/a") == 1
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, f.ctrl.SwitchSession(context.Background(), "b"))
	cancel()
	assert.NoError(t, <-errA, "failure of a superseded load is not reported")

	msgs := f.ctrl.Snapshot().Messages
	require.Len(t, msgs, 1)
	assert.Equal(t, "from b", msgs[0].Text)
}

func TestSnapshot_UntitledSessionUsesFirstQuestion(t *testing.T) {
	f := newFixture(t)
	f.srv.SetSessions(api.SessionRecord{ID: "a"})
	f.srv.SetHistory("a",
		api.HistoryRecord{Role: "assistant", Content: "welcome back"},
		api.HistoryRecord{Role: "user", Content: "What does the quarterly report say about revenue growth in Europe?"})
	require.NoError(t, f.ctrl.SwitchSession(context.Background(), "a"))

	title := f.ctrl.Snapshot().ActiveTitle
	assert.True(t, strings.HasPrefix(title, "What does the quarterly report"), title)
	assert.LessOrEqual(t, len([]rune(title)), titlePreviewLen)

	require.NoError(t, f.ctrl.SwitchSession(context.Background(), ""))
	assert.Empty(t, f.ctrl.Snapshot().ActiveTitle)
}

func TestSwitchSession_FetchFailureKeepsLog(t *testing.T) {
	f := newFixture(t)
	f.selectSession(t, "a", api.HistoryRecord{Role: "user", Content: "kept"})

	f.srv.RequireToken("other")
	err := f.ctrl.SwitchSession(context.Background(), "b")
	require.Error(t, err)
	assert.True(t, errors.Is(err, api.ErrUnauthorized))

	msgs := f.ctrl.Snapshot().Messages
	require.Len(t, msgs, 1)
	assert.Equal(t, "kept", msgs[0].Text)
}

func TestSwitchSession_NoneShowsGreeting(t *testing.T) {
	f := newFixture(t)
	f.selectSession(t, "a", api.HistoryRecord{Role: "user", Content: "x"})

	require.NoError(t, f.ctrl.SwitchSession(context.Background(), ""))
	msgs := f.ctrl.Snapshot().Messages
	require.Len(t, msgs, 1)
	assert.Equal(t, history.Greeting, msgs[0].Text)
}

func TestNewChat(t *testing.T) {
	f := newFixture(t)
	s, err := f.ctrl.NewChat(context.Background())
	require.NoError(t, err)

	snap := f.ctrl.Snapshot()
	assert.Equal(t, s.ID, snap.ActiveSession)
	assert.Empty(t, snap.Messages, "new session has no history")
	assert.Len(t, snap.Sessions, 1)
}

func TestDeleteSession_Active(t *testing.T) {
	f := newFixture(t)
	f.srv.SetSessions(api.SessionRecord{ID: "x"}, api.SessionRecord{ID: "y"})
	f.srv.SetHistory("x", api.HistoryRecord{Role: "user", Content: "doomed"})
	require.NoError(t, f.ctrl.SwitchSession(context.Background(), "x"))

	listsBefore := f.srv.Count(http.MethodGet, "/history")
	require.NoError(t, f.ctrl.DeleteSession(context.Background(), "x"))

	snap := f.ctrl.Snapshot()
	assert.Empty(t, snap.ActiveSession)
	require.Len(t, snap.Messages, 1)
	assert.Equal(t, history.Greeting, snap.Messages[0].Text)
	assert.Equal(t, []model.Session{{ID: "y"}}, snap.Sessions)
	assert.Equal(t, listsBefore+1, f.srv.Count(http.MethodGet, "/history"))
}

func TestDeleteSession_Rejected(t *testing.T) {
	f := newFixture(t)
	f.selectSession(t, "x")
	f.srv.OnDelete(func(string) apitest.Reply {
		return apitest.Reply{Status: http.StatusForbidden, Body: map[string]string{"error": "Not your session"}}
	})

	err := f.ctrl.DeleteSession(context.Background(), "x")
	require.Error(t, err)
	assert.Equal(t, "Not your session", api.ServerMessage(err, ""))
	assert.Empty(t, f.ctrl.Snapshot().ActiveSession, "selection cleared optimistically")
}

// =============================================================================
// SEND
// =============================================================================

func TestSend_Blank(t *testing.T) {
	f := newFixture(t)
	f.selectSession(t, "a")
	before := f.ctrl.Snapshot().Messages

	for _, text := range []string{"", "   ", "\n\t"} {
		sent, err := f.ctrl.Send(context.Background(), text)
		assert.False(t, sent)
		assert.NoError(t, err)
	}
	assert.Zero(t, f.srv.Count(http.MethodPost, "/chat"))
	assert.Equal(t, len(before), len(f.ctrl.Snapshot().Messages))
}

func TestSend_NoActiveSession(t *testing.T) {
	f := newFixture(t)
	sent, err := f.ctrl.Send(context.Background(), "hello")
	assert.False(t, sent)
	assert.ErrorIs(t, err, ErrNoActiveSession)
	assert.Zero(t, f.srv.Count(http.MethodPost, "/chat"))
}

func TestSend_RoundTrip(t *testing.T) {
	f := newFixture(t)
	f.selectSession(t, "a")

	sent, err := f.ctrl.Send(context.Background(), "ping")
	require.NoError(t, err)
	assert.True(t, sent)

	want := []line{
		{model.RoleUser, model.KindNone, "ping"},
		{model.RoleAssistant, model.KindNone, "echo: ping"},
	}
	snap := f.ctrl.Snapshot()
	if diff := cmp.Diff(want, lines(snap.Messages)); diff != "" {
		t.Errorf("messages (-want +got):\n%s", diff)
	}
	assert.False(t, snap.PendingSend)
	assert.False(t, snap.Messages[1].Timestamp.Before(snap.Messages[0].Timestamp))
}

func TestSend_Sources(t *testing.T) {
	f := newFixture(t)
	f.selectSession(t, "a")
	f.srv.OnChat(func(api.ChatRequest) apitest.Reply {
		return apitest.Reply{Body: api.ChatResponse{Response: "It says 42.", Sources: []string{"doc1.pdf"}, ChunksUsed: 2}}
	})

	_, err := f.ctrl.Send(context.Background(), "What is in the report?")
	require.NoError(t, err)

	want := []line{
		{model.RoleUser, model.KindNone, "What is in the report?"},
		{model.RoleAssistant, model.KindNone, "It says 42."},
		{model.RoleSystem, model.KindInfo, "Sources: doc1.pdf (2 chunks used)"},
	}
	if diff := cmp.Diff(want, lines(f.ctrl.Snapshot().Messages)); diff != "" {
		t.Errorf("messages (-want +got):\n%s", diff)
	}
}

func TestSend_ServerError(t *testing.T) {
	tests := []struct {
		name  string
		reply apitest.Reply
		want  string
	}{
		{"with message", apitest.Reply{Status: 500, Body: map[string]string{"error": "No documents uploaded"}}, "Error: No documents uploaded. Please make sure the Flask API is running."},
		{"without message", apitest.Reply{Status: 502}, "Error: Failed to get response. Please make sure the Flask API is running."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.selectSession(t, "a")
			f.srv.OnChat(func(api.ChatRequest) apitest.Reply { return tt.reply })

			sent, err := f.ctrl.Send(context.Background(), "q")
			assert.True(t, sent)
			require.Error(t, err)

			msgs := f.ctrl.Snapshot().Messages
			require.Len(t, msgs, 2, "user message stays, error appended")
			assert.Equal(t, line{model.RoleSystem, model.KindError, tt.want}, lines(msgs)[1])
			assert.False(t, f.ctrl.Snapshot().PendingSend)
		})
	}
}

func TestSend_PendingBlocksSecondSend(t *testing.T) {
	f := newFixture(t)
	f.selectSession(t, "a")

	gate := make(chan struct{})
	f.srv.OnChat(func(req api.ChatRequest) apitest.Reply {
		<-gate
		return apitest.Reply{Body: api.ChatResponse{Response: "done"}}
	})

	done := make(chan bool, 1)
	go func() {
		sent, _ := f.ctrl.Send(context.Background(), "first")
		done <- sent
	}()
	require.Eventually(t, func() bool { return f.ctrl.Snapshot().PendingSend }, 2*time.Second, time.Millisecond)

	sent, err := f.ctrl.Send(context.Background(), "second")
	assert.False(t, sent)
	assert.NoError(t, err)
	assert.False(t, f.ctrl.CanSend("second"))

	close(gate)
	assert.True(t, <-done)
	assert.Equal(t, 1, f.srv.Count(http.MethodPost, "/chat"))
}

func TestSend_PendingIsPerSession(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.ctrl.CheckHealth(context.Background()))
	f.srv.SetSessions(api.SessionRecord{ID: "a"}, api.SessionRecord{ID: "b"})
	require.NoError(t, f.ctrl.SwitchSession(context.Background(), "a"))

	gate := make(chan struct{})
	f.srv.OnChat(func(req api.ChatRequest) apitest.Reply {
		if req.SessionID != nil && *req.SessionID == "a" {
			<-gate
		}
		return apitest.Reply{Body: api.ChatResponse{Response: "re: " + req.Message}}
	})

	done := make(chan bool, 1)
	go func() {
		sent, _ := f.ctrl.Send(context.Background(), "slow")
		done <- sent
	}()
	require.Eventually(t, func() bool { return f.ctrl.Snapshot().PendingSend }, 2*time.Second, time.Millisecond)

	require.NoError(t, f.ctrl.SwitchSession(context.Background(), "b"))
	assert.False(t, f.ctrl.Snapshot().PendingSend)
	assert.True(t, f.ctrl.CanSend("fast"))
	sent, err := f.ctrl.Send(context.Background(), "fast")
	require.NoError(t, err)
	assert.True(t, sent)

	require.NoError(t, f.ctrl.SwitchSession(context.Background(), "a"))
	assert.True(t, f.ctrl.Snapshot().PendingSend, "send to a still in flight")
	assert.False(t, f.ctrl.CanSend("again"))

	close(gate)
	assert.True(t, <-done)
	assert.Equal(t, 2, f.srv.Count(http.MethodPost, "/chat"))
}

func TestSend_ReplyAfterSwitchDiscarded(t *testing.T) {
	f := newFixture(t)
	f.srv.SetSessions(api.SessionRecord{ID: "a"}, api.SessionRecord{ID: "b"})
	f.srv.SetHistory("b", api.HistoryRecord{Role: "user", Content: "b history"})
	require.NoError(t, f.ctrl.SwitchSession(context.Background(), "a"))

	gate := make(chan struct{})
	f.srv.OnChat(func(req api.ChatRequest) apitest.Reply {
		<-gate
		return apitest.Reply{Body: api.ChatResponse{Response: "late reply", Sources: []string{"x.pdf"}, ChunksUsed: 1}}
	})

	done := make(chan error, 1)
	go func() {
		_, err := f.ctrl.Send(context.Background(), "question for a")
		done <- err
	}()
	require.Eventually(t, func() bool { return f.srv.Count(http.MethodPost, "/chat") == 1 }, 2*time.Second, time.Millisecond)

	require.NoError(t, f.ctrl.SwitchSession(context.Background(), "b"))
	close(gate)
	require.NoError(t, <-done)

	msgs := f.ctrl.Snapshot().Messages
	require.Len(t, msgs, 1)
	assert.Equal(t, "b history", msgs[0].Text)
}

func TestCanSend(t *testing.T) {
	f := newFixture(t)
	assert.False(t, f.ctrl.CanSend("hi"), "disconnected, no session")

	require.NoError(t, f.ctrl.CheckHealth(context.Background()))
	assert.False(t, f.ctrl.CanSend("hi"), "no session")

	f.selectSession(t, "a")
	assert.True(t, f.ctrl.CanSend("hi"))
	assert.False(t, f.ctrl.CanSend("  "))
}

// =============================================================================
// HEALTH
// =============================================================================

func TestCheckHealth(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.ctrl.CheckHealth(context.Background()))
	assert.True(t, f.ctrl.APIStatus().Connected)

	// non-2xx keeps the last value
	f.srv.OnHealth(func() apitest.Reply { return apitest.Reply{Status: http.StatusServiceUnavailable} })
	require.Error(t, f.ctrl.CheckHealth(context.Background()))
	assert.True(t, f.ctrl.APIStatus().Connected)

	// transport failure replaces it
	f.srv.Close()
	require.Error(t, f.ctrl.CheckHealth(context.Background()))
	status := f.ctrl.APIStatus()
	assert.False(t, status.Connected)
	assert.False(t, status.DocumentsLoaded)
	assert.Zero(t, status.ChunksCount)
}

// =============================================================================
// DOCUMENTS
// =============================================================================

func TestUpload_ValidationWithoutNetwork(t *testing.T) {
	f := newFixture(t)
	f.selectSession(t, "a")
	before := len(f.srv.Requests())

	err := f.ctrl.Upload(context.Background(), api.File{Name: "photo.png", Data: []byte("\x89PNG\r\n\x1a\nxxxx")})
	require.Error(t, err)
	assert.True(t, errors.Is(err, api.ErrValidation))

	assert.Equal(t, before, len(f.srv.Requests()), "no request sent")
	snap := f.ctrl.Snapshot()
	assert.Equal(t, model.UploadStatus{Message: upload.MsgBadType, Phase: model.PhaseError}, snap.UploadStatus)
	assert.Empty(t, snap.Messages, "no message log entry")
}

func TestUpload_ImmediateSuccess(t *testing.T) {
	f := newFixture(t)
	f.selectSession(t, "a")
	f.srv.OnHealth(func() apitest.Reply {
		return apitest.Reply{Body: api.HealthResponse{Status: "healthy", DocumentsLoaded: true, ChunksCount: 12}}
	})
	healthBefore := f.srv.Count(http.MethodGet, "/health")

	require.NoError(t, f.ctrl.Upload(context.Background(), api.File{Name: "report.pdf", Data: []byte("%PDF-1.7\n%\xe2\xe3\xcf\xd3\n")}))

	assert.Equal(t, 1, f.srv.Count(http.MethodGet, "/upload/status"), "exactly one poll")
	assert.Equal(t, healthBefore+1, f.srv.Count(http.MethodGet, "/health"), "readiness refreshed once")

	snap := f.ctrl.Snapshot()
	assert.True(t, snap.APIStatus.DocumentsLoaded)
	assert.Equal(t, model.UploadStatus{Message: upload.MsgProcessed, Phase: model.PhaseSuccess}, snap.UploadStatus)
	assert.False(t, snap.Uploading)

	want := []line{
		{model.RoleSystem, model.KindInfo, `Uploading "report.pdf"...`},
		{model.RoleSystem, model.KindSuccess, `"report.pdf" uploaded successfully! You can now ask questions about this document.`},
	}
	if diff := cmp.Diff(want, lines(snap.Messages)); diff != "" {
		t.Errorf("messages (-want +got):\n%s", diff)
	}

	f.clock.Advance(3 * time.Second)
	assert.True(t, f.ctrl.Snapshot().UploadStatus.IsIdle())
}

func TestUpload_SwitchDuringUploadKeepsNoticesOut(t *testing.T) {
	f := newFixture(t)
	f.selectSession(t, "a")
	f.srv.SetSessions(api.SessionRecord{ID: "a"}, api.SessionRecord{ID: "b"})
	f.srv.SetHistory("b", api.HistoryRecord{Role: "user", Content: "from b"})
	f.srv.OnUpload(func(string, string, []byte) apitest.Reply {
		if err := f.ctrl.SwitchSession(context.Background(), "b"); err != nil {
			return apitest.Reply{Status: 500, Body: map[string]string{"error": err.Error()}}
		}
		return apitest.Reply{Body: api.UploadResponse{Filename: "a.txt", Status: "processing"}}
	})

	require.NoError(t, f.ctrl.Upload(context.Background(), api.File{Name: "a.txt", ContentType: "text/plain", Data: []byte("x")}))

	snap := f.ctrl.Snapshot()
	assert.Equal(t, "b", snap.ActiveSession)
	want := []line{{model.RoleUser, model.KindNone, "from b"}}
	if diff := cmp.Diff(want, lines(snap.Messages)); diff != "" {
		t.Errorf("messages (-want +got):\n%s", diff)
	}
	assert.Equal(t, model.UploadStatus{Message: upload.MsgProcessed, Phase: model.PhaseSuccess}, snap.UploadStatus,
		"status line is not tied to a session")
}

func TestUploadFile(t *testing.T) {
	f := newFixture(t)
	f.selectSession(t, "a")
	dir := t.TempDir()

	ok := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(ok, []byte("plain notes"), 0o600))
	require.NoError(t, f.ctrl.UploadFile(context.Background(), ok))
	assert.Equal(t, 1, f.srv.Count(http.MethodPost, "/upload"))

	big := filepath.Join(dir, "big.txt")
	require.NoError(t, os.WriteFile(big, make([]byte, 64), 0o600))
	f.ctrl.SetUploadPolicy(upload.Policy{MaxBytes: 16})
	err := f.ctrl.UploadFile(context.Background(), big)
	assert.True(t, errors.Is(err, api.ErrValidation))
	assert.Equal(t, 1, f.srv.Count(http.MethodPost, "/upload"), "oversized file never sent")
	assert.Equal(t, model.UploadStatus{Message: upload.TooLargeMessage(16), Phase: model.PhaseError}, f.ctrl.Snapshot().UploadStatus)
}

func TestUpload_BoundedPolling(t *testing.T) {
	f := newFixture(t)
	f.selectSession(t, "a")
	f.ctrl.SetUploadPolicy(upload.Policy{MaxAttempts: 4})
	f.srv.OnUploadStatus(func(int) apitest.Reply {
		return apitest.Reply{Body: api.ProcessingStatus{IsProcessing: true}}
	})

	err := f.ctrl.Upload(context.Background(), api.File{Name: "a.txt", ContentType: "text/plain", Data: []byte("x")})
	assert.True(t, errors.Is(err, api.ErrAttemptsExhausted))
	assert.Equal(t, 4, f.srv.Count(http.MethodGet, "/upload/status"))
	assert.Equal(t, upload.MsgStatusUnknown, f.ctrl.Snapshot().UploadStatus.Message)
}

func TestCanUpload(t *testing.T) {
	f := newFixture(t)
	assert.False(t, f.ctrl.CanUpload(), "no session")
	f.selectSession(t, "a")
	assert.True(t, f.ctrl.CanUpload())
}

func TestClearDocuments(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.ctrl.ClearDocuments(context.Background()))
	msgs := f.ctrl.Snapshot().Messages
	assert.Equal(t, line{model.RoleSystem, model.KindSuccess, MsgCleared}, lines(msgs)[len(msgs)-1])
	assert.Equal(t, 1, f.srv.Count(http.MethodGet, "/health"))

	f.srv.OnClear(func() apitest.Reply { return apitest.Reply{Status: 500} })
	require.Error(t, f.ctrl.ClearDocuments(context.Background()))
	msgs = f.ctrl.Snapshot().Messages
	assert.Equal(t, line{model.RoleSystem, model.KindError, MsgClearFailed}, lines(msgs)[len(msgs)-1])
}

// =============================================================================
// AUTH
// =============================================================================

func TestSignOutClearsState(t *testing.T) {
	f := newFixture(t)
	f.selectSession(t, "a", api.HistoryRecord{Role: "user", Content: "private"})

	f.store.Clear()

	snap := f.ctrl.Snapshot()
	assert.False(t, snap.Authenticated)
	assert.Empty(t, snap.Sessions)
	assert.Empty(t, snap.ActiveSession)
	require.Len(t, snap.Messages, 1)
	assert.Equal(t, history.Greeting, snap.Messages[0].Text)
}

func TestSignInReloads(t *testing.T) {
	f := newFixture(t)
	f.store.Clear()
	f.srv.SetSessions(api.SessionRecord{ID: "a"})

	f.store.SetToken("tok2")
	require.Eventually(t, func() bool {
		snap := f.ctrl.Snapshot()
		return len(snap.Sessions) == 1 && snap.APIStatus.Connected
	}, 2*time.Second, 5*time.Millisecond)
}

// =============================================================================
// CHANGE NOTIFICATION
// =============================================================================

func TestChangesCoalesce(t *testing.T) {
	f := newFixture(t)
	drain(f.ctrl)

	f.selectSession(t, "a")
	_, _ = f.ctrl.Send(context.Background(), "one")

	select {
	case <-f.ctrl.Changes():
	case <-time.After(time.Second):
		t.Fatal("no change signal")
	}
	select {
	case <-f.ctrl.Changes():
		t.Fatal("bursts should coalesce into one pending signal")
	default:
	}
}

func TestWaitForChange(t *testing.T) {
	f := newFixture(t)
	drain(f.ctrl)

	cmd := WaitForChange(f.ctrl)
	go func() { _ = f.ctrl.CheckHealth(context.Background()) }()

	msg, ok := cmd().(ChangedMsg)
	require.True(t, ok)
	assert.NotNil(t, msg.Snapshot.Messages)
}

func TestWaitForChange_Closed(t *testing.T) {
	f := newFixture(t)
	drain(f.ctrl)
	f.ctrl.Close()
	assert.Nil(t, WaitForChange(f.ctrl)())
}

func TestCmds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res := StartCmd(ctx, f.ctrl)().(ResultMsg)
	assert.Equal(t, "start", res.Op)
	assert.NoError(t, res.Err)

	res = NewChatCmd(ctx, f.ctrl)().(ResultMsg)
	require.NoError(t, res.Err)

	res = SendCmd(ctx, f.ctrl, "hi")().(ResultMsg)
	assert.True(t, res.Sent)
	assert.NoError(t, res.Err)

	res = ClearCmd(ctx, f.ctrl)().(ResultMsg)
	assert.NoError(t, res.Err)
}

func drain(c *Controller) {
	for {
		select {
		case <-c.Changes():
		default:
			return
		}
	}
}
