// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package shell

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/ragchat/internal/api"
	"github.com/jeranaias/ragchat/internal/chat"
	"github.com/jeranaias/ragchat/internal/config"
	"github.com/jeranaias/ragchat/internal/upload"
)

// =============================================================================
// UPDATE
// =============================================================================

// Update handles Bubble Tea messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.ready = true
		m.layout()
		m.refresh(true)
		return m, nil

	case chat.ChangedMsg:
		follow := m.viewport.AtBottom() || len(msg.Snapshot.Messages) != len(m.snap.Messages)
		m.snap = msg.Snapshot
		m.updatePlaceholder()
		m.refresh(follow)
		return m, chat.WaitForChange(m.ctrl)

	case chat.ResultMsg:
		m.handleResult(msg)
		return m, nil

	case infoMsg:
		if msg.err != nil {
			m.notice = "info: " + msg.err.Error()
		} else {
			m.notice = msg.text
		}
		return m, nil

	case ConfigMsg:
		m.applyConfig(msg.Chat)
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		if m.snap.PendingSend {
			m.refresh(false)
		}
		return m, cmd

	case tea.MouseMsg:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
		m.layout()
		m.refresh(false)
		return m, nil

	case key.Matches(msg, m.keys.Submit):
		return m.submit()

	case key.Matches(msg, m.keys.NewChat):
		return m, chat.NewChatCmd(m.ctx, m.ctrl)

	case key.Matches(msg, m.keys.NextSession):
		return m, m.cycleSession(1)

	case key.Matches(msg, m.keys.PrevSession):
		return m, m.cycleSession(-1)

	case key.Matches(msg, m.keys.PageUp):
		m.viewport.ViewUp()
		return m, nil

	case key.Matches(msg, m.keys.PageDown):
		m.viewport.ViewDown()
		return m, nil

	case key.Matches(msg, m.keys.ClearInput):
		m.input.Reset()
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// submit sends the input as a question or runs it as a slash command.
func (m Model) submit() (tea.Model, tea.Cmd) {
	text := m.input.Value()

	if IsCommand(text) {
		m.input.Reset()
		cmd, err := ParseCommand(text)
		if err != nil {
			m.notice = err.Error()
			return m, nil
		}
		return m, m.runCommand(cmd)
	}

	if strings.TrimSpace(text) == "" {
		return m, nil
	}
	if !m.ctrl.CanSend(text) {
		m.notice = m.sendBlockedReason()
		return m, nil
	}

	m.input.Reset()
	m.notice = ""
	return m, chat.SendCmd(m.ctx, m.ctrl, text)
}

func (m Model) sendBlockedReason() string {
	switch {
	case m.snap.ActiveSession == "":
		return "No active chat. Type /new to start one."
	case m.snap.PendingSend:
		return "Still waiting for the previous reply."
	case !m.snap.APIStatus.Connected:
		return "Service unavailable. Try /health."
	default:
		return "Cannot send right now."
	}
}

// runCommand turns a slash command into a controller command.
func (m *Model) runCommand(c Command) tea.Cmd {
	m.notice = ""

	switch c.Name {
	case CmdNew:
		return chat.NewChatCmd(m.ctx, m.ctrl)

	case CmdSwitch:
		id, err := ResolveSession(c.Arg, m.snap.Sessions)
		if err != nil {
			m.notice = err.Error()
			return nil
		}
		return chat.SwitchCmd(m.ctx, m.ctrl, id)

	case CmdDelete:
		id := m.snap.ActiveSession
		if c.Arg != "" {
			var err error
			if id, err = ResolveSession(c.Arg, m.snap.Sessions); err != nil {
				m.notice = err.Error()
				return nil
			}
		}
		if id == "" {
			m.notice = "No chat to delete."
			return nil
		}
		return chat.DeleteCmd(m.ctx, m.ctrl, id)

	case CmdUpload:
		return m.uploadCmd(c.Arg)

	case CmdClear:
		return chat.ClearCmd(m.ctx, m.ctrl)

	case CmdHealth:
		return chat.HealthCmd(m.ctx, m.ctrl)

	case CmdSessions:
		ctx, ctrl := m.ctx, m.ctrl
		return func() tea.Msg {
			return chat.ResultMsg{Op: CmdSessions, Err: ctrl.RefreshSessions(ctx)}
		}

	case CmdInfo:
		ctx, ctrl := m.ctx, m.ctrl
		return func() tea.Msg {
			info, err := ctrl.Info(ctx)
			if err != nil {
				return infoMsg{err: err}
			}
			text := fmt.Sprintf("%d chunks indexed", info.ChunksCount)
			if info.CurrentFile != "" {
				text = info.CurrentFile + ": " + text
			}
			if info.IsProcessing {
				text += " (processing)"
			}
			return infoMsg{text: text}
		}

	case CmdHelp:
		m.help.ShowAll = !m.help.ShowAll
		m.layout()
		m.refresh(false)
		return nil

	case CmdQuit:
		return tea.Quit
	}
	return nil
}

func (m *Model) uploadCmd(path string) tea.Cmd {
	if !m.ctrl.CanUpload() {
		if m.snap.ActiveSession == "" {
			m.notice = "No active chat. Type /new to start one."
		} else {
			m.notice = "An upload is already running."
		}
		return nil
	}

	path = expandHome(path)
	ctx, ctrl := m.ctx, m.ctrl
	return func() tea.Msg {
		return chat.ResultMsg{Op: CmdUpload, Err: ctrl.UploadFile(ctx, path)}
	}
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

// cycleSession switches to the next (delta 1) or previous (delta -1) chat.
func (m Model) cycleSession(delta int) tea.Cmd {
	sessions := m.snap.Sessions
	if len(sessions) == 0 {
		return nil
	}
	idx := -1
	for i, s := range sessions {
		if s.ID == m.snap.ActiveSession {
			idx = i
			break
		}
	}

	var next int
	switch {
	case idx < 0 && delta > 0:
		next = 0
	case idx < 0:
		next = len(sessions) - 1
	default:
		next = (idx + delta + len(sessions)) % len(sessions)
	}
	if next == idx {
		return nil
	}
	return chat.SwitchCmd(m.ctx, m.ctrl, sessions[next].ID)
}

// handleResult turns command outcomes into the notice line. Conversation
// messages for failures are appended by the controller itself.
func (m *Model) handleResult(r chat.ResultMsg) {
	if r.Err == nil {
		switch r.Op {
		case "new":
			m.notice = "Started a new chat."
		case "delete":
			m.notice = "Chat deleted."
		case "health":
			m.notice = "Service: " + m.ctrl.APIStatus().Label()
		case CmdSessions:
			m.notice = fmt.Sprintf("%d chats", len(m.ctrl.Snapshot().Sessions))
		}
		return
	}

	switch {
	case errors.Is(r.Err, chat.ErrNoActiveSession):
		m.notice = "No active chat. Type /new to start one."
	case errors.Is(r.Err, upload.ErrBusy):
		m.notice = "An upload is already running."
	case r.Op == "send" || r.Op == CmdClear:
		// already in the conversation
		m.notice = ""
	case r.Op == CmdUpload && api.KindOf(r.Err) != api.KindUnknown:
		// already in the upload status
		m.notice = ""
	case r.Op == "start":
		m.notice = "Could not reach the service: " + r.Err.Error()
	default:
		m.notice = r.Op + ": " + r.Err.Error()
	}
}

func (m *Model) applyConfig(c config.ChatConfig) {
	m.settings = c
	m.renderer.SetStyle(m.theme.GlamourStyle(c.Style))
	m.layout()
	m.refresh(false)
}
