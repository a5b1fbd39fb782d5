// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package shell

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/ragchat/internal/model"
	"github.com/jeranaias/ragchat/internal/util"
)

// =============================================================================
// VIEW
// =============================================================================

// View renders the shell.
func (m Model) View() string {
	if !m.ready {
		return "\n  Connecting..."
	}

	body := m.viewport.View()
	if m.sidebarVisible() {
		body = lipgloss.JoinHorizontal(lipgloss.Top, m.renderSidebar(), body)
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		m.renderHeader(),
		body,
		m.renderStatus(),
		m.theme.InputContainer.Width(m.width).Render(m.input.View()),
		m.renderHelp(),
	)
}

// refresh rebuilds the viewport content. follow scrolls to the newest line.
func (m *Model) refresh(follow bool) {
	m.viewport.SetContent(m.renderMessages())
	if follow {
		m.viewport.GotoBottom()
	}
}

func (m Model) renderHeader() string {
	title := m.snap.ActiveTitle
	if title == "" {
		title = "No chat selected"
	}
	// "ragchat", separators, padding and "(signed out)"
	title = util.TruncateWidth(util.SingleLine(title), m.width-28)

	line := m.theme.HeaderBrand.Render("ragchat") + "  " + m.theme.HeaderTitle.Render(title)
	if !m.snap.Authenticated {
		line += "  " + m.theme.StatusWarn.Render("(signed out)")
	}
	return m.theme.Header.Width(m.width).MaxHeight(1).Render(line)
}

// renderSidebar lists sessions with 1-based numbers for /switch N.
func (m Model) renderSidebar() string {
	w := m.settings.SidebarWidth
	lines := []string{m.theme.SidebarTitle.Render("Chats")}

	if len(m.snap.Sessions) == 0 {
		lines = append(lines, m.theme.SidebarEmpty.Render("No chats yet"))
	}
	for i, s := range m.snap.Sessions {
		num := fmt.Sprintf("%d ", i+1)
		title := util.TruncateWidth(util.SingleLine(s.Title), w-len(num))
		style := m.theme.SessionItem
		if s.ID == m.snap.ActiveSession {
			style = m.theme.SessionActive
		}
		lines = append(lines, m.theme.SessionIndex.Render(num)+style.Render(title))
	}

	return m.theme.Sidebar.
		Width(w).
		Height(m.viewport.Height).
		MaxHeight(m.viewport.Height).
		Render(strings.Join(lines, "\n"))
}

func (m Model) renderStatus() string {
	var parts []string

	svc := m.snap.APIStatus
	label := svc.Label()
	switch {
	case !svc.Connected:
		parts = append(parts, m.theme.StatusError.Render(label))
	case svc.DocumentsLoaded:
		parts = append(parts, m.theme.StatusOK.Render(fmt.Sprintf("%s (%d chunks)", label, svc.ChunksCount)))
	default:
		parts = append(parts, m.theme.StatusWarn.Render(label))
	}

	if up := m.snap.UploadStatus; !up.IsIdle() {
		switch {
		case !up.Phase.IsTerminal():
			parts = append(parts, m.spinner.View()+m.theme.StatusWarn.Render(up.Message))
		case up.Phase == model.PhaseError:
			parts = append(parts, m.theme.StatusError.Render(up.Message))
		default:
			parts = append(parts, m.theme.StatusOK.Render(up.Message))
		}
	}

	if m.notice != "" {
		parts = append(parts, m.theme.StatusMuted.Render(m.notice))
	}
	return m.theme.StatusBar.Width(m.width).MaxHeight(1).Render(strings.Join(parts, "  |  "))
}

func (m Model) renderHelp() string {
	out := m.help.View(m.keys)
	if m.help.ShowAll {
		out += "\n\n" + m.theme.Help.Render(strings.Join(CommandHelp(), "\n"))
	}
	return out
}

// =============================================================================
// MESSAGES
// =============================================================================

func (m Model) renderMessages() string {
	width := m.viewport.Width - 2
	if width < 10 {
		width = 10
	}

	var b strings.Builder
	for i, msg := range m.snap.Messages {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(m.renderMessage(msg, width))
		b.WriteString("\n")
	}
	if m.snap.PendingSend {
		b.WriteString("\n" + m.spinner.View() + m.theme.Timestamp.Render("Thinking..."))
	}
	return b.String()
}

func (m Model) renderMessage(msg model.Message, width int) string {
	if msg.Role == model.RoleSystem {
		style := m.theme.SystemBubble
		switch msg.Kind {
		case model.KindError:
			style = m.theme.ErrorBubble
		case model.KindSuccess:
			style = m.theme.SuccessBubble
		case model.KindInfo:
			style = m.theme.SourcesLine
		}
		return style.Width(width).Render(msg.Text)
	}

	header := m.theme.RoleLabel.Render(msg.Role.DisplayName()) + " " +
		m.theme.Timestamp.Render(msg.Timestamp.Format("15:04"))

	if msg.Role == model.RoleUser {
		return header + "\n" + m.theme.UserBubble.Width(width-2).Render(msg.Text)
	}

	text := msg.Text
	if m.settings.Markdown {
		text = m.renderer.Render(msg.ID, msg.Text)
	}
	return header + "\n" + m.theme.AssistantBubble.Width(width-2).Render(text)
}

// =============================================================================
// HELPERS
// =============================================================================

func lineCount(s string) int {
	return strings.Count(s, "\n") + 1
}
