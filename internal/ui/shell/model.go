// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package shell

import (
	"context"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/ragchat/internal/chat"
	"github.com/jeranaias/ragchat/internal/config"
	"github.com/jeranaias/ragchat/internal/ui/styles"
)

// maxInputLength caps a single question.
const maxInputLength = 4000

// ConfigMsg delivers a reloaded configuration to the shell.
type ConfigMsg struct {
	Chat config.ChatConfig
}

// infoMsg carries the result of /info.
type infoMsg struct {
	text string
	err  error
}

// Options configures a Model.
type Options struct {
	Chat  config.ChatConfig
	Theme *styles.Theme
}

// =============================================================================
// MODEL
// =============================================================================

// Model is the Bubble Tea model of the shell.
type Model struct {
	ctx  context.Context
	ctrl *chat.Controller

	// Styling
	theme    *styles.Theme
	renderer *Renderer
	settings config.ChatConfig

	// Dimensions
	width  int
	height int
	ready  bool

	// UI Components
	viewport viewport.Model
	input    textinput.Model
	spinner  spinner.Model
	help     help.Model
	keys     KeyMap

	// Last state delivered by the controller
	snap chat.Snapshot

	// One-line notice under the conversation
	notice string
}

// New creates the shell for ctrl. ctx bounds every request it issues.
func New(ctx context.Context, ctrl *chat.Controller, opts Options) Model {
	theme := opts.Theme
	if theme == nil {
		theme = styles.NewTheme()
	}

	input := textinput.New()
	input.Prompt = "> "
	input.PromptStyle = theme.InputPrompt
	input.CharLimit = maxInputLength
	input.Focus()

	sp := spinner.New(
		spinner.WithSpinner(spinner.Dot),
		spinner.WithStyle(theme.Spinner),
	)

	m := Model{
		ctx:      ctx,
		ctrl:     ctrl,
		theme:    theme,
		settings: opts.Chat,
		renderer: NewRenderer(theme.GlamourStyle(opts.Chat.Style), 80),
		viewport: viewport.New(80, 20),
		input:    input,
		spinner:  sp,
		help:     help.New(),
		keys:     DefaultKeyMap(),
		snap:     ctrl.Snapshot(),
	}
	m.updatePlaceholder()
	return m
}

// Init starts the controller and subscribes to its changes.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		textinput.Blink,
		m.spinner.Tick,
		chat.WaitForChange(m.ctrl),
		chat.StartCmd(m.ctx, m.ctrl),
	)
}

// Snapshot returns the last controller state the model rendered.
func (m Model) Snapshot() chat.Snapshot {
	return m.snap
}

// Notice returns the current one-line notice.
func (m Model) Notice() string {
	return m.notice
}

// Input returns the current input text.
func (m Model) Input() string {
	return m.input.Value()
}

// SetInput replaces the input text.
func (m *Model) SetInput(s string) {
	m.input.SetValue(s)
}

func (m *Model) updatePlaceholder() {
	switch {
	case m.snap.ActiveSession == "":
		m.input.Placeholder = "Type /new to start a chat"
	case m.snap.PendingSend:
		m.input.Placeholder = "Waiting for a reply..."
	default:
		m.input.Placeholder = "Ask about your documents"
	}
}

// sidebarVisible reports whether the session list fits.
func (m Model) sidebarVisible() bool {
	return m.settings.SidebarWidth > 0 && m.theme.GetLayoutMode() == styles.LayoutWide
}

// layout sizes the viewport from the terminal dimensions.
func (m *Model) layout() {
	m.theme.SetSize(m.width, m.height)

	width := m.width
	if m.sidebarVisible() {
		width -= m.settings.SidebarWidth + 3 // padding and border
	}
	if width < 10 {
		width = 10
	}

	fixed := 1 + 1 + 2 + lineCount(m.renderHelp()) // header, status, input, help
	height := m.height - fixed
	if height < 3 {
		height = 3
	}

	m.viewport.Width = width
	m.viewport.Height = height
	m.input.Width = m.width - 4
	m.help.Width = m.width
	m.renderer.Resize(width - 4)
}
