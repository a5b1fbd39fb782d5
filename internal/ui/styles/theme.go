// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Theme holds all the styled components for the shell.
// It detects the terminal's color capability and adjusts accordingly.
type Theme struct {
	// Terminal capabilities
	IsDark       bool
	HasTrueColor bool
	ColorProfile termenv.Profile

	// Layout dimensions
	Width  int
	Height int

	// ==========================================================================
	// HEADER
	// ==========================================================================

	Header      lipgloss.Style
	HeaderBrand lipgloss.Style
	HeaderTitle lipgloss.Style

	// ==========================================================================
	// SIDEBAR
	// ==========================================================================

	Sidebar       lipgloss.Style
	SidebarTitle  lipgloss.Style
	SessionItem   lipgloss.Style
	SessionActive lipgloss.Style
	SessionIndex  lipgloss.Style
	SidebarEmpty  lipgloss.Style

	// ==========================================================================
	// MESSAGES
	// ==========================================================================

	UserBubble      lipgloss.Style
	AssistantBubble lipgloss.Style
	SystemBubble    lipgloss.Style
	ErrorBubble     lipgloss.Style
	SuccessBubble   lipgloss.Style
	SourcesLine     lipgloss.Style
	RoleLabel       lipgloss.Style
	Timestamp       lipgloss.Style

	// ==========================================================================
	// STATUS BAR AND INPUT
	// ==========================================================================

	StatusBar      lipgloss.Style
	StatusOK       lipgloss.Style
	StatusWarn     lipgloss.Style
	StatusError    lipgloss.Style
	StatusMuted    lipgloss.Style
	InputContainer lipgloss.Style
	InputPrompt    lipgloss.Style
	Spinner        lipgloss.Style
	Help           lipgloss.Style
}

// NewTheme creates a theme for the current terminal.
func NewTheme() *Theme {
	colorProfile := termenv.ColorProfile()

	t := &Theme{
		IsDark:       termenv.HasDarkBackground(),
		HasTrueColor: colorProfile == termenv.TrueColor,
		ColorProfile: colorProfile,
	}
	t.initStyles()
	return t
}

// GlamourStyle returns the glamour standard style matching the terminal.
// "auto" and "" resolve to dark or light; "notty" is also used when the
// terminal has no color support.
func (t *Theme) GlamourStyle(preference string) string {
	switch preference {
	case "dark", "light", "notty":
		return preference
	}
	if t.ColorProfile == termenv.Ascii {
		return "notty"
	}
	if t.IsDark {
		return "dark"
	}
	return "light"
}

func (t *Theme) initStyles() {
	t.Header = lipgloss.NewStyle().
		Background(SurfaceDim).
		Foreground(TextPrimary).
		Padding(0, 1)
	t.HeaderBrand = lipgloss.NewStyle().Foreground(Cyan).Bold(true)
	t.HeaderTitle = lipgloss.NewStyle().Foreground(TextSecondary)

	t.Sidebar = lipgloss.NewStyle().
		BorderStyle(lipgloss.NormalBorder()).
		BorderRight(true).
		BorderForeground(Overlay).
		Padding(0, 1)
	t.SidebarTitle = lipgloss.NewStyle().Foreground(TextSecondary).Bold(true).MarginBottom(1)
	t.SessionItem = lipgloss.NewStyle().Foreground(TextPrimary)
	t.SessionActive = lipgloss.NewStyle().Foreground(Purple).Bold(true)
	t.SessionIndex = lipgloss.NewStyle().Foreground(TextMuted)
	t.SidebarEmpty = lipgloss.NewStyle().Foreground(TextMuted).Italic(true)

	bubble := lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		Padding(0, 1)
	t.UserBubble = bubble.Foreground(UserBubbleFg).BorderForeground(UserBubbleBorder)
	t.AssistantBubble = bubble.Foreground(AssistantBubbleFg).BorderForeground(AssistantBubbleBorder)
	t.SystemBubble = lipgloss.NewStyle().Foreground(SystemBubbleFg).PaddingLeft(2)
	t.ErrorBubble = lipgloss.NewStyle().Foreground(Rose).PaddingLeft(2)
	t.SuccessBubble = lipgloss.NewStyle().Foreground(Emerald).PaddingLeft(2)
	t.SourcesLine = lipgloss.NewStyle().Foreground(TextMuted).Italic(true).PaddingLeft(2)
	t.RoleLabel = lipgloss.NewStyle().Foreground(TextSecondary).Bold(true)
	t.Timestamp = lipgloss.NewStyle().Foreground(TextMuted)

	t.StatusBar = lipgloss.NewStyle().
		Background(SurfaceDim).
		Foreground(TextSecondary).
		Padding(0, 1)
	t.StatusOK = lipgloss.NewStyle().Foreground(Emerald).Bold(true)
	t.StatusWarn = lipgloss.NewStyle().Foreground(Amber)
	t.StatusError = lipgloss.NewStyle().Foreground(Rose).Bold(true)
	t.StatusMuted = lipgloss.NewStyle().Foreground(TextMuted)

	t.InputContainer = lipgloss.NewStyle().
		BorderStyle(lipgloss.NormalBorder()).
		BorderTop(true).
		BorderForeground(Overlay)
	t.InputPrompt = lipgloss.NewStyle().Foreground(Cyan).Bold(true)
	t.Spinner = lipgloss.NewStyle().Foreground(Purple)
	t.Help = lipgloss.NewStyle().Foreground(TextMuted)
}

// SetSize records the terminal dimensions.
func (t *Theme) SetSize(width, height int) {
	t.Width = width
	t.Height = height
}

// LayoutMode describes how much room the shell has.
type LayoutMode int

const (
	LayoutNarrow LayoutMode = iota // no sidebar
	LayoutWide                     // sidebar shown
)

// GetLayoutMode returns the layout for the recorded width.
func (t *Theme) GetLayoutMode() LayoutMode {
	if t.Width < 80 {
		return LayoutNarrow
	}
	return LayoutWide
}
