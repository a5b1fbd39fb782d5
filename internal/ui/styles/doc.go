// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package styles provides the visual styling system for the ragchat shell.

All colors use Lip Gloss AdaptiveColor for automatic light/dark terminal
detection.

# Color System (colors.go)

  - Purple - assistant messages and the active session
  - Cyan - brand, user highlights, slash commands
  - Emerald - success notices, "Document loaded"
  - Amber - in-progress uploads, warnings
  - Rose - errors, "Disconnected"

# Theme (theme.go)

Theme bundles the lipgloss styles used by the shell and records the
terminal's color profile so the markdown renderer can pick a matching
glamour style.

	theme := styles.NewTheme()
	theme.SetSize(width, height)
	header := theme.Header.Render("ragchat")
*/
package styles
