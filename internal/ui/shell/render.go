// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package shell

import (
	"strings"

	"github.com/charmbracelet/glamour"
)

// =============================================================================
// MARKDOWN RENDERER
// =============================================================================

// Renderer turns assistant replies into styled terminal text with glamour.
// Output is cached per message id until the width or style changes.
type Renderer struct {
	style string
	width int
	tr    *glamour.TermRenderer
	cache map[int64]string
}

// NewRenderer creates a renderer for a glamour standard style.
func NewRenderer(style string, width int) *Renderer {
	r := &Renderer{style: style, cache: make(map[int64]string)}
	r.Resize(width)
	return r
}

// Resize rebuilds the renderer for a new wrap width.
func (r *Renderer) Resize(width int) {
	if width < 20 {
		width = 20
	}
	if width == r.width && r.tr != nil {
		return
	}
	r.width = width
	r.rebuild()
}

// SetStyle switches the glamour style.
func (r *Renderer) SetStyle(style string) {
	if style == r.style {
		return
	}
	r.style = style
	r.rebuild()
}

func (r *Renderer) rebuild() {
	r.cache = make(map[int64]string)
	tr, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(r.style),
		glamour.WithWordWrap(r.width),
	)
	if err != nil {
		r.tr = nil
		return
	}
	r.tr = tr
}

// Render returns text as styled markdown. Plain text is returned when the
// renderer could not be built or rendering fails.
func (r *Renderer) Render(id int64, text string) string {
	if out, ok := r.cache[id]; ok {
		return out
	}
	out := text
	if r.tr != nil {
		if rendered, err := r.tr.Render(text); err == nil {
			out = strings.Trim(rendered, "\n")
		}
	}
	r.cache[id] = out
	return out
}
