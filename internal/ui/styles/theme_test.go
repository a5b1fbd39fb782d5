// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"strings"
	"testing"

	"github.com/muesli/termenv"
)

func TestNewTheme(t *testing.T) {
	theme := NewTheme()
	if theme == nil {
		t.Fatal("NewTheme returned nil")
	}
	if out := theme.HeaderBrand.Render("ragchat"); !strings.Contains(out, "ragchat") {
		t.Errorf("HeaderBrand lost its text: %q", out)
	}
}

func TestTheme_GlamourStyle(t *testing.T) {
	tests := []struct {
		name  string
		theme Theme
		pref  string
		want  string
	}{
		{"explicit dark", Theme{IsDark: false}, "dark", "dark"},
		{"explicit light", Theme{IsDark: true}, "light", "light"},
		{"explicit notty", Theme{IsDark: true}, "notty", "notty"},
		{"auto dark", Theme{IsDark: true, ColorProfile: termenv.TrueColor}, "auto", "dark"},
		{"auto light", Theme{IsDark: false, ColorProfile: termenv.ANSI256}, "auto", "light"},
		{"empty on ascii", Theme{IsDark: true, ColorProfile: termenv.Ascii}, "", "notty"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.theme.GlamourStyle(tc.pref); got != tc.want {
				t.Errorf("GlamourStyle(%q) = %q, want %q", tc.pref, got, tc.want)
			}
		})
	}
}

func TestTheme_LayoutMode(t *testing.T) {
	theme := NewTheme()
	theme.SetSize(60, 20)
	if theme.GetLayoutMode() != LayoutNarrow {
		t.Error("60 columns should be narrow")
	}
	theme.SetSize(120, 40)
	if theme.GetLayoutMode() != LayoutWide {
		t.Error("120 columns should be wide")
	}
}

func TestRenderHelpers(t *testing.T) {
	if !strings.Contains(RenderSuccess("done"), "done") {
		t.Error("RenderSuccess dropped message")
	}
	if !strings.Contains(RenderError("boom"), "boom") {
		t.Error("RenderError dropped message")
	}
	if !strings.Contains(RenderInfo("note"), "note") {
		t.Error("RenderInfo dropped message")
	}
}
