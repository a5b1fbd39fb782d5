// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package shell

import (
	"strings"
	"testing"
)

func TestRenderer_RendersMarkdown(t *testing.T) {
	r := NewRenderer("dark", 60)
	out := r.Render(1, "# Title\n\nSome **bold** text.")

	if strings.Contains(out, "**bold**") {
		t.Errorf("emphasis markers not rendered:\n%s", out)
	}
	if !strings.Contains(out, "Title") || !strings.Contains(out, "bold") {
		t.Errorf("content lost:\n%s", out)
	}
	if strings.HasPrefix(out, "\n") || strings.HasSuffix(out, "\n") {
		t.Error("surrounding newlines should be trimmed")
	}
}

func TestRenderer_CachesByID(t *testing.T) {
	r := NewRenderer("notty", 60)
	first := r.Render(7, "hello")
	if got := r.Render(7, "different text"); got != first {
		t.Errorf("cached render not reused: %q", got)
	}

	r.Resize(40)
	if got := r.Render(7, "different text"); !strings.Contains(got, "different") {
		t.Errorf("resize should drop the cache, got %q", got)
	}
}

func TestRenderer_MinimumWidth(t *testing.T) {
	r := NewRenderer("notty", 5)
	if r.width != 20 {
		t.Errorf("width = %d, want 20", r.width)
	}
}
