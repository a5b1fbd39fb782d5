// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package upload

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/jeranaias/ragchat/internal/api"
)

// ReadFile loads path for upload. The size comes from the file's metadata
// first, so a file over maxBytes is refused without reading it. The returned
// File carries the base name even on refusal.
func ReadFile(path string, maxBytes int64) (api.File, error) {
	info, err := os.Stat(path)
	if err != nil {
		return api.File{}, err
	}
	if info.IsDir() {
		return api.File{}, fmt.Errorf("upload %s: is a directory", path)
	}

	f := api.File{Name: filepath.Base(path)}
	if maxBytes > 0 && info.Size() > maxBytes {
		return f, api.NewValidationError("upload", TooLargeMessage(maxBytes))
	}

	fh, err := os.Open(path)
	if err != nil {
		return f, err
	}
	defer fh.Close()

	// one byte past the limit lets Check catch a file that grew after Stat
	r := io.Reader(fh)
	if maxBytes > 0 {
		r = io.LimitReader(fh, maxBytes+1)
	}
	if f.Data, err = io.ReadAll(r); err != nil {
		return f, fmt.Errorf("upload %s: %w", path, err)
	}
	return f, nil
}
