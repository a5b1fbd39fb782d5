// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small helpers shared by the controller packages.
//
//   - AtomicWriteFile: crash-safe file writing used when saving config
//   - TruncateRunes, TruncateWidth: UTF-8 and display-width aware truncation
//     for log fields and session titles
package util
