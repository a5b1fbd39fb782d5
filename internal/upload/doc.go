// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package upload validates documents, submits them to the RAG service and
// follows server-side processing until it finishes.
//
// A run moves through Idle, Validating, Uploading, Submitted, Polling and
// Terminal. Polling is strictly sequential: a status request is only sent
// after the previous one has returned and the poll interval has elapsed, and
// at most Policy.MaxAttempts requests are made. Each terminal transition
// calls the readiness hook so the caller can re-check the service, and arms
// a timer that returns the status line to idle.
//
// # Key Types
//
//   - Pipeline: one upload at a time, with status listeners
//   - Policy: size and type limits, poll timings, error markers
//   - Clock: sleep and timer source; FakeClock drives tests without waiting
//
// # Usage
//
//	p := upload.New(client, messageLog,
//	    upload.WithReadinessHook(func(ctx context.Context) { ctrl.CheckHealth(ctx) }))
//	err := p.Run(ctx, api.File{Name: "report.pdf", Data: data})
package upload
