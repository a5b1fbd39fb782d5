// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package history holds the ordered message log of the active chat session.
//
// The log is copy-on-write: every mutation builds a new slice and swaps it in
// under the lock, so a slice returned by Messages never changes afterwards.
//
// History fetches are asynchronous and may resolve after the user has moved
// to another session. Activate hands out a Ticket naming the session and a
// generation number; Apply and the *For append variants accept a result only
// if its ticket is still current when the result arrives.
//
//	t := log.Activate("s1")
//	records, err := client.GetHistory(ctx, "s1")
//	if err == nil {
//	    err = log.Apply(t, records) // ErrStale if the user switched meanwhile
//	}
package history
