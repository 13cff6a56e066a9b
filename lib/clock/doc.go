// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time source.
//
// Code that waits (reply retry backoff, sync loop error backoff)
// takes a Clock instead of calling time.After directly. Tests use
// Fake and drive time with Advance:
//
//	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	go retry(ctx, c)
//	c.WaitForTimers(1)         // wait for the backoff to register
//	c.Advance(2 * time.Second) // fire it deterministically
package clock
