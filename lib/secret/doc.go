// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package secret holds the room manager's Matrix access token outside
// the Go heap.
//
// [Buffer] is backed by an anonymous mmap region that is locked into
// RAM and excluded from core dumps where the kernel supports it. Close
// zeroes and releases the region. [ReadFile] loads a token file into a
// Buffer and scrubs the intermediate heap copy.
//
// Depends on golang.org/x/sys/unix.
package secret
