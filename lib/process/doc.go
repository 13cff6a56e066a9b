// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package process holds the entrypoint helpers for the room manager
// binary: reporting an error that happened before the structured
// logger existed, and exiting.
package process
