// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"bytes"
	"runtime"
	"strings"
	"testing"
)

func TestInfo(t *testing.T) {
	savedCommit, savedDirty, savedTime, savedVersion := GitCommit, GitDirty, BuildTime, Version
	t.Cleanup(func() {
		GitCommit, GitDirty, BuildTime, Version = savedCommit, savedDirty, savedTime, savedVersion
	})

	GitCommit, BuildTime, Version = "abc1234", "2026-03-01T00:00:00Z", "1.2.0"

	tests := []struct {
		dirty string
		want  string
	}{
		{"false", "1.2.0 (abc1234, 2026-03-01T00:00:00Z)"},
		{"true", "1.2.0 (abc1234-dirty, 2026-03-01T00:00:00Z)"},
	}
	for _, test := range tests {
		GitDirty = test.dirty
		if got := Info(); got != test.want {
			t.Errorf("Info() with GitDirty=%s = %q, want %q", test.dirty, got, test.want)
		}
	}
}

func TestFprint(t *testing.T) {
	var output bytes.Buffer
	Fprint(&output, "bureau-room-manager")

	text := output.String()
	if !strings.HasPrefix(text, "bureau-room-manager "+Info()) {
		t.Errorf("output = %q", text)
	}
	if !strings.Contains(text, runtime.Version()) {
		t.Errorf("output lacks the Go version: %q", text)
	}
}
