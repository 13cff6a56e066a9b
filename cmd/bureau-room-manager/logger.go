// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/term"
)

// newLogger returns a logger writing to output. A terminal gets
// slog.TextHandler; anything else (journald, a pipe, a container log
// collector) gets slog.JSONHandler.
func newLogger(output *os.File, level string) (*slog.Logger, error) {
	return buildLogger(output, term.IsTerminal(int(output.Fd())), level)
}

func buildLogger(output io.Writer, terminal bool, level string) (*slog.Logger, error) {
	var slogLevel slog.Level
	if err := slogLevel.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		return nil, fmt.Errorf("--log-level: %w", err)
	}
	options := &slog.HandlerOptions{Level: slogLevel}
	var handler slog.Handler
	if terminal {
		handler = slog.NewTextHandler(output, options)
	} else {
		handler = slog.NewJSONHandler(output, options)
	}
	return slog.New(handler), nil
}
