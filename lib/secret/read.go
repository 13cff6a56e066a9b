// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package secret

import (
	"bytes"
	"fmt"
	"io"
	"os"
)

// maxTokenFileSize bounds how much of a token file is read. Matrix
// access tokens are well under a kilobyte.
const maxTokenFileSize = 64 * 1024

// ReadFile reads a secret from path, trims surrounding whitespace, and
// returns it in a Buffer the caller must Close. An empty or oversized
// file is an error.
func ReadFile(path string) (*Buffer, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("secret: %w", err)
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxTokenFileSize+1))
	defer Zero(data)
	if err != nil {
		return nil, fmt.Errorf("secret: reading %s: %w", path, err)
	}
	if len(data) > maxTokenFileSize {
		return nil, fmt.Errorf("secret: %s exceeds %d bytes", path, maxTokenFileSize)
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("secret: %s is empty", path)
	}
	return NewFromBytes(trimmed)
}
