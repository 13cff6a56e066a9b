// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"sync/atomic"
)

// Holder publishes the current Config to concurrent readers.
type Holder struct {
	path    string
	current atomic.Pointer[Config]
}

// NewHolder returns a Holder serving initial. path is the file Reload
// reads; it may be empty when reloading is not supported.
func NewHolder(path string, initial *Config) *Holder {
	holder := &Holder{path: path}
	holder.current.Store(initial)
	return holder
}

// Snapshot returns the current configuration. Callers must treat it as
// read-only.
func (h *Holder) Snapshot() *Config {
	return h.current.Load()
}

// Reload reads the file again and swaps it in if it loads and
// validates. On error the previous configuration stays in effect.
//
// Identity fields (homeserver_url, user_id, access_token_file) are
// bound at startup, so a reload that changes them is rejected.
func (h *Holder) Reload() (*Config, error) {
	if h.path == "" {
		return nil, errors.New("config: no file to reload from")
	}
	next, err := LoadFile(h.path)
	if err != nil {
		return nil, err
	}
	previous := h.current.Load()
	if next.HomeserverURL != previous.HomeserverURL ||
		next.UserID != previous.UserID ||
		next.AccessTokenFile != previous.AccessTokenFile {
		return nil, errors.New("config: homeserver_url, user_id, and access_token_file cannot change without a restart")
	}
	h.current.Store(next)
	return next, nil
}
