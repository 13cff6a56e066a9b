// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/bureau-foundation/roommanager/lib/ref"
)

// EnvironmentVariable names the variable Load reads the config path from.
const EnvironmentVariable = "ROOM_MANAGER_CONFIG"

// Audit log categories accepted in logging_events.
const (
	CategoryCreate  = "create"
	CategoryUpgrade = "upgrade"
	CategoryPromote = "promote"
	CategoryDemote  = "demote"
	CategoryForget  = "forget"
)

// Categories lists every audit category in a stable order.
var Categories = []string{CategoryCreate, CategoryUpgrade, CategoryPromote, CategoryDemote, CategoryForget}

// Config is the room manager configuration.
type Config struct {
	// HomeserverURL is the base URL of the Matrix homeserver's
	// client-server API, e.g. "https://matrix.example.org".
	HomeserverURL string `yaml:"homeserver_url"`

	// UserID is the bot's Matrix user ID. Startup fails if the access
	// token belongs to a different account.
	UserID string `yaml:"user_id"`

	// AccessTokenFile is a path to a file containing the bot's access
	// token. The token is never placed in the config itself.
	AccessTokenFile string `yaml:"access_token_file"`

	// CommandPrefix precedes every command name. Default: "!".
	CommandPrefix string `yaml:"command_prefix"`

	// RoomVersion is the room version new rooms are created with and
	// the only version managed rooms may have. Default: "12".
	RoomVersion string `yaml:"room_version"`

	// Administrators are the instance administrators: users with
	// authority over every room the bot created.
	Administrators []string `yaml:"administrators"`

	// SilenceSuccessResponses suppresses success replies in rooms with
	// more than two joined members. Errors are always reported.
	SilenceSuccessResponses bool `yaml:"silence_success_responses"`

	// LoggingChannel is the room ID audit records are sent to. Empty
	// disables audit logging.
	LoggingChannel string `yaml:"logging_channel"`

	// LoggingEvents selects which audit categories are recorded.
	LoggingEvents []string `yaml:"logging_events"`

	// AutoJoinInvites makes the bot accept every room invite it
	// receives.
	AutoJoinInvites bool `yaml:"auto_join_invites"`

	// MaxConcurrentCommands bounds how many commands execute at once.
	// Default: 8.
	MaxConcurrentCommands int `yaml:"max_concurrent_commands"`

	// MetricsAddress is the listen address for the Prometheus
	// /metrics endpoint. Empty disables it.
	MetricsAddress string `yaml:"metrics_address"`

	// SyncTimeout is the long-poll timeout passed to /sync.
	// Default: 30s.
	SyncTimeout time.Duration `yaml:"sync_timeout"`
}

// Default returns a Config with every optional field at its default.
func Default() *Config {
	return &Config{
		CommandPrefix:         "!",
		RoomVersion:           "12",
		MaxConcurrentCommands: 8,
		SyncTimeout:           30 * time.Second,
	}
}

// Path returns the config file to load: flagValue when set, otherwise
// the file named by ROOM_MANAGER_CONFIG.
func Path(flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	if path := os.Getenv(EnvironmentVariable); path != "" {
		return path, nil
	}
	return "", fmt.Errorf("%s environment variable not set; "+
		"set it to the path of your config file, or use --config flag", EnvironmentVariable)
}

// LoadFile loads configuration from a specific file path, applies
// defaults for absent fields, and validates the result.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		// JSON is a subset of YAML, so one decoder handles both once
		// comments and trailing commas are stripped.
		data = jsonc.ToJSON(data)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	cfg.AccessTokenFile = expandVars(cfg.AccessTokenFile)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars expands ${VAR} and ${VAR:-default} from the environment.
func expandVars(s string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if value := os.Getenv(parts[1]); value != "" {
			return value
		}
		return parts[2]
	})
}

// Validate checks the configuration and reports every problem found.
func (c *Config) Validate() error {
	var errs []error

	if c.HomeserverURL == "" {
		errs = append(errs, errors.New("homeserver_url is required"))
	} else if parsed, err := url.Parse(c.HomeserverURL); err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		errs = append(errs, fmt.Errorf("homeserver_url %q must be an http or https URL", c.HomeserverURL))
	}

	if _, err := ref.ParseUserID(c.UserID); err != nil {
		errs = append(errs, fmt.Errorf("user_id: %w", err))
	}

	if c.AccessTokenFile == "" {
		errs = append(errs, errors.New("access_token_file is required"))
	}

	if strings.TrimSpace(c.CommandPrefix) == "" || strings.ContainsAny(c.CommandPrefix, " \t\n") {
		errs = append(errs, errors.New("command_prefix must be non-empty and contain no whitespace"))
	}

	if !isRoomVersion(c.RoomVersion) {
		errs = append(errs, fmt.Errorf("room_version %q must be a positive integer", c.RoomVersion))
	}

	for _, admin := range c.Administrators {
		if _, err := ref.ParseUserID(admin); err != nil {
			errs = append(errs, fmt.Errorf("administrators: %w", err))
		}
	}

	if c.LoggingChannel != "" {
		if _, err := ref.ParseRoomID(c.LoggingChannel); err != nil {
			errs = append(errs, fmt.Errorf("logging_channel: %w", err))
		}
	}

	for _, category := range c.LoggingEvents {
		if !isCategory(category) {
			errs = append(errs, fmt.Errorf("logging_events: unknown category %q (valid: %s)", category, strings.Join(Categories, ", ")))
		}
	}

	if c.MaxConcurrentCommands < 1 {
		errs = append(errs, fmt.Errorf("max_concurrent_commands must be at least 1, got %d", c.MaxConcurrentCommands))
	}

	if c.SyncTimeout < 0 {
		errs = append(errs, fmt.Errorf("sync_timeout must not be negative, got %s", c.SyncTimeout))
	}

	return errors.Join(errs...)
}

// AdministratorIDs returns the parsed instance administrator set. Call
// only on a validated Config.
func (c *Config) AdministratorIDs() map[ref.UserID]struct{} {
	admins := make(map[ref.UserID]struct{}, len(c.Administrators))
	for _, raw := range c.Administrators {
		if userID, err := ref.ParseUserID(raw); err == nil {
			admins[userID] = struct{}{}
		}
	}
	return admins
}

// LoggingRoom returns the audit destination, or the zero RoomID when
// audit logging is disabled.
func (c *Config) LoggingRoom() ref.RoomID {
	roomID, err := ref.ParseRoomID(c.LoggingChannel)
	if err != nil {
		return ref.RoomID{}
	}
	return roomID
}

// LoggingCategories returns the enabled audit categories as a set.
func (c *Config) LoggingCategories() map[string]bool {
	enabled := make(map[string]bool, len(c.LoggingEvents))
	for _, category := range c.LoggingEvents {
		enabled[category] = true
	}
	return enabled
}

func isRoomVersion(version string) bool {
	if version == "" || version[0] == '0' {
		return false
	}
	for _, character := range version {
		if character < '0' || character > '9' {
			return false
		}
	}
	return true
}

func isCategory(category string) bool {
	for _, known := range Categories {
		if category == known {
			return true
		}
	}
	return false
}
