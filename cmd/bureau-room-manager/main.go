// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/roommanager/lib/clock"
	"github.com/bureau-foundation/roommanager/lib/config"
	"github.com/bureau-foundation/roommanager/lib/process"
	"github.com/bureau-foundation/roommanager/lib/ref"
	"github.com/bureau-foundation/roommanager/lib/secret"
	"github.com/bureau-foundation/roommanager/lib/version"
	"github.com/bureau-foundation/roommanager/messaging"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	var (
		configPath  string
		logLevel    string
		showVersion bool
	)
	flags := pflag.NewFlagSet("bureau-room-manager", pflag.ContinueOnError)
	flags.StringVar(&configPath, "config", "", "path to the config file (default: $"+config.EnvironmentVariable+")")
	flags.StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, or error")
	flags.BoolVar(&showVersion, "version", false, "print version information and exit")
	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	if showVersion {
		version.Print("bureau-room-manager")
		return nil
	}

	logger, err := newLogger(os.Stderr, logLevel)
	if err != nil {
		return err
	}

	configPath, err = config.Path(configPath)
	if err != nil {
		return err
	}
	cfg, err := config.LoadFile(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	holder := config.NewHolder(configPath, cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	session, err := openSession(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer session.Close()

	botMetrics := newMetrics()
	bot, err := newBot(session, holder, clock.Real(), logger, botMetrics)
	if err != nil {
		return err
	}

	if cfg.MetricsAddress != "" {
		server := &http.Server{
			Addr:              cfg.MetricsAddress,
			Handler:           botMetrics.handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", "address", cfg.MetricsAddress, "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			server.Shutdown(shutdownCtx)
		}()
	}

	go watchReloads(ctx, holder, logger)

	logger.Info("room manager starting",
		"version", version.Info(),
		"user_id", session.UserID(),
		"homeserver", cfg.HomeserverURL,
		"room_version", cfg.RoomVersion,
		"administrators", len(cfg.Administrators),
	)

	err = bot.Run(ctx)
	logger.Info("shutting down")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// openSession reads the access token and verifies that it belongs to
// the configured user.
func openSession(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*messaging.DirectSession, error) {
	userID, err := ref.ParseUserID(cfg.UserID)
	if err != nil {
		return nil, fmt.Errorf("user_id: %w", err)
	}
	token, err := secret.ReadFile(cfg.AccessTokenFile)
	if err != nil {
		return nil, fmt.Errorf("reading access token: %w", err)
	}

	client, err := messaging.NewClient(messaging.ClientConfig{
		HomeserverURL: cfg.HomeserverURL,
		Logger:        logger,
		UserAgent:     "bureau-room-manager/" + version.Version,
	})
	if err != nil {
		token.Close()
		return nil, err
	}
	versions, err := client.ServerVersions(ctx)
	if err != nil {
		token.Close()
		return nil, fmt.Errorf("homeserver %s is unreachable: %w", cfg.HomeserverURL, err)
	}
	logger.Debug("homeserver reachable", "versions", versions.Versions)
	session := client.NewSession(userID, token)

	whoami, err := session.WhoAmI(ctx)
	if err != nil {
		session.Close()
		return nil, fmt.Errorf("validating access token: %w", err)
	}
	if whoami != userID {
		session.Close()
		return nil, fmt.Errorf("access token belongs to %s, not the configured user_id %s", whoami, userID)
	}
	return session, nil
}

// watchReloads reloads the config on SIGHUP until ctx is done. A
// failed reload keeps the previous config.
func watchReloads(ctx context.Context, holder *config.Holder, logger *slog.Logger) {
	hangups := make(chan os.Signal, 1)
	signal.Notify(hangups, syscall.SIGHUP)
	defer signal.Stop(hangups)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hangups:
			cfg, err := holder.Reload()
			if err != nil {
				logger.Error("config reload failed, keeping previous config", "error", err)
				continue
			}
			logger.Info("config reloaded",
				"administrators", len(cfg.Administrators),
				"logging_channel", cfg.LoggingChannel,
				"silence_success_responses", cfg.SilenceSuccessResponses,
			)
		}
	}
}
