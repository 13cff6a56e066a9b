// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bureau-foundation/roommanager/lib/governance"
)

// Command outcomes. Every failure outcome is the governance.Kind name.
const (
	outcomeSuccess = "success"
)

// metrics holds the bot's Prometheus collectors on a private registry,
// so tests can create as many as they like.
type metrics struct {
	registry *prometheus.Registry

	commands          *prometheus.CounterVec
	powerLevelWrites  prometheus.Counter
	inviteFailures    prometheus.Counter
	repliesSuppressed prometheus.Counter
}

func newMetrics() *metrics {
	registry := prometheus.NewRegistry()
	m := &metrics{
		registry: registry,
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "room_manager_commands_total",
			Help: "Commands handled, by command name and outcome.",
		}, []string{"command", "outcome"}),
		powerLevelWrites: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "room_manager_power_level_writes_total",
			Help: "m.room.power_levels events written by promotions and demotions.",
		}),
		inviteFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "room_manager_upgrade_invite_failures_total",
			Help: "Members that could not be invited into a replacement room after an upgrade.",
		}),
		repliesSuppressed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "room_manager_replies_suppressed_total",
			Help: "Success replies not sent because silence_success_responses applied.",
		}),
	}
	registry.MustRegister(
		m.commands,
		m.powerLevelWrites,
		m.inviteFailures,
		m.repliesSuppressed,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// recordCommand counts one finished command. err nil is a success.
func (m *metrics) recordCommand(command string, err error) {
	outcome := outcomeSuccess
	if err != nil {
		outcome = governance.KindOf(err).String()
	}
	m.commands.WithLabelValues(command, outcome).Inc()
}

func (m *metrics) handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	return mux
}
