/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package metrics registers the service's prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ConnectedSessions tracks live transport sessions.
	ConnectedSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "communication",
		Name:      "connected_sessions",
		Help:      "Number of live websocket sessions.",
	})

	// LoggedInUsers tracks DIDs with an active session binding.
	LoggedInUsers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "communication",
		Name:      "logged_in_users",
		Help:      "Number of DIDs currently bound to a session.",
	})

	// RelayedMessages counts messages forwarded between sessions.
	RelayedMessages = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "communication",
		Name:      "relayed_messages_total",
		Help:      "Messages relayed to a recipient session.",
	})

	// RequestErrors counts per-request errors by ack status code.
	RequestErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "communication",
		Name:      "request_errors_total",
		Help:      "Request acknowledgements carrying an error, by status.",
	}, []string{"status"})

	// BridgeTransfers counts watched bridge transfers by outcome.
	BridgeTransfers = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "communication",
		Subsystem: "bridge",
		Name:      "transfers_total",
		Help:      "Observed bridge transfer events, by outcome.",
	}, []string{"outcome"})

	// FaucetGrants counts successful faucet transfers.
	FaucetGrants = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "communication",
		Name:      "faucet_grants_total",
		Help:      "Successful faucet transfers.",
	})
)
