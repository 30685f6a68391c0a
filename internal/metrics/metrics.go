// Package metrics exposes prometheus collectors for the relay.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "relay"

var (
	// RoomsActive tracks the number of live rooms in the registry.
	RoomsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "rooms_active",
		Help:      "Number of rooms currently held by the registry.",
	})

	// ConnectionsActive tracks admitted member connections across rooms.
	ConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "connections_active",
		Help:      "Number of admitted WebSocket connections.",
	})

	// EnvelopesRelayed counts processed inbound envelopes by kind.
	EnvelopesRelayed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "envelopes_relayed_total",
		Help:      "Inbound envelopes dispatched to an engine, by kind.",
	}, []string{"kind"})

	// FramesDropped counts inbound frames discarded by the dispatch
	// boundary, by reason.
	FramesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "frames_dropped_total",
		Help:      "Inbound frames discarded without closing the connection.",
	}, []string{"reason"})

	// SendsDropped counts outbound messages dropped because a peer's send
	// queue was full.
	SendsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sends_dropped_total",
		Help:      "Outbound messages dropped due to a slow or dead peer.",
	})
)
