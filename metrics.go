// Copyright 2026 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package gateway

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "gateway"

// Metrics holds the collectors updated by a gateway.
type Metrics struct {
	stanzas       *prometheus.CounterVec
	registrations *prometheus.CounterVec
	tickFailures  prometheus.Counter
	accountErrors prometheus.Counter
	sent          prometheus.Counter
}

// NewMetrics creates the gateway collectors and registers them with reg.
// If reg is nil the collectors are not registered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		stanzas: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "stanzas_routed_total",
			Help:      "Inbound stanzas by stanza kind and addressed node kind.",
		}, []string{"stanza", "node"}),
		registrations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "registrations_total",
			Help:      "Registration requests by outcome.",
		}, []string{"outcome"}),
		tickFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "feed_failures_total",
			Help:      "Feeder calls that returned an error.",
		}),
		accountErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "account_error_notifications_total",
			Help:      "Error notifications sent to users.",
		}),
		sent: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "stanzas_sent_total",
			Help:      "Outbound stanzas written to the stream.",
		}),
	}
}

func (m *Metrics) routed(stanza string, k Kind) {
	m.stanzas.WithLabelValues(stanza, k.String()).Inc()
}
