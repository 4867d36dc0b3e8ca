// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package observability

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains the holoauth Prometheus counters.
type Metrics struct {
	AuthOperations *prometheus.CounterVec
	HTTPRequests   *prometheus.CounterVec
}

// NewMetrics creates the holoauth counters and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		AuthOperations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "holoauth_auth_operations_total",
				Help: "Total number of auth operations by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "holoauth_http_requests_total",
				Help: "Total number of HTTP requests by route and status code",
			},
			[]string{"route", "status"},
		),
	}

	reg.MustRegister(m.AuthOperations, m.HTTPRequests)

	return m
}

// RecordAuthOperation counts one facade call. It satisfies auth.Recorder.
func (m *Metrics) RecordAuthOperation(operation, outcome string) {
	m.AuthOperations.WithLabelValues(operation, outcome).Inc()
}

// RecordHTTPRequest counts one served request.
func (m *Metrics) RecordHTTPRequest(route string, status int) {
	m.HTTPRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
}
