// Copyright 2025 ModelGate
// SPDX-License-Identifier: Apache-2.0

package router

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	routesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "modelgate_routes_total",
			Help: "Routing decisions by task category and serving tier",
		},
		[]string{"category", "tier"},
	)

	routeFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "modelgate_route_failures_total",
			Help: "Requests with no available model in any tier",
		},
		[]string{"category"},
	)

	breakerSkips = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "modelgate_breaker_skips_total",
			Help: "Models passed over because their circuit was open",
		},
		[]string{"model_id"},
	)

	tierEscalations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "modelgate_tier_escalations_total",
			Help: "Decisions served from a tier other than the requested one",
		},
		[]string{"requested", "served"},
	)
)

func init() {
	prometheus.MustRegister(routesTotal, routeFailures, breakerSkips, tierEscalations)
}
