// Copyright 2025 ModelGate
// SPDX-License-Identifier: Apache-2.0

package admission

import "github.com/prometheus/client_golang/prometheus"

var (
	admittedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "modelgate_admission_admitted_total",
			Help: "Requests admitted past the quota gate",
		},
		[]string{"category"},
	)
	denialsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "modelgate_admission_denied_total",
			Help: "Requests denied by per-tenant quota",
		},
		[]string{"category"},
	)
	quotaStoreErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "modelgate_admission_quota_store_errors_total",
			Help: "Quota store failures (checks failed open, increments dropped)",
		},
	)
)

func init() {
	prometheus.MustRegister(admittedTotal)
	prometheus.MustRegister(denialsTotal)
	prometheus.MustRegister(quotaStoreErrors)
}
