// Copyright 2025 ModelGate
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"modelgate/core/admission"
	"modelgate/core/router"
	"modelgate/core/shared/logger"
	"modelgate/core/usage"
)

// Server exposes the routing core over HTTP.
type Server struct {
	router   *router.Router
	guard    *admission.Guard
	resolver admission.IdentityResolver
	recorder *usage.Recorder // nil when no database is configured
	log      *logger.Logger
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithUsageRecorder enables usage event recording.
func WithUsageRecorder(rec *usage.Recorder) ServerOption {
	return func(s *Server) { s.recorder = rec }
}

// NewServer wires the handlers around the given collaborators.
func NewServer(rt *router.Router, guard *admission.Guard, resolver admission.IdentityResolver, opts ...ServerOption) *Server {
	s := &Server{
		router:   rt,
		guard:    guard,
		resolver: resolver,
		log:      logger.New("gateway"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler builds the full HTTP handler: routes, CORS, metrics.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"}, // Configure for production
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	// Health check
	r.HandleFunc("/health", s.healthHandler).Methods("GET")

	// Prometheus native format
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	// Main routing endpoint, quota-guarded per tenant
	r.Handle("/api/v1/route", s.guard.WithRateLimit("chat", http.HandlerFunc(s.routeHandler))).Methods("POST")

	// Outcome reporting feeds the circuit breaker; authenticated but
	// never counted against quota
	r.HandleFunc("/api/v1/report", s.reportHandler).Methods("POST")

	// Circuit breaker admin
	r.HandleFunc("/api/v1/circuits", s.circuitsHandler).Methods("GET")
	r.HandleFunc("/api/v1/circuits/reset", s.circuitsResetHandler).Methods("POST")

	// Per-tenant usage rollup
	r.HandleFunc("/api/v1/usage/{month}", s.usageSummaryHandler).Methods("GET")

	return c.Handler(r)
}
