// Copyright 2025 ModelGate
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"modelgate/core/admission"
	"modelgate/core/router"
	"modelgate/core/routing/classifier"
	"modelgate/core/usage"
)

// RouteRequest is the body of POST /api/v1/route.
type RouteRequest struct {
	Messages     []classifier.Message `json:"messages"`
	TaskCategory string               `json:"task_category,omitempty"`
	Tools        []string             `json:"tools,omitempty"`
	TierOverride *int                 `json:"tier_override,omitempty"`
}

// RouteResponse wraps the routing decision with request metadata.
type RouteResponse struct {
	RequestID      string          `json:"request_id"`
	Decision       router.Decision `json:"decision"`
	ProcessingTime string          `json:"processing_time"`
}

// ReportRequest is the body of POST /api/v1/report. Token counts and
// latency are optional; when present they are written to the usage log.
type ReportRequest struct {
	ModelID          string  `json:"model_id"`
	Success          bool    `json:"success"`
	Error            string  `json:"error,omitempty"`
	Category         string  `json:"category,omitempty"`
	Tier             int     `json:"tier,omitempty"`
	Provider         string  `json:"provider,omitempty"`
	PromptTokens     int     `json:"prompt_tokens,omitempty"`
	CompletionTokens int     `json:"completion_tokens,omitempty"`
	CostUSD          float64 `json:"cost_usd,omitempty"`
	LatencyMs        int64   `json:"latency_ms,omitempty"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) routeHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req RouteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid_request", Message: "body must be valid JSON"})
		return
	}
	if len(req.Messages) == 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid_request", Message: "messages must not be empty"})
		return
	}

	identity, failure := s.resolver.Resolve(r)
	if failure != nil {
		// The admission guard resolved identity before us, so this
		// only trips when the handler is mounted unguarded.
		writeJSON(w, failure.StatusCode, failure)
		return
	}

	decision, err := s.router.Route(classifier.RequestContext{
		Messages:     req.Messages,
		TaskCategory: classifier.Category(req.TaskCategory),
		Tools:        req.Tools,
		TierOverride: req.TierOverride,
	})
	if err != nil {
		var routeErr *router.RouteError
		if errors.As(err, &routeErr) {
			writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: routeErr.Code, Message: routeErr.Message})
			return
		}
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal_error"})
		return
	}

	s.log.InfoWithDuration(identity.TenantID, identity.RequestID, "Routed request",
		float64(time.Since(start).Milliseconds()), map[string]interface{}{
			"model_id": decision.ModelID,
			"category": decision.Category,
			"tier":     decision.Tier,
		})

	writeJSON(w, http.StatusOK, RouteResponse{
		RequestID:      identity.RequestID,
		Decision:       decision,
		ProcessingTime: time.Since(start).String(),
	})
}

func (s *Server) reportHandler(w http.ResponseWriter, r *http.Request) {
	identity, failure := s.resolver.Resolve(r)
	if failure != nil {
		writeJSON(w, failure.StatusCode, failure)
		return
	}

	var req ReportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid_request", Message: "body must be valid JSON"})
		return
	}
	if req.ModelID == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid_request", Message: "model_id is required"})
		return
	}

	outcome := "success"
	if req.Success {
		s.router.ReportSuccess(req.ModelID)
	} else {
		s.router.ReportFailure(req.ModelID, req.Error)
		outcome = "model_error"
	}

	if s.recorder != nil {
		s.recorder.RecordRoute(r.Context(), usageEvent(identity, req, outcome))
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "recorded"})
}

func (s *Server) circuitsHandler(w http.ResponseWriter, r *http.Request) {
	if _, failure := s.resolver.Resolve(r); failure != nil {
		writeJSON(w, failure.StatusCode, failure)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"open_circuits": s.router.Breaker().OpenCircuits(),
	})
}

func (s *Server) circuitsResetHandler(w http.ResponseWriter, r *http.Request) {
	identity, failure := s.resolver.Resolve(r)
	if failure != nil {
		writeJSON(w, failure.StatusCode, failure)
		return
	}

	var req struct {
		ModelID string `json:"model_id,omitempty"`
	}
	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&req)
	}

	if req.ModelID == "" {
		s.router.Breaker().ResetAll()
	} else {
		s.router.Breaker().Reset(req.ModelID)
	}

	s.log.Info(identity.TenantID, identity.RequestID, "Circuit breaker reset", map[string]interface{}{
		"model_id": req.ModelID,
	})
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

func (s *Server) usageSummaryHandler(w http.ResponseWriter, r *http.Request) {
	identity, failure := s.resolver.Resolve(r)
	if failure != nil {
		writeJSON(w, failure.StatusCode, failure)
		return
	}
	if s.recorder == nil {
		writeJSON(w, http.StatusNotImplemented, errorResponse{Error: "usage_disabled", Message: "no usage database configured"})
		return
	}

	month := mux.Vars(r)["month"]
	summary, err := s.recorder.MonthlySummary(r.Context(), identity.TenantID, month)
	if err != nil {
		s.log.Error(identity.TenantID, identity.RequestID, "Usage summary query failed", map[string]interface{}{
			"error": err.Error(),
		})
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal_error"})
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func usageEvent(identity admission.Identity, req ReportRequest, outcome string) usage.RouteEvent {
	return usage.RouteEvent{
		TenantID:         identity.TenantID,
		RequestID:        identity.RequestID,
		Category:         req.Category,
		Tier:             req.Tier,
		ModelID:          req.ModelID,
		Provider:         req.Provider,
		PromptTokens:     req.PromptTokens,
		CompletionTokens: req.CompletionTokens,
		EstimatedCostUSD: req.CostUSD,
		LatencyMs:        req.LatencyMs,
		Outcome:          outcome,
	}
}
