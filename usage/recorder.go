// Copyright 2025 ModelGate
// SPDX-License-Identifier: Apache-2.0

// Package usage records routing events to the billing database. Writes
// are best-effort: a failed insert is logged and never blocks the
// request path.
package usage

import (
	"context"
	"database/sql"
	"fmt"

	"modelgate/core/shared/logger"
)

// Dialect selects the SQL flavor for placeholders and date formatting.
type Dialect string

const (
	Postgres Dialect = "postgres"
	MySQL    Dialect = "mysql"
)

// Recorder persists routing events.
type Recorder struct {
	db      *sql.DB
	dialect Dialect
	log     *logger.Logger
}

// NewRecorder returns a Recorder over the given database handle.
func NewRecorder(db *sql.DB, dialect Dialect) (*Recorder, error) {
	switch dialect {
	case Postgres, MySQL:
	default:
		return nil, fmt.Errorf("unsupported SQL dialect %q", dialect)
	}
	return &Recorder{
		db:      db,
		dialect: dialect,
		log:     logger.New("usage-recorder"),
	}, nil
}

// RouteEvent captures one routed model call.
type RouteEvent struct {
	TenantID         string
	RequestID        string
	Category         string
	Tier             int
	ModelID          string
	Provider         string
	PromptTokens     int
	CompletionTokens int
	EstimatedCostUSD float64
	LatencyMs        int64
	Outcome          string // "success", "model_error", "rejected"
}

const (
	insertPostgres = `
		INSERT INTO route_events (
			tenant_id, request_id, category, tier, model_id, provider,
			prompt_tokens, completion_tokens, estimated_cost_usd,
			latency_ms, outcome
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	insertMySQL = `
		INSERT INTO route_events (
			tenant_id, request_id, category, tier, model_id, provider,
			prompt_tokens, completion_tokens, estimated_cost_usd,
			latency_ms, outcome
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	summaryPostgres = `
		SELECT COUNT(*),
		       COALESCE(SUM(prompt_tokens + completion_tokens), 0),
		       COALESCE(SUM(estimated_cost_usd), 0)
		FROM route_events
		WHERE tenant_id = $1 AND to_char(created_at, 'YYYY-MM') = $2`
	summaryMySQL = `
		SELECT COUNT(*),
		       COALESCE(SUM(prompt_tokens + completion_tokens), 0),
		       COALESCE(SUM(estimated_cost_usd), 0)
		FROM route_events
		WHERE tenant_id = ? AND DATE_FORMAT(created_at, '%Y-%m') = ?`
)

// RecordRoute inserts a routing event. Errors are logged and returned
// so callers can count them, but callers should not fail the request.
func (r *Recorder) RecordRoute(ctx context.Context, event RouteEvent) error {
	query := insertPostgres
	if r.dialect == MySQL {
		query = insertMySQL
	}

	_, err := r.db.ExecContext(ctx, query,
		event.TenantID, nullString(event.RequestID), event.Category,
		event.Tier, event.ModelID, event.Provider,
		event.PromptTokens, event.CompletionTokens, event.EstimatedCostUSD,
		event.LatencyMs, event.Outcome)

	if err != nil {
		r.log.Error(event.TenantID, event.RequestID, "Failed to record route event", map[string]interface{}{
			"model_id": event.ModelID,
			"error":    err.Error(),
		})
	}
	return err
}

// TenantSummary aggregates a tenant's usage for one calendar month.
type TenantSummary struct {
	TenantID     string  `json:"tenant_id"`
	Requests     int     `json:"requests"`
	TotalTokens  int     `json:"total_tokens"`
	TotalCostUSD float64 `json:"total_cost_usd"`
}

// MonthlySummary reports a tenant's aggregate usage for the month
// given as "2006-01".
func (r *Recorder) MonthlySummary(ctx context.Context, tenantID, month string) (TenantSummary, error) {
	query := summaryPostgres
	if r.dialect == MySQL {
		query = summaryMySQL
	}

	summary := TenantSummary{TenantID: tenantID}
	err := r.db.QueryRowContext(ctx, query, tenantID, month).
		Scan(&summary.Requests, &summary.TotalTokens, &summary.TotalCostUSD)
	if err != nil {
		return TenantSummary{}, err
	}
	return summary, nil
}

// nullString converts an empty string to NULL for database insertion.
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
