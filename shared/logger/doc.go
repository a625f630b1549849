// Copyright 2025 ModelGate
// SPDX-License-Identifier: Apache-2.0

/*
Package logger provides structured JSON logging with multi-tenant support
for ModelGate components.

# Overview

The logger package provides structured logging that outputs JSON to stdout,
making logs easily consumable by CloudWatch, ELK stack, or other log
aggregation systems.

Each log entry includes:
  - Timestamp (RFC3339Nano format)
  - Log level (DEBUG, INFO, WARN, ERROR)
  - Component name (gateway, router, admission, etc.)
  - Instance ID and container name (for distributed tracing)
  - Tenant ID (for multi-tenant isolation)
  - Request ID (for request correlation)
  - Custom fields

# Usage

Create a logger for your component:

	log := logger.New("admission")

Log messages with tenant and request context:

	log.Info("tenant-123", "req-456", "Quota check passed", map[string]interface{}{
	    "category": "chat",
	    "current":  41,
	})

Log errors with status codes:

	log.ErrorWithCode("tenant-123", "req-456", "Quota store unavailable", 500, err, nil)

# Thread Safety

Logger instances are safe for concurrent use from multiple goroutines.
*/
package logger
