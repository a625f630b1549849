// Copyright 2025 ModelGate
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"

	"modelgate/core/admission"
	"modelgate/core/config"
	"modelgate/core/identity"
	"modelgate/core/quota"
	"modelgate/core/quota/redisstore"
	"modelgate/core/quota/sqlstore"
	"modelgate/core/router"
	"modelgate/core/routing/circuitbreaker"
	"modelgate/core/routing/models"
	"modelgate/core/shared/logger"
	"modelgate/core/usage"
)

// Run is the exported entry point for the gateway service. It loads
// configuration from the environment, wires all components, and blocks
// serving HTTP until the process exits.
func Run() error {
	log := logger.New("gateway")
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	catalog := models.DefaultCatalog
	if cfg.CatalogPath != "" {
		catalog, err = models.LoadCatalogFile(cfg.CatalogPath)
		if err != nil {
			return fmt.Errorf("loading model catalog: %w", err)
		}
	}
	registry, err := models.NewRegistry(catalog)
	if err != nil {
		return fmt.Errorf("building model registry: %w", err)
	}

	limits := quota.DefaultLimits
	if cfg.LimitsPath != "" {
		limits, err = config.LoadLimits(cfg.LimitsPath)
		if err != nil {
			return fmt.Errorf("loading quota limits: %w", err)
		}
	}

	var db *sql.DB
	if cfg.DatabaseURL != "" {
		db, err = sql.Open(cfg.DatabaseDriver, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	var store admission.QuotaStore
	switch cfg.QuotaBackend {
	case "redis":
		client, err := redisstore.Connect(context.Background(), cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("connecting quota redis: %w", err)
		}
		store = redisstore.New(client, redisstore.WithLimits(limits))
	case "sql":
		store, err = sqlstore.New(db, sqlstore.Dialect(cfg.DatabaseDriver), sqlstore.WithLimits(limits))
		if err != nil {
			return fmt.Errorf("building sql quota store: %w", err)
		}
	}

	var resolver admission.IdentityResolver
	if cfg.JWTSecret != "" {
		resolver = identity.NewJWTResolver([]byte(cfg.JWTSecret))
	} else {
		log.Warn("", "", "JWT_SECRET not set, trusting X-Tenant-ID header", nil)
		resolver = identity.NewHeaderResolver()
	}

	rt := router.New(registry, circuitbreaker.New(cfg.Breaker))
	guard := admission.NewGuard(store, resolver, admission.WithCheckTimeout(cfg.QuotaCheckTimeout))

	var opts []ServerOption
	if db != nil {
		recorder, err := usage.NewRecorder(db, usage.Dialect(cfg.DatabaseDriver))
		if err != nil {
			return fmt.Errorf("building usage recorder: %w", err)
		}
		opts = append(opts, WithUsageRecorder(recorder))
	}
	server := NewServer(rt, guard, resolver, opts...)

	log.Info("", "", "ModelGate gateway listening", map[string]interface{}{
		"addr":          cfg.ListenAddr,
		"quota_backend": cfg.QuotaBackend,
		"models":        registry.Count(),
	})
	return http.ListenAndServe(cfg.ListenAddr, server.Handler())
}
