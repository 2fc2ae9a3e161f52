package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"chaintrail/internal/audit"
	auditpg "chaintrail/internal/audit/postgres"
	"chaintrail/internal/custody"
	custodymetrics "chaintrail/internal/custody/metrics"
	"chaintrail/internal/dispatch"
	"chaintrail/internal/history"
	"chaintrail/internal/identity"
	"chaintrail/internal/ledger"
	"chaintrail/internal/ledger/kafka"
	ledgerpg "chaintrail/internal/ledger/postgres"
	"chaintrail/internal/platform/config"
	"chaintrail/internal/platform/httpserver"
	"chaintrail/internal/platform/logger"
	"chaintrail/internal/platform/metrics"
	"chaintrail/internal/platform/redis"
	"chaintrail/internal/registry"
	httptransport "chaintrail/internal/transport/http"
	id "chaintrail/pkg/domain"
)

const auditBuffer = 256

// main wires dependencies and owns the process lifecycle. Business logic lives
// in the internal services.
func main() {
	cfg := config.FromEnv()
	log := logger.New()
	ctx := context.Background()

	manufacturer, err := id.ParseAddress(cfg.Manufacturer)
	if err != nil {
		log.Error("invalid CHAINTRAIL_MANUFACTURER", "error", err)
		os.Exit(1)
	}

	// One shared pool serves the ledger and the audit sink.
	var db *sql.DB
	if cfg.PostgresURL != "" {
		db, err = sql.Open("postgres", cfg.PostgresURL)
		if err != nil {
			log.Error("open postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()
	}

	// Ledger backend: postgres when configured, in-memory otherwise.
	var chain ledger.Ledger
	if db != nil {
		pg := ledgerpg.New(db, manufacturer)
		if err := pg.EnsureSchema(ctx); err != nil {
			log.Error("ensure ledger schema", "error", err)
			os.Exit(1)
		}
		// Fast-fail when the database is down instead of stacking timeouts.
		chain = ledger.WithBreaker(pg, log)
		log.Info("ledger backend: postgres")
	} else {
		chain = ledger.NewInMemory(manufacturer)
		log.Warn("ledger backend: in-memory, state will not survive restarts")
	}

	// Optional Kafka relay mirroring committed mutations to a topic.
	if len(cfg.Kafka.Brokers) > 0 {
		client, err := kafka.NewClient(cfg.Kafka.Brokers)
		if err != nil {
			log.Error("kafka client", "error", err)
			os.Exit(1)
		}
		if err := kafka.EnsureTopic(ctx, client, cfg.Kafka.Topic); err != nil {
			log.Error("kafka topic", "error", err)
			os.Exit(1)
		}
		relay := kafka.NewRelay(chain, client, cfg.Kafka.Topic, log)
		defer func() {
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := relay.Close(flushCtx); err != nil {
				log.Error("close kafka relay", "error", err)
			}
		}()
		chain = relay
		log.Info("kafka relay enabled", "topic", cfg.Kafka.Topic)
	}

	// Audit sink: postgres when available, in-memory otherwise.
	var auditStore audit.Store
	if db != nil {
		pg := auditpg.New(db)
		if err := pg.EnsureSchema(ctx); err != nil {
			log.Error("ensure audit schema", "error", err)
			os.Exit(1)
		}
		auditStore = pg
	} else {
		auditStore = audit.NewInMemoryStore()
	}
	publisher := audit.NewPublisher(auditStore, audit.WithAsyncBuffer(auditBuffer))
	defer publisher.Close()

	// Role selections: redis when configured, in-memory otherwise.
	var roleStore dispatch.RoleStore
	redisClient, err := redis.New(cfg.Redis)
	if err != nil {
		log.Error("redis", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
		roleStore = dispatch.NewRedisRoleStore(redisClient, cfg.RoleSelectionTTL)
		log.Info("role store: redis")
	} else {
		roleStore = dispatch.NewInMemoryRoleStore(cfg.RoleSelectionTTL)
	}

	httpMetrics := metrics.New()
	custodyMetrics := custodymetrics.New()
	ident := identity.NewService(cfg.JWTSigningKey, cfg.JWTIssuer)

	handler := httptransport.NewHandler(
		registry.NewService(chain),
		custody.NewService(chain, publisher, custodyMetrics, log),
		history.NewService(chain),
		dispatch.NewDispatcher(roleStore),
		ident,
		publisher,
		log,
	)
	router := httptransport.NewRouter(handler, ident, httpMetrics, log)

	srv := httpserver.New(cfg.Addr, router)
	log.Info("starting chaintrail gateway", "addr", cfg.Addr, "manufacturer", manufacturer.String())

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		log.Error("server error", "error", err)
		os.Exit(1)
	case sig := <-quit:
		log.Info("shutting down", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
}
