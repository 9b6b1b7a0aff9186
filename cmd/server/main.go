package main

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	_ "github.com/lib/pq"

	"github.com/example/trip-tracking/internal/cache"
	"github.com/example/trip-tracking/internal/config"
	"github.com/example/trip-tracking/internal/dispatch"
	httpapi "github.com/example/trip-tracking/internal/http"
	"github.com/example/trip-tracking/internal/ingest"
	"github.com/example/trip-tracking/internal/logging"
	"github.com/example/trip-tracking/internal/relay"
	"github.com/example/trip-tracking/internal/room"
	"github.com/example/trip-tracking/internal/session"
	"github.com/example/trip-tracking/internal/storage"
	"github.com/example/trip-tracking/internal/tracker"
)

func main() {
	cfg, err := config.LoadServerConfig()
	logger := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store := openStore(cfg, logger)

	registry := session.NewRegistry()
	rooms := session.NewRooms()
	disp := dispatch.NewDispatcher(rooms, logger)

	var (
		rl    relay.Relay
		ready func(ctx context.Context) error
	)
	if cfg.RedisAddr != "" {
		rr := relay.NewRedisRelay(cfg.RedisAddr, cfg.RedisPassword, disp.HandleRelay, logger)
		rr.Start(ctx)
		defer rr.Close()
		rl = rr
		ready = rr.Ping
	} else {
		// single-instance fallback for local runs; cross-instance delivery
		// obviously needs Redis
		logger.Warn("REDIS_ADDR not set, using in-process relay")
		rl = relay.NewMemoryBus().Connect(disp.HandleRelay)
	}

	var lc cache.LocationCache
	if cfg.RedisAddr != "" {
		rc := cache.NewRedisCache(cfg.RedisAddr, cfg.RedisPassword)
		defer rc.Close()
		lc = rc
	} else {
		lc = cache.NewMemoryCache()
	}

	var audit tracker.AuditSink
	if len(cfg.KafkaBrokers) > 0 {
		kp := ingest.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer kp.Close()
		audit = kp
	}

	coord := room.NewCoordinator(store, rl, registry, rooms, logger, room.Config{
		InstanceID:                    cfg.InstanceID,
		DriverCreatesTrip:             cfg.DriverCreatesTrip,
		DriverUnsubscribeOnDisconnect: cfg.DriverUnsubscribeOnDisconnect,
	})
	trk := tracker.New(store, rl, lc, audit, logger, cfg.InstanceID)

	srv := httpapi.NewServer(cfg, logger, registry, coord, trk, ready)

	httpServer := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      srv,
		ReadTimeout:  cfg.ReadTimeout,
		IdleTimeout:  cfg.IdleTimeout,
		// no WriteTimeout: websocket connections outlive any sane value
	}

	go func() {
		logger.Info("trip-tracking listening", "addr", cfg.HTTPAddr, "instance_id", cfg.InstanceID)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
}

func openStore(cfg config.ServerConfig, logger *slog.Logger) storage.TripStore {
	if cfg.PGDSN == "" {
		logger.Warn("PG_DSN not set, using in-memory trip store")
		return storage.NewMemoryStore()
	}
	if cfg.RunMigrations {
		if db, err := sql.Open("postgres", cfg.PGDSN); err == nil {
			if b, err := os.ReadFile(filepath.Join("migrations", "001_create_trips.sql")); err == nil {
				if _, err := db.Exec(string(b)); err != nil {
					logger.Error("migration exec error", "error", err)
				} else {
					logger.Info("migration applied", "file", "001_create_trips.sql")
				}
			}
			_ = db.Close()
		} else {
			logger.Error("migration db open error", "error", err)
		}
	}
	ps, err := storage.NewPostgresStore(cfg.PGDSN)
	if err != nil {
		logger.Error("postgres unavailable, falling back to in-memory store", "error", err)
		return storage.NewMemoryStore()
	}
	return ps
}
