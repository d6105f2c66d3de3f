package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"trustboard/internal/audit"
	"trustboard/internal/cache"
	"trustboard/internal/directory/handler"
	"trustboard/internal/directory/metrics"
	"trustboard/internal/directory/service"
	"trustboard/internal/directory/store"
	"trustboard/internal/originguard"
	"trustboard/internal/platform/config"
	"trustboard/internal/platform/httpserver"
	"trustboard/internal/platform/logger"
	"trustboard/internal/platform/middleware/auth"
	"trustboard/internal/platform/middleware/metadata"
	"trustboard/internal/platform/postgres"
	"trustboard/internal/platform/redis"
	"trustboard/internal/ratelimit"
	"trustboard/internal/ratelimit/middleware"
	"trustboard/internal/ratelimit/store/counter"
	httptransport "trustboard/internal/transport/http"
	"trustboard/pkg/httputil"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.FromEnv()
	log := logger.New(cfg.DevMode)
	httputil.ExposeInternalDetail(cfg.DevMode)

	// Persistence: postgres when configured, in-memory otherwise.
	var (
		st store.Store
		db *sql.DB
	)
	if cfg.PostgresDSN != "" {
		var err error
		db, err = postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := store.Migrate(ctx, db); err != nil {
			return err
		}
		st = store.NewPostgres(db)
		log.Info("using postgres store")
	} else {
		st = store.NewMemory()
		log.Info("using in-memory store")
	}

	// Redis backs rate-limit counters and cache invalidation when available.
	var (
		counterStore ratelimit.CounterStore = counter.NewInMemory()
		invalidator  service.Invalidator    = cache.NewMemory()
		rdb          *redis.Client
	)
	if cfg.RedisURL != "" {
		var err error
		rdb, err = redis.New(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer rdb.Close()
		counterStore = counter.NewRedis(rdb.Client)
		invalidator = cache.NewRedis(rdb.Client)
		log.Info("using redis counters and invalidation")
	}

	// Audit trail: kafka when brokers are configured, in-memory otherwise.
	var sink audit.Sink
	if len(cfg.KafkaBrokers) > 0 {
		ks, err := audit.NewKafkaSink(ctx, cfg.KafkaBrokers, cfg.AuditTopic, log)
		if err != nil {
			return err
		}
		defer func() {
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := ks.Close(flushCtx); err != nil {
				log.Error("audit sink close failed", "error", err)
			}
		}()
		sink = ks
		log.Info("audit trail on kafka", "topic", cfg.AuditTopic)
	} else {
		sink = audit.NewMemorySink()
	}
	trail := audit.NewPublisher(sink, log)

	m := metrics.New(prometheus.DefaultRegisterer)
	svc := service.New(st, invalidator, trail, m, log)

	limits := ratelimit.DefaultLimits()
	limiter := ratelimit.New(counterStore, limits)
	rl := middleware.New(limiter, limits, log, trail)

	proxies, err := metadata.ParseTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		return fmt.Errorf("parse trusted proxies: %w", err)
	}

	router := httptransport.NewRouter(httptransport.Deps{
		Logger:    log,
		Guard:     originguard.New(cfg.AllowedOrigins),
		Verifier:  auth.NewHMACVerifier(cfg.JWTSigningKey),
		RateLimit: rl,
		Directory: handler.New(svc),
		Proxies:   proxies,
		Health: func(ctx context.Context) error {
			if db != nil {
				if err := db.PingContext(ctx); err != nil {
					return err
				}
			}
			if rdb != nil {
				if err := rdb.Health(ctx); err != nil {
					return err
				}
			}
			return nil
		},
	})

	srv := httpserver.New(cfg.Addr, router)
	log.Info("starting server", "addr", cfg.Addr)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return httpserver.Run(ctx, srv)
	})
	return g.Wait()
}
