// main wires the onboarding bot: stores, registrar, conversation engine,
// the console chat transport and the admin HTTP API. Business logic lives
// in the internal packages; this file only assembles and supervises them.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"golang.org/x/sync/errgroup"

	"enroll/internal/bot"
	jwttoken "enroll/internal/jwt_token"
	"enroll/internal/onboarding/engine"
	"enroll/internal/onboarding/entrycode"
	"enroll/internal/onboarding/files"
	"enroll/internal/onboarding/registrar"
	"enroll/internal/onboarding/store/memory"
	"enroll/internal/onboarding/store/postgres"
	"enroll/internal/onboarding/store/sheet"
	"enroll/internal/platform/config"
	"enroll/internal/platform/httpserver"
	"enroll/internal/platform/logger"
	"enroll/internal/platform/metrics"
	platformredis "enroll/internal/platform/redis"
	httptransport "enroll/internal/transport/http"
	"enroll/pkg/platform/audit"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.FromEnv()
	log := logger.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Relational store: postgres when configured, in-memory otherwise.
	var members registrar.MemberStore
	if cfg.PostgresDSN != "" {
		db, err := sql.Open("postgres", cfg.PostgresDSN)
		if err != nil {
			return fmt.Errorf("open postgres: %w", err)
		}
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			return fmt.Errorf("ping postgres: %w", err)
		}
		store := postgres.New(db)
		if err := store.EnsureSchema(ctx); err != nil {
			return err
		}
		members = store
		log.Info("using postgres member store")
	} else {
		members = memory.New()
		log.Warn("no postgres DSN configured, members are in-memory only")
	}

	sheetStore := sheet.New(cfg.SheetPath)
	if err := sheetStore.EnsureFile(ctx); err != nil {
		return err
	}

	// Audit trail: Kafka when brokers are configured, in-memory otherwise.
	var sink audit.Sink = audit.NewMemorySink()
	if len(cfg.KafkaBrokers) > 0 {
		kafkaSink, err := audit.NewKafkaSink(ctx, cfg.KafkaBrokers, cfg.AuditTopic)
		if err != nil {
			return err
		}
		defer kafkaSink.Close()
		sink = kafkaSink
		log.Info("audit events going to kafka", "topic", cfg.AuditTopic)
	}
	auditor := audit.NewPublisher(sink, audit.WithLogger(log))
	defer auditor.Close()

	m := metrics.New()

	reg := registrar.New(members, sheetStore, entrycode.New(),
		registrar.WithLogger(log),
		registrar.WithMetrics(m),
		registrar.WithAuditor(auditor),
	)

	eng := engine.New(engine.NewSessions(), files.New(cfg.UploadDir),
		engine.WithLogger(log),
		engine.WithMetrics(m),
	)

	// Flood control: Redis when configured, per-process otherwise.
	var limiter bot.Limiter = bot.NewMemoryLimiter(cfg.FloodLimit, cfg.FloodWindow)
	redisClient, err := platformredis.New(ctx, cfg.RedisURL)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
		limiter = bot.NewRedisLimiter(redisClient, cfg.FloodLimit, cfg.FloodWindow)
		log.Info("flood control backed by redis")
	}

	console := bot.NewConsoleChat(os.Stdout)
	adapter := bot.New(console, eng, reg,
		bot.WithLogger(log),
		bot.WithLimiter(limiter),
		bot.WithAuditor(auditor),
	)

	tokens := jwttoken.NewJWTService(cfg.JWTSigningKey, "enroll", "enroll-admin")
	handler := httptransport.New(reg, tokens, cfg.AdminPasswordHash, log)
	srv := httpserver.New(cfg.HTTPAddr, httptransport.NewRouter(handler))

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		log.Info("admin API listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	group.Go(func() error {
		<-ctx.Done()
		return httpserver.Shutdown(srv, 10*time.Second)
	})

	group.Go(func() error {
		err := eng.SweepIdle(ctx, cfg.SessionTTL, cfg.SweepInterval)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	group.Go(func() error {
		log.Info("console chat ready, lines are 'user: text'")
		if err := console.Run(ctx, os.Stdin, adapter); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	if err := group.Wait(); err != nil {
		return err
	}
	log.Info("shutdown complete")
	return nil
}
