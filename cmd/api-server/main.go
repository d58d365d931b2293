package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hackgods/therapy-scheduling/internal/access"
	"github.com/hackgods/therapy-scheduling/internal/api"
	"github.com/hackgods/therapy-scheduling/internal/app"
	"github.com/hackgods/therapy-scheduling/internal/appointment"
	"github.com/hackgods/therapy-scheduling/internal/auth"
	"github.com/hackgods/therapy-scheduling/internal/availability"
	"github.com/hackgods/therapy-scheduling/internal/config"
	"github.com/hackgods/therapy-scheduling/internal/db"
	"github.com/hackgods/therapy-scheduling/internal/link"
	"github.com/hackgods/therapy-scheduling/internal/message"
	redisclient "github.com/hackgods/therapy-scheduling/internal/redis"
	"github.com/hackgods/therapy-scheduling/internal/user"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("config load error: " + err.Error())
	}

	logger := app.NewLogger(cfg.Env)
	defer func() { _ = logger.Sync() }()

	logger.Info("api-server starting up",
		zap.String("env", cfg.Env),
		zap.String("http_port", cfg.HTTPPort),
		zap.String("practice_timezone", cfg.PracticeLocation.String()),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect Postgres
	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, db.DefaultPoolOptions)
	cancelPg()
	if err != nil {
		logger.Fatal("postgres connection error", zap.Error(err))
	}
	defer pgPool.Close()
	logger.Info("connected to Postgres")

	if cfg.RunMigrations {
		migrator, err := db.NewMigrator(pgPool, logger)
		if err != nil {
			logger.Fatal("migrator init error", zap.Error(err))
		}
		if err := migrator.Up(rootCtx); err != nil {
			logger.Fatal("migration error", zap.Error(err))
		}
		_ = migrator.Close()
	}

	// Connect Redis. Outside prod the database lock is enough to run without it.
	var (
		locker      redisclient.Locker = redisclient.NoopLocker{}
		redisPinger api.Pinger
	)
	rdb, err := redisclient.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	switch {
	case err == nil:
		defer func() {
			if err := rdb.Close(); err != nil {
				logger.Warn("error closing redis", zap.Error(err))
			}
		}()
		locker = redisclient.NewRedisBookingLocker(rdb, cfg.LockTTL)
		redisPinger = redisclient.Pinger{Client: rdb}
		logger.Info("connected to Redis", zap.Duration("lock_ttl", cfg.LockTTL))
	case cfg.Env == "prod" || cfg.Env == "production":
		logger.Fatal("redis connection error", zap.Error(err))
	default:
		logger.Warn("redis unavailable, booking lock disabled", zap.Error(err))
	}

	gate := access.NewGate()
	users := user.NewPgRepository(pgPool)

	availabilitySvc := availability.NewService(
		availability.NewPgRepository(pgPool, cfg.TxTimeout), gate, logger.Named("availability"))
	linkSvc := link.NewService(link.NewPgRepository(pgPool), users, gate, logger.Named("link"))
	appointmentSvc := appointment.NewService(
		appointment.NewPgRepository(pgPool, cfg.TxTimeout),
		locker,
		appointment.NewChecker(cfg.PracticeLocation),
		gate,
		users,
		linkSvc,
		logger.Named("appointment"),
	)
	messageSvc := message.NewService(message.NewPgRepository(pgPool), linkSvc, gate, logger.Named("message"))

	router := api.NewRouter(api.RouterConfig{
		Availability:   availabilitySvc,
		Appointments:   appointmentSvc,
		Links:          linkSvc,
		Messages:       messageSvc,
		Verifier:       auth.NewVerifier(cfg.JWTSecret),
		Logger:         logger.Named("http"),
		Location:       cfg.PracticeLocation,
		Postgres:       pgPool,
		Redis:          redisPinger,
		CORSOrigins:    cfg.CORSOrigins,
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
		TrustProxy:     cfg.TrustProxy,
		Env:            cfg.Env,
		Version:        version,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-rootCtx.Done()

	logger.Info("shutting down api-server", zap.Duration("timeout", cfg.ShutdownTimeout))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}
