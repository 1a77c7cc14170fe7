package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"

	"github.com/formpulse/formpulse/internal/app"
	"github.com/formpulse/formpulse/internal/audit"
	"github.com/formpulse/formpulse/internal/config"
	"github.com/formpulse/formpulse/internal/database"
	"github.com/formpulse/formpulse/internal/health"
	"github.com/formpulse/formpulse/internal/logging"
	"github.com/formpulse/formpulse/internal/redis"
	"github.com/formpulse/formpulse/internal/resilience"
	"github.com/formpulse/formpulse/internal/server"
)

const (
	pingSlowThreshold = 500 * time.Millisecond
	healthTimeout     = 5 * time.Second
	maxGoroutines     = 10_000
	maxHeapBytes      = 1 << 30 // 1 GiB
)

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func setupDB(cfg *config.Config) *pgxpool.Pool {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}

	if err := database.RunMigrations(ctx, pool); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}

	return pool
}

func setupRedis(ctx context.Context, cfg *config.Config) *goredis.Client {
	client, err := redis.NewClient(ctx, cfg.RedisURL)
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	return client
}

func setupAudit(cfg *config.Config, clock clockwork.Clock) *audit.Trail {
	trail, err := audit.New(audit.Config{
		Dir:           cfg.AuditDir,
		MaxFileSize:   cfg.AuditMaxFileSize,
		MaxArchives:   cfg.AuditMaxArchives,
		RetentionDays: cfg.AuditRetentionDays,
		RingSize:      cfg.AuditRingSize,
		Alert: func(e audit.Entry) {
			slog.Warn("High-risk audit event",
				"category", e.Category,
				"action", e.Action,
				"resource", e.Resource,
				"risk", e.Risk,
			)
		},
	}, clock)
	if err != nil {
		slog.Error("Failed to initialize audit trail", "error", err)
		os.Exit(1)
	}
	return trail
}

func setupHealth(pool *pgxpool.Pool, redisClient *goredis.Client) *health.Aggregator {
	return health.NewAggregator(healthTimeout,
		health.NewPingProbe(health.ProbeStore, pingSlowThreshold, pool.Ping),
		health.NewPingProbe(health.ProbeCache, pingSlowThreshold, func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}),
		health.NewProcessProbe(maxGoroutines, maxHeapBytes),
	)
}

func runGracefulShutdown(srv *server.Server, cancelSweeper context.CancelFunc) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		cancelSweeper()
		close(done)
	}()

	return done
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Application starting", "env", cfg.AppEnv, "port", cfg.Port)

	pool := setupDB(cfg)
	defer pool.Close()

	redisClient := setupRedis(context.Background(), cfg)
	defer func() { _ = redisClient.Close() }()

	trail := setupAudit(cfg, clock)

	storeGuard := resilience.New(resilience.Config{
		Name:             "durable_store",
		Timeout:          cfg.StoreTimeout,
		MaxAttempts:      cfg.RetryAttempts,
		BaseBackoff:      cfg.RetryBaseBackoff,
		FailureThreshold: cfg.BreakerThreshold,
		Cooldown:         cfg.BreakerCooldown,
	})
	cacheGuard := resilience.New(resilience.Config{
		Name:             "cache",
		Timeout:          cfg.CacheTimeout,
		MaxAttempts:      1,
		FailureThreshold: cfg.BreakerThreshold,
		Cooldown:         cfg.BreakerCooldown,
	})

	cache := redis.NewCache(redisClient, cacheGuard, redis.TTLs{
		Session:   cfg.CacheSessionTTL,
		Survey:    cfg.CacheSurveyTTL,
		Analytics: cfg.CacheAnalyticsTTL,
		RateLimit: cfg.CacheRateLimitTTL,
		Temp:      cfg.CacheTempTTL,
	})
	sessionCache := redis.NewSessionCache(cache)

	sessionRepo := database.NewSessionRepo(pool)
	submissionRepo := database.NewSubmissionRepo(pool)

	appSvc := app.NewService(sessionRepo, submissionRepo, sessionCache, storeGuard, trail, clock)

	sweeper := app.NewSweeper(sessionRepo, sessionCache, storeGuard, trail, clock, cfg.SessionIdleExpiry, cfg.SessionSweepEvery)
	sweeperCtx, cancelSweeper := context.WithCancel(context.Background())
	go sweeper.Run(sweeperCtx)

	srv := server.NewServer(cfg, appSvc, setupHealth(pool, redisClient), trail)

	done := runGracefulShutdown(srv, cancelSweeper)

	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
}
