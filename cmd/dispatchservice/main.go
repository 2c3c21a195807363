package main

import (
	"context"
	"database/sql"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/example/dispatchlite/internal/auth"
	"github.com/example/dispatchlite/internal/dispatch/domain"
	"github.com/example/dispatchlite/internal/dispatch/handler"
	"github.com/example/dispatchlite/internal/dispatch/presence"
	"github.com/example/dispatchlite/internal/dispatch/repository"
	dispatchservice "github.com/example/dispatchlite/internal/dispatch/service"
	"github.com/example/dispatchlite/internal/dispatch/watch"
	etasvc "github.com/example/dispatchlite/internal/eta/service"
	ratelimitmw "github.com/example/dispatchlite/internal/http/middleware"
	"github.com/example/dispatchlite/internal/location"
	outboxworker "github.com/example/dispatchlite/internal/outbox"
	"github.com/example/dispatchlite/internal/routing"
	"github.com/example/dispatchlite/internal/simulator"
	"github.com/example/dispatchlite/internal/tracking"
	"github.com/example/dispatchlite/pkg/events"
	"github.com/example/dispatchlite/pkg/observability"
)

type appConfig struct {
	HTTPAddr       string
	GRPCAddr       string
	RoutingBaseURL string
	RoutingTimeout time.Duration
	RedisAddr      string
	NATSURL        string
	PostgresDSN    string
	AuthSecret     string
	SeedDemo       bool
	RateReadRPS    float64
	RateReadBurst  float64
	RateWriteRPS   float64
	RateWriteBurst float64
	OutboxPoll     time.Duration
	OutboxBatch    int
	OutboxRetry    int
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := observability.SetupLogger("dispatch-service")
	defer logger.Sync() //nolint:errcheck

	shutdown, err := observability.SetupTracer(ctx, "dispatch-service")
	if err != nil {
		logger.Warn("tracer setup failed", zap.Error(err))
	} else {
		defer shutdown(context.Background())
	}

	cfg := loadConfig()

	var db *sql.DB
	if cfg.PostgresDSN != "" {
		db, err = sql.Open("pgx", cfg.PostgresDSN)
		if err != nil {
			logger.Fatal("postgres connect", zap.Error(err))
		}
		db.SetMaxOpenConns(10)
		db.SetConnMaxLifetime(5 * time.Minute)
		if err := db.PingContext(ctx); err != nil {
			logger.Fatal("postgres ping", zap.Error(err))
		}
		defer db.Close()
	}

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Fatal("redis ping", zap.Error(err))
		}
		defer redisClient.Close()
	}

	var natsConn *nats.Conn
	if cfg.NATSURL != "" {
		if conn, err := nats.Connect(cfg.NATSURL, nats.Name("dispatchservice")); err == nil {
			natsConn = conn
			defer conn.Drain()
		} else {
			logger.Warn("nats connection failed", zap.Error(err))
		}
	}

	store := repository.NewMemoryStore(domain.SystemClock{})
	if cfg.SeedDemo {
		if err := repository.Seed(ctx, store); err != nil {
			logger.Fatal("seed demo data", zap.Error(err))
		}
	}

	hub := watch.NewHub()
	publisher := watch.Fanout{hub, events.NewPublisher(natsConn, "dispatch.events")}

	var geoIndex dispatchservice.Presence
	if redisClient != nil {
		geoIndex = presence.NewRedisGeoIndex(redisClient, "")
	}

	svc := dispatchservice.New(store, publisher, domain.SystemClock{}, geoIndex, logger.Named("dispatch"))

	var osrm *routing.OSRMClient
	if cfg.RoutingBaseURL != "" {
		osrm = routing.NewOSRMClient(cfg.RoutingBaseURL, cfg.RoutingTimeout)
	}
	estimator := routing.NewEstimator(osrm, logger.Named("routing"))
	eta := etasvc.New(store, estimator)

	sims := simulator.NewManager(svc, simulator.Config{}, logger.Named("simulator"))
	defer sims.StopAll()

	tracker := tracking.New(store, estimator, sims, hub, logger.Named("tracking"))
	go tracker.Run(ctx)

	var driverAuth func(http.Handler) http.Handler
	if cfg.AuthSecret != "" {
		driverAuth = auth.Middleware(cfg.AuthSecret, auth.RoleDriver)
	}
	api := handler.NewHTTP(svc, eta, driverAuth, logger.Named("http"))

	limiter := ratelimitmw.NewRateLimiter(redisClient,
		ratelimitmw.RateConfig{Rate: cfg.RateReadRPS, Burst: cfg.RateReadBurst},
		ratelimitmw.RateConfig{Rate: cfg.RateWriteRPS, Burst: cfg.RateWriteBurst})

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID, chimiddleware.RealIP, chimiddleware.Recoverer)
	if limiter != nil {
		r.Use(limiter.Middleware)
	}
	ready := &readyFlag{}
	r.Mount("/", api.Router())
	r.Mount("/observability", observability.MetricsRouter(ready))

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	if db != nil && natsConn != nil {
		worker := outboxworker.NewWorker(db, natsConn, logger.Named("outbox"), outboxworker.WorkerConfig{
			PollInterval: cfg.OutboxPoll,
			BatchSize:    cfg.OutboxBatch,
			RetryMax:     cfg.OutboxRetry,
		})
		go func() {
			if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("outbox worker stopped", zap.Error(err))
			}
		}()
	} else {
		logger.Info("outbox worker disabled", zap.Bool("db", db != nil), zap.Bool("nats", natsConn != nil))
	}

	grpcSrv := grpc.NewServer()
	location.RegisterLocationServer(grpcSrv, location.NewServer(svc, logger.Named("location")))
	go func() {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			logger.Fatal("listen grpc", zap.Error(err))
		}
		logger.Info("location grpc listening", zap.String("addr", lis.Addr().String()))
		if err := grpcSrv.Serve(lis); err != nil {
			logger.Fatal("grpc serve", zap.Error(err))
		}
	}()

	go func() {
		logger.Info("dispatch service listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("http server", zap.Error(err))
		}
	}()
	ready.set(true)

	<-ctx.Done()
	ready.set(false)
	grpcSrv.GracefulStop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

func loadConfig() appConfig {
	return appConfig{
		HTTPAddr:       getenv("HTTP_ADDR", ":8080"),
		GRPCAddr:       getenv("GRPC_ADDR", ":9090"),
		RoutingBaseURL: getenv("ROUTING_BASE_URL", "https://router.project-osrm.org"),
		RoutingTimeout: time.Duration(parseIntEnv("ROUTING_TIMEOUT_MS", 5000)) * time.Millisecond,
		RedisAddr:      os.Getenv("REDIS_ADDR"),
		NATSURL:        os.Getenv("NATS_URL"),
		PostgresDSN:    firstNonEmpty(os.Getenv("POSTGRES_DSN"), os.Getenv("DATABASE_URL")),
		AuthSecret:     os.Getenv("AUTH_SECRET"),
		SeedDemo:       parseBoolEnv("SEED_DEMO", true),
		RateReadRPS:    parseFloatEnv("RATE_READ_RPS", 50),
		RateReadBurst:  parseFloatEnv("RATE_READ_BURST", 100),
		RateWriteRPS:   parseFloatEnv("RATE_WRITE_RPS", 10),
		RateWriteBurst: parseFloatEnv("RATE_WRITE_BURST", 20),
		OutboxPoll:     time.Duration(parseIntEnv("OUTBOX_POLL_MS", 200)) * time.Millisecond,
		OutboxBatch:    parseIntEnv("OUTBOX_BATCH", 100),
		OutboxRetry:    parseIntEnv("OUTBOX_RETRY_MAX", 3),
	}
}

type readyFlag struct{ v atomic.Bool }

func (f *readyFlag) set(ready bool) { f.v.Store(ready) }
func (f *readyFlag) Ready() bool    { return f.v.Load() }

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func parseIntEnv(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return fallback
}

func parseFloatEnv(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func parseBoolEnv(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			return parsed
		}
	}
	return fallback
}
