package main

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/tourdesk/tourdesk/libs/auth"
	"github.com/tourdesk/tourdesk/libs/config"
	"github.com/tourdesk/tourdesk/libs/httpx"
	"github.com/tourdesk/tourdesk/libs/kafkax"
	otelx "github.com/tourdesk/tourdesk/libs/otel"
	"github.com/tourdesk/tourdesk/libs/runtime"
	"github.com/tourdesk/tourdesk/services/dashboard-service/internal/availability"
	"github.com/tourdesk/tourdesk/services/dashboard-service/internal/backend"
	"github.com/tourdesk/tourdesk/services/dashboard-service/internal/cache"
	"github.com/tourdesk/tourdesk/services/dashboard-service/internal/consumer"
	"github.com/tourdesk/tourdesk/services/dashboard-service/internal/handlers"
	"github.com/tourdesk/tourdesk/services/dashboard-service/internal/metrics"
	"github.com/tourdesk/tourdesk/services/dashboard-service/internal/preferences"
	"github.com/tourdesk/tourdesk/services/dashboard-service/internal/workspace"
)

func main() {
	_ = config.LoadDotEnv()

	service := config.String("SERVICE_NAME", "dashboard-service")
	port, err := config.Port("PORT", "8090")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service, config.String("LOG_LEVEL", "info"))

	st, err := loadSettings(logger)
	if err != nil {
		logger.Error("settings load failed", "err", err)
		panic(err)
	}

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	baseURL, err := config.RequiredString("BACKEND_BASE_URL")
	if err != nil {
		panic(err)
	}
	jwtSecret, err := config.RequiredString("JWT_SECRET")
	if err != nil {
		panic(err)
	}

	var (
		rdb         *redis.Client
		store       cache.Store
		readyChecks []runtime.ReadyCheck
	)
	if addr := strings.TrimSpace(config.String("REDIS_ADDR", "")); addr != "" {
		redisDB, err := config.Int("REDIS_DB", 0)
		if err != nil || redisDB < 0 {
			redisDB = 0
		}
		rdb = redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: config.String("REDIS_PASSWORD", ""),
			DB:       redisDB,
		})
		defer func() { _ = rdb.Close() }()
		store = cache.NewRedis(rdb, st.CacheTTL)
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "redis", Check: cache.ReadyCheck(rdb)})
		logger.Info("cache enabled (redis)", "redis_addr", addr, "ttl", st.CacheTTL.String())
	} else {
		store = cache.NewMemory(st.CacheTTL)
		logger.Info("cache enabled (in-memory)", "ttl", st.CacheTTL.String())
	}

	client, err := backend.New(backend.Config{
		BaseURL:       baseURL,
		ServiceToken:  config.String("BACKEND_SERVICE_TOKEN", ""),
		Timeout:       st.BackendTimeout,
		RatePerSecond: st.BackendRate,
		Burst:         st.BackendBurst,
	})
	if err != nil {
		panic(err)
	}

	bus := preferences.NewBus()
	if rdb != nil {
		relay := preferences.NewRedisRelay(rdb, bus, logger)
		go relay.Run(ctx)
	}
	prefStore := preferences.NewStore(client, store, bus, logger)
	prefStore.SetFetchTimeout(st.BackendTimeout)
	blocks := availability.NewBlockService(client, store, logger)

	weekStart, _ := parseWeekday(st.WeekStart)
	registry := workspace.NewRegistry(client, prefStore, blocks, store, logger, workspace.Config{
		WeekStart: weekStart,
		IdleAfter: st.IdleAfter,
	})
	if err := registry.StartRefresher(st.RefreshCron, st.BackendTimeout*3); err != nil {
		logger.Error("refresher start failed", "err", err)
	}

	if brokers := config.String("KAFKA_BROKERS", ""); brokers != "" {
		eventConsumer := consumer.New(logger, consumer.Config{
			Brokers: brokers,
			GroupID: config.String("KAFKA_GROUP_ID", service),
			Topics:  st.KafkaTopics,
		}, consumer.NewChangeHandler(store, registry, logger))
		go eventConsumer.Run(ctx)
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers), Optional: true})
	}

	api := handlers.New(registry, logger, handlers.Config{
		JWTSecret:      jwtSecret,
		RequestTimeout: st.RequestTimeout,
	})

	mux := runtime.NewBaseMuxWithReady(readyChecks...)
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/api/v1/", api.Routes())

	var rateLimitMW httpx.Middleware
	if rdb != nil {
		rl := httpx.NewRedisRateLimiter(rdb, st.RateLimitPerMin, time.Minute, "tourdesk:rl", sessionKey)
		rateLimitMW = rl.Middleware(logger, config.Bool("RATE_LIMIT_FAIL_OPEN", true))
		logger.Info("rate limiting enabled (redis)", "per_minute", st.RateLimitPerMin)
	} else {
		rl := httpx.NewRateLimiter(st.RateLimitPerMin, time.Minute, sessionKey)
		rateLimitMW = rl.Middleware()
		logger.Info("rate limiting enabled (in-memory)", "per_minute", st.RateLimitPerMin)
	}

	handler := httpx.Chain(mux,
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins:   st.CORSOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Authorization", "Content-Type", httpx.RequestIDHeader},
			AllowCredentials: config.Bool("CORS_ALLOW_CREDENTIALS", false),
			MaxAge:           10 * time.Minute,
		}),
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(st.BodyLimitBytes),
		rateLimitMW,
	)
	handler = otelhttp.NewHandler(handler, "dashboard")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	srv.RegisterOnShutdown(api.Close)

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	if err := registry.Close(shutdownCtx); err != nil {
		logger.Warn("pending booking changes did not settle", "err", err)
	}
	logger.Info("http server stopped")
}

// sessionKey charges requests to the bearer token when one is present, else the client address.
// The token is verified later by the API.
func sessionKey(r *http.Request) string {
	if tok, ok := auth.BearerToken(r.Header.Get("Authorization")); ok {
		if parts := strings.Split(tok, "."); len(parts) == 3 {
			return "tok:" + parts[2]
		}
	}
	return "ip:" + httpx.ClientKey(r)
}
