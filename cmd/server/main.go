package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/nbalawat/api-dev-portal-sub001/internal/auth"
	"github.com/nbalawat/api-dev-portal-sub001/internal/config"
	"github.com/nbalawat/api-dev-portal-sub001/internal/handler"
	"github.com/nbalawat/api-dev-portal-sub001/internal/handler/middleware"
	"github.com/nbalawat/api-dev-portal-sub001/internal/ierr"
	"github.com/nbalawat/api-dev-portal-sub001/internal/keymaterial"
	"github.com/nbalawat/api-dev-portal-sub001/internal/metrics"
	"github.com/nbalawat/api-dev-portal-sub001/internal/notify"
	"github.com/nbalawat/api-dev-portal-sub001/internal/permission"
	"github.com/nbalawat/api-dev-portal-sub001/internal/ratelimit"
	"github.com/nbalawat/api-dev-portal-sub001/internal/service"
	"github.com/nbalawat/api-dev-portal-sub001/internal/storage/postgres"
	"github.com/nbalawat/api-dev-portal-sub001/internal/storage/redis"
	"github.com/nbalawat/api-dev-portal-sub001/internal/worker"
	"github.com/nbalawat/api-dev-portal-sub001/pkg/logger"
)

func main() {
	configPath := flag.String("config", "./configs/config.dev.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	appLogger, err := logger.NewZapLogger(cfg.Log.Level)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer appLogger.Sync()

	sugarLogger := appLogger.Sugar()

	sugarLogger.Info("Starting application...")
	sugarLogger.Infof("Log level set to: %s", cfg.Log.Level)

	appCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbPool, err := postgres.NewPgxPool(appCtx, &cfg.Database, appLogger)
	if err != nil {
		sugarLogger.Fatalf("Failed to connect to PostgreSQL: %v", err)
	}
	defer dbPool.Close()

	redisClient, err := redis.NewRedisClient(appCtx, &cfg.Redis, appLogger)
	if err != nil {
		sugarLogger.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()

	keyManager, err := keymaterial.NewManager(cfg.Auth.HMACSecret)
	if err != nil {
		sugarLogger.Fatalf("Failed to initialize key material manager: %v", err)
	}

	admissionMetrics := metrics.NewAdmission("devportal", prometheus.DefaultRegisterer)

	apiKeyRepo := postgres.NewAPIKeyRepository(dbPool, appLogger)
	activityRepo := postgres.NewActivityRepository(dbPool, appLogger)

	var backend ratelimit.Backend
	switch cfg.RateLimit.Backend {
	case "memory":
		backend = ratelimit.NewMemoryBackend(ratelimit.WithCleanupInterval(cfg.RateLimit.CleanupInterval))
		sugarLogger.Warn("Using in-memory rate limit backend; counters are per-process only")
	default:
		backend = ratelimit.NewRedisBackend(redisClient, ratelimit.WithTimeout(cfg.RateLimit.BackendTimeout))
	}

	algo, err := ratelimit.NewAlgorithm(cfg.RateLimit.Algorithm, backend)
	if err != nil {
		sugarLogger.Fatalf("Failed to initialize rate limit algorithm: %v", err)
	}
	sugarLogger.Infof("Rate limiting with algorithm %q on backend %q", cfg.RateLimit.Algorithm, cfg.RateLimit.Backend)

	endpointRules := make([]ratelimit.EndpointRule, len(cfg.RateLimit.Endpoints))
	for i, ep := range cfg.RateLimit.Endpoints {
		endpointRules[i] = ratelimit.EndpointRule{Prefix: ep.Prefix, Limit: ep.Limit, Window: ep.Window}
	}
	limitManager := ratelimit.NewManager(algo, ratelimit.ManagerConfig{
		GlobalLimit:  cfg.RateLimit.GlobalLimit,
		GlobalWindow: cfg.RateLimit.GlobalWindow,
		Endpoints:    endpointRules,
		FailOpen:     cfg.RateLimit.FailOpen,
	}, appLogger)

	gate := auth.NewGate(apiKeyRepo, keyManager, activityRepo, appLogger,
		auth.WithCache(cfg.Auth.CacheSize, cfg.Auth.CacheTTL),
		auth.WithMetrics(admissionMetrics),
	)

	notifier := notify.NewLogNotifier(appLogger)

	apiKeyService := service.NewAPIKeyService(apiKeyRepo, keyManager, activityRepo, appLogger)
	lifecycleService := service.NewLifecycleService(apiKeyRepo, keyManager, activityRepo, notifier,
		cfg.Lifecycle.RotationTransition, cfg.Lifecycle.ExpiryWarningLead, appLogger)

	var counterStore handler.Pinger
	if cfg.RateLimit.Backend != "memory" {
		counterStore = handler.PingerFunc(func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		})
	}
	healthHandler := handler.NewHealthHandler(dbPool, counterStore, cfg.RateLimit.Backend, cfg.RateLimit.Algorithm, appLogger)
	apiKeyHandler := handler.NewAPIKeyHandler(apiKeyService, lifecycleService, limitManager, appLogger)
	portalHandler := handler.NewPortalHandler(limitManager, appLogger)

	managementAuth := middleware.ManagementAuthMiddleware(cfg.Auth.ManagementSecret, appLogger)
	admission := middleware.AdmissionMiddleware(gate, limitManager, admissionMetrics, appLogger)
	errorMiddleware := middleware.ErrorHandlerMiddleware(appLogger)

	router := gin.New()
	router.Use(gin.LoggerWithFormatter(func(param gin.LogFormatterParams) string {
		return fmt.Sprintf("%s - [%s] \"%s %s %s %d %s \"%s\" %s\"\n",
			param.ClientIP,
			param.TimeStamp.Format(time.RFC1123),
			param.Method,
			param.Path,
			param.Request.Proto,
			param.StatusCode,
			param.Latency,
			param.Request.UserAgent(),
			param.ErrorMessage,
		)
	}))
	router.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logMsg := "Panic recovered"
		if err, ok := recovered.(string); ok {
			logMsg = fmt.Sprintf("%s: %s", logMsg, err)
		} else if err, ok := recovered.(error); ok {
			logMsg = fmt.Sprintf("%s: %v", logMsg, err)
		}
		appLogger.Error(logMsg, zap.Stack("stack"))

		_ = c.Error(ierr.ErrInternalServer)
		c.Abort()
	}))

	corsConfig := cors.Config{
		AllowOrigins: []string{"http://localhost:3000"},
		AllowMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders: []string{
			"Origin",
			"Content-Type",
			"Accept",
			"Authorization",
			"X-API-Key",
		},
		ExposeHeaders: []string{
			"Content-Length",
			"X-RateLimit-Limit",
			"X-RateLimit-Remaining",
			"X-RateLimit-Reset",
			"X-RateLimit-Window",
			"X-RateLimit-Algorithm",
			"Retry-After",
		},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	router.Use(cors.New(corsConfig))
	router.Use(errorMiddleware)

	router.GET("/healthz", healthHandler.Check)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	apiV1 := router.Group("/api/v1")
	{
		apiKeyRoutes := apiV1.Group("/apikeys")
		apiKeyRoutes.Use(managementAuth)
		{
			apiKeyRoutes.POST("", apiKeyHandler.Create)
			apiKeyRoutes.GET("", apiKeyHandler.List)
			apiKeyRoutes.DELETE("/:id", apiKeyHandler.Revoke)
			apiKeyRoutes.POST("/:id/rotate", apiKeyHandler.Rotate)
			apiKeyRoutes.POST("/:id/ratelimit/reset", apiKeyHandler.ResetRateLimit)
		}

		portalRoutes := apiV1.Group("/portal")
		portalRoutes.Use(admission)
		{
			portalRoutes.GET("/me", portalHandler.Me)
			portalRoutes.GET("/usage",
				middleware.RequirePermission(permission.ResourceAnalytics, permission.PermissionRead, activityRepo, admissionMetrics, appLogger),
				portalHandler.Usage)
		}
	}

	g, groupCtx := errgroup.WithContext(appCtx)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	g.Go(func() error {
		sugarLogger.Infof("HTTP server listening on port %s", cfg.Server.Port)

		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			sugarLogger.Errorf("HTTP server ListenAndServe error: %v", err)
			return fmt.Errorf("http server failed: %w", err)
		}
		sugarLogger.Info("HTTP server stopped listening.")
		return nil
	})

	g.Go(func() error {
		<-groupCtx.Done()
		sugarLogger.Info("Shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownPeriod)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			sugarLogger.Errorf("HTTP server graceful shutdown failed: %v", err)
			return fmt.Errorf("http server shutdown error: %w", err)
		}
		sugarLogger.Info("HTTP server shutdown complete.")
		return nil
	})

	g.Go(func() error {
		if err := worker.RunWorkers(groupCtx, cfg, lifecycleService, appLogger); err != nil {
			sugarLogger.Error("Asynq worker failed", zap.Error(err))
			return fmt.Errorf("asynq worker error: %w", err)
		}
		sugarLogger.Info("Asynq workers finished gracefully.")
		return nil
	})

	sugarLogger.Info("Application started. Waiting for interrupt signal (Ctrl+C) or component error...")

	waitErr := g.Wait()

	sugarLogger.Info("Shutdown sequence finished.")

	if waitErr != nil {
		if errors.Is(waitErr, context.Canceled) {
			sugarLogger.Info("Shutdown reason: Context canceled (likely due to OS signal).")
		} else if errors.Is(waitErr, http.ErrServerClosed) {
			sugarLogger.Info("Shutdown reason: HTTP server closed normally.")
		} else {
			sugarLogger.Errorf("Application shutdown finished with unexpected error: %v", waitErr)
		}
	} else {
		sugarLogger.Info("Application shutdown successfully (all components finished without errors).")
	}

	sugarLogger.Info("Application exiting now.")
}
