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
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/voicegate/stt-gateway-api/internal/audit"
	"github.com/voicegate/stt-gateway-api/internal/config"
	"github.com/voicegate/stt-gateway-api/internal/handler"
	"github.com/voicegate/stt-gateway-api/internal/handler/middleware"
	"github.com/voicegate/stt-gateway-api/internal/ierr"
	"github.com/voicegate/stt-gateway-api/internal/service"
	"github.com/voicegate/stt-gateway-api/internal/storage/postgres"
	"github.com/voicegate/stt-gateway-api/internal/storage/redis"
	"github.com/voicegate/stt-gateway-api/internal/stt"
	"github.com/voicegate/stt-gateway-api/internal/summary"
	"github.com/voicegate/stt-gateway-api/internal/worker"
	"github.com/voicegate/stt-gateway-api/pkg/logger"
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

	sugarLogger.Info("Starting stt-gateway...")
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

	apiKeyRepo := postgres.NewAPIKeyRepository(dbPool, appLogger)
	userRepo := postgres.NewUserRepository(dbPool, appLogger)
	usageRepo := postgres.NewUsageRepository(dbPool, appLogger)
	transcriptionRepo := postgres.NewTranscriptionRepository(dbPool, appLogger)

	recorder := audit.NewRecorder(usageRepo, cfg.Audit.QueueSize, appLogger)
	defer recorder.Close()

	providers := []stt.Provider{
		stt.NewDagloProvider(cfg.Providers.Daglo, cfg.STT.PollInterval, appLogger),
		stt.NewAssemblyAIProvider(cfg.Providers.AssemblyAI, cfg.STT.PollInterval, appLogger),
		stt.NewTiroProvider(cfg.Providers.Tiro, appLogger),
		stt.NewWhisperProvider(cfg.Providers.Whisper, appLogger),
	}
	dispatcher := stt.NewDispatcher(providers, cfg.STT.DefaultService, cfg.STT.FallbackOrder, cfg.STT.ProviderTimeout, appLogger)
	summarizer := summary.NewOpenAISummarizer(cfg.Summary, appLogger)

	credentialService := service.NewCredentialService(apiKeyRepo, userRepo, usageRepo, cfg.JWT, appLogger)
	transcriptionService := service.NewTranscriptionService(dispatcher, summarizer, transcriptionRepo, appLogger)

	healthHandler := handler.NewHealthHandler(dbPool, redisClient, appLogger)
	authHandler := handler.NewAuthHandler(credentialService, appLogger)
	apiKeyHandler := handler.NewAPIKeyHandler(credentialService, appLogger)
	transcribeHandler := handler.NewTranscribeHandler(transcriptionService, recorder, appLogger)
	transcriptionHandler := handler.NewTranscriptionHandler(transcriptionService, appLogger)
	servicesHandler := handler.NewServicesHandler(transcriptionService, cfg.STT.DefaultService, appLogger)

	sessionAuth := middleware.SessionAuthMiddleware(credentialService, appLogger)
	apiKeyAuth := middleware.APIKeyAuthMiddleware(credentialService, recorder, appLogger)
	errorMiddleware := middleware.ErrorHandlerMiddleware(appLogger)

	router := gin.New()
	router.MaxMultipartMemory = cfg.Server.MaxUploadBytes
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
		AllowOrigins: cfg.Server.AllowedOrigins,
		AllowMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders: []string{
			"Origin",
			"Content-Type",
			"Accept",
			"Authorization",
			"X-API-Key",
		},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	router.Use(cors.New(corsConfig))
	router.Use(errorMiddleware)

	router.GET("/healthz", healthHandler.Check)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.POST("/transcribe", transcribeHandler.Anonymous)
	router.POST("/transcribe/protected", apiKeyAuth, transcribeHandler.Protected)

	router.POST("/auth/login", authHandler.Login)
	router.POST("/users", authHandler.Signup)

	router.GET("/services", servicesHandler.List)

	tokenRoutes := router.Group("/tokens")
	{
		tokenRoutes.GET("/verify", apiKeyAuth, apiKeyHandler.Verify)

		tokenRoutes.POST("/:label", sessionAuth, apiKeyHandler.Issue)
		tokenRoutes.GET("", sessionAuth, apiKeyHandler.List)
		tokenRoutes.POST("/revoke", sessionAuth, apiKeyHandler.Revoke)
		tokenRoutes.GET("/history", sessionAuth, apiKeyHandler.History)
	}

	router.GET("/api-usage/stats", sessionAuth, apiKeyHandler.Stats)

	transcriptionRoutes := router.Group("/transcriptions")
	transcriptionRoutes.Use(sessionAuth)
	{
		transcriptionRoutes.GET("", transcriptionHandler.List)
		transcriptionRoutes.GET("/:request_id", transcriptionHandler.Get)
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

	workerErrChan, workerShutdown := worker.RunWorkers(cfg, usageRepo, appLogger)
	g.Go(func() error {
		select {
		case err := <-workerErrChan:
			sugarLogger.Errorf("Asynq worker failed: %v", err)
			return fmt.Errorf("asynq worker error: %w", err)
		case <-groupCtx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownPeriod)
			defer cancel()
			workerShutdown(shutdownCtx)
			sugarLogger.Info("Asynq workers finished gracefully.")
			return nil
		}
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
