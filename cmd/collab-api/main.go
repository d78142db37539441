package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/gtcollab-api/api/swagger"
	"github.com/noah-isme/gtcollab-api/internal/catalog"
	"github.com/noah-isme/gtcollab-api/internal/handler"
	"github.com/noah-isme/gtcollab-api/internal/middleware"
	"github.com/noah-isme/gtcollab-api/internal/models"
	"github.com/noah-isme/gtcollab-api/internal/push"
	"github.com/noah-isme/gtcollab-api/internal/repository"
	"github.com/noah-isme/gtcollab-api/internal/service"
	"github.com/noah-isme/gtcollab-api/pkg/cache"
	"github.com/noah-isme/gtcollab-api/pkg/config"
	"github.com/noah-isme/gtcollab-api/pkg/database"
	"github.com/noah-isme/gtcollab-api/pkg/jobs"
	"github.com/noah-isme/gtcollab-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/gtcollab-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/gtcollab-api/pkg/middleware/requestid"
)

// @title GT Collab API
// @version 0.1.0
// @description Course catalog sync and meeting collaboration backend
// @BasePath /api/v1
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		logr.Fatal("failed to connect to redis", zap.Error(err))
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	metricsSvc := service.NewMetricsService()
	validate := validator.New()
	txRunner := database.NewTxRunner(db)

	termRepo := repository.NewTermRepository(db)
	subjectRepo := repository.NewSubjectRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	sectionRepo := repository.NewSectionRepository(db)
	meetingRepo := repository.NewMeetingRepository(db)
	proposalRepo := repository.NewProposalRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	deviceRepo := repository.NewDeviceRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Sync.ProgressCacheTTL, logr, redisClient != nil)

	var tracker *service.LoadStateTracker
	if redisClient != nil {
		tracker = service.InitProcessLoadState(repository.NewSyncStateRepository(redisClient), cfg.Sync.LockTTL, logr)
	} else {
		tracker = service.InitProcessLoadState(nil, cfg.Sync.LockTTL, logr)
	}

	catalogClient := catalog.NewClient(cfg.Catalog, catalog.WithLogger(logr))
	syncSvc := service.NewCatalogSyncService(
		catalogClient, termRepo, subjectRepo, courseRepo, sectionRepo, txRunner, tracker,
		service.CatalogSyncConfig{
			TermType:      cfg.Catalog.TermType,
			PreTermWindow: cfg.Catalog.PreTermWindow,
			Concurrency:   cfg.Catalog.Concurrency,
		},
		service.WithSyncLogger(logr),
		service.WithSyncMetrics(metricsSvc),
		service.WithSyncCache(cacheSvc),
	)
	syncQueue := jobs.NewQueue("catalog-sync", syncSvc.HandleJob, jobs.QueueConfig{
		Workers:    1,
		BufferSize: 1,
		Logger:     logr,
	})
	syncSvc.UseQueue(syncQueue)
	syncQueue.Start(ctx)
	defer syncQueue.Stop()

	progressSvc := service.NewSyncProgressService(termRepo, subjectRepo, tracker, cacheSvc, cfg.Catalog.PreTermWindow, cfg.Sync.ProgressCacheTTL)

	transport, err := push.NewTransport(cfg.Notifications, logr)
	if err != nil {
		logr.Fatal("failed to init push transport", zap.Error(err))
	}
	notificationSvc := service.NewNotificationService(notificationRepo, deviceRepo, transport, metricsSvc, cfg.Notifications.Concurrency, cfg.Notifications.Timeout, logr)
	proposalSvc := service.NewProposalService(proposalRepo, meetingRepo, notificationSvc, txRunner, validate, metricsSvc, cfg.Proposals.DefaultExpirationMinutes, logr)
	invitationSvc := service.NewInvitationService(meetingRepo, notificationSvc, validate, logr)
	deviceSvc := service.NewDeviceService(deviceRepo, validate)
	tokenSvc := service.NewTokenService(cfg.JWT.Secret)

	scheduler := jobs.NewScheduler(logr, time.UTC)
	if err := scheduler.Register("proposal-expiry", cfg.Proposals.SweepSchedule, func(ctx context.Context) error {
		_, err := proposalSvc.ExpireDue(ctx)
		return err
	}); err != nil {
		logr.Fatal("failed to schedule proposal sweep", zap.Error(err))
	}
	if cfg.Sync.ScheduleEnabled {
		if err := scheduler.Register("catalog-sync", cfg.Sync.Schedule, syncSvc.RunScheduled); err != nil {
			logr.Fatal("failed to schedule catalog sync", zap.Error(err))
		}
	}
	scheduler.Start()

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	metricsHandler := handler.NewMetricsHandler(metricsSvc, readinessChecks(db.PingContext, redisClient)...)
	catalogHandler := handler.NewCatalogHandler(progressSvc, syncSvc)
	proposalHandler := handler.NewProposalHandler(proposalSvc)
	notificationHandler := handler.NewNotificationHandler(notificationSvc, invitationSvc, deviceSvc)

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	public := r.Group(cfg.APIPrefix)
	public.Use(middleware.OptionalJWT(tokenSvc))
	public.GET("/catalog/status", catalogHandler.Status)
	public.GET("/terms/current", catalogHandler.CurrentTerm)

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.JWT(tokenSvc))
	{
		api.POST("/meetings/:id/proposals", proposalHandler.Create)
		api.GET("/meeting-proposals/:id", proposalHandler.Get)
		api.POST("/meeting-proposals/:id/approve", proposalHandler.Approve)
		api.POST("/meeting-proposals/:id/reject", proposalHandler.Reject)

		api.GET("/notifications", notificationHandler.List)
		api.POST("/notifications/:id/read", notificationHandler.MarkRead)
		api.POST("/groups/:id/invitations", notificationHandler.InviteToGroup)
		api.POST("/meetings/:id/invitations", notificationHandler.InviteToMeeting)
		api.POST("/devices", notificationHandler.RegisterDevice)

		admin := api.Group("/admin", middleware.RequireRoles(models.RoleAdmin, models.RoleSuperAdmin))
		admin.POST("/catalog/sync", catalogHandler.TriggerSync)
		admin.GET("/metrics", metricsHandler.Summary)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := scheduler.Stop(shutdownCtx); err != nil {
		logr.Warn("scheduler did not stop cleanly", zap.Error(err))
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Warn("server shutdown failed", zap.Error(err))
	}
}

func readinessChecks(pingDB func(context.Context) error, redisClient *redis.Client) []handler.ReadinessCheck {
	checks := []handler.ReadinessCheck{{Name: "postgres", Check: pingDB}}
	if redisClient != nil {
		checks = append(checks, handler.ReadinessCheck{Name: "redis", Check: func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}})
	}
	return checks
}
