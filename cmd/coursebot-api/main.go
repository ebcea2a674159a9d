package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/edukit/coursebot-api/internal/handler"
	"github.com/edukit/coursebot-api/internal/middleware"
	"github.com/edukit/coursebot-api/internal/models"
	"github.com/edukit/coursebot-api/internal/repository"
	"github.com/edukit/coursebot-api/internal/service"
	"github.com/edukit/coursebot-api/pkg/cache"
	"github.com/edukit/coursebot-api/pkg/config"
	"github.com/edukit/coursebot-api/pkg/database"
	"github.com/edukit/coursebot-api/pkg/logger"
	corsmiddleware "github.com/edukit/coursebot-api/pkg/middleware/cors"
	"github.com/edukit/coursebot-api/pkg/storage"
	reqidmiddleware "github.com/edukit/coursebot-api/pkg/middleware/requestid"
)

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

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewSQLite(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to open database", "error", err)
	}
	defer db.Close() //nolint:errcheck

	if err := database.ApplySchema(db); err != nil {
		logr.Sugar().Fatalw("failed to apply schema", "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metricsService := service.NewMetricsService()

	cacheEnabled := false
	var cacheRepo service.CacheRepository
	if cfg.Redis.Enabled {
		redisClient, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Sugar().Warnw("redis unavailable, continuing without cache", "error", err)
		} else {
			defer redisClient.Close() //nolint:errcheck
			cacheRepo = repository.NewCacheRepository(redisClient, logr)
			cacheEnabled = true
		}
	}
	cacheService := service.NewCacheService(cacheRepo, metricsService, cfg.Redis.CacheTTL, logr, cacheEnabled)

	blobs, err := storage.NewBlobStore(cfg.Storage.DataDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to init blob store", "error", err)
	}

	materialRepo := repository.NewMaterialRepository(db)
	weekRepo := repository.NewWeekRepository(db)
	submissionRepo := repository.NewSubmissionRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	backupRepo := repository.NewBackupRepository(db)

	auditRecorder := service.NewAuditRecorder(auditRepo, logr)
	auditRecorder.Start(ctx)
	defer auditRecorder.Stop()

	authService := service.NewAuthService(service.AuthConfig{
		Secret: cfg.JWT.Secret,
		Expiry: cfg.JWT.Expiration,
	})

	signer := storage.NewSignedURLSigner(cfg.Storage.SignedURLSecret, cfg.Storage.SignedURLTTL)

	backupService := service.NewBackupService(backupRepo, auditRecorder, logr, service.BackupServiceConfig{
		Dir:          cfg.Backups.Dir,
		DatabasePath: cfg.Database.Path,
		DataDir:      cfg.Storage.DataDir,
		FullMaxAge:   cfg.Backups.FullMaxAge,
		IncMaxAge:    cfg.Backups.IncMaxAge,
		AutoInterval: cfg.Backups.AutoInterval,
	})
	if cfg.Backups.Enabled {
		go backupService.RunPeriodic(ctx)
	}

	materialService := service.NewMaterialService(materialRepo, weekRepo, blobs, signer, backupService, auditRecorder, metricsService, logr, service.MaterialServiceConfig{
		MaxUploadBytes: cfg.Storage.MaxUploadBytes,
		MaxVersions:    cfg.Materials.MaxVersions,
		APIPrefix:      cfg.APIPrefix,
	})
	submissionService := service.NewSubmissionService(submissionRepo, weekRepo, blobs, auditRecorder, logr, cfg.Storage.MaxUploadBytes)
	weekService := service.NewWeekService(weekRepo, cacheService, logr)
	reportService := service.NewReportService(materialRepo, submissionRepo, weekRepo, logr, cfg.Reports.Enabled)

	materialHandler := handler.NewMaterialHandler(materialService)
	weekHandler := handler.NewWeekHandler(weekService)
	submissionHandler := handler.NewSubmissionHandler(submissionService)
	backupHandler := handler.NewBackupHandler(backupService, auditRepo)
	reportHandler := handler.NewReportHandler(reportService)
	metricsHandler := handler.NewMetricsHandler(metricsService)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsService))

	r.GET("/health", metricsHandler.Health)
	r.GET("/metrics", metricsHandler.Prometheus)

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.WithResponseMeta())

	// Signed download link, authenticated by the token itself.
	api.GET("/materials/:id/download", materialHandler.Download)

	authed := api.Group("")
	authed.Use(middleware.JWT(authService))

	authed.GET("/status", metricsHandler.Status)

	weeks := authed.Group("/weeks")
	{
		weeks.GET("", weekHandler.List)
		weeks.POST("", middleware.RequireManagers(), weekHandler.Create)
		weeks.GET("/:weekNo", weekHandler.Get)

		weeks.GET("/:weekNo/materials", materialHandler.ListWeek)
		weeks.POST("/:weekNo/materials", middleware.RequireManagers(), materialHandler.Upload)
		weeks.POST("/:weekNo/links", middleware.RequireManagers(), materialHandler.AddLink)
		weeks.GET("/:weekNo/materials/:type", materialHandler.GetActive)
		weeks.GET("/:weekNo/materials/:type/versions", middleware.RequireManagers(), materialHandler.ListVersions)
		weeks.POST("/:weekNo/materials/:type/archive", middleware.RequireManagers(), materialHandler.Archive)
		weeks.POST("/:weekNo/materials/:type/retention", middleware.RequireManagers(), materialHandler.EnforceRetention)
		weeks.DELETE("/:weekNo/materials/archived", middleware.RequireManagers(), materialHandler.PurgeArchived)

		weeks.POST("/:weekNo/submissions", submissionHandler.Upload)
		weeks.GET("/:weekNo/submissions", submissionHandler.ListMine)
		weeks.GET("/:weekNo/submissions/students", middleware.RequireManagers(), submissionHandler.WeekOverview)

		weeks.GET("/:weekNo/reports/materials", middleware.RequireRoles(models.RoleOwner), reportHandler.Materials)
		weeks.GET("/:weekNo/reports/submissions", middleware.RequireRoles(models.RoleOwner), reportHandler.Submissions)
	}

	authed.GET("/materials/:id/url", materialHandler.DownloadURL)

	submissions := authed.Group("/submissions")
	{
		submissions.GET("/weeks", submissionHandler.MyWeeks)
		submissions.DELETE("/files/:id", submissionHandler.DeleteFile)
	}

	backups := authed.Group("/backups")
	backups.Use(middleware.RequireManagers())
	{
		backups.GET("", backupHandler.State)
		backups.POST("", backupHandler.Run)
	}

	authed.GET("/audit", backupHandler.AuditTrail)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("shutdown failed", "error", err)
	}
}
