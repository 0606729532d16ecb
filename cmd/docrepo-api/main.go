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
	"go.uber.org/zap"

	_ "github.com/noah-isme/docrepo-api/api/swagger"
	"github.com/noah-isme/docrepo-api/internal/handler"
	"github.com/noah-isme/docrepo-api/internal/middleware"
	"github.com/noah-isme/docrepo-api/internal/repository"
	"github.com/noah-isme/docrepo-api/internal/service"
	"github.com/noah-isme/docrepo-api/pkg/cache"
	"github.com/noah-isme/docrepo-api/pkg/config"
	"github.com/noah-isme/docrepo-api/pkg/database"
	"github.com/noah-isme/docrepo-api/pkg/export"
	"github.com/noah-isme/docrepo-api/pkg/logger"
	"github.com/noah-isme/docrepo-api/pkg/session"
	"github.com/noah-isme/docrepo-api/pkg/storage"
)

// @title Docrepo API
// @version 1.0.0
// @description University document repository: past exams, projects and theses with supervisor review
// @BasePath /api
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

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect database", zap.Error(err))
	}
	defer db.Close() //nolint:errcheck

	if cfg.Database.AutoMigrate {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		err := database.Migrate(ctx, db, logr)
		cancel()
		if err != nil {
			logr.Fatal("failed to apply migrations", zap.Error(err))
		}
	}

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Fatal("failed to connect redis", zap.Error(err))
	}
	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	defer cacheRepo.Close() //nolint:errcheck

	files, err := storage.NewLocalStorage(cfg.Storage.Root)
	if err != nil {
		logr.Fatal("failed to prepare storage", zap.Error(err))
	}

	userRepo := repository.NewUserRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	resourceRepo := repository.NewResourceRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	settingRepo := repository.NewSettingRepository(db)
	auditRepo := repository.NewAuditRepository(db)

	validate := service.NewValidator()
	metricsSvc := service.NewMetricsService()
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Dashboard.CacheTTL, logr, true)

	settingSvc := service.NewSettingService(settingRepo, auditRepo, validate, logr, service.SettingServiceConfig{
		MaxUploadMB:  cfg.Storage.MaxFileSizeBytes / (1024 * 1024),
		AllowedMIMEs: cfg.Storage.AllowedMIMEs,
	})
	authSvc := service.NewAuthService(userRepo, sessionRepo, cacheSvc, settingSvc, metricsSvc, validate, logr, service.AuthConfig{
		SessionTTL:         cfg.Session.TTL,
		SessionMaxLifetime: cfg.Session.MaxLifetime,
		SessionCacheTTL:    cfg.Session.CacheTTL,
		AdminCode:          cfg.Registration.AdminCode,
		SupervisorCode:     cfg.Registration.SupervisorCode,
		BcryptCost:         cfg.Security.BcryptCost,
	})
	userSvc := service.NewUserService(userRepo, sessionRepo, authSvc, validate, logr)
	notificationSvc := service.NewNotificationService(notificationRepo, cacheRepo, authSvc, metricsSvc, logr, service.NotificationConfig{
		Workers:          cfg.Notifications.Workers,
		BufferSize:       cfg.Notifications.QueueSize,
		MaxRetries:       cfg.Notifications.MaxRetries,
		RecoveryInterval: cfg.Notifications.RecoveryInterval,
		ChannelPrefix:    cfg.Notifications.Channel,
	})
	resourceSvc := service.NewResourceService(service.ResourceServiceDeps{
		Repo:      resourceRepo,
		Users:     userRepo,
		Storage:   files,
		Signer:    storage.NewSignedURLSigner(cfg.Storage.SignedURLSecret, cfg.Storage.SignedURLTTL),
		Notifier:  notificationSvc,
		Cache:     cacheSvc,
		Settings:  settingSvc,
		Audit:     auditRepo,
		Metrics:   metricsSvc,
		Validator: validate,
		Logger:    logr,
	}, service.ResourceServiceConfig{
		MaxFileSize:  cfg.Storage.MaxFileSizeBytes,
		AllowedMIMEs: cfg.Storage.AllowedMIMEs,
		APIPrefix:    cfg.APIPrefix,
	})
	dashboardSvc := service.NewDashboardService(resourceRepo, userRepo, cacheSvc, logr, service.DashboardServiceConfig{
		CacheTTL: cfg.Dashboard.CacheTTL,
	})
	exportSvc := service.NewExportService(resourceRepo, logr, export.NewCSVExporter(), export.NewPDFExporter())

	cookie := &middleware.SessionCookie{
		Name:   cfg.Session.CookieName,
		Domain: cfg.Session.CookieDomain,
		Secure: cfg.Session.CookieSecure,
		Codec:  session.NewCodec(cfg.Session.Secret, "docrepo-api"),
	}

	router := handler.NewRouter(handler.RouterDeps{
		APIPrefix:      cfg.APIPrefix,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		EnableDocs:     cfg.Env != config.EnvProduction,
		EnableMetrics:  cfg.Metrics.Enabled,
		Logger:         logr,
		Metrics:        metricsSvc,
		Sessions:       authSvc,
		Cookie:         cookie,
		AuditLog:       auditRepo,
		Auth:           handler.NewAuthHandler(authSvc, cookie),
		Users:          handler.NewUserHandler(userSvc),
		Resources:      handler.NewResourceHandler(resourceSvc, exportSvc),
		Notifications:  handler.NewNotificationHandler(notificationSvc),
		Settings:       handler.NewSettingHandler(settingSvc),
		Dashboard:      handler.NewDashboardHandler(dashboardSvc),
		System: handler.NewMetricsHandler(metricsSvc, map[string]handler.Pinger{
			"database": handler.PingFunc(db.PingContext),
			"redis":    cacheRepo,
		}),
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	notificationSvc.Start(ctx)
	if n, err := notificationSvc.Recover(ctx); err != nil {
		logr.Warn("initial notification recovery failed", zap.Error(err))
	} else if n > 0 {
		logr.Info("re-enqueued undelivered notifications", zap.Int("count", n))
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
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
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
	notificationSvc.Stop()
}
