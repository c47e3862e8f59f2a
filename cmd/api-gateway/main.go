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
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/noah-isme/mindcare-booking-api/api/swagger"
	"github.com/noah-isme/mindcare-booking-api/internal/handler"
	internalmiddleware "github.com/noah-isme/mindcare-booking-api/internal/middleware"
	"github.com/noah-isme/mindcare-booking-api/internal/models"
	"github.com/noah-isme/mindcare-booking-api/internal/repository"
	"github.com/noah-isme/mindcare-booking-api/internal/service"
	"github.com/noah-isme/mindcare-booking-api/pkg/cache"
	"github.com/noah-isme/mindcare-booking-api/pkg/config"
	"github.com/noah-isme/mindcare-booking-api/pkg/database"
	"github.com/noah-isme/mindcare-booking-api/pkg/jobs"
	"github.com/noah-isme/mindcare-booking-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/mindcare-booking-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/mindcare-booking-api/pkg/middleware/requestid"
)

// @title MindCare Booking API
// @version 1.0.0
// @description Counsellor slot publishing and booking ledger
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect database", "error", err)
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(ctx, db.DB); err != nil {
			logr.Sugar().Fatalw("failed to migrate database", "error", err)
		}
	}

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, caching disabled", "error", err)
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	metricsSvc := service.NewMetricsService()

	slotRepo := repository.NewSlotRepository(db)
	bookingRepo := repository.NewBookingRepository(db)
	directoryRepo := repository.NewDirectoryRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient)

	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Booking.DirectoryCacheTTL, logr, redisClient != nil)
	directorySvc := service.NewDirectoryService(directoryRepo, cacheSvc, cfg.Booking.DirectoryCacheTTL, logr)
	eventSvc := service.NewBookingEventService(auditRepo, cacheSvc, metricsSvc, jobs.QueueConfig{
		Workers:    cfg.Events.Workers,
		BufferSize: cfg.Events.BufferSize,
		MaxRetries: cfg.Events.MaxRetries,
		RetryDelay: cfg.Events.RetryDelay,
	}, logr)
	eventSvc.Start(ctx)

	opts := service.BookingOptions{
		RequestTimeout:   cfg.Booking.RequestTimeout,
		ReadRetryBackoff: cfg.Booking.ReadRetryBackoff,
		SummaryCacheTTL:  cfg.Booking.SummaryCacheTTL,
	}
	slotSvc := service.NewSlotService(slotRepo, eventSvc, metricsSvc, opts, logr)
	bookingSvc := service.NewBookingService(bookingRepo, slotRepo, directorySvc, cacheSvc, eventSvc, metricsSvc, opts, logr)
	exportSvc := service.NewExportService(bookingSvc, directorySvc, service.ExportConfig{MaxRows: cfg.Exports.MaxRows}, logr, nil, nil)
	authSvc := service.NewAuthService(service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		Issuer:            cfg.JWT.Issuer,
		Audience:          cfg.JWT.Audience,
	}, logr)

	validate := validator.New()
	slotHandler := handler.NewSlotHandler(slotSvc, validate)
	bookingHandler := handler.NewBookingHandler(bookingSvc, validate)
	exportHandler := handler.NewExportHandler(exportSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc, schemaVersion(db), logr,
		handler.DependencyCheck{Name: "postgres", Check: db.PingContext},
		handler.DependencyCheck{Name: "redis", Check: cacheRepo.Ping},
	)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	if cfg.Metrics.Enabled {
		r.Use(internalmiddleware.Metrics(metricsSvc))
		r.GET(cfg.Metrics.Path, metricsHandler.Prometheus)
	}

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.Use(internalmiddleware.JWT(authSvc))

	staff := internalmiddleware.RequireRoles(models.RoleAdmin, models.RoleCounsellor)
	admin := internalmiddleware.RequireRoles(models.RoleAdmin)

	slots := api.Group("/slots")
	slots.GET("", slotHandler.List)
	slots.GET("/:id", slotHandler.Get)
	slots.POST("", staff, slotHandler.Publish)
	slots.DELETE("/:id", internalmiddleware.RequireRoles(models.RoleCounsellor), slotHandler.Cancel)
	slots.POST("/:id/claims", bookingHandler.Claim)

	bookings := api.Group("/bookings")
	bookings.GET("", admin, bookingHandler.List)
	bookings.GET("/summary", staff, bookingHandler.Summary)
	if cfg.Exports.Enabled {
		bookings.GET("/export", admin, exportHandler.Export)
	}
	bookings.GET("/:id", bookingHandler.Get)
	bookings.POST("/:id/decision", staff, bookingHandler.Decide)
	bookings.POST("/:id/cancel", internalmiddleware.RequireRoles(models.RoleAdmin, models.RoleStudent), bookingHandler.Cancel)

	api.GET("/counsellors/:id/bookings", staff, bookingHandler.ListForCounsellor)
	api.GET("/students/:prn/bookings", bookingHandler.ListForStudent)

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
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
	eventSvc.Stop()
}

func schemaVersion(db *sqlx.DB) func(ctx context.Context) (int64, error) {
	return func(ctx context.Context) (int64, error) {
		return database.Version(ctx, db.DB)
	}
}
