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
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/noah-isme/edu-course-api/api/swagger"
	"github.com/noah-isme/edu-course-api/internal/handler"
	"github.com/noah-isme/edu-course-api/internal/middleware"
	"github.com/noah-isme/edu-course-api/internal/models"
	"github.com/noah-isme/edu-course-api/internal/repository"
	"github.com/noah-isme/edu-course-api/internal/service"
	"github.com/noah-isme/edu-course-api/pkg/cache"
	"github.com/noah-isme/edu-course-api/pkg/config"
	"github.com/noah-isme/edu-course-api/pkg/database"
	"github.com/noah-isme/edu-course-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/edu-course-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/edu-course-api/pkg/middleware/requestid"
	"github.com/noah-isme/edu-course-api/pkg/storage"
)

// @title Edu Course API
// @version 1.0.0
// @description Course enrollment, scheduling and tuition backend
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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	var redisClient *redis.Client
	if cfg.Cache.Enabled {
		redisClient, err = cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Sugar().Warnw("redis unavailable, caching disabled", "error", err)
			redisClient = nil
		}
	}

	validate := validator.New()
	metricsSvc := service.NewMetricsService()

	// Repositories.
	userRepo := repository.NewUserRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	instructorRepo := repository.NewInstructorRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	classRepo := repository.NewClassRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	tuitionRepo := repository.NewTuitionRepository(db)
	activityRepo := repository.NewActivityRepository(db)

	var cacheSvc *service.CacheService
	if redisClient != nil {
		cacheRepo := repository.NewCacheRepository(redisClient, logr)
		defer cacheRepo.Close() //nolint:errcheck
		cacheSvc = service.NewCacheService(cacheRepo, metricsSvc, cfg.Cache.ScheduleTTL, logr, true)
	}

	// Background activity queue.
	activitySvc := service.NewActivityService(activityRepo, service.ActivityConfig{
		Enabled:    cfg.Activity.Enabled,
		Workers:    cfg.Activity.Workers,
		BufferSize: cfg.Activity.BufferSize,
	}, logr)
	queueCtx, cancelQueue := context.WithCancel(context.Background())
	activitySvc.Start(queueCtx)
	defer cancelQueue()
	defer activitySvc.Stop()

	// Exports storage with signed download links.
	store, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to init export storage", "error", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL)

	// Services.
	authSvc := service.NewAuthService(userRepo, activitySvc, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             cfg.JWT.Issuer,
	})
	tuitionRule := service.TuitionRule{DuePeriod: cfg.Tuition.DuePeriod}
	enrollmentSvc := service.NewEnrollmentService(enrollmentRepo, classRepo, studentRepo, cacheSvc, metricsSvc, activitySvc, tuitionRule, validate, logr)
	classSvc := service.NewClassService(classRepo, courseRepo, instructorRepo, cacheSvc, activitySvc, cfg.Cache.ProgressTTL, validate, logr)
	courseSvc := service.NewCourseService(courseRepo, logr)
	studentSvc := service.NewStudentService(studentRepo, logr)
	tuitionSvc := service.NewTuitionService(tuitionRepo, enrollmentRepo, studentRepo, activitySvc, tuitionRule, validate, logr)
	exportSvc := service.NewExportService(classRepo, tuitionRepo, studentRepo, store, signer, activitySvc, logr)

	// Handlers.
	authHandler := handler.NewAuthHandler(authSvc)
	enrollmentHandler := handler.NewEnrollmentHandler(enrollmentSvc)
	classHandler := handler.NewClassHandler(classSvc, exportSvc)
	courseHandler := handler.NewCourseHandler(courseSvc)
	studentHandler := handler.NewStudentHandler(studentSvc)
	tuitionHandler := handler.NewTuitionHandler(tuitionSvc, exportSvc)
	exportHandler := handler.NewExportHandler(exportSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)
	activityHandler := handler.NewActivityHandler(activitySvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/metrics", metricsHandler.Prometheus())
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	{
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)
		auth.POST("/logout", middleware.JWT(authSvc), authHandler.Logout)
		auth.POST("/change-password", middleware.JWT(authSvc), authHandler.ChangePassword)
		auth.GET("/me", middleware.JWT(authSvc), authHandler.Me)
	}

	protected := api.Group("")
	protected.Use(middleware.JWT(authSvc))

	catalog := protected.Group("")
	{
		catalog.GET("/courses", courseHandler.List)
		catalog.GET("/courses/:id", courseHandler.Get)
		catalog.GET("/classes", classHandler.List)
		catalog.GET("/classes/:id", classHandler.Get)
		catalog.GET("/classes/:id/progress", classHandler.Progress)
	}

	student := protected.Group("")
	student.Use(middleware.RequireRoles(models.RoleStudent))
	{
		student.POST("/enrollments", enrollmentHandler.Enroll)
		student.DELETE("/enrollments/:classId", enrollmentHandler.Unenroll)
		student.GET("/me/profile", studentHandler.Me)
		student.GET("/me/enrollments", enrollmentHandler.My)
		student.GET("/me/enrollments/history", enrollmentHandler.History)
		student.GET("/me/schedule", enrollmentHandler.Schedule)
		student.GET("/me/tuitions", tuitionHandler.My)
		student.GET("/me/tuitions/:id", tuitionHandler.Get)
		student.POST("/me/tuitions/:id/pay", tuitionHandler.Pay)
		student.GET("/me/tuitions/:id/receipt", tuitionHandler.Receipt)
	}

	// Business mutations record their own activity inside the services; the
	// blanket audit here covers admin access itself.
	admin := protected.Group("")
	admin.Use(middleware.RequireRoles(models.RoleAdmin))
	admin.Use(middleware.Audit(activitySvc, models.AuditActionAdminAccess, "admin"))
	{
		admin.POST("/classes", classHandler.Create)
		admin.POST("/classes/:id/roster/export", classHandler.ExportRoster)
		admin.GET("/students", studentHandler.List)
		admin.GET("/students/:id", studentHandler.Get)
		admin.GET("/admin/metrics", metricsHandler.Snapshot)
		admin.GET("/admin/activity", activityHandler.Recent)
	}

	// Export downloads authenticate with the signed token, not a JWT.
	api.GET("/exports/download", exportHandler.Download)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{Addr: addr, Handler: r}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
