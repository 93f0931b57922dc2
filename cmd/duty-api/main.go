package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	_ "github.com/invigilo/exam-duty-api/api/swagger"
	"github.com/invigilo/exam-duty-api/internal/handler"
	"github.com/invigilo/exam-duty-api/internal/repository"
	"github.com/invigilo/exam-duty-api/internal/service"
	"github.com/invigilo/exam-duty-api/pkg/cache"
	"github.com/invigilo/exam-duty-api/pkg/config"
	"github.com/invigilo/exam-duty-api/pkg/database"
	"github.com/invigilo/exam-duty-api/pkg/jobs"
	"github.com/invigilo/exam-duty-api/pkg/logger"
	"github.com/invigilo/exam-duty-api/pkg/storage"
)

// @title Exam Duty API
// @version 1.0.0
// @description Exam surveillance duty assignment engine
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
	sugar := logr.Sugar()

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		sugar.Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close() //nolint:errcheck

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		sugar.Warnw("redis unavailable, board caching disabled", "error", err)
		redisClient = nil
	}

	validate := validator.New()

	teacherRepo := repository.NewTeacherRepository(db)
	availabilityRepo := repository.NewAvailabilityRepository(db)
	calendarRepo := repository.NewCalendarRepository(db)
	configRepo := repository.NewConfigRepository(db)
	assignmentRepo := repository.NewAssignmentRepository(db)
	userRepo := repository.NewUserRepository(db)
	reportJobRepo := repository.NewReportJobRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	metricsService := service.NewMetricsService()
	cacheService := service.NewCacheService(cacheRepo, metricsService, cfg.Planner.SummaryCacheTTL, logr, redisClient != nil)

	authService := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            "exam-duty-api",
	})

	calendarService := service.NewCalendarService(calendarRepo, logr)
	rosterService := service.NewRosterService(teacherRepo, availabilityRepo, calendarService, validate, logr)
	configService := service.NewConfigService(configRepo, teacherRepo, validate, logr)

	plannerService := service.NewPlannerService(
		rosterService,
		calendarService,
		configService,
		assignmentRepo,
		cacheService,
		metricsService,
		logr,
		service.PlannerConfig{SolverTimeout: cfg.Solver.Timeout},
	)
	rosterService.AttachPlanner(plannerService)
	calendarService.AttachPlanner(plannerService)
	configService.AttachPlanner(plannerService)

	if err := plannerService.Reload(ctx); err != nil {
		sugar.Warnw("initial board load failed, waiting for calendar import", "error", err)
	}

	var reportHandler *handler.ReportHandler
	var reportQueue *jobs.Queue
	if cfg.Reports.Enabled {
		reportStore, err := storage.NewLocalStorage(cfg.Reports.StorageDir)
		if err != nil {
			sugar.Fatalw("failed to init report storage", "error", err)
		}
		signer := storage.NewSignedURLSigner(cfg.Reports.SignedURLSecret, cfg.Reports.SignedURLTTL)

		worker := service.NewReportWorker(reportJobRepo, plannerService, calendarService, reportStore, signer, logr)
		reportQueue = jobs.NewQueue("reports", worker.Handle, jobs.QueueConfig{
			Workers:    cfg.Reports.WorkerConcurrency,
			MaxRetries: cfg.Reports.WorkerRetries,
			Logger:     logr,
		})
		reportQueue.Start(ctx)

		reportService := service.NewReportService(reportJobRepo, reportQueue, reportStore, signer, logr, service.ReportServiceConfig{
			ResultTTL:       cfg.Reports.SignedURLTTL,
			CleanupInterval: cfg.Reports.CleanupInterval,
		})
		reportService.StartCleanup(ctx)
		reportHandler = handler.NewReportHandler(reportService)
	}

	router := handler.NewRouter(handler.RouterDeps{
		Logger:         logr,
		APIPrefix:      cfg.APIPrefix,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		EnableDocs:     cfg.Env != config.EnvProduction,

		AuthService:    authService,
		MetricsService: metricsService,

		Auth:        handler.NewAuthHandler(authService),
		Metrics:     handler.NewMetricsHandler(metricsService),
		Roster:      handler.NewRosterHandler(rosterService, cfg.Imports.MaxUploadBytes),
		Calendar:    handler.NewCalendarHandler(calendarService, cfg.Imports.MaxUploadBytes),
		Config:      handler.NewConfigHandler(configService),
		Assignments: handler.NewAssignmentHandler(plannerService, cacheService, cfg.Planner.SummaryCacheTTL),
		Reports:     reportHandler,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	go func() {
		sugar.Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			sugar.Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	sugar.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		sugar.Errorw("server shutdown failed", "error", err)
	}
	if reportQueue != nil {
		reportQueue.Stop()
	}
	if redisClient != nil {
		_ = redisClient.Close()
	}
	sugar.Info("server stopped")
}
