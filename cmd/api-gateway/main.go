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
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/exam-proctor-api/api/swagger"
	"github.com/noah-isme/exam-proctor-api/internal/handler"
	"github.com/noah-isme/exam-proctor-api/internal/middleware"
	"github.com/noah-isme/exam-proctor-api/internal/repository"
	"github.com/noah-isme/exam-proctor-api/internal/service"
	"github.com/noah-isme/exam-proctor-api/pkg/cache"
	"github.com/noah-isme/exam-proctor-api/pkg/config"
	"github.com/noah-isme/exam-proctor-api/pkg/database"
	"github.com/noah-isme/exam-proctor-api/pkg/jobs"
	"github.com/noah-isme/exam-proctor-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/exam-proctor-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/exam-proctor-api/pkg/middleware/requestid"
	"github.com/noah-isme/exam-proctor-api/pkg/storage"
)

// @title Exam Proctor API
// @version 1.0.0
// @description Builds invigilation timetables for exam sessions and reports on their fairness.
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logr); err != nil {
		logr.Fatal("server stopped", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logr *zap.Logger) error {
	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer redisClient.Close()

	validate := validator.New()

	sessionRepo := repository.NewSessionRepository(db)
	rosterRepo := repository.NewRosterRepository(db)
	jobRepo := repository.NewSolveJobRepository(db)
	assignmentRepo := repository.NewAssignmentRepository(db)
	operatorRepo := repository.NewOperatorRepository(db)
	refreshRepo := repository.NewRefreshSessionRepository(redisClient)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	metricsSvc := service.NewMetricsService()
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Cache.TTL, logr, cfg.Cache.Enabled)

	authSvc := service.NewAuthService(operatorRepo, refreshRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
	})
	sessionSvc := service.NewSessionService(sessionRepo, validate, logr)
	rosterSvc := service.NewRosterImportService(sessionRepo, rosterRepo, cacheSvc, service.RosterOptions{
		QuotaPerGrade:      service.GradeQuotas(cfg.Planner),
		SupervisorsPerRoom: cfg.Planner.SupervisorsPerRoom,
	}, logr)
	planningSvc := service.NewPlanningService(service.PlanningDeps{
		Sessions:    sessionRepo,
		Rosters:     rosterSvc,
		Jobs:        jobRepo,
		Assignments: assignmentRepo,
		Cache:       cacheSvc,
		Metrics:     metricsSvc,
		Validator:   validate,
		Logger:      logr,
	}, cfg.Planner)
	satisfactionSvc := service.NewSatisfactionService(rosterSvc, assignmentRepo, cacheSvc, logr)
	quotaSvc := service.NewQuotaService(rosterSvc, cacheSvc, cfg.Planner, logr)

	files, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
	if err != nil {
		return fmt.Errorf("prepare export storage: %w", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL)
	exportSvc := service.NewExportService(planningSvc, satisfactionSvc, files, signer, service.ExportConfig{
		APIPrefix:       cfg.APIPrefix,
		ResultTTL:       cfg.Exports.SignedURLTTL,
		CleanupInterval: cfg.Exports.CleanupInterval,
		Timezone:        cfg.Exports.Timezone,
	}, logr)

	worker := service.NewSolveWorker(jobRepo, planningSvc, cfg.SolveWorker.Retries, logr)
	queue := jobs.NewQueue(service.SolveJobType, worker.Handle, jobs.QueueConfig{
		Workers:    cfg.SolveWorker.Concurrency,
		BufferSize: cfg.SolveWorker.BufferSize,
		MaxRetries: cfg.SolveWorker.Retries,
		RetryDelay: cfg.SolveWorker.RetryDelay,
		Logger:     logr,
	})
	planningSvc.SetQueue(queue)
	queue.Start(ctx)
	defer queue.Stop()
	planningSvc.RecoverPendingJobs(ctx)
	exportSvc.StartCleanup(ctx)

	metricsHandler := handler.NewMetricsHandler(metricsSvc, map[string]handler.ReadinessCheck{
		"postgres": db.PingContext,
		"redis": func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		},
	})

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr, "/health", "/ready", "/metrics"))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc, "/metrics"))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	registerRoutes(r.Group(cfg.APIPrefix), routeHandlers{
		auth:     handler.NewAuthHandler(authSvc),
		sessions: handler.NewSessionHandler(sessionSvc, rosterSvc),
		planning: handler.NewPlanningHandler(planningSvc),
		analysis: handler.NewAnalysisHandler(quotaSvc, satisfactionSvc),
		exports:  handler.NewExportHandler(exportSvc),
	}, authSvc)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

type routeHandlers struct {
	auth     *handler.AuthHandler
	sessions *handler.SessionHandler
	planning *handler.PlanningHandler
	analysis *handler.AnalysisHandler
	exports  *handler.ExportHandler
}

func registerRoutes(api *gin.RouterGroup, h routeHandlers, tokens middleware.TokenValidator) {
	api.POST("/auth/login", h.auth.Login)
	api.POST("/auth/refresh", h.auth.Refresh)
	api.POST("/auth/logout", h.auth.Logout)
	// Export links carry their own signature.
	api.GET("/exports/:token", h.exports.Download)

	secured := api.Group("", middleware.JWT(tokens))
	secured.GET("/auth/me", h.auth.Me)

	read := secured.Group("", middleware.RequireRoles(middleware.ReadRoles...))
	read.GET("/sessions", h.sessions.List)
	read.GET("/sessions/:id", h.sessions.Get)
	read.GET("/sessions/:id/feasibility", h.analysis.Feasibility)
	read.GET("/sessions/:id/quota-recommendation", h.analysis.QuotaRecommendation)
	read.GET("/sessions/:id/assignments", h.planning.Assignments)
	read.GET("/sessions/:id/satisfaction", h.analysis.Satisfaction)
	read.GET("/solve-jobs/:id", h.planning.JobStatus)

	write := secured.Group("", middleware.RequireRoles(middleware.WriteRoles...))
	write.POST("/sessions", h.sessions.Create)
	write.POST("/sessions/:id/roster", h.sessions.ImportRoster)
	write.POST("/sessions/:id/solve", h.planning.Solve)
	write.PATCH("/sessions/:id/assignments", h.planning.EditAssignments)
	write.POST("/sessions/:id/exports", h.exports.Create)
}
