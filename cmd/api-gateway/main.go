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
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	_ "github.com/noah-isme/attendease-api/api/swagger"
	"github.com/noah-isme/attendease-api/internal/handler"
	"github.com/noah-isme/attendease-api/internal/realtime"
	"github.com/noah-isme/attendease-api/internal/repository"
	"github.com/noah-isme/attendease-api/internal/service"
	"github.com/noah-isme/attendease-api/pkg/cache"
	"github.com/noah-isme/attendease-api/pkg/config"
	"github.com/noah-isme/attendease-api/pkg/database"
	"github.com/noah-isme/attendease-api/pkg/export"
	"github.com/noah-isme/attendease-api/pkg/graph"
	"github.com/noah-isme/attendease-api/pkg/health"
	"github.com/noah-isme/attendease-api/pkg/identity"
	"github.com/noah-isme/attendease-api/pkg/jobs"
	"github.com/noah-isme/attendease-api/pkg/logger"
	"github.com/noah-isme/attendease-api/pkg/middleware/ratelimit"
	"github.com/noah-isme/attendease-api/pkg/recognition"
	"github.com/noah-isme/attendease-api/pkg/storage"
)

// @title AttendEase API
// @version 1.0.0
// @description Classroom attendance backend: sessions, onsite recognition, online meeting rosters and exports.
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

const (
	shutdownTimeout     = 15 * time.Second
	limiterSweepPeriod  = 5 * time.Minute
	onlineSyncQueueName = "online-sync"
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("connect database", zap.Error(err))
	}
	defer db.Close() //nolint:errcheck

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(db); err != nil {
			logr.Fatal("run migrations", zap.Error(err))
		}
		logr.Info("database migrations applied")
	}

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, caching disabled", zap.Error(err))
	}

	app, err := buildApp(ctx, cfg, db, redisClient, logr)
	if err != nil {
		logr.Fatal("wire application", zap.Error(err))
	}
	defer app.close()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           newRouter(cfg, app, logr),
		ReadHeaderTimeout: 10 * time.Second,
	}

	var grpcHealth *health.Server
	if cfg.GRPC.HealthPort > 0 {
		grpcHealth = health.NewServer(logr)
		if _, err := grpcHealth.ListenAndServe(cfg.GRPC.HealthPort); err != nil {
			logr.Error("grpc health disabled", zap.Error(err))
			grpcHealth = nil
		} else {
			grpcHealth.SetServing(true)
		}
	}

	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")
	if grpcHealth != nil {
		grpcHealth.SetServing(false)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown", zap.Error(err))
	}
	if grpcHealth != nil {
		grpcHealth.Stop()
	}
}

// application holds the wired services, handlers and background workers.
type application struct {
	auth        *service.AuthService
	metrics     *service.MetricsService
	users       *repository.UserRepository
	hub         *realtime.Hub
	frameLimit  *ratelimit.Limiter
	syncQueue   *jobs.Queue
	verifier    *identity.EntraVerifier
	cacheRepo   *repository.CacheRepository
	checks      map[string]handler.Pinger
	authH       *handler.AuthHandler
	courseH     *handler.CourseHandler
	sessionH    *handler.SessionHandler
	attendanceH *handler.AttendanceHandler
	onlineH     *handler.OnlineHandler
	recognizeH  *handler.RecognitionHandler
	exportH     *handler.ExportHandler
	studentH    *handler.StudentHandler
	checkInH    *handler.CheckInHandler
	metricsH    *handler.MetricsHandler
	realtimeH   *handler.RealtimeHandler
}

func buildApp(ctx context.Context, cfg *config.Config, db *sqlx.DB, redisClient *redis.Client, logr *zap.Logger) (*application, error) {
	validate := validator.New()
	metrics := service.NewMetricsService()

	userRepo := repository.NewUserRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	attendanceRepo := repository.NewAttendanceRepository(db)

	app := &application{
		metrics: metrics,
		users:   userRepo,
		checks: map[string]handler.Pinger{
			"database": handler.PingFunc(db.PingContext),
		},
	}

	var cacheSvc *service.CacheService
	if redisClient != nil {
		app.cacheRepo = repository.NewCacheRepository(redisClient, logr)
		app.checks["redis"] = app.cacheRepo
		cacheSvc = service.NewCacheService(app.cacheRepo, metrics, cfg.Cache.CourseTTL, logr, true)
	} else {
		cacheSvc = service.NewCacheService(nil, metrics, cfg.Cache.CourseTTL, logr, false)
	}

	app.hub = realtime.NewHub(cfg.CORS.AllowedOrigins, metrics, logr.Named("realtime"))

	authCfg := service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             cfg.JWT.Issuer,
	}
	if cfg.Identity.Enabled {
		verifier, err := identity.NewEntraVerifier(cfg.Identity, logr)
		if err != nil {
			return nil, fmt.Errorf("init identity verifier: %w", err)
		}
		app.verifier = verifier
		app.auth = service.NewAuthService(userRepo, verifier, validate, logr, authCfg)
	} else {
		app.auth = service.NewAuthService(userRepo, nil, validate, logr, authCfg)
	}

	courseSvc := service.NewCourseService(courseRepo, enrollmentRepo, userRepo, cacheSvc, validate, logr)
	courseSvc.SetCacheTTL(cfg.Cache.CourseTTL)

	attendanceSvc := service.NewAttendanceService(attendanceRepo, sessionRepo, enrollmentRepo, app.hub, cacheSvc, metrics, validate, logr)
	attendanceSvc.SetCacheTTL(cfg.Cache.SummaryTTL)

	sessionSvc := service.NewSessionService(sessionRepo, courseRepo, attendanceRepo, app.hub, cacheSvc, validate, logr)

	onlineDeps := service.OnlineServiceDeps{
		Sessions:  sessionRepo,
		Students:  enrollmentRepo,
		Recorded:  attendanceRepo,
		Recorder:  attendanceSvc,
		Events:    app.hub,
		Cache:     cacheSvc,
		Metrics:   metrics,
		Validator: validate,
		Logger:    logr.Named("online"),
		RosterTTL: cfg.Cache.RosterTTL,
	}
	if cfg.Graph.Configured() {
		onlineDeps.Provider = graph.New(cfg.Graph)
	} else {
		logr.Info("microsoft graph not configured, online attendance disabled")
	}
	onlineSvc := service.NewOnlineService(onlineDeps)

	app.syncQueue = jobs.NewQueue(onlineSyncQueueName, onlineSvc.HandleSyncJob, jobs.QueueConfig{
		Workers:    cfg.OnlineSync.Workers,
		MaxRetries: cfg.OnlineSync.Retries,
		RetryDelay: cfg.OnlineSync.RetryDelay,
		Logger:     logr.Named("jobs"),
	})
	onlineSvc.AttachQueue(app.syncQueue)
	app.syncQueue.Start(ctx)

	recognitionSvc := service.NewRecognitionService(recognition.New(cfg.Recognition), sessionRepo, courseSvc, attendanceSvc, metrics, validate, logr.Named("recognition"))
	app.frameLimit = ratelimit.New(cfg.Recognition.FrameRateLimit, cfg.Recognition.FrameBurst)
	app.frameLimit.StartCleanup(ctx, limiterSweepPeriod)

	store, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
	if err != nil {
		return nil, fmt.Errorf("init export storage: %w", err)
	}
	var signer *storage.SignedURLSigner
	if cfg.Exports.SignedURLSecret != "" {
		signer = storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL)
	} else {
		logr.Warn("EXPORTS_SIGNED_URL_SECRET not set, stored export links disabled")
	}
	exportSvc := service.NewExportService(sessionRepo, attendanceRepo, store, signer,
		service.ExportConfig{APIPrefix: cfg.APIPrefix, ResultTTL: cfg.Exports.SignedURLTTL},
		validate, logr.Named("export"), export.NewCSVExporter(true), export.NewPDFExporter())
	exportSvc.StartCleanup(ctx, cfg.Exports.CleanupInterval)

	checkInSvc := service.NewCheckInService(sessionRepo, enrollmentRepo, attendanceSvc,
		storage.NewSignedURLSigner(cfg.CheckIn.Secret, cfg.CheckIn.DefaultDuration),
		service.CheckInConfig{
			ScanURL:         cfg.CheckIn.ScanURL,
			DefaultDuration: cfg.CheckIn.DefaultDuration,
			MaxDuration:     cfg.CheckIn.MaxDuration,
			ImageSize:       cfg.CheckIn.ImageSize,
		}, validate, logr.Named("checkin"))

	studentSvc := service.NewStudentService(userRepo, courseSvc, attendanceSvc, validate, logr)

	app.authH = handler.NewAuthHandler(app.auth)
	app.courseH = handler.NewCourseHandler(courseSvc)
	app.sessionH = handler.NewSessionHandler(sessionSvc)
	app.attendanceH = handler.NewAttendanceHandler(attendanceSvc)
	app.onlineH = handler.NewOnlineHandler(onlineSvc)
	app.recognizeH = handler.NewRecognitionHandler(recognitionSvc)
	app.exportH = handler.NewExportHandler(exportSvc)
	app.studentH = handler.NewStudentHandler(studentSvc)
	app.checkInH = handler.NewCheckInHandler(checkInSvc)
	app.metricsH = handler.NewMetricsHandler(metrics, app.checks)
	app.realtimeH = handler.NewRealtimeHandler(app.hub, sessionSvc, logr.Named("realtime"))
	return app, nil
}

func (a *application) close() {
	a.syncQueue.Stop()
	a.hub.Close()
	if a.verifier != nil {
		a.verifier.Close()
	}
	if a.cacheRepo != nil {
		_ = a.cacheRepo.Close()
	}
}
