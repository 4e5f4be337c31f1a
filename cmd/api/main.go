package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"faceattend/internal/attendance"
	"faceattend/internal/auth"
	"faceattend/internal/checkin"
	"faceattend/internal/cloudinary"
	"faceattend/internal/config"
	"faceattend/internal/enrollment"
	"faceattend/internal/handler"
	"faceattend/internal/httpmiddleware"
	"faceattend/internal/identity"
	"faceattend/internal/logger"
	"faceattend/internal/metrics"
	"faceattend/internal/queue"
	"faceattend/internal/realtime"
	"faceattend/internal/recognition"
	"faceattend/internal/store"
)

const backendRedis = "redis"

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

	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg, logr); err != nil {
		logr.Fatal("http server failed", zap.Error(err))
	}
}

func runHTTP(cfg config.App, logr *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := store.NewDB(ctx, cfg.DatabaseURL, store.PoolConfig{
		MaxOpenConns: cfg.DBMaxOpenConns,
		MaxIdleConns: cfg.DBMaxIdleConns,
	})
	if err != nil {
		return err
	}
	defer db.Close()
	if err := db.Migrate(ctx); err != nil {
		return err
	}

	var rdb *store.Redis
	if cfg.QueueBackend == backendRedis || cfg.NotifierBackend == backendRedis {
		rdb = store.NewRedis(cfg.RedisAddr)
		defer rdb.Close()
		if !rdb.Healthy(ctx) {
			logr.Warn("redis not reachable at startup", zap.String("addr", cfg.RedisAddr))
		}
	}

	rec := metrics.New()
	validate := validator.New()

	// Recognition gateway over the configured interpreter / face service.
	gateway := recognition.NewGateway(
		recognition.Candidates(cfg.Gateway),
		recognition.NewSampleStore(cfg.Gateway.FaceDataDir),
		recognition.Options{Timeout: cfg.Gateway.Timeout, Logger: logr.Named("gateway"), Metrics: rec},
	)

	// Retraining runs off the request path.
	var jobs queue.Queue
	if cfg.QueueBackend == backendRedis {
		jobs = queue.NewRedisQueue(rdb.Client, enrollment.RetrainQueueKey, logr.Named("queue"))
	} else {
		mem := queue.NewInMemory(1)
		jobs = mem
		worker := enrollment.NewWorker(gateway, logr.Named("retrain"), 2*time.Second)
		go func() {
			if err := worker.Run(ctx, mem); err != nil {
				logr.Error("retrain worker exited", zap.Error(err))
			}
		}()
	}

	var broker realtime.Broker
	if cfg.NotifierBackend == backendRedis {
		broker = realtime.NewRedisBroker(rdb.Client, "faceattend:", logr.Named("realtime"))
	} else {
		broker = realtime.NewHub()
	}

	var mirror enrollment.Mirror
	if cdn := cloudinary.New(cfg.Mirror); cdn != nil {
		mirror = enrollment.CloudinaryMirror{Client: cdn}
		logr.Info("sample mirror enabled", zap.String("cloud", cfg.Mirror.CloudName))
	}

	users := identity.NewRepository(db.Client)
	tasks := attendance.NewRepository(db.Client)
	issuer := auth.NewIssuer(cfg.JWTSigningKey, cfg.JWTIssuer, cfg.AccessTTL)

	accounts := identity.NewService(users, issuer, validate, logr.Named("identity"))
	coordinator := enrollment.NewCoordinator(users, gateway, gateway, enrollment.NewQueueRetrainer(jobs), mirror, logr.Named("enrollment"), rec)
	engine := attendance.NewEngine(tasks, users, broker, attendance.Options{MinDuration: cfg.Tasks.MinDuration}, logr.Named("tasks"), rec)
	reconciler := checkin.NewReconciler(gateway, users, engine, tasks, nil, logr.Named("checkin"), rec)

	var redisPinger handler.Pinger
	if rdb != nil {
		redisPinger = rdb
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpmiddleware.RequestIDMiddleware())
	r.Use(logger.GinMiddleware(logr, "/healthz", "/metrics"))
	r.Use(rec.GinMiddleware())
	r.Use(cors.New(cors.Config{
		AllowOriginFunc:  func(string) bool { return true },
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID"},
		ExposeHeaders:    []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           24 * time.Hour,
	}))
	r.Use(securityHeaders())
	r.Use(httpmiddleware.NewSimpleTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin).GinMiddleware(httpmiddleware.ClientIP))

	handler.Routes{
		Accounts: handler.NewAccountHandler(accounts),
		Faces:    handler.NewFaceHandler(coordinator, reconciler, cfg.MaxImageBytes),
		Tasks:    handler.NewTaskHandler(engine, validate),
		Stream:   handler.NewStreamHandler(broker, 0, logr.Named("stream")),
		Health:   handler.NewHealthHandler(db, redisPinger),
		Auth:     auth.Required(issuer),
		Metrics:  rec.Handler(),
	}.Register(r)

	// WriteTimeout stays zero so SSE streams and slow recognitions are not cut.
	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logr.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Warn("server forced shutdown", zap.Error(err))
	}
	logr.Info("server exited")
	return nil
}

func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		c.Next()
	}
}
