package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker/v2"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/GaretJax/bmcc/internal/client/spot"
	"github.com/GaretJax/bmcc/internal/client/tawhiri"
	"github.com/GaretJax/bmcc/internal/config"
	cronrunner "github.com/GaretJax/bmcc/internal/cron"
	"github.com/GaretJax/bmcc/internal/db"
	"github.com/GaretJax/bmcc/internal/handler"
	"github.com/GaretJax/bmcc/internal/logger"
	"github.com/GaretJax/bmcc/internal/metrics"
	"github.com/GaretJax/bmcc/internal/prediction"
	"github.com/GaretJax/bmcc/internal/queue"
	"github.com/GaretJax/bmcc/internal/repository"
	gormrepository "github.com/GaretJax/bmcc/internal/repository/gorm"
	"github.com/GaretJax/bmcc/internal/repository/memory"
	"github.com/GaretJax/bmcc/internal/service"
	"github.com/GaretJax/bmcc/internal/tracking"

	_ "github.com/GaretJax/bmcc/docs"
)

// jobQueue is a queue the process owns: it accepts jobs and runs workers.
type jobQueue interface {
	queue.Queue
	Start(ctx context.Context) error
	Stop()
}

func main() {
	cfgPath := os.Getenv("BMCC_CONFIG")
	if cfgPath == "" {
		cfgPath = "config/config.yaml"
	}

	envOnly := false
	if envOnlyRaw := os.Getenv("BMCC_ENV_ONLY"); envOnlyRaw != "" {
		envOnly = strings.EqualFold(envOnlyRaw, "true") || envOnlyRaw == "1"
	}

	cfg, err := config.Load(cfgPath, envOnly)
	if err != nil {
		panic(err)
	}

	logger, err := logger.New(cfg.Log, cfg.App.Env)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	health := &handler.HealthHandler{}
	var store repository.Repository
	if strings.EqualFold(cfg.DB.Driver, "memory") {
		logger.Warn("using in-memory store, data is lost on exit")
		store = memory.New()
	} else {
		dbConn, err := db.Open(cfg.DB)
		if err != nil {
			logger.Fatal("db open failed", zap.Error(err))
		}
		defer db.Close(dbConn)

		if err := db.SetTimezone(dbConn, cfg.DB.Timezone); err != nil {
			logger.Warn("failed to set timezone", zap.Error(err))
		}
		if err := db.AutoMigrate(dbConn); err != nil {
			logger.Fatal("auto-migrate failed", zap.Error(err))
		}
		store = gormrepository.New(dbConn.Gorm)
		health.DB = dbConn
	}

	settingsSvc := &service.SystemSettingsService{Repo: store}
	if err := settingsSvc.EnsureDefaultSwitches(context.Background()); err != nil {
		logger.Warn("init default system switches failed", zap.Error(err))
	}

	spotHTTP := &http.Client{Timeout: cfg.Spot.Timeout}
	tawhiriClient := tawhiri.NewClient(nil, cfg.Tawhiri.BaseURL, tawhiri.Options{
		Timeout:          cfg.Tawhiri.Timeout,
		BreakerThreshold: cfg.Tawhiri.BreakerThreshold,
		BreakerTimeout:   cfg.Tawhiri.BreakerTimeout,
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.PredictionBreakerState.Set(float64(to))
			logger.Warn("prediction breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	deps := tracking.Deps{Repo: store, Logger: logger}
	ingestSvc := &service.IngestService{Repo: store, Deps: deps, Logger: logger}
	if strings.TrimSpace(cfg.Spot.FeedID) != "" {
		ingestSvc.Spot = spot.NewClient(spotHTTP, cfg.Spot.BaseURL, cfg.Spot.FeedID)
	} else {
		logger.Info("spot feed not configured, polling disabled")
	}

	runner := &prediction.Runner{
		Client: tawhiriClient,
		Repo:   store,
		Logger: logger,
		Observe: func(outcome string, elapsed time.Duration) {
			metrics.PredictionRequests.WithLabelValues(outcome).Inc()
			metrics.PredictionDuration.Observe(elapsed.Seconds())
		},
	}

	dispatcher := queue.NewDispatcher(logger, cfg.Queue.JobTimeout)
	policy := queue.RetryPolicy{
		MaxRetries: cfg.Queue.MaxRetries,
		Initial:    cfg.Queue.BackoffInitial,
		Max:        cfg.Queue.BackoffMax,
		Multiplier: cfg.Queue.BackoffMultiplier,
	}
	var jobs jobQueue
	if strings.TrimSpace(cfg.Redis.Addr) != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		redisQueue := queue.NewRedisQueue(rdb, dispatcher, queue.RedisConfig{
			Stream:            cfg.Queue.Stream,
			Group:             cfg.Queue.Group,
			Consumer:          cfg.Queue.Consumer,
			Workers:           cfg.Queue.Workers,
			BatchSize:         cfg.Queue.BatchSize,
			BlockTimeout:      cfg.Queue.BlockTimeout,
			RetryPollInterval: cfg.Queue.RetryPollInterval,
			ClaimMinIdle:      cfg.Queue.ClaimMinIdle,
			MaxLen:            cfg.Queue.MaxLen,
			Retry:             policy,
		}, logger)
		health.Redis = redisQueue
		jobs = redisQueue
	} else {
		logger.Warn("redis not configured, jobs run in process and are lost on exit")
		jobs = queue.NewLocalQueue(dispatcher, policy, cfg.Queue.Workers, logger)
	}

	predictionSvc := &service.PredictionService{
		Repo:   store,
		Runner: runner,
		Queue:  jobs,
		Logger: logger,
		Defaults: service.PredictionDefaults{
			Profile:  cfg.Prediction.Profile,
			PredType: cfg.Prediction.PredType,
		},
		SweepTimeout: cfg.Queue.SweepTimeout,
	}
	missionSvc := &service.MissionService{Repo: store, Deps: deps, Logger: logger}
	service.RegisterJobs(dispatcher, ingestSvc, predictionSvc)

	if strings.EqualFold(cfg.App.Env, "dev") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(corsMiddleware())

	health.Register(engine)

	trackingHandler := &handler.TrackingHandler{Ingest: ingestSvc, Logger: logger}
	trackingHandler.Register(engine)

	missionHandler := &handler.MissionHandler{Missions: missionSvc, Predictions: predictionSvc}
	missionHandler.Register(engine)

	beaconHandler := &handler.BeaconHandler{Missions: missionSvc}
	beaconHandler.Register(engine)

	predictionHandler := &handler.PredictionHandler{Repo: store, Queue: jobs}
	predictionHandler.Register(engine)

	settingsHandler := &handler.SettingsHandler{Settings: settingsSvc}
	settingsHandler.Register(engine)

	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	srv := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: engine,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := jobs.Start(ctx); err != nil {
		logger.Fatal("queue start failed", zap.Error(err))
	}
	defer jobs.Stop()

	cronRunner := cronrunner.New(logger, ctx)
	if cfg.Cron.Enabled {
		trigger := service.Trigger{Queue: jobs, Flags: settingsSvc, Logger: logger}
		if ingestSvc.Spot != nil {
			if _, err := cronRunner.Add(service.JobSpotPoll, cfg.Cron.SpotPoll, trigger.Enqueue(service.JobSpotPoll, service.FeatureSpotPoll)); err != nil {
				logger.Warn("cron register spot poll failed", zap.Error(err))
			}
		}
		if _, err := cronRunner.Add(service.JobPredictionSweep, cfg.Cron.PredictionSweep, trigger.Enqueue(service.JobPredictionSweep, service.FeaturePredictionSweep)); err != nil {
			logger.Warn("cron register prediction sweep failed", zap.Error(err))
		}
	}
	cronRunner.Start()
	defer cronRunner.Stop()

	errCh := make(chan error, 1)

	go func() {
		logger.Info("http server starting", zap.String("addr", cfg.Server.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization,X-Limit-U,X-Limit-D")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}
