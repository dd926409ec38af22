package main

import (
	"context"

	"github.com/DE-IBH/b3lb/internal/aggregation"
	"github.com/DE-IBH/b3lb/internal/balancer"
	"github.com/DE-IBH/b3lb/internal/config"
	"github.com/DE-IBH/b3lb/internal/database"
	"github.com/DE-IBH/b3lb/internal/handlers"
	"github.com/DE-IBH/b3lb/internal/jobs"
	"github.com/DE-IBH/b3lb/internal/logging"
	"github.com/DE-IBH/b3lb/internal/monitoring"
	"github.com/DE-IBH/b3lb/internal/poller"
	"github.com/DE-IBH/b3lb/internal/recording"
	"github.com/DE-IBH/b3lb/internal/redis"
	"github.com/DE-IBH/b3lb/internal/server"
	"github.com/DE-IBH/b3lb/internal/state"
	"github.com/DE-IBH/b3lb/internal/storage"
	"github.com/DE-IBH/b3lb/internal/store"
	"github.com/DE-IBH/b3lb/internal/version"
)

func main() {
	logger := logging.NewLoggerWithService("b3lb")

	config.LoadEnv(logger)
	cfg := config.Load()

	logger.WithField("service", "b3lb").Info("Starting B3LB load balancer")

	dbConfig := database.DefaultConfig()
	dbConfig.URL = config.GetEnv("DATABASE_URL", "")
	db := database.MustConnect(dbConfig, logger)
	defer db.Close()

	if err := database.ApplySchema(context.Background(), db, logger); err != nil {
		logger.WithError(err).Fatal("Failed to apply database schema")
	}

	redisClient, err := redis.NewClientFromURL(context.Background(),
		config.GetEnv("REDIS_URL", "redis://localhost:6379/0"))
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Redis")
	}
	defer redisClient.Close()

	st := store.New(db, logger)
	meetingListCache := state.NewMeetingListCache(redisClient, cfg.CacheNMLPattern, cfg.CacheNMLTimeout, logger)

	blobs, err := buildStorage(cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize recording storage")
	}

	bal := balancer.New(st, logger)

	nodePoller := poller.New(st, meetingListCache, poller.Config{
		NodeProtocol:     cfg.NodeProtocol,
		NodeBBBEndpoint:  cfg.NodeBBBEndpoint,
		NodeLoadEndpoint: cfg.NodeLoadEndpoint,
		RequestTimeout:   cfg.NodeRequestTimeout,
	}, logger)

	aggregator := aggregation.New(st, meetingListCache, logger)

	renderer := &recording.ExecRenderer{
		Command: config.GetEnv("RENDER_COMMAND", "b3lb-render"),
	}
	pipeline := recording.NewPipeline(st, blobs, renderer,
		config.GetEnv("RENDER_SCRATCH_DIR", ""), logger)

	healthChecker := monitoring.NewHealthChecker("b3lb", version.Version)
	metricsCollector := monitoring.NewMetricsCollector("b3lb", version.Version, version.GitCommit)
	healthChecker.AddCheck("database", monitoring.DatabaseHealthCheck(db))
	healthChecker.AddCheck("redis", monitoring.RedisHealthCheck(redisClient))
	healthChecker.AddCheck("config", monitoring.ConfigurationHealthCheck(map[string]string{
		"DATABASE_URL":    config.GetEnv("DATABASE_URL", ""),
		"API_BASE_DOMAIN": cfg.APIBaseDomain,
	}))

	runner := jobs.Start(cfg, st, nodePoller, aggregator, pipeline, logger)
	defer runner.Stop()

	router := server.SetupServiceRouter(logger, "b3lb", healthChecker, metricsCollector)
	api := handlers.New(cfg, st, bal, blobs, logger)
	api.RegisterRoutes(router)

	serverConfig := server.DefaultConfig("b3lb", "8008")
	if err := server.Start(serverConfig, router, logger); err != nil {
		logger.WithError(err).Fatal("Server startup failed")
	}
}

// buildStorage selects the recording blob backend.
func buildStorage(cfg config.Config, logger logging.Logger) (storage.Storage, error) {
	if cfg.RecordStorage == storage.BackendS3 {
		return storage.NewS3Storage(storage.S3Config{
			Bucket:    cfg.S3BucketName,
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3EndpointURL,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
		}, logger)
	}
	return storage.NewLocalStorage(cfg.RecordRoot, logger)
}
