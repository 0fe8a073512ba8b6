package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/clearcomply/remediation-engine/internal/analytics"
	"github.com/clearcomply/remediation-engine/internal/config"
	"github.com/clearcomply/remediation-engine/internal/eventbus"
	"github.com/clearcomply/remediation-engine/internal/handlers"
	"github.com/clearcomply/remediation-engine/internal/metrics"
	"github.com/clearcomply/remediation-engine/internal/notification"
	"github.com/clearcomply/remediation-engine/internal/registry"
	"github.com/clearcomply/remediation-engine/internal/scheduler"
	"github.com/clearcomply/remediation-engine/internal/workflow"
)

func main() {
	configPath := flag.String("config", "", "path to configuration file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "remediation-engine: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return errors.Wrap(err, "failed to load configuration")
	}

	logger, err := cfg.InitLogger()
	if err != nil {
		return errors.Wrap(err, "failed to initialize logger")
	}
	defer logger.Sync() //nolint:errcheck

	logger.Info("Starting remediation engine",
		zap.String("host", cfg.Server.Host),
		zap.Int("port", cfg.Server.Port),
	)

	collector := metrics.NewCollector(prometheus.DefaultRegisterer)

	// Event publishing: always the in-process bus; optionally fanned out to
	// Redis pub/sub for cross-process consumers.
	bus := eventbus.NewBus(logger)
	var publisher eventbus.Publisher = bus
	if cfg.Redis.Enabled {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.GetRedisAddr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.Database,
		})
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			return errors.Wrap(err, "failed to connect to redis")
		}
		defer redisClient.Close()

		publisher = eventbus.Fanout{
			bus,
			eventbus.NewRedisPublisher(redisClient, cfg.Redis.ChannelPrefix, logger),
		}
		logger.Info("Redis event fan-out enabled", zap.String("addr", cfg.GetRedisAddr()))
	}

	chains := registry.NewApprovalChainRegistry(logger)
	escalationRules := registry.NewEscalationRuleRegistry(logger)
	triggers := registry.NewNotificationTriggerRegistry(logger)

	dispatcher := notification.NewDispatcher(triggers, publisher, collector, logger)

	engine, err := workflow.NewEngine(chains, escalationRules, dispatcher, publisher, collector, logger)
	if err != nil {
		return errors.Wrap(err, "failed to construct workflow engine")
	}

	analyticsEngine := analytics.NewEngine(analytics.Options{
		Weights: analytics.Weights{
			Critical: cfg.Analytics.Weights.Critical,
			High:     cfg.Analytics.Weights.High,
			Medium:   cfg.Analytics.Weights.Medium,
			Low:      cfg.Analytics.Weights.Low,
		},
		TrendThreshold: cfg.Analytics.TrendThreshold,
		AnomalyStdDevs: cfg.Analytics.AnomalyStdDevs,
	}, logger)

	sched := scheduler.NewScheduler(cfg, engine, collector, logger)
	if err := sched.Start(); err != nil {
		return errors.Wrap(err, "failed to start scheduler")
	}

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	handler := handlers.NewHandler(cfg, engine, analyticsEngine, sched, logger)
	handler.RegisterRoutes(router)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", zap.String("addr", httpServer.Addr))
		serverErrors <- httpServer.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		sched.Stop()
		return errors.Wrap(err, "http server failed")
	case sig := <-shutdown:
		logger.Info("Shutdown signal received", zap.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("Graceful HTTP shutdown failed", zap.Error(err))
		httpServer.Close() //nolint:errcheck
	}

	// Stop the scheduler last: it blocks until an in-flight escalation sweep
	// finishes so no workflow is left between a step update and its audit
	// record.
	sched.Stop()

	logger.Info("Remediation engine stopped")
	return nil
}
