package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/clduab11/pricehawk/internal/api"
	"github.com/clduab11/pricehawk/internal/config"
	"github.com/clduab11/pricehawk/internal/consumer"
	"github.com/clduab11/pricehawk/internal/db"
	"github.com/clduab11/pricehawk/internal/dispatch"
	"github.com/clduab11/pricehawk/internal/dispatch/providers"
	"github.com/clduab11/pricehawk/internal/housekeeping"
	"github.com/clduab11/pricehawk/internal/obs"
	"github.com/clduab11/pricehawk/internal/queue/lmstfyqueue"
	"github.com/clduab11/pricehawk/internal/router"
	"github.com/clduab11/pricehawk/internal/shutdown"
	"github.com/clduab11/pricehawk/internal/store"
	"github.com/clduab11/pricehawk/internal/streaming/rediskv"
	"github.com/clduab11/pricehawk/internal/streaming/redisbus"
	"github.com/clduab11/pricehawk/internal/validator"
	"github.com/clduab11/pricehawk/internal/validator/modelclient"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the validator, dispatcher, housekeeping, and admin HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := newLogger(cfg.Debug)

	pool, err := db.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}

	bus := redisbus.New(rdb)
	kv := rediskv.New(rdb)

	queue, err := lmstfyqueue.New(cfg.LmstfyHost, cfg.LmstfyPort, cfg.LmstfyNamespace, cfg.LmstfyToken, logger)
	if err != nil {
		return fmt.Errorf("connect lmstfy: %w", err)
	}

	registry := prometheus.NewRegistry()
	metrics := obs.New(registry, kv)
	dlqInspector := obs.NewDLQInspector(bus)

	modelRouter := router.New(router.DefaultModelTable(), kv, cfg.EnableSOTAModels, cfg.CircuitBreakerThresh, cfg.CircuitBreakerWindow, logger)
	modelClient := modelclient.New(cfg.ModelEndpointURL, cfg.ModelEndpointAPIKey)

	glitchStore := store.NewGlitchStore(pool)
	subscriberStore := store.NewSubscriberStore(pool)

	validatorWorker := validator.New(modelRouter, modelClient, bus, glitchStore, logger)

	providerRegistry := providers.BuildRegistry(cfg)
	dispatcher := dispatch.New(dispatch.Config{
		KV:          kv,
		Bus:         bus,
		Queue:       queue,
		Policy:      dispatch.DefaultTierPolicy(),
		Providers:   providerRegistry,
		Subscribers: subscriberStore,
		Marker:      glitchStore,
		Broadcaster: dispatch.NewChatBroadcaster(cfg),
		Metrics:     metrics,
		DedupTTL:    cfg.NotifyDedupTTL,
		Logger:      logger,
	})

	coord := shutdown.New(logger, cfg.GracefulShutdownTime)
	go coord.Listen(ctx)

	streamCfg := consumer.Config{
		BatchSize:    cfg.StreamBatchSize,
		PollInterval: cfg.StreamPollInterval,
		MaxRetries:   cfg.StreamMaxRetries,
	}

	coord.Track(func() {
		runner := consumer.New(bus, kv, logger)
		if err := runner.Run(ctx, config.StreamAnomalyDetected, config.ConsumerGroupValidator, validatorWorker.Handle, streamCfg, coord.Done()); err != nil {
			logger.Error("validator consumer stopped", "error", err)
		}
	})

	coord.Track(func() {
		runner := consumer.New(bus, kv, logger)
		if err := runner.Run(ctx, config.StreamAnomalyConfirmed, config.ConsumerGroupDispatcher, dispatcher.Handle, streamCfg, coord.Done()); err != nil {
			logger.Error("dispatcher stream consumer stopped", "error", err)
		}
	})

	coord.Track(func() {
		queue.Consume(ctx, config.DelayQueueNotify, cfg.DispatchConcurrency, dispatcher.HandleJob)
	})

	coord.Track(func() {
		housekeeping.Start(ctx, pool, modelRouter, housekeeping.DefaultConfig(), logger)
	})

	srv := &http.Server{
		Addr: fmt.Sprintf("%s:%d", cfg.APIHost, cfg.APIPort),
		Handler: api.NewRouter(api.Deps{
			Pool:     pool,
			DLQ:      dlqInspector,
			Router:   modelRouter,
			KV:       kv,
			Registry: registry,
			Cfg:      cfg,
		}),
	}

	coord.RegisterCleanup(func(shutdownCtx context.Context) error {
		return srv.Shutdown(shutdownCtx)
	})

	coord.Track(func() {
		logger.Info("admin server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("admin server failed", "error", err)
		}
	})

	logger.Info("pricehawk serve started")
	return coord.Run(ctx)
}
