package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/clduab11/pricehawk/internal/config"
	"github.com/clduab11/pricehawk/internal/router"
	"github.com/clduab11/pricehawk/internal/streaming/rediskv"
)

func newRouterCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "router",
		Short: "Inspect the weighted model router",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Print the current per-model stats snapshot from Redis",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRouterStats(cmd.Context())
		},
	})
	return cmd
}

func runRouterStats(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := newLogger(cfg.Debug)

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}

	kv := rediskv.New(rdb)
	rt := router.New(router.DefaultModelTable(), kv, cfg.EnableSOTAModels, cfg.CircuitBreakerThresh, cfg.CircuitBreakerWindow, logger)

	out, err := json.MarshalIndent(rt.AllStats(rt.ModelIDs()), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal stats: %w", err)
	}
	fmt.Println(string(out))
	return nil
}
