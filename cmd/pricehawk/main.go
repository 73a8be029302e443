// Command pricehawk runs the PriceHawk backend: the AI Validator Worker,
// the Tiered Notification Dispatcher, and the operator admin surface, all
// wired off shared Redis Streams/KV, lmstfy, and Postgres connections.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	_ = godotenv.Load(".env")

	root := &cobra.Command{
		Use:   "pricehawk",
		Short: "PriceHawk pricing-glitch detection and notification service",
	}

	root.AddCommand(newServeCmd())
	root.AddCommand(newRouterCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newLogger(debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}
