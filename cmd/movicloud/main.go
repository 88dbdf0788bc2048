// Package main is the entry point for the MoviCloud catalog gateway.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"movicloud/config"
	"movicloud/internal/app"
	"movicloud/internal/logging"
	"movicloud/internal/version"
)

func main() {
	versionFlag := flag.Bool("version", false, "Print version information")
	flag.Parse()

	if *versionFlag {
		fmt.Println(version.Info())
		os.Exit(0)
	}

	// Bootstrap logger until the configured level and format are known
	slog.SetDefault(logging.New(logging.Options{
		Level:  os.Getenv("LOG_LEVEL"),
		Format: os.Getenv("LOG_FORMAT"),
	}))

	result, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	slog.SetDefault(logging.New(logging.Options{
		Level:  result.Config.Log.Level,
		Format: result.Config.Log.Format,
	}))

	slog.Info("starting movicloud",
		"version", version.Version,
		"commit", version.Commit,
		"build_date", version.Date,
	)

	application, err := app.New(context.Background(), app.Config{AppConfig: result})
	if err != nil {
		slog.Error("failed to initialize application", "error", err)
		os.Exit(1)
	}

	// Handle graceful shutdown
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := application.Shutdown(ctx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	if err := application.Start(":" + result.Config.Server.Port); err != nil {
		slog.Error("server failed", "error", err)
		_ = application.Shutdown(context.Background())
		os.Exit(1)
	}
}
