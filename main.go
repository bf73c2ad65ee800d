package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/kestrelworks/aviary/internal/app"
	"github.com/kestrelworks/aviary/internal/env"
	"github.com/kestrelworks/aviary/internal/logger"
	"github.com/kestrelworks/aviary/internal/version"
)

func main() {
	startTime := time.Now()
	vlog := log.New(log.Writer(), "", 0)
	if len(os.Args) > 1 && os.Args[1] == "--version" {
		version.PrintVersionInfo(true, vlog)
		os.Exit(0)
	} else {
		version.PrintVersionInfo(false, vlog)
	}

	lcfg := buildLoggerConfig()
	logInstance, styledLogger, cleanup, err := logger.NewWithTheme(lcfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	slog.SetDefault(logInstance)

	styledLogger.Info("Initialising", "version", version.Version, "pid", os.Getpid())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		styledLogger.Info("Shutdown signal received", "signal", sig.String())
		cancel()
	}()

	application, err := app.New(styledLogger)
	if err != nil {
		logger.FatalWithLogger(logInstance, "Failed to create application", "error", err)
	}

	if err := application.Start(ctx); err != nil {
		logger.FatalWithLogger(logInstance, "Failed to start application", "error", err)
	}

	<-ctx.Done()

	if err := application.Stop(context.Background()); err != nil {
		styledLogger.Error("Error during shutdown", "error", err)
	}

	reportProcessStats(styledLogger, startTime)

	styledLogger.Info("Aviary has shutdown")
}

func reportProcessStats(logger *logger.StyledLogger, startTime time.Time) {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)

	logger.Info("Runtime Stats",
		"uptime", time.Since(startTime).Round(time.Second).String(),
		"heap_alloc_mb", stats.HeapAlloc/1024/1024,
		"num_gc_cycles", stats.NumGC,
		"num_goroutines", runtime.NumGoroutine(),
		"go_version", runtime.Version(),
	)
}

// buildLoggerConfig creates logger config from environment variables with defaults
func buildLoggerConfig() *logger.Config {
	return &logger.Config{
		Level:      env.GetEnvOrDefault("AVIARY_LOG_LEVEL", "info"),
		FileOutput: env.GetEnvBoolOrDefault("AVIARY_FILE_OUTPUT", true),
		LogDir:     env.GetEnvOrDefault("AVIARY_LOG_DIR", "./logs"),
		MaxSize:    env.GetEnvIntOrDefault("AVIARY_MAX_SIZE", 100),
		MaxBackups: env.GetEnvIntOrDefault("AVIARY_MAX_BACKUPS", 5),
		MaxAge:     env.GetEnvIntOrDefault("AVIARY_MAX_AGE", 30),
		Theme:      env.GetEnvOrDefault("AVIARY_THEME", "default"),
	}
}
