package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/nexbridge/sidecar/internal/app"
	"github.com/nexbridge/sidecar/internal/config"
	"github.com/nexbridge/sidecar/internal/logger"
	"github.com/nexbridge/sidecar/internal/version"
	"github.com/nexbridge/sidecar/pkg/format"
)

func main() {
	startTime := time.Now()

	flags := pflag.NewFlagSet("sidecar", pflag.ExitOnError)
	configPath := flags.String("config", "", "path to a config file (yaml/json/toml)")
	port := flags.Int("port", config.DefaultPort, "port to listen on")
	bind := flags.String("bind", config.DefaultHost, "address to bind to")
	logLevel := flags.String("log-level", "info", "log level: debug, info, warn, error")
	showVersion := flags.Bool("version", false, "print version and exit")
	_ = flags.Parse(os.Args[1:])

	vlog := log.New(log.Writer(), "", 0)
	if *showVersion {
		version.PrintVersionInfo(true, vlog)
		os.Exit(0)
	}
	version.PrintVersionInfo(false, vlog)

	cfg, err := config.Load(*configPath, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if flags.Changed("port") {
		cfg.Server.Port = *port
	}
	if flags.Changed("bind") {
		cfg.Server.Host = *bind
	}
	if flags.Changed("log-level") {
		cfg.Logging.Level = *logLevel
	}

	logInstance, styledLogger, cleanup, err := logger.NewWithTheme(&logger.Config{
		Level:      cfg.Logging.Level,
		LogDir:     cfg.Logging.LogDir,
		Theme:      cfg.Logging.Theme,
		MaxSize:    cfg.Logging.MaxSize,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAge:     cfg.Logging.MaxAge,
		FileOutput: cfg.Logging.FileOutput,
		PrettyLogs: cfg.Logging.PrettyLogs,
	})
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

	application, err := app.New(cfg, startTime, styledLogger)
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

	styledLogger.Info("sidecar has shutdown", "uptime", format.Duration(time.Since(startTime)))
}
