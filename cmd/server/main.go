package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/jo-hoe/photostamp/internal/backend"
	"github.com/jo-hoe/photostamp/internal/common"
	"github.com/jo-hoe/photostamp/internal/core"
)

func getConfigPath() string {
	// First check if config path is provided via environment variable
	if configPath := os.Getenv("CONFIG_PATH"); configPath != "" {
		return configPath
	}

	// Default to config.yaml in current working directory
	cwd, err := os.Getwd()
	if err != nil {
		panic(err)
	}
	return filepath.Join(cwd, "config.yaml")
}

func getLogLevel() string {
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		return level
	}
	return "info"
}

func main() {
	if err := common.SetupLogging(getLogLevel()); err != nil {
		slog.Error("invalid log level", "error", err)
		os.Exit(1)
	}

	configPath := getConfigPath()
	config, err := core.LoadConfig(configPath)
	if err != nil {
		slog.Error("failed to load config", "path", configPath, "error", err)
		os.Exit(1)
	}

	coreService, err := core.NewCoreService(config)
	if err != nil {
		slog.Error("failed to create core service", "error", err)
		os.Exit(1)
	}

	server := backend.NewEchoServer()
	backend.NewAPIService(coreService).SetRoutes(server)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	exitCode := 0
	if err := backend.Serve(ctx, server, config.Port); err != nil {
		slog.Error("server stopped with error", "error", err)
		exitCode = 1
	}
	if err := coreService.Close(); err != nil {
		slog.Error("core service close error", "error", err)
		exitCode = 1
	}
	os.Exit(exitCode)
}
