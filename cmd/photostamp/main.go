package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/jo-hoe/photostamp/internal/common"
	"github.com/jo-hoe/photostamp/internal/core"
	"github.com/spf13/cobra"
)

const defaultConfigFile = "config.yaml"

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type globalOptions struct {
	configPath string
	logLevel   string
}

func rootCmd() *cobra.Command {
	opts := &globalOptions{}

	cmd := &cobra.Command{
		Use:   "photostamp",
		Short: "Stamp photos with time, coordinates and address",
		Long: `photostamp annotates photos with the capture time, the GPS coordinates and a
reverse-geocoded address, and keeps them together with a comment in a local store.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return common.SetupLogging(opts.logLevel)
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Config file path (YAML); defaults to $CONFIG_PATH or ./config.yaml")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")

	cmd.AddCommand(
		addCmd(opts),
		listCmd(opts),
		exportCmd(opts),
		deleteCmd(opts),
		clearCmd(opts),
		serveCmd(opts),
	)
	return cmd
}

// loadConfig resolves the config file from the flag, CONFIG_PATH or the working directory.
// Only the implicit default file may be missing, in which case built-in defaults apply.
func loadConfig(opts *globalOptions) (*core.ServiceConfig, error) {
	if opts.configPath != "" {
		return core.LoadConfig(opts.configPath)
	}
	if configPath := os.Getenv("CONFIG_PATH"); configPath != "" {
		return core.LoadConfig(configPath)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve working directory: %w", err)
	}
	configPath := filepath.Join(cwd, defaultConfigFile)
	if _, err := os.Stat(configPath); errors.Is(err, os.ErrNotExist) {
		return core.DefaultConfig(), nil
	}
	return core.LoadConfig(configPath)
}

// withCoreService runs fn against a freshly opened service and closes it afterwards.
func withCoreService(opts *globalOptions, fn func(ctx context.Context, service *core.CoreService) error) error {
	config, err := loadConfig(opts)
	if err != nil {
		return err
	}
	return withCoreServiceConfig(config, fn)
}

func withCoreServiceConfig(config *core.ServiceConfig, fn func(ctx context.Context, service *core.CoreService) error) error {
	service, err := core.NewCoreService(config)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runErr := fn(ctx, service)
	if err := service.Close(); err != nil && runErr == nil {
		return err
	}
	return runErr
}
