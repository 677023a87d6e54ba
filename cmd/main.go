package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/okian/routedata/internal/config"
	"github.com/okian/routedata/pkg/logger"
)

const defaultEnvFile = ".env"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}

// cli holds flags shared by every command and the loaded configuration.
type cli struct {
	configPath string
	envFile    string
	logLevel   string

	cfg *config.Config
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:               "routedata",
		Short:             "Compose route data from a content API",
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: c.setup,
	}
	flags := root.PersistentFlags()
	flags.StringVar(&c.configPath, "config", "", "YAML config file (overrides "+config.EnvFile+")")
	flags.StringVar(&c.envFile, "env-file", defaultEnvFile, "dotenv file loaded before the configuration")
	flags.StringVar(&c.logLevel, "log-level", "", "log level override: debug, info, warn, error")

	root.AddCommand(
		newServeCmd(c),
		newFetchCmd(c),
		newRoutesCmd(c),
		newTokenCmd(c),
	)
	return root
}

// setup loads the dotenv file, the configuration and the logger.
func (c *cli) setup(cmd *cobra.Command, _ []string) error {
	if err := godotenv.Load(c.envFile); err != nil {
		// The default file is optional.
		if !errors.Is(err, fs.ErrNotExist) || cmd.Flags().Changed("env-file") {
			return fmt.Errorf("load env file: %w", err)
		}
	}
	if c.configPath != "" {
		if err := os.Setenv(config.EnvFile, c.configPath); err != nil {
			return err
		}
	}

	cfg, err := config.Load(cmd.Context())
	if err != nil {
		return err
	}
	if err := logger.Init(logger.WithWriter(cmd.ErrOrStderr()), logger.WithFormat(cfg.LogFormat)); err != nil {
		return fmt.Errorf("initialize logging: %w", err)
	}

	level := cfg.LogLevel
	if c.logLevel != "" {
		level = c.logLevel
	}
	if err := logger.SetLevelString(level); err != nil {
		logger.Get().Warn(cmd.Context(), "invalid log_level; falling back to info", logger.String("log_level", level), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	c.cfg = cfg
	return nil
}
