package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/tgsessions/internal/app"
	"github.com/vovakirdan/tgsessions/internal/auth"
	"github.com/vovakirdan/tgsessions/internal/config"
	"github.com/vovakirdan/tgsessions/internal/log"
)

type flags struct {
	configPath string
	overrides  config.Config
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var f flags

	root := &cobra.Command{
		Use:           "tgsessiond",
		Short:         "Keeps several Telegram accounts signed in side by side",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDaemon(cmd, &f)
		},
	}

	registerFlags(root, &f)
	root.AddCommand(newTokenCmd(&f))
	return root
}

func registerFlags(root *cobra.Command, f *flags) {
	pf := root.PersistentFlags()
	pf.StringVarP(&f.configPath, "config", "c", "", "config file (default ./config.yaml)")
	pf.StringVar(&f.overrides.LogLevel, "log-level", "", "log level: trace, debug, info, warn, error")

	fl := root.Flags()
	fl.StringVar(&f.overrides.DataDir, "data-dir", "", "directory holding one database per account")
	fl.BoolVar(&f.overrides.TestDC, "test-dc", false, "create new accounts in the test environment")
	fl.StringVar(&f.overrides.GatewayURL, "gateway", "", "tdjson gateway WebSocket URL")
	fl.StringVar(&f.overrides.ControlAddr, "control-addr", "", "listen address of the control API")
}

func loadConfig(cmd *cobra.Command, f *flags) (config.Config, error) {
	bootstrap := log.New(f.overrides.LogLevel)
	cfg, path, err := config.Load(bootstrap, f.configPath)
	if err != nil {
		return cfg, err
	}
	cfg.UpdateFrom(f.overrides)
	// UpdateFrom only ever turns test_dc on.
	if cmd.Root().Flags().Changed("test-dc") {
		cfg.TestDC = f.overrides.TestDC
	}
	bootstrap.Debug().Str("path", path).Msg("configuration loaded")
	return cfg, nil
}

func runDaemon(cmd *cobra.Command, f *flags) error {
	cfg, err := loadConfig(cmd, f)
	if err != nil {
		return err
	}
	logger := log.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, &cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("failed to start")
		return err
	}

	logger.Info().Str("data_dir", cfg.DataDir).Bool("test_dc", cfg.TestDC).Msg("starting session daemon")
	if err := application.Run(ctx); err != nil {
		logger.Error().Err(err).Msg("daemon exited with error")
		return err
	}
	logger.Info().Msg("daemon stopped")
	return nil
}

func newTokenCmd(f *flags) *cobra.Command {
	var (
		operator string
		ttl      time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Print a bearer token for the control API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, f)
			if err != nil {
				return err
			}
			jwtCfg := app.ControlJWT(&cfg, ttl)
			if jwtCfg == nil {
				return fmt.Errorf("control_secret is not configured: %w", auth.ErrMissingSecret)
			}
			token, err := auth.GenerateToken(jwtCfg, operator)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&operator, "operator", "admin", "name recorded in the token")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime, 0 for none")
	return cmd
}
