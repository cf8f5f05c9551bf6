package cli

import (
	"context"
	"fmt"
	"os"

	"blockminds/internal/app"
	"blockminds/internal/config"
	"blockminds/internal/logging"
	"blockminds/pkg/tracing"

	"github.com/spf13/cobra"
)

var (
	cfgFile   string
	logLevel  string
	appHandle *app.App
	shutdown  func(context.Context) error

	loadConfigFunc = config.LoadFile
	initTracerFunc = tracing.InitTracer
	newAppFunc     = app.New
)

var rootCmd = &cobra.Command{
	Use:           "blockminds",
	Short:         "Collect, enrich and publish crypto market snapshots",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if appHandle != nil || cmd.Name() == versionCmd.Name() {
			return nil
		}
		if cfgFile == "" {
			cfgFile = os.Getenv("CONFIG_FILE")
		}
		cfg, err := loadConfigFunc(cfgFile)
		if err != nil {
			return err
		}
		if logLevel != "" {
			cfg.Logging.Level = logLevel
		}
		logger := logging.NewLogger(cfg.Logging)

		ctx := cmd.Context()
		tp, tracer, err := initTracerFunc(ctx)
		if err != nil {
			return fmt.Errorf("initialize tracer: %w", err)
		}
		a, err := newAppFunc(ctx, cfg, tracer, logger)
		if err != nil {
			_ = tp.Shutdown(ctx)
			return err
		}
		appHandle = a
		shutdown = func(ctx context.Context) error {
			err := a.Close(ctx)
			if tpErr := tp.Shutdown(ctx); err == nil {
				err = tpErr
			}
			return err
		}
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return closeApp(cmd.Context())
	},
}

// Execute runs the root command with ctx.
func Execute(ctx context.Context) int {
	defer func() { _ = closeApp(context.WithoutCancel(ctx)) }()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override log level defined in config")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(catalogCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(versionCmd)
}

func getApp() *app.App {
	if appHandle == nil {
		panic("application not initialized; PersistentPreRunE not executed")
	}
	return appHandle
}

func closeApp(ctx context.Context) error {
	if shutdown == nil {
		return nil
	}
	fn := shutdown
	shutdown = nil
	appHandle = nil
	return fn(ctx)
}
