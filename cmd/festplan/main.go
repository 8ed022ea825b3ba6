package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"festplan/internal/config"
	appLog "festplan/internal/log"
)

const version = "0.1.0"

var (
	configFlag    string
	logLevelFlag  string
	ephemeralFlag bool
	conf          *config.Config
	rootCmd       = &cobra.Command{
		Use:           "festplan",
		Short:         "Festival schedule companion: plan, reminders, friends and offline shell",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configFlag)
			if err != nil {
				return fmt.Errorf("load config %s: %w", configFlag, err)
			}
			if logLevelFlag != "" {
				cfg.LogLevel = logLevelFlag
			}
			appLog.SetLevel(appLog.ParseLevel(cfg.LogLevel))
			conf = cfg
			return nil
		},
	}
)

func main() {
	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "./festplan.yaml", "Path to config file")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "Log level (debug, info, warn, error); overrides config")
	rootCmd.PersistentFlags().BoolVar(&ephemeralFlag, "ephemeral", false, "Keep plan, reminders and friends in memory only")

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		appLog.Error("festplan failed", err)
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// withApp opens the stores for the duration of fn.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	ctx := cmd.Context()
	a, err := openApp(ctx, conf, ephemeralFlag)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}
