package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func newRootCmd(lcf zap.Config, log *zap.Logger) *cobra.Command {
	var configPath string

	run := func(cmd *cobra.Command, _ []string) error {
		log.Info("Initializing application.")
		a, err := newApp(cmd.Context(), lcf, log, configPath)
		if err != nil {
			return fmt.Errorf("couldn't initialize application: %w", err)
		}
		log.Debug("Initialization tasks complete, continuing with launch.")
		return a.Run()
	}

	root := &cobra.Command{
		Use:           "oracle",
		Short:         "Mirror Discord users, guilds, channels, roles and messages into PostgreSQL",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          run,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "configuration file (default ./config.yaml if present)")

	root.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Connect to the gateway and keep the store in sync",
		RunE:  run,
	})
	root.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return migrate(cmd.Context(), lcf, log, configPath)
		},
	})
	return root
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	lcf := zap.NewDevelopmentConfig() // to later switch level without reallocation
	lcf.Level.SetLevel(zapcore.DebugLevel)
	lcf.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	lcf.DisableCaller = true
	log, _ := lcf.Build()

	if err := newRootCmd(lcf, log).ExecuteContext(ctx); err != nil {
		if !errors.Is(err, context.Canceled) {
			log.Sugar().Fatalf("Application crashed: %s.", err)
		}
	}
}
