package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/TpaBKa251/Hostel-Internal-Library/clock"
	"github.com/TpaBKa251/Hostel-Internal-Library/config"
)

var (
	// Version information
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

// app carries what every command needs after the root command ran.
type app struct {
	settings   config.Settings
	configPath string
	logger     *slog.Logger
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:   "hostelctl",
		Short: "Inspect and exercise hostel RabbitMQ transports",
		Long: `hostelctl loads the rabbitmq section of a hostel service configuration.
It can validate it, check broker connectivity, send messages through the
configured transports and expose metrics and health over HTTP.`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildTime),
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			settings, err := config.LoadSettings()
			if err != nil {
				return err
			}
			a.settings = settings
			if !cmd.Flags().Changed("config") {
				a.configPath = settings.ConfigPath
			}
			a.logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: settings.Level()}))
			slog.SetDefault(a.logger)
			clock.SetZone(clock.FixedZone(settings.ZoneOffset))
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&a.configPath, "config", "c", "hostel.yaml", "Path to the YAML configuration (defaults to $HOSTEL_CONFIG)")

	rootCmd.AddCommand(
		newConfigCommand(a),
		newCheckCommand(a),
		newSendCommand(a),
		newServeCommand(a),
	)
	return rootCmd
}
