package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	hostel "github.com/TpaBKa251/Hostel-Internal-Library"
	"github.com/TpaBKa251/Hostel-Internal-Library/health"
)

func newServeCommand(a *app) *cobra.Command {
	var (
		addr          string
		healthTimeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Keep every profile connected and serve /metrics and /health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if addr == "" {
				addr = a.settings.MetricsAddr
			}
			if addr == "" {
				addr = ":9090"
			}

			reg := prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

			client, err := hostel.NewClientFromFile(cmd.Context(), a.configPath,
				hostel.WithLogger(a.logger),
				hostel.WithMetrics(reg),
			)
			if err != nil {
				return fmt.Errorf("failed to create client: %w", err)
			}
			defer client.Close()

			server := &http.Server{
				Addr:              addr,
				Handler:           newMux(reg, client.Health(), healthTimeout),
				ReadHeaderTimeout: 5 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				a.logger.Info("serving metrics and health", "addr", addr)
				errCh <- server.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			case <-cmd.Context().Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			a.logger.Info("shutting down")
			return server.Shutdown(shutdownCtx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (defaults to $HOSTEL_METRICS_ADDR or :9090)")
	cmd.Flags().DurationVar(&healthTimeout, "health-timeout", 5*time.Second, "Timeout of one health check run")
	return cmd
}

func newMux(reg *prometheus.Registry, checks *health.Registry, timeout time.Duration) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	mux.Handle("/health", health.NewHandler(checks, timeout))
	return mux
}
