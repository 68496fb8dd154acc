package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/spf13/cobra"

	hostel "github.com/TpaBKa251/Hostel-Internal-Library"
	"github.com/TpaBKa251/Hostel-Internal-Library/health"
)

func newCheckCommand(a *app) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Connect every profile and report its health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := hostel.NewClientFromFile(cmd.Context(), a.configPath, hostel.WithLogger(a.logger))
			if err != nil {
				return fmt.Errorf("failed to create client: %w", err)
			}
			defer client.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			overall := client.Health().Check(ctx)
			printHealth(cmd.OutOrStdout(), overall)
			if overall.Status == health.StatusUnhealthy {
				return fmt.Errorf("system is %s", overall.Status)
			}
			return nil
		},
	}
	cmd.Flags().DurationVarP(&timeout, "timeout", "t", 5*time.Second, "Health check timeout")
	return cmd
}

func printHealth(w io.Writer, overall health.OverallHealth) {
	fmt.Fprintf(w, "System Health: %s\n", overall.Status)

	names := make([]string, 0, len(overall.Checks))
	for name := range overall.Checks {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		res := overall.Checks[name]
		fmt.Fprintf(w, "  %-40s %-10s %s\n", name, res.Status, res.Message)
	}
}
