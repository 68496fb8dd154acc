package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/TpaBKa251/Hostel-Internal-Library/config"
	"github.com/TpaBKa251/Hostel-Internal-Library/registry"
)

func newConfigCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Validate the configuration and list its transports",
		Long:  "Loads and validates the configuration without connecting to the broker.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(a.configPath)
			if err != nil {
				return err
			}
			profiles, err := cfg.Profiles()
			if err != nil {
				return err
			}
			printProfiles(cmd.OutOrStdout(), profiles)
			return nil
		},
	}
}

func printProfiles(w io.Writer, profiles []config.Profile) {
	if len(profiles) == 0 {
		fmt.Fprintln(w, "No profiles configured")
		return
	}

	for _, p := range profiles {
		fmt.Fprintf(w, "%s/%s (%s)\n", p.Service.ServiceName(), p.Name, p.Properties.Connection)
		q := p.Properties.Queueing
		for _, name := range config.SortedKeys(q.Senders) {
			s := q.Senders[name]
			fmt.Fprintf(w, "  sender   %-24s %s -> %s (key %s, transacted %t)\n",
				name, s.ExchangeName, s.QueueName, s.RoutingKey, s.Transacted())
		}
		for _, name := range config.SortedKeys(q.Listeners) {
			fmt.Fprintf(w, "  listener %-24s %s (%s)\n",
				name, q.Listeners[name].QueueName, registry.ReceiverName(p.Service, p.Name, name))
		}
	}
}
