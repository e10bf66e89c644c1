package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nerrad567/gray-logic-sesame/internal/automation"
)

func newCheckConfigCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "check-config",
		Short: "Validate the configuration and list the triggers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, path, err := opts.loadConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s: ok\n", path)
			fmt.Fprintf(out, "uuid: %s\nshared lock: %s\n\n", cfg.Sesame.UUID, cfg.Sesame.Lock.ID)

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tADDRESS\tKIND\tLOCK")
			for _, tc := range cfg.Sesame.Triggers {
				trigger, err := triggerConfig(tc)
				if err != nil {
					return err
				}
				kind, lock := "shared", cfg.Sesame.Lock.ID
				if trigger.Lock != nil {
					kind, lock = "bound", trigger.Lock.ID
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", trigger.Name, trigger.Address, kind, lock)
			}
			if err := tw.Flush(); err != nil {
				return err
			}

			rules, err := automation.Compile(cfg.Sesame)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "\nautomations: %d\n", len(rules))
			for _, r := range rules {
				fmt.Fprintf(out, "  %s: on %s of %s, %d actions\n", r.Name, r.On, r.Trigger, len(r.Actions))
			}
			return nil
		},
	}
}
