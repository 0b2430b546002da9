package main

import (
	"github.com/spf13/cobra"
)

func newAgentsCmd(flags *rootFlags) *cobra.Command {
	var root string

	cmd := &cobra.Command{
		Use:   "agents",
		Short: "Print the agents and tools of a scenario",
		Long: `Print every agent in reachability order from the root together with
the tools the live model sees while that agent is active.

Use --root to preview the graph as an operator switch to that agent would
leave it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, g, err := loadGraph(flags.scenario)
			if err != nil {
				return err
			}
			if root != "" {
				if g, err = g.Reroot(root); err != nil {
					return err
				}
			}
			return printAgents(cmd.OutOrStdout(), g)
		},
	}

	cmd.Flags().StringVar(&root, "root", "", "Re-root the graph on this agent")

	return cmd
}
