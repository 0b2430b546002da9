package main

import (
	"github.com/spf13/cobra"
)

type rootFlags struct {
	scenario string
	config   string
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	cmd := &cobra.Command{
		Use:   "realtimemesh",
		Short: "Multi-agent orchestration for realtime voice models",
		Long: `realtimemesh runs a graph of voice agents on top of a realtime
speech-to-speech model.

Available subcommands:
  run         Connect to the realtime model and run one session
  validate    Load and validate a scenario
  agents      Print the agents and tools of a scenario

Examples:
  realtimemesh validate --scenario airline.yaml
  realtimemesh agents --scenario airline.yaml --root booking
  realtimemesh run --scenario airline.yaml --config realtimemesh.yaml`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&flags.scenario, "scenario", "", "Path to the scenario YAML file")
	cmd.PersistentFlags().StringVar(&flags.config, "config", "", "Path to the configuration file")
	_ = cmd.MarkPersistentFlagRequired("scenario")

	cmd.AddCommand(newRunCmd(flags))
	cmd.AddCommand(newValidateCmd(flags))
	cmd.AddCommand(newAgentsCmd(flags))

	return cmd
}
