package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// rootOptions holds flags shared by every subcommand.
type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "limitimer",
		Short: "Limitimer speaker timer bridge",
		Long: `limitimer - drives Limitimer speaker timers over TCP or serial links.

Running without a subcommand is the same as "limitimer serve": every device in
the configuration file is connected and exposed over MQTT, HTTP and WebSocket.

The other subcommands talk to a single device directly and are meant for
commissioning and troubleshooting:
  send      Send one front-panel action
  watch     Live front-panel view in the terminal
  ports     List serial ports
  journal   Show recent journal entries`,
		Version:       fmt.Sprintf("%s (commit %s, built %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), opts.configPath)
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", getConfigPath(),
		"Path to the configuration file (env LIMITIMER_CONFIG)")

	cmd.AddCommand(
		newServeCmd(opts),
		newSendCmd(opts),
		newWatchCmd(opts),
		newPortsCmd(),
		newJournalCmd(opts),
		newVersionCmd(),
	)

	return cmd
}

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the bridge for every configured device",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), opts.configPath)
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "limitimer %s\ncommit: %s\nbuilt:  %s\n", version, commit, date)
		},
	}
}
