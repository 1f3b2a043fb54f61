package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/nerrad567/limitimer-bridge/internal/transport"
)

func newPortsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ports",
		Short: "List serial ports on this host",
		Long: `List serial ports on this host.

Use a port in a device's control.url, for example:
  serial:///dev/ttyUSB0?baud=9600`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ports, err := transport.ListPorts()
			if err != nil {
				return err
			}
			printPorts(cmd.OutOrStdout(), ports)
			return nil
		},
	}
}

func printPorts(out io.Writer, ports []string) {
	if len(ports) == 0 {
		fmt.Fprintln(out, "no serial ports found")
		return
	}
	for _, p := range ports {
		fmt.Fprintln(out, p)
	}
}
