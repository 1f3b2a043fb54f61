package main

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/nerrad567/limitimer-bridge/internal/limitimer"
)

func newWatchCmd(opts *rootOptions) *cobra.Command {
	var wait time.Duration

	cmd := &cobra.Command{
		Use:   "watch <device>",
		Short: "Live front-panel view of a device",
		Long: `Open a live view of a device's front panel in the terminal.

The view mirrors the program and session LEDs, the lamps and the three
clocks. Front-panel keys can be pressed from the keyboard; press ? for the
key list and q to quit.

Do not run watch against a device the bridge is already serving over a
serial link; a serial port has a single owner.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd.Context(), opts.configPath, args[0], wait)
		},
	}

	cmd.Flags().DurationVar(&wait, "wait", defaultConnectWait, "How long to wait for the link")

	return cmd
}

func runWatch(ctx context.Context, configPath, key string, wait time.Duration) error {
	md, cleanup, err := openDevice(ctx, configPath, key, wait)
	if err != nil {
		return err
	}
	defer cleanup()

	m := newWatchModel(limitimer.WithSource(ctx, sourceCLI), md.device)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))

	md.device.Subscribe(func(ch limitimer.Change) {
		p.Send(changeMsg(ch))
	})
	md.device.OnBeep(func() {
		p.Send(beepMsg{})
	})

	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("running watch view: %w", err)
	}
	return nil
}
