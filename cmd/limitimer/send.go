package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrad567/limitimer-bridge/internal/infrastructure/config"
	"github.com/nerrad567/limitimer-bridge/internal/infrastructure/logging"
	"github.com/nerrad567/limitimer-bridge/internal/limitimer"
)

// sourceCLI tags commands issued from this binary.
const sourceCLI = "cli"

// defaultConnectWait is how long send and watch wait for the link.
const defaultConnectWait = 10 * time.Second

func newSendCmd(opts *rootOptions) *cobra.Command {
	var (
		asText bool
		wait   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "send <device> <action>",
		Short: "Send one front-panel action to a device",
		Long: `Send one front-panel action to a configured device and exit.

Actions:
  ` + strings.Join(actionNames(), ", ") + `

With --text the second argument is written verbatim followed by the line
delimiter instead.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSend(cmd.Context(), cmd.OutOrStdout(), opts.configPath, args[0], args[1], asText, wait)
		},
	}

	cmd.Flags().BoolVar(&asText, "text", false, "Send the argument as raw text")
	cmd.Flags().DurationVar(&wait, "wait", defaultConnectWait, "How long to wait for the link")

	return cmd
}

func runSend(ctx context.Context, out io.Writer, configPath, key, arg string, asText bool, wait time.Duration) error {
	var action limitimer.Action
	if !asText {
		a, err := limitimer.ParseAction(arg)
		if err != nil {
			return err
		}
		if !a.Supported() {
			return fmt.Errorf("%w: %s", limitimer.ErrUnsupportedAction, a)
		}
		action = a
	} else if strings.Contains(arg, limitimer.Delimiter) {
		return fmt.Errorf("text must not contain the line delimiter")
	}

	md, cleanup, err := openDevice(ctx, configPath, key, wait)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx = limitimer.WithSource(ctx, sourceCLI)
	if asText {
		err = md.device.SendText(ctx, arg)
	} else {
		err = md.device.SendAction(ctx, action)
	}
	if err != nil {
		return err
	}

	what := string(action)
	if asText {
		what = fmt.Sprintf("text %q", arg)
	}
	fmt.Fprintf(out, "sent %s to %s\n", what, md.cfg.Key)
	return nil
}

// openDevice starts a single configured device and waits for its link.
// The returned cleanup stops the device.
func openDevice(ctx context.Context, configPath, key string, wait time.Duration) (*managedDevice, func(), error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}
	dc, ok := cfg.Device(key)
	if !ok {
		return nil, nil, fmt.Errorf("device %q is not configured", key)
	}

	log := cliLogger(cfg.Logging.Level)
	md, err := buildDevice(dc, log)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		stopDevices([]*managedDevice{md}, log)
	}

	if err := md.device.Start(ctx); err != nil {
		cleanup()
		return nil, nil, err
	}

	waitCtx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()
	if err := md.link.WaitConnected(waitCtx); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("device %s not reachable at %s: %w", key, md.link.Endpoint(), err)
	}

	return md, cleanup, nil
}

// cliLogger writes warnings and errors to stderr as text so they do not
// interleave with command output.
func cliLogger(level string) *logging.Logger {
	if level == "" || level == "info" || level == "debug" {
		level = "warn"
	}
	return logging.NewWithWriter(config.LoggingConfig{Level: level, Format: "text"}, version, os.Stderr)
}

func actionNames() []string {
	actions := limitimer.Actions()
	names := make([]string, 0, len(actions))
	for _, a := range actions {
		if a.Supported() {
			names = append(names, string(a))
		}
	}
	return names
}
