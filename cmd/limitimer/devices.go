package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/limitimer-bridge/internal/infrastructure/config"
	"github.com/nerrad567/limitimer-bridge/internal/infrastructure/logging"
	"github.com/nerrad567/limitimer-bridge/internal/limitimer"
	"github.com/nerrad567/limitimer-bridge/internal/transport"
)

// deviceStopTimeout bounds how long each device may drain its queue.
const deviceStopTimeout = 5 * time.Second

// managedDevice pairs a driver with the link it owns.
type managedDevice struct {
	cfg    config.DeviceConfig
	link   *transport.Client
	device *limitimer.Device
}

// buildDevice creates the link and driver for one configured device.
// Nothing is connected until the device is started.
func buildDevice(dc config.DeviceConfig, log *logging.Logger) (*managedDevice, error) {
	devLog := log.With("device", dc.Key)

	link, err := transport.New(transport.Config{
		URL:                  dc.Control.URL,
		ConnectTimeout:       millis(dc.Control.ConnectTimeoutMs),
		ReconnectInterval:    millis(dc.Control.ReconnectIntervalMs),
		MaxReconnectInterval: millis(dc.Control.MaxReconnectIntervalMs),
	})
	if err != nil {
		return nil, fmt.Errorf("device %s: creating link: %w", dc.Key, err)
	}
	link.SetLogger(devLog)

	dev, err := limitimer.New(limitimer.Options{
		Key:  dc.Key,
		Name: dc.DisplayName(),
		Config: limitimer.Config{
			PollInterval:   dc.PollInterval(),
			WarningTimeout: dc.WarningTimeout(),
			ErrorTimeout:   dc.ErrorTimeout(),
			QueueSize:      dc.QueueSize,
		},
		Source: link,
		Logger: devLog,
	})
	if err != nil {
		_ = link.Close()
		return nil, fmt.Errorf("device %s: %w", dc.Key, err)
	}

	return &managedDevice{cfg: dc, link: link, device: dev}, nil
}

// buildDevices creates every configured device.
func buildDevices(cfg *config.Config, log *logging.Logger) ([]*managedDevice, error) {
	devices := make([]*managedDevice, 0, len(cfg.Devices))
	for _, dc := range cfg.Devices {
		md, err := buildDevice(dc, log)
		if err != nil {
			stopDevices(devices, log)
			return nil, err
		}
		devices = append(devices, md)
	}
	return devices, nil
}

// startDevices starts every device concurrently. The links keep retrying in
// the background, so an unreachable device does not fail the start.
func startDevices(ctx context.Context, devices []*managedDevice) error {
	var g errgroup.Group
	for _, md := range devices {
		g.Go(func() error {
			return md.device.Start(ctx)
		})
	}
	return g.Wait()
}

// stopDevices stops every device concurrently and closes its link.
func stopDevices(devices []*managedDevice, log *logging.Logger) {
	var g errgroup.Group
	for _, md := range devices {
		g.Go(func() error {
			ctx, cancel := context.WithTimeout(context.Background(), deviceStopTimeout)
			defer cancel()
			err := errors.Join(md.device.Stop(ctx), md.link.Close())
			if err != nil {
				log.Error("error stopping device", "device", md.cfg.Key, "error", err)
			}
			return err
		})
	}
	_ = g.Wait()
}

func millis(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
