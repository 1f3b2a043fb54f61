package messenger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/nerrad567/limitimer-bridge/internal/infrastructure/mqtt"
)

// DefaultHealthInterval is used when no interval is configured.
const DefaultHealthInterval = 30 * time.Second

// HealthPublisher is the interface for publishing health messages.
// This is typically implemented by an MQTT client.
type HealthPublisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	IsConnected() bool
}

// HealthReporterConfig holds configuration for the health reporter.
type HealthReporterConfig struct {
	Devices   []DeviceBinding
	Publisher HealthPublisher
	Topics    mqtt.Topics

	// Version is the bridge software version.
	Version string

	// Interval is how often to publish health. Default: 30 seconds.
	Interval time.Duration

	// Clock defaults to the real clock.
	Clock clockwork.Clock
}

// HealthReporter publishes retained per-device health at a fixed interval
// and an offline message for every device when stopped.
type HealthReporter struct {
	devices   []DeviceBinding
	publisher HealthPublisher
	topics    mqtt.Topics
	version   string
	interval  time.Duration
	clock     clockwork.Clock
	startTime time.Time

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once

	logger   Logger
	loggerMu sync.RWMutex
}

// NewHealthReporter creates a new health reporter.
//
// Parameters:
//   - cfg: Configuration for the health reporter
//
// Returns:
//   - *HealthReporter: Ready to start (call Start to begin reporting)
func NewHealthReporter(cfg HealthReporterConfig) *HealthReporter {
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultHealthInterval
	}
	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	return &HealthReporter{
		devices:   cfg.Devices,
		publisher: cfg.Publisher,
		topics:    cfg.Topics,
		version:   cfg.Version,
		interval:  interval,
		clock:     clock,
		startTime: clock.Now(),
		done:      make(chan struct{}),
	}
}

// SetLogger sets the logger for this reporter.
func (h *HealthReporter) SetLogger(logger Logger) {
	h.loggerMu.Lock()
	h.logger = logger
	h.loggerMu.Unlock()
}

// Start begins periodic health reporting. The first report is published
// before Start returns.
func (h *HealthReporter) Start(ctx context.Context) {
	if err := h.PublishNow(); err != nil {
		h.logError("failed to publish initial health", err)
	}

	ticker := h.clock.NewTicker(h.interval)
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-h.done:
				return
			case <-ticker.Chan():
				if err := h.PublishNow(); err != nil {
					h.logError("failed to publish health", err)
				}
			}
		}
	}()
}

// Stop halts reporting and publishes an offline message for every device.
// Safe to call multiple times.
func (h *HealthReporter) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
		h.wg.Wait()

		var errs []error
		for _, b := range h.devices {
			msg := h.message(b)
			msg.Status = HealthOffline
			msg.Reason = "bridge stopping"
			errs = append(errs, h.publish(b, msg))
		}
		if err := errors.Join(errs...); err != nil {
			h.logError("failed to publish offline health", err)
		}
	})
}

// PublishNow publishes the current health of every device.
func (h *HealthReporter) PublishNow() error {
	var errs []error
	for _, b := range h.devices {
		errs = append(errs, h.publish(b, h.message(b)))
	}
	return errors.Join(errs...)
}

// message builds the health message for one device.
func (h *HealthReporter) message(b DeviceBinding) HealthMessage {
	stats := b.Device.Stats()
	status, reason := healthFor(b.Device.Status())

	msg := HealthMessage{
		DeviceKey:     b.Device.Key(),
		Name:          b.Device.Name(),
		Timestamp:     h.clock.Now().UTC(),
		Status:        status,
		DeviceStatus:  b.Device.Status().String(),
		Version:       h.version,
		UptimeSeconds: int64(h.clock.Since(h.startTime).Seconds()),
		Queue:         stats.Queue,
		Decoder:       stats.Decoder,
		ActionsSent:   stats.ActionsSent,
		ActionsFailed: stats.ActionsFailed,
		Reason:        reason,
	}
	if b.Link != nil {
		ts := b.Link.Stats()
		msg.Transport = &ts
	}
	return msg
}

func (h *HealthReporter) publish(b DeviceBinding, msg HealthMessage) error {
	if h.publisher == nil {
		return nil
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal health for %s: %w", msg.DeviceKey, err)
	}
	return h.publisher.Publish(h.topics.Health(b.Device.Key()), payload, 1, true)
}

func (h *HealthReporter) logError(msg string, err error) {
	h.loggerMu.RLock()
	logger := h.logger
	h.loggerMu.RUnlock()

	if logger != nil {
		logger.Error(msg, "error", err)
	}
}
