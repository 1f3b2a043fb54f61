package messenger

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/nerrad567/limitimer-bridge/internal/infrastructure/mqtt"
	"github.com/nerrad567/limitimer-bridge/internal/limitimer"
	"github.com/nerrad567/limitimer-bridge/internal/transport"
)

// commandTimeout bounds a single command write to the device link.
const commandTimeout = 5 * time.Second

// MQTTClient is the interface for MQTT operations.
// This allows mocking in tests and flexibility in implementation.
type MQTTClient interface {
	// Publish sends a message to a topic.
	Publish(topic string, payload []byte, qos byte, retained bool) error

	// Subscribe registers a handler for a topic pattern.
	Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error

	// IsConnected returns true if connected to the broker.
	IsConnected() bool
}

// Device is the driver surface the bridge presents. *limitimer.Device
// satisfies it.
type Device interface {
	Key() string
	Name() string
	SendAction(ctx context.Context, a limitimer.Action) error
	Snapshot() limitimer.Snapshot
	Status() limitimer.ConnectionStatus
	Stats() limitimer.Stats
	Subscribe(fn func(limitimer.Change))
	OnBeep(fn func())
}

// LinkStats reports transport counters for health messages.
type LinkStats interface {
	Stats() transport.Stats
}

// DeviceBinding pairs a device with its optional link for health reporting.
type DeviceBinding struct {
	Device Device
	Link   LinkStats
}

// Logger is the logging surface used by the bridge.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// BridgeOptions holds configuration for creating a bridge.
type BridgeOptions struct {
	MQTTClient MQTTClient
	Devices    []DeviceBinding

	// TopicPrefix defaults to mqtt.DefaultTopicPrefix.
	TopicPrefix string

	// QoS is used for state, event and ack messages. Health is always QoS 1.
	QoS byte

	// HealthInterval defaults to DefaultHealthInterval.
	HealthInterval time.Duration

	// Version is reported in health messages.
	Version string

	Logger Logger
	Clock  clockwork.Clock
}

// pending accumulates work for one device between publisher passes.
type pending struct {
	state bool
	beeps int
}

// BridgeMetrics contains counters for the API and CLI.
type BridgeMetrics struct {
	Connected        bool   `json:"connected"`
	CommandsReceived uint64 `json:"commands_received"`
	CommandsFailed   uint64 `json:"commands_failed"`
	StatesPublished  uint64 `json:"states_published"`
	EventsPublished  uint64 `json:"events_published"`
	PublishErrors    uint64 `json:"publish_errors"`
	DevicesManaged   int    `json:"devices_managed"`
}

// Bridge translates between MQTT and Limitimer devices.
//
// Thread Safety: All methods are safe for concurrent use.
type Bridge struct {
	mqtt    MQTTClient
	topics  mqtt.Topics
	qos     byte
	devices map[string]DeviceBinding
	order   []string
	health  *HealthReporter
	clock   clockwork.Clock

	pendingMu sync.Mutex
	pending   map[string]*pending
	wake      chan struct{}

	done      chan struct{}
	wg        sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once
	ctx       context.Context
	ctxCancel context.CancelFunc

	commandsReceived atomic.Uint64
	commandsFailed   atomic.Uint64
	statesPublished  atomic.Uint64
	eventsPublished  atomic.Uint64
	publishErrors    atomic.Uint64

	logger   Logger
	loggerMu sync.RWMutex
}

// NewBridge creates a new bridge instance.
// Call Start() to begin operation.
func NewBridge(opts BridgeOptions) (*Bridge, error) {
	if opts.MQTTClient == nil {
		return nil, fmt.Errorf("MQTT client is required")
	}
	if len(opts.Devices) == 0 {
		return nil, ErrNoDevices
	}
	if opts.QoS > 2 {
		return nil, fmt.Errorf("invalid QoS %d", opts.QoS)
	}
	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	ctx, ctxCancel := context.WithCancel(context.Background())

	b := &Bridge{
		mqtt:      opts.MQTTClient,
		topics:    mqtt.NewTopics(opts.TopicPrefix),
		qos:       opts.QoS,
		devices:   make(map[string]DeviceBinding, len(opts.Devices)),
		clock:     clock,
		pending:   make(map[string]*pending),
		wake:      make(chan struct{}, 1),
		done:      make(chan struct{}),
		ctx:       ctx,
		ctxCancel: ctxCancel,
		logger:    opts.Logger,
	}

	for _, db := range opts.Devices {
		if db.Device == nil {
			ctxCancel()
			return nil, fmt.Errorf("device binding without device")
		}
		key := db.Device.Key()
		if _, dup := b.devices[key]; dup {
			ctxCancel()
			return nil, fmt.Errorf("%w: %s", ErrDuplicateDevice, key)
		}
		b.devices[key] = db
		b.order = append(b.order, key)
	}

	b.health = NewHealthReporter(HealthReporterConfig{
		Devices:   opts.Devices,
		Publisher: opts.MQTTClient,
		Topics:    b.topics,
		Version:   opts.Version,
		Interval:  opts.HealthInterval,
		Clock:     clock,
	})
	if opts.Logger != nil {
		b.health.SetLogger(opts.Logger)
	}

	return b, nil
}

// Topics returns the topic builder in use.
func (b *Bridge) Topics() mqtt.Topics {
	return b.topics
}

// Start subscribes to command topics, hooks every device, publishes the
// initial retained state and starts health reporting.
func (b *Bridge) Start(ctx context.Context) error {
	var err error
	b.startOnce.Do(func() {
		for _, key := range b.order {
			b.watch(b.devices[key].Device)
		}

		commandTopic := b.topics.AllCommands()
		if err = b.mqtt.Subscribe(commandTopic, 1, b.handleMQTTMessage); err != nil {
			err = fmt.Errorf("subscribe to commands: %w", err)
			return
		}
		b.logInfo("subscribed to commands", "topic", commandTopic)

		b.wg.Add(1)
		go b.publishLoop()

		for _, key := range b.order {
			b.markState(key)
		}

		b.health.Start(ctx)

		b.logInfo("messenger bridge started",
			"prefix", b.topics.Prefix,
			"devices", len(b.order))
	})
	return err
}

// Stop flushes pending state, publishes offline health and stops.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		b.ctxCancel()
		close(b.done)
		b.wg.Wait()

		b.health.Stop()

		b.logInfo("messenger bridge stopped")
	})
}

// watch registers the change hooks. They run on the device's queue worker
// and only record what needs publishing.
func (b *Bridge) watch(d Device) {
	key := d.Key()
	d.Subscribe(func(limitimer.Change) {
		b.markState(key)
	})
	d.OnBeep(func() {
		b.markBeep(key)
	})
}

func (b *Bridge) markState(key string) {
	b.pendingMu.Lock()
	b.entry(key).state = true
	b.pendingMu.Unlock()
	b.signal()
}

func (b *Bridge) markBeep(key string) {
	b.pendingMu.Lock()
	b.entry(key).beeps++
	b.pendingMu.Unlock()
	b.signal()
}

// entry must be called with pendingMu held.
func (b *Bridge) entry(key string) *pending {
	p, ok := b.pending[key]
	if !ok {
		p = &pending{}
		b.pending[key] = p
	}
	return p
}

func (b *Bridge) signal() {
	select {
	case b.wake <- struct{}{}:
	default:
	}
}

// publishLoop performs all state and event I/O.
func (b *Bridge) publishLoop() {
	defer b.wg.Done()
	for {
		select {
		case <-b.done:
			b.flush()
			return
		case <-b.wake:
			b.flush()
		}
	}
}

// flush publishes everything accumulated since the last pass.
func (b *Bridge) flush() {
	b.pendingMu.Lock()
	work := b.pending
	b.pending = make(map[string]*pending, len(work))
	b.pendingMu.Unlock()

	for _, key := range b.order {
		p, ok := work[key]
		if !ok {
			continue
		}
		d := b.devices[key].Device
		for i := 0; i < p.beeps; i++ {
			b.publishBeep(d)
		}
		if p.state {
			b.publishState(d, false)
		}
	}
}

// publishState publishes the device snapshot. Beep messages are not
// retained, so the retained copy never carries beep=true.
func (b *Bridge) publishState(d Device, beep bool) {
	msg := StateMessage{Snapshot: d.Snapshot(), Beep: beep}
	payload, err := json.Marshal(msg)
	if err != nil {
		b.logError("failed to marshal state", err)
		return
	}
	if err := b.mqtt.Publish(b.topics.State(d.Key()), payload, b.qos, !beep); err != nil {
		b.publishErrors.Add(1)
		b.logError("failed to publish state", err)
		return
	}
	b.statesPublished.Add(1)
}

func (b *Bridge) publishBeep(d Device) {
	b.publishState(d, true)

	payload, err := json.Marshal(EventMessage{
		DeviceKey: d.Key(),
		Event:     "beep",
		Timestamp: b.clock.Now().UTC(),
	})
	if err != nil {
		b.logError("failed to marshal beep event", err)
		return
	}
	if err := b.mqtt.Publish(b.topics.Event(d.Key(), "beep"), payload, b.qos, false); err != nil {
		b.publishErrors.Add(1)
		b.logError("failed to publish beep event", err)
		return
	}
	b.eventsPublished.Add(1)
}

// handleMQTTMessage routes an inbound command topic.
func (b *Bridge) handleMQTTMessage(topic string, payload []byte) {
	key, action, ok := b.topics.ParseCommand(topic)
	if !ok {
		b.logWarn("ignoring message on unexpected topic", "topic", topic)
		return
	}
	b.commandsReceived.Add(1)

	var cmd CommandMessage
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &cmd); err != nil {
			b.commandsFailed.Add(1)
			b.publishAck(key, action, cmd, AckFailed, &AckError{
				Code:    ErrCodeInvalidPayload,
				Message: fmt.Sprintf("invalid command payload: %v", err),
			})
			return
		}
	}
	if cmd.Source == "" {
		cmd.Source = defaultSource
	}

	b.logInfo("received command",
		"command_id", cmd.ID,
		"device", key,
		"action", action,
		"source", cmd.Source)

	if err := b.execute(key, action, cmd); err != nil {
		b.commandsFailed.Add(1)
		b.publishAck(key, action, cmd, AckFailed, &AckError{
			Code:    errorCode(err),
			Message: err.Error(),
		})
		return
	}
	b.publishAck(key, action, cmd, AckAccepted, nil)
}

// execute runs one command against a device.
func (b *Bridge) execute(key, action string, cmd CommandMessage) error {
	binding, ok := b.devices[key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownDevice, key)
	}

	if action == ActionFullStatus {
		b.markState(key)
		return nil
	}

	a, err := limitimer.ParseAction(action)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(b.ctx, commandTimeout)
	defer cancel()
	return binding.Device.SendAction(limitimer.WithSource(ctx, cmd.Source), a)
}

// publishAck publishes a command acknowledgement.
func (b *Bridge) publishAck(key, action string, cmd CommandMessage, status AckStatus, ackErr *AckError) {
	ack := AckMessage{
		CommandID: cmd.ID,
		Timestamp: b.clock.Now().UTC(),
		DeviceKey: key,
		Action:    action,
		Source:    cmd.Source,
		Status:    status,
		Error:     ackErr,
	}

	payload, err := json.Marshal(ack)
	if err != nil {
		b.logError("failed to marshal ack", err)
		return
	}
	if err := b.mqtt.Publish(b.topics.Ack(key), payload, b.qos, false); err != nil {
		b.publishErrors.Add(1)
		b.logError("failed to publish ack", err)
	}
}

// PublishState forces a retained state publish for key.
func (b *Bridge) PublishState(key string) error {
	if _, ok := b.devices[key]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownDevice, key)
	}
	b.markState(key)
	return nil
}

// GetMetrics returns current bridge counters.
func (b *Bridge) GetMetrics() BridgeMetrics {
	return BridgeMetrics{
		Connected:        b.mqtt.IsConnected(),
		CommandsReceived: b.commandsReceived.Load(),
		CommandsFailed:   b.commandsFailed.Load(),
		StatesPublished:  b.statesPublished.Load(),
		EventsPublished:  b.eventsPublished.Load(),
		PublishErrors:    b.publishErrors.Load(),
		DevicesManaged:   len(b.order),
	}
}

// SetLogger sets the logger for the bridge.
func (b *Bridge) SetLogger(logger Logger) {
	b.loggerMu.Lock()
	b.logger = logger
	b.loggerMu.Unlock()

	b.health.SetLogger(logger)
}

func (b *Bridge) getLogger() Logger {
	b.loggerMu.RLock()
	defer b.loggerMu.RUnlock()
	return b.logger
}

func (b *Bridge) logInfo(msg string, keysAndValues ...any) {
	if logger := b.getLogger(); logger != nil {
		logger.Info(msg, keysAndValues...)
	}
}

func (b *Bridge) logWarn(msg string, keysAndValues ...any) {
	if logger := b.getLogger(); logger != nil {
		logger.Warn(msg, keysAndValues...)
	}
}

func (b *Bridge) logError(msg string, err error) {
	if logger := b.getLogger(); logger != nil {
		logger.Error(msg, "error", err)
	}
}
