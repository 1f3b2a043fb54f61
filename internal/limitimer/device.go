package limitimer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
)

// Type names accepted in device configuration.
var TypeNames = []string{"Limitimer", "limitimer"}

// IsSupportedType reports whether name selects this driver.
func IsSupportedType(name string) bool {
	for _, t := range TypeNames {
		if t == name {
			return true
		}
	}
	return false
}

// Default monitor timings.
const (
	DefaultPollInterval   = 30 * time.Second
	DefaultWarningTimeout = 120 * time.Second
	DefaultErrorTimeout   = 300 * time.Second
)

// Logger is the logging interface used by this package. *slog.Logger
// satisfies it.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// LineSource is a delimited, bidirectional byte link to the appliance.
//
// Implementations deliver each received line through the OnLine callback
// and report every connect/disconnect through the connection callback.
type LineSource interface {
	Connect(ctx context.Context) error
	Disconnect() error
	IsConnected() bool
	Send(ctx context.Context, data []byte) error
	SetOnLine(fn func(line string))
	SetOnConnectionChange(fn func(connected bool))
}

// Config holds per-device timing and queue settings.
type Config struct {
	// PollInterval is how often the connection monitor re-evaluates.
	PollInterval time.Duration

	// WarningTimeout is the quiet period after which status becomes warning.
	WarningTimeout time.Duration

	// ErrorTimeout is the quiet period after which status becomes error.
	// Must exceed WarningTimeout.
	ErrorTimeout time.Duration

	// QueueSize bounds the inbound line queue. Zero selects DefaultQueueSize.
	QueueSize int
}

// DefaultConfig returns the default monitor timings.
func DefaultConfig() Config {
	return Config{
		PollInterval:   DefaultPollInterval,
		WarningTimeout: DefaultWarningTimeout,
		ErrorTimeout:   DefaultErrorTimeout,
		QueueSize:      DefaultQueueSize,
	}
}

// Validate checks the timings. All violations are reported together.
func (c Config) Validate() error {
	var errs []string
	if c.PollInterval <= 0 {
		errs = append(errs, "poll interval must be positive")
	}
	if c.WarningTimeout <= 0 {
		errs = append(errs, "warning timeout must be positive")
	}
	if c.ErrorTimeout <= c.WarningTimeout {
		errs = append(errs, "error timeout must exceed warning timeout")
	}
	if c.QueueSize < 0 {
		errs = append(errs, "queue size must not be negative")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(errs, "; "))
	}
	return nil
}

// Options configures a Device.
type Options struct {
	// Key uniquely identifies the device. Required.
	Key string

	// Name is a human-readable label. Defaults to Key.
	Name string

	Config Config
	Source LineSource

	// Logger is optional.
	Logger Logger

	// Clock drives the connection monitor. Defaults to the real clock.
	Clock clockwork.Clock
}

// ActionEvent describes one outbound command attempt.
type ActionEvent struct {
	DeviceKey string
	Action    Action
	Text      string
	Source    string
	Err       error
	Timestamp time.Time
}

type sourceKey struct{}

// WithSource tags ctx with the name of whoever is issuing a command
// ("mqtt", "api", "cli"). The tag is copied into the resulting ActionEvent.
func WithSource(ctx context.Context, source string) context.Context {
	return context.WithValue(ctx, sourceKey{}, source)
}

// SourceFrom returns the tag set by WithSource, or "".
func SourceFrom(ctx context.Context) string {
	s, _ := ctx.Value(sourceKey{}).(string)
	return s
}

// Stats aggregates device counters.
type Stats struct {
	Decoder       DecoderStats     `json:"decoder"`
	Queue         QueueStats       `json:"queue"`
	Status        ConnectionStatus `json:"status"`
	ActionsSent   uint64           `json:"actions_sent"`
	ActionsFailed uint64           `json:"actions_failed"`
	Resyncs       uint64           `json:"resyncs"`
}

// Device is a Limitimer driver instance.
//
// Inbound lines are decoded on a single queue worker; every state change and
// every subscriber notification happens on that worker. Commands are encoded
// and written directly to the LineSource from the caller's goroutine.
//
// Thread Safety:
//   - All exported methods are safe for concurrent use.
//   - Subscribers run on the queue worker. They must not call Resync or
//     otherwise wait on the worker, or the device deadlocks.
type Device struct {
	key    string
	name   string
	cfg    Config
	source LineSource
	logger Logger
	clock  clockwork.Clock

	state   *State
	decoder *Decoder
	queue   *Queue
	monitor *Monitor

	// resyncing is only touched on the queue worker
	resyncing bool

	subsMu   sync.RWMutex
	subs     []func(Change)
	onAction func(ActionEvent)

	lifeMu  sync.Mutex
	started bool
	stopped bool

	actionsSent   atomic.Uint64
	actionsFailed atomic.Uint64
	resyncs       atomic.Uint64
}

// New creates a device and wires it to its LineSource. The queue worker
// starts immediately; the link is not opened until Start.
//
// Returns:
//   - ErrInvalidConfig if the key or timings are invalid
//   - ErrNoTransport if Source is nil
func New(opts Options) (*Device, error) {
	if strings.TrimSpace(opts.Key) == "" {
		return nil, fmt.Errorf("%w: key is required", ErrInvalidConfig)
	}
	if err := opts.Config.Validate(); err != nil {
		return nil, err
	}
	if opts.Source == nil {
		return nil, ErrNoTransport
	}

	d := &Device{
		key:    opts.Key,
		name:   opts.Name,
		cfg:    opts.Config,
		source: opts.Source,
		logger: opts.Logger,
		clock:  opts.Clock,
		state:  NewState(),
	}
	if d.name == "" {
		d.name = d.key
	}
	if d.logger == nil {
		d.logger = nopLogger{}
	}
	if d.clock == nil {
		d.clock = clockwork.NewRealClock()
	}

	d.decoder = NewDecoder(d.state, d.logger)
	d.queue = NewQueue(d.cfg.QueueSize, d.handleLine)
	d.monitor = NewMonitor(d.cfg, d.clock)
	d.monitor.SetOnStatusChange(d.handleStatusChange)

	d.subscribeState()

	d.source.SetOnLine(d.handleReceived)
	d.source.SetOnConnectionChange(d.handleConnectionChange)

	return d, nil
}

func (d *Device) subscribeState() {
	for f, o := range d.state.leds {
		o.Subscribe(func(v LEDState) { d.emit(f, v) })
	}
	for f, o := range d.state.flags {
		o.Subscribe(func(v bool) { d.emit(f, v) })
	}
	for f, o := range d.state.times {
		o.Subscribe(func(v string) { d.emit(f, v) })
	}
	d.state.status.Subscribe(func(v ConnectionStatus) { d.emit(FieldStatus, v) })
}

// Key returns the device key.
func (d *Device) Key() string { return d.key }

// Name returns the device name.
func (d *Device) Name() string { return d.name }

// Start begins connection monitoring and opens the link.
func (d *Device) Start(ctx context.Context) error {
	d.lifeMu.Lock()
	defer d.lifeMu.Unlock()

	if d.stopped {
		return ErrQueueClosed
	}
	if d.started {
		return nil
	}

	d.monitor.Start(ctx)
	if err := d.source.Connect(ctx); err != nil {
		d.monitor.Stop()
		return fmt.Errorf("connecting %s: %w", d.key, err)
	}
	d.started = true

	d.logger.Info("limitimer device started", "device", d.key)
	return nil
}

// Stop closes the link, stops monitoring and drains the inbound queue.
// Lines still queued when ctx expires are dropped.
func (d *Device) Stop(ctx context.Context) error {
	d.lifeMu.Lock()
	defer d.lifeMu.Unlock()

	if d.stopped {
		return nil
	}
	d.stopped = true

	var errs []error
	if d.started {
		if err := d.source.Disconnect(); err != nil {
			errs = append(errs, fmt.Errorf("disconnect: %w", err))
		}
		d.monitor.Stop()
		d.started = false
	}
	if err := d.queue.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("draining queue: %w", err))
	}

	d.logger.Info("limitimer device stopped", "device", d.key,
		"dropped", d.queue.Stats().Dropped)
	return errors.Join(errs...)
}

// Connect opens the link without touching the monitor.
func (d *Device) Connect(ctx context.Context) error {
	return d.source.Connect(ctx)
}

// Disconnect closes the link. The monitor reports connecting until the link
// returns.
func (d *Device) Disconnect() error {
	return d.source.Disconnect()
}

// IsConnected reports whether the link is open.
func (d *Device) IsConnected() bool {
	return d.source.IsConnected()
}

// SendAction encodes a and writes it to the link.
func (d *Device) SendAction(ctx context.Context, a Action) error {
	data, err := Encode(a)
	if err == nil {
		err = d.send(ctx, data)
	}
	d.recordAction(ActionEvent{Action: a, Source: SourceFrom(ctx), Err: err})
	return err
}

// SendText writes text followed by the delimiter. Empty text is a no-op.
func (d *Device) SendText(ctx context.Context, text string) error {
	data := EncodeText(text)
	if data == nil {
		return nil
	}
	err := d.send(ctx, data)
	d.recordAction(ActionEvent{Text: text, Source: SourceFrom(ctx), Err: err})
	return err
}

func (d *Device) send(ctx context.Context, data []byte) error {
	if !d.source.IsConnected() {
		return ErrNotConnected
	}
	if err := d.source.Send(ctx, data); err != nil {
		return fmt.Errorf("sending to %s: %w", d.key, err)
	}
	return nil
}

func (d *Device) recordAction(ev ActionEvent) {
	ev.DeviceKey = d.key
	ev.Timestamp = d.clock.Now()

	if ev.Err != nil {
		d.actionsFailed.Add(1)
		d.logger.Warn("limitimer command failed", "device", d.key,
			"action", string(ev.Action), "error", ev.Err)
	} else {
		d.actionsSent.Add(1)
		d.logger.Debug("limitimer command sent", "device", d.key,
			"action", string(ev.Action))
	}

	d.subsMu.RLock()
	fn := d.onAction
	d.subsMu.RUnlock()
	if fn != nil {
		fn(ev)
	}
}

// Resync republishes every field to subscribers, flagged as a resync. It is
// queued behind any lines already received.
//
// The device also resyncs by itself whenever the status returns to online.
// Subscribers then see status and online twice: the live transition first,
// then the flagged copy from the resync pass.
func (d *Device) Resync() error {
	return d.queue.Do(d.publishAll)
}

// publishAll must run on the queue worker.
func (d *Device) publishAll() {
	d.resyncs.Add(1)
	d.resyncing = true
	d.state.publishAll()
	d.resyncing = false
}

// Snapshot returns the current value of every field.
func (d *Device) Snapshot() Snapshot {
	return d.state.Snapshot()
}

// State exposes the per-field observables for read access and direct
// subscriptions.
func (d *Device) State() *State {
	return d.state
}

// Now returns the time on the device clock, the same clock that stamps
// every Change.
func (d *Device) Now() time.Time {
	return d.clock.Now()
}

// Status returns the current connection status field.
func (d *Device) Status() ConnectionStatus {
	return d.state.status.Get()
}

// Subscribe registers fn for every field notification.
func (d *Device) Subscribe(fn func(Change)) {
	if fn == nil {
		return
	}
	d.subsMu.Lock()
	subs := make([]func(Change), len(d.subs), len(d.subs)+1)
	copy(subs, d.subs)
	d.subs = append(subs, fn)
	d.subsMu.Unlock()
}

// OnBeep registers fn to be called on every BEEP pulse.
func (d *Device) OnBeep(fn func()) {
	d.state.beep.Subscribe(fn)
}

// SetOnAction sets the hook called after every command attempt.
func (d *Device) SetOnAction(fn func(ActionEvent)) {
	d.subsMu.Lock()
	d.onAction = fn
	d.subsMu.Unlock()
}

// Stats returns current counters.
func (d *Device) Stats() Stats {
	return Stats{
		Decoder:       d.decoder.Stats(),
		Queue:         d.queue.Stats(),
		Status:        d.monitor.Status(),
		ActionsSent:   d.actionsSent.Load(),
		ActionsFailed: d.actionsFailed.Load(),
		Resyncs:       d.resyncs.Load(),
	}
}

func (d *Device) emit(f Field, v any) {
	ch := Change{
		DeviceKey: d.key,
		Field:     f,
		Name:      f.String(),
		Value:     v,
		Resync:    d.resyncing,
		Timestamp: d.clock.Now(),
	}

	d.subsMu.RLock()
	subs := d.subs
	d.subsMu.RUnlock()

	for _, fn := range subs {
		fn(ch)
	}
}

// handleReceived runs on the transport's receive goroutine.
func (d *Device) handleReceived(line string) {
	d.monitor.Activity()
	if err := d.queue.Enqueue(line); err != nil {
		d.logger.Debug("line discarded after shutdown", "device", d.key)
	}
}

func (d *Device) handleLine(line string) {
	d.decoder.Decode(line)
}

func (d *Device) handleConnectionChange(connected bool) {
	d.logger.Info("limitimer link changed", "device", d.key, "connected", connected)
	d.monitor.ConnectionChanged(connected)
}

// handleStatusChange moves the transition onto the worker. Jobs are queued
// in transition order, so every intermediate status is stored and published
// and a return to online always resyncs.
func (d *Device) handleStatusChange(prev, next ConnectionStatus) {
	d.logger.Info("limitimer status changed", "device", d.key,
		"from", prev.String(), "to", next.String())

	err := d.queue.Do(func() {
		wasOnline := d.state.flags[FieldOnline].Get()

		d.state.status.Set(next)
		d.state.flags[FieldOnline].Set(next.IsOnline())

		if next.IsOnline() && !wasOnline {
			d.publishAll()
		}
	})
	if err != nil {
		d.logger.Debug("status change after shutdown", "device", d.key, "status", next.String())
	}
}
