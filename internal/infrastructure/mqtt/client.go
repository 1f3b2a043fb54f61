package mqtt

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/limitimer-bridge/internal/infrastructure/config"
)

// Client is the bridge's connection to the MQTT broker.
//
// Paho owns reconnection; the client keeps the subscription registry so
// every subscription is replayed after a reconnect, announces the bridge
// on {prefix}/status and counts traffic for health reporting.
//
// Thread Safety: All methods are safe for concurrent use.
type Client struct {
	paho    pahomqtt.Client
	options *pahomqtt.ClientOptions
	cfg     config.MQTTConfig
	topics  Topics
	subs    *registry

	connected atomic.Bool
	published atomic.Uint64
	failed    atomic.Uint64
	received  atomic.Uint64

	mu           sync.RWMutex
	onConnect    func()
	onDisconnect func(err error)
	logger       Logger
}

// Logger is the subset of logging.Logger the client uses.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

// MessageHandler receives one inbound message. Paho calls handlers from
// its own goroutine, so they must not block. A returned error is logged.
type MessageHandler func(topic string, payload []byte) error

// Stats is a point-in-time view of the client's traffic counters.
type Stats struct {
	Connected     bool   `json:"connected"`
	Published     uint64 `json:"published"`
	PublishFailed uint64 `json:"publish_failed"`
	Received      uint64 `json:"received"`
	Subscriptions int    `json:"subscriptions"`
}

// Connect dials the broker and returns once the session is up.
//
// The will on {prefix}/status reports an unexpected disconnect; a clean
// Close publishes a graceful offline status instead.
//
// Parameters:
//   - ctx: Bounds the initial connection together with the connect timeout
//   - cfg: MQTT section of the bridge configuration
//
// Returns:
//   - *Client: Connected client
//   - error: ErrConnectionFailed wrapping the cause
func Connect(ctx context.Context, cfg config.MQTTConfig) (*Client, error) {
	c := newClient(cfg)

	ctx, cancel := context.WithTimeout(ctx, defaultConnectTimeout)
	defer cancel()

	if err := await(ctx, c.paho.Connect()); err != nil {
		c.paho.Disconnect(0)
		return nil, fmt.Errorf("%w: %s:%d: %w", ErrConnectionFailed, cfg.Broker.Host, cfg.Broker.Port, err)
	}

	// The connect handler runs on a paho goroutine and may lag the token
	c.connected.Store(true)
	return c, nil
}

func newClient(cfg config.MQTTConfig) *Client {
	c := &Client{
		cfg:    cfg,
		topics: NewTopics(cfg.TopicPrefix),
		subs:   newRegistry(),
	}

	c.options = buildClientOptions(cfg)
	configureLWT(c.options, c.topics, cfg.Broker.ClientID)
	c.options.SetOnConnectHandler(func(pahomqtt.Client) { c.connectionUp() })
	c.options.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) { c.connectionLost(err) })

	c.paho = pahomqtt.NewClient(c.options)
	return c
}

// Topics returns the topic builder for the configured prefix.
func (c *Client) Topics() Topics {
	return c.topics
}

func (c *Client) connectionUp() {
	c.connected.Store(true)

	for _, s := range c.subs.all() {
		// Failures surface through the next connection loss
		c.paho.Subscribe(s.topic, s.qos, c.dispatch(s.handler))
	}
	c.paho.Publish(c.topics.Status(), byte(c.cfg.QoS), true,
		statusPayload(statusOnline, c.cfg.Broker.ClientID, "", time.Now()))

	c.mu.RLock()
	fn := c.onConnect
	c.mu.RUnlock()
	if fn != nil {
		fn()
	}
}

func (c *Client) connectionLost(err error) {
	c.connected.Store(false)

	c.mu.RLock()
	fn := c.onDisconnect
	c.mu.RUnlock()
	if fn != nil {
		fn(err)
	}
}

// Close announces a graceful shutdown on the status topic and disconnects.
// Closing a client that never connected is a no-op.
func (c *Client) Close() error {
	if c.paho == nil {
		return nil
	}

	if c.IsConnected() {
		payload := statusPayload(statusOffline, c.cfg.Broker.ClientID, reasonShutdown, time.Now())
		c.paho.Publish(c.topics.Status(), byte(c.cfg.QoS), true, payload).WaitTimeout(defaultPublishTimeout)
	}

	c.paho.Disconnect(defaultDisconnectQuiesce)
	c.connected.Store(false)
	return nil
}

// HealthCheck reports ErrNotConnected while the broker session is down.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mqtt health check: %w", err)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// IsConnected reports whether the broker session is currently up.
func (c *Client) IsConnected() bool {
	return c.connected.Load() && c.paho.IsConnected()
}

// Stats returns the traffic counters.
func (c *Client) Stats() Stats {
	return Stats{
		Connected:     c.IsConnected(),
		Published:     c.published.Load(),
		PublishFailed: c.failed.Load(),
		Received:      c.received.Load(),
		Subscriptions: c.subs.len(),
	}
}

// SetOnConnect registers fn to run after every (re)connect, once the
// subscriptions have been restored.
func (c *Client) SetOnConnect(fn func()) {
	c.mu.Lock()
	c.onConnect = fn
	c.mu.Unlock()
}

// SetOnDisconnect registers fn to run when the session drops.
func (c *Client) SetOnDisconnect(fn func(err error)) {
	c.mu.Lock()
	c.onDisconnect = fn
	c.mu.Unlock()
}

// SetLogger sets the logger for handler errors and panics.
func (c *Client) SetLogger(logger Logger) {
	c.mu.Lock()
	c.logger = logger
	c.mu.Unlock()
}

func (c *Client) log() Logger {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.logger
}

// dispatch adapts handler to paho, counting deliveries and containing panics.
func (c *Client) dispatch(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		c.received.Add(1)

		defer func() {
			if r := recover(); r != nil {
				if l := c.log(); l != nil {
					l.Error("mqtt handler panicked", "topic", msg.Topic(), "panic", r)
				}
			}
		}()

		if err := handler(msg.Topic(), msg.Payload()); err != nil {
			if l := c.log(); l != nil {
				l.Warn("mqtt handler failed", "topic", msg.Topic(), "error", err)
			}
		}
	}
}

// await blocks until token completes or ctx ends.
func await(ctx context.Context, token pahomqtt.Token) error {
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		if ctx.Err() == context.DeadlineExceeded {
			return ErrTimeout
		}
		return ctx.Err()
	}
}
