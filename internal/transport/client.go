package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.bug.st/serial"
)

// Default timeouts and intervals.
const (
	// defaultConnectTimeout is the maximum time for a single dial or open.
	defaultConnectTimeout = 10 * time.Second

	// defaultWriteTimeout bounds a single write on sockets.
	defaultWriteTimeout = 5 * time.Second

	// defaultReconnectInterval is the initial delay between reconnection attempts.
	defaultReconnectInterval = 2 * time.Second

	// defaultMaxReconnectInterval caps the reconnection backoff.
	defaultMaxReconnectInterval = time.Minute

	// waitPollInterval is how often WaitConnected re-checks the link.
	waitPollInterval = 50 * time.Millisecond
)

// Config holds link settings.
type Config struct {
	// URL selects the link, see ParseURL.
	URL string

	// ConnectTimeout bounds each dial. Default: 10 seconds.
	ConnectTimeout time.Duration

	// WriteTimeout bounds each socket write. Default: 5 seconds.
	WriteTimeout time.Duration

	// ReconnectInterval is the first backoff delay. Default: 2 seconds.
	ReconnectInterval time.Duration

	// MaxReconnectInterval caps the backoff. Default: 1 minute.
	MaxReconnectInterval time.Duration

	// MaxLineLength bounds inbound lines. Default: 256 bytes.
	MaxLineLength int
}

func (c *Config) applyDefaults() {
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = defaultConnectTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = defaultWriteTimeout
	}
	if c.ReconnectInterval <= 0 {
		c.ReconnectInterval = defaultReconnectInterval
	}
	if c.MaxReconnectInterval < c.ReconnectInterval {
		c.MaxReconnectInterval = max(defaultMaxReconnectInterval, c.ReconnectInterval)
	}
	if c.MaxLineLength <= 0 {
		c.MaxLineLength = DefaultMaxLineLength
	}
}

// Stats holds operational statistics.
type Stats struct {
	LinesRx         uint64    `json:"lines_rx"`
	LinesDropped    uint64    `json:"lines_dropped"`
	WritesTx        uint64    `json:"writes_tx"`
	BytesTx         uint64    `json:"bytes_tx"`
	ErrorsTotal     uint64    `json:"errors_total"`
	ReconnectsTotal uint64    `json:"reconnects_total"`
	LastActivity    time.Time `json:"last_activity"`
	Connected       bool      `json:"connected"`
	Reconnecting    bool      `json:"reconnecting"`
}

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Dialer opens a link to an endpoint.
type Dialer func(ctx context.Context, ep Endpoint) (io.ReadWriteCloser, error)

// Client is a self-healing line link.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - Callbacks are invoked on the receive goroutine.
//
// Auto-Reconnection:
//   - After Connect the client keeps the link open until Disconnect.
//   - Failed dials and dropped links are retried with exponential backoff
//     from ReconnectInterval up to MaxReconnectInterval.
type Client struct {
	cfg      Config
	endpoint Endpoint
	dial     Dialer

	// Connection state
	connMu    sync.RWMutex
	conn      io.ReadWriteCloser
	connected bool

	writeMu sync.Mutex

	// Lifecycle
	lifeMu  sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	closed  bool

	reconnecting atomic.Bool

	// Callbacks
	callbackMu sync.RWMutex
	onLine     func(string)
	onConn     func(bool)

	// Logger (optional)
	logger   Logger
	loggerMu sync.RWMutex

	// Statistics
	linesRx         atomic.Uint64
	linesDropped    atomic.Uint64
	writesTx        atomic.Uint64
	bytesTx         atomic.Uint64
	errorsTotal     atomic.Uint64
	reconnectsTotal atomic.Uint64
	lastActivity    atomic.Int64
}

// New validates cfg and returns a disconnected client.
func New(cfg Config) (*Client, error) {
	ep, err := ParseURL(cfg.URL)
	if err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	return &Client{
		cfg:      cfg,
		endpoint: ep,
		dial:     DefaultDialer,
	}, nil
}

// SetDialer replaces the dialer. Must be called before Connect.
func (c *Client) SetDialer(d Dialer) {
	c.lifeMu.Lock()
	c.dial = d
	c.lifeMu.Unlock()
}

// Endpoint returns the parsed connection target.
func (c *Client) Endpoint() Endpoint {
	return c.endpoint
}

// DefaultDialer opens TCP sockets with net.Dialer and serial ports with
// go.bug.st/serial.
func DefaultDialer(ctx context.Context, ep Endpoint) (io.ReadWriteCloser, error) {
	switch ep.Scheme {
	case SchemeTCP:
		var d net.Dialer
		conn, err := d.DialContext(ctx, "tcp", ep.Address)
		if err != nil {
			return nil, fmt.Errorf("dial %s: %w", ep.Address, err)
		}
		return conn, nil
	case SchemeSerial:
		port, err := serial.Open(ep.Address, ep.Mode)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", ep.Address, err)
		}
		return port, nil
	default:
		return nil, fmt.Errorf("%w: scheme %q", ErrInvalidURL, ep.Scheme)
	}
}

// Connect starts the connection manager and returns without waiting for the
// link. Use WaitConnected to block until it is up. Calling Connect while
// running is a no-op.
func (c *Client) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.lifeMu.Lock()
	defer c.lifeMu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if c.running {
		return nil
	}

	// The manager outlives the caller's context; Disconnect stops it.
	runCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.running = true

	c.wg.Add(1)
	go c.manage(runCtx, c.dial)

	c.logInfo("link manager started", "endpoint", c.endpoint.String())
	return nil
}

// Disconnect closes the link and stops reconnecting. The connection
// callback has fired by the time Disconnect returns.
func (c *Client) Disconnect() error {
	c.lifeMu.Lock()
	defer c.lifeMu.Unlock()

	if !c.running {
		return nil
	}
	c.running = false
	c.cancel()
	c.closeConn()
	c.wg.Wait()

	c.logInfo("link closed", "endpoint", c.endpoint.String())
	return nil
}

// Close disconnects and prevents further use.
func (c *Client) Close() error {
	err := c.Disconnect()
	c.lifeMu.Lock()
	c.closed = true
	c.lifeMu.Unlock()
	return err
}

// WaitConnected blocks until the link is up or ctx is done.
func (c *Client) WaitConnected(ctx context.Context) error {
	ticker := time.NewTicker(waitPollInterval)
	defer ticker.Stop()

	for !c.IsConnected() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

// manage dials, reads until the link drops, and redials with backoff.
func (c *Client) manage(ctx context.Context, dial Dialer) {
	defer c.wg.Done()

	backoff := c.cfg.ReconnectInterval
	first := true

	for {
		if ctx.Err() != nil {
			return
		}

		if !first {
			c.reconnecting.Store(true)
		}
		conn, err := c.dialOnce(ctx, dial)
		if err != nil {
			if ctx.Err() != nil {
				c.reconnecting.Store(false)
				return
			}
			c.errorsTotal.Add(1)
			c.logError("connect failed", err, "endpoint", c.endpoint.String(), "retry_in", backoff.String())
			if !c.sleep(ctx, backoff) {
				c.reconnecting.Store(false)
				return
			}
			backoff = c.nextBackoff(backoff)
			first = false
			continue
		}

		if !first {
			c.reconnectsTotal.Add(1)
		}
		c.reconnecting.Store(false)
		backoff = c.cfg.ReconnectInterval
		first = false

		if !c.setConn(ctx, conn) {
			return
		}
		c.logInfo("link connected", "endpoint", c.endpoint.String())
		c.fireConnectionChange(true)

		c.readLoop(conn)

		c.closeConn()
		c.fireConnectionChange(false)

		if ctx.Err() != nil {
			return
		}
		c.logWarn("link lost, reconnecting", "endpoint", c.endpoint.String())
		if !c.sleep(ctx, backoff) {
			return
		}
	}
}

func (c *Client) dialOnce(ctx context.Context, dial Dialer) (io.ReadWriteCloser, error) {
	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.ConnectTimeout)
	defer cancel()

	conn, err := dial(dialCtx, c.endpoint)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	return conn, nil
}

func (c *Client) nextBackoff(cur time.Duration) time.Duration {
	next := time.Duration(float64(cur) * 1.5)
	if next > c.cfg.MaxReconnectInterval {
		next = c.cfg.MaxReconnectInterval
	}
	return next
}

// sleep waits d and reports false if ctx ended first.
func (c *Client) sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// readLoop delivers lines until the connection fails or is closed.
func (c *Client) readLoop(conn io.Reader) {
	scanner := newLineScanner(conn, c.cfg.MaxLineLength, func() {
		c.linesDropped.Add(1)
		c.logWarn("discarding over-long line", "max", c.cfg.MaxLineLength)
	})

	for scanner.Scan() {
		c.linesRx.Add(1)
		c.lastActivity.Store(time.Now().Unix())
		c.deliverLine(scanner.Text())
	}

	if err := scanner.Err(); err != nil && !isClosedErr(err) {
		c.errorsTotal.Add(1)
		c.logError("read failed", err)
	}
}

func isClosedErr(err error) bool {
	if errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) {
		return true
	}
	var portErr *serial.PortError
	if errors.As(err, &portErr) && portErr.Code() == serial.PortClosed {
		return true
	}
	return false
}

func (c *Client) deliverLine(line string) {
	c.callbackMu.RLock()
	fn := c.onLine
	c.callbackMu.RUnlock()
	if fn == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			c.logError("line callback panic", fmt.Errorf("%v", r))
		}
	}()
	fn(line)
}

func (c *Client) fireConnectionChange(connected bool) {
	c.callbackMu.RLock()
	fn := c.onConn
	c.callbackMu.RUnlock()
	if fn == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			c.logError("connection callback panic", fmt.Errorf("%v", r))
		}
	}()
	fn(connected)
}

// setConn installs conn unless Disconnect has already begun, in which case
// conn is closed and false returned.
func (c *Client) setConn(ctx context.Context, conn io.ReadWriteCloser) bool {
	c.connMu.Lock()
	if ctx.Err() != nil {
		c.connMu.Unlock()
		conn.Close()
		return false
	}
	c.conn = conn
	c.connected = true
	c.connMu.Unlock()
	c.lastActivity.Store(time.Now().Unix())
	return true
}

// closeConn closes the current connection if any.
func (c *Client) closeConn() {
	c.connMu.Lock()
	conn := c.conn
	c.conn = nil
	c.connected = false
	c.connMu.Unlock()

	if conn != nil {
		conn.Close()
	}
}

// Send writes data to the link.
//
// Parameters:
//   - ctx: Context for cancellation
//   - data: Bytes to write, already delimited
//
// Returns:
//   - error: ErrNotConnected, or ErrWriteFailed wrapping the cause
func (c *Client) Send(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}

	c.connMu.RLock()
	conn := c.conn
	c.connMu.RUnlock()
	if conn == nil {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if nc, ok := conn.(net.Conn); ok {
		deadline := time.Now().Add(c.cfg.WriteTimeout)
		if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
			deadline = d
		}
		if err := nc.SetWriteDeadline(deadline); err != nil {
			return fmt.Errorf("%w: set deadline: %w", ErrWriteFailed, err)
		}
	}

	n, err := conn.Write(data)
	if err != nil {
		c.errorsTotal.Add(1)
		return fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}

	c.writesTx.Add(1)
	c.bytesTx.Add(uint64(n))
	c.lastActivity.Store(time.Now().Unix())
	return nil
}

// SetOnLine sets the callback for received lines. Lines exclude the
// delimiter.
func (c *Client) SetOnLine(fn func(line string)) {
	c.callbackMu.Lock()
	c.onLine = fn
	c.callbackMu.Unlock()
}

// SetOnConnectionChange sets the callback for link up/down transitions.
func (c *Client) SetOnConnectionChange(fn func(connected bool)) {
	c.callbackMu.Lock()
	c.onConn = fn
	c.callbackMu.Unlock()
}

// SetLogger sets the logger for this client.
func (c *Client) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

// IsConnected returns true while the link is open.
func (c *Client) IsConnected() bool {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.connected
}

// Stats returns current operational statistics.
func (c *Client) Stats() Stats {
	return Stats{
		LinesRx:         c.linesRx.Load(),
		LinesDropped:    c.linesDropped.Load(),
		WritesTx:        c.writesTx.Load(),
		BytesTx:         c.bytesTx.Load(),
		ErrorsTotal:     c.errorsTotal.Load(),
		ReconnectsTotal: c.reconnectsTotal.Load(),
		LastActivity:    time.Unix(c.lastActivity.Load(), 0),
		Connected:       c.IsConnected(),
		Reconnecting:    c.reconnecting.Load(),
	}
}

func (c *Client) getLogger() Logger {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	return c.logger
}

func (c *Client) logInfo(msg string, keysAndValues ...any) {
	if l := c.getLogger(); l != nil {
		l.Info(msg, keysAndValues...)
	}
}

func (c *Client) logWarn(msg string, keysAndValues ...any) {
	if l := c.getLogger(); l != nil {
		l.Warn(msg, keysAndValues...)
	}
}

func (c *Client) logError(msg string, err error, keysAndValues ...any) {
	if l := c.getLogger(); l != nil {
		l.Error(msg, append([]any{"error", err}, keysAndValues...)...)
	}
}
