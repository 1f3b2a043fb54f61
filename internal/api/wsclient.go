package api

import (
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WSClient is one WebSocket connection.
type WSClient struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	done      chan struct{}
	closeOnce sync.Once

	// all starts true, is cleared by the first subscribe and is set again
	// only by subscribing to ChannelAll.
	mu            sync.RWMutex
	all           bool
	subscriptions map[string]struct{}
}

func newWSClient(hub *Hub, conn *websocket.Conn) *WSClient {
	return &WSClient{
		hub:           hub,
		conn:          conn,
		send:          make(chan []byte, wsSendBufferSize),
		done:          make(chan struct{}),
		all:           true,
		subscriptions: make(map[string]struct{}),
	}
}

func (c *WSClient) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// trySend queues data without blocking. It reports false when the client
// is gone or its buffer is full.
func (c *WSClient) trySend(data []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *WSClient) follows(channel string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.all {
		return true
	}
	_, ok := c.subscriptions[channel]
	return ok
}

func (c *WSClient) readPump() {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close()
	}()

	if limit := c.hub.cfg.MaxMessageSize; limit > 0 {
		c.conn.SetReadLimit(int64(limit))
	}
	ping, pong := c.hub.pingTimings()
	extend := func() error { return c.conn.SetReadDeadline(time.Now().Add(ping + pong)) }
	_ = extend()
	c.conn.SetPongHandler(func(string) error { return extend() })

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", "error", err)
			}
			return
		}
		_ = extend()
		c.handle(data)
	}
}

func (c *WSClient) writePump() {
	ping, pong := c.hub.pingTimings()
	ticker := time.NewTicker(ping)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	write := func(kind int, data []byte) error {
		_ = c.conn.SetWriteDeadline(time.Now().Add(pong))
		return c.conn.WriteMessage(kind, data)
	}

	for {
		select {
		case <-c.done:
			_ = write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
			return
		case data := <-c.send:
			if err := write(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			if err := write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *WSClient) handle(data []byte) {
	var msg struct {
		Type    string             `json:"type"`
		ID      string             `json:"id"`
		Payload WSSubscribePayload `json:"payload"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		c.reply("", WSTypeError, errorPayload("invalid JSON message"))
		return
	}

	switch msg.Type {
	case WSTypeSubscribe:
		c.subscribe(msg.ID, msg.Payload.Channels)
	case WSTypeUnsubscribe:
		c.unsubscribe(msg.ID, msg.Payload.Channels)
	case WSTypePing:
		c.reply(msg.ID, WSTypePong, nil)
	default:
		c.reply(msg.ID, WSTypeError, errorPayload("unknown message type: "+msg.Type))
	}
}

// subscribe follows channels. A request naming an unknown device key is
// rejected as a whole and changes nothing.
func (c *WSClient) subscribe(id string, channels []string) {
	var unknown []string
	for _, ch := range channels {
		if !c.hub.validChannel(ch) {
			unknown = append(unknown, ch)
		}
	}
	if len(unknown) > 0 {
		c.reply(id, WSTypeError, map[string]any{"message": "unknown device", "channels": unknown})
		return
	}

	c.mu.Lock()
	c.all = false
	for _, ch := range channels {
		if ch == ChannelAll {
			c.all = true
			continue
		}
		c.subscriptions[ch] = struct{}{}
	}
	c.mu.Unlock()

	c.reply(id, WSTypeResponse, map[string]any{"subscribed": channels, "following": c.following()})
}

func (c *WSClient) unsubscribe(id string, channels []string) {
	c.mu.Lock()
	for _, ch := range channels {
		if ch == ChannelAll {
			c.all = false
			continue
		}
		delete(c.subscriptions, ch)
	}
	c.mu.Unlock()
	c.reply(id, WSTypeResponse, map[string]any{"unsubscribed": channels, "following": c.following()})
}

// following lists the current subscriptions, with ChannelAll first when the
// client receives every device.
func (c *WSClient) following() []string {
	c.mu.RLock()
	out := make([]string, 0, len(c.subscriptions)+1)
	for ch := range c.subscriptions {
		out = append(out, ch)
	}
	all := c.all
	c.mu.RUnlock()
	sort.Strings(out)
	if all {
		out = append([]string{ChannelAll}, out...)
	}
	return out
}

func (c *WSClient) reply(id, msgType string, payload any) {
	data, err := json.Marshal(WSMessage{
		Type:      msgType,
		ID:        id,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Payload:   payload,
	})
	if err != nil {
		return
	}
	c.trySend(data)
}

func errorPayload(message string) map[string]string {
	return map[string]string{"message": message}
}
