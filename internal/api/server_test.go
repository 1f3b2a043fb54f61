package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/limitimer-bridge/internal/infrastructure/config"
	"github.com/nerrad567/limitimer-bridge/internal/infrastructure/logging"
	"github.com/nerrad567/limitimer-bridge/internal/journal"
	"github.com/nerrad567/limitimer-bridge/internal/limitimer"
)

// fakeDevice implements Device for testing.
type fakeDevice struct {
	key       string
	mu        sync.Mutex
	status    limitimer.ConnectionStatus
	connected bool
	snapshot  limitimer.Snapshot
	sendErr   error
	resyncErr error
	actions   []limitimer.Action
	texts     []string
	sources   []string
	resyncs   int
	subs      []func(limitimer.Change)
	beeps     []func()
}

func newFakeDevice(key string, online bool) *fakeDevice {
	d := &fakeDevice{key: key, status: limitimer.StatusConnecting}
	if online {
		d.status = limitimer.StatusOnline
		d.connected = true
	}
	return d
}

func (d *fakeDevice) Key() string  { return d.key }
func (d *fakeDevice) Name() string { return strings.ToUpper(d.key) }

func (d *fakeDevice) Snapshot() limitimer.Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.snapshot
}

func (d *fakeDevice) Status() limitimer.ConnectionStatus {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.status
}

func (d *fakeDevice) Stats() limitimer.Stats {
	return limitimer.Stats{Status: d.Status(), ActionsSent: uint64(len(d.actions))}
}

func (d *fakeDevice) IsConnected() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.connected
}

func (d *fakeDevice) SendAction(ctx context.Context, a limitimer.Action) error {
	if _, err := limitimer.Encode(a); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.connected {
		return limitimer.ErrNotConnected
	}
	if d.sendErr != nil {
		return d.sendErr
	}
	d.actions = append(d.actions, a)
	d.sources = append(d.sources, limitimer.SourceFrom(ctx))
	return nil
}

func (d *fakeDevice) SendText(ctx context.Context, text string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.connected {
		return limitimer.ErrNotConnected
	}
	d.texts = append(d.texts, text)
	d.sources = append(d.sources, limitimer.SourceFrom(ctx))
	return nil
}

func (d *fakeDevice) Resync() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.resyncErr != nil {
		return d.resyncErr
	}
	d.resyncs++
	return nil
}

func (d *fakeDevice) Subscribe(fn func(limitimer.Change)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.subs = append(d.subs, fn)
}

func (d *fakeDevice) OnBeep(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.beeps = append(d.beeps, fn)
}

func (d *fakeDevice) emit(ch limitimer.Change) {
	d.mu.Lock()
	subs := d.subs
	d.mu.Unlock()
	for _, fn := range subs {
		fn(ch)
	}
}

func (d *fakeDevice) beep() {
	d.mu.Lock()
	beeps := d.beeps
	d.mu.Unlock()
	for _, fn := range beeps {
		fn()
	}
}

// fakeJournal implements JournalReader for testing.
type fakeJournal struct {
	last journal.Filter
	err  error
}

func (j *fakeJournal) List(_ context.Context, f journal.Filter) (*journal.ListResult, error) {
	j.last = f
	if j.err != nil {
		return nil, j.err
	}
	return &journal.ListResult{
		Entries: []journal.Entry{{ID: "jrn-1", DeviceKey: "stage-timer", Kind: journal.KindAction, Action: "clear"}},
		Total:   1,
		Limit:   50,
	}, nil
}

func testLogger() *logging.Logger {
	return logging.NewWithWriter(config.LoggingConfig{Level: "error", Format: "json"}, "test", io.Discard)
}

// testServer creates a Server with one online and one offline device.
func testServer(t *testing.T, j JournalReader) (*Server, *fakeDevice, *fakeDevice) {
	t.Helper()

	stage := newFakeDevice("stage-timer", true)
	stage.snapshot = limitimer.Snapshot{Program1LED: limitimer.LEDOn, RemainingTime: "04:59", Online: true, Status: limitimer.StatusOnline}
	green := newFakeDevice("green-room", false)

	deps := Deps{
		Config: config.APIConfig{
			Host:     "127.0.0.1",
			Port:     0,
			Timeouts: config.APITimeoutConfig{Read: 5, Write: 5, Idle: 5},
		},
		WS: config.WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logger:  testLogger(),
		Devices: []Device{stage, green},
		Version: "test",
	}
	if j != nil {
		deps.Journal = j
	}

	srv, err := New(deps)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return srv, stage, green
}

func do(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("decode body: %v", err)
	}
}

func TestNewRequiresDeps(t *testing.T) {
	if _, err := New(Deps{Devices: []Device{newFakeDevice("a", true)}}); err == nil {
		t.Error("New() without logger: want error")
	}
	if _, err := New(Deps{Logger: testLogger()}); err == nil {
		t.Error("New() without devices: want error")
	}
	dup := newFakeDevice("a", true)
	if _, err := New(Deps{Logger: testLogger(), Devices: []Device{dup, dup}}); err == nil {
		t.Error("New() with duplicate keys: want error")
	}
}

func TestHealth(t *testing.T) {
	srv, _, _ := testServer(t, nil)

	rec := do(t, srv, http.MethodGet, "/api/v1/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp HealthResponse
	decodeBody(t, rec, &resp)
	if resp.Status != "degraded" {
		t.Errorf("Status = %q, want degraded", resp.Status)
	}
	if resp.Devices["stage-timer"] != "online" || resp.Devices["green-room"] != "connecting" {
		t.Errorf("Devices = %v", resp.Devices)
	}
	if resp.Version != "test" {
		t.Errorf("Version = %q", resp.Version)
	}
}

func TestListDevices(t *testing.T) {
	srv, _, _ := testServer(t, nil)

	rec := do(t, srv, http.MethodGet, "/api/v1/devices", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp struct {
		Devices []DeviceSummary `json:"devices"`
		Count   int             `json:"count"`
	}
	decodeBody(t, rec, &resp)
	if resp.Count != 2 || resp.Devices[0].Key != "stage-timer" || resp.Devices[1].Key != "green-room" {
		t.Errorf("devices = %+v", resp)
	}
	if !resp.Devices[0].Online || resp.Devices[1].Connected {
		t.Errorf("device flags = %+v", resp.Devices)
	}
	if resp.Devices[0].Stats != nil {
		t.Error("list should omit stats")
	}
}

func TestGetDevice(t *testing.T) {
	srv, _, _ := testServer(t, nil)

	rec := do(t, srv, http.MethodGet, "/api/v1/devices/stage-timer", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var sum DeviceSummary
	decodeBody(t, rec, &sum)
	if sum.Name != "STAGE-TIMER" || sum.Stats == nil {
		t.Errorf("summary = %+v", sum)
	}

	if rec := do(t, srv, http.MethodGet, "/api/v1/devices/lobby", ""); rec.Code != http.StatusNotFound {
		t.Errorf("unknown device status = %d, want 404", rec.Code)
	}
}

func TestGetDeviceState(t *testing.T) {
	srv, _, _ := testServer(t, nil)

	rec := do(t, srv, http.MethodGet, "/api/v1/devices/stage-timer/state", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var state map[string]any
	decodeBody(t, rec, &state)
	if state["program1LedState"] != "on" || state["remainingTime"] != "04:59" || state["status"] != "online" {
		t.Errorf("state = %v", state)
	}
}

func TestDeviceAction(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		setup    func(d *fakeDevice)
		wantCode int
		wantSent bool
	}{
		{"accepted", "/api/v1/devices/stage-timer/actions/startStop", nil, http.StatusAccepted, true},
		{"unknown device", "/api/v1/devices/lobby/actions/startStop", nil, http.StatusNotFound, false},
		{"unknown action", "/api/v1/devices/stage-timer/actions/explode", nil, http.StatusNotFound, false},
		{"unsupported action", "/api/v1/devices/stage-timer/actions/beep1", nil, http.StatusNotImplemented, false},
		{"not connected", "/api/v1/devices/green-room/actions/beep", nil, http.StatusServiceUnavailable, false},
		{"write failure", "/api/v1/devices/stage-timer/actions/clear", func(d *fakeDevice) { d.sendErr = errors.New("broken pipe") }, http.StatusBadGateway, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, stage, _ := testServer(t, nil)
			if tt.setup != nil {
				tt.setup(stage)
			}

			rec := do(t, srv, http.MethodPost, tt.path, "")
			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.wantCode, rec.Body)
			}
			if got := len(stage.actions) > 0; got != tt.wantSent {
				t.Errorf("sent = %v, want %v", stage.actions, tt.wantSent)
			}
			if tt.wantSent {
				var resp ActionResponse
				decodeBody(t, rec, &resp)
				if resp.Status != "accepted" || resp.Action != "startStop" || resp.RequestID == "" {
					t.Errorf("response = %+v", resp)
				}
				if stage.sources[0] != "api" {
					t.Errorf("source = %q, want api", stage.sources[0])
				}
			}
		})
	}
}

func TestDeviceText(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		body     string
		wantCode int
	}{
		{"accepted", "/api/v1/devices/stage-timer/text", `{"text":"TTSTR=05:00"}`, http.StatusAccepted},
		{"invalid json", "/api/v1/devices/stage-timer/text", `{`, http.StatusBadRequest},
		{"empty text", "/api/v1/devices/stage-timer/text", `{"text":"  "}`, http.StatusBadRequest},
		{"delimiter in text", "/api/v1/devices/stage-timer/text", `{"text":"STOP\rCLR"}`, http.StatusBadRequest},
		{"not connected", "/api/v1/devices/green-room/text", `{"text":"STOP"}`, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, stage, _ := testServer(t, nil)
			rec := do(t, srv, http.MethodPost, tt.path, tt.body)
			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.wantCode, rec.Body)
			}
			if tt.wantCode == http.StatusAccepted && (len(stage.texts) != 1 || stage.texts[0] != "TTSTR=05:00") {
				t.Errorf("texts = %q", stage.texts)
			}
		})
	}
}

func TestDeviceResync(t *testing.T) {
	srv, stage, _ := testServer(t, nil)

	if rec := do(t, srv, http.MethodPost, "/api/v1/devices/stage-timer/resync", ""); rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rec.Code)
	}
	if stage.resyncs != 1 {
		t.Errorf("resyncs = %d, want 1", stage.resyncs)
	}

	stage.resyncErr = limitimer.ErrQueueClosed
	if rec := do(t, srv, http.MethodPost, "/api/v1/devices/stage-timer/resync", ""); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status after shutdown = %d, want 503", rec.Code)
	}
}

func TestJournal(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		srv, _, _ := testServer(t, nil)
		if rec := do(t, srv, http.MethodGet, "/api/v1/journal", ""); rec.Code != http.StatusServiceUnavailable {
			t.Errorf("status = %d, want 503", rec.Code)
		}
	})

	t.Run("filters", func(t *testing.T) {
		j := &fakeJournal{}
		srv, _, _ := testServer(t, j)

		rec := do(t, srv, http.MethodGet, "/api/v1/journal?device=stage-timer&kind=action&limit=10&offset=20", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		want := journal.Filter{DeviceKey: "stage-timer", Kind: journal.KindAction, Limit: 10, Offset: 20}
		if j.last != want {
			t.Errorf("filter = %+v, want %+v", j.last, want)
		}
		var res journal.ListResult
		decodeBody(t, rec, &res)
		if res.Total != 1 || res.Entries[0].ID != "jrn-1" {
			t.Errorf("result = %+v", res)
		}
	})

	t.Run("bad params", func(t *testing.T) {
		srv, _, _ := testServer(t, &fakeJournal{})
		for _, q := range []string{"kind=state", "limit=abc", "offset=-1"} {
			if rec := do(t, srv, http.MethodGet, "/api/v1/journal?"+q, ""); rec.Code != http.StatusBadRequest {
				t.Errorf("%s: status = %d, want 400", q, rec.Code)
			}
		}
	})

	t.Run("query error", func(t *testing.T) {
		srv, _, _ := testServer(t, &fakeJournal{err: errors.New("disk I/O error")})
		if rec := do(t, srv, http.MethodGet, "/api/v1/journal", ""); rec.Code != http.StatusInternalServerError {
			t.Errorf("status = %d, want 500", rec.Code)
		}
	})
}

func TestRequestID(t *testing.T) {
	srv, _, _ := testServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("X-Request-ID", "req-123")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-ID"); got != "req-123" {
		t.Errorf("X-Request-ID = %q, want req-123", got)
	}

	rec = do(t, srv, http.MethodGet, "/api/v1/health", "")
	if got := rec.Header().Get("X-Request-ID"); len(got) != 36 {
		t.Errorf("generated X-Request-ID = %q, want a UUID", got)
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	srv, _, _ := testServer(t, nil)

	h := srv.recoveryMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
	var e Error
	decodeBody(t, rec, &e)
	if e.Code != ErrCodeInternal {
		t.Errorf("code = %q, want %q", e.Code, ErrCodeInternal)
	}
}

func TestStartAndClose(t *testing.T) {
	srv, _, _ := testServer(t, nil)

	if err := srv.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck() before Start: want error")
	}
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := srv.Start(context.Background()); err == nil {
		t.Error("second Start(): want error")
	}

	resp, err := http.Get("http://" + srv.Addr() + "/api/v1/health")
	if err != nil {
		t.Fatalf("GET health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	if err := srv.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}

	if err := srv.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

// dialWS connects a WebSocket client and waits until the hub has it.
func dialWS(t *testing.T, srv *Server) *websocket.Conn {
	t.Helper()
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	conn, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })

	deadline := time.Now().Add(2 * time.Second)
	for srv.Hub().ClientCount() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}
	return conn
}

func readWS(t *testing.T, conn *websocket.Conn) WSMessage {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg WSMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	return msg
}

func TestWebSocketStreamsChanges(t *testing.T) {
	srv, stage, _ := testServer(t, nil)
	conn := dialWS(t, srv)

	stage.emit(limitimer.Change{
		DeviceKey: "stage-timer",
		Field:     limitimer.FieldProgram1LED,
		Name:      "program1LedState",
		Value:     limitimer.LEDOn,
	})

	msg := readWS(t, conn)
	if msg.Type != WSTypeEvent || msg.Channel != "stage-timer" || msg.EventType != EventFieldChanged {
		t.Fatalf("message = %+v", msg)
	}
	payload, _ := msg.Payload.(map[string]any)
	if payload["field"] != "program1LedState" || payload["value"] != "on" {
		t.Errorf("payload = %v", msg.Payload)
	}

	stage.beep()
	if msg := readWS(t, conn); msg.EventType != EventBeep {
		t.Errorf("event type = %q, want %q", msg.EventType, EventBeep)
	}
}

func TestWebSocketSubscriptions(t *testing.T) {
	srv, stage, green := testServer(t, nil)
	conn := dialWS(t, srv)

	if err := conn.WriteJSON(WSMessage{Type: WSTypeSubscribe, ID: "1", Payload: WSSubscribePayload{Channels: []string{"green-room"}}}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if resp := readWS(t, conn); resp.Type != WSTypeResponse || resp.ID != "1" {
		t.Fatalf("subscribe response = %+v", resp)
	}

	// stage-timer is filtered out, so the next event read is green-room's
	stage.emit(limitimer.Change{DeviceKey: "stage-timer", Name: "online", Value: true})
	green.emit(limitimer.Change{DeviceKey: "green-room", Name: "online", Value: true})

	if msg := readWS(t, conn); msg.Channel != "green-room" {
		t.Errorf("channel = %q, want green-room", msg.Channel)
	}
}

func TestWebSocketPingAndErrors(t *testing.T) {
	srv, _, _ := testServer(t, nil)
	conn := dialWS(t, srv)

	if err := conn.WriteJSON(WSMessage{Type: WSTypePing, ID: "p1"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if msg := readWS(t, conn); msg.Type != WSTypePong || msg.ID != "p1" {
		t.Errorf("ping reply = %+v", msg)
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte("not json")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if msg := readWS(t, conn); msg.Type != WSTypeError {
		t.Errorf("reply to garbage = %+v, want error", msg)
	}

	if err := conn.WriteJSON(WSMessage{Type: "launch", ID: "x"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if msg := readWS(t, conn); msg.Type != WSTypeError || msg.ID != "x" {
		t.Errorf("reply to unknown type = %+v, want error", msg)
	}
}

func TestHubUnregisterIsIdempotent(t *testing.T) {
	hub := NewHub(config.WebSocketConfig{}, testLogger())
	c := newWSClient(hub, nil)

	hub.Register(c)
	hub.Unregister(c)
	hub.Unregister(c)

	if hub.ClientCount() != 0 {
		t.Errorf("ClientCount() = %d, want 0", hub.ClientCount())
	}
	if c.trySend([]byte("x")) {
		t.Error("trySend() to an unregistered client = true")
	}
}

func TestHubCountsDroppedEvents(t *testing.T) {
	hub := NewHub(config.WebSocketConfig{}, testLogger())
	c := newWSClient(hub, nil)
	hub.Register(c)

	for range wsSendBufferSize + 3 {
		hub.Broadcast("stage-timer", EventBeep, nil)
	}

	if got := hub.Dropped(); got != 3 {
		t.Errorf("Dropped() = %d, want 3", got)
	}
	if got := len(c.send); got != wsSendBufferSize {
		t.Errorf("queued = %d, want %d", got, wsSendBufferSize)
	}
}

func TestWebSocketRejectsUnknownDevice(t *testing.T) {
	srv, stage, _ := testServer(t, nil)
	conn := dialWS(t, srv)

	req := WSMessage{Type: WSTypeSubscribe, ID: "s1", Payload: WSSubscribePayload{Channels: []string{"lobby", "green-room"}}}
	if err := conn.WriteJSON(req); err != nil {
		t.Fatalf("write: %v", err)
	}

	msg := readWS(t, conn)
	if msg.Type != WSTypeError || msg.ID != "s1" {
		t.Fatalf("reply = %+v, want error for lobby", msg)
	}
	payload, _ := msg.Payload.(map[string]any)
	channels, _ := payload["channels"].([]any)
	if len(channels) != 1 || channels[0] != "lobby" {
		t.Errorf("channels = %v, want [lobby]", payload["channels"])
	}

	// The rejected request left the client following every device.
	stage.emit(limitimer.Change{DeviceKey: "stage-timer", Name: "online", Value: true})
	if msg := readWS(t, conn); msg.Channel != "stage-timer" {
		t.Errorf("channel = %q, want stage-timer", msg.Channel)
	}
}

// sendWS writes req and returns the next reply.
func sendWS(t *testing.T, conn *websocket.Conn, req WSMessage) WSMessage {
	t.Helper()
	if err := conn.WriteJSON(req); err != nil {
		t.Fatalf("write: %v", err)
	}
	return readWS(t, conn)
}

func TestWebSocketUnsubscribeFromLastDevice(t *testing.T) {
	srv, stage, green := testServer(t, nil)
	conn := dialWS(t, srv)

	only := WSSubscribePayload{Channels: []string{"green-room"}}
	if resp := sendWS(t, conn, WSMessage{Type: WSTypeSubscribe, ID: "s1", Payload: only}); resp.Type != WSTypeResponse {
		t.Fatalf("subscribe reply = %+v", resp)
	}
	resp := sendWS(t, conn, WSMessage{Type: WSTypeUnsubscribe, ID: "u1", Payload: only})
	payload, _ := resp.Payload.(map[string]any)
	if following, _ := payload["following"].([]any); len(following) != 0 {
		t.Errorf("following = %v, want none", payload["following"])
	}

	stage.emit(limitimer.Change{DeviceKey: "stage-timer", Name: "online", Value: true})
	green.emit(limitimer.Change{DeviceKey: "green-room", Name: "online", Value: true})

	if msg := sendWS(t, conn, WSMessage{Type: WSTypePing, ID: "p1"}); msg.Type != WSTypePong {
		t.Errorf("next message = %+v, want pong with no events before it", msg)
	}
}

func TestWebSocketSubscribeAllAgain(t *testing.T) {
	srv, stage, _ := testServer(t, nil)
	conn := dialWS(t, srv)

	sendWS(t, conn, WSMessage{Type: WSTypeSubscribe, ID: "s1", Payload: WSSubscribePayload{Channels: []string{"green-room"}}})
	resp := sendWS(t, conn, WSMessage{Type: WSTypeSubscribe, ID: "s2", Payload: WSSubscribePayload{Channels: []string{ChannelAll}}})

	payload, _ := resp.Payload.(map[string]any)
	following, _ := payload["following"].([]any)
	if len(following) != 2 || following[0] != ChannelAll || following[1] != "green-room" {
		t.Errorf("following = %v, want [* green-room]", payload["following"])
	}

	stage.emit(limitimer.Change{DeviceKey: "stage-timer", Name: "online", Value: true})
	if msg := readWS(t, conn); msg.Channel != "stage-timer" {
		t.Errorf("channel = %q, want stage-timer", msg.Channel)
	}
}

func TestWSClientFollows(t *testing.T) {
	c := newWSClient(NewHub(config.WebSocketConfig{}, testLogger()), nil)

	if !c.follows("stage-timer") {
		t.Error("new client does not follow every device")
	}
	c.subscribe("", []string{"green-room"})
	if c.follows("stage-timer") || !c.follows("green-room") {
		t.Error("after subscribe: want green-room only")
	}
	c.unsubscribe("", []string{"green-room"})
	if c.follows("stage-timer") || c.follows("green-room") {
		t.Error("after unsubscribing the last device: want nothing")
	}
}

func TestPanelMountedOutsideAPI(t *testing.T) {
	panel := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "panel")
	})
	srv, err := New(Deps{
		Logger:  testLogger(),
		Devices: []Device{newFakeDevice("stage-timer", true)},
		WS:      config.WebSocketConfig{Path: "/ws"},
		Panel:   panel,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	for _, path := range []string{"/", "/devices/stage-timer", "/app.js"} {
		rec := do(t, srv, http.MethodGet, path, "")
		if rec.Body.String() != "panel" {
			t.Errorf("GET %s body = %q, want panel", path, rec.Body.String())
		}
	}

	rec := do(t, srv, http.MethodGet, "/api/v1/health", "")
	if rec.Code != http.StatusOK || strings.Contains(rec.Body.String(), "panel") {
		t.Errorf("GET /api/v1/health = %d %q, want the API", rec.Code, rec.Body.String())
	}
}
