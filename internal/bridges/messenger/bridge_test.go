package messenger

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/nerrad567/limitimer-bridge/internal/limitimer"
	"github.com/nerrad567/limitimer-bridge/internal/limitimer/limitimertest"
)

// MockMQTTClient implements MQTTClient for testing.
type MockMQTTClient struct {
	mu            sync.Mutex
	published     []mockPublish
	subscriptions []string
	connected     bool
	handler       func(topic string, payload []byte)
	publishErr    error
}

type mockPublish struct {
	Topic    string
	Payload  []byte
	QoS      byte
	Retained bool
}

func NewMockMQTTClient() *MockMQTTClient {
	return &MockMQTTClient{connected: true}
}

func (m *MockMQTTClient) Publish(topic string, payload []byte, qos byte, retained bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.publishErr != nil {
		return m.publishErr
	}
	m.published = append(m.published, mockPublish{
		Topic:    topic,
		Payload:  payload,
		QoS:      qos,
		Retained: retained,
	})
	return nil
}

func (m *MockMQTTClient) Subscribe(topic string, _ byte, handler func(topic string, payload []byte)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscriptions = append(m.subscriptions, topic)
	m.handler = handler
	return nil
}

func (m *MockMQTTClient) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

// Deliver simulates a broker message on topic.
func (m *MockMQTTClient) Deliver(topic string, payload []byte) {
	m.mu.Lock()
	h := m.handler
	m.mu.Unlock()
	if h != nil {
		h(topic, payload)
	}
}

// On returns every publish to topic.
func (m *MockMQTTClient) On(topic string) []mockPublish {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []mockPublish
	for _, p := range m.published {
		if p.Topic == topic {
			out = append(out, p)
		}
	}
	return out
}

func (m *MockMQTTClient) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = nil
}

func waitUntil(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// newTestDevice returns a device on its own fake clock. When start is true
// the device is started and online before returning.
func newTestDevice(t *testing.T, key string, start bool) (*limitimer.Device, *limitimertest.Source) {
	t.Helper()
	src := limitimertest.NewSource()
	d, err := limitimer.New(limitimer.Options{
		Key:    key,
		Config: limitimer.DefaultConfig(),
		Source: src,
		Clock:  clockwork.NewFakeClock(),
	})
	if err != nil {
		t.Fatalf("limitimer.New() error = %v", err)
	}
	t.Cleanup(func() { _ = d.Stop(context.Background()) })

	if start {
		if err := d.Start(context.Background()); err != nil {
			t.Fatalf("Start() error = %v", err)
		}
		waitUntil(t, key+" online", func() bool { return d.Status() == limitimer.StatusOnline })
	}
	return d, src
}

type fixture struct {
	bridge *Bridge
	mqtt   *MockMQTTClient
	clock  *clockwork.FakeClock
	device *limitimer.Device
	source *limitimertest.Source
	idle   *limitimer.Device
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dev, src := newTestDevice(t, "stage-timer", true)
	idle, _ := newTestDevice(t, "green-room", false)

	f := &fixture{
		mqtt:   NewMockMQTTClient(),
		clock:  clockwork.NewFakeClock(),
		device: dev,
		source: src,
		idle:   idle,
	}
	b, err := NewBridge(BridgeOptions{
		MQTTClient: f.mqtt,
		Devices: []DeviceBinding{
			{Device: dev},
			{Device: idle},
		},
		TopicPrefix: "studio/limitimer",
		QoS:         1,
		Version:     "test",
		Clock:       f.clock,
	})
	if err != nil {
		t.Fatalf("NewBridge() error = %v", err)
	}
	f.bridge = b
	return f
}

func (f *fixture) start(t *testing.T) {
	t.Helper()
	if err := f.bridge.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(f.bridge.Stop)
}

func decodeState(t *testing.T, p mockPublish) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(p.Payload, &m); err != nil {
		t.Fatalf("state payload %s: %v", p.Payload, err)
	}
	return m
}

func decodeAck(t *testing.T, p mockPublish) AckMessage {
	t.Helper()
	var ack AckMessage
	if err := json.Unmarshal(p.Payload, &ack); err != nil {
		t.Fatalf("ack payload %s: %v", p.Payload, err)
	}
	return ack
}

func TestNewBridgeValidation(t *testing.T) {
	dev, _ := newTestDevice(t, "stage-timer", false)
	mq := NewMockMQTTClient()

	tests := []struct {
		name string
		opts BridgeOptions
		want error
	}{
		{"missing mqtt", BridgeOptions{Devices: []DeviceBinding{{Device: dev}}}, nil},
		{"no devices", BridgeOptions{MQTTClient: mq}, ErrNoDevices},
		{"duplicate", BridgeOptions{MQTTClient: mq, Devices: []DeviceBinding{{Device: dev}, {Device: dev}}}, ErrDuplicateDevice},
		{"nil device", BridgeOptions{MQTTClient: mq, Devices: []DeviceBinding{{}}}, nil},
		{"bad qos", BridgeOptions{MQTTClient: mq, Devices: []DeviceBinding{{Device: dev}}, QoS: 3}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewBridge(tt.opts)
			if err == nil {
				t.Fatal("NewBridge() error = nil, want error")
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Errorf("NewBridge() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestBridgeStartSubscribesAndPublishesState(t *testing.T) {
	f := newFixture(t)
	f.start(t)

	if len(f.mqtt.subscriptions) != 1 || f.mqtt.subscriptions[0] != "studio/limitimer/command/+/+" {
		t.Errorf("subscriptions = %v", f.mqtt.subscriptions)
	}

	for _, key := range []string{"stage-timer", "green-room"} {
		topic := "studio/limitimer/state/" + key
		waitUntil(t, topic, func() bool { return len(f.mqtt.On(topic)) > 0 })
		p := f.mqtt.On(topic)[0]
		if !p.Retained || p.QoS != 1 {
			t.Errorf("%s retained=%v qos=%d, want retained QoS 1", topic, p.Retained, p.QoS)
		}
		state := decodeState(t, p)
		if state["beep"] != false {
			t.Errorf("%s beep = %v, want false", topic, state["beep"])
		}
		for _, k := range []string{"program1LedState", "remainingTime", "online", "status"} {
			if _, ok := state[k]; !ok {
				t.Errorf("%s missing key %q: %s", topic, k, p.Payload)
			}
		}
	}
}

func TestBridgePublishesChanges(t *testing.T) {
	f := newFixture(t)
	f.start(t)

	f.source.Feed("P1LEDON", "RTSTR=04:59")

	topic := "studio/limitimer/state/stage-timer"
	waitUntil(t, "updated state", func() bool {
		pubs := f.mqtt.On(topic)
		if len(pubs) == 0 {
			return false
		}
		var m map[string]any
		_ = json.Unmarshal(pubs[len(pubs)-1].Payload, &m)
		return m["program1LedState"] == "on" && m["remainingTime"] == "04:59"
	})
}

func TestBridgeBeep(t *testing.T) {
	f := newFixture(t)
	f.start(t)

	f.source.Feed("BEEP")

	event := "studio/limitimer/event/stage-timer/beep"
	waitUntil(t, "beep event", func() bool { return len(f.mqtt.On(event)) == 1 })

	ev := f.mqtt.On(event)[0]
	if ev.Retained {
		t.Error("beep event retained, want not retained")
	}
	if !strings.Contains(string(ev.Payload), `"event":"beep"`) {
		t.Errorf("event payload = %s", ev.Payload)
	}

	var sawBeepState bool
	for _, p := range f.mqtt.On("studio/limitimer/state/stage-timer") {
		if decodeState(t, p)["beep"] == true {
			sawBeepState = true
			if p.Retained {
				t.Error("beep state message retained")
			}
		}
	}
	if !sawBeepState {
		t.Error("no state message with beep=true")
	}
}

func TestBridgeCommandAccepted(t *testing.T) {
	f := newFixture(t)
	f.start(t)

	f.mqtt.Deliver("studio/limitimer/command/stage-timer/startStop", []byte(`{"id":"cue-42","source":"qlab"}`))

	if sent := f.source.Sent(); len(sent) != 1 || sent[0] != "STOP\r" {
		t.Errorf("sent = %q, want [STOP\\r]", sent)
	}

	acks := f.mqtt.On("studio/limitimer/ack/stage-timer")
	if len(acks) != 1 {
		t.Fatalf("acks = %d, want 1", len(acks))
	}
	ack := decodeAck(t, acks[0])
	if ack.Status != AckAccepted || ack.CommandID != "cue-42" || ack.Source != "qlab" || ack.Action != "startStop" {
		t.Errorf("ack = %+v", ack)
	}
	if ack.Error != nil {
		t.Errorf("ack.Error = %+v, want nil", ack.Error)
	}
}

func TestBridgeCommandDefaultsSource(t *testing.T) {
	f := newFixture(t)
	f.start(t)

	var got limitimer.ActionEvent
	f.device.SetOnAction(func(ev limitimer.ActionEvent) { got = ev })

	f.mqtt.Deliver("studio/limitimer/command/stage-timer/clear", nil)

	if got.Source != "mqtt" || got.Action != limitimer.ActionClear {
		t.Errorf("action event = %+v, want clear from mqtt", got)
	}
}

func TestBridgeCommandFailures(t *testing.T) {
	tests := []struct {
		name     string
		topic    string
		payload  string
		ackTopic string
		wantCode string
	}{
		{"unsupported action", "studio/limitimer/command/stage-timer/beep1", "", "studio/limitimer/ack/stage-timer", ErrCodeNotSupported},
		{"unknown action", "studio/limitimer/command/stage-timer/explode", "", "studio/limitimer/ack/stage-timer", ErrCodeInvalidCommand},
		{"unknown device", "studio/limitimer/command/lobby/beep", "", "studio/limitimer/ack/lobby", ErrCodeNotConfigured},
		{"bad payload", "studio/limitimer/command/stage-timer/beep", "{not json", "studio/limitimer/ack/stage-timer", ErrCodeInvalidPayload},
		{"device not connected", "studio/limitimer/command/green-room/beep", "", "studio/limitimer/ack/green-room", ErrCodeDeviceUnreachable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.start(t)

			f.mqtt.Deliver(tt.topic, []byte(tt.payload))

			acks := f.mqtt.On(tt.ackTopic)
			if len(acks) != 1 {
				t.Fatalf("acks on %s = %d, want 1", tt.ackTopic, len(acks))
			}
			ack := decodeAck(t, acks[0])
			if ack.Status != AckFailed {
				t.Errorf("ack.Status = %q, want failed", ack.Status)
			}
			if ack.Error == nil || ack.Error.Code != tt.wantCode {
				t.Errorf("ack.Error = %+v, want code %s", ack.Error, tt.wantCode)
			}
			if len(f.source.Sent()) != 0 {
				t.Errorf("sent = %q, want nothing", f.source.Sent())
			}
			if m := f.bridge.GetMetrics(); m.CommandsFailed != 1 {
				t.Errorf("CommandsFailed = %d, want 1", m.CommandsFailed)
			}
		})
	}
}

func TestBridgeFullStatus(t *testing.T) {
	f := newFixture(t)
	f.start(t)

	topic := "studio/limitimer/state/stage-timer"
	waitUntil(t, "initial state", func() bool { return len(f.mqtt.On(topic)) > 0 })
	before := len(f.mqtt.On(topic))

	f.mqtt.Deliver("studio/limitimer/command/stage-timer/fullStatus", nil)

	waitUntil(t, "republished state", func() bool { return len(f.mqtt.On(topic)) > before })
	if len(f.source.Sent()) != 0 {
		t.Error("fullStatus reached the device")
	}
	acks := f.mqtt.On("studio/limitimer/ack/stage-timer")
	if len(acks) != 1 || decodeAck(t, acks[0]).Status != AckAccepted {
		t.Errorf("acks = %v", acks)
	}
}

func TestBridgeIgnoresForeignTopics(t *testing.T) {
	f := newFixture(t)
	f.start(t)
	f.mqtt.Clear()

	f.mqtt.Deliver("studio/limitimer/state/stage-timer", []byte(`{}`))

	if m := f.bridge.GetMetrics(); m.CommandsReceived != 0 {
		t.Errorf("CommandsReceived = %d, want 0", m.CommandsReceived)
	}
}

func TestBridgePublishStateUnknownDevice(t *testing.T) {
	f := newFixture(t)
	if err := f.bridge.PublishState("lobby"); !errors.Is(err, ErrUnknownDevice) {
		t.Errorf("PublishState() error = %v, want ErrUnknownDevice", err)
	}
}

func TestBridgeHealth(t *testing.T) {
	f := newFixture(t)
	f.start(t)

	topic := "studio/limitimer/health/stage-timer"
	pubs := f.mqtt.On(topic)
	if len(pubs) != 1 {
		t.Fatalf("health publishes after Start = %d, want 1", len(pubs))
	}
	if !pubs[0].Retained || pubs[0].QoS != 1 {
		t.Errorf("health retained=%v qos=%d", pubs[0].Retained, pubs[0].QoS)
	}
	var msg HealthMessage
	if err := json.Unmarshal(pubs[0].Payload, &msg); err != nil {
		t.Fatalf("health payload: %v", err)
	}
	if msg.Status != HealthHealthy || msg.DeviceStatus != "online" || msg.Version != "test" {
		t.Errorf("health = %+v", msg)
	}

	var idle HealthMessage
	_ = json.Unmarshal(f.mqtt.On("studio/limitimer/health/green-room")[0].Payload, &idle)
	if idle.Status != HealthOffline {
		t.Errorf("idle device health = %q, want offline", idle.Status)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := f.clock.BlockUntilContext(ctx, 1); err != nil {
		t.Fatalf("health ticker not registered: %v", err)
	}
	f.clock.Advance(DefaultHealthInterval)
	waitUntil(t, "periodic health", func() bool { return len(f.mqtt.On(topic)) == 2 })
}

func TestBridgeStopPublishesOffline(t *testing.T) {
	f := newFixture(t)
	if err := f.bridge.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	f.bridge.Stop()
	f.bridge.Stop()

	pubs := f.mqtt.On("studio/limitimer/health/stage-timer")
	last := pubs[len(pubs)-1]
	var msg HealthMessage
	if err := json.Unmarshal(last.Payload, &msg); err != nil {
		t.Fatalf("health payload: %v", err)
	}
	if msg.Status != HealthOffline || msg.Reason != "bridge stopping" {
		t.Errorf("final health = %+v, want offline", msg)
	}
}

func TestHealthFor(t *testing.T) {
	tests := []struct {
		in   limitimer.ConnectionStatus
		want HealthStatus
	}{
		{limitimer.StatusOnline, HealthHealthy},
		{limitimer.StatusWarning, HealthDegraded},
		{limitimer.StatusError, HealthUnhealthy},
		{limitimer.StatusConnecting, HealthUnhealthy},
		{limitimer.StatusOffline, HealthOffline},
	}
	for _, tt := range tests {
		if got, _ := healthFor(tt.in); got != tt.want {
			t.Errorf("healthFor(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestErrorCode(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{limitimer.ErrUnsupportedAction, ErrCodeNotSupported},
		{limitimer.ErrUnknownAction, ErrCodeInvalidCommand},
		{ErrUnknownDevice, ErrCodeNotConfigured},
		{limitimer.ErrNotConnected, ErrCodeDeviceUnreachable},
		{errors.New("boom"), ErrCodeBridgeError},
	}
	for _, tt := range tests {
		if got := errorCode(tt.err); got != tt.want {
			t.Errorf("errorCode(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
