package limitimer

import (
	"fmt"
	"time"
)

// DefaultTime is the initial value of every time field.
const DefaultTime = "00:00"

// LEDState is the level of a tri-state front-panel LED.
type LEDState uint8

// LED levels. The zero value is LEDOff so a fresh State starts dark.
const (
	LEDOff LEDState = iota
	LEDDim
	LEDOn
)

// String returns the lower-case name used on the wire to observers.
func (s LEDState) String() string {
	switch s {
	case LEDOn:
		return "on"
	case LEDDim:
		return "dim"
	case LEDOff:
		return "off"
	default:
		return fmt.Sprintf("LEDState(%d)", uint8(s))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s LEDState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *LEDState) UnmarshalText(text []byte) error {
	switch string(text) {
	case "on":
		*s = LEDOn
	case "dim":
		*s = LEDDim
	case "off":
		*s = LEDOff
	default:
		return fmt.Errorf("limitimer: invalid LED state %q", text)
	}
	return nil
}

// ConnectionStatus is the connection monitor's ordinal state.
type ConnectionStatus uint8

// Connection states, ordered as reported by the status feedback.
const (
	StatusOffline ConnectionStatus = iota
	StatusConnecting
	StatusOnline
	StatusWarning
	StatusError
)

// String returns the status name.
func (s ConnectionStatus) String() string {
	switch s {
	case StatusOffline:
		return "offline"
	case StatusConnecting:
		return "connecting"
	case StatusOnline:
		return "online"
	case StatusWarning:
		return "warning"
	case StatusError:
		return "error"
	default:
		return fmt.Sprintf("ConnectionStatus(%d)", uint8(s))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s ConnectionStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// IsOnline reports whether the device is communicating. A device in warning
// is still online; it has only been quiet for a while.
func (s ConnectionStatus) IsOnline() bool {
	return s == StatusOnline || s == StatusWarning
}

// Field identifies one of the fifteen observable fields.
type Field uint8

// Observable fields. String() of each is its camelCase key.
const (
	FieldProgram1LED Field = iota
	FieldProgram2LED
	FieldProgram3LED
	FieldSessionLED
	FieldBeepLED
	FieldBlinkLED
	FieldGreenLED
	FieldRedLED
	FieldYellowLED
	FieldSecondsMode
	FieldOnline
	FieldTotalTime
	FieldSumUpTime
	FieldRemainingTime
	FieldStatus

	fieldCount
)

var fieldNames = [fieldCount]string{
	FieldProgram1LED:   "program1LedState",
	FieldProgram2LED:   "program2LedState",
	FieldProgram3LED:   "program3LedState",
	FieldSessionLED:    "sessionLedState",
	FieldBeepLED:       "beepLedState",
	FieldBlinkLED:      "blinkLedState",
	FieldGreenLED:      "greenLedState",
	FieldRedLED:        "redLedState",
	FieldYellowLED:     "yellowLedState",
	FieldSecondsMode:   "secondsModeIndicatorState",
	FieldOnline:        "online",
	FieldTotalTime:     "totalTime",
	FieldSumUpTime:     "sumUpTime",
	FieldRemainingTime: "remainingTime",
	FieldStatus:        "status",
}

func (f Field) String() string {
	if f < fieldCount {
		return fieldNames[f]
	}
	return fmt.Sprintf("Field(%d)", uint8(f))
}

// Fields returns all observable fields in publication order.
func Fields() []Field {
	out := make([]Field, 0, fieldCount)
	for f := range fieldCount {
		out = append(out, f)
	}
	return out
}

// State holds the observable fields of one device.
//
// Fields are only written by the owning device's queue worker. Reads are safe
// from any goroutine.
type State struct {
	leds   map[Field]*Observable[LEDState]
	flags  map[Field]*Observable[bool]
	times  map[Field]*Observable[string]
	status *Observable[ConnectionStatus]
	beep   *Pulse

	// ordered view used for resync and snapshots
	all []field
}

// NewState returns a State initialised to the power-on defaults: every LED
// off, every flag false, every time "00:00" and status offline.
func NewState() *State {
	s := &State{
		leds:  make(map[Field]*Observable[LEDState], 4),
		flags: make(map[Field]*Observable[bool], 7),
		times: make(map[Field]*Observable[string], 3),
		beep:  NewPulse(),
	}

	for _, f := range []Field{FieldProgram1LED, FieldProgram2LED, FieldProgram3LED, FieldSessionLED} {
		s.leds[f] = NewObservable(f.String(), LEDOff)
	}
	for _, f := range []Field{FieldBeepLED, FieldBlinkLED, FieldGreenLED, FieldRedLED, FieldYellowLED, FieldSecondsMode, FieldOnline} {
		s.flags[f] = NewObservable(f.String(), false)
	}
	for _, f := range []Field{FieldTotalTime, FieldSumUpTime, FieldRemainingTime} {
		s.times[f] = NewObservable(f.String(), DefaultTime)
	}
	s.status = NewObservable(FieldStatus.String(), StatusOffline)

	s.all = make([]field, fieldCount)
	for f, o := range s.leds {
		s.all[f] = o
	}
	for f, o := range s.flags {
		s.all[f] = o
	}
	for f, o := range s.times {
		s.all[f] = o
	}
	s.all[FieldStatus] = s.status

	return s
}

// LED returns the observable for a tri-state LED field, or nil.
func (s *State) LED(f Field) *Observable[LEDState] { return s.leds[f] }

// Flag returns the observable for a boolean field, or nil.
func (s *State) Flag(f Field) *Observable[bool] { return s.flags[f] }

// Time returns the observable for a time string field, or nil.
func (s *State) Time(f Field) *Observable[string] { return s.times[f] }

// Status returns the connection status observable.
func (s *State) Status() *Observable[ConnectionStatus] { return s.status }

// Beep returns the transient beep pulse.
func (s *State) Beep() *Pulse { return s.beep }

// Value returns the current value of f boxed as any.
func (s *State) Value(f Field) any {
	if f >= fieldCount {
		return nil
	}
	return s.all[f].value()
}

// publishAll republishes every field in Fields() order.
func (s *State) publishAll() {
	for _, o := range s.all {
		o.Publish()
	}
}

// Snapshot returns a copy of every stored field.
func (s *State) Snapshot() Snapshot {
	return Snapshot{
		Program1LED:   s.leds[FieldProgram1LED].Get(),
		Program2LED:   s.leds[FieldProgram2LED].Get(),
		Program3LED:   s.leds[FieldProgram3LED].Get(),
		SessionLED:    s.leds[FieldSessionLED].Get(),
		BeepLED:       s.flags[FieldBeepLED].Get(),
		BlinkLED:      s.flags[FieldBlinkLED].Get(),
		GreenLED:      s.flags[FieldGreenLED].Get(),
		RedLED:        s.flags[FieldRedLED].Get(),
		YellowLED:     s.flags[FieldYellowLED].Get(),
		SecondsMode:   s.flags[FieldSecondsMode].Get(),
		Online:        s.flags[FieldOnline].Get(),
		TotalTime:     s.times[FieldTotalTime].Get(),
		SumUpTime:     s.times[FieldSumUpTime].Get(),
		RemainingTime: s.times[FieldRemainingTime].Get(),
		Status:        s.status.Get(),
	}
}

// Snapshot is a point-in-time copy of a device's fields. JSON keys match the
// field names published to observers.
type Snapshot struct {
	Program1LED   LEDState         `json:"program1LedState"`
	Program2LED   LEDState         `json:"program2LedState"`
	Program3LED   LEDState         `json:"program3LedState"`
	SessionLED    LEDState         `json:"sessionLedState"`
	BeepLED       bool             `json:"beepLedState"`
	BlinkLED      bool             `json:"blinkLedState"`
	GreenLED      bool             `json:"greenLedState"`
	RedLED        bool             `json:"redLedState"`
	YellowLED     bool             `json:"yellowLedState"`
	SecondsMode   bool             `json:"secondsModeIndicatorState"`
	Online        bool             `json:"online"`
	TotalTime     string           `json:"totalTime"`
	SumUpTime     string           `json:"sumUpTime"`
	RemainingTime string           `json:"remainingTime"`
	Status        ConnectionStatus `json:"status"`
}

// Change is delivered to device subscribers for every field notification.
type Change struct {
	DeviceKey string    `json:"device_key"`
	Field     Field     `json:"-"`
	Name      string    `json:"field"`
	Value     any       `json:"value"`
	Resync    bool      `json:"resync,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
