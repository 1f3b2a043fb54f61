package limitimer

import (
	"encoding/json"
	"sync"
	"testing"
)

func TestObservableSetIsEdgeTriggered(t *testing.T) {
	o := NewObservable("x", 0)

	var got []int
	o.Subscribe(func(v int) { got = append(got, v) })

	if !o.Set(1) {
		t.Error("Set(1) = false, want true")
	}
	if o.Set(1) {
		t.Error("second Set(1) = true, want false")
	}
	o.Set(2)

	if len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Errorf("notifications = %v, want [1 2]", got)
	}
	if o.Get() != 2 {
		t.Errorf("Get() = %d, want 2", o.Get())
	}
}

func TestObservablePublishForcesNotify(t *testing.T) {
	o := NewObservable("x", "00:00")

	count := 0
	o.Subscribe(func(v string) {
		count++
		if v != "00:00" {
			t.Errorf("published %q, want 00:00", v)
		}
	})

	o.Publish()
	o.Publish()
	if count != 2 {
		t.Errorf("notifications = %d, want 2", count)
	}
}

func TestObservableNilSubscriberIgnored(t *testing.T) {
	o := NewObservable("x", false)
	o.Subscribe(nil)
	o.Set(true) // must not panic
}

func TestObservableConcurrentReads(t *testing.T) {
	o := NewObservable("x", 0)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 1000 {
				_ = o.Get()
			}
		}()
	}
	for i := range 1000 {
		o.Set(i)
	}
	wg.Wait()
}

func TestPulseFiresEveryTime(t *testing.T) {
	p := NewPulse()
	count := 0
	p.Subscribe(func() { count++ })
	p.Subscribe(nil)

	p.Fire()
	p.Fire()
	if count != 2 {
		t.Errorf("fires = %d, want 2", count)
	}
}

func TestNewStateDefaults(t *testing.T) {
	s := NewState()
	snap := s.Snapshot()

	want := Snapshot{
		TotalTime:     DefaultTime,
		SumUpTime:     DefaultTime,
		RemainingTime: DefaultTime,
		Status:        StatusOffline,
	}
	if snap != want {
		t.Errorf("Snapshot() = %+v, want %+v", snap, want)
	}
}

func TestStatePublishAllCoversEveryField(t *testing.T) {
	s := NewState()

	var order []string
	for f, o := range s.all {
		if o.Name() != Field(f).String() {
			t.Errorf("all[%d].Name() = %q, want %q", f, o.Name(), Field(f).String())
		}
	}
	for _, f := range Fields() {
		switch {
		case s.LED(f) != nil:
			s.LED(f).Subscribe(func(LEDState) { order = append(order, f.String()) })
		case s.Flag(f) != nil:
			s.Flag(f).Subscribe(func(bool) { order = append(order, f.String()) })
		case s.Time(f) != nil:
			s.Time(f).Subscribe(func(string) { order = append(order, f.String()) })
		case f == FieldStatus:
			s.Status().Subscribe(func(ConnectionStatus) { order = append(order, f.String()) })
		default:
			t.Fatalf("field %s has no observable", f)
		}
	}

	s.publishAll()

	if len(order) != int(fieldCount) {
		t.Fatalf("published %d fields, want %d", len(order), fieldCount)
	}
	for i, f := range Fields() {
		if order[i] != f.String() {
			t.Errorf("publish[%d] = %s, want %s", i, order[i], f)
		}
	}
}

func TestStateValue(t *testing.T) {
	s := NewState()
	s.LED(FieldSessionLED).Set(LEDDim)

	if got := s.Value(FieldSessionLED); got != LEDDim {
		t.Errorf("Value(sessionLedState) = %v, want dim", got)
	}
	if got := s.Value(FieldTotalTime); got != DefaultTime {
		t.Errorf("Value(totalTime) = %v, want %s", got, DefaultTime)
	}
	if got := s.Value(Field(200)); got != nil {
		t.Errorf("Value(200) = %v, want nil", got)
	}
}

func TestSnapshotJSONKeys(t *testing.T) {
	s := NewState()
	s.LED(FieldProgram1LED).Set(LEDOn)
	s.Status().Set(StatusWarning)

	data, err := json.Marshal(s.Snapshot())
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if len(m) != int(fieldCount) {
		t.Errorf("snapshot has %d keys, want %d", len(m), fieldCount)
	}
	for _, f := range Fields() {
		if _, ok := m[f.String()]; !ok {
			t.Errorf("snapshot missing key %q", f)
		}
	}
	if m["program1LedState"] != "on" {
		t.Errorf("program1LedState = %v, want on", m["program1LedState"])
	}
	if m["status"] != "warning" {
		t.Errorf("status = %v, want warning", m["status"])
	}
}

func TestLEDStateText(t *testing.T) {
	for _, s := range []LEDState{LEDOn, LEDDim, LEDOff} {
		text, _ := s.MarshalText()
		var back LEDState
		if err := back.UnmarshalText(text); err != nil {
			t.Fatalf("UnmarshalText(%q): %v", text, err)
		}
		if back != s {
			t.Errorf("round trip %v = %v", s, back)
		}
	}

	var bad LEDState
	if err := bad.UnmarshalText([]byte("bright")); err == nil {
		t.Error("UnmarshalText(bright) succeeded, want error")
	}
}

func TestConnectionStatusIsOnline(t *testing.T) {
	tests := []struct {
		status ConnectionStatus
		want   bool
	}{
		{StatusOffline, false},
		{StatusConnecting, false},
		{StatusOnline, true},
		{StatusWarning, true},
		{StatusError, false},
	}
	for _, tt := range tests {
		if got := tt.status.IsOnline(); got != tt.want {
			t.Errorf("%v.IsOnline() = %v, want %v", tt.status, got, tt.want)
		}
	}
	if int(StatusError) != 4 {
		t.Errorf("StatusError = %d, want 4", StatusError)
	}
}
