package main

import (
	"time"

	"github.com/nerrad567/limitimer-bridge/internal/limitimer"
)

// historyWriter is the subset of influxdb.Client used for field history.
type historyWriter interface {
	WriteFieldChange(deviceKey, field string, value any, at time.Time)
	WriteBeep(deviceKey string, at time.Time)
	WriteConnectionStatus(deviceKey, status string, level int, at time.Time)
}

// recordHistory writes every live change of d to w, stamped with the device
// clock. Resync republications are skipped because their values have not
// changed.
func recordHistory(w historyWriter, d *limitimer.Device) {
	key := d.Key()
	d.Subscribe(func(ch limitimer.Change) {
		if ch.Resync {
			return
		}
		if st, ok := ch.Value.(limitimer.ConnectionStatus); ok {
			w.WriteConnectionStatus(ch.DeviceKey, st.String(), int(st), ch.Timestamp)
			return
		}
		w.WriteFieldChange(ch.DeviceKey, ch.Name, ch.Value, ch.Timestamp)
	})
	d.OnBeep(func() {
		w.WriteBeep(key, d.Now())
	})
}
