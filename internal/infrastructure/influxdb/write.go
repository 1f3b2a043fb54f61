package influxdb

import (
	"fmt"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurements written by the bridge. Every point is tagged with the
// device key.
const (
	MeasurementField  = "limitimer_field"
	MeasurementBeep   = "limitimer_beep"
	MeasurementStatus = "limitimer_status"
)

func (c *Client) write(measurement string, tags map[string]string, fields map[string]any, at time.Time) {
	if !c.IsConnected() {
		return
	}
	if at.IsZero() {
		at = time.Now()
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, at))
	c.points.Add(1)
}

// WriteFieldChange records an observable field taking a new value at at.
//
// Booleans (lamps, beep and blink LEDs) go to the "on" field; everything
// else, including LED states and clock strings, goes to "text". Keeping the
// two apart means a field key never changes type in the measurement.
func (c *Client) WriteFieldChange(deviceKey, field string, value any, at time.Time) {
	var fields map[string]any
	switch v := value.(type) {
	case bool:
		fields = map[string]any{"on": v}
	case string:
		fields = map[string]any{"text": v}
	case fmt.Stringer:
		fields = map[string]any{"text": v.String()}
	default:
		fields = map[string]any{"text": fmt.Sprint(v)}
	}
	c.write(MeasurementField, map[string]string{"device": deviceKey, "field": field}, fields, at)
}

// WriteBeep records one beep pulse.
func (c *Client) WriteBeep(deviceKey string, at time.Time) {
	c.write(MeasurementBeep, map[string]string{"device": deviceKey}, map[string]any{"count": 1}, at)
}

// WriteConnectionStatus records a connection monitor transition. level is
// the status ordinal so transitions can be graphed.
func (c *Client) WriteConnectionStatus(deviceKey, status string, level int, at time.Time) {
	c.write(MeasurementStatus,
		map[string]string{"device": deviceKey},
		map[string]any{"status": status, "level": level},
		at)
}
