// Package influxdb writes Limitimer field history to InfluxDB v2.
//
// The bridge keeps no history of its own. When enabled, every live field
// change, beep pulse and connection status transition is written here so
// operators can review what a timer showed and when:
//
//	limitimer_field   tags: device, field   fields: on (bool) | text (string)
//	limitimer_beep    tags: device          fields: count
//	limitimer_status  tags: device          fields: status, level
//
// Points carry the timestamp of the change itself, not of the write.
//
// Usage:
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteFieldChange("stage-timer", "totalTime", "05:30", ch.Timestamp)
//
// Writes are batched and never block; batch failures reach the callback
// set with SetOnError.
package influxdb
