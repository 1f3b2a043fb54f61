// Package messenger presents Limitimer devices on an MQTT broker.
//
// The bridge sits between the driver and whatever consumes the timer state
// over MQTT (show control, dashboards, automation):
//
//	┌────────────────┐   MQTT   ┌────────────────┐  tcp/serial
//	│   Consumers    │◄────────►│   Messenger    │◄────────────► Limitimer
//	└────────────────┘          │   (this pkg)   │   (driver)
//	                            └────────────────┘
//
// # Topics
//
// All topics share a configurable prefix (default "limitimer"):
//
//	{prefix}/command/{device}/{action}   inbound action requests
//	{prefix}/ack/{device}                command acknowledgements
//	{prefix}/state/{device}              full state, retained
//	{prefix}/event/{device}/beep         beep pulses
//	{prefix}/health/{device}             device health, retained
//
// A command payload is optional. When present it is a JSON object carrying
// a correlation id and the name of the requester:
//
//	{"id": "cue-42", "source": "qlab"}
//
// The "fullStatus" action republishes the retained state without touching
// the device.
//
// # Publishing
//
// Device change notifications arrive on the driver's queue worker. The
// bridge only marks the device dirty there; a single publisher goroutine
// reads the latest snapshot and performs the MQTT I/O, so bursts of changes
// collapse into one state message and the worker never waits on the broker.
//
// # Thread Safety
//
// All exported methods are safe for concurrent use.
package messenger
