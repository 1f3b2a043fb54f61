// Package panel serves the browser status panel for the bridge.
//
// The panel is a static page embedded into the binary with go:embed. It
// reads the device list from /api/v1/devices and then follows every field
// change over the /ws WebSocket, drawing each timer's LEDs, lamps and clocks
// the way they appear on the hardware. Front-panel buttons post to
// /api/v1/devices/{key}/actions/{action}.
//
// For panel development, Handler can serve the assets from a directory on
// disk instead so edits show up on reload without rebuilding.
package panel
