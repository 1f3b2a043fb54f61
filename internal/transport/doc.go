// Package transport provides the delimited byte link to a Limitimer.
//
// A Client owns one connection at a time, either a TCP socket (typically a
// serial-to-Ethernet adapter) or a local serial port. It frames inbound
// bytes into lines on the carriage-return delimiter and hands each line to a
// callback. When the link drops it reconnects with exponential backoff.
//
// # Connection URLs
//
//	tcp://10.0.0.50:4001
//	serial:///dev/ttyUSB0?baud=9600&databits=8&parity=none&stopbits=1
//	serial://COM3?baud=9600
//
// Serial parameters default to 9600 8N1.
//
// # Thread Safety
//
// All exported methods are safe for concurrent use. Line and connection
// callbacks run on the client's receive goroutine; a slow line callback
// applies back-pressure to the link rather than losing data.
package transport
