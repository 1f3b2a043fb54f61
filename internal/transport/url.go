package transport

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"go.bug.st/serial"
)

// Supported URL schemes.
const (
	SchemeTCP    = "tcp"
	SchemeSerial = "serial"
)

// Serial defaults (9600 8N1).
const (
	DefaultBaudRate = 9600
	DefaultDataBits = 8
)

// Endpoint is a parsed connection URL.
type Endpoint struct {
	Scheme string

	// Address is host:port for tcp and the device path for serial.
	Address string

	// Mode holds serial line settings. Nil for tcp.
	Mode *serial.Mode
}

// String returns a form suitable for logs.
func (e Endpoint) String() string {
	if e.Mode == nil {
		return e.Scheme + "://" + e.Address
	}
	return fmt.Sprintf("%s://%s@%d", e.Scheme, e.Address, e.Mode.BaudRate)
}

// ParseURL parses a connection URL.
//
// Parameters:
//   - raw: "tcp://host:port" or "serial://<device>?baud=&databits=&parity=&stopbits="
//
// Returns:
//   - Endpoint: the parsed endpoint
//   - error: wrapping ErrInvalidURL
func ParseURL(raw string) (Endpoint, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Endpoint{}, fmt.Errorf("%w: %w", ErrInvalidURL, err)
	}

	switch u.Scheme {
	case SchemeTCP:
		return parseTCP(u)
	case SchemeSerial:
		return parseSerial(u)
	default:
		return Endpoint{}, fmt.Errorf("%w: unsupported scheme %q (use tcp or serial)", ErrInvalidURL, u.Scheme)
	}
}

func parseTCP(u *url.URL) (Endpoint, error) {
	host, port, err := net.SplitHostPort(u.Host)
	if err != nil {
		return Endpoint{}, fmt.Errorf("%w: tcp address %q: %w", ErrInvalidURL, u.Host, err)
	}
	if host == "" {
		return Endpoint{}, fmt.Errorf("%w: tcp host is empty", ErrInvalidURL)
	}
	if n, err := strconv.Atoi(port); err != nil || n < 1 || n > 65535 {
		return Endpoint{}, fmt.Errorf("%w: tcp port %q out of range", ErrInvalidURL, port)
	}
	return Endpoint{Scheme: SchemeTCP, Address: u.Host}, nil
}

func parseSerial(u *url.URL) (Endpoint, error) {
	// serial:///dev/ttyUSB0 puts the device in Path; serial://COM3 in Host.
	device := u.Path
	if device == "" {
		device = u.Host
	}
	if device == "" {
		device = u.Opaque
	}
	if device == "" {
		return Endpoint{}, fmt.Errorf("%w: serial device is empty", ErrInvalidURL)
	}

	mode := &serial.Mode{
		BaudRate: DefaultBaudRate,
		DataBits: DefaultDataBits,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	q := u.Query()
	if v := q.Get("baud"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return Endpoint{}, fmt.Errorf("%w: baud %q", ErrInvalidURL, v)
		}
		mode.BaudRate = n
	}
	if v := q.Get("databits"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 5 || n > 8 {
			return Endpoint{}, fmt.Errorf("%w: databits %q (5-8)", ErrInvalidURL, v)
		}
		mode.DataBits = n
	}
	if v := q.Get("parity"); v != "" {
		p, err := parseParity(v)
		if err != nil {
			return Endpoint{}, err
		}
		mode.Parity = p
	}
	if v := q.Get("stopbits"); v != "" {
		s, err := parseStopBits(v)
		if err != nil {
			return Endpoint{}, err
		}
		mode.StopBits = s
	}

	return Endpoint{Scheme: SchemeSerial, Address: device, Mode: mode}, nil
}

func parseParity(v string) (serial.Parity, error) {
	switch strings.ToLower(v) {
	case "none", "n":
		return serial.NoParity, nil
	case "odd", "o":
		return serial.OddParity, nil
	case "even", "e":
		return serial.EvenParity, nil
	case "mark", "m":
		return serial.MarkParity, nil
	case "space", "s":
		return serial.SpaceParity, nil
	default:
		return serial.NoParity, fmt.Errorf("%w: parity %q", ErrInvalidURL, v)
	}
}

func parseStopBits(v string) (serial.StopBits, error) {
	switch v {
	case "1":
		return serial.OneStopBit, nil
	case "1.5":
		return serial.OnePointFiveStopBits, nil
	case "2":
		return serial.TwoStopBits, nil
	default:
		return serial.OneStopBit, fmt.Errorf("%w: stopbits %q", ErrInvalidURL, v)
	}
}
