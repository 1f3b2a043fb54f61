// Package limitimertest provides an in-memory line source for tests of
// packages built on limitimer.Device.
package limitimertest

import (
	"context"
	"sync"
)

// Source is a scripted limitimer.LineSource. Connect and Disconnect fire
// the connection callback synchronously; Feed delivers a line as if it
// arrived from the device.
type Source struct {
	mu        sync.Mutex
	connected bool
	sent      []string
	sendErr   error
	onLine    func(string)
	onConn    func(bool)
}

// NewSource returns a disconnected source.
func NewSource() *Source {
	return &Source{}
}

// Connect marks the source connected.
func (s *Source) Connect(context.Context) error {
	s.mu.Lock()
	s.connected = true
	fn := s.onConn
	s.mu.Unlock()
	if fn != nil {
		fn(true)
	}
	return nil
}

// Disconnect marks the source disconnected.
func (s *Source) Disconnect() error {
	s.mu.Lock()
	was := s.connected
	s.connected = false
	fn := s.onConn
	s.mu.Unlock()
	if was && fn != nil {
		fn(false)
	}
	return nil
}

// IsConnected reports the connected flag.
func (s *Source) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// Send records data, or returns the error set by FailSends.
func (s *Source) Send(_ context.Context, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sendErr != nil {
		return s.sendErr
	}
	s.sent = append(s.sent, string(data))
	return nil
}

// SetOnLine implements limitimer.LineSource.
func (s *Source) SetOnLine(fn func(string)) {
	s.mu.Lock()
	s.onLine = fn
	s.mu.Unlock()
}

// SetOnConnectionChange implements limitimer.LineSource.
func (s *Source) SetOnConnectionChange(fn func(bool)) {
	s.mu.Lock()
	s.onConn = fn
	s.mu.Unlock()
}

// Feed delivers lines to the device in order.
func (s *Source) Feed(lines ...string) {
	s.mu.Lock()
	fn := s.onLine
	s.mu.Unlock()
	if fn == nil {
		return
	}
	for _, l := range lines {
		fn(l)
	}
}

// FailSends makes every subsequent Send return err. Pass nil to recover.
func (s *Source) FailSends(err error) {
	s.mu.Lock()
	s.sendErr = err
	s.mu.Unlock()
}

// Sent returns a copy of everything written so far.
func (s *Source) Sent() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.sent...)
}
