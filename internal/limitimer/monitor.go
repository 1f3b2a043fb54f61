package limitimer

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Monitor derives a ConnectionStatus from transport state and the time since
// the last received line.
//
// Every PollInterval it re-evaluates:
//   - not started               → offline
//   - transport not connected   → connecting
//   - quiet < WarningTimeout    → online
//   - quiet < ErrorTimeout      → warning
//   - otherwise                 → error
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - The status change callback runs on whichever goroutine triggered the
//     evaluation. Callbacks are serialized and see transitions in the order
//     the status moved.
type Monitor struct {
	cfg   Config
	clock clockwork.Clock

	mu           sync.Mutex
	started      bool
	connected    bool
	lastActivity time.Time
	status       ConnectionStatus

	onChange   func(prev, next ConnectionStatus)
	onChangeMu sync.RWMutex

	// fireMu is held from compute through the callback
	fireMu sync.Mutex

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewMonitor returns a stopped Monitor. A nil clock selects the real clock.
func NewMonitor(cfg Config, clock clockwork.Clock) *Monitor {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Monitor{cfg: cfg, clock: clock, status: StatusOffline}
}

// SetOnStatusChange sets the callback invoked on every status transition.
func (m *Monitor) SetOnStatusChange(fn func(prev, next ConnectionStatus)) {
	m.onChangeMu.Lock()
	m.onChange = fn
	m.onChangeMu.Unlock()
}

// Start begins periodic evaluation. Calling Start on a running monitor is a
// no-op.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return
	}
	m.started = true
	ctx, m.cancel = context.WithCancel(ctx)
	m.mu.Unlock()

	m.evaluate()

	ticker := m.clock.NewTicker(m.cfg.PollInterval)
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.Chan():
				m.evaluate()
			}
		}
	}()
}

// Stop halts evaluation and moves the status to offline.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return
	}
	m.started = false
	cancel := m.cancel
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
	m.evaluate()
}

// Activity records that a line was received. A device that was not online
// is re-evaluated immediately rather than at the next poll.
func (m *Monitor) Activity() {
	m.mu.Lock()
	m.lastActivity = m.clock.Now()
	stale := m.status != StatusOnline
	m.mu.Unlock()

	if stale {
		m.evaluate()
	}
}

// ConnectionChanged records a transport transition. Connecting counts as
// activity so a fresh link starts online.
func (m *Monitor) ConnectionChanged(connected bool) {
	m.mu.Lock()
	m.connected = connected
	if connected {
		m.lastActivity = m.clock.Now()
	}
	m.mu.Unlock()

	m.evaluate()
}

// Status returns the last evaluated status.
func (m *Monitor) Status() ConnectionStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// IsOnline reports whether the last evaluated status counts as online.
func (m *Monitor) IsOnline() bool {
	return m.Status().IsOnline()
}

// evaluate recomputes the status and fires the callback on a transition.
func (m *Monitor) evaluate() {
	m.fireMu.Lock()
	defer m.fireMu.Unlock()

	m.mu.Lock()
	next := m.compute()
	prev := m.status
	m.status = next
	m.mu.Unlock()

	if prev == next {
		return
	}

	m.onChangeMu.RLock()
	fn := m.onChange
	m.onChangeMu.RUnlock()
	if fn != nil {
		fn(prev, next)
	}
}

// compute must be called with mu held.
func (m *Monitor) compute() ConnectionStatus {
	switch {
	case !m.started:
		return StatusOffline
	case !m.connected:
		return StatusConnecting
	}

	quiet := m.clock.Since(m.lastActivity)
	switch {
	case quiet < m.cfg.WarningTimeout:
		return StatusOnline
	case quiet < m.cfg.ErrorTimeout:
		return StatusWarning
	default:
		return StatusError
	}
}
