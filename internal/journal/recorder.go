package journal

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/nerrad567/limitimer-bridge/internal/limitimer"
)

// Recorder defaults.
const (
	DefaultBufferSize    = 256
	DefaultPruneInterval = time.Hour

	drainTimeout = 5 * time.Second
)

// Logger is the logging surface the recorder needs.
type Logger interface {
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// RecorderOptions configures a Recorder.
type RecorderOptions struct {
	Repo Repository

	// Retention is how long entries are kept. Zero disables pruning.
	Retention time.Duration

	// PruneInterval defaults to DefaultPruneInterval.
	PruneInterval time.Duration

	// BufferSize defaults to DefaultBufferSize.
	BufferSize int

	Logger Logger
	Clock  clockwork.Clock
}

// RecorderStats holds recorder counters.
type RecorderStats struct {
	Written uint64 `json:"written"`
	Failed  uint64 `json:"failed"`
	Dropped uint64 `json:"dropped"`
	Pruned  uint64 `json:"pruned"`
}

// Recorder buffers entries and writes them from a single goroutine.
//
// Thread Safety:
//   - Record and the Attach hooks are safe from any goroutine and never block.
//   - Run must be called exactly once.
type Recorder struct {
	repo       Repository
	retention  time.Duration
	pruneEvery time.Duration
	logger     Logger
	clock      clockwork.Clock

	entries chan Entry

	mu     sync.RWMutex
	closed bool

	written atomic.Uint64
	failed  atomic.Uint64
	dropped atomic.Uint64
	pruned  atomic.Uint64
}

// NewRecorder creates a recorder. Call Run to start writing.
func NewRecorder(opts RecorderOptions) (*Recorder, error) {
	if opts.Repo == nil {
		return nil, errors.New("journal: repository is required")
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = DefaultBufferSize
	}
	if opts.PruneInterval <= 0 {
		opts.PruneInterval = DefaultPruneInterval
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}

	return &Recorder{
		repo:       opts.Repo,
		retention:  opts.Retention,
		pruneEvery: opts.PruneInterval,
		logger:     opts.Logger,
		clock:      opts.Clock,
		entries:    make(chan Entry, opts.BufferSize),
	}, nil
}

// Attach journals every command attempt and every live status transition
// of d. Resync republications of the status field are not journaled.
//
// Attach replaces any action hook previously set on d.
func (r *Recorder) Attach(d *limitimer.Device) {
	d.SetOnAction(r.RecordAction)
	d.Subscribe(func(ch limitimer.Change) {
		if ch.Field != limitimer.FieldStatus || ch.Resync {
			return
		}
		if st, ok := ch.Value.(limitimer.ConnectionStatus); ok {
			r.RecordStatus(ch.DeviceKey, st, ch.Timestamp)
		}
	})
}

// RecordAction journals a command attempt.
func (r *Recorder) RecordAction(ev limitimer.ActionEvent) {
	e := Entry{
		DeviceKey: ev.DeviceKey,
		Kind:      KindAction,
		Action:    string(ev.Action),
		Text:      ev.Text,
		Source:    ev.Source,
		CreatedAt: ev.Timestamp,
	}
	if ev.Err != nil {
		e.Error = ev.Err.Error()
	}
	_ = r.Record(e) //nolint:errcheck // drops are counted and logged
}

// RecordStatus journals a connection status transition.
func (r *Recorder) RecordStatus(deviceKey string, status limitimer.ConnectionStatus, at time.Time) {
	_ = r.Record(Entry{ //nolint:errcheck // drops are counted and logged
		DeviceKey: deviceKey,
		Kind:      KindStatus,
		Status:    status.String(),
		CreatedAt: at,
	})
}

// Record queues e for writing without blocking.
func (r *Recorder) Record(e Entry) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return ErrRecorderClosed
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = r.clock.Now()
	}

	select {
	case r.entries <- e:
		return nil
	default:
		r.dropped.Add(1)
		r.logWarn("journal buffer full, entry dropped", "device", e.DeviceKey, "kind", string(e.Kind))
		return ErrBufferFull
	}
}

// Run writes queued entries and prunes on schedule until ctx is done. It
// then refuses new entries, writes what is already buffered, and returns.
func (r *Recorder) Run(ctx context.Context) error {
	writeCtx := context.WithoutCancel(ctx)

	var tick <-chan time.Time
	if r.retention > 0 {
		ticker := r.clock.NewTicker(r.pruneEvery)
		defer ticker.Stop()
		tick = ticker.Chan()
		r.prune(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			r.drain()
			return nil
		case e := <-r.entries:
			r.write(writeCtx, e)
		case <-tick:
			r.prune(ctx)
		}
	}
}

func (r *Recorder) drain() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()

	for {
		select {
		case e := <-r.entries:
			r.write(ctx, e)
		default:
			return
		}
	}
}

func (r *Recorder) write(ctx context.Context, e Entry) {
	if err := r.repo.Create(ctx, &e); err != nil {
		r.failed.Add(1)
		r.logError("journal write failed", "device", e.DeviceKey, "error", err)
		return
	}
	r.written.Add(1)
}

func (r *Recorder) prune(ctx context.Context) {
	cutoff := r.clock.Now().Add(-r.retention)
	n, err := r.repo.Prune(ctx, cutoff)
	if err != nil {
		r.logError("journal prune failed", "error", err)
		return
	}
	r.pruned.Add(uint64(n)) //nolint:gosec // RowsAffected is never negative
	if n > 0 {
		r.logInfo("journal pruned", "removed", n, "before", cutoff)
	}
}

// Stats returns current counters.
func (r *Recorder) Stats() RecorderStats {
	return RecorderStats{
		Written: r.written.Load(),
		Failed:  r.failed.Load(),
		Dropped: r.dropped.Load(),
		Pruned:  r.pruned.Load(),
	}
}

func (r *Recorder) logInfo(msg string, kv ...any) {
	if r.logger != nil {
		r.logger.Info(msg, kv...)
	}
}

func (r *Recorder) logWarn(msg string, kv ...any) {
	if r.logger != nil {
		r.logger.Warn(msg, kv...)
	}
}

func (r *Recorder) logError(msg string, kv ...any) {
	if r.logger != nil {
		r.logger.Error(msg, kv...)
	}
}
