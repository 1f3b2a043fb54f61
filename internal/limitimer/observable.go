package limitimer

import "sync"

// field is the type-erased view of an Observable used for resync and
// snapshots.
type field interface {
	Name() string
	Publish()
	value() any
}

// Observable is a single edge-triggered state field.
//
// Set stores a new value and notifies subscribers only when it differs from
// the stored one. Publish notifies unconditionally with the stored value.
//
// Thread Safety:
//   - Get and Subscribe are safe from any goroutine.
//   - Set and Publish are expected to be called from one writer goroutine;
//     subscribers run synchronously on that goroutine.
type Observable[T comparable] struct {
	name string

	mu   sync.RWMutex
	cur  T
	subs []func(T)
}

// NewObservable returns an Observable holding initial.
func NewObservable[T comparable](name string, initial T) *Observable[T] {
	return &Observable[T]{name: name, cur: initial}
}

// Name returns the field name.
func (o *Observable[T]) Name() string {
	return o.name
}

// Get returns the stored value.
func (o *Observable[T]) Get() T {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.cur
}

func (o *Observable[T]) value() any {
	return o.Get()
}

// Set stores v and notifies subscribers if it differs from the stored value.
// It reports whether the value changed.
func (o *Observable[T]) Set(v T) bool {
	o.mu.Lock()
	if o.cur == v {
		o.mu.Unlock()
		return false
	}
	o.cur = v
	subs := o.subs
	o.mu.Unlock()

	notify(subs, v)
	return true
}

// Publish notifies subscribers with the stored value even though it has not
// changed.
func (o *Observable[T]) Publish() {
	o.mu.RLock()
	v := o.cur
	subs := o.subs
	o.mu.RUnlock()

	notify(subs, v)
}

// Subscribe registers fn for change notifications.
func (o *Observable[T]) Subscribe(fn func(T)) {
	if fn == nil {
		return
	}
	o.mu.Lock()
	// copy on write so notify can iterate without holding the lock
	subs := make([]func(T), len(o.subs), len(o.subs)+1)
	copy(subs, o.subs)
	o.subs = append(subs, fn)
	o.mu.Unlock()
}

func notify[T any](subs []func(T), v T) {
	for _, fn := range subs {
		fn(v)
	}
}

// Pulse is a momentary event with no stored value. Every Fire notifies.
type Pulse struct {
	mu   sync.RWMutex
	subs []func()
}

// NewPulse returns a Pulse with no subscribers.
func NewPulse() *Pulse {
	return &Pulse{}
}

// Fire notifies every subscriber.
func (p *Pulse) Fire() {
	p.mu.RLock()
	subs := p.subs
	p.mu.RUnlock()

	for _, fn := range subs {
		fn()
	}
}

// Subscribe registers fn to be called on every Fire.
func (p *Pulse) Subscribe(fn func()) {
	if fn == nil {
		return
	}
	p.mu.Lock()
	subs := make([]func(), len(p.subs), len(p.subs)+1)
	copy(subs, p.subs)
	p.subs = append(subs, fn)
	p.mu.Unlock()
}
