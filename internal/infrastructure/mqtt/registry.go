package mqtt

import (
	"sort"
	"sync"
)

type subscription struct {
	topic   string
	qos     byte
	handler MessageHandler
}

// registry remembers active subscriptions so they survive a reconnect
// with a clean session.
type registry struct {
	mu   sync.RWMutex
	subs map[string]subscription
}

func newRegistry() *registry {
	return &registry{subs: make(map[string]subscription)}
}

func (r *registry) add(s subscription) {
	r.mu.Lock()
	r.subs[s.topic] = s
	r.mu.Unlock()
}

func (r *registry) remove(topic string) {
	r.mu.Lock()
	delete(r.subs, topic)
	r.mu.Unlock()
}

func (r *registry) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs)
}

func (r *registry) has(topic string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.subs[topic]
	return ok
}

// all returns the subscriptions ordered by topic.
func (r *registry) all() []subscription {
	r.mu.RLock()
	out := make([]subscription, 0, len(r.subs))
	for _, s := range r.subs {
		out = append(out, s)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].topic < out[j].topic })
	return out
}
