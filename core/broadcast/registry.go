// Package broadcast fans audio chunks out to connected listeners.
package broadcast

import (
	"io"
	"sync"

	"wadio/logger"

	"github.com/google/uuid"
)

type subscriber struct {
	id   uuid.UUID
	sink io.Writer
}

// Registry holds the connected listeners. A listener whose write fails is
// dropped; nothing else notices.
type Registry struct {
	mu          sync.RWMutex
	subscribers map[uuid.UUID]*subscriber

	// OnRemove, when set, is called after a subscriber leaves the registry.
	OnRemove func(id uuid.UUID, err error)
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{subscribers: make(map[uuid.UUID]*subscriber)}
}

// Add registers sink under a fresh id and returns it.
func (r *Registry) Add(sink io.Writer) uuid.UUID {
	id := uuid.New()

	r.mu.Lock()
	r.subscribers[id] = &subscriber{id: id, sink: sink}
	r.mu.Unlock()

	return id
}

// Broadcast writes chunk to every registered sink. Sinks that fail are
// removed. chunk must not be modified afterwards: buffered sinks keep it.
func (r *Registry) Broadcast(chunk []byte) {
	// copy the list so writes happen without the lock
	r.mu.RLock()
	if len(r.subscribers) == 0 {
		r.mu.RUnlock()
		return
	}
	list := make([]*subscriber, 0, len(r.subscribers))
	for _, sub := range r.subscribers {
		list = append(list, sub)
	}
	r.mu.RUnlock()

	for _, sub := range list {
		if _, err := sub.sink.Write(chunk); err != nil {
			logger.Info("error writing to listener (likely disconnected)",
				logger.String("listener", sub.id.String()),
				logger.ErrorField(err))
			r.remove(sub, err)
		}
	}
}

// Remove drops a subscriber. Removing an unknown id is a no-op.
func (r *Registry) Remove(id uuid.UUID) {
	r.mu.RLock()
	sub, ok := r.subscribers[id]
	r.mu.RUnlock()
	if ok {
		r.remove(sub, nil)
	}
}

// remove deletes sub if it is still registered, then closes its sink. Only
// the first of several concurrent removals closes.
func (r *Registry) remove(sub *subscriber, cause error) {
	r.mu.Lock()
	if r.subscribers[sub.id] != sub {
		r.mu.Unlock()
		return
	}
	delete(r.subscribers, sub.id)
	r.mu.Unlock()

	r.closeSubscriber(sub, cause)
}

func (r *Registry) closeSubscriber(sub *subscriber, cause error) {
	if c, ok := sub.sink.(io.Closer); ok {
		c.Close()
	}
	if r.OnRemove != nil {
		r.OnRemove(sub.id, cause)
	}
}

// Len returns the number of registered subscribers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subscribers)
}

// Close removes every subscriber, closing their sinks.
func (r *Registry) Close() {
	r.mu.Lock()
	subs := r.subscribers
	r.subscribers = make(map[uuid.UUID]*subscriber)
	r.mu.Unlock()

	for _, sub := range subs {
		r.closeSubscriber(sub, nil)
	}
}
