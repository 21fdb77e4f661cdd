// Package observable provides a subscribable value container used by every store.
package observable

import (
	"sync"

	"github.com/google/uuid"
)

// subscription represents a subscriber's subscription.
type subscription[T any] struct {
	id    string
	fn    func(T)
	since uint64 // last sequence number already seen by the subscriber
}

// change is a published value waiting for delivery.
type change[T any] struct {
	seq   uint64
	value T
}

// Value holds a T and notifies subscribers of every change.
//
// Subscribers are invoked synchronously on the goroutine that performed the
// change, outside the internal lock, so a callback may read or modify any
// store including this one. Changes made while a delivery is in progress are
// queued and delivered in order by the goroutine already delivering.
type Value[T any] struct {
	mu            sync.Mutex
	value         T
	seq           uint64
	subscriptions map[string]*subscription[T]
	order         []string
	pending       []change[T]
	emitting      bool
}

// New creates a Value holding initial.
func New[T any](initial T) *Value[T] {
	return &Value[T]{
		value:         initial,
		subscriptions: make(map[string]*subscription[T]),
	}
}

// Get returns the current value.
func (v *Value[T]) Get() T {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.value
}

// Set replaces the value and notifies subscribers.
func (v *Value[T]) Set(value T) {
	v.mu.Lock()
	v.value = value
	v.enqueueLocked()
	v.mu.Unlock()

	v.emit()
}

// Update replaces the value with fn(current) and notifies subscribers.
func (v *Value[T]) Update(fn func(T) T) {
	v.UpdateIf(func(cur T) (T, bool) {
		return fn(cur), true
	})
}

// UpdateIf calls fn with the current value. When fn reports a change the
// returned value is stored and subscribers are notified; otherwise nothing
// happens. It returns whether a change was made.
func (v *Value[T]) UpdateIf(fn func(T) (T, bool)) bool {
	v.mu.Lock()
	next, changed := fn(v.value)
	if !changed {
		v.mu.Unlock()
		return false
	}
	v.value = next
	v.enqueueLocked()
	v.mu.Unlock()

	v.emit()
	return true
}

// Subscribe registers fn, calls it immediately with the current value and
// then on every change until the returned function is called.
func (v *Value[T]) Subscribe(fn func(T)) (unsubscribe func()) {
	v.mu.Lock()
	id := uuid.New().String()
	v.subscriptions[id] = &subscription[T]{
		id:    id,
		fn:    fn,
		since: v.seq,
	}
	v.order = append(v.order, id)
	current := v.value
	v.mu.Unlock()

	fn(current)

	var once sync.Once
	return func() {
		once.Do(func() { v.unsubscribe(id) })
	}
}

// subscriberCount returns the number of active subscribers.
func (v *Value[T]) subscriberCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.subscriptions)
}

// Close removes all subscriptions.
func (v *Value[T]) Close() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.subscriptions = make(map[string]*subscription[T])
	v.order = nil
	v.pending = nil
}

func (v *Value[T]) unsubscribe(id string) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if _, ok := v.subscriptions[id]; !ok {
		return
	}
	delete(v.subscriptions, id)
	for i, sid := range v.order {
		if sid == id {
			v.order = append(v.order[:i:i], v.order[i+1:]...)
			break
		}
	}
}

// enqueueLocked records the current value for delivery.
// Must be called with v.mu held.
func (v *Value[T]) enqueueLocked() {
	v.seq++
	if len(v.subscriptions) == 0 {
		return
	}
	v.pending = append(v.pending, change[T]{seq: v.seq, value: v.value})
}

// emit delivers pending changes unless another call is already doing so.
func (v *Value[T]) emit() {
	v.mu.Lock()
	if v.emitting {
		v.mu.Unlock()
		return
	}
	v.emitting = true

	for len(v.pending) > 0 {
		c := v.pending[0]
		v.pending = v.pending[1:]

		targets := make([]*subscription[T], 0, len(v.order))
		for _, id := range v.order {
			sub := v.subscriptions[id]
			if sub.since >= c.seq {
				continue
			}
			sub.since = c.seq
			targets = append(targets, sub)
		}
		v.mu.Unlock()

		for _, sub := range targets {
			sub.fn(c.value)
		}

		v.mu.Lock()
	}

	v.emitting = false
	v.mu.Unlock()
}
