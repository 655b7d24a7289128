// Package event holds the listener registries entities use for their
// change notifications.
package event

import "sync"

type entry[E any] struct {
	id int
	fn func(E)
}

// Registry is an ordered set of listeners for one event kind. The zero value
// is ready to use.
type Registry[E any] struct {
	mu        sync.Mutex
	nextID    int
	listeners []entry[E]
}

// Subscribe adds fn and returns a function that removes it.
func (r *Registry[E]) Subscribe(fn func(E)) (unsubscribe func()) {
	r.mu.Lock()
	r.nextID++
	id := r.nextID
	r.listeners = append(r.listeners, entry[E]{id: id, fn: fn})
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { r.remove(id) })
	}
}

func (r *Registry[E]) remove(id int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, l := range r.listeners {
		if l.id == id {
			r.listeners = append(r.listeners[:i:i], r.listeners[i+1:]...)
			return
		}
	}
}

// Fire calls every listener in subscription order. Listeners run outside the
// registry lock, so they may subscribe or unsubscribe.
func (r *Registry[E]) Fire(e E) {
	r.mu.Lock()
	ls := r.listeners
	r.mu.Unlock()

	for _, l := range ls {
		l.fn(e)
	}
}

// Clear drops every listener.
func (r *Registry[E]) Clear() {
	r.mu.Lock()
	r.listeners = nil
	r.mu.Unlock()
}

// Len reports the number of listeners.
func (r *Registry[E]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.listeners)
}
