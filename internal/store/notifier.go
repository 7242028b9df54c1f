package store

import "sync"

// notifier is the subscription half of the observable stores: views
// register a callback and get poked after every mutation, then re-read
// whatever state they render.
type notifier struct {
	mu   sync.Mutex
	subs map[int]func()
	next int
}

// Watch registers fn to run after each mutation. The returned cancel
// removes the registration; calling it twice is fine.
func (n *notifier) Watch(fn func()) (cancel func()) {
	n.mu.Lock()
	if n.subs == nil {
		n.subs = make(map[int]func())
	}
	id := n.next
	n.next++
	n.subs[id] = fn
	n.mu.Unlock()

	return func() {
		n.mu.Lock()
		delete(n.subs, id)
		n.mu.Unlock()
	}
}

// notify runs the registered callbacks. Callbacks run outside the
// notifier lock so they may re-enter the store.
func (n *notifier) notify() {
	n.mu.Lock()
	fns := make([]func(), 0, len(n.subs))
	for _, fn := range n.subs {
		fns = append(fns, fn)
	}
	n.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}
