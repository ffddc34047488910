package router

import (
	"strings"
	"sync"
)

// Location is the mutable fragment cell a router reads and writes. Listeners
// are invoked with the new fragment after every change; setting the current
// value again must not notify.
type Location interface {
	Fragment() string
	SetFragment(fragment string)
	Subscribe(fn func(fragment string)) (cancel func())
}

// Dispatcher schedules fn for later execution. MemoryLocation uses it to
// deliver change events asynchronously, the way a browser queues hashchange.
type Dispatcher func(fn func())

// MemoryLocation is an in-process Location.
type MemoryLocation struct {
	dispatch Dispatcher

	mu        sync.Mutex
	fragment  string
	listeners map[int]func(string)
	next      int
}

var _ Location = (*MemoryLocation)(nil)

// NewMemoryLocation creates a location holding initial. A nil dispatch runs
// listeners synchronously.
func NewMemoryLocation(initial string, dispatch Dispatcher) *MemoryLocation {
	if dispatch == nil {
		dispatch = func(fn func()) { fn() }
	}
	return &MemoryLocation{
		dispatch:  dispatch,
		fragment:  Normalize(initial),
		listeners: make(map[int]func(string)),
	}
}

// Fragment returns the current fragment without a leading '#'.
func (l *MemoryLocation) Fragment() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.fragment
}

// SetFragment stores fragment and queues a change event when it differs from
// the current value.
func (l *MemoryLocation) SetFragment(fragment string) {
	fragment = Normalize(fragment)

	l.mu.Lock()
	if fragment == l.fragment {
		l.mu.Unlock()
		return
	}
	l.fragment = fragment
	fns := make([]func(string), 0, len(l.listeners))
	for _, fn := range l.listeners {
		fns = append(fns, fn)
	}
	l.mu.Unlock()

	l.dispatch(func() {
		for _, fn := range fns {
			fn(fragment)
		}
	})
}

// Subscribe registers a change listener.
func (l *MemoryLocation) Subscribe(fn func(string)) func() {
	l.mu.Lock()
	id := l.next
	l.next++
	l.listeners[id] = fn
	l.mu.Unlock()

	return func() {
		l.mu.Lock()
		delete(l.listeners, id)
		l.mu.Unlock()
	}
}

// Normalize strips a single leading '#'.
func Normalize(fragment string) string {
	return strings.TrimPrefix(fragment, "#")
}
